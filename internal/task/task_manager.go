package task

import (
	"context"
	"log"
	"time"

	"allad_backend_v1/internal/repository"
	"allad_backend_v1/internal/service"
)

// ==================== TaskManager 业务同步任务管理器 ====================

// TaskManager 统一管理业务同步任务
// 管理范围：广告系列同步、日指标同步、邀请过期扫描
// 不包含：Token 刷新（基础设施层独立管理）
type TaskManager struct {
	campaignTask   *CampaignSyncTask
	metricTask     *MetricSyncTask
	invitationTask *InvitationSweepTask
}

// TaskManagerDeps 任务管理器依赖
type TaskManagerDeps struct {
	// Repositories
	CredentialRepo repository.CredentialRepository
	InvitationRepo repository.InvitationRepository

	// Services
	CampaignService *service.CampaignService
	MetricService   *service.MetricService
}

// TaskManagerConfig 任务管理器配置
type TaskManagerConfig struct {
	// 广告系列同步
	CampaignEnabled     bool
	CampaignConcurrency int

	// 指标同步
	MetricEnabled     bool
	MetricConcurrency int
}

// DefaultConfig 默认配置
func DefaultConfig() *TaskManagerConfig {
	return &TaskManagerConfig{
		CampaignEnabled:     true,
		CampaignConcurrency: 5,

		MetricEnabled:     true,
		MetricConcurrency: 3,
	}
}

// NewTaskManager 创建任务管理器
func NewTaskManager(deps *TaskManagerDeps, cfg *TaskManagerConfig) *TaskManager {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	tm := &TaskManager{}

	if cfg.CampaignEnabled && deps.CampaignService != nil {
		tm.campaignTask = NewCampaignSyncTask(deps.CredentialRepo, deps.CampaignService)
		tm.campaignTask.SetConcurrency(cfg.CampaignConcurrency, 200*time.Millisecond)
	}

	if cfg.MetricEnabled && deps.MetricService != nil {
		tm.metricTask = NewMetricSyncTask(deps.CredentialRepo, deps.MetricService)
		tm.metricTask.SetConcurrency(cfg.MetricConcurrency, 300*time.Millisecond)
	}

	if deps.InvitationRepo != nil {
		tm.invitationTask = NewInvitationSweepTask(deps.InvitationRepo)
	}

	return tm
}

// ==================== 生命周期管理 ====================

// Start 启动所有任务
func (tm *TaskManager) Start() {
	log.Println("[TaskManager] 正在启动业务同步任务...")

	if tm.campaignTask != nil {
		tm.campaignTask.Start()
	}
	if tm.metricTask != nil {
		tm.metricTask.Start()
	}
	if tm.invitationTask != nil {
		tm.invitationTask.Start()
	}

	log.Println("[TaskManager] 业务同步任务已全部启动")
}

// Stop 停止所有任务
func (tm *TaskManager) Stop() {
	log.Println("[TaskManager] 正在停止业务同步任务...")

	if tm.campaignTask != nil {
		tm.campaignTask.Stop()
	}
	if tm.metricTask != nil {
		tm.metricTask.Stop()
	}
	if tm.invitationTask != nil {
		tm.invitationTask.Stop()
	}

	log.Println("[TaskManager] 业务同步任务已全部停止")
}

// ==================== 手动触发接口 ====================

// TriggerTeamCampaignSync 触发单团队系列同步
func (tm *TaskManager) TriggerTeamCampaignSync(ctx context.Context, teamID int64) (*service.SyncResult, error) {
	if tm.campaignTask == nil {
		return nil, ErrTaskDisabled
	}
	return tm.campaignTask.CampaignService.SyncTeam(ctx, teamID)
}

// TriggerAllCampaignsSync 触发全量系列同步
func (tm *TaskManager) TriggerAllCampaignsSync() {
	if tm.campaignTask != nil {
		tm.campaignTask.SyncAllNow()
	}
}

// TriggerTeamMetricSync 触发单团队指标同步
func (tm *TaskManager) TriggerTeamMetricSync(ctx context.Context, teamID int64, date time.Time) (int, error) {
	if tm.metricTask == nil {
		return 0, ErrTaskDisabled
	}
	return tm.metricTask.MetricService.SyncTeamMetrics(ctx, teamID, date)
}

// TriggerAllMetricsSync 触发全量指标同步
func (tm *TaskManager) TriggerAllMetricsSync(date time.Time) {
	if tm.metricTask != nil {
		tm.metricTask.SyncAllNow(date)
	}
}

// ==================== 状态查询 ====================

// Status 获取任务状态
func (tm *TaskManager) Status() map[string]bool {
	return map[string]bool{
		"campaign":   tm.campaignTask != nil,
		"metric":     tm.metricTask != nil,
		"invitation": tm.invitationTask != nil,
	}
}

// ==================== 错误定义 ====================

type TaskError string

func (e TaskError) Error() string { return string(e) }

const (
	ErrTaskDisabled TaskError = "task is disabled"
)
