package task

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"allad_backend_v1/internal/model"
	"allad_backend_v1/internal/repository"
	"allad_backend_v1/internal/service"
)

// ==================== MetricSyncTask ====================

// MetricSyncTask 日指标定时同步
// 每天凌晨拉取前一天的指标；归因回填有延迟，前天的数据再拉一次覆盖
type MetricSyncTask struct {
	CredentialRepo repository.CredentialRepository
	MetricService  *service.MetricService
	Cron           *cron.Cron

	concurrencyLimit int
	sleepTime        time.Duration

	// 回看天数：1 = 只拉昨天，2 = 昨天 + 前天
	lookbackDays int
}

func NewMetricSyncTask(credentialRepo repository.CredentialRepository, metricService *service.MetricService) *MetricSyncTask {
	return &MetricSyncTask{
		CredentialRepo:   credentialRepo,
		MetricService:    metricService,
		Cron:             cron.New(cron.WithSeconds()),
		concurrencyLimit: 3, // 报表接口最容易被限流
		sleepTime:        300 * time.Millisecond,
		lookbackDays:     2,
	}
}

// SetConcurrency 调整并发参数
func (t *MetricSyncTask) SetConcurrency(limit int, sleep time.Duration) {
	if limit > 0 {
		t.concurrencyLimit = limit
	}
	if sleep > 0 {
		t.sleepTime = sleep
	}
}

// Start 启动定时任务
func (t *MetricSyncTask) Start() {
	// 每天 02:30，平台侧前一天数据已结算
	_, err := t.Cron.AddFunc("0 30 2 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Minute)
		defer cancel()

		t.syncJob(ctx)
	})
	if err != nil {
		log.Fatalf("无法启动指标同步任务: %v", err)
	}

	t.Cron.Start()
	log.Println("指标同步任务已启动 (每天 02:30)")
}

// Stop 停止定时任务
func (t *MetricSyncTask) Stop() {
	if t.Cron != nil {
		t.Cron.Stop()
	}
}

// SyncAllNow 手动触发，date 为要拉取的日期
func (t *MetricSyncTask) SyncAllNow(date time.Time) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Minute)
		defer cancel()
		t.syncDate(ctx, date)
	}()
}

// syncJob 按回看天数逐日同步
func (t *MetricSyncTask) syncJob(ctx context.Context) {
	today := time.Now().Truncate(24 * time.Hour)
	for i := 1; i <= t.lookbackDays; i++ {
		select {
		case <-ctx.Done():
			log.Println("[Cron] 指标同步超时停止")
			return
		default:
		}
		t.syncDate(ctx, today.AddDate(0, 0, -i))
	}
}

func (t *MetricSyncTask) syncDate(ctx context.Context, date time.Time) {
	creds, err := t.CredentialRepo.ListAllActive(ctx)
	if err != nil {
		log.Printf("[Cron] 活跃凭证查询失败: %v", err)
		return
	}

	sem := make(chan struct{}, t.concurrencyLimit)
	var wg sync.WaitGroup

	log.Printf("[Cron] 开始同步 %s 的指标，凭证 %d 条，并发上限: %d",
		date.Format("2006-01-02"), len(creds), t.concurrencyLimit)

	for _, cred := range creds {
		select {
		case <-ctx.Done():
			log.Println("[Cron] 指标同步超时停止")
			return
		default:
		}

		sem <- struct{}{}
		wg.Add(1)
		time.Sleep(t.sleepTime)

		currentCred := cred

		go func(c model.PlatformCredential) {
			defer wg.Done()
			defer func() { <-sem }()

			if _, err := t.MetricService.SyncCredentialMetrics(ctx, &c, date); err != nil {
				log.Printf("[Cron] 凭证 [%s/%s] 指标同步失败: %v", c.Platform, c.AccountID, err)
			}
		}(currentCred)
	}

	wg.Wait()
	log.Printf("[Cron] %s 指标同步完成", date.Format("2006-01-02"))
}
