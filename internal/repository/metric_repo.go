package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"allad_backend_v1/internal/model"
)

// ==================== 接口定义 ====================

// MetricTotals 聚合后的基础指标
type MetricTotals struct {
	Impressions int64
	Clicks      int64
	Conversions int64
	Cost        float64
	Revenue     float64
}

// DailyTotals 按天聚合的指标行
type DailyTotals struct {
	Date time.Time
	MetricTotals
}

// PlatformTotals 按平台聚合的指标行
type PlatformTotals struct {
	Platform string
	MetricTotals
}

// MetricRepository 日指标仓储接口
type MetricRepository interface {
	// UpsertDaily 按 (campaign_id, date) 幂等写入，同一天重复同步时覆盖
	UpsertDaily(ctx context.Context, m *model.CampaignMetric) error
	ListByCampaign(ctx context.Context, campaignID int64, from, to time.Time) ([]model.CampaignMetric, error)

	// SumByTeam 团队维度汇总，platform 为空时不过滤平台
	SumByTeam(ctx context.Context, teamID int64, platform string, from, to time.Time) (*MetricTotals, error)
	SumByTeamDaily(ctx context.Context, teamID int64, platform string, from, to time.Time) ([]DailyTotals, error)
	SumByTeamPerPlatform(ctx context.Context, teamID int64, from, to time.Time) ([]PlatformTotals, error)
}

// ==================== 仓储实现 ====================

type metricRepo struct {
	db *gorm.DB
}

// NewMetricRepository 创建日指标仓储
func NewMetricRepository(db *gorm.DB) MetricRepository {
	return &metricRepo{db: db}
}

func (r *metricRepo) UpsertDaily(ctx context.Context, m *model.CampaignMetric) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "campaign_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"impressions", "clicks", "conversions", "cost", "revenue", "raw_data",
		}),
	}).Create(m).Error
}

func (r *metricRepo) ListByCampaign(ctx context.Context, campaignID int64, from, to time.Time) ([]model.CampaignMetric, error) {
	var metrics []model.CampaignMetric
	err := r.db.WithContext(ctx).
		Where("campaign_id = ? AND date >= ? AND date <= ?", campaignID, from, to).
		Order("date ASC").
		Find(&metrics).Error
	return metrics, err
}

// teamScope 指标表按 campaigns 关联限定到团队
func (r *metricRepo) teamScope(ctx context.Context, teamID int64, platform string, from, to time.Time) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&model.CampaignMetric{}).
		Joins("JOIN campaigns ON campaigns.id = campaign_metrics.campaign_id").
		Where("campaigns.team_id = ? AND campaigns.deleted_at IS NULL", teamID).
		Where("campaign_metrics.date >= ? AND campaign_metrics.date <= ?", from, to)
	if platform != "" {
		query = query.Where("campaigns.platform = ?", platform)
	}
	return query
}

func (r *metricRepo) SumByTeam(ctx context.Context, teamID int64, platform string, from, to time.Time) (*MetricTotals, error) {
	var totals MetricTotals
	err := r.teamScope(ctx, teamID, platform, from, to).
		Select(`COALESCE(SUM(campaign_metrics.impressions), 0) AS impressions,
			COALESCE(SUM(campaign_metrics.clicks), 0) AS clicks,
			COALESCE(SUM(campaign_metrics.conversions), 0) AS conversions,
			COALESCE(SUM(campaign_metrics.cost), 0) AS cost,
			COALESCE(SUM(campaign_metrics.revenue), 0) AS revenue`).
		Scan(&totals).Error
	if err != nil {
		return nil, err
	}
	return &totals, nil
}

func (r *metricRepo) SumByTeamDaily(ctx context.Context, teamID int64, platform string, from, to time.Time) ([]DailyTotals, error) {
	var rows []DailyTotals
	err := r.teamScope(ctx, teamID, platform, from, to).
		Select(`campaign_metrics.date AS date,
			COALESCE(SUM(campaign_metrics.impressions), 0) AS impressions,
			COALESCE(SUM(campaign_metrics.clicks), 0) AS clicks,
			COALESCE(SUM(campaign_metrics.conversions), 0) AS conversions,
			COALESCE(SUM(campaign_metrics.cost), 0) AS cost,
			COALESCE(SUM(campaign_metrics.revenue), 0) AS revenue`).
		Group("campaign_metrics.date").
		Order("campaign_metrics.date ASC").
		Scan(&rows).Error
	return rows, err
}

func (r *metricRepo) SumByTeamPerPlatform(ctx context.Context, teamID int64, from, to time.Time) ([]PlatformTotals, error) {
	var rows []PlatformTotals
	err := r.teamScope(ctx, teamID, "", from, to).
		Select(`campaigns.platform AS platform,
			COALESCE(SUM(campaign_metrics.impressions), 0) AS impressions,
			COALESCE(SUM(campaign_metrics.clicks), 0) AS clicks,
			COALESCE(SUM(campaign_metrics.conversions), 0) AS conversions,
			COALESCE(SUM(campaign_metrics.cost), 0) AS cost,
			COALESCE(SUM(campaign_metrics.revenue), 0) AS revenue`).
		Group("campaigns.platform").
		Order("campaigns.platform ASC").
		Scan(&rows).Error
	return rows, err
}
