package service

import (
	"context"
	"log"
	"time"

	"gorm.io/datatypes"

	"allad_backend_v1/internal/model"
	"allad_backend_v1/internal/platform"
	"allad_backend_v1/internal/repository"
)

// ==================== MetricService ====================

// MetricService 日指标同步与聚合报表
type MetricService struct {
	MetricRepo     repository.MetricRepository
	CampaignRepo   repository.CampaignRepository
	CredentialRepo repository.CredentialRepository
	Registry       *platform.Registry
}

// NewMetricService 工厂方法
func NewMetricService(
	metricRepo repository.MetricRepository,
	campaignRepo repository.CampaignRepository,
	credentialRepo repository.CredentialRepository,
	registry *platform.Registry,
) *MetricService {
	return &MetricService{
		MetricRepo:     metricRepo,
		CampaignRepo:   campaignRepo,
		CredentialRepo: credentialRepo,
		Registry:       registry,
	}
}

// ==================== 同步 ====================

// SyncCredentialMetrics 拉取一条凭证下所有活跃系列某天的指标
// 同一天重复同步覆盖旧值，一个系列一天一行
func (s *MetricService) SyncCredentialMetrics(ctx context.Context, cred *model.PlatformCredential, date time.Time) (int, error) {
	client, ok := s.Registry.Get(cred.Platform)
	if !ok {
		return 0, ErrUnknownPlatform
	}

	campaigns, err := s.CampaignRepo.ListByCredential(ctx, cred.ID)
	if err != nil {
		return 0, err
	}

	runtimeCred := RuntimeCredential(cred)
	synced := 0
	for i := range campaigns {
		c := &campaigns[i]
		if !c.IsActive {
			continue
		}

		dm, err := client.FetchDailyMetrics(ctx, runtimeCred, c.PlatformCampaignID, date)
		if err != nil {
			log.Printf("[Metric] fetch failed platform=%s campaign=%s err=%v", cred.Platform, c.PlatformCampaignID, err)
			continue
		}

		m := &model.CampaignMetric{
			CampaignID:  c.ID,
			Date:        dm.Date,
			Impressions: dm.Impressions,
			Clicks:      dm.Clicks,
			Conversions: dm.Conversions,
			Cost:        dm.Cost,
			Revenue:     dm.Revenue,
			RawData:     datatypes.JSON(dm.Raw),
		}
		if err := s.MetricRepo.UpsertDaily(ctx, m); err != nil {
			log.Printf("[Metric] upsert failed campaign=%d date=%s err=%v", c.ID, date.Format("2006-01-02"), err)
			continue
		}
		synced++
	}

	log.Printf("[Metric] sync ok platform=%s cred=%d date=%s rows=%d",
		cred.Platform, cred.ID, date.Format("2006-01-02"), synced)
	return synced, nil
}

// SyncTeamMetrics 同步团队所有活跃凭证某天的指标
func (s *MetricService) SyncTeamMetrics(ctx context.Context, teamID int64, date time.Time) (int, error) {
	creds, err := s.CredentialRepo.ListActiveByTeam(ctx, teamID)
	if err != nil {
		return 0, err
	}

	total := 0
	for i := range creds {
		n, err := s.SyncCredentialMetrics(ctx, &creds[i], date)
		if err != nil {
			log.Printf("[Metric] credential sync failed cred=%d err=%v", creds[i].ID, err)
			continue
		}
		total += n
	}
	return total, nil
}

// ==================== 报表 ====================

// MetricReport 基础指标 + 派生指标
type MetricReport struct {
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	Conversions int64   `json:"conversions"`
	Cost        float64 `json:"cost"`
	Revenue     float64 `json:"revenue"`
	model.DerivedMetrics
}

// DailyReport 按天的报表行
type DailyReport struct {
	Date string `json:"date"`
	MetricReport
}

// PlatformReport 按平台的报表行
type PlatformReport struct {
	Platform string `json:"platform"`
	MetricReport
}

// Dashboard 团队汇总报表
type Dashboard struct {
	Totals      MetricReport     `json:"totals"`
	Daily       []DailyReport    `json:"daily"`
	PerPlatform []PlatformReport `json:"per_platform"`
}

// buildReport 基础指标 -> 报表行，派生指标按需计算不落库
func buildReport(t repository.MetricTotals) MetricReport {
	return MetricReport{
		Impressions:    t.Impressions,
		Clicks:         t.Clicks,
		Conversions:    t.Conversions,
		Cost:           t.Cost,
		Revenue:        t.Revenue,
		DerivedMetrics: model.ComputeDerived(t.Impressions, t.Clicks, t.Cost, t.Revenue),
	}
}

// GetDashboard 团队维度汇总：合计 + 日序列 + 平台拆分
// platformName 为空时聚合全部平台
func (s *MetricService) GetDashboard(ctx context.Context, teamID int64, platformName string, from, to time.Time) (*Dashboard, error) {
	totals, err := s.MetricRepo.SumByTeam(ctx, teamID, platformName, from, to)
	if err != nil {
		return nil, err
	}

	daily, err := s.MetricRepo.SumByTeamDaily(ctx, teamID, platformName, from, to)
	if err != nil {
		return nil, err
	}

	perPlatform, err := s.MetricRepo.SumByTeamPerPlatform(ctx, teamID, from, to)
	if err != nil {
		return nil, err
	}

	dashboard := &Dashboard{
		Totals:      buildReport(*totals),
		Daily:       make([]DailyReport, 0, len(daily)),
		PerPlatform: make([]PlatformReport, 0, len(perPlatform)),
	}
	for _, d := range daily {
		dashboard.Daily = append(dashboard.Daily, DailyReport{
			Date:         d.Date.Format("2006-01-02"),
			MetricReport: buildReport(d.MetricTotals),
		})
	}
	for _, p := range perPlatform {
		dashboard.PerPlatform = append(dashboard.PerPlatform, PlatformReport{
			Platform:     p.Platform,
			MetricReport: buildReport(p.MetricTotals),
		})
	}
	return dashboard, nil
}

// GetCampaignSeries 单个系列的日指标序列
func (s *MetricService) GetCampaignSeries(ctx context.Context, teamID, campaignID int64, from, to time.Time) ([]DailyReport, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign == nil || campaign.TeamID != teamID {
		return nil, ErrCampaignNotFound
	}

	metrics, err := s.MetricRepo.ListByCampaign(ctx, campaignID, from, to)
	if err != nil {
		return nil, err
	}

	out := make([]DailyReport, 0, len(metrics))
	for _, m := range metrics {
		out = append(out, DailyReport{
			Date: m.Date.Format("2006-01-02"),
			MetricReport: buildReport(repository.MetricTotals{
				Impressions: m.Impressions,
				Clicks:      m.Clicks,
				Conversions: m.Conversions,
				Cost:        m.Cost,
				Revenue:     m.Revenue,
			}),
		})
	}
	return out, nil
}
