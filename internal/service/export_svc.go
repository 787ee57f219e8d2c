package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"allad_backend_v1/internal/repository"
)

// 导出下载链接有效期
const exportURLTTL = 1 * time.Hour

// ==================== ExportService ====================

// ExportService 报表 CSV 导出
type ExportService struct {
	MetricSvc    *MetricService
	CampaignRepo repository.CampaignRepository
	Storage      StorageProvider
}

// NewExportService 工厂方法
func NewExportService(metricSvc *MetricService, campaignRepo repository.CampaignRepository, storage StorageProvider) *ExportService {
	return &ExportService{
		MetricSvc:    metricSvc,
		CampaignRepo: campaignRepo,
		Storage:      storage,
	}
}

// ExportResult 导出结果
type ExportResult struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Rows     int    `json:"rows"`
}

// ExportDashboardCSV 导出团队日报表为 CSV，返回限时下载链接
func (s *ExportService) ExportDashboardCSV(ctx context.Context, teamID int64, platformName string, from, to time.Time) (*ExportResult, error) {
	if s.Storage == nil {
		return nil, ErrStorageUnavailable
	}

	dashboard, err := s.MetricSvc.GetDashboard(ctx, teamID, platformName, from, to)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"date", "impressions", "clicks", "conversions", "cost", "revenue", "ctr", "cpc", "cpm", "roas", "roi"}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, d := range dashboard.Daily {
		row := []string{
			d.Date,
			strconv.FormatInt(d.Impressions, 10),
			strconv.FormatInt(d.Clicks, 10),
			strconv.FormatInt(d.Conversions, 10),
			formatMoney(d.Cost),
			formatMoney(d.Revenue),
			formatMoney(d.CTR),
			formatMoney(d.CPC),
			formatMoney(d.CPM),
			formatMoney(d.ROAS),
			formatMoney(d.ROI),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("report_%d_%s_%s.csv", teamID, from.Format("20060102"), to.Format("20060102"))
	key, err := s.Storage.Upload(ctx, buf.Bytes(), filename, "text/csv")
	if err != nil {
		return nil, err
	}

	url, err := s.Storage.GetSignedURL(ctx, key, exportURLTTL)
	if err != nil {
		return nil, err
	}

	log.Printf("[Export] dashboard csv team=%d rows=%d key=%s", teamID, len(dashboard.Daily), key)
	return &ExportResult{
		Filename: filename,
		URL:      url,
		Rows:     len(dashboard.Daily),
	}, nil
}

// ExportCampaignCSV 导出单个系列的日指标
func (s *ExportService) ExportCampaignCSV(ctx context.Context, teamID, campaignID int64, from, to time.Time) (*ExportResult, error) {
	if s.Storage == nil {
		return nil, ErrStorageUnavailable
	}

	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign == nil || campaign.TeamID != teamID {
		return nil, ErrCampaignNotFound
	}

	series, err := s.MetricSvc.GetCampaignSeries(ctx, teamID, campaignID, from, to)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"date", "campaign", "platform", "impressions", "clicks", "conversions", "cost", "revenue", "ctr", "cpc", "roas"}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, d := range series {
		row := []string{
			d.Date,
			campaign.Name,
			campaign.Platform,
			strconv.FormatInt(d.Impressions, 10),
			strconv.FormatInt(d.Clicks, 10),
			strconv.FormatInt(d.Conversions, 10),
			formatMoney(d.Cost),
			formatMoney(d.Revenue),
			formatMoney(d.CTR),
			formatMoney(d.CPC),
			formatMoney(d.ROAS),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("campaign_%d_%s_%s.csv", campaignID, from.Format("20060102"), to.Format("20060102"))
	key, err := s.Storage.Upload(ctx, buf.Bytes(), filename, "text/csv")
	if err != nil {
		return nil, err
	}

	url, err := s.Storage.GetSignedURL(ctx, key, exportURLTTL)
	if err != nil {
		return nil, err
	}

	return &ExportResult{
		Filename: filename,
		URL:      url,
		Rows:     len(series),
	}, nil
}

func formatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// ==================== 错误定义 ====================

var ErrStorageUnavailable = errors.New("내보내기 저장소를 사용할 수 없습니다. 관리자에게 문의해 주세요")
