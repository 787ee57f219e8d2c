package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"allad_backend_v1/internal/model"
	"allad_backend_v1/internal/repository"
)

// memoryStorage 内存存储，断言上传内容用
type memoryStorage struct {
	objects map[string][]byte
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: map[string][]byte{}}
}

func (m *memoryStorage) Upload(_ context.Context, data []byte, filename, _ string) (string, error) {
	m.objects[filename] = data
	return filename, nil
}

func (m *memoryStorage) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func (m *memoryStorage) GetSignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://storage.example.com/" + key, nil
}

var _ StorageProvider = (*memoryStorage)(nil)

func TestExportService_ExportDashboardCSV(t *testing.T) {
	db := setupCampaignTestDB(t)
	_, campaign := seedCampaignFixture(t, db)

	d1 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)
	db.Create(&model.CampaignMetric{CampaignID: campaign.ID, Date: d1, Impressions: 1000, Clicks: 20, Cost: 100, Revenue: 300})
	db.Create(&model.CampaignMetric{CampaignID: campaign.ID, Date: d2, Impressions: 2000, Clicks: 40, Cost: 200, Revenue: 500})

	storage := newMemoryStorage()
	svc := NewExportService(
		newMetricTestService(db),
		repository.NewCampaignRepository(db),
		storage,
	)

	result, err := svc.ExportDashboardCSV(context.Background(), 1, "", d1, d2)
	if err != nil {
		t.Fatalf("ExportDashboardCSV 失败: %v", err)
	}

	if result.Rows != 2 {
		t.Errorf("Rows = %d, want 2", result.Rows)
	}
	if !strings.HasPrefix(result.URL, "https://storage.example.com/") {
		t.Errorf("URL = %s", result.URL)
	}

	data, ok := storage.objects[result.Filename]
	if !ok {
		t.Fatalf("文件未上传: %s", result.Filename)
	}

	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("CSV 解析失败: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("CSV 行数 = %d, want 3 (含表头)", len(rows))
	}
	if rows[0][0] != "date" || rows[0][6] != "ctr" {
		t.Errorf("表头错误: %v", rows[0])
	}
	if rows[1][0] != "2026-08-01" || rows[1][1] != "1000" {
		t.Errorf("首行数据错误: %v", rows[1])
	}
	// 金额两位小数
	if rows[1][4] != "100.00" {
		t.Errorf("cost 格式 = %s, want 100.00", rows[1][4])
	}
	// CTR = 20/1000*100 = 2.00
	if rows[1][6] != "2.00" {
		t.Errorf("ctr = %s, want 2.00", rows[1][6])
	}
}

func TestExportService_NoStorage(t *testing.T) {
	db := setupCampaignTestDB(t)
	_, campaign := seedCampaignFixture(t, db)

	svc := NewExportService(
		newMetricTestService(db),
		repository.NewCampaignRepository(db),
		nil,
	)
	ctx := context.Background()
	d := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	if _, err := svc.ExportDashboardCSV(ctx, 1, "", d, d); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("无存储时应返回 ErrStorageUnavailable, got %v", err)
	}
	if _, err := svc.ExportCampaignCSV(ctx, 1, campaign.ID, d, d); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("无存储时应返回 ErrStorageUnavailable, got %v", err)
	}
}

func TestExportService_ExportCampaignCSV(t *testing.T) {
	db := setupCampaignTestDB(t)
	_, campaign := seedCampaignFixture(t, db)

	d := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	db.Create(&model.CampaignMetric{CampaignID: campaign.ID, Date: d, Impressions: 500, Clicks: 5, Cost: 50, Revenue: 60})

	storage := newMemoryStorage()
	svc := NewExportService(
		newMetricTestService(db),
		repository.NewCampaignRepository(db),
		storage,
	)
	ctx := context.Background()

	result, err := svc.ExportCampaignCSV(ctx, 1, campaign.ID, d, d)
	if err != nil {
		t.Fatalf("ExportCampaignCSV 失败: %v", err)
	}
	if result.Rows != 1 {
		t.Errorf("Rows = %d, want 1", result.Rows)
	}

	rows, err := csv.NewReader(bytes.NewReader(storage.objects[result.Filename])).ReadAll()
	if err != nil {
		t.Fatalf("CSV 解析失败: %v", err)
	}
	if rows[1][1] != campaign.Name || rows[1][2] != "google" {
		t.Errorf("系列信息错误: %v", rows[1])
	}

	// 跨团队导出拒绝
	if _, err := svc.ExportCampaignCSV(ctx, 999, campaign.ID, d, d); err == nil {
		t.Errorf("跨团队导出应失败")
	}
}
