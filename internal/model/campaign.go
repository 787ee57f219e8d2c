package model

import (
	"time"

	"gorm.io/datatypes"
)

// 广告系列状态（统一后的状态，各平台原始值保留在 RawData）
const (
	CampaignStatusEnabled = "enabled"
	CampaignStatusPaused  = "paused"
	CampaignStatusRemoved = "removed"
	CampaignStatusUnknown = "unknown"
)

// Campaign 平台广告系列在本地的镜像
// (TeamID, Platform, PlatformCampaignID) 唯一
type Campaign struct {
	BaseModel
	TeamID             int64  `gorm:"index;uniqueIndex:idx_team_platform_campaign;not null"`
	Platform           string `gorm:"size:20;uniqueIndex:idx_team_platform_campaign;not null"`
	PlatformCampaignID string `gorm:"size:100;uniqueIndex:idx_team_platform_campaign;not null"`
	CredentialID       int64  `gorm:"index"`

	Name   string `gorm:"size:255"`
	Status string `gorm:"size:20;default:'unknown'"`
	// 平台币种预算，日预算
	Budget   float64 `gorm:"type:decimal(18,2);default:0"`
	IsActive bool    `gorm:"default:true"`

	RawData  datatypes.JSON `gorm:"type:jsonb"` // 平台原始响应
	SyncedAt *time.Time

	Team       *Team               `gorm:"foreignKey:TeamID"`
	Credential *PlatformCredential `gorm:"foreignKey:CredentialID"`
	Metrics    []CampaignMetric    `gorm:"foreignKey:CampaignID"`
}

// CampaignMetric 广告系列的单日指标
// 每个 campaign 每天一行；CTR/CPC/CPM/ROAS/ROI 等派生指标只在读取时计算，不落库
type CampaignMetric struct {
	ID         int64     `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	CampaignID int64     `gorm:"index;uniqueIndex:idx_campaign_date;not null"`
	Date       time.Time `gorm:"type:date;uniqueIndex:idx_campaign_date;not null"`

	Impressions int64   `gorm:"default:0"`
	Clicks      int64   `gorm:"default:0"`
	Conversions int64   `gorm:"default:0"`
	Cost        float64 `gorm:"type:decimal(18,4);default:0"`
	Revenue     float64 `gorm:"type:decimal(18,4);default:0"`

	RawData   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time

	Campaign *Campaign `gorm:"foreignKey:CampaignID"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

func (CampaignMetric) TableName() string {
	return "campaign_metrics"
}

// ==================== 派生指标 ====================

// DerivedMetrics 派生指标，按需计算
type DerivedMetrics struct {
	CTR  float64 `json:"ctr"`  // clicks / impressions * 100
	CPC  float64 `json:"cpc"`  // cost / clicks
	CPM  float64 `json:"cpm"`  // cost / impressions * 1000
	ROAS float64 `json:"roas"` // revenue / cost
	ROI  float64 `json:"roi"`  // (revenue - cost) / cost * 100
}

// ComputeDerived 由基础指标计算派生指标，分母为 0 时对应项为 0
func ComputeDerived(impressions, clicks int64, cost, revenue float64) DerivedMetrics {
	var d DerivedMetrics
	if impressions > 0 {
		d.CTR = float64(clicks) / float64(impressions) * 100
		d.CPM = cost / float64(impressions) * 1000
	}
	if clicks > 0 {
		d.CPC = cost / float64(clicks)
	}
	if cost > 0 {
		d.ROAS = revenue / cost
		d.ROI = (revenue - cost) / cost * 100
	}
	return d
}
