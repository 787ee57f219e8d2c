package dto

import "time"

// ==================== 广告系列 ====================

// CampaignInfo 广告系列信息
type CampaignInfo struct {
	ID                 int64      `json:"id"`
	Platform           string     `json:"platform"`
	PlatformCampaignID string     `json:"platform_campaign_id"`
	Name               string     `json:"name"`
	Status             string     `json:"status"`
	Budget             float64    `json:"budget"`
	IsActive           bool       `json:"is_active"`
	SyncedAt           *time.Time `json:"synced_at,omitempty"`
}

// CampaignListRequest 列表查询参数
type CampaignListRequest struct {
	Platform string `form:"platform" binding:"omitempty"`
	Status   string `form:"status" binding:"omitempty,oneof=enabled paused removed unknown"`
}

// SetStatusRequest 启停请求
type SetStatusRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// SetBudgetRequest 预算请求
type SetBudgetRequest struct {
	Budget float64 `json:"budget" binding:"required,gt=0"`
}
