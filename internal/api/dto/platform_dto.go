package dto

import "time"

// ==================== 平台连接 ====================

// ConnectRequest OAuth 连接请求
type ConnectRequest struct {
	Platform  string `json:"platform" binding:"required"`
	AccountID string `json:"account_id" binding:"required,max=100"`
}

// ConnectResponse OAuth 连接响应
type ConnectResponse struct {
	AuthURL string `json:"auth_url"`
}

// ConnectKeysRequest 密钥录入连接请求 (naver / coupang)
type ConnectKeysRequest struct {
	Platform  string            `json:"platform" binding:"required,oneof=naver coupang"`
	AccountID string            `json:"account_id" binding:"required,max=100"`
	APIKey    string            `json:"api_key" binding:"required"`
	Extra     map[string]string `json:"extra"`
}

// CredentialInfo 已连接平台信息
// Token 本体不出接口，只暴露状态
type CredentialInfo struct {
	ID          int64      `json:"id"`
	Platform    string     `json:"platform"`
	AccountID   string     `json:"account_id"`
	AccountName string     `json:"account_name,omitempty"`
	IsActive    bool       `json:"is_active"`
	TokenStatus string     `json:"token_status"`
	SyncedAt    *time.Time `json:"synced_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
