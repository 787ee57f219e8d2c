package platform

import (
	"context"
	"errors"
	"time"
)

// ==================== 通用数据结构 ====================

// TokenSet 授权码/刷新换回的 Token 集合
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope,omitempty"`
}

// Credential 调用平台 API 所需的运行时凭证视图
// 由 service 层从 platform_credentials 行映射而来，connector 不触库
type Credential struct {
	TeamID       int64
	AccountID    string // Google customer_id / Meta act_id / TikTok advertiser_id...
	AccessToken  string
	RefreshToken string
	Scope        string
	// 平台专属附加项：Google login_customer_id(MCC)、Naver customer_id、
	// Amazon profile_id 等
	Extra map[string]string
}

// HasWriteScope 凭证是否具备写权限
// 各平台 scope 命名不同，由各 client 覆写判断；这里是公共包含判断
func (c *Credential) HasWriteScope(scopes ...string) bool {
	for _, s := range scopes {
		if containsScope(c.Scope, s) {
			return true
		}
	}
	return false
}

// CampaignData 平台广告系列的统一形态
type CampaignData struct {
	PlatformCampaignID string
	Name               string
	Status             string // enabled / paused / removed / unknown
	Budget             float64
	Raw                []byte // 平台原始 JSON，落库到 campaigns.raw_data
}

// DailyMetrics 单日指标的统一形态
type DailyMetrics struct {
	Date        time.Time
	Impressions int64
	Clicks      int64
	Conversions int64
	Cost        float64
	Revenue     float64
	Raw         []byte
}

// ==================== 接口 ====================

// Connector 负责 OAuth 生命周期：授权链接、换 Token、刷新
type Connector interface {
	Platform() string

	// AuthorizeURL 生成用户同意页链接；不走授权码流程的平台返回空串
	AuthorizeURL(state, codeChallenge string) string

	// ExchangeCode 授权码换 Token。授权码一次性使用，复用会失败
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*TokenSet, error)

	// RefreshToken 刷新 Access Token
	// 平台明确拒绝（400/401）时返回 ErrAuthRevoked，调用方据此停用凭证
	RefreshToken(ctx context.Context, refreshToken string) (*TokenSet, error)
}

// CampaignAPI 负责广告系列读写
type CampaignAPI interface {
	// ListCampaigns 列出账号下所有广告系列（统一形态）
	ListCampaigns(ctx context.Context, cred *Credential) ([]CampaignData, error)

	// SetCampaignStatus 启用/暂停
	// 平台报告已处于目标状态 -> ErrConflict；凭证缺写权限 -> ErrPermission
	SetCampaignStatus(ctx context.Context, cred *Credential, campaignID string, active bool) error

	// SetCampaignBudget 设置预算（平台币种）；budget <= 0 在发请求前即拒绝
	SetCampaignBudget(ctx context.Context, cred *Credential, campaignID string, budget float64) error

	// FetchDailyMetrics 拉取一个系列某天的指标
	FetchDailyMetrics(ctx context.Context, cred *Credential, campaignID string, date time.Time) (*DailyMetrics, error)
}

// Client 平台客户端 = 授权 + 系列操作
type Client interface {
	Connector
	CampaignAPI
}

// ==================== 错误定义 ====================

var (
	ErrConflict       = errors.New("campaign already in requested state")
	ErrPermission     = errors.New("credential lacks required scope")
	ErrRateLimited    = errors.New("platform rate limit exceeded")
	ErrTokenExpired   = errors.New("access token expired")
	ErrAuthRevoked    = errors.New("authorization revoked, re-auth required")
	ErrInvalidBudget  = errors.New("budget must be greater than zero")
	ErrNotSupported   = errors.New("operation not supported by this platform")
	ErrCampaignAbsent = errors.New("campaign not found on platform")
)

// ==================== Registry ====================

// Registry 平台名 -> Client 注册表
type Registry struct {
	clients map[string]Client
}

func NewRegistry(clients ...Client) *Registry {
	r := &Registry{clients: make(map[string]Client)}
	for _, c := range clients {
		r.clients[c.Platform()] = c
	}
	return r
}

// Get 按平台名获取客户端
func (r *Registry) Get(platform string) (Client, bool) {
	c, ok := r.clients[platform]
	return c, ok
}

// Platforms 已注册平台清单
func (r *Registry) Platforms() []string {
	out := make([]string, 0, len(r.clients))
	for p := range r.clients {
		out = append(out, p)
	}
	return out
}

// ==================== 内部工具 ====================

func containsScope(scope, want string) bool {
	if scope == "" || want == "" {
		return false
	}
	start := 0
	for i := 0; i <= len(scope); i++ {
		if i == len(scope) || scope[i] == ' ' || scope[i] == ',' {
			if scope[start:i] == want {
				return true
			}
			start = i + 1
		}
	}
	return false
}
