package model

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// ==================== 平台常量 ====================

// 支持的广告平台
const (
	PlatformGoogle   = "google"
	PlatformFacebook = "facebook" // Meta Ads
	PlatformAmazon   = "amazon"
	PlatformTikTok   = "tiktok"
	PlatformNaver    = "naver"
	PlatformKakao    = "kakao"
	PlatformCoupang  = "coupang"
)

// AllPlatforms 平台清单（校验用）
var AllPlatforms = []string{
	PlatformGoogle, PlatformFacebook, PlatformAmazon, PlatformTikTok,
	PlatformNaver, PlatformKakao, PlatformCoupang,
}

// IsValidPlatform 是否为受支持的平台
func IsValidPlatform(p string) bool {
	for _, v := range AllPlatforms {
		if v == p {
			return true
		}
	}
	return false
}

// Token 状态常量
const (
	TokenStatusValid   = "valid"        // 有效
	TokenStatusExpired = "expired"      // 已过期，等待刷新
	TokenStatusInvalid = "auth_invalid" // 刷新被平台拒绝，需重新授权
)

// ==================== 模型 ====================

// PlatformCredential 一个团队在一个平台上的一个广告账号凭证
// Credentials 字段存放平台专属的 OAuth token / 密钥（access_token、
// refresh_token、expires_at、scope 等，各平台结构不同）
type PlatformCredential struct {
	BaseModel
	TeamID   int64  `gorm:"index;uniqueIndex:idx_team_platform_account;not null"`
	Platform string `gorm:"size:20;index;uniqueIndex:idx_team_platform_account;not null"`
	// 平台侧账号标识：Google customer_id、Meta act_id、TikTok advertiser_id...
	AccountID   string `gorm:"size:100;uniqueIndex:idx_team_platform_account;not null"`
	AccountName string `gorm:"size:255"`

	Credentials datatypes.JSON `gorm:"type:jsonb"`

	// 断开连接或刷新被拒后置 false
	IsActive    bool   `gorm:"index;default:true"`
	TokenStatus string `gorm:"index;size:20;default:'valid'"`

	AccessToken    string `gorm:"size:2048"`
	RefreshToken   string `gorm:"size:2048"`
	TokenExpiresAt time.Time
	Scopes         pq.StringArray `gorm:"type:text[]"`

	CreatedBy int64
	SyncedAt  *time.Time `gorm:"comment:最后同步时间"`

	Team *Team `gorm:"foreignKey:TeamID"`
}

func (PlatformCredential) TableName() string {
	return "platform_credentials"
}
