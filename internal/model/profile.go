package model

import "time"

// 用户状态常量
const (
	UserStatusDisabled = 0 // 已禁用
	UserStatusActive   = 1 // 正常
)

// Profile 平台注册用户
// 注册时自动创建所属 Team（注册人即 master），见 AuthService.Signup
type Profile struct {
	BaseModel
	Email     string `gorm:"size:255;uniqueIndex;not null"`
	Password  string `gorm:"size:255;not null"` // bcrypt 加密
	FullName  string `gorm:"size:100"`
	AvatarURL string `gorm:"size:500"`
	Status    int    `gorm:"default:1;comment:状态 0-禁用 1-正常"`

	LastLoginAt *time.Time

	// 关联关系
	Memberships []TeamMember `gorm:"foreignKey:UserID"`
}

func (Profile) TableName() string {
	return "profiles"
}
