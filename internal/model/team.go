package model

import "time"

// ==================== 角色常量 ====================

// 团队角色
// 一个团队有且只有一个 master，对应 teams.master_user_id
const (
	RoleMaster   = "master"    // 团队所有者，全部权限
	RoleTeamMate = "team_mate" // 可管理广告系列/报表，可邀请受限角色
	RoleViewer   = "viewer"    // 只读
)

// ==================== 邀请状态常量 ====================

const (
	InviteStatusPending   = "pending"   // 待接受
	InviteStatusAccepted  = "accepted"  // 已接受
	InviteStatusExpired   = "expired"   // 已过期
	InviteStatusCancelled = "cancelled" // 已取消
)

// InviteTTL 邀请有效期，过期后 token 作废
const InviteTTL = 7 * 24 * time.Hour

// ==================== 权限表 ====================

// RolePermission 角色权限定义，前后端共用的静态权限表
type RolePermission struct {
	CanManageTeam      bool // 改名/删除团队
	CanInviteMembers   bool // 发出邀请
	CanRemoveMembers   bool // 移除成员
	CanManagePlatforms bool // 连接/断开广告平台
	CanManageCampaigns bool // 修改广告系列状态/预算
	CanViewReports     bool // 查看报表
}

// RolePermissions 静态权限表
// viewer 只读；team_mate 可以邀请，但只能邀请 viewer
var RolePermissions = map[string]RolePermission{
	RoleMaster: {
		CanManageTeam:      true,
		CanInviteMembers:   true,
		CanRemoveMembers:   true,
		CanManagePlatforms: true,
		CanManageCampaigns: true,
		CanViewReports:     true,
	},
	RoleTeamMate: {
		CanInviteMembers:   true,
		CanManageCampaigns: true,
		CanViewReports:     true,
	},
	RoleViewer: {
		CanViewReports: true,
	},
}

// PermissionFor 查询角色权限，未知角色按 viewer 处理
func PermissionFor(role string) RolePermission {
	if p, ok := RolePermissions[role]; ok {
		return p
	}
	return RolePermissions[RoleViewer]
}

// ==================== 模型 ====================

// Team 租户单元，所有广告数据都挂在 Team 下
type Team struct {
	BaseModel
	Name         string `gorm:"size:100;not null"`
	MasterUserID int64  `gorm:"index;not null;comment:团队所有者，与 team_members 中 master 行一致"`

	// 关联关系
	Members     []TeamMember         `gorm:"foreignKey:TeamID"`
	Credentials []PlatformCredential `gorm:"foreignKey:TeamID"`
	Campaigns   []Campaign           `gorm:"foreignKey:TeamID"`
}

// TeamMember 用户与团队的关联（Join Table）
type TeamMember struct {
	BaseModel
	// 联合唯一索引：一个用户在一个团队里只有一条记录
	TeamID int64 `gorm:"index;uniqueIndex:idx_team_user;not null"`
	UserID int64 `gorm:"index;uniqueIndex:idx_team_user;not null"`

	Role      string `gorm:"size:20;not null;default:'viewer'"`
	InvitedBy int64  `gorm:"comment:邀请人 user_id，master 自身为 0"`
	JoinedAt  time.Time

	// 关联对象 (Belongs To)
	Team *Team    `gorm:"foreignKey:TeamID"`
	User *Profile `gorm:"foreignKey:UserID"`
}

// TeamInvitation 邀请生命周期
// token 一次性使用，InviteTTL 后过期
type TeamInvitation struct {
	BaseModel
	TeamID    int64  `gorm:"index;not null"`
	Email     string `gorm:"size:255;index;not null"`
	Role      string `gorm:"size:20;not null"` // 只允许 team_mate / viewer
	InvitedBy int64  `gorm:"not null"`
	Status    string `gorm:"size:20;index;default:'pending'"`
	Token     string `gorm:"size:64;uniqueIndex;not null"`

	ExpiresAt  time.Time
	AcceptedAt *time.Time

	Team *Team `gorm:"foreignKey:TeamID"`
}

func (Team) TableName() string {
	return "teams"
}

func (TeamMember) TableName() string {
	return "team_members"
}

func (TeamInvitation) TableName() string {
	return "team_invitations"
}
