package dto

import "time"

// ==================== 团队 ====================

// TeamInfo 团队信息
type TeamInfo struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	MasterUserID int64     `json:"master_user_id"`
	MyRole       string    `json:"my_role,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// RenameTeamRequest 团队改名请求
type RenameTeamRequest struct {
	Name string `json:"name" binding:"required,min=1,max=100"`
}

// ==================== 成员 ====================

// MemberInfo 成员信息
type MemberInfo struct {
	UserID   int64     `json:"user_id"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// ChangeRoleRequest 角色变更请求
type ChangeRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=team_mate viewer"`
}

// ==================== 邀请 ====================

// InviteRequest 邀请请求
type InviteRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role" binding:"required,oneof=team_mate viewer"`
}

// InvitationInfo 邀请信息
type InvitationInfo struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	Token     string    `json:"token,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// AcceptInviteRequest 接受邀请请求
type AcceptInviteRequest struct {
	Token string `json:"token" binding:"required"`
}
