package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"allad_backend_v1/internal/model"
	"allad_backend_v1/internal/repository"
)

// ==================== 团队角色校验 ====================

// Context Keys
const (
	ContextKeyTeamID   = "team_id"
	ContextKeyTeamRole = "team_role"
)

// PermissionCheck 权限断言，返回 true 表示放行
type PermissionCheck func(p model.RolePermission) bool

// TeamMember 团队成员校验中间件
// 解析路径里的 :team_id，确认当前用户是该团队成员，并把角色注入 Context
// 非成员一律 404，避免泄露团队存在性
func TeamMember(memberRepo repository.TeamMemberRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		teamID, err := strconv.ParseInt(c.Param("team_id"), 10, 64)
		if err != nil || teamID <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    400,
				"message": "잘못된 팀 ID입니다",
			})
			c.Abort()
			return
		}

		userID := GetUserID(c)
		member, err := memberRepo.GetByTeamAndUser(c.Request.Context(), teamID, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    500,
				"message": "팀 정보를 확인할 수 없습니다",
			})
			c.Abort()
			return
		}
		if member == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    404,
				"message": "팀을 찾을 수 없습니다",
			})
			c.Abort()
			return
		}

		c.Set(ContextKeyTeamID, teamID)
		c.Set(ContextKeyTeamRole, member.Role)
		c.Next()
	}
}

// RequireTeamPermission 团队权限校验中间件
// 必须在 TeamMember 之后挂载
func RequireTeamPermission(check PermissionCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := GetTeamRole(c)
		if role == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    401,
				"message": "팀 권한을 확인할 수 없습니다",
			})
			c.Abort()
			return
		}

		if !check(model.PermissionFor(role)) {
			c.JSON(http.StatusForbidden, gin.H{
				"code":    403,
				"message": "이 작업을 수행할 권한이 없습니다",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// ==================== 辅助函数 ====================

// GetTeamID 从 Context 获取团队 ID
func GetTeamID(c *gin.Context) int64 {
	if v, exists := c.Get(ContextKeyTeamID); exists {
		if id, ok := v.(int64); ok {
			return id
		}
	}
	return 0
}

// GetTeamRole 从 Context 获取当前用户在团队内的角色
func GetTeamRole(c *gin.Context) string {
	if v, exists := c.Get(ContextKeyTeamRole); exists {
		if role, ok := v.(string); ok {
			return role
		}
	}
	return ""
}
