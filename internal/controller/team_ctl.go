package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"allad_backend_v1/internal/api/dto"
	"allad_backend_v1/internal/middleware"
	"allad_backend_v1/internal/model"
	"allad_backend_v1/internal/service"
)

// ==================== TeamController 团队控制器 ====================

// TeamController 团队控制器
type TeamController struct {
	teamService *service.TeamService
}

// NewTeamController 创建团队控制器
func NewTeamController(teamService *service.TeamService) *TeamController {
	return &TeamController{teamService: teamService}
}

// ==================== 团队接口 ====================

// ListMyTeams 我的团队列表
// @Summary 내가 속한 팀 목록
// @Tags Team
// @Produce json
// @Security BearerAuth
// @Success 200 {array} dto.TeamInfo
// @Router /teams [get]
func (c *TeamController) ListMyTeams(ctx *gin.Context) {
	userID := middleware.GetUserID(ctx)
	memberships, err := c.teamService.ListMyTeams(ctx.Request.Context(), userID)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": err.Error(),
		})
		return
	}

	teams := make([]dto.TeamInfo, 0, len(memberships))
	for _, m := range memberships {
		if m.Team == nil {
			continue
		}
		teams = append(teams, dto.TeamInfo{
			ID:           m.Team.ID,
			Name:         m.Team.Name,
			MasterUserID: m.Team.MasterUserID,
			MyRole:       m.Role,
			CreatedAt:    m.Team.CreatedAt,
		})
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code": 0,
		"data": teams,
	})
}

// GetTeam 团队详情
// @Summary 팀 상세
// @Tags Team
// @Produce json
// @Security BearerAuth
// @Param team_id path int true "팀 ID"
// @Success 200 {object} dto.TeamInfo
// @Router /teams/{team_id} [get]
func (c *TeamController) GetTeam(ctx *gin.Context) {
	teamID := middleware.GetTeamID(ctx)
	team, err := c.teamService.GetTeam(ctx.Request.Context(), teamID)
	if err != nil || team == nil {
		ctx.JSON(http.StatusNotFound, gin.H{
			"code":    404,
			"message": "팀을 찾을 수 없습니다",
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code": 0,
		"data": dto.TeamInfo{
			ID:           team.ID,
			Name:         team.Name,
			MasterUserID: team.MasterUserID,
			MyRole:       middleware.GetTeamRole(ctx),
			CreatedAt:    team.CreatedAt,
		},
	})
}

// RenameTeam 团队改名
// @Summary 팀 이름 변경 (master 전용)
// @Tags Team
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param team_id path int true "팀 ID"
// @Param request body dto.RenameTeamRequest true "팀 이름"
// @Success 200 {object} map[string]interface{}
// @Router /teams/{team_id} [put]
func (c *TeamController) RenameTeam(ctx *gin.Context) {
	var req dto.RenameTeamRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "잘못된 요청입니다: " + err.Error(),
		})
		return
	}

	teamID := middleware.GetTeamID(ctx)
	userID := middleware.GetUserID(ctx)
	if err := c.teamService.RenameTeam(ctx.Request.Context(), teamID, userID, req.Name); err != nil {
		respondTeamError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "팀 이름이 변경되었습니다",
	})
}

// ==================== 成员接口 ====================

// ListMembers 成员列表
// @Summary 팀 멤버 목록
// @Tags Team
// @Produce json
// @Security BearerAuth
// @Param team_id path int true "팀 ID"
// @Success 200 {array} dto.MemberInfo
// @Router /teams/{team_id}/members [get]
func (c *TeamController) ListMembers(ctx *gin.Context) {
	teamID := middleware.GetTeamID(ctx)
	members, err := c.teamService.ListMembers(ctx.Request.Context(), teamID)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": err.Error(),
		})
		return
	}

	out := make([]dto.MemberInfo, 0, len(members))
	for _, m := range members {
		info := dto.MemberInfo{
			UserID:   m.UserID,
			Role:     m.Role,
			JoinedAt: m.JoinedAt,
		}
		if m.User != nil {
			info.Email = m.User.Email
			info.FullName = m.User.FullName
		}
		out = append(out, info)
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code": 0,
		"data": out,
	})
}

// RemoveMember 移除成员
// @Summary 팀 멤버 제외
// @Tags Team
// @Produce json
// @Security BearerAuth
// @Param team_id path int true "팀 ID"
// @Param user_id path int true "사용자 ID"
// @Success 200 {object} map[string]interface{}
// @Router /teams/{team_id}/members/{user_id} [delete]
func (c *TeamController) RemoveMember(ctx *gin.Context) {
	targetID, err := strconv.ParseInt(ctx.Param("user_id"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "잘못된 사용자 ID입니다",
		})
		return
	}

	teamID := middleware.GetTeamID(ctx)
	userID := middleware.GetUserID(ctx)
	if err := c.teamService.RemoveMember(ctx.Request.Context(), teamID, userID, targetID); err != nil {
		respondTeamError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "멤버가 제외되었습니다",
	})
}

// ChangeRole 变更角色
// @Summary 멤버 역할 변경 (master 전용)
// @Tags Team
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param team_id path int true "팀 ID"
// @Param user_id path int true "사용자 ID"
// @Param request body dto.ChangeRoleRequest true "역할"
// @Success 200 {object} map[string]interface{}
// @Router /teams/{team_id}/members/{user_id}/role [put]
func (c *TeamController) ChangeRole(ctx *gin.Context) {
	targetID, err := strconv.ParseInt(ctx.Param("user_id"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "잘못된 사용자 ID입니다",
		})
		return
	}

	var req dto.ChangeRoleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "잘못된 요청입니다: " + err.Error(),
		})
		return
	}

	teamID := middleware.GetTeamID(ctx)
	userID := middleware.GetUserID(ctx)
	if err := c.teamService.ChangeRole(ctx.Request.Context(), teamID, userID, targetID, req.Role); err != nil {
		respondTeamError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "역할이 변경되었습니다",
	})
}

// LeaveTeam 退出团队
// @Summary 팀 나가기
// @Tags Team
// @Produce json
// @Security BearerAuth
// @Param team_id path int true "팀 ID"
// @Success 200 {object} map[string]interface{}
// @Router /teams/{team_id}/leave [post]
func (c *TeamController) LeaveTeam(ctx *gin.Context) {
	teamID := middleware.GetTeamID(ctx)
	userID := middleware.GetUserID(ctx)
	if err := c.teamService.LeaveTeam(ctx.Request.Context(), teamID, userID); err != nil {
		respondTeamError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "팀에서 나갔습니다",
	})
}

// ==================== 邀请接口 ====================

// InviteMember 发出邀请
// @Summary 멤버 초대
// @Tags Team
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param team_id path int true "팀 ID"
// @Param request body dto.InviteRequest true "초대 정보"
// @Success 200 {object} dto.InvitationInfo
// @Router /teams/{team_id}/invitations [post]
func (c *TeamController) InviteMember(ctx *gin.Context) {
	var req dto.InviteRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "잘못된 요청입니다: " + err.Error(),
		})
		return
	}

	teamID := middleware.GetTeamID(ctx)
	userID := middleware.GetUserID(ctx)
	inv, err := c.teamService.InviteMember(ctx.Request.Context(), teamID, userID, req.Email, req.Role)
	if err != nil {
		respondTeamError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "초대가 발송되었습니다",
		"data":    toInvitationInfo(inv, true),
	})
}

// ListInvitations 邀请列表
// @Summary 팀 초대 목록
// @Tags Team
// @Produce json
// @Security BearerAuth
// @Param team_id path int true "팀 ID"
// @Success 200 {array} dto.InvitationInfo
// @Router /teams/{team_id}/invitations [get]
func (c *TeamController) ListInvitations(ctx *gin.Context) {
	teamID := middleware.GetTeamID(ctx)
	invs, err := c.teamService.ListInvitations(ctx.Request.Context(), teamID)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": err.Error(),
		})
		return
	}

	out := make([]dto.InvitationInfo, 0, len(invs))
	for i := range invs {
		out = append(out, *toInvitationInfo(&invs[i], false))
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code": 0,
		"data": out,
	})
}

// CancelInvitation 取消邀请
// @Summary 초대 취소
// @Tags Team
// @Produce json
// @Security BearerAuth
// @Param team_id path int true "팀 ID"
// @Param invitation_id path int true "초대 ID"
// @Success 200 {object} map[string]interface{}
// @Router /teams/{team_id}/invitations/{invitation_id} [delete]
func (c *TeamController) CancelInvitation(ctx *gin.Context) {
	invID, err := strconv.ParseInt(ctx.Param("invitation_id"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "잘못된 초대 ID입니다",
		})
		return
	}

	teamID := middleware.GetTeamID(ctx)
	userID := middleware.GetUserID(ctx)
	if err := c.teamService.CancelInvitation(ctx.Request.Context(), teamID, userID, invID); err != nil {
		respondTeamError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "초대가 취소되었습니다",
	})
}

// AcceptInvitation 接受邀请（登录用户，不在团队路由组下）
// @Summary 초대 수락
// @Tags Team
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.AcceptInviteRequest true "초대 토큰"
// @Success 200 {object} map[string]interface{}
// @Router /invitations/accept [post]
func (c *TeamController) AcceptInvitation(ctx *gin.Context) {
	var req dto.AcceptInviteRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "잘못된 요청입니다: " + err.Error(),
		})
		return
	}

	userID := middleware.GetUserID(ctx)
	member, err := c.teamService.AcceptInvitation(ctx.Request.Context(), req.Token, userID)
	if err != nil {
		respondTeamError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "팀에 합류했습니다",
		"data": gin.H{
			"team_id": member.TeamID,
			"role":    member.Role,
		},
	})
}

// ==================== 内部方法 ====================

// toInvitationInfo withToken 仅在创建时返回 token，列表里不回显
func toInvitationInfo(inv *model.TeamInvitation, withToken bool) *dto.InvitationInfo {
	info := &dto.InvitationInfo{
		ID:        inv.ID,
		Email:     inv.Email,
		Role:      inv.Role,
		Status:    inv.Status,
		ExpiresAt: inv.ExpiresAt,
		CreatedAt: inv.CreatedAt,
	}
	if withToken {
		info.Token = inv.Token
	}
	return info
}

// respondTeamError 团队业务错误 -> HTTP 状态码
func respondTeamError(ctx *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrNoPermission), errors.Is(err, service.ErrMasterImmutable):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrTeamNotFound), errors.Is(err, service.ErrMemberNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrInvalidRole), errors.Is(err, service.ErrInviteExpired),
		errors.Is(err, service.ErrInviteInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrMemberLimit), errors.Is(err, service.ErrAlreadyMember),
		errors.Is(err, service.ErrInvitePending):
		status = http.StatusConflict
	}
	ctx.JSON(status, gin.H{
		"code":    status,
		"message": err.Error(),
	})
}
