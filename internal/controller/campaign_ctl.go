package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"allad_backend_v1/internal/api/dto"
	"allad_backend_v1/internal/middleware"
	"allad_backend_v1/internal/model"
	"allad_backend_v1/internal/platform"
	"allad_backend_v1/internal/repository"
	"allad_backend_v1/internal/service"
)

// ==================== CampaignController 广告系列控制器 ====================

// CampaignController 广告系列控制器
type CampaignController struct {
	campaignService *service.CampaignService
}

// NewCampaignController 创建广告系列控制器
func NewCampaignController(campaignService *service.CampaignService) *CampaignController {
	return &CampaignController{campaignService: campaignService}
}

// ==================== 查询 ====================

// ListCampaigns 广告系列列表
// @Summary 캠페인 목록
// @Tags Campaign
// @Produce json
// @Security BearerAuth
// @Param team_id path int true "팀 ID"
// @Param platform query string false "플랫폼"
// @Param status query string false "상태"
// @Success 200 {array} dto.CampaignInfo
// @Router /teams/{team_id}/campaigns [get]
func (c *CampaignController) ListCampaigns(ctx *gin.Context) {
	var req dto.CampaignListRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "잘못된 요청입니다: " + err.Error(),
		})
		return
	}

	teamID := middleware.GetTeamID(ctx)
	campaigns, err := c.campaignService.ListCampaigns(ctx.Request.Context(), teamID, repository.CampaignFilter{
		Platform: req.Platform,
		Status:   req.Status,
	})
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": err.Error(),
		})
		return
	}

	out := make([]dto.CampaignInfo, 0, len(campaigns))
	for i := range campaigns {
		out = append(out, *toCampaignInfo(&campaigns[i]))
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code": 0,
		"data": out,
	})
}

// ==================== 同步 ====================

// SyncCampaigns 手动触发同步
// @Summary 캠페인 수동 동기화
// @Tags Campaign
// @Produce json
// @Security BearerAuth
// @Param team_id path int true "팀 ID"
// @Success 200 {object} service.SyncResult
// @Router /teams/{team_id}/campaigns/sync [post]
func (c *CampaignController) SyncCampaigns(ctx *gin.Context) {
	teamID := middleware.GetTeamID(ctx)
	result, err := c.campaignService.SyncTeam(ctx.Request.Context(), teamID)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": err.Error(),
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "동기화가 완료되었습니다",
		"data":    result,
	})
}

// ==================== 操作 ====================

// SetStatus 启停广告系列
// @Summary 캠페인 상태 변경
// @Tags Campaign
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param team_id path int true "팀 ID"
// @Param campaign_id path int true "캠페인 ID"
// @Param request body dto.SetStatusRequest true "상태"
// @Success 200 {object} map[string]interface{}
// @Router /teams/{team_id}/campaigns/{campaign_id}/status [put]
func (c *CampaignController) SetStatus(ctx *gin.Context) {
	campaignID, err := strconv.ParseInt(ctx.Param("campaign_id"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "잘못된 캠페인 ID입니다",
		})
		return
	}

	var req dto.SetStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil || req.Active == nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "잘못된 요청입니다",
		})
		return
	}

	teamID := middleware.GetTeamID(ctx)
	userID := middleware.GetUserID(ctx)
	if err := c.campaignService.SetStatus(ctx.Request.Context(), teamID, userID, campaignID, *req.Active); err != nil {
		respondCampaignError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "캠페인 상태가 변경되었습니다",
	})
}

// SetBudget 设置预算
// @Summary 캠페인 예산 변경
// @Tags Campaign
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param team_id path int true "팀 ID"
// @Param campaign_id path int true "캠페인 ID"
// @Param request body dto.SetBudgetRequest true "예산"
// @Success 200 {object} map[string]interface{}
// @Router /teams/{team_id}/campaigns/{campaign_id}/budget [put]
func (c *CampaignController) SetBudget(ctx *gin.Context) {
	campaignID, err := strconv.ParseInt(ctx.Param("campaign_id"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "잘못된 캠페인 ID입니다",
		})
		return
	}

	var req dto.SetBudgetRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "예산은 0보다 커야 합니다",
		})
		return
	}

	teamID := middleware.GetTeamID(ctx)
	userID := middleware.GetUserID(ctx)
	if err := c.campaignService.SetBudget(ctx.Request.Context(), teamID, userID, campaignID, req.Budget); err != nil {
		respondCampaignError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "캠페인 예산이 변경되었습니다",
	})
}

// ==================== 内部方法 ====================

func toCampaignInfo(c *model.Campaign) *dto.CampaignInfo {
	return &dto.CampaignInfo{
		ID:                 c.ID,
		Platform:           c.Platform,
		PlatformCampaignID: c.PlatformCampaignID,
		Name:               c.Name,
		Status:             c.Status,
		Budget:             c.Budget,
		IsActive:           c.IsActive,
		SyncedAt:           c.SyncedAt,
	}
}

// respondCampaignError 系列业务/平台错误 -> HTTP 状态码
func respondCampaignError(ctx *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := err.Error()
	switch {
	case errors.Is(err, service.ErrNoPermission), errors.Is(err, platform.ErrPermission):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrCampaignNotFound), errors.Is(err, platform.ErrCampaignAbsent):
		status = http.StatusNotFound
	case errors.Is(err, platform.ErrConflict):
		status = http.StatusConflict
		message = "캠페인이 이미 요청한 상태입니다"
	case errors.Is(err, platform.ErrInvalidBudget):
		status = http.StatusBadRequest
		message = "예산은 0보다 커야 합니다"
	case errors.Is(err, service.ErrCredentialInactive):
		status = http.StatusBadRequest
	case errors.Is(err, platform.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, platform.ErrTokenExpired), errors.Is(err, platform.ErrAuthRevoked):
		status = http.StatusBadGateway
		message = "플랫폼 인증이 만료되었습니다. 다시 연결해 주세요"
	}
	ctx.JSON(status, gin.H{
		"code":    status,
		"message": message,
	})
}
