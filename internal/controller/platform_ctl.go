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

// ==================== PlatformController 平台连接控制器 ====================

// PlatformController 平台连接控制器
type PlatformController struct {
	oauthService *service.OAuthService
}

// NewPlatformController 创建平台连接控制器
func NewPlatformController(oauthService *service.OAuthService) *PlatformController {
	return &PlatformController{oauthService: oauthService}
}

// ==================== 连接接口 ====================

// Connect 生成 OAuth 授权链接
// @Summary 플랫폼 연결 (OAuth)
// @Tags Platform
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param team_id path int true "팀 ID"
// @Param request body dto.ConnectRequest true "연결 정보"
// @Success 200 {object} dto.ConnectResponse
// @Router /teams/{team_id}/platforms/connect [post]
func (c *PlatformController) Connect(ctx *gin.Context) {
	var req dto.ConnectRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "잘못된 요청입니다: " + err.Error(),
		})
		return
	}

	if !model.IsValidPlatform(req.Platform) {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "지원하지 않는 플랫폼입니다",
		})
		return
	}

	teamID := middleware.GetTeamID(ctx)
	userID := middleware.GetUserID(ctx)
	authURL, err := c.oauthService.GenerateAuthURL(ctx.Request.Context(), teamID, userID, req.Platform, req.AccountID)
	if err != nil {
		respondPlatformError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code": 0,
		"data": dto.ConnectResponse{AuthURL: authURL},
	})
}

// ConnectKeys 密钥录入连接 (naver / coupang)
// @Summary 플랫폼 연결 (API 키 등록)
// @Tags Platform
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param team_id path int true "팀 ID"
// @Param request body dto.ConnectKeysRequest true "API 키 정보"
// @Success 200 {object} dto.CredentialInfo
// @Router /teams/{team_id}/platforms/connect-keys [post]
func (c *PlatformController) ConnectKeys(ctx *gin.Context) {
	var req dto.ConnectKeysRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "잘못된 요청입니다: " + err.Error(),
		})
		return
	}

	teamID := middleware.GetTeamID(ctx)
	userID := middleware.GetUserID(ctx)
	cred, err := c.oauthService.ConnectWithKeys(ctx.Request.Context(), teamID, userID, req.Platform, req.AccountID, req.APIKey, req.Extra)
	if err != nil {
		respondPlatformError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "플랫폼이 연결되었습니다",
		"data":    toCredentialInfo(cred),
	})
}

// Callback OAuth 回调
// 平台重定向到这里，无登录态，靠 state 定位团队
// @Summary OAuth 콜백
// @Tags Platform
// @Produce json
// @Param code query string true "인증 코드"
// @Param state query string true "state"
// @Success 200 {object} dto.CredentialInfo
// @Router /oauth/callback [get]
func (c *PlatformController) Callback(ctx *gin.Context) {
	code := ctx.Query("code")
	state := ctx.Query("state")
	if code == "" || state == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "code와 state가 필요합니다",
		})
		return
	}

	cred, err := c.oauthService.HandleCallback(ctx.Request.Context(), code, state)
	if err != nil {
		respondPlatformError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "플랫폼이 연결되었습니다",
		"data":    toCredentialInfo(cred),
	})
}

// ==================== 查询 / 断开 ====================

// ListCredentials 已连接平台列表
// @Summary 연결된 플랫폼 목록
// @Tags Platform
// @Produce json
// @Security BearerAuth
// @Param team_id path int true "팀 ID"
// @Success 200 {array} dto.CredentialInfo
// @Router /teams/{team_id}/platforms [get]
func (c *PlatformController) ListCredentials(ctx *gin.Context) {
	teamID := middleware.GetTeamID(ctx)
	creds, err := c.oauthService.ListCredentials(ctx.Request.Context(), teamID)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": err.Error(),
		})
		return
	}

	out := make([]dto.CredentialInfo, 0, len(creds))
	for i := range creds {
		out = append(out, *toCredentialInfo(&creds[i]))
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code": 0,
		"data": out,
	})
}

// Disconnect 断开平台
// @Summary 플랫폼 연결 해제
// @Tags Platform
// @Produce json
// @Security BearerAuth
// @Param team_id path int true "팀 ID"
// @Param credential_id path int true "연결 ID"
// @Success 200 {object} map[string]interface{}
// @Router /teams/{team_id}/platforms/{credential_id} [delete]
func (c *PlatformController) Disconnect(ctx *gin.Context) {
	credID, err := strconv.ParseInt(ctx.Param("credential_id"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "잘못된 연결 ID입니다",
		})
		return
	}

	teamID := middleware.GetTeamID(ctx)
	userID := middleware.GetUserID(ctx)
	if err := c.oauthService.Disconnect(ctx.Request.Context(), teamID, userID, credID); err != nil {
		respondPlatformError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "플랫폼 연결이 해제되었습니다",
	})
}

// ==================== 内部方法 ====================

func toCredentialInfo(cred *model.PlatformCredential) *dto.CredentialInfo {
	return &dto.CredentialInfo{
		ID:          cred.ID,
		Platform:    cred.Platform,
		AccountID:   cred.AccountID,
		AccountName: cred.AccountName,
		IsActive:    cred.IsActive,
		TokenStatus: cred.TokenStatus,
		SyncedAt:    cred.SyncedAt,
		CreatedAt:   cred.CreatedAt,
	}
}

// respondPlatformError 平台业务错误 -> HTTP 状态码
func respondPlatformError(ctx *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrNoPermission):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrCredentialNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrUnknownPlatform), errors.Is(err, service.ErrKeyEntryPlatform),
		errors.Is(err, service.ErrNotKeyEntry), errors.Is(err, service.ErrMissingKeys),
		errors.Is(err, service.ErrStateInvalid):
		status = http.StatusBadRequest
	}
	ctx.JSON(status, gin.H{
		"code":    status,
		"message": err.Error(),
	})
}
