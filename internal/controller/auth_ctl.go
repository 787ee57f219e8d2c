package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"allad_backend_v1/internal/api/dto"
	"allad_backend_v1/internal/middleware"
	"allad_backend_v1/internal/model"
	"allad_backend_v1/internal/service"
)

// ==================== AuthController 认证控制器 ====================

// AuthController 认证控制器
type AuthController struct {
	authService *service.AuthService
}

// NewAuthController 创建认证控制器
func NewAuthController(authService *service.AuthService) *AuthController {
	return &AuthController{authService: authService}
}

// ==================== 认证接口 ====================

// Signup 注册
// @Summary 注册新用户，自动创建默认团队
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body dto.SignupRequest true "注册信息"
// @Success 200 {object} dto.SignupResponse
// @Router /auth/signup [post]
func (c *AuthController) Signup(ctx *gin.Context) {
	var req dto.SignupRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "잘못된 요청입니다: " + err.Error(),
		})
		return
	}

	profile, team, err := c.authService.Signup(ctx.Request.Context(), req.Email, req.Password, req.FullName, req.TeamName)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrEmailTaken) {
			status = http.StatusConflict
		}
		ctx.JSON(status, gin.H{
			"code":    status,
			"message": err.Error(),
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "회원가입이 완료되었습니다",
		"data": dto.SignupResponse{
			User: toUserInfo(profile),
			Team: &dto.TeamInfo{
				ID:           team.ID,
				Name:         team.Name,
				MasterUserID: team.MasterUserID,
				MyRole:       model.RoleMaster,
				CreatedAt:    team.CreatedAt,
			},
		},
	})
}

// Login 登录
// @Summary 이메일/비밀번호 로그인
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body dto.LoginRequest true "로그인 정보"
// @Success 200 {object} dto.LoginResponse
// @Router /auth/login [post]
func (c *AuthController) Login(ctx *gin.Context) {
	var req dto.LoginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "잘못된 요청입니다: " + err.Error(),
		})
		return
	}

	profile, pair, err := c.authService.Login(ctx.Request.Context(), req.Email, req.Password)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{
			"code":    401,
			"message": err.Error(),
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "로그인 성공",
		"data": dto.LoginResponse{
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
			User:         toUserInfo(profile),
		},
	})
}

// RefreshToken 刷新 Token
// @Summary Token 갱신
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body dto.RefreshTokenRequest true "Refresh Token"
// @Success 200 {object} dto.RefreshTokenResponse
// @Router /auth/refresh [post]
func (c *AuthController) RefreshToken(ctx *gin.Context) {
	var req dto.RefreshTokenRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "잘못된 요청입니다: " + err.Error(),
		})
		return
	}

	pair, err := c.authService.Refresh(ctx.Request.Context(), req.RefreshToken)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{
			"code":    401,
			"message": err.Error(),
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "갱신되었습니다",
		"data": dto.RefreshTokenResponse{
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
		},
	})
}

// Me 当前用户信息
// @Summary 내 정보 조회
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.UserInfo
// @Router /auth/me [get]
func (c *AuthController) Me(ctx *gin.Context) {
	userID := middleware.GetUserID(ctx)
	profile, err := c.authService.ProfileRepo.GetByID(ctx.Request.Context(), userID)
	if err != nil || profile == nil {
		ctx.JSON(http.StatusNotFound, gin.H{
			"code":    404,
			"message": "사용자를 찾을 수 없습니다",
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code": 0,
		"data": toUserInfo(profile),
	})
}

// ChangePassword 修改密码
// @Summary 비밀번호 변경
// @Tags Auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.ChangePasswordRequest true "비밀번호"
// @Success 200 {object} map[string]interface{}
// @Router /auth/password [put]
func (c *AuthController) ChangePassword(ctx *gin.Context) {
	var req dto.ChangePasswordRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "잘못된 요청입니다: " + err.Error(),
		})
		return
	}

	userID := middleware.GetUserID(ctx)
	if err := c.authService.ChangePassword(ctx.Request.Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrInvalidCredentials) {
			status = http.StatusUnauthorized
		}
		ctx.JSON(status, gin.H{
			"code":    status,
			"message": err.Error(),
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "비밀번호가 변경되었습니다",
	})
}

// ==================== 内部方法 ====================

func toUserInfo(p *model.Profile) *dto.UserInfo {
	return &dto.UserInfo{
		ID:          p.ID,
		Email:       p.Email,
		FullName:    p.FullName,
		AvatarURL:   p.AvatarURL,
		Status:      p.Status,
		LastLoginAt: p.LastLoginAt,
		CreatedAt:   p.CreatedAt,
	}
}
