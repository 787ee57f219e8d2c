package service

import (
	"context"
	"errors"
	"log"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"allad_backend_v1/internal/middleware"
	"allad_backend_v1/internal/model"
	"allad_backend_v1/internal/repository"
)

// ==================== AuthService ====================

// AuthService 注册 / 登录 / Token 刷新
type AuthService struct {
	ProfileRepo repository.ProfileRepository
	TeamRepo    repository.TeamRepository
	db          *gorm.DB
}

// NewAuthService 工厂方法
func NewAuthService(profileRepo repository.ProfileRepository, teamRepo repository.TeamRepository, db *gorm.DB) *AuthService {
	return &AuthService{
		ProfileRepo: profileRepo,
		TeamRepo:    teamRepo,
		db:          db,
	}
}

// TokenPair 登录 / 刷新返回的 Token 对
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// ==================== 注册 ====================

// Signup 注册新用户
// 同一事务内创建 Profile + 默认 Team + master 成员行，任一失败全部回滚
func (s *AuthService) Signup(ctx context.Context, email, password, fullName, teamName string) (*model.Profile, *model.Team, error) {
	exists, err := s.ProfileRepo.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, nil, err
	}
	if exists {
		return nil, nil, ErrEmailTaken
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, err
	}

	if teamName == "" {
		teamName = fullName + "의 팀"
	}

	var (
		profile *model.Profile
		team    *model.Team
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profile = &model.Profile{
			Email:    email,
			Password: string(hashed),
			FullName: fullName,
			Status:   model.UserStatusActive,
		}
		if err := tx.Create(profile).Error; err != nil {
			return err
		}

		team, err = s.TeamRepo.CreateForUser(ctx, tx, profile.ID, teamName)
		return err
	})
	if err != nil {
		log.Printf("[Auth] signup failed email=%s err=%v", email, err)
		return nil, nil, err
	}

	log.Printf("[Auth] signup ok user=%d team=%d", profile.ID, team.ID)
	return profile, team, nil
}

// ==================== 登录 ====================

// Login 邮箱密码登录，成功后返回 Token 对
// 登录失败统一返回同一错误文案，不区分"账号不存在"和"密码错误"
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.Profile, *TokenPair, error) {
	profile, err := s.ProfileRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, nil, err
	}
	if profile == nil {
		return nil, nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(profile.Password), []byte(password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	if profile.Status != model.UserStatusActive {
		return nil, nil, ErrUserDisabled
	}

	access, refresh, err := middleware.GenerateTokenPair(profile.ID, profile.Email)
	if err != nil {
		return nil, nil, err
	}

	if err := s.ProfileRepo.UpdateLastLogin(ctx, profile.ID); err != nil {
		// 登录时间更新失败不影响登录
		log.Printf("[Auth] update last login failed user=%d err=%v", profile.ID, err)
	}

	return profile, &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// ==================== Token 刷新 ====================

// Refresh 用 Refresh Token 换新 Token 对
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := middleware.ParseToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Subject != "refresh" {
		return nil, ErrInvalidToken
	}

	// 刷新前确认用户仍然有效
	profile, err := s.ProfileRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if profile == nil || profile.Status != model.UserStatusActive {
		return nil, ErrUserDisabled
	}

	access, refresh, err := middleware.GenerateTokenPair(profile.ID, profile.Email)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// ==================== 密码修改 ====================

// ChangePassword 修改密码，需验证旧密码
func (s *AuthService) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	profile, err := s.ProfileRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if profile == nil {
		return ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(profile.Password), []byte(oldPassword)); err != nil {
		return ErrInvalidCredentials
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.ProfileRepo.UpdatePassword(ctx, userID, string(hashed))
}

// ==================== 错误定义 ====================

var (
	ErrEmailTaken         = errors.New("이미 가입된 이메일입니다")
	ErrInvalidCredentials = errors.New("이메일 또는 비밀번호가 올바르지 않습니다")
	ErrUserDisabled       = errors.New("비활성화된 계정입니다")
	ErrInvalidToken       = errors.New("토큰이 유효하지 않습니다")
)
