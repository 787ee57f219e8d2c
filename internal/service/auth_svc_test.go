package service

import (
	"context"
	"errors"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"allad_backend_v1/internal/model"
	"allad_backend_v1/internal/repository"
)

func setupAuthTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	if err := db.AutoMigrate(&model.Profile{}, &model.Team{}, &model.TeamMember{}); err != nil {
		t.Fatalf("迁移失败: %v", err)
	}
	return db
}

func newAuthTestService(db *gorm.DB) *AuthService {
	return NewAuthService(
		repository.NewProfileRepository(db),
		repository.NewTeamRepository(db),
		db,
	)
}

func TestAuthService_Signup(t *testing.T) {
	db := setupAuthTestDB(t)
	svc := newAuthTestService(db)
	ctx := context.Background()

	profile, team, err := svc.Signup(ctx, "kim@example.com", "secret123", "김철수", "")
	if err != nil {
		t.Fatalf("Signup 失败: %v", err)
	}

	if profile.Email != "kim@example.com" {
		t.Errorf("Email = %s", profile.Email)
	}
	if profile.Password == "secret123" {
		t.Errorf("密码必须存哈希，不能是明文")
	}

	// 未指定团队名时使用默认命名
	if team.Name != "김철수의 팀" {
		t.Errorf("默认团队名 = %s", team.Name)
	}
	if team.MasterUserID != profile.ID {
		t.Errorf("MasterUserID = %d, want %d", team.MasterUserID, profile.ID)
	}

	// 注册人即 master 成员
	var member model.TeamMember
	if err := db.Where("team_id = ? AND user_id = ?", team.ID, profile.ID).First(&member).Error; err != nil {
		t.Fatalf("master 成员行缺失: %v", err)
	}
	if member.Role != model.RoleMaster {
		t.Errorf("Role = %s, want master", member.Role)
	}
}

func TestAuthService_Signup_DuplicateEmail(t *testing.T) {
	db := setupAuthTestDB(t)
	svc := newAuthTestService(db)
	ctx := context.Background()

	if _, _, err := svc.Signup(ctx, "dup@example.com", "pw1", "사용자", ""); err != nil {
		t.Fatalf("首次注册失败: %v", err)
	}

	_, _, err := svc.Signup(ctx, "dup@example.com", "pw2", "사용자2", "")
	if !errors.Is(err, ErrEmailTaken) {
		t.Errorf("重复邮箱应返回 ErrEmailTaken, got %v", err)
	}
}

func TestAuthService_Login(t *testing.T) {
	db := setupAuthTestDB(t)
	svc := newAuthTestService(db)
	ctx := context.Background()

	if _, _, err := svc.Signup(ctx, "login@example.com", "correct-pw", "사용자", ""); err != nil {
		t.Fatalf("注册失败: %v", err)
	}

	profile, pair, err := svc.Login(ctx, "login@example.com", "correct-pw")
	if err != nil {
		t.Fatalf("登录失败: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Errorf("Token 对不应为空")
	}
	if profile.Email != "login@example.com" {
		t.Errorf("Email = %s", profile.Email)
	}
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	db := setupAuthTestDB(t)
	svc := newAuthTestService(db)
	ctx := context.Background()

	svc.Signup(ctx, "user@example.com", "correct-pw", "사용자", "")

	// 密码错误和账号不存在必须返回同一错误，不给攻击者区分信息
	_, _, err := svc.Login(ctx, "user@example.com", "wrong-pw")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("密码错误应返回 ErrInvalidCredentials, got %v", err)
	}

	_, _, err = svc.Login(ctx, "ghost@example.com", "any")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("账号不存在应返回 ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthService_Refresh(t *testing.T) {
	db := setupAuthTestDB(t)
	svc := newAuthTestService(db)
	ctx := context.Background()

	svc.Signup(ctx, "r@example.com", "pw", "사용자", "")
	_, pair, err := svc.Login(ctx, "r@example.com", "pw")
	if err != nil {
		t.Fatalf("登录失败: %v", err)
	}

	newPair, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh 失败: %v", err)
	}
	if newPair.AccessToken == "" {
		t.Errorf("新 AccessToken 为空")
	}

	// Access Token 不能当 Refresh Token 用
	if _, err := svc.Refresh(ctx, pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("access token 应被拒绝, got %v", err)
	}
}

func TestAuthService_ChangePassword(t *testing.T) {
	db := setupAuthTestDB(t)
	svc := newAuthTestService(db)
	ctx := context.Background()

	profile, _, _ := svc.Signup(ctx, "cp@example.com", "old-pw", "사용자", "")

	if err := svc.ChangePassword(ctx, profile.ID, "bad-old", "new-pw"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("旧密码错误应被拒绝, got %v", err)
	}

	if err := svc.ChangePassword(ctx, profile.ID, "old-pw", "new-pw"); err != nil {
		t.Fatalf("ChangePassword 失败: %v", err)
	}

	if _, _, err := svc.Login(ctx, "cp@example.com", "new-pw"); err != nil {
		t.Errorf("新密码应可登录: %v", err)
	}
	if _, _, err := svc.Login(ctx, "cp@example.com", "old-pw"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("旧密码应失效")
	}
}
