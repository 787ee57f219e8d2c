package service

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"allad_backend_v1/internal/model"
	"allad_backend_v1/internal/platform"
	"allad_backend_v1/internal/repository"
	"allad_backend_v1/pkg/utils"
)

func setupOAuthTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	if err := db.AutoMigrate(&model.Team{}, &model.TeamMember{}, &model.PlatformCredential{}); err != nil {
		t.Fatalf("迁移失败: %v", err)
	}
	return db
}

func newOAuthTestService(db *gorm.DB, clients ...platform.Client) *OAuthService {
	return NewOAuthService(
		repository.NewCredentialRepository(db),
		repository.NewTeamMemberRepository(db),
		platform.NewRegistry(clients...),
		utils.NewStateCache(time.Minute),
	)
}

func seedOAuthFixture(t *testing.T, db *gorm.DB) {
	t.Helper()
	db.Create(&model.Team{Name: "팀", MasterUserID: 1})
	db.Create(&model.TeamMember{TeamID: 1, UserID: 1, Role: model.RoleMaster, JoinedAt: time.Now()})
	db.Create(&model.TeamMember{TeamID: 1, UserID: 2, Role: model.RoleViewer, JoinedAt: time.Now()})
}

// ==================== 授权 / 回调 ====================

func TestOAuthService_AuthFlow(t *testing.T) {
	db := setupOAuthTestDB(t)
	seedOAuthFixture(t, db)

	fake := &fakeClient{
		name: "google",
		tokens: &platform.TokenSet{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			ExpiresIn:    3600,
			Scope:        "adwords",
		},
	}
	svc := newOAuthTestService(db, fake)
	ctx := context.Background()

	authURL, err := svc.GenerateAuthURL(ctx, 1, 1, "google", "acc-1")
	if err != nil {
		t.Fatalf("GenerateAuthURL 失败: %v", err)
	}

	parsed, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("授权链接非法: %v", err)
	}
	state := parsed.Query().Get("state")
	if state == "" {
		t.Fatalf("授权链接缺少 state")
	}

	cred, err := svc.HandleCallback(ctx, "auth-code", state)
	if err != nil {
		t.Fatalf("HandleCallback 失败: %v", err)
	}
	if cred.TeamID != 1 || cred.Platform != "google" || cred.AccountID != "acc-1" {
		t.Errorf("凭证归属错误: %+v", cred)
	}
	if cred.AccessToken != "access-1" || cred.RefreshToken != "refresh-1" {
		t.Errorf("token 落库错误")
	}
	if cred.CreatedBy != 1 {
		t.Errorf("CreatedBy = %d, want 1", cred.CreatedBy)
	}
	if len(cred.Scopes) != 1 || cred.Scopes[0] != "adwords" {
		t.Errorf("Scopes = %v, want [adwords]", cred.Scopes)
	}
	if !cred.TokenExpiresAt.After(time.Now()) {
		t.Errorf("过期时间应在未来")
	}

	// state 用完即焚：同一 state 不能二次使用
	if _, err := svc.HandleCallback(ctx, "auth-code", state); !errors.Is(err, ErrStateInvalid) {
		t.Errorf("state 复用应返回 ErrStateInvalid, got %v", err)
	}
}

func TestOAuthService_GenerateAuthURL_Permission(t *testing.T) {
	db := setupOAuthTestDB(t)
	seedOAuthFixture(t, db)
	svc := newOAuthTestService(db, &fakeClient{name: "google"})

	// viewer 无 CanManagePlatforms
	if _, err := svc.GenerateAuthURL(context.Background(), 1, 2, "google", "acc"); !errors.Is(err, ErrNoPermission) {
		t.Errorf("viewer 应被拒绝, got %v", err)
	}
}

func TestOAuthService_GenerateAuthURL_KeyEntry(t *testing.T) {
	db := setupOAuthTestDB(t)
	seedOAuthFixture(t, db)
	svc := newOAuthTestService(db, platform.NewNaverClient())

	// naver 不走授权码流程
	if _, err := svc.GenerateAuthURL(context.Background(), 1, 1, "naver", "cust-1"); !errors.Is(err, ErrKeyEntryPlatform) {
		t.Errorf("naver 应返回 ErrKeyEntryPlatform, got %v", err)
	}
}

func TestOAuthService_HandleCallback_BadState(t *testing.T) {
	db := setupOAuthTestDB(t)
	svc := newOAuthTestService(db, &fakeClient{name: "google"})

	if _, err := svc.HandleCallback(context.Background(), "code", "never-issued"); !errors.Is(err, ErrStateInvalid) {
		t.Errorf("未发放的 state 应返回 ErrStateInvalid, got %v", err)
	}
}

// ==================== 密钥录入 ====================

func TestOAuthService_ConnectWithKeys(t *testing.T) {
	db := setupOAuthTestDB(t)
	seedOAuthFixture(t, db)
	svc := newOAuthTestService(db, platform.NewNaverClient())
	ctx := context.Background()

	cred, err := svc.ConnectWithKeys(ctx, 1, 1, "naver", "cust-1", "api-key", map[string]string{
		"secret_key": "secret-1",
	})
	if err != nil {
		t.Fatalf("ConnectWithKeys 失败: %v", err)
	}
	if cred.AccessToken != "api-key" {
		t.Errorf("AccessToken = %s", cred.AccessToken)
	}

	// Extra 随运行时凭证透出，connector 签名要用
	rc := RuntimeCredential(cred)
	if rc.Extra["secret_key"] != "secret-1" {
		t.Errorf("Extra 丢失: %+v", rc.Extra)
	}

	// OAuth 平台不允许密钥录入
	if _, err := svc.ConnectWithKeys(ctx, 1, 1, "google", "acc", "key", nil); !errors.Is(err, ErrNotKeyEntry) {
		t.Errorf("google 密钥录入应返回 ErrNotKeyEntry, got %v", err)
	}

	// 必填校验
	if _, err := svc.ConnectWithKeys(ctx, 1, 1, "naver", "cust-1", "", nil); !errors.Is(err, ErrMissingKeys) {
		t.Errorf("空 key 应返回 ErrMissingKeys, got %v", err)
	}
}

// ==================== 断开 / 刷新 ====================

func TestOAuthService_Disconnect(t *testing.T) {
	db := setupOAuthTestDB(t)
	seedOAuthFixture(t, db)
	svc := newOAuthTestService(db, platform.NewNaverClient())
	ctx := context.Background()

	cred, err := svc.ConnectWithKeys(ctx, 1, 1, "naver", "cust-1", "api-key", nil)
	if err != nil {
		t.Fatalf("连接失败: %v", err)
	}

	// 其他团队的凭证不可断开
	if err := svc.Disconnect(ctx, 999, 1, cred.ID); !errors.Is(err, ErrCredentialNotFound) {
		t.Errorf("跨团队断开应返回 ErrCredentialNotFound, got %v", err)
	}

	if err := svc.Disconnect(ctx, 1, 1, cred.ID); err != nil {
		t.Fatalf("Disconnect 失败: %v", err)
	}

	got, _ := svc.CredentialRepo.GetByID(ctx, cred.ID)
	if got.IsActive {
		t.Errorf("断开后凭证应不活跃")
	}
}

func TestOAuthService_RefreshCredential(t *testing.T) {
	db := setupOAuthTestDB(t)
	seedOAuthFixture(t, db)

	fake := &fakeClient{
		name:   "google",
		tokens: &platform.TokenSet{AccessToken: "new-access", RefreshToken: "new-refresh", ExpiresIn: 3600},
	}
	svc := newOAuthTestService(db, fake)
	ctx := context.Background()

	cred := &model.PlatformCredential{
		TeamID: 1, Platform: "google", AccountID: "acc-1",
		IsActive: true, TokenStatus: model.TokenStatusExpired,
		AccessToken: "old-access", RefreshToken: "old-refresh",
	}
	db.Create(cred)

	if err := svc.RefreshCredential(ctx, cred); err != nil {
		t.Fatalf("RefreshCredential 失败: %v", err)
	}

	got, _ := svc.CredentialRepo.GetByID(ctx, cred.ID)
	if got.AccessToken != "new-access" {
		t.Errorf("AccessToken 未更新: %s", got.AccessToken)
	}
	if got.TokenStatus != model.TokenStatusValid {
		t.Errorf("TokenStatus = %s, want valid", got.TokenStatus)
	}
}

func TestOAuthService_RefreshCredential_Revoked(t *testing.T) {
	db := setupOAuthTestDB(t)
	seedOAuthFixture(t, db)

	// 平台明确拒绝刷新：停用凭证并标记 auth_invalid
	fake := &fakeClient{name: "google", refreshErr: platform.ErrAuthRevoked}
	svc := newOAuthTestService(db, fake)
	ctx := context.Background()

	cred := &model.PlatformCredential{
		TeamID: 1, Platform: "google", AccountID: "acc-1",
		IsActive: true, TokenStatus: model.TokenStatusValid, RefreshToken: "dead",
	}
	db.Create(cred)

	err := svc.RefreshCredential(ctx, cred)
	if !errors.Is(err, platform.ErrAuthRevoked) {
		t.Errorf("应透传 ErrAuthRevoked, got %v", err)
	}

	got, _ := svc.CredentialRepo.GetByID(ctx, cred.ID)
	if got.IsActive {
		t.Errorf("被拒的凭证应停用")
	}
	if got.TokenStatus != model.TokenStatusInvalid {
		t.Errorf("TokenStatus = %s, want auth_invalid", got.TokenStatus)
	}
}
