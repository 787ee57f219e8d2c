package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"allad_backend_v1/internal/model"
	"allad_backend_v1/internal/platform"
	"allad_backend_v1/internal/repository"
)

// ==================== 测试用平台客户端 ====================

// fakeClient 可编程的平台客户端，记录调用并返回预设结果
type fakeClient struct {
	name string

	campaigns  []platform.CampaignData
	listErr    error
	statusErr  error
	budgetErr  error
	refreshErr error
	tokens     *platform.TokenSet

	statusCalls int
	budgetCalls int
}

func (f *fakeClient) Platform() string { return f.name }

func (f *fakeClient) AuthorizeURL(state, ch string) string {
	return "https://fake.example.com/authorize?state=" + state
}

func (f *fakeClient) ExchangeCode(_ context.Context, code, _ string) (*platform.TokenSet, error) {
	if code == "" {
		return nil, errors.New("empty code")
	}
	return f.tokens, nil
}

func (f *fakeClient) RefreshToken(_ context.Context, _ string) (*platform.TokenSet, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.tokens, nil
}

func (f *fakeClient) ListCampaigns(_ context.Context, _ *platform.Credential) ([]platform.CampaignData, error) {
	return f.campaigns, f.listErr
}

func (f *fakeClient) SetCampaignStatus(_ context.Context, _ *platform.Credential, _ string, _ bool) error {
	f.statusCalls++
	return f.statusErr
}

func (f *fakeClient) SetCampaignBudget(_ context.Context, _ *platform.Credential, _ string, _ float64) error {
	f.budgetCalls++
	return f.budgetErr
}

func (f *fakeClient) FetchDailyMetrics(_ context.Context, _ *platform.Credential, _ string, date time.Time) (*platform.DailyMetrics, error) {
	return &platform.DailyMetrics{Date: date, Impressions: 100, Clicks: 10, Cost: 500}, nil
}

var _ platform.Client = (*fakeClient)(nil)

// ==================== 测试环境 ====================

func setupCampaignTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	if err := db.AutoMigrate(&model.Team{}, &model.TeamMember{}, &model.PlatformCredential{}, &model.Campaign{}, &model.CampaignMetric{}); err != nil {
		t.Fatalf("迁移失败: %v", err)
	}
	return db
}

func newCampaignTestService(db *gorm.DB, clients ...platform.Client) *CampaignService {
	return NewCampaignService(
		repository.NewCampaignRepository(db),
		repository.NewCredentialRepository(db),
		repository.NewTeamMemberRepository(db),
		platform.NewRegistry(clients...),
	)
}

// seedCampaignFixture 一个团队 + master 成员 + google 凭证 + 一条系列
func seedCampaignFixture(t *testing.T, db *gorm.DB) (*model.PlatformCredential, *model.Campaign) {
	t.Helper()
	db.Create(&model.Team{Name: "팀", MasterUserID: 1})
	db.Create(&model.TeamMember{TeamID: 1, UserID: 1, Role: model.RoleMaster, JoinedAt: time.Now()})
	db.Create(&model.TeamMember{TeamID: 1, UserID: 2, Role: model.RoleViewer, JoinedAt: time.Now()})

	cred := &model.PlatformCredential{
		TeamID: 1, Platform: "google", AccountID: "acc-1",
		IsActive: true, TokenStatus: model.TokenStatusValid, AccessToken: "tok",
	}
	db.Create(cred)

	campaign := &model.Campaign{
		TeamID: 1, Platform: "google", PlatformCampaignID: "g-1",
		CredentialID: cred.ID, Name: "캠페인", Status: "enabled", Budget: 100, IsActive: true,
	}
	db.Create(campaign)
	return cred, campaign
}

// ==================== 同步 ====================

func TestCampaignService_SyncCredential(t *testing.T) {
	db := setupCampaignTestDB(t)
	cred, existing := seedCampaignFixture(t, db)

	fake := &fakeClient{
		name: "google",
		campaigns: []platform.CampaignData{
			{PlatformCampaignID: "g-1", Name: "갱신된 캠페인", Status: "paused", Budget: 300, Raw: []byte(`{"id":"g-1"}`)},
			{PlatformCampaignID: "g-2", Name: "새 캠페인", Status: "enabled", Budget: 500, Raw: []byte(`{"campaignId":"g-2"}`)},
		},
	}
	svc := newCampaignTestService(db, fake)

	result, err := svc.SyncCredential(context.Background(), cred)
	if err != nil {
		t.Fatalf("SyncCredential 失败: %v", err)
	}
	if result.Synced != 2 {
		t.Errorf("Synced = %d, want 2", result.Synced)
	}
	if result.Deactivated != 0 {
		t.Errorf("Deactivated = %d, want 0", result.Deactivated)
	}

	// 已有系列被覆盖
	got, _ := svc.CampaignRepo.GetByID(context.Background(), existing.ID)
	if got.Status != "paused" || got.Budget != 300 {
		t.Errorf("系列未更新: status=%s budget=%v", got.Status, got.Budget)
	}

	// 新系列入库，原始 payload key 统一为 snake_case
	added, _ := svc.CampaignRepo.GetByPlatformID(context.Background(), 1, "google", "g-2")
	if added == nil {
		t.Fatalf("新系列未入库")
	}
	if !strings.Contains(string(added.RawData), "campaign_id") {
		t.Errorf("RawData 应为 snake_case: %s", added.RawData)
	}

	// 凭证打同步时间戳
	updatedCred, _ := svc.CredentialRepo.GetByID(context.Background(), cred.ID)
	if updatedCred.SyncedAt == nil {
		t.Errorf("SyncedAt 应已更新")
	}
}

func TestCampaignService_SyncCredential_DeactivatesMissing(t *testing.T) {
	db := setupCampaignTestDB(t)
	cred, existing := seedCampaignFixture(t, db)

	// 平台返回空列表：本地系列全部置为不活跃
	fake := &fakeClient{name: "google"}
	svc := newCampaignTestService(db, fake)

	result, err := svc.SyncCredential(context.Background(), cred)
	if err != nil {
		t.Fatalf("SyncCredential 失败: %v", err)
	}
	if result.Deactivated != 1 {
		t.Errorf("Deactivated = %d, want 1", result.Deactivated)
	}

	got, _ := svc.CampaignRepo.GetByID(context.Background(), existing.ID)
	if got.IsActive {
		t.Errorf("平台侧消失的系列应置为不活跃")
	}
}

// ==================== 操作 ====================

func TestCampaignService_SetBudget_RejectsBeforePlatformCall(t *testing.T) {
	db := setupCampaignTestDB(t)
	_, campaign := seedCampaignFixture(t, db)

	fake := &fakeClient{name: "google"}
	svc := newCampaignTestService(db, fake)
	ctx := context.Background()

	// 非法预算在发平台请求前拒绝
	if err := svc.SetBudget(ctx, 1, 1, campaign.ID, 0); !errors.Is(err, platform.ErrInvalidBudget) {
		t.Errorf("budget=0 应返回 ErrInvalidBudget, got %v", err)
	}
	if err := svc.SetBudget(ctx, 1, 1, campaign.ID, -100); !errors.Is(err, platform.ErrInvalidBudget) {
		t.Errorf("负预算应返回 ErrInvalidBudget, got %v", err)
	}
	if fake.budgetCalls != 0 {
		t.Errorf("非法预算不应调用平台, calls=%d", fake.budgetCalls)
	}

	if err := svc.SetBudget(ctx, 1, 1, campaign.ID, 2500); err != nil {
		t.Fatalf("合法预算失败: %v", err)
	}
	if fake.budgetCalls != 1 {
		t.Errorf("平台应被调用一次, calls=%d", fake.budgetCalls)
	}
	got, _ := svc.CampaignRepo.GetByID(ctx, campaign.ID)
	if got.Budget != 2500 {
		t.Errorf("本地预算 = %v, want 2500", got.Budget)
	}
}

func TestCampaignService_SetStatus(t *testing.T) {
	db := setupCampaignTestDB(t)
	_, campaign := seedCampaignFixture(t, db)

	fake := &fakeClient{name: "google"}
	svc := newCampaignTestService(db, fake)
	ctx := context.Background()

	if err := svc.SetStatus(ctx, 1, 1, campaign.ID, false); err != nil {
		t.Fatalf("SetStatus 失败: %v", err)
	}
	got, _ := svc.CampaignRepo.GetByID(ctx, campaign.ID)
	if got.Status != model.CampaignStatusPaused {
		t.Errorf("Status = %s, want paused", got.Status)
	}
}

func TestCampaignService_SetStatus_ConflictKeepsLocal(t *testing.T) {
	db := setupCampaignTestDB(t)
	_, campaign := seedCampaignFixture(t, db)

	// 平台报告已处于目标状态：错误透传，本地状态不动
	fake := &fakeClient{name: "google", statusErr: platform.ErrConflict}
	svc := newCampaignTestService(db, fake)
	ctx := context.Background()

	err := svc.SetStatus(ctx, 1, 1, campaign.ID, false)
	if !errors.Is(err, platform.ErrConflict) {
		t.Errorf("应透传 ErrConflict, got %v", err)
	}
	got, _ := svc.CampaignRepo.GetByID(ctx, campaign.ID)
	if got.Status != "enabled" {
		t.Errorf("平台失败时本地状态不应变化: %s", got.Status)
	}
}

func TestCampaignService_SetStatus_Permission(t *testing.T) {
	db := setupCampaignTestDB(t)
	_, campaign := seedCampaignFixture(t, db)

	fake := &fakeClient{name: "google"}
	svc := newCampaignTestService(db, fake)
	ctx := context.Background()

	// viewer 无 CanManageCampaigns
	if err := svc.SetStatus(ctx, 1, 2, campaign.ID, false); !errors.Is(err, ErrNoPermission) {
		t.Errorf("viewer 操作应返回 ErrNoPermission, got %v", err)
	}
	if fake.statusCalls != 0 {
		t.Errorf("无权限时不应调用平台")
	}
}

func TestCampaignService_SetStatus_InactiveCredential(t *testing.T) {
	db := setupCampaignTestDB(t)
	cred, campaign := seedCampaignFixture(t, db)

	fake := &fakeClient{name: "google"}
	svc := newCampaignTestService(db, fake)
	ctx := context.Background()

	// 凭证已断开
	if err := svc.CredentialRepo.Deactivate(ctx, cred.ID, model.TokenStatusValid); err != nil {
		t.Fatalf("Deactivate 失败: %v", err)
	}

	if err := svc.SetStatus(ctx, 1, 1, campaign.ID, false); !errors.Is(err, ErrCredentialInactive) {
		t.Errorf("断开的凭证应返回 ErrCredentialInactive, got %v", err)
	}
}

func TestCampaignService_GetCampaign_TeamScope(t *testing.T) {
	db := setupCampaignTestDB(t)
	_, campaign := seedCampaignFixture(t, db)
	svc := newCampaignTestService(db)

	// 其他团队不可见
	if _, err := svc.GetCampaign(context.Background(), 999, campaign.ID); !errors.Is(err, ErrCampaignNotFound) {
		t.Errorf("跨团队查询应返回 ErrCampaignNotFound, got %v", err)
	}
}
