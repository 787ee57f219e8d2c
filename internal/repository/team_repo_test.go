package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"allad_backend_v1/internal/model"
)

func setupTeamTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	if err := db.AutoMigrate(&model.Profile{}, &model.Team{}, &model.TeamMember{}, &model.TeamInvitation{}); err != nil {
		t.Fatalf("迁移失败: %v", err)
	}
	return db
}

func TestTeamRepo_CreateForUser(t *testing.T) {
	db := setupTeamTestDB(t)
	repo := NewTeamRepository(db)
	ctx := context.Background()

	var team *model.Team
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		team, err = repo.CreateForUser(ctx, tx, 100, "홍길동의 팀")
		return err
	})
	if err != nil {
		t.Fatalf("CreateForUser 失败: %v", err)
	}

	if team.MasterUserID != 100 {
		t.Errorf("MasterUserID = %d, want 100", team.MasterUserID)
	}

	// master 成员行必须与 teams.master_user_id 一致
	memberRepo := NewTeamMemberRepository(db)
	member, err := memberRepo.GetByTeamAndUser(ctx, team.ID, 100)
	if err != nil {
		t.Fatalf("查询成员失败: %v", err)
	}
	if member == nil {
		t.Fatalf("master 成员行缺失")
	}
	if member.Role != model.RoleMaster {
		t.Errorf("Role = %s, want master", member.Role)
	}
}

func TestTeamRepo_ListByUserID(t *testing.T) {
	db := setupTeamTestDB(t)
	repo := NewTeamRepository(db)
	memberRepo := NewTeamMemberRepository(db)
	ctx := context.Background()

	t1 := model.Team{Name: "팀 A", MasterUserID: 1}
	t2 := model.Team{Name: "팀 B", MasterUserID: 2}
	db.Create(&t1)
	db.Create(&t2)

	memberRepo.Create(ctx, &model.TeamMember{TeamID: t1.ID, UserID: 1, Role: model.RoleMaster, JoinedAt: time.Now()})
	memberRepo.Create(ctx, &model.TeamMember{TeamID: t2.ID, UserID: 1, Role: model.RoleViewer, JoinedAt: time.Now()})
	memberRepo.Create(ctx, &model.TeamMember{TeamID: t2.ID, UserID: 2, Role: model.RoleMaster, JoinedAt: time.Now()})

	teams, err := repo.ListByUserID(ctx, 1)
	if err != nil {
		t.Fatalf("ListByUserID 失败: %v", err)
	}
	if len(teams) != 2 {
		t.Errorf("用户 1 的团队数 = %d, want 2", len(teams))
	}

	teams, _ = repo.ListByUserID(ctx, 2)
	if len(teams) != 1 {
		t.Errorf("用户 2 的团队数 = %d, want 1", len(teams))
	}
}

func TestTeamMemberRepo_CountAndDelete(t *testing.T) {
	db := setupTeamTestDB(t)
	memberRepo := NewTeamMemberRepository(db)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		memberRepo.Create(ctx, &model.TeamMember{TeamID: 1, UserID: i, Role: model.RoleViewer, JoinedAt: time.Now()})
	}

	count, err := memberRepo.CountByTeam(ctx, 1)
	if err != nil {
		t.Fatalf("CountByTeam 失败: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	if err := memberRepo.Delete(ctx, 1, 2); err != nil {
		t.Fatalf("Delete 失败: %v", err)
	}

	count, _ = memberRepo.CountByTeam(ctx, 1)
	if count != 2 {
		t.Errorf("删除后 count = %d, want 2", count)
	}

	// 软删除后不应再命中
	member, _ := memberRepo.GetByTeamAndUser(ctx, 1, 2)
	if member != nil {
		t.Errorf("已删除成员不应命中")
	}
}

func TestInvitationRepo_ExpireStale(t *testing.T) {
	db := setupTeamTestDB(t)
	repo := NewInvitationRepository(db)
	ctx := context.Background()

	now := time.Now()
	fresh := model.TeamInvitation{
		TeamID: 1, Email: "fresh@example.com", Role: model.RoleViewer,
		InvitedBy: 1, Status: model.InviteStatusPending, Token: "tok-fresh",
		ExpiresAt: now.Add(model.InviteTTL),
	}
	stale := model.TeamInvitation{
		TeamID: 1, Email: "stale@example.com", Role: model.RoleViewer,
		InvitedBy: 1, Status: model.InviteStatusPending, Token: "tok-stale",
		ExpiresAt: now.Add(-time.Hour),
	}
	accepted := model.TeamInvitation{
		TeamID: 1, Email: "done@example.com", Role: model.RoleViewer,
		InvitedBy: 1, Status: model.InviteStatusAccepted, Token: "tok-done",
		ExpiresAt: now.Add(-time.Hour),
	}
	db.Create(&fresh)
	db.Create(&stale)
	db.Create(&accepted)

	affected, err := repo.ExpireStale(ctx)
	if err != nil {
		t.Fatalf("ExpireStale 失败: %v", err)
	}
	if affected != 1 {
		t.Errorf("affected = %d, want 1", affected)
	}

	got, _ := repo.GetByToken(ctx, "tok-stale")
	if got.Status != model.InviteStatusExpired {
		t.Errorf("过期邀请状态 = %s, want expired", got.Status)
	}
	// 未超期的 pending 和已接受的不受影响
	got, _ = repo.GetByToken(ctx, "tok-fresh")
	if got.Status != model.InviteStatusPending {
		t.Errorf("未超期邀请被误改: %s", got.Status)
	}
	got, _ = repo.GetByToken(ctx, "tok-done")
	if got.Status != model.InviteStatusAccepted {
		t.Errorf("已接受邀请被误改: %s", got.Status)
	}
}

func TestInvitationRepo_GetPending(t *testing.T) {
	db := setupTeamTestDB(t)
	repo := NewInvitationRepository(db)
	ctx := context.Background()

	db.Create(&model.TeamInvitation{
		TeamID: 1, Email: "a@example.com", Role: model.RoleViewer,
		InvitedBy: 1, Status: model.InviteStatusCancelled, Token: "tok-1",
		ExpiresAt: time.Now().Add(model.InviteTTL),
	})

	// 已取消的邀请不算 pending
	got, err := repo.GetPending(ctx, 1, "a@example.com")
	if err != nil {
		t.Fatalf("GetPending 失败: %v", err)
	}
	if got != nil {
		t.Errorf("cancelled 不应命中 pending")
	}

	// 状态还是 pending 但已超期的行同样不算
	db.Create(&model.TeamInvitation{
		TeamID: 1, Email: "b@example.com", Role: model.RoleViewer,
		InvitedBy: 1, Status: model.InviteStatusPending, Token: "tok-2",
		ExpiresAt: time.Now().Add(-48 * time.Hour),
	})
	got, err = repo.GetPending(ctx, 1, "b@example.com")
	if err != nil {
		t.Fatalf("GetPending 失败: %v", err)
	}
	if got != nil {
		t.Errorf("超期 pending 不应命中")
	}

	// 未超期的 pending 正常命中
	db.Create(&model.TeamInvitation{
		TeamID: 1, Email: "c@example.com", Role: model.RoleViewer,
		InvitedBy: 1, Status: model.InviteStatusPending, Token: "tok-3",
		ExpiresAt: time.Now().Add(model.InviteTTL),
	})
	got, err = repo.GetPending(ctx, 1, "c@example.com")
	if err != nil {
		t.Fatalf("GetPending 失败: %v", err)
	}
	if got == nil || got.Token != "tok-3" {
		t.Errorf("有效 pending 应命中: %+v", got)
	}
}

func TestInvitationRepo_MarkAccepted(t *testing.T) {
	db := setupTeamTestDB(t)
	repo := NewInvitationRepository(db)
	ctx := context.Background()

	inv := &model.TeamInvitation{
		TeamID: 1, Email: "a@example.com", Role: model.RoleViewer,
		InvitedBy: 1, Status: model.InviteStatusPending, Token: "tok-acc",
		ExpiresAt: time.Now().Add(model.InviteTTL),
	}
	db.Create(inv)

	if err := repo.MarkAccepted(ctx, inv.ID); err != nil {
		t.Fatalf("MarkAccepted 失败: %v", err)
	}

	got, _ := repo.GetByToken(ctx, "tok-acc")
	if got.Status != model.InviteStatusAccepted {
		t.Errorf("Status = %s, want accepted", got.Status)
	}
	if got.AcceptedAt == nil {
		t.Errorf("AcceptedAt 应已写入")
	}

	// 已不在 pending 的行再次置 accepted 应失败
	if err := repo.MarkAccepted(ctx, inv.ID); !errors.Is(err, ErrInviteGone) {
		t.Errorf("二次 MarkAccepted 应返回 ErrInviteGone, got %v", err)
	}
}
