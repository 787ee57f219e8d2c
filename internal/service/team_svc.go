package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"allad_backend_v1/internal/model"
	"allad_backend_v1/internal/repository"
)

// DefaultMemberLimit 单团队成员上限（含 master）
const DefaultMemberLimit = 5

// ==================== TeamService ====================

// TeamService 团队 / 成员 / 邀请管理
type TeamService struct {
	TeamRepo       repository.TeamRepository
	MemberRepo     repository.TeamMemberRepository
	InvitationRepo repository.InvitationRepository
	ProfileRepo    repository.ProfileRepository
	db             *gorm.DB

	MemberLimit int64
}

// NewTeamService 工厂方法
func NewTeamService(
	teamRepo repository.TeamRepository,
	memberRepo repository.TeamMemberRepository,
	invitationRepo repository.InvitationRepository,
	profileRepo repository.ProfileRepository,
	db *gorm.DB,
) *TeamService {
	return &TeamService{
		TeamRepo:       teamRepo,
		MemberRepo:     memberRepo,
		InvitationRepo: invitationRepo,
		ProfileRepo:    profileRepo,
		db:             db,
		MemberLimit:    DefaultMemberLimit,
	}
}

// ==================== 团队查询 ====================

// GetTeam 查询团队
func (s *TeamService) GetTeam(ctx context.Context, teamID int64) (*model.Team, error) {
	return s.TeamRepo.GetByID(ctx, teamID)
}

// ListMyTeams 当前用户所属的全部团队
func (s *TeamService) ListMyTeams(ctx context.Context, userID int64) ([]model.TeamMember, error) {
	return s.MemberRepo.ListByUser(ctx, userID)
}

// ListMembers 团队成员列表
func (s *TeamService) ListMembers(ctx context.Context, teamID int64) ([]model.TeamMember, error) {
	return s.MemberRepo.ListByTeam(ctx, teamID)
}

// RenameTeam 改名，仅 master
func (s *TeamService) RenameTeam(ctx context.Context, teamID, actorID int64, name string) error {
	if err := s.requirePermission(ctx, teamID, actorID, func(p model.RolePermission) bool {
		return p.CanManageTeam
	}); err != nil {
		return err
	}

	team, err := s.TeamRepo.GetByID(ctx, teamID)
	if err != nil {
		return err
	}
	if team == nil {
		return ErrTeamNotFound
	}

	team.Name = name
	return s.TeamRepo.Update(ctx, team)
}

// ==================== 邀请 ====================

// InviteMember 发出邀请
// master 可邀请 team_mate/viewer；team_mate 只能邀请 viewer；不存在邀请 master
func (s *TeamService) InviteMember(ctx context.Context, teamID, inviterID int64, email, role string) (*model.TeamInvitation, error) {
	inviter, err := s.MemberRepo.GetByTeamAndUser(ctx, teamID, inviterID)
	if err != nil {
		return nil, err
	}
	if inviter == nil || !model.PermissionFor(inviter.Role).CanInviteMembers {
		return nil, ErrNoPermission
	}

	if role != model.RoleTeamMate && role != model.RoleViewer {
		return nil, ErrInvalidRole
	}
	if inviter.Role == model.RoleTeamMate && role != model.RoleViewer {
		return nil, ErrNoPermission
	}

	// 成员上限：现有成员 + 本次邀请
	count, err := s.MemberRepo.CountByTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if count >= s.MemberLimit {
		return nil, ErrMemberLimit
	}

	// 已是成员则拒绝
	if profile, err := s.ProfileRepo.GetByEmail(ctx, email); err != nil {
		return nil, err
	} else if profile != nil {
		member, err := s.MemberRepo.GetByTeamAndUser(ctx, teamID, profile.ID)
		if err != nil {
			return nil, err
		}
		if member != nil {
			return nil, ErrAlreadyMember
		}
	}

	// 同一邮箱只允许一条待处理邀请
	pending, err := s.InvitationRepo.GetPending(ctx, teamID, email)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return nil, ErrInvitePending
	}

	inv := &model.TeamInvitation{
		TeamID:    teamID,
		Email:     email,
		Role:      role,
		InvitedBy: inviterID,
		Status:    model.InviteStatusPending,
		Token:     uuid.NewString(),
		ExpiresAt: time.Now().Add(model.InviteTTL),
	}
	if err := s.InvitationRepo.Create(ctx, inv); err != nil {
		return nil, err
	}

	log.Printf("[Team] invitation created team=%d email=%s role=%s", teamID, email, role)
	return inv, nil
}

// AcceptInvitation 接受邀请
// token 一次性使用：成功后立即置 accepted，再次使用无效
func (s *TeamService) AcceptInvitation(ctx context.Context, token string, userID int64) (*model.TeamMember, error) {
	inv, err := s.InvitationRepo.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv == nil || inv.Status != model.InviteStatusPending {
		return nil, ErrInviteInvalid
	}

	// 懒过期：读取时发现超期就地置为 expired
	if time.Now().After(inv.ExpiresAt) {
		if err := s.InvitationRepo.UpdateStatus(ctx, inv.ID, model.InviteStatusExpired); err != nil {
			log.Printf("[Team] expire invitation %d failed: %v", inv.ID, err)
		}
		return nil, ErrInviteExpired
	}

	// 邀请绑定邮箱，只有该邮箱的注册用户能接受
	profile, err := s.ProfileRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil || profile.Email != inv.Email {
		return nil, ErrInviteInvalid
	}

	existing, err := s.MemberRepo.GetByTeamAndUser(ctx, inv.TeamID, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyMember
	}

	count, err := s.MemberRepo.CountByTeam(ctx, inv.TeamID)
	if err != nil {
		return nil, err
	}
	if count >= s.MemberLimit {
		return nil, ErrMemberLimit
	}

	member := &model.TeamMember{
		TeamID:    inv.TeamID,
		UserID:    userID,
		Role:      inv.Role,
		InvitedBy: inv.InvitedBy,
		JoinedAt:  time.Now(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(member).Error; err != nil {
			return err
		}
		// 事务内置 accepted；并发接受时后到的事务拿到 ErrInviteGone 整体回滚
		return repository.NewInvitationRepository(tx).MarkAccepted(ctx, inv.ID)
	})
	if err != nil {
		if errors.Is(err, repository.ErrInviteGone) {
			return nil, ErrInviteInvalid
		}
		return nil, err
	}

	log.Printf("[Team] invitation accepted team=%d user=%d role=%s", inv.TeamID, userID, inv.Role)
	return member, nil
}

// CancelInvitation 取消待处理邀请
func (s *TeamService) CancelInvitation(ctx context.Context, teamID, actorID, invitationID int64) error {
	if err := s.requirePermission(ctx, teamID, actorID, func(p model.RolePermission) bool {
		return p.CanInviteMembers
	}); err != nil {
		return err
	}

	inv, err := s.InvitationRepo.GetByID(ctx, invitationID)
	if err != nil {
		return err
	}
	if inv == nil || inv.TeamID != teamID {
		return ErrInviteInvalid
	}
	if inv.Status != model.InviteStatusPending {
		return ErrInviteInvalid
	}

	return s.InvitationRepo.UpdateStatus(ctx, invitationID, model.InviteStatusCancelled)
}

// ListInvitations 团队邀请列表
func (s *TeamService) ListInvitations(ctx context.Context, teamID int64) ([]model.TeamInvitation, error) {
	return s.InvitationRepo.ListByTeam(ctx, teamID)
}

// ==================== 成员管理 ====================

// RemoveMember 移除成员，master 不可被移除
func (s *TeamService) RemoveMember(ctx context.Context, teamID, actorID, targetUserID int64) error {
	if err := s.requirePermission(ctx, teamID, actorID, func(p model.RolePermission) bool {
		return p.CanRemoveMembers
	}); err != nil {
		return err
	}

	target, err := s.MemberRepo.GetByTeamAndUser(ctx, teamID, targetUserID)
	if err != nil {
		return err
	}
	if target == nil {
		return ErrMemberNotFound
	}
	if target.Role == model.RoleMaster {
		return ErrMasterImmutable
	}

	return s.MemberRepo.Delete(ctx, teamID, targetUserID)
}

// LeaveTeam 成员主动退出，master 不可退出（需先转让，转让不在当前范围）
func (s *TeamService) LeaveTeam(ctx context.Context, teamID, userID int64) error {
	member, err := s.MemberRepo.GetByTeamAndUser(ctx, teamID, userID)
	if err != nil {
		return err
	}
	if member == nil {
		return ErrMemberNotFound
	}
	if member.Role == model.RoleMaster {
		return ErrMasterImmutable
	}
	return s.MemberRepo.Delete(ctx, teamID, userID)
}

// ChangeRole 变更成员角色，仅 master；master 自身角色不可变
func (s *TeamService) ChangeRole(ctx context.Context, teamID, actorID, targetUserID int64, role string) error {
	actor, err := s.MemberRepo.GetByTeamAndUser(ctx, teamID, actorID)
	if err != nil {
		return err
	}
	if actor == nil || actor.Role != model.RoleMaster {
		return ErrNoPermission
	}

	if role != model.RoleTeamMate && role != model.RoleViewer {
		return ErrInvalidRole
	}

	target, err := s.MemberRepo.GetByTeamAndUser(ctx, teamID, targetUserID)
	if err != nil {
		return err
	}
	if target == nil {
		return ErrMemberNotFound
	}
	if target.Role == model.RoleMaster {
		return ErrMasterImmutable
	}

	return s.MemberRepo.UpdateRole(ctx, teamID, targetUserID, role)
}

// ==================== 内部方法 ====================

func (s *TeamService) requirePermission(ctx context.Context, teamID, userID int64, check func(model.RolePermission) bool) error {
	member, err := s.MemberRepo.GetByTeamAndUser(ctx, teamID, userID)
	if err != nil {
		return err
	}
	if member == nil || !check(model.PermissionFor(member.Role)) {
		return ErrNoPermission
	}
	return nil
}

// ==================== 错误定义 ====================

var (
	ErrTeamNotFound    = errors.New("팀을 찾을 수 없습니다")
	ErrMemberNotFound  = errors.New("팀 멤버를 찾을 수 없습니다")
	ErrNoPermission    = errors.New("이 작업을 수행할 권한이 없습니다")
	ErrInvalidRole     = errors.New("지정할 수 없는 역할입니다")
	ErrMemberLimit     = errors.New("팀 멤버 수가 최대치에 도달했습니다")
	ErrAlreadyMember   = errors.New("이미 팀에 속한 사용자입니다")
	ErrInvitePending   = errors.New("이미 대기 중인 초대가 있습니다")
	ErrInviteInvalid   = errors.New("유효하지 않은 초대입니다")
	ErrInviteExpired   = errors.New("만료된 초대입니다")
	ErrMasterImmutable = errors.New("팀 소유자는 변경하거나 제외할 수 없습니다")
)
