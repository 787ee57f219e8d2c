package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"allad_backend_v1/internal/model"
)

// ==================== 接口定义 ====================

// InvitationRepository 邀请仓储接口
type InvitationRepository interface {
	Create(ctx context.Context, inv *model.TeamInvitation) error
	GetByID(ctx context.Context, id int64) (*model.TeamInvitation, error)
	GetByToken(ctx context.Context, token string) (*model.TeamInvitation, error)
	ListByTeam(ctx context.Context, teamID int64) ([]model.TeamInvitation, error)
	GetPending(ctx context.Context, teamID int64, email string) (*model.TeamInvitation, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	MarkAccepted(ctx context.Context, id int64) error

	// ExpireStale 把超期的 pending 邀请批量置为 expired（懒过期）
	ExpireStale(ctx context.Context) (int64, error)
}

// ==================== 仓储实现 ====================

type invitationRepo struct {
	db *gorm.DB
}

// NewInvitationRepository 创建邀请仓储
func NewInvitationRepository(db *gorm.DB) InvitationRepository {
	return &invitationRepo{db: db}
}

func (r *invitationRepo) Create(ctx context.Context, inv *model.TeamInvitation) error {
	return r.db.WithContext(ctx).Create(inv).Error
}

func (r *invitationRepo) GetByID(ctx context.Context, id int64) (*model.TeamInvitation, error) {
	var inv model.TeamInvitation
	err := r.db.WithContext(ctx).First(&inv, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *invitationRepo) GetByToken(ctx context.Context, token string) (*model.TeamInvitation, error) {
	var inv model.TeamInvitation
	err := r.db.WithContext(ctx).Where("token = ?", token).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *invitationRepo) ListByTeam(ctx context.Context, teamID int64) ([]model.TeamInvitation, error) {
	var invs []model.TeamInvitation
	err := r.db.WithContext(ctx).
		Where("team_id = ?", teamID).
		Order("created_at DESC").
		Find(&invs).Error
	return invs, err
}

func (r *invitationRepo) GetPending(ctx context.Context, teamID int64, email string) (*model.TeamInvitation, error) {
	// 超期未处理的 pending 行视同不存在，状态由 ExpireStale 扫描统一修正
	var inv model.TeamInvitation
	err := r.db.WithContext(ctx).
		Where("team_id = ? AND email = ? AND status = ? AND expires_at > ?",
			teamID, email, model.InviteStatusPending, time.Now()).
		First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *invitationRepo) UpdateStatus(ctx context.Context, id int64, status string) error {
	return r.db.WithContext(ctx).Model(&model.TeamInvitation{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// MarkAccepted 置为 accepted，仅对仍处于 pending 的行生效
func (r *invitationRepo) MarkAccepted(ctx context.Context, id int64) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&model.TeamInvitation{}).
		Where("id = ? AND status = ?", id, model.InviteStatusPending).
		Updates(map[string]interface{}{
			"status":      model.InviteStatusAccepted,
			"accepted_at": &now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInviteGone
	}
	return nil
}

// ErrInviteGone 并发接受时第二个事务会命中：行已不在 pending 状态
var ErrInviteGone = errors.New("invitation is no longer pending")

func (r *invitationRepo) ExpireStale(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.TeamInvitation{}).
		Where("status = ? AND expires_at < ?", model.InviteStatusPending, time.Now()).
		Update("status", model.InviteStatusExpired)
	return result.RowsAffected, result.Error
}
