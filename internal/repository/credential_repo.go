package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"allad_backend_v1/internal/model"
)

// ==================== 接口定义 ====================

// CredentialRepository 平台凭证仓储接口
type CredentialRepository interface {
	// Upsert 按 (team_id, platform, account_id) 幂等写入，重连同一账号时覆盖旧 token
	Upsert(ctx context.Context, cred *model.PlatformCredential) error
	GetByID(ctx context.Context, id int64) (*model.PlatformCredential, error)
	GetByTeamPlatformAccount(ctx context.Context, teamID int64, platform, accountID string) (*model.PlatformCredential, error)
	ListByTeam(ctx context.Context, teamID int64) ([]model.PlatformCredential, error)
	ListActiveByTeam(ctx context.Context, teamID int64) ([]model.PlatformCredential, error)
	ListAllActive(ctx context.Context) ([]model.PlatformCredential, error)

	// FindExpiring 找出 threshold 内过期且仍有效的凭证，供定时刷新任务使用
	FindExpiring(ctx context.Context, threshold time.Duration) ([]model.PlatformCredential, error)

	UpdateToken(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt time.Time) error
	UpdateTokenStatus(ctx context.Context, id int64, status string) error
	Deactivate(ctx context.Context, id int64, tokenStatus string) error
	MarkSynced(ctx context.Context, id int64) error
}

// ==================== 仓储实现 ====================

type credentialRepo struct {
	db *gorm.DB
}

// NewCredentialRepository 创建平台凭证仓储
func NewCredentialRepository(db *gorm.DB) CredentialRepository {
	return &credentialRepo{db: db}
}

func (r *credentialRepo) Upsert(ctx context.Context, cred *model.PlatformCredential) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "team_id"}, {Name: "platform"}, {Name: "account_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"account_name", "credentials", "is_active", "token_status",
			"access_token", "refresh_token", "token_expires_at", "scopes",
			"updated_at",
		}),
	}).Create(cred).Error
}

func (r *credentialRepo) GetByID(ctx context.Context, id int64) (*model.PlatformCredential, error) {
	var cred model.PlatformCredential
	err := r.db.WithContext(ctx).First(&cred, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (r *credentialRepo) GetByTeamPlatformAccount(ctx context.Context, teamID int64, platform, accountID string) (*model.PlatformCredential, error) {
	var cred model.PlatformCredential
	err := r.db.WithContext(ctx).
		Where("team_id = ? AND platform = ? AND account_id = ?", teamID, platform, accountID).
		First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (r *credentialRepo) ListByTeam(ctx context.Context, teamID int64) ([]model.PlatformCredential, error) {
	var creds []model.PlatformCredential
	err := r.db.WithContext(ctx).
		Where("team_id = ?", teamID).
		Order("platform ASC, account_id ASC").
		Find(&creds).Error
	return creds, err
}

func (r *credentialRepo) ListActiveByTeam(ctx context.Context, teamID int64) ([]model.PlatformCredential, error) {
	var creds []model.PlatformCredential
	err := r.db.WithContext(ctx).
		Where("team_id = ? AND is_active = ?", teamID, true).
		Find(&creds).Error
	return creds, err
}

func (r *credentialRepo) ListAllActive(ctx context.Context) ([]model.PlatformCredential, error) {
	var creds []model.PlatformCredential
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Find(&creds).Error
	return creds, err
}

// FindExpiring 过期阈值内的 OAuth 凭证
// Key 录入型平台（naver/coupang）没有过期时间，token_expires_at 为零值，不会被选中
func (r *credentialRepo) FindExpiring(ctx context.Context, threshold time.Duration) ([]model.PlatformCredential, error) {
	var creds []model.PlatformCredential
	deadline := time.Now().Add(threshold)
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND token_status <> ?", true, model.TokenStatusInvalid).
		Where("token_expires_at > ? AND token_expires_at < ?", time.Time{}, deadline).
		Find(&creds).Error
	return creds, err
}

func (r *credentialRepo) UpdateToken(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt time.Time) error {
	return r.db.WithContext(ctx).Model(&model.PlatformCredential{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"access_token":     accessToken,
			"refresh_token":    refreshToken,
			"token_expires_at": expiresAt,
			"token_status":     model.TokenStatusValid,
		}).Error
}

func (r *credentialRepo) UpdateTokenStatus(ctx context.Context, id int64, status string) error {
	return r.db.WithContext(ctx).Model(&model.PlatformCredential{}).
		Where("id = ?", id).
		Update("token_status", status).Error
}

// Deactivate 停用凭证，刷新被平台拒绝或用户主动断开时调用
func (r *credentialRepo) Deactivate(ctx context.Context, id int64, tokenStatus string) error {
	return r.db.WithContext(ctx).Model(&model.PlatformCredential{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_active":    false,
			"token_status": tokenStatus,
		}).Error
}

func (r *credentialRepo) MarkSynced(ctx context.Context, id int64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.PlatformCredential{}).
		Where("id = ?", id).
		Update("synced_at", &now).Error
}
