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

// CampaignFilter 列表查询条件
type CampaignFilter struct {
	Platform string
	Status   string
}

// CampaignRepository 广告系列仓储接口
type CampaignRepository interface {
	// Upsert 按 (team_id, platform, platform_campaign_id) 幂等写入，同步时反复调用
	Upsert(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, id int64) (*model.Campaign, error)
	GetByPlatformID(ctx context.Context, teamID int64, platform, platformCampaignID string) (*model.Campaign, error)
	ListByTeam(ctx context.Context, teamID int64, filter CampaignFilter) ([]model.Campaign, error)
	ListByCredential(ctx context.Context, credentialID int64) ([]model.Campaign, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	UpdateBudget(ctx context.Context, id int64, budget float64) error
	MarkSynced(ctx context.Context, id int64) error

	// DeactivateMissing 同步后把平台侧已消失的系列置为不活跃
	DeactivateMissing(ctx context.Context, credentialID int64, keepIDs []string) (int64, error)
}

// ==================== 仓储实现 ====================

type campaignRepo struct {
	db *gorm.DB
}

// NewCampaignRepository 创建广告系列仓储
func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &campaignRepo{db: db}
}

func (r *campaignRepo) Upsert(ctx context.Context, c *model.Campaign) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "team_id"}, {Name: "platform"}, {Name: "platform_campaign_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"credential_id", "name", "status", "budget", "is_active",
			"raw_data", "synced_at", "updated_at",
		}),
	}).Create(c).Error
}

func (r *campaignRepo) GetByID(ctx context.Context, id int64) (*model.Campaign, error) {
	var c model.Campaign
	err := r.db.WithContext(ctx).First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *campaignRepo) GetByPlatformID(ctx context.Context, teamID int64, platform, platformCampaignID string) (*model.Campaign, error) {
	var c model.Campaign
	err := r.db.WithContext(ctx).
		Where("team_id = ? AND platform = ? AND platform_campaign_id = ?", teamID, platform, platformCampaignID).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *campaignRepo) ListByTeam(ctx context.Context, teamID int64, filter CampaignFilter) ([]model.Campaign, error) {
	query := r.db.WithContext(ctx).Where("team_id = ?", teamID)
	if filter.Platform != "" {
		query = query.Where("platform = ?", filter.Platform)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var campaigns []model.Campaign
	err := query.Order("platform ASC, name ASC").Find(&campaigns).Error
	return campaigns, err
}

func (r *campaignRepo) ListByCredential(ctx context.Context, credentialID int64) ([]model.Campaign, error) {
	var campaigns []model.Campaign
	err := r.db.WithContext(ctx).
		Where("credential_id = ?", credentialID).
		Find(&campaigns).Error
	return campaigns, err
}

func (r *campaignRepo) UpdateStatus(ctx context.Context, id int64, status string) error {
	return r.db.WithContext(ctx).Model(&model.Campaign{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *campaignRepo) UpdateBudget(ctx context.Context, id int64, budget float64) error {
	return r.db.WithContext(ctx).Model(&model.Campaign{}).
		Where("id = ?", id).
		Update("budget", budget).Error
}

func (r *campaignRepo) MarkSynced(ctx context.Context, id int64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.Campaign{}).
		Where("id = ?", id).
		Update("synced_at", &now).Error
}

func (r *campaignRepo) DeactivateMissing(ctx context.Context, credentialID int64, keepIDs []string) (int64, error) {
	query := r.db.WithContext(ctx).Model(&model.Campaign{}).
		Where("credential_id = ? AND is_active = ?", credentialID, true)
	if len(keepIDs) > 0 {
		query = query.Where("platform_campaign_id NOT IN ?", keepIDs)
	}
	result := query.Update("is_active", false)
	return result.RowsAffected, result.Error
}
