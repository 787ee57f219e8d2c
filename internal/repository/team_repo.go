package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"allad_backend_v1/internal/model"
)

// ==================== TeamRepository ====================

// TeamRepository 团队仓储接口
type TeamRepository interface {
	Create(ctx context.Context, team *model.Team) error
	GetByID(ctx context.Context, id int64) (*model.Team, error)
	Update(ctx context.Context, team *model.Team) error
	Delete(ctx context.Context, id int64) error
	ListByUserID(ctx context.Context, userID int64) ([]model.Team, error)

	// CreateForUser 注册事务：建团队 + master 成员，保证两表一致
	CreateForUser(ctx context.Context, tx *gorm.DB, userID int64, name string) (*model.Team, error)
}

type teamRepo struct {
	db *gorm.DB
}

// NewTeamRepository 创建团队仓储
func NewTeamRepository(db *gorm.DB) TeamRepository {
	return &teamRepo{db: db}
}

func (r *teamRepo) Create(ctx context.Context, team *model.Team) error {
	return r.db.WithContext(ctx).Create(team).Error
}

func (r *teamRepo) GetByID(ctx context.Context, id int64) (*model.Team, error) {
	var team model.Team
	err := r.db.WithContext(ctx).First(&team, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &team, nil
}

func (r *teamRepo) Update(ctx context.Context, team *model.Team) error {
	return r.db.WithContext(ctx).Save(team).Error
}

func (r *teamRepo) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&model.Team{}, id).Error
}

func (r *teamRepo) ListByUserID(ctx context.Context, userID int64) ([]model.Team, error) {
	var teams []model.Team
	err := r.db.WithContext(ctx).
		Model(&model.Team{}).
		Joins("JOIN team_members ON team_members.team_id = teams.id").
		Where("team_members.user_id = ? AND team_members.deleted_at IS NULL", userID).
		Find(&teams).Error
	return teams, err
}

// CreateForUser 在给定事务内创建团队和 master 成员行
// 对应原系统的 create_team_for_user：注册人即 master，两行必须同生共死
func (r *teamRepo) CreateForUser(ctx context.Context, tx *gorm.DB, userID int64, name string) (*model.Team, error) {
	team := &model.Team{
		Name:         name,
		MasterUserID: userID,
	}
	if err := tx.WithContext(ctx).Create(team).Error; err != nil {
		return nil, err
	}

	member := &model.TeamMember{
		TeamID:   team.ID,
		UserID:   userID,
		Role:     model.RoleMaster,
		JoinedAt: time.Now(),
	}
	if err := tx.WithContext(ctx).Create(member).Error; err != nil {
		return nil, err
	}

	return team, nil
}

// ==================== TeamMemberRepository ====================

// TeamMemberRepository 团队成员仓储接口
type TeamMemberRepository interface {
	Create(ctx context.Context, member *model.TeamMember) error
	GetByTeamAndUser(ctx context.Context, teamID, userID int64) (*model.TeamMember, error)
	ListByTeam(ctx context.Context, teamID int64) ([]model.TeamMember, error)
	ListByUser(ctx context.Context, userID int64) ([]model.TeamMember, error)
	UpdateRole(ctx context.Context, teamID, userID int64, role string) error
	Delete(ctx context.Context, teamID, userID int64) error
	CountByTeam(ctx context.Context, teamID int64) (int64, error)
}

type teamMemberRepo struct {
	db *gorm.DB
}

// NewTeamMemberRepository 创建团队成员仓储
func NewTeamMemberRepository(db *gorm.DB) TeamMemberRepository {
	return &teamMemberRepo{db: db}
}

func (r *teamMemberRepo) Create(ctx context.Context, member *model.TeamMember) error {
	return r.db.WithContext(ctx).Create(member).Error
}

func (r *teamMemberRepo) GetByTeamAndUser(ctx context.Context, teamID, userID int64) (*model.TeamMember, error) {
	var member model.TeamMember
	err := r.db.WithContext(ctx).
		Where("team_id = ? AND user_id = ?", teamID, userID).
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *teamMemberRepo) ListByTeam(ctx context.Context, teamID int64) ([]model.TeamMember, error) {
	var members []model.TeamMember
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("team_id = ?", teamID).
		Order("joined_at ASC").
		Find(&members).Error
	return members, err
}

func (r *teamMemberRepo) ListByUser(ctx context.Context, userID int64) ([]model.TeamMember, error) {
	var members []model.TeamMember
	err := r.db.WithContext(ctx).
		Preload("Team").
		Where("user_id = ?", userID).
		Find(&members).Error
	return members, err
}

func (r *teamMemberRepo) UpdateRole(ctx context.Context, teamID, userID int64, role string) error {
	return r.db.WithContext(ctx).Model(&model.TeamMember{}).
		Where("team_id = ? AND user_id = ?", teamID, userID).
		Update("role", role).Error
}

func (r *teamMemberRepo) Delete(ctx context.Context, teamID, userID int64) error {
	return r.db.WithContext(ctx).
		Where("team_id = ? AND user_id = ?", teamID, userID).
		Delete(&model.TeamMember{}).Error
}

func (r *teamMemberRepo) CountByTeam(ctx context.Context, teamID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.TeamMember{}).
		Where("team_id = ?", teamID).
		Count(&count).Error
	return count, err
}
