package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"gorm.io/datatypes"

	"allad_backend_v1/internal/model"
	"allad_backend_v1/internal/platform"
	"allad_backend_v1/internal/repository"
	"allad_backend_v1/pkg/utils"
)

// ==================== CampaignService ====================

// CampaignService 广告系列同步与操作
type CampaignService struct {
	CampaignRepo   repository.CampaignRepository
	CredentialRepo repository.CredentialRepository
	MemberRepo     repository.TeamMemberRepository
	Registry       *platform.Registry
}

// NewCampaignService 工厂方法
func NewCampaignService(
	campaignRepo repository.CampaignRepository,
	credentialRepo repository.CredentialRepository,
	memberRepo repository.TeamMemberRepository,
	registry *platform.Registry,
) *CampaignService {
	return &CampaignService{
		CampaignRepo:   campaignRepo,
		CredentialRepo: credentialRepo,
		MemberRepo:     memberRepo,
		Registry:       registry,
	}
}

// ==================== 查询 ====================

// ListCampaigns 团队广告系列列表
func (s *CampaignService) ListCampaigns(ctx context.Context, teamID int64, filter repository.CampaignFilter) ([]model.Campaign, error) {
	return s.CampaignRepo.ListByTeam(ctx, teamID, filter)
}

// GetCampaign 查询单个系列，校验归属团队
func (s *CampaignService) GetCampaign(ctx context.Context, teamID, campaignID int64) (*model.Campaign, error) {
	c, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c == nil || c.TeamID != teamID {
		return nil, ErrCampaignNotFound
	}
	return c, nil
}

// ==================== 同步 ====================

// SyncResult 单次同步结果
type SyncResult struct {
	Synced      int `json:"synced"`
	Deactivated int `json:"deactivated"`
	Failed      int `json:"failed"`
}

// SyncTeam 同步团队下所有活跃凭证的广告系列
func (s *CampaignService) SyncTeam(ctx context.Context, teamID int64) (*SyncResult, error) {
	creds, err := s.CredentialRepo.ListActiveByTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}

	total := &SyncResult{}
	for i := range creds {
		r, err := s.SyncCredential(ctx, &creds[i])
		if err != nil {
			log.Printf("[Campaign] sync failed platform=%s cred=%d err=%v", creds[i].Platform, creds[i].ID, err)
			total.Failed++
			continue
		}
		total.Synced += r.Synced
		total.Deactivated += r.Deactivated
	}
	return total, nil
}

// SyncCredential 同步一条凭证下的广告系列
// 平台侧已消失的系列置为不活跃，不删除历史
func (s *CampaignService) SyncCredential(ctx context.Context, cred *model.PlatformCredential) (*SyncResult, error) {
	client, ok := s.Registry.Get(cred.Platform)
	if !ok {
		return nil, ErrUnknownPlatform
	}

	list, err := client.ListCampaigns(ctx, RuntimeCredential(cred))
	if err != nil {
		return nil, err
	}

	result := &SyncResult{}
	keepIDs := make([]string, 0, len(list))
	for _, cd := range list {
		keepIDs = append(keepIDs, cd.PlatformCampaignID)

		c := &model.Campaign{
			TeamID:             cred.TeamID,
			Platform:           cred.Platform,
			PlatformCampaignID: cd.PlatformCampaignID,
			CredentialID:       cred.ID,
			Name:               cd.Name,
			Status:             cd.Status,
			Budget:             cd.Budget,
			IsActive:           true,
			RawData:            normalizeRawPayload(cd.Raw),
		}
		if err := s.CampaignRepo.Upsert(ctx, c); err != nil {
			log.Printf("[Campaign] upsert failed platform=%s id=%s err=%v", cred.Platform, cd.PlatformCampaignID, err)
			result.Failed++
			continue
		}
		result.Synced++
	}

	deactivated, err := s.CampaignRepo.DeactivateMissing(ctx, cred.ID, keepIDs)
	if err != nil {
		return nil, err
	}
	result.Deactivated = int(deactivated)

	if err := s.CredentialRepo.MarkSynced(ctx, cred.ID); err != nil {
		log.Printf("[Campaign] mark synced failed cred=%d err=%v", cred.ID, err)
	}

	log.Printf("[Campaign] sync ok platform=%s cred=%d synced=%d deactivated=%d",
		cred.Platform, cred.ID, result.Synced, result.Deactivated)
	return result, nil
}

// ==================== 操作 ====================

// SetStatus 启用/暂停广告系列
// 平台调用成功后才更新本地状态；平台报告已处于目标状态时返回 platform.ErrConflict
func (s *CampaignService) SetStatus(ctx context.Context, teamID, userID, campaignID int64, active bool) error {
	campaign, cred, client, err := s.prepareMutation(ctx, teamID, userID, campaignID)
	if err != nil {
		return err
	}

	if err := client.SetCampaignStatus(ctx, RuntimeCredential(cred), campaign.PlatformCampaignID, active); err != nil {
		return err
	}

	status := model.CampaignStatusPaused
	if active {
		status = model.CampaignStatusEnabled
	}
	return s.CampaignRepo.UpdateStatus(ctx, campaign.ID, status)
}

// SetBudget 设置日预算
// budget <= 0 在发平台请求前即拒绝
func (s *CampaignService) SetBudget(ctx context.Context, teamID, userID, campaignID int64, budget float64) error {
	if budget <= 0 {
		return platform.ErrInvalidBudget
	}

	campaign, cred, client, err := s.prepareMutation(ctx, teamID, userID, campaignID)
	if err != nil {
		return err
	}

	if err := client.SetCampaignBudget(ctx, RuntimeCredential(cred), campaign.PlatformCampaignID, budget); err != nil {
		return err
	}

	return s.CampaignRepo.UpdateBudget(ctx, campaign.ID, budget)
}

// ==================== 内部方法 ====================

// normalizeRawPayload 各平台原始 payload key 风格不一（camelCase / snake_case 混用），
// 落库前统一成 snake_case，解析失败时原样保留
func normalizeRawPayload(raw []byte) datatypes.JSON {
	if len(raw) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return datatypes.JSON(raw)
	}
	out, err := json.Marshal(utils.ToSnakeKeys(v))
	if err != nil {
		return datatypes.JSON(raw)
	}
	return datatypes.JSON(out)
}

// prepareMutation 写操作公共前置：权限 -> 系列归属 -> 凭证有效 -> 平台客户端
func (s *CampaignService) prepareMutation(ctx context.Context, teamID, userID, campaignID int64) (*model.Campaign, *model.PlatformCredential, platform.Client, error) {
	member, err := s.MemberRepo.GetByTeamAndUser(ctx, teamID, userID)
	if err != nil {
		return nil, nil, nil, err
	}
	if member == nil || !model.PermissionFor(member.Role).CanManageCampaigns {
		return nil, nil, nil, ErrNoPermission
	}

	campaign, err := s.GetCampaign(ctx, teamID, campaignID)
	if err != nil {
		return nil, nil, nil, err
	}

	cred, err := s.CredentialRepo.GetByID(ctx, campaign.CredentialID)
	if err != nil {
		return nil, nil, nil, err
	}
	if cred == nil || !cred.IsActive {
		return nil, nil, nil, ErrCredentialInactive
	}

	client, ok := s.Registry.Get(campaign.Platform)
	if !ok {
		return nil, nil, nil, ErrUnknownPlatform
	}

	return campaign, cred, client, nil
}

// ==================== 错误定义 ====================

var (
	ErrCampaignNotFound   = errors.New("광고 캠페인을 찾을 수 없습니다")
	ErrCredentialInactive = errors.New("플랫폼 연결이 해제되어 작업을 수행할 수 없습니다. 다시 연결해 주세요")
)
