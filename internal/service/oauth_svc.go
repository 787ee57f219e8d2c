package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"

	"allad_backend_v1/internal/model"
	"allad_backend_v1/internal/platform"
	"allad_backend_v1/internal/repository"
	"allad_backend_v1/pkg/utils"
)

// ==================== OAuthService ====================

// OAuthService 广告平台连接管理：授权、回调、密钥录入、断开、刷新
type OAuthService struct {
	CredentialRepo repository.CredentialRepository
	MemberRepo     repository.TeamMemberRepository
	Registry       *platform.Registry
	stateCache     *utils.StateCache
}

// NewOAuthService 工厂方法
func NewOAuthService(
	credentialRepo repository.CredentialRepository,
	memberRepo repository.TeamMemberRepository,
	registry *platform.Registry,
	stateCache *utils.StateCache,
) *OAuthService {
	return &OAuthService{
		CredentialRepo: credentialRepo,
		MemberRepo:     memberRepo,
		Registry:       registry,
		stateCache:     stateCache,
	}
}

// ==================== 授权链接 ====================

// GenerateAuthURL 生成平台授权链接
// accountID 为平台侧广告账号标识，由用户在连接时填写
func (s *OAuthService) GenerateAuthURL(ctx context.Context, teamID, userID int64, platformName, accountID string) (string, error) {
	if err := s.requirePlatformPermission(ctx, teamID, userID); err != nil {
		return "", err
	}

	client, ok := s.Registry.Get(platformName)
	if !ok {
		return "", ErrUnknownPlatform
	}

	// 生成 PKCE 安全参数
	verifier, err := utils.GenerateRandomString(32)
	if err != nil {
		return "", err
	}
	challenge := utils.GenerateCodeChallenge(verifier)
	state, err := utils.GenerateRandomString(16)
	if err != nil {
		return "", err
	}

	authURL := client.AuthorizeURL(state, challenge)
	if authURL == "" {
		// Key 录入型平台不走授权码流程
		return "", ErrKeyEntryPlatform
	}

	// 缓存 Verifier (key=state, value="verifier:team_id:user_id:platform:account_id")
	cacheValue := fmt.Sprintf("%s:%d:%d:%s:%s", verifier, teamID, userID, platformName, accountID)
	s.stateCache.Set(state, cacheValue)

	return authURL, nil
}

// ==================== 回调 ====================

// HandleCallback 处理平台回调 -> 换 Token -> 落库
func (s *OAuthService) HandleCallback(ctx context.Context, code, state string) (*model.PlatformCredential, error) {
	// 1. 校验 State 取缓存
	cachedVal, exists := s.stateCache.Get(state)
	if !exists {
		return nil, ErrStateInvalid
	}
	// state 用完即焚，授权码只能换取一次
	s.stateCache.Delete(state)

	// 2. 解析缓存 "verifier:team_id:user_id:platform:account_id"
	parts := strings.SplitN(cachedVal, ":", 5)
	if len(parts) != 5 {
		return nil, fmt.Errorf("state 캐시 형식 오류: %s", cachedVal)
	}
	verifier := parts[0]
	teamID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("state 캐시의 팀 ID가 유효하지 않습니다: %w", err)
	}
	userID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("state 캐시의 사용자 ID가 유효하지 않습니다: %w", err)
	}
	platformName := parts[3]
	accountID := parts[4]

	client, ok := s.Registry.Get(platformName)
	if !ok {
		return nil, ErrUnknownPlatform
	}

	// 3. 授权码换 Token
	ts, err := client.ExchangeCode(ctx, code, verifier)
	if err != nil {
		log.Printf("[OAuth] exchange code failed platform=%s team=%d err=%v", platformName, teamID, err)
		return nil, err
	}

	// 4. 落库（重连同一账号时覆盖）
	cred := &model.PlatformCredential{
		TeamID:         teamID,
		Platform:       platformName,
		AccountID:      accountID,
		IsActive:       true,
		TokenStatus:    model.TokenStatusValid,
		AccessToken:    ts.AccessToken,
		RefreshToken:   ts.RefreshToken,
		TokenExpiresAt: time.Now().Add(time.Duration(ts.ExpiresIn) * time.Second),
		Scopes:         splitScopes(ts.Scope),
		CreatedBy:      userID,
	}
	if err := s.CredentialRepo.Upsert(ctx, cred); err != nil {
		return nil, err
	}

	log.Printf("[OAuth] connected platform=%s team=%d account=%s", platformName, teamID, accountID)
	return cred, nil
}

// ==================== 密钥录入 ====================

// ConnectWithKeys Key 录入型平台（naver/coupang）直接保存密钥
// extra 存平台专属项：naver 的 secret_key、coupang 的 secret_key 等
func (s *OAuthService) ConnectWithKeys(ctx context.Context, teamID, userID int64, platformName, accountID, apiKey string, extra map[string]string) (*model.PlatformCredential, error) {
	if err := s.requirePlatformPermission(ctx, teamID, userID); err != nil {
		return nil, err
	}

	if platformName != model.PlatformNaver && platformName != model.PlatformCoupang {
		return nil, ErrNotKeyEntry
	}
	if apiKey == "" || accountID == "" {
		return nil, ErrMissingKeys
	}

	extraJSON, err := json.Marshal(extra)
	if err != nil {
		return nil, err
	}

	cred := &model.PlatformCredential{
		TeamID:      teamID,
		Platform:    platformName,
		AccountID:   accountID,
		Credentials: datatypes.JSON(extraJSON),
		IsActive:    true,
		TokenStatus: model.TokenStatusValid,
		AccessToken: apiKey,
		CreatedBy:   userID,
	}
	if err := s.CredentialRepo.Upsert(ctx, cred); err != nil {
		return nil, err
	}

	log.Printf("[OAuth] key credential saved platform=%s team=%d account=%s", platformName, teamID, accountID)
	return cred, nil
}

// ==================== 查询 / 断开 ====================

// ListCredentials 团队已连接的平台凭证
func (s *OAuthService) ListCredentials(ctx context.Context, teamID int64) ([]model.PlatformCredential, error) {
	return s.CredentialRepo.ListByTeam(ctx, teamID)
}

// Disconnect 断开平台连接
// 只停用不删除，历史同步数据保留
func (s *OAuthService) Disconnect(ctx context.Context, teamID, userID, credentialID int64) error {
	if err := s.requirePlatformPermission(ctx, teamID, userID); err != nil {
		return err
	}

	cred, err := s.CredentialRepo.GetByID(ctx, credentialID)
	if err != nil {
		return err
	}
	if cred == nil || cred.TeamID != teamID {
		return ErrCredentialNotFound
	}

	return s.CredentialRepo.Deactivate(ctx, credentialID, cred.TokenStatus)
}

// ==================== 刷新 ====================

// RefreshCredential 刷新一条凭证的 Token
// 平台明确拒绝（ErrAuthRevoked）时停用凭证并标记 auth_invalid，需用户重新授权
func (s *OAuthService) RefreshCredential(ctx context.Context, cred *model.PlatformCredential) error {
	client, ok := s.Registry.Get(cred.Platform)
	if !ok {
		return ErrUnknownPlatform
	}

	ts, err := client.RefreshToken(ctx, cred.RefreshToken)
	if err != nil {
		if errors.Is(err, platform.ErrAuthRevoked) {
			log.Printf("[OAuth] refresh revoked platform=%s cred=%d, deactivating", cred.Platform, cred.ID)
			if derr := s.CredentialRepo.Deactivate(ctx, cred.ID, model.TokenStatusInvalid); derr != nil {
				return derr
			}
			return err
		}
		// 网络类错误保留凭证，下一轮重试
		return err
	}

	expiresAt := time.Now().Add(time.Duration(ts.ExpiresIn) * time.Second)
	return s.CredentialRepo.UpdateToken(ctx, cred.ID, ts.AccessToken, ts.RefreshToken, expiresAt)
}

// ==================== 内部方法 ====================

func (s *OAuthService) requirePlatformPermission(ctx context.Context, teamID, userID int64) error {
	member, err := s.MemberRepo.GetByTeamAndUser(ctx, teamID, userID)
	if err != nil {
		return err
	}
	if member == nil || !model.PermissionFor(member.Role).CanManagePlatforms {
		return ErrNoPermission
	}
	return nil
}

// RuntimeCredential 模型行 -> connector 运行时凭证视图
func RuntimeCredential(cred *model.PlatformCredential) *platform.Credential {
	extra := map[string]string{}
	if len(cred.Credentials) > 0 {
		// 解析失败按空 Extra 处理
		_ = json.Unmarshal(cred.Credentials, &extra)
	}
	return &platform.Credential{
		TeamID:       cred.TeamID,
		AccountID:    cred.AccountID,
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		Scope:        strings.Join(cred.Scopes, " "),
		Extra:        extra,
	}
}

// splitScopes 平台 scope 分隔符不统一（meta 用逗号，其余用空格）
func splitScopes(s string) pq.StringArray {
	return pq.StringArray(strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ','
	}))
}

// ==================== 错误定义 ====================

var (
	ErrUnknownPlatform    = errors.New("지원하지 않는 플랫폼입니다")
	ErrKeyEntryPlatform   = errors.New("해당 플랫폼은 API 키 등록 방식으로 연결해야 합니다")
	ErrNotKeyEntry        = errors.New("해당 플랫폼은 OAuth 방식으로 연결해야 합니다")
	ErrMissingKeys        = errors.New("API 키와 계정 ID를 입력해 주세요")
	ErrStateInvalid       = errors.New("인증 시간이 초과되었거나 state가 유효하지 않습니다. 다시 시도해 주세요")
	ErrCredentialNotFound = errors.New("플랫폼 연결 정보를 찾을 수 없습니다")
)
