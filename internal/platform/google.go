package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"allad_backend_v1/pkg/net"

	"github.com/go-resty/resty/v2"
)

// Google Ads
// 特殊点：
//   - Developer Token 有审批等级（Basic/Standard），等级不足时 API 返回
//     DEVELOPER_TOKEN_NOT_APPROVED，统一映射为 ErrPermission
//   - MCC（管理账号）下操作子账号时需要额外的 login-customer-id 请求头，
//     与实际操作的 customer_id 不同，从 Credential.Extra["login_customer_id"] 取
//   - 花费类指标以 micros 计（1 美元 = 1_000_000 micros）
const (
	googleAuthURL  = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL = "https://oauth2.googleapis.com/token"
	googleAdsBase  = "https://googleads.googleapis.com/v14"

	// GoogleAdsScope 读写共用同一个 scope
	GoogleAdsScope = "https://www.googleapis.com/auth/adwords"
)

// GoogleConfig Google Ads 应用配置
type GoogleConfig struct {
	ClientID       string
	ClientSecret   string
	RedirectURI    string
	DeveloperToken string
}

type GoogleClient struct {
	cfg        GoogleConfig
	dispatcher net.Dispatcher
	api        *resty.Client
}

var _ Client = (*GoogleClient)(nil)

func NewGoogleClient(cfg GoogleConfig, dispatcher net.Dispatcher) *GoogleClient {
	return &GoogleClient{
		cfg:        cfg,
		dispatcher: dispatcher,
		api: resty.New().
			SetBaseURL(googleAdsBase).
			SetTimeout(30 * time.Second).
			SetRetryCount(2),
	}
}

func (g *GoogleClient) Platform() string { return "google" }

// ==================== OAuth ====================

// AuthorizeURL 生成同意页链接
// access_type=offline + prompt=consent 保证发放 refresh_token
func (g *GoogleClient) AuthorizeURL(state, codeChallenge string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", g.cfg.ClientID)
	q.Set("redirect_uri", g.cfg.RedirectURI)
	q.Set("scope", GoogleAdsScope)
	q.Set("state", state)
	q.Set("access_type", "offline")
	q.Set("prompt", "consent")
	if codeChallenge != "" {
		q.Set("code_challenge", codeChallenge)
		q.Set("code_challenge_method", "S256")
	}
	return googleAuthURL + "?" + q.Encode()
}

func (g *GoogleClient) ExchangeCode(ctx context.Context, code, codeVerifier string) (*TokenSet, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("client_id", g.cfg.ClientID)
	data.Set("client_secret", g.cfg.ClientSecret)
	data.Set("redirect_uri", g.cfg.RedirectURI)
	data.Set("code", code)
	if codeVerifier != "" {
		data.Set("code_verifier", codeVerifier)
	}
	return g.tokenRequest(ctx, data)
}

func (g *GoogleClient) RefreshToken(ctx context.Context, refreshToken string) (*TokenSet, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("client_id", g.cfg.ClientID)
	data.Set("client_secret", g.cfg.ClientSecret)
	data.Set("refresh_token", refreshToken)

	ts, err := g.tokenRequest(ctx, data)
	if err != nil {
		return nil, err
	}
	// Google 刷新时不返回新的 refresh_token，保留旧的
	if ts.RefreshToken == "" {
		ts.RefreshToken = refreshToken
	}
	return ts, nil
}

// tokenRequest 走 dispatcher 请求 Token 端点
func (g *GoogleClient) tokenRequest(ctx context.Context, data url.Values) (*TokenSet, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", googleTokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.dispatcher.Send(ctx, g.Platform(), req)
	if err != nil {
		return nil, fmt.Errorf("google token request: %w", err)
	}
	defer resp.Body.Close()

	// 400/401 表示授权码失效或 refresh_token 被撤销，不可恢复
	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrAuthRevoked
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google token endpoint status %d", resp.StatusCode)
	}

	var ts TokenSet
	if err := json.NewDecoder(resp.Body).Decode(&ts); err != nil {
		return nil, fmt.Errorf("google token decode: %w", err)
	}
	return &ts, nil
}

// ==================== Campaign API ====================

// searchStream 响应结构（只取用到的字段）
type googleSearchResp struct {
	Results []struct {
		Campaign struct {
			ID     json.Number `json:"id"`
			Name   string      `json:"name"`
			Status string      `json:"status"`
		} `json:"campaign"`
		CampaignBudget struct {
			AmountMicros json.Number `json:"amountMicros"`
			ResourceName string      `json:"resourceName"`
		} `json:"campaignBudget"`
		Metrics struct {
			Impressions json.Number `json:"impressions"`
			Clicks      json.Number `json:"clicks"`
			Conversions json.Number `json:"conversions"`
			CostMicros  json.Number `json:"costMicros"`
			// conversions_value 是平台币种金额
			ConversionsValue json.Number `json:"conversionsValue"`
		} `json:"metrics"`
	} `json:"results"`
}

func (g *GoogleClient) ListCampaigns(ctx context.Context, cred *Credential) ([]CampaignData, error) {
	query := `SELECT campaign.id, campaign.name, campaign.status,
		campaign_budget.amount_micros, campaign_budget.resource_name
		FROM campaign ORDER BY campaign.id`

	body, err := g.search(ctx, cred, query)
	if err != nil {
		return nil, err
	}

	var parsed googleSearchResp
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("google campaigns decode: %w", err)
	}

	out := make([]CampaignData, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		raw, _ := json.Marshal(r)
		out = append(out, CampaignData{
			PlatformCampaignID: r.Campaign.ID.String(),
			Name:               r.Campaign.Name,
			Status:             googleStatusToCommon(r.Campaign.Status),
			Budget:             microsToUnit(r.CampaignBudget.AmountMicros),
			Raw:                raw,
		})
	}
	return out, nil
}

func (g *GoogleClient) SetCampaignStatus(ctx context.Context, cred *Credential, campaignID string, active bool) error {
	if !cred.HasWriteScope(GoogleAdsScope) {
		return ErrPermission
	}

	// 先查当前状态，平台侧已处于目标状态时按冲突处理
	current, err := g.campaignStatus(ctx, cred, campaignID)
	if err != nil {
		return err
	}
	want := "PAUSED"
	if active {
		want = "ENABLED"
	}
	if current == want {
		return ErrConflict
	}

	payload := map[string]interface{}{
		"operations": []map[string]interface{}{{
			"updateMask": "status",
			"update": map[string]string{
				"resourceName": fmt.Sprintf("customers/%s/campaigns/%s", cred.AccountID, campaignID),
				"status":       want,
			},
		}},
	}

	resp, err := g.apiRequest(ctx, cred).
		SetBody(payload).
		Post(fmt.Sprintf("/customers/%s/campaigns:mutate", cred.AccountID))
	if err != nil {
		return err
	}
	return g.checkAPIError(resp)
}

func (g *GoogleClient) SetCampaignBudget(ctx context.Context, cred *Credential, campaignID string, budget float64) error {
	if budget <= 0 {
		return ErrInvalidBudget
	}
	if !cred.HasWriteScope(GoogleAdsScope) {
		return ErrPermission
	}

	// 预算挂在独立的 campaign_budget 资源上，先查出 resource_name
	budgetRes, err := g.campaignBudgetResource(ctx, cred, campaignID)
	if err != nil {
		return err
	}

	payload := map[string]interface{}{
		"operations": []map[string]interface{}{{
			"updateMask": "amount_micros",
			"update": map[string]interface{}{
				"resourceName": budgetRes,
				"amountMicros": strconv.FormatInt(int64(budget*1e6), 10),
			},
		}},
	}

	resp, err := g.apiRequest(ctx, cred).
		SetBody(payload).
		Post(fmt.Sprintf("/customers/%s/campaignBudgets:mutate", cred.AccountID))
	if err != nil {
		return err
	}
	return g.checkAPIError(resp)
}

func (g *GoogleClient) FetchDailyMetrics(ctx context.Context, cred *Credential, campaignID string, date time.Time) (*DailyMetrics, error) {
	day := date.Format("2006-01-02")
	query := fmt.Sprintf(`SELECT metrics.impressions, metrics.clicks,
		metrics.conversions, metrics.cost_micros, metrics.conversions_value
		FROM campaign WHERE campaign.id = %s AND segments.date = '%s'`, campaignID, day)

	body, err := g.search(ctx, cred, query)
	if err != nil {
		return nil, err
	}

	var parsed googleSearchResp
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("google metrics decode: %w", err)
	}
	if len(parsed.Results) == 0 {
		// 当天无投放，按零值返回
		return &DailyMetrics{Date: date, Raw: body}, nil
	}

	m := parsed.Results[0].Metrics
	impressions, _ := m.Impressions.Int64()
	clicks, _ := m.Clicks.Int64()
	// conversions 是浮点（归因可产生小数），落库取整
	convF, _ := m.Conversions.Float64()
	revenue, _ := m.ConversionsValue.Float64()

	return &DailyMetrics{
		Date:        date,
		Impressions: impressions,
		Clicks:      clicks,
		Conversions: int64(convF),
		Cost:        microsToUnit(m.CostMicros),
		Revenue:     revenue,
		Raw:         body,
	}, nil
}

// ==================== 内部方法 ====================

// apiRequest 构造带鉴权头的请求；MCC 场景附加 login-customer-id
func (g *GoogleClient) apiRequest(ctx context.Context, cred *Credential) *resty.Request {
	req := g.api.R().
		SetContext(ctx).
		SetAuthToken(cred.AccessToken).
		SetHeader("developer-token", g.cfg.DeveloperToken)
	if login, ok := cred.Extra["login_customer_id"]; ok && login != "" {
		req.SetHeader("login-customer-id", login)
	}
	return req
}

func (g *GoogleClient) search(ctx context.Context, cred *Credential, query string) ([]byte, error) {
	resp, err := g.apiRequest(ctx, cred).
		SetBody(map[string]string{"query": query}).
		Post(fmt.Sprintf("/customers/%s/googleAds:search", cred.AccountID))
	if err != nil {
		return nil, err
	}
	if err := g.checkAPIError(resp); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

func (g *GoogleClient) campaignStatus(ctx context.Context, cred *Credential, campaignID string) (string, error) {
	query := fmt.Sprintf("SELECT campaign.status FROM campaign WHERE campaign.id = %s", campaignID)
	body, err := g.search(ctx, cred, query)
	if err != nil {
		return "", err
	}
	var parsed googleSearchResp
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Results) == 0 {
		return "", ErrCampaignAbsent
	}
	return parsed.Results[0].Campaign.Status, nil
}

func (g *GoogleClient) campaignBudgetResource(ctx context.Context, cred *Credential, campaignID string) (string, error) {
	query := fmt.Sprintf("SELECT campaign_budget.resource_name FROM campaign WHERE campaign.id = %s", campaignID)
	body, err := g.search(ctx, cred, query)
	if err != nil {
		return "", err
	}
	var parsed googleSearchResp
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Results) == 0 {
		return "", ErrCampaignAbsent
	}
	return parsed.Results[0].CampaignBudget.ResourceName, nil
}

// checkAPIError 统一处理 Google Ads API 错误码
func (g *GoogleClient) checkAPIError(resp *resty.Response) error {
	switch resp.StatusCode() {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized:
		return ErrTokenExpired
	case http.StatusForbidden:
		// Developer Token 等级不足 / 无账号访问权 都在这里
		return ErrPermission
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return fmt.Errorf("google ads api status %d: %s", resp.StatusCode(), resp.String())
	}
}

func googleStatusToCommon(s string) string {
	switch s {
	case "ENABLED":
		return "enabled"
	case "PAUSED":
		return "paused"
	case "REMOVED":
		return "removed"
	default:
		return "unknown"
	}
}

func microsToUnit(n json.Number) float64 {
	v, _ := n.Int64()
	return float64(v) / 1e6
}
