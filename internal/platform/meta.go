package platform

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"allad_backend_v1/pkg/net"

	"github.com/go-resty/resty/v2"
)

// Meta Ads (Graph API)
// 特殊点：
//   - 没有 refresh_token：短期用户 Token 通过 fb_exchange_token 换成长期
//     Token（约 60 天）；System User Token 不过期，RefreshToken 对其是 no-op
//   - 服务端调用要求附带 appsecret_proof = HMAC-SHA256(access_token, app_secret)
//   - Insights 指标全部是字符串类型，需要在映射层解析
//   - 预算以分（cents）为单位的字符串
const (
	metaGraphVersion = "v23.0"
	metaAuthURL      = "https://www.facebook.com/" + metaGraphVersion + "/dialog/oauth"
	metaGraphBase    = "https://graph.facebook.com/" + metaGraphVersion

	MetaScopeAdsManagement = "ads_management"
	MetaScopeAdsRead       = "ads_read"
	MetaScopeBusiness      = "business_management"
)

// MetaConfig Meta 应用配置
// AppSecret 只能来自环境变量配置，禁止写默认值
type MetaConfig struct {
	AppID       string
	AppSecret   string
	RedirectURI string
}

type MetaClient struct {
	cfg        MetaConfig
	dispatcher net.Dispatcher
	api        *resty.Client
}

var _ Client = (*MetaClient)(nil)

func NewMetaClient(cfg MetaConfig, dispatcher net.Dispatcher) *MetaClient {
	return &MetaClient{
		cfg:        cfg,
		dispatcher: dispatcher,
		api: resty.New().
			SetBaseURL(metaGraphBase).
			SetTimeout(30 * time.Second).
			SetRetryCount(2),
	}
}

func (m *MetaClient) Platform() string { return "facebook" }

// ==================== OAuth ====================

func (m *MetaClient) AuthorizeURL(state, _ string) string {
	// Meta 不支持 PKCE，codeChallenge 忽略
	q := url.Values{}
	q.Set("client_id", m.cfg.AppID)
	q.Set("redirect_uri", m.cfg.RedirectURI)
	q.Set("scope", MetaScopeAdsManagement+","+MetaScopeAdsRead+","+MetaScopeBusiness)
	q.Set("state", state)
	q.Set("response_type", "code")
	return metaAuthURL + "?" + q.Encode()
}

func (m *MetaClient) ExchangeCode(ctx context.Context, code, _ string) (*TokenSet, error) {
	q := url.Values{}
	q.Set("client_id", m.cfg.AppID)
	q.Set("client_secret", m.cfg.AppSecret)
	q.Set("redirect_uri", m.cfg.RedirectURI)
	q.Set("code", code)

	short, err := m.tokenRequest(ctx, q)
	if err != nil {
		return nil, err
	}

	// 立即换成长期 Token，短期 Token 只有数小时寿命
	return m.exchangeLongLived(ctx, short.AccessToken)
}

// RefreshToken Meta 语义下的“刷新”= 用当前 Token 再换一次长期 Token
// System User Token 无过期时间，交换接口会原样续期
func (m *MetaClient) RefreshToken(ctx context.Context, accessToken string) (*TokenSet, error) {
	return m.exchangeLongLived(ctx, accessToken)
}

func (m *MetaClient) exchangeLongLived(ctx context.Context, token string) (*TokenSet, error) {
	q := url.Values{}
	q.Set("grant_type", "fb_exchange_token")
	q.Set("client_id", m.cfg.AppID)
	q.Set("client_secret", m.cfg.AppSecret)
	q.Set("fb_exchange_token", token)

	ts, err := m.tokenRequest(ctx, q)
	if err != nil {
		return nil, err
	}
	// 长期 Token 约 60 天；接口未返回时兜底
	if ts.ExpiresIn == 0 {
		ts.ExpiresIn = int((60 * 24 * time.Hour).Seconds())
	}
	// Meta 将当前 Token 同时作为后续“刷新”的输入
	ts.RefreshToken = ts.AccessToken
	return ts, nil
}

func (m *MetaClient) tokenRequest(ctx context.Context, q url.Values) (*TokenSet, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", metaGraphBase+"/oauth/access_token?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := m.dispatcher.Send(ctx, m.Platform(), req)
	if err != nil {
		return nil, fmt.Errorf("meta token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrAuthRevoked
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("meta token endpoint status %d", resp.StatusCode)
	}

	var ts TokenSet
	if err := json.NewDecoder(resp.Body).Decode(&ts); err != nil {
		return nil, fmt.Errorf("meta token decode: %w", err)
	}
	return &ts, nil
}

// ==================== Campaign API ====================

type metaCampaignList struct {
	Data []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Status      string `json:"status"`
		DailyBudget string `json:"daily_budget"` // 分，字符串
	} `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

func (m *MetaClient) ListCampaigns(ctx context.Context, cred *Credential) ([]CampaignData, error) {
	resp, err := m.apiRequest(ctx, cred).
		SetQueryParam("fields", "id,name,status,daily_budget").
		SetQueryParam("limit", "100").
		Get(fmt.Sprintf("/act_%s/campaigns", cred.AccountID))
	if err != nil {
		return nil, err
	}
	if err := m.checkAPIError(resp); err != nil {
		return nil, err
	}

	var parsed metaCampaignList
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("meta campaigns decode: %w", err)
	}

	out := make([]CampaignData, 0, len(parsed.Data))
	for _, c := range parsed.Data {
		raw, _ := json.Marshal(c)
		budget, _ := strconv.ParseFloat(c.DailyBudget, 64)
		out = append(out, CampaignData{
			PlatformCampaignID: c.ID,
			Name:               c.Name,
			Status:             metaStatusToCommon(c.Status),
			Budget:             budget / 100, // 分 -> 元
			Raw:                raw,
		})
	}
	return out, nil
}

func (m *MetaClient) SetCampaignStatus(ctx context.Context, cred *Credential, campaignID string, active bool) error {
	if !cred.HasWriteScope(MetaScopeAdsManagement) {
		return ErrPermission
	}

	current, err := m.campaignStatus(ctx, cred, campaignID)
	if err != nil {
		return err
	}
	want := "PAUSED"
	if active {
		want = "ACTIVE"
	}
	if current == want {
		return ErrConflict
	}

	resp, err := m.apiRequest(ctx, cred).
		SetFormData(map[string]string{"status": want}).
		Post("/" + campaignID)
	if err != nil {
		return err
	}
	return m.checkAPIError(resp)
}

func (m *MetaClient) SetCampaignBudget(ctx context.Context, cred *Credential, campaignID string, budget float64) error {
	if budget <= 0 {
		return ErrInvalidBudget
	}
	if !cred.HasWriteScope(MetaScopeAdsManagement) {
		return ErrPermission
	}

	resp, err := m.apiRequest(ctx, cred).
		SetFormData(map[string]string{
			// 元 -> 分
			"daily_budget": strconv.FormatInt(int64(budget*100), 10),
		}).
		Post("/" + campaignID)
	if err != nil {
		return err
	}
	return m.checkAPIError(resp)
}

// metaInsights Insights 指标全是字符串，映射时解析
type metaInsights struct {
	Data []struct {
		Impressions string `json:"impressions"`
		Clicks      string `json:"clicks"`
		Spend       string `json:"spend"`
		Actions     []struct {
			ActionType string `json:"action_type"`
			Value      string `json:"value"`
		} `json:"actions"`
		ActionValues []struct {
			ActionType string `json:"action_type"`
			Value      string `json:"value"`
		} `json:"action_values"`
	} `json:"data"`
}

func (m *MetaClient) FetchDailyMetrics(ctx context.Context, cred *Credential, campaignID string, date time.Time) (*DailyMetrics, error) {
	day := date.Format("2006-01-02")
	resp, err := m.apiRequest(ctx, cred).
		SetQueryParam("fields", "impressions,clicks,spend,actions,action_values").
		SetQueryParam("time_range", fmt.Sprintf(`{"since":"%s","until":"%s"}`, day, day)).
		Get("/" + campaignID + "/insights")
	if err != nil {
		return nil, err
	}
	if err := m.checkAPIError(resp); err != nil {
		return nil, err
	}

	var parsed metaInsights
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("meta insights decode: %w", err)
	}
	if len(parsed.Data) == 0 {
		return &DailyMetrics{Date: date, Raw: resp.Body()}, nil
	}

	d := parsed.Data[0]
	impressions, _ := strconv.ParseInt(d.Impressions, 10, 64)
	clicks, _ := strconv.ParseInt(d.Clicks, 10, 64)
	cost, _ := strconv.ParseFloat(d.Spend, 64)

	var conversions int64
	var revenue float64
	for _, a := range d.Actions {
		if a.ActionType == "purchase" || a.ActionType == "offsite_conversion" {
			v, _ := strconv.ParseInt(a.Value, 10, 64)
			conversions += v
		}
	}
	for _, av := range d.ActionValues {
		if av.ActionType == "purchase" {
			v, _ := strconv.ParseFloat(av.Value, 64)
			revenue += v
		}
	}

	return &DailyMetrics{
		Date:        date,
		Impressions: impressions,
		Clicks:      clicks,
		Conversions: conversions,
		Cost:        cost,
		Revenue:     revenue,
		Raw:         resp.Body(),
	}, nil
}

// ==================== 内部方法 ====================

// apiRequest 附带 access_token + appsecret_proof
func (m *MetaClient) apiRequest(ctx context.Context, cred *Credential) *resty.Request {
	return m.api.R().
		SetContext(ctx).
		SetQueryParam("access_token", cred.AccessToken).
		SetQueryParam("appsecret_proof", m.appSecretProof(cred.AccessToken))
}

// appSecretProof HMAC-SHA256(access_token, app_secret)
func (m *MetaClient) appSecretProof(token string) string {
	mac := hmac.New(sha256.New, []byte(m.cfg.AppSecret))
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

func (m *MetaClient) campaignStatus(ctx context.Context, cred *Credential, campaignID string) (string, error) {
	resp, err := m.apiRequest(ctx, cred).
		SetQueryParam("fields", "status").
		Get("/" + campaignID)
	if err != nil {
		return "", err
	}
	if err := m.checkAPIError(resp); err != nil {
		return "", err
	}

	var parsed struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return "", err
	}
	return parsed.Status, nil
}

// checkAPIError Graph API 的错误都带 HTTP 400，细分错误码在 body 里
func (m *MetaClient) checkAPIError(resp *resty.Response) error {
	if resp.StatusCode() == http.StatusOK {
		return nil
	}

	var body struct {
		Error struct {
			Code    int    `json:"code"`
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(resp.Body(), &body)

	switch body.Error.Code {
	case 190: // invalid token
		return ErrTokenExpired
	case 10, 200, 294: // permission 系列
		return ErrPermission
	case 4, 17, 32: // throttling 系列
		return ErrRateLimited
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		return ErrTokenExpired
	}
	return fmt.Errorf("meta graph api status %d: %s", resp.StatusCode(), body.Error.Message)
}

func metaStatusToCommon(s string) string {
	switch s {
	case "ACTIVE":
		return "enabled"
	case "PAUSED":
		return "paused"
	case "DELETED", "ARCHIVED":
		return "removed"
	default:
		return "unknown"
	}
}
