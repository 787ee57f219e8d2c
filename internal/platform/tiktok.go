package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"allad_backend_v1/pkg/net"

	"github.com/go-resty/resty/v2"
)

// TikTok Ads (Business API v1.3)
// 特殊点：
//   - Access Token 24 小时过期，Refresh Token 365 天
//   - advertiser_id 独立于应用凭证，每次业务请求都要带
//   - 所有响应包一层 {code, message, data}，code != 0 即业务错误
//   - 报表是 dimensions/metrics 双嵌套结构，metrics 值全是字符串
//   - 限流 600 req/min，超出返回 code 40100
const (
	tiktokAuthURL = "https://business-api.tiktok.com/portal/auth"
	tiktokAPIBase = "https://business-api.tiktok.com/open_api/v1.3"

	tiktokCodeOK          = 0
	tiktokCodeRateLimit   = 40100
	tiktokCodeTokenError  = 40105
	tiktokCodeNoAuth      = 40104
	tiktokCodePermission  = 40001
)

// TikTokConfig TikTok 应用配置
type TikTokConfig struct {
	AppID       string
	Secret      string
	RedirectURI string
}

type TikTokClient struct {
	cfg        TikTokConfig
	dispatcher net.Dispatcher
	api        *resty.Client
}

var _ Client = (*TikTokClient)(nil)

func NewTikTokClient(cfg TikTokConfig, dispatcher net.Dispatcher) *TikTokClient {
	return &TikTokClient{
		cfg:        cfg,
		dispatcher: dispatcher,
		api: resty.New().
			SetBaseURL(tiktokAPIBase).
			SetTimeout(30 * time.Second).
			SetRetryCount(2),
	}
}

func (t *TikTokClient) Platform() string { return "tiktok" }

// ==================== OAuth ====================

func (t *TikTokClient) AuthorizeURL(state, _ string) string {
	q := url.Values{}
	q.Set("app_id", t.cfg.AppID)
	q.Set("state", state)
	q.Set("redirect_uri", t.cfg.RedirectURI)
	return tiktokAuthURL + "?" + q.Encode()
}

// tiktokEnvelope 统一响应包
type tiktokEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type tiktokTokenData struct {
	AccessToken             string  `json:"access_token"`
	RefreshToken            string  `json:"refresh_token"`
	AccessTokenExpiresIn    int     `json:"access_token_expire_in"`
	RefreshTokenExpiresIn   int     `json:"refresh_token_expire_in"`
	AdvertiserIDs           []int64 `json:"advertiser_ids"`
	Scope                   []int   `json:"scope"`
}

func (t *TikTokClient) ExchangeCode(ctx context.Context, code, _ string) (*TokenSet, error) {
	return t.tokenRequest(ctx, "/oauth2/access_token/", map[string]string{
		"app_id":    t.cfg.AppID,
		"secret":    t.cfg.Secret,
		"auth_code": code,
	})
}

func (t *TikTokClient) RefreshToken(ctx context.Context, refreshToken string) (*TokenSet, error) {
	return t.tokenRequest(ctx, "/oauth2/refresh_token/", map[string]string{
		"app_id":        t.cfg.AppID,
		"secret":        t.cfg.Secret,
		"refresh_token": refreshToken,
	})
}

func (t *TikTokClient) tokenRequest(ctx context.Context, path string, body map[string]string) (*TokenSet, error) {
	payload, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, "POST", tiktokAPIBase+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.dispatcher.Send(ctx, t.Platform(), req)
	if err != nil {
		return nil, fmt.Errorf("tiktok token request: %w", err)
	}
	defer resp.Body.Close()

	var env tiktokEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("tiktok token decode: %w", err)
	}
	if env.Code != tiktokCodeOK {
		// auth_code 一次性使用，复用/过期都会在这里失败
		if env.Code == tiktokCodeNoAuth || env.Code == tiktokCodeTokenError {
			return nil, ErrAuthRevoked
		}
		return nil, fmt.Errorf("tiktok token error %d: %s", env.Code, env.Message)
	}

	var data tiktokTokenData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, err
	}

	expires := data.AccessTokenExpiresIn
	if expires == 0 {
		expires = int((24 * time.Hour).Seconds())
	}
	return &TokenSet{
		AccessToken:  data.AccessToken,
		RefreshToken: data.RefreshToken,
		ExpiresIn:    expires,
		TokenType:    "Bearer",
	}, nil
}

// ==================== Campaign API ====================

type tiktokCampaignList struct {
	List []struct {
		CampaignID      string  `json:"campaign_id"`
		CampaignName    string  `json:"campaign_name"`
		OperationStatus string  `json:"operation_status"`
		Budget          float64 `json:"budget"`
	} `json:"list"`
}

func (t *TikTokClient) ListCampaigns(ctx context.Context, cred *Credential) ([]CampaignData, error) {
	env, err := t.apiGet(ctx, cred, "/campaign/get/", map[string]string{
		"advertiser_id": cred.AccountID,
		"page_size":     "100",
	})
	if err != nil {
		return nil, err
	}

	var parsed tiktokCampaignList
	if err := json.Unmarshal(env.Data, &parsed); err != nil {
		return nil, fmt.Errorf("tiktok campaigns decode: %w", err)
	}

	out := make([]CampaignData, 0, len(parsed.List))
	for _, c := range parsed.List {
		raw, _ := json.Marshal(c)
		out = append(out, CampaignData{
			PlatformCampaignID: c.CampaignID,
			Name:               c.CampaignName,
			Status:             tiktokStatusToCommon(c.OperationStatus),
			Budget:             c.Budget,
			Raw:                raw,
		})
	}
	return out, nil
}

func (t *TikTokClient) SetCampaignStatus(ctx context.Context, cred *Credential, campaignID string, active bool) error {
	current, err := t.campaignStatus(ctx, cred, campaignID)
	if err != nil {
		return err
	}
	want := "DISABLE"
	if active {
		want = "ENABLE"
	}
	if current == want {
		return ErrConflict
	}

	_, err = t.apiPost(ctx, cred, "/campaign/status/update/", map[string]interface{}{
		"advertiser_id":    cred.AccountID,
		"campaign_ids":     []string{campaignID},
		"operation_status": want,
	})
	return err
}

func (t *TikTokClient) SetCampaignBudget(ctx context.Context, cred *Credential, campaignID string, budget float64) error {
	if budget <= 0 {
		return ErrInvalidBudget
	}

	_, err := t.apiPost(ctx, cred, "/campaign/update/", map[string]interface{}{
		"advertiser_id": cred.AccountID,
		"campaign_id":   campaignID,
		"budget":        budget,
		"budget_mode":   "BUDGET_MODE_DAY",
	})
	return err
}

// tiktokReport dimensions/metrics 双嵌套，metrics 值是字符串
type tiktokReport struct {
	List []struct {
		Dimensions struct {
			CampaignID  string `json:"campaign_id"`
			StatTimeDay string `json:"stat_time_day"`
		} `json:"dimensions"`
		Metrics struct {
			Impressions          string `json:"impressions"`
			Clicks               string `json:"clicks"`
			Conversion           string `json:"conversion"`
			Spend                string `json:"spend"`
			TotalCompletePayment string `json:"total_complete_payment_value"`
		} `json:"metrics"`
	} `json:"list"`
}

func (t *TikTokClient) FetchDailyMetrics(ctx context.Context, cred *Credential, campaignID string, date time.Time) (*DailyMetrics, error) {
	day := date.Format("2006-01-02")
	dims, _ := json.Marshal([]string{"campaign_id", "stat_time_day"})
	metrics, _ := json.Marshal([]string{
		"impressions", "clicks", "conversion", "spend", "total_complete_payment_value",
	})
	filters, _ := json.Marshal([]map[string]interface{}{
		{"field_name": "campaign_ids", "filter_type": "IN", "filter_value": `["` + campaignID + `"]`},
	})

	env, err := t.apiGet(ctx, cred, "/report/integrated/get/", map[string]string{
		"advertiser_id": cred.AccountID,
		"report_type":   "BASIC",
		"data_level":    "AUCTION_CAMPAIGN",
		"dimensions":    string(dims),
		"metrics":       string(metrics),
		"filters":       string(filters),
		"start_date":    day,
		"end_date":      day,
	})
	if err != nil {
		return nil, err
	}

	var parsed tiktokReport
	if err := json.Unmarshal(env.Data, &parsed); err != nil {
		return nil, fmt.Errorf("tiktok report decode: %w", err)
	}
	if len(parsed.List) == 0 {
		return &DailyMetrics{Date: date, Raw: env.Data}, nil
	}

	m := parsed.List[0].Metrics
	impressions, _ := strconv.ParseInt(m.Impressions, 10, 64)
	clicks, _ := strconv.ParseInt(m.Clicks, 10, 64)
	conversions, _ := strconv.ParseInt(m.Conversion, 10, 64)
	cost, _ := strconv.ParseFloat(m.Spend, 64)
	revenue, _ := strconv.ParseFloat(m.TotalCompletePayment, 64)

	return &DailyMetrics{
		Date:        date,
		Impressions: impressions,
		Clicks:      clicks,
		Conversions: conversions,
		Cost:        cost,
		Revenue:     revenue,
		Raw:         env.Data,
	}, nil
}

// ==================== 内部方法 ====================

func (t *TikTokClient) apiGet(ctx context.Context, cred *Credential, path string, params map[string]string) (*tiktokEnvelope, error) {
	resp, err := t.api.R().
		SetContext(ctx).
		SetHeader("Access-Token", cred.AccessToken).
		SetQueryParams(params).
		Get(path)
	if err != nil {
		return nil, err
	}
	return t.unwrap(resp)
}

func (t *TikTokClient) apiPost(ctx context.Context, cred *Credential, path string, body map[string]interface{}) (*tiktokEnvelope, error) {
	resp, err := t.api.R().
		SetContext(ctx).
		SetHeader("Access-Token", cred.AccessToken).
		SetBody(body).
		Post(path)
	if err != nil {
		return nil, err
	}
	return t.unwrap(resp)
}

func (t *TikTokClient) campaignStatus(ctx context.Context, cred *Credential, campaignID string) (string, error) {
	filtering, _ := json.Marshal(map[string]interface{}{"campaign_ids": []string{campaignID}})
	env, err := t.apiGet(ctx, cred, "/campaign/get/", map[string]string{
		"advertiser_id": cred.AccountID,
		"filtering":     string(filtering),
	})
	if err != nil {
		return "", err
	}

	var parsed tiktokCampaignList
	if err := json.Unmarshal(env.Data, &parsed); err != nil {
		return "", err
	}
	if len(parsed.List) == 0 {
		return "", ErrCampaignAbsent
	}
	return parsed.List[0].OperationStatus, nil
}

// unwrap 解信封并映射业务错误码
func (t *TikTokClient) unwrap(resp *resty.Response) (*tiktokEnvelope, error) {
	var env tiktokEnvelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return nil, fmt.Errorf("tiktok response decode: %w", err)
	}

	switch env.Code {
	case tiktokCodeOK:
		return &env, nil
	case tiktokCodeRateLimit:
		return nil, ErrRateLimited
	case tiktokCodeTokenError, tiktokCodeNoAuth:
		return nil, ErrTokenExpired
	case tiktokCodePermission:
		return nil, ErrPermission
	default:
		return nil, fmt.Errorf("tiktok api error %d: %s", env.Code, env.Message)
	}
}

func tiktokStatusToCommon(s string) string {
	switch s {
	case "ENABLE":
		return "enabled"
	case "DISABLE":
		return "paused"
	case "DELETE":
		return "removed"
	default:
		return "unknown"
	}
}
