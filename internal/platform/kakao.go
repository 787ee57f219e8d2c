package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"allad_backend_v1/pkg/net"

	"github.com/go-resty/resty/v2"
)

// Kakao Moment (카카오모먼트)
// 标准授权码流程走 kauth；业务请求除 Bearer 外还要带 adAccountId 头
const (
	kakaoAuthURL   = "https://kauth.kakao.com/oauth/authorize"
	kakaoTokenURL  = "https://kauth.kakao.com/oauth/token"
	kakaoAPIBase   = "https://apis.moment.kakao.com/openapi/v4"
	KakaoScopeAds  = "moment_manage"
)

// KakaoConfig Kakao 应用配置
type KakaoConfig struct {
	ClientID     string // REST API Key
	ClientSecret string
	RedirectURI  string
}

type KakaoClient struct {
	cfg        KakaoConfig
	dispatcher net.Dispatcher
	api        *resty.Client
}

var _ Client = (*KakaoClient)(nil)

func NewKakaoClient(cfg KakaoConfig, dispatcher net.Dispatcher) *KakaoClient {
	return &KakaoClient{
		cfg:        cfg,
		dispatcher: dispatcher,
		api: resty.New().
			SetBaseURL(kakaoAPIBase).
			SetTimeout(30 * time.Second).
			SetRetryCount(2),
	}
}

func (k *KakaoClient) Platform() string { return "kakao" }

// ==================== OAuth ====================

func (k *KakaoClient) AuthorizeURL(state, _ string) string {
	q := url.Values{}
	q.Set("client_id", k.cfg.ClientID)
	q.Set("redirect_uri", k.cfg.RedirectURI)
	q.Set("response_type", "code")
	q.Set("scope", KakaoScopeAds)
	q.Set("state", state)
	return kakaoAuthURL + "?" + q.Encode()
}

func (k *KakaoClient) ExchangeCode(ctx context.Context, code, _ string) (*TokenSet, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("client_id", k.cfg.ClientID)
	data.Set("client_secret", k.cfg.ClientSecret)
	data.Set("redirect_uri", k.cfg.RedirectURI)
	data.Set("code", code)
	return k.tokenRequest(ctx, data)
}

func (k *KakaoClient) RefreshToken(ctx context.Context, refreshToken string) (*TokenSet, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("client_id", k.cfg.ClientID)
	data.Set("client_secret", k.cfg.ClientSecret)
	data.Set("refresh_token", refreshToken)

	ts, err := k.tokenRequest(ctx, data)
	if err != nil {
		return nil, err
	}
	// Kakao 只在 refresh_token 快过期时才发新的
	if ts.RefreshToken == "" {
		ts.RefreshToken = refreshToken
	}
	return ts, nil
}

func (k *KakaoClient) tokenRequest(ctx context.Context, data url.Values) (*TokenSet, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", kakaoTokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := k.dispatcher.Send(ctx, k.Platform(), req)
	if err != nil {
		return nil, fmt.Errorf("kakao token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrAuthRevoked
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kakao token endpoint status %d", resp.StatusCode)
	}

	var ts TokenSet
	if err := json.NewDecoder(resp.Body).Decode(&ts); err != nil {
		return nil, fmt.Errorf("kakao token decode: %w", err)
	}
	return &ts, nil
}

// ==================== Campaign API ====================

type kakaoCampaignList struct {
	Content []struct {
		ID     int64  `json:"id"`
		Name   string `json:"name"`
		Config string `json:"config"` // ON / OFF / DEL
		DailyBudgetAmount float64 `json:"dailyBudgetAmount"`
	} `json:"content"`
}

func (k *KakaoClient) ListCampaigns(ctx context.Context, cred *Credential) ([]CampaignData, error) {
	resp, err := k.apiRequest(ctx, cred).Get("/campaigns")
	if err != nil {
		return nil, err
	}
	if err := k.checkAPIError(resp); err != nil {
		return nil, err
	}

	var parsed kakaoCampaignList
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("kakao campaigns decode: %w", err)
	}

	out := make([]CampaignData, 0, len(parsed.Content))
	for _, c := range parsed.Content {
		raw, _ := json.Marshal(c)
		out = append(out, CampaignData{
			PlatformCampaignID: fmt.Sprintf("%d", c.ID),
			Name:               c.Name,
			Status:             kakaoConfigToCommon(c.Config),
			Budget:             c.DailyBudgetAmount,
			Raw:                raw,
		})
	}
	return out, nil
}

func (k *KakaoClient) SetCampaignStatus(ctx context.Context, cred *Credential, campaignID string, active bool) error {
	current, err := k.campaignConfig(ctx, cred, campaignID)
	if err != nil {
		return err
	}
	want := "OFF"
	if active {
		want = "ON"
	}
	if current == want {
		return ErrConflict
	}

	resp, err := k.apiRequest(ctx, cred).
		SetBody(map[string]string{"config": want}).
		Put("/campaigns/" + campaignID + "/onOff")
	if err != nil {
		return err
	}
	return k.checkAPIError(resp)
}

func (k *KakaoClient) SetCampaignBudget(ctx context.Context, cred *Credential, campaignID string, budget float64) error {
	if budget <= 0 {
		return ErrInvalidBudget
	}

	resp, err := k.apiRequest(ctx, cred).
		SetBody(map[string]interface{}{"dailyBudgetAmount": budget}).
		Put("/campaigns/" + campaignID)
	if err != nil {
		return err
	}
	return k.checkAPIError(resp)
}

type kakaoReport struct {
	Data []struct {
		Metrics struct {
			Imp      int64   `json:"imp"`
			Click    int64   `json:"click"`
			ConvPurchase1D int64 `json:"conv_purchase_1d"`
			Cost     float64 `json:"cost"`
			ConvPurchaseValue float64 `json:"conv_purchase_value_1d"`
		} `json:"metrics"`
	} `json:"data"`
}

func (k *KakaoClient) FetchDailyMetrics(ctx context.Context, cred *Credential, campaignID string, date time.Time) (*DailyMetrics, error) {
	day := date.Format("2006-01-02")
	resp, err := k.apiRequest(ctx, cred).
		SetQueryParams(map[string]string{
			"dimension":  "CAMPAIGN",
			"campaignId": campaignID,
			"start":      day,
			"end":        day,
			"metricsGroups": "BASIC,CONVERSION",
		}).
		Get("/campaigns/report")
	if err != nil {
		return nil, err
	}
	if err := k.checkAPIError(resp); err != nil {
		return nil, err
	}

	var parsed kakaoReport
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("kakao report decode: %w", err)
	}
	if len(parsed.Data) == 0 {
		return &DailyMetrics{Date: date, Raw: resp.Body()}, nil
	}

	m := parsed.Data[0].Metrics
	return &DailyMetrics{
		Date:        date,
		Impressions: m.Imp,
		Clicks:      m.Click,
		Conversions: m.ConvPurchase1D,
		Cost:        m.Cost,
		Revenue:     m.ConvPurchaseValue,
		Raw:         resp.Body(),
	}, nil
}

// ==================== 内部方法 ====================

func (k *KakaoClient) apiRequest(ctx context.Context, cred *Credential) *resty.Request {
	return k.api.R().
		SetContext(ctx).
		SetAuthToken(cred.AccessToken).
		SetHeader("adAccountId", cred.AccountID)
}

func (k *KakaoClient) campaignConfig(ctx context.Context, cred *Credential, campaignID string) (string, error) {
	resp, err := k.apiRequest(ctx, cred).Get("/campaigns/" + campaignID)
	if err != nil {
		return "", err
	}
	if err := k.checkAPIError(resp); err != nil {
		return "", err
	}

	var parsed struct {
		Config string `json:"config"`
	}
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return "", err
	}
	return parsed.Config, nil
}

func (k *KakaoClient) checkAPIError(resp *resty.Response) error {
	switch resp.StatusCode() {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized:
		return ErrTokenExpired
	case http.StatusForbidden:
		return ErrPermission
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusNotFound:
		return ErrCampaignAbsent
	default:
		return fmt.Errorf("kakao moment api status %d: %s", resp.StatusCode(), resp.String())
	}
}

func kakaoConfigToCommon(s string) string {
	switch s {
	case "ON":
		return "enabled"
	case "OFF":
		return "paused"
	case "DEL":
		return "removed"
	default:
		return "unknown"
	}
}
