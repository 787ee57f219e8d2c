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

// Amazon Ads
// 特殊点：
//   - 授权走 LWA (Login with Amazon)，Token 端点全球统一
//   - 广告 API 按地区分片（NA/EU/FE），host 不同，凭证里必须记录地区
//   - Sponsored Products 用 v3 接口（vnd.spCampaign.v3+json），
//     Sponsored Brands/Display 仍是 v2；本服务只同步 SP
//   - 请求头需要 ClientId 和 Scope（Scope 放 profile_id，不是 OAuth scope）
const (
	amazonAuthURL  = "https://www.amazon.com/ap/oa"
	amazonTokenURL = "https://api.amazon.com/auth/o2/token"

	AmazonScopeCampaign = "advertising::campaign_management"
)

// 地区 -> API host
var amazonRegionHosts = map[string]string{
	"NA": "https://advertising-api.amazon.com",
	"EU": "https://advertising-api-eu.amazon.com",
	"FE": "https://advertising-api-fe.amazon.com",
}

// AmazonConfig Amazon Ads 应用配置
type AmazonConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Region       string // NA / EU / FE
}

type AmazonClient struct {
	cfg        AmazonConfig
	dispatcher net.Dispatcher
	api        *resty.Client
}

var _ Client = (*AmazonClient)(nil)

func NewAmazonClient(cfg AmazonConfig, dispatcher net.Dispatcher) *AmazonClient {
	host, ok := amazonRegionHosts[cfg.Region]
	if !ok {
		host = amazonRegionHosts["NA"]
	}
	return &AmazonClient{
		cfg:        cfg,
		dispatcher: dispatcher,
		api: resty.New().
			SetBaseURL(host).
			SetTimeout(30 * time.Second).
			SetRetryCount(2),
	}
}

func (a *AmazonClient) Platform() string { return "amazon" }

// ==================== OAuth (LWA) ====================

func (a *AmazonClient) AuthorizeURL(state, _ string) string {
	q := url.Values{}
	q.Set("client_id", a.cfg.ClientID)
	q.Set("scope", AmazonScopeCampaign)
	q.Set("response_type", "code")
	q.Set("redirect_uri", a.cfg.RedirectURI)
	q.Set("state", state)
	return amazonAuthURL + "?" + q.Encode()
}

func (a *AmazonClient) ExchangeCode(ctx context.Context, code, _ string) (*TokenSet, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", a.cfg.RedirectURI)
	data.Set("client_id", a.cfg.ClientID)
	data.Set("client_secret", a.cfg.ClientSecret)
	return a.tokenRequest(ctx, data)
}

func (a *AmazonClient) RefreshToken(ctx context.Context, refreshToken string) (*TokenSet, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	data.Set("client_id", a.cfg.ClientID)
	data.Set("client_secret", a.cfg.ClientSecret)

	ts, err := a.tokenRequest(ctx, data)
	if err != nil {
		return nil, err
	}
	if ts.RefreshToken == "" {
		ts.RefreshToken = refreshToken
	}
	return ts, nil
}

func (a *AmazonClient) tokenRequest(ctx context.Context, data url.Values) (*TokenSet, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", amazonTokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.dispatcher.Send(ctx, a.Platform(), req)
	if err != nil {
		return nil, fmt.Errorf("amazon token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrAuthRevoked
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("amazon token endpoint status %d", resp.StatusCode)
	}

	var ts TokenSet
	if err := json.NewDecoder(resp.Body).Decode(&ts); err != nil {
		return nil, fmt.Errorf("amazon token decode: %w", err)
	}
	return &ts, nil
}

// ==================== Campaign API (Sponsored Products v3) ====================

type amazonCampaignList struct {
	Campaigns []struct {
		CampaignID string `json:"campaignId"`
		Name       string `json:"name"`
		State      string `json:"state"`
		Budget     struct {
			Budget     float64 `json:"budget"`
			BudgetType string  `json:"budgetType"`
		} `json:"budget"`
	} `json:"campaigns"`
}

func (a *AmazonClient) ListCampaigns(ctx context.Context, cred *Credential) ([]CampaignData, error) {
	resp, err := a.apiRequest(ctx, cred).
		SetHeader("Content-Type", "application/vnd.spCampaign.v3+json").
		SetHeader("Accept", "application/vnd.spCampaign.v3+json").
		SetBody(map[string]interface{}{"maxResults": 100}).
		Post("/sp/campaigns/list")
	if err != nil {
		return nil, err
	}
	if err := a.checkAPIError(resp); err != nil {
		return nil, err
	}

	var parsed amazonCampaignList
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("amazon campaigns decode: %w", err)
	}

	out := make([]CampaignData, 0, len(parsed.Campaigns))
	for _, c := range parsed.Campaigns {
		raw, _ := json.Marshal(c)
		out = append(out, CampaignData{
			PlatformCampaignID: c.CampaignID,
			Name:               c.Name,
			Status:             amazonStateToCommon(c.State),
			Budget:             c.Budget.Budget,
			Raw:                raw,
		})
	}
	return out, nil
}

func (a *AmazonClient) SetCampaignStatus(ctx context.Context, cred *Credential, campaignID string, active bool) error {
	if !cred.HasWriteScope(AmazonScopeCampaign) {
		return ErrPermission
	}

	current, err := a.campaignState(ctx, cred, campaignID)
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

	return a.updateCampaign(ctx, cred, map[string]interface{}{
		"campaignId": campaignID,
		"state":      want,
	})
}

func (a *AmazonClient) SetCampaignBudget(ctx context.Context, cred *Credential, campaignID string, budget float64) error {
	if budget <= 0 {
		return ErrInvalidBudget
	}
	if !cred.HasWriteScope(AmazonScopeCampaign) {
		return ErrPermission
	}

	return a.updateCampaign(ctx, cred, map[string]interface{}{
		"campaignId": campaignID,
		"budget": map[string]interface{}{
			"budget":     budget,
			"budgetType": "DAILY",
		},
	})
}

// amazonReportRow 日报行
type amazonReportRow struct {
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	Purchases   int64   `json:"purchases30d"`
	Cost        float64 `json:"cost"`
	Sales       float64 `json:"sales30d"`
}

// FetchDailyMetrics 走 v3 异步报表：创建 -> 轮询 -> 下载
// 报表生成是异步的，这里做有限次短轮询，超过即放弃本轮，下个同步周期重试
func (a *AmazonClient) FetchDailyMetrics(ctx context.Context, cred *Credential, campaignID string, date time.Time) (*DailyMetrics, error) {
	day := date.Format("2006-01-02")

	// 1. 创建报表请求
	createResp, err := a.apiRequest(ctx, cred).
		SetHeader("Content-Type", "application/vnd.createasyncreportrequest.v3+json").
		SetBody(map[string]interface{}{
			"startDate": day,
			"endDate":   day,
			"configuration": map[string]interface{}{
				"adProduct":  "SPONSORED_PRODUCTS",
				"reportTypeId": "spCampaigns",
				"groupBy":    []string{"campaign"},
				"columns":    []string{"impressions", "clicks", "cost", "purchases30d", "sales30d"},
				"filters": []map[string]interface{}{
					{"field": "campaignId", "values": []string{campaignID}},
				},
				"timeUnit": "DAILY",
				"format":   "GZIP_JSON",
			},
		}).
		Post("/reporting/reports")
	if err != nil {
		return nil, err
	}
	if err := a.checkAPIError(createResp); err != nil {
		return nil, err
	}

	var created struct {
		ReportID string `json:"reportId"`
	}
	if err := json.Unmarshal(createResp.Body(), &created); err != nil {
		return nil, fmt.Errorf("amazon report create decode: %w", err)
	}

	// 2. 轮询报表状态
	for i := 0; i < 5; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}

		statusResp, err := a.apiRequest(ctx, cred).Get("/reporting/reports/" + created.ReportID)
		if err != nil {
			return nil, err
		}
		if err := a.checkAPIError(statusResp); err != nil {
			return nil, err
		}

		var status struct {
			Status string `json:"status"`
			URL    string `json:"url"`
		}
		if err := json.Unmarshal(statusResp.Body(), &status); err != nil {
			return nil, err
		}
		if status.Status != "COMPLETED" {
			continue
		}

		// 3. 下载报表
		return a.downloadReport(ctx, status.URL, date)
	}

	return nil, fmt.Errorf("amazon report %s not ready", created.ReportID)
}

// ==================== 内部方法 ====================

func (a *AmazonClient) apiRequest(ctx context.Context, cred *Credential) *resty.Request {
	req := a.api.R().
		SetContext(ctx).
		SetAuthToken(cred.AccessToken).
		SetHeader("Amazon-Advertising-API-ClientId", a.cfg.ClientID)
	// Scope 头放的是 profile_id（广告账号），不是 OAuth scope
	if profile, ok := cred.Extra["profile_id"]; ok && profile != "" {
		req.SetHeader("Amazon-Advertising-API-Scope", profile)
	}
	return req
}

func (a *AmazonClient) campaignState(ctx context.Context, cred *Credential, campaignID string) (string, error) {
	resp, err := a.apiRequest(ctx, cred).
		SetHeader("Content-Type", "application/vnd.spCampaign.v3+json").
		SetBody(map[string]interface{}{
			"campaignIdFilter": map[string]interface{}{"include": []string{campaignID}},
		}).
		Post("/sp/campaigns/list")
	if err != nil {
		return "", err
	}
	if err := a.checkAPIError(resp); err != nil {
		return "", err
	}

	var parsed amazonCampaignList
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return "", err
	}
	if len(parsed.Campaigns) == 0 {
		return "", ErrCampaignAbsent
	}
	return parsed.Campaigns[0].State, nil
}

func (a *AmazonClient) updateCampaign(ctx context.Context, cred *Credential, campaign map[string]interface{}) error {
	resp, err := a.apiRequest(ctx, cred).
		SetHeader("Content-Type", "application/vnd.spCampaign.v3+json").
		SetBody(map[string]interface{}{
			"campaigns": []map[string]interface{}{campaign},
		}).
		Put("/sp/campaigns")
	if err != nil {
		return err
	}
	return a.checkAPIError(resp)
}

func (a *AmazonClient) downloadReport(ctx context.Context, reportURL string, date time.Time) (*DailyMetrics, error) {
	// 报表下载链接是预签名 S3 地址，不带鉴权头
	resp, err := resty.New().SetTimeout(30 * time.Second).R().
		SetContext(ctx).
		Get(reportURL)
	if err != nil {
		return nil, err
	}

	var rows []amazonReportRow
	if err := json.Unmarshal(resp.Body(), &rows); err != nil {
		return nil, fmt.Errorf("amazon report decode: %w", err)
	}
	if len(rows) == 0 {
		return &DailyMetrics{Date: date, Raw: resp.Body()}, nil
	}

	r := rows[0]
	return &DailyMetrics{
		Date:        date,
		Impressions: r.Impressions,
		Clicks:      r.Clicks,
		Conversions: r.Purchases,
		Cost:        r.Cost,
		Revenue:     r.Sales,
		Raw:         resp.Body(),
	}, nil
}

func (a *AmazonClient) checkAPIError(resp *resty.Response) error {
	switch resp.StatusCode() {
	case http.StatusOK, http.StatusAccepted, http.StatusMultiStatus:
		return nil
	case http.StatusUnauthorized:
		return ErrTokenExpired
	case http.StatusForbidden:
		return ErrPermission
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return fmt.Errorf("amazon ads api status %d: %s", resp.StatusCode(), resp.String())
	}
}

func amazonStateToCommon(s string) string {
	switch strings.ToUpper(s) {
	case "ENABLED":
		return "enabled"
	case "PAUSED":
		return "paused"
	case "ARCHIVED":
		return "removed"
	default:
		return "unknown"
	}
}
