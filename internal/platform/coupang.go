package platform

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Coupang Ads (쿠팡 광고)
// Naver 同款的 Key 录入型平台：Access Key + Secret Key，CEA HMAC 签名
// 签名串：{signed-date}{method}{path}，signed-date 格式 yymmddTHHMMSSZ (UTC)
const coupangAPIBase = "https://advertising-api.coupang.com"

type CoupangClient struct {
	api *resty.Client
}

var _ Client = (*CoupangClient)(nil)

func NewCoupangClient() *CoupangClient {
	return &CoupangClient{
		api: resty.New().
			SetBaseURL(coupangAPIBase).
			SetTimeout(30 * time.Second).
			SetRetryCount(2),
	}
}

func (c *CoupangClient) Platform() string { return "coupang" }

// ==================== 凭证生命周期 ====================

func (c *CoupangClient) AuthorizeURL(_, _ string) string { return "" }

func (c *CoupangClient) ExchangeCode(_ context.Context, _, _ string) (*TokenSet, error) {
	return nil, ErrNotSupported
}

func (c *CoupangClient) RefreshToken(_ context.Context, refreshToken string) (*TokenSet, error) {
	return &TokenSet{
		AccessToken:  refreshToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int((365 * 24 * time.Hour).Seconds()),
		TokenType:    "APIKey",
	}, nil
}

// ==================== Campaign API ====================

// 凭证映射：AccessToken=Access Key，Extra["secret_key"]、AccountID=광고주 ID

type coupangCampaignList struct {
	Data []struct {
		CampaignID string  `json:"campaignId"`
		Title      string  `json:"title"`
		Status     string  `json:"status"` // OPERATING / PAUSED / DELETED
		Budget     float64 `json:"dailyBudget"`
	} `json:"data"`
}

func (c *CoupangClient) ListCampaigns(ctx context.Context, cred *Credential) ([]CampaignData, error) {
	path := "/v2/campaigns"
	resp, err := c.signedRequest(ctx, cred, "GET", path).Get(path)
	if err != nil {
		return nil, err
	}
	if err := c.checkAPIError(resp); err != nil {
		return nil, err
	}

	var parsed coupangCampaignList
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("coupang campaigns decode: %w", err)
	}

	out := make([]CampaignData, 0, len(parsed.Data))
	for _, cp := range parsed.Data {
		raw, _ := json.Marshal(cp)
		out = append(out, CampaignData{
			PlatformCampaignID: cp.CampaignID,
			Name:               cp.Title,
			Status:             coupangStatusToCommon(cp.Status),
			Budget:             cp.Budget,
			Raw:                raw,
		})
	}
	return out, nil
}

func (c *CoupangClient) SetCampaignStatus(ctx context.Context, cred *Credential, campaignID string, active bool) error {
	current, err := c.campaignStatus(ctx, cred, campaignID)
	if err != nil {
		return err
	}
	want := "PAUSED"
	if active {
		want = "OPERATING"
	}
	if current == want {
		return ErrConflict
	}

	path := "/v2/campaigns/" + campaignID + "/status"
	resp, err := c.signedRequest(ctx, cred, "PUT", path).
		SetBody(map[string]string{"status": want}).
		Put(path)
	if err != nil {
		return err
	}
	return c.checkAPIError(resp)
}

func (c *CoupangClient) SetCampaignBudget(ctx context.Context, cred *Credential, campaignID string, budget float64) error {
	if budget <= 0 {
		return ErrInvalidBudget
	}

	path := "/v2/campaigns/" + campaignID + "/budget"
	resp, err := c.signedRequest(ctx, cred, "PUT", path).
		SetBody(map[string]interface{}{"dailyBudget": budget}).
		Put(path)
	if err != nil {
		return err
	}
	return c.checkAPIError(resp)
}

func (c *CoupangClient) FetchDailyMetrics(ctx context.Context, cred *Credential, campaignID string, date time.Time) (*DailyMetrics, error) {
	day := date.Format("2006-01-02")
	path := "/v2/campaigns/" + campaignID + "/report"
	resp, err := c.signedRequest(ctx, cred, "GET", path).
		SetQueryParams(map[string]string{"startDate": day, "endDate": day}).
		Get(path)
	if err != nil {
		return nil, err
	}
	if err := c.checkAPIError(resp); err != nil {
		return nil, err
	}

	var parsed struct {
		Data []struct {
			Impressions int64   `json:"impressions"`
			Clicks      int64   `json:"clicks"`
			Orders      int64   `json:"orders"`
			AdSpend     float64 `json:"adSpend"`
			GMV         float64 `json:"attributedSales"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("coupang report decode: %w", err)
	}
	if len(parsed.Data) == 0 {
		return &DailyMetrics{Date: date, Raw: resp.Body()}, nil
	}

	r := parsed.Data[0]
	return &DailyMetrics{
		Date:        date,
		Impressions: r.Impressions,
		Clicks:      r.Clicks,
		Conversions: r.Orders,
		Cost:        r.AdSpend,
		Revenue:     r.GMV,
		Raw:         resp.Body(),
	}, nil
}

// ==================== 内部方法 ====================

// signedRequest CEA HMAC 签名头
func (c *CoupangClient) signedRequest(ctx context.Context, cred *Credential, method, path string) *resty.Request {
	signedDate := time.Now().UTC().Format("060102T150405Z")
	secret := cred.Extra["secret_key"]

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedDate + method + path))
	sig := hex.EncodeToString(mac.Sum(nil))

	authorization := fmt.Sprintf(
		"CEA algorithm=HmacSHA256, access-key=%s, signed-date=%s, signature=%s",
		cred.AccessToken, signedDate, sig,
	)

	return c.api.R().
		SetContext(ctx).
		SetHeader("Authorization", authorization).
		SetHeader("X-Coupang-Vendor-Id", cred.AccountID)
}

func (c *CoupangClient) campaignStatus(ctx context.Context, cred *Credential, campaignID string) (string, error) {
	path := "/v2/campaigns/" + campaignID
	resp, err := c.signedRequest(ctx, cred, "GET", path).Get(path)
	if err != nil {
		return "", err
	}
	if err := c.checkAPIError(resp); err != nil {
		return "", err
	}

	var parsed struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return "", err
	}
	return parsed.Data.Status, nil
}

func (c *CoupangClient) checkAPIError(resp *resty.Response) error {
	switch resp.StatusCode() {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized:
		return ErrAuthRevoked
	case http.StatusForbidden:
		return ErrPermission
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusNotFound:
		return ErrCampaignAbsent
	default:
		return fmt.Errorf("coupang ads api status %d: %s", resp.StatusCode(), resp.String())
	}
}

func coupangStatusToCommon(s string) string {
	switch s {
	case "OPERATING":
		return "enabled"
	case "PAUSED":
		return "paused"
	case "DELETED":
		return "removed"
	default:
		return "unknown"
	}
}
