package platform

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// Naver SearchAd (네이버 검색광고)
// 不走授权码流程：API Key + Secret + Customer ID，每个请求用
// HMAC-SHA256(timestamp.method.uri) 签名。凭证由用户直接录入，
// Key 不过期，所以 RefreshToken 原样续期
const naverAPIBase = "https://api.searchad.naver.com"

type NaverClient struct {
	api *resty.Client
}

var _ Client = (*NaverClient)(nil)

func NewNaverClient() *NaverClient {
	return &NaverClient{
		api: resty.New().
			SetBaseURL(naverAPIBase).
			SetTimeout(30 * time.Second).
			SetRetryCount(2),
	}
}

func (n *NaverClient) Platform() string { return "naver" }

// ==================== 凭证生命周期 ====================

// AuthorizeURL Key 录入型平台没有同意页
func (n *NaverClient) AuthorizeURL(_, _ string) string { return "" }

func (n *NaverClient) ExchangeCode(_ context.Context, _, _ string) (*TokenSet, error) {
	return nil, ErrNotSupported
}

// RefreshToken API Key 不过期，原样返回并给一个远期 ExpiresIn
func (n *NaverClient) RefreshToken(_ context.Context, refreshToken string) (*TokenSet, error) {
	return &TokenSet{
		AccessToken:  refreshToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int((365 * 24 * time.Hour).Seconds()),
		TokenType:    "APIKey",
	}, nil
}

// ==================== Campaign API ====================

// 凭证映射：AccessToken=API Key，Extra["secret_key"]、AccountID=Customer ID

type naverCampaign struct {
	CampaignID  string  `json:"nccCampaignId"`
	Name        string  `json:"name"`
	UserLock    bool    `json:"userLock"` // true = 暂停
	DailyBudget float64 `json:"dailyBudget"`
	DeleteFlag  bool    `json:"delFlag"`
}

func (n *NaverClient) ListCampaigns(ctx context.Context, cred *Credential) ([]CampaignData, error) {
	resp, err := n.signedRequest(ctx, cred, "GET", "/ncc/campaigns").Get("/ncc/campaigns")
	if err != nil {
		return nil, err
	}
	if err := n.checkAPIError(resp); err != nil {
		return nil, err
	}

	var parsed []naverCampaign
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("naver campaigns decode: %w", err)
	}

	out := make([]CampaignData, 0, len(parsed))
	for _, c := range parsed {
		raw, _ := json.Marshal(c)
		out = append(out, CampaignData{
			PlatformCampaignID: c.CampaignID,
			Name:               c.Name,
			Status:             naverStatusToCommon(c),
			Budget:             c.DailyBudget,
			Raw:                raw,
		})
	}
	return out, nil
}

func (n *NaverClient) SetCampaignStatus(ctx context.Context, cred *Credential, campaignID string, active bool) error {
	current, err := n.getCampaign(ctx, cred, campaignID)
	if err != nil {
		return err
	}
	// userLock: true = 暂停
	if current.UserLock == !active {
		return ErrConflict
	}

	uri := "/ncc/campaigns/" + campaignID
	resp, err := n.signedRequest(ctx, cred, "PUT", uri).
		SetQueryParam("fields", "userLock").
		SetBody(map[string]interface{}{
			"nccCampaignId": campaignID,
			"userLock":      !active,
		}).
		Put(uri)
	if err != nil {
		return err
	}
	return n.checkAPIError(resp)
}

func (n *NaverClient) SetCampaignBudget(ctx context.Context, cred *Credential, campaignID string, budget float64) error {
	if budget <= 0 {
		return ErrInvalidBudget
	}

	uri := "/ncc/campaigns/" + campaignID
	resp, err := n.signedRequest(ctx, cred, "PUT", uri).
		SetQueryParam("fields", "budget").
		SetBody(map[string]interface{}{
			"nccCampaignId":  campaignID,
			"dailyBudget":    budget,
			"useDailyBudget": true,
		}).
		Put(uri)
	if err != nil {
		return err
	}
	return n.checkAPIError(resp)
}

type naverStatRow struct {
	ImpCnt   int64   `json:"impCnt"`
	ClkCnt   int64   `json:"clkCnt"`
	CcntCnt  int64   `json:"ccnt"`
	SalesAmt float64 `json:"salesAmt"`
	ConvAmt  float64 `json:"convAmt"`
}

func (n *NaverClient) FetchDailyMetrics(ctx context.Context, cred *Credential, campaignID string, date time.Time) (*DailyMetrics, error) {
	day := date.Format("2006-01-02")
	fields, _ := json.Marshal([]string{"impCnt", "clkCnt", "ccnt", "salesAmt", "convAmt"})
	timeRange, _ := json.Marshal(map[string]string{"since": day, "until": day})

	resp, err := n.signedRequest(ctx, cred, "GET", "/stats").
		SetQueryParams(map[string]string{
			"id":        campaignID,
			"fields":    string(fields),
			"timeRange": string(timeRange),
		}).
		Get("/stats")
	if err != nil {
		return nil, err
	}
	if err := n.checkAPIError(resp); err != nil {
		return nil, err
	}

	var parsed struct {
		Data []naverStatRow `json:"data"`
	}
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("naver stats decode: %w", err)
	}
	if len(parsed.Data) == 0 {
		return &DailyMetrics{Date: date, Raw: resp.Body()}, nil
	}

	r := parsed.Data[0]
	return &DailyMetrics{
		Date:        date,
		Impressions: r.ImpCnt,
		Clicks:      r.ClkCnt,
		Conversions: r.CcntCnt,
		// salesAmt 是广告花费（命名有歧义但官方如此），convAmt 是转化金额
		Cost:    r.SalesAmt,
		Revenue: r.ConvAmt,
		Raw:     resp.Body(),
	}, nil
}

// ==================== 内部方法 ====================

// signedRequest 构造带 HMAC 签名头的请求
// 签名串：{timestamp}.{method}.{uri}（uri 不含 query）
func (n *NaverClient) signedRequest(ctx context.Context, cred *Credential, method, uri string) *resty.Request {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	secret := cred.Extra["secret_key"]

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "." + method + "." + uri))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return n.api.R().
		SetContext(ctx).
		SetHeader("X-Timestamp", ts).
		SetHeader("X-API-KEY", cred.AccessToken).
		SetHeader("X-Customer", cred.AccountID).
		SetHeader("X-Signature", sig)
}

func (n *NaverClient) getCampaign(ctx context.Context, cred *Credential, campaignID string) (*naverCampaign, error) {
	uri := "/ncc/campaigns/" + campaignID
	resp, err := n.signedRequest(ctx, cred, "GET", uri).Get(uri)
	if err != nil {
		return nil, err
	}
	if err := n.checkAPIError(resp); err != nil {
		return nil, err
	}

	var c naverCampaign
	if err := json.Unmarshal(resp.Body(), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (n *NaverClient) checkAPIError(resp *resty.Response) error {
	switch resp.StatusCode() {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized:
		// 签名错误或 Key 被回收
		return ErrAuthRevoked
	case http.StatusForbidden:
		return ErrPermission
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusNotFound:
		return ErrCampaignAbsent
	default:
		return fmt.Errorf("naver searchad api status %d: %s", resp.StatusCode(), resp.String())
	}
}

func naverStatusToCommon(c naverCampaign) string {
	if c.DeleteFlag {
		return "removed"
	}
	if c.UserLock {
		return "paused"
	}
	return "enabled"
}
