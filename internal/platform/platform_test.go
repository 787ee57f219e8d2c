package platform

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"testing"
)

// ==================== 公共工具 ====================

func TestContainsScope(t *testing.T) {
	tests := []struct {
		scope string
		want  string
		ok    bool
	}{
		{"ads_read ads_management", "ads_management", true},
		{"ads_read,ads_management", "ads_read", true},
		{"ads_read", "ads", false}, // 前缀不算命中
		{"", "ads_read", false},
		{"ads_read", "", false},
		{"moment_manage", "moment_manage", true},
	}
	for _, tt := range tests {
		if got := containsScope(tt.scope, tt.want); got != tt.ok {
			t.Errorf("containsScope(%q, %q) = %v, want %v", tt.scope, tt.want, got, tt.ok)
		}
	}
}

func TestCredential_HasWriteScope(t *testing.T) {
	cred := &Credential{Scope: "ads_read ads_management"}
	if !cred.HasWriteScope("ads_management") {
		t.Errorf("应命中 ads_management")
	}
	if !cred.HasWriteScope("nope", "ads_read") {
		t.Errorf("多候选时任一命中即可")
	}
	if cred.HasWriteScope("ads_write") {
		t.Errorf("不应命中 ads_write")
	}
}

// ==================== Registry ====================

func TestRegistry(t *testing.T) {
	r := NewRegistry(NewNaverClient(), NewCoupangClient())

	if _, ok := r.Get("naver"); !ok {
		t.Errorf("naver 应已注册")
	}
	if _, ok := r.Get("google"); ok {
		t.Errorf("google 未注册不应命中")
	}
	if got := len(r.Platforms()); got != 2 {
		t.Errorf("Platforms 数量 = %d, want 2", got)
	}
}

// ==================== 状态映射 ====================

func TestNaverStatusToCommon(t *testing.T) {
	tests := []struct {
		c    naverCampaign
		want string
	}{
		{naverCampaign{DeleteFlag: true, UserLock: true}, "removed"}, // 删除优先
		{naverCampaign{UserLock: true}, "paused"},
		{naverCampaign{}, "enabled"},
	}
	for _, tt := range tests {
		if got := naverStatusToCommon(tt.c); got != tt.want {
			t.Errorf("naverStatusToCommon(%+v) = %s, want %s", tt.c, got, tt.want)
		}
	}
}

func TestKakaoConfigToCommon(t *testing.T) {
	tests := map[string]string{
		"ON":      "enabled",
		"OFF":     "paused",
		"DEL":     "removed",
		"WEIRD":   "unknown",
		"":        "unknown",
	}
	for in, want := range tests {
		if got := kakaoConfigToCommon(in); got != want {
			t.Errorf("kakaoConfigToCommon(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestCoupangStatusToCommon(t *testing.T) {
	tests := map[string]string{
		"OPERATING": "enabled",
		"PAUSED":    "paused",
		"DELETED":   "removed",
		"OTHER":     "unknown",
	}
	for in, want := range tests {
		if got := coupangStatusToCommon(in); got != want {
			t.Errorf("coupangStatusToCommon(%q) = %s, want %s", in, got, want)
		}
	}
}

// ==================== Key 录入型平台 ====================

func TestKeyEntryPlatforms(t *testing.T) {
	for _, c := range []Client{NewNaverClient(), NewCoupangClient()} {
		if url := c.AuthorizeURL("state", "challenge"); url != "" {
			t.Errorf("%s: Key 录入型平台不应有授权页: %q", c.Platform(), url)
		}

		if _, err := c.ExchangeCode(context.Background(), "code", "verifier"); !errors.Is(err, ErrNotSupported) {
			t.Errorf("%s: ExchangeCode 应返回 ErrNotSupported, got %v", c.Platform(), err)
		}

		// API Key 不过期，刷新时原样返回
		ts, err := c.RefreshToken(context.Background(), "api-key-123")
		if err != nil {
			t.Fatalf("%s: RefreshToken 失败: %v", c.Platform(), err)
		}
		if ts.AccessToken != "api-key-123" || ts.RefreshToken != "api-key-123" {
			t.Errorf("%s: RefreshToken 应原样返回 Key: %+v", c.Platform(), ts)
		}
		if ts.ExpiresIn <= 0 {
			t.Errorf("%s: ExpiresIn 应为远期正值", c.Platform())
		}
	}
}

// ==================== Naver 签名 ====================

func TestNaverSignedRequest(t *testing.T) {
	n := NewNaverClient()
	cred := &Credential{
		AccountID:   "cust-1",
		AccessToken: "api-key",
		Extra:       map[string]string{"secret_key": "secret"},
	}

	req := n.signedRequest(context.Background(), cred, "GET", "/ncc/campaigns")

	if got := req.Header.Get("X-API-KEY"); got != "api-key" {
		t.Errorf("X-API-KEY = %q", got)
	}
	if got := req.Header.Get("X-Customer"); got != "cust-1" {
		t.Errorf("X-Customer = %q", got)
	}

	ts := req.Header.Get("X-Timestamp")
	if ts == "" {
		t.Fatalf("X-Timestamp 缺失")
	}

	// 用同一 timestamp 复算签名
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte(ts + ".GET./ncc/campaigns"))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if got := req.Header.Get("X-Signature"); got != want {
		t.Errorf("X-Signature = %q, want %q", got, want)
	}
}
