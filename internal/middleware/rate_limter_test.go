package middleware

import (
	"testing"
	"time"
)

func TestSyncRateLimiter_Check(t *testing.T) {
	limiter := &SyncRateLimiter{}
	key := TeamSyncKey(1, SyncTypeCampaign)

	// 首次执行应放行
	result := limiter.Check(key, 100*time.Millisecond)
	if !result.Allowed {
		t.Fatalf("首次检查应放行")
	}

	// 冷却期内应拒绝并返回剩余时间
	result = limiter.Check(key, 100*time.Millisecond)
	if result.Allowed {
		t.Errorf("冷却期内应拒绝")
	}
	if result.RetryAfter <= 0 || result.RetryAfter > 100*time.Millisecond {
		t.Errorf("RetryAfter = %v, 应在 (0, 100ms] 区间", result.RetryAfter)
	}

	// 冷却结束后恢复放行
	time.Sleep(110 * time.Millisecond)
	if result := limiter.Check(key, 100*time.Millisecond); !result.Allowed {
		t.Errorf("冷却结束后应放行")
	}
}

func TestSyncRateLimiter_KeyIsolation(t *testing.T) {
	limiter := &SyncRateLimiter{}

	limiter.Check(TeamSyncKey(1, SyncTypeCampaign), time.Minute)

	// 不同团队、不同类型互不影响
	if r := limiter.Check(TeamSyncKey(2, SyncTypeCampaign), time.Minute); !r.Allowed {
		t.Errorf("其他团队不应被限流")
	}
	if r := limiter.Check(TeamSyncKey(1, SyncTypeMetric), time.Minute); !r.Allowed {
		t.Errorf("同团队其他类型不应被限流")
	}
}

func TestSyncRateLimiter_Reset(t *testing.T) {
	limiter := &SyncRateLimiter{}
	key := TeamSyncKey(3, SyncTypeCampaign)

	limiter.Check(key, time.Minute)
	limiter.Reset(key)

	if r := limiter.Check(key, time.Minute); !r.Allowed {
		t.Errorf("重置后应放行")
	}
}

func TestTeamSyncKey(t *testing.T) {
	if got := TeamSyncKey(123, SyncTypeCampaign); got != "team:123:campaign" {
		t.Errorf("TeamSyncKey = %s", got)
	}
}

func TestGetInterval(t *testing.T) {
	if got := GetInterval(SyncTypeCampaign); got != 5*time.Minute {
		t.Errorf("campaign 间隔 = %v, want 5m", got)
	}
	if got := GetInterval(SyncType("unknown")); got != 5*time.Minute {
		t.Errorf("未知类型应回退到 5m, got %v", got)
	}
}
