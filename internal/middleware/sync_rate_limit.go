package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ==================== 同步限流中间件 ====================

// SyncRateLimit 同步限流中间件
// 按团队 + 同步类型维度限流，必须在 TeamMember 之后挂载
//
// 使用示例:
//
//	teams.POST("/:team_id/campaigns/sync",
//	    middleware.SyncRateLimit(middleware.SyncTypeCampaign, 0),
//	    ctl.SyncCampaigns,
//	)
//
// 参数:
//   - syncType: 同步类型
//   - interval: 冷却间隔，0 表示使用默认值
func SyncRateLimit(syncType SyncType, interval time.Duration) gin.HandlerFunc {
	if interval == 0 {
		interval = GetInterval(syncType)
	}

	return func(c *gin.Context) {
		teamID := GetTeamID(c)
		if teamID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    400,
				"message": "잘못된 팀 ID입니다",
			})
			c.Abort()
			return
		}

		key := TeamSyncKey(teamID, syncType)
		result := GetLimiter().Check(key, interval)
		if !result.Allowed {
			retryAfter := int(result.RetryAfter.Seconds())
			c.JSON(http.StatusTooManyRequests, gin.H{
				"code":    429,
				"message": fmt.Sprintf("%d초 후에 다시 시도해 주세요", retryAfter),
				"data": gin.H{
					"retry_after": retryAfter,
					"sync_type":   syncType,
				},
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
