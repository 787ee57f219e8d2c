package task

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"allad_backend_v1/internal/model"
	"allad_backend_v1/internal/repository"
	"allad_backend_v1/internal/service"
)

// 过期阈值：1 小时内到期的 Token 进入本轮刷新
const tokenExpiryThreshold = 1 * time.Hour

// TokenTask 平台 Token 保活任务
type TokenTask struct {
	CredentialRepo repository.CredentialRepository
	OAuthService   *service.OAuthService
	Cron           *cron.Cron

	// 控制并发刷新的数量，避免触发平台限流
	concurrencyLimit int
	sleepTime        time.Duration
}

func NewTokenTask(credentialRepo repository.CredentialRepository, oauthService *service.OAuthService) *TokenTask {
	return &TokenTask{
		CredentialRepo:   credentialRepo,
		OAuthService:     oauthService,
		Cron:             cron.New(cron.WithSeconds()), // 支持秒级控制
		concurrencyLimit: 10,                           // 各平台 token 端点都有限流，压低并发
		sleepTime:        100 * time.Millisecond,       // 每个协程启动间隔，平滑波峰
	}
}

// Start 启动定时任务
func (t *TokenTask) Start() {
	// 首次执行
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		log.Println("[Task] 服务启动，正在执行首次 Token 检查...")
		t.refreshJob(ctx)
	}()

	// 定时策略
	_, err := t.Cron.AddFunc("0 0/40 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		t.refreshJob(ctx)
	})

	if err != nil {
		log.Fatalf("无法启动 Token 定时任务: %v", err)
	}

	t.Cron.Start()
	log.Println("Token 保活任务已启动 (每40分钟检查一次)")
}

// Stop 停止定时任务
func (t *TokenTask) Stop() {
	if t.Cron != nil {
		t.Cron.Stop()
	}
}

// refreshJob 自动刷新逻辑
func (t *TokenTask) refreshJob(ctx context.Context) {
	creds, err := t.CredentialRepo.FindExpiring(ctx, tokenExpiryThreshold)
	if err != nil {
		log.Printf("[Cron] 凭证过期状态查询失败: %v", err)
		return
	}

	// 信号量通道，容量即为并发上限
	sem := make(chan struct{}, t.concurrencyLimit)
	var wg sync.WaitGroup

	log.Printf("[Cron] 开始处理 %d 条凭证的 Token 刷新，并发上限: %d", len(creds), t.concurrencyLimit)

	for _, cred := range creds {
		// 检查上下文是否已取消（超时处理）
		select {
		case <-ctx.Done():
			log.Println("[Cron] 任务超时停止")
			return
		default:
		}

		// 获取信号量（如果已满则阻塞在此，起到限流作用）
		sem <- struct{}{}
		wg.Add(1)

		// 平滑波峰
		time.Sleep(t.sleepTime)

		currentCred := cred

		go func(c model.PlatformCredential) {
			defer wg.Done()
			defer func() { <-sem }() // 任务结束释放信号量

			err := t.OAuthService.RefreshCredential(ctx, &c)
			if err != nil {
				// 日志仅记录，不中断其他协程
				// ErrAuthRevoked 时服务层已停用凭证并标记 auth_invalid
				log.Printf("[Cron] 凭证 [%s/%s] 刷新失败: %v", c.Platform, c.AccountID, err)
			}
		}(currentCred)
	}

	wg.Wait()
	log.Println("[Cron] 本轮 Token 刷新任务完成")
}
