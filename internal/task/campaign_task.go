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

// ==================== CampaignSyncTask ====================

// CampaignSyncTask 广告系列定时同步
// 每小时把各平台的系列清单拉回本地镜像
type CampaignSyncTask struct {
	CredentialRepo  repository.CredentialRepository
	CampaignService *service.CampaignService
	Cron            *cron.Cron

	concurrencyLimit int
	sleepTime        time.Duration
}

func NewCampaignSyncTask(credentialRepo repository.CredentialRepository, campaignService *service.CampaignService) *CampaignSyncTask {
	return &CampaignSyncTask{
		CredentialRepo:   credentialRepo,
		CampaignService:  campaignService,
		Cron:             cron.New(cron.WithSeconds()),
		concurrencyLimit: 5,
		sleepTime:        200 * time.Millisecond,
	}
}

// SetConcurrency 调整并发参数
func (t *CampaignSyncTask) SetConcurrency(limit int, sleep time.Duration) {
	if limit > 0 {
		t.concurrencyLimit = limit
	}
	if sleep > 0 {
		t.sleepTime = sleep
	}
}

// Start 启动定时任务
func (t *CampaignSyncTask) Start() {
	// 整点同步
	_, err := t.Cron.AddFunc("0 0 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Minute)
		defer cancel()

		t.syncJob(ctx)
	})
	if err != nil {
		log.Fatalf("无法启动广告系列同步任务: %v", err)
	}

	t.Cron.Start()
	log.Println("广告系列同步任务已启动 (每小时一次)")
}

// Stop 停止定时任务
func (t *CampaignSyncTask) Stop() {
	if t.Cron != nil {
		t.Cron.Stop()
	}
}

// SyncAllNow 手动触发全量同步
func (t *CampaignSyncTask) SyncAllNow() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Minute)
		defer cancel()
		t.syncJob(ctx)
	}()
}

// syncJob 遍历所有活跃凭证逐条同步
func (t *CampaignSyncTask) syncJob(ctx context.Context) {
	creds, err := t.CredentialRepo.ListAllActive(ctx)
	if err != nil {
		log.Printf("[Cron] 活跃凭证查询失败: %v", err)
		return
	}

	sem := make(chan struct{}, t.concurrencyLimit)
	var wg sync.WaitGroup

	log.Printf("[Cron] 开始同步 %d 条凭证的广告系列，并发上限: %d", len(creds), t.concurrencyLimit)

	for _, cred := range creds {
		select {
		case <-ctx.Done():
			log.Println("[Cron] 广告系列同步超时停止")
			return
		default:
		}

		sem <- struct{}{}
		wg.Add(1)
		time.Sleep(t.sleepTime)

		currentCred := cred

		go func(c model.PlatformCredential) {
			defer wg.Done()
			defer func() { <-sem }()

			if _, err := t.CampaignService.SyncCredential(ctx, &c); err != nil {
				log.Printf("[Cron] 凭证 [%s/%s] 系列同步失败: %v", c.Platform, c.AccountID, err)
			}
		}(currentCred)
	}

	wg.Wait()
	log.Println("[Cron] 本轮广告系列同步完成")
}
