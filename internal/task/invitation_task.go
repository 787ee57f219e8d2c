package task

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"allad_backend_v1/internal/repository"
)

// ==================== InvitationSweepTask ====================

// InvitationSweepTask 定时把超期的 pending 邀请置为 expired
// 读路径按 expires_at 过滤，扫描只负责修正落库状态
type InvitationSweepTask struct {
	InvitationRepo repository.InvitationRepository
	Cron           *cron.Cron
}

func NewInvitationSweepTask(invitationRepo repository.InvitationRepository) *InvitationSweepTask {
	return &InvitationSweepTask{
		InvitationRepo: invitationRepo,
		Cron:           cron.New(cron.WithSeconds()),
	}
}

// Start 启动定时任务
func (t *InvitationSweepTask) Start() {
	// 每小时第 10 分钟扫描
	_, err := t.Cron.AddFunc("0 10 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		t.sweepJob(ctx)
	})
	if err != nil {
		log.Fatalf("无法启动邀请过期扫描任务: %v", err)
	}

	t.Cron.Start()
	log.Println("邀请过期扫描任务已启动 (每小时一次)")
}

// Stop 停止定时任务
func (t *InvitationSweepTask) Stop() {
	if t.Cron != nil {
		t.Cron.Stop()
	}
}

func (t *InvitationSweepTask) sweepJob(ctx context.Context) {
	n, err := t.InvitationRepo.ExpireStale(ctx)
	if err != nil {
		log.Printf("[Cron] 邀请过期扫描失败: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[Cron] 已将 %d 条超期邀请置为 expired", n)
	}
}
