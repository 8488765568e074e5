package job

import (
	"context"
	"log"
	"time"

	"slotmarket/internal/config"
	"slotmarket/internal/model"
	"slotmarket/internal/repository"

	"gorm.io/gorm"
)

// IntentCompensator 悬空扣款补偿任务
//
// 购买流程在"扣款已提交、槽位未落库"之间崩溃时，余额被扣但没有任何槽位。
// 本任务周期性扫描长时间停留在 STARTED 的购买意向，按意向上记录的
// free/paid 拆分精确回补余额。回补通过意向状态的条件更新保证幂等：
// 只有 STARTED -> COMPENSATED 成功的那一次才执行回补。
type IntentCompensator struct {
	db          *gorm.DB
	intentRepo  *repository.IntentRepository
	balanceRepo *repository.BalanceRepository
	cfg         *config.Config
	stopCh      chan struct{}
	interval    time.Duration
	batchSize   int
}

func NewIntentCompensator(db *gorm.DB, cfg *config.Config) *IntentCompensator {
	return &IntentCompensator{
		db:          db,
		intentRepo:  repository.NewIntentRepository(db),
		balanceRepo: repository.NewBalanceRepository(db),
		cfg:         cfg,
		stopCh:      make(chan struct{}),
		interval:    30 * time.Second,
		batchSize:   50,
	}
}

func (j *IntentCompensator) Start(ctx context.Context) {
	log.Println("[IntentCompensator] 悬空扣款补偿任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[IntentCompensator] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[IntentCompensator] 任务停止")
			return
		case <-ticker.C:
			j.compensateStaleIntents(ctx)
		}
	}
}

func (j *IntentCompensator) Stop() {
	close(j.stopCh)
}

func (j *IntentCompensator) compensateStaleIntents(ctx context.Context) {
	staleMinutes := j.cfg.Business.IntentStaleMinutes
	if staleMinutes <= 0 {
		staleMinutes = 5
	}
	beforeTime := time.Now().Add(-time.Duration(staleMinutes) * time.Minute)

	intents, err := j.intentRepo.GetStaleStarted(ctx, beforeTime, j.batchSize)
	if err != nil {
		log.Printf("[IntentCompensator] 查询悬空意向失败: %v", err)
		return
	}

	if len(intents) == 0 {
		return
	}

	log.Printf("[IntentCompensator] 发现 %d 个悬空扣款", len(intents))

	for _, intent := range intents {
		j.compensateIntent(ctx, intent)
	}
}

func (j *IntentCompensator) compensateIntent(ctx context.Context, intent *model.PurchaseIntent) {
	// 先抢状态再回补：条件更新失败说明同步回滚或其他实例已处理过
	err := j.intentRepo.UpdateStatus(ctx, nil, intent.IntentNo,
		model.IntentStatusStarted, model.IntentStatusCompensated)
	if err != nil {
		log.Printf("[IntentCompensator] 意向已被处理，跳过: intentNo=%s", intent.IntentNo)
		return
	}

	err = j.balanceRepo.Restore(ctx, nil, intent.UserID, intent.FreeUsed, intent.PaidUsed)
	if err != nil {
		log.Printf("[IntentCompensator] 回补余额失败: intentNo=%s, userID=%d, err=%v",
			intent.IntentNo, intent.UserID, err)
		return
	}

	log.Printf("[IntentCompensator] 悬空扣款已回补: intentNo=%s, userID=%d, free=%d, paid=%d",
		intent.IntentNo, intent.UserID, intent.FreeUsed, intent.PaidUsed)
}
