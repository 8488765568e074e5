package model

import (
	"encoding/json"
	"time"
)

// ============================================================================
// 购买意向日志（saga log）
// ============================================================================

const (
	IntentStatusStarted     = "STARTED"     // 已扣款，槽位尚未落库
	IntentStatusCommitted   = "COMMITTED"   // 槽位/流水/托管已全部落库
	IntentStatusCompensated = "COMPENSATED" // 扣款已回补
)

// PurchaseIntent 购买意向表
//
// 【为什么需要意向日志？】
//
// 购买流程中"扣余额"和"写槽位"是两次落库。如果进程在两者之间崩溃，
// 用户的钱被扣了但没有任何槽位 —— 补偿任务靠本表发现这种悬空扣款：
//
//	扣款前写入 STARTED -> 槽位事务内标记 COMMITTED
//	同步回滚或补偿任务回补后标记 COMPENSATED
//
// 长时间停留在 STARTED 的意向即为悬空扣款，按记录的 free/paid 拆分精确回补。
// request_id 同时承担幂等职责：同一请求只会执行一次购买。
type PurchaseIntent struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	IntentNo      string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"intent_no"`
	RequestID     string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"request_id"` // 幂等ID，客户端生成
	UserID        int64     `gorm:"index;not null" json:"user_id"`
	CampaignID    int64     `gorm:"index;not null" json:"campaign_id"`
	PayableAmount int64     `gorm:"not null" json:"payable_amount"` // 含税应付总额
	FreeUsed      int64     `gorm:"not null" json:"free_used"`      // 赠送余额扣除额
	PaidUsed      int64     `gorm:"not null" json:"paid_used"`      // 充值余额扣除额
	Status        string    `gorm:"type:varchar(20);index;not null" json:"status"`
	SlotNos       string    `gorm:"type:json" json:"slot_nos"` // 提交时写入的槽位编号，幂等重放原样返回
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PurchaseIntent) TableName() string {
	return "purchase_intent"
}

// ParseSlotNos 解析已提交意向携带的槽位编号
func (p *PurchaseIntent) ParseSlotNos() ([]string, error) {
	if p.SlotNos == "" {
		return nil, nil
	}
	var nos []string
	if err := json.Unmarshal([]byte(p.SlotNos), &nos); err != nil {
		return nil, err
	}
	return nos, nil
}
