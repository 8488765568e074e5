package model

import (
	"time"
)

const (
	PendingBalanceStatusPending = "PENDING" // 托管中
	PendingBalanceStatusSettled = "SETTLED" // 已结算给分销商
)

// PendingBalanceEntry 托管资金表
// 购买时按槽位写入一条，记录该槽位扣款中赠送/充值余额各占多少。
// 结算（PENDING -> SETTLED）由外部结算任务完成，本服务只写不结算。
type PendingBalanceEntry struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SlotNo     string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"slot_no"`
	UserID     int64     `gorm:"index;not null" json:"user_id"`
	CampaignID int64     `gorm:"index;not null" json:"campaign_id"`
	Amount     int64     `gorm:"not null" json:"amount"`      // 托管总额
	FreeAmount int64     `gorm:"not null" json:"free_amount"` // 其中来自赠送余额
	PaidAmount int64     `gorm:"not null" json:"paid_amount"` // 其中来自充值余额
	Status     string    `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PendingBalanceEntry) TableName() string {
	return "pending_balance"
}
