package model

import (
	"time"
)

// ============================================================================
// 资金流水
// ============================================================================

const (
	BalanceTypeFree = "FREE" // 赠送余额
	BalanceTypePaid = "PAID" // 充值余额
)

const (
	CashTransactionTypePurchase = "PURCHASE" // 购买槽位（扣款）
	CashTransactionTypeRecharge = "RECHARGE" // 充值
	CashTransactionTypeRefund   = "REFUND"   // 退款
)

// CashHistoryEntry 资金流水表
// 记录每一笔资金变动，是对账的核心依据
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除 —— 保证审计可追溯
// 2. 金额带符号：入账为正，出账为负
// 3. 扣款命中两个余额桶时拆成两条流水，balance_type 标明来源桶
type CashHistoryEntry struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo   string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	UserID          int64     `gorm:"index;not null" json:"user_id"`
	Amount          int64     `gorm:"not null" json:"amount"`                            // 带符号金额
	BalanceType     string    `gorm:"type:varchar(10);not null" json:"balance_type"`     // FREE / PAID
	TransactionType string    `gorm:"type:varchar(20);not null" json:"transaction_type"` //
	ReferenceSlotNo string    `gorm:"type:varchar(64);index" json:"reference_slot_no"`   // 关联槽位号
	Remark          string    `gorm:"type:varchar(256)" json:"remark"`
	CreatedAt       time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (CashHistoryEntry) TableName() string {
	return "cash_history"
}
