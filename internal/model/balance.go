package model

import (
	"time"
)

// UserBalance 用户余额表
// 余额分为赠送（free）与充值（paid）两个桶，扣款时先扣赠送再扣充值
//
// 【重要】不变式：交易完成后 total_balance == free_balance + paid_balance。
// 事务中途允许短暂不一致，这正是补偿回滚存在的原因。
type UserBalance struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       int64     `gorm:"uniqueIndex;not null" json:"user_id"`
	FreeBalance  int64     `gorm:"not null;default:0" json:"free_balance"`  // 赠送余额
	PaidBalance  int64     `gorm:"not null;default:0" json:"paid_balance"`  // 充值余额
	TotalBalance int64     `gorm:"not null;default:0" json:"total_balance"` // 合计余额
	Version      int       `gorm:"not null;default:0" json:"version"`       // 乐观锁版本号
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (UserBalance) TableName() string {
	return "user_balance"
}
