package model

import (
	"time"
)

const (
	NotificationTypePurchaseCompleted  = "PURCHASE_COMPLETED"  // 购买完成，通知购买者
	NotificationTypeReapprovalRequired = "REAPPROVAL_REQUIRED" // 活动修改后重新送审，通知运营
)

// Notification 站内通知表
// 通知投递失败不回滚任何业务数据，只记日志
type Notification struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"index;not null" json:"user_id"` // 接收者
	Type      string    `gorm:"type:varchar(32);not null" json:"type"`
	Title     string    `gorm:"type:varchar(128);not null" json:"title"`
	Message   string    `gorm:"type:varchar(512)" json:"message"`
	Link      string    `gorm:"type:varchar(256)" json:"link"`
	IsRead    bool      `gorm:"not null;default:false" json:"is_read"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Notification) TableName() string {
	return "notification"
}
