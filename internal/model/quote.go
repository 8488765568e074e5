package model

import (
	"time"
)

// ============================================================================
// 保量型活动：报价协商
// ============================================================================

const (
	QuoteStatusRequested   = "REQUESTED"   // 已提交报价请求
	QuoteStatusNegotiating = "NEGOTIATING" // 协商中
	QuoteStatusAccepted    = "ACCEPTED"    // 双方达成一致
	QuoteStatusDeclined    = "DECLINED"    // 协商终止
)

const (
	BudgetTypeDaily = "DAILY" // 按日/按次报价
	BudgetTypeTotal = "TOTAL" // 总价报价
)

// GuaranteeQuoteRequest 保量报价请求表
// 保量型活动不走直接购买，客户提交报价，与分销商在消息线程中协商。
// 此阶段不动余额、不生成槽位，协商与最终购买解耦。
type GuaranteeQuoteRequest struct {
	ID                  int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	QuoteNo             string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"quote_no"`
	CampaignID          int64      `gorm:"index;not null" json:"campaign_id"`
	RequesterID         int64      `gorm:"index;not null" json:"requester_id"`
	TargetRank          int        `gorm:"not null;default:0" json:"target_rank"`
	GuaranteeCount      int        `gorm:"not null" json:"guarantee_count"` // 取自活动，客户不可改
	GuaranteeUnit       string     `gorm:"type:varchar(10)" json:"guarantee_unit"`
	GuaranteePeriodDays int        `gorm:"not null" json:"guarantee_period_days"`        // 取自活动，客户不可改
	ProposedAmount      int64      `gorm:"not null" json:"proposed_amount"`              // 报价金额
	BudgetType          string     `gorm:"type:varchar(10);not null" json:"budget_type"` // DAILY / TOTAL
	KeywordID           *int64     `json:"keyword_id"`
	InputData           string     `gorm:"type:json" json:"input_data"` // 自由格式补充信息
	Status              string     `gorm:"type:varchar(20);index;not null" json:"status"`
	CreatedAt           time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	NegotiatedAt        *time.Time `json:"negotiated_at"`
}

func (GuaranteeQuoteRequest) TableName() string {
	return "guarantee_quote_request"
}

// NegotiationMessage 报价协商消息
type NegotiationMessage struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	QuoteNo   string    `gorm:"type:varchar(64);index;not null" json:"quote_no"`
	SenderID  int64     `gorm:"not null" json:"sender_id"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (NegotiationMessage) TableName() string {
	return "negotiation_message"
}
