package model

import (
	"encoding/json"
	"time"
)

// ============================================================================
// 广告活动状态机
// ============================================================================

const (
	CampaignStatusPending         = "PENDING"          // 待上架
	CampaignStatusWaitingApproval = "WAITING_APPROVAL" // 待审核
	CampaignStatusActive          = "ACTIVE"           // 上架中
	CampaignStatusPause           = "PAUSE"            // 暂停展示
	CampaignStatusRejected        = "REJECTED"         // 审核拒绝
)

// ValidCampaignTransitions 广告活动状态流转表
//
// 【重要】状态流转规则：
// 1. 运营审核：WAITING_APPROVAL -> ACTIVE / REJECTED
// 2. 运营可以强制恢复被拒绝的活动：REJECTED -> ACTIVE
// 3. 上下架切换：ACTIVE <-> PAUSE，PENDING -> PAUSE
// 4. 分销商修改已上架的活动会被重新送审：任何非待审核状态 -> WAITING_APPROVAL
var ValidCampaignTransitions = map[string][]string{
	CampaignStatusPending:         {CampaignStatusPause, CampaignStatusWaitingApproval},
	CampaignStatusWaitingApproval: {CampaignStatusActive, CampaignStatusRejected},
	CampaignStatusActive:          {CampaignStatusPause, CampaignStatusWaitingApproval},
	CampaignStatusPause:           {CampaignStatusActive, CampaignStatusWaitingApproval},
	CampaignStatusRejected:        {CampaignStatusActive, CampaignStatusWaitingApproval},
}

func CampaignCanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidCampaignTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// ============================================================================
// 槽位类型 / 保量字段
// ============================================================================

const (
	SlotTypeStandard  = "STANDARD"  // 标准型：固定单价，直接购买
	SlotTypeGuarantee = "GUARANTEE" // 保量型：价格协商，走报价流程
)

const (
	GuaranteeUnitDay   = "DAY"   // 按天保量
	GuaranteeUnitCount = "COUNT" // 按次保量
)

const (
	RefundTypeImmediate   = "IMMEDIATE"
	RefundTypeDelayed     = "DELAYED"
	RefundTypeCutoffBased = "CUTOFF_BASED"
)

// Campaign 广告活动表
// 分销商发布的广告投放服务，客户针对活动购买槽位
type Campaign struct {
	ID                  int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name                string    `gorm:"type:varchar(128);not null" json:"name"`
	ServiceType         string    `gorm:"type:varchar(32);not null" json:"service_type"`   // 投放渠道/动作类型
	SlotType            string    `gorm:"type:varchar(20);not null" json:"slot_type"`      // STANDARD / GUARANTEE
	Description         string    `gorm:"type:varchar(512)" json:"description"`            // 简介
	DetailedDescription string    `gorm:"type:text" json:"detailed_description"`           // 详细说明
	UnitPrice           int64     `gorm:"not null;default:0" json:"unit_price"`            // 单价（标准型有效）
	MinQuantity         int       `gorm:"not null;default:1" json:"min_quantity"`          // 最低购买数量
	DeadlineTime        string    `gorm:"type:varchar(8)" json:"deadline_time"`            // 每日截单时间 HH:MM
	Status              string    `gorm:"type:varchar(20);index;not null" json:"status"`   //
	OwnerID             int64     `gorm:"index;not null" json:"owner_id"`                  // 分销商ID
	LogoImage           string    `gorm:"type:varchar(256)" json:"logo_image"`             //
	BannerImage         string    `gorm:"type:varchar(256)" json:"banner_image"`           //
	UserInputFields     string    `gorm:"type:json" json:"user_input_fields"`              // 购买表单字段定义（JSON）
	RefundPolicy        string    `gorm:"type:json" json:"refund_policy"`                  // 退款策略（JSON）
	GuaranteeCount      int       `gorm:"not null;default:0" json:"guarantee_count"`       // 保量次数/天数（保量型有效）
	GuaranteeUnit       string    `gorm:"type:varchar(10)" json:"guarantee_unit"`          // DAY / COUNT
	GuaranteePeriodDays int       `gorm:"not null;default:0" json:"guarantee_period_days"` // 保量周期（天）
	TargetRank          int       `gorm:"not null;default:0" json:"target_rank"`           // 保证排名
	MinGuaranteePrice   int64     `gorm:"not null;default:0" json:"min_guarantee_price"`   // 协商价下限
	MaxGuaranteePrice   int64     `gorm:"not null;default:0" json:"max_guarantee_price"`   // 协商价上限（0 表示不限）
	RejectReason        string    `gorm:"type:varchar(512)" json:"reject_reason"`          // 最近一次审核拒绝原因
	CreatedAt           time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Campaign) TableName() string {
	return "campaign"
}

// UserInputField 购买表单字段定义
type UserInputField struct {
	Name      string `json:"name"`
	Label     string `json:"label"`
	FieldType string `json:"field_type"` // TEXT / NUMBER / URL
	Required  bool   `json:"required"`
}

const (
	FieldTypeText   = "TEXT"
	FieldTypeNumber = "NUMBER"
	FieldTypeURL    = "URL"
)

func ValidFieldType(fieldType string) bool {
	switch fieldType {
	case FieldTypeText, FieldTypeNumber, FieldTypeURL:
		return true
	}
	return false
}

// RefundRule 退款策略
type RefundRule struct {
	Enabled bool   `json:"enabled"`
	Type    string `json:"type"` // IMMEDIATE / DELAYED / CUTOFF_BASED
	Rules   string `json:"rules"`
}

func ValidRefundType(refundType string) bool {
	switch refundType {
	case RefundTypeImmediate, RefundTypeDelayed, RefundTypeCutoffBased:
		return true
	}
	return false
}

// ParseRefundPolicy 解析退款策略JSON，未配置返回 nil
func ParseRefundPolicy(raw string) (*RefundRule, error) {
	if raw == "" {
		return nil, nil
	}
	var rule RefundRule
	if err := json.Unmarshal([]byte(raw), &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

func (c *Campaign) ParseUserInputFields() ([]UserInputField, error) {
	if c.UserInputFields == "" {
		return nil, nil
	}
	var fields []UserInputField
	if err := json.Unmarshal([]byte(c.UserInputFields), &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// TrackedFieldsChanged 比较送审相关字段是否发生变化
//
// 【关键点】分销商修改已上架/被拒绝的活动时，只要以下任一字段变化就必须重新送审。
// 逐字段精确比较，不做启发式判断。
func (c *Campaign) TrackedFieldsChanged(other *Campaign) bool {
	if c.Name != other.Name {
		return true
	}
	if c.Description != other.Description {
		return true
	}
	if c.DetailedDescription != other.DetailedDescription {
		return true
	}
	if c.UnitPrice != other.UnitPrice {
		return true
	}
	if c.MinQuantity != other.MinQuantity {
		return true
	}
	if c.LogoImage != other.LogoImage {
		return true
	}
	if c.BannerImage != other.BannerImage {
		return true
	}
	if c.UserInputFields != other.UserInputFields {
		return true
	}
	if c.RefundPolicy != other.RefundPolicy {
		return true
	}
	return false
}
