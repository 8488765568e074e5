package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================================
// 槽位状态
// ============================================================================

const (
	SlotStatusPending   = "PENDING"   // 已购买，待提交
	SlotStatusSubmitted = "SUBMITTED" // 已提交给分销商
	SlotStatusApproved  = "APPROVED"  // 分销商已接单
	SlotStatusRejected  = "REJECTED"  // 分销商拒单（终态）
	SlotStatusCompleted = "COMPLETED" // 投放完成（终态）
)

// NonTerminalSlotStatuses 非终态集合
// 同一 (用户, 活动, 关键词) 在该集合内最多存在一条槽位，这是去重约束的依据
var NonTerminalSlotStatuses = []string{
	SlotStatusPending,
	SlotStatusSubmitted,
	SlotStatusApproved,
}

func IsTerminalSlotStatus(status string) bool {
	return status == SlotStatusRejected || status == SlotStatusCompleted
}

// ValidSlotTransitions 槽位状态流转表
var ValidSlotTransitions = map[string][]string{
	SlotStatusPending:   {SlotStatusSubmitted},
	SlotStatusSubmitted: {SlotStatusApproved, SlotStatusRejected},
	SlotStatusApproved:  {SlotStatusCompleted, SlotStatusRejected},
}

func SlotCanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidSlotTransitions[currentStatus]
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

// Slot 槽位表
// 一条槽位对应一次针对活动（及可选关键词）购买的投放工作单元
type Slot struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SlotNo        string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"slot_no"`
	OwnerUserID   int64     `gorm:"index;not null" json:"owner_user_id"`  // 购买者
	CampaignID    int64     `gorm:"index;not null" json:"campaign_id"`    //
	DistributorID int64     `gorm:"index;not null" json:"distributor_id"` // 活动所属分销商
	KeywordID     *int64    `json:"keyword_id"`                           // 关键词ID（手动录入购买时为空）
	Quantity      int       `gorm:"not null" json:"quantity"`             //
	Status        string    `gorm:"type:varchar(20);index;not null" json:"status"`
	InputData     string    `gorm:"type:json" json:"input_data"`           // 购买表单答案、计算价格、预计起止日期
	ActiveKey     *string   `gorm:"type:varchar(96);uniqueIndex" json:"-"` // 非终态唯一键，防止同关键词重复购买
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Slot) TableName() string {
	return "slot"
}

// SlotLineDetail 槽位内嵌明细行
// 历史数据中一条槽位可能携带多条关键词明细，去重时两个来源都要取并集
type SlotLineDetail struct {
	KeywordID   *int64 `json:"keyword_id,omitempty"`
	KeywordText string `json:"keyword_text,omitempty"`
	Quantity    int    `json:"quantity"`
	Price       int64  `json:"price"`
}

// SlotInput 槽位的自由格式输入数据
type SlotInput struct {
	Price         int64             `json:"price"`          // 含税应付金额
	Quantity      int               `json:"quantity"`       //
	DurationDays  int               `json:"duration_days"`  //
	ExpectedStart string            `json:"expected_start"` // 预计开始日期
	ExpectedEnd   string            `json:"expected_end"`   // 预计结束日期
	Fields        map[string]string `json:"fields"`         // 购买表单答案
	Details       []SlotLineDetail  `json:"details,omitempty"`
}

func (s *Slot) ParseInput() (*SlotInput, error) {
	if s.InputData == "" {
		return &SlotInput{}, nil
	}
	var input SlotInput
	if err := json.Unmarshal([]byte(s.InputData), &input); err != nil {
		return nil, err
	}
	return &input, nil
}

// BuildSlotActiveKey 生成非终态唯一键
//
// MySQL 不支持部分索引，因此用可空唯一列模拟：
// 槽位处于非终态时写入该键，进入终态时置空，唯一索引只约束非空值。
func BuildSlotActiveKey(userID, campaignID, keywordID int64) string {
	return fmt.Sprintf("%d:%d:%d", userID, campaignID, keywordID)
}
