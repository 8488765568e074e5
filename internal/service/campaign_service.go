package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"slotmarket/internal/bizerr"
	"slotmarket/internal/config"
	"slotmarket/internal/model"
	"slotmarket/internal/repository"

	"gorm.io/gorm"
)

// ============================================================================
// 广告活动生命周期
// ============================================================================
//
// 状态机本体在 model 包（状态流转表），这里负责角色门禁和业务规则：
//
// 1. 分销商新建活动一律进入 WAITING_APPROVAL，请求里带什么状态都会被覆盖
// 2. 审核通过/拒绝/强制上架/暂停恢复是运营专属操作，拒绝必须填原因
// 3. 分销商修改非待审核状态的活动时，只要送审相关字段有任何变化，
//    保存就会被重定向到 WAITING_APPROVAL，且必须先经过调用方的确认步骤；
//    字段完全没变则状态原样保留
// 4. 由修改触发的重新送审要向运营发"重新送审"通知

const (
	RoleOperator    = "OPERATOR"    // 运营
	RoleDistributor = "DISTRIBUTOR" // 分销商
)

var (
	ErrPermissionDenied = errors.New("无权限执行该操作")
	// ErrReapprovalConfirmationRequired 修改会触发重新送审，调用方需要先向用户确认
	ErrReapprovalConfirmationRequired = errors.New("修改后活动将重新送审，请确认后再保存")
)

type CampaignService struct {
	db               *gorm.DB
	cfg              *config.Config
	campaignRepo     *repository.CampaignRepository
	notificationRepo *repository.NotificationRepository
	outboxRepo       *repository.OutboxRepository
}

func NewCampaignService(db *gorm.DB, cfg *config.Config) *CampaignService {
	return &CampaignService{
		db:               db,
		cfg:              cfg,
		campaignRepo:     repository.NewCampaignRepository(db),
		notificationRepo: repository.NewNotificationRepository(db),
		outboxRepo:       repository.NewOutboxRepository(db),
	}
}

type SaveCampaignInput struct {
	Name                string `json:"name"`
	ServiceType         string `json:"service_type"`
	SlotType            string `json:"slot_type"`
	Description         string `json:"description"`
	DetailedDescription string `json:"detailed_description"`
	UnitPrice           int64  `json:"unit_price"`
	MinQuantity         int    `json:"min_quantity"`
	DeadlineTime        string `json:"deadline_time"`
	LogoImage           string `json:"logo_image"`
	BannerImage         string `json:"banner_image"`
	UserInputFields     string `json:"user_input_fields"`
	RefundPolicy        string `json:"refund_policy"`
	GuaranteeCount      int    `json:"guarantee_count"`
	GuaranteeUnit       string `json:"guarantee_unit"`
	GuaranteePeriodDays int    `json:"guarantee_period_days"`
	TargetRank          int    `json:"target_rank"`
	MinGuaranteePrice   int64  `json:"min_guarantee_price"`
	MaxGuaranteePrice   int64  `json:"max_guarantee_price"`
}

// validateInput 保存前校验，失败时不发起任何落库调用
func validateInput(input *SaveCampaignInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return bizerr.NewValidation("name", "活动名称不能为空")
	}
	if strings.TrimSpace(input.Description) == "" {
		return bizerr.NewValidation("description", "活动简介不能为空")
	}
	if strings.TrimSpace(input.DetailedDescription) == "" {
		return bizerr.NewValidation("detailed_description", "详细说明不能为空")
	}

	var fields []model.UserInputField
	if input.UserInputFields != "" {
		if err := json.Unmarshal([]byte(input.UserInputFields), &fields); err != nil {
			return bizerr.NewValidation("user_input_fields", "表单字段定义不是合法的JSON")
		}
	}
	if len(fields) == 0 {
		return bizerr.NewValidation("user_input_fields", "至少需要定义一个购买表单字段")
	}
	hasRequired := false
	for _, f := range fields {
		if strings.TrimSpace(f.Name) == "" {
			return bizerr.NewValidation("user_input_fields", "表单字段名不能为空")
		}
		if !model.ValidFieldType(f.FieldType) {
			return bizerr.NewValidation("user_input_fields", "表单字段类型只能是 TEXT / NUMBER / URL")
		}
		if f.Required {
			hasRequired = true
		}
	}
	if !hasRequired {
		return bizerr.NewValidation("user_input_fields", "表单字段中至少需要一个必填项")
	}

	if input.RefundPolicy != "" {
		rule, err := model.ParseRefundPolicy(input.RefundPolicy)
		if err != nil {
			return bizerr.NewValidation("refund_policy", "退款策略不是合法的JSON")
		}
		if rule.Enabled && !model.ValidRefundType(rule.Type) {
			return bizerr.NewValidation("refund_policy", "退款类型只能是 IMMEDIATE / DELAYED / CUTOFF_BASED")
		}
	}

	if input.SlotType == model.SlotTypeGuarantee {
		if input.GuaranteeCount < 1 {
			return bizerr.NewValidation("guarantee_count", "保量次数必须大于0")
		}
		if input.MinGuaranteePrice < 1 {
			return bizerr.NewValidation("min_guarantee_price", "最低协商价必须大于0")
		}
		if input.MaxGuaranteePrice > 0 && input.MaxGuaranteePrice < input.MinGuaranteePrice {
			return bizerr.NewValidation("max_guarantee_price", "最高协商价不能低于最低协商价")
		}
	}

	return nil
}

// Create 分销商新建活动
// 无论请求要求什么状态，服务端一律覆盖为 WAITING_APPROVAL
func (s *CampaignService) Create(ctx context.Context, ownerID int64, input *SaveCampaignInput) (*model.Campaign, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	slotType := input.SlotType
	if slotType == "" {
		slotType = model.SlotTypeStandard
	}

	campaign := &model.Campaign{
		Name:                input.Name,
		ServiceType:         input.ServiceType,
		SlotType:            slotType,
		Description:         input.Description,
		DetailedDescription: input.DetailedDescription,
		UnitPrice:           input.UnitPrice,
		MinQuantity:         input.MinQuantity,
		DeadlineTime:        input.DeadlineTime,
		Status:              model.CampaignStatusWaitingApproval,
		OwnerID:             ownerID,
		LogoImage:           input.LogoImage,
		BannerImage:         input.BannerImage,
		UserInputFields:     input.UserInputFields,
		RefundPolicy:        input.RefundPolicy,
		GuaranteeCount:      input.GuaranteeCount,
		GuaranteeUnit:       input.GuaranteeUnit,
		GuaranteePeriodDays: input.GuaranteePeriodDays,
		TargetRank:          input.TargetRank,
		MinGuaranteePrice:   input.MinGuaranteePrice,
		MaxGuaranteePrice:   input.MaxGuaranteePrice,
	}

	if err := s.campaignRepo.Create(ctx, nil, campaign); err != nil {
		return nil, fmt.Errorf("创建活动失败: %w", err)
	}

	return campaign, nil
}

type UpdateCampaignRequest struct {
	CampaignID int64
	ActorID    int64
	Role       string
	// ConfirmReapproval 为 true 表示用户已确认"保存后重新送审"
	ConfirmReapproval bool
	Input             *SaveCampaignInput
}

type UpdateCampaignResult struct {
	Campaign      *model.Campaign
	StatusChanged bool
	NewStatus     string
}

// Update 修改活动
//
// 【关键点】变更检测是针对送审相关字段的逐字段比较（见 Campaign.TrackedFieldsChanged），
// 以库中当前快照为基准。分销商的修改触发重新送审时必须先经过确认步骤，
// 未确认的保存不产生任何落库副作用。
func (s *CampaignService) Update(ctx context.Context, req *UpdateCampaignRequest) (*UpdateCampaignResult, error) {
	if err := validateInput(req.Input); err != nil {
		return nil, err
	}

	current, err := s.campaignRepo.GetByID(ctx, req.CampaignID)
	if err != nil {
		return nil, err
	}

	if req.Role != RoleOperator && current.OwnerID != req.ActorID {
		return nil, ErrPermissionDenied
	}

	updated := *current
	applyInput(&updated, req.Input)
	changed := current.TrackedFieldsChanged(&updated)

	// 运营修改不触发重新送审；待审核活动改完仍是待审核
	needsReapproval := req.Role != RoleOperator &&
		changed &&
		current.Status != model.CampaignStatusWaitingApproval

	if needsReapproval && !req.ConfirmReapproval {
		return nil, ErrReapprovalConfirmationRequired
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.campaignRepo.Save(ctx, tx, &updated); err != nil {
			return fmt.Errorf("保存活动失败: %w", err)
		}
		if needsReapproval {
			if err := s.campaignRepo.UpdateStatus(ctx, tx, current.ID, current.Status, model.CampaignStatusWaitingApproval); err != nil {
				return fmt.Errorf("重新送审失败: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &UpdateCampaignResult{
		Campaign:      &updated,
		StatusChanged: needsReapproval,
		NewStatus:     current.Status,
	}
	if needsReapproval {
		result.NewStatus = model.CampaignStatusWaitingApproval
		updated.Status = model.CampaignStatusWaitingApproval
		s.notifyReapproval(ctx, &updated)
	}

	return result, nil
}

func applyInput(campaign *model.Campaign, input *SaveCampaignInput) {
	campaign.Name = input.Name
	if input.ServiceType != "" {
		campaign.ServiceType = input.ServiceType
	}
	campaign.Description = input.Description
	campaign.DetailedDescription = input.DetailedDescription
	campaign.UnitPrice = input.UnitPrice
	campaign.MinQuantity = input.MinQuantity
	campaign.DeadlineTime = input.DeadlineTime
	campaign.LogoImage = input.LogoImage
	campaign.BannerImage = input.BannerImage
	campaign.UserInputFields = input.UserInputFields
	campaign.RefundPolicy = input.RefundPolicy
	campaign.GuaranteeCount = input.GuaranteeCount
	campaign.GuaranteeUnit = input.GuaranteeUnit
	campaign.GuaranteePeriodDays = input.GuaranteePeriodDays
	campaign.TargetRank = input.TargetRank
	campaign.MinGuaranteePrice = input.MinGuaranteePrice
	campaign.MaxGuaranteePrice = input.MaxGuaranteePrice
}

// notifyReapproval 分销商修改触发重新送审时，通知运营
func (s *CampaignService) notifyReapproval(ctx context.Context, campaign *model.Campaign) {
	notification := &model.Notification{
		UserID:  s.cfg.Business.OperatorUserID,
		Type:    model.NotificationTypeReapprovalRequired,
		Title:   "活动重新送审",
		Message: fmt.Sprintf("分销商修改了活动「%s」，请重新审核", campaign.Name),
		Link:    fmt.Sprintf("/campaigns/%d", campaign.ID),
	}
	if err := s.notificationRepo.Create(ctx, nil, notification); err != nil {
		log.Printf("写入重新送审通知失败: campaignID=%d, err=%v", campaign.ID, err)
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"campaign_id": campaign.ID,
		"owner_id":    campaign.OwnerID,
		"type":        model.NotificationTypeReapprovalRequired,
		"occurred_at": time.Now().Format(time.RFC3339),
	})
	outboxMsg := &model.OutboxMessage{
		MessageKey: fmt.Sprintf("campaign:%d", campaign.ID),
		Topic:      s.cfg.Kafka.Topic.NotificationEvents,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}
	if err := s.outboxRepo.Create(ctx, nil, outboxMsg); err != nil {
		log.Printf("写入重新送审事件失败: campaignID=%d, err=%v", campaign.ID, err)
	}
}

// Approve 审核通过（运营专属）
func (s *CampaignService) Approve(ctx context.Context, role string, campaignID int64) error {
	if role != RoleOperator {
		return ErrPermissionDenied
	}
	return s.campaignRepo.UpdateStatus(ctx, nil, campaignID,
		model.CampaignStatusWaitingApproval, model.CampaignStatusActive)
}

// Reject 审核拒绝（运营专属），拒绝原因必填
func (s *CampaignService) Reject(ctx context.Context, role string, campaignID int64, reason string) error {
	if role != RoleOperator {
		return ErrPermissionDenied
	}
	if strings.TrimSpace(reason) == "" {
		return bizerr.NewValidation("reason", "拒绝原因不能为空")
	}
	return s.campaignRepo.Reject(ctx, nil, campaignID, reason)
}

// OverrideActivate 强制上架被拒绝的活动（运营专属）
func (s *CampaignService) OverrideActivate(ctx context.Context, role string, campaignID int64) error {
	if role != RoleOperator {
		return ErrPermissionDenied
	}
	return s.campaignRepo.UpdateStatus(ctx, nil, campaignID,
		model.CampaignStatusRejected, model.CampaignStatusActive)
}

// Pause 暂停展示（运营专属），ACTIVE/PENDING 均可暂停
func (s *CampaignService) Pause(ctx context.Context, role string, campaignID int64) error {
	if role != RoleOperator {
		return ErrPermissionDenied
	}
	campaign, err := s.campaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}
	return s.campaignRepo.UpdateStatus(ctx, nil, campaignID, campaign.Status, model.CampaignStatusPause)
}

// Resume 恢复展示（运营专属）
func (s *CampaignService) Resume(ctx context.Context, role string, campaignID int64) error {
	if role != RoleOperator {
		return ErrPermissionDenied
	}
	return s.campaignRepo.UpdateStatus(ctx, nil, campaignID,
		model.CampaignStatusPause, model.CampaignStatusActive)
}

func (s *CampaignService) GetCampaign(ctx context.Context, id int64) (*model.Campaign, error) {
	return s.campaignRepo.GetByID(ctx, id)
}

func (s *CampaignService) ListCampaigns(ctx context.Context, filter repository.CampaignFilter, page, pageSize int) ([]*model.Campaign, int64, error) {
	return s.campaignRepo.List(ctx, filter, page, pageSize)
}
