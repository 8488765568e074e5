package repository

import (
	"context"
	"errors"

	"slotmarket/internal/model"

	"gorm.io/gorm"
)

var (
	ErrCampaignNotFound      = errors.New("活动不存在")
	ErrCampaignStatusInvalid = errors.New("活动状态不合法")
)

type CampaignRepository struct {
	db *gorm.DB
}

func NewCampaignRepository(db *gorm.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

func (r *CampaignRepository) Create(ctx context.Context, tx *gorm.DB, campaign *model.Campaign) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(campaign).Error
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int64) (*model.Campaign, error) {
	var campaign model.Campaign
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&campaign).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCampaignNotFound
		}
		return nil, err
	}
	return &campaign, nil
}

// Save 全量保存活动字段（状态除外，状态只能走 UpdateStatus）
func (r *CampaignRepository) Save(ctx context.Context, tx *gorm.DB, campaign *model.Campaign) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.Campaign{}).
		Where("id = ?", campaign.ID).
		Updates(map[string]interface{}{
			"name":                  campaign.Name,
			"service_type":          campaign.ServiceType,
			"description":           campaign.Description,
			"detailed_description":  campaign.DetailedDescription,
			"unit_price":            campaign.UnitPrice,
			"min_quantity":          campaign.MinQuantity,
			"deadline_time":         campaign.DeadlineTime,
			"logo_image":            campaign.LogoImage,
			"banner_image":          campaign.BannerImage,
			"user_input_fields":     campaign.UserInputFields,
			"refund_policy":         campaign.RefundPolicy,
			"guarantee_count":       campaign.GuaranteeCount,
			"guarantee_unit":        campaign.GuaranteeUnit,
			"guarantee_period_days": campaign.GuaranteePeriodDays,
			"target_rank":           campaign.TargetRank,
			"min_guarantee_price":   campaign.MinGuaranteePrice,
			"max_guarantee_price":   campaign.MaxGuaranteePrice,
		}).Error
}

// UpdateStatus 条件更新活动状态
// 先查状态流转表，再用 WHERE status = fromStatus 保证并发下不会跳转到错误状态
func (r *CampaignRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id int64, fromStatus, toStatus string) error {
	if !model.CampaignCanTransitionTo(fromStatus, toStatus) {
		return ErrCampaignStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Campaign{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Update("status", toStatus)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrCampaignStatusInvalid
	}

	return nil
}

// Reject 审核拒绝，状态流转与拒绝原因一起落库
func (r *CampaignRepository) Reject(ctx context.Context, tx *gorm.DB, id int64, reason string) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Campaign{}).
		Where("id = ? AND status = ?", id, model.CampaignStatusWaitingApproval).
		Updates(map[string]interface{}{
			"status":        model.CampaignStatusRejected,
			"reject_reason": reason,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrCampaignStatusInvalid
	}

	return nil
}

type CampaignFilter struct {
	Status   string
	OwnerID  int64
	SlotType string
}

func (r *CampaignRepository) List(ctx context.Context, filter CampaignFilter, page, pageSize int) ([]*model.Campaign, int64, error) {
	var campaigns []*model.Campaign
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Campaign{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.OwnerID != 0 {
		query = query.Where("owner_id = ?", filter.OwnerID)
	}
	if filter.SlotType != "" {
		query = query.Where("slot_type = ?", filter.SlotType)
	}

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&campaigns).Error

	return campaigns, total, err
}
