package repository

import (
	"context"
	"errors"
	"strings"

	"slotmarket/internal/model"

	"gorm.io/gorm"
)

var (
	ErrSlotNotFound      = errors.New("槽位不存在")
	ErrSlotStatusInvalid = errors.New("槽位状态不合法")
	ErrDuplicateKeyword  = errors.New("该关键词已存在进行中的槽位")
)

type SlotRepository struct {
	db *gorm.DB
}

func NewSlotRepository(db *gorm.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

func (r *SlotRepository) Create(ctx context.Context, tx *gorm.DB, slot *model.Slot) error {
	if tx == nil {
		tx = r.db
	}
	err := tx.WithContext(ctx).Create(slot).Error
	if err != nil && isDuplicateKeyError(err) {
		return ErrDuplicateKeyword
	}
	return err
}

// isDuplicateKeyError 识别唯一约束冲突
// active_key 唯一索引命中时 MySQL 报 Duplicate entry，SQLite 报 UNIQUE constraint failed
func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

func (r *SlotRepository) GetBySlotNo(ctx context.Context, slotNo string) (*model.Slot, error) {
	var slot model.Slot
	err := r.db.WithContext(ctx).Where("slot_no = ?", slotNo).First(&slot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return &slot, nil
}

// ListActiveByUserAndCampaign 查询某用户在某活动下的所有非终态槽位
// 去重过滤器的数据来源，每次购买前后都重新查询，不做缓存
func (r *SlotRepository) ListActiveByUserAndCampaign(ctx context.Context, userID, campaignID int64) ([]*model.Slot, error) {
	var slots []*model.Slot
	err := r.db.WithContext(ctx).
		Where("owner_user_id = ? AND campaign_id = ? AND status IN ?",
			userID, campaignID, model.NonTerminalSlotStatuses).
		Find(&slots).Error
	return slots, err
}

// UpdateStatus 槽位状态变更
// 进入终态时清空 active_key，释放 (用户, 活动, 关键词) 的唯一占位
func (r *SlotRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, slotNo string, fromStatus, toStatus string) error {
	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{
		"status": toStatus,
	}
	if model.IsTerminalSlotStatus(toStatus) {
		updates["active_key"] = nil
	}

	result := tx.WithContext(ctx).
		Model(&model.Slot{}).
		Where("slot_no = ? AND status = ?", slotNo, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrSlotStatusInvalid
	}

	return nil
}

func (r *SlotRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.Slot, int64, error) {
	var slots []*model.Slot
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Slot{}).Where("owner_user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&slots).Error

	return slots, total, err
}
