package repository

import (
	"context"

	"slotmarket/internal/model"

	"gorm.io/gorm"
)

type CashHistoryRepository struct {
	db *gorm.DB
}

func NewCashHistoryRepository(db *gorm.DB) *CashHistoryRepository {
	return &CashHistoryRepository{db: db}
}

// CreateBatch 批量写入流水
// 扣款命中两个余额桶时一次购买会产生两条流水（FREE 一条 + PAID 一条）
func (r *CashHistoryRepository) CreateBatch(ctx context.Context, tx *gorm.DB, entries []*model.CashHistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(&entries).Error
}

func (r *CashHistoryRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.CashHistoryEntry, int64, error) {
	var entries []*model.CashHistoryEntry
	var total int64

	query := r.db.WithContext(ctx).Model(&model.CashHistoryEntry{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error

	return entries, total, err
}

func (r *CashHistoryRepository) ListBySlotNo(ctx context.Context, slotNo string) ([]*model.CashHistoryEntry, error) {
	var entries []*model.CashHistoryEntry
	err := r.db.WithContext(ctx).
		Where("reference_slot_no = ?", slotNo).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}
