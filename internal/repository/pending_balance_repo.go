package repository

import (
	"context"

	"slotmarket/internal/model"

	"gorm.io/gorm"
)

type PendingBalanceRepository struct {
	db *gorm.DB
}

func NewPendingBalanceRepository(db *gorm.DB) *PendingBalanceRepository {
	return &PendingBalanceRepository{db: db}
}

func (r *PendingBalanceRepository) CreateBatch(ctx context.Context, tx *gorm.DB, entries []*model.PendingBalanceEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(&entries).Error
}

func (r *PendingBalanceRepository) GetBySlotNo(ctx context.Context, slotNo string) (*model.PendingBalanceEntry, error) {
	var entry model.PendingBalanceEntry
	err := r.db.WithContext(ctx).Where("slot_no = ?", slotNo).First(&entry).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *PendingBalanceRepository) ListByUserID(ctx context.Context, userID int64, status string) ([]*model.PendingBalanceEntry, error) {
	var entries []*model.PendingBalanceEntry
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Order("created_at DESC").Find(&entries).Error
	return entries, err
}
