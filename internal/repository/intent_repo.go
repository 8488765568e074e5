package repository

import (
	"context"
	"errors"
	"time"

	"slotmarket/internal/model"

	"gorm.io/gorm"
)

var ErrIntentStatusInvalid = errors.New("购买意向状态不合法")

type IntentRepository struct {
	db *gorm.DB
}

func NewIntentRepository(db *gorm.DB) *IntentRepository {
	return &IntentRepository{db: db}
}

func (r *IntentRepository) Create(ctx context.Context, tx *gorm.DB, intent *model.PurchaseIntent) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(intent).Error
}

func (r *IntentRepository) GetByRequestID(ctx context.Context, requestID string) (*model.PurchaseIntent, error) {
	var intent model.PurchaseIntent
	err := r.db.WithContext(ctx).Where("request_id = ?", requestID).First(&intent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &intent, nil
}

// UpdateStatus 条件状态更新
// WHERE status = fromStatus 保证同步回滚和补偿任务不会重复回补同一笔扣款
func (r *IntentRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, intentNo string, fromStatus, toStatus string) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.PurchaseIntent{}).
		Where("intent_no = ? AND status = ?", intentNo, fromStatus).
		Update("status", toStatus)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrIntentStatusInvalid
	}

	return nil
}

// Commit 提交意向：STARTED -> COMMITTED，同时记录落库的槽位编号
// 槽位编号存在意向上，幂等重放时才能把当初的购买结果原样还给调用方
func (r *IntentRepository) Commit(ctx context.Context, tx *gorm.DB, intentNo string, slotNosJSON string) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.PurchaseIntent{}).
		Where("intent_no = ? AND status = ?", intentNo, model.IntentStatusStarted).
		Updates(map[string]interface{}{
			"status":   model.IntentStatusCommitted,
			"slot_nos": slotNosJSON,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrIntentStatusInvalid
	}

	return nil
}

// GetStaleStarted 查询长时间停留在 STARTED 的意向
// 这些就是"已扣款但槽位未落库"的悬空扣款，交给补偿任务回补
func (r *IntentRepository) GetStaleStarted(ctx context.Context, before time.Time, limit int) ([]*model.PurchaseIntent, error) {
	var intents []*model.PurchaseIntent
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", model.IntentStatusStarted, before).
		Limit(limit).
		Find(&intents).Error
	return intents, err
}
