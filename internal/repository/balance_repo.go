package repository

import (
	"context"
	"errors"

	"slotmarket/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrBalanceNotFound  = errors.New("余额账户不存在")
	ErrBalanceNotEnough = errors.New("余额不足")
	ErrOptimisticLock   = errors.New("乐观锁冲突，请重试")
)

type BalanceRepository struct {
	db *gorm.DB
}

func NewBalanceRepository(db *gorm.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

func (r *BalanceRepository) GetByUserID(ctx context.Context, userID int64) (*model.UserBalance, error) {
	var balance model.UserBalance
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBalanceNotFound
		}
		return nil, err
	}
	return &balance, nil
}

func (r *BalanceRepository) GetOrCreate(ctx context.Context, userID int64) (*model.UserBalance, error) {
	balance, err := r.GetByUserID(ctx, userID)
	if err == nil {
		return balance, nil
	}

	if !errors.Is(err, ErrBalanceNotFound) {
		return nil, err
	}

	newBalance := &model.UserBalance{
		UserID: userID,
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(newBalance).Error

	if err != nil {
		return nil, err
	}

	return r.GetByUserID(ctx, userID)
}

// Debit 原子条件扣款
//
// 【关键点】扣款是单条带条件的 UPDATE，条件同时校验两个余额桶和版本号：
// 1. free_balance >= freeUsed AND paid_balance >= paidUsed —— 数据库层面杜绝超扣
// 2. version = ? —— 并发购买时只有一个快照能扣成功，另一个拿到乐观锁冲突
// RowsAffected == 0 时回查账户区分"余额不足"和"版本冲突"。
func (r *BalanceRepository) Debit(ctx context.Context, tx *gorm.DB, userID int64, freeUsed, paidUsed int64, version int) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.UserBalance{}).
		Where("user_id = ? AND free_balance >= ? AND paid_balance >= ? AND version = ?",
			userID, freeUsed, paidUsed, version).
		Updates(map[string]interface{}{
			"free_balance":  gorm.Expr("free_balance - ?", freeUsed),
			"paid_balance":  gorm.Expr("paid_balance - ?", paidUsed),
			"total_balance": gorm.Expr("total_balance - ?", freeUsed+paidUsed),
			"version":       gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		balance, err := r.GetByUserID(ctx, userID)
		if err != nil {
			return err
		}
		if balance.FreeBalance < freeUsed || balance.PaidBalance < paidUsed {
			return ErrBalanceNotEnough
		}
		return ErrOptimisticLock
	}

	return nil
}

// Restore 回补扣款
// 购买事务失败或补偿任务发现悬空扣款时调用，按原始的 free/paid 拆分精确回补
func (r *BalanceRepository) Restore(ctx context.Context, tx *gorm.DB, userID int64, freeUsed, paidUsed int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.UserBalance{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"free_balance":  gorm.Expr("free_balance + ?", freeUsed),
			"paid_balance":  gorm.Expr("paid_balance + ?", paidUsed),
			"total_balance": gorm.Expr("total_balance + ?", freeUsed+paidUsed),
			"version":       gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrBalanceNotFound
	}

	return nil
}

// Increase 充值入账，balanceType 指定入账的余额桶
func (r *BalanceRepository) Increase(ctx context.Context, tx *gorm.DB, userID int64, amount int64, balanceType string) error {
	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{
		"total_balance": gorm.Expr("total_balance + ?", amount),
		"version":       gorm.Expr("version + 1"),
	}
	if balanceType == model.BalanceTypeFree {
		updates["free_balance"] = gorm.Expr("free_balance + ?", amount)
	} else {
		updates["paid_balance"] = gorm.Expr("paid_balance + ?", amount)
	}

	result := tx.WithContext(ctx).
		Model(&model.UserBalance{}).
		Where("user_id = ?", userID).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrBalanceNotFound
	}

	return nil
}
