package service

import (
	"context"
	"errors"
	"fmt"

	"slotmarket/internal/bizerr"
	"slotmarket/internal/model"
	"slotmarket/internal/repository"
	"slotmarket/pkg/idgen"

	"gorm.io/gorm"
)

// BalanceService 余额查询与充值
type BalanceService struct {
	db              *gorm.DB
	balanceRepo     *repository.BalanceRepository
	cashHistoryRepo *repository.CashHistoryRepository
}

func NewBalanceService(db *gorm.DB) *BalanceService {
	return &BalanceService{
		db:              db,
		balanceRepo:     repository.NewBalanceRepository(db),
		cashHistoryRepo: repository.NewCashHistoryRepository(db),
	}
}

func (s *BalanceService) GetBalance(ctx context.Context, userID int64) (*model.UserBalance, error) {
	balance, err := s.balanceRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrBalanceNotFound) {
			return &model.UserBalance{UserID: userID}, nil
		}
		return nil, err
	}
	return balance, nil
}

// Recharge 充值入账，充值和流水在同一事务内落库
func (s *BalanceService) Recharge(ctx context.Context, userID int64, amount int64, balanceType string) error {
	if amount <= 0 {
		return bizerr.NewValidation("amount", "充值金额必须大于0")
	}
	if balanceType != model.BalanceTypeFree && balanceType != model.BalanceTypePaid {
		return bizerr.NewValidation("balance_type", "余额类型不合法")
	}

	if _, err := s.balanceRepo.GetOrCreate(ctx, userID); err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.balanceRepo.Increase(ctx, tx, userID, amount, balanceType); err != nil {
			return fmt.Errorf("充值入账失败: %w", err)
		}

		entry := &model.CashHistoryEntry{
			TransactionNo:   idgen.GenerateTransactionNo(),
			UserID:          userID,
			Amount:          amount,
			BalanceType:     balanceType,
			TransactionType: model.CashTransactionTypeRecharge,
			Remark:          "充值",
		}
		if err := s.cashHistoryRepo.CreateBatch(ctx, tx, []*model.CashHistoryEntry{entry}); err != nil {
			return fmt.Errorf("记录流水失败: %w", err)
		}
		return nil
	})
}

func (s *BalanceService) ListCashHistory(ctx context.Context, userID int64, page, pageSize int) ([]*model.CashHistoryEntry, int64, error) {
	return s.cashHistoryRepo.ListByUserID(ctx, userID, page, pageSize)
}
