package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotmarket/internal/bizerr"
	"slotmarket/internal/model"
)

func TestGetBalanceDefaultsToZero(t *testing.T) {
	svc := NewBalanceService(newTestDB(t))

	// 未开户的用户返回零余额，不报错
	balance, err := svc.GetBalance(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), balance.UserID)
	assert.Zero(t, balance.TotalBalance)
}

func TestRecharge(t *testing.T) {
	db := newTestDB(t)
	svc := NewBalanceService(db)
	ctx := context.Background()

	require.NoError(t, svc.Recharge(ctx, 1, 1000, model.BalanceTypePaid))
	require.NoError(t, svc.Recharge(ctx, 1, 300, model.BalanceTypeFree))

	balance, err := svc.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(300), balance.FreeBalance)
	assert.Equal(t, int64(1000), balance.PaidBalance)
	assert.Equal(t, int64(1300), balance.TotalBalance)

	// 每笔充值一条正数流水
	entries, total, err := svc.ListCashHistory(ctx, 1, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	for _, entry := range entries {
		assert.Equal(t, model.CashTransactionTypeRecharge, entry.TransactionType)
		assert.Greater(t, entry.Amount, int64(0))
	}
}

func TestRechargeValidation(t *testing.T) {
	svc := NewBalanceService(newTestDB(t))
	ctx := context.Background()

	err := svc.Recharge(ctx, 1, 0, model.BalanceTypePaid)
	assert.True(t, bizerr.IsValidation(err))

	err = svc.Recharge(ctx, 1, -100, model.BalanceTypePaid)
	assert.True(t, bizerr.IsValidation(err))

	err = svc.Recharge(ctx, 1, 100, "BONUS")
	assert.True(t, bizerr.IsValidation(err))
}
