package job

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"slotmarket/internal/config"
	"slotmarket/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.UserBalance{},
		&model.PurchaseIntent{},
	))
	return db
}

func seedIntent(t *testing.T, db *gorm.DB, intentNo, requestID, status string, freeUsed, paidUsed int64, age time.Duration) {
	t.Helper()

	require.NoError(t, db.Create(&model.PurchaseIntent{
		IntentNo:      intentNo,
		RequestID:     requestID,
		UserID:        1,
		CampaignID:    10,
		PayableAmount: freeUsed + paidUsed,
		FreeUsed:      freeUsed,
		PaidUsed:      paidUsed,
		Status:        status,
		CreatedAt:     time.Now().Add(-age),
	}).Error)
}

func TestCompensateStaleIntents(t *testing.T) {
	db := newTestDB(t)
	cfg := &config.Config{Business: config.BusinessConfig{IntentStaleMinutes: 5}}

	// 扣款后的余额：原 500/1000 被扣掉 200/300
	require.NoError(t, db.Create(&model.UserBalance{
		UserID:       1,
		FreeBalance:  300,
		PaidBalance:  700,
		TotalBalance: 1000,
	}).Error)

	// 悬空扣款：STARTED 超过判定时长
	seedIntent(t, db, "INT-stale", "req-stale", model.IntentStatusStarted, 200, 300, 10*time.Minute)
	// 刚写入的 STARTED 还在处理窗口内，不回补
	seedIntent(t, db, "INT-fresh", "req-fresh", model.IntentStatusStarted, 50, 50, 0)
	// 已提交/已补偿的不碰
	seedIntent(t, db, "INT-done", "req-done", model.IntentStatusCommitted, 100, 100, 10*time.Minute)
	seedIntent(t, db, "INT-comp", "req-comp", model.IntentStatusCompensated, 100, 100, 10*time.Minute)

	compensator := NewIntentCompensator(db, cfg)
	compensator.compensateStaleIntents(context.Background())

	// 只有悬空的那笔被回补，按 free/paid 拆分精确加回
	var balance model.UserBalance
	require.NoError(t, db.Where("user_id = ?", 1).First(&balance).Error)
	assert.Equal(t, int64(500), balance.FreeBalance)
	assert.Equal(t, int64(1000), balance.PaidBalance)
	assert.Equal(t, int64(1500), balance.TotalBalance)

	var stale model.PurchaseIntent
	require.NoError(t, db.Where("intent_no = ?", "INT-stale").First(&stale).Error)
	assert.Equal(t, model.IntentStatusCompensated, stale.Status)

	var fresh model.PurchaseIntent
	require.NoError(t, db.Where("intent_no = ?", "INT-fresh").First(&fresh).Error)
	assert.Equal(t, model.IntentStatusStarted, fresh.Status)
}

func TestCompensateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	cfg := &config.Config{Business: config.BusinessConfig{IntentStaleMinutes: 5}}

	require.NoError(t, db.Create(&model.UserBalance{
		UserID:       1,
		FreeBalance:  0,
		PaidBalance:  0,
		TotalBalance: 0,
	}).Error)
	seedIntent(t, db, "INT-once", "req-once", model.IntentStatusStarted, 100, 200, 10*time.Minute)

	compensator := NewIntentCompensator(db, cfg)
	compensator.compensateStaleIntents(context.Background())
	// 第二轮扫描不会重复回补
	compensator.compensateStaleIntents(context.Background())

	var balance model.UserBalance
	require.NoError(t, db.Where("user_id = ?", 1).First(&balance).Error)
	assert.Equal(t, int64(100), balance.FreeBalance)
	assert.Equal(t, int64(200), balance.PaidBalance)
	assert.Equal(t, int64(300), balance.TotalBalance)
}
