package service

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"slotmarket/internal/config"
	"slotmarket/internal/model"
)

// 测试用内存数据库（SQLite）
// 内存库的每个连接各自独立，必须限制为单连接，否则事务会落到另一个空库上
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
		&model.Campaign{},
		&model.Slot{},
		&model.UserBalance{},
		&model.CashHistoryEntry{},
		&model.PendingBalanceEntry{},
		&model.GuaranteeQuoteRequest{},
		&model.NegotiationMessage{},
		&model.Notification{},
		&model.PurchaseIntent{},
		&model.OutboxMessage{},
	))

	return db
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func newTestConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{NotificationEvents: "test.notification.events"},
		},
		Business: config.BusinessConfig{
			MaxRetryCount:      3,
			IntentStaleMinutes: 5,
			OperatorUserID:     900,
		},
	}
}

const testInputFields = `[{"name":"site_url","label":"投放链接","field_type":"URL","required":true},` +
	`{"name":"daily_cap","label":"日上限","field_type":"NUMBER","required":false}]`

// seedStandardCampaign 上架中的标准型活动
func seedStandardCampaign(t *testing.T, db *gorm.DB, ownerID int64) *model.Campaign {
	t.Helper()

	campaign := &model.Campaign{
		Name:                "首页置顶推广",
		ServiceType:         "PLACE",
		SlotType:            model.SlotTypeStandard,
		Description:         "首页置顶展示位",
		DetailedDescription: "按天计费的首页置顶展示位",
		UnitPrice:           100,
		MinQuantity:         1,
		Status:              model.CampaignStatusActive,
		OwnerID:             ownerID,
		UserInputFields:     testInputFields,
	}
	require.NoError(t, db.Create(campaign).Error)
	return campaign
}

// seedGuaranteeCampaign 上架中的保量型活动，协商价区间 [10000, 50000]
func seedGuaranteeCampaign(t *testing.T, db *gorm.DB, ownerID int64) *model.Campaign {
	t.Helper()

	campaign := &model.Campaign{
		Name:                "搜索排名保量",
		ServiceType:         "RANK",
		SlotType:            model.SlotTypeGuarantee,
		Description:         "保证搜索排名前三",
		DetailedDescription: "十天保量周期，每日核验排名",
		Status:              model.CampaignStatusActive,
		OwnerID:             ownerID,
		UserInputFields:     testInputFields,
		GuaranteeCount:      10,
		GuaranteeUnit:       model.GuaranteeUnitDay,
		GuaranteePeriodDays: 10,
		TargetRank:          3,
		MinGuaranteePrice:   10000,
		MaxGuaranteePrice:   50000,
	}
	require.NoError(t, db.Create(campaign).Error)
	return campaign
}

func seedBalance(t *testing.T, db *gorm.DB, userID, free, paid int64) {
	t.Helper()

	require.NoError(t, db.Create(&model.UserBalance{
		UserID:       userID,
		FreeBalance:  free,
		PaidBalance:  paid,
		TotalBalance: free + paid,
	}).Error)
}

func loadBalance(t *testing.T, db *gorm.DB, userID int64) *model.UserBalance {
	t.Helper()

	var balance model.UserBalance
	require.NoError(t, db.Where("user_id = ?", userID).First(&balance).Error)
	return &balance
}

func validPurchaseFields() map[string]string {
	return map[string]string{
		"site_url":  "https://example.com/landing",
		"daily_cap": "200",
	}
}
