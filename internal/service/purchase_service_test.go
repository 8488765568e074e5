package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotmarket/internal/bizerr"
	"slotmarket/internal/model"
)

func newPurchaseService(t *testing.T) *PurchaseService {
	t.Helper()
	return NewPurchaseService(newTestDB(t), newTestRedis(t), newTestConfig())
}

func keywordRequest(userID, campaignID int64, requestID string) *PurchaseRequest {
	return &PurchaseRequest{
		RequestID:    requestID,
		UserID:       userID,
		CampaignID:   campaignID,
		DurationDays: 3,
		Lines: []PurchaseLine{
			{KeywordID: 101, KeywordText: "装修公司", Quantity: 10},
		},
		Fields: validPurchaseFields(),
	}
}

func TestPurchaseHappyPath(t *testing.T) {
	svc := newPurchaseService(t)
	ctx := context.Background()

	campaign := seedStandardCampaign(t, svc.db, 2)
	seedBalance(t, svc.db, 1, 500, 5000)

	// 单价100 × 数量10 × 3天 = 3000，含税 3300
	resp, err := svc.Purchase(ctx, keywordRequest(1, campaign.ID, "req-001"))
	require.NoError(t, err)
	assert.Equal(t, int64(3300), resp.Payable)
	assert.Equal(t, int64(500), resp.FreeUsed)
	assert.Equal(t, int64(2800), resp.PaidUsed)
	require.Len(t, resp.SlotNos, 1)

	// 余额：赠送扣光，充值扣2800
	balance := loadBalance(t, svc.db, 1)
	assert.Equal(t, int64(0), balance.FreeBalance)
	assert.Equal(t, int64(2200), balance.PaidBalance)
	assert.Equal(t, int64(2200), balance.TotalBalance)

	// 槽位：PENDING 状态，active_key 占位
	var slot model.Slot
	require.NoError(t, svc.db.Where("slot_no = ?", resp.SlotNos[0]).First(&slot).Error)
	assert.Equal(t, model.SlotStatusPending, slot.Status)
	require.NotNil(t, slot.KeywordID)
	assert.Equal(t, int64(101), *slot.KeywordID)
	require.NotNil(t, slot.ActiveKey)
	assert.Equal(t, model.BuildSlotActiveKey(1, campaign.ID, 101), *slot.ActiveKey)

	input, err := slot.ParseInput()
	require.NoError(t, err)
	assert.Equal(t, int64(3300), input.Price)
	assert.Equal(t, 3, input.DurationDays)
	require.Len(t, input.Details, 1)
	assert.Equal(t, "装修公司", input.Details[0].KeywordText)

	// 流水：命中两个余额桶，各一条负数出账
	var cashCount int64
	svc.db.Model(&model.CashHistoryEntry{}).Where("user_id = ?", 1).Count(&cashCount)
	assert.Equal(t, int64(2), cashCount)

	var freeEntry model.CashHistoryEntry
	require.NoError(t, svc.db.Where("user_id = ? AND balance_type = ?", 1, model.BalanceTypeFree).First(&freeEntry).Error)
	assert.Equal(t, int64(-500), freeEntry.Amount)
	assert.Equal(t, model.CashTransactionTypePurchase, freeEntry.TransactionType)

	// 托管：金额与分桶明细齐全
	var pending model.PendingBalanceEntry
	require.NoError(t, svc.db.Where("slot_no = ?", resp.SlotNos[0]).First(&pending).Error)
	assert.Equal(t, int64(3300), pending.Amount)
	assert.Equal(t, int64(500), pending.FreeAmount)
	assert.Equal(t, int64(2800), pending.PaidAmount)
	assert.Equal(t, model.PendingBalanceStatusPending, pending.Status)

	// 意向：COMMITTED
	var intent model.PurchaseIntent
	require.NoError(t, svc.db.Where("request_id = ?", "req-001").First(&intent).Error)
	assert.Equal(t, model.IntentStatusCommitted, intent.Status)

	// 通知 + 发件箱事件
	var notifyCount int64
	svc.db.Model(&model.Notification{}).Where("user_id = ? AND type = ?", 1, model.NotificationTypePurchaseCompleted).Count(&notifyCount)
	assert.Equal(t, int64(1), notifyCount)

	var outboxCount int64
	svc.db.Model(&model.OutboxMessage{}).Where("status = ?", model.OutboxStatusPending).Count(&outboxCount)
	assert.Equal(t, int64(1), outboxCount)
}

func TestPurchaseManualQuantity(t *testing.T) {
	svc := newPurchaseService(t)
	ctx := context.Background()

	campaign := seedStandardCampaign(t, svc.db, 2)
	seedBalance(t, svc.db, 1, 0, 1000)

	// 手动录入模式：无关键词，单行购买。100 × 5 × 1天 = 500，含税 550
	resp, err := svc.Purchase(ctx, &PurchaseRequest{
		RequestID:    "req-manual",
		UserID:       1,
		CampaignID:   campaign.ID,
		DurationDays: 1,
		ManualQty:    5,
		Fields:       validPurchaseFields(),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(550), resp.Payable)
	require.Len(t, resp.SlotNos, 1)

	// 无关键词时不写 active_key
	var slot model.Slot
	require.NoError(t, svc.db.Where("slot_no = ?", resp.SlotNos[0]).First(&slot).Error)
	assert.Nil(t, slot.KeywordID)
	assert.Nil(t, slot.ActiveKey)
}

func TestPurchaseMultipleLines(t *testing.T) {
	svc := newPurchaseService(t)
	ctx := context.Background()

	campaign := seedStandardCampaign(t, svc.db, 2)
	seedBalance(t, svc.db, 1, 300, 5000)

	// 两行各 100 × 2 × 1天 = 200，含税各 220，合计 440
	resp, err := svc.Purchase(ctx, &PurchaseRequest{
		RequestID:    "req-multi",
		UserID:       1,
		CampaignID:   campaign.ID,
		DurationDays: 1,
		Lines: []PurchaseLine{
			{KeywordID: 101, KeywordText: "甲", Quantity: 2},
			{KeywordID: 102, KeywordText: "乙", Quantity: 2},
		},
		Fields: validPurchaseFields(),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(440), resp.Payable)
	require.Len(t, resp.SlotNos, 2)

	// 赠送额度按行贪心：第一行220全吃赠送，第二行赠送80 + 充值140
	var pendings []model.PendingBalanceEntry
	require.NoError(t, svc.db.Where("user_id = ?", 1).Order("id").Find(&pendings).Error)
	require.Len(t, pendings, 2)
	assert.Equal(t, int64(220), pendings[0].FreeAmount)
	assert.Equal(t, int64(0), pendings[0].PaidAmount)
	assert.Equal(t, int64(80), pendings[1].FreeAmount)
	assert.Equal(t, int64(140), pendings[1].PaidAmount)
}

func TestPurchaseInsufficientBalance(t *testing.T) {
	svc := newPurchaseService(t)
	ctx := context.Background()

	campaign := seedStandardCampaign(t, svc.db, 2)
	seedBalance(t, svc.db, 1, 100, 100)

	_, err := svc.Purchase(ctx, keywordRequest(1, campaign.ID, "req-poor"))
	require.Error(t, err)

	var insufficient *bizerr.InsufficientBalanceError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, int64(3300), insufficient.Payable)
	assert.Equal(t, int64(3100), insufficient.Shortfall)

	// 余额原封不动，无槽位、流水、托管落库
	balance := loadBalance(t, svc.db, 1)
	assert.Equal(t, int64(100), balance.FreeBalance)
	assert.Equal(t, int64(100), balance.PaidBalance)

	var slotCount, cashCount, pendingCount int64
	svc.db.Model(&model.Slot{}).Count(&slotCount)
	svc.db.Model(&model.CashHistoryEntry{}).Count(&cashCount)
	svc.db.Model(&model.PendingBalanceEntry{}).Count(&pendingCount)
	assert.Zero(t, slotCount)
	assert.Zero(t, cashCount)
	assert.Zero(t, pendingCount)
}

func TestPurchaseDuplicateKeywordConflict(t *testing.T) {
	svc := newPurchaseService(t)
	ctx := context.Background()

	campaign := seedStandardCampaign(t, svc.db, 2)
	seedBalance(t, svc.db, 1, 500, 10000)

	_, err := svc.Purchase(ctx, keywordRequest(1, campaign.ID, "req-first"))
	require.NoError(t, err)

	// 同一关键词再次购买：校验阶段即冲突，余额不再变动
	balanceBefore := loadBalance(t, svc.db, 1)
	_, err = svc.Purchase(ctx, keywordRequest(1, campaign.ID, "req-second"))
	require.Error(t, err)
	assert.True(t, bizerr.IsConflict(err))

	balanceAfter := loadBalance(t, svc.db, 1)
	assert.Equal(t, balanceBefore.TotalBalance, balanceAfter.TotalBalance)
}

func TestPurchaseRollbackRestoresBalance(t *testing.T) {
	svc := newPurchaseService(t)
	ctx := context.Background()

	campaign := seedStandardCampaign(t, svc.db, 2)
	seedBalance(t, svc.db, 1, 500, 10000)

	req := keywordRequest(1, campaign.ID, "req-race")

	// 手工抢占 active_key 唯一键，模拟并发请求在本请求校验之后、落库之前先行写入。
	// 占位行归属另一个用户，校验查询看不到它，冲突只会在插入槽位时由唯一索引暴露
	key := model.BuildSlotActiveKey(1, campaign.ID, 101)
	occupier := &model.Slot{
		SlotNo:        "SLT-occupier",
		OwnerUserID:   3,
		CampaignID:    campaign.ID,
		DistributorID: 2,
		Quantity:      1,
		Status:        model.SlotStatusPending,
		ActiveKey:     &key,
	}
	require.NoError(t, svc.db.Create(occupier).Error)

	balanceBefore := loadBalance(t, svc.db, 1)
	_, err := svc.Purchase(ctx, req)
	require.Error(t, err)
	assert.True(t, bizerr.IsConflict(err))

	// 事务整体回滚且余额已同步回补
	balanceAfter := loadBalance(t, svc.db, 1)
	assert.Equal(t, balanceBefore.FreeBalance, balanceAfter.FreeBalance)
	assert.Equal(t, balanceBefore.PaidBalance, balanceAfter.PaidBalance)
	assert.Equal(t, balanceBefore.TotalBalance, balanceAfter.TotalBalance)

	// 意向标记为 COMPENSATED，补偿任务不会再碰这笔扣款
	var intent model.PurchaseIntent
	require.NoError(t, svc.db.Where("request_id = ?", "req-race").First(&intent).Error)
	assert.Equal(t, model.IntentStatusCompensated, intent.Status)

	// 本次请求未留下任何槽位/流水/托管
	var slotCount int64
	svc.db.Model(&model.Slot{}).Where("owner_user_id = ?", 1).Count(&slotCount)
	assert.Zero(t, slotCount)
}

func TestPurchaseIdempotentReplay(t *testing.T) {
	svc := newPurchaseService(t)
	ctx := context.Background()

	campaign := seedStandardCampaign(t, svc.db, 2)
	seedBalance(t, svc.db, 1, 500, 10000)

	first, err := svc.Purchase(ctx, keywordRequest(1, campaign.ID, "req-same"))
	require.NoError(t, err)

	// 同一 request_id 重放：返回原意向，不再扣款
	balanceBefore := loadBalance(t, svc.db, 1)
	replay, err := svc.Purchase(ctx, keywordRequest(1, campaign.ID, "req-same"))
	require.NoError(t, err)
	assert.Equal(t, first.IntentNo, replay.IntentNo)
	assert.Equal(t, first.Payable, replay.Payable)
	assert.Equal(t, first.SlotNos, replay.SlotNos)

	balanceAfter := loadBalance(t, svc.db, 1)
	assert.Equal(t, balanceBefore.TotalBalance, balanceAfter.TotalBalance)

	var slotCount int64
	svc.db.Model(&model.Slot{}).Count(&slotCount)
	assert.Equal(t, int64(1), slotCount)
}

func TestPurchaseRetryAfterCompensation(t *testing.T) {
	svc := newPurchaseService(t)
	ctx := context.Background()

	campaign := seedStandardCampaign(t, svc.db, 2)
	seedBalance(t, svc.db, 1, 500, 10000)

	// 第一次购买因唯一键冲突失败并回补，意向进入 COMPENSATED
	key := model.BuildSlotActiveKey(1, campaign.ID, 101)
	occupier := &model.Slot{
		SlotNo:        "SLT-occupier",
		OwnerUserID:   3,
		CampaignID:    campaign.ID,
		DistributorID: 2,
		Quantity:      1,
		Status:        model.SlotStatusPending,
		ActiveKey:     &key,
	}
	require.NoError(t, svc.db.Create(occupier).Error)

	_, err := svc.Purchase(ctx, keywordRequest(1, campaign.ID, "req-retry"))
	require.Error(t, err)

	var intent model.PurchaseIntent
	require.NoError(t, svc.db.Where("request_id = ?", "req-retry").First(&intent).Error)
	require.Equal(t, model.IntentStatusCompensated, intent.Status)

	// 冲突已消除，但同一 request_id 重试绝不能被当成"已处理"而返回成功
	require.NoError(t, svc.db.Delete(occupier).Error)

	balanceBefore := loadBalance(t, svc.db, 1)
	resp, err := svc.Purchase(ctx, keywordRequest(1, campaign.ID, "req-retry"))
	require.Error(t, err)
	assert.True(t, bizerr.IsConflict(err))
	assert.Nil(t, resp)

	// 重试没有扣款也没有生成槽位
	balanceAfter := loadBalance(t, svc.db, 1)
	assert.Equal(t, balanceBefore.TotalBalance, balanceAfter.TotalBalance)
	var slotCount int64
	svc.db.Model(&model.Slot{}).Where("owner_user_id = ?", 1).Count(&slotCount)
	assert.Zero(t, slotCount)
}

func TestPurchaseReplayWhileStarted(t *testing.T) {
	svc := newPurchaseService(t)
	ctx := context.Background()

	campaign := seedStandardCampaign(t, svc.db, 2)
	seedBalance(t, svc.db, 1, 500, 10000)

	// 另一个处理中的请求已写入 STARTED 意向
	require.NoError(t, svc.db.Create(&model.PurchaseIntent{
		IntentNo:      "INT-inflight",
		RequestID:     "req-inflight",
		UserID:        1,
		CampaignID:    campaign.ID,
		PayableAmount: 3300,
		FreeUsed:      500,
		PaidUsed:      2800,
		Status:        model.IntentStatusStarted,
	}).Error)

	// 处理中的请求既不能重放成功，也不能触发第二次扣款
	balanceBefore := loadBalance(t, svc.db, 1)
	resp, err := svc.Purchase(ctx, keywordRequest(1, campaign.ID, "req-inflight"))
	require.Error(t, err)
	assert.True(t, bizerr.IsConflict(err))
	assert.Nil(t, resp)

	balanceAfter := loadBalance(t, svc.db, 1)
	assert.Equal(t, balanceBefore.TotalBalance, balanceAfter.TotalBalance)
}

func TestPurchaseGuaranteeCampaignBlocked(t *testing.T) {
	svc := newPurchaseService(t)
	ctx := context.Background()

	campaign := seedGuaranteeCampaign(t, svc.db, 2)
	seedBalance(t, svc.db, 1, 0, 100000)

	_, err := svc.Purchase(ctx, keywordRequest(1, campaign.ID, "req-guarantee"))
	require.Error(t, err)
	assert.True(t, bizerr.IsValidation(err))

	// 连意向都不会写
	var intentCount int64
	svc.db.Model(&model.PurchaseIntent{}).Count(&intentCount)
	assert.Zero(t, intentCount)
}

func TestPurchaseInactiveCampaign(t *testing.T) {
	svc := newPurchaseService(t)
	ctx := context.Background()

	campaign := seedStandardCampaign(t, svc.db, 2)
	require.NoError(t, svc.db.Model(&model.Campaign{}).Where("id = ?", campaign.ID).
		Update("status", model.CampaignStatusPause).Error)
	seedBalance(t, svc.db, 1, 0, 100000)

	_, err := svc.Purchase(ctx, keywordRequest(1, campaign.ID, "req-paused"))
	require.Error(t, err)
	assert.True(t, bizerr.IsValidation(err))
}

func TestPurchaseValidationErrors(t *testing.T) {
	svc := newPurchaseService(t)
	ctx := context.Background()

	campaign := seedStandardCampaign(t, svc.db, 2)
	seedBalance(t, svc.db, 1, 0, 100000)

	cases := []struct {
		name   string
		mutate func(req *PurchaseRequest)
	}{
		{"天数为0", func(req *PurchaseRequest) { req.DurationDays = 0 }},
		{"行数量为0", func(req *PurchaseRequest) { req.Lines[0].Quantity = 0 }},
		{"请求内关键词重复", func(req *PurchaseRequest) {
			req.Lines = append(req.Lines, PurchaseLine{KeywordID: 101, Quantity: 1})
		}},
		{"必填字段缺失", func(req *PurchaseRequest) { delete(req.Fields, "site_url") }},
		{"链接格式不合法", func(req *PurchaseRequest) { req.Fields["site_url"] = "ftp://example.com" }},
		{"数字字段含非数字", func(req *PurchaseRequest) { req.Fields["daily_cap"] = "12a" }},
		{"日期格式不合法", func(req *PurchaseRequest) { req.ExpectedStart = "2026/01/01" }},
	}

	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := keywordRequest(1, campaign.ID, "req-invalid-"+string(rune('a'+i)))
			tc.mutate(req)
			_, err := svc.Purchase(ctx, req)
			require.Error(t, err)
			assert.True(t, bizerr.IsValidation(err), "expected validation error, got %v", err)
		})
	}

	// 校验失败不产生任何落库副作用
	var intentCount int64
	svc.db.Model(&model.PurchaseIntent{}).Count(&intentCount)
	assert.Zero(t, intentCount)
}

func TestPurchaseOptionalFieldSkipped(t *testing.T) {
	svc := newPurchaseService(t)
	ctx := context.Background()

	campaign := seedStandardCampaign(t, svc.db, 2)
	seedBalance(t, svc.db, 1, 0, 100000)

	// 非必填字段留空不报错
	req := keywordRequest(1, campaign.ID, "req-optional")
	delete(req.Fields, "daily_cap")
	_, err := svc.Purchase(ctx, req)
	require.NoError(t, err)
}
