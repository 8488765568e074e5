package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"slotmarket/internal/model"
	"slotmarket/internal/repository"
)

func seedSlot(t *testing.T, db *gorm.DB, userID, campaignID int64, keywordID int64, status, slotNo string) {
	t.Helper()

	slot := &model.Slot{
		SlotNo:      slotNo,
		OwnerUserID: userID,
		CampaignID:  campaignID,
		KeywordID:   &keywordID,
		Quantity:    1,
		Status:      status,
	}
	if !model.IsTerminalSlotStatus(status) {
		key := model.BuildSlotActiveKey(userID, campaignID, keywordID)
		slot.ActiveKey = &key
	}
	require.NoError(t, db.Create(slot).Error)
}

func TestExcludedKeywordIDs(t *testing.T) {
	db := newTestDB(t)
	svc := NewSlotService(db)
	ctx := context.Background()

	// 非终态三种状态都计入排除集
	seedSlot(t, db, 1, 10, 101, model.SlotStatusPending, "SLT-a")
	seedSlot(t, db, 1, 10, 102, model.SlotStatusSubmitted, "SLT-b")
	seedSlot(t, db, 1, 10, 103, model.SlotStatusApproved, "SLT-c")
	// 终态不计入
	seedSlot(t, db, 1, 10, 104, model.SlotStatusRejected, "SLT-d")
	seedSlot(t, db, 1, 10, 105, model.SlotStatusCompleted, "SLT-e")
	// 其他用户/活动不影响
	seedSlot(t, db, 2, 10, 106, model.SlotStatusPending, "SLT-f")
	seedSlot(t, db, 1, 11, 107, model.SlotStatusPending, "SLT-g")

	ids, err := svc.ExcludedKeywordIDs(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{101, 102, 103}, ids)
}

func TestExcludedKeywordIDsUnionsDetails(t *testing.T) {
	db := newTestDB(t)
	svc := NewSlotService(db)
	ctx := context.Background()

	// 历史数据：直接关键词为空，明细行里带两个关键词
	slot := &model.Slot{
		SlotNo:      "SLT-legacy",
		OwnerUserID: 1,
		CampaignID:  10,
		Quantity:    2,
		Status:      model.SlotStatusApproved,
		InputData:   `{"price":220,"quantity":2,"details":[{"keyword_id":201,"quantity":1,"price":110},{"keyword_id":202,"quantity":1,"price":110}]}`,
	}
	require.NoError(t, db.Create(slot).Error)
	seedSlot(t, db, 1, 10, 101, model.SlotStatusPending, "SLT-direct")

	ids, err := svc.ExcludedKeywordIDs(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{101, 201, 202}, ids)
}

func TestPurchasableKeywords(t *testing.T) {
	db := newTestDB(t)
	svc := NewSlotService(db)
	ctx := context.Background()

	seedSlot(t, db, 1, 10, 101, model.SlotStatusPending, "SLT-a")

	purchasable, err := svc.PurchasableKeywords(ctx, 1, 10, []int64{100, 101, 102})
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 102}, purchasable)
}

func TestSlotStatusTransitions(t *testing.T) {
	db := newTestDB(t)
	svc := NewSlotService(db)
	ctx := context.Background()

	seedSlot(t, db, 1, 10, 101, model.SlotStatusPending, "SLT-flow")

	// PENDING 不能直接 APPROVED
	err := svc.UpdateStatus(ctx, "SLT-flow", model.SlotStatusApproved)
	assert.ErrorIs(t, err, repository.ErrSlotStatusInvalid)

	require.NoError(t, svc.UpdateStatus(ctx, "SLT-flow", model.SlotStatusSubmitted))
	require.NoError(t, svc.UpdateStatus(ctx, "SLT-flow", model.SlotStatusApproved))
	require.NoError(t, svc.UpdateStatus(ctx, "SLT-flow", model.SlotStatusCompleted))

	// 终态后不允许继续流转
	err = svc.UpdateStatus(ctx, "SLT-flow", model.SlotStatusRejected)
	assert.ErrorIs(t, err, repository.ErrSlotStatusInvalid)
}

func TestTerminalStatusReleasesActiveKey(t *testing.T) {
	db := newTestDB(t)
	svc := NewSlotService(db)
	ctx := context.Background()

	seedSlot(t, db, 1, 10, 101, model.SlotStatusSubmitted, "SLT-rej")

	// 拒单后 active_key 置空，排除集同步释放
	require.NoError(t, svc.UpdateStatus(ctx, "SLT-rej", model.SlotStatusRejected))

	slot, err := svc.GetSlot(ctx, "SLT-rej")
	require.NoError(t, err)
	assert.Equal(t, model.SlotStatusRejected, slot.Status)
	assert.Nil(t, slot.ActiveKey)

	ids, err := svc.ExcludedKeywordIDs(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	// 释放后同一关键词可以重新占位
	seedSlot(t, db, 1, 10, 101, model.SlotStatusPending, "SLT-again")
}

func TestGetSlotNotFound(t *testing.T) {
	db := newTestDB(t)
	svc := NewSlotService(db)

	_, err := svc.GetSlot(context.Background(), "SLT-missing")
	assert.ErrorIs(t, err, repository.ErrSlotNotFound)
}
