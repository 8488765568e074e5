package service

import (
	"context"
	"sort"

	"slotmarket/internal/model"
	"slotmarket/internal/repository"

	"gorm.io/gorm"
)

// SlotService 槽位查询与状态管理，同时对外提供关键词去重过滤
type SlotService struct {
	slotRepo *repository.SlotRepository
	db       *gorm.DB
}

func NewSlotService(db *gorm.DB) *SlotService {
	return &SlotService{
		slotRepo: repository.NewSlotRepository(db),
		db:       db,
	}
}

// ExcludedKeywordIDs 某用户在某活动下不可重复购买的关键词集合
//
// 【关键点】每次调用都重新查库，不做任何缓存 ——
// 购买成功后该关键词必须立刻从可选列表中消失，不能依赖手动刷新。
// 只统计非终态槽位（PENDING/SUBMITTED/APPROVED），被拒绝或已完成的不算。
func (s *SlotService) ExcludedKeywordIDs(ctx context.Context, userID, campaignID int64) ([]int64, error) {
	slots, err := s.slotRepo.ListActiveByUserAndCampaign(ctx, userID, campaignID)
	if err != nil {
		return nil, err
	}

	excluded, err := collectKeywordIDs(slots)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(excluded))
	for id := range excluded {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// PurchasableKeywords 候选关键词去掉排除集后的可购列表
func (s *SlotService) PurchasableKeywords(ctx context.Context, userID, campaignID int64, candidates []int64) ([]int64, error) {
	slots, err := s.slotRepo.ListActiveByUserAndCampaign(ctx, userID, campaignID)
	if err != nil {
		return nil, err
	}
	excluded, err := collectKeywordIDs(slots)
	if err != nil {
		return nil, err
	}

	purchasable := make([]int64, 0, len(candidates))
	for _, id := range candidates {
		if !excluded[id] {
			purchasable = append(purchasable, id)
		}
	}
	return purchasable, nil
}

func (s *SlotService) GetSlot(ctx context.Context, slotNo string) (*model.Slot, error) {
	return s.slotRepo.GetBySlotNo(ctx, slotNo)
}

func (s *SlotService) ListUserSlots(ctx context.Context, userID int64, page, pageSize int) ([]*model.Slot, int64, error) {
	return s.slotRepo.ListByUserID(ctx, userID, page, pageSize)
}

// UpdateStatus 槽位状态流转
// 进入终态时仓储层会清空 active_key，对应关键词重新变为可购买
func (s *SlotService) UpdateStatus(ctx context.Context, slotNo, toStatus string) error {
	slot, err := s.slotRepo.GetBySlotNo(ctx, slotNo)
	if err != nil {
		return err
	}

	if !model.SlotCanTransitionTo(slot.Status, toStatus) {
		return repository.ErrSlotStatusInvalid
	}

	return s.slotRepo.UpdateStatus(ctx, nil, slotNo, slot.Status, toStatus)
}
