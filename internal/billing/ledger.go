package billing

import (
	"slotmarket/internal/bizerr"
)

// ============================================================================
// 余额分账
// ============================================================================
//
// 余额分为赠送（free）与充值（paid）两个桶，扣款顺序固定：先赠送后充值。
// 这里只负责生成扣款计划，不做任何持久化 —— 落库由购买事务执行。

// BalanceSnapshot 余额快照
type BalanceSnapshot struct {
	Free  int64
	Paid  int64
	Total int64 // 为 0 时按 Free + Paid 计算
}

// DebitPlan 扣款计划
// 不变式：FreeUsed + PaidUsed == 应付金额，FreeUsed <= Free，PaidUsed <= Paid
type DebitPlan struct {
	FreeUsed int64
	PaidUsed int64
}

// PlanDebit 根据余额快照生成扣款计划
// 余额不足时返回带缺口金额的 InsufficientBalanceError
func PlanDebit(snap BalanceSnapshot, payable int64) (*DebitPlan, error) {
	if payable <= 0 {
		return nil, bizerr.NewValidation("payable", "应付金额必须大于0")
	}

	total := snap.Total
	if total == 0 {
		total = snap.Free + snap.Paid
	}
	if total < payable {
		return nil, &bizerr.InsufficientBalanceError{
			Payable:   payable,
			Total:     total,
			Shortfall: payable - total,
		}
	}
	// total 字段与分桶余额不一致时以分桶为准，扣款计划绝不超出任一桶
	if snap.Free+snap.Paid < payable {
		return nil, &bizerr.InsufficientBalanceError{
			Payable:   payable,
			Total:     snap.Free + snap.Paid,
			Shortfall: payable - (snap.Free + snap.Paid),
		}
	}

	freeUsed := snap.Free
	if freeUsed > payable {
		freeUsed = payable
	}
	return &DebitPlan{
		FreeUsed: freeUsed,
		PaidUsed: payable - freeUsed,
	}, nil
}

// LineSplit 单个槽位扣款的分桶明细，写入托管记录
type LineSplit struct {
	Amount     int64
	FreeAmount int64
	PaidAmount int64
}

// SplitLines 把扣款计划按行摊派
// 赠送额度按行顺序贪心消耗，各行 Free/Paid 之和与整体计划严格一致
func SplitLines(plan *DebitPlan, linePrices []int64) []LineSplit {
	splits := make([]LineSplit, 0, len(linePrices))
	remainingFree := plan.FreeUsed
	for _, price := range linePrices {
		lineFree := remainingFree
		if lineFree > price {
			lineFree = price
		}
		remainingFree -= lineFree
		splits = append(splits, LineSplit{
			Amount:     price,
			FreeAmount: lineFree,
			PaidAmount: price - lineFree,
		})
	}
	return splits
}
