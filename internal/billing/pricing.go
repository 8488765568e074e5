package billing

import (
	"fmt"

	"slotmarket/internal/bizerr"
	"slotmarket/internal/model"
)

// ============================================================================
// 计价器
// ============================================================================
//
// 纯函数，不依赖任何外部状态。金额一律使用整数货币单位（int64）。
//
// 【关键点】含税金额的舍入规则是"四舍五入到整数货币单位"（round half-up）。
// 整数实现：(line * 110 + 50) / 100，避免浮点误差。

// TaxRatePct 固定税率 10%
const TaxRatePct = 10

// PayableWithTax 计算含税应付金额，四舍五入到整数货币单位
func PayableWithTax(lineTotal int64) int64 {
	return (lineTotal*(100+TaxRatePct) + 50) / 100
}

// QuoteResult 标准型活动的单行计价结果
type QuoteResult struct {
	Quantity     int   `json:"quantity"`      // 规整后的数量
	DurationDays int   `json:"duration_days"` // 规整后的天数
	LineTotal    int64 `json:"line_total"`    // 税前小计
	Payable      int64 `json:"payable"`       // 含税应付
}

// Quote 标准型活动计价
// 数量低于活动最低购买量时抬升到最低量；天数最小为 1
func Quote(unitPrice int64, quantity, minQuantity, durationDays int) (*QuoteResult, error) {
	if unitPrice < 0 {
		return nil, bizerr.NewValidation("unit_price", "单价不能为负数")
	}
	if quantity < 1 {
		return nil, bizerr.NewValidation("quantity", "数量必须大于0")
	}
	if minQuantity > 0 && quantity < minQuantity {
		quantity = minQuantity
	}
	if durationDays < 1 {
		durationDays = 1
	}

	lineTotal := unitPrice * int64(quantity) * int64(durationDays)
	return &QuoteResult{
		Quantity:     quantity,
		DurationDays: durationDays,
		LineTotal:    lineTotal,
		Payable:      PayableWithTax(lineTotal),
	}, nil
}

// GuaranteeQuoteResult 保量型活动的报价估算结果
type GuaranteeQuoteResult struct {
	ProposedTotal int64 `json:"proposed_total"` // 税前报价总额
	Payable       int64 `json:"payable"`        // 含税应付（仅用于展示估算）
}

// GuaranteeQuote 保量型活动报价估算与区间校验
//
// 报价可以按日/按次（DAILY：金额 × 保量次数）或总价（TOTAL）表达。
// 税前总额必须落在活动的协商价区间内，越界直接报校验错误，绝不静默收敛。
func GuaranteeQuote(amount int64, budgetType string, guaranteeCount int, minPrice, maxPrice int64) (*GuaranteeQuoteResult, error) {
	if amount <= 0 {
		return nil, bizerr.NewValidation("proposed_amount", "报价金额必须大于0")
	}

	var total int64
	switch budgetType {
	case model.BudgetTypeDaily:
		if guaranteeCount < 1 {
			return nil, bizerr.NewValidation("guarantee_count", "保量次数必须大于0")
		}
		total = amount * int64(guaranteeCount)
	case model.BudgetTypeTotal:
		total = amount
	default:
		return nil, bizerr.NewValidation("budget_type", "报价方式不合法")
	}

	if total < minPrice {
		return nil, bizerr.NewValidation("proposed_amount",
			fmt.Sprintf("报价总额 %d 低于活动最低协商价 %d", total, minPrice))
	}
	if maxPrice > 0 && total > maxPrice {
		return nil, bizerr.NewValidation("proposed_amount",
			fmt.Sprintf("报价总额 %d 高于活动最高协商价 %d", total, maxPrice))
	}

	return &GuaranteeQuoteResult{
		ProposedTotal: total,
		Payable:       PayableWithTax(total),
	}, nil
}

// DailyEquivalent 总价换算为单次/单日等价金额
// 向上取整，保证展示的单价不会低估实际成本
func DailyEquivalent(total int64, count int) int64 {
	if count < 1 {
		return total
	}
	c := int64(count)
	return (total + c - 1) / c
}
