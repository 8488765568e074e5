package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotmarket/internal/bizerr"
	"slotmarket/internal/model"
)

func TestPayableWithTax(t *testing.T) {
	// 整除场景
	assert.Equal(t, int64(3300), PayableWithTax(3000))
	assert.Equal(t, int64(110), PayableWithTax(100))

	// 四舍五入：101 * 1.1 = 111.1 -> 111；105 * 1.1 = 115.5 -> 116
	assert.Equal(t, int64(111), PayableWithTax(101))
	assert.Equal(t, int64(116), PayableWithTax(105))

	assert.Equal(t, int64(0), PayableWithTax(0))
}

func TestQuote(t *testing.T) {
	// 单价100 × 数量10 × 3天 = 3000，含税 3300
	result, err := Quote(100, 10, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 10, result.Quantity)
	assert.Equal(t, 3, result.DurationDays)
	assert.Equal(t, int64(3000), result.LineTotal)
	assert.Equal(t, int64(3300), result.Payable)
}

func TestQuoteRaisesToMinQuantity(t *testing.T) {
	// 数量低于最低购买量时抬升，而不是报错
	result, err := Quote(100, 3, 5, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Quantity)
	assert.Equal(t, int64(500), result.LineTotal)
	assert.Equal(t, int64(550), result.Payable)
}

func TestQuoteDefaultsDuration(t *testing.T) {
	// 天数小于1时按1天计
	result, err := Quote(100, 2, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.DurationDays)
	assert.Equal(t, int64(200), result.LineTotal)
}

func TestQuoteValidation(t *testing.T) {
	_, err := Quote(-1, 1, 0, 1)
	require.Error(t, err)
	assert.True(t, bizerr.IsValidation(err))

	_, err = Quote(100, 0, 0, 1)
	require.Error(t, err)
	assert.True(t, bizerr.IsValidation(err))
}

func TestGuaranteeQuoteDaily(t *testing.T) {
	// 按日报价：1000/天 × 保量10天 = 10000，区间 [10000, 50000] 内
	result, err := GuaranteeQuote(1000, model.BudgetTypeDaily, 10, 10000, 50000)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), result.ProposedTotal)
	assert.Equal(t, int64(11000), result.Payable)
}

func TestGuaranteeQuoteTotal(t *testing.T) {
	result, err := GuaranteeQuote(20000, model.BudgetTypeTotal, 10, 10000, 50000)
	require.NoError(t, err)
	assert.Equal(t, int64(20000), result.ProposedTotal)
}

func TestGuaranteeQuoteBelowMin(t *testing.T) {
	// 900/天 × 10天 = 9000 < 最低协商价 10000，拒绝而非收敛
	_, err := GuaranteeQuote(900, model.BudgetTypeDaily, 10, 10000, 50000)
	require.Error(t, err)
	assert.True(t, bizerr.IsValidation(err))
}

func TestGuaranteeQuoteAboveMax(t *testing.T) {
	_, err := GuaranteeQuote(60000, model.BudgetTypeTotal, 10, 10000, 50000)
	require.Error(t, err)
	assert.True(t, bizerr.IsValidation(err))
}

func TestGuaranteeQuoteNoMax(t *testing.T) {
	// 最高协商价为0表示不设上限
	result, err := GuaranteeQuote(999999, model.BudgetTypeTotal, 1, 10000, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(999999), result.ProposedTotal)
}

func TestGuaranteeQuoteInvalidInput(t *testing.T) {
	_, err := GuaranteeQuote(0, model.BudgetTypeTotal, 1, 0, 0)
	assert.True(t, bizerr.IsValidation(err))

	_, err = GuaranteeQuote(100, model.BudgetTypeDaily, 0, 0, 0)
	assert.True(t, bizerr.IsValidation(err))

	_, err = GuaranteeQuote(100, "WEEKLY", 1, 0, 0)
	assert.True(t, bizerr.IsValidation(err))
}

func TestDailyEquivalent(t *testing.T) {
	// 向上取整：10000 / 3 = 3333.33 -> 3334
	assert.Equal(t, int64(3334), DailyEquivalent(10000, 3))
	assert.Equal(t, int64(1000), DailyEquivalent(10000, 10))
	// 次数非法时原样返回
	assert.Equal(t, int64(10000), DailyEquivalent(10000, 0))
}
