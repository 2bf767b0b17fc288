package splits

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAdjustmentFactor_StrictlyAfterTxDate(t *testing.T) {
	symbolSplits := []StockSplit{
		{SplitDate: "2024-06-10", Ratio: decimal.NewFromInt(4)},
		{SplitDate: "2025-01-15", Ratio: decimal.NewFromInt(2)},
	}

	tests := []struct {
		name     string
		txDate   string
		expected string
	}{
		{"before both splits", "2024-01-01", "8"},
		{"on first split date", "2024-06-10", "2"},
		{"between splits", "2024-12-31", "2"},
		{"on second split date", "2025-01-15", "1"},
		{"after both splits", "2025-06-01", "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factor := AdjustmentFactor(tt.txDate, symbolSplits)
			assert.True(t, factor.Equal(decimal.RequireFromString(tt.expected)),
				"got %s", factor)
		})
	}
}

func TestAdjustmentFactor_ReverseSplit(t *testing.T) {
	symbolSplits := []StockSplit{
		{SplitDate: "2025-03-01", Ratio: decimal.RequireFromString("0.1")},
	}

	factor := AdjustmentFactor("2025-01-01", symbolSplits)
	assert.True(t, factor.Equal(decimal.RequireFromString("0.1")))
}

func TestStockSplit_NormalizeAndValidate(t *testing.T) {
	s := &StockSplit{
		Symbol:    " nvda ",
		Market:    "US",
		SplitDate: "2024-06-10",
		Ratio:     decimal.NewFromInt(10),
	}
	s.Normalize()
	assert.Equal(t, "NVDA", s.Symbol)
	assert.NoError(t, s.Validate())

	s.Ratio = decimal.Zero
	assert.Error(t, s.Validate())
}
