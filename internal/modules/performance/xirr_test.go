package performance

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestXIRR_TenPercentYear(t *testing.T) {
	flows := []CashFlow{
		{Amount: decimal.NewFromInt(-1000), Date: date(2025, time.January, 1)},
		{Amount: decimal.NewFromInt(1100), Date: date(2025, time.December, 31)},
	}

	rate := XIRR(flows)
	require.NotNil(t, rate)
	f, _ := rate.Float64()
	assert.InDelta(t, 0.10, f, 0.005)
}

func TestXIRR_NegativeReturn(t *testing.T) {
	flows := []CashFlow{
		{Amount: decimal.NewFromInt(-1000), Date: date(2024, time.January, 1)},
		{Amount: decimal.NewFromInt(800), Date: date(2025, time.January, 1)},
	}

	rate := XIRR(flows)
	require.NotNil(t, rate)
	f, _ := rate.Float64()
	assert.InDelta(t, -0.20, f, 0.005)
}

func TestXIRR_MultipleFlows(t *testing.T) {
	flows := []CashFlow{
		{Amount: decimal.NewFromInt(-1000), Date: date(2024, time.January, 1)},
		{Amount: decimal.NewFromInt(-500), Date: date(2024, time.July, 1)},
		{Amount: decimal.NewFromInt(1700), Date: date(2025, time.January, 1)},
	}

	rate := XIRR(flows)
	require.NotNil(t, rate)
	f, _ := rate.Float64()

	// NPV at the returned rate should be ~0
	amounts := make([]float64, len(flows))
	years := make([]float64, len(flows))
	for i, flow := range flows {
		amounts[i] = flow.Amount.InexactFloat64()
		years[i] = flow.Date.Sub(flows[0].Date).Hours() / 24 / daysPerYear
	}
	assert.InDelta(t, 0.0, npv(f, amounts, years), 1e-3)
}

func TestXIRR_NilWithoutBothSigns(t *testing.T) {
	allPositive := []CashFlow{
		{Amount: decimal.NewFromInt(100), Date: date(2025, time.January, 1)},
		{Amount: decimal.NewFromInt(200), Date: date(2025, time.June, 1)},
	}
	assert.Nil(t, XIRR(allPositive))

	allNegative := []CashFlow{
		{Amount: decimal.NewFromInt(-100), Date: date(2025, time.January, 1)},
		{Amount: decimal.NewFromInt(-200), Date: date(2025, time.June, 1)},
	}
	assert.Nil(t, XIRR(allNegative))
}

func TestXIRR_NilForSingleFlow(t *testing.T) {
	assert.Nil(t, XIRR([]CashFlow{{Amount: decimal.NewFromInt(-100), Date: date(2025, time.January, 1)}}))
	assert.Nil(t, XIRR(nil))
}
