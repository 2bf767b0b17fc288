package performance

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContributionDate(t *testing.T) {
	yearStart := date(2025, time.January, 1)
	fallback := date(2025, time.January, 2)

	tests := []struct {
		name     string
		earliest string
		expected time.Time
	}{
		{"in-year date kept", "2025-03-15", date(2025, time.March, 15)},
		{"empty falls back", "", fallback},
		{"unparseable falls back", "15/03/2025", fallback},
		{"pre-year date falls back", "2023-06-01", fallback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, contributionDate(tt.earliest, yearStart))
		})
	}
}

func TestCombine_SumsAndWeightsTWR(t *testing.T) {
	yearStart := date(2025, time.January, 1)
	yearEnd := date(2025, time.December, 31)

	twrA := dec("10")
	twrB := dec("20")
	reports := []*YearPerformance{
		{
			Home: CurrencyPerformance{
				StartValue: dec("3000"), EndValue: dec("3300"), TWRPct: &twrA,
			},
		},
		{
			Home: CurrencyPerformance{
				StartValue: dec("1000"), EndValue: dec("1200"), TWRPct: &twrB,
			},
		},
	}

	agg := combine(reports, yearStart, yearEnd, true)

	assert.True(t, agg.StartValue.Equal(dec("4000")))
	assert.True(t, agg.EndValue.Equal(dec("4500")))

	// TWR weighted by start value: (10*3000 + 20*1000) / 4000 = 12.5
	require.NotNil(t, agg.TWRPct)
	assert.True(t, agg.TWRPct.Equal(dec("12.5")), "got %s", agg.TWRPct)

	require.NotNil(t, agg.XIRR)
	require.NotNil(t, agg.SimpleReturnPct)
	// (4500 - 4000 - 0) / 4000 = 12.5%
	assert.True(t, agg.SimpleReturnPct.Equal(dec("12.5")))
}

func TestCombine_TWRWeightFallsBackToEndValue(t *testing.T) {
	yearStart := date(2025, time.January, 1)
	yearEnd := date(2025, time.December, 31)

	twr := dec("5")
	contributions := dec("1000")
	reports := []*YearPerformance{
		{
			EarliestTxDate: "2025-02-01",
			Home: CurrencyPerformance{
				StartValue:       decimal.Zero,
				EndValue:         dec("1050"),
				NetContributions: contributions,
				TWRPct:           &twr,
			},
		},
	}

	agg := combine(reports, yearStart, yearEnd, true)
	require.NotNil(t, agg.TWRPct)
	assert.True(t, agg.TWRPct.Equal(dec("5")))
}
