package performance

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weihanlu/investrack/internal/modules/snapshots"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSimpleReturn_AgainstStartValue(t *testing.T) {
	// (E - S - C) / S: (1200 - 1000 - 100) / 1000 = 10%
	pct := simpleReturn(dec("1000"), dec("1200"), dec("100"))
	require.NotNil(t, pct)
	assert.True(t, pct.Equal(dec("10")), "got %s", pct)
}

func TestSimpleReturn_AgainstContributionsWhenNoStart(t *testing.T) {
	// (E - C) / C: (1100 - 1000) / 1000 = 10%
	pct := simpleReturn(decimal.Zero, dec("1100"), dec("1000"))
	require.NotNil(t, pct)
	assert.True(t, pct.Equal(dec("10")), "got %s", pct)
}

func TestSimpleReturn_NilWithoutBase(t *testing.T) {
	assert.Nil(t, simpleReturn(decimal.Zero, dec("100"), decimal.Zero))
}

func TestModifiedDietz_WeightsMidYearFlow(t *testing.T) {
	yearStart := date(2025, time.January, 1)
	yearEnd := date(2025, time.December, 31)
	pick := func(h, s decimal.Decimal) decimal.Decimal { return h }

	// Deposit of 400 at mid-year: weight (T - t) / T = 0.5 within float
	// precision, denominator 1000 + 200.
	midYear := date(2025, time.July, 2)
	flows := []externalFlow{{date: midYear, home: dec("400"), source: dec("400")}}

	pct := modifiedDietz(dec("1000"), dec("1500"), yearStart, yearEnd, flows, pick)
	require.NotNil(t, pct)

	// (1500 - 1000 - 400) / (1000 + 400*0.5) ~= 8.33%
	f, _ := pct.Float64()
	assert.InDelta(t, 8.33, f, 0.05)
}

func TestModifiedDietz_NilOnZeroDenominator(t *testing.T) {
	yearStart := date(2025, time.January, 1)
	yearEnd := date(2025, time.December, 31)
	pick := func(h, s decimal.Decimal) decimal.Decimal { return h }

	// Start 0 and a single flow dated at period end carries zero weight.
	flows := []externalFlow{{date: yearEnd, home: dec("500"), source: dec("500")}}
	assert.Nil(t, modifiedDietz(decimal.Zero, dec("500"), yearStart, yearEnd, flows, pick))
}

func TestTimeWeightedReturn_SameDayFactorCountedOnce(t *testing.T) {
	// Three events on one day, chain-normalized: the first carries the
	// day's full move, the rest are unit factors.
	snaps := []snapshots.Snapshot{
		{ValueBeforeHome: dec("1000"), ValueAfterHome: dec("2000")},
		{ValueBeforeHome: dec("2000"), ValueAfterHome: dec("2000")},
		{ValueBeforeHome: dec("2000"), ValueAfterHome: dec("2000")},
	}

	pct := timeWeightedReturn(snaps, true)
	require.NotNil(t, pct)
	assert.True(t, pct.Equal(dec("100")), "got %s", pct)
}

func TestTimeWeightedReturn_MultiDayChain(t *testing.T) {
	snaps := []snapshots.Snapshot{
		{ValueBeforeHome: dec("1000"), ValueAfterHome: dec("1100")},
		{ValueBeforeHome: dec("1100"), ValueAfterHome: dec("990")},
	}

	pct := timeWeightedReturn(snaps, true)
	require.NotNil(t, pct)
	// 1.1 * 0.9 - 1 = -1%
	assert.True(t, pct.Equal(dec("-1")), "got %s", pct)
}

func TestTimeWeightedReturn_EpsilonGuardsZeroBefore(t *testing.T) {
	snaps := []snapshots.Snapshot{
		{ValueBeforeHome: decimal.Zero, ValueAfterHome: dec("100")},
	}

	pct := timeWeightedReturn(snaps, true)
	require.NotNil(t, pct)
	assert.True(t, pct.GreaterThan(decimal.Zero))
}

func TestTimeWeightedReturn_NilWithoutSnapshots(t *testing.T) {
	assert.Nil(t, timeWeightedReturn(nil, true))
}

func TestComputeCurrency_XIRRSeriesShape(t *testing.T) {
	yearStart := date(2025, time.January, 1)
	yearEnd := date(2025, time.December, 31)

	trades := []tradeFlow{
		{date: date(2025, time.March, 1), home: dec("-1000"), source: dec("-1000")},
	}

	perf := computeCurrency(dec("5000"), dec("6500"), yearStart, yearEnd, nil, trades, nil, true)

	assert.True(t, perf.StartValue.Equal(dec("5000")))
	assert.True(t, perf.EndValue.Equal(dec("6500")))
	require.NotNil(t, perf.XIRR)
	f, _ := perf.XIRR.Float64()
	assert.Greater(t, f, 0.0)
	require.NotNil(t, perf.SimpleReturnPct)
	// (6500 - 5000 - 0) / 5000 = 30%
	assert.True(t, perf.SimpleReturnPct.Equal(dec("30")), "got %s", perf.SimpleReturnPct)
}
