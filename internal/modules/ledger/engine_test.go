package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weihanlu/investrack/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func credit(date string, typ domain.CurrencyTransactionType, foreign, home string) CurrencyTransaction {
	tx := CurrencyTransaction{
		Date:          date,
		Type:          typ,
		ForeignAmount: dec(foreign),
	}
	if home != "" {
		h := dec(home)
		tx.HomeAmount = &h
		rate := h.Div(tx.ForeignAmount)
		tx.ExchangeRate = &rate
	}
	return tx
}

func debit(date string, typ domain.CurrencyTransactionType, foreign, rate string) CurrencyTransaction {
	tx := CurrencyTransaction{
		Date:          date,
		Type:          typ,
		ForeignAmount: dec(foreign),
	}
	if rate != "" {
		r := dec(rate)
		tx.ExchangeRate = &r
	}
	return tx
}

func TestProject_BalanceAllowsNegative(t *testing.T) {
	p := Project([]CurrencyTransaction{
		credit("2025-01-01", domain.CurrencyTxInterest, "100", ""),
		debit("2025-01-02", domain.CurrencyTxSpend, "150", ""),
	})

	assert.True(t, p.Balance.Equal(dec("-50")), "got %s", p.Balance)
}

func TestProject_LayersPopNewestFirst(t *testing.T) {
	p := Project([]CurrencyTransaction{
		credit("2025-01-01", domain.CurrencyTxExchangeBuy, "500", "15500"), // rate 31
		credit("2025-02-01", domain.CurrencyTxExchangeBuy, "700", "21000"), // rate 30
		debit("2025-03-01", domain.CurrencyTxSpend, "600", ""),
	})

	// The newer 700@30 layer is drained first; 100 of it survives plus the
	// untouched 500@31 layer underneath.
	require.Len(t, p.Layers, 2)
	assert.True(t, p.Layers[0].ExchangeRate.Equal(dec("31")))
	assert.True(t, p.Layers[0].Remaining.Equal(dec("500")))
	assert.True(t, p.Layers[1].ExchangeRate.Equal(dec("30")))
	assert.True(t, p.Layers[1].Remaining.Equal(dec("100")), "got %s", p.Layers[1].Remaining)
}

func TestProject_RealizedPnL(t *testing.T) {
	p := Project([]CurrencyTransaction{
		credit("2025-01-01", domain.CurrencyTxExchangeBuy, "500", "15000"),  // rate 30
		debit("2025-02-01", domain.CurrencyTxExchangeSell, "500", "31"),
	})

	// (31 - 30) * 500 = 500 home currency realized
	assert.True(t, p.RealizedPnLHome.Equal(dec("500")), "got %s", p.RealizedPnLHome)
	assert.Empty(t, p.Layers)
	assert.True(t, p.Balance.IsZero())
}

func TestProject_PlainCreditsSkipTheStack(t *testing.T) {
	p := Project([]CurrencyTransaction{
		credit("2025-01-01", domain.CurrencyTxInterest, "200", ""),
		credit("2025-01-02", domain.CurrencyTxDeposit, "300", ""),
	})

	assert.True(t, p.Balance.Equal(dec("500")))
	assert.Empty(t, p.Layers)
}

func TestEffectiveRate_FullLIFOCoverage(t *testing.T) {
	p := Project([]CurrencyTransaction{
		credit("2025-01-01", domain.CurrencyTxExchangeBuy, "500", "15500"), // rate 31
		credit("2025-02-01", domain.CurrencyTxExchangeBuy, "700", "21000"), // rate 30
	})

	preview, err := EffectiveRate(p, dec("1200"), nil)
	require.NoError(t, err)

	// (500*31 + 700*30) / 1200 = 30.41666...
	assert.Equal(t, domain.RateSourceLIFO, preview.Source)
	assert.Equal(t, "30.4167", preview.Rate.Round(4).String())
	require.NotNil(t, preview.LifoPortion)
	assert.True(t, preview.LifoPortion.Equal(dec("1200")))
}

func TestEffectiveRate_LifoPortionCappedAtLayerDepth(t *testing.T) {
	p := Project([]CurrencyTransaction{
		credit("2025-01-01", domain.CurrencyTxExchangeBuy, "500", "15500"), // rate 31
		credit("2025-02-01", domain.CurrencyTxInterest, "300", ""),
	})

	// Balance 800 covers the 700 request, but the stack only holds 500;
	// the preview must report the 500 the layers actually priced.
	preview, err := EffectiveRate(p, dec("700"), nil)
	require.NoError(t, err)

	assert.Equal(t, domain.RateSourceLIFO, preview.Source)
	assert.True(t, preview.Rate.Equal(dec("31")), "got %s", preview.Rate)
	require.NotNil(t, preview.LifoPortion)
	assert.True(t, preview.LifoPortion.Equal(dec("500")), "got %s", preview.LifoPortion)
}

func TestEffectiveRate_BlendedWithMarket(t *testing.T) {
	p := Project([]CurrencyTransaction{
		credit("2025-01-01", domain.CurrencyTxExchangeBuy, "400", "12500"), // rate 31.25
	})
	market := dec("32")

	preview, err := EffectiveRate(p, dec("1000"), &market)
	require.NoError(t, err)

	// (12500 + 600*32) / 1000 = 31.7
	assert.Equal(t, domain.RateSourceBlended, preview.Source)
	assert.True(t, preview.Rate.Equal(dec("31.7")), "got %s", preview.Rate)
	require.NotNil(t, preview.LifoPortion)
	require.NotNil(t, preview.MarketPortion)
	assert.True(t, preview.LifoPortion.Equal(dec("400")))
	assert.True(t, preview.MarketPortion.Equal(dec("600")))
}

func TestEffectiveRate_MarketOnlyWithoutLayers(t *testing.T) {
	market := dec("31.5")

	preview, err := EffectiveRate(Projection{Balance: decimal.Zero}, dec("100"), &market)
	require.NoError(t, err)
	assert.Equal(t, domain.RateSourceMarket, preview.Source)
	assert.True(t, preview.Rate.Equal(market))
}

func TestEffectiveRate_UnavailableWithoutLayersOrMarket(t *testing.T) {
	_, err := EffectiveRate(Projection{Balance: decimal.Zero}, dec("100"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExchangeRateUnavailable)
}

func TestEffectiveRate_RejectsNonPositiveAmount(t *testing.T) {
	_, err := EffectiveRate(Projection{}, decimal.Zero, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBusinessRule)
}
