package transactions

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weihanlu/investrack/internal/domain"
)

func validBuy() *StockTransaction {
	return &StockTransaction{
		PortfolioID:   "p1",
		Date:          time.Now().UTC().Format(domain.DateFormat),
		Ticker:        "AAPL",
		Market:        domain.MarketUS,
		Type:          domain.TransactionBuy,
		Shares:        decimal.NewFromInt(10),
		PricePerShare: decimal.RequireFromString("100.5"),
		ExchangeRate:  decimal.NewFromInt(1),
		Fees:          decimal.Zero,
		Currency:      domain.CurrencyUSD,
	}
}

func TestNormalize_TickerUppercaseTrim(t *testing.T) {
	tx := validBuy()
	tx.Ticker = "  aapl "
	tx.Normalize()
	assert.Equal(t, "AAPL", tx.Ticker)
	assert.Equal(t, domain.FundSourceNone, tx.FundSource)
}

func TestValidate_DateWindow(t *testing.T) {
	tomorrow := time.Now().UTC().AddDate(0, 0, 1).Format(domain.DateFormat)
	dayAfter := time.Now().UTC().AddDate(0, 0, 2).Format(domain.DateFormat)

	tx := validBuy()
	tx.Date = tomorrow
	assert.NoError(t, tx.Validate())

	tx.Date = dayAfter
	err := tx.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBusinessRule)
}

func TestValidate_FieldConstraints(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*StockTransaction)
	}{
		{"missing portfolio", func(tx *StockTransaction) { tx.PortfolioID = "" }},
		{"missing ticker", func(tx *StockTransaction) { tx.Ticker = "" }},
		{"bad market", func(tx *StockTransaction) { tx.Market = "JP" }},
		{"bad type", func(tx *StockTransaction) { tx.Type = "Short" }},
		{"zero shares", func(tx *StockTransaction) { tx.Shares = decimal.Zero }},
		{"negative price", func(tx *StockTransaction) { tx.PricePerShare = decimal.NewFromInt(-1) }},
		{"zero rate", func(tx *StockTransaction) { tx.ExchangeRate = decimal.Zero }},
		{"negative fees", func(tx *StockTransaction) { tx.Fees = decimal.NewFromInt(-1) }},
		{"bad date", func(tx *StockTransaction) { tx.Date = "2026/01/01" }},
		{"ledger funding without id", func(tx *StockTransaction) { tx.FundSource = domain.FundSourceCurrencyLedger }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := validBuy()
			tt.mutate(tx)
			assert.Error(t, tx.Validate())
		})
	}
}

func TestGrossAmount_TaiwanWholeDollarFloor(t *testing.T) {
	tx := validBuy()
	tx.Market = domain.MarketTW
	tx.Ticker = "0050"
	tx.Currency = domain.CurrencyTWD
	tx.Shares = decimal.NewFromInt(3)
	tx.PricePerShare = decimal.RequireFromString("27.25")

	// 3 * 27.25 = 81.75, floored to 81 for numeric TW tickers
	assert.True(t, tx.GrossAmount().Equal(decimal.NewFromInt(81)),
		"got %s", tx.GrossAmount())
	assert.True(t, tx.NetAmount().Equal(decimal.NewFromInt(81)))
}

func TestGrossAmount_NoFloorForAlphaTickers(t *testing.T) {
	tx := validBuy()
	tx.Shares = decimal.NewFromInt(3)
	tx.PricePerShare = decimal.RequireFromString("27.25")

	assert.True(t, tx.GrossAmount().Equal(decimal.RequireFromString("81.75")))
}

func TestNetAmount_BuySellFees(t *testing.T) {
	tx := validBuy()
	tx.Shares = decimal.NewFromInt(10)
	tx.PricePerShare = decimal.NewFromInt(100)
	tx.Fees = decimal.NewFromInt(5)

	assert.True(t, tx.NetAmount().Equal(decimal.NewFromInt(1005)))

	tx.Type = domain.TransactionSell
	assert.True(t, tx.NetAmount().Equal(decimal.NewFromInt(995)))
}

func TestNetAmountHome(t *testing.T) {
	tx := validBuy()
	tx.Shares = decimal.NewFromInt(10)
	tx.PricePerShare = decimal.NewFromInt(100)
	tx.Fees = decimal.NewFromInt(5)
	tx.ExchangeRate = decimal.RequireFromString("31.5")

	assert.True(t, tx.NetAmountHome().Equal(decimal.RequireFromString("31657.5")))
}
