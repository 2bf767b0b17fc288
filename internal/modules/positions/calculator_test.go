package positions

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weihanlu/investrack/internal/domain"
	"github.com/weihanlu/investrack/internal/modules/splits"
	"github.com/weihanlu/investrack/internal/modules/transactions"
	testutil "github.com/weihanlu/investrack/internal/testing"
	"github.com/weihanlu/investrack/pkg/logger"
)

func buy(ticker string, date string, shares, price, fees int64) transactions.StockTransaction {
	return transactions.StockTransaction{
		Date:          date,
		Ticker:        ticker,
		Market:        domain.MarketUS,
		Type:          domain.TransactionBuy,
		Shares:        decimal.NewFromInt(shares),
		PricePerShare: decimal.NewFromInt(price),
		ExchangeRate:  decimal.NewFromInt(1),
		Fees:          decimal.NewFromInt(fees),
		Currency:      domain.CurrencyUSD,
	}
}

func sell(ticker string, date string, shares, price, fees int64) transactions.StockTransaction {
	tx := buy(ticker, date, shares, price, fees)
	tx.Type = domain.TransactionSell
	return tx
}

func TestFold_WeightedAverageCost(t *testing.T) {
	txs := []transactions.StockTransaction{
		buy("AAPL", "2025-01-02", 10, 100, 5),
		buy("AAPL", "2025-02-02", 10, 120, 5),
	}

	byKey := Fold(txs, nil)
	p := byKey[splits.SymbolKey("AAPL", domain.MarketUS)]
	require.NotNil(t, p)

	assert.True(t, p.TotalShares.Equal(decimal.NewFromInt(20)))
	// 1005 + 1205 = 2210 total cost, average 110.50
	assert.True(t, p.CostSource.Equal(decimal.NewFromInt(2210)), "got %s", p.CostSource)
	assert.True(t, p.AvgCostHome.Equal(decimal.RequireFromString("110.5")), "got %s", p.AvgCostHome)
}

func TestFold_SellRemovesAverageCostKeepsAverage(t *testing.T) {
	txs := []transactions.StockTransaction{
		buy("AAPL", "2025-01-02", 10, 100, 5),   // cost 1005, WAC 100.5
		sell("AAPL", "2025-03-02", 4, 150, 0),   // removes 4 * 100.5 = 402
	}

	byKey := Fold(txs, nil)
	p := byKey[splits.SymbolKey("AAPL", domain.MarketUS)]
	require.NotNil(t, p)

	assert.True(t, p.TotalShares.Equal(decimal.NewFromInt(6)))
	assert.True(t, p.CostHome.Equal(decimal.RequireFromString("603")), "got %s", p.CostHome)
	// Average cost unchanged by the sell
	assert.True(t, p.AvgCostHome.Equal(decimal.RequireFromString("100.5")), "got %s", p.AvgCostHome)
}

func TestFold_FullySoldPositionZeroesCost(t *testing.T) {
	txs := []transactions.StockTransaction{
		buy("AAPL", "2025-01-02", 10, 100, 0),
		sell("AAPL", "2025-03-02", 10, 150, 0),
	}

	byKey := Fold(txs, nil)
	p := byKey[splits.SymbolKey("AAPL", domain.MarketUS)]
	require.NotNil(t, p)

	assert.False(t, p.TotalShares.IsPositive())
	assert.True(t, p.CostHome.IsZero())
	assert.True(t, p.AvgCostHome.IsZero())
}

func TestFold_SplitAdjustsSharesNotCost(t *testing.T) {
	splitsBySymbol := map[string][]splits.StockSplit{
		splits.SymbolKey("NVDA", domain.MarketUS): {
			{SplitDate: "2025-06-10", Ratio: decimal.NewFromInt(4)},
		},
	}

	txs := []transactions.StockTransaction{
		buy("NVDA", "2025-01-02", 10, 400, 0), // pre-split: 40 adjusted shares
		buy("NVDA", "2025-07-02", 10, 100, 0), // post-split: 10 shares as-is
	}

	byKey := Fold(txs, splitsBySymbol)
	p := byKey[splits.SymbolKey("NVDA", domain.MarketUS)]
	require.NotNil(t, p)

	assert.True(t, p.TotalShares.Equal(decimal.NewFromInt(50)), "got %s", p.TotalShares)
	// Cost basis is untouched by the split: 4000 + 1000
	assert.True(t, p.CostHome.Equal(decimal.NewFromInt(5000)), "got %s", p.CostHome)
	assert.True(t, p.AvgCostHome.Equal(decimal.NewFromInt(100)), "got %s", p.AvgCostHome)
}

func TestFold_SellAdjustedForLaterSplit(t *testing.T) {
	splitsBySymbol := map[string][]splits.StockSplit{
		splits.SymbolKey("NVDA", domain.MarketUS): {
			{SplitDate: "2025-06-10", Ratio: decimal.NewFromInt(2)},
		},
	}

	// Buy 10 pre-split (20 adjusted), sell 10 pre-split (20 adjusted):
	// position closes even though raw shares also net to zero.
	txs := []transactions.StockTransaction{
		buy("NVDA", "2025-01-02", 10, 100, 0),
		sell("NVDA", "2025-02-02", 10, 120, 0),
	}

	byKey := Fold(txs, splitsBySymbol)
	p := byKey[splits.SymbolKey("NVDA", domain.MarketUS)]
	require.NotNil(t, p)
	assert.True(t, p.TotalShares.IsZero(), "got %s", p.TotalShares)
}

func TestFold_OversellClampsCostAtZero(t *testing.T) {
	txs := []transactions.StockTransaction{
		buy("AAPL", "2025-01-02", 10, 100, 0),
		sell("AAPL", "2025-03-02", 15, 100, 0),
	}

	byKey := Fold(txs, nil)
	p := byKey[splits.SymbolKey("AAPL", domain.MarketUS)]
	require.NotNil(t, p)

	assert.True(t, p.TotalShares.IsNegative())
	assert.True(t, p.CostHome.IsZero())
}

func TestFold_SellRealizesPnL(t *testing.T) {
	txs := []transactions.StockTransaction{
		buy("AAPL", "2025-01-02", 10, 100, 5),  // cost 1005
		sell("AAPL", "2025-03-02", 10, 150, 5), // net proceeds 1495
	}

	byKey := Fold(txs, nil)
	p := byKey[splits.SymbolKey("AAPL", domain.MarketUS)]
	require.NotNil(t, p)

	assert.False(t, p.TotalShares.IsPositive())
	assert.True(t, p.RealizedPnLSource.Equal(decimal.NewFromInt(490)), "got %s", p.RealizedPnLSource)
	assert.True(t, p.RealizedPnLHome.Equal(decimal.NewFromInt(490)), "got %s", p.RealizedPnLHome)
}

func TestFold_PartialSellRealizesProportionalCost(t *testing.T) {
	txs := []transactions.StockTransaction{
		buy("AAPL", "2025-01-02", 10, 100, 5), // WAC 100.5
		sell("AAPL", "2025-03-02", 4, 150, 0), // proceeds 600, cost removed 402
	}

	byKey := Fold(txs, nil)
	p := byKey[splits.SymbolKey("AAPL", domain.MarketUS)]
	require.NotNil(t, p)

	assert.True(t, p.RealizedPnLHome.Equal(decimal.NewFromInt(198)), "got %s", p.RealizedPnLHome)
	assert.True(t, p.CostHome.Equal(decimal.RequireFromString("603")), "got %s", p.CostHome)
}

func newTestCalculator(t *testing.T) (*Calculator, *transactions.Repository, string) {
	t.Helper()

	db, cleanup := testutil.NewTestDB(t)
	t.Cleanup(cleanup)

	log := logger.New(logger.Config{Level: "error"})
	userID := testutil.SeedUser(t, db)
	portfolioID := testutil.SeedPortfolio(t, db, userID, domain.CurrencyUSD)
	txRepo := transactions.NewRepository(db, log)
	return NewCalculator(txRepo, splits.NewRepository(db, log), log), txRepo, portfolioID
}

func TestPositions_KeepsClosedForRealizedPnL(t *testing.T) {
	calc, txRepo, portfolioID := newTestCalculator(t)

	insert := func(tx transactions.StockTransaction) {
		tx.PortfolioID = portfolioID
		require.NoError(t, txRepo.Create(&tx))
	}
	insert(buy("AAPL", "2025-01-02", 10, 100, 0))
	insert(buy("TSLA", "2025-01-03", 5, 200, 0))
	insert(sell("TSLA", "2025-02-03", 5, 240, 0))

	holdings, err := calc.Holdings(portfolioID)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, "AAPL", holdings[0].Ticker)

	all, err := calc.Positions(portfolioID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "AAPL", all[0].Ticker)

	closed := all[1]
	assert.Equal(t, "TSLA", closed.Ticker)
	assert.False(t, closed.TotalShares.IsPositive())
	assert.True(t, closed.CostHome.IsZero())
	assert.True(t, closed.RealizedPnLHome.Equal(decimal.NewFromInt(200)), "got %s", closed.RealizedPnLHome)
}

func TestFold_SeparatePositionsPerMarket(t *testing.T) {
	us := buy("VOD", "2025-01-02", 10, 10, 0)
	uk := buy("VOD", "2025-01-02", 5, 8, 0)
	uk.Market = domain.MarketUK
	uk.Currency = domain.CurrencyGBP

	byKey := Fold([]transactions.StockTransaction{us, uk}, nil)
	assert.Len(t, byKey, 2)
}
