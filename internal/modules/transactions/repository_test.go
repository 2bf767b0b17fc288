package transactions

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weihanlu/investrack/internal/database"
	"github.com/weihanlu/investrack/internal/domain"
	testutil "github.com/weihanlu/investrack/internal/testing"
	"github.com/weihanlu/investrack/pkg/logger"
)

func newTestRepo(t *testing.T) (*Repository, *database.DB, string) {
	t.Helper()

	db, cleanup := testutil.NewTestDB(t)
	t.Cleanup(cleanup)

	userID := testutil.SeedUser(t, db)
	portfolioID := testutil.SeedPortfolio(t, db, userID, domain.CurrencyUSD)
	repo := NewRepository(db, logger.New(logger.Config{Level: "error"}))
	return repo, db, portfolioID
}

func stockTx(portfolioID, date, ticker string) *StockTransaction {
	return &StockTransaction{
		PortfolioID:   portfolioID,
		Date:          date,
		Ticker:        ticker,
		Market:        domain.MarketUS,
		Type:          domain.TransactionBuy,
		Shares:        decimal.NewFromInt(10),
		PricePerShare: decimal.NewFromInt(100),
		ExchangeRate:  decimal.NewFromInt(31),
		Fees:          decimal.NewFromInt(5),
		Currency:      domain.CurrencyUSD,
		FundSource:    domain.FundSourceNone,
	}
}

func TestRepositoryOrdering(t *testing.T) {
	repo, _, portfolioID := newTestRepo(t)

	// Two rows on the same date resolve ties by insertion order.
	first := stockTx(portfolioID, "2025-03-01", "AAPL")
	require.NoError(t, repo.Create(first))
	time.Sleep(2 * time.Millisecond)
	second := stockTx(portfolioID, "2025-03-01", "MSFT")
	require.NoError(t, repo.Create(second))
	earlier := stockTx(portfolioID, "2025-01-15", "GOOG")
	require.NoError(t, repo.Create(earlier))

	txs, err := repo.ListByPortfolio(portfolioID)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, "GOOG", txs[0].Ticker)
	assert.Equal(t, "AAPL", txs[1].Ticker)
	assert.Equal(t, "MSFT", txs[2].Ticker)
}

func TestRepositorySoftDelete(t *testing.T) {
	repo, _, portfolioID := newTestRepo(t)

	tx := stockTx(portfolioID, "2025-03-01", "AAPL")
	require.NoError(t, repo.Create(tx))
	require.NoError(t, repo.SoftDelete(tx.ID))

	txs, err := repo.ListByPortfolio(portfolioID)
	require.NoError(t, err)
	assert.Empty(t, txs)

	// Deleted rows disappear from reads entirely.
	_, err = repo.GetByID(tx.ID)
	assert.ErrorIs(t, err, domain.ErrEntityNotFound)
}

func TestRepositoryListUntil(t *testing.T) {
	repo, _, portfolioID := newTestRepo(t)

	require.NoError(t, repo.Create(stockTx(portfolioID, "2025-01-15", "AAPL")))
	require.NoError(t, repo.Create(stockTx(portfolioID, "2025-06-30", "AAPL")))
	require.NoError(t, repo.Create(stockTx(portfolioID, "2025-07-01", "AAPL")))

	txs, err := repo.ListByPortfolioUntil(portfolioID, "2025-06-30")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "2025-06-30", txs[1].Date)
}

func TestRepositoryGetByIDNotFound(t *testing.T) {
	repo, _, _ := newTestRepo(t)

	_, err := repo.GetByID("missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEntityNotFound)
}
