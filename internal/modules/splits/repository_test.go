package splits

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weihanlu/investrack/internal/domain"
	testutil "github.com/weihanlu/investrack/internal/testing"
	"github.com/weihanlu/investrack/pkg/logger"
)

func newSplitRepo(t *testing.T) *Repository {
	t.Helper()
	db, cleanup := testutil.NewTestDB(t)
	t.Cleanup(cleanup)
	return NewRepository(db, logger.New(logger.Config{Level: "error"}))
}

func TestSplitRepositoryCRUD(t *testing.T) {
	repo := newSplitRepo(t)

	later := &StockSplit{Symbol: "aapl", Market: domain.MarketUS, SplitDate: "2025-01-15", Ratio: decimal.NewFromInt(2)}
	require.NoError(t, repo.Create(later))
	assert.Equal(t, "AAPL", later.Symbol)

	earlier := &StockSplit{Symbol: "AAPL", Market: domain.MarketUS, SplitDate: "2024-06-10", Ratio: decimal.NewFromInt(4)}
	require.NoError(t, repo.Create(earlier))

	other := &StockSplit{Symbol: "AAPL", Market: domain.MarketUK, SplitDate: "2024-06-10", Ratio: decimal.NewFromInt(3)}
	require.NoError(t, repo.Create(other))

	// Per-symbol reads are market-scoped and date-ascending.
	got, err := repo.GetBySymbol("AAPL", domain.MarketUS)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2024-06-10", got[0].SplitDate)
	assert.Equal(t, "2025-01-15", got[1].SplitDate)

	bySymbol, err := repo.GetAllBySymbol()
	require.NoError(t, err)
	assert.Len(t, bySymbol[SymbolKey("AAPL", domain.MarketUS)], 2)
	assert.Len(t, bySymbol[SymbolKey("AAPL", domain.MarketUK)], 1)

	require.NoError(t, repo.Delete(later.ID))
	got, err = repo.GetBySymbol("AAPL", domain.MarketUS)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	err = repo.Delete("missing")
	assert.ErrorIs(t, err, domain.ErrEntityNotFound)
}
