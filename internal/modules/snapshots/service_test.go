package snapshots

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weihanlu/investrack/internal/database"
	"github.com/weihanlu/investrack/internal/domain"
	"github.com/weihanlu/investrack/internal/modules/ledger"
	"github.com/weihanlu/investrack/internal/modules/portfolio"
	"github.com/weihanlu/investrack/internal/modules/positions"
	"github.com/weihanlu/investrack/internal/modules/splits"
	"github.com/weihanlu/investrack/internal/modules/transactions"
	"github.com/weihanlu/investrack/internal/services/marketdata"
	testutil "github.com/weihanlu/investrack/internal/testing"
	"github.com/weihanlu/investrack/pkg/logger"
)

// stubMarket serves a flat price and rate for every lookup.
type stubMarket struct {
	price decimal.Decimal
	rate  decimal.Decimal
}

func (m *stubMarket) GetPrice(_ context.Context, _ string, _ domain.StockMarket, date string) (*marketdata.Price, error) {
	return &marketdata.Price{Price: m.price, Currency: domain.CurrencyTWD, ActualDate: date}, nil
}

func (m *stubMarket) GetRate(_ context.Context, from, to domain.Currency, _ string) (decimal.Decimal, string, error) {
	if from == to {
		return decimal.NewFromInt(1), "", nil
	}
	return m.rate, "", nil
}

type snapshotFixture struct {
	db          *database.DB
	svc         *Service
	ledgerSvc   *ledger.Service
	userID      string
	portfolioID string
	ledgerID    string
}

func newSnapshotFixture(t *testing.T) *snapshotFixture {
	t.Helper()

	db, cleanup := testutil.NewTestDB(t)
	t.Cleanup(cleanup)

	log := logger.New(logger.Config{Level: "error"})
	txRepo := transactions.NewRepository(db, log)
	splitRepo := splits.NewRepository(db, log)
	ledgerRepo := ledger.NewRepository(db, log)
	portfolioRepo := portfolio.NewRepository(db, log)
	market := &stubMarket{price: decimal.NewFromInt(100), rate: decimal.NewFromInt(1)}
	valuator := portfolio.NewValuator(positions.NewCalculator(txRepo, splitRepo, log), ledgerRepo, market, log)

	svc := NewService(NewRepository(db, log), portfolioRepo, txRepo, ledgerRepo, valuator, log)
	ledgerSvc := ledger.NewService(ledgerRepo, db, market, log)
	ledgerSvc.SetSnapshotRecorder(svc)

	userID := testutil.SeedUser(t, db)
	portfolioID := testutil.SeedPortfolio(t, db, userID, domain.CurrencyTWD)
	ledgerID := testutil.SeedLedger(t, db, userID, domain.CurrencyTWD)
	testutil.BindLedger(t, db, portfolioID, ledgerID)

	return &snapshotFixture{
		db:          db,
		svc:         svc,
		ledgerSvc:   ledgerSvc,
		userID:      userID,
		portfolioID: portfolioID,
		ledgerID:    ledgerID,
	}
}

func (f *snapshotFixture) deposit(t *testing.T, date, amount string) {
	t.Helper()
	require.NoError(t, f.ledgerSvc.CreateTransaction(context.Background(), f.userID, &ledger.CurrencyTransaction{
		LedgerID:      f.ledgerID,
		Date:          date,
		Type:          domain.CurrencyTxDeposit,
		ForeignAmount: decimal.RequireFromString(amount),
	}))
	time.Sleep(2 * time.Millisecond)
}

func TestSnapshotRecordedWithDeposit(t *testing.T) {
	f := newSnapshotFixture(t)
	f.deposit(t, "2025-03-01", "1000")

	snaps, err := f.svc.ListRange(f.portfolioID, "2025-01-01", "2025-12-31")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].ValueBeforeHome.IsZero(), "got %s", snaps[0].ValueBeforeHome)
	assert.True(t, snaps[0].ValueAfterHome.Equal(decimal.NewFromInt(1000)), "got %s", snaps[0].ValueAfterHome)
}

func TestSnapshotSameDayChainNormalization(t *testing.T) {
	f := newSnapshotFixture(t)
	f.deposit(t, "2025-03-01", "1000")
	f.deposit(t, "2025-03-01", "1000")

	snaps, err := f.svc.ListRange(f.portfolioID, "2025-03-01", "2025-03-01")
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	// The first event of the day keeps the day-start before; every later
	// event collapses onto the day end.
	first, second := snaps[0], snaps[1]
	assert.True(t, first.ValueBeforeHome.IsZero(), "got %s", first.ValueBeforeHome)
	assert.True(t, first.ValueAfterHome.Equal(decimal.NewFromInt(2000)), "got %s", first.ValueAfterHome)
	assert.True(t, second.ValueBeforeHome.Equal(decimal.NewFromInt(2000)), "got %s", second.ValueBeforeHome)
	assert.True(t, second.ValueAfterHome.Equal(decimal.NewFromInt(2000)), "got %s", second.ValueAfterHome)
}

func TestSnapshotDeleteRebuildsDay(t *testing.T) {
	f := newSnapshotFixture(t)
	f.deposit(t, "2025-03-01", "1000")
	f.deposit(t, "2025-03-01", "500")

	txs, err := f.ledgerSvc.ListTransactions(f.userID, f.ledgerID)
	require.NoError(t, err)
	require.Len(t, txs, 2)

	require.NoError(t, f.ledgerSvc.DeleteTransaction(context.Background(), f.userID, txs[1].ID))

	snaps, err := f.svc.ListRange(f.portfolioID, "2025-03-01", "2025-03-01")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].ValueAfterHome.Equal(decimal.NewFromInt(1000)), "got %s", snaps[0].ValueAfterHome)
}

func TestSnapshotDayStartCarriesForward(t *testing.T) {
	f := newSnapshotFixture(t)
	f.deposit(t, "2025-03-01", "1000")
	f.deposit(t, "2025-03-05", "500")

	snaps, err := f.svc.ListRange(f.portfolioID, "2025-03-05", "2025-03-05")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].ValueBeforeHome.Equal(decimal.NewFromInt(1000)), "got %s", snaps[0].ValueBeforeHome)
	assert.True(t, snaps[0].ValueAfterHome.Equal(decimal.NewFromInt(1500)), "got %s", snaps[0].ValueAfterHome)
}

func TestSnapshotIncludesTradeTopUp(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t)
	t.Cleanup(cleanup)

	log := logger.New(logger.Config{Level: "error"})
	txRepo := transactions.NewRepository(db, log)
	splitRepo := splits.NewRepository(db, log)
	ledgerRepo := ledger.NewRepository(db, log)
	portfolioRepo := portfolio.NewRepository(db, log)
	market := &stubMarket{price: decimal.NewFromInt(100), rate: decimal.NewFromInt(30)}
	valuator := portfolio.NewValuator(positions.NewCalculator(txRepo, splitRepo, log), ledgerRepo, market, log)

	svc := NewService(NewRepository(db, log), portfolioRepo, txRepo, ledgerRepo, valuator, log)
	ledgerSvc := ledger.NewService(ledgerRepo, db, market, log)
	ledgerSvc.SetSnapshotRecorder(svc)
	trading := portfolio.NewTradingService(db, portfolioRepo, txRepo, ledgerRepo, ledgerSvc, market, log)
	trading.SetSnapshotRecorder(svc)

	userID := testutil.SeedUser(t, db)
	portfolioID := testutil.SeedPortfolio(t, db, userID, domain.CurrencyTWD)
	ledgerID := testutil.SeedLedger(t, db, userID, domain.CurrencyUSD)
	testutil.BindLedger(t, db, portfolioID, ledgerID)

	// An empty USD ledger forces the whole purchase through the top-up;
	// the credit lands in the same database transaction as the trade.
	tx, err := trading.Create(context.Background(), userID, portfolioID, portfolio.StockTradeInput{
		Date:          "2025-05-02",
		Ticker:        "AAPL",
		Market:        domain.MarketUS,
		Currency:      domain.CurrencyUSD,
		Type:          domain.TransactionBuy,
		Shares:        decimal.NewFromInt(10),
		PricePerShare: decimal.NewFromInt(100),
		Fees:          decimal.NewFromInt(5),
		BalanceAction: domain.BalanceActionTopUp,
		TopUpType:     domain.CurrencyTxInitialBalance,
	})
	require.NoError(t, err)

	linked, err := ledgerRepo.ListByRelatedStockTx(tx.ID)
	require.NoError(t, err)
	var topUpID string
	for i := range linked {
		if linked[i].Type == domain.CurrencyTxInitialBalance {
			topUpID = linked[i].ID
		}
	}
	require.NotEmpty(t, topUpID)

	snaps, err := svc.ListRange(portfolioID, "2025-05-02", "2025-05-02")
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	// Trade first, top-up credit second; the day ends at the 1005 USD
	// inflow at rate 30 minus the 5 USD fees leaking out.
	assert.Equal(t, tx.ID, snaps[0].TransactionID)
	assert.Equal(t, topUpID, snaps[1].TransactionID)
	assert.True(t, snaps[0].ValueBeforeHome.IsZero(), "got %s", snaps[0].ValueBeforeHome)
	dayEnd := decimal.NewFromInt(30000)
	assert.True(t, snaps[0].ValueAfterHome.Equal(dayEnd), "got %s", snaps[0].ValueAfterHome)
	assert.True(t, snaps[1].ValueAfterHome.Equal(dayEnd), "got %s", snaps[1].ValueAfterHome)

	// Deleting the trade cascades to the top-up, leaving the day empty.
	require.NoError(t, trading.Delete(context.Background(), userID, tx.ID))
	snaps, err = svc.ListRange(portfolioID, "2025-05-02", "2025-05-02")
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestSnapshotBackfill(t *testing.T) {
	f := newSnapshotFixture(t)

	// Insert the cash event with recording disconnected, as a CSV import
	// replay would leave it.
	plainLedgerSvc := ledger.NewService(ledger.NewRepository(f.db, logger.New(logger.Config{Level: "error"})), f.db, nil, logger.New(logger.Config{Level: "error"}))
	require.NoError(t, plainLedgerSvc.CreateTransaction(context.Background(), f.userID, &ledger.CurrencyTransaction{
		LedgerID:      f.ledgerID,
		Date:          "2025-04-01",
		Type:          domain.CurrencyTxDeposit,
		ForeignAmount: decimal.NewFromInt(700),
	}))

	snaps, err := f.svc.ListRange(f.portfolioID, "2025-04-01", "2025-04-01")
	require.NoError(t, err)
	assert.Empty(t, snaps)

	p, err := portfolio.NewRepository(f.db, logger.New(logger.Config{Level: "error"})).GetByID(f.portfolioID)
	require.NoError(t, err)
	require.NoError(t, f.svc.Backfill(context.Background(), p, "2025-01-01", "2025-12-31"))

	snaps, err = f.svc.ListRange(f.portfolioID, "2025-04-01", "2025-04-01")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].ValueAfterHome.Equal(decimal.NewFromInt(700)), "got %s", snaps[0].ValueAfterHome)
}
