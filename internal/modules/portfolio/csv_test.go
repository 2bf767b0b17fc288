package portfolio

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weihanlu/investrack/internal/domain"
)

func TestStockImportCSV(t *testing.T) {
	f := newTradingFixture(t)
	portfolioID, ledgerID := seedFundedLedger(t, f, domain.CurrencyTWD, "10000", "1")

	csvBody := strings.Join([]string{
		"Date,Ticker,Market,Currency,Type,Shares,Price,Fees",
		"2025-02-01,2330,TW,TWD,Buy,10,100,5",
		"2025-02-10,0050,TW,TWD,Buy,3,27.25,0",
	}, "\n")

	report, err := f.svc.ImportCSV(context.Background(), f.userID, portfolioID, strings.NewReader(csvBody))
	require.NoError(t, err)
	assert.Equal(t, "success", report.Status)
	assert.Equal(t, 2, report.Summary.InsertedRows)

	txs, err := f.svc.List(f.userID, portfolioID)
	require.NoError(t, err)
	require.Len(t, txs, 2)

	// Taiwan rows floor shares*price before fees: 3*27.25 -> 81.
	assert.True(t, txs[1].NetAmount().Equal(decimal.NewFromInt(81)), "got %s", txs[1].NetAmount())

	// Both buys were funded from the bound ledger.
	balance, err := f.ledgerSvc.Balance(f.userID, ledgerID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("8914")), "got %s", balance)
}

func TestStockImportCSVAtomicRejection(t *testing.T) {
	f := newTradingFixture(t)
	portfolioID, ledgerID := seedFundedLedger(t, f, domain.CurrencyTWD, "10000", "1")

	csvBody := strings.Join([]string{
		"Date,Ticker,Market,Currency,Type,Shares,Price,Fees",
		"2025-02-01,2330,TW,TWD,Buy,10,100,5",
		"2025-02-10,2330,TW,TWD,Buy,-3,100,0",
	}, "\n")

	report, err := f.svc.ImportCSV(context.Background(), f.userID, portfolioID, strings.NewReader(csvBody))
	require.NoError(t, err)
	assert.Equal(t, "rejected", report.Status)
	assert.Equal(t, 0, report.Summary.InsertedRows)
	require.NotEmpty(t, report.Errors)
	assert.Equal(t, 3, report.Errors[0].RowNumber)

	// The valid first row was held back with the rest.
	txs, err := f.svc.List(f.userID, portfolioID)
	require.NoError(t, err)
	assert.Empty(t, txs)

	balance, err := f.ledgerSvc.Balance(f.userID, ledgerID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(10000)), "got %s", balance)
}

func TestStockImportCSVNeverTopsUp(t *testing.T) {
	f := newTradingFixture(t)
	portfolioID, ledgerID := seedFundedLedger(t, f, domain.CurrencyTWD, "500", "1")

	csvBody := strings.Join([]string{
		"Date,Ticker,Market,Currency,Type,Shares,Price,Fees",
		"2025-02-01,2330,TW,TWD,Buy,10,100,5",
	}, "\n")

	report, err := f.svc.ImportCSV(context.Background(), f.userID, portfolioID, strings.NewReader(csvBody))
	require.NoError(t, err)
	assert.Equal(t, "success", report.Status)

	// Historical files carry their own funding events; a shortfall just
	// drives the balance negative.
	balance, err := f.ledgerSvc.Balance(f.userID, ledgerID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(-505)), "got %s", balance)
}

func TestStockExportCSVRoundTrip(t *testing.T) {
	f := newTradingFixture(t)
	portfolioID, _ := seedFundedLedger(t, f, domain.CurrencyTWD, "10000", "1")

	ctx := context.Background()
	_, err := f.svc.Create(ctx, f.userID, portfolioID, buyInput("2025-02-01", "2330", domain.CurrencyTWD, "10", "100", "5"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.svc.ExportCSV(f.userID, portfolioID, &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(stockCSVHeader, ","), lines[0])
	assert.Contains(t, lines[1], "2330")
	assert.Contains(t, lines[1], "2025-02-01")
}
