package ledger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weihanlu/investrack/internal/domain"
)

func TestImportCSV(t *testing.T) {
	svc, seedUser := newTestService(t, nil)
	userID := seedUser()

	l, err := svc.CreateLedger(userID, domain.CurrencyUSD, domain.CurrencyTWD, "US Broker")
	require.NoError(t, err)

	csvBody := strings.Join([]string{
		"Date,Type,ForeignAmount,HomeAmount,ExchangeRate",
		"2025-01-10,ExchangeBuy,500,15500,31",
		"2025-01-20,ExchangeBuy,700,21000,30",
		"2025-02-01,Spend,600,,",
	}, "\n")

	report, err := svc.ImportCSV(context.Background(), userID, l.ID, strings.NewReader(csvBody))
	require.NoError(t, err)
	assert.Equal(t, "success", report.Status)
	assert.Equal(t, 3, report.Summary.TotalRows)
	assert.Equal(t, 3, report.Summary.InsertedRows)
	assert.Empty(t, report.Errors)

	balance, err := svc.Balance(userID, l.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("600")), "got %s", balance)
}

func TestImportCSVAtomicRejection(t *testing.T) {
	svc, seedUser := newTestService(t, nil)
	userID := seedUser()

	l, err := svc.CreateLedger(userID, domain.CurrencyUSD, domain.CurrencyTWD, "US Broker")
	require.NoError(t, err)

	csvBody := strings.Join([]string{
		"Date,Type,ForeignAmount,HomeAmount,ExchangeRate",
		"2025-01-10,ExchangeBuy,500,15500,31",
		"not-a-date,Spend,100,,",
		"2025-01-20,ExchangeBuy,-5,,",
	}, "\n")

	report, err := svc.ImportCSV(context.Background(), userID, l.ID, strings.NewReader(csvBody))
	require.NoError(t, err)
	assert.Equal(t, "rejected", report.Status)
	assert.Equal(t, 3, report.Summary.TotalRows)
	assert.Equal(t, 0, report.Summary.InsertedRows)
	assert.Equal(t, 2, report.Summary.RejectedRows)
	require.NotEmpty(t, report.Errors)
	assert.Equal(t, 2, report.Errors[0].RowNumber)
	assert.Equal(t, "InvalidDate", report.Errors[0].ErrorCode)

	// Nothing committed: the valid first row was held back too.
	txs, err := svc.ListTransactions(userID, l.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestImportCSVMissingColumn(t *testing.T) {
	svc, seedUser := newTestService(t, nil)
	userID := seedUser()

	l, err := svc.CreateLedger(userID, domain.CurrencyUSD, domain.CurrencyTWD, "US Broker")
	require.NoError(t, err)

	_, err = svc.ImportCSV(context.Background(), userID, l.ID, strings.NewReader("Date,Type\n2025-01-10,Spend\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBusinessRule)
}

func TestExportCSVRoundTrip(t *testing.T) {
	svc, seedUser := newTestService(t, nil)
	userID := seedUser()

	l, err := svc.CreateLedger(userID, domain.CurrencyUSD, domain.CurrencyTWD, "US Broker")
	require.NoError(t, err)

	csvBody := strings.Join([]string{
		"Date,Type,ForeignAmount,HomeAmount,ExchangeRate",
		"2025-01-10,ExchangeBuy,500,15500,31",
		"2025-02-01,Spend,100,,",
	}, "\n")
	report, err := svc.ImportCSV(context.Background(), userID, l.ID, strings.NewReader(csvBody))
	require.NoError(t, err)
	require.Equal(t, "success", report.Status)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportCSV(userID, l.ID, &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Date,Type,ForeignAmount,HomeAmount,ExchangeRate", lines[0])
	assert.Equal(t, "2025-01-10,ExchangeBuy,500,15500,31", lines[1])
	assert.Equal(t, "2025-02-01,Spend,100,,", lines[2])

	// The export re-imports cleanly into a fresh ledger.
	other, err := svc.CreateLedger(userID, domain.CurrencyEUR, domain.CurrencyTWD, "EU Broker")
	require.NoError(t, err)
	report, err = svc.ImportCSV(context.Background(), userID, other.ID, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "success", report.Status)
}
