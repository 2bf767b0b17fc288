package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weihanlu/investrack/internal/domain"
)

func foreignLedger() *CurrencyLedger {
	return &CurrencyLedger{
		ID:           "l1",
		UserID:       "u1",
		CurrencyCode: domain.CurrencyUSD,
		HomeCurrency: domain.CurrencyTWD,
		Name:         "USD Ledger",
	}
}

func homeLedger() *CurrencyLedger {
	l := foreignLedger()
	l.CurrencyCode = domain.CurrencyTWD
	return l
}

func TestNormalize_HomeLedgerPinsRate(t *testing.T) {
	clientRate := dec("2")
	clientHome := dec("999")
	tx := &CurrencyTransaction{
		LedgerID:      "l1",
		Date:          "2025-01-01",
		Type:          domain.CurrencyTxDeposit,
		ForeignAmount: dec("1000"),
		HomeAmount:    &clientHome,
		ExchangeRate:  &clientRate,
	}

	tx.Normalize(homeLedger())

	// Whatever the client sent, a home ledger pins rate 1 and home = foreign.
	require.NotNil(t, tx.ExchangeRate)
	require.NotNil(t, tx.HomeAmount)
	assert.True(t, tx.ExchangeRate.Equal(decimal.NewFromInt(1)))
	assert.True(t, tx.HomeAmount.Equal(dec("1000")))
}

func TestNormalize_ForeignLedgerKeepsClientValues(t *testing.T) {
	rate := dec("31.5")
	tx := &CurrencyTransaction{
		LedgerID:      "l1",
		Date:          " 2025-01-01 ",
		Type:          domain.CurrencyTxSpend,
		ForeignAmount: dec("100"),
		ExchangeRate:  &rate,
	}

	tx.Normalize(foreignLedger())

	assert.Equal(t, "2025-01-01", tx.Date)
	assert.True(t, tx.ExchangeRate.Equal(dec("31.5")))
}

func TestValidate_TypeMatrix(t *testing.T) {
	tests := []struct {
		name    string
		typ     domain.CurrencyTransactionType
		home    bool
		wantErr bool
	}{
		{"ExchangeBuy on foreign", domain.CurrencyTxExchangeBuy, false, false},
		{"ExchangeBuy on home", domain.CurrencyTxExchangeBuy, true, true},
		{"Deposit on home", domain.CurrencyTxDeposit, true, false},
		{"Deposit on foreign", domain.CurrencyTxDeposit, false, true},
		{"Withdraw on foreign", domain.CurrencyTxWithdraw, false, true},
		{"Spend on both", domain.CurrencyTxSpend, false, false},
		{"Spend on home", domain.CurrencyTxSpend, true, false},
		{"Interest on home", domain.CurrencyTxInterest, true, false},
		{"InitialBalance on home", domain.CurrencyTxInitialBalance, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := foreignLedger()
			if tt.home {
				l = homeLedger()
			}

			tx := &CurrencyTransaction{
				LedgerID:      l.ID,
				Date:          "2025-01-01",
				Type:          tt.typ,
				ForeignAmount: dec("100"),
			}
			tx.Normalize(l)
			if !tt.home && tt.typ.RequiresHomeAmount() {
				home := dec("3100")
				rate := dec("31")
				tx.HomeAmount = &home
				tx.ExchangeRate = &rate
			}

			err := tx.Validate(l)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrBusinessRule)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidate_HomeAmountRequirement(t *testing.T) {
	l := foreignLedger()
	tx := &CurrencyTransaction{
		LedgerID:      l.ID,
		Date:          "2025-01-01",
		Type:          domain.CurrencyTxExchangeBuy,
		ForeignAmount: dec("1000"),
	}

	err := tx.Validate(l)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "home amount")

	home := dec("31000")
	tx.HomeAmount = &home
	err = tx.Validate(l)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exchange rate")

	rate := dec("31")
	tx.ExchangeRate = &rate
	assert.NoError(t, tx.Validate(l))
}

func TestValidate_SpendNeedsOnlyAmount(t *testing.T) {
	l := foreignLedger()
	tx := &CurrencyTransaction{
		LedgerID:      l.ID,
		Date:          "2025-01-01",
		Type:          domain.CurrencyTxSpend,
		ForeignAmount: dec("100"),
	}
	assert.NoError(t, tx.Validate(l))
}

func TestValidate_RejectsNonPositiveAmount(t *testing.T) {
	l := foreignLedger()
	tx := &CurrencyTransaction{
		LedgerID:      l.ID,
		Date:          "2025-01-01",
		Type:          domain.CurrencyTxSpend,
		ForeignAmount: decimal.Zero,
	}
	assert.ErrorIs(t, tx.Validate(l), domain.ErrBusinessRule)
}

func TestSignedAmount(t *testing.T) {
	c := credit("2025-01-01", domain.CurrencyTxDeposit, "100", "")
	d := debit("2025-01-01", domain.CurrencyTxWithdraw, "40", "")

	assert.True(t, c.SignedAmount().Equal(dec("100")))
	assert.True(t, d.SignedAmount().Equal(dec("-40")))
}
