package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoney_AddSub(t *testing.T) {
	a := NewMoney(decimal.RequireFromString("100.50"), CurrencyTWD)
	b := NewMoney(decimal.RequireFromString("0.50"), CurrencyTWD)

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, "101 TWD", sum.String())

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.Equal(t, "100 TWD", diff.String())
}

func TestMoney_AddCurrencyMismatch(t *testing.T) {
	a := NewMoney(decimal.NewFromInt(1), CurrencyTWD)
	b := NewMoney(decimal.NewFromInt(1), CurrencyUSD)

	_, err := a.Add(b)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "currency mismatch")
}

func TestMoney_ZeroValueAdoptsCurrency(t *testing.T) {
	var zero Money
	sum, err := zero.Add(NewMoney(decimal.NewFromInt(5), CurrencyUSD))
	require.NoError(t, err)
	assert.Equal(t, CurrencyUSD, sum.Currency)
}

func TestMoney_RoundBankersHalfToEven(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		scale    int32
		expected string
	}{
		{"half rounds to even down", "2.5", 0, "2"},
		{"half rounds to even up", "3.5", 0, "4"},
		{"half cents down", "1.125", 2, "1.12"},
		{"half cents up", "1.135", 2, "1.14"},
		{"above half rounds up", "2.51", 0, "3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMoney(decimal.RequireFromString(tt.amount), CurrencyTWD)
			assert.Equal(t, tt.expected, m.Round(tt.scale).Amount.String())
		})
	}
}

func TestMoney_ConvertTo(t *testing.T) {
	usd := NewMoney(decimal.NewFromInt(100), CurrencyUSD)

	twd, err := usd.ConvertTo(CurrencyTWD, decimal.RequireFromString("31.5"))
	require.NoError(t, err)
	assert.Equal(t, CurrencyTWD, twd.Currency)
	assert.True(t, twd.Amount.Equal(decimal.NewFromInt(3150)))

	_, err = usd.ConvertTo(CurrencyTWD, decimal.Zero)
	assert.Error(t, err)
}

func TestMoneyFromString_Invalid(t *testing.T) {
	_, err := MoneyFromString("not-a-number", CurrencyTWD)
	assert.Error(t, err)
}
