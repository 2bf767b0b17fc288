package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Declared scales for the financial columns. Banker's rounding is applied
// when a value crosses a persistence or reporting boundary, never in the
// middle of a computation.
const (
	ScaleShares   int32 = 4
	ScalePrice    int32 = 6
	ScaleRate     int32 = 6
	ScaleFees     int32 = 2
	ScaleHome     int32 = 2
	ScaleForeign  int32 = 4
	ScalePercent  int32 = 4
)

// Money is an exact decimal amount in a single currency.
// The zero value is 0 in the weak "" currency, which adopts the other
// operand's currency on the first Add/Sub.
type Money struct {
	Amount   decimal.Decimal
	Currency Currency
}

// NewMoney builds a Money from a decimal amount.
func NewMoney(amount decimal.Decimal, currency Currency) Money {
	return Money{Amount: amount, Currency: currency}
}

// MoneyFromString parses an exact decimal string.
func MoneyFromString(s string, currency Currency) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("failed to parse amount %q: %w", s, err)
	}
	return Money{Amount: d, Currency: currency}, nil
}

// same returns the common currency of two Money values, or an error on a
// genuine mismatch. The "" currency is weak and adopts the other side.
func same(a, b Money) (Currency, error) {
	if a.Currency == "" {
		return b.Currency, nil
	}
	if b.Currency == "" {
		return a.Currency, nil
	}
	if a.Currency != b.Currency {
		return "", fmt.Errorf("currency mismatch: %s != %s", a.Currency, b.Currency)
	}
	return a.Currency, nil
}

// Add returns a+b. The currencies must match.
func (m Money) Add(n Money) (Money, error) {
	cur, err := same(m, n)
	if err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount.Add(n.Amount), Currency: cur}, nil
}

// Sub returns a-b. The currencies must match.
func (m Money) Sub(n Money) (Money, error) {
	cur, err := same(m, n)
	if err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount.Sub(n.Amount), Currency: cur}, nil
}

// Neg returns the negated amount.
func (m Money) Neg() Money {
	return Money{Amount: m.Amount.Neg(), Currency: m.Currency}
}

// MulDecimal scales the amount by a dimensionless factor.
func (m Money) MulDecimal(d decimal.Decimal) Money {
	return Money{Amount: m.Amount.Mul(d), Currency: m.Currency}
}

// ConvertTo converts the amount into target using a strictly positive rate.
func (m Money) ConvertTo(target Currency, rate decimal.Decimal) (Money, error) {
	if !rate.IsPositive() {
		return Money{}, fmt.Errorf("exchange rate must be positive, got %s", rate)
	}
	return Money{Amount: m.Amount.Mul(rate), Currency: target}, nil
}

// Round applies banker's rounding to the declared scale.
func (m Money) Round(scale int32) Money {
	return Money{Amount: m.Amount.RoundBank(scale), Currency: m.Currency}
}

func (m Money) IsZero() bool     { return m.Amount.IsZero() }
func (m Money) IsNegative() bool { return m.Amount.IsNegative() }
func (m Money) IsPositive() bool { return m.Amount.IsPositive() }

// String renders "123.45 TWD".
func (m Money) String() string {
	return m.Amount.String() + " " + string(m.Currency)
}

// RoundBank is a convenience wrapper used where a bare decimal crosses a
// declared-scale boundary.
func RoundBank(d decimal.Decimal, scale int32) decimal.Decimal {
	return d.RoundBank(scale)
}
