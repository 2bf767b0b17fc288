// Package ledger implements per-currency cash ledgers with LIFO cost layers.
package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/weihanlu/investrack/internal/domain"
)

// CurrencyLedger is a per-user cash account in a single currency. A ledger
// whose currency equals its home currency is a home-currency ledger; its
// exchange rate is always pinned to 1.
type CurrencyLedger struct {
	ID           string          `json:"id"`
	UserID       string          `json:"userId"`
	CurrencyCode domain.Currency `json:"currencyCode"`
	HomeCurrency domain.Currency `json:"homeCurrency"`
	Name         string          `json:"name"`
	IsActive     bool            `json:"isActive"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// IsHomeCurrency reports whether the ledger operates in the home currency.
func (l *CurrencyLedger) IsHomeCurrency() bool {
	return l.CurrencyCode == l.HomeCurrency
}

// Validate checks field-level constraints.
func (l *CurrencyLedger) Validate() error {
	if l.UserID == "" {
		return domain.BusinessRulef("user id is required")
	}
	if l.CurrencyCode == "" {
		return domain.BusinessRulef("currency code is required")
	}
	if l.HomeCurrency == "" {
		return domain.BusinessRulef("home currency is required")
	}
	if strings.TrimSpace(l.Name) == "" {
		return domain.BusinessRulef("ledger name is required")
	}
	return nil
}

// CurrencyTransaction is a single cash event on a ledger. ForeignAmount is
// always positive; the type decides whether it credits or debits the balance.
// HomeAmount and ExchangeRate are set on the types that establish or realize
// a home-currency cost.
type CurrencyTransaction struct {
	ID                         string                         `json:"id"`
	LedgerID                   string                         `json:"ledgerId"`
	Date                       string                         `json:"date"` // YYYY-MM-DD
	Type                       domain.CurrencyTransactionType `json:"type"`
	ForeignAmount              decimal.Decimal                `json:"foreignAmount"`
	HomeAmount                 *decimal.Decimal               `json:"homeAmount,omitempty"`
	ExchangeRate               *decimal.Decimal               `json:"exchangeRate,omitempty"`
	RelatedStockTransactionID  string                         `json:"relatedStockTransactionId,omitempty"`
	IsDeleted                  bool                           `json:"isDeleted"`
	CreatedAt                  time.Time                      `json:"createdAt"`
	UpdatedAt                  time.Time                      `json:"updatedAt"`
}

// SignedAmount returns the balance impact: positive for credits, negative
// for debits.
func (t *CurrencyTransaction) SignedAmount() decimal.Decimal {
	if t.Type.IsDebit() {
		return t.ForeignAmount.Neg()
	}
	return t.ForeignAmount
}

// Rate returns the recorded exchange rate, or zero when absent.
func (t *CurrencyTransaction) Rate() decimal.Decimal {
	if t.ExchangeRate == nil {
		return decimal.Zero
	}
	return *t.ExchangeRate
}

// Layer is one LIFO cost layer: the remaining foreign amount of a past
// inflow and the home-currency rate it was acquired at. Derived on every
// read, never persisted.
type Layer struct {
	Remaining    decimal.Decimal `json:"remaining"`
	ExchangeRate decimal.Decimal `json:"exchangeRate"`
	OriginDate   string          `json:"originDate"`
}

// RatePreview is the effective-rate answer for a prospective purchase.
type RatePreview struct {
	Rate          decimal.Decimal  `json:"rate"`
	Source        domain.RateSource `json:"source"`
	LifoRate      *decimal.Decimal `json:"lifoRate,omitempty"`
	MarketRate    *decimal.Decimal `json:"marketRate,omitempty"`
	LifoPortion   *decimal.Decimal `json:"lifoPortion,omitempty"`
	MarketPortion *decimal.Decimal `json:"marketPortion,omitempty"`
}

// Normalize canonicalizes user-entered fields and applies the home-currency
// ledger rule: a home ledger always pins the rate to 1 and the home amount
// to the foreign amount, whatever the client sent.
func (t *CurrencyTransaction) Normalize(l *CurrencyLedger) {
	t.Date = strings.TrimSpace(t.Date)
	if l.IsHomeCurrency() {
		one := decimal.NewFromInt(1)
		amount := t.ForeignAmount
		t.ExchangeRate = &one
		t.HomeAmount = &amount
	}
}

// Validate enforces the type-for-ledger matrix and the home-amount rules.
func (t *CurrencyTransaction) Validate(l *CurrencyLedger) error {
	if t.LedgerID == "" {
		return domain.BusinessRulef("ledger id is required")
	}
	if _, err := domain.ParseDate(t.Date); err != nil {
		return domain.BusinessRulef("invalid date %q (expected YYYY-MM-DD)", t.Date)
	}
	if !t.ForeignAmount.IsPositive() {
		return domain.BusinessRulef("amount must be greater than zero")
	}

	if l.IsHomeCurrency() {
		if !t.Type.AllowedOnHomeLedger() {
			return domain.BusinessRulef("transaction type %s is not allowed on a home-currency ledger", t.Type)
		}
	} else {
		if !t.Type.AllowedOnForeignLedger() {
			return domain.BusinessRulef("transaction type %s is not allowed on a foreign-currency ledger", t.Type)
		}
	}

	if t.Type.RequiresHomeAmount() {
		if t.HomeAmount == nil || !t.HomeAmount.IsPositive() {
			return domain.BusinessRulef("%s requires a home amount greater than zero", t.Type)
		}
		if t.ExchangeRate == nil || !t.ExchangeRate.IsPositive() {
			return domain.BusinessRulef("%s requires an exchange rate greater than zero", t.Type)
		}
	}

	return nil
}
