// Package splits tracks stock split events and applies share adjustments.
package splits

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/weihanlu/investrack/internal/domain"
)

// StockSplit records a split event for a symbol on a market. A 4-for-1
// split has Ratio 4; a 1-for-10 reverse split has Ratio 0.1.
type StockSplit struct {
	ID          string             `json:"id"`
	Symbol      string             `json:"symbol"`
	Market      domain.StockMarket `json:"market"`
	SplitDate   string             `json:"splitDate"` // YYYY-MM-DD
	Ratio       decimal.Decimal    `json:"ratio"`
	Description string             `json:"description,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
}

// Normalize canonicalizes user-entered fields before validation.
func (s *StockSplit) Normalize() {
	s.Symbol = strings.ToUpper(strings.TrimSpace(s.Symbol))
	s.SplitDate = strings.TrimSpace(s.SplitDate)
}

// Validate checks field-level constraints.
func (s *StockSplit) Validate() error {
	if s.Symbol == "" {
		return domain.BusinessRulef("symbol is required")
	}
	if !domain.ValidMarket(s.Market) {
		return domain.BusinessRulef("unknown market %q", s.Market)
	}
	if _, err := domain.ParseDate(s.SplitDate); err != nil {
		return domain.BusinessRulef("invalid split date %q (expected YYYY-MM-DD)", s.SplitDate)
	}
	if !s.Ratio.IsPositive() {
		return domain.BusinessRulef("split ratio must be greater than zero")
	}
	return nil
}

// AdjustmentFactor returns the cumulative share multiplier for a holding
// acquired on txDate: the product of the ratios of every split dated
// strictly after it. Splits on the transaction date itself do not apply,
// the shares were bought post-split.
func AdjustmentFactor(txDate string, symbolSplits []StockSplit) decimal.Decimal {
	factor := decimal.NewFromInt(1)
	for _, s := range symbolSplits {
		if s.SplitDate > txDate {
			factor = factor.Mul(s.Ratio)
		}
	}
	return factor
}
