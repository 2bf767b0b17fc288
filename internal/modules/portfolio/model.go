// Package portfolio implements portfolios, their valuation, and the
// linking of stock purchases to ledger cash events.
package portfolio

import (
	"strings"
	"time"

	"github.com/weihanlu/investrack/internal/domain"
)

// Portfolio groups stock transactions under one base currency. At most one
// currency ledger may be bound; a purchase whose currency matches the bound
// ledger's currency consumes cash from that ledger.
type Portfolio struct {
	ID                    string          `json:"id"`
	UserID                string          `json:"userId"`
	DisplayName           string          `json:"displayName"`
	BaseCurrency          domain.Currency `json:"baseCurrency"`
	HomeCurrency          domain.Currency `json:"homeCurrency"`
	BoundCurrencyLedgerID string          `json:"boundCurrencyLedgerId,omitempty"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

// Validate checks field-level constraints.
func (p *Portfolio) Validate() error {
	if p.UserID == "" {
		return domain.BusinessRulef("user id is required")
	}
	if strings.TrimSpace(p.DisplayName) == "" {
		return domain.BusinessRulef("portfolio name is required")
	}
	if p.BaseCurrency == "" {
		return domain.BusinessRulef("base currency is required")
	}
	if p.HomeCurrency == "" {
		return domain.BusinessRulef("home currency is required")
	}
	return nil
}
