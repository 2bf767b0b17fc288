// Package transactions implements the stock transaction log.
package transactions

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/weihanlu/investrack/internal/domain"
)

// StockTransaction is a single buy or sell recorded against a portfolio.
// Monetary fields are exact decimals; PricePerShare and Fees are denominated
// in Currency, and ExchangeRate converts Currency into the home currency.
type StockTransaction struct {
	ID               string                 `json:"id"`
	PortfolioID      string                 `json:"portfolioId"`
	Date             string                 `json:"date"` // YYYY-MM-DD
	Ticker           string                 `json:"ticker"`
	Market           domain.StockMarket     `json:"market"`
	Type             domain.TransactionType `json:"type"`
	Shares           decimal.Decimal        `json:"shares"`
	PricePerShare    decimal.Decimal        `json:"pricePerShare"`
	ExchangeRate     decimal.Decimal        `json:"exchangeRate"`
	Fees             decimal.Decimal        `json:"fees"`
	Currency         domain.Currency        `json:"currency"`
	FundSource       domain.FundSource      `json:"fundSource"`
	CurrencyLedgerID string                 `json:"currencyLedgerId,omitempty"`
	IsDeleted        bool                   `json:"isDeleted"`
	CreatedAt        time.Time              `json:"createdAt"`
	UpdatedAt        time.Time              `json:"updatedAt"`
}

// Normalize canonicalizes user-entered fields before validation.
func (t *StockTransaction) Normalize() {
	t.Ticker = strings.ToUpper(strings.TrimSpace(t.Ticker))
	t.Date = strings.TrimSpace(t.Date)
	if t.FundSource == "" {
		t.FundSource = domain.FundSourceNone
	}
}

// Validate checks field-level constraints. The date may be at most one day
// in the future to accommodate trades entered across timezones.
func (t *StockTransaction) Validate() error {
	if t.PortfolioID == "" {
		return domain.BusinessRulef("portfolio id is required")
	}
	if t.Ticker == "" {
		return domain.BusinessRulef("ticker is required")
	}
	if !domain.ValidMarket(t.Market) {
		return domain.BusinessRulef("unknown market %q", t.Market)
	}
	if !domain.ValidTransactionType(t.Type) {
		return domain.BusinessRulef("unknown transaction type %q", t.Type)
	}
	if t.Currency == "" {
		return domain.BusinessRulef("currency is required")
	}

	txDate, err := domain.ParseDate(t.Date)
	if err != nil {
		return domain.BusinessRulef("invalid date %q (expected YYYY-MM-DD)", t.Date)
	}
	if txDate.After(time.Now().UTC().AddDate(0, 0, 1)) {
		return domain.BusinessRulef("transaction date %s is too far in the future", t.Date)
	}

	if !t.Shares.IsPositive() {
		return domain.BusinessRulef("shares must be greater than zero")
	}
	if t.PricePerShare.IsNegative() {
		return domain.BusinessRulef("price per share must not be negative")
	}
	if !t.ExchangeRate.IsPositive() {
		return domain.BusinessRulef("exchange rate must be greater than zero")
	}
	if t.Fees.IsNegative() {
		return domain.BusinessRulef("fees must not be negative")
	}

	if t.FundSource == domain.FundSourceCurrencyLedger && t.CurrencyLedgerID == "" {
		return domain.BusinessRulef("currency ledger id is required when funding from a ledger")
	}

	return nil
}

// GrossAmount returns shares * price in the transaction currency. Taiwanese
// brokers quote whole-dollar trade amounts, so for numeric TW tickers the
// product is floored before fees are applied.
func (t *StockTransaction) GrossAmount() decimal.Decimal {
	gross := t.Shares.Mul(t.PricePerShare)
	if t.Market == domain.MarketTW && leadsWithDigit(t.Ticker) {
		gross = gross.Floor()
	}
	return gross
}

// NetAmount returns the cash impact in the transaction currency:
// cost including fees for a buy, proceeds net of fees for a sell.
func (t *StockTransaction) NetAmount() decimal.Decimal {
	gross := t.GrossAmount()
	if t.Type == domain.TransactionSell {
		return gross.Sub(t.Fees)
	}
	return gross.Add(t.Fees)
}

// NetAmountHome converts NetAmount into the home currency using the
// transaction's recorded exchange rate.
func (t *StockTransaction) NetAmountHome() decimal.Decimal {
	return t.NetAmount().Mul(t.ExchangeRate)
}

func leadsWithDigit(ticker string) bool {
	return len(ticker) > 0 && ticker[0] >= '0' && ticker[0] <= '9'
}
