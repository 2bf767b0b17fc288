// Package positions derives current holdings from the transaction log.
package positions

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/weihanlu/investrack/internal/domain"
	"github.com/weihanlu/investrack/internal/modules/splits"
	"github.com/weihanlu/investrack/internal/modules/transactions"
)

// Position is the folded state of one (ticker, market) holding. Shares are
// split-adjusted; cost bases use the weighted-average method, so a sell
// removes sharesSold * average cost and leaves the average unchanged.
// Each sell realizes net proceeds minus the cost removed, accumulated in
// the realized P&L fields; they survive after the position closes.
type Position struct {
	Ticker            string             `json:"ticker"`
	Market            domain.StockMarket `json:"market"`
	Currency          domain.Currency    `json:"currency"`
	TotalShares       decimal.Decimal    `json:"totalShares"`
	CostSource        decimal.Decimal    `json:"costSource"` // in Currency
	CostHome          decimal.Decimal    `json:"costHome"`
	AvgCostHome       decimal.Decimal    `json:"avgCostHome"` // per adjusted share
	RealizedPnLSource decimal.Decimal    `json:"realizedPnlSource"`
	RealizedPnLHome   decimal.Decimal    `json:"realizedPnlHome"`
}

// Calculator computes positions by replaying a portfolio's transactions.
type Calculator struct {
	txRepo    *transactions.Repository
	splitRepo *splits.Repository
	log       zerolog.Logger
}

// NewCalculator creates a position calculator.
func NewCalculator(txRepo *transactions.Repository, splitRepo *splits.Repository, log zerolog.Logger) *Calculator {
	return &Calculator{
		txRepo:    txRepo,
		splitRepo: splitRepo,
		log:       log.With().Str("service", "positions").Logger(),
	}
}

// Holdings returns the open positions of a portfolio, largest home-currency
// cost first. Positions folded down to zero or below are omitted.
func (c *Calculator) Holdings(portfolioID string) ([]Position, error) {
	return c.holdings(portfolioID, "", false)
}

// HoldingsAt returns open positions considering only transactions dated on
// or before the given date.
func (c *Calculator) HoldingsAt(portfolioID, date string) ([]Position, error) {
	return c.holdings(portfolioID, date, false)
}

// Positions returns every traded position: the open holdings first, then
// the fully closed ones, kept for their realized P&L.
func (c *Calculator) Positions(portfolioID string) ([]Position, error) {
	return c.holdings(portfolioID, "", true)
}

func (c *Calculator) holdings(portfolioID, until string, includeClosed bool) ([]Position, error) {
	var (
		txs []transactions.StockTransaction
		err error
	)
	if until == "" {
		txs, err = c.txRepo.ListByPortfolio(portfolioID)
	} else {
		txs, err = c.txRepo.ListByPortfolioUntil(portfolioID, until)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	splitsBySymbol, err := c.splitRepo.GetAllBySymbol()
	if err != nil {
		return nil, fmt.Errorf("failed to load splits: %w", err)
	}

	byKey := Fold(txs, splitsBySymbol)

	holdings := make([]Position, 0, len(byKey))
	var closed []Position
	for _, p := range byKey {
		if p.TotalShares.IsPositive() {
			holdings = append(holdings, *p)
		} else if includeClosed {
			closed = append(closed, *p)
		}
	}

	sort.Slice(holdings, func(i, j int) bool {
		if cmp := holdings[j].CostHome.Cmp(holdings[i].CostHome); cmp != 0 {
			return cmp < 0
		}
		return holdings[i].Ticker < holdings[j].Ticker
	})
	sort.Slice(closed, func(i, j int) bool {
		return closed[i].Ticker < closed[j].Ticker
	})

	return append(holdings, closed...), nil
}

// Fold replays transactions in order and accumulates per-symbol positions.
// The input must already be sorted by (date, createdAt); repositories
// return it that way.
func Fold(txs []transactions.StockTransaction, splitsBySymbol map[string][]splits.StockSplit) map[string]*Position {
	byKey := make(map[string]*Position)

	for _, tx := range txs {
		if tx.Type != domain.TransactionBuy && tx.Type != domain.TransactionSell {
			continue
		}

		key := splits.SymbolKey(tx.Ticker, tx.Market)
		p, ok := byKey[key]
		if !ok {
			p = &Position{
				Ticker:   tx.Ticker,
				Market:   tx.Market,
				Currency: tx.Currency,
			}
			byKey[key] = p
		}

		factor := splits.AdjustmentFactor(tx.Date, splitsBySymbol[key])
		adjShares := tx.Shares.Mul(factor)

		switch tx.Type {
		case domain.TransactionBuy:
			p.TotalShares = p.TotalShares.Add(adjShares)
			p.CostSource = p.CostSource.Add(tx.NetAmount())
			p.CostHome = p.CostHome.Add(tx.NetAmountHome())

		case domain.TransactionSell:
			var removedSource, removedHome decimal.Decimal
			if p.TotalShares.IsPositive() {
				ratio := adjShares.Div(p.TotalShares)
				if ratio.GreaterThan(decimal.NewFromInt(1)) {
					ratio = decimal.NewFromInt(1)
				}
				removedSource = p.CostSource.Mul(ratio)
				removedHome = p.CostHome.Mul(ratio)
				p.CostSource = p.CostSource.Sub(removedSource)
				p.CostHome = p.CostHome.Sub(removedHome)
			}
			p.RealizedPnLSource = p.RealizedPnLSource.Add(tx.NetAmount().Sub(removedSource))
			p.RealizedPnLHome = p.RealizedPnLHome.Add(tx.NetAmountHome().Sub(removedHome))
			p.TotalShares = p.TotalShares.Sub(adjShares)
			if !p.TotalShares.IsPositive() {
				p.CostSource = decimal.Zero
				p.CostHome = decimal.Zero
			}
		}

		if p.TotalShares.IsPositive() {
			p.AvgCostHome = p.CostHome.DivRound(p.TotalShares, domain.ScalePrice)
		} else {
			p.AvgCostHome = decimal.Zero
		}
	}

	return byKey
}
