// Package snapshots records per-transaction portfolio values. Every event
// that shifts a portfolio's value stores the value immediately before and
// immediately after it, in both the portfolio's source currency and home
// currency. The performance calculator consumes these rows verbatim.
package snapshots

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is one persisted before/after pair. TransactionID refers to a
// stock transaction or an external-cash-flow currency transaction.
//
// Same-day snapshots are chain-normalized on write: the chronologically
// first event of a day keeps {before = dayStart, after = dayEnd}, every
// later one is collapsed to {before = after = dayEnd}, so a day's return
// factor enters a TWR product exactly once.
type Snapshot struct {
	ID                string          `json:"id"`
	PortfolioID       string          `json:"portfolioId"`
	TransactionID     string          `json:"transactionId"`
	SnapshotDate      string          `json:"snapshotDate"` // YYYY-MM-DD
	ValueBeforeHome   decimal.Decimal `json:"valueBeforeHome"`
	ValueAfterHome    decimal.Decimal `json:"valueAfterHome"`
	ValueBeforeSource decimal.Decimal `json:"valueBeforeSource"`
	ValueAfterSource  decimal.Decimal `json:"valueAfterSource"`
	CreatedAt         time.Time       `json:"createdAt"`
}
