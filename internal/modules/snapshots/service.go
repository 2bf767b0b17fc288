package snapshots

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/weihanlu/investrack/internal/domain"
	"github.com/weihanlu/investrack/internal/modules/ledger"
	"github.com/weihanlu/investrack/internal/modules/portfolio"
	"github.com/weihanlu/investrack/internal/modules/transactions"
)

// dayEvent is one value-shifting event inside a single portfolio day,
// with its impact on the portfolio value.
type dayEvent struct {
	transactionID string
	createdAt     time.Time
	impactHome    decimal.Decimal
	impactSource  decimal.Decimal
}

// Service derives and persists snapshots. A change to any event re-derives
// the whole affected day from its surviving events, inside the same
// database transaction as the triggering write, so the chain-normalization
// invariant can never be observed half-applied.
type Service struct {
	repo          *Repository
	portfolioRepo *portfolio.Repository
	txRepo        *transactions.Repository
	ledgerRepo    *ledger.Repository
	valuator      *portfolio.Valuator
	log           zerolog.Logger
}

// NewService creates the snapshot service.
func NewService(
	repo *Repository,
	portfolioRepo *portfolio.Repository,
	txRepo *transactions.Repository,
	ledgerRepo *ledger.Repository,
	valuator *portfolio.Valuator,
	log zerolog.Logger,
) *Service {
	return &Service{
		repo:          repo,
		portfolioRepo: portfolioRepo,
		txRepo:        txRepo,
		ledgerRepo:    ledgerRepo,
		valuator:      valuator,
		log:           log.With().Str("service", "snapshots").Logger(),
	}
}

// RecordStockEvent re-derives the day of a created or updated stock
// transaction. The pending transaction and its linked cash events are
// passed explicitly because the triggering write is still uncommitted and
// invisible to reads; a top-up credit inserted alongside the trade would
// otherwise drop out of the day.
func (s *Service) RecordStockEvent(ctx context.Context, dbTx *sql.Tx, p *portfolio.Portfolio, tx *transactions.StockTransaction, cash *portfolio.LinkedCashChange) error {
	pending := pendingChange{upsertStock: tx}
	if cash != nil {
		pending.currencyLedger = cash.Ledger
		pending.linkedCash = cash.Inserted
		pending.removeIDs = cash.RemovedIDs
	}
	return s.rebuildDay(ctx, dbTx, p, tx.Date, pending)
}

// RemoveStockEvent re-derives the day after a stock transaction was
// soft-deleted (or moved to another date), together with its linked cash
// events.
func (s *Service) RemoveStockEvent(ctx context.Context, dbTx *sql.Tx, p *portfolio.Portfolio, tx *transactions.StockTransaction, cash *portfolio.LinkedCashChange) error {
	pending := pendingChange{removeIDs: []string{tx.ID}}
	if cash != nil {
		pending.removeIDs = append(pending.removeIDs, cash.RemovedIDs...)
	}
	return s.rebuildDay(ctx, dbTx, p, tx.Date, pending)
}

// RecordCurrencyEvent implements the ledger module's SnapshotRecorder for
// created or updated external cash flows: every portfolio bound to the
// ledger gets its day re-derived.
func (s *Service) RecordCurrencyEvent(ctx context.Context, dbTx *sql.Tx, l *ledger.CurrencyLedger, tx *ledger.CurrencyTransaction) error {
	return s.fanOutCurrencyEvent(ctx, dbTx, l, tx.Date, pendingChange{upsertCurrency: tx, currencyLedger: l})
}

// RemoveCurrencyEvent is the soft-delete counterpart of RecordCurrencyEvent.
func (s *Service) RemoveCurrencyEvent(ctx context.Context, dbTx *sql.Tx, l *ledger.CurrencyLedger, tx *ledger.CurrencyTransaction) error {
	return s.fanOutCurrencyEvent(ctx, dbTx, l, tx.Date, pendingChange{removeIDs: []string{tx.ID}})
}

func (s *Service) fanOutCurrencyEvent(ctx context.Context, dbTx *sql.Tx, l *ledger.CurrencyLedger, date string, pending pendingChange) error {
	bound, err := s.portfolioRepo.ListByBoundLedger(l.ID)
	if err != nil {
		return err
	}
	for i := range bound {
		if err := s.rebuildDay(ctx, dbTx, &bound[i], date, pending); err != nil {
			return err
		}
	}
	return nil
}

// pendingChange carries the uncommitted events the rebuild must see (or
// stop seeing). At most one of upsertStock/upsertCurrency is set;
// linkedCash holds the cash events written alongside upsertStock, in the
// currencyLedger.
type pendingChange struct {
	upsertStock    *transactions.StockTransaction
	upsertCurrency *ledger.CurrencyTransaction
	currencyLedger *ledger.CurrencyLedger
	linkedCash     []*ledger.CurrencyTransaction
	removeIDs      []string
}

// rebuildDay recomputes every snapshot of (portfolio, date):
//  1. day start = yesterday's holdings and cash valued at today's prices,
//  2. replay the day's events in creation order, accumulating impacts,
//  3. persist with chain-normalization applied.
func (s *Service) rebuildDay(ctx context.Context, dbTx *sql.Tx, p *portfolio.Portfolio, date string, pending pendingChange) error {
	day, err := domain.ParseDate(date)
	if err != nil {
		return domain.BusinessRulef("invalid snapshot date %q", date)
	}
	prevDay := day.AddDate(0, 0, -1).Format(domain.DateFormat)

	dayStart, err := s.valuator.ValueAtPriced(ctx, p, prevDay, date, portfolio.ValueOptions{FallbackToCost: true})
	if err != nil {
		return fmt.Errorf("failed to value day start: %w", err)
	}

	events, err := s.collectDayEvents(ctx, p, date, pending)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteDay(dbTx, p.ID, date); err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	// Running values give each event its natural before/after; the final
	// running value is the day end used by the normalization pass.
	type computed struct {
		event                     dayEvent
		beforeHome, afterHome     decimal.Decimal
		beforeSource, afterSource decimal.Decimal
	}
	runningHome := dayStart.ValueHome
	runningSource := dayStart.ValueSource
	rows := make([]computed, 0, len(events))
	for _, e := range events {
		row := computed{
			event:        e,
			beforeHome:   runningHome,
			beforeSource: runningSource,
		}
		runningHome = runningHome.Add(e.impactHome)
		runningSource = runningSource.Add(e.impactSource)
		row.afterHome = runningHome
		row.afterSource = runningSource
		rows = append(rows, row)
	}
	dayEndHome := runningHome
	dayEndSource := runningSource

	for i, row := range rows {
		snap := &Snapshot{
			PortfolioID:   p.ID,
			TransactionID: row.event.transactionID,
			SnapshotDate:  date,
			CreatedAt:     row.event.createdAt,
		}
		if i == 0 {
			snap.ValueBeforeHome = dayStart.ValueHome
			snap.ValueBeforeSource = dayStart.ValueSource
		} else {
			snap.ValueBeforeHome = dayEndHome
			snap.ValueBeforeSource = dayEndSource
		}
		snap.ValueAfterHome = dayEndHome
		snap.ValueAfterSource = dayEndSource

		if err := s.repo.Upsert(dbTx, snap); err != nil {
			return err
		}
	}

	s.log.Debug().
		Str("portfolio_id", p.ID).
		Str("date", date).
		Int("events", len(rows)).
		Msg("Day snapshots rebuilt")

	return nil
}

// collectDayEvents lists the committed value-shifting events of the day,
// applies the pending change, and sorts by creation time.
func (s *Service) collectDayEvents(ctx context.Context, p *portfolio.Portfolio, date string, pending pendingChange) ([]dayEvent, error) {
	var events []dayEvent
	seen := map[string]bool{}
	for _, id := range pending.removeIDs {
		seen[id] = true
	}
	pendingCash := map[string]bool{}
	for _, tx := range pending.linkedCash {
		pendingCash[tx.ID] = true
	}

	stockTxs, err := s.txRepo.ListByPortfolioUntil(p.ID, date)
	if err != nil {
		return nil, err
	}
	for i := range stockTxs {
		tx := &stockTxs[i]
		if tx.Date != date || seen[tx.ID] {
			continue
		}
		if pending.upsertStock != nil && tx.ID == pending.upsertStock.ID {
			continue // replaced by the pending version below
		}
		seen[tx.ID] = true
		events = append(events, s.stockEvent(ctx, p, tx))
	}

	if p.BoundCurrencyLedgerID != "" {
		l, err := s.ledgerRepo.GetLedger(p.BoundCurrencyLedgerID)
		if err != nil {
			return nil, err
		}
		currencyTxs, err := s.ledgerRepo.ListCurrencyTxsUntil(l.ID, date)
		if err != nil {
			return nil, err
		}
		for i := range currencyTxs {
			tx := &currencyTxs[i]
			if tx.Date != date || !tx.Type.IsExternalCashFlow() || seen[tx.ID] {
				continue
			}
			if pending.upsertCurrency != nil && tx.ID == pending.upsertCurrency.ID {
				continue
			}
			if pendingCash[tx.ID] {
				continue
			}
			seen[tx.ID] = true
			events = append(events, s.currencyEvent(ctx, p, l, tx))
		}
	}

	if pending.upsertStock != nil && pending.upsertStock.Date == date {
		events = append(events, s.stockEvent(ctx, p, pending.upsertStock))
	}
	if pending.upsertCurrency != nil && pending.upsertCurrency.Date == date &&
		pending.upsertCurrency.Type.IsExternalCashFlow() {
		events = append(events, s.currencyEvent(ctx, p, pending.currencyLedger, pending.upsertCurrency))
	}
	for _, tx := range pending.linkedCash {
		if tx.Date != date || !tx.Type.IsExternalCashFlow() {
			continue
		}
		if pending.currencyLedger == nil || pending.currencyLedger.ID != p.BoundCurrencyLedgerID {
			continue
		}
		events = append(events, s.currencyEvent(ctx, p, pending.currencyLedger, tx))
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].createdAt.Before(events[j].createdAt)
	})

	return events, nil
}

// stockEvent computes the immediate value impact of a stock transaction.
// A buy funded from the bound ledger moves cash into stock, so only the
// fees leak out of the closed loop; an unfunded buy brings the whole
// position value in from outside. A sell removes the position value.
func (s *Service) stockEvent(ctx context.Context, p *portfolio.Portfolio, tx *transactions.StockTransaction) dayEvent {
	gross := tx.GrossAmount()

	var impact decimal.Decimal
	switch tx.Type {
	case domain.TransactionSell:
		impact = gross.Neg()
	default:
		fundedFromBound := tx.FundSource == domain.FundSourceCurrencyLedger &&
			tx.CurrencyLedgerID != "" && tx.CurrencyLedgerID == p.BoundCurrencyLedgerID
		if fundedFromBound {
			impact = tx.Fees.Neg()
		} else {
			impact = gross
		}
	}

	impactHome := impact.Mul(tx.ExchangeRate)
	impactSource, ok := s.valuator.Convert(ctx, impact, tx.Currency, p.BaseCurrency, tx.Date)
	if !ok {
		impactSource = impact // rate 1 fallback keeps the write unblocked
	}

	return dayEvent{
		transactionID: tx.ID,
		createdAt:     tx.CreatedAt,
		impactHome:    impactHome,
		impactSource:  impactSource,
	}
}

// currencyEvent computes the impact of an external cash flow on the bound
// ledger: deposits raise the portfolio value, withdrawals lower it.
func (s *Service) currencyEvent(ctx context.Context, p *portfolio.Portfolio, l *ledger.CurrencyLedger, tx *ledger.CurrencyTransaction) dayEvent {
	signed := tx.SignedAmount()

	var impactHome decimal.Decimal
	if rate := tx.Rate(); rate.IsPositive() {
		impactHome = signed.Mul(rate)
	} else if converted, ok := s.valuator.Convert(ctx, signed, l.CurrencyCode, l.HomeCurrency, tx.Date); ok {
		impactHome = converted
	} else {
		impactHome = signed
	}

	impactSource, ok := s.valuator.Convert(ctx, signed, l.CurrencyCode, p.BaseCurrency, tx.Date)
	if !ok {
		impactSource = signed
	}

	return dayEvent{
		transactionID: tx.ID,
		createdAt:     tx.CreatedAt,
		impactHome:    impactHome,
		impactSource:  impactSource,
	}
}

// Backfill makes sure every value-shifting event between from and to has a
// snapshot, rebuilding only the days where one is missing. Each day commits
// in its own transaction.
func (s *Service) Backfill(ctx context.Context, p *portfolio.Portfolio, from, to string) error {
	days := map[string]bool{}

	stockTxs, err := s.txRepo.ListByPortfolioUntil(p.ID, to)
	if err != nil {
		return err
	}
	for i := range stockTxs {
		tx := &stockTxs[i]
		if tx.Date < from {
			continue
		}
		ok, err := s.repo.HasForTransaction(p.ID, tx.ID)
		if err != nil {
			return err
		}
		if !ok {
			days[tx.Date] = true
		}
	}

	if p.BoundCurrencyLedgerID != "" {
		currencyTxs, err := s.ledgerRepo.ListCurrencyTxsUntil(p.BoundCurrencyLedgerID, to)
		if err != nil {
			return err
		}
		for i := range currencyTxs {
			tx := &currencyTxs[i]
			if tx.Date < from || !tx.Type.IsExternalCashFlow() {
				continue
			}
			ok, err := s.repo.HasForTransaction(p.ID, tx.ID)
			if err != nil {
				return err
			}
			if !ok {
				days[tx.Date] = true
			}
		}
	}

	dates := make([]string, 0, len(days))
	for d := range days {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	for _, date := range dates {
		if err := s.rebuildDayCommitted(ctx, p, date); err != nil {
			return err
		}
	}
	return nil
}

// rebuildDayCommitted rebuilds one day in its own transaction; used by
// backfill where there is no triggering write to piggyback on.
func (s *Service) rebuildDayCommitted(ctx context.Context, p *portfolio.Portfolio, date string) error {
	dbTx, err := s.repo.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin backfill transaction: %w", err)
	}
	if err := s.rebuildDay(ctx, dbTx, p, date, pendingChange{}); err != nil {
		_ = dbTx.Rollback()
		return err
	}
	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit backfill transaction: %w", err)
	}
	return nil
}

// ListRange exposes the repository read for the performance calculator.
func (s *Service) ListRange(portfolioID, from, to string) ([]Snapshot, error) {
	return s.repo.ListRange(portfolioID, from, to)
}
