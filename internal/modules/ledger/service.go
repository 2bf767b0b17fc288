package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/weihanlu/investrack/internal/database"
	"github.com/weihanlu/investrack/internal/domain"
)

// MarketRateProvider supplies a market FX rate for a date. Defined here to
// avoid a dependency on the market-data module.
type MarketRateProvider interface {
	// GetRate returns the rate converting from into to, and the actual
	// trading date the rate belongs to (nearest trading day <= requested).
	GetRate(ctx context.Context, from, to domain.Currency, date string) (decimal.Decimal, string, error)
}

// SnapshotRecorder persists portfolio value snapshots for ledger events that
// count as external cash flows. Implemented by the snapshots module; defined
// here to avoid a circular dependency.
type SnapshotRecorder interface {
	RecordCurrencyEvent(ctx context.Context, dbTx *sql.Tx, l *CurrencyLedger, tx *CurrencyTransaction) error
	RemoveCurrencyEvent(ctx context.Context, dbTx *sql.Tx, l *CurrencyLedger, tx *CurrencyTransaction) error
}

// Service orchestrates ledger operations: ownership checks, the validation
// matrix, projections, and rate previews.
type Service struct {
	repo     *Repository
	db       *database.DB
	rates    MarketRateProvider
	snapshot SnapshotRecorder
	log      zerolog.Logger
}

// NewService creates a ledger service. rates may be nil in tests; previews
// then never see a market rate.
func NewService(repo *Repository, db *database.DB, rates MarketRateProvider, log zerolog.Logger) *Service {
	return &Service{
		repo:  repo,
		db:    db,
		rates: rates,
		log:   log.With().Str("service", "ledger").Logger(),
	}
}

// SetSnapshotRecorder wires the snapshot module in after construction.
func (s *Service) SetSnapshotRecorder(r SnapshotRecorder) {
	s.snapshot = r
}

// CreateLedger creates an active ledger for the user.
func (s *Service) CreateLedger(userID string, currency domain.Currency, home domain.Currency, name string) (*CurrencyLedger, error) {
	l := &CurrencyLedger{
		UserID:       userID,
		CurrencyCode: currency,
		HomeCurrency: home,
		Name:         name,
	}
	if err := s.repo.CreateLedger(l); err != nil {
		return nil, err
	}
	return l, nil
}

// GetLedger retrieves a ledger and verifies ownership.
func (s *Service) GetLedger(userID, ledgerID string) (*CurrencyLedger, error) {
	l, err := s.repo.GetLedger(ledgerID)
	if err != nil {
		return nil, err
	}
	if l.UserID != userID {
		return nil, domain.AccessDeniedf("ledger %s does not belong to the caller", ledgerID)
	}
	return l, nil
}

// ListLedgers retrieves the user's ledgers.
func (s *Service) ListLedgers(userID string) ([]CurrencyLedger, error) {
	return s.repo.ListLedgersByUser(userID)
}

// DeactivateLedger marks a ledger inactive after an ownership check.
func (s *Service) DeactivateLedger(userID, ledgerID string) error {
	if _, err := s.GetLedger(userID, ledgerID); err != nil {
		return err
	}
	return s.repo.DeactivateLedger(ledgerID)
}

// CreateTransaction validates and persists a cash event. External cash
// flows commit atomically with their portfolio snapshots.
func (s *Service) CreateTransaction(ctx context.Context, userID string, tx *CurrencyTransaction) error {
	l, err := s.GetLedger(userID, tx.LedgerID)
	if err != nil {
		return err
	}

	tx.Normalize(l)
	if err := tx.Validate(l); err != nil {
		return err
	}

	return database.WithTransactionContext(ctx, s.db.Conn(), func(dbTx *sql.Tx) error {
		if err := s.repo.CreateCurrencyTx(dbTx, tx); err != nil {
			return err
		}
		if s.snapshot != nil && tx.Type.IsExternalCashFlow() {
			return s.snapshot.RecordCurrencyEvent(ctx, dbTx, l, tx)
		}
		return nil
	})
}

// UpdateTransaction validates and persists changes to a cash event.
// Linked Spend rows are maintained by the linking service, not here.
func (s *Service) UpdateTransaction(ctx context.Context, userID string, tx *CurrencyTransaction) error {
	l, err := s.GetLedger(userID, tx.LedgerID)
	if err != nil {
		return err
	}

	existing, err := s.repo.GetCurrencyTx(tx.ID)
	if err != nil {
		return err
	}
	if existing.RelatedStockTransactionID != "" {
		return domain.BusinessRulef("currency transaction %s is linked to a stock transaction; edit the stock transaction instead", tx.ID)
	}

	tx.LedgerID = existing.LedgerID
	tx.Normalize(l)
	if err := tx.Validate(l); err != nil {
		return err
	}

	return database.WithTransactionContext(ctx, s.db.Conn(), func(dbTx *sql.Tx) error {
		if err := s.repo.UpdateCurrencyTx(dbTx, tx); err != nil {
			return err
		}
		if s.snapshot != nil && tx.Type.IsExternalCashFlow() {
			return s.snapshot.RecordCurrencyEvent(ctx, dbTx, l, tx)
		}
		return nil
	})
}

// DeleteTransaction soft-deletes an unlinked cash event. Events linked to a
// stock transaction must go through the linking service so both sides
// cascade together.
func (s *Service) DeleteTransaction(ctx context.Context, userID, txID string) error {
	tx, err := s.repo.GetCurrencyTx(txID)
	if err != nil {
		return err
	}
	l, err := s.GetLedger(userID, tx.LedgerID)
	if err != nil {
		return err
	}
	if tx.RelatedStockTransactionID != "" {
		return domain.BusinessRulef("currency transaction %s is linked to stock transaction %s; delete through the linking path", txID, tx.RelatedStockTransactionID)
	}

	return database.WithTransactionContext(ctx, s.db.Conn(), func(dbTx *sql.Tx) error {
		if err := s.repo.SoftDeleteCurrencyTx(dbTx, txID); err != nil {
			return err
		}
		if s.snapshot != nil && tx.Type.IsExternalCashFlow() {
			return s.snapshot.RemoveCurrencyEvent(ctx, dbTx, l, tx)
		}
		return nil
	})
}

// GetTransaction retrieves one cash event after an ownership check.
func (s *Service) GetTransaction(userID, txID string) (*CurrencyTransaction, error) {
	tx, err := s.repo.GetCurrencyTx(txID)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetLedger(userID, tx.LedgerID); err != nil {
		return nil, err
	}
	return tx, nil
}

// ListTransactions retrieves a ledger's live transactions after an
// ownership check.
func (s *Service) ListTransactions(userID, ledgerID string) ([]CurrencyTransaction, error) {
	if _, err := s.GetLedger(userID, ledgerID); err != nil {
		return nil, err
	}
	return s.repo.ListCurrencyTxs(ledgerID)
}

// ProjectionAt folds the ledger's log truncated to date (inclusive). An
// empty date means the full log.
func (s *Service) ProjectionAt(ledgerID, date string) (Projection, error) {
	var (
		txs []CurrencyTransaction
		err error
	)
	if date == "" {
		txs, err = s.repo.ListCurrencyTxs(ledgerID)
	} else {
		txs, err = s.repo.ListCurrencyTxsUntil(ledgerID, date)
	}
	if err != nil {
		return Projection{}, fmt.Errorf("failed to project ledger: %w", err)
	}
	return Project(txs), nil
}

// Balance returns the current foreign-currency balance.
func (s *Service) Balance(userID, ledgerID string) (decimal.Decimal, error) {
	if _, err := s.GetLedger(userID, ledgerID); err != nil {
		return decimal.Zero, err
	}
	p, err := s.ProjectionAt(ledgerID, "")
	if err != nil {
		return decimal.Zero, err
	}
	return p.Balance, nil
}

// PreviewRate computes the effective exchange rate a purchase of amount on
// date would carry, consulting the market source only when LIFO depth
// cannot cover the amount.
func (s *Service) PreviewRate(ctx context.Context, userID, ledgerID string, amount decimal.Decimal, date string) (*RatePreview, error) {
	l, err := s.GetLedger(userID, ledgerID)
	if err != nil {
		return nil, err
	}

	if l.IsHomeCurrency() {
		one := decimal.NewFromInt(1)
		return &RatePreview{Rate: one, Source: domain.RateSourceMarket, MarketRate: &one}, nil
	}

	p, err := s.ProjectionAt(ledgerID, date)
	if err != nil {
		return nil, err
	}

	marketRate := s.MarketRate(ctx, l, date)
	return EffectiveRate(p, amount, marketRate)
}

// MarketRate fetches the ledger-to-home market rate for date, or nil when
// the source cannot provide one. Unavailability here is not an error; the
// preview logic decides whether it matters.
func (s *Service) MarketRate(ctx context.Context, l *CurrencyLedger, date string) *decimal.Decimal {
	if s.rates == nil || l.IsHomeCurrency() {
		return nil
	}
	rate, _, err := s.rates.GetRate(ctx, l.CurrencyCode, l.HomeCurrency, date)
	if err != nil || !rate.IsPositive() {
		s.log.Debug().
			Str("ledger_id", l.ID).
			Str("date", date).
			Err(err).
			Msg("No market rate available")
		return nil
	}
	return &rate
}
