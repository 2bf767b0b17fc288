package snapshots

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/weihanlu/investrack/internal/database"
)

const snapshotColumns = `id, portfolio_id, transaction_id, snapshot_date,
	value_before_home, value_after_home, value_before_source, value_after_source, created_at`

// Repository persists transaction portfolio snapshots.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a snapshot repository.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "snapshots").Logger(),
	}
}

// Upsert writes a snapshot inside the given transaction; the unique
// (portfolio_id, transaction_id) key makes re-derivation idempotent.
func (r *Repository) Upsert(dbTx *sql.Tx, s *Snapshot) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}

	query := r.db.Rebind(`
		INSERT INTO transaction_snapshots
		(id, portfolio_id, transaction_id, snapshot_date,
		 value_before_home, value_after_home, value_before_source, value_after_source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (portfolio_id, transaction_id) DO UPDATE SET
			snapshot_date = excluded.snapshot_date,
			value_before_home = excluded.value_before_home,
			value_after_home = excluded.value_after_home,
			value_before_source = excluded.value_before_source,
			value_after_source = excluded.value_after_source,
			created_at = excluded.created_at
	`)

	args := []interface{}{
		s.ID, s.PortfolioID, s.TransactionID, s.SnapshotDate,
		s.ValueBeforeHome.String(), s.ValueAfterHome.String(),
		s.ValueBeforeSource.String(), s.ValueAfterSource.String(),
		s.CreatedAt.UnixNano(),
	}

	var err error
	if dbTx != nil {
		_, err = dbTx.Exec(query, args...)
	} else {
		_, err = r.db.Conn().Exec(query, args...)
	}
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}

// DeleteDay removes every snapshot of a portfolio day; the day is then
// re-derived from its surviving events.
func (r *Repository) DeleteDay(dbTx *sql.Tx, portfolioID, date string) error {
	query := r.db.Rebind(`
		DELETE FROM transaction_snapshots WHERE portfolio_id = ? AND snapshot_date = ?
	`)

	var err error
	if dbTx != nil {
		_, err = dbTx.Exec(query, portfolioID, date)
	} else {
		_, err = r.db.Conn().Exec(query, portfolioID, date)
	}
	if err != nil {
		return fmt.Errorf("failed to clear day snapshots: %w", err)
	}
	return nil
}

// ListRange retrieves a portfolio's snapshots with from <= date <= to,
// ordered by date then event time.
func (r *Repository) ListRange(portfolioID, from, to string) ([]Snapshot, error) {
	query := r.db.Rebind(`
		SELECT ` + snapshotColumns + ` FROM transaction_snapshots
		WHERE portfolio_id = ? AND snapshot_date >= ? AND snapshot_date <= ?
		ORDER BY snapshot_date ASC, created_at ASC
	`)

	rows, err := r.db.Conn().Query(query, portfolioID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var result []Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		result = append(result, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return result, nil
}

// HasForTransaction reports whether a snapshot exists for the event.
func (r *Repository) HasForTransaction(portfolioID, transactionID string) (bool, error) {
	query := r.db.Rebind(`
		SELECT 1 FROM transaction_snapshots WHERE portfolio_id = ? AND transaction_id = ? LIMIT 1
	`)

	var one int
	err := r.db.Conn().QueryRow(query, portfolioID, transactionID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check snapshot existence: %w", err)
	}
	return true, nil
}

func scanSnapshot(rows *sql.Rows) (Snapshot, error) {
	var (
		s            Snapshot
		beforeHome   string
		afterHome    string
		beforeSource string
		afterSource  string
		createdAt    int64
	)

	err := rows.Scan(
		&s.ID, &s.PortfolioID, &s.TransactionID, &s.SnapshotDate,
		&beforeHome, &afterHome, &beforeSource, &afterSource, &createdAt,
	)
	if err != nil {
		return Snapshot{}, err
	}

	s.CreatedAt = time.Unix(0, createdAt)
	if s.ValueBeforeHome, err = decimal.NewFromString(beforeHome); err != nil {
		return Snapshot{}, fmt.Errorf("invalid snapshot value %q: %w", beforeHome, err)
	}
	if s.ValueAfterHome, err = decimal.NewFromString(afterHome); err != nil {
		return Snapshot{}, fmt.Errorf("invalid snapshot value %q: %w", afterHome, err)
	}
	if s.ValueBeforeSource, err = decimal.NewFromString(beforeSource); err != nil {
		return Snapshot{}, fmt.Errorf("invalid snapshot value %q: %w", beforeSource, err)
	}
	if s.ValueAfterSource, err = decimal.NewFromString(afterSource); err != nil {
		return Snapshot{}, fmt.Errorf("invalid snapshot value %q: %w", afterSource, err)
	}

	return s, nil
}
