package portfolio

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/weihanlu/investrack/internal/database"
	"github.com/weihanlu/investrack/internal/domain"
)

const portfolioColumns = `id, user_id, display_name, base_currency, home_currency,
	bound_currency_ledger_id, created_at, updated_at`

// Repository handles portfolio persistence.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a portfolio repository.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "portfolio").Logger(),
	}
}

// Create inserts a portfolio.
func (r *Repository) Create(p *Portfolio) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("failed to create portfolio: %w", err)
	}

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	query := r.db.Rebind(`
		INSERT INTO portfolios
		(id, user_id, display_name, base_currency, home_currency, bound_currency_ledger_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := r.db.Conn().Exec(query,
		p.ID, p.UserID, p.DisplayName, string(p.BaseCurrency), string(p.HomeCurrency),
		nullString(p.BoundCurrencyLedgerID), p.CreatedAt.UnixNano(), p.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to create portfolio: %w", err)
	}

	r.log.Info().Str("id", p.ID).Str("name", p.DisplayName).Msg("Portfolio created")
	return nil
}

// GetByID retrieves a portfolio.
func (r *Repository) GetByID(id string) (*Portfolio, error) {
	query := r.db.Rebind("SELECT " + portfolioColumns + " FROM portfolios WHERE id = ?")

	p, err := scanPortfolio(r.db.Conn().QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("portfolio %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	return &p, nil
}

// ListByUser retrieves a user's portfolios, oldest first.
func (r *Repository) ListByUser(userID string) ([]Portfolio, error) {
	query := r.db.Rebind(`
		SELECT ` + portfolioColumns + ` FROM portfolios
		WHERE user_id = ? ORDER BY created_at ASC
	`)

	return r.queryPortfolios(query, userID)
}

// ListByBoundLedger retrieves every portfolio bound to the given ledger.
// Snapshot recording fans out over this set when a ledger cash flow lands.
func (r *Repository) ListByBoundLedger(ledgerID string) ([]Portfolio, error) {
	query := r.db.Rebind(`
		SELECT ` + portfolioColumns + ` FROM portfolios
		WHERE bound_currency_ledger_id = ? ORDER BY created_at ASC
	`)

	return r.queryPortfolios(query, ledgerID)
}

// BindLedger sets or clears the portfolio's bound currency ledger.
func (r *Repository) BindLedger(portfolioID, ledgerID string) error {
	query := r.db.Rebind(`
		UPDATE portfolios SET bound_currency_ledger_id = ?, updated_at = ? WHERE id = ?
	`)

	result, err := r.db.Conn().Exec(query, nullString(ledgerID), time.Now().UnixNano(), portfolioID)
	if err != nil {
		return fmt.Errorf("failed to bind ledger: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check bind result: %w", err)
	}
	if affected == 0 {
		return domain.NotFoundf("portfolio %s not found", portfolioID)
	}
	return nil
}

// Rename updates the display name.
func (r *Repository) Rename(portfolioID, displayName string) error {
	query := r.db.Rebind(`
		UPDATE portfolios SET display_name = ?, updated_at = ? WHERE id = ?
	`)

	result, err := r.db.Conn().Exec(query, displayName, time.Now().UnixNano(), portfolioID)
	if err != nil {
		return fmt.Errorf("failed to rename portfolio: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rename result: %w", err)
	}
	if affected == 0 {
		return domain.NotFoundf("portfolio %s not found", portfolioID)
	}
	return nil
}

func (r *Repository) queryPortfolios(query string, args ...interface{}) ([]Portfolio, error) {
	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	var result []Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		result = append(result, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolios: %w", err)
	}

	return result, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPortfolio(row rowScanner) (Portfolio, error) {
	var (
		p         Portfolio
		base      string
		home      string
		ledgerID  sql.NullString
		createdAt int64
		updatedAt int64
	)

	err := row.Scan(&p.ID, &p.UserID, &p.DisplayName, &base, &home, &ledgerID, &createdAt, &updatedAt)
	if err != nil {
		return Portfolio{}, err
	}

	p.BaseCurrency = domain.Currency(base)
	p.HomeCurrency = domain.Currency(home)
	if ledgerID.Valid {
		p.BoundCurrencyLedgerID = ledgerID.String
	}
	p.CreatedAt = time.Unix(0, createdAt)
	p.UpdatedAt = time.Unix(0, updatedAt)

	return p, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
