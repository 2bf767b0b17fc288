package splits

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/weihanlu/investrack/internal/database"
	"github.com/weihanlu/investrack/internal/domain"
)

const splitColumns = `id, symbol, market, split_date, ratio, description, created_at`

// Repository handles stock split database operations.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new stock split repository.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "splits").Logger(),
	}
}

// Create inserts a split event. At most one split per (symbol, market, date)
// is allowed.
func (r *Repository) Create(s *StockSplit) error {
	s.Normalize()
	if err := s.Validate(); err != nil {
		return fmt.Errorf("failed to create split: %w", err)
	}

	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}

	query := r.db.Rebind(`
		INSERT INTO stock_splits (id, symbol, market, split_date, ratio, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := r.db.Conn().Exec(query,
		s.ID,
		s.Symbol,
		string(s.Market),
		s.SplitDate,
		s.Ratio.String(),
		s.Description,
		s.CreatedAt.UnixNano(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.BusinessRulef("split for %s/%s on %s already exists", s.Symbol, s.Market, s.SplitDate)
		}
		return fmt.Errorf("failed to create split: %w", err)
	}

	r.log.Info().
		Str("symbol", s.Symbol).
		Str("date", s.SplitDate).
		Str("ratio", s.Ratio.String()).
		Msg("Split created")

	return nil
}

// Delete removes a split event.
func (r *Repository) Delete(id string) error {
	query := r.db.Rebind(`DELETE FROM stock_splits WHERE id = ?`)

	result, err := r.db.Conn().Exec(query, id)
	if err != nil {
		return fmt.Errorf("failed to delete split: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return domain.NotFoundf("split %s not found", id)
	}

	return nil
}

// GetBySymbol retrieves all splits for a symbol on a market, oldest first.
func (r *Repository) GetBySymbol(symbol string, market domain.StockMarket) ([]StockSplit, error) {
	query := r.db.Rebind(`
		SELECT ` + splitColumns + ` FROM stock_splits
		WHERE symbol = ? AND market = ?
		ORDER BY split_date ASC
	`)

	return r.querySplits(query, strings.ToUpper(strings.TrimSpace(symbol)), string(market))
}

// GetAll retrieves every recorded split, oldest first.
func (r *Repository) GetAll() ([]StockSplit, error) {
	query := `SELECT ` + splitColumns + ` FROM stock_splits ORDER BY split_date ASC`
	return r.querySplits(query)
}

// GetAllBySymbol groups every recorded split by "SYMBOL/MARKET".
// Position folds use this to avoid one query per holding.
func (r *Repository) GetAllBySymbol() (map[string][]StockSplit, error) {
	all, err := r.GetAll()
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]StockSplit)
	for _, s := range all {
		key := SymbolKey(s.Symbol, s.Market)
		grouped[key] = append(grouped[key], s)
	}
	return grouped, nil
}

// SymbolKey builds the lookup key used by GetAllBySymbol.
func SymbolKey(symbol string, market domain.StockMarket) string {
	return symbol + "/" + string(market)
}

func (r *Repository) querySplits(query string, args ...interface{}) ([]StockSplit, error) {
	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query splits: %w", err)
	}
	defer rows.Close()

	var result []StockSplit
	for rows.Next() {
		s, err := scanSplit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan split: %w", err)
		}
		result = append(result, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating splits: %w", err)
	}

	return result, nil
}

func scanSplit(rows *sql.Rows) (StockSplit, error) {
	var (
		s         StockSplit
		market    string
		ratio     string
		createdAt int64
	)

	err := rows.Scan(&s.ID, &s.Symbol, &market, &s.SplitDate, &ratio, &s.Description, &createdAt)
	if err != nil {
		return StockSplit{}, err
	}

	s.Market = domain.StockMarket(market)
	s.CreatedAt = time.Unix(0, createdAt)
	if s.Ratio, err = decimal.NewFromString(ratio); err != nil {
		return StockSplit{}, fmt.Errorf("invalid ratio value %q: %w", ratio, err)
	}

	return s, nil
}

// isUniqueViolation detects unique constraint errors from both sqlite and
// postgres drivers without importing their error types here.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // modernc.org/sqlite
		strings.Contains(msg, "duplicate key value") // lib/pq
}
