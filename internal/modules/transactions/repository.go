package transactions

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/weihanlu/investrack/internal/database"
	"github.com/weihanlu/investrack/internal/domain"
)

// stockTxColumns is the list of columns for the stock_transactions table.
// Used to avoid SELECT * which can break when schema changes.
// Column order must match the scan functions below.
const stockTxColumns = `id, portfolio_id, date, ticker, market, type, shares,
	price_per_share, exchange_rate, fees, currency, fund_source,
	currency_ledger_id, is_deleted, created_at, updated_at`

// Repository handles stock transaction database operations.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new stock transaction repository.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "transactions").Logger(),
	}
}

// Create inserts a new transaction record. The ID and timestamps are
// assigned here when unset.
func (r *Repository) Create(tx *StockTransaction) error {
	return r.CreateTx(nil, tx)
}

// CreateTx is Create running inside an existing database transaction.
// A nil dbTx executes against the pool directly.
func (r *Repository) CreateTx(dbTx *sql.Tx, tx *StockTransaction) error {
	tx.Normalize()
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	now := time.Now()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now

	query := r.db.Rebind(`
		INSERT INTO stock_transactions
		(id, portfolio_id, date, ticker, market, type, shares, price_per_share,
		 exchange_rate, fees, currency, fund_source, currency_ledger_id,
		 is_deleted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
	`)

	args := []interface{}{
		tx.ID,
		tx.PortfolioID,
		tx.Date,
		tx.Ticker,
		string(tx.Market),
		string(tx.Type),
		tx.Shares.String(),
		tx.PricePerShare.String(),
		tx.ExchangeRate.String(),
		tx.Fees.String(),
		string(tx.Currency),
		string(tx.FundSource),
		nullString(tx.CurrencyLedgerID),
		tx.CreatedAt.UnixNano(),
		tx.UpdatedAt.UnixNano(),
	}

	var err error
	if dbTx != nil {
		_, err = dbTx.Exec(query, args...)
	} else {
		_, err = r.db.Conn().Exec(query, args...)
	}
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	r.log.Info().
		Str("id", tx.ID).
		Str("ticker", tx.Ticker).
		Str("type", string(tx.Type)).
		Str("date", tx.Date).
		Msg("Transaction created")

	return nil
}

// Update replaces the editable fields of an existing transaction.
// The created_at ordering key is never touched.
func (r *Repository) Update(tx *StockTransaction) error {
	return r.UpdateTx(nil, tx)
}

// UpdateTx is Update running inside an existing database transaction.
func (r *Repository) UpdateTx(dbTx *sql.Tx, tx *StockTransaction) error {
	tx.Normalize()
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}

	tx.UpdatedAt = time.Now()

	query := r.db.Rebind(`
		UPDATE stock_transactions
		SET date = ?, ticker = ?, market = ?, type = ?, shares = ?,
		    price_per_share = ?, exchange_rate = ?, fees = ?, currency = ?,
		    fund_source = ?, currency_ledger_id = ?, updated_at = ?
		WHERE id = ? AND is_deleted = 0
	`)

	args := []interface{}{
		tx.Date,
		tx.Ticker,
		string(tx.Market),
		string(tx.Type),
		tx.Shares.String(),
		tx.PricePerShare.String(),
		tx.ExchangeRate.String(),
		tx.Fees.String(),
		string(tx.Currency),
		string(tx.FundSource),
		nullString(tx.CurrencyLedgerID),
		tx.UpdatedAt.UnixNano(),
		tx.ID,
	}

	var result sql.Result
	var err error
	if dbTx != nil {
		result, err = dbTx.Exec(query, args...)
	} else {
		result, err = r.db.Conn().Exec(query, args...)
	}
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return domain.NotFoundf("transaction %s not found", tx.ID)
	}

	return nil
}

// SoftDelete marks a transaction deleted without removing the row.
func (r *Repository) SoftDelete(id string) error {
	return r.SoftDeleteTx(nil, id)
}

// SoftDeleteTx is SoftDelete running inside an existing database transaction.
func (r *Repository) SoftDeleteTx(dbTx *sql.Tx, id string) error {
	query := r.db.Rebind(`
		UPDATE stock_transactions
		SET is_deleted = 1, updated_at = ?
		WHERE id = ? AND is_deleted = 0
	`)

	var result sql.Result
	var err error
	if dbTx != nil {
		result, err = dbTx.Exec(query, time.Now().UnixNano(), id)
	} else {
		result, err = r.db.Conn().Exec(query, time.Now().UnixNano(), id)
	}
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return domain.NotFoundf("transaction %s not found", id)
	}

	r.log.Info().Str("id", id).Msg("Transaction soft-deleted")
	return nil
}

// GetByID retrieves a transaction by ID. Soft-deleted rows are not returned.
func (r *Repository) GetByID(id string) (*StockTransaction, error) {
	query := r.db.Rebind(
		"SELECT " + stockTxColumns + " FROM stock_transactions WHERE id = ? AND is_deleted = 0")

	row := r.db.Conn().QueryRow(query, id)
	tx, err := scanStockTx(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("transaction %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return &tx, nil
}

// ListByPortfolio retrieves all live transactions of a portfolio in
// chronological order. Ties on the same calendar date fall back to
// insertion order.
func (r *Repository) ListByPortfolio(portfolioID string) ([]StockTransaction, error) {
	query := r.db.Rebind(`
		SELECT ` + stockTxColumns + ` FROM stock_transactions
		WHERE portfolio_id = ? AND is_deleted = 0
		ORDER BY date ASC, created_at ASC
	`)

	return r.queryTxs(query, portfolioID)
}

// ListByPortfolioUntil retrieves live transactions of a portfolio with
// date <= until, in chronological order.
func (r *Repository) ListByPortfolioUntil(portfolioID, until string) ([]StockTransaction, error) {
	query := r.db.Rebind(`
		SELECT ` + stockTxColumns + ` FROM stock_transactions
		WHERE portfolio_id = ? AND is_deleted = 0 AND date <= ?
		ORDER BY date ASC, created_at ASC
	`)

	return r.queryTxs(query, portfolioID, until)
}

// ListByLedger retrieves live transactions funded from the given ledger.
func (r *Repository) ListByLedger(ledgerID string) ([]StockTransaction, error) {
	query := r.db.Rebind(`
		SELECT ` + stockTxColumns + ` FROM stock_transactions
		WHERE currency_ledger_id = ? AND is_deleted = 0
		ORDER BY date ASC, created_at ASC
	`)

	return r.queryTxs(query, ledgerID)
}

func (r *Repository) queryTxs(query string, args ...interface{}) ([]StockTransaction, error) {
	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []StockTransaction
	for rows.Next() {
		tx, err := scanStockTxFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return txs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStockTx(row rowScanner) (StockTransaction, error) {
	var (
		tx        StockTransaction
		market    string
		txType    string
		shares    string
		price     string
		rate      string
		fees      string
		currency  string
		source    string
		ledgerID  sql.NullString
		isDeleted int
		createdAt int64
		updatedAt int64
	)

	err := row.Scan(
		&tx.ID, &tx.PortfolioID, &tx.Date, &tx.Ticker, &market, &txType,
		&shares, &price, &rate, &fees, &currency, &source, &ledgerID,
		&isDeleted, &createdAt, &updatedAt,
	)
	if err != nil {
		return StockTransaction{}, err
	}

	tx.Market = domain.StockMarket(market)
	tx.Type = domain.TransactionType(txType)
	tx.Currency = domain.Currency(currency)
	tx.FundSource = domain.FundSource(source)
	if ledgerID.Valid {
		tx.CurrencyLedgerID = ledgerID.String
	}
	tx.IsDeleted = isDeleted != 0
	tx.CreatedAt = time.Unix(0, createdAt)
	tx.UpdatedAt = time.Unix(0, updatedAt)

	if tx.Shares, err = decimal.NewFromString(shares); err != nil {
		return StockTransaction{}, fmt.Errorf("invalid shares value %q: %w", shares, err)
	}
	if tx.PricePerShare, err = decimal.NewFromString(price); err != nil {
		return StockTransaction{}, fmt.Errorf("invalid price value %q: %w", price, err)
	}
	if tx.ExchangeRate, err = decimal.NewFromString(rate); err != nil {
		return StockTransaction{}, fmt.Errorf("invalid exchange rate value %q: %w", rate, err)
	}
	if tx.Fees, err = decimal.NewFromString(fees); err != nil {
		return StockTransaction{}, fmt.Errorf("invalid fees value %q: %w", fees, err)
	}

	return tx, nil
}

func scanStockTxFromRows(rows *sql.Rows) (StockTransaction, error) {
	return scanStockTx(rows)
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
