package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/weihanlu/investrack/internal/database"
	"github.com/weihanlu/investrack/internal/domain"
)

const ledgerColumns = `id, user_id, currency_code, home_currency, name, is_active, created_at, updated_at`

const currencyTxColumns = `id, ledger_id, date, type, foreign_amount, home_amount,
	exchange_rate, related_stock_transaction_id, is_deleted, created_at, updated_at`

// Repository handles currency ledger and currency transaction persistence.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new ledger repository.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "ledger").Logger(),
	}
}

// CreateLedger inserts a new currency ledger. The partial unique index on
// (user_id, currency_code) rejects a second active ledger for the same pair.
func (r *Repository) CreateLedger(l *CurrencyLedger) error {
	if err := l.Validate(); err != nil {
		return fmt.Errorf("failed to create ledger: %w", err)
	}

	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	now := time.Now()
	l.IsActive = true
	l.CreatedAt = now
	l.UpdatedAt = now

	query := r.db.Rebind(`
		INSERT INTO currency_ledgers
		(id, user_id, currency_code, home_currency, name, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?)
	`)

	_, err := r.db.Conn().Exec(query,
		l.ID, l.UserID, string(l.CurrencyCode), string(l.HomeCurrency),
		l.Name, l.CreatedAt.UnixNano(), l.UpdatedAt.UnixNano(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.BusinessRulef("an active %s ledger already exists for this user", l.CurrencyCode)
		}
		return fmt.Errorf("failed to create ledger: %w", err)
	}

	r.log.Info().Str("id", l.ID).Str("currency", string(l.CurrencyCode)).Msg("Ledger created")
	return nil
}

// GetLedger retrieves a ledger by ID.
func (r *Repository) GetLedger(id string) (*CurrencyLedger, error) {
	query := r.db.Rebind("SELECT " + ledgerColumns + " FROM currency_ledgers WHERE id = ?")

	var (
		l            CurrencyLedger
		currency     string
		homeCurrency string
		isActive     int
		createdAt    int64
		updatedAt    int64
	)
	err := r.db.Conn().QueryRow(query, id).Scan(
		&l.ID, &l.UserID, &currency, &homeCurrency, &l.Name, &isActive, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("ledger %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger: %w", err)
	}

	l.CurrencyCode = domain.Currency(currency)
	l.HomeCurrency = domain.Currency(homeCurrency)
	l.IsActive = isActive != 0
	l.CreatedAt = time.Unix(0, createdAt)
	l.UpdatedAt = time.Unix(0, updatedAt)

	return &l, nil
}

// ListLedgersByUser retrieves a user's ledgers, active first, then by currency.
func (r *Repository) ListLedgersByUser(userID string) ([]CurrencyLedger, error) {
	query := r.db.Rebind(`
		SELECT ` + ledgerColumns + ` FROM currency_ledgers
		WHERE user_id = ?
		ORDER BY is_active DESC, currency_code ASC
	`)

	rows, err := r.db.Conn().Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledgers: %w", err)
	}
	defer rows.Close()

	var ledgers []CurrencyLedger
	for rows.Next() {
		var (
			l            CurrencyLedger
			currency     string
			homeCurrency string
			isActive     int
			createdAt    int64
			updatedAt    int64
		)
		if err := rows.Scan(&l.ID, &l.UserID, &currency, &homeCurrency, &l.Name, &isActive, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger: %w", err)
		}
		l.CurrencyCode = domain.Currency(currency)
		l.HomeCurrency = domain.Currency(homeCurrency)
		l.IsActive = isActive != 0
		l.CreatedAt = time.Unix(0, createdAt)
		l.UpdatedAt = time.Unix(0, updatedAt)
		ledgers = append(ledgers, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledgers: %w", err)
	}

	return ledgers, nil
}

// ListActiveLedgers retrieves every active ledger across all users.
func (r *Repository) ListActiveLedgers() ([]CurrencyLedger, error) {
	query := `
		SELECT ` + ledgerColumns + ` FROM currency_ledgers
		WHERE is_active = 1
		ORDER BY currency_code ASC
	`

	rows, err := r.db.Conn().Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active ledgers: %w", err)
	}
	defer rows.Close()

	var ledgers []CurrencyLedger
	for rows.Next() {
		var (
			l            CurrencyLedger
			currency     string
			homeCurrency string
			isActive     int
			createdAt    int64
			updatedAt    int64
		)
		if err := rows.Scan(&l.ID, &l.UserID, &currency, &homeCurrency, &l.Name, &isActive, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger: %w", err)
		}
		l.CurrencyCode = domain.Currency(currency)
		l.HomeCurrency = domain.Currency(homeCurrency)
		l.IsActive = isActive != 0
		l.CreatedAt = time.Unix(0, createdAt)
		l.UpdatedAt = time.Unix(0, updatedAt)
		ledgers = append(ledgers, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating active ledgers: %w", err)
	}

	return ledgers, nil
}

// DeactivateLedger marks a ledger inactive, freeing its (user, currency)
// slot for a new active ledger.
func (r *Repository) DeactivateLedger(id string) error {
	query := r.db.Rebind(`
		UPDATE currency_ledgers SET is_active = 0, updated_at = ? WHERE id = ? AND is_active = 1
	`)

	result, err := r.db.Conn().Exec(query, time.Now().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate ledger: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deactivate result: %w", err)
	}
	if affected == 0 {
		return domain.NotFoundf("active ledger %s not found", id)
	}
	return nil
}

// CreateCurrencyTx inserts a currency transaction inside an optional
// database transaction. Validation against the owning ledger happens in the
// service layer; here the row is persisted as given.
func (r *Repository) CreateCurrencyTx(dbTx *sql.Tx, tx *CurrencyTransaction) error {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	now := time.Now()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now

	query := r.db.Rebind(`
		INSERT INTO currency_transactions
		(id, ledger_id, date, type, foreign_amount, home_amount, exchange_rate,
		 related_stock_transaction_id, is_deleted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
	`)

	args := []interface{}{
		tx.ID,
		tx.LedgerID,
		tx.Date,
		string(tx.Type),
		tx.ForeignAmount.String(),
		nullDecimal(tx.HomeAmount),
		nullDecimal(tx.ExchangeRate),
		nullStr(tx.RelatedStockTransactionID),
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
		return fmt.Errorf("failed to create currency transaction: %w", err)
	}

	r.log.Info().
		Str("id", tx.ID).
		Str("ledger_id", tx.LedgerID).
		Str("type", string(tx.Type)).
		Str("amount", tx.ForeignAmount.String()).
		Msg("Currency transaction created")

	return nil
}

// UpdateCurrencyTx replaces the editable fields of a currency transaction.
func (r *Repository) UpdateCurrencyTx(dbTx *sql.Tx, tx *CurrencyTransaction) error {
	tx.UpdatedAt = time.Now()

	query := r.db.Rebind(`
		UPDATE currency_transactions
		SET date = ?, type = ?, foreign_amount = ?, home_amount = ?,
		    exchange_rate = ?, updated_at = ?
		WHERE id = ? AND is_deleted = 0
	`)

	args := []interface{}{
		tx.Date,
		string(tx.Type),
		tx.ForeignAmount.String(),
		nullDecimal(tx.HomeAmount),
		nullDecimal(tx.ExchangeRate),
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
		return fmt.Errorf("failed to update currency transaction: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return domain.NotFoundf("currency transaction %s not found", tx.ID)
	}
	return nil
}

// SoftDeleteCurrencyTx marks a currency transaction deleted.
func (r *Repository) SoftDeleteCurrencyTx(dbTx *sql.Tx, id string) error {
	query := r.db.Rebind(`
		UPDATE currency_transactions
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
		return fmt.Errorf("failed to delete currency transaction: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return domain.NotFoundf("currency transaction %s not found", id)
	}

	r.log.Info().Str("id", id).Msg("Currency transaction soft-deleted")
	return nil
}

// GetCurrencyTx retrieves a live currency transaction by ID.
func (r *Repository) GetCurrencyTx(id string) (*CurrencyTransaction, error) {
	query := r.db.Rebind(
		"SELECT " + currencyTxColumns + " FROM currency_transactions WHERE id = ? AND is_deleted = 0")

	row := r.db.Conn().QueryRow(query, id)
	tx, err := scanCurrencyTx(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("currency transaction %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get currency transaction: %w", err)
	}
	return &tx, nil
}

// GetByRelatedStockTx retrieves the live Spend linked to a stock transaction,
// or nil when none exists. Top-up credits share the link but are not spends.
func (r *Repository) GetByRelatedStockTx(stockTxID string) (*CurrencyTransaction, error) {
	query := r.db.Rebind(`
		SELECT ` + currencyTxColumns + ` FROM currency_transactions
		WHERE related_stock_transaction_id = ? AND type = ? AND is_deleted = 0
	`)

	row := r.db.Conn().QueryRow(query, stockTxID, string(domain.CurrencyTxSpend))
	tx, err := scanCurrencyTx(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get linked currency transaction: %w", err)
	}
	return &tx, nil
}

// ListByRelatedStockTx retrieves every live currency transaction linked to a
// stock transaction: the Spend plus any top-up credit inserted alongside it.
func (r *Repository) ListByRelatedStockTx(stockTxID string) ([]CurrencyTransaction, error) {
	query := r.db.Rebind(`
		SELECT ` + currencyTxColumns + ` FROM currency_transactions
		WHERE related_stock_transaction_id = ? AND is_deleted = 0
		ORDER BY created_at ASC
	`)
	return r.queryCurrencyTxs(query, stockTxID)
}

// UndeleteCurrencyTx restores a soft-deleted currency transaction.
func (r *Repository) UndeleteCurrencyTx(dbTx *sql.Tx, id string) error {
	query := r.db.Rebind(`
		UPDATE currency_transactions
		SET is_deleted = 0, updated_at = ?
		WHERE id = ? AND is_deleted = 1
	`)

	var err error
	if dbTx != nil {
		_, err = dbTx.Exec(query, time.Now().UnixNano(), id)
	} else {
		_, err = r.db.Conn().Exec(query, time.Now().UnixNano(), id)
	}
	if err != nil {
		return fmt.Errorf("failed to undelete currency transaction: %w", err)
	}
	return nil
}

// ListCurrencyTxs retrieves all live transactions of a ledger in
// chronological order, insertion order breaking same-date ties.
func (r *Repository) ListCurrencyTxs(ledgerID string) ([]CurrencyTransaction, error) {
	query := r.db.Rebind(`
		SELECT ` + currencyTxColumns + ` FROM currency_transactions
		WHERE ledger_id = ? AND is_deleted = 0
		ORDER BY date ASC, created_at ASC
	`)

	return r.queryCurrencyTxs(query, ledgerID)
}

// ListCurrencyTxsUntil retrieves live transactions with date <= until.
func (r *Repository) ListCurrencyTxsUntil(ledgerID, until string) ([]CurrencyTransaction, error) {
	query := r.db.Rebind(`
		SELECT ` + currencyTxColumns + ` FROM currency_transactions
		WHERE ledger_id = ? AND is_deleted = 0 AND date <= ?
		ORDER BY date ASC, created_at ASC
	`)

	return r.queryCurrencyTxs(query, ledgerID, until)
}

func (r *Repository) queryCurrencyTxs(query string, args ...interface{}) ([]CurrencyTransaction, error) {
	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query currency transactions: %w", err)
	}
	defer rows.Close()

	var txs []CurrencyTransaction
	for rows.Next() {
		tx, err := scanCurrencyTx(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan currency transaction: %w", err)
		}
		txs = append(txs, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating currency transactions: %w", err)
	}

	return txs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCurrencyTx(row rowScanner) (CurrencyTransaction, error) {
	var (
		tx         CurrencyTransaction
		txType     string
		foreign    string
		home       sql.NullString
		rate       sql.NullString
		relatedID  sql.NullString
		isDeleted  int
		createdAt  int64
		updatedAt  int64
	)

	err := row.Scan(
		&tx.ID, &tx.LedgerID, &tx.Date, &txType, &foreign, &home, &rate,
		&relatedID, &isDeleted, &createdAt, &updatedAt,
	)
	if err != nil {
		return CurrencyTransaction{}, err
	}

	tx.Type = domain.CurrencyTransactionType(txType)
	if relatedID.Valid {
		tx.RelatedStockTransactionID = relatedID.String
	}
	tx.IsDeleted = isDeleted != 0
	tx.CreatedAt = time.Unix(0, createdAt)
	tx.UpdatedAt = time.Unix(0, updatedAt)

	if tx.ForeignAmount, err = decimal.NewFromString(foreign); err != nil {
		return CurrencyTransaction{}, fmt.Errorf("invalid foreign amount %q: %w", foreign, err)
	}
	if home.Valid {
		d, err := decimal.NewFromString(home.String)
		if err != nil {
			return CurrencyTransaction{}, fmt.Errorf("invalid home amount %q: %w", home.String, err)
		}
		tx.HomeAmount = &d
	}
	if rate.Valid {
		d, err := decimal.NewFromString(rate.String)
		if err != nil {
			return CurrencyTransaction{}, fmt.Errorf("invalid exchange rate %q: %w", rate.String, err)
		}
		tx.ExchangeRate = &d
	}

	return tx, nil
}

func nullDecimal(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// isUniqueViolation detects unique constraint errors from both drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
