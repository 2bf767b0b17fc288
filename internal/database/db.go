// Package database provides database connection and initialization functionality.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"      // PostgreSQL driver (primary deployment)
	_ "modernc.org/sqlite"     // Pure Go SQLite driver (local/default)
)

// Driver selects the SQL backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Config holds database configuration
type Config struct {
	Driver Driver
	// Path is the database file path when Driver is sqlite.
	Path string
	// DSN is the connection string when Driver is postgres.
	DSN string
	// Name is a friendly name for logging.
	Name string
}

// DB wraps the database connection with production-grade configuration
type DB struct {
	conn   *sql.DB
	driver Driver
	path   string
	name   string
}

// New creates a new database connection.
func New(cfg Config) (*DB, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}

	var conn *sql.DB
	var err error

	switch cfg.Driver {
	case DriverSQLite:
		// Handle file: URIs (used for in-memory databases) - skip filepath operations
		if !strings.HasPrefix(cfg.Path, "file:") {
			absPath, pathErr := filepath.Abs(cfg.Path)
			if pathErr != nil {
				return nil, fmt.Errorf("failed to resolve database path to absolute: %w", pathErr)
			}
			if mkErr := os.MkdirAll(filepath.Dir(absPath), 0755); mkErr != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", mkErr)
			}
			cfg.Path = absPath
		}
		conn, err = sql.Open("sqlite", buildSQLiteConnString(cfg.Path))
	case DriverPostgres:
		conn, err = sql.Open("postgres", cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Name, err)
	}

	configureConnectionPool(conn, cfg.Driver)

	// Test connection with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.Name, err)
	}

	return &DB{
		conn:   conn,
		driver: cfg.Driver,
		path:   cfg.Path,
		name:   cfg.Name,
	}, nil
}

// buildSQLiteConnString creates the SQLite connection string with PRAGMAs.
// The ledger is an audit trail for real money so synchronous stays FULL.
func buildSQLiteConnString(path string) string {
	connStr := path + "?_pragma=journal_mode(WAL)"
	connStr += "&_pragma=synchronous(FULL)"
	connStr += "&_pragma=foreign_keys(1)"
	connStr += "&_pragma=wal_autocheckpoint(1000)"
	connStr += "&_pragma=cache_size(-64000)"
	return connStr
}

// configureConnectionPool sets up connection pool for long-term operation
func configureConnectionPool(conn *sql.DB, driver Driver) {
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(24 * time.Hour)
	conn.SetConnMaxIdleTime(30 * time.Minute)

	if driver == DriverSQLite {
		// A single writer avoids SQLITE_BUSY under concurrent requests.
		conn.SetMaxOpenConns(10)
	}
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying sql.DB connection
// Used by repositories to execute queries
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Name returns the database name for logging
func (db *DB) Name() string {
	return db.name
}

// Driver returns the active driver.
func (db *DB) Driver() Driver {
	return db.driver
}

// Path returns the database file path (sqlite only)
func (db *DB) Path() string {
	return db.path
}

// Rebind rewrites a query written with ? placeholders into the positional
// form the active driver expects ($1..$n for postgres).
func (db *DB) Rebind(query string) string {
	return Rebind(db.driver, query)
}

// Rebind rewrites ? placeholders to $n when the driver is postgres.
func Rebind(driver Driver, query string) string {
	if driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Begin starts a new transaction
func (db *DB) Begin() (*sql.Tx, error) {
	return db.conn.Begin()
}

// BeginTx starts a new transaction with options
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return db.conn.BeginTx(ctx, opts)
}

// WithTransaction executes a function within a database transaction.
// It handles begin, commit, rollback, panic recovery, and error wrapping
// automatically. If the function returns an error or panics, the transaction
// is rolled back.
func WithTransaction(db *sql.DB, fn func(*sql.Tx) error) (err error) {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Defer rollback with panic recovery
	// Use named return variable to capture panic value
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("panic in transaction: %v", p)
		} else if err != nil {
			rollbackErr := tx.Rollback()
			if rollbackErr != nil {
				err = fmt.Errorf("transaction failed: %w (rollback also failed: %v)", err, rollbackErr)
			}
		} else {
			if commitErr := tx.Commit(); commitErr != nil {
				err = fmt.Errorf("failed to commit transaction: %w", commitErr)
			}
		}
	}()

	err = fn(tx)
	return err
}

// WithTransactionContext is WithTransaction with a context-bound transaction.
// Cancellation aborts at the next database round trip and rolls back.
func WithTransactionContext(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) (err error) {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("panic in transaction: %v", p)
		} else if err != nil {
			rollbackErr := tx.Rollback()
			if rollbackErr != nil {
				err = fmt.Errorf("transaction failed: %w (rollback also failed: %v)", err, rollbackErr)
			}
		} else {
			if commitErr := tx.Commit(); commitErr != nil {
				err = fmt.Errorf("failed to commit transaction: %w", commitErr)
			}
		}
	}()

	err = fn(tx)
	return err
}

// Exec executes a query without returning rows
func (db *DB) Exec(query string, args ...interface{}) (sql.Result, error) {
	return db.conn.Exec(db.Rebind(query), args...)
}

// ExecContext executes a query with context
func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return db.conn.ExecContext(ctx, db.Rebind(query), args...)
}

// Query executes a query that returns rows
func (db *DB) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return db.conn.Query(db.Rebind(query), args...)
}

// QueryContext executes a query with context
func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.conn.QueryContext(ctx, db.Rebind(query), args...)
}

// QueryRow executes a query that returns at most one row
func (db *DB) QueryRow(query string, args ...interface{}) *sql.Row {
	return db.conn.QueryRow(db.Rebind(query), args...)
}

// QueryRowContext executes a query with context
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return db.conn.QueryRowContext(ctx, db.Rebind(query), args...)
}

// HealthCheck performs a comprehensive health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed for %s: %w", db.name, err)
	}

	if db.driver == DriverSQLite {
		var integrityResult string
		err := db.conn.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&integrityResult)
		if err != nil {
			return fmt.Errorf("integrity check query failed for %s: %w", db.name, err)
		}
		if integrityResult != "ok" {
			return fmt.Errorf("integrity check failed for %s: %s", db.name, integrityResult)
		}
	}

	return nil
}

// Stats returns database statistics
type Stats struct {
	SizeBytes    int64 // Database file size (sqlite)
	WALSizeBytes int64 // WAL file size (sqlite)
	OpenConns    int
	InUseConns   int
}

// GetStats retrieves database statistics
func (db *DB) GetStats() *Stats {
	stats := &Stats{}

	if db.driver == DriverSQLite {
		if fileInfo, err := os.Stat(db.path); err == nil {
			stats.SizeBytes = fileInfo.Size()
		}
		if fileInfo, err := os.Stat(db.path + "-wal"); err == nil {
			stats.WALSizeBytes = fileInfo.Size()
		}
	}

	poolStats := db.conn.Stats()
	stats.OpenConns = poolStats.OpenConnections
	stats.InUseConns = poolStats.InUse

	return stats
}
