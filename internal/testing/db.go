// Package testing provides testing utilities and helpers for the investrack project.
package testing

import (
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/weihanlu/investrack/internal/database"
	"github.com/weihanlu/investrack/internal/domain"
)

// NewTestDB creates a file-backed SQLite database for testing with the full
// schema applied. Returns the database instance and a cleanup function that
// closes the connection and removes the file. The cleanup function is
// idempotent and can be called multiple times safely.
func NewTestDB(t *testing.T) (*database.DB, func()) {
	t.Helper()

	// Temporary file per test to ensure isolation
	tmpFile, err := os.CreateTemp("", "test_investrack_*.db")
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := database.New(database.Config{
		Driver: database.DriverSQLite,
		Path:   tmpPath,
		Name:   "test",
	})
	if err != nil {
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to create test database: %v", err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return db, func() {
		if err := db.Close(); err != nil {
			// Log error but don't fail test - cleanup should be idempotent
			t.Logf("Warning: Failed to close test database: %v", err)
		}
		if err := os.Remove(tmpPath); err != nil {
			t.Logf("Warning: Failed to remove temporary database file %s: %v", tmpPath, err)
		}
	}
}

// GetRawConnection returns the raw *sql.DB connection from a database.DB instance.
// This is useful for tests that need direct access to the underlying connection.
func GetRawConnection(db *database.DB) *sql.DB {
	return db.Conn()
}

// SeedUser inserts a user row and returns its ID.
func SeedUser(t *testing.T, db *database.DB) string {
	t.Helper()

	id := uuid.New().String()
	_, err := db.Exec(
		`INSERT INTO users (id, display_name, created_at) VALUES (?, ?, ?)`,
		id, "Test User", nowNanos(),
	)
	if err != nil {
		t.Fatalf("Failed to seed user: %v", err)
	}
	return id
}

// SeedPortfolio inserts a portfolio for the given user and returns its ID.
// The portfolio is denominated in the given base currency, reports in TWD,
// and has no bound currency ledger.
func SeedPortfolio(t *testing.T, db *database.DB, userID string, base domain.Currency) string {
	t.Helper()

	id := uuid.New().String()
	_, err := db.Exec(
		`INSERT INTO portfolios (id, user_id, display_name, base_currency, home_currency, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, userID, "Test Portfolio", string(base), string(domain.HomeCurrencyDefault), nowNanos(), nowNanos(),
	)
	if err != nil {
		t.Fatalf("Failed to seed portfolio: %v", err)
	}
	return id
}

// SeedLedger inserts an active currency ledger for the given user and returns its ID.
func SeedLedger(t *testing.T, db *database.DB, userID string, currency domain.Currency) string {
	t.Helper()

	id := uuid.New().String()
	_, err := db.Exec(
		`INSERT INTO currency_ledgers (id, user_id, currency_code, home_currency, name, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
		id, userID, string(currency), string(domain.HomeCurrencyDefault),
		fmt.Sprintf("%s Ledger", currency), nowNanos(), nowNanos(),
	)
	if err != nil {
		t.Fatalf("Failed to seed currency ledger: %v", err)
	}
	return id
}

// BindLedger binds a currency ledger to a portfolio.
func BindLedger(t *testing.T, db *database.DB, portfolioID, ledgerID string) {
	t.Helper()

	_, err := db.Exec(
		`UPDATE portfolios SET bound_currency_ledger_id = ? WHERE id = ?`,
		ledgerID, portfolioID,
	)
	if err != nil {
		t.Fatalf("Failed to bind ledger to portfolio: %v", err)
	}
}

func nowNanos() int64 {
	return time.Now().UnixNano()
}
