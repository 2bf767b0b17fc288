// Package users persists the user records every other module references.
package users

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/weihanlu/investrack/internal/database"
	"github.com/weihanlu/investrack/internal/domain"
)

// User is an account holder. Authentication happens upstream; a user row
// exists so portfolio and ledger foreign keys have something to point at.
type User struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Repository handles user persistence.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new user repository.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "users").Logger(),
	}
}

// Ensure inserts the user row if it does not exist yet. Called by the auth
// middleware on every authenticated request, so it must be idempotent.
func (r *Repository) Ensure(userID string) error {
	if userID == "" {
		return domain.BusinessRulef("user id must not be empty")
	}

	query := r.db.Rebind(`
		INSERT INTO users (id, display_name, created_at)
		VALUES (?, '', ?)
		ON CONFLICT (id) DO NOTHING
	`)
	if _, err := r.db.Conn().Exec(query, userID, time.Now().UnixNano()); err != nil {
		return fmt.Errorf("failed to ensure user: %w", err)
	}
	return nil
}

// Get retrieves a user by ID.
func (r *Repository) Get(userID string) (*User, error) {
	query := r.db.Rebind(`SELECT id, display_name, created_at FROM users WHERE id = ?`)

	var (
		u         User
		createdAt int64
	)
	err := r.db.Conn().QueryRow(query, userID).Scan(&u.ID, &u.DisplayName, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("user %s not found", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.CreatedAt = time.Unix(0, createdAt)
	return &u, nil
}

// SetDisplayName updates the user's display name.
func (r *Repository) SetDisplayName(userID, displayName string) error {
	query := r.db.Rebind(`UPDATE users SET display_name = ? WHERE id = ?`)
	result, err := r.db.Conn().Exec(query, displayName, userID)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return domain.NotFoundf("user %s not found", userID)
	}
	return nil
}
