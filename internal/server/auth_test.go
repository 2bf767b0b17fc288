package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weihanlu/investrack/internal/modules/users"
	testutil "github.com/weihanlu/investrack/internal/testing"
	"github.com/weihanlu/investrack/internal/web"
	"github.com/weihanlu/investrack/pkg/logger"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newAuthMiddleware(t *testing.T, devMode bool) *AuthMiddleware {
	t.Helper()

	db, cleanup := testutil.NewTestDB(t)
	t.Cleanup(cleanup)

	log := logger.New(logger.Config{Level: "error"})
	return NewAuthMiddleware(testSecret, users.NewRepository(db, log), devMode, log)
}

// echoUser writes the authenticated user ID back as plain text.
func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(web.UserID(r)))
	})
}

func TestAuthValidToken(t *testing.T) {
	m := newAuthMiddleware(t, false)

	token, err := m.IssueToken("alice", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/ledgers", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	m.Handler(echoUser()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", rec.Body.String())
}

func TestAuthMissingToken(t *testing.T) {
	m := newAuthMiddleware(t, false)

	req := httptest.NewRequest(http.MethodGet, "/api/ledgers", nil)
	rec := httptest.NewRecorder()

	m.Handler(echoUser()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing bearer token")
}

func TestAuthDevModeFallsBackToDevUser(t *testing.T) {
	m := newAuthMiddleware(t, true)

	req := httptest.NewRequest(http.MethodGet, "/api/ledgers", nil)
	rec := httptest.NewRecorder()

	m.Handler(echoUser()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, devUserID, rec.Body.String())
}

func TestAuthRejectsBadSignature(t *testing.T) {
	m := newAuthMiddleware(t, false)
	other := NewAuthMiddleware(strings.Repeat("x", 32), m.users, false, logger.New(logger.Config{Level: "error"}))

	token, err := other.IssueToken("mallory", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/ledgers", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	m.Handler(echoUser()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRejectsExpiredToken(t *testing.T) {
	m := newAuthMiddleware(t, false)

	token, err := m.IssueToken("alice", -time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/ledgers", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	m.Handler(echoUser()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRejectsMalformedHeader(t *testing.T) {
	m := newAuthMiddleware(t, false)

	req := httptest.NewRequest(http.MethodGet, "/api/ledgers", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec := httptest.NewRecorder()

	m.Handler(echoUser()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "malformed authorization header")
}
