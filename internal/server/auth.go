package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/weihanlu/investrack/internal/modules/users"
	"github.com/weihanlu/investrack/internal/web"
)

// devUserID is the identity assumed in dev mode when no token is presented.
const devUserID = "dev-user"

// AuthMiddleware validates bearer tokens and stamps the user ID onto the
// request context. Tokens are HMAC-signed JWTs whose sub claim is the user
// ID; the user row is provisioned on first sight so foreign keys always
// resolve.
type AuthMiddleware struct {
	secret  []byte
	users   *users.Repository
	devMode bool
	log     zerolog.Logger
}

// NewAuthMiddleware creates the auth middleware. An empty secret is only
// acceptable in dev mode, where every request runs as the dev user.
func NewAuthMiddleware(secret string, usersRepo *users.Repository, devMode bool, log zerolog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		secret:  []byte(secret),
		users:   usersRepo,
		devMode: devMode,
		log:     log.With().Str("component", "auth").Logger(),
	}
}

// Handler is the chi middleware entry point.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := m.authenticate(r)
		if err != nil {
			m.log.Debug().Err(err).Str("path", r.URL.Path).Msg("Authentication failed")
			unauthorized(w, err.Error())
			return
		}

		if err := m.users.Ensure(userID); err != nil {
			web.Error(w, m.log, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(web.WithUserID(r.Context(), userID)))
	})
}

func (m *AuthMiddleware) authenticate(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if m.devMode {
			return devUserID, nil
		}
		return "", errMissingToken
	}

	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", errMalformedHeader
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.secret, nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}), jwt.WithExpirationRequired())
	if err != nil {
		return "", errInvalidToken
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errInvalidToken
	}
	return sub, nil
}

// IssueToken signs a token for userID. Used by the dev token endpoint and
// by tests; production deployments mint tokens in their identity provider.
func (m *AuthMiddleware) IssueToken(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

type authError string

func (e authError) Error() string { return string(e) }

const (
	errMissingToken    = authError("missing bearer token")
	errMalformedHeader = authError("malformed authorization header")
	errInvalidToken    = authError("invalid or expired token")
)

func unauthorized(w http.ResponseWriter, message string) {
	web.JSON(w, http.StatusUnauthorized, web.ErrorResponse{
		Error:      message,
		StatusCode: http.StatusUnauthorized,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
}
