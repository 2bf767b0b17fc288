// Package web provides shared JSON response helpers for HTTP handlers.
package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/weihanlu/investrack/internal/domain"
)

// ErrorResponse is the envelope returned for every failed request.
type ErrorResponse struct {
	Error      string `json:"error"`
	StatusCode int    `json:"statusCode"`
	Timestamp  string `json:"timestamp"`
}

// JSON writes data as a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}
	// The status line is already written; an encode failure here can only
	// mean a dropped connection, so there is nothing useful to report.
	_ = json.NewEncoder(w).Encode(data)
}

// Error maps err to an HTTP status via the domain error kinds and writes
// the standard error envelope. Unclassified errors become 500s and the
// message is replaced to avoid leaking internals.
func Error(w http.ResponseWriter, log zerolog.Logger, err error) {
	status := StatusFor(err)
	message := err.Error()

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Unhandled error")
		message = "internal server error"
	} else {
		log.Debug().Err(err).Int("status", status).Msg("Request failed")
	}

	JSON(w, status, ErrorResponse{
		Error:      message,
		StatusCode: status,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
}

// StatusFor returns the HTTP status code for a classified domain error.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrEntityNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrBusinessRule):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrExchangeRateUnavailable):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// BadRequest writes a 400 envelope for malformed request payloads that
// never reach the domain layer.
func BadRequest(w http.ResponseWriter, message string) {
	JSON(w, http.StatusBadRequest, ErrorResponse{
		Error:      message,
		StatusCode: http.StatusBadRequest,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
}
