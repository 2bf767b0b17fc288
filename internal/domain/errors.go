package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the error kinds the HTTP boundary maps to status codes.
// Domain code wraps these with %w so callers can classify with errors.Is.
var (
	// ErrEntityNotFound - resource does not exist or is not owned by the caller.
	ErrEntityNotFound = errors.New("entity not found")
	// ErrAccessDenied - owner mismatch.
	ErrAccessDenied = errors.New("access denied")
	// ErrBusinessRule - invariant or validation violation.
	ErrBusinessRule = errors.New("business rule violation")
	// ErrExchangeRateUnavailable - no LIFO depth and no market rate.
	ErrExchangeRateUnavailable = errors.New("exchange rate unavailable")
	// ErrRateLimitExceeded - external price source exhausted its daily quota.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// NotFoundf wraps ErrEntityNotFound with context.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrEntityNotFound}, args...)...)
}

// AccessDeniedf wraps ErrAccessDenied with context.
func AccessDeniedf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrAccessDenied}, args...)...)
}

// BusinessRulef wraps ErrBusinessRule with an actionable message.
func BusinessRulef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrBusinessRule}, args...)...)
}

// RateUnavailablef wraps ErrExchangeRateUnavailable with context.
func RateUnavailablef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrExchangeRateUnavailable}, args...)...)
}
