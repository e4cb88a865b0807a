package binance

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes callers branch on.
var (
	// ErrAuth: credentials rejected (HTTP 401). Permanent for the call.
	ErrAuth = errors.New("binance: unauthorized")
	// ErrBlocked: access refused for legal/region reasons (HTTP 451).
	ErrBlocked = errors.New("binance: access blocked")
	// ErrRateLimited: request budget exhausted after backoff retries (HTTP 429).
	ErrRateLimited = errors.New("binance: rate limited")
	// ErrBadAck: a trading mutation responded without its success marker.
	// Exchange state must be re-verified before trusting anything.
	ErrBadAck = errors.New("binance: response missing success marker")
)

// APIError carries the HTTP status and body of a non-retryable exchange error.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance: status %d: %s", e.Status, e.Body)
}
