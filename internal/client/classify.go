// Package client implements the resilient HTTP client: an interceptor chain
// that layers identity checks, bearer-token handling with coordinated
// refresh, provider API keys, per-endpoint circuit breaking, request signing
// and bounded retries around a plain http.RoundTripper.
package client

import (
	"fmt"
	"net/http"

	apperrors "github.com/rentora/apiguard/internal/errors"
)

// Category classifies request failures for dispatch: each category has one
// handling strategy and callers can rely on the mapping.
type Category string

const (
	// CategoryNetwork covers transport failures with no HTTP response.
	// Requests are queued for replay when connectivity returns.
	CategoryNetwork Category = "network"
	// CategoryServer covers 5xx responses, retried with backoff.
	CategoryServer Category = "server"
	// CategoryAuth covers 401 and 403 responses after refresh handling.
	CategoryAuth Category = "auth"
	// CategoryValidation covers the remaining 4xx responses, surfaced
	// immediately and never retried.
	CategoryValidation Category = "validation"
	// CategoryRateLimit covers 429 responses, retried honoring Retry-After.
	CategoryRateLimit Category = "rate_limit"
	// CategoryBlocked marks circuit-breaker rejections. Never retried.
	CategoryBlocked Category = "blocked"
	// CategoryIdentity marks identity or certificate check failures.
	// Never retried.
	CategoryIdentity Category = "identity"
)

// ClassifiedError carries the failure category alongside the original error
// so callers can dispatch without re-parsing responses.
type ClassifiedError struct {
	Category   Category
	Endpoint   string
	StatusCode int // zero when no response was received
	Retryable  bool
	Err        error
}

// Error renders the category, endpoint and underlying error.
func (e *ClassifiedError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error on %s (status %d): %v", e.Category, e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s error on %s: %v", e.Category, e.Endpoint, e.Err)
}

// Unwrap exposes the underlying error to errors.Is and errors.As.
func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a failure category.
func classifyStatus(status int) Category {
	switch {
	case status >= 500:
		return CategoryServer
	case status == http.StatusTooManyRequests:
		return CategoryRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return CategoryAuth
	default:
		return CategoryValidation
	}
}

// classifyError wraps a transport-level error. Circuit breaker rejections
// and identity failures keep their distinct categories so nothing downstream
// mistakes them for ordinary network trouble.
func classifyError(endpoint string, err error) *ClassifiedError {
	var classified *ClassifiedError
	if apperrors.As(err, &classified) {
		return classified
	}

	return &ClassifiedError{
		Category:  CategoryNetwork,
		Endpoint:  endpoint,
		Retryable: true,
		Err:       err,
	}
}

// classifyResponse wraps a non-success HTTP response.
func classifyResponse(endpoint string, status int) *ClassifiedError {
	category := classifyStatus(status)
	return &ClassifiedError{
		Category:   category,
		Endpoint:   endpoint,
		StatusCode: status,
		Retryable:  category == CategoryServer || category == CategoryRateLimit,
		Err:        fmt.Errorf("request failed with status %d", status),
	}
}
