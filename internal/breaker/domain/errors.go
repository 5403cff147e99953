package domain

import (
	"github.com/rentora/apiguard/internal/errors"
)

// Circuit breaker error definitions.
var (
	// ErrCircuitOpen indicates the breaker refused the request without
	// invoking the transport. Never retried by the client pipeline; the
	// backend needs time, not more traffic.
	//
	// HTTP Status: 503 Service Unavailable
	ErrCircuitOpen = errors.Wrap(errors.ErrUnavailable, "circuit breaker open")

	// ErrUnknownEndpoint indicates an operator action referenced an endpoint
	// no breaker was ever created for.
	//
	// HTTP Status: 404 Not Found
	ErrUnknownEndpoint = errors.Wrap(errors.ErrNotFound, "no circuit breaker for endpoint")
)
