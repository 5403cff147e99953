package domain

import (
	"github.com/rentora/apiguard/internal/errors"
)

// Token cache error definitions.
var (
	// ErrTokenMalformed indicates the token could not be decoded or lacks
	// an expiry claim. Callers treat this as a soft failure: the token is
	// simply not cacheable.
	ErrTokenMalformed = errors.Wrap(errors.ErrInvalidInput, "token malformed or missing expiry")

	// ErrEntryStale indicates the cached entry exceeded MaxCacheAge or does
	// not match the presented token; validation falls back to decoding.
	ErrEntryStale = errors.Wrap(errors.ErrNotFound, "cached token entry stale")
)
