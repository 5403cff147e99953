package domain

import (
	"github.com/rentora/apiguard/internal/errors"
)

// Request signing error definitions.
//
// These domain-specific errors wrap standard errors from internal/errors so
// verification failures map cleanly onto HTTP status codes at the edge while
// remaining matchable with errors.Is in the client pipeline.
var (
	// ErrSigningDisabled indicates signing is turned off by configuration.
	// Sign refuses to produce a signature; verification passes requests
	// through untouched.
	ErrSigningDisabled = errors.Wrap(errors.ErrUnavailable, "request signing is disabled")

	// ErrNoActiveSecret indicates the secret chain is empty or lost its
	// active generation. Signing cannot proceed until rotation runs.
	ErrNoActiveSecret = errors.Wrap(errors.ErrNotFound, "no active signing secret")

	// ErrUnknownSecret indicates the request references a secret id that is
	// no longer retained, typically a client holding a secret older than the
	// retention window.
	//
	// HTTP Status: 401 Unauthorized
	ErrUnknownSecret = errors.Wrap(errors.ErrUnauthorized, "unknown secret id")

	// ErrNonceReplayed indicates the nonce was already consumed by a prior
	// successful verification.
	//
	// HTTP Status: 401 Unauthorized
	ErrNonceReplayed = errors.Wrap(errors.ErrUnauthorized, "replay attack detected")

	// ErrTimestampInvalid indicates the timestamp header is missing or not a
	// parseable millisecond value.
	//
	// HTTP Status: 401 Unauthorized
	ErrTimestampInvalid = errors.Wrap(errors.ErrUnauthorized, "request timestamp invalid")

	// ErrTimestampExpired indicates the request timestamp falls outside the
	// allowed clock-skew window in either direction.
	//
	// HTTP Status: 401 Unauthorized
	ErrTimestampExpired = errors.Wrap(errors.ErrUnauthorized, "request timestamp too old")

	// ErrSignatureMismatch indicates the recomputed HMAC does not match the
	// presented signature: the request was tampered with or signed with
	// different material.
	//
	// HTTP Status: 401 Unauthorized
	ErrSignatureMismatch = errors.Wrap(errors.ErrUnauthorized, "signature mismatch")
)
