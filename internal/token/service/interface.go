// Package service implements the client-side token expiry cache.
//
// Tokens are JWTs issued elsewhere; the client only needs to know whether a
// token is still usable. Expiry timestamps live in durable key-value storage
// so the answer survives restarts, with a decode fallback whenever the cache
// cannot be trusted.
package service

import (
	"context"
	"time"

	"github.com/rentora/apiguard/internal/refresh"
	tokenDomain "github.com/rentora/apiguard/internal/token/domain"
)

// Claims is the subset of JWT claims the cache snapshots.
type Claims struct {
	ExpiresAt time.Time
	UserID    string
	Role      string
	SessionID string
}

// Decoder extracts expiry and identity claims without verifying signatures.
// Signature verification belongs to the issuing server; a client decoding its
// own tokens gains nothing from it.
type Decoder interface {
	// Decode parses the token and returns its claims.
	// Returns ErrTokenMalformed when the token cannot be parsed or carries
	// no expiry.
	Decode(token string) (*Claims, error)
}

// TokenCache answers "is this token still usable" with a cache fast path.
type TokenCache interface {
	// CacheExpiry decodes the token and persists its expiry entry.
	// Returns ErrTokenMalformed for undecodable tokens; callers treat that
	// as soft (the token just is not cacheable).
	CacheExpiry(ctx context.Context, token string, typ tokenDomain.Type) error

	// Validate resolves token usability, preferring the cached entry and
	// falling back to decoding. The result always describes the outcome;
	// the error accompanies Method "error" results for logging.
	Validate(ctx context.Context, token string, typ tokenDomain.Type) (*tokenDomain.ValidationResult, error)

	// Invalidate drops the cached entry for one token type.
	Invalidate(ctx context.Context, typ tokenDomain.Type) error

	// InvalidateAll drops both cached entries, e.g. on logout.
	InvalidateAll(ctx context.Context) error
}

// TokenStore persists the raw token pair in durable storage and hands out
// the current tokens. StoreTokens doubles as the refresh sink, so every
// successful refresh lands here and primes the expiry cache.
type TokenStore interface {
	// AccessToken returns the stored access token, empty when none exists.
	AccessToken(ctx context.Context) (string, error)

	// RefreshToken returns the stored refresh token, empty when none exists.
	RefreshToken(ctx context.Context) (string, error)

	// StoreTokens persists a freshly issued pair and primes the expiry
	// cache for both tokens.
	StoreTokens(ctx context.Context, pair *refresh.TokenPair) error

	// Clear removes the pair and its cached expiry entries.
	Clear(ctx context.Context) error
}
