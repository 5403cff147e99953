// Package domain defines the models for client-side token expiry caching.
//
// The cache never validates token signatures; that stays with the issuing
// server. It only remembers when a token expires so the client can answer
// "is this still usable" without decoding the JWT on every request.
package domain

import (
	"fmt"
	"time"
)

// Type distinguishes the two cached token kinds.
type Type string

const (
	// TypeAccess is the short-lived bearer token attached to API requests.
	TypeAccess Type = "access"
	// TypeRefresh is the long-lived token exchanged for fresh access tokens.
	TypeRefresh Type = "refresh"
)

// Storage keys for cached entries and the schema version marker.
const (
	StorageKeyAccess  = "token_cache_access"
	StorageKeyRefresh = "token_cache_refresh"
	StorageKeyVersion = "token_cache_version"
)

// Storage keys for the raw token values themselves, kept separate from the
// expiry cache so dropping cached metadata never logs the client out.
const (
	StorageKeyAccessValue  = "auth_token_access"
	StorageKeyRefreshValue = "auth_token_refresh"
)

// SchemaVersion invalidates persisted entries when the cache layout changes.
const SchemaVersion = "2"

const (
	// MaxCacheAge bounds how long a cached entry is trusted before the
	// token is re-decoded.
	MaxCacheAge = 24 * time.Hour

	// ExpiryBuffer treats tokens as expired slightly early, leaving room
	// to refresh before a request fails mid-flight.
	ExpiryBuffer = 60 * time.Second

	fingerprintEdge = 10
)

// StorageKey returns the persistence key for a token type.
func (t Type) StorageKey() string {
	if t == TypeRefresh {
		return StorageKeyRefresh
	}
	return StorageKeyAccess
}

// CacheEntry is the persisted record for one token.
type CacheEntry struct {
	TokenHash string `json:"token_hash"`
	ExpiresAt int64  `json:"expires_at"` // Unix milliseconds
	Type      Type   `json:"token_type"`
	CachedAt  int64  `json:"cached_at"` // Unix milliseconds
	UserID    string `json:"user_id,omitempty"`
	Role      string `json:"role,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// ValidationResult reports whether a token is usable and how that was
// determined.
type ValidationResult struct {
	Valid            bool
	Cached           bool
	ExpiresAt        time.Time
	ExpiresInMinutes int    // populated on the cache path only
	Method           string // "cache", "decode" or "error"
}

// Validation methods reported in ValidationResult.
const (
	MethodCache  = "cache"
	MethodDecode = "decode"
	MethodError  = "error"
)

// Fingerprint produces a cheap non-cryptographic identity for a token:
// enough to notice the cached entry belongs to a different token, never used
// for security decisions.
func Fingerprint(token string) string {
	if len(token) <= 2*fingerprintEdge {
		return fmt.Sprintf("%s:%d", token, len(token))
	}
	return fmt.Sprintf("%s:%d:%s",
		token[:fingerprintEdge],
		len(token),
		token[len(token)-fingerprintEdge:],
	)
}
