// Package service implements HMAC request signing with rotating secrets.
//
// The signer derives a dedicated MAC key from the active secret via
// HKDF-SHA256, canonicalizes the request deterministically and produces an
// HMAC-SHA256 signature envelope. Verification accepts any retained secret
// generation, enforces the timestamp window and consumes each nonce exactly
// once, so a captured request cannot be replayed.
package service

import (
	"context"
	"net/http"

	signingDomain "github.com/rentora/apiguard/internal/signing/domain"
)

// SecretRepository persists the retained secret chain across restarts.
type SecretRepository interface {
	// Save replaces the persisted chain with the given secrets.
	Save(ctx context.Context, secrets []*signingDomain.Secret) error

	// Load returns the persisted chain, empty when nothing was saved yet.
	Load(ctx context.Context) ([]*signingDomain.Secret, error)
}

// SecretManager owns the secret lifecycle: bootstrap, scheduled rotation and
// bounded retention of older generations for verification.
type SecretManager interface {
	// Active returns the secret that signs new requests.
	Active(ctx context.Context) (*signingDomain.Secret, error)

	// Lookup returns any retained secret by id, ErrUnknownSecret otherwise.
	Lookup(ctx context.Context, id string) (*signingDomain.Secret, error)

	// All returns the retained secrets ordered newest first.
	All(ctx context.Context) ([]*signingDomain.Secret, error)

	// RotateIfNeeded rotates when the active secret exceeded the rotation
	// interval. Returns whether a rotation happened.
	RotateIfNeeded(ctx context.Context) (bool, error)

	// Rotate unconditionally generates and activates a fresh secret,
	// trimming retention to the configured count.
	Rotate(ctx context.Context) (*signingDomain.Secret, error)

	// Close zeroes retained key material.
	Close()
}

// NonceRegistry tracks consumed nonces for the replay window.
type NonceRegistry interface {
	// Seen reports whether the nonce was already consumed.
	Seen(nonce string) bool

	// MarkFirstUse records the nonce and reports whether this call was the
	// first use. Concurrent callers race safely: exactly one wins.
	MarkFirstUse(nonce string) bool

	// PurgeExpired evicts expired records and returns how many were removed.
	PurgeExpired() int

	// Len returns the number of tracked records, expired ones included
	// until the next purge.
	Len() int
}

// Signer produces and verifies request signature envelopes.
type Signer interface {
	// Sign canonicalizes the request and returns a signature envelope using
	// the active secret. Returns ErrSigningDisabled when signing is off.
	Sign(
		ctx context.Context,
		method string,
		url string,
		headers http.Header,
		body []byte,
	) (*signingDomain.Signature, error)

	// Verify recomputes the signature and returns nil when the envelope is
	// authentic and fresh. Checks run in a fixed order: timestamp window,
	// nonce replay, secret id, HMAC comparison. The nonce is consumed only
	// when every check passed.
	Verify(
		ctx context.Context,
		method string,
		url string,
		headers http.Header,
		body []byte,
		sig *signingDomain.Signature,
	) error

	// Enabled reports whether signing is active.
	Enabled() bool
}
