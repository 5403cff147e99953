// Package domain defines the core models for HMAC request signing.
//
// Signing secrets rotate on a fixed interval and a bounded number of older
// generations stays verifiable, so requests signed just before a rotation
// still pass verification. The active secret (newest) signs all new requests.
package domain

import (
	"crypto/rand"
	"encoding/hex"
	"sort"
	"sync"
	"time"
)

const (
	// SecretIDBytes is the random length of a secret identifier (hex-encoded on the wire).
	SecretIDBytes = 16
	// SecretKeyBytes is the random length of the secret key material.
	SecretKeyBytes = 32
	// DefaultRetainedSecrets is how many generations stay verifiable after rotations.
	DefaultRetainedSecrets = 3
	// DefaultRotationInterval is how long a secret signs before being replaced.
	DefaultRotationInterval = 24 * time.Hour
)

// Secret is one generation of signing key material.
type Secret struct {
	ID        string    // Hex-encoded random identifier, sent with every signed request
	Key       []byte    // Raw key material, never serialized outside the repository
	CreatedAt time.Time // Generation time, drives rotation and retention ordering
	Active    bool      // Exactly one retained secret is active at a time
}

// NewSecret generates a fresh secret with random id and key material.
func NewSecret(now time.Time) (*Secret, error) {
	id := make([]byte, SecretIDBytes)
	if _, err := rand.Read(id); err != nil {
		return nil, err
	}

	key := make([]byte, SecretKeyBytes)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}

	return &Secret{
		ID:        hex.EncodeToString(id),
		Key:       key,
		CreatedAt: now,
		Active:    true,
	}, nil
}

// Clone returns a deep copy so callers cannot mutate shared key material.
func (s *Secret) Clone() *Secret {
	key := make([]byte, len(s.Key))
	copy(key, s.Key)
	return &Secret{
		ID:        s.ID,
		Key:       key,
		CreatedAt: s.CreatedAt,
		Active:    s.Active,
	}
}

// Chain manages the retained signing secrets with thread-safe access.
// The active secret signs new requests; every retained secret verifies.
type Chain struct {
	activeID string
	keys     sync.Map
}

// NewChain creates a Chain from the given secrets. The active secret is the
// one flagged Active, falling back to the newest by creation time.
func NewChain(secrets []*Secret) *Chain {
	chain := &Chain{}

	newest := time.Time{}
	for _, secret := range secrets {
		chain.keys.Store(secret.ID, secret)
		if secret.Active {
			chain.activeID = secret.ID
		}
		if chain.activeID == "" && secret.CreatedAt.After(newest) {
			newest = secret.CreatedAt
		}
	}

	if chain.activeID == "" {
		for _, secret := range secrets {
			if secret.CreatedAt.Equal(newest) {
				chain.activeID = secret.ID
				break
			}
		}
	}

	return chain
}

// ActiveID returns the identifier of the currently active secret.
func (c *Chain) ActiveID() string {
	return c.activeID
}

// Active returns the currently active secret.
func (c *Chain) Active() (*Secret, bool) {
	return c.Get(c.activeID)
}

// Get retrieves a retained secret by its identifier.
func (c *Chain) Get(id string) (*Secret, bool) {
	if value, ok := c.keys.Load(id); ok {
		return value.(*Secret), true
	}
	return nil, false
}

// All returns the retained secrets ordered newest first.
func (c *Chain) All() []*Secret {
	var secrets []*Secret
	c.keys.Range(func(_, value interface{}) bool {
		secrets = append(secrets, value.(*Secret))
		return true
	})
	sort.Slice(secrets, func(i, j int) bool {
		return secrets[i].CreatedAt.After(secrets[j].CreatedAt)
	})
	return secrets
}

// Len returns how many secrets the chain retains.
func (c *Chain) Len() int {
	count := 0
	c.keys.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

// Close securely clears all retained key material and resets the active id.
func (c *Chain) Close() {
	c.keys.Range(func(key, value interface{}) bool {
		if secret, ok := value.(*Secret); ok {
			Zero(secret.Key)
		}
		return true
	})
	c.activeID = ""
	c.keys.Clear()
}
