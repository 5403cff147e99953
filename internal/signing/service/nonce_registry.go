package service

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultNonceExpiry bounds how long consumed nonces stay tracked. It must
// exceed the timestamp window, otherwise a replay could slip in after the
// record expires but before the timestamp check rejects the request.
const DefaultNonceExpiry = 10 * time.Minute

// nonceRegistry implements NonceRegistry on an in-process TTL cache.
// Records evict automatically after the expiry; PurgeExpired exists for the
// operator sweep and for observability.
type nonceRegistry struct {
	cache *gocache.Cache
}

// NewNonceRegistry creates a registry whose records expire after expiry.
func NewNonceRegistry(expiry time.Duration) NonceRegistry {
	if expiry <= 0 {
		expiry = DefaultNonceExpiry
	}
	return &nonceRegistry{
		cache: gocache.New(expiry, expiry),
	}
}

// Seen reports whether the nonce was already consumed.
func (n *nonceRegistry) Seen(nonce string) bool {
	_, found := n.cache.Get(nonce)
	return found
}

// MarkFirstUse records the nonce. The underlying Add is atomic, so of two
// concurrent verifications of the same nonce exactly one observes true.
func (n *nonceRegistry) MarkFirstUse(nonce string) bool {
	return n.cache.Add(nonce, struct{}{}, gocache.DefaultExpiration) == nil
}

// PurgeExpired evicts expired records and returns how many were removed.
func (n *nonceRegistry) PurgeExpired() int {
	before := n.cache.ItemCount()
	n.cache.DeleteExpired()
	purged := before - n.cache.ItemCount()
	if purged < 0 {
		return 0
	}
	return purged
}

// Len returns the number of tracked records, counting expired ones until the
// next purge pass.
func (n *nonceRegistry) Len() int {
	return n.cache.ItemCount()
}
