package storage

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const memoryJanitorInterval = time.Minute

// memoryStore implements Store with an in-process TTL cache.
// Useful for development, tests and single-process clients.
type memoryStore struct {
	cache  *gocache.Cache
	prefix string
}

// NewMemoryStore creates an in-process Store. Expired entries are evicted
// by the cache janitor.
func NewMemoryStore(prefix string) Store {
	return &memoryStore{
		cache:  gocache.New(gocache.NoExpiration, memoryJanitorInterval),
		prefix: prefix,
	}
}

func (s *memoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, found := s.cache.Get(prefixedKey(s.prefix, key))
	if !found {
		return nil, ErrKeyNotFound
	}
	data, ok := value.([]byte)
	if !ok {
		return nil, ErrKeyNotFound
	}
	// Copy so callers cannot mutate the stored value.
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *memoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	expiration := gocache.NoExpiration
	if ttl > 0 {
		expiration = ttl
	}
	s.cache.Set(prefixedKey(s.prefix, key), stored, expiration)
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, key string) error {
	s.cache.Delete(prefixedKey(s.prefix, key))
	return nil
}

func (s *memoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *memoryStore) Close() error {
	s.cache.Flush()
	return nil
}
