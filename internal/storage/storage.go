// Package storage provides the durable key-value store shared by the token
// cache, the signing secret repository and the gateway counters. Drivers are
// selected by configuration: an in-process store for tests and standalone
// clients, Redis for deployments that share state across processes.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrKeyNotFound indicates the key does not exist or has expired.
var ErrKeyNotFound = errors.New("key not found")

// Driver names accepted by New.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Store is the key-value contract the rest of the module depends on.
// Values are opaque bytes; a ttl of zero means no expiration.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// Config holds driver selection and connection settings.
type Config struct {
	Driver        string
	KeyPrefix     string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// New builds a Store for the configured driver.
func New(cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverMemory:
		return NewMemoryStore(cfg.KeyPrefix), nil
	case DriverRedis:
		return NewRedisStore(cfg)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.Driver)
	}
}

func prefixedKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + ":" + key
}
