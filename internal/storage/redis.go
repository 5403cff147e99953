package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/rentora/apiguard/internal/errors"
)

const redisDialTimeout = 5 * time.Second

// redisStore implements Store backed by Redis.
type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection before
// returning the Store.
func NewRedisStore(cfg Config) (Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, apperrors.Wrap(err, "storage: redis ping failed")
	}

	return &redisStore{
		client: client,
		prefix: cfg.KeyPrefix,
	}, nil
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, prefixedKey(s.prefix, key)).Bytes()
	if err == redis.Nil {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "storage: redis get failed")
	}
	return value, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, prefixedKey(s.prefix, key), value, ttl).Err(); err != nil {
		return apperrors.Wrap(err, "storage: redis set failed")
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, prefixedKey(s.prefix, key)).Err(); err != nil {
		return apperrors.Wrap(err, "storage: redis delete failed")
	}
	return nil
}

func (s *redisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
