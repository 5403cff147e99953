package service

import (
	"context"
	"log/slog"

	apperrors "github.com/rentora/apiguard/internal/errors"
	"github.com/rentora/apiguard/internal/refresh"
	"github.com/rentora/apiguard/internal/storage"
	tokenDomain "github.com/rentora/apiguard/internal/token/domain"
)

type tokenStore struct {
	store  storage.Store
	cache  TokenCache
	logger *slog.Logger
}

// NewTokenStore creates a TokenStore over durable storage. The cache may be
// nil; stored tokens then simply skip expiry priming.
func NewTokenStore(store storage.Store, cache TokenCache, logger *slog.Logger) TokenStore {
	return &tokenStore{
		store:  store,
		cache:  cache,
		logger: logger.With("component", "token_store"),
	}
}

func (t *tokenStore) AccessToken(ctx context.Context) (string, error) {
	return t.load(ctx, tokenDomain.StorageKeyAccessValue)
}

func (t *tokenStore) RefreshToken(ctx context.Context) (string, error) {
	return t.load(ctx, tokenDomain.StorageKeyRefreshValue)
}

// StoreTokens persists the pair and primes the expiry cache. Cache priming
// failures are soft: an uncacheable token still works, it just gets decoded
// on every validation.
func (t *tokenStore) StoreTokens(ctx context.Context, pair *refresh.TokenPair) error {
	if pair == nil || pair.AccessToken == "" {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "token pair has no access token")
	}

	if err := t.store.Set(ctx, tokenDomain.StorageKeyAccessValue, []byte(pair.AccessToken), 0); err != nil {
		return apperrors.Wrap(err, "persist access token")
	}
	if pair.RefreshToken != "" {
		if err := t.store.Set(ctx, tokenDomain.StorageKeyRefreshValue, []byte(pair.RefreshToken), 0); err != nil {
			return apperrors.Wrap(err, "persist refresh token")
		}
	}

	if t.cache != nil {
		if err := t.cache.CacheExpiry(ctx, pair.AccessToken, tokenDomain.TypeAccess); err != nil {
			t.logger.Warn("failed to cache access token expiry", "error", err)
		}
		if pair.RefreshToken != "" {
			if err := t.cache.CacheExpiry(ctx, pair.RefreshToken, tokenDomain.TypeRefresh); err != nil {
				t.logger.Warn("failed to cache refresh token expiry", "error", err)
			}
		}
	}

	t.logger.Info("token pair stored",
		"access_token", tokenDomain.Fingerprint(pair.AccessToken),
	)
	return nil
}

// Clear removes both tokens and their cached expiry entries, e.g. on logout.
func (t *tokenStore) Clear(ctx context.Context) error {
	if err := t.store.Delete(ctx, tokenDomain.StorageKeyAccessValue); err != nil {
		return apperrors.Wrap(err, "clear access token")
	}
	if err := t.store.Delete(ctx, tokenDomain.StorageKeyRefreshValue); err != nil {
		return apperrors.Wrap(err, "clear refresh token")
	}
	if t.cache != nil {
		if err := t.cache.InvalidateAll(ctx); err != nil {
			t.logger.Warn("failed to invalidate token cache", "error", err)
		}
	}
	return nil
}

// load returns the stored token, empty when none exists yet.
func (t *tokenStore) load(ctx context.Context, key string) (string, error) {
	value, err := t.store.Get(ctx, key)
	if err != nil {
		if apperrors.Is(err, storage.ErrKeyNotFound) {
			return "", nil
		}
		return "", apperrors.Wrapf(err, "load token %s", key)
	}
	return string(value), nil
}
