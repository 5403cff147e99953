package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	apperrors "github.com/rentora/apiguard/internal/errors"
	"github.com/rentora/apiguard/internal/storage"
	tokenDomain "github.com/rentora/apiguard/internal/token/domain"
)

// CacheConfig controls entry trust bounds.
type CacheConfig struct {
	MaxCacheAge  time.Duration
	ExpiryBuffer time.Duration
}

// tokenCache implements TokenCache over durable key-value storage.
type tokenCache struct {
	store   storage.Store
	decoder Decoder
	cfg     CacheConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewTokenCache creates a TokenCache on the given store.
func NewTokenCache(
	store storage.Store,
	decoder Decoder,
	cfg CacheConfig,
	logger *slog.Logger,
) TokenCache {
	if cfg.MaxCacheAge <= 0 {
		cfg.MaxCacheAge = tokenDomain.MaxCacheAge
	}
	if cfg.ExpiryBuffer <= 0 {
		cfg.ExpiryBuffer = tokenDomain.ExpiryBuffer
	}
	return &tokenCache{
		store:   store,
		decoder: decoder,
		cfg:     cfg,
		logger:  logger.With("component", "token_cache"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CacheExpiry decodes the token and persists its expiry entry under the
// per-type key, replacing any previous entry.
func (t *tokenCache) CacheExpiry(ctx context.Context, token string, typ tokenDomain.Type) error {
	if err := t.ensureVersion(ctx); err != nil {
		return err
	}

	claims, err := t.decoder.Decode(token)
	if err != nil {
		return err
	}

	entry := tokenDomain.CacheEntry{
		TokenHash: tokenDomain.Fingerprint(token),
		ExpiresAt: claims.ExpiresAt.UnixMilli(),
		Type:      typ,
		CachedAt:  t.now().UnixMilli(),
		UserID:    claims.UserID,
		Role:      claims.Role,
		SessionID: claims.SessionID,
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return apperrors.Wrap(err, "failed to serialize token cache entry")
	}

	if err := t.store.Set(ctx, typ.StorageKey(), payload, t.cfg.MaxCacheAge); err != nil {
		return apperrors.Wrap(err, "failed to persist token cache entry")
	}

	t.logger.Debug("token expiry cached",
		"token_type", string(typ),
		"expires_at", claims.ExpiresAt,
	)
	return nil
}

// Validate resolves token usability. The cached entry answers when it is
// fresh and matches the token; anything else falls back to decoding, and a
// successful decode re-primes the cache.
func (t *tokenCache) Validate(
	ctx context.Context,
	token string,
	typ tokenDomain.Type,
) (*tokenDomain.ValidationResult, error) {
	now := t.now()

	entry, err := t.loadEntry(ctx, token, typ)
	if err == nil {
		expiresAt := time.UnixMilli(entry.ExpiresAt).UTC()
		return &tokenDomain.ValidationResult{
			Valid:            t.usable(now, expiresAt),
			Cached:           true,
			ExpiresAt:        expiresAt,
			ExpiresInMinutes: int(expiresAt.Sub(now).Minutes()),
			Method:           tokenDomain.MethodCache,
		}, nil
	}
	if !apperrors.Is(err, tokenDomain.ErrEntryStale) {
		t.logger.Warn("token cache read failed, decoding directly", "error", err)
	}

	claims, err := t.decoder.Decode(token)
	if err != nil {
		return &tokenDomain.ValidationResult{
			Valid:  false,
			Method: tokenDomain.MethodError,
		}, err
	}

	if cacheErr := t.CacheExpiry(ctx, token, typ); cacheErr != nil {
		t.logger.Warn("failed to re-prime token cache", "error", cacheErr)
	}

	return &tokenDomain.ValidationResult{
		Valid:     t.usable(now, claims.ExpiresAt),
		Cached:    false,
		ExpiresAt: claims.ExpiresAt,
		Method:    tokenDomain.MethodDecode,
	}, nil
}

// Invalidate drops the cached entry for one token type.
func (t *tokenCache) Invalidate(ctx context.Context, typ tokenDomain.Type) error {
	return t.store.Delete(ctx, typ.StorageKey())
}

// InvalidateAll drops both cached entries.
func (t *tokenCache) InvalidateAll(ctx context.Context) error {
	if err := t.store.Delete(ctx, tokenDomain.StorageKeyAccess); err != nil {
		return err
	}
	return t.store.Delete(ctx, tokenDomain.StorageKeyRefresh)
}

// usable applies the expiry buffer: a token inside the buffer counts as
// expired so callers refresh before requests start failing. The boundary is
// strict: exactly buffer seconds of life left is already unusable.
func (t *tokenCache) usable(now, expiresAt time.Time) bool {
	return now.Before(expiresAt.Add(-t.cfg.ExpiryBuffer))
}

// loadEntry returns the cached entry when it can be trusted for this token.
// Every distrust reason maps to ErrEntryStale so Validate falls back to
// decoding without special cases.
func (t *tokenCache) loadEntry(
	ctx context.Context,
	token string,
	typ tokenDomain.Type,
) (*tokenDomain.CacheEntry, error) {
	if err := t.ensureVersion(ctx); err != nil {
		return nil, err
	}

	payload, err := t.store.Get(ctx, typ.StorageKey())
	if err != nil {
		if apperrors.Is(err, storage.ErrKeyNotFound) {
			return nil, tokenDomain.ErrEntryStale
		}
		return nil, err
	}

	var entry tokenDomain.CacheEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		t.logger.Warn("corrupt token cache entry dropped", "token_type", string(typ))
		_ = t.store.Delete(ctx, typ.StorageKey())
		return nil, tokenDomain.ErrEntryStale
	}

	if entry.Type != typ || entry.TokenHash != tokenDomain.Fingerprint(token) {
		return nil, tokenDomain.ErrEntryStale
	}

	cachedAt := time.UnixMilli(entry.CachedAt).UTC()
	if t.now().Sub(cachedAt) > t.cfg.MaxCacheAge {
		return nil, tokenDomain.ErrEntryStale
	}

	return &entry, nil
}

// ensureVersion wipes persisted entries written by an older cache schema.
func (t *tokenCache) ensureVersion(ctx context.Context) error {
	current, err := t.store.Get(ctx, tokenDomain.StorageKeyVersion)
	if err == nil && string(current) == tokenDomain.SchemaVersion {
		return nil
	}
	if err != nil && !apperrors.Is(err, storage.ErrKeyNotFound) {
		return apperrors.Wrap(err, "failed to read token cache version")
	}

	if err == nil {
		t.logger.Info("token cache schema changed, dropping entries",
			"from", string(current),
			"to", tokenDomain.SchemaVersion,
		)
	}

	if err := t.store.Delete(ctx, tokenDomain.StorageKeyAccess); err != nil {
		return apperrors.Wrap(err, "failed to clear token cache")
	}
	if err := t.store.Delete(ctx, tokenDomain.StorageKeyRefresh); err != nil {
		return apperrors.Wrap(err, "failed to clear token cache")
	}
	if err := t.store.Set(ctx, tokenDomain.StorageKeyVersion, []byte(tokenDomain.SchemaVersion), 0); err != nil {
		return apperrors.Wrap(err, "failed to write token cache version")
	}
	return nil
}
