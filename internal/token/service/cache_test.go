package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/rentora/apiguard/internal/errors"
	"github.com/rentora/apiguard/internal/storage"
	tokenDomain "github.com/rentora/apiguard/internal/token/domain"
)

func newTestCache(t *testing.T) (*tokenCache, storage.Store) {
	t.Helper()

	store := storage.NewMemoryStore("")
	t.Cleanup(func() {
		_ = store.Close()
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := NewTokenCache(store, NewDecoder(), CacheConfig{}, logger).(*tokenCache)
	return cache, store
}

func tokenExpiringAt(t *testing.T, expiresAt time.Time) string {
	t.Helper()

	return signedToken(t, jwt.MapClaims{
		"exp":     expiresAt.Unix(),
		"user_id": "user-123",
		"role":    "tenant",
	})
}

func TestTokenCache_CacheThenValidate(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	token := tokenExpiringAt(t, time.Now().Add(30*time.Minute))
	require.NoError(t, cache.CacheExpiry(ctx, token, tokenDomain.TypeAccess))

	result, err := cache.Validate(ctx, token, tokenDomain.TypeAccess)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.True(t, result.Cached)
	assert.Equal(t, tokenDomain.MethodCache, result.Method)
	assert.InDelta(t, 29, result.ExpiresInMinutes, 1)
}

func TestTokenCache_DecodeFallbackPrimesCache(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	token := tokenExpiringAt(t, time.Now().Add(time.Hour))

	first, err := cache.Validate(ctx, token, tokenDomain.TypeAccess)
	require.NoError(t, err)
	assert.True(t, first.Valid)
	assert.False(t, first.Cached)
	assert.Equal(t, tokenDomain.MethodDecode, first.Method)

	second, err := cache.Validate(ctx, token, tokenDomain.TypeAccess)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, tokenDomain.MethodCache, second.Method)
}

func TestTokenCache_ExpiryBufferBoundary(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	now := time.Now().UTC().Truncate(time.Second)
	cache.now = func() time.Time { return now }

	tests := []struct {
		name      string
		expiresAt time.Time
		valid     bool
	}{
		{name: "well past buffer", expiresAt: now.Add(10 * time.Minute), valid: true},
		{name: "one second over buffer", expiresAt: now.Add(tokenDomain.ExpiryBuffer + time.Second), valid: true},
		{name: "exactly at buffer", expiresAt: now.Add(tokenDomain.ExpiryBuffer), valid: false},
		{name: "inside buffer", expiresAt: now.Add(30 * time.Second), valid: false},
		{name: "already expired", expiresAt: now.Add(-time.Minute), valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := tokenExpiringAt(t, tt.expiresAt)
			require.NoError(t, cache.CacheExpiry(ctx, token, tokenDomain.TypeAccess))

			result, err := cache.Validate(ctx, token, tokenDomain.TypeAccess)
			require.NoError(t, err)
			assert.Equal(t, tt.valid, result.Valid)
			assert.Equal(t, tokenDomain.MethodCache, result.Method)
		})
	}
}

func TestTokenCache_DifferentTokenMissesCache(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	cached := tokenExpiringAt(t, time.Now().Add(time.Hour))
	require.NoError(t, cache.CacheExpiry(ctx, cached, tokenDomain.TypeAccess))

	other := signedToken(t, jwt.MapClaims{
		"exp":     time.Now().Add(2 * time.Hour).Unix(),
		"user_id": "user-456",
	})

	result, err := cache.Validate(ctx, other, tokenDomain.TypeAccess)
	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.Equal(t, tokenDomain.MethodDecode, result.Method)
}

func TestTokenCache_EntryOlderThanMaxAge(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	start := time.Now().UTC()
	cache.now = func() time.Time { return start }

	token := tokenExpiringAt(t, start.Add(48*time.Hour))
	require.NoError(t, cache.CacheExpiry(ctx, token, tokenDomain.TypeAccess))

	cache.now = func() time.Time { return start.Add(tokenDomain.MaxCacheAge + time.Minute) }

	result, err := cache.Validate(ctx, token, tokenDomain.TypeAccess)
	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.Equal(t, tokenDomain.MethodDecode, result.Method)
}

func TestTokenCache_SchemaVersionWipesEntries(t *testing.T) {
	ctx := context.Background()
	cache, store := newTestCache(t)

	require.NoError(t, store.Set(ctx, tokenDomain.StorageKeyVersion, []byte("1"), 0))
	require.NoError(t, store.Set(ctx, tokenDomain.StorageKeyAccess, []byte(`{"tokenHash":"legacy"}`), 0))

	token := tokenExpiringAt(t, time.Now().Add(time.Hour))
	result, err := cache.Validate(ctx, token, tokenDomain.TypeAccess)
	require.NoError(t, err)
	assert.Equal(t, tokenDomain.MethodDecode, result.Method)

	version, err := store.Get(ctx, tokenDomain.StorageKeyVersion)
	require.NoError(t, err)
	assert.Equal(t, tokenDomain.SchemaVersion, string(version))
}

func TestTokenCache_CorruptEntryFallsBackToDecode(t *testing.T) {
	ctx := context.Background()
	cache, store := newTestCache(t)

	token := tokenExpiringAt(t, time.Now().Add(time.Hour))
	require.NoError(t, cache.CacheExpiry(ctx, token, tokenDomain.TypeAccess))
	require.NoError(t, store.Set(ctx, tokenDomain.StorageKeyAccess, []byte("not json"), 0))

	result, err := cache.Validate(ctx, token, tokenDomain.TypeAccess)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, tokenDomain.MethodDecode, result.Method)
}

func TestTokenCache_MalformedTokenReportsError(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	result, err := cache.Validate(ctx, "not-a-token", tokenDomain.TypeAccess)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, tokenDomain.ErrTokenMalformed))
	assert.False(t, result.Valid)
	assert.Equal(t, tokenDomain.MethodError, result.Method)
}

func TestTokenCache_TypesAreIndependent(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	access := tokenExpiringAt(t, time.Now().Add(time.Hour))
	refresh := tokenExpiringAt(t, time.Now().Add(14*24*time.Hour))

	require.NoError(t, cache.CacheExpiry(ctx, access, tokenDomain.TypeAccess))
	require.NoError(t, cache.CacheExpiry(ctx, refresh, tokenDomain.TypeRefresh))

	accessResult, err := cache.Validate(ctx, access, tokenDomain.TypeAccess)
	require.NoError(t, err)
	assert.True(t, accessResult.Cached)

	refreshResult, err := cache.Validate(ctx, refresh, tokenDomain.TypeRefresh)
	require.NoError(t, err)
	assert.True(t, refreshResult.Cached)
}

func TestTokenCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	access := tokenExpiringAt(t, time.Now().Add(time.Hour))
	refresh := tokenExpiringAt(t, time.Now().Add(14*24*time.Hour))
	require.NoError(t, cache.CacheExpiry(ctx, access, tokenDomain.TypeAccess))
	require.NoError(t, cache.CacheExpiry(ctx, refresh, tokenDomain.TypeRefresh))

	require.NoError(t, cache.Invalidate(ctx, tokenDomain.TypeAccess))

	accessResult, err := cache.Validate(ctx, access, tokenDomain.TypeAccess)
	require.NoError(t, err)
	assert.False(t, accessResult.Cached)

	refreshResult, err := cache.Validate(ctx, refresh, tokenDomain.TypeRefresh)
	require.NoError(t, err)
	assert.True(t, refreshResult.Cached)
}

func TestTokenCache_InvalidateAll(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	access := tokenExpiringAt(t, time.Now().Add(time.Hour))
	refresh := tokenExpiringAt(t, time.Now().Add(14*24*time.Hour))
	require.NoError(t, cache.CacheExpiry(ctx, access, tokenDomain.TypeAccess))
	require.NoError(t, cache.CacheExpiry(ctx, refresh, tokenDomain.TypeRefresh))

	require.NoError(t, cache.InvalidateAll(ctx))

	accessResult, err := cache.Validate(ctx, access, tokenDomain.TypeAccess)
	require.NoError(t, err)
	assert.False(t, accessResult.Cached)

	refreshResult, err := cache.Validate(ctx, refresh, tokenDomain.TypeRefresh)
	require.NoError(t, err)
	assert.False(t, refreshResult.Cached)
}
