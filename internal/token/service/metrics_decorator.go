package service

import (
	"context"
	"time"

	"github.com/rentora/apiguard/internal/metrics"
	tokenDomain "github.com/rentora/apiguard/internal/token/domain"
)

// tokenCacheWithMetrics decorates TokenCache with metrics instrumentation.
type tokenCacheWithMetrics struct {
	next    TokenCache
	metrics metrics.BusinessMetrics
}

// NewTokenCacheWithMetrics wraps a TokenCache with metrics recording.
func NewTokenCacheWithMetrics(cache TokenCache, m metrics.BusinessMetrics) TokenCache {
	return &tokenCacheWithMetrics{
		next:    cache,
		metrics: m,
	}
}

// CacheExpiry records metrics for cache writes.
func (t *tokenCacheWithMetrics) CacheExpiry(ctx context.Context, token string, typ tokenDomain.Type) error {
	start := time.Now()
	err := t.next.CacheExpiry(ctx, token, typ)

	status := "success"
	if err != nil {
		status = "error"
	}

	t.metrics.RecordOperation(ctx, "token_cache", "cache_expiry", status)
	t.metrics.RecordDuration(ctx, "token_cache", "cache_expiry", time.Since(start), status)

	return err
}

// Validate records metrics for validations, labelling the operation with the
// resolution method so hit rate is visible per method.
func (t *tokenCacheWithMetrics) Validate(
	ctx context.Context,
	token string,
	typ tokenDomain.Type,
) (*tokenDomain.ValidationResult, error) {
	start := time.Now()
	result, err := t.next.Validate(ctx, token, typ)

	operation := "validate_" + resolutionMethod(result)
	status := "success"
	if err != nil {
		status = "error"
	}

	t.metrics.RecordOperation(ctx, "token_cache", operation, status)
	t.metrics.RecordDuration(ctx, "token_cache", operation, time.Since(start), status)

	return result, err
}

// Invalidate records metrics for single-entry invalidation.
func (t *tokenCacheWithMetrics) Invalidate(ctx context.Context, typ tokenDomain.Type) error {
	start := time.Now()
	err := t.next.Invalidate(ctx, typ)

	status := "success"
	if err != nil {
		status = "error"
	}

	t.metrics.RecordOperation(ctx, "token_cache", "invalidate", status)
	t.metrics.RecordDuration(ctx, "token_cache", "invalidate", time.Since(start), status)

	return err
}

// InvalidateAll records metrics for full invalidation.
func (t *tokenCacheWithMetrics) InvalidateAll(ctx context.Context) error {
	start := time.Now()
	err := t.next.InvalidateAll(ctx)

	status := "success"
	if err != nil {
		status = "error"
	}

	t.metrics.RecordOperation(ctx, "token_cache", "invalidate_all", status)
	t.metrics.RecordDuration(ctx, "token_cache", "invalidate_all", time.Since(start), status)

	return err
}

// resolutionMethod labels validations by how the answer was produced.
func resolutionMethod(result *tokenDomain.ValidationResult) string {
	if result == nil {
		return tokenDomain.MethodError
	}
	return result.Method
}
