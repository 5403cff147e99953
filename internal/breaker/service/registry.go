package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	breakerDomain "github.com/rentora/apiguard/internal/breaker/domain"
)

// Registry owns one breaker per endpoint, created lazily on first use.
// Endpoint-specific overrides take precedence over the default thresholds.
type Registry struct {
	defaults  breakerDomain.Config
	overrides map[string]breakerDomain.Config
	alerter   Alerter
	logger    *slog.Logger

	breakers sync.Map // map[string]*Breaker
}

// NewRegistry creates a Registry with default thresholds and per-endpoint
// overrides.
func NewRegistry(
	defaults breakerDomain.Config,
	overrides map[string]breakerDomain.Config,
	alerter Alerter,
	logger *slog.Logger,
) *Registry {
	if alerter == nil {
		alerter = NoopAlerter{}
	}
	return &Registry{
		defaults:  defaults.WithDefaults(),
		overrides: overrides,
		alerter:   alerter,
		logger:    logger,
	}
}

// Get returns the breaker for the endpoint, creating it on first use.
func (r *Registry) Get(endpoint string) *Breaker {
	if value, ok := r.breakers.Load(endpoint); ok {
		return value.(*Breaker)
	}

	cfg := r.defaults
	if override, ok := r.overrides[endpoint]; ok {
		cfg = override.WithDefaults()
	}

	created := NewBreaker(endpoint, cfg, r.alerter, r.logger)
	value, loaded := r.breakers.LoadOrStore(endpoint, created)
	if !loaded {
		r.logger.Debug("circuit breaker created", "endpoint", endpoint)
	}
	return value.(*Breaker)
}

// Lookup returns the breaker for the endpoint without creating one.
func (r *Registry) Lookup(endpoint string) (*Breaker, bool) {
	if value, ok := r.breakers.Load(endpoint); ok {
		return value.(*Breaker), true
	}
	return nil, false
}

// Snapshots returns snapshots of every breaker, ordered by endpoint.
func (r *Registry) Snapshots() []breakerDomain.Snapshot {
	var snapshots []breakerDomain.Snapshot
	r.breakers.Range(func(_, value interface{}) bool {
		snapshots = append(snapshots, value.(*Breaker).Snapshot())
		return true
	})
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Endpoint < snapshots[j].Endpoint
	})
	return snapshots
}

// Reset forces one endpoint's breaker back to closed. Returns
// ErrUnknownEndpoint when no breaker exists for the endpoint.
func (r *Registry) Reset(ctx context.Context, endpoint string) error {
	breaker, ok := r.Lookup(endpoint)
	if !ok {
		return breakerDomain.ErrUnknownEndpoint
	}
	breaker.Reset(ctx)
	return nil
}

// ResetAll forces every breaker back to closed and returns how many were reset.
func (r *Registry) ResetAll(ctx context.Context) int {
	count := 0
	r.breakers.Range(func(_, value interface{}) bool {
		value.(*Breaker).Reset(ctx)
		count++
		return true
	})
	return count
}

// Len returns the number of registered breakers.
func (r *Registry) Len() int {
	count := 0
	r.breakers.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}
