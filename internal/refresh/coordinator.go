// Package refresh coordinates token refreshes so that any number of
// concurrent expired-token failures trigger exactly one refresh call against
// the auth backend.
//
// Callers that arrive while a refresh is in flight block until it resolves
// and share its outcome, success or failure. There is no callback queue; the
// waiting happens in the callers' own goroutines via singleflight.
package refresh

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rentora/apiguard/internal/metrics"
)

// flightKey coalesces all refresh attempts; there is only one token pair per
// process, so one key suffices.
const flightKey = "token_refresh"

// TokenPair is the result of a successful refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Refresher performs the actual token exchange against the auth backend.
type Refresher interface {
	Refresh(ctx context.Context) (*TokenPair, error)
}

// RefresherFunc adapts a function to the Refresher interface.
type RefresherFunc func(ctx context.Context) (*TokenPair, error)

// Refresh calls the function.
func (f RefresherFunc) Refresh(ctx context.Context) (*TokenPair, error) {
	return f(ctx)
}

// TokenSink receives refreshed tokens, typically persisting them and priming
// the token cache.
type TokenSink interface {
	StoreTokens(ctx context.Context, pair *TokenPair) error
}

// Coordinator guarantees at most one in-flight refresh regardless of how many
// requests fail with an expired token simultaneously.
type Coordinator struct {
	refresher Refresher
	sink      TokenSink
	logger    *slog.Logger
	metrics   metrics.BusinessMetrics

	flight   singleflight.Group
	inFlight atomic.Bool
}

// NewCoordinator creates a Coordinator. The sink may be nil when nothing
// needs to observe refreshed tokens.
func NewCoordinator(
	refresher Refresher,
	sink TokenSink,
	logger *slog.Logger,
	businessMetrics metrics.BusinessMetrics,
) *Coordinator {
	if businessMetrics == nil {
		businessMetrics = metrics.NewNoOpBusinessMetrics()
	}
	return &Coordinator{
		refresher: refresher,
		sink:      sink,
		logger:    logger.With("component", "refresh"),
		metrics:   businessMetrics,
	}
}

// Refresh returns fresh tokens, coalescing concurrent callers into a single
// upstream call. Every caller of one flight receives the same result; a
// failed flight rejects all of its waiters with the same error rather than
// leaving them pending.
//
// The winning caller's context governs the upstream call, so cancelling it
// cancels the flight for every waiter.
func (c *Coordinator) Refresh(ctx context.Context) (*TokenPair, error) {
	start := time.Now()
	result, err, shared := c.flight.Do(flightKey, func() (interface{}, error) {
		c.inFlight.Store(true)
		defer c.inFlight.Store(false)

		pair, err := c.refresher.Refresh(ctx)
		if err != nil {
			return nil, err
		}

		if c.sink != nil {
			if sinkErr := c.sink.StoreTokens(ctx, pair); sinkErr != nil {
				// The tokens are already valid upstream; losing the local
				// copy is recoverable, failing the refresh is not.
				c.logger.Warn("failed to store refreshed tokens", "error", sinkErr)
			}
		}
		return pair, nil
	})

	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordOperation(ctx, "refresh", "flight", status)
	c.metrics.RecordDuration(ctx, "refresh", "flight", time.Since(start), status)

	if err != nil {
		c.logger.Warn("token refresh failed", "error", err, "shared", shared)
		return nil, err
	}

	c.logger.Debug("token refresh completed", "shared", shared)
	return result.(*TokenPair), nil
}

// InFlight reports whether a refresh is currently running.
func (c *Coordinator) InFlight() bool {
	return c.inFlight.Load()
}
