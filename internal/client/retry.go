package client

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/rentora/apiguard/internal/metrics"
)

// Default retry budgets. Rate limiting gets one more attempt than server
// errors because a 429 names its own cool-down and is expected to clear.
const (
	DefaultMaxServerRetries    = 2
	DefaultMaxRateLimitRetries = 3
	DefaultBackoffBase         = time.Second
)

// RetryConfig bounds the retry loop.
type RetryConfig struct {
	// MaxServerRetries is how many times a 5xx response is retried.
	MaxServerRetries int
	// MaxRateLimitRetries is how many times a 429 response is retried.
	MaxRateLimitRetries int
	// BackoffBase scales the exponential delay: attempt n waits base << n.
	BackoffBase time.Duration
}

// WithDefaults fills zero fields with the default budgets.
func (c RetryConfig) WithDefaults() RetryConfig {
	if c.MaxServerRetries <= 0 {
		c.MaxServerRetries = DefaultMaxServerRetries
	}
	if c.MaxRateLimitRetries <= 0 {
		c.MaxRateLimitRetries = DefaultMaxRateLimitRetries
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	return c
}

// retryTransport retries 5xx and 429 responses with exponential backoff,
// honoring Retry-After when the backend provides one.
//
// Transport-level errors are not retried here: the offline queue owns
// connectivity failures, and everything else either succeeded or is a
// definitive answer. Each retry re-enters the signing layer below, so
// replayed attempts carry fresh envelopes.
type retryTransport struct {
	next    http.RoundTripper
	cfg     RetryConfig
	logger  *slog.Logger
	metrics metrics.BusinessMetrics
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	attempt := 0

	for {
		if attempt > 0 {
			if err := rewindBody(req); err != nil {
				return nil, err
			}
		}

		resp, err := t.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}

		budget := t.retryBudget(resp.StatusCode)
		if budget == 0 || attempt >= budget {
			return resp, nil
		}

		attempt++
		delay := t.backoffDelay(attempt)
		if after, ok := retryAfterDelay(resp, t.now()); ok {
			delay = after
		}

		t.logger.Debug("retrying request",
			"endpoint", endpointKey(req),
			"status", resp.StatusCode,
			"attempt", attempt,
			"delay", delay,
		)
		t.metrics.RecordOperation(ctx, "pipeline", "retry", strconv.Itoa(resp.StatusCode))

		drainBody(resp)
		if err := t.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// retryBudget returns how many retries the status is worth, zero for
// statuses that are never retried.
func (t *retryTransport) retryBudget(status int) int {
	switch {
	case status == http.StatusTooManyRequests:
		return t.cfg.MaxRateLimitRetries
	case status >= http.StatusInternalServerError:
		return t.cfg.MaxServerRetries
	default:
		return 0
	}
}

// backoffDelay returns base << attempt: 2s, 4s, 8s for a 1s base.
func (t *retryTransport) backoffDelay(attempt int) time.Duration {
	return t.cfg.BackoffBase << uint(attempt)
}

// retryAfterDelay extracts the backend-dictated cool-down from a Retry-After
// header, in either delta-seconds or HTTP-date form.
func retryAfterDelay(resp *http.Response, now time.Time) (time.Duration, bool) {
	value := resp.Header.Get("Retry-After")
	if value == "" {
		return 0, false
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}

	if at, err := http.ParseTime(value); err == nil {
		delay := at.Sub(now)
		if delay < 0 {
			delay = 0
		}
		return delay, true
	}
	return 0, false
}

// sleepContext waits for the delay unless the context ends first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
