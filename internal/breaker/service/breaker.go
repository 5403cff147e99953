package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	breakerDomain "github.com/rentora/apiguard/internal/breaker/domain"
)

// Breaker is the three-state admission gate for one endpoint.
//
// Allow decides admission and performs the OPEN to HALF_OPEN transition when
// the recovery timeout elapsed; the transition and the first probe admission
// are one atomic step, so recovery probing starts on the first call after the
// timeout rather than the one after it. RecordSuccess and RecordFailure feed
// outcomes back into the state machine.
type Breaker struct {
	endpoint string
	cfg      breakerDomain.Config
	alerter  Alerter
	logger   *slog.Logger
	now      func() time.Time

	mu                   sync.Mutex
	state                breakerDomain.State
	failureCount         int64
	successCount         int64
	consecutiveFailures  int
	consecutiveSuccesses int
	lastFailureTime      time.Time
	lastSuccessTime      time.Time
	lastStateChange      time.Time
	totalRequests        int64
	blockedRequests      int64
	testRequests         int64
	recoveryAttempts     int64
	alertsSent           int64
	probeGate            *rate.Limiter
}

// NewBreaker creates a closed breaker for the endpoint.
func NewBreaker(
	endpoint string,
	cfg breakerDomain.Config,
	alerter Alerter,
	logger *slog.Logger,
) *Breaker {
	if alerter == nil {
		alerter = NoopAlerter{}
	}
	b := &Breaker{
		endpoint: endpoint,
		cfg:      cfg.WithDefaults(),
		alerter:  alerter,
		logger:   logger.With("component", "breaker", "endpoint", endpoint),
		now:      func() time.Time { return time.Now().UTC() },
		state:    breakerDomain.StateClosed,
	}
	b.lastStateChange = b.now()
	return b
}

// Allow reports whether a request to the endpoint may proceed. Returns
// ErrCircuitOpen when the request is blocked.
func (b *Breaker) Allow(ctx context.Context) error {
	b.mu.Lock()
	b.totalRequests++

	switch b.state {
	case breakerDomain.StateClosed:
		b.mu.Unlock()
		return nil

	case breakerDomain.StateOpen:
		now := b.now()
		if now.Sub(b.lastStateChange) < b.cfg.RecoveryTimeout {
			b.blockedRequests++
			b.mu.Unlock()
			return breakerDomain.ErrCircuitOpen
		}

		// Recovery timeout elapsed: move to half-open and admit this very
		// request as the first probe.
		b.state = breakerDomain.StateHalfOpen
		b.lastStateChange = now
		b.recoveryAttempts++
		b.probeGate = rate.NewLimiter(rate.Every(b.cfg.TestRequestInterval), 1)
		b.probeGate.AllowN(now, 1)
		b.testRequests++
		b.mu.Unlock()

		b.logger.Info("probing recovery", "state", string(breakerDomain.StateHalfOpen))
		return nil

	default: // half-open
		if b.probeGate.AllowN(b.now(), 1) {
			b.testRequests++
			b.mu.Unlock()
			return nil
		}
		b.blockedRequests++
		b.mu.Unlock()
		return breakerDomain.ErrCircuitOpen
	}
}

// RecordSuccess feeds a successful outcome into the state machine. Enough
// consecutive successes while half-open close the circuit.
func (b *Breaker) RecordSuccess(ctx context.Context) {
	b.mu.Lock()
	now := b.now()
	b.successCount++
	b.consecutiveSuccesses++
	b.consecutiveFailures = 0
	b.lastSuccessTime = now

	var event *breakerDomain.Event
	if b.state == breakerDomain.StateHalfOpen && b.consecutiveSuccesses >= b.cfg.SuccessThreshold {
		event = b.transitionLocked(breakerDomain.StateClosed, breakerDomain.EventClosed, now)
	}
	b.mu.Unlock()

	if event != nil {
		b.logger.Info("circuit closed", "consecutive_successes", b.cfg.SuccessThreshold)
		b.alerter.Notify(ctx, *event)
	}
}

// RecordFailure feeds a failed outcome into the state machine. Crossing the
// failure threshold while closed, or any failure while half-open, opens the
// circuit.
func (b *Breaker) RecordFailure(ctx context.Context) {
	b.mu.Lock()
	now := b.now()
	b.failureCount++
	b.consecutiveFailures++
	b.consecutiveSuccesses = 0
	b.lastFailureTime = now

	var events []breakerDomain.Event
	if b.consecutiveFailures == b.cfg.AlertThreshold {
		b.alertsSent++
		events = append(events, breakerDomain.Event{
			Endpoint:            b.endpoint,
			Type:                breakerDomain.EventFailureStreak,
			From:                b.state,
			To:                  b.state,
			ConsecutiveFailures: b.consecutiveFailures,
			At:                  now,
		})
	}

	switch {
	case b.state == breakerDomain.StateClosed && b.consecutiveFailures >= b.cfg.FailureThreshold:
		events = append(events, *b.transitionLocked(breakerDomain.StateOpen, breakerDomain.EventOpened, now))
	case b.state == breakerDomain.StateHalfOpen:
		events = append(events, *b.transitionLocked(breakerDomain.StateOpen, breakerDomain.EventOpened, now))
	}
	failures := b.consecutiveFailures
	b.mu.Unlock()

	for _, event := range events {
		if event.Type == breakerDomain.EventOpened {
			b.logger.Warn("circuit opened", "consecutive_failures", failures)
		}
		b.alerter.Notify(ctx, event)
	}
}

// Reset forces the breaker back to closed. Operator action; cumulative
// counters survive so history stays inspectable after a reset.
func (b *Breaker) Reset(ctx context.Context) {
	b.mu.Lock()
	now := b.now()
	from := b.state
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
	b.probeGate = nil

	var event *breakerDomain.Event
	if from != breakerDomain.StateClosed {
		event = b.transitionLocked(breakerDomain.StateClosed, breakerDomain.EventClosed, now)
	}
	b.mu.Unlock()

	b.logger.Info("circuit reset", "previous_state", string(from))
	if event != nil {
		b.alerter.Notify(ctx, *event)
	}
}

// Snapshot returns a copy of the breaker's state and counters.
func (b *Breaker) Snapshot() breakerDomain.Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snapshot := breakerDomain.Snapshot{
		Endpoint:             b.endpoint,
		State:                b.state,
		FailureCount:         b.failureCount,
		SuccessCount:         b.successCount,
		ConsecutiveFailures:  b.consecutiveFailures,
		ConsecutiveSuccesses: b.consecutiveSuccesses,
		LastStateChange:      b.lastStateChange,
		TotalRequests:        b.totalRequests,
		BlockedRequests:      b.blockedRequests,
		TestRequests:         b.testRequests,
		RecoveryAttempts:     b.recoveryAttempts,
		AlertsSent:           b.alertsSent,
	}
	if !b.lastFailureTime.IsZero() {
		t := b.lastFailureTime
		snapshot.LastFailureTime = &t
	}
	if !b.lastSuccessTime.IsZero() {
		t := b.lastSuccessTime
		snapshot.LastSuccessTime = &t
	}
	return snapshot
}

// State returns the current state.
func (b *Breaker) State() breakerDomain.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// transitionLocked moves to the target state and builds the alert event.
// Callers hold b.mu.
func (b *Breaker) transitionLocked(
	to breakerDomain.State,
	eventType breakerDomain.EventType,
	now time.Time,
) *breakerDomain.Event {
	from := b.state
	b.state = to
	b.lastStateChange = now
	b.alertsSent++
	return &breakerDomain.Event{
		Endpoint:            b.endpoint,
		Type:                eventType,
		From:                from,
		To:                  to,
		ConsecutiveFailures: b.consecutiveFailures,
		At:                  now,
	}
}
