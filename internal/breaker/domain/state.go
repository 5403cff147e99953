// Package domain defines the models for per-endpoint circuit breaking.
//
// Each endpoint gets an independent three-state machine: CLOSED passes
// traffic through, OPEN fails fast without touching the transport, HALF_OPEN
// lets a trickle of probe requests measure whether the backend recovered.
package domain

import "time"

// State is the circuit breaker state.
type State string

const (
	// StateClosed passes all requests through.
	StateClosed State = "closed"
	// StateOpen blocks all requests until the recovery timeout elapses.
	StateOpen State = "open"
	// StateHalfOpen admits rate-limited probe requests to test recovery.
	StateHalfOpen State = "half_open"
)

// Default thresholds. Endpoint-specific overrides tighten or loosen these,
// e.g. payment endpoints trip earlier than profile reads.
const (
	DefaultFailureThreshold    = 5
	DefaultRecoveryTimeout     = 60 * time.Second
	DefaultSuccessThreshold    = 3
	DefaultTestRequestInterval = 10 * time.Second
	DefaultAlertThreshold      = 3
)

// Config holds the thresholds for one breaker.
type Config struct {
	// FailureThreshold is how many consecutive failures open the circuit.
	FailureThreshold int
	// RecoveryTimeout is how long the circuit stays open before probing.
	RecoveryTimeout time.Duration
	// SuccessThreshold is how many consecutive probe successes close the circuit.
	SuccessThreshold int
	// TestRequestInterval bounds the probe rate while half-open.
	TestRequestInterval time.Duration
	// AlertThreshold is the consecutive-failure count that fires a streak alert.
	AlertThreshold int
}

// WithDefaults fills zero fields with the default thresholds.
func (c Config) WithDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = DefaultSuccessThreshold
	}
	if c.TestRequestInterval <= 0 {
		c.TestRequestInterval = DefaultTestRequestInterval
	}
	if c.AlertThreshold <= 0 {
		c.AlertThreshold = DefaultAlertThreshold
	}
	return c
}
