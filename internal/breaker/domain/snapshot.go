package domain

import "time"

// Snapshot is a point-in-time copy of one breaker's state and counters,
// served by the admin API and used in tests.
type Snapshot struct {
	Endpoint             string     `json:"endpoint"`
	State                State      `json:"state"`
	FailureCount         int64      `json:"failure_count"`
	SuccessCount         int64      `json:"success_count"`
	ConsecutiveFailures  int        `json:"consecutive_failures"`
	ConsecutiveSuccesses int        `json:"consecutive_successes"`
	LastFailureTime      *time.Time `json:"last_failure_time,omitempty"`
	LastSuccessTime      *time.Time `json:"last_success_time,omitempty"`
	LastStateChange      time.Time  `json:"last_state_change"`
	TotalRequests        int64      `json:"total_requests"`
	BlockedRequests      int64      `json:"blocked_requests"`
	TestRequests         int64      `json:"test_requests"`
	RecoveryAttempts     int64      `json:"recovery_attempts"`
	AlertsSent           int64      `json:"alerts_sent"`
}
