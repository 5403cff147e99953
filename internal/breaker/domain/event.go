package domain

import "time"

// EventType names the alert-worthy breaker occurrences.
type EventType string

const (
	// EventOpened fires when a breaker trips open.
	EventOpened EventType = "opened"
	// EventClosed fires when a breaker recovers to closed.
	EventClosed EventType = "closed"
	// EventFailureStreak fires once when consecutive failures reach the
	// alert threshold, before the breaker necessarily opens.
	EventFailureStreak EventType = "failure_streak"
)

// Event describes one alert-worthy state occurrence. Events feed monitoring
// side channels and never influence admission decisions.
type Event struct {
	Endpoint            string    `json:"endpoint"`
	Type                EventType `json:"type"`
	From                State     `json:"from"`
	To                  State     `json:"to"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	At                  time.Time `json:"at"`
}
