// Package service implements the per-endpoint circuit breakers, their
// registry and the alert side channel.
package service

import (
	"context"
	"log/slog"

	breakerDomain "github.com/rentora/apiguard/internal/breaker/domain"
	"github.com/rentora/apiguard/internal/metrics"
)

// Alerter receives breaker events for external monitoring. Notifications are
// informational only and never influence admission decisions.
type Alerter interface {
	Notify(ctx context.Context, event breakerDomain.Event)
}

// NoopAlerter discards events.
type NoopAlerter struct{}

// Notify does nothing.
func (NoopAlerter) Notify(ctx context.Context, event breakerDomain.Event) {}

// LogAlerter writes breaker events to the structured log.
type LogAlerter struct {
	logger *slog.Logger
}

// NewLogAlerter creates an Alerter backed by the given logger.
func NewLogAlerter(logger *slog.Logger) *LogAlerter {
	return &LogAlerter{logger: logger.With("component", "breaker_alerts")}
}

// Notify logs the event, warning for trouble and info for recovery.
func (l *LogAlerter) Notify(ctx context.Context, event breakerDomain.Event) {
	attrs := []any{
		"endpoint", event.Endpoint,
		"from", string(event.From),
		"to", string(event.To),
		"consecutive_failures", event.ConsecutiveFailures,
	}

	switch event.Type {
	case breakerDomain.EventClosed:
		l.logger.Info("circuit breaker recovered", attrs...)
	case breakerDomain.EventFailureStreak:
		l.logger.Warn("circuit breaker failure streak", attrs...)
	default:
		l.logger.Warn("circuit breaker opened", attrs...)
	}
}

// MetricsAlerter records breaker events as business metrics.
type MetricsAlerter struct {
	metrics metrics.BusinessMetrics
}

// NewMetricsAlerter creates an Alerter that records events via BusinessMetrics.
func NewMetricsAlerter(m metrics.BusinessMetrics) *MetricsAlerter {
	return &MetricsAlerter{metrics: m}
}

// Notify counts the event under the breaker domain.
func (m *MetricsAlerter) Notify(ctx context.Context, event breakerDomain.Event) {
	m.metrics.RecordOperation(ctx, "breaker", string(event.Type), "success")
}

// MultiAlerter fans events out to several alerters.
type MultiAlerter []Alerter

// Notify forwards the event to every alerter in order.
func (m MultiAlerter) Notify(ctx context.Context, event breakerDomain.Event) {
	for _, alerter := range m {
		alerter.Notify(ctx, event)
	}
}
