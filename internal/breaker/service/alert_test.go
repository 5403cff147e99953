package service

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	breakerDomain "github.com/rentora/apiguard/internal/breaker/domain"
	"github.com/rentora/apiguard/internal/metrics"
)

// mockBusinessMetrics is a mock implementation of metrics.BusinessMetrics for testing.
type mockBusinessMetrics struct {
	mock.Mock
}

func (m *mockBusinessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	m.Called(ctx, domain, operation, status)
}

func (m *mockBusinessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	m.Called(ctx, domain, operation, duration, status)
}

func (m *mockBusinessMetrics) RecordLevel(ctx context.Context, domain, name string, value int64) {
	m.Called(ctx, domain, name, value)
}

var _ metrics.BusinessMetrics = (*mockBusinessMetrics)(nil)

func sampleEvent(eventType breakerDomain.EventType) breakerDomain.Event {
	return breakerDomain.Event{
		Endpoint:            "/bookings",
		Type:                eventType,
		From:                breakerDomain.StateClosed,
		To:                  breakerDomain.StateOpen,
		ConsecutiveFailures: 5,
		At:                  time.Now().UTC(),
	}
}

func TestLogAlerter_Notify(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		eventType breakerDomain.EventType
		level     string
		message   string
	}{
		{name: "opened warns", eventType: breakerDomain.EventOpened, level: "WARN", message: "circuit breaker opened"},
		{name: "streak warns", eventType: breakerDomain.EventFailureStreak, level: "WARN", message: "circuit breaker failure streak"},
		{name: "closed informs", eventType: breakerDomain.EventClosed, level: "INFO", message: "circuit breaker recovered"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			alerter := NewLogAlerter(slog.New(slog.NewTextHandler(&buf, nil)))

			alerter.Notify(ctx, sampleEvent(tt.eventType))

			output := buf.String()
			assert.Contains(t, output, tt.level)
			assert.Contains(t, output, tt.message)
			assert.Contains(t, output, "/bookings")
		})
	}
}

func TestMetricsAlerter_Notify(t *testing.T) {
	ctx := context.Background()
	mockMetrics := &mockBusinessMetrics{}
	mockMetrics.On("RecordOperation", ctx, "breaker", "opened", "success").Return().Once()

	alerter := NewMetricsAlerter(mockMetrics)
	alerter.Notify(ctx, sampleEvent(breakerDomain.EventOpened))

	mockMetrics.AssertExpectations(t)
}

func TestMultiAlerter_Notify(t *testing.T) {
	ctx := context.Background()
	first := &recordingAlerter{}
	second := &recordingAlerter{}

	multi := MultiAlerter{first, second}
	multi.Notify(ctx, sampleEvent(breakerDomain.EventClosed))

	assert.Len(t, first.events, 1)
	assert.Len(t, second.events, 1)
}
