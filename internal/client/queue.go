package client

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/rentora/apiguard/internal/errors"
	"github.com/rentora/apiguard/internal/metrics"
)

// DefaultQueueCapacity bounds the offline queue. When full, the oldest entry
// is dropped: recent requests reflect what the caller still cares about.
const DefaultQueueCapacity = 100

// queueableKey marks a request as explicitly replayable.
type queueableKey struct{}

// WithQueueable marks the request context so a non-idempotent request still
// enters the offline queue on a connectivity failure. Idempotent methods are
// queued automatically and do not need the marker.
func WithQueueable(ctx context.Context) context.Context {
	return context.WithValue(ctx, queueableKey{}, true)
}

func queueableFromContext(ctx context.Context) bool {
	queueable, _ := ctx.Value(queueableKey{}).(bool)
	return queueable
}

// idempotentMethod reports whether the method is safe to replay blindly.
func idempotentMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// QueuedRequest is one captured request awaiting connectivity.
type QueuedRequest struct {
	ID         uuid.UUID
	Method     string
	URL        string
	Header     http.Header
	Body       []byte
	EnqueuedAt time.Time
	Attempts   int
}

// OfflineQueue captures requests that failed with a connectivity error so
// they can be replayed when the network returns. Connectivity detection is
// the caller's concern; the queue only remembers and replays.
type OfflineQueue struct {
	capacity int
	logger   *slog.Logger
	metrics  metrics.BusinessMetrics
	now      func() time.Time

	mu      sync.Mutex
	entries []*QueuedRequest
}

// NewOfflineQueue creates a bounded queue.
func NewOfflineQueue(capacity int, logger *slog.Logger, businessMetrics metrics.BusinessMetrics) *OfflineQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	if businessMetrics == nil {
		businessMetrics = metrics.NewNoOpBusinessMetrics()
	}
	return &OfflineQueue{
		capacity: capacity,
		logger:   logger.With("component", "offline_queue"),
		metrics:  businessMetrics,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue captures a request. When the queue is full the oldest entry is
// dropped to make room.
func (q *OfflineQueue) Enqueue(ctx context.Context, method, url string, header http.Header, body []byte) uuid.UUID {
	entry := &QueuedRequest{
		ID:         uuid.Must(uuid.NewV7()),
		Method:     method,
		URL:        url,
		Header:     header.Clone(),
		Body:       body,
		EnqueuedAt: q.now(),
	}

	q.mu.Lock()
	if len(q.entries) >= q.capacity {
		dropped := q.entries[0]
		q.entries = q.entries[1:]
		q.logger.Warn("offline queue full, dropping oldest request",
			"dropped_id", dropped.ID.String(),
			"dropped_url", dropped.URL,
		)
	}
	q.entries = append(q.entries, entry)
	depth := len(q.entries)
	q.mu.Unlock()

	q.metrics.RecordOperation(ctx, "pipeline", "queue_enqueue", "success")
	q.metrics.RecordLevel(ctx, "pipeline", "queue_depth", int64(depth))
	q.logger.Info("request queued for replay",
		"id", entry.ID.String(),
		"method", method,
		"url", url,
		"depth", depth,
	)
	return entry.ID
}

// Len returns the number of queued requests.
func (q *OfflineQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Snapshot returns a copy of the queued entries in replay order.
func (q *OfflineQueue) Snapshot() []*QueuedRequest {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := make([]*QueuedRequest, len(q.entries))
	copy(entries, q.entries)
	return entries
}

// ReplayAll drains the queue through send in FIFO order. Entries that fail
// with another connectivity error are re-enqueued for the next replay pass;
// any other outcome, success or a definitive response, removes the entry.
// Returns how many entries were replayed and how many went back in the queue.
func (q *OfflineQueue) ReplayAll(ctx context.Context, send func(ctx context.Context, entry *QueuedRequest) error) (int, int) {
	q.mu.Lock()
	pending := q.entries
	q.entries = nil
	q.mu.Unlock()

	replayed := 0
	requeued := 0
	for _, entry := range pending {
		entry.Attempts++
		err := send(ctx, entry)

		var classified *ClassifiedError
		if err != nil && apperrors.As(err, &classified) && classified.Category == CategoryNetwork {
			q.mu.Lock()
			if len(q.entries) < q.capacity {
				q.entries = append(q.entries, entry)
				requeued++
			}
			q.mu.Unlock()
			continue
		}

		replayed++
		if err != nil {
			q.logger.Warn("replayed request failed definitively",
				"id", entry.ID.String(),
				"url", entry.URL,
				"error", err,
			)
		}
	}

	q.metrics.RecordLevel(ctx, "pipeline", "queue_depth", int64(q.Len()))
	q.logger.Info("offline queue replayed", "replayed", replayed, "requeued", requeued)
	return replayed, requeued
}
