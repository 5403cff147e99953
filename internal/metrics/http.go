package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// httpMetrics holds the HTTP-level instruments.
type httpMetrics struct {
	requestCounter metric.Int64Counter
	durationHisto  metric.Float64Histogram
}

// HTTPMetricsMiddleware returns a gin middleware recording request counts and
// durations with method, path and status_code labels.
//
// Instrument creation failures degrade to a pass-through middleware; metrics
// are never worth failing requests over.
func HTTPMetricsMiddleware(meterProvider metric.MeterProvider, namespace string) gin.HandlerFunc {
	meter := meterProvider.Meter(namespace)

	requestCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_http_requests_total", namespace),
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return func(c *gin.Context) { c.Next() }
	}

	durationHisto, err := meter.Float64Histogram(
		fmt.Sprintf("%s_http_request_duration_seconds", namespace),
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return func(c *gin.Context) { c.Next() }
	}

	instruments := &httpMetrics{
		requestCounter: requestCounter,
		durationHisto:  durationHisto,
	}

	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		attrs := []attribute.KeyValue{
			attribute.String("method", c.Request.Method),
			attribute.String("path", metricPath(c)),
			attribute.String("status_code", strconv.Itoa(c.Writer.Status())),
		}

		ctx := c.Request.Context()
		instruments.requestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
		instruments.durationHisto.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
	}
}

// metricPath labels the request with its route pattern. Proxied requests
// match no route (they go through the NoRoute handler), so they are labeled
// with the request path instead; those paths double as circuit breaker
// endpoint keys, so their cardinality is already bounded by the upstream API
// surface.
func metricPath(c *gin.Context) string {
	if pattern := c.FullPath(); pattern != "" {
		return pattern
	}
	if path := c.Request.URL.Path; path != "" {
		return path
	}
	return "unknown"
}
