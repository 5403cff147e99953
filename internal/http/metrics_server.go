package http

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/rentora/apiguard/internal/metrics"
)

// NewMetricsServer builds the metrics-port server: the Prometheus scrape
// endpoint plus liveness and readiness probes, so orchestrators can probe the
// metrics port without touching gateway traffic. A nil provider leaves the
// scrape endpoint unmounted.
func NewMetricsServer(
	ctx context.Context,
	host string,
	port int,
	logger *slog.Logger,
	metricsProvider *metrics.Provider,
) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(CustomLoggerMiddleware(logger))

	if metricsProvider != nil {
		router.GET("/metrics", gin.WrapH(metricsProvider.Handler()))
	}
	router.GET("/health", HealthHandler())
	router.GET("/ready", ReadinessHandler(ctx))

	return NewServer("metrics server", host, port, router, logger)
}
