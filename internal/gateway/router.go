package gateway

import (
	"context"
	"log/slog"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	breakerService "github.com/rentora/apiguard/internal/breaker/service"
	"github.com/rentora/apiguard/internal/client"
	internalHTTP "github.com/rentora/apiguard/internal/http"
	"github.com/rentora/apiguard/internal/metrics"
	signingService "github.com/rentora/apiguard/internal/signing/service"
)

// RouterConfig carries the gateway-level settings.
type RouterConfig struct {
	UpstreamURL        string
	CORSEnabled        bool
	CORSAllowedOrigins string
	MetricsNamespace   string
}

// RouterDeps carries the assembled components the router serves. Client is
// required; a nil MeterProvider disables HTTP metrics and a nil or disabled
// Signer forwards requests unverified.
type RouterDeps struct {
	Client        *client.Client
	Signer        signingService.Signer
	SecretManager signingService.SecretManager
	NonceRegistry signingService.NonceRegistry
	Registry      *breakerService.Registry
	MeterProvider metric.MeterProvider
	Logger        *slog.Logger
}

// NewRouter assembles the gin engine: base middleware, health endpoints, the
// admin API and the catch-all verify-and-forward route.
func NewRouter(ctx context.Context, cfg RouterConfig, deps RouterDeps) (*gin.Engine, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	if cors := internalHTTP.CORSMiddleware(cfg.CORSEnabled, cfg.CORSAllowedOrigins, logger); cors != nil {
		router.Use(cors)
	}
	router.Use(internalHTTP.CustomLoggerMiddleware(logger))
	if deps.MeterProvider != nil {
		router.Use(metrics.HTTPMetricsMiddleware(deps.MeterProvider, cfg.MetricsNamespace))
	}

	router.GET("/health", internalHTTP.HealthHandler())
	router.GET("/ready", internalHTTP.ReadinessHandler(ctx))

	admin := NewAdminHandler(deps.Registry, deps.SecretManager, deps.NonceRegistry, logger)
	adminGroup := router.Group("/v1/admin")
	{
		adminGroup.GET("/breakers", admin.ListBreakersHandler)
		adminGroup.POST("/breakers/reset", admin.ResetBreakersHandler)
		adminGroup.GET("/secrets", admin.ListSecretsHandler)
		adminGroup.POST("/secrets/rotate", admin.RotateSecretHandler)
		adminGroup.GET("/nonces", admin.NonceStatsHandler)
		adminGroup.POST("/nonces/purge", admin.PurgeNoncesHandler)
	}

	proxy, err := NewProxyHandler(deps.Client, cfg.UpstreamURL, logger)
	if err != nil {
		return nil, err
	}

	// Everything that is not an operational route is verified and forwarded.
	router.NoRoute(VerificationMiddleware(deps.Signer, logger), proxy.Handle)

	return router, nil
}
