// Package app provides the dependency injection container for assembling
// application components.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/gin-gonic/gin"
	otelmetric "go.opentelemetry.io/otel/metric"
	"gocloud.dev/secrets"

	breakerDomain "github.com/rentora/apiguard/internal/breaker/domain"
	breakerService "github.com/rentora/apiguard/internal/breaker/service"
	"github.com/rentora/apiguard/internal/client"
	"github.com/rentora/apiguard/internal/config"
	"github.com/rentora/apiguard/internal/gateway"
	internalHTTP "github.com/rentora/apiguard/internal/http"
	"github.com/rentora/apiguard/internal/metrics"
	"github.com/rentora/apiguard/internal/refresh"
	signingRepository "github.com/rentora/apiguard/internal/signing/repository"
	signingService "github.com/rentora/apiguard/internal/signing/service"
	"github.com/rentora/apiguard/internal/storage"
	tokenService "github.com/rentora/apiguard/internal/token/service"
)

// Container holds all application dependencies and provides methods to access
// them. It follows the lazy initialization pattern - components are created on
// first access.
type Container struct {
	// Configuration
	config *config.Config

	// Infrastructure
	logger          *slog.Logger
	metricsProvider *metrics.Provider
	businessMetrics metrics.BusinessMetrics
	store           storage.Store

	// Signing
	keeper           *secrets.Keeper
	secretRepository signingService.SecretRepository
	secretManager    signingService.SecretManager
	nonceRegistry    signingService.NonceRegistry
	signer           signingService.Signer

	// Tokens and refresh
	tokenCache  tokenService.TokenCache
	tokenStore  tokenService.TokenStore
	coordinator *refresh.Coordinator

	// Pipeline
	breakerRegistry *breakerService.Registry
	client          *client.Client

	// Servers
	router        *gin.Engine
	httpServer    *internalHTTP.Server
	metricsServer *internalHTTP.Server

	// Initialization flags and mutex for thread-safety
	mu                  sync.Mutex
	loggerInit          sync.Once
	metricsProviderInit sync.Once
	businessMetricsInit sync.Once
	storeInit           sync.Once
	secretRepoInit      sync.Once
	secretManagerInit   sync.Once
	nonceRegistryInit   sync.Once
	signerInit          sync.Once
	tokenCacheInit      sync.Once
	tokenStoreInit      sync.Once
	coordinatorInit     sync.Once
	breakerRegistryInit sync.Once
	clientInit          sync.Once
	routerInit          sync.Once
	httpServerInit      sync.Once
	metricsServerInit   sync.Once
	initErrors          map[string]error
}

// NewContainer creates a new dependency injection container with the provided
// configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the configured logger instance.
// It creates a new logger on first access based on the log level in configuration.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// MetricsProvider returns the metrics provider, nil when metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	var err error
	c.metricsProviderInit.Do(func() {
		c.metricsProvider, err = c.initMetricsProvider()
		if err != nil {
			c.initErrors["metricsProvider"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsProvider"]; exists {
		return nil, storedErr
	}
	return c.metricsProvider, nil
}

// BusinessMetrics returns the business metrics recorder. A no-op
// implementation is returned when metrics are disabled, so callers never
// need to branch.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	var err error
	c.businessMetricsInit.Do(func() {
		c.businessMetrics, err = c.initBusinessMetrics()
		if err != nil {
			c.initErrors["businessMetrics"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["businessMetrics"]; exists {
		return nil, storedErr
	}
	return c.businessMetrics, nil
}

// Store returns the shared key-value store for the configured driver.
func (c *Container) Store() (storage.Store, error) {
	var err error
	c.storeInit.Do(func() {
		c.store, err = c.initStore()
		if err != nil {
			c.initErrors["store"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["store"]; exists {
		return nil, storedErr
	}
	return c.store, nil
}

// SecretRepository returns the signing secret repository.
func (c *Container) SecretRepository() (signingService.SecretRepository, error) {
	var err error
	c.secretRepoInit.Do(func() {
		c.secretRepository, err = c.initSecretRepository()
		if err != nil {
			c.initErrors["secretRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["secretRepository"]; exists {
		return nil, storedErr
	}
	return c.secretRepository, nil
}

// SecretManager returns the signing secret manager.
func (c *Container) SecretManager() (signingService.SecretManager, error) {
	var err error
	c.secretManagerInit.Do(func() {
		c.secretManager, err = c.initSecretManager()
		if err != nil {
			c.initErrors["secretManager"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["secretManager"]; exists {
		return nil, storedErr
	}
	return c.secretManager, nil
}

// NonceRegistry returns the replay protection nonce registry.
func (c *Container) NonceRegistry() signingService.NonceRegistry {
	c.nonceRegistryInit.Do(func() {
		c.nonceRegistry = signingService.NewNonceRegistry(c.config.SigningNonceExpiry)
	})
	return c.nonceRegistry
}

// Signer returns the request signer.
func (c *Container) Signer() (signingService.Signer, error) {
	var err error
	c.signerInit.Do(func() {
		c.signer, err = c.initSigner()
		if err != nil {
			c.initErrors["signer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["signer"]; exists {
		return nil, storedErr
	}
	return c.signer, nil
}

// TokenCache returns the token expiry cache.
func (c *Container) TokenCache() (tokenService.TokenCache, error) {
	var err error
	c.tokenCacheInit.Do(func() {
		c.tokenCache, err = c.initTokenCache()
		if err != nil {
			c.initErrors["tokenCache"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["tokenCache"]; exists {
		return nil, storedErr
	}
	return c.tokenCache, nil
}

// TokenStore returns the durable token pair store.
func (c *Container) TokenStore() (tokenService.TokenStore, error) {
	var err error
	c.tokenStoreInit.Do(func() {
		c.tokenStore, err = c.initTokenStore()
		if err != nil {
			c.initErrors["tokenStore"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["tokenStore"]; exists {
		return nil, storedErr
	}
	return c.tokenStore, nil
}

// Coordinator returns the refresh coordinator, nil when no refresh endpoint
// is configured.
func (c *Container) Coordinator() (*refresh.Coordinator, error) {
	var err error
	c.coordinatorInit.Do(func() {
		c.coordinator, err = c.initCoordinator()
		if err != nil {
			c.initErrors["coordinator"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["coordinator"]; exists {
		return nil, storedErr
	}
	return c.coordinator, nil
}

// BreakerRegistry returns the circuit breaker registry.
func (c *Container) BreakerRegistry() (*breakerService.Registry, error) {
	var err error
	c.breakerRegistryInit.Do(func() {
		c.breakerRegistry, err = c.initBreakerRegistry()
		if err != nil {
			c.initErrors["breakerRegistry"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["breakerRegistry"]; exists {
		return nil, storedErr
	}
	return c.breakerRegistry, nil
}

// Client returns the resilient HTTP client pipeline.
func (c *Container) Client() (*client.Client, error) {
	var err error
	c.clientInit.Do(func() {
		c.client, err = c.initClient()
		if err != nil {
			c.initErrors["client"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["client"]; exists {
		return nil, storedErr
	}
	return c.client, nil
}

// Router returns the gateway gin engine.
func (c *Container) Router() (*gin.Engine, error) {
	var err error
	c.routerInit.Do(func() {
		c.router, err = c.initRouter()
		if err != nil {
			c.initErrors["router"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["router"]; exists {
		return nil, storedErr
	}
	return c.router, nil
}

// HTTPServer returns the gateway HTTP server instance.
func (c *Container) HTTPServer() (*internalHTTP.Server, error) {
	var err error
	c.httpServerInit.Do(func() {
		c.httpServer, err = c.initHTTPServer()
		if err != nil {
			c.initErrors["httpServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["httpServer"]; exists {
		return nil, storedErr
	}
	return c.httpServer, nil
}

// MetricsServer returns the metrics server instance, nil when metrics are
// disabled.
func (c *Container) MetricsServer() (*internalHTTP.Server, error) {
	var err error
	c.metricsServerInit.Do(func() {
		c.metricsServer, err = c.initMetricsServer()
		if err != nil {
			c.initErrors["metricsServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsServer"]; exists {
		return nil, storedErr
	}
	return c.metricsServer, nil
}

// Shutdown performs cleanup of all initialized resources.
// It should be called when the application is shutting down.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	// Shutdown servers first so no request arrives on a closed component
	if c.httpServer != nil {
		if err := c.httpServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("http server shutdown: %w", err))
		}
	}

	if c.metricsServer != nil {
		if err := c.metricsServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	// Zero retained signing key material
	if c.secretManager != nil {
		c.secretManager.Close()
	}

	if c.keeper != nil {
		if err := c.keeper.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("keeper close: %w", err))
		}
	}

	if c.store != nil {
		if err := c.store.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("store close: %w", err))
		}
	}

	return errors.Join(shutdownErrors...)
}

// initLogger creates and configures a structured logger based on the log level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}

// initMetricsProvider creates the metrics provider when metrics are enabled.
func (c *Container) initMetricsProvider() (*metrics.Provider, error) {
	if !c.config.MetricsEnabled {
		return nil, nil
	}

	provider, err := metrics.NewProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics provider: %w", err)
	}
	return provider, nil
}

// initBusinessMetrics creates the business metrics recorder.
func (c *Container) initBusinessMetrics() (metrics.BusinessMetrics, error) {
	if !c.config.MetricsEnabled {
		return metrics.NewNoOpBusinessMetrics(), nil
	}

	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for business metrics: %w", err)
	}

	businessMetrics, err := metrics.NewBusinessMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to create business metrics: %w", err)
	}
	return businessMetrics, nil
}

// initStore creates the key-value store for the configured driver.
func (c *Container) initStore() (storage.Store, error) {
	store, err := storage.New(storage.Config{
		Driver:        c.config.StorageDriver,
		KeyPrefix:     c.config.StorageKeyPrefix,
		RedisAddr:     c.config.RedisAddr,
		RedisPassword: c.config.RedisPassword,
		RedisDB:       c.config.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	return store, nil
}

// initSecretRepository creates the signing secret repository over the shared
// store, keeper-encrypted when a keeper URI is configured.
func (c *Container) initSecretRepository() (signingService.SecretRepository, error) {
	store, err := c.Store()
	if err != nil {
		return nil, fmt.Errorf("failed to get store for secret repository: %w", err)
	}

	var keeper *secrets.Keeper
	if c.config.SigningKeeperURI != "" {
		keeper, err = signingService.NewKeeperService().OpenKeeper(context.Background(), c.config.SigningKeeperURI)
		if err != nil {
			return nil, fmt.Errorf("failed to open keeper for secret repository: %w", err)
		}
		c.keeper = keeper
	}

	return signingRepository.NewStorageSecretRepository(store, keeper, ""), nil
}

// initSecretManager creates the secret manager, bootstrapping the first
// secret when the repository is empty.
func (c *Container) initSecretManager() (signingService.SecretManager, error) {
	repo, err := c.SecretRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get secret repository for secret manager: %w", err)
	}

	manager, err := signingService.NewSecretManager(
		context.Background(),
		repo,
		signingService.ManagerConfig{
			RotationInterval: c.config.SigningRotationInterval,
			RetainedSecrets:  c.config.SigningRetainedSecrets,
		},
		c.Logger(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager: %w", err)
	}
	return manager, nil
}

// initSigner creates the request signer with all its dependencies.
func (c *Container) initSigner() (signingService.Signer, error) {
	manager, err := c.SecretManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get secret manager for signer: %w", err)
	}

	signer := signingService.NewSigner(
		manager,
		c.NonceRegistry(),
		signingService.SignerConfig{
			Enabled:         c.config.SigningEnabled,
			TimestampWindow: c.config.SigningTimestampWindow,
		},
		c.Logger(),
	)

	// Wrap with metrics if enabled
	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for signer: %w", err)
		}
		return signingService.NewSignerWithMetrics(signer, businessMetrics), nil
	}

	return signer, nil
}

// initTokenCache creates the token expiry cache over the shared store.
func (c *Container) initTokenCache() (tokenService.TokenCache, error) {
	store, err := c.Store()
	if err != nil {
		return nil, fmt.Errorf("failed to get store for token cache: %w", err)
	}

	cache := tokenService.NewTokenCache(
		store,
		tokenService.NewDecoder(),
		tokenService.CacheConfig{
			MaxCacheAge:  c.config.TokenMaxCacheAge,
			ExpiryBuffer: c.config.TokenExpiryBuffer,
		},
		c.Logger(),
	)

	// Wrap with metrics if enabled
	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for token cache: %w", err)
		}
		return tokenService.NewTokenCacheWithMetrics(cache, businessMetrics), nil
	}

	return cache, nil
}

// initTokenStore creates the durable token pair store.
func (c *Container) initTokenStore() (tokenService.TokenStore, error) {
	store, err := c.Store()
	if err != nil {
		return nil, fmt.Errorf("failed to get store for token store: %w", err)
	}

	tokenCache, err := c.TokenCache()
	if err != nil {
		return nil, fmt.Errorf("failed to get token cache for token store: %w", err)
	}

	return tokenService.NewTokenStore(store, tokenCache, c.Logger()), nil
}

// initCoordinator creates the refresh coordinator when a refresh endpoint is
// configured. The token store doubles as the refresh token source and sink.
func (c *Container) initCoordinator() (*refresh.Coordinator, error) {
	if c.config.RefreshURL == "" {
		return nil, nil
	}

	tokenStore, err := c.TokenStore()
	if err != nil {
		return nil, fmt.Errorf("failed to get token store for coordinator: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for coordinator: %w", err)
	}

	refresher := refresh.NewHTTPRefresher(
		refresh.HTTPRefresherConfig{
			Endpoint: c.config.RefreshURL,
			Timeout:  c.config.RefreshTimeout,
		},
		tokenStore,
		c.Logger(),
	)

	return refresh.NewCoordinator(refresher, tokenStore, c.Logger(), businessMetrics), nil
}

// initBreakerRegistry creates the circuit breaker registry with configured
// default thresholds.
func (c *Container) initBreakerRegistry() (*breakerService.Registry, error) {
	logger := c.Logger()

	var alerter breakerService.Alerter = breakerService.NewLogAlerter(logger)
	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for breaker registry: %w", err)
		}
		alerter = breakerService.MultiAlerter{alerter, breakerService.NewMetricsAlerter(businessMetrics)}
	}

	defaults := breakerDomain.Config{
		FailureThreshold:    c.config.BreakerFailureThreshold,
		RecoveryTimeout:     c.config.BreakerRecoveryTimeout,
		SuccessThreshold:    c.config.BreakerSuccessThreshold,
		TestRequestInterval: c.config.BreakerTestRequestInterval,
		AlertThreshold:      c.config.BreakerAlertThreshold,
	}

	return breakerService.NewRegistry(defaults, nil, alerter, logger), nil
}

// initClient assembles the resilient HTTP client pipeline.
func (c *Container) initClient() (*client.Client, error) {
	registry, err := c.BreakerRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to get breaker registry for client: %w", err)
	}

	signer, err := c.Signer()
	if err != nil {
		return nil, fmt.Errorf("failed to get signer for client: %w", err)
	}

	tokenStore, err := c.TokenStore()
	if err != nil {
		return nil, fmt.Errorf("failed to get token store for client: %w", err)
	}

	tokenCache, err := c.TokenCache()
	if err != nil {
		return nil, fmt.Errorf("failed to get token cache for client: %w", err)
	}

	coordinator, err := c.Coordinator()
	if err != nil {
		return nil, fmt.Errorf("failed to get coordinator for client: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for client: %w", err)
	}

	return client.New(
		client.Config{
			Timeout:       c.config.RequestTimeout,
			PublicPaths:   c.config.PublicPaths,
			UnsignedPaths: c.config.UnsignedPaths,
			Retry: client.RetryConfig{
				MaxServerRetries:    c.config.RetryMaxServerRetries,
				MaxRateLimitRetries: c.config.RetryMaxRateLimitRetries,
				BackoffBase:         c.config.RetryBackoffBase,
			},
			QueueCapacity: c.config.QueueCapacity,
			QueueEnabled:  c.config.QueueEnabled,
		},
		client.Deps{
			Registry:    registry,
			Signer:      signer,
			Tokens:      tokenStore,
			Validator:   tokenCache,
			Coordinator: coordinator,
			Logger:      c.Logger(),
			Metrics:     businessMetrics,
		},
	), nil
}

// initRouter assembles the gateway router with all its dependencies.
func (c *Container) initRouter() (*gin.Engine, error) {
	resilientClient, err := c.Client()
	if err != nil {
		return nil, fmt.Errorf("failed to get client for router: %w", err)
	}

	signer, err := c.Signer()
	if err != nil {
		return nil, fmt.Errorf("failed to get signer for router: %w", err)
	}

	secretManager, err := c.SecretManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get secret manager for router: %w", err)
	}

	registry, err := c.BreakerRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to get breaker registry for router: %w", err)
	}

	var meterProvider otelmetric.MeterProvider
	if c.config.MetricsEnabled {
		provider, err := c.MetricsProvider()
		if err != nil {
			return nil, fmt.Errorf("failed to get metrics provider for router: %w", err)
		}
		meterProvider = provider.MeterProvider()
	}

	return gateway.NewRouter(
		context.Background(),
		gateway.RouterConfig{
			UpstreamURL:        c.config.UpstreamURL,
			CORSEnabled:        c.config.CORSEnabled,
			CORSAllowedOrigins: c.config.CORSAllowOrigins,
			MetricsNamespace:   c.config.MetricsNamespace,
		},
		gateway.RouterDeps{
			Client:        resilientClient,
			Signer:        signer,
			SecretManager: secretManager,
			NonceRegistry: c.NonceRegistry(),
			Registry:      registry,
			MeterProvider: meterProvider,
			Logger:        c.Logger(),
		},
	)
}

// initHTTPServer creates the gateway HTTP server.
func (c *Container) initHTTPServer() (*internalHTTP.Server, error) {
	router, err := c.Router()
	if err != nil {
		return nil, fmt.Errorf("failed to get router for http server: %w", err)
	}

	return internalHTTP.NewServer(
		"http server",
		c.config.ServerHost,
		c.config.ServerPort,
		router,
		c.Logger(),
	), nil
}

// initMetricsServer creates the metrics server when metrics are enabled.
func (c *Container) initMetricsServer() (*internalHTTP.Server, error) {
	if !c.config.MetricsEnabled {
		return nil, nil
	}

	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for metrics server: %w", err)
	}

	return internalHTTP.NewMetricsServer(
		context.Background(),
		c.config.ServerHost,
		c.config.MetricsPort,
		c.Logger(),
		provider,
	), nil
}
