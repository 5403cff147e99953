// Package config provides application configuration through environment variables.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/allisson/go-env"
	validation "github.com/jellydator/validation"
	"github.com/joho/godotenv"

	customValidation "github.com/rentora/apiguard/internal/validation"
)

// Config holds all application configuration.
type Config struct {
	// ServerHost is the host address the gateway server binds to.
	ServerHost string
	// ServerPort is the port the gateway server listens on.
	ServerPort int

	// LogLevel is the logging level (e.g., "debug", "info", "warn", "error").
	LogLevel string

	// StorageDriver selects the shared KV store backend ("memory" or "redis").
	StorageDriver string
	// StorageKeyPrefix namespaces every stored key.
	StorageKeyPrefix string
	// RedisAddr is the host:port of the Redis server.
	RedisAddr string
	// RedisPassword authenticates against Redis, empty for none.
	RedisPassword string
	// RedisDB is the Redis database number.
	RedisDB int

	// SigningEnabled toggles outbound signing and inbound verification.
	SigningEnabled bool
	// SigningRotationInterval is how long a secret signs before replacement.
	SigningRotationInterval time.Duration
	// SigningRetainedSecrets is how many secret generations stay verifiable.
	SigningRetainedSecrets int
	// SigningTimestampWindow bounds accepted clock skew during verification.
	SigningTimestampWindow time.Duration
	// SigningNonceExpiry is how long consumed nonces are remembered.
	SigningNonceExpiry time.Duration
	// SigningKeeperURI selects the at-rest encryption keeper for persisted
	// secrets (e.g. "base64key://<key>", "hashivault://<keyname>"). Empty
	// persists secrets unencrypted.
	SigningKeeperURI string

	// TokenMaxCacheAge bounds how long a cached expiry entry is trusted.
	TokenMaxCacheAge time.Duration
	// TokenExpiryBuffer treats tokens expiring within the buffer as expired.
	TokenExpiryBuffer time.Duration

	// BreakerFailureThreshold is how many consecutive failures open a circuit.
	BreakerFailureThreshold int
	// BreakerRecoveryTimeout is how long a circuit stays open before probing.
	BreakerRecoveryTimeout time.Duration
	// BreakerSuccessThreshold is how many probe successes close a circuit.
	BreakerSuccessThreshold int
	// BreakerTestRequestInterval bounds the probe rate while half-open.
	BreakerTestRequestInterval time.Duration
	// BreakerAlertThreshold is the consecutive-failure count that fires a
	// streak alert.
	BreakerAlertThreshold int

	// UpstreamURL is the backend base URL the gateway forwards to.
	UpstreamURL string
	// RequestTimeout bounds one request through the whole pipeline.
	RequestTimeout time.Duration
	// RetryMaxServerRetries is how many times a 5xx response is retried.
	RetryMaxServerRetries int
	// RetryMaxRateLimitRetries is how many times a 429 response is retried.
	RetryMaxRateLimitRetries int
	// RetryBackoffBase scales the exponential retry delay.
	RetryBackoffBase time.Duration
	// QueueEnabled captures connectivity failures for later replay.
	QueueEnabled bool
	// QueueCapacity bounds the offline queue, oldest entries drop first.
	QueueCapacity int
	// PublicPaths lists path prefixes that never carry a bearer token.
	PublicPaths []string
	// UnsignedPaths lists path prefixes exempt from request signing.
	UnsignedPaths []string

	// RefreshURL is the token exchange endpoint, empty disables refresh.
	RefreshURL string
	// RefreshTimeout bounds one token exchange round trip.
	RefreshTimeout time.Duration

	// CORSEnabled indicates whether CORS is enabled.
	CORSEnabled bool
	// CORSAllowOrigins is a comma-separated list of allowed origins for CORS.
	CORSAllowOrigins string

	// MetricsEnabled indicates whether metrics collection is enabled.
	MetricsEnabled bool
	// MetricsNamespace is the namespace for the application metrics.
	MetricsNamespace string
	// MetricsPort is the port number for the metrics server.
	MetricsPort int
}

// Load loads configuration from environment variables and .env file.
func Load() *Config {
	// Try to load .env file recursively
	loadDotEnv()

	return &Config{
		// Server configuration
		ServerHost: env.GetString("SERVER_HOST", "0.0.0.0"),
		ServerPort: env.GetInt("SERVER_PORT", 8080),

		// Logging
		LogLevel: env.GetString("LOG_LEVEL", "info"),

		// Storage
		StorageDriver:    env.GetString("STORAGE_DRIVER", "memory"),
		StorageKeyPrefix: env.GetString("STORAGE_KEY_PREFIX", "apiguard"),
		RedisAddr:        env.GetString("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    env.GetString("REDIS_PASSWORD", ""),
		RedisDB:          env.GetInt("REDIS_DB", 0),

		// Request signing
		SigningEnabled:          env.GetBool("SIGNING_ENABLED", true),
		SigningRotationInterval: env.GetDuration("SIGNING_ROTATION_INTERVAL_HOURS", 24, time.Hour),
		SigningRetainedSecrets:  env.GetInt("SIGNING_RETAINED_SECRETS", 3),
		SigningTimestampWindow:  env.GetDuration("SIGNING_TIMESTAMP_WINDOW_SECONDS", 300, time.Second),
		SigningNonceExpiry:      env.GetDuration("SIGNING_NONCE_EXPIRY_MINUTES", 10, time.Minute),
		SigningKeeperURI:        env.GetString("SIGNING_KEEPER_URI", ""),

		// Token expiry cache
		TokenMaxCacheAge:  env.GetDuration("TOKEN_MAX_CACHE_AGE_HOURS", 24, time.Hour),
		TokenExpiryBuffer: env.GetDuration("TOKEN_EXPIRY_BUFFER_SECONDS", 60, time.Second),

		// Circuit breaker defaults
		BreakerFailureThreshold:    env.GetInt("BREAKER_FAILURE_THRESHOLD", 5),
		BreakerRecoveryTimeout:     env.GetDuration("BREAKER_RECOVERY_TIMEOUT_SECONDS", 60, time.Second),
		BreakerSuccessThreshold:    env.GetInt("BREAKER_SUCCESS_THRESHOLD", 3),
		BreakerTestRequestInterval: env.GetDuration("BREAKER_TEST_REQUEST_INTERVAL_SECONDS", 10, time.Second),
		BreakerAlertThreshold:      env.GetInt("BREAKER_ALERT_THRESHOLD", 3),

		// Outbound pipeline
		UpstreamURL:              env.GetString("UPSTREAM_URL", ""),
		RequestTimeout:           env.GetDuration("REQUEST_TIMEOUT_SECONDS", 60, time.Second),
		RetryMaxServerRetries:    env.GetInt("RETRY_MAX_SERVER_RETRIES", 2),
		RetryMaxRateLimitRetries: env.GetInt("RETRY_MAX_RATE_LIMIT_RETRIES", 3),
		RetryBackoffBase:         env.GetDuration("RETRY_BACKOFF_BASE_SECONDS", 1, time.Second),
		QueueEnabled:             env.GetBool("QUEUE_ENABLED", false),
		QueueCapacity:            env.GetInt("QUEUE_CAPACITY", 100),
		PublicPaths:              splitPaths(env.GetString("PUBLIC_PATHS", "")),
		UnsignedPaths:            splitPaths(env.GetString("UNSIGNED_PATHS", "")),

		// Token refresh
		RefreshURL:     env.GetString("REFRESH_URL", ""),
		RefreshTimeout: env.GetDuration("REFRESH_TIMEOUT_SECONDS", 15, time.Second),

		// CORS
		CORSEnabled:      env.GetBool("CORS_ENABLED", false),
		CORSAllowOrigins: env.GetString("CORS_ALLOW_ORIGINS", ""),

		// Metrics
		MetricsEnabled:   env.GetBool("METRICS_ENABLED", true),
		MetricsNamespace: env.GetString("METRICS_NAMESPACE", "apiguard"),
		MetricsPort:      env.GetInt("METRICS_PORT", 8081),
	}
}

// Validate checks that the loaded configuration is usable. Zero-value noise
// is caught here rather than deep inside component constructors.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ServerPort, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.LogLevel, validation.Required, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.StorageDriver, validation.Required, validation.In("memory", "redis")),
		validation.Field(&c.StorageKeyPrefix, customValidation.NoWhitespace),
		validation.Field(&c.RedisAddr,
			validation.When(c.StorageDriver == "redis", validation.Required, customValidation.HostPort),
		),
		validation.Field(&c.SigningRotationInterval, customValidation.MinDuration{Min: time.Minute}),
		validation.Field(&c.SigningRetainedSecrets, validation.Required, validation.Min(1)),
		validation.Field(&c.SigningTimestampWindow, customValidation.MinDuration{Min: time.Second}),
		validation.Field(&c.SigningNonceExpiry, customValidation.MinDuration{Min: time.Minute}),
		validation.Field(&c.BreakerFailureThreshold, validation.Required, validation.Min(1)),
		validation.Field(&c.BreakerSuccessThreshold, validation.Required, validation.Min(1)),
		validation.Field(&c.UpstreamURL,
			validation.When(c.UpstreamURL != "", customValidation.AbsoluteURL),
		),
		validation.Field(&c.RefreshURL,
			validation.When(c.RefreshURL != "", customValidation.AbsoluteURL),
		),
		validation.Field(&c.QueueCapacity, validation.Required, validation.Min(1)),
		validation.Field(&c.MetricsNamespace, validation.Required, customValidation.NotBlank),
		validation.Field(&c.MetricsPort, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// GetGinMode returns the appropriate Gin mode based on log level.
func (c *Config) GetGinMode() string {
	switch c.LogLevel {
	case "debug":
		return "debug"
	case "info", "warn", "error":
		return "release"
	default:
		return "release"
	}
}

// splitPaths parses a comma-separated path list, dropping empty entries.
func splitPaths(value string) []string {
	if value == "" {
		return nil
	}

	var paths []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			paths = append(paths, part)
		}
	}
	return paths
}

// loadDotEnv searches for a .env file recursively from the current directory
// up to the root directory and loads it if found.
func loadDotEnv() {
	// Get current working directory
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	// Search for .env file recursively up the directory tree
	dir := cwd
	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			// .env file found, load it
			_ = godotenv.Load(envPath)
			return
		}

		// Move to parent directory
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root directory
			break
		}
		dir = parent
	}
}
