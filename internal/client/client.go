package client

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	breakerDomain "github.com/rentora/apiguard/internal/breaker/domain"
	breakerService "github.com/rentora/apiguard/internal/breaker/service"
	apperrors "github.com/rentora/apiguard/internal/errors"
	"github.com/rentora/apiguard/internal/metrics"
	"github.com/rentora/apiguard/internal/refresh"
	signingDomain "github.com/rentora/apiguard/internal/signing/domain"
	signingService "github.com/rentora/apiguard/internal/signing/service"
)

// DefaultRequestTimeout bounds one logical request including its retries.
const DefaultRequestTimeout = 60 * time.Second

// Config controls pipeline assembly.
type Config struct {
	// Timeout bounds one logical request including retries. Zero applies
	// DefaultRequestTimeout.
	Timeout time.Duration
	// PublicPaths are path prefixes that never carry a bearer token and
	// never trigger a refresh, e.g. auth bootstrap and health endpoints.
	PublicPaths []string
	// UnsignedPaths are path prefixes excluded from request signing.
	UnsignedPaths []string
	// ProviderKeys are third-party API keys injected by host suffix.
	ProviderKeys []ProviderKey
	// Retry bounds the retry loop.
	Retry RetryConfig
	// QueueCapacity bounds the offline replay queue.
	QueueCapacity int
	// QueueEnabled turns automatic capture of connectivity failures on.
	QueueEnabled bool
}

// Deps are the collaborating services the pipeline is assembled from. Nil
// fields disable the corresponding layer: no signer means unsigned requests,
// no token source means no bearer handling, no identity checker means the
// allow-all default.
type Deps struct {
	Base        http.RoundTripper
	Registry    *breakerService.Registry
	Signer      signingService.Signer
	Tokens      TokenSource
	Validator   TokenValidator
	Coordinator *refresh.Coordinator
	Identity    IdentityChecker
	Logger      *slog.Logger
	Metrics     metrics.BusinessMetrics
}

// Client is the resilient HTTP client: an interceptor pipeline layering
// identity checks, bearer-token handling with coordinated refresh, provider
// API keys, per-endpoint circuit breaking, request signing and bounded
// retries around a base transport, plus an offline queue for connectivity
// failures.
type Client struct {
	http        *http.Client
	queue       *OfflineQueue
	registry    *breakerService.Registry
	coordinator *refresh.Coordinator
	cfg         Config
	logger      *slog.Logger
	metrics     metrics.BusinessMetrics
}

// New assembles the interceptor pipeline in its fixed order:
// identity, auth, provider keys, breaker admission, retry, signing, base.
func New(cfg Config, deps Deps) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRequestTimeout
	}
	cfg.Retry = cfg.Retry.WithDefaults()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "client")

	businessMetrics := deps.Metrics
	if businessMetrics == nil {
		businessMetrics = metrics.NewNoOpBusinessMetrics()
	}

	registry := deps.Registry
	if registry == nil {
		registry = breakerService.NewRegistry(
			breakerDomain.Config{}, nil, breakerService.NewLogAlerter(logger), logger,
		)
	}

	base := deps.Base
	if base == nil {
		base = http.DefaultTransport
	}

	identity := deps.Identity
	if identity == nil {
		identity = insecureIdentityChecker{}
	}

	var rt http.RoundTripper = &signingTransport{
		next:          base,
		signer:        deps.Signer,
		unsignedPaths: cfg.UnsignedPaths,
		logger:        logger,
	}
	rt = &retryTransport{
		next:    rt,
		cfg:     cfg.Retry,
		logger:  logger,
		metrics: businessMetrics,
		now:     func() time.Time { return time.Now().UTC() },
		sleep:   sleepContext,
	}
	rt = &admissionTransport{
		next:     rt,
		registry: registry,
	}
	rt = &providerKeyTransport{
		next: rt,
		keys: cfg.ProviderKeys,
	}
	rt = &authTransport{
		next:        rt,
		tokens:      deps.Tokens,
		validator:   deps.Validator,
		coordinator: deps.Coordinator,
		publicPaths: cfg.PublicPaths,
		logger:      logger,
	}
	rt = &identityTransport{
		next:    rt,
		checker: identity,
	}

	return &Client{
		http: &http.Client{
			Transport: rt,
			Timeout:   cfg.Timeout,
		},
		queue:       NewOfflineQueue(cfg.QueueCapacity, logger, businessMetrics),
		registry:    registry,
		coordinator: deps.Coordinator,
		cfg:         cfg,
		logger:      logger,
		metrics:     businessMetrics,
	}
}

// Do sends the request through the pipeline and classifies the outcome.
//
// A response is returned whenever one was received, even alongside a
// non-nil error, so callers can still read a 4xx body. Connectivity
// failures of idempotent or explicitly queueable requests are captured in
// the offline queue before the error surfaces.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	endpoint := endpointKey(req)

	if err != nil {
		classified := classifyError(endpoint, unwrapURLError(err))
		c.record(req.Context(), endpoint, string(classified.Category), start)

		if classified.Category == CategoryNetwork && c.shouldQueue(req) {
			c.queue.Enqueue(req.Context(), req.Method, req.URL.String(), queueHeader(req.Header), body)
		}
		return nil, classified
	}

	if resp.StatusCode >= http.StatusBadRequest {
		classified := classifyResponse(endpoint, resp.StatusCode)
		c.record(req.Context(), endpoint, string(classified.Category), start)
		return resp, classified
	}

	c.record(req.Context(), endpoint, "success", start)
	return resp, nil
}

// Get issues a GET through the pipeline.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Post issues a POST with a JSON body through the pipeline.
func (c *Client) Post(ctx context.Context, rawURL string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.Do(req)
}

// ReplayQueued re-sends every queued request through the full pipeline.
// Callers invoke it when connectivity returns. Returns how many entries were
// replayed and how many failed with another connectivity error.
func (c *Client) ReplayQueued(ctx context.Context) (int, int) {
	return c.queue.ReplayAll(ctx, func(ctx context.Context, entry *QueuedRequest) error {
		req, err := http.NewRequestWithContext(ctx, entry.Method, entry.URL, bytes.NewReader(entry.Body))
		if err != nil {
			return err
		}
		req.Header = entry.Header.Clone()

		resp, err := c.Do(req)
		if resp != nil {
			drainBody(resp)
		}
		return err
	})
}

// Queue exposes the offline queue for observability.
func (c *Client) Queue() *OfflineQueue {
	return c.queue
}

// Registry exposes the breaker registry for the admin surface.
func (c *Client) Registry() *breakerService.Registry {
	return c.registry
}

// Coordinator exposes the refresh coordinator, nil when auth is not wired.
func (c *Client) Coordinator() *refresh.Coordinator {
	return c.coordinator
}

// HTTPClient exposes the assembled http.Client for callers that need the
// raw transport behavior, e.g. reverse proxies.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

func (c *Client) shouldQueue(req *http.Request) bool {
	if !c.cfg.QueueEnabled {
		return false
	}
	return idempotentMethod(req.Method) || queueableFromContext(req.Context())
}

func (c *Client) record(ctx context.Context, endpoint, status string, start time.Time) {
	c.metrics.RecordOperation(ctx, "pipeline", "request", status)
	c.metrics.RecordDuration(ctx, "pipeline", "request", time.Since(start), status)
	c.logger.Debug("request completed",
		"endpoint", endpoint,
		"status", status,
		"duration", time.Since(start),
	)
}

// queueHeader strips derived headers before a request enters the offline
// queue. Auth tokens and signature envelopes would be stale by replay time;
// the pipeline re-derives them when the replay passes through.
func queueHeader(h http.Header) http.Header {
	clean := h.Clone()
	clean.Del("Authorization")
	clean.Del(signingDomain.HeaderSignature)
	clean.Del(signingDomain.HeaderTimestamp)
	clean.Del(signingDomain.HeaderNonce)
	clean.Del(signingDomain.HeaderSecretID)
	clean.Del(HeaderCertValidation)
	clean.Del(HeaderCertValidationMethod)
	return clean
}

// unwrapURLError strips the url.Error envelope http.Client wraps transport
// errors in, so classified errors from the pipeline keep their category.
func unwrapURLError(err error) error {
	var urlErr *url.Error
	if apperrors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
