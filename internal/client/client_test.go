package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	breakerDomain "github.com/rentora/apiguard/internal/breaker/domain"
	signingDomain "github.com/rentora/apiguard/internal/signing/domain"
	signingRepository "github.com/rentora/apiguard/internal/signing/repository"
	signingService "github.com/rentora/apiguard/internal/signing/service"
	tokenDomain "github.com/rentora/apiguard/internal/token/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func stubResponse(status int) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader("")),
	}
}

// staticTokens is a TokenSource returning a fixed token.
type staticTokens struct {
	token string
	err   error
}

func (s *staticTokens) AccessToken(ctx context.Context) (string, error) {
	return s.token, s.err
}

// stubValidator is a TokenValidator with a fixed verdict.
type stubValidator struct {
	valid bool
}

func (v *stubValidator) Validate(
	ctx context.Context, token string, typ tokenDomain.Type,
) (*tokenDomain.ValidationResult, error) {
	return &tokenDomain.ValidationResult{Valid: v.valid, Method: tokenDomain.MethodDecode}, nil
}

func newEnvelopeSigner(t *testing.T, enabled bool) signingService.Signer {
	t.Helper()

	logger := testLogger()
	manager, err := signingService.NewSecretManager(
		context.Background(),
		signingRepository.NewMemorySecretRepository(),
		signingService.ManagerConfig{},
		logger,
	)
	require.NoError(t, err)
	t.Cleanup(manager.Close)

	return signingService.NewSigner(
		manager,
		signingService.NewNonceRegistry(time.Minute),
		signingService.SignerConfig{Enabled: enabled},
		logger,
	)
}

func fastRetry() RetryConfig {
	return RetryConfig{BackoffBase: time.Millisecond}
}

func TestClient_GetSignedVerifiedEndToEnd(t *testing.T) {
	signer := newEnvelopeSigner(t, true)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		assert.Equal(t, "Bearer token-abc", r.Header.Get("Authorization"))
		assert.Equal(t, "verified", r.Header.Get(HeaderCertValidation))

		sig, err := signingDomain.ParseSignature(
			r.Header.Get(signingDomain.HeaderSignature),
			r.Header.Get(signingDomain.HeaderTimestamp),
			r.Header.Get(signingDomain.HeaderNonce),
			r.Header.Get(signingDomain.HeaderSecretID),
		)
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		if err := signer.Verify(r.Context(), r.Method, r.URL.RequestURI(), r.Header, body, sig); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := New(
		Config{Retry: fastRetry()},
		Deps{
			Signer: signer,
			Tokens: &staticTokens{token: "token-abc"},
			Logger: testLogger(),
		},
	)

	resp, err := c.Get(context.Background(), server.URL+"/v1/listings?city=lisbon")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClient_DoReturnsResponseAlongsideClassifiedError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"missing field"}`))
	}))
	defer server.Close()

	c := New(Config{Retry: fastRetry()}, Deps{Logger: testLogger()})

	resp, err := c.Get(context.Background(), server.URL+"/v1/bookings")
	require.Error(t, err)
	require.NotNil(t, resp, "the response must stay readable alongside the error")
	defer resp.Body.Close()

	var classified *ClassifiedError
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, CategoryValidation, classified.Category)
	assert.Equal(t, http.StatusUnprocessableEntity, classified.StatusCode)
	assert.False(t, classified.Retryable)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "missing field")
}

func TestClient_ServerErrorsRetriedThenSurfaced(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := New(Config{Retry: fastRetry()}, Deps{Logger: testLogger()})

	resp, err := c.Get(context.Background(), server.URL+"/v1/listings")
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()

	var classified *ClassifiedError
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, CategoryServer, classified.Category)
	// Initial attempt plus the server-error retry budget.
	assert.Equal(t, int64(1+DefaultMaxServerRetries), calls.Load())
}

func TestClient_BreakerOpensAndBlocks(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := New(Config{Retry: fastRetry()}, Deps{Logger: testLogger()})

	// Each logical request records one breaker failure regardless of retries.
	for i := 0; i < 5; i++ {
		resp, err := c.Get(context.Background(), server.URL+"/v1/payments")
		require.Error(t, err)
		if resp != nil {
			resp.Body.Close()
		}
	}
	callsBefore := calls.Load()

	resp, err := c.Get(context.Background(), server.URL+"/v1/payments")
	require.Error(t, err)
	require.Nil(t, resp)

	var classified *ClassifiedError
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, CategoryBlocked, classified.Category)
	assert.Equal(t, callsBefore, calls.Load(), "blocked requests must not reach the transport")

	snapshots := c.Registry().Snapshots()
	require.Len(t, snapshots, 1)
	assert.Equal(t, "/v1/payments", snapshots[0].Endpoint)
	assert.Equal(t, breakerDomain.StateOpen, snapshots[0].State)
}

func TestClient_QueuesConnectivityFailureAndReplays(t *testing.T) {
	var offline atomic.Bool
	offline.Store(true)
	var delivered atomic.Int64

	base := RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if offline.Load() {
			return nil, errors.New("dial tcp: connection refused")
		}
		delivered.Add(1)
		return stubResponse(http.StatusOK), nil
	})

	c := New(
		Config{Retry: fastRetry(), QueueEnabled: true},
		Deps{Base: base, Logger: testLogger()},
	)

	resp, err := c.Get(context.Background(), "https://api.example.com/v1/listings")
	require.Error(t, err)
	require.Nil(t, resp)

	var classified *ClassifiedError
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, CategoryNetwork, classified.Category)
	require.Equal(t, 1, c.Queue().Len())

	offline.Store(false)
	replayed, requeued := c.ReplayQueued(context.Background())
	assert.Equal(t, 1, replayed)
	assert.Equal(t, 0, requeued)
	assert.Equal(t, 0, c.Queue().Len())
	assert.Equal(t, int64(1), delivered.Load())
}

func TestClient_NonIdempotentRequestsNeedTheQueueableMarker(t *testing.T) {
	base := RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("dial tcp: connection refused")
	})
	c := New(
		Config{Retry: fastRetry(), QueueEnabled: true},
		Deps{Base: base, Logger: testLogger()},
	)

	_, err := c.Post(context.Background(), "https://api.example.com/v1/bookings", []byte(`{}`))
	require.Error(t, err)
	assert.Equal(t, 0, c.Queue().Len(), "a plain POST must not be replayed blindly")

	ctx := WithQueueable(context.Background())
	_, err = c.Post(ctx, "https://api.example.com/v1/bookings", []byte(`{}`))
	require.Error(t, err)
	assert.Equal(t, 1, c.Queue().Len())
}

func TestClient_QueueDisabledNeverCaptures(t *testing.T) {
	base := RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("dial tcp: connection refused")
	})
	c := New(Config{Retry: fastRetry()}, Deps{Base: base, Logger: testLogger()})

	_, err := c.Get(context.Background(), "https://api.example.com/v1/listings")
	require.Error(t, err)
	assert.Equal(t, 0, c.Queue().Len())
}

func TestClient_PostSendsJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.JSONEq(t, `{"property_id":"prop-42"}`, string(body))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	c := New(Config{Retry: fastRetry()}, Deps{Logger: testLogger()})

	resp, err := c.Post(context.Background(), server.URL+"/v1/bookings", []byte(`{"property_id":"prop-42"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestClient_QueuedReplayDropsStaleDerivedHeaders(t *testing.T) {
	captured := make(chan http.Header, 1)
	var offline atomic.Bool
	offline.Store(true)

	base := RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if offline.Load() {
			return nil, errors.New("dial tcp: connection refused")
		}
		captured <- req.Header.Clone()
		return stubResponse(http.StatusOK), nil
	})

	c := New(
		Config{Retry: fastRetry(), QueueEnabled: true},
		Deps{Base: base, Tokens: &staticTokens{token: "token-after-replay"}, Logger: testLogger()},
	)

	_, err := c.Get(context.Background(), "https://api.example.com/v1/listings")
	require.Error(t, err)
	require.Equal(t, 1, c.Queue().Len())

	// The queue must not have frozen the first attempt's bearer token.
	entry := c.Queue().Snapshot()[0]
	assert.Empty(t, entry.Header.Get("Authorization"))

	offline.Store(false)
	replayed, _ := c.ReplayQueued(context.Background())
	require.Equal(t, 1, replayed)

	header := <-captured
	assert.Equal(t, "Bearer token-after-replay", header.Get("Authorization"))
}
