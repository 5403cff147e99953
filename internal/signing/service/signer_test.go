package service

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/rentora/apiguard/internal/errors"
	signingDomain "github.com/rentora/apiguard/internal/signing/domain"
	"github.com/rentora/apiguard/internal/signing/repository"
)

var nonceFormat = regexp.MustCompile(`^\d+-[0-9a-f]{32}$`)

func newSignerStack(t *testing.T, managerCfg ManagerConfig, signerCfg SignerConfig) (*signer, SecretManager) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager, err := NewSecretManager(context.Background(), repository.NewMemorySecretRepository(), managerCfg, logger)
	require.NoError(t, err)
	t.Cleanup(manager.Close)

	s := NewSigner(manager, NewNonceRegistry(time.Minute), signerCfg, logger)
	return s.(*signer), manager
}

func sampleHeaders() http.Header {
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("Authorization", "Bearer token-123")
	headers.Set("X-App-Version", "4.2.0")
	return headers
}

func TestSigner_SignVerifyRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newSignerStack(t, ManagerConfig{}, SignerConfig{Enabled: true})

	headers := sampleHeaders()
	body := []byte(`{"property_id":"prop-42"}`)

	sig, err := s.Sign(ctx, "POST", "https://api.example.com/v1/bookings", headers, body)
	require.NoError(t, err)

	err = s.Verify(ctx, "POST", "https://api.example.com/v1/bookings", headers, body, sig)
	assert.NoError(t, err)
}

func TestSigner_EnvelopeShape(t *testing.T) {
	ctx := context.Background()
	s, manager := newSignerStack(t, ManagerConfig{}, SignerConfig{Enabled: true})

	sig, err := s.Sign(ctx, "GET", "https://api.example.com/v1/listings", http.Header{}, nil)
	require.NoError(t, err)

	assert.Regexp(t, nonceFormat, sig.Nonce)
	assert.Regexp(t, `^[0-9a-f]{64}$`, sig.Value)
	assert.Positive(t, sig.Timestamp)

	active, err := manager.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, active.ID, sig.SecretID)
}

func TestSigner_ReplayRejected(t *testing.T) {
	ctx := context.Background()
	s, _ := newSignerStack(t, ManagerConfig{}, SignerConfig{Enabled: true})

	headers := sampleHeaders()
	sig, err := s.Sign(ctx, "GET", "https://api.example.com/v1/listings", headers, nil)
	require.NoError(t, err)

	require.NoError(t, s.Verify(ctx, "GET", "https://api.example.com/v1/listings", headers, nil, sig))

	err = s.Verify(ctx, "GET", "https://api.example.com/v1/listings", headers, nil, sig)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, signingDomain.ErrNonceReplayed))
}

func TestSigner_TamperingRejected(t *testing.T) {
	ctx := context.Background()
	s, _ := newSignerStack(t, ManagerConfig{}, SignerConfig{Enabled: true})

	headers := sampleHeaders()
	body := []byte(`{"amount":100}`)
	sig, err := s.Sign(ctx, "POST", "https://api.example.com/v1/payments", headers, body)
	require.NoError(t, err)

	tamperedHeaders := sampleHeaders()
	tamperedHeaders.Set("X-App-Version", "0.0.1")

	tests := []struct {
		name    string
		method  string
		url     string
		headers http.Header
		body    []byte
	}{
		{name: "body", method: "POST", url: "https://api.example.com/v1/payments", headers: headers, body: []byte(`{"amount":999}`)},
		{name: "method", method: "DELETE", url: "https://api.example.com/v1/payments", headers: headers, body: body},
		{name: "url", method: "POST", url: "https://api.example.com/v1/refunds", headers: headers, body: body},
		{name: "signed header", method: "POST", url: "https://api.example.com/v1/payments", headers: tamperedHeaders, body: body},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Verify(ctx, tt.method, tt.url, tt.headers, tt.body, sig)
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, signingDomain.ErrSignatureMismatch))
		})
	}
}

func TestSigner_CanonicalizationNormalizesCase(t *testing.T) {
	ctx := context.Background()
	s, _ := newSignerStack(t, ManagerConfig{}, SignerConfig{Enabled: true})

	headers := sampleHeaders()
	sig, err := s.Sign(ctx, "post", "HTTPS://API.Example.COM/V1/Listings", headers, nil)
	require.NoError(t, err)

	err = s.Verify(ctx, "POST", "https://api.example.com/v1/listings", headers, nil, sig)
	assert.NoError(t, err)
}

func TestSigner_EnvelopeHeadersNotCovered(t *testing.T) {
	ctx := context.Background()
	s, _ := newSignerStack(t, ManagerConfig{}, SignerConfig{Enabled: true})

	headers := sampleHeaders()
	sig, err := s.Sign(ctx, "GET", "https://api.example.com/v1/listings", headers, nil)
	require.NoError(t, err)

	// On the wire the envelope rides in headers; verification must not be
	// affected by their presence.
	withEnvelope := sampleHeaders()
	withEnvelope.Set(signingDomain.HeaderSignature, sig.Value)
	withEnvelope.Set(signingDomain.HeaderTimestamp, sig.TimestampString())
	withEnvelope.Set(signingDomain.HeaderNonce, sig.Nonce)
	withEnvelope.Set(signingDomain.HeaderSecretID, sig.SecretID)

	err = s.Verify(ctx, "GET", "https://api.example.com/v1/listings", withEnvelope, nil, sig)
	assert.NoError(t, err)
}

func TestSigner_UnsignedHeadersIgnored(t *testing.T) {
	ctx := context.Background()
	s, _ := newSignerStack(t, ManagerConfig{}, SignerConfig{Enabled: true})

	headers := sampleHeaders()
	sig, err := s.Sign(ctx, "GET", "https://api.example.com/v1/listings", headers, nil)
	require.NoError(t, err)

	// Transport-level headers outside the signed subset may differ freely.
	changed := sampleHeaders()
	changed.Set("Accept", "application/json")
	changed.Set("User-Agent", "some-proxy/1.0")

	err = s.Verify(ctx, "GET", "https://api.example.com/v1/listings", changed, nil, sig)
	assert.NoError(t, err)
}

func TestSigner_TimestampWindow(t *testing.T) {
	ctx := context.Background()
	s, _ := newSignerStack(t, ManagerConfig{}, SignerConfig{Enabled: true, TimestampWindow: 5 * time.Minute})

	start := time.Now().UTC()
	s.now = func() time.Time { return start }

	headers := sampleHeaders()
	sig, err := s.Sign(ctx, "GET", "https://api.example.com/v1/listings", headers, nil)
	require.NoError(t, err)

	t.Run("inside window", func(t *testing.T) {
		s.now = func() time.Time { return start.Add(4 * time.Minute) }
		assert.NoError(t, s.Verify(ctx, "GET", "https://api.example.com/v1/listings", headers, nil, sig))
	})

	t.Run("too old", func(t *testing.T) {
		s.now = func() time.Time { return start.Add(6 * time.Minute) }
		err := s.Verify(ctx, "GET", "https://api.example.com/v1/listings", headers, nil, sig)
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, signingDomain.ErrTimestampExpired))
	})

	t.Run("too far in the future", func(t *testing.T) {
		s.now = func() time.Time { return start.Add(-6 * time.Minute) }
		err := s.Verify(ctx, "GET", "https://api.example.com/v1/listings", headers, nil, sig)
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, signingDomain.ErrTimestampExpired))
	})
}

func TestSigner_FailedVerifyKeepsNonceUsable(t *testing.T) {
	ctx := context.Background()
	s, _ := newSignerStack(t, ManagerConfig{}, SignerConfig{Enabled: true})

	headers := sampleHeaders()
	body := []byte(`{"amount":100}`)
	sig, err := s.Sign(ctx, "POST", "https://api.example.com/v1/payments", headers, body)
	require.NoError(t, err)

	err = s.Verify(ctx, "POST", "https://api.example.com/v1/payments", headers, []byte(`{"amount":999}`), sig)
	require.Error(t, err)

	// The mismatch must not have consumed the nonce.
	err = s.Verify(ctx, "POST", "https://api.example.com/v1/payments", headers, body, sig)
	assert.NoError(t, err)
}

func TestSigner_UnknownSecretRejected(t *testing.T) {
	ctx := context.Background()
	s, _ := newSignerStack(t, ManagerConfig{}, SignerConfig{Enabled: true})

	headers := sampleHeaders()
	sig, err := s.Sign(ctx, "GET", "https://api.example.com/v1/listings", headers, nil)
	require.NoError(t, err)

	forged := *sig
	forged.SecretID = "ffffffffffffffffffffffffffffffff"

	err = s.Verify(ctx, "GET", "https://api.example.com/v1/listings", headers, nil, &forged)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, signingDomain.ErrUnknownSecret))

	// The failed attempt left the genuine envelope verifiable.
	assert.NoError(t, s.Verify(ctx, "GET", "https://api.example.com/v1/listings", headers, nil, sig))
}

func TestSigner_VerifyAcrossRotation(t *testing.T) {
	ctx := context.Background()
	s, manager := newSignerStack(t, ManagerConfig{}, SignerConfig{Enabled: true})

	headers := sampleHeaders()
	sig, err := s.Sign(ctx, "GET", "https://api.example.com/v1/listings", headers, nil)
	require.NoError(t, err)

	_, err = manager.Rotate(ctx)
	require.NoError(t, err)

	// In-flight requests signed with the previous generation still verify.
	assert.NoError(t, s.Verify(ctx, "GET", "https://api.example.com/v1/listings", headers, nil, sig))
}

func TestSigner_EvictedSecretRejected(t *testing.T) {
	ctx := context.Background()
	s, manager := newSignerStack(t, ManagerConfig{RetainedSecrets: 2}, SignerConfig{Enabled: true})

	headers := sampleHeaders()
	sig, err := s.Sign(ctx, "GET", "https://api.example.com/v1/listings", headers, nil)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := manager.Rotate(ctx)
		require.NoError(t, err)
	}

	err = s.Verify(ctx, "GET", "https://api.example.com/v1/listings", headers, nil, sig)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, signingDomain.ErrUnknownSecret))
}

func TestSigner_SignRotatesStaleSecret(t *testing.T) {
	ctx := context.Background()
	s, manager := newSignerStack(t, ManagerConfig{RotationInterval: 24 * time.Hour}, SignerConfig{Enabled: true})

	before, err := manager.Active(ctx)
	require.NoError(t, err)

	stale := time.Now().UTC().Add(25 * time.Hour)
	s.now = func() time.Time { return stale }
	manager.(*secretManager).now = func() time.Time { return stale }

	sig, err := s.Sign(ctx, "GET", "https://api.example.com/v1/listings", sampleHeaders(), nil)
	require.NoError(t, err)
	assert.NotEqual(t, before.ID, sig.SecretID)
}

func TestSigner_Disabled(t *testing.T) {
	ctx := context.Background()
	s, _ := newSignerStack(t, ManagerConfig{}, SignerConfig{Enabled: false})

	assert.False(t, s.Enabled())

	_, err := s.Sign(ctx, "GET", "https://api.example.com/v1/listings", sampleHeaders(), nil)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, signingDomain.ErrSigningDisabled))

	// Verification fails open so traffic keeps flowing while signing is off.
	bogus := &signingDomain.Signature{Value: "junk", Timestamp: 1, Nonce: "junk", SecretID: "junk"}
	assert.NoError(t, s.Verify(ctx, "GET", "https://api.example.com/v1/listings", sampleHeaders(), nil, bogus))
}

func TestSigner_MissingEnvelope(t *testing.T) {
	ctx := context.Background()
	s, _ := newSignerStack(t, ManagerConfig{}, SignerConfig{Enabled: true})

	err := s.Verify(ctx, "GET", "https://api.example.com/v1/listings", sampleHeaders(), nil, nil)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, signingDomain.ErrTimestampInvalid))

	err = s.Verify(ctx, "GET", "https://api.example.com/v1/listings", sampleHeaders(), nil, &signingDomain.Signature{})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, signingDomain.ErrTimestampInvalid))
}

func TestSigner_ConcurrentVerifySingleSuccess(t *testing.T) {
	ctx := context.Background()
	s, _ := newSignerStack(t, ManagerConfig{}, SignerConfig{Enabled: true})

	headers := sampleHeaders()
	sig, err := s.Sign(ctx, "GET", "https://api.example.com/v1/listings", headers, nil)
	require.NoError(t, err)

	var successes atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Verify(ctx, "GET", "https://api.example.com/v1/listings", headers, nil, sig) == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), successes.Load())
}
