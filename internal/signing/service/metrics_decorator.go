package service

import (
	"context"
	"net/http"
	"time"

	"github.com/rentora/apiguard/internal/metrics"
	signingDomain "github.com/rentora/apiguard/internal/signing/domain"
)

// signerWithMetrics decorates Signer with metrics instrumentation.
type signerWithMetrics struct {
	next    Signer
	metrics metrics.BusinessMetrics
}

// NewSignerWithMetrics wraps a Signer with metrics recording.
func NewSignerWithMetrics(signer Signer, m metrics.BusinessMetrics) Signer {
	return &signerWithMetrics{
		next:    signer,
		metrics: m,
	}
}

// Sign records metrics for signature generation.
func (s *signerWithMetrics) Sign(
	ctx context.Context,
	method string,
	url string,
	headers http.Header,
	body []byte,
) (*signingDomain.Signature, error) {
	start := time.Now()
	sig, err := s.next.Sign(ctx, method, url, headers, body)

	status := "success"
	if err != nil {
		status = "error"
	}

	s.metrics.RecordOperation(ctx, "signing", "sign", status)
	s.metrics.RecordDuration(ctx, "signing", "sign", time.Since(start), status)

	return sig, err
}

// Verify records metrics for signature verification.
func (s *signerWithMetrics) Verify(
	ctx context.Context,
	method string,
	url string,
	headers http.Header,
	body []byte,
	sig *signingDomain.Signature,
) error {
	start := time.Now()
	err := s.next.Verify(ctx, method, url, headers, body, sig)

	status := "success"
	if err != nil {
		status = "error"
	}

	s.metrics.RecordOperation(ctx, "signing", "verify", status)
	s.metrics.RecordDuration(ctx, "signing", "verify", time.Since(start), status)

	return err
}

// Enabled passes through to the wrapped signer.
func (s *signerWithMetrics) Enabled() bool {
	return s.next.Enabled()
}
