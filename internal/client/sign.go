package client

import (
	"log/slog"
	"net/http"
	"strings"

	apperrors "github.com/rentora/apiguard/internal/errors"
	signingDomain "github.com/rentora/apiguard/internal/signing/domain"
	signingService "github.com/rentora/apiguard/internal/signing/service"
)

// signingTransport attaches the HMAC signature envelope to outbound requests.
//
// It sits below the retry layer on purpose: every retry attempt passes
// through here again and gets a fresh timestamp and nonce, so a retried
// request is never rejected as a replay of its own first attempt.
//
// The signed URL is the request URI (path and query), not the absolute URL:
// gateways and TLS terminators rewrite scheme and host, and the signature
// must survive that.
type signingTransport struct {
	next          http.RoundTripper
	signer        signingService.Signer
	unsignedPaths []string
	logger        *slog.Logger
}

func (t *signingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.signer == nil || t.isUnsigned(req.URL.Path) {
		return t.next.RoundTrip(req)
	}

	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}

	sig, err := t.signer.Sign(req.Context(), req.Method, req.URL.RequestURI(), req.Header, body)
	if err != nil {
		if !apperrors.Is(err, signingDomain.ErrSigningDisabled) {
			// Degrade to an unsigned request rather than failing it; the
			// backend decides whether unsigned traffic is acceptable.
			t.logger.Warn("request signing failed, sending unsigned",
				"endpoint", endpointKey(req),
				"error", err,
			)
		}
		return t.next.RoundTrip(req)
	}

	req.Header.Set(signingDomain.HeaderSignature, sig.Value)
	req.Header.Set(signingDomain.HeaderTimestamp, sig.TimestampString())
	req.Header.Set(signingDomain.HeaderNonce, sig.Nonce)
	req.Header.Set(signingDomain.HeaderSecretID, sig.SecretID)
	return t.next.RoundTrip(req)
}

func (t *signingTransport) isUnsigned(path string) bool {
	for _, prefix := range t.unsignedPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
