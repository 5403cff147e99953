package service

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"

	signingDomain "github.com/rentora/apiguard/internal/signing/domain"
)

// DefaultTimestampWindow bounds accepted clock skew between signer and verifier.
const DefaultTimestampWindow = 5 * time.Minute

// signingKeyInfo versions the HKDF derivation so the scheme can change
// without reusing MAC keys.
const signingKeyInfo = "request-signing-v1"

// SignerConfig controls signing behavior.
type SignerConfig struct {
	Enabled         bool
	TimestampWindow time.Duration
}

type signer struct {
	manager SecretManager
	nonces  NonceRegistry
	cfg     SignerConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewSigner creates a Signer over the given secret manager and nonce registry.
func NewSigner(
	manager SecretManager,
	nonces NonceRegistry,
	cfg SignerConfig,
	logger *slog.Logger,
) Signer {
	if cfg.TimestampWindow <= 0 {
		cfg.TimestampWindow = DefaultTimestampWindow
	}
	return &signer{
		manager: manager,
		nonces:  nonces,
		cfg:     cfg,
		logger:  logger.With("component", "signer"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Enabled reports whether signing is active.
func (s *signer) Enabled() bool {
	return s.cfg.Enabled
}

// Sign canonicalizes the request and produces a signature envelope with the
// active secret. A due rotation runs first, so signing continues seamlessly
// across rotation boundaries.
func (s *signer) Sign(
	ctx context.Context,
	method string,
	url string,
	headers http.Header,
	body []byte,
) (*signingDomain.Signature, error) {
	if !s.cfg.Enabled {
		return nil, signingDomain.ErrSigningDisabled
	}

	if _, err := s.manager.RotateIfNeeded(ctx); err != nil {
		// A failed rotation must not block signing while an active secret
		// remains usable.
		s.logger.Warn("secret rotation failed, signing with current secret", "error", err)
	}

	secret, err := s.manager.Active(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := s.now().UnixMilli()
	nonce, err := generateNonce(timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	value, err := s.computeSignature(method, url, headers, body, timestamp, nonce, secret)
	if err != nil {
		return nil, err
	}

	return &signingDomain.Signature{
		Value:     value,
		Timestamp: timestamp,
		Nonce:     nonce,
		SecretID:  secret.ID,
	}, nil
}

// Verify recomputes the signature and checks the envelope. Checks run in a
// fixed order and the first failure wins; the nonce registry is only written
// when every check passed, so failed attempts never poison future requests.
func (s *signer) Verify(
	ctx context.Context,
	method string,
	url string,
	headers http.Header,
	body []byte,
	sig *signingDomain.Signature,
) error {
	if !s.cfg.Enabled {
		// Fail open: with signing off, requests pass through unverified.
		return nil
	}

	if sig == nil || sig.Timestamp <= 0 {
		return signingDomain.ErrTimestampInvalid
	}

	now := s.now().UnixMilli()
	skew := now - sig.Timestamp
	if skew < 0 {
		skew = -skew
	}
	if skew > s.cfg.TimestampWindow.Milliseconds() {
		return signingDomain.ErrTimestampExpired
	}

	if s.nonces.Seen(sig.Nonce) {
		s.logger.Warn("replayed nonce rejected", "nonce", sig.Nonce, "secret_id", idPrefix(sig.SecretID))
		return signingDomain.ErrNonceReplayed
	}

	secret, err := s.manager.Lookup(ctx, sig.SecretID)
	if err != nil {
		return err
	}

	expected, err := s.computeSignature(method, url, headers, body, sig.Timestamp, sig.Nonce, secret)
	if err != nil {
		return err
	}

	if !hmac.Equal([]byte(expected), []byte(sig.Value)) {
		return signingDomain.ErrSignatureMismatch
	}

	// Consume the nonce last. Add is atomic, so of two concurrent
	// verifications of the same envelope exactly one passes.
	if !s.nonces.MarkFirstUse(sig.Nonce) {
		return signingDomain.ErrNonceReplayed
	}
	return nil
}

// computeSignature derives the MAC key and signs the canonical request.
func (s *signer) computeSignature(
	method string,
	url string,
	headers http.Header,
	body []byte,
	timestamp int64,
	nonce string,
	secret *signingDomain.Secret,
) (string, error) {
	signingKey, err := deriveSigningKey(secret.Key)
	if err != nil {
		return "", fmt.Errorf("failed to derive signing key: %w", err)
	}
	defer signingDomain.Zero(signingKey)

	canonical := canonicalRequest(method, url, headers, body, timestamp, nonce)

	mac := hmac.New(sha256.New, signingKey)
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// deriveSigningKey uses HKDF-SHA256 to derive a 32-byte MAC key from the
// secret, separating signing use from any other use of the same material.
func deriveSigningKey(secretKey []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, secretKey, nil, []byte(signingKeyInfo))

	signingKey := make([]byte, 32)
	if _, err := io.ReadFull(reader, signingKey); err != nil {
		return nil, err
	}
	return signingKey, nil
}

// canonicalRequest builds the deterministic byte representation both sides
// sign. Format, newline-joined: uppercased method, lowercased URL, the
// canonical header block, the body, the millisecond timestamp, the nonce.
func canonicalRequest(
	method string,
	url string,
	headers http.Header,
	body []byte,
	timestamp int64,
	nonce string,
) string {
	parts := []string{
		strings.ToUpper(method),
		strings.ToLower(url),
		canonicalHeaders(headers),
		string(body),
		strconv.FormatInt(timestamp, 10),
		nonce,
	}
	return strings.Join(parts, "\n")
}

// canonicalHeaders renders the signed subset of headers as "name:value"
// lines sorted by lowercased name. Only custom x- headers, content-type and
// authorization participate; the envelope headers are excluded so the
// signature never covers itself, and proxy-injected x- headers are excluded
// so intermediaries cannot invalidate it.
func canonicalHeaders(headers http.Header) string {
	var lines []string
	for name := range headers {
		lower := strings.ToLower(name)
		if !isSignedHeader(lower) {
			continue
		}
		value := strings.TrimSpace(headers.Get(name))
		lines = append(lines, lower+":"+value)
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

func isSignedHeader(lowerName string) bool {
	switch lowerName {
	case strings.ToLower(signingDomain.HeaderSignature),
		strings.ToLower(signingDomain.HeaderTimestamp),
		strings.ToLower(signingDomain.HeaderNonce),
		strings.ToLower(signingDomain.HeaderSecretID):
		return false
	case "x-request-id", "x-forwarded-for", "x-forwarded-proto", "x-forwarded-host":
		// Proxies and tracing middleware inject these after signing, so they
		// cannot participate in the canonical form.
		return false
	case "content-type", "authorization":
		return true
	}
	return strings.HasPrefix(lowerName, "x-")
}

// generateNonce builds a single-use value of the form
// "<millisecond timestamp>-<32 hex chars>".
func generateNonce(timestamp int64) (string, error) {
	random := make([]byte, 16)
	if _, err := rand.Read(random); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d-%s", timestamp, hex.EncodeToString(random)), nil
}
