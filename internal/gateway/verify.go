// Package gateway assembles the inbound edge: signature verification for
// incoming requests, an operator admin API and resilient forwarding to the
// configured upstream backend.
package gateway

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/rentora/apiguard/internal/errors"
	"github.com/rentora/apiguard/internal/httputil"
	signingDomain "github.com/rentora/apiguard/internal/signing/domain"
	signingService "github.com/rentora/apiguard/internal/signing/service"
)

// VerificationMiddleware authenticates inbound requests against their
// signature envelope before they reach the proxy. With signing disabled the
// middleware passes everything through, mirroring the signer's fail-open
// contract.
func VerificationMiddleware(signer signingService.Signer, logger *slog.Logger) gin.HandlerFunc {
	log := logger.With("component", "verification")

	return func(c *gin.Context) {
		if signer == nil || !signer.Enabled() {
			c.Next()
			return
		}

		header := c.Request.Header
		value := header.Get(signingDomain.HeaderSignature)
		timestamp := header.Get(signingDomain.HeaderTimestamp)
		nonce := header.Get(signingDomain.HeaderNonce)
		secretID := header.Get(signingDomain.HeaderSecretID)
		if value == "" || timestamp == "" || nonce == "" || secretID == "" {
			log.Warn("unsigned request rejected",
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
			)
			abortUnauthorized(c, "signature_required", "request signature headers are required")
			return
		}

		body, err := readBody(c.Request)
		if err != nil {
			httputil.HandleBadRequestGin(c, err, log)
			c.Abort()
			return
		}

		sig, err := signingDomain.ParseSignature(value, timestamp, nonce, secretID)
		if err != nil {
			abortUnauthorized(c, verificationCode(err), "request signature verification failed")
			return
		}

		err = signer.Verify(c.Request.Context(), c.Request.Method, c.Request.URL.RequestURI(), header, body, sig)
		if err != nil {
			if !apperrors.Is(err, apperrors.ErrUnauthorized) {
				// Secret lookup infrastructure failed, not the caller.
				httputil.HandleErrorGin(c, err, log)
				c.Abort()
				return
			}
			log.Warn("signature verification failed",
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"error", err,
			)
			abortUnauthorized(c, verificationCode(err), "request signature verification failed")
			return
		}

		c.Next()
	}
}

// verificationCode maps a verification failure to its wire error code.
func verificationCode(err error) string {
	switch {
	case apperrors.Is(err, signingDomain.ErrNonceReplayed):
		return "replay_detected"
	case apperrors.Is(err, signingDomain.ErrUnknownSecret):
		return "unknown_secret"
	case apperrors.Is(err, signingDomain.ErrTimestampExpired):
		return "timestamp_expired"
	case apperrors.Is(err, signingDomain.ErrTimestampInvalid):
		return "invalid_timestamp"
	default:
		return "invalid_signature"
	}
}

func abortUnauthorized(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, httputil.ErrorResponse{
		Error:   code,
		Message: message,
	})
}

// readBody buffers the request body for verification and restores it so the
// proxy can forward it afterwards.
func readBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	_ = req.Body.Close()

	req.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
