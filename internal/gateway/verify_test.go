package gateway

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	signingDomain "github.com/rentora/apiguard/internal/signing/domain"
	signingService "github.com/rentora/apiguard/internal/signing/service"
)

// newVerifiedRouter wires the middleware in front of plain echo handlers.
func newVerifiedRouter(signer signingService.Signer) *gin.Engine {
	router := gin.New()
	router.Use(VerificationMiddleware(signer, discardLogger()))
	router.GET("/v1/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	router.POST("/v1/echo", func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		c.String(http.StatusOK, string(body))
	})
	return router
}

func TestVerificationMiddleware_ValidSignaturePasses(t *testing.T) {
	signer, _, _ := newTestSigner(t, true)
	router := newVerifiedRouter(signer)

	body := []byte(`{"guests":2}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/echo", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	signEnvelope(t, signer, req, body)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	// The handler still sees the full body after verification buffered it.
	assert.Equal(t, string(body), w.Body.String())
}

func TestVerificationMiddleware_MissingHeadersRejected(t *testing.T) {
	signer, _, _ := newTestSigner(t, true)
	router := newVerifiedRouter(signer)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/ping", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "signature_required")
}

func TestVerificationMiddleware_PartialHeadersRejected(t *testing.T) {
	signer, _, _ := newTestSigner(t, true)
	router := newVerifiedRouter(signer)

	req := httptest.NewRequest(http.MethodGet, "/v1/ping", nil)
	req.Header.Set(signingDomain.HeaderSignature, "deadbeef")
	req.Header.Set(signingDomain.HeaderTimestamp, strconv.FormatInt(time.Now().UnixMilli(), 10))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "signature_required")
}

func TestVerificationMiddleware_ReplayRejected(t *testing.T) {
	signer, _, _ := newTestSigner(t, true)
	router := newVerifiedRouter(signer)

	body := []byte(`{"guests":2}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/echo", bytes.NewReader(body))
	signEnvelope(t, signer, req, body)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// Re-send the identical envelope: the nonce was consumed.
	replay := httptest.NewRequest(http.MethodPost, "/v1/echo", bytes.NewReader(body))
	replay.Header = req.Header.Clone()

	w = httptest.NewRecorder()
	router.ServeHTTP(w, replay)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "replay_detected")
}

func TestVerificationMiddleware_TamperedBodyRejected(t *testing.T) {
	signer, _, _ := newTestSigner(t, true)
	router := newVerifiedRouter(signer)

	signed := []byte(`{"guests":2}`)
	tampered := []byte(`{"guests":9}`)

	req := httptest.NewRequest(http.MethodPost, "/v1/echo", bytes.NewReader(tampered))
	signEnvelope(t, signer, req, signed)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_signature")
}

func TestVerificationMiddleware_UnknownSecretRejected(t *testing.T) {
	signer, _, _ := newTestSigner(t, true)
	router := newVerifiedRouter(signer)

	req := httptest.NewRequest(http.MethodGet, "/v1/ping", nil)
	signEnvelope(t, signer, req, nil)
	req.Header.Set(signingDomain.HeaderSecretID, strings.Repeat("ab", 16))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "unknown_secret")
}

func TestVerificationMiddleware_ExpiredTimestampRejected(t *testing.T) {
	signer, _, _ := newTestSigner(t, true)
	router := newVerifiedRouter(signer)

	req := httptest.NewRequest(http.MethodGet, "/v1/ping", nil)
	signEnvelope(t, signer, req, nil)
	stale := time.Now().Add(-10 * time.Minute).UnixMilli()
	req.Header.Set(signingDomain.HeaderTimestamp, strconv.FormatInt(stale, 10))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "timestamp_expired")
}

func TestVerificationMiddleware_GarbageTimestampRejected(t *testing.T) {
	signer, _, _ := newTestSigner(t, true)
	router := newVerifiedRouter(signer)

	req := httptest.NewRequest(http.MethodGet, "/v1/ping", nil)
	signEnvelope(t, signer, req, nil)
	req.Header.Set(signingDomain.HeaderTimestamp, "not-a-timestamp")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_timestamp")
}

func TestVerificationMiddleware_DisabledSignerPassesThrough(t *testing.T) {
	signer, _, _ := newTestSigner(t, false)
	router := newVerifiedRouter(signer)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/ping", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestVerificationMiddleware_NilSignerPassesThrough(t *testing.T) {
	router := newVerifiedRouter(nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/ping", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}
