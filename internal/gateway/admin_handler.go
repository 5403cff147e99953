package gateway

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	breakerService "github.com/rentora/apiguard/internal/breaker/service"
	apperrors "github.com/rentora/apiguard/internal/errors"
	"github.com/rentora/apiguard/internal/gateway/dto"
	"github.com/rentora/apiguard/internal/httputil"
	signingService "github.com/rentora/apiguard/internal/signing/service"
	customValidation "github.com/rentora/apiguard/internal/validation"
)

// AdminHandler serves the operator endpoints: breaker state and resets,
// signing secret lifecycle and replay-protection statistics.
type AdminHandler struct {
	registry *breakerService.Registry
	secrets  signingService.SecretManager
	nonces   signingService.NonceRegistry
	logger   *slog.Logger
}

// NewAdminHandler creates a new admin handler with required dependencies.
func NewAdminHandler(
	registry *breakerService.Registry,
	secrets signingService.SecretManager,
	nonces signingService.NonceRegistry,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		registry: registry,
		secrets:  secrets,
		nonces:   nonces,
		logger:   logger,
	}
}

// ListBreakersHandler returns a snapshot of every registered circuit breaker.
// GET /v1/admin/breakers
func (h *AdminHandler) ListBreakersHandler(c *gin.Context) {
	c.JSON(http.StatusOK, dto.MapSnapshotsToListResponse(h.registry.Snapshots()))
}

// ResetBreakersHandler forces breakers back to closed and clears their counters.
// POST /v1/admin/breakers/reset - the body may name one endpoint; an empty
// body resets every registered breaker.
func (h *AdminHandler) ResetBreakersHandler(c *gin.Context) {
	var req dto.ResetBreakersRequest

	// An empty body is a valid request meaning reset everything.
	if err := c.ShouldBindJSON(&req); err != nil && !apperrors.Is(err, io.EOF) {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	if req.Endpoint == "" {
		count := h.registry.ResetAll(c.Request.Context())
		c.JSON(http.StatusOK, dto.ResetBreakersResponse{Reset: count})
		return
	}

	if err := h.registry.Reset(c.Request.Context(), req.Endpoint); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.ResetBreakersResponse{Reset: 1})
}

// ListSecretsHandler returns metadata for the retained signing secrets.
// GET /v1/admin/secrets - key material is never included.
func (h *AdminHandler) ListSecretsHandler(c *gin.Context) {
	secrets, err := h.secrets.All(c.Request.Context())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapSecretsToListResponse(secrets))
}

// RotateSecretHandler unconditionally activates a fresh signing secret.
// POST /v1/admin/secrets/rotate
// Returns 201 Created with metadata of the new active secret.
func (h *AdminHandler) RotateSecretHandler(c *gin.Context) {
	secret, err := h.secrets.Rotate(c.Request.Context())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusCreated, dto.MapSecretToRotateResponse(secret))
}

// NonceStatsHandler reports how many nonce records the replay window tracks.
// GET /v1/admin/nonces
func (h *AdminHandler) NonceStatsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NonceStatsResponse{Tracked: h.nonces.Len()})
}

// PurgeNoncesHandler evicts expired nonce records.
// POST /v1/admin/nonces/purge
func (h *AdminHandler) PurgeNoncesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, dto.PurgeNoncesResponse{Purged: h.nonces.PurgeExpired()})
}
