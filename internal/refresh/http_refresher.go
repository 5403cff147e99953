package refresh

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	apperrors "github.com/rentora/apiguard/internal/errors"
)

// DefaultExchangeTimeout bounds one token exchange round trip.
const DefaultExchangeTimeout = 15 * time.Second

// ErrNoRefreshToken indicates no refresh token is stored; the session must
// be re-established interactively.
var ErrNoRefreshToken = apperrors.Wrap(apperrors.ErrUnauthorized, "no refresh token available")

// ErrExchangeRejected indicates the auth backend refused the refresh token,
// typically because it expired or was revoked.
var ErrExchangeRejected = apperrors.Wrap(apperrors.ErrUnauthorized, "token exchange rejected")

// RefreshTokenSource supplies the long-lived refresh token for the exchange.
type RefreshTokenSource interface {
	RefreshToken(ctx context.Context) (string, error)
}

// HTTPRefresherConfig configures the token exchange call.
type HTTPRefresherConfig struct {
	// Endpoint is the absolute URL of the token exchange endpoint.
	Endpoint string
	// Timeout bounds one exchange round trip. Zero applies
	// DefaultExchangeTimeout.
	Timeout time.Duration
}

// HTTPRefresher exchanges the stored refresh token for a fresh pair against
// the auth backend.
//
// It deliberately uses a plain http.Client rather than the resilient
// pipeline: the refresh call runs while the pipeline is already handling a
// 401, and sending it back through the auth layer would recurse.
type HTTPRefresher struct {
	cfg    HTTPRefresherConfig
	tokens RefreshTokenSource
	client *http.Client
	logger *slog.Logger
}

// NewHTTPRefresher creates an HTTPRefresher.
func NewHTTPRefresher(cfg HTTPRefresherConfig, tokens RefreshTokenSource, logger *slog.Logger) *HTTPRefresher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultExchangeTimeout
	}
	return &HTTPRefresher{
		cfg:    cfg,
		tokens: tokens,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With("component", "http_refresher"),
	}
}

type exchangeRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type exchangeResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Refresh performs the token exchange. Returns ErrNoRefreshToken when no
// refresh token is stored and ErrExchangeRejected when the backend answers
// 401 or 403.
func (r *HTTPRefresher) Refresh(ctx context.Context) (*TokenPair, error) {
	refreshToken, err := r.tokens.RefreshToken(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, "load refresh token")
	}
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	payload, err := json.Marshal(exchangeRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, apperrors.Wrap(err, "encode exchange request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.Wrap(err, "build exchange request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, "token exchange call failed")
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrExchangeRejected
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		return nil, apperrors.Wrapf(apperrors.ErrUnavailable, "token exchange returned status %d", resp.StatusCode)
	}

	var body exchangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, apperrors.Wrap(err, "decode exchange response")
	}
	if body.AccessToken == "" {
		return nil, apperrors.Wrap(apperrors.ErrUnavailable, "token exchange returned no access token")
	}

	pair := &TokenPair{AccessToken: body.AccessToken, RefreshToken: body.RefreshToken}
	// Backends that do not rotate refresh tokens omit the field; keep the
	// one we have.
	if pair.RefreshToken == "" {
		pair.RefreshToken = refreshToken
	}

	r.logger.Debug("token exchange succeeded")
	return pair, nil
}
