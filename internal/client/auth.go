package client

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rentora/apiguard/internal/refresh"
	tokenDomain "github.com/rentora/apiguard/internal/token/domain"
)

// TokenSource supplies the current access token for outbound requests.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// TokenValidator answers whether a token is still usable. Satisfied by the
// token cache.
type TokenValidator interface {
	Validate(ctx context.Context, token string, typ tokenDomain.Type) (*tokenDomain.ValidationResult, error)
}

// authTransport attaches the bearer token and drives the 401 recovery path:
// refresh through the coordinator, then replay the request exactly once with
// the fresh token. Public paths carry no bearer and never trigger a refresh.
type authTransport struct {
	next        http.RoundTripper
	tokens      TokenSource
	validator   TokenValidator
	coordinator *refresh.Coordinator
	publicPaths []string
	logger      *slog.Logger
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.tokens == nil || t.isPublic(req.URL.Path) {
		return t.next.RoundTrip(req)
	}
	if req.Header.Get("Authorization") != "" {
		// The caller manages auth for this request.
		return t.next.RoundTrip(req)
	}

	ctx := req.Context()
	token := t.currentToken(ctx)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.next.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if t.coordinator == nil {
		return resp, nil
	}

	pair, refreshErr := t.coordinator.Refresh(ctx)
	if refreshErr != nil {
		// Surface the original auth failure; the refresh outcome is only
		// logged. Callers see a definite 401, not transient refresh trouble.
		t.logger.Warn("token refresh after 401 failed", "error", refreshErr)
		return resp, nil
	}

	drainBody(resp)
	if rewindErr := rewindBody(req); rewindErr != nil {
		return nil, rewindErr
	}
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	return t.next.RoundTrip(req)
}

// currentToken returns the best token to attach. A cached-invalid token is
// refreshed proactively, saving the request a guaranteed 401 round trip.
func (t *authTransport) currentToken(ctx context.Context) string {
	token, err := t.tokens.AccessToken(ctx)
	if err != nil {
		t.logger.Warn("failed to read access token", "error", err)
		return ""
	}
	if token == "" {
		return ""
	}

	if t.validator == nil || t.coordinator == nil {
		return token
	}
	result, err := t.validator.Validate(ctx, token, tokenDomain.TypeAccess)
	if err == nil && result.Valid {
		return token
	}

	pair, refreshErr := t.coordinator.Refresh(ctx)
	if refreshErr != nil {
		// Let the backend adjudicate the stale token.
		t.logger.Warn("proactive token refresh failed", "error", refreshErr)
		return token
	}
	return pair.AccessToken
}

func (t *authTransport) isPublic(path string) bool {
	for _, prefix := range t.publicPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
