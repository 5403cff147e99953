package gateway

import (
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/rentora/apiguard/internal/client"
	apperrors "github.com/rentora/apiguard/internal/errors"
	"github.com/rentora/apiguard/internal/httputil"
	signingDomain "github.com/rentora/apiguard/internal/signing/domain"
)

// hopHeaders are the hop-by-hop headers stripped when relaying in either
// direction, per RFC 9110 section 7.6.1.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// ProxyHandler forwards verified requests to the upstream backend through the
// resilient client pipeline, so forwarded traffic gets circuit breaking,
// retries and failure classification.
type ProxyHandler struct {
	client   *client.Client
	upstream *url.URL
	logger   *slog.Logger
}

// NewProxyHandler creates a proxy handler targeting the given upstream base URL.
func NewProxyHandler(resilient *client.Client, upstreamURL string, logger *slog.Logger) (*ProxyHandler, error) {
	upstream, err := url.Parse(upstreamURL)
	if err != nil || upstream.Scheme == "" || upstream.Host == "" {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput, "upstream url %q must be absolute", upstreamURL)
	}

	return &ProxyHandler{
		client:   resilient,
		upstream: upstream,
		logger:   logger.With("component", "proxy"),
	}, nil
}

// Handle forwards the request and relays the upstream response verbatim.
// Pipeline failures that produced no response become 502/503 with the
// failure category in the body.
func (h *ProxyHandler) Handle(c *gin.Context) {
	target := *h.upstream
	target.Path = c.Request.URL.Path
	target.RawPath = c.Request.URL.RawPath
	target.RawQuery = c.Request.URL.RawQuery

	req, err := http.NewRequestWithContext(
		c.Request.Context(),
		c.Request.Method,
		target.String(),
		c.Request.Body,
	)
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	req.Header = outboundHeader(c.Request.Header)

	resp, err := h.client.Do(req)
	if resp != nil {
		// Any HTTP response is relayed as-is, upstream errors included;
		// the pipeline already did its retries.
		defer func() { _ = resp.Body.Close() }()
		relayResponse(c, resp)
		return
	}

	h.logger.Warn("upstream request failed",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"error", err,
	)

	status := http.StatusBadGateway
	code := "upstream_unreachable"
	category := ""

	var classified *client.ClassifiedError
	if apperrors.As(err, &classified) {
		category = string(classified.Category)
		if classified.Category == client.CategoryBlocked {
			status = http.StatusServiceUnavailable
			code = "upstream_blocked"
		}
	}

	c.JSON(status, httputil.ErrorResponse{
		Error:   code,
		Message: "upstream request failed",
		Code:    category,
	})
}

// outboundHeader clones the inbound headers, dropping hop-by-hop headers and
// the consumed signature envelope. The pipeline derives a fresh envelope when
// outbound signing is configured.
func outboundHeader(h http.Header) http.Header {
	out := h.Clone()
	for _, name := range hopHeaders {
		out.Del(name)
	}
	out.Del(signingDomain.HeaderSignature)
	out.Del(signingDomain.HeaderTimestamp)
	out.Del(signingDomain.HeaderNonce)
	out.Del(signingDomain.HeaderSecretID)
	return out
}

// relayResponse copies the upstream status, headers and body to the caller.
func relayResponse(c *gin.Context, resp *http.Response) {
	header := c.Writer.Header()
	for name, values := range resp.Header {
		if isHopHeader(name) {
			continue
		}
		for _, value := range values {
			header.Add(name, value)
		}
	}

	c.Status(resp.StatusCode)
	_, _ = io.Copy(c.Writer, resp.Body)
}

func isHopHeader(name string) bool {
	canonical := http.CanonicalHeaderKey(name)
	for _, hop := range hopHeaders {
		if canonical == hop {
			return true
		}
	}
	return false
}
