package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rentora/apiguard/internal/client"
	apperrors "github.com/rentora/apiguard/internal/errors"
)

// maxSendBodyBytes bounds how much of a response body the send command prints.
const maxSendBodyBytes = 1 << 20

// sendResult is the display form of one pipeline round trip.
type sendResult struct {
	Status   int    `json:"status,omitempty"`
	Category string `json:"category,omitempty"`
	Body     string `json:"body,omitempty"`
}

// RunSend pushes a single request through the full resilient pipeline:
// signing, circuit breaker admission and retries all apply, exactly as they
// would for programmatic callers. Useful for smoke-testing a deployment and
// for debugging signature mismatches against an upstream.
//
// Like curl, an HTTP error status is printed, not treated as a command
// failure; only transport-level failures exit non-zero.
func RunSend(
	ctx context.Context,
	resilientClient *client.Client,
	logger *slog.Logger,
	w io.Writer,
	method string,
	rawURL string,
	body string,
	format string,
) error {
	method = strings.ToUpper(strings.TrimSpace(method))

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, doErr := resilientClient.Do(req)
	if resp == nil {
		logger.Warn("request failed without a response", slog.Any("error", doErr))
		return fmt.Errorf("request failed: %w", doErr)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxSendBodyBytes))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	result := sendResult{
		Status: resp.StatusCode,
		Body:   string(respBody),
	}

	// Do returns the response together with a classified error for HTTP
	// error statuses; surface the category instead of failing the command.
	var classified *client.ClassifiedError
	if doErr != nil && apperrors.As(doErr, &classified) {
		result.Category = string(classified.Category)
	}

	if format == "json" {
		if err := outputSendJSON(w, result); err != nil {
			return err
		}
	} else {
		outputSendText(w, result)
	}

	logger.Info("request sent",
		slog.String("method", method),
		slog.String("url", rawURL),
		slog.Int("status", result.Status),
	)

	return nil
}

// outputSendText outputs the result in human-readable text format.
func outputSendText(w io.Writer, result sendResult) {
	fmt.Fprintf(w, "Status: %d\n", result.Status)
	if result.Category != "" {
		fmt.Fprintf(w, "Category: %s\n", result.Category)
	}
	if result.Body != "" {
		fmt.Fprintln(w, result.Body)
	}
}

// outputSendJSON outputs the result in JSON format for machine consumption.
func outputSendJSON(w io.Writer, result sendResult) error {
	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	fmt.Fprintln(w, string(jsonBytes))
	return nil
}
