package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	signingService "github.com/rentora/apiguard/internal/signing/service"
)

// RunCleanNonces sweeps expired nonce records out of the replay registry and
// reports how many were removed and how many remain tracked. The registry
// also evicts lazily on its own; the sweep exists for bounded memory in
// long-lived processes and for observability.
func RunCleanNonces(
	ctx context.Context,
	nonces signingService.NonceRegistry,
	logger *slog.Logger,
	w io.Writer,
	format string,
) error {
	purged := nonces.PurgeExpired()
	remaining := nonces.Len()

	if format == "json" {
		if err := outputNoncesJSON(w, purged, remaining); err != nil {
			return err
		}
	} else {
		outputNoncesText(w, purged, remaining)
	}

	logger.Info("nonce registry swept",
		slog.Int("purged", purged),
		slog.Int("remaining", remaining),
	)

	return nil
}

// outputNoncesText outputs the result in human-readable text format.
func outputNoncesText(w io.Writer, purged, remaining int) {
	fmt.Fprintf(w, "Purged %d expired nonce record(s), %d still tracked\n", purged, remaining)
}

// outputNoncesJSON outputs the result in JSON format for machine consumption.
func outputNoncesJSON(w io.Writer, purged, remaining int) error {
	result := map[string]interface{}{
		"purged":    purged,
		"remaining": remaining,
	}

	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	fmt.Fprintln(w, string(jsonBytes))
	return nil
}
