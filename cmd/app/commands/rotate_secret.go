package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	signingService "github.com/rentora/apiguard/internal/signing/service"
)

// RunRotateSecret forces an immediate signing secret rotation. A fresh secret
// becomes active for new signatures while older generations stay verifiable
// until retention trims them, so in-flight requests keep working.
//
// Rotation normally runs on the configured interval; this command exists for
// incident response when a secret is suspected compromised.
func RunRotateSecret(
	ctx context.Context,
	manager signingService.SecretManager,
	logger *slog.Logger,
	w io.Writer,
	format string,
) error {
	secret, err := manager.Rotate(ctx)
	if err != nil {
		return fmt.Errorf("failed to rotate signing secret: %w", err)
	}

	retained, err := manager.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to list retained secrets: %w", err)
	}

	if format == "json" {
		if err := outputRotateJSON(w, secret.ID, secret.CreatedAt, len(retained)); err != nil {
			return err
		}
	} else {
		outputRotateText(w, secret.ID, len(retained))
	}

	logger.Info("signing secret rotated",
		slog.String("secret_id", secretIDDisplay(secret.ID)),
		slog.Int("retained", len(retained)),
	)

	return nil
}

// outputRotateText outputs the result in human-readable text format.
func outputRotateText(w io.Writer, secretID string, retained int) {
	fmt.Fprintf(w, "Secret rotated successfully\n")
	fmt.Fprintf(w, "New active secret: %s\n", secretIDDisplay(secretID))
	fmt.Fprintf(w, "Retained secrets: %d\n", retained)
}

// outputRotateJSON outputs the result in JSON format for machine consumption.
func outputRotateJSON(w io.Writer, secretID string, createdAt time.Time, retained int) error {
	result := map[string]interface{}{
		"secret_id":  secretIDDisplay(secretID),
		"created_at": createdAt,
		"retained":   retained,
	}

	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	fmt.Fprintln(w, string(jsonBytes))
	return nil
}
