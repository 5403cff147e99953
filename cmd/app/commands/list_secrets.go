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

// secretListing is the display form of one retained secret. Key material is
// deliberately absent: it never leaves the secret manager.
type secretListing struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Active    bool      `json:"active"`
}

// RunListSecrets prints metadata for every retained signing secret, newest
// first. Key material is never printed.
func RunListSecrets(
	ctx context.Context,
	manager signingService.SecretManager,
	logger *slog.Logger,
	w io.Writer,
	format string,
) error {
	retained, err := manager.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to list signing secrets: %w", err)
	}

	listings := make([]secretListing, 0, len(retained))
	for _, secret := range retained {
		listings = append(listings, secretListing{
			ID:        secretIDDisplay(secret.ID),
			CreatedAt: secret.CreatedAt,
			Active:    secret.Active,
		})
	}

	if format == "json" {
		if err := outputSecretsJSON(w, listings); err != nil {
			return err
		}
	} else {
		outputSecretsText(w, listings)
	}

	logger.Info("listed signing secrets", slog.Int("count", len(listings)))

	return nil
}

// outputSecretsText outputs the listing in human-readable text format.
func outputSecretsText(w io.Writer, listings []secretListing) {
	if len(listings) == 0 {
		fmt.Fprintln(w, "No signing secrets found")
		return
	}

	fmt.Fprintf(w, "Retained signing secrets: %d\n", len(listings))
	for _, listing := range listings {
		marker := " "
		if listing.Active {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %s  created %s\n", marker, listing.ID, listing.CreatedAt.Format(time.RFC3339))
	}
}

// outputSecretsJSON outputs the listing in JSON format for machine consumption.
func outputSecretsJSON(w io.Writer, listings []secretListing) error {
	jsonBytes, err := json.MarshalIndent(listings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	fmt.Fprintln(w, string(jsonBytes))
	return nil
}
