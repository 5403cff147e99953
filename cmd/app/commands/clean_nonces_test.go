package commands

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	signingService "github.com/rentora/apiguard/internal/signing/service"
)

func TestRunCleanNonces(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	t.Run("text-output", func(t *testing.T) {
		nonces := signingService.NewNonceRegistry(time.Minute)
		require.True(t, nonces.MarkFirstUse("nonce-1"))
		require.True(t, nonces.MarkFirstUse("nonce-2"))

		var out bytes.Buffer
		err := RunCleanNonces(ctx, nonces, logger, &out, "text")

		require.NoError(t, err)
		require.Contains(t, out.String(), "Purged 0 expired nonce record(s), 2 still tracked")
	})

	t.Run("json-output", func(t *testing.T) {
		nonces := signingService.NewNonceRegistry(10 * time.Millisecond)
		require.True(t, nonces.MarkFirstUse("nonce-1"))
		time.Sleep(30 * time.Millisecond)

		var out bytes.Buffer
		err := RunCleanNonces(ctx, nonces, logger, &out, "json")

		require.NoError(t, err)
		require.Contains(t, out.String(), `"purged"`)
		require.Contains(t, out.String(), `"remaining": 0`)
	})
}
