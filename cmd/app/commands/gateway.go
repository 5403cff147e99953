package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/rentora/apiguard/internal/app"
	"github.com/rentora/apiguard/internal/config"
	internalHTTP "github.com/rentora/apiguard/internal/http"
)

// RunGateway starts the gateway HTTP server, and the metrics server when
// metrics are enabled, then blocks until a SIGINT/SIGTERM or a fatal server
// error. Shutdown drains in-flight requests within the configured request
// timeout; the container teardown afterwards stops background rotation and
// flushes metrics.
func RunGateway(ctx context.Context, version string) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	gin.SetMode(cfg.GetGinMode())

	container := app.NewContainer(cfg)
	logger := container.Logger()
	logger.Info("starting gateway", slog.String("version", version))
	defer closeContainer(container, logger)

	server, err := container.HTTPServer()
	if err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}
	metricsServer, err := container.MetricsServer()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics server: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	servers := []*internalHTTP.Server{server}
	if metricsServer != nil {
		servers = append(servers, metricsServer)
	}

	serverErr := make(chan error, len(servers))
	for _, srv := range servers {
		go func() {
			if err := srv.Start(ctx); err != nil {
				serverErr <- err
			}
		}()
	}

	var cause error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case cause = <-serverErr:
		logger.Error("server error, initiating shutdown", slog.Any("error", cause))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer shutdownCancel()

	shutdownErrors := []error{cause}
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErrors = append(shutdownErrors, err)
		}
	}
	return errors.Join(shutdownErrors...)
}
