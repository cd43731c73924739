// Package app wires up and runs the application services.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/skobkin/nvmon-web/internal/config"
	"github.com/skobkin/nvmon-web/internal/gpu"
	"github.com/skobkin/nvmon-web/internal/httpserver"
	"github.com/skobkin/nvmon-web/internal/platform"
	"github.com/skobkin/nvmon-web/internal/sampler"
)

const shutdownTimeout = 10 * time.Second

// Run bootstraps the application lifecycle. On a platform without a command
// set the HTTP server still runs, reporting itself as degraded.
func Run(ctx context.Context, baseLogger *slog.Logger, cfg config.Config) error {
	return run(ctx, baseLogger, cfg, NewTelemetry)
}

type telemetryFactory func(config.Config, *slog.Logger) (*sampler.Manager, error)

func run(ctx context.Context, baseLogger *slog.Logger, cfg config.Config, newTelemetry telemetryFactory) error {
	appLogger := baseLogger.With("component", "app")

	devices, err := gpu.Scan(cfg.SysfsRoot, baseLogger.With("component", "gpu_inventory"))
	if err != nil {
		appLogger.Warn("gpu inventory unavailable", "err", err)
	}
	appLogger.Info("gpu inventory",
		"devices", len(devices),
		"nvidia", len(gpu.Filter(devices, gpu.VendorNVIDIA)),
	)

	manager, err := newTelemetry(cfg, baseLogger)
	switch {
	case errors.Is(err, platform.ErrUnsupportedPlatform):
		appLogger.Error("telemetry disabled", "platform", cfg.Platform, "err", err)
	case err != nil:
		return err
	}

	// A nil *sampler.Manager must reach the server as a nil interface.
	var telemetry httpserver.Telemetry
	samplerErrCh := make(chan error, 1)
	samplerCtx, samplerCancel := context.WithCancel(ctx)
	defer samplerCancel()

	if manager != nil {
		telemetry = manager
		go func() {
			samplerErrCh <- manager.Run(samplerCtx)
		}()
		appLogger.Info("sampler started",
			"platform", cfg.Platform,
			"interval", cfg.RefreshInterval,
			"command_timeout", cfg.CommandTimeout,
		)
	} else {
		samplerErrCh = nil
	}

	srv := httpserver.New(cfg, baseLogger.With("component", "http"), devices, telemetry)

	appLogger.Info("starting HTTP server", "listen_addr", cfg.ListenAddr)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	stopSampler := func() error {
		samplerCancel()
		if samplerErrCh == nil {
			return nil
		}
		if err := <-samplerErrCh; err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("sampler: %w", err)
		}
		return nil
	}

	for {
		select {
		case err := <-errCh:
			return errors.Join(err, stopSampler())

		case err := <-samplerErrCh:
			samplerErrCh = nil
			if err == nil || errors.Is(err, context.Canceled) {
				continue
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return errors.Join(fmt.Errorf("sampler: %w", err), srv.Shutdown(shutdownCtx))

		case <-ctx.Done():
			appLogger.Info("shutdown initiated", "reason", ctx.Err())

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("http shutdown: %w", err)
			}
			if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			if err := stopSampler(); err != nil {
				return err
			}

			appLogger.Info("shutdown complete")
			return nil
		}
	}
}
