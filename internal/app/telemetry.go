package app

import (
	"fmt"
	"log/slog"

	"github.com/skobkin/nvmon-web/internal/config"
	"github.com/skobkin/nvmon-web/internal/platform"
	"github.com/skobkin/nvmon-web/internal/runner"
	"github.com/skobkin/nvmon-web/internal/sampler"
)

// NewTelemetry resolves the command set for cfg.Platform and builds the
// sampler around a shell runner. The returned error wraps
// platform.ErrUnsupportedPlatform when the host has no command set.
func NewTelemetry(cfg config.Config, logger *slog.Logger) (*sampler.Manager, error) {
	return newTelemetry(cfg, runner.NewShell(cfg.Platform), logger)
}

func newTelemetry(cfg config.Config, r runner.Runner, logger *slog.Logger) (*sampler.Manager, error) {
	cmds, err := platform.Resolve(cfg.Platform)
	if err != nil {
		return nil, err
	}

	collector, err := sampler.NewCollector(cmds, r, cfg.CommandTimeout, logger)
	if err != nil {
		return nil, fmt.Errorf("init collector: %w", err)
	}

	manager, err := sampler.NewManager(cfg.RefreshInterval, collector, logger)
	if err != nil {
		return nil, fmt.Errorf("init sampler manager: %w", err)
	}
	return manager, nil
}
