// nvmon is the terminal viewer for GPU, CPU and RAM telemetry. It shows the
// live metric tree in an interactive TUI, or prints a single refresh with
// --once.
//
// Configuration comes from the same APP_* environment variables as
// nvmon-web; command-line flags override them.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/skobkin/nvmon-web/internal/api"
	"github.com/skobkin/nvmon-web/internal/app"
	"github.com/skobkin/nvmon-web/internal/config"
	"github.com/skobkin/nvmon-web/internal/metric"
	"github.com/skobkin/nvmon-web/internal/tui"
	"github.com/skobkin/nvmon-web/internal/version"
	"github.com/skobkin/nvmon-web/internal/view"
)

var (
	buildVersion = "dev"
	buildCommit  = ""
	buildTime    = ""
)

type options struct {
	once        bool
	json        bool
	showVersion bool
	showHelp    bool
}

func main() {
	version.Set(version.Info{
		Version:   buildVersion,
		Commit:    buildCommit,
		BuildTime: buildTime,
	})

	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	flagSet := pflag.NewFlagSet("nvmon", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	opts, err := parseFlags(flagSet, args, &cfg)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.showHelp {
		printHelp(flagSet, stderr)
		return nil
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "nvmon %s\n", version.Current())
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.once {
		logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
		manager, err := app.NewTelemetry(cfg, logger)
		if err != nil {
			return err
		}
		return printOnce(ctx, manager, stdout, opts.json)
	}

	// Log records would corrupt the alternate screen.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager, err := app.NewTelemetry(cfg, logger)
	if err != nil {
		return err
	}
	if err := manager.Start(ctx); err != nil {
		return err
	}
	defer manager.Close()

	model := tui.NewModel(manager)
	defer model.Close()

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// parseFlags binds the command-line flags to cfg, parses args and
// revalidates the resulting configuration.
func parseFlags(flagSet *pflag.FlagSet, args []string, cfg *config.Config) (options, error) {
	var (
		opts     options
		logLevel string
	)
	flagSet.DurationVarP(&cfg.RefreshInterval, "interval", "i", cfg.RefreshInterval, "refresh interval")
	flagSet.DurationVar(&cfg.CommandTimeout, "timeout", cfg.CommandTimeout, "per-command timeout")
	flagSet.StringVar(&cfg.Platform, "platform", cfg.Platform, "command set to use (linux, windows)")
	flagSet.StringVar(&logLevel, "log-level", "", "log level for --once mode (debug, info, warn, error)")
	flagSet.BoolVar(&opts.once, "once", false, "print a single refresh and exit")
	flagSet.BoolVar(&opts.json, "json", false, "print --once output as JSON")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	flagSet.BoolVarP(&opts.showHelp, "help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		return opts, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return opts, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	if opts.json && !opts.once {
		return opts, errors.New("--json requires --once")
	}
	if logLevel != "" {
		level, err := config.ParseLogLevel(logLevel)
		if err != nil {
			return opts, err
		}
		cfg.LogLevel = level
	}
	if err := cfg.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

type onceSource interface {
	Start(ctx context.Context) error
	Latest() (metric.Snapshot, bool)
	Subscribe() (<-chan struct{}, func())
	Close() error
}

// printOnce runs one refresh cycle and writes the result to w.
func printOnce(ctx context.Context, source onceSource, w io.Writer, asJSON bool) error {
	updates, unsubscribe := source.Subscribe()
	defer unsubscribe()

	if err := source.Start(ctx); err != nil {
		return err
	}
	defer source.Close()

	select {
	case <-updates:
	case <-ctx.Done():
		return ctx.Err()
	}

	snap, ok := source.Latest()
	if !ok {
		return errors.New("no snapshot published")
	}

	if asJSON {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(api.NewSnapshotMessage(snap))
	}

	fmt.Fprintf(w, "%s  %s\n", snap.Status, snap.Timestamp.Format(time.DateTime))
	return view.WriteText(w, view.Build(snap))
}

func printHelp(flagSet *pflag.FlagSet, w io.Writer) {
	fmt.Fprint(w, `nvmon shows NVIDIA GPU, CPU and RAM utilization as a live tree.

Usage:
  nvmon [flags]

Examples:
  # Interactive viewer refreshing every two seconds
  nvmon --interval 2s

  # Print one refresh as JSON
  nvmon --once --json

Keys:
  up/down, k/j   move
  enter, space   fold or unfold a group
  r              refresh now
  q              quit

Flags:
`)
	flagSet.SetOutput(w)
	flagSet.PrintDefaults()
}
