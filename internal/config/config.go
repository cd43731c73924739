// Package config loads runtime settings from APP_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// MinRefreshInterval is the shortest accepted refresh interval.
const MinRefreshInterval = 500 * time.Millisecond

// Config represents runtime configuration sourced from environment variables.
type Config struct {
	ListenAddr       string
	RefreshInterval  time.Duration
	CommandTimeout   time.Duration
	Platform         string
	AllowedOrigins   []string
	EnablePrometheus bool
	EnablePprof      bool
	LogLevel         slog.Level
	SysfsRoot        string
	WS               WebsocketConfig
}

// WebsocketConfig captures tunables for WebSocket handling.
type WebsocketConfig struct {
	MaxClients   int
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr:      ":8080",
		RefreshInterval: time.Second,
		CommandTimeout:  5 * time.Second,
		Platform:        runtime.GOOS,
		AllowedOrigins:  []string{"*"},
		LogLevel:        slog.LevelInfo,
		SysfsRoot:       "/sys",
		WS: WebsocketConfig{
			MaxClients:   1024,
			WriteTimeout: 3 * time.Second,
			ReadTimeout:  30 * time.Second,
		},
	}
}

// Load parses configuration from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Default()

	if value := env("APP_LISTEN_ADDR"); value != "" {
		cfg.ListenAddr = value
	}
	if err := lookupDuration("APP_REFRESH_INTERVAL", &cfg.RefreshInterval); err != nil {
		return Config{}, err
	}
	if err := lookupDuration("APP_COMMAND_TIMEOUT", &cfg.CommandTimeout); err != nil {
		return Config{}, err
	}
	if value := env("APP_PLATFORM"); value != "" {
		cfg.Platform = strings.ToLower(value)
	}

	if value := env("APP_ALLOWED_ORIGINS"); value != "" {
		origins := splitAndTrim(value, ",")
		if len(origins) == 0 {
			return Config{}, fmt.Errorf("APP_ALLOWED_ORIGINS must not be empty")
		}
		cfg.AllowedOrigins = origins
	}

	if err := lookupBool("APP_ENABLE_PROMETHEUS", &cfg.EnablePrometheus); err != nil {
		return Config{}, err
	}
	if err := lookupBool("APP_ENABLE_PPROF", &cfg.EnablePprof); err != nil {
		return Config{}, err
	}

	if value := env("APP_LOG_LEVEL"); value != "" {
		level, err := ParseLogLevel(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_LOG_LEVEL: %w", err)
		}
		cfg.LogLevel = level
	}

	if value := env("APP_SYSFS_ROOT"); value != "" {
		cfg.SysfsRoot = value
	}

	if value := env("APP_WS_MAX_CLIENTS"); value != "" {
		maxClients, err := strconv.Atoi(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_WS_MAX_CLIENTS: %w", err)
		}
		cfg.WS.MaxClients = maxClients
	}
	if err := lookupDuration("APP_WS_WRITE_TIMEOUT", &cfg.WS.WriteTimeout); err != nil {
		return Config{}, err
	}
	if err := lookupDuration("APP_WS_READ_TIMEOUT", &cfg.WS.ReadTimeout); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the bounds of every setting. Callers that override values
// after Load (command-line flags) call it again.
func (c Config) Validate() error {
	var errs []error
	if c.RefreshInterval < MinRefreshInterval {
		errs = append(errs, fmt.Errorf("refresh interval must be >= %s, got %s", MinRefreshInterval, c.RefreshInterval))
	}
	if c.CommandTimeout <= 0 {
		errs = append(errs, fmt.Errorf("command timeout must be > 0"))
	}
	if strings.TrimSpace(c.Platform) == "" {
		errs = append(errs, fmt.Errorf("platform must not be empty"))
	}
	if c.WS.MaxClients <= 0 {
		errs = append(errs, fmt.Errorf("websocket max clients must be > 0"))
	}
	if c.WS.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("websocket write timeout must be > 0"))
	}
	if c.WS.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("websocket read timeout must be > 0"))
	}
	return errors.Join(errs...)
}

func env(name string) string {
	return strings.TrimSpace(os.Getenv(name))
}

func lookupDuration(name string, dst *time.Duration) error {
	value := env(name)
	if value == "" {
		return nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	*dst = duration
	return nil
}

func lookupBool(name string, dst *bool) error {
	value := env(name)
	if value == "" {
		return nil
	}
	enabled, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	*dst = enabled
	return nil
}

func splitAndTrim(value, sep string) []string {
	raw := strings.Split(value, sep)
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// ParseLogLevel maps a level name to a slog level.
func ParseLogLevel(input string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(input)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported log level %q", input)
	}
}
