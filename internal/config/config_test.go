package config

import (
	"log/slog"
	"reflect"
	"runtime"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.ListenAddr != ":8080" {
		t.Fatalf("unexpected ListenAddr %q", cfg.ListenAddr)
	}
	if cfg.RefreshInterval != time.Second {
		t.Fatalf("unexpected RefreshInterval %s", cfg.RefreshInterval)
	}
	if cfg.CommandTimeout != 5*time.Second {
		t.Fatalf("unexpected CommandTimeout %s", cfg.CommandTimeout)
	}
	if cfg.Platform != runtime.GOOS {
		t.Fatalf("unexpected Platform %q", cfg.Platform)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("unexpected LogLevel %v", cfg.LogLevel)
	}
	if cfg.SysfsRoot != "/sys" {
		t.Fatalf("unexpected SysfsRoot %q", cfg.SysfsRoot)
	}
	if !reflect.DeepEqual(cfg.AllowedOrigins, []string{"*"}) {
		t.Fatalf("unexpected AllowedOrigins %+v", cfg.AllowedOrigins)
	}
	if cfg.EnablePrometheus || cfg.EnablePprof {
		t.Fatalf("optional endpoints should be disabled by default")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("APP_LISTEN_ADDR", "127.0.0.1:9000")
	t.Setenv("APP_REFRESH_INTERVAL", "500ms")
	t.Setenv("APP_COMMAND_TIMEOUT", "2s")
	t.Setenv("APP_PLATFORM", "Windows")
	t.Setenv("APP_ALLOWED_ORIGINS", "https://example.com, https://other.test")
	t.Setenv("APP_ENABLE_PROMETHEUS", "true")
	t.Setenv("APP_ENABLE_PPROF", "true")
	t.Setenv("APP_LOG_LEVEL", "debug")
	t.Setenv("APP_SYSFS_ROOT", "/tmp/sys")
	t.Setenv("APP_WS_MAX_CLIENTS", "2048")
	t.Setenv("APP_WS_WRITE_TIMEOUT", "10s")
	t.Setenv("APP_WS_READ_TIMEOUT", "45s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.ListenAddr != "127.0.0.1:9000" {
		t.Fatalf("ListenAddr override failed, got %q", cfg.ListenAddr)
	}
	if cfg.RefreshInterval != 500*time.Millisecond {
		t.Fatalf("RefreshInterval override failed, got %s", cfg.RefreshInterval)
	}
	if cfg.CommandTimeout != 2*time.Second {
		t.Fatalf("CommandTimeout override failed, got %s", cfg.CommandTimeout)
	}
	if cfg.Platform != "windows" {
		t.Fatalf("Platform override failed, got %q", cfg.Platform)
	}
	wantOrigins := []string{"https://example.com", "https://other.test"}
	if !reflect.DeepEqual(cfg.AllowedOrigins, wantOrigins) {
		t.Fatalf("AllowedOrigins mismatch: %+v", cfg.AllowedOrigins)
	}
	if !cfg.EnablePrometheus {
		t.Fatalf("EnablePrometheus override failed")
	}
	if !cfg.EnablePprof {
		t.Fatalf("EnablePprof override failed")
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel override failed, got %v", cfg.LogLevel)
	}
	if cfg.SysfsRoot != "/tmp/sys" {
		t.Fatalf("SysfsRoot override failed, got %q", cfg.SysfsRoot)
	}
	if cfg.WS.MaxClients != 2048 {
		t.Fatalf("WS.MaxClients override failed, got %d", cfg.WS.MaxClients)
	}
	if cfg.WS.WriteTimeout != 10*time.Second {
		t.Fatalf("WS.WriteTimeout override failed, got %s", cfg.WS.WriteTimeout)
	}
	if cfg.WS.ReadTimeout != 45*time.Second {
		t.Fatalf("WS.ReadTimeout override failed, got %s", cfg.WS.ReadTimeout)
	}
}

func TestLoadInvalidEnv(t *testing.T) {
	testCases := []struct {
		name string
		key  string
		val  string
	}{
		{"InvalidRefreshInterval", "APP_REFRESH_INTERVAL", "often"},
		{"RefreshIntervalBelowFloor", "APP_REFRESH_INTERVAL", "100ms"},
		{"NegativeRefreshInterval", "APP_REFRESH_INTERVAL", "-1s"},
		{"ZeroCommandTimeout", "APP_COMMAND_TIMEOUT", "0"},
		{"InvalidOrigins", "APP_ALLOWED_ORIGINS", ","},
		{"InvalidPrometheusBool", "APP_ENABLE_PROMETHEUS", "maybe"},
		{"InvalidPprofBool", "APP_ENABLE_PPROF", "perhaps"},
		{"InvalidLogLevel", "APP_LOG_LEVEL", "loud"},
		{"InvalidWSMaxClients", "APP_WS_MAX_CLIENTS", "zero"},
		{"NonPositiveWSMaxClients", "APP_WS_MAX_CLIENTS", "0"},
		{"InvalidWSWriteTimeout", "APP_WS_WRITE_TIMEOUT", "nope"},
		{"NegativeWSWriteTimeout", "APP_WS_WRITE_TIMEOUT", "-1s"},
		{"NegativeWSReadTimeout", "APP_WS_READ_TIMEOUT", "-5s"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", tc.key, tc.val)
			}
		})
	}
}

func TestValidateAfterOverride(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}

	cfg.RefreshInterval = MinRefreshInterval
	if err := cfg.Validate(); err != nil {
		t.Fatalf("floor interval must validate: %v", err)
	}

	cfg.RefreshInterval = MinRefreshInterval - time.Millisecond
	cfg.Platform = " "
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
	}
	for input, want := range cases {
		got, err := ParseLogLevel(input)
		if err != nil || got != want {
			t.Fatalf("ParseLogLevel(%q) = %v, %v", input, got, err)
		}
	}
}
