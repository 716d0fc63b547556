package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kodama.yaml")
	t.Setenv("KODAMA_TEST_CH_PASSWORD", "s3cret")

	content := `data_dir: /var/lib/kodama
udp:
  addr: 0.0.0.0:49002
  persist_errors: true
otlp:
  enabled: true
  default_project: shop
archive:
  backend: clickhouse
  clickhouse:
    addr: ch:9000
    password: ${KODAMA_TEST_CH_PASSWORD}
    flush_interval: 2s
log:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	if cfg.DataDir != "/var/lib/kodama" || !cfg.UDP.PersistErrors || !cfg.OTLP.Enabled {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.Admin.Addr != "127.0.0.1:49001" {
		t.Errorf("expected default admin addr to survive, got %q", cfg.Admin.Addr)
	}
	if cfg.Archive.ClickHouse.Password != "s3cret" {
		t.Errorf("expected expanded password, got %q", cfg.Archive.ClickHouse.Password)
	}

	archive := cfg.StorageArchive()
	if archive.Backend != "clickhouse" || archive.ClickHouse.FlushInterval != 2*time.Second || archive.ClickHouse.BatchSize != 1000 {
		t.Errorf("unexpected archive config: %+v", archive)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}

	cfg, err := Load("")
	if err != nil || cfg.DataDir != "data" {
		t.Errorf("expected defaults for empty path, got %+v, %v", cfg, err)
	}
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("udp: [unclosed"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"KODAMA_DATABASE_PATH":  "/tmp/kodama",
		"KODAMA_PERSIST_ERRORS": "true",
		"KODAMA_OTLP_ENABLED":   "1",
		"KODAMA_LOG_LEVEL":      "warn",
		"KODAMA_SELF_TELEMETRY": "false",
	}
	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatalf("apply env: %v", err)
	}

	if cfg.DataDir != "/tmp/kodama" || !cfg.UDP.PersistErrors || !cfg.OTLP.Enabled || cfg.SelfTelemetry.Enabled {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("expected warn, got %q", cfg.Log.Level)
	}
	if cfg.UDP.Addr != "127.0.0.1:49002" {
		t.Errorf("unset variables must keep values, got %q", cfg.UDP.Addr)
	}
}

func TestApplyEnvBadBool(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.ApplyEnv(func(k string) string {
		if k == "KODAMA_PERSIST_ERRORS" {
			return "sometimes"
		}
		return ""
	})
	if err == nil || !strings.Contains(err.Error(), "KODAMA_PERSIST_ERRORS") {
		t.Errorf("expected error naming the variable, got %v", err)
	}
	if cfg.UDP.PersistErrors {
		t.Error("bad value must leave the default")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "" }, "data_dir"},
		{"bad udp addr", func(c *Config) { c.UDP.Addr = "nowhere" }, "udp.addr"},
		{"bad otlp addr when enabled", func(c *Config) { c.OTLP.Enabled = true; c.OTLP.GRPCAddr = "x" }, "otlp.grpc_addr"},
		{"bad self project", func(c *Config) { c.SelfTelemetry.Project = "Kodama" }, "self_telemetry.project"},
		{"unknown archive", func(c *Config) { c.Archive.Backend = "s3" }, "archive.backend"},
		{"clickhouse without batch", func(c *Config) { c.Archive.Backend = "clickhouse"; c.Archive.ClickHouse.BatchSize = 0 }, "batch_size"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"no shutdown timeout", func(c *Config) { c.ShutdownTimeout = 0 }, "shutdown_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.field) {
				t.Errorf("expected error mentioning %s, got %v", tt.field, err)
			}
		})
	}

	cfg := DefaultConfig()
	cfg.OTLP.GRPCAddr = "ignored while disabled"
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled otlp should not be validated: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
}
