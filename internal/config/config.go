// Package config loads the kodama server configuration.
//
// Values are resolved in order: built-in defaults, then the YAML file (with
// ${VAR} expansion), then KODAMA_* environment variables. Validate runs last.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fidde/kodama/internal/storage"
	"github.com/fidde/kodama/internal/storage/clickhouse"
	"github.com/fidde/kodama/pkg/client"
	"github.com/fidde/kodama/pkg/models"
	"gopkg.in/yaml.v3"
)

// Config is the server configuration.
type Config struct {
	// DataDir holds the catalog and the per-service databases
	DataDir string `yaml:"data_dir"`

	UDP           UDPConfig           `yaml:"udp"`
	Admin         AdminConfig         `yaml:"admin"`
	OTLP          OTLPConfig          `yaml:"otlp"`
	SelfTelemetry SelfTelemetryConfig `yaml:"self_telemetry"`
	Archive       ArchiveConfig       `yaml:"archive"`
	Log           LogConfig           `yaml:"log"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type UDPConfig struct {
	Addr string `yaml:"addr"`

	// PersistErrors stores records flagged as errors instead of dropping them
	PersistErrors bool `yaml:"persist_errors"`
}

type AdminConfig struct {
	Addr string `yaml:"addr"`
}

type OTLPConfig struct {
	Enabled  bool   `yaml:"enabled"`
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`

	// DefaultProject receives spans whose resource has no kodama.project
	DefaultProject string `yaml:"default_project"`

	// AutoCreate creates unknown projects and services on first span
	AutoCreate bool `yaml:"auto_create"`

	// Normalize rewrites span names into templates ("GET /users/<NUM>")
	Normalize bool `yaml:"normalize"`

	// PatternsFile replaces the built-in normalization patterns
	PatternsFile string `yaml:"patterns_file"`

	// MaxGroups caps distinct normalized span names per process, 0 for no cap
	MaxGroups int `yaml:"max_groups"`
}

// SelfTelemetryConfig controls reporting of the server's own statement
// latency back into itself.
type SelfTelemetryConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Project   string `yaml:"project"`
	Service   string `yaml:"service"`
	QueueSize int    `yaml:"queue_size"`
}

type ArchiveConfig struct {
	// Backend is "none" or "clickhouse"
	Backend    string           `yaml:"backend"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

type ClickHouseConfig struct {
	Addr          string        `yaml:"addr"`
	Database      string        `yaml:"database"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	Secure        bool          `yaml:"secure"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

type LogConfig struct {
	// Level is debug, info, warn or error
	Level string `yaml:"level"`

	// Format is text or json
	Format string `yaml:"format"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	ch := clickhouse.DefaultConfig()
	return &Config{
		DataDir: "data",
		UDP: UDPConfig{
			Addr: client.DefaultAddr,
		},
		Admin: AdminConfig{
			Addr: "127.0.0.1:49001",
		},
		OTLP: OTLPConfig{
			Enabled:        false,
			HTTPAddr:       "127.0.0.1:4318",
			GRPCAddr:       "127.0.0.1:4317",
			DefaultProject: "default",
			AutoCreate:     true,
			Normalize:      true,
			MaxGroups:      1000,
		},
		SelfTelemetry: SelfTelemetryConfig{
			Enabled:   true,
			Project:   "kodama",
			Service:   "server",
			QueueSize: 1024,
		},
		Archive: ArchiveConfig{
			Backend: "none",
			ClickHouse: ClickHouseConfig{
				Addr:          ch.Addr,
				Database:      ch.Database,
				Username:      ch.Username,
				Password:      ch.Password,
				BatchSize:     ch.BatchSize,
				FlushInterval: ch.FlushInterval,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load reads path over the defaults. An empty path yields the defaults.
// Environment overrides are not applied; see ApplyEnv.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from KODAMA_* variables looked up with getenv.
// Unparseable booleans are reported rather than ignored.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	env := envReader{getenv: getenv}

	c.DataDir = env.str("KODAMA_DATABASE_PATH", c.DataDir)
	c.UDP.Addr = env.str("KODAMA_UDP_ADDR", c.UDP.Addr)
	c.UDP.PersistErrors = env.boolean("KODAMA_PERSIST_ERRORS", c.UDP.PersistErrors)
	c.Admin.Addr = env.str("KODAMA_ADMIN_ADDR", c.Admin.Addr)

	c.OTLP.Enabled = env.boolean("KODAMA_OTLP_ENABLED", c.OTLP.Enabled)
	c.OTLP.HTTPAddr = env.str("KODAMA_OTLP_HTTP_ADDR", c.OTLP.HTTPAddr)
	c.OTLP.GRPCAddr = env.str("KODAMA_OTLP_GRPC_ADDR", c.OTLP.GRPCAddr)
	c.OTLP.DefaultProject = env.str("KODAMA_OTLP_DEFAULT_PROJECT", c.OTLP.DefaultProject)
	c.OTLP.PatternsFile = env.str("KODAMA_OTLP_PATTERNS_FILE", c.OTLP.PatternsFile)

	c.SelfTelemetry.Enabled = env.boolean("KODAMA_SELF_TELEMETRY", c.SelfTelemetry.Enabled)

	c.Archive.Backend = env.str("KODAMA_ARCHIVE_BACKEND", c.Archive.Backend)
	c.Archive.ClickHouse.Addr = env.str("KODAMA_CLICKHOUSE_ADDR", c.Archive.ClickHouse.Addr)
	c.Archive.ClickHouse.Database = env.str("KODAMA_CLICKHOUSE_DATABASE", c.Archive.ClickHouse.Database)
	c.Archive.ClickHouse.Username = env.str("KODAMA_CLICKHOUSE_USERNAME", c.Archive.ClickHouse.Username)
	c.Archive.ClickHouse.Password = env.str("KODAMA_CLICKHOUSE_PASSWORD", c.Archive.ClickHouse.Password)

	c.Log.Level = env.str("KODAMA_LOG_LEVEL", c.Log.Level)
	c.Log.Format = env.str("KODAMA_LOG_FORMAT", c.Log.Format)

	return errors.Join(env.errs...)
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}

	addrs := map[string]string{
		"udp.addr":   c.UDP.Addr,
		"admin.addr": c.Admin.Addr,
	}
	if c.OTLP.Enabled {
		addrs["otlp.http_addr"] = c.OTLP.HTTPAddr
		addrs["otlp.grpc_addr"] = c.OTLP.GRPCAddr
		if c.OTLP.DefaultProject != "" {
			if err := models.ValidateName(c.OTLP.DefaultProject); err != nil {
				errs = append(errs, fmt.Errorf("otlp.default_project: %w", err))
			}
		}
		if c.OTLP.MaxGroups < 0 {
			errs = append(errs, errors.New("otlp.max_groups must not be negative"))
		}
	}
	for field, addr := range addrs {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
	}

	if c.SelfTelemetry.Enabled {
		if err := models.ValidateName(c.SelfTelemetry.Project); err != nil {
			errs = append(errs, fmt.Errorf("self_telemetry.project: %w", err))
		}
		if err := models.ValidateName(c.SelfTelemetry.Service); err != nil {
			errs = append(errs, fmt.Errorf("self_telemetry.service: %w", err))
		}
	}

	switch c.Archive.Backend {
	case "", "none":
	case "clickhouse":
		if c.Archive.ClickHouse.Addr == "" {
			errs = append(errs, errors.New("archive.clickhouse.addr is required"))
		}
		if c.Archive.ClickHouse.BatchSize <= 0 {
			errs = append(errs, errors.New("archive.clickhouse.batch_size must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("archive.backend: unknown backend %q", c.Archive.Backend))
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format: must be text or json, got %q", c.Log.Format))
	}

	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown_timeout must be positive"))
	}

	return errors.Join(errs...)
}

// StorageArchive converts the archive section for storage.NewArchive.
func (c *Config) StorageArchive() storage.ArchiveConfig {
	ch := clickhouse.DefaultConfig()
	ch.Addr = c.Archive.ClickHouse.Addr
	ch.Database = c.Archive.ClickHouse.Database
	ch.Username = c.Archive.ClickHouse.Username
	ch.Password = c.Archive.ClickHouse.Password
	ch.Secure = c.Archive.ClickHouse.Secure
	if c.Archive.ClickHouse.BatchSize > 0 {
		ch.BatchSize = c.Archive.ClickHouse.BatchSize
	}
	if c.Archive.ClickHouse.FlushInterval > 0 {
		ch.FlushInterval = c.Archive.ClickHouse.FlushInterval
	}
	return storage.ArchiveConfig{Backend: c.Archive.Backend, ClickHouse: ch}
}

// ParseLevel accepts debug, info, warn and error, case-insensitively.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown level %q", level)
	}
}

type envReader struct {
	getenv func(string) string
	errs   []error
}

func (e *envReader) str(key, def string) string {
	if v := e.getenv(key); v != "" {
		return v
	}
	return def
}

func (e *envReader) boolean(key string, def bool) bool {
	v := e.getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}
