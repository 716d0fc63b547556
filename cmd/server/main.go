// Package main is the entry point for the kodama server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/fidde/kodama/internal/api"
	"github.com/fidde/kodama/internal/config"
	"github.com/fidde/kodama/internal/logging"
	"github.com/fidde/kodama/internal/normalize"
	"github.com/fidde/kodama/internal/receiver"
	"github.com/fidde/kodama/internal/storage"
	"github.com/fidde/kodama/pkg/client"
)

// Version is set at build time via ldflags
var Version = "dev"

type component interface {
	Listen() error
	Start() error
	Shutdown(ctx context.Context) error
}

type namedComponent struct {
	name string
	component
}

func main() {
	cfgPath := flag.String("config", "kodama.yaml", "config file path")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(Version)
		return
	}

	if err := run(*cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "kodama: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, bool, error) {
	cfg, err := config.Load(path)
	defaults := false
	if errors.Is(err, os.ErrNotExist) {
		cfg, err, defaults = config.DefaultConfig(), nil, true
	}
	if err != nil {
		return nil, false, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, false, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, defaults, nil
}

func run(cfgPath string) error {
	cfg, defaults, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}

	level, _ := config.ParseLevel(cfg.Log.Level)
	logger := logging.Init(os.Stderr, level, cfg.Log.Format == "json")
	logger.Info("kodama starting", "version", Version)
	if defaults {
		logger.Info("no config file found, using defaults", "path", cfgPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	archive, err := storage.NewArchive(ctx, cfg.StorageArchive(), logging.Component("archive"))
	if err != nil {
		return err
	}

	storeCfg := storage.Config{
		DataDir: cfg.DataDir,
		Archive: archive,
	}

	var self *client.Client
	if cfg.SelfTelemetry.Enabled {
		self, err = client.New(cfg.SelfTelemetry.Project, cfg.SelfTelemetry.Service, cfg.UDP.Addr,
			client.WithQueueSize(cfg.SelfTelemetry.QueueSize),
			client.WithLogger(logging.Component("self-telemetry")),
		)
		if err != nil {
			return fmt.Errorf("creating self-telemetry client: %w", err)
		}
		storeCfg.SelfProject = cfg.SelfTelemetry.Project
		storeCfg.SelfService = cfg.SelfTelemetry.Service
		storeCfg.Reporter = self
	}

	store, err := storage.New(ctx, storeCfg, logging.Component("storage"))
	if err != nil {
		if archive != nil {
			archive.Close()
		}
		return err
	}
	defer func() {
		if self != nil {
			if err := self.Close(); err != nil {
				logger.Error("closing self-telemetry client", "error", err)
			}
			if n := self.Dropped(); n > 0 {
				logger.Warn("self-telemetry reports dropped", "count", n)
			}
		}
		logger.Info("closing storage")
		if err := store.Close(); err != nil {
			logger.Error("closing storage", "error", err)
		}
	}()

	if self != nil {
		if _, err := store.EnsureService(ctx, cfg.SelfTelemetry.Project, cfg.SelfTelemetry.Service); err != nil {
			return fmt.Errorf("registering self-telemetry service: %w", err)
		}
	}

	components := []namedComponent{
		{"udp", receiver.NewUDPReceiver(cfg.UDP.Addr,
			receiver.NewDispatcher(store, cfg.UDP.PersistErrors, logging.Component("dispatch")),
			logging.Component("udp"))},
		{"admin", api.NewServer(cfg.Admin.Addr, store,
			api.WithVersion(Version),
			api.WithLogger(logging.Component("api")))},
	}
	if cfg.OTLP.Enabled {
		converter, err := spanConverter(cfg.OTLP)
		if err != nil {
			return err
		}
		ingester := receiver.NewTraceIngester(store, converter, cfg.OTLP.AutoCreate, logging.Component("otlp"))
		components = append(components,
			namedComponent{"otlp-http", receiver.NewHTTPReceiver(cfg.OTLP.HTTPAddr, ingester, logging.Component("otlp-http"))},
			namedComponent{"otlp-grpc", receiver.NewGRPCReceiver(cfg.OTLP.GRPCAddr, ingester, logging.Component("otlp-grpc"))},
		)
	}

	return serve(ctx, logger, cfg, components)
}

func spanConverter(cfg config.OTLPConfig) (*receiver.SpanConverter, error) {
	if !cfg.Normalize {
		return receiver.NewSpanConverter(cfg.DefaultProject, nil), nil
	}

	var patterns []normalize.CompiledPattern
	if cfg.PatternsFile != "" {
		var err error
		if patterns, err = normalize.LoadPatterns(cfg.PatternsFile); err != nil {
			return nil, err
		}
	}
	return receiver.NewSpanConverter(cfg.DefaultProject, normalize.New(patterns, cfg.MaxGroups)), nil
}

// serve binds every component, runs them until ctx is cancelled or one of
// them fails, then shuts them all down.
func serve(ctx context.Context, logger *slog.Logger, cfg *config.Config, components []namedComponent) error {
	for _, c := range components {
		if err := c.Listen(); err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, c := range components {
		g.Go(func() error {
			if err := c.Start(); err != nil {
				return fmt.Errorf("%s: %w", c.name, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		var errs []error
		for _, c := range components {
			if err := c.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("shutting down %s: %w", c.name, err))
			}
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
