package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fidde/kodama/internal/storage/clickhouse"
)

// ArchiveConfig selects the observation archive.
type ArchiveConfig struct {
	// Backend selects the archive: "" or "none" disables it, "clickhouse"
	// mirrors observations into ClickHouse
	Backend string

	ClickHouse clickhouse.Config
}

// NewArchive creates the archive selected by cfg. It returns nil when
// archiving is disabled.
func NewArchive(ctx context.Context, cfg ArchiveConfig, logger *slog.Logger) (Archive, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case "", "none":
		return nil, nil

	case "clickhouse":
		logger.Info("using clickhouse archive", "addr", cfg.ClickHouse.Addr)
		archive, err := clickhouse.New(ctx, cfg.ClickHouse, logger.With("component", "archive"))
		if err != nil {
			return nil, fmt.Errorf("creating clickhouse archive: %w", err)
		}
		return archive, nil

	default:
		return nil, fmt.Errorf("unknown archive backend: %s (supported: none, clickhouse)", cfg.Backend)
	}
}
