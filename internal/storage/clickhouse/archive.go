package clickhouse

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/fidde/kodama/pkg/models"
)

// Archive buffers observations and writes them to the observations table.
// Write failures are logged and never reach the ingestion path.
type Archive struct {
	conn   driver.Conn
	buffer *BatchBuffer
	logger *slog.Logger
}

// New connects, ensures the schema and starts the flush loop.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Archive, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := InitializeSchema(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing archive schema: %w", err)
	}

	logger.Info("clickhouse archive ready", "addr", cfg.Addr, "database", cfg.Database)
	return &Archive{
		conn:   conn,
		buffer: NewBatchBuffer(conn, cfg.BatchSize, cfg.FlushInterval, logger),
		logger: logger,
	}, nil
}

func rowOf(obs models.Observation) ObservationRow {
	var flag uint8
	if obs.Failed {
		flag = 1
	}
	return ObservationRow{
		ProjectName:     obs.ProjectName,
		ServiceName:     obs.ServiceName,
		RecordName:      obs.RecordName,
		GroupBy:         obs.GroupBy,
		Timestamp:       obs.Timestamp.Time().UTC(),
		ExecutionTimeUs: obs.ExecutionTimeUs,
		Error:           flag,
	}
}

// Archive queues one observation.
func (a *Archive) Archive(_ context.Context, obs models.Observation) {
	if err := a.buffer.Add(rowOf(obs)); err != nil {
		a.logger.Warn("archiving observation", "record", obs.RecordName, "error", err)
	}
}

// Close flushes pending rows and closes the connection.
func (a *Archive) Close() error {
	flushErr := a.buffer.Close(context.Background())
	if err := a.conn.Close(); err != nil {
		return err
	}
	return flushErr
}
