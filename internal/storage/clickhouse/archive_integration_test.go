//go:build integration

package clickhouse

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/fidde/kodama/pkg/models"
)

// Run with: go test -tags=integration ./internal/storage/clickhouse -v
func TestArchiveIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg := DefaultConfig()
	cfg.MaxRetries = 1
	cfg.BatchSize = 2

	archive, err := New(ctx, cfg, logger)
	if err != nil {
		t.Skipf("ClickHouse not available: %v", err)
	}
	defer archive.Close()

	group := "integration-" + time.Now().Format(time.RFC3339Nano)
	for i := 0; i < 2; i++ {
		archive.Archive(ctx, models.Observation{
			ProjectName:     "kodama",
			ServiceName:     "integration",
			RecordName:      "test",
			GroupBy:         group,
			Timestamp:       models.Timestamp{Microseconds: uint64(time.Now().UnixMicro())},
			ExecutionTimeUs: uint64(100 * (i + 1)),
		})
	}

	// the full batch is written by the flush goroutine
	var count uint64
	deadline := time.Now().Add(10 * time.Second)
	for {
		row := archive.conn.QueryRow(ctx, "SELECT count() FROM observations WHERE group_by = ?", group)
		if err := row.Scan(&count); err != nil {
			t.Fatalf("count: %v", err)
		}
		if count >= 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if count != 2 {
		t.Errorf("expected 2 archived rows, got %d", count)
	}
}
