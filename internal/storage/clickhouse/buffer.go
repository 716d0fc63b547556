package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const (
	defaultBatchSize     = 1000
	defaultFlushInterval = 5 * time.Second
	defaultShutdownWait  = 10 * time.Second
	maxPendingBatches    = 8
	maxRetries           = 3
)

var (
	// ErrBatchDropped is returned by Add when a full batch could not be
	// queued because earlier batches are still being written.
	ErrBatchDropped = errors.New("archive queue full, batch dropped")

	// ErrBufferClosed is returned by Add after Close.
	ErrBufferClosed = errors.New("archive buffer closed")
)

// ObservationRow represents a row in the observations table
type ObservationRow struct {
	ProjectName     string
	ServiceName     string
	RecordName      string
	GroupBy         string
	Timestamp       time.Time
	ExecutionTimeUs uint64
	Error           uint8
}

type insertFunc func(ctx context.Context, rows []ObservationRow) error

// BatchBuffer buffers rows and writes them in batches, when the batch is
// full or the flush interval elapses. Writes happen on the flush goroutine
// only; Add never waits for ClickHouse.
type BatchBuffer struct {
	insert insertFunc

	mu     sync.Mutex
	rows   []ObservationRow
	closed bool

	batchSize     int
	flushInterval time.Duration
	shutdownWait  time.Duration
	retryDelay    time.Duration

	batches   chan []ObservationRow
	dropped   atomic.Uint64
	stopCh    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	logger    *slog.Logger
}

// NewBatchBuffer creates a buffer writing to conn. Zero sizes use defaults.
func NewBatchBuffer(conn driver.Conn, batchSize int, flushInterval time.Duration, logger *slog.Logger) *BatchBuffer {
	return newBatchBuffer(func(ctx context.Context, rows []ObservationRow) error {
		return insertObservations(ctx, conn, rows)
	}, batchSize, flushInterval, logger)
}

func newBatchBuffer(insert insertFunc, batchSize int, flushInterval time.Duration, logger *slog.Logger) *BatchBuffer {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	b := &BatchBuffer{
		insert:        insert,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		shutdownWait:  defaultShutdownWait,
		retryDelay:    100 * time.Millisecond,
		batches:       make(chan []ObservationRow, maxPendingBatches),
		stopCh:        make(chan struct{}),
		logger:        logger,
	}

	b.wg.Add(1)
	go b.flushLoop()

	return b
}

// Add appends a row. A full batch is handed to the flush goroutine; when
// too many batches are already waiting the batch is dropped and counted.
func (b *BatchBuffer) Add(row ObservationRow) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		b.dropped.Add(1)
		return ErrBufferClosed
	}

	b.rows = append(b.rows, row)
	if len(b.rows) < b.batchSize {
		return nil
	}

	rows := b.rows
	b.rows = nil
	select {
	case b.batches <- rows:
		return nil
	default:
		b.dropped.Add(uint64(len(rows)))
		return ErrBatchDropped
	}
}

// Pending returns the number of buffered rows not yet handed off.
func (b *BatchBuffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rows)
}

// Dropped returns how many rows were discarded without being written.
func (b *BatchBuffer) Dropped() uint64 {
	return b.dropped.Load()
}

// take removes and returns the buffered rows.
func (b *BatchBuffer) take() []ObservationRow {
	b.mu.Lock()
	defer b.mu.Unlock()
	rows := b.rows
	b.rows = nil
	return rows
}

func (b *BatchBuffer) flushLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case rows := <-b.batches:
			_ = b.write(rows)

		case <-ticker.C:
			_ = b.write(b.take())

		case <-b.stopCh:
			for {
				select {
				case rows := <-b.batches:
					_ = b.write(rows)
				default:
					return
				}
			}
		}
	}
}

// write inserts rows with retries. Rows that still fail are counted as
// dropped.
func (b *BatchBuffer) write(rows []ObservationRow) error {
	if len(rows) == 0 {
		return nil
	}

	start := time.Now()
	if err := b.retryInsert(rows); err != nil {
		b.dropped.Add(uint64(len(rows)))
		b.logger.Error("failed to flush observations",
			"error", err,
			"row_count", len(rows),
		)
		return err
	}

	b.logger.Debug("flushed observations",
		"row_count", len(rows),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Close stops the flush loop, waits for queued batches and writes what is
// left.
func (b *BatchBuffer) Close(ctx context.Context) error {
	var finalErr error

	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
		close(b.stopCh)

		shutdownCtx, cancel := context.WithTimeout(ctx, b.shutdownWait)
		defer cancel()

		done := make(chan struct{})
		go func() {
			b.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-shutdownCtx.Done():
			b.logger.Warn("flush loop did not stop within timeout")
		}

		finalErr = b.write(b.take())
	})

	return finalErr
}

func (b *BatchBuffer) retryInsert(rows []ObservationRow) error {
	var err error
	retryDelay := b.retryDelay

	for attempt := 1; attempt <= maxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = b.insert(ctx, rows)
		cancel()

		if err == nil {
			return nil
		}

		if attempt < maxRetries {
			time.Sleep(retryDelay)
			retryDelay *= 2
		}
	}

	return fmt.Errorf("insert failed after %d attempts: %w", maxRetries, err)
}

func insertObservations(ctx context.Context, conn driver.Conn, rows []ObservationRow) error {
	batch, err := conn.PrepareBatch(ctx, "INSERT INTO observations")
	if err != nil {
		return err
	}

	for _, row := range rows {
		err = batch.Append(
			row.ProjectName,
			row.ServiceName,
			row.RecordName,
			row.GroupBy,
			row.Timestamp,
			row.ExecutionTimeUs,
			row.Error,
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}
