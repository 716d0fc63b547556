package clickhouse

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fidde/kodama/pkg/models"
)

type sink struct {
	mu      sync.Mutex
	batches [][]ObservationRow
	fail    int
}

func (s *sink) insert(_ context.Context, rows []ObservationRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail > 0 {
		s.fail--
		return errors.New("unavailable")
	}
	s.batches = append(s.batches, rows)
	return nil
}

func (s *sink) rows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func waitForRows(t *testing.T, s *sink, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.rows() < want && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := s.rows(); got != want {
		t.Fatalf("expected %d rows written, got %d", want, got)
	}
}

func TestBufferFlushesFullBatch(t *testing.T) {
	s := &sink{}
	b := newBatchBuffer(s.insert, 3, time.Hour, nil)
	defer b.Close(context.Background())

	for i := 0; i < 7; i++ {
		if err := b.Add(ObservationRow{RecordName: "r"}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	waitForRows(t, s, 6)
	if got := b.Pending(); got != 1 {
		t.Errorf("expected 1 pending row, got %d", got)
	}
}

func TestBufferFlushesOnClose(t *testing.T) {
	s := &sink{}
	b := newBatchBuffer(s.insert, 100, time.Hour, nil)

	b.Add(ObservationRow{RecordName: "a"})
	b.Add(ObservationRow{RecordName: "b"})

	if err := b.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := s.rows(); got != 2 {
		t.Errorf("expected 2 rows after close, got %d", got)
	}

	// closing twice is harmless
	if err := b.Close(context.Background()); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestBufferFlushesOnInterval(t *testing.T) {
	s := &sink{}
	b := newBatchBuffer(s.insert, 100, 10*time.Millisecond, nil)
	defer b.Close(context.Background())

	b.Add(ObservationRow{RecordName: "a"})
	waitForRows(t, s, 1)
}

func TestBufferRetries(t *testing.T) {
	s := &sink{fail: 2}
	b := newBatchBuffer(s.insert, 1, time.Hour, nil)
	b.retryDelay = time.Millisecond

	if err := b.Add(ObservationRow{}); err != nil {
		t.Fatalf("add: %v", err)
	}
	waitForRows(t, s, 1)

	s.mu.Lock()
	s.fail = maxRetries
	s.mu.Unlock()
	if err := b.Add(ObservationRow{}); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := b.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := s.rows(); got != 1 {
		t.Errorf("expected the failing batch to be discarded, got %d rows", got)
	}
	if got := b.Dropped(); got != 1 {
		t.Errorf("expected 1 dropped row, got %d", got)
	}
}

func TestBufferAddDoesNotWaitForSlowSink(t *testing.T) {
	release := make(chan struct{})
	s := &sink{}
	b := newBatchBuffer(func(ctx context.Context, rows []ObservationRow) error {
		<-release
		return s.insert(ctx, rows)
	}, 1, time.Hour, nil)

	const adds = maxPendingBatches + 4
	start := time.Now()
	var dropped int
	for i := 0; i < adds; i++ {
		err := b.Add(ObservationRow{})
		switch {
		case errors.Is(err, ErrBatchDropped):
			dropped++
		case err != nil:
			t.Fatalf("add: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Add waited for the sink: %v", elapsed)
	}
	if dropped == 0 || uint64(dropped) != b.Dropped() {
		t.Errorf("expected dropped batches to be counted, got %d returned, %d counted", dropped, b.Dropped())
	}

	close(release)
	if err := b.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := s.rows(); got != adds-dropped {
		t.Errorf("expected %d rows written, got %d", adds-dropped, got)
	}

	if err := b.Add(ObservationRow{}); !errors.Is(err, ErrBufferClosed) {
		t.Errorf("expected closed error, got %v", err)
	}
}

func TestRowOf(t *testing.T) {
	row := rowOf(models.Observation{
		ProjectName:     "p",
		ServiceName:     "s",
		RecordName:      "r",
		GroupBy:         "g",
		Timestamp:       models.Timestamp{Microseconds: 1_500_000},
		ExecutionTimeUs: 12,
		Failed:          true,
	})

	if row.ProjectName != "p" || row.ServiceName != "s" || row.RecordName != "r" || row.GroupBy != "g" {
		t.Errorf("unexpected identity: %+v", row)
	}
	if !row.Timestamp.Equal(time.UnixMicro(1_500_000)) {
		t.Errorf("unexpected timestamp: %v", row.Timestamp)
	}
	if row.ExecutionTimeUs != 12 || row.Error != 1 {
		t.Errorf("unexpected measurement: %+v", row)
	}
}
