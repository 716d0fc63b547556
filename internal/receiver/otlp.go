package receiver

import (
	"context"
	"log/slog"
	"sync"

	"github.com/fidde/kodama/internal/storage"
	"github.com/fidde/kodama/pkg/models"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"golang.org/x/sync/singleflight"
)

// TraceIngester stores OTLP spans as records. It is shared by the HTTP and
// gRPC receivers.
type TraceIngester struct {
	store      storage.Storage
	converter  *SpanConverter
	autoCreate bool
	logger     *slog.Logger

	// project/service pairs known to exist
	known sync.Map

	// collapses concurrent creation of the same service
	group singleflight.Group
}

// NewTraceIngester creates an ingester. With autoCreate set, unknown
// projects and services are created on first sight.
func NewTraceIngester(store storage.Storage, converter *SpanConverter, autoCreate bool, logger *slog.Logger) *TraceIngester {
	if logger == nil {
		logger = slog.Default()
	}
	return &TraceIngester{
		store:      store,
		converter:  converter,
		autoCreate: autoCreate,
		logger:     logger,
	}
}

// Ingest stores the spans of req and returns how many were rejected, along
// with the last storage error if any.
func (t *TraceIngester) Ingest(ctx context.Context, req *coltracepb.ExportTraceServiceRequest) (int64, error) {
	records, rejected := t.converter.Convert(req)

	var lastErr error
	for _, r := range records {
		if err := t.ensure(ctx, r); err != nil {
			rejected++
			lastErr = err
			continue
		}
		if err := t.store.AddRecord(ctx, r); err != nil {
			rejected++
			lastErr = err
			t.logger.Warn("span rejected",
				"project", r.ProjectName,
				"service", r.ServiceName,
				"span", r.GroupBy,
				"error", err,
			)
		}
	}

	if len(records) > 0 {
		t.logger.Debug("spans ingested", "spans", len(records), "rejected", rejected)
	}
	return rejected, lastErr
}

func (t *TraceIngester) ensure(ctx context.Context, r *models.Record) error {
	if !t.autoCreate {
		return nil
	}

	key := r.ProjectName + "\x00" + r.ServiceName
	if _, ok := t.known.Load(key); ok {
		return nil
	}

	_, err, _ := t.group.Do(key, func() (interface{}, error) {
		return t.store.EnsureService(ctx, r.ProjectName, r.ServiceName)
	})
	if err != nil {
		t.logger.Error("creating service for spans",
			"project", r.ProjectName,
			"service", r.ServiceName,
			"error", err,
		)
		return err
	}

	t.known.Store(key, struct{}{})
	return nil
}
