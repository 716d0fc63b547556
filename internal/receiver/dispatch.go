// Package receiver implements the ingestion endpoints: the UDP command port
// and the OTLP trace receivers (HTTP and gRPC).
package receiver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/fidde/kodama/internal/storage"
	"github.com/fidde/kodama/pkg/models"
)

// Dispatcher applies decoded commands to the store.
type Dispatcher struct {
	store         storage.Storage
	persistErrors bool
	logger        *slog.Logger
}

// NewDispatcher creates a dispatcher. Records flagged as errors are dropped
// unless persistErrors is set.
func NewDispatcher(store storage.Storage, persistErrors bool, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{store: store, persistErrors: persistErrors, logger: logger}
}

// Handle decodes one datagram and dispatches it.
func (d *Dispatcher) Handle(ctx context.Context, data []byte) error {
	if !utf8.Valid(data) {
		return fmt.Errorf("datagram is not valid utf-8")
	}

	var cmd models.Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return fmt.Errorf("decoding command: %w", err)
	}
	return d.Dispatch(ctx, cmd)
}

func (d *Dispatcher) Dispatch(ctx context.Context, cmd models.Command) error {
	switch {
	case cmd.Record != nil:
		r := cmd.Record
		if r.Failed() && !d.persistErrors {
			d.logger.Debug("dropping error record",
				"project", r.ProjectName,
				"service", r.ServiceName,
				"record", r.RecordName,
			)
			return nil
		}
		if err := d.store.AddRecord(ctx, r); err != nil {
			return fmt.Errorf("storing %s/%s/%s: %w", r.ProjectName, r.ServiceName, r.RecordName, err)
		}
		return nil

	case cmd.Metric != nil:
		m := cmd.Metric
		d.logger.Info("metric received",
			"project", m.ProjectName,
			"service", m.ServiceName,
			"metric", m.MetricName,
			"value", m.MetricValue,
		)
		return nil

	default:
		return fmt.Errorf("empty command")
	}
}
