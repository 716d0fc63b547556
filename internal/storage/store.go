package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fidde/kodama/internal/database"
	"github.com/fidde/kodama/internal/storage/catalog"
	"github.com/fidde/kodama/internal/storage/timeseries"
	"github.com/fidde/kodama/pkg/models"
)

// Config holds storage configuration.
type Config struct {
	// DataDir holds the catalog and one database per service
	DataDir string

	// SelfProject and SelfService name the server's own telemetry. Records
	// stored under them are not reported again.
	SelfProject string
	SelfService string

	// Reporter, when set, receives the latency of every statement
	Reporter database.Reporter

	// Archive, when set, receives every persisted observation
	Archive Archive

	// Clock stamps observations that arrive without a timestamp
	Clock func() time.Time
}

// Store is the top-level Storage implementation. It owns the catalog and
// the registry of per-service stores.
type Store struct {
	catalog  *catalog.Catalog
	registry *Registry
	archive  Archive
	self     serviceKey
	logger   *slog.Logger
}

var _ Storage = (*Store)(nil)

// New opens the catalog in cfg.DataDir, creating the directory if needed.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DataDir == "" {
		return nil, errors.New("data directory is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	var dbOpts []database.Option
	if cfg.Reporter != nil {
		dbOpts = append(dbOpts, database.WithReporter(cfg.Reporter))
	}

	cat, err := catalog.Open(ctx, filepath.Join(cfg.DataDir, catalog.FileName), logger, dbOpts...)
	if err != nil {
		return nil, err
	}

	tsOpts := []timeseries.Option{timeseries.WithDatabaseOptions(dbOpts...)}
	if cfg.Clock != nil {
		tsOpts = append(tsOpts, timeseries.WithClock(cfg.Clock))
	}

	logger.Info("storage opened", "data_dir", cfg.DataDir, "archive", cfg.Archive != nil)
	return &Store{
		catalog:  cat,
		registry: NewRegistry(cfg.DataDir, logger, tsOpts...),
		archive:  cfg.Archive,
		self:     serviceKey{project: cfg.SelfProject, service: cfg.SelfService},
		logger:   logger,
	}, nil
}

func (s *Store) CreateProject(ctx context.Context, name, description string) (int64, error) {
	return s.catalog.CreateProject(ctx, name, description)
}

func (s *Store) ListProjects(ctx context.Context) ([]models.Project, error) {
	return s.catalog.ListProjects(ctx)
}

func (s *Store) CreateService(ctx context.Context, project, name, description string) (int64, error) {
	return s.catalog.CreateService(ctx, project, name, description)
}

func (s *Store) ListServices(ctx context.Context, project string) ([]models.Service, error) {
	return s.catalog.ListServices(ctx, project)
}

func (s *Store) ListRecords(ctx context.Context, project, service string) ([]models.RecordInfo, error) {
	return s.catalog.ListRecords(ctx, project, service)
}

func (s *Store) EnsureService(ctx context.Context, project, service string) (int64, error) {
	_, err := s.catalog.ProjectID(ctx, project)
	if models.IsNotFoundKind(err, models.KindProject) {
		_, err = s.catalog.CreateProject(ctx, project, "")
		if errors.Is(err, models.ErrAlreadyExists) {
			err = nil
		}
	}
	if err != nil {
		return 0, err
	}

	id, err := s.catalog.ServiceID(ctx, project, service)
	if !models.IsNotFoundKind(err, models.KindService) {
		return id, err
	}
	id, err = s.catalog.CreateService(ctx, project, service, "")
	if errors.Is(err, models.ErrAlreadyExists) {
		return s.catalog.ServiceID(ctx, project, service)
	}
	return id, err
}

func (s *Store) handle(ctx context.Context, project, service string) (*Handle, error) {
	return s.registry.Get(ctx, project, service, func() (int64, error) {
		return s.catalog.ServiceID(ctx, project, service)
	})
}

func (s *Store) isSelf(project, service string) bool {
	return s.self.project != "" && s.self == serviceKey{project: project, service: service}
}

func (s *Store) AddRecord(ctx context.Context, record *models.Record) error {
	if s.isSelf(record.ProjectName, record.ServiceName) {
		ctx = database.SuppressReporting(ctx)
	}

	h, err := s.handle(ctx, record.ProjectName, record.ServiceName)
	if err != nil {
		return err
	}

	var stamp models.Timestamp
	err = h.Do(func(ts *timeseries.Store, records map[string]int64) error {
		recordID, err := s.provision(ctx, h.ServiceID(), ts, records, record.RecordName)
		if err != nil {
			return err
		}

		if stamp, err = ts.Timestamp(record.Timestamp); err != nil {
			return err
		}
		return ts.AddRecord(ctx, recordID, &stamp, record.GroupBy, record.ExecutionTimeUs, record.Failed())
	})
	if err != nil {
		return err
	}

	if s.archive != nil {
		s.archive.Archive(ctx, models.Observation{
			ProjectName:     record.ProjectName,
			ServiceName:     record.ServiceName,
			RecordName:      record.RecordName,
			GroupBy:         record.GroupBy,
			Timestamp:       stamp,
			ExecutionTimeUs: record.ExecutionTimeUs,
			Failed:          record.Failed(),
		})
	}
	return nil
}

// provision returns the id of a record, creating the catalog row and then
// the record table when the record is new. The two steps are not atomic: a
// failure between them leaves a catalog row without a table.
// Must be called under the handle's lock.
func (s *Store) provision(ctx context.Context, serviceID int64, ts *timeseries.Store, records map[string]int64, name string) (int64, error) {
	if id, ok := records[name]; ok {
		return id, nil
	}

	id, found, err := s.catalog.LookupRecord(ctx, serviceID, name)
	if err != nil {
		return 0, err
	}
	if !found {
		if id, err = s.catalog.CreateRecord(ctx, serviceID, name); err != nil {
			return 0, err
		}
		if err := ts.DefineRecord(ctx, id); err != nil {
			return 0, err
		}
	}

	records[name] = id
	return id, nil
}

func (s *Store) RecordEntries(ctx context.Context, project, service, record string) ([]models.DataEntry, error) {
	h, err := s.handle(ctx, project, service)
	if err != nil {
		return nil, err
	}

	var entries []models.DataEntry
	err = h.Do(func(ts *timeseries.Store, records map[string]int64) error {
		var err error
		recordID, ok := records[record]
		if !ok {
			if recordID, err = s.catalog.RecordID(ctx, h.ServiceID(), record); err != nil {
				return err
			}
		}
		entries, err = ts.RecordEntries(ctx, recordID)
		return err
	})
	return entries, err
}

func (s *Store) Ping(ctx context.Context) error {
	return s.catalog.DB().Ping(ctx)
}

// Close closes every service store, the catalog and the archive.
func (s *Store) Close() error {
	errs := []error{s.registry.Close(), s.catalog.Close()}
	if s.archive != nil {
		errs = append(errs, s.archive.Close())
	}
	return errors.Join(errs...)
}
