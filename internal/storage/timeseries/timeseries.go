// Package timeseries stores the observations of one service, one table per
// record, and aggregates them into per-group statistics.
package timeseries

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"time"

	"github.com/fidde/kodama/internal/database"
	"github.com/fidde/kodama/pkg/models"
	"github.com/fidde/kodama/pkg/query"
)

// Percentiles reported for every group.
const (
	P50 = 50
	P95 = 95
)

// FileName returns the database file of a service.
func FileName(serviceID int64) string {
	return fmt.Sprintf("service-%d.db", serviceID)
}

func tableName(recordID int64) string {
	return fmt.Sprintf("record_%d", recordID)
}

type Option func(*Store)

// WithClock replaces the clock used to stamp observations without a
// timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithDatabaseOptions(opts ...database.Option) Option {
	return func(s *Store) { s.dbOpts = append(s.dbOpts, opts...) }
}

// Store is the database of a single service. It is not safe for
// concurrent writers; callers serialize access.
type Store struct {
	db        *database.DB
	serviceID int64
	now       func() time.Time
	logger    *slog.Logger
	dbOpts    []database.Option
}

// Open opens the store of serviceID inside dir.
func Open(ctx context.Context, dir string, serviceID int64, logger *slog.Logger, opts ...Option) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		serviceID: serviceID,
		now:       time.Now,
		logger:    logger.With("service_id", serviceID),
	}
	for _, opt := range opts {
		opt(s)
	}

	dbOpts := append([]database.Option{
		database.WithLogger(s.logger),
		database.WithMaxOpenConns(1),
	}, s.dbOpts...)

	db, err := database.Open(ctx, filepath.Join(dir, FileName(serviceID)), dbOpts...)
	if err != nil {
		return nil, fmt.Errorf("opening service %d: %w", serviceID, err)
	}
	s.db = db
	return s, nil
}

func (s *Store) ServiceID() int64 { return s.serviceID }

func (s *Store) Close() error {
	return s.db.Close()
}

// DefineRecord creates the table of a record if it does not exist yet.
func (s *Store) DefineRecord(ctx context.Context, recordID int64) error {
	table := tableName(recordID)
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
    timestamp INTEGER PRIMARY KEY,
    group_by TEXT NOT NULL,
    execution_time_us INTEGER NOT NULL,
    error INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_%[1]s_group ON %[1]s (group_by, execution_time_us)`, table)

	if err := database.Execute(ctx, s.db, query.Raw(ddl)); err != nil {
		return fmt.Errorf("defining %s: %w", table, err)
	}
	s.logger.Debug("record defined", "record_id", recordID)
	return nil
}

// Timestamp returns ts, or the current time when ts is nil.
func (s *Store) Timestamp(ts *models.Timestamp) (models.Timestamp, error) {
	if ts != nil {
		return *ts, nil
	}
	return models.TimestampOf(s.now())
}

// AddRecord stores one observation. A second observation with the same
// timestamp replaces the first.
func (s *Store) AddRecord(ctx context.Context, recordID int64, ts *models.Timestamp, groupBy string, executionTimeUs uint64, failed bool) error {
	stamp, err := s.Timestamp(ts)
	if err != nil {
		return err
	}
	// columns are signed 64-bit
	if stamp.Microseconds > math.MaxInt64 {
		return fmt.Errorf("%w: %d µs is out of range", models.ErrInvalidTimestamp, stamp.Microseconds)
	}
	if executionTimeUs > math.MaxInt64 {
		return fmt.Errorf("%w: execution time %d µs is out of range", models.ErrInvalidMeasurement, executionTimeUs)
	}

	var flag int64
	if failed {
		flag = 1
	}

	q := query.InsertInto(tableName(recordID)).
		OrReplace().
		Value("timestamp", query.Param(1)).
		Value("group_by", query.Param(2)).
		Value("execution_time_us", query.Param(3)).
		Value("error", query.Param(4)).
		Build()

	_, err = database.Insert(ctx, s.db, q, int64(stamp.Microseconds), groupBy, int64(executionTimeUs), flag)
	if err != nil {
		return fmt.Errorf("adding to record %d: %w", recordID, err)
	}
	return nil
}

func scanAggregate(sc database.Scanner) (models.DataEntry, error) {
	var (
		e           models.DataEntry
		sum, hi, lo int64
		avg         float64
	)
	if err := sc.Scan(&e.GroupBy, &e.Count, &sum, &avg, &hi, &lo, &e.Errors); err != nil {
		return e, err
	}
	e.ExecutionTime = uint64(sum)
	e.Avg = uint64(math.Round(avg))
	e.Max = uint64(hi)
	e.Min = uint64(lo)
	return e, nil
}

func scanDuration(sc database.Scanner) (uint64, error) {
	var v int64
	err := sc.Scan(&v)
	return uint64(v), err
}

// RecordEntries aggregates a record per group_by value, ordered by group.
func (s *Store) RecordEntries(ctx context.Context, recordID int64) ([]models.DataEntry, error) {
	table := tableName(recordID)
	us := query.Col("execution_time_us")

	aggregate := query.Select(
		query.Col("group_by"),
		query.CountAll(),
		query.Sum(us),
		query.Avg(us),
		query.Max(us),
		query.Min(us),
		query.Sum(query.BoolToInteger(query.Gt(query.Col("error"), query.Int(0)))),
	).
		From(table).
		GroupBy(query.Col("group_by")).
		OrderByAsc(query.Col("group_by")).
		Build()

	entries, err := database.SelectMany(ctx, s.db, aggregate, scanAggregate)
	if err != nil {
		return nil, fmt.Errorf("aggregating %s: %w", table, err)
	}

	for i := range entries {
		e := &entries[i]
		if e.P50, err = s.percentile(ctx, table, e.GroupBy, e.Count, P50); err != nil {
			return nil, err
		}
		if e.P95, err = s.percentile(ctx, table, e.GroupBy, e.Count, P95); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// percentile returns the nearest-rank value at offset count*p/100 of the
// ascending execution times of a group.
func (s *Store) percentile(ctx context.Context, table, groupBy string, count int64, p int64) (uint64, error) {
	q := query.Select(query.Col("execution_time_us")).
		From(table).
		Where(query.Eq(query.Col("group_by"), query.Param(1))).
		OrderByAsc(query.Col("execution_time_us")).
		Limit(query.Int(1)).
		Offset(query.Param(2)).
		Build()

	v, err := database.SelectOne(ctx, s.db, q, scanDuration, groupBy, count*p/100)
	if err != nil {
		return 0, fmt.Errorf("p%d of %s/%s: %w", p, table, groupBy, err)
	}
	return v, nil
}
