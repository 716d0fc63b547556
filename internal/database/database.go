// Package database wraps database/sql with the statement facade every kodama
// storage operation goes through. Each facade call is timed and, when the
// connection carries a Reporter, reported back as a "sql-query" record.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"

	_ "modernc.org/sqlite"
)

// Reporter receives the latency of every statement run through the facade.
// Implementations must not block.
type Reporter interface {
	RecordWithError(record, groupBy string, executionTimeUs uint64, failed bool)
}

// Conn is a handle statements can run against: a *DB or a *Tx.
type Conn interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)

	// Reporter returns nil when statements are not reported.
	Reporter() Reporter
	Logger() *slog.Logger
}

// Migration is applied once per database, in declaration order.
type Migration struct {
	Version string
	SQL     string
}

type options struct {
	reporter     Reporter
	logger       *slog.Logger
	migrations   []Migration
	maxOpenConns int
}

type Option func(*options)

// WithReporter reports every statement's latency to r.
func WithReporter(r Reporter) Option {
	return func(o *options) { o.reporter = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMigration registers a migration applied during Open.
func WithMigration(version, sql string) Option {
	return func(o *options) {
		o.migrations = append(o.migrations, Migration{Version: version, SQL: sql})
	}
}

// WithMaxOpenConns caps the pool. A value of 1 gives a single-writer file.
func WithMaxOpenConns(n int) Option {
	return func(o *options) { o.maxOpenConns = n }
}

// DB is an open SQLite database.
type DB struct {
	db       *sql.DB
	path     string
	reporter Reporter
	logger   *slog.Logger
}

// pragmas go in the DSN so every pooled connection gets them.
var pragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"temp_store(MEMORY)",
	"busy_timeout(5000)",
	"foreign_keys(1)",
}

func dsn(path string) string {
	v := url.Values{}
	for _, p := range pragmas {
		v.Add("_pragma", p)
	}
	return path + "?" + v.Encode()
}

// Open opens (creating if needed) the SQLite file at path, applies the
// connection pragmas and runs pending migrations.
func Open(ctx context.Context, path string, opts ...Option) (*DB, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	sqldb, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if o.maxOpenConns > 0 {
		sqldb.SetMaxOpenConns(o.maxOpenConns)
	}
	if err := sqldb.PingContext(ctx); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db := &DB{
		db:       sqldb,
		path:     path,
		reporter: o.reporter,
		logger:   o.logger,
	}

	if err := db.migrate(ctx, o.migrations); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return db, nil
}

func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.db.QueryContext(ctx, query, args...)
}

func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.db.ExecContext(ctx, query, args...)
}

func (d *DB) Reporter() Reporter { return d.reporter }

func (d *DB) Logger() *slog.Logger { return d.logger }

// Path returns the file the database was opened from.
func (d *DB) Path() string { return d.path }

func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Begin starts a deferred transaction. Statements run on the returned Tx
// are reported like those run on d.
func (d *DB) Begin(ctx context.Context) (*Tx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{tx: tx, reporter: d.reporter, logger: d.logger}, nil
}

// InTx runs fn inside a transaction, committing when fn returns nil.
func (d *DB) InTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := d.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
