package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fidde/kodama/pkg/query"
)

// RecordName is the record every facade statement is reported under.
const RecordName = "sql-query"

// Scanner is implemented by *sql.Rows and *sql.Row.
type Scanner interface {
	Scan(dest ...any) error
}

// ScanFunc decodes the current row.
type ScanFunc[T any] func(Scanner) (T, error)

type suppressKey struct{}

// SuppressReporting returns a context under which facade calls are not
// reported. Used while storing the reports themselves.
func SuppressReporting(ctx context.Context) context.Context {
	return context.WithValue(ctx, suppressKey{}, true)
}

func reportingSuppressed(ctx context.Context) bool {
	v, _ := ctx.Value(suppressKey{}).(bool)
	return v
}

// perform times run and reports it. A miss (sql.ErrNoRows) is not a failure.
func perform[T any](ctx context.Context, c Conn, q query.Query, run func() (T, error)) (T, error) {
	text := q.String()
	c.Logger().Debug("query", "sql", text)

	start := time.Now()
	result, err := run()
	elapsed := time.Since(start).Microseconds()

	if r := c.Reporter(); r != nil && !reportingSuppressed(ctx) {
		failed := err != nil && !errors.Is(err, sql.ErrNoRows)
		r.RecordWithError(RecordName, text, uint64(elapsed), failed)
	}
	return result, err
}

// SelectMaybe returns the first row decoded by scan, or ok=false when the
// statement yields no rows.
func SelectMaybe[T any](ctx context.Context, c Conn, q query.Query, scan ScanFunc[T], args ...any) (T, bool, error) {
	v, err := SelectOne(ctx, c, q, scan, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return v, false, nil
	}
	if err != nil {
		return v, false, err
	}
	return v, true, nil
}

// SelectOne decodes the first row, returning sql.ErrNoRows when there is none.
func SelectOne[T any](ctx context.Context, c Conn, q query.Query, scan ScanFunc[T], args ...any) (T, error) {
	return perform(ctx, c, q, func() (T, error) {
		var zero T
		rows, err := c.QueryContext(ctx, q.String(), args...)
		if err != nil {
			return zero, err
		}
		defer rows.Close()

		if !rows.Next() {
			if err := rows.Err(); err != nil {
				return zero, err
			}
			return zero, sql.ErrNoRows
		}
		v, err := scan(rows)
		if err != nil {
			return zero, fmt.Errorf("decode row: %w", err)
		}
		return v, nil
	})
}

// SelectMany decodes every row. Rows that fail to decode are logged and
// skipped; only statement and iteration errors are returned.
func SelectMany[T any](ctx context.Context, c Conn, q query.Query, scan ScanFunc[T], args ...any) ([]T, error) {
	return perform(ctx, c, q, func() ([]T, error) {
		rows, err := c.QueryContext(ctx, q.String(), args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []T
		for rows.Next() {
			v, err := scan(rows)
			if err != nil {
				c.Logger().Error("skipping malformed row", "sql", q.String(), "error", err)
				continue
			}
			out = append(out, v)
		}
		return out, rows.Err()
	})
}

// Execute runs a statement that returns no rows.
func Execute(ctx context.Context, c Conn, q query.Query, args ...any) error {
	_, err := perform(ctx, c, q, func() (struct{}, error) {
		_, err := c.ExecContext(ctx, q.String(), args...)
		return struct{}{}, err
	})
	return err
}

// Insert runs an insert and returns the rowid of the inserted row.
func Insert(ctx context.Context, c Conn, q query.Query, args ...any) (int64, error) {
	return perform(ctx, c, q, func() (int64, error) {
		res, err := c.ExecContext(ctx, q.String(), args...)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	})
}

// Exists reports whether the statement yields at least one row.
func Exists(ctx context.Context, c Conn, q query.Query, args ...any) (bool, error) {
	return perform(ctx, c, q, func() (bool, error) {
		rows, err := c.QueryContext(ctx, q.String(), args...)
		if err != nil {
			return false, err
		}
		defer rows.Close()

		found := rows.Next()
		return found, rows.Err()
	})
}
