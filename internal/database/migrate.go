package database

import (
	"context"
	"fmt"

	"github.com/fidde/kodama/pkg/query"
)

const migrationsTable = `CREATE TABLE IF NOT EXISTS migrations (
    version TEXT PRIMARY KEY
)`

// migrate applies each migration not yet recorded in the migrations table,
// one transaction per migration. Bookkeeping statements are not reported.
func (d *DB) migrate(ctx context.Context, migrations []Migration) error {
	ctx = SuppressReporting(ctx)

	if err := Execute(ctx, d, query.Raw(migrationsTable)); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	for _, m := range migrations {
		applied, err := Exists(ctx, d,
			query.Select(query.Col("version")).
				From("migrations").
				Where(query.Eq(query.Col("version"), query.Param(1))).
				Build(),
			m.Version)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", m.Version, err)
		}
		if applied {
			continue
		}

		d.logger.Debug("applying migration", "version", m.Version, "path", d.path)
		err = d.InTx(ctx, func(tx *Tx) error {
			if err := Execute(ctx, tx, query.Raw(m.SQL)); err != nil {
				return err
			}
			_, err := Insert(ctx, tx,
				query.InsertInto("migrations").Value("version", query.Param(1)).Build(),
				m.Version)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", m.Version, err)
		}
	}
	return nil
}
