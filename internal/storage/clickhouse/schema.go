package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const schemaVersion = "kodama-1"

// InitializeSchema creates the archive tables if they don't exist
func InitializeSchema(ctx context.Context, conn driver.Conn) error {
	if err := conn.Exec(ctx, schemaVersionTableDDL); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	currentVersion, err := getCurrentSchemaVersion(ctx, conn)
	if err != nil {
		return fmt.Errorf("checking schema version: %w", err)
	}

	if currentVersion != "" && currentVersion != schemaVersion {
		return fmt.Errorf("schema version mismatch: database has %s, code expects %s", currentVersion, schemaVersion)
	}

	if err := conn.Exec(ctx, observationsTableDDL); err != nil {
		return fmt.Errorf("creating table observations: %w", err)
	}

	if currentVersion == "" {
		if err := conn.Exec(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("setting schema version: %w", err)
		}
	}

	return nil
}

func getCurrentSchemaVersion(ctx context.Context, conn driver.Conn) (string, error) {
	var version string
	err := conn.QueryRow(ctx, "SELECT version FROM schema_version ORDER BY applied_at DESC LIMIT 1").Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	return version, nil
}

const schemaVersionTableDDL = `
CREATE TABLE IF NOT EXISTS schema_version (
    version String,
    applied_at DateTime64(3) DEFAULT now64(3)
) ENGINE = MergeTree()
ORDER BY applied_at
`

// observations mirrors every persisted record observation. Unlike the
// per-service SQLite tables it keeps colliding timestamps.
const observationsTableDDL = `
CREATE TABLE IF NOT EXISTS observations (
    project_name LowCardinality(String),
    service_name LowCardinality(String),
    record_name LowCardinality(String),
    group_by String,
    timestamp DateTime64(6),
    execution_time_us UInt64,
    error UInt8
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(timestamp)
ORDER BY (project_name, service_name, record_name, group_by, timestamp)
`
