// Package storage ties the catalog to the per-service time-series stores.
package storage

import (
	"context"

	"github.com/fidde/kodama/pkg/models"
)

// Storage is the interface the receivers and the admin API work against.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Catalog operations
	CreateProject(ctx context.Context, name, description string) (int64, error)
	ListProjects(ctx context.Context) ([]models.Project, error)
	CreateService(ctx context.Context, project, name, description string) (int64, error)
	ListServices(ctx context.Context, project string) ([]models.Service, error)
	ListRecords(ctx context.Context, project, service string) ([]models.RecordInfo, error)

	// EnsureService creates the project and service when missing and
	// returns the service id.
	EnsureService(ctx context.Context, project, service string) (int64, error)

	// AddRecord persists one observation, provisioning the record on
	// first use.
	AddRecord(ctx context.Context, record *models.Record) error

	// RecordEntries aggregates a record per group_by value.
	RecordEntries(ctx context.Context, project, service, record string) ([]models.DataEntry, error)

	// Ping checks the catalog database is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Archive receives a copy of every persisted observation. Archive must not
// block and must not fail the ingestion path.
type Archive interface {
	Archive(ctx context.Context, obs models.Observation)
	Close() error
}
