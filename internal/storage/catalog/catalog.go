// Package catalog stores projects, services and records, and resolves names
// to ids. Lookups are case-sensitive equality matches; names are validated
// by callers, not here.
package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fidde/kodama/internal/database"
	"github.com/fidde/kodama/pkg/models"
	"github.com/fidde/kodama/pkg/query"
)

//go:embed migrations/001_catalog.up.sql
var migrationSQL string

// FileName is the catalog database inside the data directory.
const FileName = "kodama.db"

// Catalog is the catalog database.
type Catalog struct {
	db     *database.DB
	logger *slog.Logger
}

// Open opens the catalog at path, creating the schema on first use.
func Open(ctx context.Context, path string, logger *slog.Logger, opts ...database.Option) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts = append([]database.Option{
		database.WithLogger(logger),
		database.WithMigration("001_catalog", migrationSQL),
	}, opts...)

	db, err := database.Open(ctx, path, opts...)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	return &Catalog{db: db, logger: logger}, nil
}

func (c *Catalog) DB() *database.DB { return c.db }

func (c *Catalog) Close() error {
	return c.db.Close()
}

func scanID(s database.Scanner) (int64, error) {
	var id int64
	err := s.Scan(&id)
	return id, err
}

func scanProject(s database.Scanner) (models.Project, error) {
	var p models.Project
	err := s.Scan(&p.ID, &p.Name, &p.Description)
	return p, err
}

func scanService(s database.Scanner) (models.Service, error) {
	var sv models.Service
	err := s.Scan(&sv.ID, &sv.Name, &sv.Description)
	return sv, err
}

func scanRecord(s database.Scanner) (models.RecordInfo, error) {
	var r models.RecordInfo
	err := s.Scan(&r.ID, &r.Name)
	return r, err
}

// CreateProject inserts a project and returns its id.
func (c *Catalog) CreateProject(ctx context.Context, name, description string) (int64, error) {
	q := query.InsertInto("projects").
		Value("project_name", query.Param(1)).
		Value("description", query.Param(2)).
		Build()

	id, err := database.Insert(ctx, c.db, q, name, description)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return 0, fmt.Errorf("project %s: %w", name, models.ErrAlreadyExists)
		}
		return 0, fmt.Errorf("creating project %s: %w", name, err)
	}
	c.logger.Info("project created", "project", name, "id", id)
	return id, nil
}

func (c *Catalog) ListProjects(ctx context.Context) ([]models.Project, error) {
	q := query.Select(query.Col("project_id"), query.Col("project_name"), query.Col("description")).
		From("projects").
		OrderByAsc(query.Col("project_id")).
		Build()

	projects, err := database.SelectMany(ctx, c.db, q, scanProject)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	return projects, nil
}

// ProjectID resolves a project name.
func (c *Catalog) ProjectID(ctx context.Context, name string) (int64, error) {
	q := query.Select(query.Col("project_id")).
		From("projects").
		Where(query.Eq(query.Col("project_name"), query.Param(1))).
		Build()

	id, err := database.SelectOne(ctx, c.db, q, scanID, name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, models.ProjectNotFound(name)
	}
	if err != nil {
		return 0, fmt.Errorf("resolving project %s: %w", name, err)
	}
	return id, nil
}

// CreateService inserts a service under an existing project.
func (c *Catalog) CreateService(ctx context.Context, project, name, description string) (int64, error) {
	projectID, err := c.ProjectID(ctx, project)
	if err != nil {
		return 0, err
	}

	q := query.InsertInto("services").
		Value("project_id", query.Param(1)).
		Value("service_name", query.Param(2)).
		Value("description", query.Param(3)).
		Build()

	id, err := database.Insert(ctx, c.db, q, projectID, name, description)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return 0, fmt.Errorf("service %s/%s: %w", project, name, models.ErrAlreadyExists)
		}
		return 0, fmt.Errorf("creating service %s/%s: %w", project, name, err)
	}
	c.logger.Info("service created", "project", project, "service", name, "id", id)
	return id, nil
}

func (c *Catalog) ListServices(ctx context.Context, project string) ([]models.Service, error) {
	projectID, err := c.ProjectID(ctx, project)
	if err != nil {
		return nil, err
	}

	q := query.Select(query.Col("service_id"), query.Col("service_name"), query.Col("description")).
		From("services").
		Where(query.Eq(query.Col("project_id"), query.Param(1))).
		OrderByAsc(query.Col("service_id")).
		Build()

	services, err := database.SelectMany(ctx, c.db, q, scanService, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing services of %s: %w", project, err)
	}
	return services, nil
}

// ServiceID resolves a (project, service) pair. A missing project is
// reported before a missing service.
func (c *Catalog) ServiceID(ctx context.Context, project, service string) (int64, error) {
	projectID, err := c.ProjectID(ctx, project)
	if err != nil {
		return 0, err
	}

	q := query.Select(query.Col("service_id")).
		From("services").
		Where(query.Eq(query.Col("project_id"), query.Param(1))).
		Where(query.Eq(query.Col("service_name"), query.Param(2))).
		Build()

	id, err := database.SelectOne(ctx, c.db, q, scanID, projectID, service)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, models.ServiceNotFound(service)
	}
	if err != nil {
		return 0, fmt.Errorf("resolving service %s/%s: %w", project, service, err)
	}
	return id, nil
}

func recordByName() query.Query {
	return query.Select(query.Col("record_id")).
		From("records").
		Where(query.Eq(query.Col("service_id"), query.Param(1))).
		Where(query.Eq(query.Col("record_name"), query.Param(2))).
		Build()
}

// RecordID resolves a record within a service.
func (c *Catalog) RecordID(ctx context.Context, serviceID int64, name string) (int64, error) {
	id, found, err := c.LookupRecord(ctx, serviceID, name)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, models.RecordNotFound(name)
	}
	return id, nil
}

// LookupRecord is RecordID without the not-found error.
func (c *Catalog) LookupRecord(ctx context.Context, serviceID int64, name string) (int64, bool, error) {
	id, found, err := database.SelectMaybe(ctx, c.db, recordByName(), scanID, serviceID, name)
	if err != nil {
		return 0, false, fmt.Errorf("resolving record %s: %w", name, err)
	}
	return id, found, nil
}

// CreateRecord inserts the catalog row for a record. The record's table is
// created separately by the time-series store.
func (c *Catalog) CreateRecord(ctx context.Context, serviceID int64, name string) (int64, error) {
	q := query.InsertInto("records").
		Value("service_id", query.Param(1)).
		Value("record_name", query.Param(2)).
		Build()

	id, err := database.Insert(ctx, c.db, q, serviceID, name)
	if err != nil {
		return 0, fmt.Errorf("creating record %s: %w", name, err)
	}
	c.logger.Debug("record created", "service_id", serviceID, "record", name, "id", id)
	return id, nil
}

// ListRecords lists the records of a service in creation order.
func (c *Catalog) ListRecords(ctx context.Context, project, service string) ([]models.RecordInfo, error) {
	serviceID, err := c.ServiceID(ctx, project, service)
	if err != nil {
		return nil, err
	}

	q := query.Select(query.Col("record_id"), query.Col("record_name")).
		From("records").
		Where(query.Eq(query.Col("service_id"), query.Param(1))).
		OrderByAsc(query.Col("record_id")).
		Build()

	records, err := database.SelectMany(ctx, c.db, q, scanRecord, serviceID)
	if err != nil {
		return nil, fmt.Errorf("listing records of %s/%s: %w", project, service, err)
	}
	return records, nil
}
