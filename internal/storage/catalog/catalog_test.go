package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/fidde/kodama/pkg/models"
)

func openCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(context.Background(), filepath.Join(t.TempDir(), FileName), nil)
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestProjects(t *testing.T) {
	ctx := context.Background()
	c := openCatalog(t)

	shop, err := c.CreateProject(ctx, "shop", "web shop")
	if err != nil {
		t.Fatalf("create shop: %v", err)
	}
	if _, err := c.CreateProject(ctx, "billing", ""); err != nil {
		t.Fatalf("create billing: %v", err)
	}

	_, err = c.CreateProject(ctx, "shop", "again")
	if !errors.Is(err, models.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}

	projects, err := c.ListProjects(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(projects) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(projects))
	}
	if projects[0] != (models.Project{ID: shop, Name: "shop", Description: "web shop"}) {
		t.Errorf("unexpected first project: %+v", projects[0])
	}

	id, err := c.ProjectID(ctx, "shop")
	if err != nil || id != shop {
		t.Errorf("expected %d, got %d (%v)", shop, id, err)
	}

	_, err = c.ProjectID(ctx, "Shop")
	if !models.IsNotFoundKind(err, models.KindProject) {
		t.Errorf("lookups are case-sensitive, expected project miss, got %v", err)
	}
}

func TestServiceResolution(t *testing.T) {
	ctx := context.Background()
	c := openCatalog(t)

	if _, err := c.CreateProject(ctx, "shop", ""); err != nil {
		t.Fatalf("create project: %v", err)
	}
	if _, err := c.CreateProject(ctx, "other", ""); err != nil {
		t.Fatalf("create project: %v", err)
	}

	api, err := c.CreateService(ctx, "shop", "api", "public api")
	if err != nil {
		t.Fatalf("create service: %v", err)
	}

	// same name in another project is a different service
	otherAPI, err := c.CreateService(ctx, "other", "api", "")
	if err != nil {
		t.Fatalf("create service in other project: %v", err)
	}
	if otherAPI == api {
		t.Error("services in different projects share an id")
	}

	_, err = c.CreateService(ctx, "shop", "api", "")
	if !errors.Is(err, models.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}

	_, err = c.CreateService(ctx, "ghost", "api", "")
	if !models.IsNotFoundKind(err, models.KindProject) {
		t.Errorf("expected project miss, got %v", err)
	}

	tests := []struct {
		name    string
		project string
		service string
		wantID  int64
		wantErr models.EntityKind
	}{
		{"found", "shop", "api", api, ""},
		{"other project", "other", "api", otherAPI, ""},
		{"missing project wins", "ghost", "nope", 0, models.KindProject},
		{"missing service", "shop", "nope", 0, models.KindService},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := c.ServiceID(ctx, tt.project, tt.service)
			if tt.wantErr != "" {
				if !models.IsNotFoundKind(err, tt.wantErr) {
					t.Fatalf("expected %s miss, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id != tt.wantID {
				t.Errorf("expected %d, got %d", tt.wantID, id)
			}
		})
	}

	var nf *models.NotFoundError
	_, err = c.ServiceID(ctx, "shop", "nope")
	if !errors.As(err, &nf) || nf.Name != "nope" {
		t.Errorf("expected service miss naming the service, got %v", err)
	}

	services, err := c.ListServices(ctx, "shop")
	if err != nil {
		t.Fatalf("list services: %v", err)
	}
	if len(services) != 1 || services[0] != (models.Service{ID: api, Name: "api", Description: "public api"}) {
		t.Errorf("unexpected services: %+v", services)
	}
}

func TestRecords(t *testing.T) {
	ctx := context.Background()
	c := openCatalog(t)

	if _, err := c.CreateProject(ctx, "shop", ""); err != nil {
		t.Fatalf("create project: %v", err)
	}
	svc, err := c.CreateService(ctx, "shop", "api", "")
	if err != nil {
		t.Fatalf("create service: %v", err)
	}

	_, found, err := c.LookupRecord(ctx, svc, "http")
	if err != nil || found {
		t.Fatalf("expected no record yet, got found=%v err=%v", found, err)
	}
	_, err = c.RecordID(ctx, svc, "http")
	if !models.IsNotFoundKind(err, models.KindRecord) {
		t.Errorf("expected record miss, got %v", err)
	}

	httpID, err := c.CreateRecord(ctx, svc, "http")
	if err != nil {
		t.Fatalf("create record: %v", err)
	}
	if _, err := c.CreateRecord(ctx, svc, "sql-query"); err != nil {
		t.Fatalf("create record: %v", err)
	}

	id, err := c.RecordID(ctx, svc, "http")
	if err != nil || id != httpID {
		t.Errorf("expected %d, got %d (%v)", httpID, id, err)
	}

	records, err := c.ListRecords(ctx, "shop", "api")
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(records) != 2 || records[0].Name != "http" || records[1].Name != "sql-query" {
		t.Errorf("unexpected records: %+v", records)
	}

	_, err = c.ListRecords(ctx, "shop", "worker")
	if !models.IsNotFoundKind(err, models.KindService) {
		t.Errorf("expected service miss, got %v", err)
	}

	if _, err := c.CreateRecord(ctx, 9999, "orphan"); err == nil {
		t.Error("expected foreign key failure for unknown service")
	}
}
