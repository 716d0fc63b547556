package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fidde/kodama/internal/storage"
	"github.com/fidde/kodama/pkg/models"
)

func newTestServer(t *testing.T) (*httptest.Server, *storage.Store) {
	t.Helper()
	store, err := storage.New(context.Background(), storage.Config{DataDir: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	srv := httptest.NewServer(NewServer("127.0.0.1:0", store, WithVersion("test")).Handler())
	t.Cleanup(srv.Close)
	return srv, store
}

func call(t *testing.T, srv *httptest.Server, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s response: %v", path, err)
		}
	}
	return resp.StatusCode
}

func TestCatalogRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)

	var created models.CreateProjectResponse
	if code := call(t, srv, http.MethodPut, "/project", models.CreateProjectRequest{ProjectName: "shop", ProjectDescription: "web shop"}, &created); code != http.StatusOK {
		t.Fatalf("create project: status %d", code)
	}
	if created.ProjectID == 0 {
		t.Error("expected a project id")
	}

	var projects models.ListProjectsResponse
	call(t, srv, http.MethodPost, "/projects", nil, &projects)
	if len(projects.Projects) != 1 || projects.Projects[0].Description != "web shop" {
		t.Errorf("unexpected projects: %+v", projects)
	}

	var service models.CreateServiceResponse
	if code := call(t, srv, http.MethodPut, "/service", models.CreateServiceRequest{ProjectName: "shop", ServiceName: "check-out"}, &service); code != http.StatusOK {
		t.Fatalf("create service: status %d", code)
	}

	var services models.ListServicesResponse
	call(t, srv, http.MethodPost, "/services", models.ListServicesRequest{ProjectName: "shop"}, &services)
	if len(services.Services) != 1 || services.Services[0].ID != service.ServiceID {
		t.Errorf("unexpected services: %+v", services)
	}

	var records models.ListRecordsResponse
	call(t, srv, http.MethodPost, "/records", models.ListRecordsRequest{ProjectName: "shop", ServiceName: "check-out"}, &records)
	if records.Records == nil || len(records.Records) != 0 {
		t.Errorf("expected an empty record list, got %+v", records.Records)
	}
}

func TestRecordData(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()
	if _, err := store.EnsureService(ctx, "shop", "api"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	for i, us := range []uint64{40, 10, 50, 30, 20} {
		r := &models.Record{
			ProjectName: "shop", ServiceName: "api", RecordName: "http", GroupBy: "GET /",
			Timestamp: &models.Timestamp{Microseconds: uint64(i + 1)}, ExecutionTimeUs: us,
		}
		if err := store.AddRecord(ctx, r); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	var resp models.RecordDataResponse
	code := call(t, srv, http.MethodPost, "/record", models.RecordDataRequest{ProjectName: "shop", ServiceName: "api", RecordName: "http"}, &resp)
	if code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if len(resp.Entries) != 1 {
		t.Fatalf("expected one entry, got %+v", resp.Entries)
	}
	e := resp.Entries[0]
	if e.Count != 5 || e.P50 != 30 || e.P95 != 50 || e.Min != 10 || e.Max != 50 || e.Avg != 30 {
		t.Errorf("unexpected entry: %+v", e)
	}
}

func TestErrorCodes(t *testing.T) {
	srv, store := newTestServer(t)
	if _, err := store.EnsureService(context.Background(), "shop", "api"); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   uint16
	}{
		{"empty project name", http.MethodPut, "/project", models.CreateProjectRequest{}, http.StatusBadRequest, CodeInvalidProjectName},
		{"uppercase project name", http.MethodPut, "/project", models.CreateProjectRequest{ProjectName: "Shop"}, http.StatusBadRequest, CodeInvalidProjectName},
		{"duplicate project", http.MethodPut, "/project", models.CreateProjectRequest{ProjectName: "shop"}, http.StatusConflict, CodeAlreadyExists},
		{"digits in service name", http.MethodPut, "/service", models.CreateServiceRequest{ProjectName: "shop", ServiceName: "api2"}, http.StatusBadRequest, CodeInvalidServiceName},
		{"service in unknown project", http.MethodPut, "/service", models.CreateServiceRequest{ProjectName: "nope", ServiceName: "api"}, http.StatusNotFound, CodeProjectNotFound},
		{"services of unknown project", http.MethodPost, "/services", models.ListServicesRequest{ProjectName: "nope"}, http.StatusNotFound, CodeProjectNotFound},
		{"records of unknown service", http.MethodPost, "/records", models.ListRecordsRequest{ProjectName: "shop", ServiceName: "nope"}, http.StatusNotFound, CodeServiceNotFound},
		{"unknown record", http.MethodPost, "/record", models.RecordDataRequest{ProjectName: "shop", ServiceName: "api", RecordName: "nope"}, http.StatusNotFound, CodeRecordNotFound},
		{"missing record name", http.MethodPost, "/record", models.RecordDataRequest{ProjectName: "shop", ServiceName: "api"}, http.StatusBadRequest, CodeBadRequest},
		{"malformed body", http.MethodPut, "/project", "not an object", http.StatusBadRequest, CodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp models.ErrorResponse
			status := call(t, srv, tt.method, tt.path, tt.body, &resp)
			if status != tt.status {
				t.Errorf("status = %d, want %d", status, tt.status)
			}
			if resp.Code != tt.code {
				t.Errorf("code = %d, want %d (%s)", resp.Code, tt.code, resp.Message)
			}
		})
	}
}

func TestServiceNotFoundNamesService(t *testing.T) {
	srv, store := newTestServer(t)
	if _, err := store.CreateProject(context.Background(), "shop", ""); err != nil {
		t.Fatalf("create: %v", err)
	}

	var resp models.ErrorResponse
	call(t, srv, http.MethodPost, "/records", models.ListRecordsRequest{ProjectName: "shop", ServiceName: "billing"}, &resp)
	if resp.Message != "service not found: billing" {
		t.Errorf("unexpected message %q", resp.Message)
	}
}

func TestClassifyHidesInternalErrors(t *testing.T) {
	status, code, msg := classify(errors.New("disk I/O error at /var/lib/kodama"))
	if status != http.StatusInternalServerError || code != CodeInternal || msg != "internal error" {
		t.Errorf("got %d %d %q", status, code, msg)
	}
}

func TestHealth(t *testing.T) {
	srv, store := newTestServer(t)

	var health HealthResponse
	if code := call(t, srv, http.MethodGet, "/health", nil, &health); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if health.Status != "ok" || health.Version != "test" {
		t.Errorf("unexpected health: %+v", health)
	}

	store.Close()
	health = HealthResponse{}
	if code := call(t, srv, http.MethodGet, "/health", nil, &health); code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 after close, got %d", code)
	}
	if health.Status != "unavailable" {
		t.Errorf("unexpected health: %+v", health)
	}
}
