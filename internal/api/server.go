// Package api serves the admin surface: catalog management and record
// statistics over JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/fidde/kodama/internal/storage"
	"github.com/fidde/kodama/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxRequestBody bounds admin request bodies.
const maxRequestBody = 1 << 20

// Server is the admin API server.
type Server struct {
	store   storage.Storage
	router  *chi.Mux
	server  *http.Server
	logger  *slog.Logger
	version string

	mu       sync.Mutex
	listener net.Listener
}

type Option func(*Server)

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server.
func NewServer(addr string, store storage.Storage, opts ...Option) *Server {
	s := &Server{
		store:  store,
		router: chi.NewRouter(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Get("/health", s.HandleHealth)

	s.router.Put("/project", s.createProject)
	s.router.Post("/projects", s.listProjects)
	s.router.Put("/service", s.createService)
	s.router.Post("/services", s.listServices)
	s.router.Post("/records", s.listRecords)
	s.router.Post("/record", s.recordData)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Listen binds the listener.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}
	lis, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = lis
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start starts the API server.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.mu.Lock()
	lis := s.listener
	s.mu.Unlock()

	s.logger.Info("admin api listening", "addr", lis.Addr().String())
	if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// createProject creates a project.
// PUT /project
func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var req models.CreateProjectRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := models.ValidateName(req.ProjectName); err != nil {
		s.respondError(w, http.StatusBadRequest, CodeInvalidProjectName, err.Error())
		return
	}

	id, err := s.store.CreateProject(r.Context(), req.ProjectName, req.ProjectDescription)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, models.CreateProjectResponse{ProjectID: id})
}

// listProjects lists every project.
// POST /projects
func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context())
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, models.ListProjectsResponse{Projects: nonNil(projects)})
}

// createService creates a service within a project.
// PUT /service
func (s *Server) createService(w http.ResponseWriter, r *http.Request) {
	var req models.CreateServiceRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := models.ValidateName(req.ProjectName); err != nil {
		s.respondError(w, http.StatusBadRequest, CodeInvalidProjectName, err.Error())
		return
	}
	if err := models.ValidateName(req.ServiceName); err != nil {
		s.respondError(w, http.StatusBadRequest, CodeInvalidServiceName, err.Error())
		return
	}

	id, err := s.store.CreateService(r.Context(), req.ProjectName, req.ServiceName, req.ServiceDescription)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, models.CreateServiceResponse{ServiceID: id})
}

// listServices lists the services of a project.
// POST /services
func (s *Server) listServices(w http.ResponseWriter, r *http.Request) {
	var req models.ListServicesRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := models.ValidateName(req.ProjectName); err != nil {
		s.respondError(w, http.StatusBadRequest, CodeInvalidProjectName, err.Error())
		return
	}

	services, err := s.store.ListServices(r.Context(), req.ProjectName)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, models.ListServicesResponse{Services: nonNil(services)})
}

// listRecords lists the records of a service.
// POST /records
func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	var req models.ListRecordsRequest
	if !s.decode(w, r, &req) {
		return
	}
	if !s.validatePair(w, req.ProjectName, req.ServiceName) {
		return
	}

	records, err := s.store.ListRecords(r.Context(), req.ProjectName, req.ServiceName)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, models.ListRecordsResponse{Records: nonNil(records)})
}

// recordData returns the per-group statistics of a record.
// POST /record
func (s *Server) recordData(w http.ResponseWriter, r *http.Request) {
	var req models.RecordDataRequest
	if !s.decode(w, r, &req) {
		return
	}
	if !s.validatePair(w, req.ProjectName, req.ServiceName) {
		return
	}
	if req.RecordName == "" {
		s.respondError(w, http.StatusBadRequest, CodeBadRequest, "record_name is required")
		return
	}

	entries, err := s.store.RecordEntries(r.Context(), req.ProjectName, req.ServiceName, req.RecordName)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, models.RecordDataResponse{Entries: nonNil(entries)})
}

func (s *Server) validatePair(w http.ResponseWriter, project, service string) bool {
	if err := models.ValidateName(project); err != nil {
		s.respondError(w, http.StatusBadRequest, CodeInvalidProjectName, err.Error())
		return false
	}
	if err := models.ValidateName(service); err != nil {
		s.respondError(w, http.StatusBadRequest, CodeInvalidServiceName, err.Error())
		return false
	}
	return true
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// respondJSON writes a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Debug("writing response", "error", err)
	}
}

// respondError writes an error response.
func (s *Server) respondError(w http.ResponseWriter, status int, code uint16, message string) {
	s.respondJSON(w, status, models.ErrorResponse{Code: code, Message: message})
}

func (s *Server) respondStoreError(w http.ResponseWriter, err error) {
	status, code, message := classify(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("admin request failed", "error", err)
	}
	s.respondError(w, status, code, message)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// requestLogger logs each request at debug level, or warn on server errors.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			level := slog.LevelDebug
			if ww.Status() >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "admin request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
