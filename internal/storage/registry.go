package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fidde/kodama/internal/storage/timeseries"
)

type serviceKey struct {
	project string
	service string
}

// Handle is a cached, open per-service store. All use of the store goes
// through Do, which serializes callers.
type Handle struct {
	serviceID int64

	mu      sync.Mutex
	store   *timeseries.Store
	records map[string]int64
}

func (h *Handle) ServiceID() int64 { return h.serviceID }

// Do runs fn with exclusive access to the store and its record-id cache.
func (h *Handle) Do(fn func(store *timeseries.Store, records map[string]int64) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return fn(h.store, h.records)
}

// Registry caches open per-service stores, indexed by (project, service)
// and by service id. Handles live until Close.
type Registry struct {
	dir    string
	opts   []timeseries.Option
	logger *slog.Logger

	mu    sync.Mutex
	byKey map[serviceKey]*Handle
	byID  map[int64]*Handle
}

func NewRegistry(dir string, logger *slog.Logger, opts ...timeseries.Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		dir:    dir,
		opts:   opts,
		logger: logger,
		byKey:  make(map[serviceKey]*Handle),
		byID:   make(map[int64]*Handle),
	}
}

// Get returns the handle of (project, service), opening the store on
// first access. resolve maps the pair to a service id and is only called
// on a cache miss.
func (r *Registry) Get(ctx context.Context, project, service string, resolve func() (int64, error)) (*Handle, error) {
	key := serviceKey{project: project, service: service}

	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.byKey[key]; ok {
		return h, nil
	}

	id, err := resolve()
	if err != nil {
		return nil, err
	}

	h, ok := r.byID[id]
	if !ok {
		h, err = r.open(ctx, id)
		if err != nil {
			return nil, err
		}
		r.byID[id] = h
	}
	r.byKey[key] = h
	return h, nil
}

// ByID returns an already open handle.
func (r *Registry) ByID(serviceID int64) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.byID[serviceID]
	return h, ok
}

// Len returns the number of open stores.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

func (r *Registry) open(ctx context.Context, serviceID int64) (*Handle, error) {
	store, err := timeseries.Open(ctx, r.dir, serviceID, r.logger, r.opts...)
	if err != nil {
		return nil, fmt.Errorf("opening store of service %d: %w", serviceID, err)
	}
	r.logger.Debug("service store opened", "service_id", serviceID)
	return &Handle{
		serviceID: serviceID,
		store:     store,
		records:   make(map[string]int64),
	}, nil
}

// Close closes every open store. Handles must not be used afterwards.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for id, h := range r.byID {
		h.mu.Lock()
		if err := h.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing service %d: %w", id, err))
		}
		h.mu.Unlock()
	}
	r.byKey = make(map[serviceKey]*Handle)
	r.byID = make(map[int64]*Handle)
	return errors.Join(errs...)
}
