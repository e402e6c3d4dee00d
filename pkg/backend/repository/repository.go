// Package repository resolves backend IDs recorded on file metadata into
// live backend instances. Instances are created on first use and shared.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/marmos91/storagebox/internal/logger"
	"github.com/marmos91/storagebox/pkg/backend"
)

// Source looks up backend definitions. It fails backend.ErrBackendNotFound
// for unknown IDs.
type Source interface {
	GetBackendDefinition(ctx context.Context, id string) (*backend.Definition, error)
}

// StaticSource serves a fixed set of definitions, typically from the config
// file.
type StaticSource map[string]backend.Definition

// NewStaticSource indexes defs by ID.
func NewStaticSource(defs ...backend.Definition) StaticSource {
	s := make(StaticSource, len(defs))
	for _, d := range defs {
		s[d.ID] = d
	}
	return s
}

func (s StaticSource) GetBackendDefinition(_ context.Context, id string) (*backend.Definition, error) {
	d, ok := s[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", backend.ErrBackendNotFound, id)
	}
	return &d, nil
}

// Options configure a Repository.
type Options struct {
	// Create overrides how instances are built. Defaults to Create.
	Create CreateFunc
	// PresignTTL is the default lifetime of direct download URLs.
	PresignTTL time.Duration
	// Metrics, when set, instruments every instance.
	Metrics backend.Metrics
}

// Repository caches one instance per backend ID.
type Repository struct {
	mu        sync.Mutex
	source    Source
	create    CreateFunc
	metrics   backend.Metrics
	instances map[string]backend.Backend
	closed    bool
	log       *slog.Logger
}

// New creates a repository reading definitions from source.
func New(source Source, opts Options) *Repository {
	ttl := opts.PresignTTL
	if ttl <= 0 {
		ttl = backend.DefaultPresignTTL
	}
	create := opts.Create
	if create == nil {
		create = func(ctx context.Context, def backend.Definition) (backend.Backend, error) {
			return Create(ctx, def, ttl)
		}
	}
	return &Repository{
		source:    source,
		create:    create,
		metrics:   opts.Metrics,
		instances: make(map[string]backend.Backend),
		log:       logger.With(logger.KeyComponent, "backend_repository"),
	}
}

// Get returns the instance for id, creating it on first use.
func (r *Repository) Get(ctx context.Context, id string) (backend.Backend, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, backend.ErrBackendClosed
	}
	if b, ok := r.instances[id]; ok {
		return b, nil
	}
	if r.source == nil {
		return nil, fmt.Errorf("%w: %s", backend.ErrBackendNotFound, id)
	}

	def, err := r.source.GetBackendDefinition(ctx, id)
	if err != nil {
		return nil, err
	}
	b, err := r.create(ctx, *def)
	if err != nil {
		return nil, fmt.Errorf("create backend %s: %w", id, err)
	}
	b = backend.Instrument(id, b, r.metrics)
	r.instances[id] = b

	r.log.Info("Backend loaded", logger.Backend(id), "type", string(def.Type))
	return b, nil
}

// Register installs a ready instance under id, replacing any previous one.
func (r *Repository) Register(id string, b backend.Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.instances[id]; ok && old != b {
		_ = old.Close()
	}
	r.instances[id] = backend.Instrument(id, b, r.metrics)
}

// Evict closes and forgets the instance for id; the next Get reloads it from
// the source.
func (r *Repository) Evict(id string) error {
	r.mu.Lock()
	b, ok := r.instances[id]
	delete(r.instances, id)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return b.Close()
}

// HealthCheck checks every loaded instance.
func (r *Repository) HealthCheck(ctx context.Context) error {
	r.mu.Lock()
	loaded := make(map[string]backend.Backend, len(r.instances))
	for id, b := range r.instances {
		loaded[id] = b
	}
	r.mu.Unlock()

	var errs []error
	for id, b := range loaded {
		if err := b.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("backend %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every loaded instance.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	var errs []error
	for id, b := range r.instances {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("backend %s: %w", id, err))
		}
	}
	r.instances = nil
	return errors.Join(errs...)
}
