// Package store provides the control plane persistence layer.
//
// The control plane records which storage backends exist. Every file row
// in the metadata store names its backend by ID; this registry maps that ID
// back to the type and settings needed to reach the bytes.
//
// Two databases are supported:
//   - SQLite (single-node, default)
//   - PostgreSQL (HA-capable)
package store

import (
	"context"

	"github.com/marmos91/storagebox/pkg/backend"
	"github.com/marmos91/storagebox/pkg/controlplane/models"
)

// Store provides the control plane persistence interface.
//
// Thread Safety: Implementations must be safe for concurrent use from multiple
// goroutines.
type Store interface {
	// ============================================
	// BACKEND OPERATIONS
	// ============================================

	// GetBackend returns a backend by ID.
	// Returns models.ErrBackendNotFound if it doesn't exist.
	GetBackend(ctx context.Context, id string) (*models.BackendConfig, error)

	// ListBackends returns all backends ordered by ID.
	ListBackends(ctx context.Context) ([]*models.BackendConfig, error)

	// CreateBackend registers a backend.
	// Returns models.ErrDuplicateBackend if the ID is taken.
	CreateBackend(ctx context.Context, b *models.BackendConfig) error

	// UpdateBackend replaces the type and settings of a backend.
	// Returns models.ErrBackendNotFound if it doesn't exist.
	UpdateBackend(ctx context.Context, b *models.BackendConfig) error

	// DeleteBackend removes a backend.
	// Returns models.ErrBackendNotFound if it doesn't exist.
	DeleteBackend(ctx context.Context, id string) error

	// SeedBackends registers every definition whose ID is not yet known.
	// Existing rows are left alone so runtime edits survive restarts.
	SeedBackends(ctx context.Context, defs []backend.Definition) (int, error)

	// GetBackendDefinition resolves an ID for a backend repository.
	GetBackendDefinition(ctx context.Context, id string) (*backend.Definition, error)

	// ============================================
	// HEALTH & LIFECYCLE
	// ============================================

	// Healthcheck verifies the database is reachable.
	Healthcheck(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
