package models

import (
	"errors"

	"github.com/marmos91/storagebox/pkg/backend"
)

// Common errors for control plane operations.
var (
	// ErrBackendNotFound is backend.ErrBackendNotFound so a Repository can
	// recognise it through errors.Is.
	ErrBackendNotFound  = backend.ErrBackendNotFound
	ErrDuplicateBackend = errors.New("backend already exists")
	ErrInvalidBackend   = errors.New("invalid backend definition")
)
