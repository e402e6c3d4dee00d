package backend

import "context"

// Selector picks the backend that receives a new upload batch. Every file of
// a batch goes to the same backend.
type Selector interface {
	SelectBackend(ctx context.Context, totalBytes int64) (string, error)
}

// StaticSelector always picks the same backend.
type StaticSelector string

// SelectBackend returns the configured backend ID.
func (s StaticSelector) SelectBackend(context.Context, int64) (string, error) {
	if s == "" {
		return "", ErrBackendNotFound
	}
	return string(s), nil
}
