// Package memory provides an in-memory backend for tests and development.
package memory

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/marmos91/storagebox/pkg/backend"
)

// Store keeps objects in a map. Contents are lost on Close.
type Store struct {
	mu      sync.RWMutex
	objects map[string][]byte
	closed  bool
}

// New creates an empty in-memory backend.
func New() *Store {
	return &Store{objects: make(map[string][]byte)}
}

func (s *Store) ObtainObjectURI(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return uuid.NewString(), nil
}

func (s *Store) UploadStream(ctx context.Context, uri string, r io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	limited, check := backend.LimitStream(r, size)
	var buf bytes.Buffer
	if size > 0 {
		buf.Grow(int(size))
	}
	if _, err := io.Copy(&buf, limited); err != nil {
		return err
	}
	if err := check(uri); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return backend.ErrBackendClosed
	}
	s.objects[uri] = buf.Bytes()
	return nil
}

func (s *Store) DownloadStream(ctx context.Context, uri string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, backend.ErrBackendClosed
	}
	data, ok := s.objects[uri]
	if !ok {
		return nil, backend.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *Store) DeleteFile(ctx context.Context, uri string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return backend.ErrBackendClosed
	}
	delete(s.objects, uri)
	return nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return backend.ErrBackendClosed
	}
	return ctx.Err()
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.objects = nil
	return nil
}

// Len returns the number of stored objects.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// Has reports whether an object exists at uri.
func (s *Store) Has(uri string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[uri]
	return ok
}

var _ backend.Backend = (*Store)(nil)
