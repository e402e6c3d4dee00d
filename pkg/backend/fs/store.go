// Package fs provides a backend that stores objects as files under a local
// directory.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/marmos91/storagebox/pkg/backend"
	"github.com/marmos91/storagebox/pkg/bufpool"
)

// Option customizes a Store.
type Option func(*Store)

// WithModes sets the permissions of created directories and files.
func WithModes(dir, file os.FileMode) Option {
	return func(s *Store) {
		s.dirMode, s.fileMode = dir, file
	}
}

// WithExistingRoot makes New fail when the root directory is missing
// instead of creating it.
func WithExistingRoot() Option {
	return func(s *Store) { s.mustExist = true }
}

// Store keeps each object in its own file under a root directory.
type Store struct {
	mu        sync.RWMutex
	basePath  string
	dirMode   os.FileMode
	fileMode  os.FileMode
	mustExist bool
	closed    bool
}

// New opens a backend rooted at root, creating the directory unless
// WithExistingRoot is given.
func New(root string, opts ...Option) (*Store, error) {
	if root == "" {
		return nil, errors.New("fs backend: root path is required")
	}
	s := &Store{basePath: root, dirMode: 0755, fileMode: 0644}
	for _, opt := range opts {
		opt(s)
	}

	if !s.mustExist {
		if err := os.MkdirAll(root, s.dirMode); err != nil {
			return nil, fmt.Errorf("fs backend: %w", err)
		}
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("fs backend: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("fs backend: %s is not a directory", root)
	}
	return s, nil
}

// BasePath returns the root directory.
func (s *Store) BasePath() string {
	return s.basePath
}

// objectPath maps a URI to a path under the base directory. URIs that would
// escape it are rejected.
func (s *Store) objectPath(uri string) (string, error) {
	rel := filepath.FromSlash(uri)
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("fs backend: invalid object uri %q", uri)
	}
	return filepath.Join(s.basePath, rel), nil
}

// ObtainObjectURI returns "<2 hex>/<uuid>" so no single directory grows
// unbounded.
func (s *Store) ObtainObjectURI(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	return id[:2] + "/" + id, nil
}

// UploadStream writes to a temporary file first, then renames it into place.
// Readers never observe a partial object.
func (s *Store) UploadStream(ctx context.Context, uri string, r io.Reader, size int64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return backend.ErrBackendClosed
	}

	path, err := s.objectPath(uri)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, s.dirMode); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	limited, check := backend.LimitStream(&contextReader{ctx: ctx, r: r}, size)
	if _, err := bufpool.Copy(tmp, limited, size); err != nil {
		return err
	}
	if err := check(uri); err != nil {
		return err
	}
	if err := tmp.Chmod(s.fileMode); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) DownloadStream(ctx context.Context, uri string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, backend.ErrBackendClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.objectPath(uri)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, backend.ErrObjectNotFound
		}
		return nil, err
	}
	return f, nil
}

func (s *Store) DeleteFile(ctx context.Context, uri string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return backend.ErrBackendClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.objectPath(uri)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return backend.ErrBackendClosed
	}
	if _, err := os.Stat(s.basePath); err != nil {
		return fmt.Errorf("fs backend health check failed: %w", err)
	}
	return ctx.Err()
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// contextReader stops a copy once the context is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

var _ backend.Backend = (*Store)(nil)
