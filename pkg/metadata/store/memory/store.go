// Package memory implements metadata.Store with in-process maps guarded by a
// single mutex. Data is lost on restart; it backs tests and single-node
// development setups.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/marmos91/storagebox/pkg/metadata"
)

// ErrStoreClosed is returned by every operation after Close.
var ErrStoreClosed = errors.New("memory metadata store is closed")

// childKey addresses a name inside a directory. parent is 0 for the root,
// which no real entry uses since sequences start at 1.
type childKey struct {
	parent metadata.EntryID
	name   string
}

type grantKey struct {
	criterion  metadata.Criterion
	revocation metadata.Criterion
}

// filesystemState holds one filesystem and its private sequences.
type filesystemState struct {
	fs          metadata.Filesystem
	nextEntryID metadata.EntryID
	nextFileID  metadata.FileID

	entries  map[metadata.EntryID]*metadata.Entry
	children map[childKey]metadata.EntryID
	files    map[metadata.FileID]*metadata.File

	fsGrants    map[metadata.Criterion]metadata.FilesystemPermissions
	entryGrants map[metadata.EntryID]map[grantKey]*metadata.EntryGrant
}

type fileKey struct {
	fs   metadata.FilesystemID
	file metadata.FileID
}

// MemoryMetadataStore is an in-memory metadata.Store.
//
// All mutations take the write lock for their whole duration, which makes
// each of them atomic. Reclamation marks selected rows as claimed so that
// concurrent passes skip them, like row locks with SKIP LOCKED.
type MemoryMetadataStore struct {
	mu     sync.RWMutex
	opts   metadata.Options
	closed bool

	nextFilesystemID metadata.FilesystemID
	filesystems      map[metadata.FilesystemID]*filesystemState
	aliases          map[string]metadata.FilesystemID

	claimed map[fileKey]struct{}
}

var _ metadata.Store = (*MemoryMetadataStore)(nil)

// NewMemoryMetadataStore creates an empty store.
func NewMemoryMetadataStore(opts metadata.Options) *MemoryMetadataStore {
	return &MemoryMetadataStore{
		opts:        opts.WithDefaults(),
		filesystems: make(map[metadata.FilesystemID]*filesystemState),
		aliases:     make(map[string]metadata.FilesystemID),
		claimed:     make(map[fileKey]struct{}),
	}
}

// NewMemoryMetadataStoreWithDefaults creates an empty store using the
// default upload deadline and the wall clock.
func NewMemoryMetadataStoreWithDefaults() *MemoryMetadataStore {
	return NewMemoryMetadataStore(metadata.Options{})
}

// Healthcheck reports whether the store is open.
func (store *MemoryMetadataStore) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	store.mu.RLock()
	defer store.mu.RUnlock()
	if store.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close drops all data.
func (store *MemoryMetadataStore) Close() error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.closed = true
	store.filesystems = nil
	store.aliases = nil
	return nil
}

// ============================================================================
// Lock helpers
// ============================================================================

func (store *MemoryMetadataStore) read(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	store.mu.RLock()
	if store.closed {
		store.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	return store.mu.RUnlock, nil
}

func (store *MemoryMetadataStore) write(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	store.mu.Lock()
	if store.closed {
		store.mu.Unlock()
		return nil, ErrStoreClosed
	}
	return store.mu.Unlock, nil
}

// filesystem must be called with the lock held.
func (store *MemoryMetadataStore) filesystem(id metadata.FilesystemID) (*filesystemState, error) {
	st, ok := store.filesystems[id]
	if !ok {
		return nil, metadata.NewFilesystemNotFoundError(id)
	}
	return st, nil
}

func keyOf(parent *metadata.EntryID, name string) childKey {
	if parent == nil {
		return childKey{name: name}
	}
	return childKey{parent: *parent, name: name}
}

// parentDirectory resolves parentID to a directory, or nil for the root.
func (st *filesystemState) parentDirectory(parentID *metadata.EntryID) (*metadata.Entry, error) {
	if parentID == nil {
		return nil, nil
	}
	parent, ok := st.entries[*parentID]
	if !ok || !parent.IsDirectory() {
		return nil, metadata.NewNoParentDirectoryError(parentID)
	}
	return parent, nil
}

func childPath(parent *metadata.Entry, id metadata.EntryID) []metadata.EntryID {
	if parent == nil {
		return []metadata.EntryID{id}
	}
	path := make([]metadata.EntryID, 0, len(parent.Path)+1)
	path = append(path, parent.Path...)
	return append(path, id)
}
