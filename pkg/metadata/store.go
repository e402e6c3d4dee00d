package metadata

import (
	"context"
	"time"
)

// Filesystems manages the set of filesystems and their filesystem-wide grants.
type Filesystems interface {
	// CreateFilesystem creates a filesystem with its initial grants and its
	// private ID sequences in one transaction. Fails DuplicateAlias.
	CreateFilesystem(ctx context.Context, grants []FilesystemGrant, name, alias string) (*Filesystem, error)

	// GetFilesystemByAlias fails FilesystemNotFound.
	GetFilesystemByAlias(ctx context.Context, alias string) (*Filesystem, error)

	// ListFilesystems returns filesystems on which attrs hold canRead.
	ListFilesystems(ctx context.Context, attrs AttributeSet) ([]Filesystem, error)

	// GetFilesystemPermissions ORs every grant matched by attrs.
	GetFilesystemPermissions(ctx context.Context, attrs AttributeSet, fsID FilesystemID) (FilesystemPermissions, error)

	// UpsertFilesystemPermission creates or overwrites the grant for its criterion.
	UpsertFilesystemPermission(ctx context.Context, grant FilesystemGrant) error

	// DeleteFilesystemPermission fails PermissionDoesNotExist if nothing matched.
	DeleteFilesystemPermission(ctx context.Context, fsID FilesystemID, criterion Criterion) error

	// ListFilesystemPermissions returns all filesystem-wide grants.
	ListFilesystemPermissions(ctx context.Context, fsID FilesystemID) ([]FilesystemGrant, error)
}

// Tree manages directory entries.
type Tree interface {
	// CreateDirectory fails NoParentDirectory or DuplicateEntryName.
	CreateDirectory(ctx context.Context, fsID FilesystemID, parentID *EntryID, name string) (*Entry, error)

	// ListDirectory returns the children of a directory, nil for the root,
	// ordered by name.
	ListDirectory(ctx context.Context, fsID FilesystemID, directoryID *EntryID) ([]Entry, error)

	// GetEntry fails EntryNotFound.
	GetEntry(ctx context.Context, fsID FilesystemID, entryID EntryID) (*Entry, error)

	// GetEntriesByPaths returns the entries that exist at any of the
	// locations. Missing locations are simply absent from the result.
	GetEntriesByPaths(ctx context.Context, fsID FilesystemID, locators []EntryLocator) ([]Entry, error)

	// DeleteEntry removes one entry. Directories must be empty.
	DeleteEntry(ctx context.Context, fsID FilesystemID, entryID EntryID) error

	// MoveEntry reparents an entry and rewrites the path of its subtree.
	// A nil newParentID moves it to the root.
	MoveEntry(ctx context.Context, fsID FilesystemID, entryID EntryID, newParentID *EntryID) (*Entry, error)
}

// Files manages blob metadata.
type Files interface {
	// CreatePendingFileRecords allocates file IDs and inserts pending rows
	// sharing one expiry, all in one transaction. Output order follows input.
	CreatePendingFileRecords(ctx context.Context, fsID FilesystemID, specs []PendingFileSpec) ([]File, error)

	// GetFile fails FileNotFound.
	GetFile(ctx context.Context, fsID FilesystemID, fileID FileID) (*File, error)

	// FinishFileUpload marks a pending file finished and links it into the
	// tree in one transaction. Replacing an existing file entry releases its
	// reference. Fails FileNotFound, FileAlreadyUploaded, UploadExpired,
	// NoParentDirectory, DuplicateEntryName or CannotReplaceDirectoryWithFile.
	FinishFileUpload(ctx context.Context, fsID FilesystemID, upload FinishUpload) (*Entry, error)
}

// EntryPermissionStore manages grants scoped to entries.
type EntryPermissionStore interface {
	// GetEntryPermissions ORs grants matched by attrs on the entry and all of
	// its ancestors.
	GetEntryPermissions(ctx context.Context, attrs AttributeSet, fsID FilesystemID, entryID EntryID) (EntryPermissions, error)

	// GetParentPermissions is GetEntryPermissions of the entry's parent, and
	// zero for root entries.
	GetParentPermissions(ctx context.Context, attrs AttributeSet, fsID FilesystemID, entryID EntryID) (EntryPermissions, error)

	// GetEntryPermissionsByPath ORs grants matched by attrs on any entry in path.
	GetEntryPermissionsByPath(ctx context.Context, attrs AttributeSet, fsID FilesystemID, path []EntryID) (EntryPermissions, error)

	// UpsertEntryPermission creates or overwrites the grant under its key.
	UpsertEntryPermission(ctx context.Context, grant EntryGrant) error

	// DeleteEntryPermission fails PermissionDoesNotExist if nothing matched.
	DeleteEntryPermission(ctx context.Context, fsID FilesystemID, entryID EntryID, criterion, revocation Criterion) error

	// ListEntryPermissions returns grants attached directly to the entry.
	ListEntryPermissions(ctx context.Context, fsID FilesystemID, entryID EntryID) ([]EntryGrant, error)
}

// RemoveFunc deletes the bytes of a reclaimable file. Returning an error
// keeps the metadata row for a later pass.
type RemoveFunc func(ctx context.Context, file File) error

// ReclaimResult summarizes one reclamation pass.
type ReclaimResult struct {
	Selected  int
	Reclaimed int
	Failed    int
}

// Reclaimer removes expired, unreferenced files.
type Reclaimer interface {
	// ReclaimExpiredPendingFiles selects up to limit rows with a zero
	// reference count and an expiry at or before now, skipping rows another
	// pass holds. For each, remove runs first; the row is deleted only if
	// remove succeeds.
	ReclaimExpiredPendingFiles(ctx context.Context, limit int, now time.Time, remove RemoveFunc) (ReclaimResult, error)
}

// Store is the single source of truth for filesystem metadata. Every method
// is atomic.
type Store interface {
	Filesystems
	Tree
	Files
	EntryPermissionStore
	Reclaimer

	// Healthcheck verifies the store is reachable.
	Healthcheck(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}

// Options configure behaviour shared by all store implementations.
type Options struct {
	Deadline UploadDeadline
	// Now is the clock used for expiry computation. Defaults to time.Now.
	Now func() time.Time
}

// WithDefaults fills unset fields.
func (o Options) WithDefaults() Options {
	if o.Deadline.MinimumThroughput <= 0 {
		o.Deadline.MinimumThroughput = DefaultMinimumThroughput
	}
	if o.Deadline.MinimumWindow <= 0 {
		o.Deadline.MinimumWindow = DefaultMinimumWindow
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
