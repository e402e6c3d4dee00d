// Package access decides whether a caller may act on a filesystem or an
// entry. Every decision is an OR of independent facts: a filesystem-wide
// grant, or a grant on the entry, or a grant on one of its ancestors.
package access

import (
	"context"

	"github.com/marmos91/storagebox/pkg/identity"
	"github.com/marmos91/storagebox/pkg/metadata"
)

// PermissionStore is the part of metadata.Store the resolver reads.
type PermissionStore interface {
	GetFilesystemPermissions(ctx context.Context, attrs metadata.AttributeSet, fsID metadata.FilesystemID) (metadata.FilesystemPermissions, error)
	GetEntryPermissions(ctx context.Context, attrs metadata.AttributeSet, fsID metadata.FilesystemID, entryID metadata.EntryID) (metadata.EntryPermissions, error)
	GetParentPermissions(ctx context.Context, attrs metadata.AttributeSet, fsID metadata.FilesystemID, entryID metadata.EntryID) (metadata.EntryPermissions, error)
	GetEntryPermissionsByPath(ctx context.Context, attrs metadata.AttributeSet, fsID metadata.FilesystemID, path []metadata.EntryID) (metadata.EntryPermissions, error)
}

// Resolver answers permission questions for one store.
type Resolver struct {
	store PermissionStore
}

// NewResolver creates a resolver over store.
func NewResolver(store PermissionStore) *Resolver {
	return &Resolver{store: store}
}

// FilesystemPermissions returns the filesystem-wide bits of user.
func (r *Resolver) FilesystemPermissions(ctx context.Context, user *identity.UserContext, fsID metadata.FilesystemID) (metadata.FilesystemPermissions, error) {
	return r.store.GetFilesystemPermissions(ctx, user.EffectiveAttributes(), fsID)
}

// EntryPermissions returns the bits user holds over an entry: the
// filesystem-wide bits ORed with grants on the entry and its ancestors.
// A nil entryID is the root, which carries no grants of its own.
func (r *Resolver) EntryPermissions(ctx context.Context, user *identity.UserContext, fsID metadata.FilesystemID, entryID *metadata.EntryID) (metadata.EntryPermissions, error) {
	attrs := user.EffectiveAttributes()
	fsPerms, err := r.store.GetFilesystemPermissions(ctx, attrs, fsID)
	if err != nil {
		return metadata.EntryPermissions{}, err
	}
	if entryID == nil {
		return fsPerms.Entry(), nil
	}
	entryPerms, err := r.store.GetEntryPermissions(ctx, attrs, fsID, *entryID)
	if err != nil {
		return metadata.EntryPermissions{}, err
	}
	return fsPerms.Entry().Or(entryPerms), nil
}

// PathPermissions is EntryPermissions for an entry already loaded, using
// its materialized path instead of a lookup.
func (r *Resolver) PathPermissions(ctx context.Context, user *identity.UserContext, fsID metadata.FilesystemID, path []metadata.EntryID) (metadata.EntryPermissions, error) {
	attrs := user.EffectiveAttributes()
	fsPerms, err := r.store.GetFilesystemPermissions(ctx, attrs, fsID)
	if err != nil {
		return metadata.EntryPermissions{}, err
	}
	if len(path) == 0 {
		return fsPerms.Entry(), nil
	}
	pathPerms, err := r.store.GetEntryPermissionsByPath(ctx, attrs, fsID, path)
	if err != nil {
		return metadata.EntryPermissions{}, err
	}
	return fsPerms.Entry().Or(pathPerms), nil
}

// CheckFilesystem fails NoFilesystemPermission unless user holds perm
// filesystem-wide.
func (r *Resolver) CheckFilesystem(ctx context.Context, user *identity.UserContext, fsID metadata.FilesystemID, perm metadata.Permission) error {
	perms, err := r.FilesystemPermissions(ctx, user, fsID)
	if err != nil {
		return err
	}
	if !perms.Has(perm) {
		return metadata.NewNoFilesystemPermissionError(perm)
	}
	return nil
}

// CheckEntry fails NoFilesystemPermission unless user holds perm over the
// entry. The filesystem-wide grant is consulted first; only when it does not
// decide is the entry looked up.
func (r *Resolver) CheckEntry(ctx context.Context, user *identity.UserContext, fsID metadata.FilesystemID, entryID *metadata.EntryID, perm metadata.Permission) error {
	attrs := user.EffectiveAttributes()
	fsPerms, err := r.store.GetFilesystemPermissions(ctx, attrs, fsID)
	if err != nil {
		return err
	}
	if fsPerms.Has(perm) {
		return nil
	}
	if entryID == nil {
		return metadata.NewNoFilesystemPermissionError(perm)
	}

	entryPerms, err := r.store.GetEntryPermissions(ctx, attrs, fsID, *entryID)
	if err != nil {
		return hideMissing(err, perm)
	}
	if !entryPerms.Has(perm) {
		return metadata.NewNoFilesystemPermissionError(perm)
	}
	return nil
}

// CheckParent fails NoFilesystemPermission unless user holds perm over the
// entry's parent. Used for removing an entry from its directory.
func (r *Resolver) CheckParent(ctx context.Context, user *identity.UserContext, fsID metadata.FilesystemID, entryID metadata.EntryID, perm metadata.Permission) error {
	attrs := user.EffectiveAttributes()
	fsPerms, err := r.store.GetFilesystemPermissions(ctx, attrs, fsID)
	if err != nil {
		return err
	}
	if fsPerms.Has(perm) {
		return nil
	}

	parentPerms, err := r.store.GetParentPermissions(ctx, attrs, fsID, entryID)
	if err != nil {
		return hideMissing(err, perm)
	}
	if !parentPerms.Has(perm) {
		return metadata.NewNoFilesystemPermissionError(perm)
	}
	return nil
}

// CheckPath is CheckEntry for a loaded entry's path.
func (r *Resolver) CheckPath(ctx context.Context, user *identity.UserContext, fsID metadata.FilesystemID, path []metadata.EntryID, perm metadata.Permission) error {
	perms, err := r.PathPermissions(ctx, user, fsID, path)
	if err != nil {
		return err
	}
	if !perms.Has(perm) {
		return metadata.NewNoFilesystemPermissionError(perm)
	}
	return nil
}

// hideMissing turns a missing entry into a permission failure, so callers
// without filesystem-wide access cannot probe which entry IDs exist.
func hideMissing(err error, perm metadata.Permission) error {
	if metadata.HasCode(err, metadata.ErrEntryNotFound) {
		return metadata.NewNoFilesystemPermissionError(perm)
	}
	return err
}
