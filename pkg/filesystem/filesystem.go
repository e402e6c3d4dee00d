package filesystem

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/marmos91/storagebox/internal/logger"
	"github.com/marmos91/storagebox/internal/telemetry"
	"github.com/marmos91/storagebox/pkg/identity"
	"github.com/marmos91/storagebox/pkg/metadata"
)

// Filesystem is an opened filesystem. It is cheap to create and holds no
// state beyond the filesystem's identity.
type Filesystem struct {
	svc *Service
	fs  metadata.Filesystem
}

// ID returns the filesystem ID.
func (f *Filesystem) ID() metadata.FilesystemID { return f.fs.ID }

// Alias returns the filesystem alias.
func (f *Filesystem) Alias() string { return f.fs.Alias }

// Name returns the display name.
func (f *Filesystem) Name() string { return f.fs.Name }

func (f *Filesystem) span(ctx context.Context, name string, user *identity.UserContext, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, telemetry.Alias(f.fs.Alias))
	attrs = append(attrs, caller(user)...)
	return telemetry.StartFilesystemSpan(ctx, name, int64(f.fs.ID), attrs...)
}

// Permissions returns the filesystem-wide permissions of user.
func (f *Filesystem) Permissions(ctx context.Context, user *identity.UserContext) (metadata.FilesystemPermissions, error) {
	return f.svc.access.FilesystemPermissions(ctx, user, f.fs.ID)
}

// CreateDirectory creates a directory under parentID, nil for the root.
// Requires canWrite on the parent.
func (f *Filesystem) CreateDirectory(ctx context.Context, user *identity.UserContext, parentID *metadata.EntryID, name string) (_ *metadata.Entry, err error) {
	ctx, span := f.span(ctx, telemetry.SpanCreateDirectory, user, telemetry.ParentID(idPtr(parentID)), telemetry.Filename(name))
	defer func() { telemetry.EndSpan(span, err) }()

	if err := metadata.ValidateName(name); err != nil {
		return nil, err
	}
	if err := f.svc.access.CheckEntry(ctx, user, f.fs.ID, parentID, metadata.PermissionWrite); err != nil {
		return nil, err
	}
	return f.svc.store.CreateDirectory(ctx, f.fs.ID, parentID, name)
}

// ListDirectory lists a directory, nil for the root. Requires canRead on it.
func (f *Filesystem) ListDirectory(ctx context.Context, user *identity.UserContext, directoryID *metadata.EntryID) (_ []metadata.Entry, err error) {
	ctx, span := f.span(ctx, telemetry.SpanListDirectory, user, telemetry.ParentID(idPtr(directoryID)))
	defer func() { telemetry.EndSpan(span, err) }()

	if err := f.svc.access.CheckEntry(ctx, user, f.fs.ID, directoryID, metadata.PermissionRead); err != nil {
		return nil, err
	}
	return f.svc.store.ListDirectory(ctx, f.fs.ID, directoryID)
}

// GetEntry returns one entry. Requires canRead on it.
func (f *Filesystem) GetEntry(ctx context.Context, user *identity.UserContext, entryID metadata.EntryID) (*metadata.Entry, error) {
	if err := f.svc.access.CheckEntry(ctx, user, f.fs.ID, &entryID, metadata.PermissionRead); err != nil {
		return nil, err
	}
	return f.svc.store.GetEntry(ctx, f.fs.ID, entryID)
}

// DeleteEntry removes an entry from its directory. Requires canWrite on the
// parent. Directories must be empty.
func (f *Filesystem) DeleteEntry(ctx context.Context, user *identity.UserContext, entryID metadata.EntryID) (err error) {
	ctx, span := f.span(ctx, telemetry.SpanDeleteEntry, user, telemetry.EntryID(int64(entryID)))
	defer func() { telemetry.EndSpan(span, err) }()

	if err := f.svc.access.CheckParent(ctx, user, f.fs.ID, entryID, metadata.PermissionWrite); err != nil {
		return err
	}
	if err := f.svc.store.DeleteEntry(ctx, f.fs.ID, entryID); err != nil {
		return err
	}

	logger.DebugCtx(ctx, "Entry deleted", logger.FilesystemID(int64(f.fs.ID)), logger.EntryID(int64(entryID)))
	return nil
}

// MoveEntry moves entryID under targetParentID, nil for the root.
//
// The caller needs canWrite on the entry's current parent and canWrite on
// the target. The target must be a directory that is neither the entry nor
// one of its descendants.
func (f *Filesystem) MoveEntry(ctx context.Context, user *identity.UserContext, entryID metadata.EntryID, targetParentID *metadata.EntryID) (_ *metadata.Entry, err error) {
	ctx, span := f.span(ctx, telemetry.SpanMoveEntry, user,
		telemetry.EntryID(int64(entryID)), telemetry.ParentID(idPtr(targetParentID)))
	defer func() { telemetry.EndSpan(span, err) }()

	if err := f.svc.access.CheckParent(ctx, user, f.fs.ID, entryID, metadata.PermissionWrite); err != nil {
		return nil, err
	}
	if err := f.svc.access.CheckEntry(ctx, user, f.fs.ID, targetParentID, metadata.PermissionWrite); err != nil {
		return nil, err
	}

	if targetParentID != nil {
		target, err := f.svc.store.GetEntry(ctx, f.fs.ID, *targetParentID)
		if err != nil {
			return nil, err
		}
		if !target.IsDirectory() {
			return nil, metadata.NewTargetIsNotDirectoryError(target.ID)
		}
		if target.HasAncestor(entryID) {
			return nil, metadata.NewDirectoryCycleError(entryID, target.ID)
		}
	}

	return f.svc.store.MoveEntry(ctx, f.fs.ID, entryID, targetParentID)
}

func idPtr(id *metadata.EntryID) *int64 {
	if id == nil {
		return nil
	}
	v := int64(*id)
	return &v
}
