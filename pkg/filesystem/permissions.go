package filesystem

import (
	"context"

	"github.com/marmos91/storagebox/internal/logger"
	"github.com/marmos91/storagebox/internal/telemetry"
	"github.com/marmos91/storagebox/pkg/identity"
	"github.com/marmos91/storagebox/pkg/metadata"
)

// MaxCommentLength bounds the free-text comment stored with a grant.
const MaxCommentLength = 1024

// SetEntryPermission grants perms on an entry to everyone matching
// criterion, revocable by the caller's default criterion.
//
// The caller needs canShare on the entry and must already hold every bit
// being granted. All-false permissions delete the caller's grant for
// criterion instead.
func (f *Filesystem) SetEntryPermission(ctx context.Context, user *identity.UserContext, entryID metadata.EntryID, perms metadata.EntryPermissions, criterion metadata.Criterion, comment string) (err error) {
	ctx, span := f.span(ctx, telemetry.SpanSetEntryPermission, user, telemetry.EntryID(int64(entryID)))
	defer func() { telemetry.EndSpan(span, err) }()

	if err := metadata.ValidateCriterion(criterion); err != nil {
		return err
	}
	if len(comment) > MaxCommentLength {
		return metadata.NewInvalidArgumentError("comment exceeds %d bytes", MaxCommentLength)
	}
	if err := f.svc.access.CheckEntry(ctx, user, f.fs.ID, &entryID, metadata.PermissionShare); err != nil {
		return err
	}

	held, err := f.svc.access.EntryPermissions(ctx, user, f.fs.ID, &entryID)
	if err != nil {
		return err
	}
	if missing, ok := firstMissing(held, perms); ok {
		return metadata.NewNoFilesystemPermissionError(missing)
	}

	revocation := user.DefaultCriterion()
	if !perms.Any() {
		return f.svc.store.DeleteEntryPermission(ctx, f.fs.ID, entryID, criterion, revocation)
	}
	if err := f.svc.store.UpsertEntryPermission(ctx, metadata.EntryGrant{
		FilesystemID:        f.fs.ID,
		EntryID:             entryID,
		Criterion:           criterion,
		RevocationCriterion: revocation,
		Permissions:         perms,
		Comment:             comment,
	}); err != nil {
		return err
	}

	logger.DebugCtx(ctx, "Entry permission set",
		logger.FilesystemID(int64(f.fs.ID)), logger.EntryID(int64(entryID)),
		"attribute", criterion.Attribute, "value", criterion.Value)
	return nil
}

// ListEntryPermissions returns the grants attached directly to an entry.
// Requires canShare on it.
func (f *Filesystem) ListEntryPermissions(ctx context.Context, user *identity.UserContext, entryID metadata.EntryID) (_ []metadata.EntryGrant, err error) {
	ctx, span := f.span(ctx, telemetry.SpanListEntryPermissions, user, telemetry.EntryID(int64(entryID)))
	defer func() { telemetry.EndSpan(span, err) }()

	if err := f.svc.access.CheckEntry(ctx, user, f.fs.ID, &entryID, metadata.PermissionShare); err != nil {
		return nil, err
	}
	return f.svc.store.ListEntryPermissions(ctx, f.fs.ID, entryID)
}

// RevokePermissionAdministratively deletes an entry grant whoever created
// it. Requires canManage on the filesystem.
func (f *Filesystem) RevokePermissionAdministratively(ctx context.Context, user *identity.UserContext, entryID metadata.EntryID, criterion, revocation metadata.Criterion) (err error) {
	ctx, span := f.span(ctx, telemetry.SpanRevokeAdministratively, user, telemetry.EntryID(int64(entryID)))
	defer func() { telemetry.EndSpan(span, err) }()

	if err := f.svc.access.CheckFilesystem(ctx, user, f.fs.ID, metadata.PermissionManage); err != nil {
		return err
	}
	if err := metadata.ValidateCriterion(criterion); err != nil {
		return err
	}
	if err := metadata.ValidateCriterion(revocation); err != nil {
		return err
	}
	if err := f.svc.store.DeleteEntryPermission(ctx, f.fs.ID, entryID, criterion, revocation); err != nil {
		return err
	}

	f.svc.log.InfoContext(ctx, "Entry permission revoked administratively",
		logger.FilesystemID(int64(f.fs.ID)), logger.EntryID(int64(entryID)),
		"by_issuer", user.Identification.Issuer, "by_subject", user.Identification.Subject)
	return nil
}

// SetFilesystemPermission sets the filesystem-wide grant of criterion.
// Requires canManage. All-false permissions delete the grant.
//
// A caller cannot drop their own last canManage grant, so a filesystem
// always keeps at least one manager.
func (f *Filesystem) SetFilesystemPermission(ctx context.Context, user *identity.UserContext, criterion metadata.Criterion, perms metadata.FilesystemPermissions) (err error) {
	ctx, span := f.span(ctx, telemetry.SpanSetFSPermission, user)
	defer func() { telemetry.EndSpan(span, err) }()

	if err := f.svc.access.CheckFilesystem(ctx, user, f.fs.ID, metadata.PermissionManage); err != nil {
		return err
	}
	if err := metadata.ValidateCriterion(criterion); err != nil {
		return err
	}

	attrs := user.EffectiveAttributes()
	if !perms.CanManage && attrs.Matches(criterion) {
		grants, err := f.svc.store.ListFilesystemPermissions(ctx, f.fs.ID)
		if err != nil {
			return err
		}
		if !managesWithout(grants, attrs, criterion) {
			return metadata.NewInvalidArgumentError("cannot remove your own last canManage permission")
		}
	}

	if !perms.Any() {
		return f.svc.store.DeleteFilesystemPermission(ctx, f.fs.ID, criterion)
	}
	if err := f.svc.store.UpsertFilesystemPermission(ctx, metadata.FilesystemGrant{
		FilesystemID: f.fs.ID,
		Criterion:    criterion,
		Permissions:  perms,
	}); err != nil {
		return err
	}

	f.svc.log.InfoContext(ctx, "Filesystem permission set",
		logger.FilesystemID(int64(f.fs.ID)), "attribute", criterion.Attribute, "value", criterion.Value,
		"manage", perms.CanManage)
	return nil
}

// ListFilesystemPermissions returns the filesystem-wide grants. Requires
// canManage.
func (f *Filesystem) ListFilesystemPermissions(ctx context.Context, user *identity.UserContext) ([]metadata.FilesystemGrant, error) {
	if err := f.svc.access.CheckFilesystem(ctx, user, f.fs.ID, metadata.PermissionManage); err != nil {
		return nil, err
	}
	return f.svc.store.ListFilesystemPermissions(ctx, f.fs.ID)
}

func firstMissing(held, want metadata.EntryPermissions) (metadata.Permission, bool) {
	switch {
	case want.CanRead && !held.CanRead:
		return metadata.PermissionRead, true
	case want.CanWrite && !held.CanWrite:
		return metadata.PermissionWrite, true
	case want.CanShare && !held.CanShare:
		return metadata.PermissionShare, true
	}
	return "", false
}

// managesWithout reports whether attrs keep canManage through a grant other
// than the one keyed by excluded.
func managesWithout(grants []metadata.FilesystemGrant, attrs metadata.AttributeSet, excluded metadata.Criterion) bool {
	for _, g := range grants {
		if g.Criterion == excluded {
			continue
		}
		if g.Permissions.CanManage && attrs.Matches(g.Criterion) {
			return true
		}
	}
	return false
}
