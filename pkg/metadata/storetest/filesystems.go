package storetest

import (
	"testing"

	"github.com/marmos91/storagebox/pkg/metadata"
)

func runFilesystemTests(t *testing.T, factory StoreFactory) {
	t.Run("CreatorHoldsAllBits", func(t *testing.T) {
		f := newFixture(t, factory)

		perms, err := f.store.GetFilesystemPermissions(t.Context(), f.owner, f.fs.ID)
		if err != nil {
			t.Fatalf("GetFilesystemPermissions() failed: %v", err)
		}
		if perms != metadata.AllFilesystemPermissions() {
			t.Errorf("creator permissions = %+v, want all", perms)
		}
	})

	t.Run("StrangerHoldsNothing", func(t *testing.T) {
		f := newFixture(t, factory)

		stranger := metadata.AttributeSet{Issuer: "idp", Values: map[string][]string{"_subject": {"stranger"}}}
		perms, err := f.store.GetFilesystemPermissions(t.Context(), stranger, f.fs.ID)
		if err != nil {
			t.Fatalf("GetFilesystemPermissions() failed: %v", err)
		}
		if perms.Any() {
			t.Errorf("stranger permissions = %+v, want none", perms)
		}
	})

	t.Run("IssuerMustMatch", func(t *testing.T) {
		f := newFixture(t, factory)

		impostor := metadata.AttributeSet{Issuer: "evil", Values: map[string][]string{"_subject": {"owner"}}}
		perms, err := f.store.GetFilesystemPermissions(t.Context(), impostor, f.fs.ID)
		if err != nil {
			t.Fatalf("GetFilesystemPermissions() failed: %v", err)
		}
		if perms.Any() {
			t.Errorf("impostor permissions = %+v, want none", perms)
		}
	})

	t.Run("DuplicateAlias", func(t *testing.T) {
		f := newFixture(t, factory)

		_, err := f.store.CreateFilesystem(t.Context(), nil, "Other", "docs")
		expectCode(t, err, metadata.ErrDuplicateAlias)
	})

	t.Run("GetByAlias", func(t *testing.T) {
		f := newFixture(t, factory)

		got, err := f.store.GetFilesystemByAlias(t.Context(), "docs")
		if err != nil {
			t.Fatalf("GetFilesystemByAlias() failed: %v", err)
		}
		if *got != *f.fs {
			t.Errorf("GetFilesystemByAlias() = %+v, want %+v", got, f.fs)
		}

		_, err = f.store.GetFilesystemByAlias(t.Context(), "missing")
		expectCode(t, err, metadata.ErrFilesystemNotFound)
	})

	t.Run("ListFilesystemsEmptyIsNotNil", func(t *testing.T) {
		f := newFixture(t, factory)

		stranger := metadata.AttributeSet{Issuer: "idp", Values: map[string][]string{"_subject": {"stranger"}}}
		list, err := f.store.ListFilesystems(t.Context(), stranger)
		if err != nil {
			t.Fatalf("ListFilesystems() failed: %v", err)
		}
		if list == nil || len(list) != 0 {
			t.Errorf("ListFilesystems() = %#v, want empty non-nil slice", list)
		}
	})

	t.Run("ListFilesystemsByReadGrant", func(t *testing.T) {
		f := newFixture(t, factory)

		staff := metadata.Criterion{Issuer: "idp", Attribute: "group", Value: "staff"}
		other, err := f.store.CreateFilesystem(t.Context(), []metadata.FilesystemGrant{
			{Criterion: staff, Permissions: metadata.FilesystemPermissions{CanRead: true}},
		}, "Media", "media")
		if err != nil {
			t.Fatalf("CreateFilesystem() failed: %v", err)
		}
		_, err = f.store.CreateFilesystem(t.Context(), []metadata.FilesystemGrant{
			{Criterion: staff, Permissions: metadata.FilesystemPermissions{CanWrite: true}},
		}, "Drop", "drop")
		if err != nil {
			t.Fatalf("CreateFilesystem() failed: %v", err)
		}

		member := metadata.AttributeSet{Issuer: "idp", Values: map[string][]string{"group": {"staff"}}}
		list, err := f.store.ListFilesystems(t.Context(), member)
		if err != nil {
			t.Fatalf("ListFilesystems() failed: %v", err)
		}
		if len(list) != 1 || list[0].ID != other.ID {
			t.Errorf("ListFilesystems() = %+v, want only %q", list, other.Alias)
		}
	})

	t.Run("FilesystemGrantLifecycle", func(t *testing.T) {
		f := newFixture(t, factory)
		ctx := t.Context()

		reader := metadata.Criterion{Issuer: "idp", Attribute: "group", Value: "readers"}
		attrs := metadata.AttributeSet{Issuer: "idp", Values: map[string][]string{"group": {"readers"}}}

		err := f.store.UpsertFilesystemPermission(ctx, metadata.FilesystemGrant{
			FilesystemID: f.fs.ID, Criterion: reader, Permissions: metadata.FilesystemPermissions{CanRead: true},
		})
		if err != nil {
			t.Fatalf("UpsertFilesystemPermission() failed: %v", err)
		}
		// Upsert overwrites rather than merging.
		err = f.store.UpsertFilesystemPermission(ctx, metadata.FilesystemGrant{
			FilesystemID: f.fs.ID, Criterion: reader, Permissions: metadata.FilesystemPermissions{CanWrite: true},
		})
		if err != nil {
			t.Fatalf("UpsertFilesystemPermission() failed: %v", err)
		}

		perms, _ := f.store.GetFilesystemPermissions(ctx, attrs, f.fs.ID)
		if perms != (metadata.FilesystemPermissions{CanWrite: true}) {
			t.Errorf("permissions after overwrite = %+v", perms)
		}

		grants, err := f.store.ListFilesystemPermissions(ctx, f.fs.ID)
		if err != nil {
			t.Fatalf("ListFilesystemPermissions() failed: %v", err)
		}
		if len(grants) != 2 {
			t.Errorf("ListFilesystemPermissions() returned %d grants, want 2", len(grants))
		}

		if err := f.store.DeleteFilesystemPermission(ctx, f.fs.ID, reader); err != nil {
			t.Fatalf("DeleteFilesystemPermission() failed: %v", err)
		}
		expectCode(t, f.store.DeleteFilesystemPermission(ctx, f.fs.ID, reader), metadata.ErrPermissionDoesNotExist)
	})
}
