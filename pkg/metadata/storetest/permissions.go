package storetest

import (
	"testing"

	"github.com/marmos91/storagebox/pkg/metadata"
)

var (
	readerCriterion = metadata.Criterion{Issuer: "idp", Attribute: "team", Value: "readers"}
	readerAttrs     = metadata.AttributeSet{Issuer: "idp", Values: map[string][]string{
		"_subject": {"alice"},
		"team":     {"readers"},
	}}
)

func runPermissionTests(t *testing.T, factory StoreFactory) {
	t.Run("GrantInheritsToDescendants", func(t *testing.T) {
		f := newFixture(t, factory)

		a := f.mkdir(t, nil, "a")
		b := f.mkdir(t, &a.ID, "b")
		c := f.mustUpload(t, &b.ID, "c.txt")
		other := f.mkdir(t, nil, "other")

		grant(t, f, a.ID, readerCriterion, metadata.EntryPermissions{CanRead: true})

		for _, id := range []metadata.EntryID{a.ID, b.ID, c.ID} {
			perms, err := f.store.GetEntryPermissions(t.Context(), readerAttrs, f.fs.ID, id)
			if err != nil {
				t.Fatalf("GetEntryPermissions(%d) failed: %v", id, err)
			}
			if !perms.CanRead || perms.CanWrite || perms.CanShare {
				t.Errorf("entry %d perms = %+v, want read only", id, perms)
			}
		}

		perms, err := f.store.GetEntryPermissions(t.Context(), readerAttrs, f.fs.ID, other.ID)
		if err != nil {
			t.Fatalf("GetEntryPermissions(other) failed: %v", err)
		}
		if perms.Any() {
			t.Errorf("sibling inherited %+v", perms)
		}
	})

	t.Run("GrantsAccumulateAlongPath", func(t *testing.T) {
		f := newFixture(t, factory)

		a := f.mkdir(t, nil, "a")
		b := f.mkdir(t, &a.ID, "b")

		grant(t, f, a.ID, readerCriterion, metadata.EntryPermissions{CanRead: true})
		grant(t, f, b.ID, metadata.Criterion{Issuer: "idp", Attribute: "_subject", Value: "alice"}, metadata.EntryPermissions{CanWrite: true})

		perms, _ := f.store.GetEntryPermissions(t.Context(), readerAttrs, f.fs.ID, b.ID)
		if !perms.CanRead || !perms.CanWrite || perms.CanShare {
			t.Errorf("b perms = %+v", perms)
		}

		byPath, err := f.store.GetEntryPermissionsByPath(t.Context(), readerAttrs, f.fs.ID, b.Path)
		if err != nil {
			t.Fatalf("GetEntryPermissionsByPath() failed: %v", err)
		}
		if byPath != perms {
			t.Errorf("by path = %+v, by entry = %+v", byPath, perms)
		}

		parent, err := f.store.GetParentPermissions(t.Context(), readerAttrs, f.fs.ID, b.ID)
		if err != nil {
			t.Fatalf("GetParentPermissions() failed: %v", err)
		}
		if !parent.CanRead || parent.CanWrite {
			t.Errorf("parent perms of b = %+v, want read only", parent)
		}
	})

	t.Run("ParentPermissionsOfRootEntryAreEmpty", func(t *testing.T) {
		f := newFixture(t, factory)

		a := f.mkdir(t, nil, "a")
		grant(t, f, a.ID, readerCriterion, metadata.EntryPermissions{CanRead: true, CanWrite: true})

		perms, err := f.store.GetParentPermissions(t.Context(), readerAttrs, f.fs.ID, a.ID)
		if err != nil {
			t.Fatalf("GetParentPermissions() failed: %v", err)
		}
		if perms.Any() {
			t.Errorf("root entry parent perms = %+v", perms)
		}
	})

	t.Run("NonMatchingIssuerGetsNothing", func(t *testing.T) {
		f := newFixture(t, factory)

		a := f.mkdir(t, nil, "a")
		grant(t, f, a.ID, readerCriterion, metadata.EntryPermissions{CanRead: true})

		foreign := metadata.AttributeSet{Issuer: "elsewhere", Values: map[string][]string{"team": {"readers"}}}
		perms, _ := f.store.GetEntryPermissions(t.Context(), foreign, f.fs.ID, a.ID)
		if perms.Any() {
			t.Errorf("foreign issuer perms = %+v", perms)
		}
	})

	t.Run("UpsertOverwritesByKey", func(t *testing.T) {
		f := newFixture(t, factory)

		a := f.mkdir(t, nil, "a")
		grant(t, f, a.ID, readerCriterion, metadata.EntryPermissions{CanRead: true, CanWrite: true})
		grant(t, f, a.ID, readerCriterion, metadata.EntryPermissions{CanRead: true})

		grants, err := f.store.ListEntryPermissions(t.Context(), f.fs.ID, a.ID)
		if err != nil {
			t.Fatalf("ListEntryPermissions() failed: %v", err)
		}
		if len(grants) != 1 {
			t.Fatalf("got %d grants, want 1", len(grants))
		}
		if grants[0].Permissions.CanWrite {
			t.Errorf("upsert did not overwrite: %+v", grants[0])
		}

		// A different revocation criterion is a separate grant.
		if err := f.store.UpsertEntryPermission(t.Context(), metadata.EntryGrant{
			FilesystemID:        f.fs.ID,
			EntryID:             a.ID,
			Criterion:           readerCriterion,
			RevocationCriterion: metadata.Criterion{Issuer: "idp", Attribute: "_subject", Value: "bob"},
			Permissions:         metadata.EntryPermissions{CanShare: true},
			Comment:             "from bob",
		}); err != nil {
			t.Fatalf("UpsertEntryPermission() failed: %v", err)
		}
		grants, _ = f.store.ListEntryPermissions(t.Context(), f.fs.ID, a.ID)
		if len(grants) != 2 {
			t.Errorf("got %d grants, want 2", len(grants))
		}
	})

	t.Run("UpsertOnMissingEntry", func(t *testing.T) {
		f := newFixture(t, factory)

		err := f.store.UpsertEntryPermission(t.Context(), metadata.EntryGrant{
			FilesystemID:        f.fs.ID,
			EntryID:             999,
			Criterion:           readerCriterion,
			RevocationCriterion: ownerCriterion,
			Permissions:         metadata.EntryPermissions{CanRead: true},
		})
		expectCode(t, err, metadata.ErrEntryNotFound)
	})

	t.Run("DeleteGrant", func(t *testing.T) {
		f := newFixture(t, factory)

		a := f.mkdir(t, nil, "a")
		grant(t, f, a.ID, readerCriterion, metadata.EntryPermissions{CanRead: true})

		if err := f.store.DeleteEntryPermission(t.Context(), f.fs.ID, a.ID, readerCriterion, ownerCriterion); err != nil {
			t.Fatalf("DeleteEntryPermission() failed: %v", err)
		}
		perms, _ := f.store.GetEntryPermissions(t.Context(), readerAttrs, f.fs.ID, a.ID)
		if perms.Any() {
			t.Errorf("perms after delete = %+v", perms)
		}

		err := f.store.DeleteEntryPermission(t.Context(), f.fs.ID, a.ID, readerCriterion, ownerCriterion)
		expectCode(t, err, metadata.ErrPermissionDoesNotExist)
	})

	t.Run("DeleteRequiresMatchingRevocation", func(t *testing.T) {
		f := newFixture(t, factory)

		a := f.mkdir(t, nil, "a")
		grant(t, f, a.ID, readerCriterion, metadata.EntryPermissions{CanRead: true})

		other := metadata.Criterion{Issuer: "idp", Attribute: "_subject", Value: "mallory"}
		err := f.store.DeleteEntryPermission(t.Context(), f.fs.ID, a.ID, readerCriterion, other)
		expectCode(t, err, metadata.ErrPermissionDoesNotExist)
	})

	t.Run("MovedEntryFollowsNewAncestors", func(t *testing.T) {
		f := newFixture(t, factory)

		shared := f.mkdir(t, nil, "shared")
		private := f.mkdir(t, nil, "private")
		doc := f.mustUpload(t, &private.ID, "doc.txt")
		grant(t, f, shared.ID, readerCriterion, metadata.EntryPermissions{CanRead: true})

		perms, _ := f.store.GetEntryPermissions(t.Context(), readerAttrs, f.fs.ID, doc.ID)
		if perms.CanRead {
			t.Fatalf("doc readable before move")
		}

		if _, err := f.store.MoveEntry(t.Context(), f.fs.ID, doc.ID, &shared.ID); err != nil {
			t.Fatalf("MoveEntry() failed: %v", err)
		}
		perms, _ = f.store.GetEntryPermissions(t.Context(), readerAttrs, f.fs.ID, doc.ID)
		if !perms.CanRead {
			t.Errorf("doc not readable after move into shared directory")
		}
	})

	t.Run("DeletingEntryDropsGrants", func(t *testing.T) {
		f := newFixture(t, factory)

		a := f.mkdir(t, nil, "a")
		grant(t, f, a.ID, readerCriterion, metadata.EntryPermissions{CanRead: true})
		if err := f.store.DeleteEntry(t.Context(), f.fs.ID, a.ID); err != nil {
			t.Fatalf("DeleteEntry() failed: %v", err)
		}

		_, err := f.store.ListEntryPermissions(t.Context(), f.fs.ID, a.ID)
		expectCode(t, err, metadata.ErrEntryNotFound)
	})
}

func grant(t *testing.T, f *fixture, entryID metadata.EntryID, c metadata.Criterion, perms metadata.EntryPermissions) {
	t.Helper()
	if err := f.store.UpsertEntryPermission(t.Context(), metadata.EntryGrant{
		FilesystemID:        f.fs.ID,
		EntryID:             entryID,
		Criterion:           c,
		RevocationCriterion: ownerCriterion,
		Permissions:         perms,
	}); err != nil {
		t.Fatalf("UpsertEntryPermission() failed: %v", err)
	}
}
