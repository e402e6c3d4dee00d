package storetest

import (
	"testing"

	"github.com/marmos91/storagebox/pkg/metadata"
)

func runTreeTests(t *testing.T, factory StoreFactory) {
	t.Run("CreateDirectoryAtRoot", func(t *testing.T) {
		f := newFixture(t, factory)

		dir := f.mkdir(t, nil, "projects")
		if dir.ParentID != nil || dir.Type != metadata.EntryTypeDirectory || dir.Name != "projects" {
			t.Errorf("unexpected entry %+v", dir)
		}
		if !equalPath(dir.Path, []metadata.EntryID{dir.ID}) {
			t.Errorf("path = %v, want [%d]", dir.Path, dir.ID)
		}
	})

	t.Run("NestedPath", func(t *testing.T) {
		f := newFixture(t, factory)

		a := f.mkdir(t, nil, "a")
		b := f.mkdir(t, &a.ID, "b")
		c := f.mkdir(t, &b.ID, "c")
		if !equalPath(c.Path, []metadata.EntryID{a.ID, b.ID, c.ID}) {
			t.Errorf("path = %v", c.Path)
		}
	})

	t.Run("DuplicateNameAmongSiblings", func(t *testing.T) {
		f := newFixture(t, factory)

		f.mkdir(t, nil, "same")
		_, err := f.store.CreateDirectory(t.Context(), f.fs.ID, nil, "same")
		expectCode(t, err, metadata.ErrDuplicateEntryName)

		parent := f.mkdir(t, nil, "p")
		f.mkdir(t, &parent.ID, "same")
		_, err = f.store.CreateDirectory(t.Context(), f.fs.ID, &parent.ID, "same")
		expectCode(t, err, metadata.ErrDuplicateEntryName)
	})

	t.Run("MissingParent", func(t *testing.T) {
		f := newFixture(t, factory)

		_, err := f.store.CreateDirectory(t.Context(), f.fs.ID, metadata.Ref(metadata.EntryID(404)), "x")
		expectCode(t, err, metadata.ErrNoParentDirectory)
	})

	t.Run("FileIsNotAParent", func(t *testing.T) {
		f := newFixture(t, factory)

		file := f.mustUpload(t, nil, "a.txt")
		_, err := f.store.CreateDirectory(t.Context(), f.fs.ID, &file.ID, "x")
		expectCode(t, err, metadata.ErrNoParentDirectory)
	})

	t.Run("IDsDoNotCollideAcrossFilesystems", func(t *testing.T) {
		f := newFixture(t, factory)

		other, err := f.store.CreateFilesystem(t.Context(), nil, "Other", "other")
		if err != nil {
			t.Fatalf("CreateFilesystem() failed: %v", err)
		}
		a := f.mkdir(t, nil, "a")
		b, err := f.store.CreateDirectory(t.Context(), other.ID, nil, "a")
		if err != nil {
			t.Fatalf("CreateDirectory() failed: %v", err)
		}

		// Each filesystem has its own sequence; entries are addressed per filesystem.
		gotA, err := f.store.GetEntry(t.Context(), f.fs.ID, a.ID)
		if err != nil || gotA.FilesystemID != f.fs.ID {
			t.Fatalf("GetEntry(docs) = %+v, %v", gotA, err)
		}
		gotB, err := f.store.GetEntry(t.Context(), other.ID, b.ID)
		if err != nil || gotB.FilesystemID != other.ID {
			t.Fatalf("GetEntry(other) = %+v, %v", gotB, err)
		}
		// A parent in one filesystem cannot be used from another.
		x := f.mkdir(t, nil, "x")
		_, err = f.store.CreateDirectory(t.Context(), other.ID, &x.ID, "y")
		expectCode(t, err, metadata.ErrNoParentDirectory)
	})

	t.Run("ListDirectory", func(t *testing.T) {
		f := newFixture(t, factory)

		dir := f.mkdir(t, nil, "dir")
		f.mkdir(t, &dir.ID, "b")
		f.mkdir(t, &dir.ID, "a")
		f.mkdir(t, nil, "root-sibling")

		list, err := f.store.ListDirectory(t.Context(), f.fs.ID, &dir.ID)
		if err != nil {
			t.Fatalf("ListDirectory() failed: %v", err)
		}
		if len(list) != 2 || list[0].Name != "a" || list[1].Name != "b" {
			t.Errorf("ListDirectory(dir) = %+v", list)
		}

		root, err := f.store.ListDirectory(t.Context(), f.fs.ID, nil)
		if err != nil {
			t.Fatalf("ListDirectory(root) failed: %v", err)
		}
		if len(root) != 2 {
			t.Errorf("ListDirectory(root) returned %d entries, want 2", len(root))
		}

		empty := f.mkdir(t, nil, "empty")
		list, err = f.store.ListDirectory(t.Context(), f.fs.ID, &empty.ID)
		if err != nil || list == nil || len(list) != 0 {
			t.Errorf("ListDirectory(empty) = %v, %v; want empty non-nil slice", list, err)
		}

		_, err = f.store.ListDirectory(t.Context(), f.fs.ID, metadata.Ref(metadata.EntryID(999)))
		expectCode(t, err, metadata.ErrEntryNotFound)

		file := f.mustUpload(t, nil, "f.txt")
		_, err = f.store.ListDirectory(t.Context(), f.fs.ID, &file.ID)
		expectCode(t, err, metadata.ErrNotDirectory)
	})

	t.Run("GetEntryNotFound", func(t *testing.T) {
		f := newFixture(t, factory)

		_, err := f.store.GetEntry(t.Context(), f.fs.ID, 12345)
		expectCode(t, err, metadata.ErrEntryNotFound)
	})

	t.Run("GetEntriesByPaths", func(t *testing.T) {
		f := newFixture(t, factory)

		dir := f.mkdir(t, nil, "dir")
		file := f.mustUpload(t, &dir.ID, "a.txt")

		got, err := f.store.GetEntriesByPaths(t.Context(), f.fs.ID, []metadata.EntryLocator{
			{ParentID: &dir.ID, Name: "a.txt"},
			{ParentID: &dir.ID, Name: "missing"},
			{ParentID: nil, Name: "dir"},
			{ParentID: nil, Name: "a.txt"},
		})
		if err != nil {
			t.Fatalf("GetEntriesByPaths() failed: %v", err)
		}
		ids := map[metadata.EntryID]bool{}
		for _, e := range got {
			ids[e.ID] = true
		}
		if len(got) != 2 || !ids[dir.ID] || !ids[file.ID] {
			t.Errorf("GetEntriesByPaths() = %+v", got)
		}
	})

	t.Run("DeleteEntry", func(t *testing.T) {
		f := newFixture(t, factory)

		dir := f.mkdir(t, nil, "dir")
		child := f.mkdir(t, &dir.ID, "child")

		expectCode(t, f.store.DeleteEntry(t.Context(), f.fs.ID, dir.ID), metadata.ErrDirectoryNotEmpty)

		if err := f.store.DeleteEntry(t.Context(), f.fs.ID, child.ID); err != nil {
			t.Fatalf("DeleteEntry(child) failed: %v", err)
		}
		if err := f.store.DeleteEntry(t.Context(), f.fs.ID, dir.ID); err != nil {
			t.Fatalf("DeleteEntry(dir) failed: %v", err)
		}
		_, err := f.store.GetEntry(t.Context(), f.fs.ID, dir.ID)
		expectCode(t, err, metadata.ErrEntryNotFound)
		expectCode(t, f.store.DeleteEntry(t.Context(), f.fs.ID, dir.ID), metadata.ErrEntryNotFound)

		// The name is free again.
		f.mkdir(t, nil, "dir")
	})

	t.Run("MoveSubtreeRewritesPaths", func(t *testing.T) {
		f := newFixture(t, factory)

		a := f.mkdir(t, nil, "a")
		b := f.mkdir(t, &a.ID, "b")
		c := f.mkdir(t, &b.ID, "c")
		target := f.mkdir(t, nil, "target")

		moved, err := f.store.MoveEntry(t.Context(), f.fs.ID, b.ID, &target.ID)
		if err != nil {
			t.Fatalf("MoveEntry() failed: %v", err)
		}
		if moved.ParentID == nil || *moved.ParentID != target.ID {
			t.Errorf("moved parent = %v, want %d", moved.ParentID, target.ID)
		}
		if !equalPath(moved.Path, []metadata.EntryID{target.ID, b.ID}) {
			t.Errorf("moved path = %v", moved.Path)
		}

		gotC, _ := f.store.GetEntry(t.Context(), f.fs.ID, c.ID)
		if !equalPath(gotC.Path, []metadata.EntryID{target.ID, b.ID, c.ID}) {
			t.Errorf("descendant path = %v", gotC.Path)
		}
		gotA, _ := f.store.GetEntry(t.Context(), f.fs.ID, a.ID)
		if !equalPath(gotA.Path, []metadata.EntryID{a.ID}) {
			t.Errorf("untouched path = %v", gotA.Path)
		}

		list, _ := f.store.ListDirectory(t.Context(), f.fs.ID, &a.ID)
		if len(list) != 0 {
			t.Errorf("old parent still lists %+v", list)
		}
	})

	t.Run("MoveToRoot", func(t *testing.T) {
		f := newFixture(t, factory)

		a := f.mkdir(t, nil, "a")
		b := f.mkdir(t, &a.ID, "b")
		c := f.mkdir(t, &b.ID, "c")

		moved, err := f.store.MoveEntry(t.Context(), f.fs.ID, b.ID, nil)
		if err != nil {
			t.Fatalf("MoveEntry(root) failed: %v", err)
		}
		if moved.ParentID != nil || !equalPath(moved.Path, []metadata.EntryID{b.ID}) {
			t.Errorf("moved = %+v", moved)
		}
		gotC, _ := f.store.GetEntry(t.Context(), f.fs.ID, c.ID)
		if !equalPath(gotC.Path, []metadata.EntryID{b.ID, c.ID}) {
			t.Errorf("descendant path = %v", gotC.Path)
		}
	})

	t.Run("MoveCycle", func(t *testing.T) {
		f := newFixture(t, factory)

		a := f.mkdir(t, nil, "a")
		b := f.mkdir(t, &a.ID, "b")
		c := f.mkdir(t, &b.ID, "c")

		for _, target := range []metadata.EntryID{a.ID, b.ID, c.ID} {
			_, err := f.store.MoveEntry(t.Context(), f.fs.ID, a.ID, &target)
			expectCode(t, err, metadata.ErrDirectoryCycle)
		}
		_, err := f.store.MoveEntry(t.Context(), f.fs.ID, b.ID, &b.ID)
		expectCode(t, err, metadata.ErrDirectoryCycle)

		// Moving a descendant up is fine.
		if _, err := f.store.MoveEntry(t.Context(), f.fs.ID, c.ID, &a.ID); err != nil {
			t.Fatalf("MoveEntry(c -> a) failed: %v", err)
		}
	})

	t.Run("MoveTargetChecks", func(t *testing.T) {
		f := newFixture(t, factory)

		dir := f.mkdir(t, nil, "dir")
		file := f.mustUpload(t, nil, "file.txt")
		clash := f.mkdir(t, nil, "clash")
		f.mkdir(t, &clash.ID, "dir")

		_, err := f.store.MoveEntry(t.Context(), f.fs.ID, dir.ID, &file.ID)
		expectCode(t, err, metadata.ErrTargetIsNotDirectory)

		_, err = f.store.MoveEntry(t.Context(), f.fs.ID, dir.ID, metadata.Ref(metadata.EntryID(999)))
		expectCode(t, err, metadata.ErrNoParentDirectory)

		_, err = f.store.MoveEntry(t.Context(), f.fs.ID, dir.ID, &clash.ID)
		expectCode(t, err, metadata.ErrDuplicateEntryName)

		_, err = f.store.MoveEntry(t.Context(), f.fs.ID, 999, nil)
		expectCode(t, err, metadata.ErrEntryNotFound)
	})

	t.Run("MoveInPlaceIsNoop", func(t *testing.T) {
		f := newFixture(t, factory)

		a := f.mkdir(t, nil, "a")
		b := f.mkdir(t, &a.ID, "b")

		moved, err := f.store.MoveEntry(t.Context(), f.fs.ID, b.ID, &a.ID)
		if err != nil {
			t.Fatalf("MoveEntry(same parent) failed: %v", err)
		}
		if !equalPath(moved.Path, b.Path) {
			t.Errorf("path changed: %v -> %v", b.Path, moved.Path)
		}
	})
}
