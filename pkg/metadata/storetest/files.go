package storetest

import (
	"sync"
	"testing"
	"time"

	"github.com/marmos91/storagebox/pkg/metadata"
)

func runFileTests(t *testing.T, factory StoreFactory) {
	t.Run("PendingBatchSharesExpiry", func(t *testing.T) {
		f := newFixture(t, factory)

		specs := []metadata.PendingFileSpec{
			{Bytes: 100000, Mimetype: "text/plain", BackendID: "b1", BackendURI: "u1"},
			{Bytes: 150000, Mimetype: "image/png", BackendID: "b1", BackendURI: "u2"},
		}
		files, err := f.store.CreatePendingFileRecords(t.Context(), f.fs.ID, specs)
		if err != nil {
			t.Fatalf("CreatePendingFileRecords() failed: %v", err)
		}
		if len(files) != 2 {
			t.Fatalf("got %d files, want 2", len(files))
		}

		want := f.clock.Now().Add(5*time.Minute + 2*time.Second)
		for i, file := range files {
			if file.Expires == nil || !file.Expires.Equal(want) {
				t.Errorf("file %d expires %v, want %v", i, file.Expires, want)
			}
			if file.UploadFinished || file.ReferenceCount != 0 {
				t.Errorf("file %d not pending: %+v", i, file)
			}
			if file.BackendURI != specs[i].BackendURI || file.Bytes != specs[i].Bytes || file.Mimetype != specs[i].Mimetype {
				t.Errorf("file %d out of order: %+v", i, file)
			}
		}
		if files[0].ID == files[1].ID {
			t.Errorf("duplicate file IDs %d", files[0].ID)
		}

		got, err := f.store.GetFile(t.Context(), f.fs.ID, files[1].ID)
		if err != nil {
			t.Fatalf("GetFile() failed: %v", err)
		}
		if got.BackendURI != "u2" || got.BackendID != "b1" {
			t.Errorf("GetFile() = %+v", got)
		}
	})

	t.Run("EmptyBatch", func(t *testing.T) {
		f := newFixture(t, factory)

		files, err := f.store.CreatePendingFileRecords(t.Context(), f.fs.ID, nil)
		if err != nil || len(files) != 0 {
			t.Errorf("CreatePendingFileRecords(nil) = %v, %v", files, err)
		}
	})

	t.Run("GetFileNotFound", func(t *testing.T) {
		f := newFixture(t, factory)

		_, err := f.store.GetFile(t.Context(), f.fs.ID, 77)
		expectCode(t, err, metadata.ErrFileNotFound)
	})

	t.Run("FinishCreatesEntry", func(t *testing.T) {
		f := newFixture(t, factory)

		entry := f.mustUpload(t, nil, "a.txt")
		if entry.Type != metadata.EntryTypeFile || entry.Name != "a.txt" || entry.ParentID != nil || entry.FileID == nil {
			t.Fatalf("unexpected entry %+v", entry)
		}

		file, err := f.store.GetFile(t.Context(), f.fs.ID, *entry.FileID)
		if err != nil {
			t.Fatalf("GetFile() failed: %v", err)
		}
		if !file.UploadFinished || file.Expires != nil || file.ReferenceCount != 1 {
			t.Errorf("file after finish = %+v", file)
		}
	})

	t.Run("FinishTwice", func(t *testing.T) {
		f := newFixture(t, factory)

		files, _ := f.store.CreatePendingFileRecords(t.Context(), f.fs.ID, []metadata.PendingFileSpec{{Bytes: 1, BackendID: "b", BackendURI: "u"}})
		upload := metadata.FinishUpload{FileID: files[0].ID, Name: "a.txt"}

		if _, err := f.store.FinishFileUpload(t.Context(), f.fs.ID, upload); err != nil {
			t.Fatalf("first FinishFileUpload() failed: %v", err)
		}
		upload.Name = "b.txt"
		_, err := f.store.FinishFileUpload(t.Context(), f.fs.ID, upload)
		expectCode(t, err, metadata.ErrFileAlreadyUploaded)
	})

	t.Run("ConcurrentFinishesExactlyOneWins", func(t *testing.T) {
		f := newFixture(t, factory)

		files, _ := f.store.CreatePendingFileRecords(t.Context(), f.fs.ID, []metadata.PendingFileSpec{{Bytes: 1, BackendID: "b", BackendURI: "u"}})

		const workers = 8
		var wg sync.WaitGroup
		errs := make([]error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = f.store.FinishFileUpload(t.Context(), f.fs.ID, metadata.FinishUpload{
					FileID: files[0].ID, Name: "race-" + string(rune('a'+i)),
				})
			}(i)
		}
		wg.Wait()

		wins := 0
		for _, err := range errs {
			switch {
			case err == nil:
				wins++
			case metadata.HasCode(err, metadata.ErrFileAlreadyUploaded), metadata.HasCode(err, metadata.ErrTransient):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}
		if wins != 1 {
			t.Errorf("%d finishes succeeded, want exactly 1", wins)
		}
	})

	t.Run("FinishAfterExpiry", func(t *testing.T) {
		f := newFixture(t, factory)

		files, _ := f.store.CreatePendingFileRecords(t.Context(), f.fs.ID, []metadata.PendingFileSpec{{Bytes: 1, BackendID: "b", BackendURI: "u"}})
		f.clock.Advance(time.Hour)

		_, err := f.store.FinishFileUpload(t.Context(), f.fs.ID, metadata.FinishUpload{FileID: files[0].ID, Name: "late.txt"})
		expectCode(t, err, metadata.ErrUploadExpired)
	})

	t.Run("FinishIntoMissingParent", func(t *testing.T) {
		f := newFixture(t, factory)

		files, _ := f.store.CreatePendingFileRecords(t.Context(), f.fs.ID, []metadata.PendingFileSpec{{Bytes: 1, BackendID: "b", BackendURI: "u"}})
		_, err := f.store.FinishFileUpload(t.Context(), f.fs.ID, metadata.FinishUpload{
			FileID: files[0].ID, ParentID: metadata.Ref(metadata.EntryID(404)), Name: "a.txt",
		})
		expectCode(t, err, metadata.ErrNoParentDirectory)

		// The failed finish left the file pending and retryable.
		file, _ := f.store.GetFile(t.Context(), f.fs.ID, files[0].ID)
		if file.UploadFinished {
			t.Errorf("file finished despite failure: %+v", file)
		}
		if _, err := f.store.FinishFileUpload(t.Context(), f.fs.ID, metadata.FinishUpload{FileID: files[0].ID, Name: "a.txt"}); err != nil {
			t.Errorf("retry at root failed: %v", err)
		}
	})

	t.Run("FinishDuplicateWithoutReplace", func(t *testing.T) {
		f := newFixture(t, factory)

		f.mustUpload(t, nil, "a.txt")
		_, err := f.upload(t, nil, "a.txt", false)
		expectCode(t, err, metadata.ErrDuplicateEntryName)
	})

	t.Run("FinishReplaceSwapsEntry", func(t *testing.T) {
		f := newFixture(t, factory)

		old := f.mustUpload(t, nil, "a.txt")
		replacement, err := f.upload(t, nil, "a.txt", true)
		if err != nil {
			t.Fatalf("replace failed: %v", err)
		}
		if replacement.ID == old.ID || *replacement.FileID == *old.FileID {
			t.Errorf("replacement reused old identity: %+v", replacement)
		}

		_, err = f.store.GetEntry(t.Context(), f.fs.ID, old.ID)
		expectCode(t, err, metadata.ErrEntryNotFound)

		list, _ := f.store.ListDirectory(t.Context(), f.fs.ID, nil)
		if len(list) != 1 || list[0].ID != replacement.ID {
			t.Errorf("root listing = %+v", list)
		}

		// The replaced blob lost its only reference and is now reclaimable.
		oldFile, err := f.store.GetFile(t.Context(), f.fs.ID, *old.FileID)
		if err != nil {
			t.Fatalf("GetFile(old) failed: %v", err)
		}
		if oldFile.ReferenceCount != 0 || !oldFile.Reclaimable(f.clock.Now()) {
			t.Errorf("replaced file not reclaimable: %+v", oldFile)
		}
	})

	t.Run("FinishReplaceWhenAbsent", func(t *testing.T) {
		f := newFixture(t, factory)

		if _, err := f.upload(t, nil, "new.txt", true); err != nil {
			t.Fatalf("replace of absent entry failed: %v", err)
		}
	})

	t.Run("FinishCannotReplaceDirectory", func(t *testing.T) {
		f := newFixture(t, factory)

		f.mkdir(t, nil, "a.txt")
		_, err := f.upload(t, nil, "a.txt", true)
		expectCode(t, err, metadata.ErrCannotReplaceDirectoryWithFile)
	})

	t.Run("DeletingFileEntryReleasesFile", func(t *testing.T) {
		f := newFixture(t, factory)

		entry := f.mustUpload(t, nil, "a.txt")
		if err := f.store.DeleteEntry(t.Context(), f.fs.ID, entry.ID); err != nil {
			t.Fatalf("DeleteEntry() failed: %v", err)
		}
		file, err := f.store.GetFile(t.Context(), f.fs.ID, *entry.FileID)
		if err != nil {
			t.Fatalf("GetFile() failed: %v", err)
		}
		if file.ReferenceCount != 0 || !file.Reclaimable(f.clock.Now()) {
			t.Errorf("orphaned file = %+v", file)
		}
	})
}
