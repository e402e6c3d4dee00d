package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/storagebox/pkg/metadata"
)

func runReclaimTests(t *testing.T, factory StoreFactory) {
	t.Run("UnexpiredUntouched", func(t *testing.T) {
		f := newFixture(t, factory)

		pending(t, f, 3)
		result, err := f.store.ReclaimExpiredPendingFiles(t.Context(), 10, f.clock.Now(), failRemove(t))
		if err != nil {
			t.Fatalf("ReclaimExpiredPendingFiles() failed: %v", err)
		}
		if result.Selected != 0 {
			t.Errorf("selected %d unexpired files", result.Selected)
		}
	})

	t.Run("ExpiredReclaimedWithLimit", func(t *testing.T) {
		f := newFixture(t, factory)

		files := pending(t, f, 5)
		f.clock.Advance(time.Hour)

		var removed []metadata.FileID
		remove := func(_ context.Context, file metadata.File) error {
			removed = append(removed, file.ID)
			return nil
		}

		result, err := f.store.ReclaimExpiredPendingFiles(t.Context(), 3, f.clock.Now(), remove)
		if err != nil {
			t.Fatalf("ReclaimExpiredPendingFiles() failed: %v", err)
		}
		if result.Selected != 3 || result.Reclaimed != 3 || len(removed) != 3 {
			t.Fatalf("first pass = %+v, removed %v", result, removed)
		}

		result, err = f.store.ReclaimExpiredPendingFiles(t.Context(), 3, f.clock.Now(), remove)
		if err != nil {
			t.Fatalf("second pass failed: %v", err)
		}
		if result.Reclaimed != 2 {
			t.Errorf("second pass = %+v", result)
		}

		for _, file := range files {
			_, err := f.store.GetFile(t.Context(), f.fs.ID, file.ID)
			expectCode(t, err, metadata.ErrFileNotFound)
		}
	})

	t.Run("FailedRemoveKeepsRow", func(t *testing.T) {
		f := newFixture(t, factory)

		files := pending(t, f, 1)
		f.clock.Advance(time.Hour)

		result, err := f.store.ReclaimExpiredPendingFiles(t.Context(), 10, f.clock.Now(), func(context.Context, metadata.File) error {
			return errors.New("backend unavailable")
		})
		if err != nil {
			t.Fatalf("ReclaimExpiredPendingFiles() failed: %v", err)
		}
		if result.Failed != 1 || result.Reclaimed != 0 {
			t.Errorf("result = %+v", result)
		}
		if _, err := f.store.GetFile(t.Context(), f.fs.ID, files[0].ID); err != nil {
			t.Errorf("row gone after failed remove: %v", err)
		}

		// The next pass retries it.
		result, _ = f.store.ReclaimExpiredPendingFiles(t.Context(), 10, f.clock.Now(), func(context.Context, metadata.File) error { return nil })
		if result.Reclaimed != 1 {
			t.Errorf("retry result = %+v", result)
		}
	})

	t.Run("FinishedFilesUntouched", func(t *testing.T) {
		f := newFixture(t, factory)

		f.mustUpload(t, nil, "keep.txt")
		f.clock.Advance(time.Hour)

		result, _ := f.store.ReclaimExpiredPendingFiles(t.Context(), 10, f.clock.Now(), failRemove(t))
		if result.Selected != 0 {
			t.Errorf("finished file selected: %+v", result)
		}
	})

	t.Run("OrphanedFileReclaimed", func(t *testing.T) {
		f := newFixture(t, factory)

		entry := f.mustUpload(t, nil, "gone.txt")
		if err := f.store.DeleteEntry(t.Context(), f.fs.ID, entry.ID); err != nil {
			t.Fatalf("DeleteEntry() failed: %v", err)
		}

		var uri string
		result, err := f.store.ReclaimExpiredPendingFiles(t.Context(), 10, f.clock.Now(), func(_ context.Context, file metadata.File) error {
			uri = file.BackendURI
			return nil
		})
		if err != nil {
			t.Fatalf("ReclaimExpiredPendingFiles() failed: %v", err)
		}
		if result.Reclaimed != 1 || uri != "uri-gone.txt" {
			t.Errorf("result = %+v, uri = %q", result, uri)
		}
	})

	t.Run("ConcurrentPassesNeverDoubleReclaim", func(t *testing.T) {
		f := newFixture(t, factory)

		const total = 20
		pending(t, f, total)
		f.clock.Advance(time.Hour)

		var mu sync.Mutex
		seen := make(map[metadata.FileID]int)
		var reclaimed atomic.Int64
		remove := func(_ context.Context, file metadata.File) error {
			mu.Lock()
			seen[file.ID]++
			mu.Unlock()
			time.Sleep(time.Millisecond)
			return nil
		}

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					result, err := f.store.ReclaimExpiredPendingFiles(context.Background(), 3, f.clock.Now(), remove)
					if err != nil {
						t.Errorf("ReclaimExpiredPendingFiles() failed: %v", err)
						return
					}
					reclaimed.Add(int64(result.Reclaimed))
					if result.Selected == 0 {
						return
					}
				}
			}()
		}
		wg.Wait()

		if got := reclaimed.Load(); got != total {
			t.Errorf("reclaimed %d files, want %d", got, total)
		}
		for id, n := range seen {
			if n != 1 {
				t.Errorf("file %d removed %d times", id, n)
			}
		}
	})

	// The store still sees the uploads as live while the cleanup clock has
	// reached their deadline, so every file is both finishable and
	// reclaimable. Each must end up either finished and untouched, or
	// reclaimed with its finish refused.
	t.Run("FinishRacingReclaimAtExpiry", func(t *testing.T) {
		f := newFixture(t, factory)

		const total = 24
		files := pending(t, f, total)
		var deadline time.Time
		for _, file := range files {
			if file.Expires.After(deadline) {
				deadline = *file.Expires
			}
		}

		var mu sync.Mutex
		removed := make(map[metadata.FileID]int)
		remove := func(_ context.Context, file metadata.File) error {
			mu.Lock()
			removed[file.ID]++
			mu.Unlock()
			return nil
		}

		finishErrs := make([]error, total)
		var finishing sync.WaitGroup
		finishing.Add(1)
		go func() {
			defer finishing.Done()
			for i, file := range files {
				_, finishErrs[i] = f.store.FinishFileUpload(context.Background(), f.fs.ID, metadata.FinishUpload{
					FileID: file.ID,
					Name:   fmt.Sprintf("race-%d.txt", i),
				})
			}
		}()

		var done atomic.Bool
		var reclaiming sync.WaitGroup
		for i := 0; i < 2; i++ {
			reclaiming.Add(1)
			go func() {
				defer reclaiming.Done()
				for {
					finished := done.Load()
					result, err := f.store.ReclaimExpiredPendingFiles(context.Background(), 2, deadline, remove)
					if err != nil {
						t.Errorf("ReclaimExpiredPendingFiles() failed: %v", err)
						return
					}
					if finished && result.Selected == 0 {
						return
					}
				}
			}()
		}

		finishing.Wait()
		done.Store(true)
		reclaiming.Wait()

		for i, file := range files {
			err := finishErrs[i]
			n := removed[file.ID]
			switch {
			case err == nil:
				if n != 0 {
					t.Errorf("file %d finished but its object was removed %d times", file.ID, n)
				}
				got, getErr := f.store.GetFile(t.Context(), f.fs.ID, file.ID)
				if getErr != nil {
					t.Errorf("finished file %d lost: %v", file.ID, getErr)
					continue
				}
				if !got.UploadFinished || got.ReferenceCount != 1 {
					t.Errorf("finished file %d = %+v", file.ID, got)
				}
			case metadata.HasCode(err, metadata.ErrUploadExpired), metadata.HasCode(err, metadata.ErrFileNotFound):
				if n != 1 {
					t.Errorf("refused file %d removed %d times, want 1", file.ID, n)
				}
				_, getErr := f.store.GetFile(t.Context(), f.fs.ID, file.ID)
				if !metadata.HasCode(getErr, metadata.ErrFileNotFound) {
					t.Errorf("refused file %d still present: %v", file.ID, getErr)
				}
			default:
				t.Errorf("FinishFileUpload(%d) failed: %v", file.ID, err)
			}
		}
	})

	t.Run("ZeroLimit", func(t *testing.T) {
		f := newFixture(t, factory)

		pending(t, f, 1)
		f.clock.Advance(time.Hour)

		result, err := f.store.ReclaimExpiredPendingFiles(t.Context(), 0, f.clock.Now(), failRemove(t))
		if err != nil || result.Selected != 0 {
			t.Errorf("zero limit = %+v, %v", result, err)
		}
	})
}

func pending(t *testing.T, f *fixture, n int) []metadata.File {
	t.Helper()
	specs := make([]metadata.PendingFileSpec, n)
	for i := range specs {
		specs[i] = metadata.PendingFileSpec{Bytes: 1, BackendID: "default", BackendURI: "pending"}
	}
	files, err := f.store.CreatePendingFileRecords(t.Context(), f.fs.ID, specs)
	if err != nil {
		t.Fatalf("CreatePendingFileRecords() failed: %v", err)
	}
	return files
}

func failRemove(t *testing.T) metadata.RemoveFunc {
	return func(_ context.Context, file metadata.File) error {
		t.Errorf("unexpected remove of file %d", file.ID)
		return nil
	}
}
