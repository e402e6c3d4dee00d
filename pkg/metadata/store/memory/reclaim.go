package memory

import (
	"context"
	"sort"
	"time"

	"github.com/marmos91/storagebox/pkg/metadata"
)

// ReclaimExpiredPendingFiles claims up to limit reclaimable files, runs
// remove for each without holding the store lock, and deletes the rows whose
// removal succeeded. Claimed rows are invisible to concurrent passes.
func (store *MemoryMetadataStore) ReclaimExpiredPendingFiles(ctx context.Context, limit int, now time.Time, remove metadata.RemoveFunc) (metadata.ReclaimResult, error) {
	var result metadata.ReclaimResult
	if limit <= 0 {
		return result, nil
	}

	batch, err := store.claim(ctx, limit, now)
	if err != nil {
		return result, err
	}
	result.Selected = len(batch)

	for _, f := range batch {
		key := fileKey{f.FilesystemID, f.ID}
		if err := remove(ctx, f); err != nil {
			result.Failed++
			store.unclaim(key)
			continue
		}
		store.deleteClaimed(key)
		result.Reclaimed++
	}
	return result, nil
}

func (store *MemoryMetadataStore) claim(ctx context.Context, limit int, now time.Time) ([]metadata.File, error) {
	unlock, err := store.write(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var candidates []metadata.File
	for fsID, st := range store.filesystems {
		for id, f := range st.files {
			if _, held := store.claimed[fileKey{fsID, id}]; held {
				continue
			}
			if f.Reclaimable(now) {
				candidates = append(candidates, copyFile(f))
			}
		}
	}

	// Oldest expiry first, so a backlog drains in order.
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].Expires.Equal(*candidates[j].Expires) {
			return candidates[i].Expires.Before(*candidates[j].Expires)
		}
		if candidates[i].FilesystemID != candidates[j].FilesystemID {
			return candidates[i].FilesystemID < candidates[j].FilesystemID
		}
		return candidates[i].ID < candidates[j].ID
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	for _, f := range candidates {
		store.claimed[fileKey{f.FilesystemID, f.ID}] = struct{}{}
	}
	return candidates, nil
}

func (store *MemoryMetadataStore) unclaim(key fileKey) {
	store.mu.Lock()
	defer store.mu.Unlock()
	delete(store.claimed, key)
}

func (store *MemoryMetadataStore) deleteClaimed(key fileKey) {
	store.mu.Lock()
	defer store.mu.Unlock()
	delete(store.claimed, key)
	if st, ok := store.filesystems[key.fs]; ok {
		delete(st.files, key.file)
	}
}
