package badger

import (
	"context"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/storagebox/internal/logger"
	"github.com/marmos91/storagebox/pkg/metadata"
)

// ReclaimExpiredPendingFiles walks the reclaim index in expiry order, claims
// up to limit files, runs remove for each outside any transaction and
// deletes the rows whose removal succeeded.
func (store *BadgerMetadataStore) ReclaimExpiredPendingFiles(ctx context.Context, limit int, now time.Time, remove metadata.RemoveFunc) (metadata.ReclaimResult, error) {
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
		k := fileKey{f.FilesystemID, f.ID}
		if err := remove(ctx, f); err != nil {
			result.Failed++
			store.unclaim(k)
			store.logger.Warn("Failed to remove reclaimable file",
				logger.FilesystemID(int64(f.FilesystemID)),
				logger.FileID(int64(f.ID)),
				logger.Err(err),
			)
			continue
		}

		deleted := false
		err := store.update(ctx, "ReclaimExpiredPendingFiles", func(txn *badgerdb.Txn) error {
			deleted = false
			cur, err := getFile(txn, f.FilesystemID, f.ID)
			if metadata.HasCode(err, metadata.ErrFileNotFound) {
				deleted = true
				return nil
			}
			if err != nil {
				return err
			}
			if !cur.Reclaimable(now) {
				return nil
			}
			if err := txn.Delete(keyReclaim(*cur.Expires, cur.FilesystemID, cur.ID)); err != nil {
				return err
			}
			deleted = true
			return txn.Delete(keyFile(cur.FilesystemID, cur.ID))
		})
		store.unclaim(k)
		if err != nil {
			return result, err
		}
		if !deleted {
			store.logger.Warn("Reclaimed file changed while its object was removed, keeping row",
				logger.FilesystemID(int64(f.FilesystemID)),
				logger.FileID(int64(f.ID)),
			)
			continue
		}
		result.Reclaimed++
	}
	return result, nil
}

func (store *BadgerMetadataStore) claim(ctx context.Context, limit int, now time.Time) ([]metadata.File, error) {
	var candidates []metadata.File

	// The claim set is held across the scan so two passes cannot pick the
	// same file.
	store.claimMu.Lock()
	defer store.claimMu.Unlock()

	cutoff := now.UnixNano()
	err := store.view(ctx, "ReclaimExpiredPendingFiles", func(txn *badgerdb.Txn) error {
		prefix := []byte(prefixReclaim)
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix) && len(candidates) < limit; it.Next() {
			expires, fsID, fileID := decodeReclaimKey(it.Item().Key())
			if expires > cutoff {
				break
			}
			if _, held := store.claimed[fileKey{fsID, fileID}]; held {
				continue
			}
			f, err := getFile(txn, fsID, fileID)
			if metadata.HasCode(err, metadata.ErrFileNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if f.Reclaimable(now) {
				candidates = append(candidates, *f)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, f := range candidates {
		store.claimed[fileKey{f.FilesystemID, f.ID}] = struct{}{}
	}
	return candidates, nil
}

func (store *BadgerMetadataStore) unclaim(k fileKey) {
	store.claimMu.Lock()
	defer store.claimMu.Unlock()
	delete(store.claimed, k)
}
