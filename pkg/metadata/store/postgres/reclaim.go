package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/marmos91/storagebox/internal/logger"
	"github.com/marmos91/storagebox/pkg/metadata"
)

// ReclaimExpiredPendingFiles locks up to limit reclaimable rows with SKIP
// LOCKED, runs remove for each while the lock is held and deletes the rows
// whose removal succeeded. Concurrent passes, even from other processes,
// never select the same row.
func (store *PostgresMetadataStore) ReclaimExpiredPendingFiles(ctx context.Context, limit int, now time.Time, remove metadata.RemoveFunc) (metadata.ReclaimResult, error) {
	var result metadata.ReclaimResult
	if limit <= 0 {
		return result, nil
	}

	err := store.withTx(ctx, func(tx pgx.Tx) error {
		result = metadata.ReclaimResult{}

		rows, err := tx.Query(ctx, `
			SELECT `+fileColumns+`
			FROM files
			WHERE reference_count = 0 AND expires IS NOT NULL AND expires <= $1
			ORDER BY expires, filesystem_id, id
			LIMIT $2
			FOR UPDATE SKIP LOCKED`,
			now, limit,
		)
		if err != nil {
			return mapPgError(err, "ReclaimExpiredPendingFiles")
		}
		batch, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (metadata.File, error) {
			f, err := scanFile(row)
			if err != nil {
				return metadata.File{}, err
			}
			return *f, nil
		})
		if err != nil {
			return mapPgError(err, "ReclaimExpiredPendingFiles")
		}
		result.Selected = len(batch)

		for _, f := range batch {
			if err := remove(ctx, f); err != nil {
				result.Failed++
				store.logger.Warn("Failed to remove reclaimable file",
					logger.FilesystemID(int64(f.FilesystemID)),
					logger.FileID(int64(f.ID)),
					logger.Err(err),
				)
				continue
			}
			if _, err := tx.Exec(ctx,
				`DELETE FROM files WHERE filesystem_id = $1 AND id = $2`,
				int64(f.FilesystemID), int64(f.ID),
			); err != nil {
				return mapPgError(err, "ReclaimExpiredPendingFiles")
			}
			result.Reclaimed++
		}
		return nil
	})
	return result, err
}
