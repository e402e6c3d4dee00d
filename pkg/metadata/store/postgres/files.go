package postgres

import (
	"context"
	"errors"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/marmos91/storagebox/pkg/metadata"
)

// CreatePendingFileRecords allocates IDs for a batch of pending files that
// share one expiry.
func (store *PostgresMetadataStore) CreatePendingFileRecords(ctx context.Context, fsID metadata.FilesystemID, specs []metadata.PendingFileSpec) ([]metadata.File, error) {
	if len(specs) == 0 {
		return []metadata.File{}, nil
	}

	expires := store.opts.Deadline.ExpiresAt(store.opts.Now().UTC(), specs)
	out := make([]metadata.File, 0, len(specs))

	err := store.withTx(ctx, func(tx pgx.Tx) error {
		out = out[:0]

		rows, err := tx.Query(ctx,
			`SELECT nextval($1::regclass) FROM generate_series(1, $2::int)`,
			fileSequence(fsID), len(specs),
		)
		if err != nil {
			if isUndefinedTable(err) {
				return metadata.NewFilesystemNotFoundError(fsID)
			}
			return mapPgError(err, "CreatePendingFileRecords")
		}
		ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
		if isUndefinedTable(err) {
			return metadata.NewFilesystemNotFoundError(fsID)
		}
		if err != nil {
			return mapPgError(err, "CreatePendingFileRecords")
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		batch := &pgx.Batch{}
		for i, spec := range specs {
			batch.Queue(`
				INSERT INTO files (filesystem_id, id, backend_id, backend_uri, bytes, mimetype, expires)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				int64(fsID), ids[i], spec.BackendID, spec.BackendURI, spec.Bytes, spec.Mimetype, expires,
			)
			exp := expires
			out = append(out, metadata.File{
				FilesystemID: fsID,
				ID:           metadata.FileID(ids[i]),
				BackendID:    spec.BackendID,
				BackendURI:   spec.BackendURI,
				Bytes:        spec.Bytes,
				Mimetype:     spec.Mimetype,
				Expires:      &exp,
			})
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return mapPgError(err, "CreatePendingFileRecords")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetFile returns one file record.
func (store *PostgresMetadataStore) GetFile(ctx context.Context, fsID metadata.FilesystemID, fileID metadata.FileID) (*metadata.File, error) {
	return getFile(ctx, store.pool, fsID, fileID, "")
}

func getFile(ctx context.Context, q rowQuerier, fsID metadata.FilesystemID, fileID metadata.FileID, lock string) (*metadata.File, error) {
	row := q.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM files WHERE filesystem_id = $1 AND id = $2 `+lock,
		int64(fsID), int64(fileID),
	)
	f, err := scanFile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, metadata.NewFileNotFoundError(fileID)
	}
	if err != nil {
		return nil, mapPgError(err, "GetFile")
	}
	return f, nil
}

// FinishFileUpload marks the file finished and links it into the tree. The
// file row is locked first, so concurrent finishes of one file serialize and
// exactly one of them succeeds.
func (store *PostgresMetadataStore) FinishFileUpload(ctx context.Context, fsID metadata.FilesystemID, upload metadata.FinishUpload) (*metadata.Entry, error) {
	var entry *metadata.Entry
	err := store.withTx(ctx, func(tx pgx.Tx) error {
		if err := lockTreeShared(ctx, tx, fsID); err != nil {
			return err
		}

		f, err := getFile(ctx, tx, fsID, upload.FileID, "FOR UPDATE")
		if err != nil {
			return err
		}
		if f.UploadFinished {
			return metadata.NewFileAlreadyUploadedError(upload.FileID)
		}
		now := store.opts.Now().UTC()
		if f.Expires == nil || !f.Expires.After(now) {
			return metadata.NewUploadExpiredError(upload.FileID)
		}
		if _, err := parentPath(ctx, tx, fsID, upload.ParentID); err != nil {
			return err
		}

		existing, err := store.entryAt(ctx, tx, fsID, upload.ParentID, upload.Name)
		if err != nil {
			return err
		}
		if existing != nil {
			switch {
			case existing.IsDirectory() && upload.Replace:
				return metadata.NewCannotReplaceDirectoryWithFileError(upload.ParentID, upload.Name)
			case existing.IsDirectory(), !upload.Replace:
				return metadata.NewDuplicateEntryNameError(upload.ParentID, upload.Name)
			}
			if err := store.unlinkEntry(ctx, tx, existing, now); err != nil {
				return err
			}
		}

		fileID := upload.FileID
		entry, err = store.insertEntry(ctx, tx, fsID, upload.ParentID, upload.Name, metadata.EntryTypeFile, &fileID)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE files SET upload_finished = TRUE, expires = NULL, reference_count = reference_count + 1
			WHERE filesystem_id = $1 AND id = $2`,
			int64(fsID), int64(upload.FileID),
		)
		return mapPgError(err, "FinishFileUpload")
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// entryAt locks and returns the entry named name under parentID, or nil.
func (store *PostgresMetadataStore) entryAt(ctx context.Context, tx pgx.Tx, fsID metadata.FilesystemID, parentID *metadata.EntryID, name string) (*metadata.Entry, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM entries
		WHERE filesystem_id = $1 AND parent_key = $2 AND name = $3
		FOR UPDATE`,
		int64(fsID), parentKey(parentID), name,
	)
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapPgError(err, "entryAt")
	}
	return entry, nil
}
