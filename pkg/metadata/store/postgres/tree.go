package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/marmos91/storagebox/pkg/metadata"
)

// CreateDirectory inserts a directory entry under parentID.
func (store *PostgresMetadataStore) CreateDirectory(ctx context.Context, fsID metadata.FilesystemID, parentID *metadata.EntryID, name string) (*metadata.Entry, error) {
	var entry *metadata.Entry
	err := store.withTx(ctx, func(tx pgx.Tx) error {
		if err := lockTreeShared(ctx, tx, fsID); err != nil {
			return err
		}
		var err error
		entry, err = store.insertEntry(ctx, tx, fsID, parentID, name, metadata.EntryTypeDirectory, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// parentPath resolves parentID to a directory and returns its path. The root
// has an empty path.
func parentPath(ctx context.Context, tx pgx.Tx, fsID metadata.FilesystemID, parentID *metadata.EntryID) ([]int64, error) {
	if parentID == nil {
		return []int64{}, nil
	}

	var (
		path []int64
		typ  string
	)
	err := tx.QueryRow(ctx,
		`SELECT path, entry_type FROM entries WHERE filesystem_id = $1 AND id = $2`,
		int64(fsID), int64(*parentID),
	).Scan(&path, &typ)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && typ != string(metadata.EntryTypeDirectory)) {
		return nil, metadata.NewNoParentDirectoryError(parentID)
	}
	if err != nil {
		return nil, mapPgError(err, "parentPath")
	}
	return path, nil
}

// insertEntry allocates an ID and inserts the row. The caller holds the
// shared tree lock.
func (store *PostgresMetadataStore) insertEntry(ctx context.Context, tx pgx.Tx, fsID metadata.FilesystemID, parentID *metadata.EntryID, name string, typ metadata.EntryType, fileID *metadata.FileID) (*metadata.Entry, error) {
	prefix, err := parentPath(ctx, tx, fsID, parentID)
	if err != nil {
		return nil, err
	}
	id, err := nextEntryID(ctx, tx, fsID)
	if err != nil {
		return nil, err
	}

	var file *int64
	if fileID != nil {
		v := int64(*fileID)
		file = &v
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO entries (filesystem_id, id, parent_id, path, name, entry_type, file_id, last_modified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+entryColumns,
		int64(fsID), int64(id), nullableID(parentID), append(prefix, int64(id)), name, string(typ), file,
		store.opts.Now().UTC(),
	)
	entry, err := scanEntry(row)
	switch {
	case isUniqueViolation(err, "entries_name_key"):
		return nil, metadata.NewDuplicateEntryNameError(parentID, name)
	case isForeignKeyViolation(err, "entries_parent_fkey"):
		return nil, metadata.NewNoParentDirectoryError(parentID)
	case err != nil:
		return nil, mapPgError(err, "insertEntry")
	}
	return entry, nil
}

// ListDirectory returns the children of directoryID ordered by name.
func (store *PostgresMetadataStore) ListDirectory(ctx context.Context, fsID metadata.FilesystemID, directoryID *metadata.EntryID) ([]metadata.Entry, error) {
	if directoryID != nil {
		dir, err := store.GetEntry(ctx, fsID, *directoryID)
		if err != nil {
			return nil, err
		}
		if !dir.IsDirectory() {
			return nil, metadata.NewNotDirectoryError(*directoryID)
		}
	} else if err := store.requireFilesystem(ctx, fsID); err != nil {
		return nil, err
	}

	rows, err := store.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM entries
		WHERE filesystem_id = $1 AND parent_key = $2
		ORDER BY name COLLATE "C"`,
		int64(fsID), parentKey(directoryID),
	)
	if err != nil {
		return nil, mapPgError(err, "ListDirectory")
	}
	entries, err := collectEntries(rows)
	if err != nil {
		return nil, mapPgError(err, "ListDirectory")
	}
	return entries, nil
}

// GetEntry returns one entry.
func (store *PostgresMetadataStore) GetEntry(ctx context.Context, fsID metadata.FilesystemID, entryID metadata.EntryID) (*metadata.Entry, error) {
	return getEntry(ctx, store.pool, fsID, entryID, "")
}

// rowQuerier is satisfied by the pool and by transactions.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getEntry(ctx context.Context, q rowQuerier, fsID metadata.FilesystemID, entryID metadata.EntryID, lock string) (*metadata.Entry, error) {
	row := q.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE filesystem_id = $1 AND id = $2 `+lock,
		int64(fsID), int64(entryID),
	)
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, metadata.NewEntryNotFoundError(entryID)
	}
	if err != nil {
		return nil, mapPgError(err, "GetEntry")
	}
	return entry, nil
}

// GetEntriesByPaths returns the entries found at any of the locations, in
// locator order.
func (store *PostgresMetadataStore) GetEntriesByPaths(ctx context.Context, fsID metadata.FilesystemID, locators []metadata.EntryLocator) ([]metadata.Entry, error) {
	if len(locators) == 0 {
		return nil, nil
	}

	parents := make([]int64, len(locators))
	names := make([]string, len(locators))
	for i, loc := range locators {
		parents[i] = parentKey(loc.ParentID)
		names[i] = loc.Name
	}

	rows, err := store.pool.Query(ctx, `
		SELECT e.filesystem_id, e.id, e.parent_id, e.path, e.name, e.entry_type, e.file_id, e.last_modified
		FROM unnest($2::bigint[], $3::text[]) WITH ORDINALITY AS l(parent_key, name, ord)
		JOIN entries e
			ON e.filesystem_id = $1 AND e.parent_key = l.parent_key AND e.name = l.name
		ORDER BY l.ord`,
		int64(fsID), parents, names,
	)
	if err != nil {
		return nil, mapPgError(err, "GetEntriesByPaths")
	}
	found, err := collectEntries(rows)
	if err != nil {
		return nil, mapPgError(err, "GetEntriesByPaths")
	}

	seen := make(map[metadata.EntryID]bool, len(found))
	var out []metadata.Entry
	for _, e := range found {
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		out = append(out, e)
	}
	return out, nil
}

// DeleteEntry removes an entry. Grants cascade; a file entry releases its
// reference on the file.
func (store *PostgresMetadataStore) DeleteEntry(ctx context.Context, fsID metadata.FilesystemID, entryID metadata.EntryID) error {
	return store.withTx(ctx, func(tx pgx.Tx) error {
		entry, err := getEntry(ctx, tx, fsID, entryID, "FOR UPDATE")
		if err != nil {
			return err
		}

		if entry.IsDirectory() {
			var nonEmpty bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM entries WHERE filesystem_id = $1 AND parent_id = $2)`,
				int64(fsID), int64(entryID),
			).Scan(&nonEmpty); err != nil {
				return mapPgError(err, "DeleteEntry")
			}
			if nonEmpty {
				return metadata.NewDirectoryNotEmptyError(entryID)
			}
		}

		return store.unlinkEntry(ctx, tx, entry, store.opts.Now().UTC())
	})
}

// unlinkEntry deletes the row and releases its file.
func (store *PostgresMetadataStore) unlinkEntry(ctx context.Context, tx pgx.Tx, entry *metadata.Entry, now time.Time) error {
	_, err := tx.Exec(ctx,
		`DELETE FROM entries WHERE filesystem_id = $1 AND id = $2`,
		int64(entry.FilesystemID), int64(entry.ID),
	)
	if isForeignKeyViolation(err, "entries_parent_fkey") {
		return metadata.NewDirectoryNotEmptyError(entry.ID)
	}
	if err != nil {
		return mapPgError(err, "unlinkEntry")
	}

	if entry.FileID == nil {
		return nil
	}
	// An unreferenced finished file expires at once so cleanup reclaims it.
	_, err = tx.Exec(ctx, `
		UPDATE files SET
			reference_count = GREATEST(reference_count - 1, 0),
			expires = CASE
				WHEN reference_count <= 1 AND upload_finished THEN $3
				ELSE expires
			END
		WHERE filesystem_id = $1 AND id = $2`,
		int64(entry.FilesystemID), int64(*entry.FileID), now,
	)
	return mapPgError(err, "releaseFile")
}

// MoveEntry reparents entryID under newParentID and rewrites the paths of the
// moved subtree in a single statement.
func (store *PostgresMetadataStore) MoveEntry(ctx context.Context, fsID metadata.FilesystemID, entryID metadata.EntryID, newParentID *metadata.EntryID) (*metadata.Entry, error) {
	var moved *metadata.Entry
	err := store.withTx(ctx, func(tx pgx.Tx) error {
		if err := lockTreeExclusive(ctx, tx, fsID); err != nil {
			return err
		}

		entry, err := getEntry(ctx, tx, fsID, entryID, "FOR UPDATE")
		if err != nil {
			return err
		}

		newPrefix := []int64{}
		if newParentID != nil {
			target, err := getEntry(ctx, tx, fsID, *newParentID, "")
			if metadata.HasCode(err, metadata.ErrEntryNotFound) {
				return metadata.NewNoParentDirectoryError(newParentID)
			}
			if err != nil {
				return err
			}
			if !target.IsDirectory() {
				return metadata.NewTargetIsNotDirectoryError(*newParentID)
			}
			if target.HasAncestor(entryID) {
				return metadata.NewDirectoryCycleError(entryID, *newParentID)
			}
			newPrefix = toIDs(target.Path)
		}

		if metadata.SameParent(entry.ParentID, newParentID) {
			moved = entry
			return nil
		}

		_, err = tx.Exec(ctx, `
			UPDATE entries SET parent_id = $3, last_modified = $4
			WHERE filesystem_id = $1 AND id = $2`,
			int64(fsID), int64(entryID), nullableID(newParentID), store.opts.Now().UTC(),
		)
		if isUniqueViolation(err, "entries_name_key") {
			return metadata.NewDuplicateEntryNameError(newParentID, entry.Name)
		}
		if err != nil {
			return mapPgError(err, "MoveEntry")
		}

		if _, err := tx.Exec(ctx, `
			UPDATE entries
			SET path = $3::bigint[] || path[array_position(path, $2::bigint):]
			WHERE filesystem_id = $1 AND path @> ARRAY[$2::bigint]`,
			int64(fsID), int64(entryID), newPrefix,
		); err != nil {
			return mapPgError(err, "MoveEntry")
		}

		moved, err = getEntry(ctx, tx, fsID, entryID, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	return moved, nil
}
