package postgres

import (
	"github.com/jackc/pgx/v5"

	"github.com/marmos91/storagebox/pkg/metadata"
)

const entryColumns = `filesystem_id, id, parent_id, path, name, entry_type, file_id, last_modified`

const fileColumns = `filesystem_id, id, backend_id, backend_uri, bytes, mimetype, expires, upload_finished, reference_count`

func scanEntry(row pgx.Row) (*metadata.Entry, error) {
	var (
		fsID, id     int64
		parent, file *int64
		path         []int64
		typ          string
		e            metadata.Entry
	)
	if err := row.Scan(&fsID, &id, &parent, &path, &e.Name, &typ, &file, &e.LastModified); err != nil {
		return nil, err
	}

	e.FilesystemID = metadata.FilesystemID(fsID)
	e.ID = metadata.EntryID(id)
	e.Type = metadata.EntryType(typ)
	e.Path = fromIDs(path)
	e.LastModified = e.LastModified.UTC()
	if parent != nil {
		e.ParentID = metadata.Ref(metadata.EntryID(*parent))
	}
	if file != nil {
		e.FileID = metadata.Ref(metadata.FileID(*file))
	}
	return &e, nil
}

func collectEntries(rows pgx.Rows) ([]metadata.Entry, error) {
	defer rows.Close()

	out := []metadata.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func scanFile(row pgx.Row) (*metadata.File, error) {
	var (
		fsID, id int64
		f        metadata.File
	)
	if err := row.Scan(&fsID, &id, &f.BackendID, &f.BackendURI, &f.Bytes, &f.Mimetype,
		&f.Expires, &f.UploadFinished, &f.ReferenceCount); err != nil {
		return nil, err
	}

	f.FilesystemID = metadata.FilesystemID(fsID)
	f.ID = metadata.FileID(id)
	if f.Expires != nil {
		exp := f.Expires.UTC()
		f.Expires = &exp
	}
	return &f, nil
}

func toIDs(path []metadata.EntryID) []int64 {
	out := make([]int64, len(path))
	for i, id := range path {
		out[i] = int64(id)
	}
	return out
}

func fromIDs(path []int64) []metadata.EntryID {
	out := make([]metadata.EntryID, len(path))
	for i, id := range path {
		out[i] = metadata.EntryID(id)
	}
	return out
}

// parentKey mirrors the generated parent_key column.
func parentKey(parentID *metadata.EntryID) int64 {
	if parentID == nil {
		return 0
	}
	return int64(*parentID)
}

func nullableID(id *metadata.EntryID) *int64 {
	if id == nil {
		return nil
	}
	v := int64(*id)
	return &v
}

// criteriaArrays splits the attribute set into parallel arrays for unnest.
func criteriaArrays(attrs metadata.AttributeSet) (issuers, attributes, values []string) {
	criteria := attrs.Criteria()
	issuers = make([]string, len(criteria))
	attributes = make([]string, len(criteria))
	values = make([]string, len(criteria))
	for i, c := range criteria {
		issuers[i] = c.Issuer
		attributes[i] = c.Attribute
		values[i] = c.Value
	}
	return issuers, attributes, values
}
