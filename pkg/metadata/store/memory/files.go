package memory

import (
	"context"

	"github.com/marmos91/storagebox/pkg/metadata"
)

// CreatePendingFileRecords allocates IDs for a batch of pending files that
// share one expiry.
func (store *MemoryMetadataStore) CreatePendingFileRecords(ctx context.Context, fsID metadata.FilesystemID, specs []metadata.PendingFileSpec) ([]metadata.File, error) {
	if len(specs) == 0 {
		return []metadata.File{}, nil
	}

	unlock, err := store.write(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	st, err := store.filesystem(fsID)
	if err != nil {
		return nil, err
	}

	expires := store.opts.Deadline.ExpiresAt(store.opts.Now().UTC(), specs)
	out := make([]metadata.File, 0, len(specs))
	for _, spec := range specs {
		st.nextFileID++
		exp := expires
		f := &metadata.File{
			FilesystemID: fsID,
			ID:           st.nextFileID,
			BackendID:    spec.BackendID,
			BackendURI:   spec.BackendURI,
			Bytes:        spec.Bytes,
			Mimetype:     spec.Mimetype,
			Expires:      &exp,
		}
		st.files[f.ID] = f
		out = append(out, copyFile(f))
	}
	return out, nil
}

// GetFile returns one file record.
func (store *MemoryMetadataStore) GetFile(ctx context.Context, fsID metadata.FilesystemID, fileID metadata.FileID) (*metadata.File, error) {
	unlock, err := store.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	st, err := store.filesystem(fsID)
	if err != nil {
		return nil, err
	}
	f, ok := st.files[fileID]
	if !ok {
		return nil, metadata.NewFileNotFoundError(fileID)
	}
	c := copyFile(f)
	return &c, nil
}

// FinishFileUpload marks the file finished and links it into the tree. All
// checks run before any mutation, so a failure leaves the store untouched.
func (store *MemoryMetadataStore) FinishFileUpload(ctx context.Context, fsID metadata.FilesystemID, upload metadata.FinishUpload) (*metadata.Entry, error) {
	unlock, err := store.write(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	st, err := store.filesystem(fsID)
	if err != nil {
		return nil, err
	}

	f, ok := st.files[upload.FileID]
	if !ok {
		return nil, metadata.NewFileNotFoundError(upload.FileID)
	}
	if f.UploadFinished {
		return nil, metadata.NewFileAlreadyUploadedError(upload.FileID)
	}
	now := store.opts.Now().UTC()
	_, claimed := store.claimed[fileKey{fsID, upload.FileID}]
	if claimed || f.Expires == nil || !f.Expires.After(now) {
		return nil, metadata.NewUploadExpiredError(upload.FileID)
	}
	if _, err := st.parentDirectory(upload.ParentID); err != nil {
		return nil, err
	}

	var replaced *metadata.Entry
	if id, exists := st.children[keyOf(upload.ParentID, upload.Name)]; exists {
		existing := st.entries[id]
		switch {
		case existing.IsDirectory():
			if upload.Replace {
				return nil, metadata.NewCannotReplaceDirectoryWithFileError(upload.ParentID, upload.Name)
			}
			return nil, metadata.NewDuplicateEntryNameError(upload.ParentID, upload.Name)
		case !upload.Replace:
			return nil, metadata.NewDuplicateEntryNameError(upload.ParentID, upload.Name)
		}
		replaced = existing
	}

	if replaced != nil {
		store.unlinkEntry(st, replaced)
	}

	fileID := upload.FileID
	entry, err := store.insertEntry(st, upload.ParentID, upload.Name, metadata.EntryTypeFile, &fileID)
	if err != nil {
		return nil, metadata.NewBugError("insert after validation failed: %v", err)
	}

	f.UploadFinished = true
	f.Expires = nil
	f.ReferenceCount++
	return entry.Clone(), nil
}

func copyFile(f *metadata.File) metadata.File {
	c := *f
	if f.Expires != nil {
		e := *f.Expires
		c.Expires = &e
	}
	return c
}
