package badger

import (
	"context"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/storagebox/pkg/metadata"
)

// CreatePendingFileRecords allocates IDs for a batch of pending files that
// share one expiry.
func (store *BadgerMetadataStore) CreatePendingFileRecords(ctx context.Context, fsID metadata.FilesystemID, specs []metadata.PendingFileSpec) ([]metadata.File, error) {
	if len(specs) == 0 {
		return []metadata.File{}, nil
	}

	expires := store.opts.Deadline.ExpiresAt(store.opts.Now().UTC(), specs)
	var out []metadata.File
	err := store.update(ctx, "CreatePendingFileRecords", func(txn *badgerdb.Txn) error {
		out = make([]metadata.File, 0, len(specs))
		if err := store.requireFilesystem(txn, fsID); err != nil {
			return err
		}
		for _, spec := range specs {
			id, err := next(txn, keyFileCounter(fsID))
			if err != nil {
				return err
			}
			exp := expires
			f := metadata.File{
				FilesystemID: fsID,
				ID:           metadata.FileID(id),
				BackendID:    spec.BackendID,
				BackendURI:   spec.BackendURI,
				Bytes:        spec.Bytes,
				Mimetype:     spec.Mimetype,
				Expires:      &exp,
			}
			if err := putFile(txn, nil, &f); err != nil {
				return err
			}
			out = append(out, f)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// putFile writes f and keeps the reclaim index in step with it. old is the
// previous version of the row, if any.
func putFile(txn *badgerdb.Txn, old, f *metadata.File) error {
	if old != nil && old.ReferenceCount == 0 && old.Expires != nil {
		if err := txn.Delete(keyReclaim(*old.Expires, old.FilesystemID, old.ID)); err != nil {
			return err
		}
	}
	if f.ReferenceCount == 0 && f.Expires != nil {
		if err := txn.Set(keyReclaim(*f.Expires, f.FilesystemID, f.ID), nil); err != nil {
			return err
		}
	}
	return putJSON(txn, keyFile(f.FilesystemID, f.ID), f)
}

func getFile(txn *badgerdb.Txn, fsID metadata.FilesystemID, id metadata.FileID) (*metadata.File, error) {
	var f metadata.File
	found, err := getJSON(txn, keyFile(fsID, id), &f)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, metadata.NewFileNotFoundError(id)
	}
	if f.Expires != nil {
		exp := f.Expires.UTC()
		f.Expires = &exp
	}
	return &f, nil
}

// GetFile returns one file record.
func (store *BadgerMetadataStore) GetFile(ctx context.Context, fsID metadata.FilesystemID, fileID metadata.FileID) (*metadata.File, error) {
	var f *metadata.File
	err := store.view(ctx, "GetFile", func(txn *badgerdb.Txn) error {
		if err := store.requireFilesystem(txn, fsID); err != nil {
			return err
		}
		var err error
		f, err = getFile(txn, fsID, fileID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// releaseFile drops one reference. An unreferenced finished file expires
// immediately so cleanup reclaims it.
func (store *BadgerMetadataStore) releaseFile(txn *badgerdb.Txn, fsID metadata.FilesystemID, id metadata.FileID, now time.Time) error {
	old, err := getFile(txn, fsID, id)
	if metadata.HasCode(err, metadata.ErrFileNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	f := *old
	if f.ReferenceCount > 0 {
		f.ReferenceCount--
	}
	if f.ReferenceCount == 0 && f.UploadFinished {
		f.Expires = &now
	}
	return putFile(txn, old, &f)
}

// FinishFileUpload marks the file finished and links it into the tree.
func (store *BadgerMetadataStore) FinishFileUpload(ctx context.Context, fsID metadata.FilesystemID, upload metadata.FinishUpload) (*metadata.Entry, error) {
	// claimMu is held through commit. A reclamation scan then either starts
	// after the file is finished or has already claimed it.
	store.claimMu.Lock()
	defer store.claimMu.Unlock()

	var entry *metadata.Entry
	err := store.update(ctx, "FinishFileUpload", func(txn *badgerdb.Txn) error {
		if err := store.requireFilesystem(txn, fsID); err != nil {
			return err
		}

		old, err := getFile(txn, fsID, upload.FileID)
		if err != nil {
			return err
		}
		if old.UploadFinished {
			return metadata.NewFileAlreadyUploadedError(upload.FileID)
		}
		now := store.opts.Now().UTC()
		if old.Expires == nil || !old.Expires.After(now) || store.claimedLocked(fsID, upload.FileID) {
			return metadata.NewUploadExpiredError(upload.FileID)
		}
		if _, err := parentDirectory(txn, fsID, upload.ParentID); err != nil {
			return err
		}

		existing, err := entryAt(txn, fsID, upload.ParentID, upload.Name)
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
			if err := store.unlinkEntry(txn, existing, now); err != nil {
				return err
			}
		}

		fileID := upload.FileID
		entry, err = store.insertEntry(txn, fsID, upload.ParentID, upload.Name, metadata.EntryTypeFile, &fileID)
		if err != nil {
			return err
		}

		f := *old
		f.UploadFinished = true
		f.Expires = nil
		f.ReferenceCount++
		return putFile(txn, old, &f)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}
