package badger

import (
	"context"
	"errors"
	"slices"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/storagebox/pkg/metadata"
)

// CreateDirectory inserts a directory entry under parentID.
func (store *BadgerMetadataStore) CreateDirectory(ctx context.Context, fsID metadata.FilesystemID, parentID *metadata.EntryID, name string) (*metadata.Entry, error) {
	var entry *metadata.Entry
	err := store.update(ctx, "CreateDirectory", func(txn *badgerdb.Txn) error {
		if err := store.requireFilesystem(txn, fsID); err != nil {
			return err
		}
		var err error
		entry, err = store.insertEntry(txn, fsID, parentID, name, metadata.EntryTypeDirectory, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func getEntry(txn *badgerdb.Txn, fsID metadata.FilesystemID, id metadata.EntryID) (*metadata.Entry, error) {
	var e metadata.Entry
	found, err := getJSON(txn, keyEntry(fsID, id), &e)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, metadata.NewEntryNotFoundError(id)
	}
	return &e, nil
}

// parentDirectory resolves parentID to a directory, or nil for the root.
func parentDirectory(txn *badgerdb.Txn, fsID metadata.FilesystemID, parentID *metadata.EntryID) (*metadata.Entry, error) {
	if parentID == nil {
		return nil, nil
	}
	parent, err := getEntry(txn, fsID, *parentID)
	if metadata.HasCode(err, metadata.ErrEntryNotFound) || (err == nil && !parent.IsDirectory()) {
		return nil, metadata.NewNoParentDirectoryError(parentID)
	}
	return parent, err
}

// entryAt returns the entry named name under parentID, or nil.
func entryAt(txn *badgerdb.Txn, fsID metadata.FilesystemID, parentID *metadata.EntryID, name string) (*metadata.Entry, error) {
	id, ok, err := getUint(txn, keyChild(fsID, parentID, name))
	if err != nil || !ok {
		return nil, err
	}
	return getEntry(txn, fsID, metadata.EntryID(id))
}

func (store *BadgerMetadataStore) insertEntry(txn *badgerdb.Txn, fsID metadata.FilesystemID, parentID *metadata.EntryID, name string, typ metadata.EntryType, fileID *metadata.FileID) (*metadata.Entry, error) {
	parent, err := parentDirectory(txn, fsID, parentID)
	if err != nil {
		return nil, err
	}

	childKey := keyChild(fsID, parentID, name)
	if _, err := txn.Get(childKey); err == nil {
		return nil, metadata.NewDuplicateEntryNameError(parentID, name)
	} else if !errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, err
	}

	raw, err := next(txn, keyEntryCounter(fsID))
	if err != nil {
		return nil, err
	}
	id := metadata.EntryID(raw)

	var path []metadata.EntryID
	if parent != nil {
		path = slices.Clone(parent.Path)
	}
	entry := &metadata.Entry{
		FilesystemID: fsID,
		ID:           id,
		ParentID:     parentID,
		Path:         append(path, id),
		Name:         name,
		Type:         typ,
		FileID:       fileID,
		LastModified: store.opts.Now().UTC(),
	}
	entry = entry.Clone()

	if err := putJSON(txn, keyEntry(fsID, id), entry); err != nil {
		return nil, err
	}
	if err := txn.Set(childKey, encodeUint(raw)); err != nil {
		return nil, err
	}
	return entry, nil
}

// ListDirectory returns the children of directoryID ordered by name.
func (store *BadgerMetadataStore) ListDirectory(ctx context.Context, fsID metadata.FilesystemID, directoryID *metadata.EntryID) ([]metadata.Entry, error) {
	out := []metadata.Entry{}
	err := store.view(ctx, "ListDirectory", func(txn *badgerdb.Txn) error {
		if err := store.requireFilesystem(txn, fsID); err != nil {
			return err
		}
		if directoryID != nil {
			dir, err := getEntry(txn, fsID, *directoryID)
			if err != nil {
				return err
			}
			if !dir.IsDirectory() {
				return metadata.NewNotDirectoryError(*directoryID)
			}
		}

		// Child keys end with the name, so the scan is already name-ordered.
		return scanPrefix(txn, keyChildPrefix(fsID, directoryID), func(item *badgerdb.Item) error {
			var id int64
			if err := item.Value(func(val []byte) error {
				id = decodeUint(val)
				return nil
			}); err != nil {
				return err
			}
			e, err := getEntry(txn, fsID, metadata.EntryID(id))
			if err != nil {
				return err
			}
			out = append(out, *e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetEntry returns one entry.
func (store *BadgerMetadataStore) GetEntry(ctx context.Context, fsID metadata.FilesystemID, entryID metadata.EntryID) (*metadata.Entry, error) {
	var entry *metadata.Entry
	err := store.view(ctx, "GetEntry", func(txn *badgerdb.Txn) error {
		if err := store.requireFilesystem(txn, fsID); err != nil {
			return err
		}
		var err error
		entry, err = getEntry(txn, fsID, entryID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// GetEntriesByPaths returns the entries found at any of the locations.
func (store *BadgerMetadataStore) GetEntriesByPaths(ctx context.Context, fsID metadata.FilesystemID, locators []metadata.EntryLocator) ([]metadata.Entry, error) {
	var out []metadata.Entry
	err := store.view(ctx, "GetEntriesByPaths", func(txn *badgerdb.Txn) error {
		if err := store.requireFilesystem(txn, fsID); err != nil {
			return err
		}
		seen := make(map[metadata.EntryID]bool)
		for _, loc := range locators {
			e, err := entryAt(txn, fsID, loc.ParentID, loc.Name)
			if err != nil {
				return err
			}
			if e == nil || seen[e.ID] {
				continue
			}
			seen[e.ID] = true
			out = append(out, *e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteEntry removes an entry and the grants attached to it. A deleted file
// entry releases its reference on the file.
func (store *BadgerMetadataStore) DeleteEntry(ctx context.Context, fsID metadata.FilesystemID, entryID metadata.EntryID) error {
	return store.update(ctx, "DeleteEntry", func(txn *badgerdb.Txn) error {
		if err := store.requireFilesystem(txn, fsID); err != nil {
			return err
		}
		entry, err := getEntry(txn, fsID, entryID)
		if err != nil {
			return err
		}
		if entry.IsDirectory() {
			empty := true
			if err := scanPrefix(txn, keyChildPrefix(fsID, &entryID), func(*badgerdb.Item) error {
				empty = false
				return errStopScan
			}); err != nil && !errors.Is(err, errStopScan) {
				return err
			}
			if !empty {
				return metadata.NewDirectoryNotEmptyError(entryID)
			}
		}
		return store.unlinkEntry(txn, entry, store.opts.Now().UTC())
	})
}

var errStopScan = errors.New("stop scan")

// unlinkEntry deletes the entry, its name binding and its grants, and
// releases its file.
func (store *BadgerMetadataStore) unlinkEntry(txn *badgerdb.Txn, entry *metadata.Entry, now time.Time) error {
	fsID := entry.FilesystemID
	if err := txn.Delete(keyEntry(fsID, entry.ID)); err != nil {
		return err
	}
	if err := txn.Delete(keyChild(fsID, entry.ParentID, entry.Name)); err != nil {
		return err
	}

	var grantKeys [][]byte
	if err := scanPrefix(txn, keyEntryGrantPrefix(fsID, entry.ID), func(item *badgerdb.Item) error {
		grantKeys = append(grantKeys, item.KeyCopy(nil))
		return nil
	}); err != nil {
		return err
	}
	for _, k := range grantKeys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}

	if entry.FileID == nil {
		return nil
	}
	return store.releaseFile(txn, fsID, *entry.FileID, now)
}

// MoveEntry reparents entryID under newParentID and rewrites the paths of the
// moved subtree.
func (store *BadgerMetadataStore) MoveEntry(ctx context.Context, fsID metadata.FilesystemID, entryID metadata.EntryID, newParentID *metadata.EntryID) (*metadata.Entry, error) {
	var moved *metadata.Entry
	err := store.update(ctx, "MoveEntry", func(txn *badgerdb.Txn) error {
		if err := store.requireFilesystem(txn, fsID); err != nil {
			return err
		}
		entry, err := getEntry(txn, fsID, entryID)
		if err != nil {
			return err
		}

		var newPrefix []metadata.EntryID
		if newParentID != nil {
			target, err := getEntry(txn, fsID, *newParentID)
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
			newPrefix = target.Path
		}

		if metadata.SameParent(entry.ParentID, newParentID) {
			moved = entry
			return nil
		}

		newChild := keyChild(fsID, newParentID, entry.Name)
		if _, err := txn.Get(newChild); err == nil {
			return metadata.NewDuplicateEntryNameError(newParentID, entry.Name)
		} else if !errors.Is(err, badgerdb.ErrKeyNotFound) {
			return err
		}

		// Collect the subtree first; writing while iterating is not allowed.
		oldPrefix := len(entry.Path) - 1
		var subtree []*metadata.Entry
		if err := scanPrefix(txn, keyEntryPrefix(fsID), func(item *badgerdb.Item) error {
			var e metadata.Entry
			if err := item.Value(func(val []byte) error { return jsonUnmarshal(val, &e) }); err != nil {
				return err
			}
			if e.HasAncestor(entryID) {
				subtree = append(subtree, &e)
			}
			return nil
		}); err != nil {
			return err
		}

		for _, e := range subtree {
			e.Path = append(slices.Clone(newPrefix), e.Path[oldPrefix:]...)
			if e.ID == entryID {
				e.ParentID = newParentID
				e.LastModified = store.opts.Now().UTC()
				moved = e
			}
			if err := putJSON(txn, keyEntry(fsID, e.ID), e); err != nil {
				return err
			}
		}

		if err := txn.Delete(keyChild(fsID, entry.ParentID, entry.Name)); err != nil {
			return err
		}
		return txn.Set(newChild, encodeUint(int64(entryID)))
	})
	if err != nil {
		return nil, err
	}
	return moved.Clone(), nil
}
