package memory

import (
	"context"
	"slices"
	"sort"

	"github.com/marmos91/storagebox/pkg/metadata"
)

// CreateDirectory inserts a directory entry under parentID.
func (store *MemoryMetadataStore) CreateDirectory(ctx context.Context, fsID metadata.FilesystemID, parentID *metadata.EntryID, name string) (*metadata.Entry, error) {
	unlock, err := store.write(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	st, err := store.filesystem(fsID)
	if err != nil {
		return nil, err
	}

	entry, err := store.insertEntry(st, parentID, name, metadata.EntryTypeDirectory, nil)
	if err != nil {
		return nil, err
	}
	return entry.Clone(), nil
}

// insertEntry allocates an ID and links a new entry. Must hold the write lock.
func (store *MemoryMetadataStore) insertEntry(st *filesystemState, parentID *metadata.EntryID, name string, typ metadata.EntryType, fileID *metadata.FileID) (*metadata.Entry, error) {
	parent, err := st.parentDirectory(parentID)
	if err != nil {
		return nil, err
	}
	key := keyOf(parentID, name)
	if _, exists := st.children[key]; exists {
		return nil, metadata.NewDuplicateEntryNameError(parentID, name)
	}

	st.nextEntryID++
	id := st.nextEntryID
	entry := &metadata.Entry{
		FilesystemID: st.fs.ID,
		ID:           id,
		ParentID:     parentID,
		Path:         childPath(parent, id),
		Name:         name,
		Type:         typ,
		FileID:       fileID,
		LastModified: store.opts.Now().UTC(),
	}
	entry = entry.Clone()

	st.entries[id] = entry
	st.children[key] = id
	return entry, nil
}

// ListDirectory returns the children of directoryID ordered by name.
func (store *MemoryMetadataStore) ListDirectory(ctx context.Context, fsID metadata.FilesystemID, directoryID *metadata.EntryID) ([]metadata.Entry, error) {
	unlock, err := store.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	st, err := store.filesystem(fsID)
	if err != nil {
		return nil, err
	}

	var parent metadata.EntryID
	if directoryID != nil {
		dir, ok := st.entries[*directoryID]
		if !ok {
			return nil, metadata.NewEntryNotFoundError(*directoryID)
		}
		if !dir.IsDirectory() {
			return nil, metadata.NewNotDirectoryError(*directoryID)
		}
		parent = *directoryID
	}

	out := []metadata.Entry{}
	for key, id := range st.children {
		if key.parent == parent {
			out = append(out, *st.entries[id].Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetEntry returns one entry.
func (store *MemoryMetadataStore) GetEntry(ctx context.Context, fsID metadata.FilesystemID, entryID metadata.EntryID) (*metadata.Entry, error) {
	unlock, err := store.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	st, err := store.filesystem(fsID)
	if err != nil {
		return nil, err
	}
	entry, ok := st.entries[entryID]
	if !ok {
		return nil, metadata.NewEntryNotFoundError(entryID)
	}
	return entry.Clone(), nil
}

// GetEntriesByPaths returns the entries found at any of the locations.
func (store *MemoryMetadataStore) GetEntriesByPaths(ctx context.Context, fsID metadata.FilesystemID, locators []metadata.EntryLocator) ([]metadata.Entry, error) {
	unlock, err := store.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	st, err := store.filesystem(fsID)
	if err != nil {
		return nil, err
	}

	seen := make(map[metadata.EntryID]bool)
	var out []metadata.Entry
	for _, loc := range locators {
		id, ok := st.children[keyOf(loc.ParentID, loc.Name)]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, *st.entries[id].Clone())
	}
	return out, nil
}

// DeleteEntry removes an entry and the grants attached to it. A deleted file
// entry releases its reference on the file.
func (store *MemoryMetadataStore) DeleteEntry(ctx context.Context, fsID metadata.FilesystemID, entryID metadata.EntryID) error {
	unlock, err := store.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	st, err := store.filesystem(fsID)
	if err != nil {
		return err
	}
	entry, ok := st.entries[entryID]
	if !ok {
		return metadata.NewEntryNotFoundError(entryID)
	}
	if entry.IsDirectory() && st.hasChildren(entryID) {
		return metadata.NewDirectoryNotEmptyError(entryID)
	}

	store.unlinkEntry(st, entry)
	return nil
}

func (st *filesystemState) hasChildren(id metadata.EntryID) bool {
	for key := range st.children {
		if key.parent == id {
			return true
		}
	}
	return false
}

// unlinkEntry removes an entry row. Must hold the write lock.
func (store *MemoryMetadataStore) unlinkEntry(st *filesystemState, entry *metadata.Entry) {
	delete(st.children, keyOf(entry.ParentID, entry.Name))
	delete(st.entries, entry.ID)
	delete(st.entryGrants, entry.ID)

	if entry.FileID != nil {
		store.releaseFile(st, *entry.FileID)
	}
}

// releaseFile drops one reference. An unreferenced finished file expires
// immediately so cleanup reclaims it.
func (store *MemoryMetadataStore) releaseFile(st *filesystemState, id metadata.FileID) {
	f, ok := st.files[id]
	if !ok {
		return
	}
	if f.ReferenceCount > 0 {
		f.ReferenceCount--
	}
	if f.ReferenceCount == 0 && f.UploadFinished {
		now := store.opts.Now().UTC()
		f.Expires = &now
	}
}

// MoveEntry reparents entryID under newParentID and rewrites the paths of the
// moved subtree.
func (store *MemoryMetadataStore) MoveEntry(ctx context.Context, fsID metadata.FilesystemID, entryID metadata.EntryID, newParentID *metadata.EntryID) (*metadata.Entry, error) {
	unlock, err := store.write(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	st, err := store.filesystem(fsID)
	if err != nil {
		return nil, err
	}
	entry, ok := st.entries[entryID]
	if !ok {
		return nil, metadata.NewEntryNotFoundError(entryID)
	}

	var target *metadata.Entry
	if newParentID != nil {
		target, ok = st.entries[*newParentID]
		if !ok {
			return nil, metadata.NewNoParentDirectoryError(newParentID)
		}
		if !target.IsDirectory() {
			return nil, metadata.NewTargetIsNotDirectoryError(*newParentID)
		}
		if target.HasAncestor(entryID) {
			return nil, metadata.NewDirectoryCycleError(entryID, *newParentID)
		}
	}

	newKey := keyOf(newParentID, entry.Name)
	oldKey := keyOf(entry.ParentID, entry.Name)
	if newKey == oldKey {
		return entry.Clone(), nil
	}
	if _, exists := st.children[newKey]; exists {
		return nil, metadata.NewDuplicateEntryNameError(newParentID, entry.Name)
	}

	oldPrefix := len(entry.Path) - 1
	var newPrefix []metadata.EntryID
	if target != nil {
		newPrefix = target.Path
	}

	for _, e := range st.entries {
		if !e.HasAncestor(entryID) {
			continue
		}
		path := slices.Clone(newPrefix)
		e.Path = append(path, e.Path[oldPrefix:]...)
	}

	delete(st.children, oldKey)
	st.children[newKey] = entryID
	if newParentID != nil {
		p := *newParentID
		entry.ParentID = &p
	} else {
		entry.ParentID = nil
	}
	entry.LastModified = store.opts.Now().UTC()
	return entry.Clone(), nil
}
