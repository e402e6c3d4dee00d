package memory

import (
	"context"
	"sort"

	"github.com/marmos91/storagebox/pkg/metadata"
)

// GetEntryPermissions ORs grants on the entry and its ancestors.
func (store *MemoryMetadataStore) GetEntryPermissions(ctx context.Context, attrs metadata.AttributeSet, fsID metadata.FilesystemID, entryID metadata.EntryID) (metadata.EntryPermissions, error) {
	unlock, err := store.read(ctx)
	if err != nil {
		return metadata.EntryPermissions{}, err
	}
	defer unlock()

	st, err := store.filesystem(fsID)
	if err != nil {
		return metadata.EntryPermissions{}, err
	}
	entry, ok := st.entries[entryID]
	if !ok {
		return metadata.EntryPermissions{}, metadata.NewEntryNotFoundError(entryID)
	}
	return st.pathPermissions(attrs, entry.Path), nil
}

// GetParentPermissions ORs grants on the ancestors of the entry, excluding
// the entry itself.
func (store *MemoryMetadataStore) GetParentPermissions(ctx context.Context, attrs metadata.AttributeSet, fsID metadata.FilesystemID, entryID metadata.EntryID) (metadata.EntryPermissions, error) {
	unlock, err := store.read(ctx)
	if err != nil {
		return metadata.EntryPermissions{}, err
	}
	defer unlock()

	st, err := store.filesystem(fsID)
	if err != nil {
		return metadata.EntryPermissions{}, err
	}
	entry, ok := st.entries[entryID]
	if !ok {
		return metadata.EntryPermissions{}, metadata.NewEntryNotFoundError(entryID)
	}
	return st.pathPermissions(attrs, entry.ParentPath()), nil
}

// GetEntryPermissionsByPath ORs grants on every entry listed in path.
func (store *MemoryMetadataStore) GetEntryPermissionsByPath(ctx context.Context, attrs metadata.AttributeSet, fsID metadata.FilesystemID, path []metadata.EntryID) (metadata.EntryPermissions, error) {
	unlock, err := store.read(ctx)
	if err != nil {
		return metadata.EntryPermissions{}, err
	}
	defer unlock()

	st, err := store.filesystem(fsID)
	if err != nil {
		return metadata.EntryPermissions{}, err
	}
	return st.pathPermissions(attrs, path), nil
}

func (st *filesystemState) pathPermissions(attrs metadata.AttributeSet, path []metadata.EntryID) metadata.EntryPermissions {
	var perms metadata.EntryPermissions
	for _, id := range path {
		for _, g := range st.entryGrants[id] {
			if attrs.Matches(g.Criterion) {
				perms = perms.Or(g.Permissions)
			}
		}
	}
	return perms
}

// UpsertEntryPermission stores a grant, overwriting one with the same key.
func (store *MemoryMetadataStore) UpsertEntryPermission(ctx context.Context, grant metadata.EntryGrant) error {
	unlock, err := store.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	st, err := store.filesystem(grant.FilesystemID)
	if err != nil {
		return err
	}
	if _, ok := st.entries[grant.EntryID]; !ok {
		return metadata.NewEntryNotFoundError(grant.EntryID)
	}

	grants, ok := st.entryGrants[grant.EntryID]
	if !ok {
		grants = make(map[grantKey]*metadata.EntryGrant)
		st.entryGrants[grant.EntryID] = grants
	}
	g := grant
	grants[grantKey{grant.Criterion, grant.RevocationCriterion}] = &g
	return nil
}

// DeleteEntryPermission removes the grant with the given key.
func (store *MemoryMetadataStore) DeleteEntryPermission(ctx context.Context, fsID metadata.FilesystemID, entryID metadata.EntryID, criterion, revocation metadata.Criterion) error {
	unlock, err := store.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	st, err := store.filesystem(fsID)
	if err != nil {
		return err
	}
	key := grantKey{criterion, revocation}
	if _, ok := st.entryGrants[entryID][key]; !ok {
		return metadata.NewPermissionDoesNotExistError(entryID)
	}
	delete(st.entryGrants[entryID], key)
	return nil
}

// ListEntryPermissions returns the grants attached to the entry.
func (store *MemoryMetadataStore) ListEntryPermissions(ctx context.Context, fsID metadata.FilesystemID, entryID metadata.EntryID) ([]metadata.EntryGrant, error) {
	unlock, err := store.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	st, err := store.filesystem(fsID)
	if err != nil {
		return nil, err
	}
	if _, ok := st.entries[entryID]; !ok {
		return nil, metadata.NewEntryNotFoundError(entryID)
	}

	out := make([]metadata.EntryGrant, 0, len(st.entryGrants[entryID]))
	for _, g := range st.entryGrants[entryID] {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Criterion != out[j].Criterion {
			return criterionLess(out[i].Criterion, out[j].Criterion)
		}
		return criterionLess(out[i].RevocationCriterion, out[j].RevocationCriterion)
	})
	return out, nil
}
