package memory

import (
	"context"
	"sort"

	"github.com/marmos91/storagebox/pkg/metadata"
)

// CreateFilesystem registers a filesystem with its initial grants.
func (store *MemoryMetadataStore) CreateFilesystem(ctx context.Context, grants []metadata.FilesystemGrant, name, alias string) (*metadata.Filesystem, error) {
	unlock, err := store.write(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, exists := store.aliases[alias]; exists {
		return nil, metadata.NewDuplicateAliasError(alias)
	}

	store.nextFilesystemID++
	fs := metadata.Filesystem{ID: store.nextFilesystemID, Name: name, Alias: alias}

	st := &filesystemState{
		fs:          fs,
		entries:     make(map[metadata.EntryID]*metadata.Entry),
		children:    make(map[childKey]metadata.EntryID),
		files:       make(map[metadata.FileID]*metadata.File),
		fsGrants:    make(map[metadata.Criterion]metadata.FilesystemPermissions),
		entryGrants: make(map[metadata.EntryID]map[grantKey]*metadata.EntryGrant),
	}
	for _, g := range grants {
		st.fsGrants[g.Criterion] = st.fsGrants[g.Criterion].Or(g.Permissions)
	}

	store.filesystems[fs.ID] = st
	store.aliases[alias] = fs.ID
	return &fs, nil
}

// GetFilesystemByAlias looks a filesystem up by alias.
func (store *MemoryMetadataStore) GetFilesystemByAlias(ctx context.Context, alias string) (*metadata.Filesystem, error) {
	unlock, err := store.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	id, ok := store.aliases[alias]
	if !ok {
		return nil, metadata.NewFilesystemNotFoundByAliasError(alias)
	}
	fs := store.filesystems[id].fs
	return &fs, nil
}

// ListFilesystems returns the filesystems attrs may read, ordered by ID.
func (store *MemoryMetadataStore) ListFilesystems(ctx context.Context, attrs metadata.AttributeSet) ([]metadata.Filesystem, error) {
	unlock, err := store.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	out := []metadata.Filesystem{}
	for _, st := range store.filesystems {
		if st.filesystemPermissions(attrs).CanRead {
			out = append(out, st.fs)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetFilesystemPermissions ORs every filesystem grant matched by attrs.
func (store *MemoryMetadataStore) GetFilesystemPermissions(ctx context.Context, attrs metadata.AttributeSet, fsID metadata.FilesystemID) (metadata.FilesystemPermissions, error) {
	unlock, err := store.read(ctx)
	if err != nil {
		return metadata.FilesystemPermissions{}, err
	}
	defer unlock()

	st, err := store.filesystem(fsID)
	if err != nil {
		return metadata.FilesystemPermissions{}, err
	}
	return st.filesystemPermissions(attrs), nil
}

func (st *filesystemState) filesystemPermissions(attrs metadata.AttributeSet) metadata.FilesystemPermissions {
	var perms metadata.FilesystemPermissions
	for c, p := range st.fsGrants {
		if attrs.Matches(c) {
			perms = perms.Or(p)
		}
	}
	return perms
}

// UpsertFilesystemPermission creates or overwrites a filesystem grant.
func (store *MemoryMetadataStore) UpsertFilesystemPermission(ctx context.Context, grant metadata.FilesystemGrant) error {
	unlock, err := store.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	st, err := store.filesystem(grant.FilesystemID)
	if err != nil {
		return err
	}
	st.fsGrants[grant.Criterion] = grant.Permissions
	return nil
}

// DeleteFilesystemPermission removes the grant of a criterion.
func (store *MemoryMetadataStore) DeleteFilesystemPermission(ctx context.Context, fsID metadata.FilesystemID, criterion metadata.Criterion) error {
	unlock, err := store.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	st, err := store.filesystem(fsID)
	if err != nil {
		return err
	}
	if _, ok := st.fsGrants[criterion]; !ok {
		return metadata.NewFilesystemPermissionDoesNotExistError(fsID)
	}
	delete(st.fsGrants, criterion)
	return nil
}

// ListFilesystemPermissions returns every filesystem grant.
func (store *MemoryMetadataStore) ListFilesystemPermissions(ctx context.Context, fsID metadata.FilesystemID) ([]metadata.FilesystemGrant, error) {
	unlock, err := store.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	st, err := store.filesystem(fsID)
	if err != nil {
		return nil, err
	}

	out := make([]metadata.FilesystemGrant, 0, len(st.fsGrants))
	for c, p := range st.fsGrants {
		out = append(out, metadata.FilesystemGrant{FilesystemID: fsID, Criterion: c, Permissions: p})
	}
	sort.Slice(out, func(i, j int) bool { return criterionLess(out[i].Criterion, out[j].Criterion) })
	return out, nil
}

func criterionLess(a, b metadata.Criterion) bool {
	if a.Issuer != b.Issuer {
		return a.Issuer < b.Issuer
	}
	if a.Attribute != b.Attribute {
		return a.Attribute < b.Attribute
	}
	return a.Value < b.Value
}
