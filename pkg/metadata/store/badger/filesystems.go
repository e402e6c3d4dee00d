package badger

import (
	"context"
	"errors"
	"sort"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/storagebox/pkg/metadata"
)

// CreateFilesystem registers a filesystem with its initial grants.
func (store *BadgerMetadataStore) CreateFilesystem(ctx context.Context, grants []metadata.FilesystemGrant, name, alias string) (*metadata.Filesystem, error) {
	var fs metadata.Filesystem
	err := store.update(ctx, "CreateFilesystem", func(txn *badgerdb.Txn) error {
		if _, err := txn.Get(keyAlias(alias)); err == nil {
			return metadata.NewDuplicateAliasError(alias)
		} else if !errors.Is(err, badgerdb.ErrKeyNotFound) {
			return err
		}

		id, err := next(txn, keyFilesystemCounter())
		if err != nil {
			return err
		}
		fs = metadata.Filesystem{ID: metadata.FilesystemID(id), Name: name, Alias: alias}

		if err := putJSON(txn, keyFilesystem(fs.ID), fs); err != nil {
			return err
		}
		if err := txn.Set(keyAlias(alias), encodeUint(id)); err != nil {
			return err
		}

		merged := make(map[metadata.Criterion]metadata.FilesystemPermissions, len(grants))
		for _, g := range grants {
			merged[g.Criterion] = merged[g.Criterion].Or(g.Permissions)
		}
		for c, p := range merged {
			g := metadata.FilesystemGrant{FilesystemID: fs.ID, Criterion: c, Permissions: p}
			if err := putJSON(txn, keyFSGrant(fs.ID, c), g); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &fs, nil
}

// GetFilesystemByAlias looks a filesystem up by alias.
func (store *BadgerMetadataStore) GetFilesystemByAlias(ctx context.Context, alias string) (*metadata.Filesystem, error) {
	var fs metadata.Filesystem
	err := store.view(ctx, "GetFilesystemByAlias", func(txn *badgerdb.Txn) error {
		id, ok, err := getUint(txn, keyAlias(alias))
		if err != nil {
			return err
		}
		if !ok {
			return metadata.NewFilesystemNotFoundByAliasError(alias)
		}
		found, err := getJSON(txn, keyFilesystem(metadata.FilesystemID(id)), &fs)
		if err != nil {
			return err
		}
		if !found {
			return metadata.NewBugError("alias %q points at missing filesystem %d", alias, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &fs, nil
}

// ListFilesystems returns the filesystems attrs may read, ordered by ID.
func (store *BadgerMetadataStore) ListFilesystems(ctx context.Context, attrs metadata.AttributeSet) ([]metadata.Filesystem, error) {
	out := []metadata.Filesystem{}
	err := store.view(ctx, "ListFilesystems", func(txn *badgerdb.Txn) error {
		return scanPrefix(txn, []byte(prefixFilesystem), func(item *badgerdb.Item) error {
			var fs metadata.Filesystem
			if err := item.Value(func(val []byte) error { return jsonUnmarshal(val, &fs) }); err != nil {
				return err
			}
			perms, err := filesystemPermissions(txn, attrs, fs.ID)
			if err != nil {
				return err
			}
			if perms.CanRead {
				out = append(out, fs)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetFilesystemPermissions ORs every filesystem grant matched by attrs.
func (store *BadgerMetadataStore) GetFilesystemPermissions(ctx context.Context, attrs metadata.AttributeSet, fsID metadata.FilesystemID) (metadata.FilesystemPermissions, error) {
	var perms metadata.FilesystemPermissions
	err := store.view(ctx, "GetFilesystemPermissions", func(txn *badgerdb.Txn) error {
		if err := store.requireFilesystem(txn, fsID); err != nil {
			return err
		}
		var err error
		perms, err = filesystemPermissions(txn, attrs, fsID)
		return err
	})
	return perms, err
}

// filesystemPermissions looks up the grant of each criterion attrs satisfies.
func filesystemPermissions(txn *badgerdb.Txn, attrs metadata.AttributeSet, fsID metadata.FilesystemID) (metadata.FilesystemPermissions, error) {
	var perms metadata.FilesystemPermissions
	for _, c := range attrs.Criteria() {
		var g metadata.FilesystemGrant
		found, err := getJSON(txn, keyFSGrant(fsID, c), &g)
		if err != nil {
			return perms, err
		}
		if found {
			perms = perms.Or(g.Permissions)
		}
	}
	return perms, nil
}

// UpsertFilesystemPermission creates or overwrites a filesystem grant.
func (store *BadgerMetadataStore) UpsertFilesystemPermission(ctx context.Context, grant metadata.FilesystemGrant) error {
	return store.update(ctx, "UpsertFilesystemPermission", func(txn *badgerdb.Txn) error {
		if err := store.requireFilesystem(txn, grant.FilesystemID); err != nil {
			return err
		}
		return putJSON(txn, keyFSGrant(grant.FilesystemID, grant.Criterion), grant)
	})
}

// DeleteFilesystemPermission removes the grant of a criterion.
func (store *BadgerMetadataStore) DeleteFilesystemPermission(ctx context.Context, fsID metadata.FilesystemID, criterion metadata.Criterion) error {
	return store.update(ctx, "DeleteFilesystemPermission", func(txn *badgerdb.Txn) error {
		if err := store.requireFilesystem(txn, fsID); err != nil {
			return err
		}
		k := keyFSGrant(fsID, criterion)
		if _, err := txn.Get(k); errors.Is(err, badgerdb.ErrKeyNotFound) {
			return metadata.NewFilesystemPermissionDoesNotExistError(fsID)
		} else if err != nil {
			return err
		}
		return txn.Delete(k)
	})
}

// ListFilesystemPermissions returns every filesystem grant.
func (store *BadgerMetadataStore) ListFilesystemPermissions(ctx context.Context, fsID metadata.FilesystemID) ([]metadata.FilesystemGrant, error) {
	out := []metadata.FilesystemGrant{}
	err := store.view(ctx, "ListFilesystemPermissions", func(txn *badgerdb.Txn) error {
		if err := store.requireFilesystem(txn, fsID); err != nil {
			return err
		}
		return scanPrefix(txn, keyFSGrantPrefix(fsID), func(item *badgerdb.Item) error {
			var g metadata.FilesystemGrant
			if err := item.Value(func(val []byte) error { return jsonUnmarshal(val, &g) }); err != nil {
				return err
			}
			out = append(out, g)
			return nil
		})
	})
	if err != nil {
		return nil, err
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
