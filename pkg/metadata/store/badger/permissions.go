package badger

import (
	"context"
	"errors"
	"sort"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/storagebox/pkg/metadata"
)

// GetEntryPermissions ORs grants on the entry and its ancestors.
func (store *BadgerMetadataStore) GetEntryPermissions(ctx context.Context, attrs metadata.AttributeSet, fsID metadata.FilesystemID, entryID metadata.EntryID) (metadata.EntryPermissions, error) {
	var perms metadata.EntryPermissions
	err := store.view(ctx, "GetEntryPermissions", func(txn *badgerdb.Txn) error {
		entry, err := getEntry(txn, fsID, entryID)
		if err != nil {
			return err
		}
		perms, err = pathPermissions(txn, attrs, fsID, entry.Path)
		return err
	})
	return perms, err
}

// GetParentPermissions ORs grants on the ancestors of the entry, excluding
// the entry itself.
func (store *BadgerMetadataStore) GetParentPermissions(ctx context.Context, attrs metadata.AttributeSet, fsID metadata.FilesystemID, entryID metadata.EntryID) (metadata.EntryPermissions, error) {
	var perms metadata.EntryPermissions
	err := store.view(ctx, "GetParentPermissions", func(txn *badgerdb.Txn) error {
		entry, err := getEntry(txn, fsID, entryID)
		if err != nil {
			return err
		}
		perms, err = pathPermissions(txn, attrs, fsID, entry.ParentPath())
		return err
	})
	return perms, err
}

// GetEntryPermissionsByPath ORs grants on every entry listed in path.
func (store *BadgerMetadataStore) GetEntryPermissionsByPath(ctx context.Context, attrs metadata.AttributeSet, fsID metadata.FilesystemID, path []metadata.EntryID) (metadata.EntryPermissions, error) {
	var perms metadata.EntryPermissions
	err := store.view(ctx, "GetEntryPermissionsByPath", func(txn *badgerdb.Txn) error {
		var err error
		perms, err = pathPermissions(txn, attrs, fsID, path)
		return err
	})
	return perms, err
}

func pathPermissions(txn *badgerdb.Txn, attrs metadata.AttributeSet, fsID metadata.FilesystemID, path []metadata.EntryID) (metadata.EntryPermissions, error) {
	var perms metadata.EntryPermissions
	for _, id := range path {
		err := scanPrefix(txn, keyEntryGrantPrefix(fsID, id), func(item *badgerdb.Item) error {
			var g metadata.EntryGrant
			if err := item.Value(func(val []byte) error { return jsonUnmarshal(val, &g) }); err != nil {
				return err
			}
			if attrs.Matches(g.Criterion) {
				perms = perms.Or(g.Permissions)
			}
			return nil
		})
		if err != nil {
			return perms, err
		}
	}
	return perms, nil
}

// UpsertEntryPermission stores a grant, overwriting one with the same key.
func (store *BadgerMetadataStore) UpsertEntryPermission(ctx context.Context, grant metadata.EntryGrant) error {
	return store.update(ctx, "UpsertEntryPermission", func(txn *badgerdb.Txn) error {
		if _, err := getEntry(txn, grant.FilesystemID, grant.EntryID); err != nil {
			return err
		}
		return putJSON(txn, keyEntryGrant(grant.FilesystemID, grant.EntryID, grant.Criterion, grant.RevocationCriterion), grant)
	})
}

// DeleteEntryPermission removes the grant with the given key.
func (store *BadgerMetadataStore) DeleteEntryPermission(ctx context.Context, fsID metadata.FilesystemID, entryID metadata.EntryID, criterion, revocation metadata.Criterion) error {
	return store.update(ctx, "DeleteEntryPermission", func(txn *badgerdb.Txn) error {
		k := keyEntryGrant(fsID, entryID, criterion, revocation)
		if _, err := txn.Get(k); errors.Is(err, badgerdb.ErrKeyNotFound) {
			return metadata.NewPermissionDoesNotExistError(entryID)
		} else if err != nil {
			return err
		}
		return txn.Delete(k)
	})
}

// ListEntryPermissions returns the grants attached to the entry.
func (store *BadgerMetadataStore) ListEntryPermissions(ctx context.Context, fsID metadata.FilesystemID, entryID metadata.EntryID) ([]metadata.EntryGrant, error) {
	out := []metadata.EntryGrant{}
	err := store.view(ctx, "ListEntryPermissions", func(txn *badgerdb.Txn) error {
		if _, err := getEntry(txn, fsID, entryID); err != nil {
			return err
		}
		return scanPrefix(txn, keyEntryGrantPrefix(fsID, entryID), func(item *badgerdb.Item) error {
			var g metadata.EntryGrant
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
	sort.Slice(out, func(i, j int) bool {
		if out[i].Criterion != out[j].Criterion {
			return criterionLess(out[i].Criterion, out[j].Criterion)
		}
		return criterionLess(out[i].RevocationCriterion, out[j].RevocationCriterion)
	})
	return out, nil
}
