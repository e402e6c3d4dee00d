package apiclient

import (
	"fmt"

	"github.com/marmos91/storagebox/pkg/metadata"
)

func (f *FilesystemClient) entryPath(id metadata.EntryID, suffix string) string {
	return fmt.Sprintf("%s/entries/%d%s", f.prefix, id, suffix)
}

// CreateDirectory creates a directory under parent, or at the root when
// parent is nil.
func (f *FilesystemClient) CreateDirectory(parent *metadata.EntryID, name string) (*metadata.Entry, error) {
	var entry metadata.Entry
	body := struct {
		ParentID *metadata.EntryID `json:"parentID"`
		Name     string            `json:"name"`
	}{parent, name}
	if err := f.c.post(f.prefix+"/directory", body, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// List returns the readable children of directory, or of the root when
// directory is nil.
func (f *FilesystemClient) List(directory *metadata.EntryID) ([]metadata.Entry, error) {
	path := f.prefix + "/list"
	if directory != nil {
		path = fmt.Sprintf("%s/%d", path, *directory)
	}
	var entries []metadata.Entry
	if err := f.c.get(path, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Delete removes a file or an empty directory.
func (f *FilesystemClient) Delete(id metadata.EntryID) error {
	return f.c.delete(f.entryPath(id, ""))
}

// Move reparents an entry. A nil target moves it to the root.
func (f *FilesystemClient) Move(id metadata.EntryID, target *metadata.EntryID) (*metadata.Entry, error) {
	var entry metadata.Entry
	body := struct {
		TargetParentID *metadata.EntryID `json:"targetParentID"`
	}{target}
	if err := f.c.post(f.entryPath(id, "/move"), body, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// SetPermissions grants perms on an entry to callers matching criterion.
func (f *FilesystemClient) SetPermissions(id metadata.EntryID, criterion metadata.Criterion, perms metadata.EntryPermissions, comment string) error {
	body := struct {
		Permission metadata.EntryPermissions `json:"permission"`
		Criterion  metadata.Criterion        `json:"criterion"`
		Comment    string                    `json:"comment"`
	}{perms, criterion, comment}
	return f.c.post(f.entryPath(id, "/setPermissions"), body, nil)
}

// ListPermissions returns the grants attached directly to an entry.
func (f *FilesystemClient) ListPermissions(id metadata.EntryID) ([]metadata.EntryGrant, error) {
	var grants []metadata.EntryGrant
	if err := f.c.get(f.entryPath(id, "/permissions"), &grants); err != nil {
		return nil, err
	}
	return grants, nil
}

// RevokePermission removes one grant as a filesystem manager.
func (f *FilesystemClient) RevokePermission(id metadata.EntryID, criterion, revocation metadata.Criterion) error {
	body := struct {
		Criterion           metadata.Criterion `json:"criterion"`
		RevocationCriterion metadata.Criterion `json:"revocationCriterion"`
	}{criterion, revocation}
	return f.c.post(f.entryPath(id, "/revokePermissionAdministratively"), body, nil)
}
