package apiclient

import (
	"net/url"

	"github.com/marmos91/storagebox/pkg/metadata"
)

// CreateFilesystemRequest is the body of a filesystem creation.
type CreateFilesystemRequest struct {
	Name  string `json:"name"`
	Alias string `json:"alias"`
}

// ListFilesystems returns the filesystems the caller can read.
func (c *Client) ListFilesystems() ([]metadata.Filesystem, error) {
	var result []metadata.Filesystem
	if err := c.get("/filesystems", &result); err != nil {
		return nil, err
	}
	return result, nil
}

// CreateFilesystem creates a filesystem. The caller needs the create-fs
// capability and receives every permission on it.
func (c *Client) CreateFilesystem(name, alias string) (*metadata.Filesystem, error) {
	var fs metadata.Filesystem
	if err := c.post("/filesystems", CreateFilesystemRequest{Name: name, Alias: alias}, &fs); err != nil {
		return nil, err
	}
	return &fs, nil
}

// Filesystem returns a handle for the filesystem with the given alias. No
// request is made.
func (c *Client) Filesystem(alias string) *FilesystemClient {
	return &FilesystemClient{c: c, prefix: "/fs/" + url.PathEscape(alias)}
}

// FilesystemClient issues requests against one filesystem.
type FilesystemClient struct {
	c      *Client
	prefix string
}

// SetPermission grants permissions on the whole filesystem.
func (f *FilesystemClient) SetPermission(criterion metadata.Criterion, perms metadata.FilesystemPermissions) error {
	return f.c.post(f.prefix+"/permissions", struct {
		Criterion  metadata.Criterion             `json:"criterion"`
		Permission metadata.FilesystemPermissions `json:"permission"`
	}{criterion, perms}, nil)
}

// ListFilesystemPermissions returns the filesystem-level grants.
func (f *FilesystemClient) ListFilesystemPermissions() ([]metadata.FilesystemGrant, error) {
	var grants []metadata.FilesystemGrant
	if err := f.c.get(f.prefix+"/permissions", &grants); err != nil {
		return nil, err
	}
	return grants, nil
}
