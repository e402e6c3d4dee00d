package metadata

import (
	"slices"
	"time"
)

// FilesystemID identifies a filesystem.
type FilesystemID int64

// EntryID identifies an entry within one filesystem. Entry IDs come from a
// per-filesystem sequence, so the same number may exist in two filesystems.
type EntryID int64

// FileID identifies blob metadata within one filesystem.
type FileID int64

// EntryType distinguishes files from directories.
type EntryType string

const (
	EntryTypeFile      EntryType = "file"
	EntryTypeDirectory EntryType = "directory"
)

// Filesystem is a named tree of entries addressed by a unique alias.
type Filesystem struct {
	ID    FilesystemID `json:"filesystemID"`
	Name  string       `json:"name"`
	Alias string       `json:"alias"`
}

// Entry is a node of a filesystem tree. A nil ParentID places the entry at
// the root. Path lists the IDs of all ancestors from the root down to and
// including the entry itself.
type Entry struct {
	FilesystemID FilesystemID `json:"filesystemID"`
	ID           EntryID      `json:"entryID"`
	ParentID     *EntryID     `json:"parentID"`
	Path         []EntryID    `json:"path"`
	Name         string       `json:"name"`
	Type         EntryType    `json:"entryType"`
	FileID       *FileID      `json:"fileID,omitempty"`
	LastModified time.Time    `json:"lastModified"`
}

// IsDirectory reports whether the entry is a directory.
func (e *Entry) IsDirectory() bool {
	return e.Type == EntryTypeDirectory
}

// IsFile reports whether the entry is a file.
func (e *Entry) IsFile() bool {
	return e.Type == EntryTypeFile
}

// HasAncestor reports whether id appears in the entry's path. An entry is its
// own ancestor.
func (e *Entry) HasAncestor(id EntryID) bool {
	return slices.Contains(e.Path, id)
}

// ParentPath returns the path of the entry's parent, or nil for root entries.
func (e *Entry) ParentPath() []EntryID {
	if len(e.Path) <= 1 {
		return nil
	}
	return e.Path[:len(e.Path)-1]
}

// Clone returns a deep copy.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.Path = slices.Clone(e.Path)
	if e.ParentID != nil {
		p := *e.ParentID
		c.ParentID = &p
	}
	if e.FileID != nil {
		f := *e.FileID
		c.FileID = &f
	}
	return &c
}

// File is the metadata of one stored blob. Expires is set while the upload
// is pending and again when the last entry referencing a finished file goes
// away; a file with a zero ReferenceCount and a past Expires is reclaimable.
type File struct {
	FilesystemID   FilesystemID `json:"filesystemID"`
	ID             FileID       `json:"fileID"`
	BackendID      string       `json:"backendID"`
	BackendURI     string       `json:"backendURI"`
	Bytes          int64        `json:"bytes"`
	Mimetype       string       `json:"mimetype"`
	Expires        *time.Time   `json:"expires,omitempty"`
	UploadFinished bool         `json:"uploadFinished"`
	ReferenceCount int64        `json:"referenceCount"`
}

// Pending reports whether the upload of the file has not completed yet.
func (f *File) Pending() bool {
	return !f.UploadFinished
}

// Reclaimable reports whether cleanup may remove the file at now.
func (f *File) Reclaimable(now time.Time) bool {
	return f.ReferenceCount == 0 && f.Expires != nil && !f.Expires.After(now)
}

// PendingFileSpec describes one blob about to be uploaded.
type PendingFileSpec struct {
	Bytes      int64
	Mimetype   string
	BackendID  string
	BackendURI string
}

// FinishUpload links a pending file into the tree.
type FinishUpload struct {
	FileID   FileID
	ParentID *EntryID
	Name     string
	Replace  bool
}

// EntryLocator addresses an entry by its parent and name.
type EntryLocator struct {
	ParentID *EntryID
	Name     string
}

// Matches reports whether e sits at the location.
func (l EntryLocator) Matches(e *Entry) bool {
	return l.Name == e.Name && SameParent(l.ParentID, e.ParentID)
}

// SameParent compares two optional parent IDs, treating nil as the root.
func SameParent(a, b *EntryID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Ref returns a pointer to a copy of id. Handy for optional parent IDs.
func Ref[T ~int64](id T) *T {
	return &id
}
