package metadata

// Permission names one permission bit.
type Permission string

const (
	PermissionRead   Permission = "canRead"
	PermissionWrite  Permission = "canWrite"
	PermissionShare  Permission = "canShare"
	PermissionManage Permission = "canManage"
)

// FilesystemPermissions are bits granted over a whole filesystem.
type FilesystemPermissions struct {
	CanRead   bool `json:"canRead"`
	CanWrite  bool `json:"canWrite"`
	CanShare  bool `json:"canShare"`
	CanManage bool `json:"canManage"`
}

// AllFilesystemPermissions grants every bit. Filesystem creators get it.
func AllFilesystemPermissions() FilesystemPermissions {
	return FilesystemPermissions{CanRead: true, CanWrite: true, CanShare: true, CanManage: true}
}

// Has reports whether the bit is set.
func (p FilesystemPermissions) Has(perm Permission) bool {
	switch perm {
	case PermissionRead:
		return p.CanRead
	case PermissionWrite:
		return p.CanWrite
	case PermissionShare:
		return p.CanShare
	case PermissionManage:
		return p.CanManage
	}
	return false
}

// Or merges two grants bit by bit.
func (p FilesystemPermissions) Or(o FilesystemPermissions) FilesystemPermissions {
	return FilesystemPermissions{
		CanRead:   p.CanRead || o.CanRead,
		CanWrite:  p.CanWrite || o.CanWrite,
		CanShare:  p.CanShare || o.CanShare,
		CanManage: p.CanManage || o.CanManage,
	}
}

// Any reports whether at least one bit is set.
func (p FilesystemPermissions) Any() bool {
	return p.CanRead || p.CanWrite || p.CanShare || p.CanManage
}

// Entry drops the filesystem-only bits.
func (p FilesystemPermissions) Entry() EntryPermissions {
	return EntryPermissions{CanRead: p.CanRead, CanWrite: p.CanWrite, CanShare: p.CanShare}
}

// EntryPermissions are bits granted over one entry and its descendants.
type EntryPermissions struct {
	CanRead  bool `json:"canRead"`
	CanWrite bool `json:"canWrite"`
	CanShare bool `json:"canShare"`
}

// Has reports whether the bit is set. Entry grants never carry canManage.
func (p EntryPermissions) Has(perm Permission) bool {
	switch perm {
	case PermissionRead:
		return p.CanRead
	case PermissionWrite:
		return p.CanWrite
	case PermissionShare:
		return p.CanShare
	}
	return false
}

// Or merges two grants bit by bit.
func (p EntryPermissions) Or(o EntryPermissions) EntryPermissions {
	return EntryPermissions{
		CanRead:  p.CanRead || o.CanRead,
		CanWrite: p.CanWrite || o.CanWrite,
		CanShare: p.CanShare || o.CanShare,
	}
}

// Any reports whether at least one bit is set.
func (p EntryPermissions) Any() bool {
	return p.CanRead || p.CanWrite || p.CanShare
}

// Covers reports whether every bit set in want is also set in p.
func (p EntryPermissions) Covers(want EntryPermissions) bool {
	return (!want.CanRead || p.CanRead) &&
		(!want.CanWrite || p.CanWrite) &&
		(!want.CanShare || p.CanShare)
}

// FilesystemGrant attaches filesystem permissions to a criterion.
type FilesystemGrant struct {
	FilesystemID FilesystemID          `json:"filesystemID"`
	Criterion    Criterion             `json:"criterion"`
	Permissions  FilesystemPermissions `json:"permission"`
}

// EntryGrant attaches entry permissions to a criterion. The grant is keyed by
// (filesystem, entry, criterion, revocation criterion); callers matching the
// revocation criterion may retract it.
type EntryGrant struct {
	FilesystemID        FilesystemID     `json:"filesystemID"`
	EntryID             EntryID          `json:"entryID"`
	Criterion           Criterion        `json:"criterion"`
	RevocationCriterion Criterion        `json:"revocationCriterion"`
	Permissions         EntryPermissions `json:"permission"`
	Comment             string           `json:"comment,omitempty"`
}
