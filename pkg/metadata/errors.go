package metadata

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a failure reported by the metadata layer and the
// services built on it.
type ErrorCode int

const (
	// ErrFilesystemNotFound: no filesystem with the given alias or ID.
	ErrFilesystemNotFound ErrorCode = iota + 1

	// ErrEntryNotFound: no entry with the given ID.
	ErrEntryNotFound

	// ErrFileNotFound: no blob metadata with the given ID.
	ErrFileNotFound

	// ErrNoParentDirectory: the parent does not exist or is not a directory.
	ErrNoParentDirectory

	// ErrNoFilesystemPermission: the caller lacks a permission bit.
	ErrNoFilesystemPermission

	// ErrNoCapability: the caller lacks a global capability.
	ErrNoCapability

	// ErrDuplicateEntryName: a sibling with the same name exists.
	ErrDuplicateEntryName

	// ErrDuplicateAlias: another filesystem uses the alias.
	ErrDuplicateAlias

	// ErrFileAlreadyUploaded: the upload was finished before.
	ErrFileAlreadyUploaded

	// ErrUploadExpired: the pending file outlived its deadline.
	ErrUploadExpired

	// ErrCannotReplaceDirectoryWithFile: an upload targets a directory's name.
	ErrCannotReplaceDirectoryWithFile

	// ErrDirectoryCycle: a move would place an entry inside itself.
	ErrDirectoryCycle

	// ErrTargetIsNotDirectory: a move target is a file.
	ErrTargetIsNotDirectory

	// ErrNotDirectory: a directory operation was given a file.
	ErrNotDirectory

	// ErrDirectoryNotEmpty: deleting a directory that still has children.
	ErrDirectoryNotEmpty

	// ErrCannotDownloadDirectory: download requested for a directory.
	ErrCannotDownloadDirectory

	// ErrPermissionDoesNotExist: revoking a grant that is not there.
	ErrPermissionDoesNotExist

	// ErrInvalidArgument: input rejected before reaching the store.
	ErrInvalidArgument

	// ErrTransient: the store aborted the transaction (serialization failure,
	// deadlock); the request may succeed if repeated.
	ErrTransient

	// ErrBug: an internal invariant was broken.
	ErrBug
)

var codeNames = map[ErrorCode]string{
	ErrFilesystemNotFound:             "FilesystemNotFound",
	ErrEntryNotFound:                  "EntryNotFound",
	ErrFileNotFound:                   "FileNotFound",
	ErrNoParentDirectory:              "NoParentDirectory",
	ErrNoFilesystemPermission:         "NoFilesystemPermission",
	ErrNoCapability:                   "NoCapability",
	ErrDuplicateEntryName:             "DuplicateEntryName",
	ErrDuplicateAlias:                 "DuplicateAlias",
	ErrFileAlreadyUploaded:            "FileAlreadyUploaded",
	ErrUploadExpired:                  "UploadExpired",
	ErrCannotReplaceDirectoryWithFile: "CannotReplaceDirectoryWithFile",
	ErrDirectoryCycle:                 "DirectoryCycle",
	ErrTargetIsNotDirectory:           "TargetIsNotDirectory",
	ErrNotDirectory:                   "NotDirectory",
	ErrDirectoryNotEmpty:              "DirectoryNotEmpty",
	ErrCannotDownloadDirectory:        "CannotDownloadDirectory",
	ErrPermissionDoesNotExist:         "PermissionDoesNotExist",
	ErrInvalidArgument:                "InvalidArgument",
	ErrTransient:                      "Transient",
	ErrBug:                            "Bug",
}

// String returns a human-readable name for the error code.
func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", int(c))
}

// Kind groups error codes by how callers should react.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindPermissionDenied
	KindConflict
	KindInvalid
)

// Kind classifies the code.
func (c ErrorCode) Kind() Kind {
	switch c {
	case ErrFilesystemNotFound, ErrEntryNotFound, ErrFileNotFound, ErrNoParentDirectory:
		return KindNotFound
	case ErrNoFilesystemPermission, ErrNoCapability:
		return KindPermissionDenied
	case ErrDuplicateEntryName, ErrDuplicateAlias, ErrFileAlreadyUploaded, ErrUploadExpired,
		ErrCannotReplaceDirectoryWithFile, ErrDirectoryCycle, ErrTargetIsNotDirectory,
		ErrDirectoryNotEmpty, ErrPermissionDoesNotExist, ErrTransient:
		return KindConflict
	case ErrInvalidArgument, ErrNotDirectory, ErrCannotDownloadDirectory:
		return KindInvalid
	}
	return KindInternal
}

// StoreError is the error type of the metadata layer. Engine-specific
// failures are translated into one of these before leaving a store.
type StoreError struct {
	Code    ErrorCode
	Message string
	// Data carries the identifiers the error is about, safe to show clients.
	Data map[string]any
	// Err is the underlying cause, if any. It is never shown to clients.
	Err error
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, data map[string]any, format string, args ...any) *StoreError {
	return &StoreError{Code: code, Message: fmt.Sprintf(format, args...), Data: data}
}

func parentLabel(id *EntryID) any {
	if id == nil {
		return nil
	}
	return *id
}

func NewFilesystemNotFoundByAliasError(alias string) *StoreError {
	return newError(ErrFilesystemNotFound, map[string]any{"alias": alias}, "filesystem not found by alias: %s", alias)
}

func NewFilesystemNotFoundError(id FilesystemID) *StoreError {
	return newError(ErrFilesystemNotFound, map[string]any{"filesystemID": id}, "filesystem not found: %d", id)
}

func NewEntryNotFoundError(id EntryID) *StoreError {
	return newError(ErrEntryNotFound, map[string]any{"entryID": id}, "entry not found: %d", id)
}

func NewFileNotFoundError(id FileID) *StoreError {
	return newError(ErrFileNotFound, map[string]any{"fileID": id}, "file not found: %d", id)
}

func NewNoParentDirectoryError(parentID *EntryID) *StoreError {
	return newError(ErrNoParentDirectory, map[string]any{"parentID": parentLabel(parentID)},
		"the specified parent directory does not exist: %v", parentLabel(parentID))
}

// NewNoFilesystemPermissionError never names the grant that would have
// authorized the operation.
func NewNoFilesystemPermissionError(perm Permission) *StoreError {
	return newError(ErrNoFilesystemPermission, map[string]any{"permissionName": perm},
		"insufficient permissions: to perform this action you need permission %s", perm)
}

func NewNoCapabilityError(capability string) *StoreError {
	return newError(ErrNoCapability, map[string]any{"capability": capability},
		"insufficient permissions: to perform this action you need: [%s]", capability)
}

func NewDuplicateEntryNameError(parentID *EntryID, name string) *StoreError {
	return newError(ErrDuplicateEntryName, map[string]any{"parentID": parentLabel(parentID), "name": name},
		"an entry named %q already exists in parent %v", name, parentLabel(parentID))
}

func NewDuplicateAliasError(alias string) *StoreError {
	return newError(ErrDuplicateAlias, map[string]any{"alias": alias}, "filesystem alias already in use: %s", alias)
}

func NewFileAlreadyUploadedError(id FileID) *StoreError {
	return newError(ErrFileAlreadyUploaded, map[string]any{"fileID": id}, "file %d has already been uploaded", id)
}

func NewUploadExpiredError(id FileID) *StoreError {
	return newError(ErrUploadExpired, map[string]any{"fileID": id}, "upload of file %d has expired", id)
}

func NewCannotReplaceDirectoryWithFileError(parentID *EntryID, name string) *StoreError {
	return newError(ErrCannotReplaceDirectoryWithFile, map[string]any{"parentID": parentLabel(parentID), "name": name},
		"%q in parent %v is a directory and cannot be replaced with a file", name, parentLabel(parentID))
}

func NewDirectoryCycleError(entryID, targetID EntryID) *StoreError {
	return newError(ErrDirectoryCycle, map[string]any{"entryID": entryID, "targetParentID": targetID},
		"cannot move entry %d into %d: the target is the entry itself or one of its descendants", entryID, targetID)
}

func NewTargetIsNotDirectoryError(targetID EntryID) *StoreError {
	return newError(ErrTargetIsNotDirectory, map[string]any{"targetParentID": targetID}, "move target %d is not a directory", targetID)
}

func NewNotDirectoryError(id EntryID) *StoreError {
	return newError(ErrNotDirectory, map[string]any{"entryID": id}, "entry %d is not a directory", id)
}

func NewDirectoryNotEmptyError(id EntryID) *StoreError {
	return newError(ErrDirectoryNotEmpty, map[string]any{"entryID": id}, "directory %d is not empty", id)
}

func NewCannotDownloadDirectoryError(id EntryID) *StoreError {
	return newError(ErrCannotDownloadDirectory, map[string]any{"entryID": id},
		"entry %d is a directory and cannot be downloaded", id)
}

func NewPermissionDoesNotExistError(id EntryID) *StoreError {
	return newError(ErrPermissionDoesNotExist, map[string]any{"entryID": id}, "no matching permission exists on entry %d", id)
}

func NewFilesystemPermissionDoesNotExistError(id FilesystemID) *StoreError {
	return newError(ErrPermissionDoesNotExist, map[string]any{"filesystemID": id}, "no matching permission exists on filesystem %d", id)
}

func NewInvalidArgumentError(format string, args ...any) *StoreError {
	return newError(ErrInvalidArgument, nil, format, args...)
}

// NewTransientError wraps a retryable engine failure.
func NewTransientError(operation string, cause error) *StoreError {
	return &StoreError{Code: ErrTransient, Message: operation + " aborted, retry", Err: cause}
}

// NewBugError reports a broken internal invariant. It must always surface as
// a server fault.
func NewBugError(format string, args ...any) *StoreError {
	return newError(ErrBug, nil, format, args...)
}

// WrapInternal attaches an unexpected engine error to a Bug-coded StoreError
// so upper layers only ever see the closed taxonomy.
func WrapInternal(operation string, cause error) *StoreError {
	return &StoreError{Code: ErrBug, Message: operation + " failed", Err: cause}
}

// CodeOf returns the code of the first StoreError in err's chain, or 0.
func CodeOf(err error) ErrorCode {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

func kindOf(err error) (Kind, bool) {
	var se *StoreError
	if !errors.As(err, &se) {
		return KindInternal, false
	}
	return se.Code.Kind(), true
}

// IsNotFound reports whether err is any not-found error.
func IsNotFound(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindNotFound
}

// IsPermissionDenied reports whether err is a missing permission or capability.
func IsPermissionDenied(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindPermissionDenied
}

// IsConflict reports whether err requires different client input.
func IsConflict(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindConflict
}

// IsBug reports whether err signals a broken invariant.
func IsBug(err error) bool {
	return HasCode(err, ErrBug)
}

// KindOf classifies any error. Errors outside the taxonomy are internal.
func KindOf(err error) Kind {
	k, _ := kindOf(err)
	return k
}
