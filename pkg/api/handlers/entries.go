package handlers

import (
	"net/http"

	"github.com/marmos91/storagebox/pkg/metadata"
)

// EntryHandler serves directory-tree and permission routes of one
// filesystem. Every route sits behind FilesystemHandler.Load.
type EntryHandler struct{}

// NewEntryHandler creates an entry handler.
func NewEntryHandler() *EntryHandler {
	return &EntryHandler{}
}

// CreateDirectoryRequest is the body of POST /fs/{alias}/directory.
type CreateDirectoryRequest struct {
	ParentID *metadata.EntryID `json:"parentID"`
	Name     string            `json:"name" validate:"required"`
}

// MoveEntryRequest is the body of POST .../entries/{entryID}/move.
type MoveEntryRequest struct {
	TargetParentID *metadata.EntryID `json:"targetParentID"`
}

// SetPermissionRequest is the body of POST .../entries/{entryID}/setPermissions.
type SetPermissionRequest struct {
	Permission metadata.EntryPermissions `json:"permission"`
	Criterion  metadata.Criterion        `json:"criterion"`
	Comment    string                    `json:"comment"`
}

// RevokePermissionRequest is the body of POST
// .../entries/{entryID}/revokePermissionAdministratively.
type RevokePermissionRequest struct {
	Criterion           metadata.Criterion `json:"criterion"`
	RevocationCriterion metadata.Criterion `json:"revocationCriterion"`
}

// SetFilesystemPermissionRequest is the body of POST /fs/{alias}/permissions.
type SetFilesystemPermissionRequest struct {
	Criterion  metadata.Criterion             `json:"criterion"`
	Permission metadata.FilesystemPermissions `json:"permission"`
}

// CreateDirectory handles POST /fs/{alias}/directory.
func (h *EntryHandler) CreateDirectory(w http.ResponseWriter, r *http.Request) {
	var req CreateDirectoryRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	entry, err := currentFilesystem(r).CreateDirectory(r.Context(), currentUser(r), req.ParentID, req.Name)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSONCreated(w, entry)
}

// ListRoot handles GET /fs/{alias}/list.
func (h *EntryHandler) ListRoot(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, nil)
}

// ListDirectory handles GET /fs/{alias}/list/{directoryID}.
func (h *EntryHandler) ListDirectory(w http.ResponseWriter, r *http.Request) {
	id, ok := entryIDParam(w, r, "directoryID")
	if !ok {
		return
	}
	h.list(w, r, &id)
}

func (h *EntryHandler) list(w http.ResponseWriter, r *http.Request, directoryID *metadata.EntryID) {
	entries, err := currentFilesystem(r).ListDirectory(r.Context(), currentUser(r), directoryID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSONOK(w, entries)
}

// Delete handles DELETE /fs/{alias}/entries/{entryID}.
func (h *EntryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := entryIDParam(w, r, "entryID")
	if !ok {
		return
	}

	if err := currentFilesystem(r).DeleteEntry(r.Context(), currentUser(r), id); err != nil {
		WriteError(w, r, err)
		return
	}
	WriteNoContent(w)
}

// Move handles POST /fs/{alias}/entries/{entryID}/move.
func (h *EntryHandler) Move(w http.ResponseWriter, r *http.Request) {
	id, ok := entryIDParam(w, r, "entryID")
	if !ok {
		return
	}
	var req MoveEntryRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	entry, err := currentFilesystem(r).MoveEntry(r.Context(), currentUser(r), id, req.TargetParentID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSONOK(w, entry)
}

// SetPermissions handles POST /fs/{alias}/entries/{entryID}/setPermissions.
func (h *EntryHandler) SetPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := entryIDParam(w, r, "entryID")
	if !ok {
		return
	}
	var req SetPermissionRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	err := currentFilesystem(r).SetEntryPermission(r.Context(), currentUser(r), id, req.Permission, req.Criterion, req.Comment)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteNoContent(w)
}

// ListPermissions handles GET /fs/{alias}/entries/{entryID}/permissions.
func (h *EntryHandler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := entryIDParam(w, r, "entryID")
	if !ok {
		return
	}

	grants, err := currentFilesystem(r).ListEntryPermissions(r.Context(), currentUser(r), id)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSONOK(w, grants)
}

// RevokeAdministratively handles POST
// /fs/{alias}/entries/{entryID}/revokePermissionAdministratively.
func (h *EntryHandler) RevokeAdministratively(w http.ResponseWriter, r *http.Request) {
	id, ok := entryIDParam(w, r, "entryID")
	if !ok {
		return
	}
	var req RevokePermissionRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	err := currentFilesystem(r).RevokePermissionAdministratively(r.Context(), currentUser(r), id, req.Criterion, req.RevocationCriterion)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteNoContent(w)
}

// SetFilesystemPermission handles POST /fs/{alias}/permissions.
func (h *EntryHandler) SetFilesystemPermission(w http.ResponseWriter, r *http.Request) {
	var req SetFilesystemPermissionRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	err := currentFilesystem(r).SetFilesystemPermission(r.Context(), currentUser(r), req.Criterion, req.Permission)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteNoContent(w)
}

// ListFilesystemPermissions handles GET /fs/{alias}/permissions.
func (h *EntryHandler) ListFilesystemPermissions(w http.ResponseWriter, r *http.Request) {
	grants, err := currentFilesystem(r).ListFilesystemPermissions(r.Context(), currentUser(r))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSONOK(w, grants)
}
