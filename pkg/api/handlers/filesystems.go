package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/storagebox/internal/logger"
	"github.com/marmos91/storagebox/pkg/filesystem"
)

type filesystemKey struct{}

// FilesystemHandler serves the filesystem-level routes.
type FilesystemHandler struct {
	svc *filesystem.Service
}

// NewFilesystemHandler creates a filesystem handler.
func NewFilesystemHandler(svc *filesystem.Service) *FilesystemHandler {
	return &FilesystemHandler{svc: svc}
}

// CreateFilesystemRequest is the body of POST /filesystems.
type CreateFilesystemRequest struct {
	Name  string `json:"name" validate:"required"`
	Alias string `json:"alias" validate:"required"`
}

// List handles GET /filesystems.
func (h *FilesystemHandler) List(w http.ResponseWriter, r *http.Request) {
	filesystems, err := h.svc.ListFilesystems(r.Context(), currentUser(r))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSONOK(w, filesystems)
}

// Create handles POST /filesystems.
func (h *FilesystemHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateFilesystemRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	fs, err := h.svc.CreateFilesystem(r.Context(), currentUser(r), req.Name, req.Alias)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSONCreated(w, fs)
}

// Load resolves the {alias} path parameter and attaches the filesystem to
// the request for the handlers below it.
func (h *FilesystemHandler) Load(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		alias := chi.URLParam(r, "alias")
		ctx := r.Context()
		if lc := logger.FromContext(ctx); lc != nil {
			ctx = logger.WithContext(ctx, lc.WithFilesystem(alias))
		}

		fs, err := h.svc.Open(ctx, alias)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, filesystemKey{}, fs)))
	})
}

// currentFilesystem returns the filesystem attached by Load.
func currentFilesystem(r *http.Request) *filesystem.Filesystem {
	fs, _ := r.Context().Value(filesystemKey{}).(*filesystem.Filesystem)
	return fs
}
