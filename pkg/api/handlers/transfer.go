package handlers

import (
	"net/http"
	"strconv"

	"github.com/marmos91/storagebox/internal/logger"
	"github.com/marmos91/storagebox/pkg/backend"
	"github.com/marmos91/storagebox/pkg/bufpool"
	"github.com/marmos91/storagebox/pkg/upload"
)

// TransferHandler serves upload and download routes of one filesystem.
// Every route sits behind FilesystemHandler.Load.
type TransferHandler struct{}

// NewTransferHandler creates a transfer handler.
func NewTransferHandler() *TransferHandler {
	return &TransferHandler{}
}

// StartUploadRequest is the body of POST /fs/{alias}/upload.
type StartUploadRequest struct {
	Files []upload.FileRequest `json:"files" validate:"dive"`
}

// StartUpload handles POST /fs/{alias}/upload. The response lists one
// decision per requested file, in request order.
func (h *TransferHandler) StartUpload(w http.ResponseWriter, r *http.Request) {
	var req StartUploadRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	results, err := currentFilesystem(r).StartFileUpload(r.Context(), currentUser(r), req.Files)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSONOK(w, results)
}

// FinishUpload handles POST /fs/{alias}/upload/finish?token=. The request
// body is the raw file content.
func (h *TransferHandler) FinishUpload(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		BadRequest(w, "token query parameter is required")
		return
	}

	entry, err := currentFilesystem(r).UploadFile(r.Context(), currentUser(r), token, r.Body)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSONCreated(w, entry)
}

// Download handles GET /fs/{alias}/download/{entryID}. Pass inline=true to
// ask for inline display instead of an attachment.
func (h *TransferHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, ok := entryIDParam(w, r, "entryID")
	if !ok {
		return
	}

	disposition := backend.DispositionAttachment
	if inline, _ := strconv.ParseBool(r.URL.Query().Get("inline")); inline {
		disposition = backend.DispositionInline
	}

	dl, err := currentFilesystem(r).DownloadFileOrRedirect(r.Context(), currentUser(r), id, disposition)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	if dl.Redirect() {
		http.Redirect(w, r, dl.URL, http.StatusFound)
		return
	}
	defer func() { _ = dl.Data.Close() }()

	w.Header().Set("Content-Type", dl.Info.Mimetype)
	w.Header().Set("Content-Length", strconv.FormatInt(dl.Info.Bytes, 10))
	w.Header().Set("Content-Disposition", backend.ContentDisposition(disposition, dl.Info.Name))
	w.WriteHeader(http.StatusOK)

	if _, err := bufpool.Copy(w, dl.Data, dl.Info.Bytes); err != nil {
		// Headers are gone; the client sees a short body.
		logger.WarnCtx(r.Context(), "Download interrupted", logger.EntryID(int64(id)), logger.Err(err))
	}
}
