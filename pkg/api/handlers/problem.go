// Package handlers provides HTTP handlers for the storagebox API.
package handlers

import (
	"errors"
	"net/http"

	"github.com/marmos91/storagebox/internal/logger"
	"github.com/marmos91/storagebox/pkg/backend"
	"github.com/marmos91/storagebox/pkg/metadata"
)

// Problem represents an RFC 7807 "problem details" response.
// https://tools.ietf.org/html/rfc7807
//
// Failures of the filesystem service add the error code and its
// structured data as extension members.
type Problem struct {
	Type     string         `json:"type,omitempty"`
	Title    string         `json:"title"`
	Status   int            `json:"status"`
	Detail   string         `json:"detail,omitempty"`
	Instance string         `json:"instance,omitempty"`
	Code     string         `json:"code,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// ContentTypeProblemJSON is the Content-Type for RFC 7807 problem responses.
const ContentTypeProblemJSON = "application/problem+json"

func writeProblem(w http.ResponseWriter, p *Problem) {
	if p.Type == "" {
		p.Type = "about:blank"
	}
	w.Header().Set("Content-Type", ContentTypeProblemJSON)
	encodeJSON(w, p.Status, p)
}

// WriteProblem writes an RFC 7807 problem response.
func WriteProblem(w http.ResponseWriter, status int, title, detail string) {
	writeProblem(w, &Problem{Title: title, Status: status, Detail: detail})
}

// BadRequest writes a 400 Bad Request problem response.
func BadRequest(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusBadRequest, "Bad Request", detail)
}

// Unauthorized writes a 401 Unauthorized problem response.
func Unauthorized(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusUnauthorized, "Unauthorized", detail)
}

// NotFound writes a 404 Not Found problem response.
func NotFound(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusNotFound, "Not Found", detail)
}

// InternalServerError writes a 500 Internal Server Error problem response.
func InternalServerError(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusInternalServerError, "Internal Server Error", detail)
}

// StatusOf maps a service error to its HTTP status.
func StatusOf(err error) int {
	var mismatch *backend.SizeMismatchError
	switch {
	case errors.As(err, &mismatch):
		return http.StatusBadRequest
	case errors.Is(err, backend.ErrObjectNotFound):
		return http.StatusBadGateway
	case metadata.HasCode(err, metadata.ErrTransient):
		return http.StatusServiceUnavailable
	}

	switch metadata.KindOf(err) {
	case metadata.KindNotFound:
		return http.StatusNotFound
	case metadata.KindPermissionDenied:
		return http.StatusForbidden
	case metadata.KindConflict:
		return http.StatusConflict
	case metadata.KindInvalid:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// WriteError writes the problem response for a failed operation. Internal
// errors are logged and their message is not exposed.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	p := &Problem{Title: http.StatusText(status), Status: status, Instance: r.URL.Path}

	var se *metadata.StoreError
	switch {
	case status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable:
		logger.ErrorCtx(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, logger.Err(err))
		p.Detail = "internal error"
		if status == http.StatusBadGateway {
			p.Detail = "storage backend error"
		}
	case errors.As(err, &se):
		p.Code = se.Code.String()
		p.Detail = se.Message
		p.Data = se.Data
	default:
		p.Detail = err.Error()
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeProblem(w, p)
}
