package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// APIError is an RFC 7807 problem returned by the server. Code and Data are
// set when the failure came from the filesystem service.
type APIError struct {
	StatusCode int            `json:"status"`
	Title      string         `json:"title"`
	Detail     string         `json:"detail,omitempty"`
	Code       string         `json:"code,omitempty"`
	Data       map[string]any `json:"data,omitempty"`

	// RetryAfter is set on 503 responses.
	RetryAfter time.Duration `json:"-"`
}

func newAPIError(resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{}
	if json.Unmarshal(body, apiErr) != nil || apiErr.Title == "" {
		apiErr = &APIError{Title: http.StatusText(resp.StatusCode), Detail: strings.TrimSpace(string(body))}
	}
	apiErr.StatusCode = resp.StatusCode
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
		apiErr.RetryAfter = time.Duration(secs) * time.Second
	}
	return apiErr
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := e.Detail
	if msg == "" {
		msg = e.Title
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	return fmt.Sprintf("%d: %s", e.StatusCode, msg)
}

// IsAuthError reports a missing, invalid or insufficient identity.
func (e *APIError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsNotFound reports a missing filesystem or entry.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsConflict reports a name collision or an invalid tree mutation.
func (e *APIError) IsConflict() bool {
	return e.StatusCode == http.StatusConflict
}

// IsRetryable reports a transient failure worth retrying after RetryAfter.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == http.StatusServiceUnavailable
}
