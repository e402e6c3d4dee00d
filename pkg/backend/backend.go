// Package backend abstracts the object storage that holds file bytes.
//
// Metadata never lives here: a backend only maps opaque object URIs to
// bytes. Which backend holds a file is recorded on the file's metadata row
// by backend ID, and a Repository turns that ID back into an instance.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
)

var (
	// ErrObjectNotFound is returned when no object exists at a URI.
	ErrObjectNotFound = errors.New("backend: object not found")

	// ErrBackendClosed is returned by operations on a closed backend.
	ErrBackendClosed = errors.New("backend: closed")

	// ErrBackendNotFound is returned by a Repository for unknown backend IDs.
	ErrBackendNotFound = errors.New("backend: unknown backend")

	// ErrUnsupportedType is returned by New for unknown backend types.
	ErrUnsupportedType = errors.New("backend: unsupported type")
)

// SizeMismatchError reports an upload whose byte count differs from the
// declared size. The partial object is removed before it is returned.
type SizeMismatchError struct {
	URI      string
	Declared int64
	Received int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("backend: %s: declared %d bytes, received %d", e.URI, e.Declared, e.Received)
}

// Backend stores the bytes of files.
type Backend interface {
	// ObtainObjectURI returns a fresh URI for a new object. Nothing is
	// written until UploadStream.
	ObtainObjectURI(ctx context.Context) (string, error)

	// UploadStream writes exactly size bytes from r to uri. A stream that
	// ends early or carries extra bytes fails with *SizeMismatchError.
	UploadStream(ctx context.Context, uri string, r io.Reader, size int64) error

	// DownloadStream opens the object at uri. Fails ErrObjectNotFound.
	DownloadStream(ctx context.Context, uri string) (io.ReadCloser, error)

	// DeleteFile removes the object at uri. Deleting a missing object is not
	// an error, so cleanup can retry a pass that died half way.
	DeleteFile(ctx context.Context, uri string) error

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// Disposition is the Content-Disposition type of a download URL.
type Disposition string

const (
	DispositionAttachment Disposition = "attachment"
	DispositionInline     Disposition = "inline"
)

// URLProvider is implemented by backends able to hand out direct download
// URLs, so the service can redirect instead of proxying bytes.
type URLProvider interface {
	// DownloadURLsEnabled reports whether direct URLs are switched on for
	// this instance.
	DownloadURLsEnabled() bool

	// GetDownloadURL returns a time-limited URL serving the object under the
	// given file name and mimetype.
	GetDownloadURL(ctx context.Context, uri, name string, disposition Disposition, mimetype string) (string, error)
}

// DownloadURLs returns b as a URLProvider when it implements the capability
// and has it enabled.
func DownloadURLs(b Backend) (URLProvider, bool) {
	p, ok := b.(URLProvider)
	if !ok || !p.DownloadURLsEnabled() {
		return nil, false
	}
	return p, true
}

// CountingReader counts bytes read through it.
type CountingReader struct {
	R io.Reader
	N int64
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.R.Read(p)
	c.N += int64(n)
	return n, err
}

// LimitStream caps r at size bytes and reports through the returned check
// whether the stream held exactly size bytes. The check reads at most one
// byte past the limit.
func LimitStream(r io.Reader, size int64) (io.Reader, func(uri string) error) {
	counter := &CountingReader{R: io.LimitReader(r, size)}
	check := func(uri string) error {
		if counter.N != size {
			return &SizeMismatchError{URI: uri, Declared: size, Received: counter.N}
		}
		var one [1]byte
		if n, _ := io.ReadFull(r, one[:]); n > 0 {
			return &SizeMismatchError{URI: uri, Declared: size, Received: size + int64(n)}
		}
		return nil
	}
	return counter, check
}

// ContentDisposition formats a Content-Disposition header value for a file
// name. Non-ASCII names are encoded per RFC 2231.
func ContentDisposition(disposition Disposition, name string) string {
	if disposition == "" {
		disposition = DispositionAttachment
	}
	v := mime.FormatMediaType(string(disposition), map[string]string{"filename": name})
	if v == "" {
		return string(disposition)
	}
	return v
}
