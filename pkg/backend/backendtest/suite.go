// Package backendtest holds behaviour every backend.Backend must show.
package backendtest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/marmos91/storagebox/pkg/backend"
)

// Factory returns a fresh, empty backend for one subtest.
type Factory func(t *testing.T) backend.Backend

// Run exercises b through the backend.Backend contract.
func Run(t *testing.T, factory Factory) {
	t.Run("UploadThenDownload", func(t *testing.T) {
		ctx := t.Context()
		b := factory(t)
		data := []byte("hello world")

		uri := obtain(t, b)
		if err := b.UploadStream(ctx, uri, bytes.NewReader(data), int64(len(data))); err != nil {
			t.Fatalf("UploadStream failed: %v", err)
		}
		if got := download(t, b, uri); !bytes.Equal(got, data) {
			t.Errorf("DownloadStream returned %q, want %q", got, data)
		}
	})

	t.Run("EmptyObject", func(t *testing.T) {
		ctx := t.Context()
		b := factory(t)

		uri := obtain(t, b)
		if err := b.UploadStream(ctx, uri, strings.NewReader(""), 0); err != nil {
			t.Fatalf("UploadStream failed: %v", err)
		}
		if got := download(t, b, uri); len(got) != 0 {
			t.Errorf("expected empty object, got %d bytes", len(got))
		}
	})

	t.Run("URIsAreUnique", func(t *testing.T) {
		b := factory(t)
		seen := make(map[string]bool)
		for range 50 {
			uri := obtain(t, b)
			if seen[uri] {
				t.Fatalf("ObtainObjectURI returned %q twice", uri)
			}
			seen[uri] = true
		}
	})

	t.Run("ShortStreamRejected", func(t *testing.T) {
		ctx := t.Context()
		b := factory(t)

		uri := obtain(t, b)
		err := b.UploadStream(ctx, uri, strings.NewReader("abc"), 10)
		var mismatch *backend.SizeMismatchError
		if !errors.As(err, &mismatch) {
			t.Fatalf("expected SizeMismatchError, got %v", err)
		}
		if mismatch.Received != 3 {
			t.Errorf("Received = %d, want 3", mismatch.Received)
		}
		if _, err := b.DownloadStream(ctx, uri); !errors.Is(err, backend.ErrObjectNotFound) {
			t.Errorf("partial object must not be stored, got %v", err)
		}
	})

	t.Run("LongStreamRejected", func(t *testing.T) {
		ctx := t.Context()
		b := factory(t)

		uri := obtain(t, b)
		err := b.UploadStream(ctx, uri, strings.NewReader("abcdef"), 3)
		var mismatch *backend.SizeMismatchError
		if !errors.As(err, &mismatch) {
			t.Fatalf("expected SizeMismatchError, got %v", err)
		}
		if _, err := b.DownloadStream(ctx, uri); !errors.Is(err, backend.ErrObjectNotFound) {
			t.Errorf("oversized object must not be stored, got %v", err)
		}
	})

	t.Run("DownloadMissing", func(t *testing.T) {
		b := factory(t)
		_, err := b.DownloadStream(t.Context(), obtain(t, b))
		if !errors.Is(err, backend.ErrObjectNotFound) {
			t.Errorf("expected ErrObjectNotFound, got %v", err)
		}
	})

	t.Run("DeleteRemovesObject", func(t *testing.T) {
		ctx := t.Context()
		b := factory(t)

		uri := obtain(t, b)
		if err := b.UploadStream(ctx, uri, strings.NewReader("x"), 1); err != nil {
			t.Fatalf("UploadStream failed: %v", err)
		}
		if err := b.DeleteFile(ctx, uri); err != nil {
			t.Fatalf("DeleteFile failed: %v", err)
		}
		if _, err := b.DownloadStream(ctx, uri); !errors.Is(err, backend.ErrObjectNotFound) {
			t.Errorf("expected ErrObjectNotFound after delete, got %v", err)
		}
	})

	t.Run("DeleteMissingIsNoop", func(t *testing.T) {
		b := factory(t)
		if err := b.DeleteFile(t.Context(), obtain(t, b)); err != nil {
			t.Errorf("DeleteFile on missing object failed: %v", err)
		}
	})

	t.Run("OverwriteReplacesContent", func(t *testing.T) {
		ctx := t.Context()
		b := factory(t)

		uri := obtain(t, b)
		for _, content := range []string{"first", "second!"} {
			if err := b.UploadStream(ctx, uri, strings.NewReader(content), int64(len(content))); err != nil {
				t.Fatalf("UploadStream failed: %v", err)
			}
		}
		if got := download(t, b, uri); string(got) != "second!" {
			t.Errorf("got %q, want %q", got, "second!")
		}
	})

	t.Run("HealthCheck", func(t *testing.T) {
		b := factory(t)
		if err := b.HealthCheck(t.Context()); err != nil {
			t.Errorf("HealthCheck failed: %v", err)
		}
	})

	t.Run("ClosedRejectsOperations", func(t *testing.T) {
		ctx := t.Context()
		b := factory(t)
		if err := b.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if err := b.UploadStream(ctx, "x", strings.NewReader("x"), 1); !errors.Is(err, backend.ErrBackendClosed) {
			t.Errorf("UploadStream after Close: got %v, want ErrBackendClosed", err)
		}
		if _, err := b.DownloadStream(ctx, "x"); !errors.Is(err, backend.ErrBackendClosed) {
			t.Errorf("DownloadStream after Close: got %v, want ErrBackendClosed", err)
		}
	})
}

func obtain(t *testing.T, b backend.Backend) string {
	t.Helper()
	uri, err := b.ObtainObjectURI(t.Context())
	if err != nil {
		t.Fatalf("ObtainObjectURI failed: %v", err)
	}
	if uri == "" {
		t.Fatal("ObtainObjectURI returned an empty URI")
	}
	return uri
}

func download(t *testing.T, b backend.Backend, uri string) []byte {
	t.Helper()
	rc, err := b.DownloadStream(t.Context(), uri)
	if err != nil {
		t.Fatalf("DownloadStream failed: %v", err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read object: %v", err)
	}
	return data
}

// Upload stores content under a fresh URI and returns it.
func Upload(ctx context.Context, t *testing.T, b backend.Backend, content string) string {
	t.Helper()
	uri := obtain(t, b)
	if err := b.UploadStream(ctx, uri, strings.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("UploadStream failed: %v", err)
	}
	return uri
}
