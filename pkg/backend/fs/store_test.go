package fs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marmos91/storagebox/pkg/backend"
	"github.com/marmos91/storagebox/pkg/backend/backendtest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) backend.Backend {
		return newTestStore(t)
	})
}

func TestStore_ObjectLandsUnderBasePath(t *testing.T) {
	s := newTestStore(t)

	uri := backendtest.Upload(t.Context(), t, s, "hello")
	path := filepath.Join(s.BasePath(), filepath.FromSlash(uri))
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("object file not found at %s: %v", path, err)
	}
	if string(data) != "hello" {
		t.Errorf("file contains %q, want %q", data, "hello")
	}
}

func TestStore_NoTempFilesLeftOnFailure(t *testing.T) {
	s := newTestStore(t)

	uri, err := s.ObtainObjectURI(t.Context())
	if err != nil {
		t.Fatalf("ObtainObjectURI failed: %v", err)
	}
	if err := s.UploadStream(t.Context(), uri, strings.NewReader("ab"), 5); err == nil {
		t.Fatal("expected size mismatch")
	}

	var leftovers []string
	_ = filepath.WalkDir(s.BasePath(), func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			leftovers = append(leftovers, path)
		}
		return nil
	})
	if len(leftovers) != 0 {
		t.Errorf("temporary files left behind: %v", leftovers)
	}
}

func TestStore_RejectsEscapingURIs(t *testing.T) {
	s := newTestStore(t)

	for _, uri := range []string{"../outside", "/etc/passwd", "a/../../b"} {
		if err := s.UploadStream(t.Context(), uri, strings.NewReader("x"), 1); err == nil {
			t.Errorf("UploadStream(%q) succeeded, want error", uri)
		}
		if _, err := s.DownloadStream(t.Context(), uri); err == nil {
			t.Errorf("DownloadStream(%q) succeeded, want error", uri)
		}
	}
}

func TestNew_BasePathIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(file); err == nil {
		t.Error("New succeeded on a regular file")
	}
}

func TestNew_RequiresBasePath(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("New succeeded without base path")
	}
}

func TestNew_ExistingRoot(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")
	if _, err := New(missing, WithExistingRoot()); err == nil {
		t.Error("New created a root it was told must exist")
	}
	if _, err := os.Stat(missing); !os.IsNotExist(err) {
		t.Errorf("root was created: %v", err)
	}
}

func TestStore_FileModes(t *testing.T) {
	s, err := New(t.TempDir(), WithModes(0700, 0600))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = s.Close() }()

	if err := s.UploadStream(context.Background(), "ab/private", strings.NewReader("x"), 1); err != nil {
		t.Fatalf("UploadStream failed: %v", err)
	}
	info, err := os.Stat(filepath.Join(s.BasePath(), "ab", "private"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("file mode = %v, want 0600", info.Mode().Perm())
	}
}
