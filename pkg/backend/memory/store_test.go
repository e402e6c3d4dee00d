package memory

import (
	"testing"

	"github.com/marmos91/storagebox/pkg/backend"
	"github.com/marmos91/storagebox/pkg/backend/backendtest"
)

func TestStore(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) backend.Backend {
		s := New()
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestStore_HasAndLen(t *testing.T) {
	s := New()
	defer func() { _ = s.Close() }()

	uri := backendtest.Upload(t.Context(), t, s, "abc")
	if !s.Has(uri) {
		t.Errorf("Has(%q) = false after upload", uri)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}
