package badger_test

import (
	"path/filepath"
	"testing"

	"github.com/marmos91/storagebox/pkg/metadata"
	"github.com/marmos91/storagebox/pkg/metadata/store/badger"
	"github.com/marmos91/storagebox/pkg/metadata/storetest"
)

func TestConformance(t *testing.T) {
	storetest.RunConformanceSuite(t, func(t *testing.T, opts metadata.Options) metadata.Store {
		store, err := badger.NewBadgerMetadataStore(t.Context(), badger.BadgerMetadataStoreConfig{InMemory: true}, opts)
		if err != nil {
			t.Fatalf("NewBadgerMetadataStore() failed: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func TestReopenKeepsData(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "metadata")
	cfg := badger.BadgerMetadataStoreConfig{DBPath: dir}

	store, err := badger.NewBadgerMetadataStore(t.Context(), cfg, metadata.Options{})
	if err != nil {
		t.Fatalf("NewBadgerMetadataStore() failed: %v", err)
	}
	fs, err := store.CreateFilesystem(t.Context(), nil, "Docs", "docs")
	if err != nil {
		t.Fatalf("CreateFilesystem() failed: %v", err)
	}
	dir1, err := store.CreateDirectory(t.Context(), fs.ID, nil, "a")
	if err != nil {
		t.Fatalf("CreateDirectory() failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	store, err = badger.NewBadgerMetadataStore(t.Context(), cfg, metadata.Options{})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer store.Close()

	got, err := store.GetFilesystemByAlias(t.Context(), "docs")
	if err != nil || got.ID != fs.ID {
		t.Fatalf("GetFilesystemByAlias() = %+v, %v", got, err)
	}
	dir2, err := store.CreateDirectory(t.Context(), fs.ID, nil, "b")
	if err != nil {
		t.Fatalf("CreateDirectory() after reopen failed: %v", err)
	}
	if dir2.ID <= dir1.ID {
		t.Errorf("entry sequence restarted: %d after %d", dir2.ID, dir1.ID)
	}
}
