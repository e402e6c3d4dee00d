package memory_test

import (
	"testing"

	"github.com/marmos91/storagebox/pkg/metadata"
	"github.com/marmos91/storagebox/pkg/metadata/store/memory"
	"github.com/marmos91/storagebox/pkg/metadata/storetest"
)

func TestConformance(t *testing.T) {
	storetest.RunConformanceSuite(t, func(t *testing.T, opts metadata.Options) metadata.Store {
		store := memory.NewMemoryMetadataStore(opts)
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}
