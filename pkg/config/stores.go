package config

import (
	"context"
	"fmt"

	"github.com/marmos91/storagebox/pkg/controlplane/store"
	"github.com/marmos91/storagebox/pkg/metadata"
	"github.com/marmos91/storagebox/pkg/metadata/store/badger"
	"github.com/marmos91/storagebox/pkg/metadata/store/memory"
	"github.com/marmos91/storagebox/pkg/metadata/store/postgres"
)

// CreateMetadataStore opens the metadata store selected by cfg.Metadata.
func CreateMetadataStore(ctx context.Context, cfg *Config) (metadata.Store, error) {
	opts := metadata.Options{Deadline: cfg.UploadDeadline()}

	switch cfg.Metadata.Type {
	case MetadataMemory:
		return memory.NewMemoryMetadataStore(opts), nil

	case MetadataBadger:
		s, err := badger.NewBadgerMetadataStore(ctx, cfg.Metadata.Badger, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger database: %w", err)
		}
		return s, nil

	case MetadataPostgres:
		pgCfg := cfg.Metadata.Postgres
		pgCfg.ApplyDefaults()
		s, err := postgres.NewPostgresMetadataStore(ctx, &pgCfg, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres metadata store: %w", err)
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unknown metadata store type: %q", cfg.Metadata.Type)
	}
}

// CreateControlPlaneStore opens the backend registry and registers the
// configured backends it does not know yet.
func CreateControlPlaneStore(ctx context.Context, cfg *Config) (*store.GORMStore, error) {
	db := cfg.Database
	cp, err := store.New(&db)
	if err != nil {
		return nil, err
	}

	if _, err := cp.SeedBackends(ctx, cfg.Storage.Backends); err != nil {
		_ = cp.Close()
		return nil, fmt.Errorf("failed to register configured backends: %w", err)
	}
	return cp, nil
}
