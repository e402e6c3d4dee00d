package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/storagebox/internal/logger"
	"github.com/marmos91/storagebox/pkg/config"
	"github.com/marmos91/storagebox/pkg/controlplane/store"
	"github.com/marmos91/storagebox/pkg/metadata/store/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Run database migrations for the metadata and control plane databases.

PostgreSQL metadata stores are versioned with SQL migrations; this command
applies the pending ones. The control plane schema is migrated in place.
Memory and Badger metadata stores need no migrations.

Examples:
  # Run migrations with default config
  storagebox migrate

  # Run migrations with custom config
  storagebox migrate --config /etc/storagebox/config.yaml`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadServerConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	out := cmd.OutOrStdout()

	if cfg.Metadata.Type == config.MetadataPostgres {
		pgCfg := cfg.Metadata.Postgres
		pgCfg.ApplyDefaults()

		logger.Info("Running metadata migrations", "host", pgCfg.Host, "database", pgCfg.Database)
		status, err := postgres.RunMigrations(ctx, &pgCfg)
		if err != nil {
			return fmt.Errorf("metadata migration failed: %w", err)
		}
		_, _ = fmt.Fprintf(out, "Metadata schema at version %d\n", status.Version)
	} else {
		_, _ = fmt.Fprintf(out, "Metadata store %q has no migrations\n", cfg.Metadata.Type)
	}

	// Opening the store migrates it.
	db := cfg.Database
	cpStore, err := store.New(&db)
	if err != nil {
		return fmt.Errorf("control plane migration failed: %w", err)
	}
	defer func() { _ = cpStore.Close() }()

	if _, err := cpStore.ListBackends(ctx); err != nil {
		return fmt.Errorf("control plane migration verification failed: %w", err)
	}

	_, _ = fmt.Fprintf(out, "Migrations completed successfully (control plane: %s)\n", cfg.Database.Type)
	return nil
}
