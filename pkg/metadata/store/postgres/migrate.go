package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql

	"github.com/marmos91/storagebox/internal/logger"
	"github.com/marmos91/storagebox/pkg/metadata/store/postgres/migrations"
)

// MigrationStatus describes the schema version of a database.
type MigrationStatus struct {
	Version uint
	Dirty   bool
}

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	driver, err := migratepg.WithInstance(db, &migratepg.Config{
		MigrationsTable: "schema_migrations",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// runMigrations applies every pending migration. golang-migrate takes an
// advisory lock, so concurrent instances do not race.
func runMigrations(ctx context.Context, connString string, log *slog.Logger) (MigrationStatus, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("failed to open database connection: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return MigrationStatus{}, fmt.Errorf("failed to ping database: %w", err)
	}

	m, err := newMigrate(db)
	if err != nil {
		return MigrationStatus{}, err
	}

	log.Info("Applying migrations...")
	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		log.Info("No migrations to apply (database is up to date)")
	case err != nil:
		return MigrationStatus{}, fmt.Errorf("migration failed: %w", err)
	default:
		log.Info("Migrations completed successfully")
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return MigrationStatus{}, fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		log.Warn("Database schema is in dirty state - manual intervention may be required", "version", version)
	}
	return MigrationStatus{Version: version, Dirty: dirty}, nil
}

// RunMigrations applies pending migrations for cfg. It backs the
// `storagebox migrate` command.
func RunMigrations(ctx context.Context, cfg *PostgresMetadataStoreConfig) (MigrationStatus, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return MigrationStatus{}, err
	}
	return runMigrations(ctx, cfg.ConnectionString(), logger.With(logger.KeyComponent, "postgres_migrate"))
}
