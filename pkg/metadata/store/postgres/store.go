// Package postgres implements metadata.Store on PostgreSQL through pgx.
//
// Entries carry their materialized path as a bigint[] column. Entry and file
// IDs come from two sequences created per filesystem, so IDs are dense and
// start at 1 within each filesystem.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marmos91/storagebox/internal/logger"
	"github.com/marmos91/storagebox/pkg/metadata"
)

// PostgresMetadataStore implements metadata.Store using PostgreSQL.
type PostgresMetadataStore struct {
	pool   *pgxpool.Pool
	config *PostgresMetadataStoreConfig
	opts   metadata.Options
	logger *slog.Logger
}

var _ metadata.Store = (*PostgresMetadataStore)(nil)

// NewPostgresMetadataStore connects to PostgreSQL and, when AutoMigrate is
// set, brings the schema up to date.
func NewPostgresMetadataStore(ctx context.Context, cfg *PostgresMetadataStoreConfig, opts metadata.Options) (*PostgresMetadataStore, error) {
	log := logger.With(logger.KeyComponent, "postgres_metadata_store")

	pool, err := createConnectionPool(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if _, err := runMigrations(ctx, cfg.ConnectionString(), log); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	} else {
		log.Info("AutoMigrate is disabled, run 'storagebox migrate' to apply migrations manually")
	}

	log.Info("PostgreSQL metadata store initialized",
		"host", cfg.Host,
		"database", cfg.Database,
		"max_conns", cfg.MaxConns,
	)

	return &PostgresMetadataStore{
		pool:   pool,
		config: cfg,
		opts:   opts.WithDefaults(),
		logger: log,
	}, nil
}

// Healthcheck pings the database.
func (store *PostgresMetadataStore) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := store.pool.Ping(ctx); err != nil {
		return metadata.NewTransientError("Healthcheck", err)
	}
	return nil
}

// Close releases the connection pool.
func (store *PostgresMetadataStore) Close() error {
	store.logger.Info("Closing PostgreSQL metadata store")
	store.pool.Close()
	return nil
}

// ============================================================================
// Transactions
// ============================================================================

// maxTxRetries bounds how often a transaction aborted by a serialization
// failure or deadlock is re-run.
const maxTxRetries = 5

// withTx runs fn in a transaction, committing when fn returns nil. A
// transaction the server aborts with 40001 or 40P01 is re-run from the
// start, so fn must tolerate being called more than once.
func (store *PostgresMetadataStore) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	for attempt := 0; ; attempt++ {
		err := store.txOnce(ctx, fn)
		if !retryable(err) || attempt >= maxTxRetries {
			return err
		}
		store.logger.Debug("Retrying aborted transaction", "attempt", attempt+1, logger.Err(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 5 * time.Millisecond):
		}
	}
}

func (store *PostgresMetadataStore) txOnce(ctx context.Context, fn func(tx pgx.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := store.pool.Begin(ctx)
	if err != nil {
		return metadata.NewTransientError("begin", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapPgError(err, "commit")
	}
	return nil
}

// Structural tree changes take an exclusive per-filesystem lock; inserts take
// it shared. Paths of new entries are computed from their parent's path, which
// a concurrent move could otherwise rewrite underneath them.
func lockTreeShared(ctx context.Context, tx pgx.Tx, fsID metadata.FilesystemID) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock_shared($1)`, int64(fsID))
	return mapPgError(err, "lock tree")
}

func lockTreeExclusive(ctx context.Context, tx pgx.Tx, fsID metadata.FilesystemID) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(fsID))
	return mapPgError(err, "lock tree")
}

// ============================================================================
// Sequences
// ============================================================================

func entrySequence(fsID metadata.FilesystemID) string {
	return pgx.Identifier{fmt.Sprintf("fs_entry_id_%d", fsID)}.Sanitize()
}

func fileSequence(fsID metadata.FilesystemID) string {
	return pgx.Identifier{fmt.Sprintf("fs_file_id_%d", fsID)}.Sanitize()
}

func createSequences(ctx context.Context, tx pgx.Tx, fsID metadata.FilesystemID) error {
	for _, seq := range []string{entrySequence(fsID), fileSequence(fsID)} {
		if _, err := tx.Exec(ctx, "CREATE SEQUENCE "+seq+" AS BIGINT START WITH 1"); err != nil {
			return mapPgError(err, "create sequence")
		}
	}
	return nil
}

func nextEntryID(ctx context.Context, tx pgx.Tx, fsID metadata.FilesystemID) (metadata.EntryID, error) {
	var id int64
	if err := tx.QueryRow(ctx, `SELECT nextval($1::regclass)`, entrySequence(fsID)).Scan(&id); err != nil {
		if isUndefinedTable(err) {
			return 0, metadata.NewFilesystemNotFoundError(fsID)
		}
		return 0, mapPgError(err, "next entry id")
	}
	return metadata.EntryID(id), nil
}
