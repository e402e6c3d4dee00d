// Package badger implements metadata.Store on an embedded BadgerDB.
//
// Every operation runs in one Badger transaction. Transactions are
// optimistic: a commit that conflicts with a concurrent one is retried a
// bounded number of times and then reported as a transient failure.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/marmos91/storagebox/internal/logger"
	"github.com/marmos91/storagebox/pkg/metadata"
)

// maxConflictRetries bounds how often a conflicting transaction is re-run.
const maxConflictRetries = 32

// BadgerMetadataStoreConfig configures the Badger metadata store.
type BadgerMetadataStoreConfig struct {
	// DBPath is the directory holding the database files. Ignored when
	// InMemory is set.
	DBPath string `mapstructure:"db_path" yaml:"db_path" validate:"required_without=InMemory"`

	// InMemory keeps everything in RAM. Used by tests.
	InMemory bool `mapstructure:"in_memory" yaml:"in_memory"`

	// BlockCacheSizeMB is Badger's block cache size (default: 64).
	BlockCacheSizeMB int64 `mapstructure:"block_cache_size_mb" yaml:"block_cache_size_mb"`

	// IndexCacheSizeMB is Badger's index cache size (default: 32).
	IndexCacheSizeMB int64 `mapstructure:"index_cache_size_mb" yaml:"index_cache_size_mb"`
}

// BadgerMetadataStore implements metadata.Store using BadgerDB.
type BadgerMetadataStore struct {
	db     *badgerdb.DB
	opts   metadata.Options
	logger *slog.Logger

	// claimed holds files a reclamation pass is removing from their backend.
	// Finishing a claimed file fails and other passes skip it.
	claimMu sync.Mutex
	claimed map[fileKey]struct{}
}

type fileKey struct {
	fs   metadata.FilesystemID
	file metadata.FileID
}

var _ metadata.Store = (*BadgerMetadataStore)(nil)

// NewBadgerMetadataStore opens (or creates) the database described by cfg.
func NewBadgerMetadataStore(ctx context.Context, cfg BadgerMetadataStoreConfig, opts metadata.Options) (*BadgerMetadataStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var bopts badgerdb.Options
	if cfg.InMemory {
		bopts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.DBPath == "" {
			return nil, errors.New("badger metadata store: db_path is required")
		}
		bopts = badgerdb.DefaultOptions(cfg.DBPath)
	}

	blockCacheMB := cfg.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 64
	}
	indexCacheMB := cfg.IndexCacheSizeMB
	if indexCacheMB == 0 {
		indexCacheMB = 32
	}

	// Metadata values are small JSON documents; compression is not worth it.
	bopts = bopts.
		WithLoggingLevel(badgerdb.WARNING).
		WithCompression(options.None).
		WithBlockCacheSize(blockCacheMB << 20).
		WithIndexCacheSize(indexCacheMB << 20)

	db, err := badgerdb.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %q: %w", cfg.DBPath, err)
	}

	log := logger.With(logger.KeyComponent, "badger_metadata_store")
	log.Info("Badger metadata store opened", "path", cfg.DBPath, "in_memory", cfg.InMemory)

	return &BadgerMetadataStore{
		db:      db,
		opts:    opts.WithDefaults(),
		logger:  log,
		claimed: make(map[fileKey]struct{}),
	}, nil
}

// Healthcheck reports whether the database is open.
func (store *BadgerMetadataStore) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if store.db.IsClosed() {
		return metadata.NewTransientError("Healthcheck", badgerdb.ErrDBClosed)
	}
	return nil
}

// Close flushes and closes the database.
func (store *BadgerMetadataStore) Close() error {
	return store.db.Close()
}

// ============================================================================
// Transactions
// ============================================================================

// update runs fn in a read-write transaction, re-running it on conflicts.
func (store *BadgerMetadataStore) update(ctx context.Context, operation string, fn func(txn *badgerdb.Txn) error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := store.db.Update(fn)
		if !errors.Is(err, badgerdb.ErrConflict) {
			return mapBadgerError(err, operation)
		}
		if attempt >= maxConflictRetries {
			return metadata.NewTransientError(operation, err)
		}
		time.Sleep(time.Duration(attempt+1) * 100 * time.Microsecond)
	}
}

// view runs fn in a read-only transaction.
func (store *BadgerMetadataStore) view(ctx context.Context, operation string, fn func(txn *badgerdb.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapBadgerError(store.db.View(fn), operation)
}

func mapBadgerError(err error, operation string) error {
	if err == nil {
		return nil
	}
	var storeErr *metadata.StoreError
	if errors.As(err, &storeErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, badgerdb.ErrConflict) || errors.Is(err, badgerdb.ErrDBClosed) {
		return metadata.NewTransientError(operation, err)
	}
	return metadata.WrapInternal(operation, err)
}

// ============================================================================
// Value Helpers
// ============================================================================

// getJSON decodes the value at k into v, reporting whether it exists.
func getJSON(txn *badgerdb.Txn, k []byte, v any) (bool, error) {
	item, err := txn.Get(k)
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, item.Value(func(val []byte) error {
		return jsonUnmarshal(val, v)
	})
}

func putJSON(txn *badgerdb.Txn, k []byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(k, b)
}

func getUint(txn *badgerdb.Txn, k []byte) (int64, bool, error) {
	item, err := txn.Get(k)
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	var v int64
	err = item.Value(func(val []byte) error {
		v = decodeUint(val)
		return nil
	})
	return v, true, err
}

// next increments the counter at k and returns the new value. Counters live
// in the transaction, so IDs are dense and start at 1.
func next(txn *badgerdb.Txn, k []byte) (int64, error) {
	v, _, err := getUint(txn, k)
	if err != nil {
		return 0, err
	}
	v++
	return v, txn.Set(k, encodeUint(v))
}

// scanPrefix calls fn for every key under prefix, in key order.
func scanPrefix(txn *badgerdb.Txn, prefix []byte, fn func(item *badgerdb.Item) error) error {
	opts := badgerdb.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := fn(it.Item()); err != nil {
			return err
		}
	}
	return nil
}

func (store *BadgerMetadataStore) requireFilesystem(txn *badgerdb.Txn, fsID metadata.FilesystemID) error {
	_, err := txn.Get(keyFilesystem(fsID))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return metadata.NewFilesystemNotFoundError(fsID)
	}
	return err
}

// claimedLocked reports whether a reclamation pass holds the file. The
// caller holds claimMu.
func (store *BadgerMetadataStore) claimedLocked(fs metadata.FilesystemID, id metadata.FileID) bool {
	_, ok := store.claimed[fileKey{fs, id}]
	return ok
}
