package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/marmos91/storagebox/pkg/controlplane/models"
)

// sqlitePragmas put file databases in WAL mode and wait up to five
// seconds for a competing writer.
const sqlitePragmas = "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

// GORMStore is the Store backed by SQLite or PostgreSQL through GORM.
type GORMStore struct {
	db     *gorm.DB
	config *Config
}

var _ Store = (*GORMStore)(nil)

// New opens the configured database and migrates the schema. A nil config
// means the default SQLite file.
func New(config *Config) (*GORMStore, error) {
	if config == nil {
		config = &Config{}
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	dialector, err := openDialector(config)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &GORMStore{db: db, config: config}
	if err := s.tunePool(); err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to migrate control plane schema: %w", err)
	}
	return s, nil
}

func openDialector(config *Config) (gorm.Dialector, error) {
	if config.Type == DatabaseTypePostgres {
		return postgres.Open(config.Postgres.DSN()), nil
	}

	path := config.SQLite.Path
	if path == memoryPath {
		return sqlite.Open("file::memory:?_pragma=foreign_keys(1)"), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	return sqlite.Open(path + sqlitePragmas), nil
}

// tunePool sizes the connection pool. An in-memory SQLite database exists
// per connection, so it is pinned to one.
func (s *GORMStore) tunePool() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database: %w", err)
	}
	switch {
	case s.config.Type == DatabaseTypePostgres:
		sqlDB.SetMaxOpenConns(s.config.Postgres.MaxOpenConns)
		sqlDB.SetMaxIdleConns(s.config.Postgres.MaxIdleConns)
	case s.config.SQLite.Path == memoryPath:
		sqlDB.SetMaxOpenConns(1)
	}
	return nil
}

// DB exposes the GORM handle.
func (s *GORMStore) DB() *gorm.DB {
	return s.db
}

// Healthcheck pings the database.
func (s *GORMStore) Healthcheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GORMStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// findOne loads the row of T whose column equals value.
func findOne[T any](ctx context.Context, db *gorm.DB, column string, value any, missing error) (*T, error) {
	row := new(T)
	err := db.WithContext(ctx).Where(column+" = ?", value).Take(row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, missing
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

// findAll loads every row of T sorted by column, never returning nil.
func findAll[T any](ctx context.Context, db *gorm.DB, column string) ([]*T, error) {
	rows := make([]*T, 0)
	if err := db.WithContext(ctx).Order(column).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// removeOne deletes the rows of T whose column equals value, returning
// missing when there were none.
func removeOne[T any](ctx context.Context, db *gorm.DB, column string, value any, missing error) error {
	res := db.WithContext(ctx).Where(column+" = ?", value).Delete(new(T))
	switch {
	case res.Error != nil:
		return res.Error
	case res.RowsAffected == 0:
		return missing
	}
	return nil
}

// isDuplicate recognises unique violations from both drivers, including
// those GORM does not translate.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "violates unique constraint")
}
