package store

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
)

// DatabaseType selects the control plane database.
type DatabaseType string

const (
	DatabaseTypeSQLite   DatabaseType = "sqlite"
	DatabaseTypePostgres DatabaseType = "postgres"
)

// memoryPath opens a private in-memory SQLite database.
const memoryPath = ":memory:"

// Config selects and configures the control plane database.
type Config struct {
	Type     DatabaseType   `mapstructure:"type" yaml:"type" validate:"omitempty,oneof=sqlite postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite" yaml:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// SQLiteConfig locates the SQLite file. Path may be ":memory:".
type SQLiteConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// PostgresConfig describes a PostgreSQL server holding the registry.
type PostgresConfig struct {
	Host         string `mapstructure:"host" yaml:"host"`
	Port         int    `mapstructure:"port" yaml:"port"`
	Database     string `mapstructure:"database" yaml:"database"`
	User         string `mapstructure:"user" yaml:"user"`
	Password     string `mapstructure:"password" yaml:"password"`
	SSLMode      string `mapstructure:"sslmode" yaml:"sslmode"`
	SSLRootCert  string `mapstructure:"sslrootcert" yaml:"sslrootcert,omitempty"`
	MaxOpenConns int    `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
}

// DSN renders the settings as a postgres:// URL.
func (c *PostgresConfig) DSN() string {
	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	if c.SSLRootCert != "" {
		q.Set("sslrootcert", c.SSLRootCert)
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + strconv.Itoa(c.Port),
		Path:     "/" + c.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// ApplyDefaults selects SQLite under the user config directory when
// nothing is set and fills PostgreSQL connection defaults.
func (c *Config) ApplyDefaults() {
	if c.Type == "" {
		c.Type = DatabaseTypeSQLite
	}

	switch c.Type {
	case DatabaseTypeSQLite:
		if c.SQLite.Path == "" {
			c.SQLite.Path = filepath.Join(configHome(), "storagebox", "controlplane.db")
		}
	case DatabaseTypePostgres:
		p := &c.Postgres
		p.Port = orDefault(p.Port, 5432)
		p.MaxOpenConns = orDefault(p.MaxOpenConns, 10)
		p.MaxIdleConns = orDefault(p.MaxIdleConns, 2)
		if p.SSLMode == "" {
			p.SSLMode = "disable"
		}
	}
}

// Validate reports every missing setting for the selected database.
func (c *Config) Validate() error {
	var errs []error
	require := func(value, name string) {
		if value == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}

	switch c.Type {
	case DatabaseTypeSQLite:
		require(c.SQLite.Path, "sqlite path")
	case DatabaseTypePostgres:
		require(c.Postgres.Host, "postgres host")
		require(c.Postgres.Database, "postgres database")
		require(c.Postgres.User, "postgres user")
	default:
		return fmt.Errorf("unsupported database type: %q", c.Type)
	}
	return errors.Join(errs...)
}

func configHome() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config")
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
