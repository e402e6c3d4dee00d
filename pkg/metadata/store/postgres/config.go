package postgres

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// PostgresMetadataStoreConfig holds the configuration for the PostgreSQL
// metadata store.
type PostgresMetadataStoreConfig struct {
	// Connection parameters
	Host     string `mapstructure:"host" yaml:"host" validate:"required"`
	Port     int    `mapstructure:"port" yaml:"port" validate:"required,min=1,max=65535"`
	Database string `mapstructure:"database" yaml:"database" validate:"required"`
	User     string `mapstructure:"user" yaml:"user" validate:"required"`
	Password string `mapstructure:"password" yaml:"password" validate:"required"`
	SSLMode  string `mapstructure:"ssl_mode" yaml:"ssl_mode" validate:"oneof=disable require verify-ca verify-full prefer"`

	// Connection pool
	MaxConns          int32         `mapstructure:"max_conns" yaml:"max_conns" validate:"min=1"`
	MinConns          int32         `mapstructure:"min_conns" yaml:"min_conns" validate:"min=0,ltefield=MaxConns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime" yaml:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time" yaml:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period" yaml:"health_check_period"`

	// Timeouts
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	QueryTimeout   time.Duration `mapstructure:"query_timeout" yaml:"query_timeout"`

	// AutoMigrate applies pending schema migrations on startup. When false,
	// run `storagebox migrate` before starting the server.
	AutoMigrate bool `mapstructure:"auto_migrate" yaml:"auto_migrate"`
}

// ApplyDefaults sets default values for unspecified configuration fields.
func (c *PostgresMetadataStoreConfig) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 5432
	}
	if c.MaxConns == 0 {
		c.MaxConns = 10
	}
	if c.MinConns == 0 {
		c.MinConns = 2
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = time.Hour
	}
	if c.MaxConnIdleTime == 0 {
		c.MaxConnIdleTime = 30 * time.Minute
	}
	if c.HealthCheckPeriod == 0 {
		c.HealthCheckPeriod = time.Minute
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 30 * time.Second
	}
	if c.SSLMode == "" {
		c.SSLMode = "prefer"
	}
}

var validate = validator.New()

// Validate checks the configuration after defaults are applied.
func (c *PostgresMetadataStoreConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid postgres configuration: %w", err)
	}
	return nil
}

// ConnectionString builds a libpq keyword/value connection string.
func (c *PostgresMetadataStoreConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s connect_timeout=%d",
		c.Host,
		c.Port,
		c.Database,
		c.User,
		c.Password,
		c.SSLMode,
		int(c.ConnectTimeout.Seconds()),
	)
}
