package config

import (
	"os"
	"time"

	"github.com/marmos91/storagebox/internal/bytesize"
	"github.com/marmos91/storagebox/pkg/api"
	"github.com/marmos91/storagebox/pkg/backend"
	"github.com/marmos91/storagebox/pkg/controlplane/store"
	"github.com/marmos91/storagebox/pkg/metadata/store/badger"
	"github.com/marmos91/storagebox/pkg/metadata/store/postgres"
)

// Config is the server configuration. Environment variables override the
// file, which overrides the defaults applied by ApplyDefaults.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`

	// ShutdownTimeout bounds graceful shutdown, including the last
	// cleanup pass.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	Server   api.APIConfig  `mapstructure:"server" yaml:"server"`
	Metadata MetadataConfig `mapstructure:"metadata" yaml:"metadata"`

	// Database holds the backend registry.
	Database store.Config `mapstructure:"database" yaml:"database"`

	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Uploads UploadsConfig `mapstructure:"uploads" yaml:"uploads"`
	Cleanup CleanupConfig `mapstructure:"cleanup" yaml:"cleanup"`
}

// LoggingConfig controls log output. Level is matched case-insensitively;
// Output is stdout, stderr or a file path.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls trace export over OTLP/gRPC. Off by default.
type TelemetryConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure bool   `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate is the fraction of new traces kept.
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls pushing profiles to Pyroscope.
type ProfilingConfig struct {
	Enabled      bool     `mapstructure:"enabled" yaml:"enabled"`
	Endpoint     string   `mapstructure:"endpoint" yaml:"endpoint"`
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus endpoint. Nothing is collected
// while it is disabled.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// Metadata store types.
const (
	MetadataMemory   = "memory"
	MetadataBadger   = "badger"
	MetadataPostgres = "postgres"
)

// MetadataConfig selects the metadata store. Only the section matching
// Type is read.
type MetadataConfig struct {
	Type     string                               `mapstructure:"type" validate:"required,oneof=memory badger postgres" yaml:"type"`
	Badger   badger.BadgerMetadataStoreConfig     `mapstructure:"badger" validate:"-" yaml:"badger,omitempty"`
	Postgres postgres.PostgresMetadataStoreConfig `mapstructure:"postgres" validate:"-" yaml:"postgres,omitempty"`
}

// StorageConfig configures where file bytes live.
type StorageConfig struct {
	// DefaultBackend receives every new upload.
	DefaultBackend string `mapstructure:"default_backend" validate:"required" yaml:"default_backend"`

	// PresignTTL is the lifetime of direct download URLs.
	PresignTTL time.Duration `mapstructure:"presign_ttl" yaml:"presign_ttl"`

	// Backends are registered in the control plane on startup. IDs already
	// known there keep their stored settings.
	Backends []backend.Definition `mapstructure:"backends" validate:"dive" yaml:"backends"`
}

// EnvUploadSecret overrides UploadsConfig.Secret.
const EnvUploadSecret = "STORAGEBOX_UPLOADS_SECRET"

// UploadsConfig configures upload tokens and deadlines.
type UploadsConfig struct {
	// Secret is the master secret upload-token keys are derived from.
	Secret string `mapstructure:"secret" yaml:"secret"`

	// MinimumThroughput is the slowest transfer rate per second a deadline
	// allows for. Accepts sizes like 125KB.
	MinimumThroughput bytesize.ByteSize `mapstructure:"minimum_throughput" yaml:"minimum_throughput"`

	// MinimumWindow is added to every upload deadline.
	MinimumWindow time.Duration `mapstructure:"minimum_window" yaml:"minimum_window"`
}

// GetSecret returns the upload secret, preferring the environment.
func (c *UploadsConfig) GetSecret() string {
	if env := os.Getenv(EnvUploadSecret); env != "" {
		return env
	}
	return c.Secret
}

// UploadSecret is the master secret for upload-token keys. Without an
// uploads secret it falls back to the user token secret; the keys differ
// because DeriveKey is given a distinct purpose.
func (c *Config) UploadSecret() string {
	if s := c.Uploads.GetSecret(); s != "" {
		return s
	}
	return c.Server.Auth.GetSecret()
}

// CleanupConfig configures the reclamation loop.
type CleanupConfig struct {
	// Enabled runs the loop inside the server. Nil means enabled.
	Enabled   *bool         `mapstructure:"enabled" yaml:"enabled,omitempty"`
	Interval  time.Duration `mapstructure:"interval" validate:"omitempty,gt=0" yaml:"interval"`
	BatchSize int           `mapstructure:"batch_size" validate:"omitempty,gt=0" yaml:"batch_size"`
}

func (c CleanupConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}
