package config

import (
	"strings"
	"time"

	"github.com/marmos91/storagebox/internal/bytesize"
	"github.com/marmos91/storagebox/pkg/backend"
	"github.com/marmos91/storagebox/pkg/cleanup"
	"github.com/marmos91/storagebox/pkg/controlplane/store"
	"github.com/marmos91/storagebox/pkg/metadata"
)

// DefaultBackendID names the backend a fresh configuration stores bytes in.
const DefaultBackendID = "local"

// ApplyDefaults sets default values for any unspecified configuration fields.
// Zero values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	applyMetricsDefaults(&cfg.Metrics)
	cfg.Server.ApplyDefaults()
	applyMetadataDefaults(&cfg.Metadata)
	applyDatabaseDefaults(&cfg.Database)
	applyStorageDefaults(&cfg.Storage)
	applyUploadsDefaults(&cfg.Uploads)
	applyCleanupDefaults(&cfg.Cleanup)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	if cfg.Profiling.Endpoint == "" {
		cfg.Profiling.Endpoint = "http://localhost:4040"
	}
	if len(cfg.Profiling.ProfileTypes) == 0 {
		cfg.Profiling.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyMetadataDefaults(cfg *MetadataConfig) {
	if cfg.Type == "" {
		cfg.Type = MetadataMemory
	}
	switch cfg.Type {
	case MetadataBadger:
		if cfg.Badger.DBPath == "" && !cfg.Badger.InMemory {
			cfg.Badger.DBPath = getConfigDir() + "/metadata"
		}
	case MetadataPostgres:
		cfg.Postgres.ApplyDefaults()
	}
}

func applyDatabaseDefaults(cfg *store.Config) {
	cfg.ApplyDefaults()
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.PresignTTL == 0 {
		cfg.PresignTTL = backend.DefaultPresignTTL
	}
	if cfg.DefaultBackend == "" && len(cfg.Backends) == 0 {
		cfg.DefaultBackend = DefaultBackendID
		cfg.Backends = []backend.Definition{{
			ID:     DefaultBackendID,
			Type:   backend.TypeFilesystem,
			Config: map[string]any{"path": getConfigDir() + "/blobs"},
		}}
	}
	if cfg.DefaultBackend == "" && len(cfg.Backends) == 1 {
		cfg.DefaultBackend = cfg.Backends[0].ID
	}
}

func applyUploadsDefaults(cfg *UploadsConfig) {
	if cfg.MinimumThroughput == 0 {
		cfg.MinimumThroughput = bytesize.ByteSize(metadata.DefaultMinimumThroughput)
	}
	if cfg.MinimumWindow == 0 {
		cfg.MinimumWindow = metadata.DefaultMinimumWindow
	}
}

func applyCleanupDefaults(cfg *CleanupConfig) {
	if cfg.Interval == 0 {
		cfg.Interval = cleanup.DefaultInterval
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = cleanup.DefaultBatchSize
	}
}

// GetDefaultConfig returns a Config with all default values applied.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// UploadDeadline converts the uploads section into the metadata policy.
func (c *Config) UploadDeadline() metadata.UploadDeadline {
	return metadata.UploadDeadline{
		MinimumThroughput: c.Uploads.MinimumThroughput.Int64(),
		MinimumWindow:     c.Uploads.MinimumWindow,
	}
}

// CleanupSchedule converts the cleanup section into scheduler settings.
func (c *Config) CleanupSchedule() cleanup.Config {
	return cleanup.Config{Interval: c.Cleanup.Interval, BatchSize: c.Cleanup.BatchSize}
}
