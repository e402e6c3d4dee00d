package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/storagebox/internal/bytesize"
	"github.com/marmos91/storagebox/pkg/api"
	"github.com/marmos91/storagebox/pkg/backend"
	"github.com/marmos91/storagebox/pkg/cleanup"
)

// yamlSafePath converts a filesystem path to a YAML-safe representation.
// On Windows, backslashes in double-quoted YAML strings are interpreted as
// escape sequences, causing parse errors.
func yamlSafePath(p string) string {
	return filepath.ToSlash(p)
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_DefaultsFillGaps(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "info"

database:
  type: sqlite
  sqlite:
    path: "`+yamlSafePath(tmpDir)+`/cp.db"

storage:
  backends:
    - id: disk
      type: filesystem
      config:
        path: "`+yamlSafePath(tmpDir)+`/blobs"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected normalized level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected server port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Storage.DefaultBackend != "disk" {
		t.Errorf("Expected the only backend to become the default, got %q", cfg.Storage.DefaultBackend)
	}
	if cfg.Storage.PresignTTL != backend.DefaultPresignTTL {
		t.Errorf("Expected presign ttl %v, got %v", backend.DefaultPresignTTL, cfg.Storage.PresignTTL)
	}
	if cfg.Metadata.Type != MetadataMemory {
		t.Errorf("Expected memory metadata store, got %q", cfg.Metadata.Type)
	}
	if cfg.Cleanup.Interval != cleanup.DefaultInterval || cfg.Cleanup.BatchSize != cleanup.DefaultBatchSize {
		t.Errorf("Unexpected cleanup defaults: %+v", cfg.Cleanup)
	}
	if !cfg.Cleanup.IsEnabled() {
		t.Error("Expected cleanup to be enabled by default")
	}
}

func TestLoad_UploadSettings(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
uploads:
  secret: "0123456789abcdef0123456789abcdef"
  minimum_throughput: 1MB
  minimum_window: 90s
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Uploads.MinimumThroughput != bytesize.MB {
		t.Errorf("Expected 1MB throughput, got %v", cfg.Uploads.MinimumThroughput)
	}
	deadline := cfg.UploadDeadline()
	if deadline.MinimumThroughput != 1_000_000 || deadline.MinimumWindow != 90*time.Second {
		t.Errorf("Unexpected deadline: %+v", deadline)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Expected no error when loading default config, got: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default API port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Storage.DefaultBackend != DefaultBackendID {
		t.Errorf("Expected default backend %q, got %q", DefaultBackendID, cfg.Storage.DefaultBackend)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid.yaml", `
logging:
  level: INFO
  invalid yaml here [[[
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "config.toml", `
[logging]
level = "WARN"
format = "json"

[server]
port = 8081
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load TOML config: %v", err)
	}

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected level 'WARN', got %q", cfg.Logging.Level)
	}
	if cfg.Server.Port != 8081 {
		t.Errorf("Expected port 8081, got %d", cfg.Server.Port)
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("STORAGEBOX_LOGGING_LEVEL", "ERROR")
	t.Setenv("STORAGEBOX_SERVER_PORT", "9091")

	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "INFO"
server:
  port: 8080
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if cfg.Server.Port != 9091 {
		t.Errorf("Expected port 9091 from env var, got %d", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "LOUD" },
			wantErr: "Level",
		},
		{
			name:    "unknown metadata type",
			mutate:  func(c *Config) { c.Metadata.Type = "etcd" },
			wantErr: "Type",
		},
		{
			name: "postgres without host",
			mutate: func(c *Config) {
				c.Metadata.Type = MetadataPostgres
				c.Metadata.Postgres.ApplyDefaults()
			},
			wantErr: "metadata.postgres",
		},
		{
			name:    "default backend not listed",
			mutate:  func(c *Config) { c.Storage.DefaultBackend = "elsewhere" },
			wantErr: "storage.default_backend",
		},
		{
			name: "duplicate backend ids",
			mutate: func(c *Config) {
				c.Storage.Backends = append(c.Storage.Backends, c.Storage.Backends[0])
			},
			wantErr: "duplicate backend id",
		},
		{
			name:    "unknown backend type",
			mutate:  func(c *Config) { c.Storage.Backends[0].Type = "ftp" },
			wantErr: "Type",
		},
		{
			name:    "short upload secret",
			mutate:  func(c *Config) { c.Uploads.Secret = "short" },
			wantErr: "uploads.secret",
		},
		{
			name:    "negative batch size",
			mutate:  func(c *Config) { c.Cleanup.BatchSize = -1 },
			wantErr: "BatchSize",
		},
		{
			name: "unknown profile type",
			mutate: func(c *Config) {
				c.Telemetry.Profiling.Enabled = true
				c.Telemetry.Profiling.ProfileTypes = []string{"cpu", "heap"}
			},
			wantErr: "profile_types",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Expected valid config, got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestGetConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if filepath.Base(GetConfigDir()) != "storagebox" {
		t.Errorf("Expected directory name 'storagebox', got %q", filepath.Base(GetConfigDir()))
	}
	if filepath.Base(GetDefaultConfigPath()) != "config.yaml" {
		t.Errorf("Expected filename 'config.yaml', got %q", filepath.Base(GetDefaultConfigPath()))
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "DEBUG"

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}
	if loaded.Logging.Level != "DEBUG" {
		t.Errorf("Expected level DEBUG after round trip, got %q", loaded.Logging.Level)
	}
	if loaded.Storage.DefaultBackend != cfg.Storage.DefaultBackend {
		t.Errorf("Expected default backend %q, got %q", cfg.Storage.DefaultBackend, loaded.Storage.DefaultBackend)
	}
}

func TestUploadSecretFallsBackToAuthSecret(t *testing.T) {
	t.Setenv(EnvUploadSecret, "")
	t.Setenv(api.EnvUserTokenSecret, "")

	cfg := GetDefaultConfig()
	cfg.Server.Auth.Secret = strings.Repeat("a", 32)
	cfg.Uploads.Secret = ""
	if got := cfg.UploadSecret(); got != cfg.Server.Auth.Secret {
		t.Errorf("UploadSecret() = %q, want the auth secret", got)
	}

	cfg.Uploads.Secret = strings.Repeat("u", 32)
	if got := cfg.UploadSecret(); got != cfg.Uploads.Secret {
		t.Errorf("UploadSecret() = %q, want the uploads secret", got)
	}
}
