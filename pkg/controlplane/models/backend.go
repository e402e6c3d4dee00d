package models

import (
	"encoding/json"
	"time"

	"github.com/marmos91/storagebox/pkg/backend"
)

// BackendConfig is a registered storage backend. ID is the identifier
// recorded on every file stored through it, so it never changes once files
// reference it.
type BackendConfig struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Type      string    `gorm:"not null;size:50" json:"type"` // memory, filesystem, s3
	Config    string    `gorm:"type:text" json:"-"`           // JSON blob for type-specific config
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Parsed configuration (not stored in DB)
	ParsedConfig map[string]any `gorm:"-" json:"config,omitempty"`
}

// TableName returns the table name for BackendConfig.
func (BackendConfig) TableName() string {
	return "backends"
}

// GetConfig returns the parsed configuration.
func (b *BackendConfig) GetConfig() (map[string]any, error) {
	if b.ParsedConfig != nil {
		return b.ParsedConfig, nil
	}
	if b.Config == "" {
		return make(map[string]any), nil
	}
	var cfg map[string]any
	if err := json.Unmarshal([]byte(b.Config), &cfg); err != nil {
		return nil, err
	}
	b.ParsedConfig = cfg
	return cfg, nil
}

// SetConfig sets the configuration from a map.
func (b *BackendConfig) SetConfig(cfg map[string]any) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	b.Config = string(data)
	b.ParsedConfig = cfg
	return nil
}

// Definition converts the row into a backend definition.
func (b *BackendConfig) Definition() (backend.Definition, error) {
	cfg, err := b.GetConfig()
	if err != nil {
		return backend.Definition{}, err
	}
	return backend.Definition{ID: b.ID, Type: backend.Type(b.Type), Config: cfg}, nil
}

// NewBackendConfig builds a row from a definition.
func NewBackendConfig(def backend.Definition) (*BackendConfig, error) {
	b := &BackendConfig{ID: def.ID, Type: string(def.Type)}
	cfg := def.Config
	if cfg == nil {
		cfg = map[string]any{}
	}
	if err := b.SetConfig(cfg); err != nil {
		return nil, err
	}
	return b, nil
}
