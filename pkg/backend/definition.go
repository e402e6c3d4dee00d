package backend

import (
	"fmt"
	"time"
)

// Type names a backend implementation.
type Type string

const (
	TypeMemory     Type = "memory"
	TypeFilesystem Type = "filesystem"
	TypeS3         Type = "s3"
)

// DefaultPresignTTL is how long a direct download URL stays valid.
const DefaultPresignTTL = 120 * time.Second

// Definition describes one configured backend instance. Config holds the
// type-specific settings as decoded from YAML or from the control plane.
type Definition struct {
	ID     string         `mapstructure:"id" yaml:"id" json:"id" validate:"required"`
	Type   Type           `mapstructure:"type" yaml:"type" json:"type" validate:"required,oneof=memory filesystem s3"`
	Config map[string]any `mapstructure:"config" yaml:"config,omitempty" json:"config,omitempty"`
}

// String reads a string setting, returning def when it is absent.
func (d Definition) String(key, def string) string {
	if v, ok := d.Config[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Bool reads a boolean setting. YAML and JSON decoders both produce bool.
func (d Definition) Bool(key string) bool {
	v, _ := d.Config[key].(bool)
	return v
}

// Duration reads a duration setting written either as a Go duration string
// ("90s") or as a number of seconds.
func (d Definition) Duration(key string, def time.Duration) (time.Duration, error) {
	switch v := d.Config[key].(type) {
	case nil:
		return def, nil
	case string:
		if v == "" {
			return def, nil
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("backend %s: %s: %w", d.ID, key, err)
		}
		return parsed, nil
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case time.Duration:
		return v, nil
	}
	return 0, fmt.Errorf("backend %s: %s: unsupported value %v", d.ID, key, d.Config[key])
}
