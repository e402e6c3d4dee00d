package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
)

const configHeader = `# storagebox configuration file
#
# Every value can be overridden with an environment variable named after
# its path, e.g. STORAGEBOX_LOGGING_LEVEL=DEBUG or
# STORAGEBOX_SERVER_PORT=9000. Secrets may also be supplied through
# STORAGEBOX_AUTH_SECRET and STORAGEBOX_UPLOADS_SECRET.
#
# Generate the JSON schema for editor completion with:
#   storagebox config schema --output config.schema.json

`

// InitConfig writes a default configuration to the default location and
// returns its path. It refuses to overwrite an existing file unless force
// is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a default configuration with freshly generated
// secrets to path.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
		}
	}

	cfg := GetDefaultConfig()

	authSecret, err := generateSecret()
	if err != nil {
		return err
	}
	uploadSecret, err := generateSecret()
	if err != nil {
		return err
	}
	cfg.Server.Auth.Secret = authSecret
	cfg.Uploads.Secret = uploadSecret

	return writeYAML(path, configHeader, cfg)
}

// generateSecret returns 32 random bytes hex encoded.
func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
