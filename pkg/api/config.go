package api

import (
	"os"
	"time"

	"github.com/marmos91/storagebox/internal/logger"
)

// EnvUserTokenSecret is the environment variable holding the HMAC secret of
// user tokens. It takes precedence over the config file.
const EnvUserTokenSecret = "STORAGEBOX_AUTH_SECRET"

// APIConfig configures the REST API HTTP server.
type APIConfig struct {
	// Port is the HTTP port for the API endpoints.
	// Default: 8080
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// ReadHeaderTimeout bounds reading request headers.
	// Default: 10s
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`

	// ReadTimeout bounds reading a whole request including the body. Zero
	// means no limit, which upload bodies need; the upload deadline bounds
	// them instead.
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout bounds writing the response. Zero means no limit.
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle limit.
	// Default: 60s
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// Auth configures user token validation.
	Auth AuthConfig `mapstructure:"auth" yaml:"auth"`
}

// AuthConfig configures user tokens.
type AuthConfig struct {
	// Secret is the HMAC key user tokens are signed with. Must be at least
	// 32 characters. STORAGEBOX_AUTH_SECRET overrides it.
	Secret string `mapstructure:"secret" yaml:"secret"`

	// CookieName is the cookie carrying the token.
	// Default: "user"
	CookieName string `mapstructure:"cookie_name" yaml:"cookie_name"`
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *APIConfig) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.Auth.CookieName == "" {
		c.Auth.CookieName = "user"
	}
}

// GetSecret returns the user token secret, preferring the environment variable.
func (c *AuthConfig) GetSecret() string {
	envSecret := os.Getenv(EnvUserTokenSecret)
	if envSecret != "" {
		if c.Secret != "" && c.Secret != envSecret {
			logger.Warn("User token secret from environment variable overrides config file value",
				"env_var", EnvUserTokenSecret)
		}
		return envSecret
	}
	return c.Secret
}
