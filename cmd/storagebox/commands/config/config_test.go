package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/storagebox/pkg/backend"
	"github.com/marmos91/storagebox/pkg/config"
)

func TestSchemaUsesYAMLNames(t *testing.T) {
	raw, err := json.Marshal(Schema())
	require.NoError(t, err)

	var doc struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))

	for _, key := range []string{"logging", "server", "metadata", "storage", "uploads", "cleanup"} {
		assert.Contains(t, doc.Properties, key)
	}
}

func TestMaskSecrets(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Server.Auth.Secret = "auth-secret"
	cfg.Uploads.Secret = "upload-secret"
	cfg.Storage.Backends = []backend.Definition{{
		ID:     "archive",
		Type:   backend.TypeS3,
		Config: map[string]any{"bucket": "files", "secret_access_key": "hunter2"},
	}}

	maskSecrets(cfg)

	assert.Equal(t, redacted, cfg.Server.Auth.Secret)
	assert.Equal(t, redacted, cfg.Uploads.Secret)
	assert.Equal(t, "", cfg.Database.Postgres.Password)
	assert.Equal(t, redacted, cfg.Storage.Backends[0].Config["secret_access_key"])
	assert.Equal(t, "files", cfg.Storage.Backends[0].Config["bucket"])
}
