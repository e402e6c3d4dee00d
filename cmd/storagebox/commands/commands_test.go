package commands

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/storagebox/pkg/api/auth"
	"github.com/marmos91/storagebox/pkg/config"
	"github.com/marmos91/storagebox/pkg/identity"
)

func TestParseSettings(t *testing.T) {
	settings, err := parseSettings([]string{"bucket=files", "download_urls=true", "force_path_style=false", "key_prefix=a=b"})
	require.NoError(t, err)

	assert.Equal(t, "files", settings["bucket"])
	assert.Equal(t, true, settings["download_urls"])
	assert.Equal(t, false, settings["force_path_style"])
	assert.Equal(t, "a=b", settings["key_prefix"])

	_, err = parseSettings([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseSettings([]string{"=x"})
	assert.Error(t, err)
}

func TestParseAttributes(t *testing.T) {
	attrs, err := parseAttributes([]string{"group=staff", "group=editors", "dept=eng"})
	require.NoError(t, err)
	assert.Equal(t, []string{"staff", "editors"}, attrs["group"])
	assert.Equal(t, []string{"eng"}, attrs["dept"])

	attrs, err = parseAttributes(nil)
	require.NoError(t, err)
	assert.Nil(t, attrs)

	_, err = parseAttributes([]string{"group"})
	assert.Error(t, err)
}

func TestFormatSettingsRedacted(t *testing.T) {
	cfg := map[string]any{"bucket": "files", "secret_access_key": "hunter2", "download_urls": true}
	redact(cfg)
	assert.Equal(t, "bucket=files download_urls=true secret_access_key=********", formatSettings(cfg))
}

func TestTokenIssue(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, config.InitConfigToPath(path, false))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	var out bytes.Buffer
	root := GetRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"token", "issue", "--config", path, "--subject", "alice", "--cap", identity.CapabilityCreateFilesystems, "--attr", "group=staff"})
	require.NoError(t, root.Execute())

	tokens, err := auth.NewTokenService(cfg.Server.Auth.GetSecret())
	require.NoError(t, err)

	claims, err := tokens.Validate(strings.TrimSpace(out.String()))
	require.NoError(t, err)

	user := claims.UserContext()
	assert.Equal(t, "storagebox", user.Identification.Issuer)
	assert.Equal(t, "alice", user.Identification.Subject)
	assert.True(t, user.CanCreateFilesystems)
	assert.Equal(t, []string{"staff"}, claims.Attributes["group"])
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	root := GetRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "storagebox dev")
}
