package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "127.0.0.1:7878", cfg.Listen)
	assert.Equal(t, "privatekey.srt", cfg.Keys.PrivateFile)
	assert.Equal(t, "publickey.pub", cfg.Keys.PublicFile)
	assert.Equal(t, "authorized_keys", cfg.AuthorizedKeys.Path)
	assert.True(t, cfg.AuthorizedKeys.Enforce)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "/healthz", cfg.Health.Path)
}

func TestLoadFromFileYAML(t *testing.T) {
	body := `
listen: "0.0.0.0:9000"
keys:
  private_file: /etc/kyberlink/id.srt
authorized_keys:
  path: /etc/kyberlink/authorized_keys
  enforce: true
logging:
  level: debug
metrics:
  enabled: true
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Listen)
	assert.Equal(t, "/etc/kyberlink/id.srt", cfg.Keys.PrivateFile)
	// Unset fields fall back to defaults.
	assert.Equal(t, "publickey.pub", cfg.Keys.PublicFile)
	assert.Equal(t, "/etc/kyberlink/authorized_keys", cfg.AuthorizedKeys.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadFromFileEnvSubstitution(t *testing.T) {
	t.Setenv("KYBERLINK_TEST_ADDR", "10.0.0.1:4444")

	body := `
listen: "${KYBERLINK_TEST_ADDR}"
logging:
  level: "${KYBERLINK_TEST_LEVEL:warn}"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.1:4444", cfg.Listen)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadFromFileJSON(t *testing.T) {
	body := `{"listen": "127.0.0.1:5555", "logging": {"level": "error"}}`
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:5555", cfg.Listen)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Listen = "192.168.1.5:7878"
	cfg.Metrics.Enabled = true

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, SaveToFile(cfg, path))

	got, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Listen, got.Listen)
	assert.True(t, got.Metrics.Enabled)
}
