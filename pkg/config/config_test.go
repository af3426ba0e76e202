package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"node_uri": "https://example.org/client",
		"listen_address": ":9000",
		"system_db_path": "/usr/share/capcache/db",
		"user_db_path": "/home/alice/.cache/capcache",
		"identity": {"category": "client", "type": "pc", "name": "alice"}
	}`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/client", cfg.NodeURI)
	assert.Equal(t, ":9000", cfg.ListenAddress)
	assert.Equal(t, "/usr/share/capcache/db", cfg.SystemDBPath)
	assert.Equal(t, "/home/alice/.cache/capcache", cfg.UserDBPath)
	assert.Equal(t, "alice", cfg.Identity.Name)

	// Omitted fields fall back to defaults.
	assert.Equal(t, "sha-1", cfg.HashAlgorithm)
}

func TestLoadConfigDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://capcache.example/", cfg.NodeURI)
	assert.Equal(t, ":7395", cfg.ListenAddress)
	assert.Equal(t, "sha-1", cfg.HashAlgorithm)
	assert.Equal(t, "client", cfg.Identity.Category)
	assert.Equal(t, "bot", cfg.Identity.Type)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadConfigInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CAPCACHE_NODE_URI", "https://example.org/bot")
	t.Setenv("CAPCACHE_LISTEN_ADDRESS", ":9100")
	t.Setenv("CAPCACHE_HASH", "sha-256")
	t.Setenv("CAPCACHE_IDENTITY_NAME", "envbot")

	cfg := LoadFromEnv()
	assert.Equal(t, "https://example.org/bot", cfg.NodeURI)
	assert.Equal(t, ":9100", cfg.ListenAddress)
	assert.Equal(t, "sha-256", cfg.HashAlgorithm)
	assert.Equal(t, "envbot", cfg.Identity.Name)
	assert.Equal(t, "client", cfg.Identity.Category)
}
