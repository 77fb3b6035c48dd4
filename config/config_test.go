package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "cadence.db", cfg.Database.Path)
	assert.Equal(t, ":8480", cfg.Server.Addr)
	assert.Equal(t, 300, cfg.Import.LockTimeoutSeconds)
	assert.Equal(t, 16, cfg.Nav.MaxDepth)
	assert.Empty(t, cfg.Registry.Path)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cadence.toml")
	content := `
[database]
path = "/tmp/test-cadence.db"

[server]
addr = ":9999"

[import]
lock_timeout_seconds = 60
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/test-cadence.db", cfg.Database.Path)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, 60, cfg.Import.LockTimeoutSeconds)
	// Unset values fall back to defaults
	assert.Equal(t, 16, cfg.Nav.MaxDepth)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	t.Setenv("CADENCE_DATABASE_PATH", "/tmp/env-cadence.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/env-cadence.db", cfg.Database.Path)
}
