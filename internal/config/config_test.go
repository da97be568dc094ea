package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	inTempDir(t)
	cfg, err := Load("missing")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 30*time.Second, cfg.CommandTimeout)
	assert.Equal(t, 800000, cfg.DefaultVideoBitrate)
	assert.Equal(t, "sim-1.0.0", cfg.Engine.Version)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	yaml := "mode: debug\nport: 9000\ncommand_timeout: 5s\nengine:\n  version: native-2\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), []byte(yaml), 0o644))
	t.Setenv("CALLPLANE_SEND_BUFFER", "8")
	t.Setenv("CALLPLANE_ENGINE_DATA_PORT", "7000")

	cfg, err := Load("test")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.CommandTimeout)
	assert.Equal(t, "native-2", cfg.Engine.Version)
	assert.Equal(t, 8, cfg.SendBuffer)
	assert.Equal(t, 7000, cfg.Engine.DataPort)
}

func TestLoadRejectsInvalid(t *testing.T) {
	inTempDir(t)
	t.Setenv("CALLPLANE_PORT", "0")
	_, err := Load("missing")
	assert.Error(t, err)
}

func TestEnvFallback(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.staging.yaml"), []byte("port: 9100\n"), 0o644))
	t.Setenv("CONFIG_ENV", "staging")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port)
}
