package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManagerDefaultsOnlyWhenFileMissing(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(filepath.Join(dir, "does-not-exist.yaml"))
	require.NoError(t, err)
	defer m.Close()

	cfg := m.GetConfig()
	assert.Equal(t, "info", cfg.LogLevel)
	assert.EqualValues(t, 4, cfg.ReplayWorkers)
	assert.EqualValues(t, 91500, cfg.Schedule.OpenCallBgn)
	assert.EqualValues(t, 150500, cfg.Schedule.AllEnd)
}

func TestNewManagerLoadsFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "axob.yaml")
	content := "log_level: debug\nreplay_parallel: true\nreplay_workers: 8\nschedule:\n  open_call_bgn: 91000\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	m, err := NewManager(path)
	require.NoError(t, err)
	defer m.Close()

	cfg := m.GetConfig()
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.ReplayParallel)
	assert.EqualValues(t, 8, cfg.ReplayWorkers)
	assert.EqualValues(t, 91000, cfg.Schedule.OpenCallBgn)
	// Fields absent from the override file keep their defaults.
	assert.EqualValues(t, 150500, cfg.Schedule.AllEnd)
}

func TestRegisterCallbackFiresOnReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "axob.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: warn\n"), 0o644))

	m, err := NewManager(path)
	require.NoError(t, err)
	defer m.Close()

	var got *LOBConfig
	m.RegisterCallback(func(cfg *LOBConfig) { got = cfg })

	require.NoError(t, m.loadConfig())
	require.NotNil(t, got)
	assert.Equal(t, "warn", got.LogLevel)
}
