package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json5"))
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.Scheduler.PollIntervalSeconds)
	assert.Equal(t, "agenthost-worker:latest", cfg.Worker.Image)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	require.NoError(t, os.WriteFile(path, []byte(`{
		// trailing comma and comment support via json5
		scheduler: { poll_interval_seconds: 30 },
		worker: { max_concurrent: 8 },
	}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Scheduler.PollIntervalSeconds)
	assert.Equal(t, 8, cfg.Worker.MaxConcurrent)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	require.NoError(t, os.WriteFile(path, []byte(`{ worker: { max_concurrent: 8 } }`), 0644))

	t.Setenv("AGENTHOST_WORKER_MAX_CONCURRENT", "16")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Worker.MaxConcurrent)
}

func TestLoad_APIKeyNeverReadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	require.NoError(t, os.WriteFile(path, []byte(`{ providers: { anthropic: { model: "claude-x" } } }`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Providers.Anthropic.APIKey)
}

func TestFlexibleStringSlice_AcceptsStringsAndNumbers(t *testing.T) {
	var f FlexibleStringSlice
	require.NoError(t, f.UnmarshalJSON([]byte(`["reset", 123]`)))
	assert.Equal(t, FlexibleStringSlice{"reset", "123"}, f)
}

func TestHash_StableForSameContent(t *testing.T) {
	a := Default()
	b := Default()
	assert.Equal(t, a.Hash(), b.Hash())
}

func TestExpandHome(t *testing.T) {
	home, _ := os.UserHomeDir()
	assert.Equal(t, home+"/foo", ExpandHome("~/foo"))
	assert.Equal(t, "/abs/path", ExpandHome("/abs/path"))
}
