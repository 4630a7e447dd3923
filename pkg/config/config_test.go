package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/filebox/pkg/log"
	"github.com/cuemby/filebox/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "filebox.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, storage.DefaultFileName, cfg.Store.File)
	assert.Equal(t, 3, cfg.Store.MaxAttempts)
	assert.True(t, cfg.Store.WatchReleases)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NotEmpty(t, cfg.DataDir)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Store, cfg.Store)
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
data_dir: `+dir+`
store:
  open_timeout: 250ms
  max_attempts: 5
log:
  level: debug
  json: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, 250*time.Millisecond, cfg.Store.OpenTimeout)
	assert.Equal(t, 5, cfg.Store.MaxAttempts)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)

	// Keys missing from the file keep their defaults
	assert.Equal(t, storage.DefaultFileName, cfg.Store.File)
	assert.Equal(t, 100*time.Millisecond, cfg.Store.RetryBackoff)
	assert.Equal(t, "127.0.0.1:9090", cfg.Metrics.Addr)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "store:\n  max_attempts: 5\nlog:\n  level: debug\n")
	t.Setenv("FILEBOX_DATA_DIR", "/srv/filebox")
	t.Setenv("FILEBOX_STORE_MAX_ATTEMPTS", "9")
	t.Setenv("FILEBOX_STORE_WATCH_RELEASES", "false")
	t.Setenv("FILEBOX_METRICS_INTERVAL", "5s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/filebox", cfg.DataDir)
	assert.Equal(t, 9, cfg.Store.MaxAttempts)
	assert.False(t, cfg.Store.WatchReleases)
	assert.Equal(t, 5*time.Second, cfg.Metrics.Interval)
	assert.Equal(t, "debug", cfg.Log.Level, "unset variables leave file values alone")
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = Load(writeConfig(t, "store: [not, a, map]"))
	assert.ErrorContains(t, err, "failed to parse config file")

	t.Setenv("FILEBOX_STORE_MAX_ATTEMPTS", "many")
	_, err = Load("")
	assert.ErrorContains(t, err, "failed to parse environment")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "no data dir", mutate: func(c *Config) { c.DataDir = "" }, wantErr: "data_dir"},
		{name: "file with directory", mutate: func(c *Config) { c.Store.File = "a/b.db" }, wantErr: "store.file"},
		{name: "zero timeout", mutate: func(c *Config) { c.Store.OpenTimeout = 0 }, wantErr: "open_timeout"},
		{name: "zero attempts", mutate: func(c *Config) { c.Store.MaxAttempts = 0 }, wantErr: "max_attempts"},
		{name: "negative backoff", mutate: func(c *Config) { c.Store.RetryBackoff = -time.Second }, wantErr: "retry_backoff"},
		{name: "bad level", mutate: func(c *Config) { c.Log.Level = "loud" }, wantErr: "log.level"},
		{name: "zero interval", mutate: func(c *Config) { c.Metrics.Interval = 0 }, wantErr: "metrics.interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.DataDir = ""
	cfg.Store.MaxAttempts = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data_dir")
	assert.Contains(t, err.Error(), "max_attempts")
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/data"
	cfg.Store.File = "box.db"
	cfg.Store.MaxAttempts = 7
	cfg.Log.Level = "warn"
	cfg.Log.JSON = true

	opts := cfg.StorageOptions()
	assert.Equal(t, filepath.Join("/data", "box.db"), opts.Path)
	assert.Equal(t, 7, opts.MaxAttempts)
	assert.Equal(t, cfg.Store.OpenTimeout, opts.OpenTimeout)

	lc := cfg.LogConfig()
	assert.Equal(t, log.WarnLevel, lc.Level)
	assert.True(t, lc.JSONOutput)
}
