package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coffersTech/behavelog/internal/model"
	"github.com/coffersTech/behavelog/internal/sink"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func noEnv(string) (string, bool) { return "", false }

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, model.LevelInfo, cfg.Level)
	assert.Equal(t, 100, cfg.Store.FlushThreshold)
	assert.Equal(t, 7, cfg.Store.RetentionDays)
	assert.Equal(t, 50, cfg.Network.BatchSize)
	assert.Equal(t, []sink.Kind{sink.KindConsole}, cfg.SinkKinds())
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "cfg.yaml", `
level: warning
stack_trace: true
sinks: [console, file, store, store]
categories:
  - name: Combat
    min_level: error
file:
  max_size: 2MB
  max_files: 3
store:
  flush_threshold: 10
  compress: true
`)
	t.Setenv("BEHAVELOG_LEVEL", "")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, model.LevelWarning, cfg.Level)
	assert.True(t, cfg.StackTrace)
	require.Len(t, cfg.Categories, 1)
	assert.Equal(t, model.LevelError, cfg.Categories[0].MinLevel)
	assert.Equal(t, []sink.Kind{sink.KindConsole, sink.KindFile, sink.KindStore}, cfg.SinkKinds())
	assert.Equal(t, 10, cfg.Store.FlushThreshold)
	assert.True(t, cfg.Store.Compress)
	// untouched fields keep defaults
	assert.Equal(t, 7, cfg.Store.RetentionDays)

	n, err := cfg.File.MaxSizeBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(2_000_000), n)
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "cfg.toml", `
level = "debug"
sinks = ["network"]

[network]
endpoint = "http://collector.local/logs"
batch_size = 20
flush_interval_seconds = 1.5
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, model.LevelDebug, cfg.Level)
	assert.Equal(t, "http://collector.local/logs", cfg.Network.Endpoint)
	assert.Equal(t, 20, cfg.Network.BatchSize)
	assert.InDelta(t, 1.5, cfg.Network.FlushIntervalSeconds, 1e-9)
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "cfg.json", `{"level":"Error","sinks":["database"],"store":{"retention_days":3}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, model.LevelError, cfg.Level)
	assert.True(t, cfg.HasSink(sink.KindStore))
	assert.Equal(t, 3, cfg.Store.RetentionDays)
}

func TestLoadRejectsBadLevel(t *testing.T) {
	path := writeFile(t, "cfg.yaml", "level: loud\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Sinks = []string{"kafka", "file"}
	cfg.File.MaxSize = "lots"
	cfg.Store.FlushThreshold = 0
	cfg.Categories = []model.CategoryRule{{Name: "A"}, {Name: "A"}}

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "kafka")
	assert.Contains(t, msg, "file.max_size")
	assert.Contains(t, msg, "flush_threshold")
	assert.Contains(t, msg, "duplicate category")
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"BEHAVELOG_LEVEL":            "critical",
		"BEHAVELOG_SINKS":            "console, store",
		"BEHAVELOG_NETWORK_ENDPOINT": "http://x",
		"BEHAVELOG_STORE_DIR":        "/var/lib/behavelog",
	}
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))
	assert.Equal(t, model.LevelCritical, cfg.Level)
	assert.Equal(t, []string{"console", "store"}, cfg.Sinks)
	assert.Equal(t, "http://x", cfg.Network.Endpoint)
	assert.Equal(t, "/var/lib/behavelog", cfg.Store.Dir)

	bad := Default()
	assert.Error(t, bad.ApplyEnv(func(k string) (string, bool) {
		if k == "BEHAVELOG_LEVEL" {
			return "nope", true
		}
		return noEnv(k)
	}))
}

func TestEnsureDeviceID(t *testing.T) {
	dir := t.TempDir()

	cfg := Default()
	id := cfg.EnsureDeviceID(dir)
	require.NotEmpty(t, id)

	other := Default()
	assert.Equal(t, id, other.EnsureDeviceID(dir), "id must persist across loads")

	fixed := Default()
	fixed.Device.ID = "device-7"
	assert.Equal(t, "device-7", fixed.EnsureDeviceID(dir))
}
