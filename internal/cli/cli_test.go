package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fastjson"

	"github.com/coffersTech/behavelog/internal/analysis"
	"github.com/coffersTech/behavelog/internal/model"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := `
level: debug
sinks: [store]
device:
  id: dev1
store:
  dir: ` + filepath.Join(dir, "segments") + `
  flush_threshold: 2
  wal: false
log:
  level: error
`
	path := filepath.Join(dir, "behavelog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0644))
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRoot()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.Execute()
	return out.String(), err
}

const input = `{"message":"login success","level":"info","category":"Behavior","timestamp":"2026-03-01T10:00:00Z"}
{"msg":"buy sword","level":"warning","category":"Behavior","timestamp":"2026-03-01T10:00:10Z"}

{"message":"noise","level":"trace"}
{"message":"upgrade sword","category":"Behavior","scene":"Town","timestamp":"2026-03-01T10:00:20Z"}
plain text line
`

func TestPipeThenQuery(t *testing.T) {
	cfg := writeConfig(t)
	_, err := run(t, input, "--config", cfg, "pipe")
	require.NoError(t, err)

	out, err := run(t, "", "--config", cfg, "--json", "query")
	require.NoError(t, err)
	var recs []model.Record
	require.NoError(t, json.Unmarshal([]byte(out), &recs))
	require.Len(t, recs, 4, "blank and trace lines are not stored")
	for _, r := range recs {
		assert.Equal(t, "dev1", r.DeviceID)
		assert.Equal(t, "pipe", r.Source)
	}

	out, err = run(t, "", "--config", cfg, "--json", "query", "level>=warning")
	require.NoError(t, err)
	recs = nil
	require.NoError(t, json.Unmarshal([]byte(out), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "buy sword", recs[0].Message)

	out, err = run(t, "", "--config", cfg, "query", "--category", "Behavior", "--limit", "1")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.Contains(t, out, "upgrade sword")
}

func TestAnalyzeAndSessions(t *testing.T) {
	cfg := writeConfig(t)
	_, err := run(t, input, "--config", cfg, "pipe")
	require.NoError(t, err)

	out, err := run(t, "", "--config", cfg, "--json", "analyze", "--category", "Behavior")
	require.NoError(t, err)
	var report analysis.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 3, report.Stats.Total)
	require.Len(t, report.Transitions, 2)
	assert.Equal(t, analysis.TransitionUpgradeAfterPurchase, report.Transitions[1].Kind)

	out, err = run(t, "", "--config", cfg, "analyze")
	require.NoError(t, err)
	assert.Contains(t, out, "Statistics")
	assert.Contains(t, out, "upgrade-after-purchase")

	out, err = run(t, "", "--config", cfg, "--json", "sessions")
	require.NoError(t, err)
	var keys []string
	require.NoError(t, json.Unmarshal([]byte(out), &keys))
	require.NotEmpty(t, keys)
	for _, k := range keys {
		assert.True(t, strings.HasPrefix(k, "dev1_"), k)
	}

	out, err = run(t, "", "--config", cfg, "segments")
	require.NoError(t, err)
	assert.Contains(t, out, "2 segments")
}

func TestQueryRejectsBadFlags(t *testing.T) {
	cfg := writeConfig(t)
	_, err := run(t, "", "--config", cfg, "query", "--level", "loud")
	assert.Error(t, err)
	_, err = run(t, "", "--config", cfg, "query", "--start", "last tuesday")
	assert.Error(t, err)
	_, err = run(t, "", "--config", cfg, "query", "level>")
	assert.Error(t, err)
}

func TestParseLine(t *testing.T) {
	var p fastjson.Parser

	_, ok := parseLine(&p, "   ", model.LevelInfo, "General")
	assert.False(t, ok)

	rec, ok := parseLine(&p, "hello world", model.LevelWarning, "Net")
	require.True(t, ok)
	assert.Equal(t, model.Record{Message: "hello world", Level: model.LevelWarning, Category: "Net"}, rec)

	rec, ok = parseLine(&p, `{"msg":"boss fight","level":"fatal","device_id":"d9","timestamp":"2026-01-02T03:04:05Z"}`, model.LevelInfo, "General")
	require.True(t, ok)
	assert.Equal(t, "boss fight", rec.Message)
	assert.Equal(t, model.LevelCritical, rec.Level)
	assert.Equal(t, "General", rec.Category)
	assert.Equal(t, "d9", rec.DeviceID)
	assert.True(t, rec.Timestamp.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))

	rec, ok = parseLine(&p, `{"level":"error"}`, model.LevelInfo, "General")
	require.True(t, ok)
	assert.Equal(t, `{"level":"error"}`, rec.Message)
	assert.Equal(t, model.LevelError, rec.Level)

	rec, ok = parseLine(&p, `{broken`, model.LevelInfo, "General")
	require.True(t, ok)
	assert.Equal(t, "{broken", rec.Message)
}

func TestParseBound(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	got, err := parseBound("2h", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-2*time.Hour), got)

	got, err = parseBound("", now)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	_, err = parseBound("soon", now)
	assert.Error(t, err)
}
