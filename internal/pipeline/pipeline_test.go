package pipeline

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coffersTech/behavelog/internal/config"
	"github.com/coffersTech/behavelog/internal/logging"
	"github.com/coffersTech/behavelog/internal/model"
	"github.com/coffersTech/behavelog/internal/segstore"
	"github.com/coffersTech/behavelog/internal/sink"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Level = model.LevelDebug
	cfg.Device.ID = "dev-42"
	cfg.Device.AppVersion = "2.1.0"
	return cfg
}

func newTestPipeline(t *testing.T, cfg config.Config) (*Pipeline, *recorder) {
	t.Helper()
	rec := &recorder{}
	p := NewWithSinks(cfg, Options{Env: Env{Logger: logging.Discard()}, Source: "Player"},
		Binding{Kind: sink.KindConsole, Sink: rec})
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p, rec
}

func TestLogStampsRecords(t *testing.T) {
	p, rec := newTestPipeline(t, testConfig())
	p.SetScene("Town")

	assert.Equal(t, []sink.Kind{sink.KindConsole}, p.Info("shop opened", ""))
	assert.Empty(t, p.Trace("too chatty", "AI"))
	require.NoError(t, p.Flush(context.Background()))

	got := rec.records()
	require.Len(t, got, 1)
	r := got[0]
	assert.Equal(t, "shop opened", r.Message)
	assert.Equal(t, model.DefaultCategory, r.Category)
	assert.Equal(t, "dev-42", r.DeviceID)
	assert.Equal(t, "2.1.0", r.AppVersion)
	assert.Equal(t, "Town", r.Scene)
	assert.Equal(t, "Player", r.Source)
	assert.NotEmpty(t, r.ID)
	assert.Empty(t, r.StackTrace)
}

func TestCategoryRules(t *testing.T) {
	cfg := testConfig()
	cfg.Categories = []model.CategoryRule{{Name: "AI", MinLevel: model.LevelError}}
	p, rec := newTestPipeline(t, cfg)

	p.Warn("path blocked", "AI")
	p.Error("nav mesh missing", "AI")
	p.Warn("low memory", "Core")
	require.NoError(t, p.Flush(context.Background()))
	assert.Equal(t, []string{"nav mesh missing", "low memory"}, rec.messages())
}

func TestLevelHelpers(t *testing.T) {
	cfg := testConfig()
	cfg.Level = model.LevelTrace
	p, rec := newTestPipeline(t, cfg)

	p.Trace("t", "")
	p.Debug("d", "")
	p.Info("i", "")
	p.Warn("w", "")
	p.Error("e", "")
	p.Critical("c", "")
	require.NoError(t, p.Flush(context.Background()))

	got := rec.records()
	require.Len(t, got, 6)
	for i, lvl := range model.Levels() {
		assert.Equal(t, lvl, got[i].Level)
	}
}

func TestLogBehavior(t *testing.T) {
	p, rec := newTestPipeline(t, testConfig())
	p.LogBehavior("Purchase", "sword x1")
	require.NoError(t, p.Flush(context.Background()))

	got := rec.records()
	require.Len(t, got, 1)
	assert.Equal(t, "BEHAVIOR: Purchase - sword x1", got[0].Message)
	assert.Equal(t, BehaviorCategory, got[0].Category)
	assert.Equal(t, model.LevelInfo, got[0].Level)
}

func TestMarkPerformance(t *testing.T) {
	p, rec := newTestPipeline(t, testConfig())

	assert.Empty(t, p.MarkPerformance("Update", 10*time.Millisecond, ""))
	assert.Empty(t, p.MarkPerformance("Update", FrameBudget, ""))
	p.MarkPerformance("LoadScene", 42*time.Millisecond, "")
	require.NoError(t, p.Flush(context.Background()))

	got := rec.records()
	require.Len(t, got, 1)
	assert.Equal(t, model.LevelWarning, got[0].Level)
	assert.Equal(t, PerformanceCategory, got[0].Category)
	assert.Equal(t, "performance warning: LoadScene took 42.0ms", got[0].Message)
}

func TestStackTraceCapture(t *testing.T) {
	cfg := testConfig()
	cfg.StackTrace = true
	p, rec := newTestPipeline(t, cfg)

	p.Error("null ref", "Core")
	require.NoError(t, p.Flush(context.Background()))
	got := rec.records()
	require.Len(t, got, 1)
	assert.Contains(t, got[0].StackTrace, "TestStackTraceCapture")
	assert.NotContains(t, got[0].StackTrace, "(*Pipeline).Log")
}

func TestSlogHandler(t *testing.T) {
	p, rec := newTestPipeline(t, testConfig())
	log := slog.New(p.Handler("Net")).With("peer", "10.0.0.2")

	log.Info("connected", "scene", "Lobby", "attempt", 2)
	log.Debug("handshake")
	log.Log(context.Background(), LevelCritical, "socket lost", "category", "Fatal")
	log.WithGroup("tls").Warn("weak cipher", "suite", "RC4")
	require.NoError(t, p.Flush(context.Background()))

	got := rec.records()
	require.Len(t, got, 4)
	assert.Equal(t, "connected peer=10.0.0.2 attempt=2", got[0].Message)
	assert.Equal(t, "Lobby", got[0].Scene)
	assert.Equal(t, "Net", got[0].Category)
	assert.Equal(t, model.LevelDebug, got[1].Level)
	assert.Equal(t, model.LevelCritical, got[2].Level)
	assert.Equal(t, "Fatal", got[2].Category)
	assert.Equal(t, "weak cipher peer=10.0.0.2 tls.suite=RC4", got[3].Message)
	assert.Equal(t, model.LevelWarning, got[3].Level)

	cfg := testConfig()
	cfg.Level = model.LevelError
	strict, _ := newTestPipeline(t, cfg)
	assert.False(t, strict.Handler("").Enabled(context.Background(), slog.LevelWarn))
	assert.True(t, strict.Handler("").Enabled(context.Background(), slog.LevelError))
}

func TestFromSlogLevel(t *testing.T) {
	assert.Equal(t, model.LevelTrace, FromSlogLevel(slog.LevelDebug-4))
	assert.Equal(t, model.LevelDebug, FromSlogLevel(slog.LevelDebug))
	assert.Equal(t, model.LevelInfo, FromSlogLevel(slog.LevelInfo))
	assert.Equal(t, model.LevelWarning, FromSlogLevel(slog.LevelWarn))
	assert.Equal(t, model.LevelError, FromSlogLevel(slog.LevelError))
	assert.Equal(t, model.LevelCritical, FromSlogLevel(LevelCritical))
}

func TestNewBuildsConfiguredSinks(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Sinks = []string{"console", "store", "network"}
	cfg.Console.Color = false
	cfg.Store.Dir = dir
	cfg.Store.FlushThreshold = 2

	var out, errOut bytes.Buffer
	p, err := New(cfg, Options{Env: Env{Logger: logging.Discard(), Stdout: &out, Stderr: &errOut}})
	require.NoError(t, err)
	require.NotNil(t, p.Store())
	assert.NotEmpty(t, p.Config().Device.ID, "device id is generated")
	assert.Equal(t, []sink.Kind{sink.KindConsole, sink.KindStore, sink.KindNetwork}, p.Router().Kinds())

	p.Info("level loaded", "Load")
	p.Error("asset missing", "Load")
	p.Debug("hidden", "Load")
	require.NoError(t, p.Close(context.Background()))

	assert.Contains(t, out.String(), "[Info] [Load] level loaded")
	assert.Contains(t, errOut.String(), "[Error] [Load] asset missing")
	assert.NotContains(t, out.String()+errOut.String(), "hidden")

	got, err := p.Store().Query(context.Background(), segstore.Query{Category: "Load"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "asset missing", got[0].Message)
}

func TestNewFailsWhenNoSinkBuilds(t *testing.T) {
	blocker := t.TempDir() + "/file"
	require.NoError(t, writeFile(blocker))

	cfg := config.Default()
	cfg.Sinks = []string{"store"}
	cfg.Store.Dir = blocker + "/segments"
	cfg.Device.ID = "fixed"
	_, err := New(cfg, Options{Env: Env{Logger: logging.Discard()}})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "no sink could be built"))
}
