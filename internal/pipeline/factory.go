package pipeline

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/coffersTech/behavelog/internal/config"
	"github.com/coffersTech/behavelog/internal/segstore"
	"github.com/coffersTech/behavelog/internal/sink"
	"github.com/coffersTech/behavelog/internal/sink/console"
	"github.com/coffersTech/behavelog/internal/sink/netsink"
	"github.com/coffersTech/behavelog/internal/sink/rotfile"
)

// Env carries what sink constructors need beyond the config.
type Env struct {
	Logger *slog.Logger
	Stdout io.Writer
	Stderr io.Writer
}

// Factory builds one sink from the configuration snapshot.
type Factory func(cfg config.Config, env Env) (sink.Sink, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[sink.Kind]Factory{
		sink.KindConsole: newConsole,
		sink.KindFile:    newRotatingFile,
		sink.KindNetwork: newNetwork,
		sink.KindStore:   newStore,
	}
)

// Register replaces the constructor for kind.
func Register(kind sink.Kind, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[kind] = f
}

// Build constructs the sink for kind.
func Build(kind sink.Kind, cfg config.Config, env Env) (sink.Sink, error) {
	factoriesMu.RLock()
	f, ok := factories[kind]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no factory for sink kind %q", kind)
	}
	return f(cfg, env)
}

func newConsole(cfg config.Config, env Env) (sink.Sink, error) {
	return console.New(console.Options{
		Stdout: env.Stdout,
		Stderr: env.Stderr,
		Color:  cfg.Console.Color,
	}), nil
}

func newRotatingFile(cfg config.Config, env Env) (sink.Sink, error) {
	size, err := cfg.File.MaxSizeBytes()
	if err != nil {
		return nil, err
	}
	return rotfile.New(rotfile.Options{
		Dir:      cfg.File.Dir,
		BaseName: cfg.File.BaseName,
		MaxSize:  size,
		MaxFiles: cfg.File.MaxFiles,
		Logger:   env.Logger,
	})
}

func newNetwork(cfg config.Config, env Env) (sink.Sink, error) {
	return netsink.New(netsink.Options{
		Endpoint:      cfg.Network.Endpoint,
		BatchSize:     cfg.Network.BatchSize,
		FlushInterval: seconds(cfg.Network.FlushIntervalSeconds),
		Timeout:       seconds(cfg.Network.TimeoutSeconds),
		FallbackPath:  cfg.Network.FallbackPath,
		DeviceID:      cfg.Device.ID,
		AppVersion:    cfg.Device.AppVersion,
		Platform:      cfg.Device.Platform,
		Logger:        env.Logger,
	}), nil
}

func newStore(cfg config.Config, env Env) (sink.Sink, error) {
	return segstore.Open(StoreOptions(cfg, env.Logger))
}

// StoreOptions maps the store section of cfg onto segstore options.
func StoreOptions(cfg config.Config, logger *slog.Logger) segstore.Options {
	return segstore.Options{
		Dir:            cfg.Store.Dir,
		FlushThreshold: cfg.Store.FlushThreshold,
		Retention:      time.Duration(cfg.Store.RetentionDays) * 24 * time.Hour,
		Compress:       cfg.Store.Compress,
		WAL:            cfg.Store.WAL,
		Logger:         logger,
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
