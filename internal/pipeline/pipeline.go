// Package pipeline composes the router and the configured sinks into the
// logging entry point used by hosts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coffersTech/behavelog/internal/config"
	"github.com/coffersTech/behavelog/internal/logging"
	"github.com/coffersTech/behavelog/internal/model"
	"github.com/coffersTech/behavelog/internal/segstore"
	"github.com/coffersTech/behavelog/internal/sink"
)

const (
	// BehaviorCategory is the category of LogBehavior records.
	BehaviorCategory = "Behavior"
	// PerformanceCategory is MarkPerformance's default category.
	PerformanceCategory = "Performance"
	// FrameBudget is one frame at 60 fps; slower markers are reported.
	FrameBudget = 16700 * time.Microsecond
)

// Options configures New.
type Options struct {
	Env
	// Source is stamped on records created through the pipeline.
	Source string
	// BacklogWarning is the per-sink backlog that triggers a warning.
	BacklogWarning int
}

// Pipeline is the host-facing logger.
type Pipeline struct {
	cfg    config.Config
	router *Router
	store  *segstore.Store
	logger *slog.Logger
	source string
	scene  atomic.Value
}

// New builds every sink named in cfg and starts routing. A sink that fails
// to build is skipped with a warning; the rest keep working. If every sink
// fails, New returns the joined errors.
func New(cfg config.Config, opts Options) (*Pipeline, error) {
	opts.Logger = logging.OrDefault(opts.Logger)
	if cfg.Device.ID == "" {
		cfg.EnsureDeviceID(cfg.Store.Dir)
	}

	var (
		bindings []Binding
		store    *segstore.Store
		errs     []error
	)
	kinds := cfg.SinkKinds()
	for _, kind := range kinds {
		s, err := Build(kind, cfg, opts.Env)
		if err != nil {
			opts.Logger.Warn("sink unavailable", "sink", string(kind), "error", err)
			errs = append(errs, err)
			continue
		}
		if st, ok := s.(*segstore.Store); ok {
			store = st
		}
		bindings = append(bindings, Binding{Kind: kind, Sink: s})
	}
	if len(kinds) > 0 && len(bindings) == 0 {
		return nil, fmt.Errorf("no sink could be built: %w", errors.Join(errs...))
	}

	p := &Pipeline{
		cfg:    cfg,
		store:  store,
		logger: opts.Logger,
		source: opts.Source,
		router: NewRouter(RouterOptions{
			Level:          cfg.Level,
			Categories:     cfg.Categories,
			BacklogWarning: opts.BacklogWarning,
			Logger:         opts.Logger,
		}, bindings...),
	}
	p.scene.Store("")
	return p, nil
}

// NewWithSinks routes to the given bindings instead of building them from
// cfg. Hosts embedding custom sinks and tests use it.
func NewWithSinks(cfg config.Config, opts Options, bindings ...Binding) *Pipeline {
	p := &Pipeline{
		cfg:    cfg,
		logger: logging.OrDefault(opts.Logger),
		source: opts.Source,
		router: NewRouter(RouterOptions{
			Level:          cfg.Level,
			Categories:     cfg.Categories,
			BacklogWarning: opts.BacklogWarning,
			Logger:         opts.Logger,
		}, bindings...),
	}
	for _, b := range bindings {
		if st, ok := b.Sink.(*segstore.Store); ok {
			p.store = st
		}
	}
	p.scene.Store("")
	return p
}

// Config returns the snapshot the pipeline was built from.
func (p *Pipeline) Config() config.Config { return p.cfg }

// Router exposes the underlying router.
func (p *Pipeline) Router() *Router { return p.router }

// Store returns the segment store, or nil when it is not an active sink.
func (p *Pipeline) Store() *segstore.Store { return p.store }

// SetScene changes the scene stamped on subsequent records.
func (p *Pipeline) SetScene(name string) { p.scene.Store(name) }

// Log creates a record and routes it. The returned kinds are the sinks
// that accepted it; a filtered record returns none.
func (p *Pipeline) Log(message string, level model.Level, category string) []sink.Kind {
	if category == "" {
		category = model.DefaultCategory
	}
	if !p.router.Allows(level, category) {
		return nil
	}
	rec := model.NewRecord(message, level, category)
	if p.cfg.StackTrace {
		rec.StackTrace = callers()
	}
	return p.LogRecord(rec)
}

// LogRecord routes a caller-built record, filling in the device, version,
// scene and source when they are empty.
func (p *Pipeline) LogRecord(rec model.Record) []sink.Kind {
	if rec.ID == "" || rec.Timestamp.IsZero() {
		fresh := model.NewRecord(rec.Message, rec.Level, rec.Category)
		if rec.ID == "" {
			rec.ID = fresh.ID
		}
		if rec.Timestamp.IsZero() {
			rec.Timestamp = fresh.Timestamp
		}
	}
	if rec.Category == "" {
		rec.Category = model.DefaultCategory
	}
	if rec.DeviceID == "" {
		rec.DeviceID = p.cfg.Device.ID
	}
	if rec.AppVersion == "" {
		rec.AppVersion = p.cfg.Device.AppVersion
	}
	if rec.Scene == "" {
		rec.Scene, _ = p.scene.Load().(string)
	}
	if rec.Source == "" {
		rec.Source = p.source
	}
	return p.router.Route(rec)
}

func (p *Pipeline) Trace(message, category string) []sink.Kind {
	return p.Log(message, model.LevelTrace, category)
}

func (p *Pipeline) Debug(message, category string) []sink.Kind {
	return p.Log(message, model.LevelDebug, category)
}

func (p *Pipeline) Info(message, category string) []sink.Kind {
	return p.Log(message, model.LevelInfo, category)
}

func (p *Pipeline) Warn(message, category string) []sink.Kind {
	return p.Log(message, model.LevelWarning, category)
}

func (p *Pipeline) Error(message, category string) []sink.Kind {
	return p.Log(message, model.LevelError, category)
}

func (p *Pipeline) Critical(message, category string) []sink.Kind {
	return p.Log(message, model.LevelCritical, category)
}

// LogBehavior records a player action in the Behavior category, in the
// message form the classifier reads back.
func (p *Pipeline) LogBehavior(behavior, details string) []sink.Kind {
	return p.Log(fmt.Sprintf("BEHAVIOR: %s - %s", behavior, details), model.LevelInfo, BehaviorCategory)
}

// MarkPerformance reports a Warning when d exceeds one frame. Faster
// markers are not logged.
func (p *Pipeline) MarkPerformance(marker string, d time.Duration, category string) []sink.Kind {
	if d <= FrameBudget {
		return nil
	}
	if category == "" {
		category = PerformanceCategory
	}
	ms := float64(d) / float64(time.Millisecond)
	return p.Log(fmt.Sprintf("performance warning: %s took %.1fms", marker, ms), model.LevelWarning, category)
}

// Subscribe registers a live observer; see Router.Subscribe.
func (p *Pipeline) Subscribe(buffer int) *Subscription { return p.router.Subscribe(buffer) }

// Unsubscribe removes a live observer.
func (p *Pipeline) Unsubscribe(id string) bool { return p.router.Unsubscribe(id) }

// Flush waits for every sink to write and flush what was logged so far.
func (p *Pipeline) Flush(ctx context.Context) error { return p.router.Flush(ctx) }

// Close drains and closes every sink.
func (p *Pipeline) Close(ctx context.Context) error { return p.router.Close(ctx) }

// pkgPrefix is this package's function-name prefix, used to trim the
// pipeline's own frames from captured stacks.
var pkgPrefix = func() string {
	pc, _, _, _ := runtime.Caller(0)
	name := runtime.FuncForPC(pc).Name()
	slash := strings.LastIndex(name, "/")
	return name[:slash+strings.Index(name[slash:], ".")+1]
}()

// callers renders the stack above the pipeline, one "function (file:line)"
// per line.
func callers() string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var b strings.Builder
	for {
		f, more := frames.Next()
		internal := strings.HasPrefix(f.Function, pkgPrefix) && !strings.HasSuffix(f.File, "_test.go")
		if !internal && !strings.HasPrefix(f.Function, "log/slog.") {
			if strings.HasPrefix(f.Function, "runtime.") {
				break
			}
			fmt.Fprintf(&b, "%s (%s:%d)\n", f.Function, f.File, f.Line)
		}
		if !more {
			break
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
