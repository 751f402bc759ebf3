package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/coffersTech/behavelog/internal/logging"
	"github.com/coffersTech/behavelog/internal/model"
	"github.com/coffersTech/behavelog/internal/sink"
)

// DefaultBacklogWarning is the per-sink backlog at which the router warns
// that a sink is falling behind.
const DefaultBacklogWarning = 1024

// Binding attaches a sink to the router under its kind.
type Binding struct {
	Kind sink.Kind
	Sink sink.Sink
}

// RouterOptions configures a Router.
type RouterOptions struct {
	Level      model.Level
	Categories []model.CategoryRule
	// BacklogWarning is the queue length that triggers a warning. Queues
	// are not bounded; records are never dropped.
	BacklogWarning int
	Logger         *slog.Logger
}

// Router filters records and fans them out to sinks. Each sink is driven
// by its own goroutine, so a slow or failing sink never blocks the caller
// or the other sinks.
type Router struct {
	level  model.Level
	rules  map[string]model.Level
	logger *slog.Logger
	subs   *subscribers

	mu      sync.RWMutex
	workers []*worker
	closed  bool
}

// NewRouter starts one worker per binding. Bindings keep their order.
func NewRouter(opts RouterOptions, bindings ...Binding) *Router {
	if opts.BacklogWarning < 1 {
		opts.BacklogWarning = DefaultBacklogWarning
	}
	r := &Router{
		level:  opts.Level,
		rules:  make(map[string]model.Level, len(opts.Categories)),
		logger: logging.OrDefault(opts.Logger),
		subs:   newSubscribers(),
	}
	for _, rule := range opts.Categories {
		r.rules[rule.Name] = rule.MinLevel
	}
	for _, b := range bindings {
		w := newWorker(b.Kind, b.Sink, opts.BacklogWarning, r.logger)
		r.workers = append(r.workers, w)
		go w.run()
	}
	return r
}

// Allows reports whether a record of level in category passes the filter:
// it must reach the global level and, if the category has a rule, the
// rule's level as well.
func (r *Router) Allows(level model.Level, category string) bool {
	if level < r.level {
		return false
	}
	if floor, ok := r.rules[category]; ok && level < floor {
		return false
	}
	return true
}

// Route queues rec for every sink and returns the kinds it was handed to.
// It never blocks on sink I/O. A filtered record yields an empty set.
func (r *Router) Route(rec model.Record) []sink.Kind {
	if !r.Allows(rec.Level, rec.Category) {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil
	}

	delivered := make([]sink.Kind, 0, len(r.workers))
	for _, w := range r.workers {
		w.push(op{kind: opWrite, rec: rec})
		delivered = append(delivered, w.kind)
	}
	r.subs.publish(rec)
	return delivered
}

// Kinds lists the bound sink kinds in binding order.
func (r *Router) Kinds() []sink.Kind {
	kinds := make([]sink.Kind, len(r.workers))
	for i, w := range r.workers {
		kinds[i] = w.kind
	}
	return kinds
}

// Pending returns how many queued operations each sink has not yet taken.
func (r *Router) Pending() map[sink.Kind]int {
	out := make(map[sink.Kind]int, len(r.workers))
	for _, w := range r.workers {
		out[w.kind] = w.pending()
	}
	return out
}

// Flush waits until every sink has written what was routed before the call
// and flushed. Sink errors are joined.
func (r *Router) Flush(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil
	}
	return r.barrier(ctx, opFlush)
}

// Close stops routing, drains each queue and closes every sink. Records
// routed after Close are dropped. The close is queued on every sink before
// waiting, so a ctx that expires only abandons the wait; the sinks still
// drain and close in the background.
func (r *Router) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.subs.closeAll()
	return r.barrier(ctx, opClose)
}

func (r *Router) barrier(ctx context.Context, kind opKind) error {
	waits := make([]chan error, len(r.workers))
	for i, w := range r.workers {
		ch := make(chan error, 1)
		waits[i] = ch
		w.push(op{kind: kind, done: ch})
	}

	var errs []error
	for i, ch := range waits {
		select {
		case err := <-ch:
			if err != nil {
				errs = append(errs, err)
			}
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("%s sink: %w", r.workers[i].kind, ctx.Err()))
			return errors.Join(errs...)
		}
	}
	return errors.Join(errs...)
}

type opKind int

const (
	opWrite opKind = iota
	opFlush
	opClose
)

type op struct {
	kind opKind
	rec  model.Record
	done chan error
}

// worker is the single consumer of one sink's queue. The queue is an
// unbounded slice so producers never wait and nothing is lost; wake is
// signalled after every push.
type worker struct {
	kind   sink.Kind
	sink   sink.Sink
	logger *slog.Logger
	warnAt int

	mu     sync.Mutex
	queue  []op
	warned bool
	wake   chan struct{}
}

func newWorker(kind sink.Kind, s sink.Sink, warnAt int, logger *slog.Logger) *worker {
	return &worker{
		kind:   kind,
		sink:   s,
		logger: logger.With("sink", string(kind)),
		warnAt: warnAt,
		wake:   make(chan struct{}, 1),
	}
}

func (w *worker) push(o op) {
	w.mu.Lock()
	w.queue = append(w.queue, o)
	n := len(w.queue)
	warn := n >= w.warnAt && !w.warned
	if warn {
		w.warned = true
	}
	w.mu.Unlock()

	if warn {
		w.logger.Warn("sink is falling behind", "backlog", n)
	}
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *worker) pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// take swaps out everything queued so far. An empty result re-arms the
// backlog warning.
func (w *worker) take() []op {
	w.mu.Lock()
	defer w.mu.Unlock()
	batch := w.queue
	w.queue = nil
	if len(batch) == 0 {
		w.warned = false
	}
	return batch
}

func (w *worker) run() {
	for range w.wake {
		for batch := w.take(); len(batch) > 0; batch = w.take() {
			for _, o := range batch {
				if w.handle(o) {
					return
				}
			}
		}
	}
}

// handle runs one op and reports whether the worker is done.
func (w *worker) handle(o op) bool {
	switch o.kind {
	case opWrite:
		if err := w.call("write", func() error { return w.sink.Write(o.rec) }); err != nil {
			w.logger.Warn("sink write failed", "record", o.rec.ID, "error", err)
		}
	case opFlush:
		err := w.call("flush", w.sink.Flush)
		if err != nil {
			w.logger.Warn("sink flush failed", "error", err)
		}
		o.done <- err
	case opClose:
		err := w.call("flush", w.sink.Flush)
		if cerr := w.call("close", w.sink.Close); cerr != nil {
			err = errors.Join(err, cerr)
		}
		if err != nil {
			w.logger.Warn("sink close failed", "error", err)
		}
		o.done <- err
		return true
	}
	return false
}

// call runs fn and turns a panic into an error.
func (w *worker) call(opName string, fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = sink.Wrap(w.kind, opName, fmt.Errorf("panic: %v", p))
		}
	}()
	return sink.Wrap(w.kind, opName, fn())
}
