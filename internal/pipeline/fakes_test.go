package pipeline

import (
	"errors"
	"os"
	"sync"

	"github.com/coffersTech/behavelog/internal/model"
)

type recorder struct {
	mu      sync.Mutex
	recs    []model.Record
	flushes int
	closed  bool
}

func (r *recorder) Write(rec model.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
	return nil
}

func (r *recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
	return nil
}

func (r *recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recorder) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *recorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.recs))
	for i, rec := range r.recs {
		out[i] = rec.Message
	}
	return out
}

func (r *recorder) records() []model.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Record(nil), r.recs...)
}

type failing struct{}

func (failing) Write(model.Record) error { return errors.New("disk full") }
func (failing) Flush() error             { return errors.New("disk full") }
func (failing) Close() error             { return nil }

type panicking struct{}

func (panicking) Write(model.Record) error { panic("boom") }
func (panicking) Flush() error             { return nil }
func (panicking) Close() error             { return nil }

// gate blocks every write until release is closed, then records it.
type gate struct {
	recorder
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGate() *gate {
	return &gate{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) Write(rec model.Record) error {
	g.once.Do(func() { close(g.started) })
	<-g.release
	return g.recorder.Write(rec)
}

func writeFile(path string) error {
	return os.WriteFile(path, []byte("x"), 0644)
}
