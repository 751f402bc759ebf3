// Package netsink ships Warning-and-above records to an HTTP collector in
// batches. Failed batches are appended to a local fallback file; nothing is
// retried.
package netsink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coffersTech/behavelog/internal/logging"
	"github.com/coffersTech/behavelog/internal/model"
	"github.com/coffersTech/behavelog/internal/sink"
)

// ErrTransport wraps every failed delivery: transport errors and non-2xx
// responses alike.
var ErrTransport = errors.New("network transport failed")

const fallbackPrefix = "[NETWORK_FALLBACK] "

// Options configures the network sink.
type Options struct {
	Endpoint      string
	BatchSize     int
	FlushInterval time.Duration
	Timeout       time.Duration
	FallbackPath  string

	DeviceID   string
	AppVersion string
	Platform   string

	// Client overrides the HTTP client. Timeout is ignored when set.
	Client *http.Client
	Logger *slog.Logger
}

// Payload is the request body of one batch.
type Payload struct {
	DeviceID   string         `json:"deviceId"`
	AppVersion string         `json:"appVersion"`
	Platform   string         `json:"platform"`
	Logs       []model.Record `json:"logs"`
}

// Stats counts delivery outcomes.
type Stats struct {
	Queued   int   `json:"queued"`
	Sent     int64 `json:"sent"`
	Fallback int64 `json:"fallback"`
	Batches  int64 `json:"batches"`
}

// Sink queues records and sends them from a background goroutine.
type Sink struct {
	opts     Options
	client   *http.Client
	logger   *slog.Logger
	disabled bool

	mu     sync.Mutex
	queue  []model.Record
	closed bool

	fbMu sync.Mutex

	kick     chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	inFlight atomic.Bool

	sent     atomic.Int64
	fallback atomic.Int64
	batches  atomic.Int64
}

var _ sink.Sink = (*Sink)(nil)

// New starts the send loop. Without an endpoint the sink disables itself:
// it logs one warning and drops every write.
func New(opts Options) *Sink {
	if opts.BatchSize < 1 {
		opts.BatchSize = 50
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 5 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	s := &Sink{
		opts:   opts,
		client: opts.Client,
		logger: logging.OrDefault(opts.Logger).With("sink", string(sink.KindNetwork)),
		kick:   make(chan struct{}, 1),
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: opts.Timeout}
	}

	if opts.Endpoint == "" {
		s.disabled = true
		s.logger.Warn("network sink disabled", "error", sink.ErrNotConfigured, "missing", "endpoint")
		return s
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.run(ctx)
	return s
}

// Disabled reports whether the sink dropped out for lack of an endpoint.
func (s *Sink) Disabled() bool { return s.disabled }

// Write queues rec when it is Warning or above.
func (s *Sink) Write(rec model.Record) error {
	if s.disabled || rec.Level < model.LevelWarning {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return sink.Wrap(sink.KindNetwork, "write", sink.ErrClosed)
	}
	s.queue = append(s.queue, rec)
	return nil
}

// Flush asks the loop for an immediate send attempt and returns without
// waiting for it.
func (s *Sink) Flush() error {
	if s.disabled {
		return nil
	}
	select {
	case s.kick <- struct{}{}:
	default:
	}
	return nil
}

// Close stops the loop, then sends whatever is still queued under the
// configured timeout. Batches that cannot be sent go to the fallback file.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.disabled {
		return nil
	}
	s.cancel()
	s.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.Timeout)
	defer cancel()
	for {
		batch := s.dequeue()
		if len(batch) == 0 {
			return nil
		}
		if ctx.Err() != nil {
			s.writeFallback(batch)
			continue
		}
		s.deliver(ctx, batch)
	}
}

// Stats returns a snapshot of the counters.
func (s *Sink) Stats() Stats {
	s.mu.Lock()
	queued := len(s.queue)
	s.mu.Unlock()
	return Stats{
		Queued:   queued,
		Sent:     s.sent.Load(),
		Fallback: s.fallback.Load(),
		Batches:  s.batches.Load(),
	}
}

func (s *Sink) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.kick:
		}
		if s.inFlight.Load() {
			continue
		}
		if batch := s.dequeue(); len(batch) > 0 {
			s.deliver(ctx, batch)
		}
	}
}

func (s *Sink) dequeue() []model.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := min(len(s.queue), s.opts.BatchSize)
	if n == 0 {
		return nil
	}
	batch := make([]model.Record, n)
	copy(batch, s.queue[:n])
	s.queue = s.queue[n:]
	if len(s.queue) == 0 {
		s.queue = nil
	}
	return batch
}

// deliver sends batch once. On any failure the whole batch is written to
// the fallback file.
func (s *Sink) deliver(ctx context.Context, batch []model.Record) {
	s.inFlight.Store(true)
	defer s.inFlight.Store(false)
	s.batches.Add(1)

	err := s.send(ctx, batch)
	if err == nil {
		s.sent.Add(int64(len(batch)))
		return
	}
	s.logger.Warn("batch send failed, writing fallback", "records", len(batch), "error", err)
	s.writeFallback(batch)
}

func (s *Sink) send(ctx context.Context, batch []model.Record) error {
	body, err := json.Marshal(Payload{
		DeviceID:   s.opts.DeviceID,
		AppVersion: s.opts.AppVersion,
		Platform:   s.opts.Platform,
		Logs:       batch,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: HTTP %d", ErrTransport, resp.StatusCode)
	}
	return nil
}

func (s *Sink) writeFallback(batch []model.Record) {
	var buf bytes.Buffer
	for _, rec := range batch {
		buf.WriteString(fallbackPrefix)
		buf.WriteString(rec.String())
		buf.WriteByte('\n')
	}

	s.fbMu.Lock()
	defer s.fbMu.Unlock()
	if err := appendFile(s.opts.FallbackPath, buf.Bytes()); err != nil {
		s.logger.Error("fallback write failed, batch lost", "path", s.opts.FallbackPath, "records", len(batch), "error", err)
		return
	}
	s.fallback.Add(int64(len(batch)))
}

func appendFile(path string, data []byte) error {
	if path == "" {
		return errors.New("no fallback path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
