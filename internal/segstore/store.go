// Package segstore persists records as immutable, time-named segment files
// and answers range queries over them by scanning.
package segstore

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/coffersTech/behavelog/internal/model"
	"github.com/coffersTech/behavelog/internal/sink"
)

// Options configures a Store.
type Options struct {
	Dir string
	// FlushThreshold is the cache size that triggers a segment write.
	FlushThreshold int
	// Retention is how long segments are kept. Zero keeps them forever.
	Retention time.Duration
	Compress  bool
	// WAL mirrors the cache to Dir/cache.wal and replays it on Open.
	WAL    bool
	Logger *slog.Logger
	// Now is the clock used for segment names and retention.
	Now func() time.Time
}

// Store is the segment store sink. It embeds a Reader, so queries run
// against the same directory.
type Store struct {
	*Reader

	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	cache  []model.Record
	wal    *wal
	closed bool
}

var _ sink.Sink = (*Store)(nil)

// Open creates Dir if needed and replays the WAL into the cache.
func Open(opts Options) (*Store, error) {
	if opts.FlushThreshold < 1 {
		opts.FlushThreshold = 100
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, sink.Wrap(sink.KindStore, "open", err)
	}
	r, err := NewReader(opts.Dir, opts.Logger)
	if err != nil {
		return nil, sink.Wrap(sink.KindStore, "open", err)
	}

	s := &Store{
		Reader: r,
		opts:   opts,
		logger: r.logger,
	}
	if opts.WAL {
		if err := s.openWAL(); err != nil {
			return nil, sink.Wrap(sink.KindStore, "open", err)
		}
	}
	return s, nil
}

func (s *Store) openWAL() error {
	w, err := openWAL(filepath.Join(s.opts.Dir, walFileName))
	if err != nil {
		return err
	}
	recs, err := w.replay()
	if err != nil {
		s.logger.Warn("wal replay stopped early", "recovered", len(recs), "error", err)
	}
	if len(recs) > 0 {
		// Rewrite so a torn tail does not hide later appends.
		if err := w.reset(); err != nil {
			w.close()
			return err
		}
		for _, rec := range recs {
			if err := w.append(rec); err != nil {
				w.close()
				return err
			}
		}
		s.logger.Info("recovered cache from wal", "records", len(recs))
	}
	s.wal = w
	s.cache = recs
	return nil
}

// Write appends rec to the cache and writes a segment once the cache
// reaches the flush threshold.
func (s *Store) Write(rec model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return sink.Wrap(sink.KindStore, "write", sink.ErrClosed)
	}

	if s.wal != nil {
		if err := s.wal.append(rec); err != nil {
			s.logger.Warn("wal append failed", "error", err)
		}
	}
	s.cache = append(s.cache, rec)
	if len(s.cache) < s.opts.FlushThreshold {
		return nil
	}
	return s.flushLocked()
}

// Flush writes the cache to a segment even below the threshold.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.flushLocked()
}

// Close flushes the cache and releases the WAL.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.flushLocked()
	if s.wal != nil {
		if cerr := s.wal.close(); err == nil && cerr != nil {
			err = sink.Wrap(sink.KindStore, "close", cerr)
		}
	}
	return err
}

// Cached returns how many records wait for the next segment.
func (s *Store) Cached() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cache)
}

// flushLocked serializes the cache into a new segment. On failure the cache
// is kept so the next flush retries it.
func (s *Store) flushLocked() error {
	if len(s.cache) == 0 {
		return nil
	}
	data, err := s.codec.encode(s.cache, s.opts.Compress)
	if err != nil {
		return sink.Wrap(sink.KindStore, "flush", err)
	}
	path := s.nextSegmentPath()
	if err := writeAtomic(path, data); err != nil {
		return sink.Wrap(sink.KindStore, "flush", err)
	}

	n := len(s.cache)
	s.cache = nil
	if s.wal != nil {
		if err := s.wal.reset(); err != nil {
			s.logger.Warn("wal reset failed", "error", err)
		}
	}
	s.logger.Debug("segment written", "path", path, "records", n, "bytes", len(data))

	s.sweep()
	return nil
}

// nextSegmentPath names a segment after the current time, nudged forward
// by a nanosecond while the name is taken.
func (s *Store) nextSegmentPath() string {
	t := s.opts.Now()
	for {
		path := filepath.Join(s.opts.Dir, segmentName(t, s.opts.Compress))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
		t = t.Add(time.Nanosecond)
	}
}
