// Package rotfile appends formatted records to size-rotated text files.
package rotfile

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/coffersTech/behavelog/internal/logging"
	"github.com/coffersTech/behavelog/internal/model"
	"github.com/coffersTech/behavelog/internal/sink"
)

const (
	sessionHeader = "=== Log Session Started ==="
	stampLayout   = "20060102_150405.000000000"
	fileExt       = ".txt"
)

// Options configures the rotating file sink.
type Options struct {
	Dir      string
	BaseName string
	// MaxSize is the byte size after which the file is rotated.
	MaxSize int64
	// MaxFiles is how many files, the open one included, are kept.
	MaxFiles int
	Logger   *slog.Logger
	// Now is the clock used for file names. Defaults to time.Now.
	Now func() time.Time
}

// Sink owns one open file at a time.
type Sink struct {
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	file   *os.File
	buf    *bufio.Writer
	path   string
	size   int64
	closed bool
}

var _ sink.Sink = (*Sink)(nil)

// New creates the directory, opens the first file and prunes old ones.
func New(opts Options) (*Sink, error) {
	if opts.BaseName == "" {
		opts.BaseName = "game_log"
	}
	if opts.MaxFiles < 1 {
		opts.MaxFiles = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, sink.Wrap(sink.KindFile, "open", err)
	}

	s := &Sink{opts: opts, logger: logging.OrDefault(opts.Logger)}
	if err := s.openLocked(); err != nil {
		return nil, err
	}
	s.prune()
	return s, nil
}

// Path returns the file currently being written.
func (s *Sink) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

func (s *Sink) Write(rec model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return sink.Wrap(sink.KindFile, "write", sink.ErrClosed)
	}

	line := rec.String() + "\n"
	if rec.StackTrace != "" {
		line += "Stack: " + rec.StackTrace + "\n"
	}
	n, err := s.buf.WriteString(line)
	s.size += int64(n)
	if err != nil {
		return sink.Wrap(sink.KindFile, "write", err)
	}
	if err := s.buf.Flush(); err != nil {
		return sink.Wrap(sink.KindFile, "write", err)
	}

	if s.size > s.opts.MaxSize {
		if err := s.rotateLocked(); err != nil {
			return err
		}
		s.prune()
	}
	return nil
}

func (s *Sink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if err := s.buf.Flush(); err != nil {
		return sink.Wrap(sink.KindFile, "flush", err)
	}
	return sink.Wrap(sink.KindFile, "flush", s.file.Sync())
}

func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return sink.Wrap(sink.KindFile, "close", s.closeFileLocked())
}

func (s *Sink) rotateLocked() error {
	old := s.path
	if err := s.closeFileLocked(); err != nil {
		return sink.Wrap(sink.KindFile, "rotate", err)
	}
	if err := s.openLocked(); err != nil {
		return err
	}
	s.logger.Debug("log file rotated", "from", old, "to", s.path, "limit", humanize.Bytes(uint64(s.opts.MaxSize)))
	return nil
}

func (s *Sink) closeFileLocked() error {
	if s.file == nil {
		return nil
	}
	err := s.buf.Flush()
	if serr := s.file.Sync(); err == nil {
		err = serr
	}
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	s.file, s.buf = nil, nil
	return err
}

func (s *Sink) openLocked() error {
	path := s.nextPath()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return sink.Wrap(sink.KindFile, "open", err)
	}
	s.file = f
	s.buf = bufio.NewWriter(f)
	s.path = path
	s.size = 0

	n, err := fmt.Fprintf(s.buf, "%s %s\n", sessionHeader, s.opts.Now().Format(time.DateTime))
	s.size += int64(n)
	if err == nil {
		err = s.buf.Flush()
	}
	return sink.Wrap(sink.KindFile, "open", err)
}

func (s *Sink) nextPath() string {
	name := fmt.Sprintf("%s_%s%s", s.opts.BaseName, s.opts.Now().Format(stampLayout), fileExt)
	path := filepath.Join(s.opts.Dir, name)
	for i := 1; ; i++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
		path = filepath.Join(s.opts.Dir, fmt.Sprintf("%s_%s_%d%s", s.opts.BaseName, s.opts.Now().Format(stampLayout), i, fileExt))
	}
}

// Files lists this sink's files, oldest first.
func (s *Sink) Files() ([]string, error) {
	entries, err := os.ReadDir(s.opts.Dir)
	if err != nil {
		return nil, err
	}
	prefix := s.opts.BaseName + "_"
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, fileExt) {
			continue
		}
		files = append(files, filepath.Join(s.opts.Dir, name))
	}
	// The fixed-width stamp sorts chronologically.
	sort.Strings(files)
	return files, nil
}

// prune deletes the oldest files beyond MaxFiles. Failures are logged.
func (s *Sink) prune() {
	files, err := s.Files()
	if err != nil {
		s.logger.Warn("list log files failed", "dir", s.opts.Dir, "error", err)
		return
	}
	for len(files) > s.opts.MaxFiles {
		victim := files[0]
		files = files[1:]
		if victim == s.path {
			continue
		}
		if err := os.Remove(victim); err != nil {
			s.logger.Warn("remove old log file failed", "path", victim, "error", err)
			continue
		}
		s.logger.Debug("old log file removed", "path", victim)
	}
}
