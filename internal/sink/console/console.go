// Package console writes records to the process output streams.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/coffersTech/behavelog/internal/model"
	"github.com/coffersTech/behavelog/internal/sink"
)

var levelColors = map[model.Level]lipgloss.Color{
	model.LevelTrace:    lipgloss.Color("245"),
	model.LevelDebug:    lipgloss.Color("111"),
	model.LevelInfo:     lipgloss.Color("157"),
	model.LevelWarning:  lipgloss.Color("216"),
	model.LevelError:    lipgloss.Color("203"),
	model.LevelCritical: lipgloss.Color("197"),
}

// Options configures a console sink. Nil writers mean os.Stdout and
// os.Stderr.
type Options struct {
	Stdout io.Writer
	Stderr io.Writer
	Color  bool
}

// Sink prints one line per record. Warning and above go to Stderr.
type Sink struct {
	mu     sync.Mutex
	stdout io.Writer
	stderr io.Writer
	outFmt *formatter
	errFmt *formatter
}

var _ sink.Sink = (*Sink)(nil)

// New returns a console sink.
func New(opts Options) *Sink {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return &Sink{
		stdout: opts.Stdout,
		stderr: opts.Stderr,
		outFmt: newFormatter(opts.Stdout, opts.Color),
		errFmt: newFormatter(opts.Stderr, opts.Color),
	}
}

func (s *Sink) Write(rec model.Record) error {
	w, f := s.stdout, s.outFmt
	if rec.Level >= model.LevelWarning {
		w, f = s.stderr, s.errFmt
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.WriteString(w, f.format(rec)); err != nil {
		return sink.Wrap(sink.KindConsole, "write", err)
	}
	return nil
}

func (s *Sink) Flush() error { return nil }
func (s *Sink) Close() error { return nil }

// formatter renders level tags for one stream. The lipgloss renderer
// downgrades to plain text when the stream is not a terminal.
type formatter struct {
	styles map[model.Level]lipgloss.Style
}

func newFormatter(w io.Writer, color bool) *formatter {
	f := &formatter{}
	if !color {
		return f
	}
	r := lipgloss.NewRenderer(w)
	f.styles = make(map[model.Level]lipgloss.Style, len(levelColors))
	for lvl, c := range levelColors {
		st := r.NewStyle().Foreground(c)
		if lvl >= model.LevelError {
			st = st.Bold(true)
		}
		f.styles[lvl] = st
	}
	return f
}

func (f *formatter) format(rec model.Record) string {
	tag := "[" + rec.Level.String() + "]"
	if st, ok := f.styles[rec.Level]; ok {
		tag = st.Render(tag)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s [%s] %s\n", rec.Timestamp.Format("15:04:05"), tag, rec.Category, rec.Message)
	if rec.StackTrace != "" {
		b.WriteString("Stack: ")
		b.WriteString(rec.StackTrace)
		b.WriteByte('\n')
	}
	return b.String()
}
