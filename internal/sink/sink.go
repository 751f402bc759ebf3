// Package sink defines the capability every record backend implements and
// the errors they report.
package sink

import (
	"errors"
	"fmt"
	"strings"

	"github.com/coffersTech/behavelog/internal/model"
)

// Kind names a sink implementation.
type Kind string

const (
	KindConsole Kind = "console"
	KindFile    Kind = "file"
	KindNetwork Kind = "network"
	KindStore   Kind = "store"
)

// ParseKind accepts the kind names plus the aliases used by older configs.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "console", "stdout":
		return KindConsole, nil
	case "file":
		return KindFile, nil
	case "network", "http":
		return KindNetwork, nil
	case "store", "database", "segments":
		return KindStore, nil
	}
	return "", fmt.Errorf("unknown sink kind %q", s)
}

// Sink persists or transmits records. Implementations serialize their own
// state and may be called from several goroutines.
type Sink interface {
	Write(rec model.Record) error
	Flush() error
	Close() error
}

// ErrNotConfigured marks a sink that disabled itself for lack of settings.
var ErrNotConfigured = errors.New("sink not configured")

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("sink closed")

// Error is a failure localized to one sink operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s sink %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap returns nil for a nil err, otherwise an *Error.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
