package model

import (
	"fmt"
	"strings"
)

// Level is the ordered severity of a record.
type Level int8

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarning
	LevelError
	LevelCritical
)

var levelNames = [...]string{
	LevelTrace:    "Trace",
	LevelDebug:    "Debug",
	LevelInfo:     "Info",
	LevelWarning:  "Warning",
	LevelError:    "Error",
	LevelCritical: "Critical",
}

// Levels returns every level in ascending order.
func Levels() []Level {
	return []Level{LevelTrace, LevelDebug, LevelInfo, LevelWarning, LevelError, LevelCritical}
}

// Valid reports whether l is one of the six defined levels.
func (l Level) Valid() bool {
	return l >= LevelTrace && l <= LevelCritical
}

func (l Level) String() string {
	if !l.Valid() {
		return fmt.Sprintf("Level(%d)", int8(l))
	}
	return levelNames[l]
}

// ParseLevel converts a level name to Level. Matching is case-insensitive;
// "warn" and "fatal" are accepted as aliases.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warning", "warn":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	case "critical", "fatal":
		return LevelCritical, nil
	}
	return LevelInfo, fmt.Errorf("unknown level %q", s)
}

// LenientLevel parses s and falls back to Info for unknown names. Stored
// segments written by older producers go through this path.
func LenientLevel(s string) Level {
	l, err := ParseLevel(s)
	if err != nil {
		return LevelInfo
	}
	return l
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid level %d", int8(l))
	}
	return []byte(levelNames[l]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
