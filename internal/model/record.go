// Package model holds the record types shared by the router, the sinks and
// the analysis engine.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultCategory is used when a caller logs without a category.
const DefaultCategory = "General"

// Record is one structured log event. Records are values: a sink that keeps
// one keeps its own copy.
type Record struct {
	ID         string    `json:"id"`
	Message    string    `json:"message"`
	Level      Level     `json:"level"`
	Category   string    `json:"category"`
	Timestamp  time.Time `json:"timestamp"`
	StackTrace string    `json:"stackTrace,omitempty"`
	Scene      string    `json:"scene,omitempty"`
	Source     string    `json:"source,omitempty"`
	DeviceID   string    `json:"deviceId,omitempty"`
	AppVersion string    `json:"appVersion,omitempty"`
}

// NewRecord stamps a record with a fresh id and the current local time.
func NewRecord(message string, level Level, category string) Record {
	if category == "" {
		category = DefaultCategory
	}
	return Record{
		ID:        uuid.NewString(),
		Message:   message,
		Level:     level,
		Category:  category,
		Timestamp: time.Now(),
	}
}

// String renders the single-line form used by the console, file and
// fallback outputs.
func (r Record) String() string {
	return fmt.Sprintf("[%s] [%s] [%s] %s", r.Timestamp.Format("15:04:05"), r.Level, r.Category, r.Message)
}

// CategoryRule overrides the minimum level for one category.
type CategoryRule struct {
	Name     string `json:"name" yaml:"name" toml:"name"`
	MinLevel Level  `json:"min_level" yaml:"min_level" toml:"min_level"`
}
