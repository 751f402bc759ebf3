package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/coffersTech/behavelog/internal/model"
)

// Attribute keys the handler lifts into record fields instead of the
// message text.
const (
	AttrCategory = "category"
	AttrScene    = "scene"
	AttrSource   = "source"
)

// LevelCritical is the slog level mapped to model.LevelCritical.
const LevelCritical = slog.LevelError + 4

// Handler lets Go code log through a *slog.Logger into the pipeline.
// Attributes other than category, scene and source are appended to the
// message as key=value pairs.
type Handler struct {
	p        *Pipeline
	category string
	attrs    []slog.Attr
	groups   []string
}

// Handler returns a slog.Handler whose records default to category.
func (p *Pipeline) Handler(category string) *Handler {
	if category == "" {
		category = model.DefaultCategory
	}
	return &Handler{p: p, category: category}
}

// FromSlogLevel maps a slog level onto the six record levels.
func FromSlogLevel(l slog.Level) model.Level {
	switch {
	case l < slog.LevelDebug:
		return model.LevelTrace
	case l < slog.LevelInfo:
		return model.LevelDebug
	case l < slog.LevelWarn:
		return model.LevelInfo
	case l < slog.LevelError:
		return model.LevelWarning
	case l < LevelCritical:
		return model.LevelError
	default:
		return model.LevelCritical
	}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return h.p.router.Allows(FromSlogLevel(level), h.category)
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	rec := model.Record{
		Level:     FromSlogLevel(r.Level),
		Category:  h.category,
		Timestamp: r.Time,
	}

	var b strings.Builder
	b.WriteString(r.Message)
	prefix := h.prefix()
	add := func(a slog.Attr) bool {
		a.Value = a.Value.Resolve()
		switch a.Key {
		case AttrCategory:
			rec.Category = a.Value.String()
			return true
		case AttrScene:
			rec.Scene = a.Value.String()
			return true
		case AttrSource:
			rec.Source = a.Value.String()
			return true
		}
		if a.Equal(slog.Attr{}) {
			return true
		}
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value.Any())
		return true
	}
	for _, a := range h.attrs {
		add(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		a.Key = prefix + a.Key
		return add(a)
	})
	rec.Message = b.String()

	if !h.p.router.Allows(rec.Level, rec.Category) {
		return nil
	}
	if h.p.cfg.StackTrace {
		rec.StackTrace = callers()
	}
	h.p.LogRecord(rec)
	return nil
}

// prefix qualifies keys with the open groups, as in "tls.suite".
func (h *Handler) prefix() string {
	if len(h.groups) == 0 {
		return ""
	}
	return strings.Join(h.groups, ".") + "."
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := *h
	h2.attrs = append([]slog.Attr(nil), h.attrs...)
	prefix := h.prefix()
	for _, a := range attrs {
		a.Key = prefix + a.Key
		h2.attrs = append(h2.attrs, a)
	}
	return &h2
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.groups = append(append([]string(nil), h.groups...), name)
	return &h2
}
