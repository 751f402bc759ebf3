package segstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/valyala/fastjson"

	"github.com/coffersTech/behavelog/internal/logging"
	"github.com/coffersTech/behavelog/internal/model"
	"github.com/coffersTech/behavelog/internal/pkg/recql"
	"github.com/coffersTech/behavelog/internal/sink"
)

// Reader scans the segments of one directory. It never writes, so several
// processes may read a directory another process is writing.
type Reader struct {
	dir    string
	logger *slog.Logger
	codec  *codec
	parser fastjson.ParserPool
}

// NewReader returns a Reader over dir. The directory need not exist yet.
func NewReader(dir string, logger *slog.Logger) (*Reader, error) {
	c, err := newCodec()
	if err != nil {
		return nil, err
	}
	return &Reader{
		dir:    dir,
		logger: logging.OrDefault(logger).With("sink", string(sink.KindStore)),
		codec:  c,
	}, nil
}

// Dir returns the segment directory.
func (r *Reader) Dir() string { return r.dir }

// Segments lists segment files, oldest first.
func (r *Reader) Segments() ([]Info, error) {
	infos, err := listSegments(r.dir)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	return infos, nil
}

// Query selects stored records. Zero Start/End leave that side of the
// window open, an empty Category matches any, and Expr is a recql
// expression. Limit <= 0 means no limit.
type Query struct {
	Start    time.Time
	End      time.Time
	Category string
	MinLevel model.Level
	Expr     string
	Limit    int
}

// Query returns matching records from every segment, newest first.
// Segments deleted mid-scan are ignored; unreadable ones are skipped with
// a warning.
func (r *Reader) Query(ctx context.Context, q Query) ([]model.Record, error) {
	filter, err := recql.Compile(q.Expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	infos, err := r.Segments()
	if err != nil {
		return nil, err
	}

	var out []model.Record
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		recs, err := r.scan(info, func(v *fastjson.Value) bool { return q.admits(v) })
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			r.logger.Warn("skipping unreadable segment", "segment", info.Name, "error", err)
			continue
		}
		for _, rec := range recs {
			if filter.Match(rec) {
				out = append(out, rec)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// admits checks the cheap predicates on the raw value before it is decoded.
func (q Query) admits(v *fastjson.Value) bool {
	if q.Category != "" && rawCategory(v) != q.Category {
		return false
	}
	if q.MinLevel > model.LevelTrace && model.LenientLevel(string(v.GetStringBytes("level"))) < q.MinLevel {
		return false
	}
	if q.Start.IsZero() && q.End.IsZero() {
		return true
	}
	ts, err := time.Parse(time.RFC3339Nano, string(v.GetStringBytes("timestamp")))
	if err != nil {
		return false
	}
	if !q.Start.IsZero() && ts.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && ts.After(q.End) {
		return false
	}
	return true
}

// ReadSegment decodes every record of the segment at path.
func (r *Reader) ReadSegment(path string) ([]model.Record, error) {
	created, compressed, err := parseSegmentName(filepath.Base(path))
	if err != nil {
		return nil, err
	}
	return r.scan(Info{Path: path, Name: filepath.Base(path), Created: created, Compressed: compressed}, nil)
}

// scan decodes the records of one segment that pass keep. A nil keep
// accepts all.
func (r *Reader) scan(info Info, keep func(*fastjson.Value) bool) ([]model.Record, error) {
	raw, err := r.codec.load(info.Path, info.Compressed)
	if err != nil {
		return nil, err
	}

	p := r.parser.Get()
	defer r.parser.Put(p)

	doc, err := p.ParseBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptSegment, info.Name, err)
	}
	logs := doc.Get("logs")
	if logs == nil || logs.Type() != fastjson.TypeArray {
		return nil, fmt.Errorf("%w: %s: missing logs array", ErrCorruptSegment, info.Name)
	}

	items, _ := logs.Array()
	recs := make([]model.Record, 0, len(items))
	for _, v := range items {
		if keep != nil && !keep(v) {
			continue
		}
		recs = append(recs, decodeRecord(v))
	}
	return recs, nil
}

// decodeRecord copies the fields out of v; the parser's memory is reused
// once it goes back to the pool.
func decodeRecord(v *fastjson.Value) model.Record {
	rec := model.Record{
		ID:         string(v.GetStringBytes("id")),
		Message:    string(v.GetStringBytes("message")),
		Level:      model.LenientLevel(string(v.GetStringBytes("level"))),
		Category:   rawCategory(v),
		StackTrace: string(v.GetStringBytes("stackTrace")),
		Scene:      string(v.GetStringBytes("scene")),
		Source:     string(v.GetStringBytes("source")),
		DeviceID:   string(v.GetStringBytes("deviceId")),
		AppVersion: string(v.GetStringBytes("appVersion")),
	}
	if ts, err := time.Parse(time.RFC3339Nano, string(v.GetStringBytes("timestamp"))); err == nil {
		rec.Timestamp = ts.Local()
	}
	return rec
}

// rawCategory reads the category, defaulting records stored without one.
func rawCategory(v *fastjson.Value) string {
	if c := v.GetStringBytes("category"); len(c) > 0 {
		return string(c)
	}
	return model.DefaultCategory
}
