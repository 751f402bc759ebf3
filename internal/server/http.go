// Package server exposes stored records and their analysis over a small
// read-only HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coffersTech/behavelog/internal/analysis"
	"github.com/coffersTech/behavelog/internal/logging"
	"github.com/coffersTech/behavelog/internal/model"
	"github.com/coffersTech/behavelog/internal/segstore"
)

// DefaultLimit caps /api/search when no limit is given.
const DefaultLimit = 100

// QueryServer answers search, session and analysis requests from a
// segment directory.
type QueryServer struct {
	reader *segstore.Reader
	engine *analysis.Engine
	logger *slog.Logger
	srv    *http.Server
}

func NewQueryServer(reader *segstore.Reader, engine *analysis.Engine, logger *slog.Logger) *QueryServer {
	if engine == nil {
		engine = analysis.NewEngine()
	}
	return &QueryServer{reader: reader, engine: engine, logger: logging.OrDefault(logger)}
}

// Handler returns the API routes.
func (s *QueryServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/search", s.handleSearch)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/analysis", s.handleAnalysis)
	mux.HandleFunc("/api/segments", s.handleSegments)
	return mux
}

// Start serves on addr until Shutdown.
func (s *QueryServer) Start(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *QueryServer) Shutdown(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}

func (s *QueryServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q, err := parseQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}

	recs, err := s.reader.Query(r.Context(), q)
	if err != nil {
		s.fail(w, "search", err)
		return
	}
	if recs == nil {
		recs = []model.Record{}
	}
	s.writeJSON(w, recs)
}

func (s *QueryServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	recs, err := s.reader.Query(r.Context(), segstore.Query{})
	if err != nil {
		s.fail(w, "sessions", err)
		return
	}
	s.writeJSON(w, analysis.Sessions(recs))
}

func (s *QueryServer) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q, err := parseQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	recs, err := s.reader.Query(r.Context(), q)
	if err != nil {
		s.fail(w, "analysis", err)
		return
	}

	var keep func(model.Record) bool
	if session := r.URL.Query().Get("session"); session != "" {
		keep = analysis.InSession(session)
	}
	s.writeJSON(w, s.engine.Analyze(recs, keep))
}

func (s *QueryServer) handleSegments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	infos, err := s.reader.Segments()
	if err != nil {
		s.fail(w, "segments", err)
		return
	}
	if infos == nil {
		infos = []segstore.Info{}
	}
	s.writeJSON(w, infos)
}

// parseQuery reads start, end, category, level, q and limit. Times are
// RFC 3339 or unix milliseconds.
func parseQuery(r *http.Request) (segstore.Query, error) {
	v := r.URL.Query()
	var q segstore.Query
	var err error

	if q.Start, err = parseTime(v.Get("start")); err != nil {
		return q, fmt.Errorf("start: %w", err)
	}
	if q.End, err = parseTime(v.Get("end")); err != nil {
		return q, fmt.Errorf("end: %w", err)
	}
	q.Category = v.Get("category")
	if lvl := v.Get("level"); lvl != "" {
		if q.MinLevel, err = model.ParseLevel(lvl); err != nil {
			return q, fmt.Errorf("level: %w", err)
		}
	}
	q.Expr = v.Get("q")
	if limit := v.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			return q, fmt.Errorf("limit: invalid value %q", limit)
		}
		q.Limit = n
	}
	return q, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func (s *QueryServer) fail(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	if errors.Is(err, segstore.ErrInvalidQuery) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.logger.Error("request failed", "op", op, "error", err)
	http.Error(w, "Query failed", http.StatusInternalServerError)
}

func (s *QueryServer) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encode response", "error", err)
	}
}
