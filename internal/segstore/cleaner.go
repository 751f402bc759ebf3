package segstore

import (
	"context"
	"os"
	"time"
)

// Sweep deletes segments whose embedded creation time is older than the
// retention window and returns how many were removed.
func (s *Store) Sweep() int {
	if s.opts.Retention <= 0 {
		return 0
	}
	infos, err := listSegments(s.opts.Dir)
	if err != nil {
		s.logger.Warn("retention sweep failed", "error", err)
		return 0
	}

	cutoff := s.opts.Now().Add(-s.opts.Retention)
	removed := 0
	for _, info := range infos {
		if !info.Created.Before(cutoff) {
			// Sorted oldest first; the rest are newer.
			break
		}
		if err := os.Remove(info.Path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("remove expired segment failed", "segment", info.Name, "error", err)
			continue
		}
		removed++
		s.logger.Info("expired segment deleted", "segment", info.Name)
	}
	return removed
}

func (s *Store) sweep() { s.Sweep() }

// RunCleaner sweeps every interval until ctx is done.
func (s *Store) RunCleaner(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("cleaner started", "retention", s.opts.Retention, "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
