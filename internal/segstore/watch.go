package segstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch calls fn for every segment that appears in the directory until ctx
// is done. Segments are renamed into place complete, so fn may read them
// immediately.
func (r *Reader) Watch(ctx context.Context, fn func(Info)) error {
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch segments: %w", err)
	}
	defer w.Close()
	if err := w.Add(r.dir); err != nil {
		return fmt.Errorf("watch segments: %w", err)
	}

	seen := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("segment watch error", "error", err)
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Write) {
				continue
			}
			name := filepath.Base(ev.Name)
			if seen[name] {
				continue
			}
			created, compressed, err := parseSegmentName(name)
			if err != nil {
				continue
			}
			fi, err := os.Stat(ev.Name)
			if err != nil {
				continue
			}
			seen[name] = true
			fn(Info{Path: ev.Name, Name: name, Created: created, Size: fi.Size(), Compressed: compressed})
		}
	}
}
