package segstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	segmentPrefix = "logs_"
	segmentExt    = ".json"
	zstdExt       = ".zst"
	stampLayout   = "20060102_150405.000000000"
)

// ErrCorruptSegment marks a segment that could not be read or decoded.
var ErrCorruptSegment = errors.New("corrupt segment")

// ErrInvalidQuery wraps a query expression that failed to parse.
var ErrInvalidQuery = errors.New("invalid query expression")

// Info describes one segment file.
type Info struct {
	Path       string    `json:"path"`
	Name       string    `json:"name"`
	Created    time.Time `json:"created"`
	Size       int64     `json:"size"`
	Compressed bool      `json:"compressed"`
}

// segmentName builds the file name for a segment created at t.
func segmentName(t time.Time, compressed bool) string {
	name := segmentPrefix + t.Format(stampLayout) + segmentExt
	if compressed {
		name += zstdExt
	}
	return name
}

// parseSegmentName extracts the creation time embedded in name.
func parseSegmentName(name string) (created time.Time, compressed bool, err error) {
	if !strings.HasPrefix(name, segmentPrefix) {
		return time.Time{}, false, fmt.Errorf("not a segment: %s", name)
	}
	stem := strings.TrimPrefix(name, segmentPrefix)
	if strings.HasSuffix(stem, segmentExt+zstdExt) {
		compressed = true
		stem = strings.TrimSuffix(stem, segmentExt+zstdExt)
	} else if strings.HasSuffix(stem, segmentExt) {
		stem = strings.TrimSuffix(stem, segmentExt)
	} else {
		return time.Time{}, false, fmt.Errorf("not a segment: %s", name)
	}
	created, err = time.ParseInLocation(stampLayout, stem, time.Local)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("segment %s: %w", name, err)
	}
	return created, compressed, nil
}

// listSegments returns the segments in dir, oldest first. A missing
// directory is an empty store.
func listSegments(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var infos []Info
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		created, compressed, err := parseSegmentName(e.Name())
		if err != nil {
			continue
		}
		info := Info{
			Path:       filepath.Join(dir, e.Name()),
			Name:       e.Name(),
			Created:    created,
			Compressed: compressed,
		}
		if fi, err := e.Info(); err == nil {
			info.Size = fi.Size()
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Created.Before(infos[j].Created)
	})
	return infos, nil
}
