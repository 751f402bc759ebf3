package segstore

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/coffersTech/behavelog/internal/model"
)

const walFileName = "cache.wal"

// wal holds the unflushed cache on disk so a crash does not lose it.
// Entries are [len uint32 LE][JSON record].
type wal struct {
	mu   sync.Mutex
	file *os.File
	path string
}

func openWAL(path string) (*wal, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	return &wal{file: f, path: path}, nil
}

func (w *wal) append(rec model.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	entry := make([]byte, 4+len(data))
	binary.LittleEndian.PutUint32(entry, uint32(len(data)))
	copy(entry[4:], data)

	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = w.file.Write(entry)
	return err
}

func (w *wal) sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Sync()
}

func (w *wal) reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Truncate(0); err != nil {
		return err
	}
	_, err := w.file.Seek(0, io.SeekStart)
	return err
}

func (w *wal) close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// replay returns every complete entry. A torn tail from an interrupted
// write ends the replay with an error alongside the records read so far.
func (w *wal) replay() ([]model.Record, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	defer w.file.Seek(0, io.SeekEnd)

	var (
		recs   []model.Record
		lenBuf [4]byte
	)
	for {
		if _, err := io.ReadFull(w.file, lenBuf[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return recs, nil
			}
			return recs, fmt.Errorf("wal length: %w", err)
		}
		data := make([]byte, binary.LittleEndian.Uint32(lenBuf[:]))
		if _, err := io.ReadFull(w.file, data); err != nil {
			return recs, fmt.Errorf("wal entry: %w", err)
		}
		var rec model.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return recs, fmt.Errorf("wal decode: %w", err)
		}
		recs = append(recs, rec)
	}
}
