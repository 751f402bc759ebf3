package segstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/coffersTech/behavelog/internal/model"
)

type document struct {
	Logs []model.Record `json:"logs"`
}

// codec turns record batches into segment bytes and back. Encoder and
// decoder are safe for concurrent EncodeAll/DecodeAll calls.
type codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newCodec() (*codec, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &codec{enc: enc, dec: dec}, nil
}

func (c *codec) encode(recs []model.Record, compress bool) ([]byte, error) {
	data, err := json.Marshal(document{Logs: recs})
	if err != nil {
		return nil, err
	}
	if compress {
		data = c.enc.EncodeAll(data, make([]byte, 0, len(data)/2))
	}
	return data, nil
}

// load returns the raw JSON document of the segment at path.
func (c *codec) load(path string, compressed bool) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !compressed {
		return data, nil
	}
	raw, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptSegment, filepath.Base(path), err)
	}
	return raw, nil
}

// writeAtomic writes data to a hidden temp file in the same directory and
// renames it into place, so readers never see a partial segment.
func writeAtomic(path string, data []byte) error {
	dir, name := filepath.Split(path)
	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
