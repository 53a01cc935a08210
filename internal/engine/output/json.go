package output

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/rendis/yelptap/internal/model"
)

// JSONFile buffers records and writes them as one JSON array on Close.
// Any existing file at Path is replaced.
type JSONFile struct {
	Path string

	mu   sync.Mutex
	recs []model.BusinessRecord
}

func NewJSONFile(path string) *JSONFile {
	return &JSONFile{Path: path}
}

func (f *JSONFile) Emit(rec model.BusinessRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, rec)
	return nil
}

// Records returns a copy of what has been emitted so far.
func (f *JSONFile) Records() []model.BusinessRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.BusinessRecord, len(f.recs))
	copy(out, f.recs)
	return out
}

func (f *JSONFile) Close() error {
	return SaveJSON(f.Path, f.Records())
}

// EncodeJSON encodes records as a pretty JSON array. A nil slice encodes as [].
func EncodeJSON(recs []model.BusinessRecord) ([]byte, error) {
	if recs == nil {
		recs = []model.BusinessRecord{}
	}
	return json.MarshalIndent(recs, "", "  ")
}

func SaveJSON(path string, recs []model.BusinessRecord) error {
	data, err := EncodeJSON(recs)
	if err != nil {
		return fmt.Errorf("encoding json: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// LoadJSON reads a file written by JSONFile or SaveJSON.
func LoadJSON(path string) ([]model.BusinessRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var recs []model.BusinessRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return recs, nil
}
