package aggregate

import (
	"context"
	"time"

	"traceScope/internal/jsonfile"
)

// StateStore persists the last aggregated action timestamp.
type StateStore interface {
	Load(ctx context.Context) (uint64, bool, error)
	Save(ctx context.Context, ts uint64) error
}

// FileStateStore keeps state in a local JSON file. Several aggregations
// (one per window size) can share a file under different names.
type FileStateStore struct {
	Path string
	Name string
}

type stateEntry struct {
	LastProcessed uint64 `json:"last_processed_ts"`
	UpdatedAt     string `json:"updated_at"`
}

type stateFile struct {
	Entries map[string]stateEntry `json:"entries"`
}

func (s *FileStateStore) read() (stateFile, error) {
	var file stateFile
	if _, err := jsonfile.Read(s.Path, &file); err != nil {
		return stateFile{}, err
	}
	if file.Entries == nil {
		file.Entries = make(map[string]stateEntry)
	}
	return file, nil
}

func (s *FileStateStore) Load(ctx context.Context) (uint64, bool, error) {
	if s == nil || s.Path == "" {
		return 0, false, nil
	}
	file, err := s.read()
	if err != nil {
		return 0, false, err
	}
	entry, ok := file.Entries[s.Name]
	return entry.LastProcessed, ok, nil
}

func (s *FileStateStore) Save(ctx context.Context, ts uint64) error {
	if s == nil || s.Path == "" {
		return nil
	}
	file, err := s.read()
	if err != nil {
		return err
	}
	file.Entries[s.Name] = stateEntry{
		LastProcessed: ts,
		UpdatedAt:     time.Now().UTC().Format(time.RFC3339Nano),
	}
	return jsonfile.Write(s.Path, file)
}
