package schedule

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Store reads and writes the full set of pending actions as one record.
type Store interface {
	// Load returns an empty slice if no record exists yet.
	Load() ([]ScheduledAction, error)
	// Save replaces the record. A failed save leaves the previous record intact.
	Save(actions []ScheduledAction) error
}

const recordVersion = 1

type record struct {
	Version int           `json:"version"`
	Actions []recordEntry `json:"actions"`
}

type recordEntry struct {
	ScopeID   string `json:"scope_id"`
	SubjectID string `json:"subject_id"`
	DueAt     int64  `json:"due_at"` // unix milli
	Kind      Kind   `json:"kind"`
}

// FileStore keeps the record in a single JSON file.
//
// Writes go to a temp file in the same directory which is fsynced and renamed
// over the target, so readers see either the old or the new record.
type FileStore struct {
	path string
}

func NewFileStore(path string) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("schedule state path is required")
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load() ([]ScheduledAction, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []ScheduledAction{}, nil
	}
	if err != nil {
		return nil, &IOError{Op: "load", Path: s.path, Err: err}
	}
	actions, err := decodeRecord(b)
	if err != nil {
		return nil, &CorruptStateError{Path: s.path, Err: err}
	}
	return actions, nil
}

func (s *FileStore) Save(actions []ScheduledAction) error {
	b, err := encodeRecord(actions)
	if err != nil {
		return &IOError{Op: "save", Path: s.path, Err: err}
	}
	if err := writeFileAtomic(s.path, b); err != nil {
		return &IOError{Op: "save", Path: s.path, Err: err}
	}
	return nil
}

// Quarantine moves the current record aside so a corrupt file is kept for inspection
// instead of being overwritten by the next save. It returns the new path.
func (s *FileStore) Quarantine() (string, error) {
	dst := s.path + ".corrupt-" + strconv.FormatInt(time.Now().UnixMilli(), 10)
	if err := os.Rename(s.path, dst); err != nil {
		return "", &IOError{Op: "quarantine", Path: s.path, Err: err}
	}
	return dst, nil
}

// decodeRecord is strict: unknown fields, trailing data, bad entries and duplicate
// keys are all rejected rather than repaired.
func decodeRecord(b []byte) ([]ScheduledAction, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return []ScheduledAction{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var rec record
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, errors.New("trailing data after record")
		}
		return nil, err
	}
	if rec.Version != recordVersion {
		return nil, fmt.Errorf("unsupported record version %d", rec.Version)
	}

	out := make([]ScheduledAction, 0, len(rec.Actions))
	seen := make(map[Key]struct{}, len(rec.Actions))
	for i, e := range rec.Actions {
		a := ScheduledAction{ScopeID: e.ScopeID, SubjectID: e.SubjectID, DueAt: time.UnixMilli(e.DueAt), Kind: e.Kind}
		if e.DueAt <= 0 {
			return nil, fmt.Errorf("actions[%d]: due_at must be positive", i)
		}
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("actions[%d]: %w", i, err)
		}
		if a.ScopeID != strings.TrimSpace(a.ScopeID) || a.SubjectID != strings.TrimSpace(a.SubjectID) {
			return nil, fmt.Errorf("actions[%d]: ids must not have surrounding whitespace", i)
		}
		if _, dup := seen[a.Key()]; dup {
			return nil, fmt.Errorf("actions[%d]: duplicate entry for %s", i, a.Key())
		}
		seen[a.Key()] = struct{}{}
		out = append(out, a)
	}
	return out, nil
}

func encodeRecord(actions []ScheduledAction) ([]byte, error) {
	rec := record{Version: recordVersion, Actions: make([]recordEntry, 0, len(actions))}
	for _, a := range actions {
		rec.Actions = append(rec.Actions, recordEntry{
			ScopeID:   a.ScopeID,
			SubjectID: a.SubjectID,
			DueAt:     a.DueAt.UnixMilli(),
			Kind:      a.Kind,
		})
	}
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	ok := false
	defer func() {
		if !ok {
			_ = os.Remove(tmp)
		}
	}()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	ok = true
	syncDir(dir)
	return nil
}

// syncDir makes the rename durable. Not every platform can fsync a directory; failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
