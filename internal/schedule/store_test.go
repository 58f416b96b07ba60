package schedule

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testAction(scope, subject string, due time.Time) ScheduledAction {
	return ScheduledAction{ScopeID: scope, SubjectID: subject, DueAt: due, Kind: KindLiftRestriction}
}

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "state", "schedule.json"))
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	return s
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	base := time.UnixMilli(1_700_000_000_123)
	tests := []struct {
		name    string
		actions []ScheduledAction
	}{
		{name: "empty", actions: nil},
		{name: "one", actions: []ScheduledAction{testAction("g1", "u1", base)}},
		{name: "many", actions: []ScheduledAction{
			testAction("g1", "u1", base),
			testAction("g1", "u2", base.Add(time.Minute)),
			testAction("g2", "u1", base.Add(time.Hour)),
		}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newTestFileStore(t)
			if err := s.Save(tt.actions); err != nil {
				t.Fatalf("Save error: %v", err)
			}
			got, err := s.Load()
			if err != nil {
				t.Fatalf("Load error: %v", err)
			}
			if len(got) != len(tt.actions) {
				t.Fatalf("Load returned %d actions, want %d", len(got), len(tt.actions))
			}
			for i := range got {
				if !got[i].Equal(tt.actions[i]) {
					t.Fatalf("actions[%d] = %+v, want %+v", i, got[i], tt.actions[i])
				}
			}
		})
	}
}

func TestFileStoreSaveOfLoadIsByteIdentical(t *testing.T) {
	t.Parallel()
	s := newTestFileStore(t)
	base := time.UnixMilli(1_700_000_000_000)
	if err := s.Save([]ScheduledAction{
		testAction("-1001", "42", base),
		testAction("-1001", "43", base.Add(90*time.Second)),
	}); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	before, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if err := s.Save(loaded); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	after, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Fatalf("record changed after Save(Load()):\n%s\n---\n%s", before, after)
	}
}

func TestFileStoreEmptyRecordLayout(t *testing.T) {
	t.Parallel()
	s := newTestFileStore(t)
	if err := s.Save(nil); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	b, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"actions": []`) {
		t.Fatalf("empty record should carry an empty actions array, got %s", b)
	}
	info, err := os.Stat(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("record mode = %v, want 0600", perm)
	}
}

func TestFileStoreMissingOrBlank(t *testing.T) {
	t.Parallel()
	s := newTestFileStore(t)
	got, err := s.Load()
	if err != nil || len(got) != 0 {
		t.Fatalf("missing file: got %v, %v; want empty, nil", got, err)
	}

	if err := os.MkdirAll(filepath.Dir(s.Path()), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.Path(), []byte(" \n\t"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err = s.Load()
	if err != nil || len(got) != 0 {
		t.Fatalf("blank file: got %v, %v; want empty, nil", got, err)
	}
}

func TestFileStoreCorruptRecords(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
	}{
		{name: "truncated", body: `{"version":1,"actions":[`},
		{name: "trailing data", body: `{"version":1,"actions":[]} {}`},
		{name: "unknown field", body: `{"version":1,"actions":[],"extra":true}`},
		{name: "wrong version", body: `{"version":2,"actions":[]}`},
		{name: "array", body: `[]`},
		{name: "empty scope", body: `{"version":1,"actions":[{"scope_id":"","subject_id":"u","due_at":1,"kind":"lift_restriction"}]}`},
		{name: "empty subject", body: `{"version":1,"actions":[{"scope_id":"g","subject_id":" ","due_at":1,"kind":"lift_restriction"}]}`},
		{name: "zero due", body: `{"version":1,"actions":[{"scope_id":"g","subject_id":"u","due_at":0,"kind":"lift_restriction"}]}`},
		{name: "unknown kind", body: `{"version":1,"actions":[{"scope_id":"g","subject_id":"u","due_at":1,"kind":"kick"}]}`},
		{name: "padded scope", body: `{"version":1,"actions":[{"scope_id":" g","subject_id":"u","due_at":1,"kind":"lift_restriction"}]}`},
		{name: "padded subject", body: `{"version":1,"actions":[{"scope_id":"g","subject_id":"u ","due_at":1,"kind":"lift_restriction"}]}`},
		{name: "duplicate key", body: `{"version":1,"actions":[` +
			`{"scope_id":"g","subject_id":"u","due_at":1,"kind":"lift_restriction"},` +
			`{"scope_id":"g","subject_id":"u","due_at":2,"kind":"lift_restriction"}]}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newTestFileStore(t)
			if err := os.MkdirAll(filepath.Dir(s.Path()), 0o755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(s.Path(), []byte(tt.body), 0o600); err != nil {
				t.Fatal(err)
			}
			_, err := s.Load()
			var corrupt *CorruptStateError
			if !errors.As(err, &corrupt) {
				t.Fatalf("Load error = %v, want *CorruptStateError", err)
			}
		})
	}
}

func TestFileStoreSaveFailureLeavesNoTempFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "schedule.json")
	// A directory at the target path makes the final rename fail.
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatal(err)
	}
	s, err := NewFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	err = s.Save([]ScheduledAction{testAction("g", "u", time.Now().Add(time.Hour))})
	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("Save error = %v, want *IOError", err)
	}
	if ioErr.Op != "save" {
		t.Fatalf("IOError.Op = %q, want save", ioErr.Op)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Fatalf("temp file %s left behind", e.Name())
		}
	}
}

func TestFileStoreQuarantine(t *testing.T) {
	t.Parallel()
	s := newTestFileStore(t)
	if err := os.MkdirAll(filepath.Dir(s.Path()), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.Path(), []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}
	dst, err := s.Quarantine()
	if err != nil {
		t.Fatalf("Quarantine error: %v", err)
	}
	if !strings.HasPrefix(dst, s.Path()+".corrupt-") {
		t.Fatalf("quarantine path = %s", dst)
	}
	if b, err := os.ReadFile(dst); err != nil || string(b) != "garbage" {
		t.Fatalf("quarantined content = %q, %v", b, err)
	}
	if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
		t.Fatalf("corrupt record still present: %v", err)
	}
}

func TestNewFileStoreRequiresPath(t *testing.T) {
	t.Parallel()
	if _, err := NewFileStore("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
