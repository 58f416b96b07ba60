package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "github.com/viresathorn804-oss/discord-bot5/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("Open(%q) = %v, %v; want nil, nil", driver, st, err)
		}
	}
	if _, err := Open(Config{Driver: "postgres", Path: "x"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestAuditDrivers(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		driver string
		file   string
	}{
		{name: "file", driver: "file", file: "audit.json"},
		{name: "sqlite", driver: "sqlite", file: "audit.db"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			st, err := Open(Config{Driver: tt.driver, Path: filepath.Join(t.TempDir(), tt.file)}, logx.Nop())
			if err != nil {
				t.Fatalf("Open error: %v", err)
			}
			defer st.Close()

			ctx := context.Background()
			base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
			events := []AuditEntry{
				{At: base, Event: "schedule.scheduled", ScopeID: "g", SubjectID: "1", DueAt: base.Add(time.Hour), OK: true},
				{At: base.Add(time.Second), Event: "schedule.fired", ScopeID: "g", SubjectID: "1", OK: true},
				{At: base.Add(2 * time.Second), Event: "schedule.failed", ScopeID: "g", SubjectID: "2", Error: "unknown ban"},
			}
			for _, e := range events {
				if err := st.AppendAudit(ctx, e); err != nil {
					t.Fatalf("AppendAudit error: %v", err)
				}
			}

			got, err := st.RecentAudit(ctx, 2)
			if err != nil {
				t.Fatalf("RecentAudit error: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("RecentAudit returned %d entries, want 2", len(got))
			}
			if got[0].Event != "schedule.failed" || got[1].Event != "schedule.fired" {
				t.Fatalf("order = %s, %s", got[0].Event, got[1].Event)
			}
			if got[0].ID == "" || got[0].ID == got[1].ID {
				t.Fatalf("ids not assigned: %q %q", got[0].ID, got[1].ID)
			}
			if got[0].Error != "unknown ban" || got[0].OK {
				t.Fatalf("failed entry = %+v", got[0])
			}
			if !got[1].At.Equal(base.Add(time.Second)) {
				t.Fatalf("At = %v", got[1].At)
			}

			all, err := st.RecentAudit(ctx, 10)
			if err != nil {
				t.Fatal(err)
			}
			if len(all) != 3 || !all[2].DueAt.Equal(base.Add(time.Hour)) {
				t.Fatalf("all = %+v", all)
			}
		})
	}
}

func TestReadOnlyOpen(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		driver string
		file   string
	}{
		{name: "file", driver: "file", file: "audit.json"},
		{name: "sqlite", driver: "sqlite", file: "audit.db"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir := filepath.Join(t.TempDir(), "missing")
			path := filepath.Join(dir, tt.file)

			_, err := Open(Config{Driver: tt.driver, Path: path, ReadOnly: true}, logx.Nop())
			if !errors.Is(err, fs.ErrNotExist) {
				t.Fatalf("Open missing store err=%v, want not-exist", err)
			}
			if _, err := os.Stat(dir); !errors.Is(err, fs.ErrNotExist) {
				t.Fatalf("read-only open created %s (stat err=%v)", dir, err)
			}

			ctx := context.Background()
			w, err := Open(Config{Driver: tt.driver, Path: path}, logx.Nop())
			if err != nil {
				t.Fatalf("Open writer: %v", err)
			}
			if err := w.AppendAudit(ctx, AuditEntry{Event: "schedule.fired", ScopeID: "g", SubjectID: "1", OK: true}); err != nil {
				t.Fatalf("AppendAudit: %v", err)
			}
			if err := w.Close(); err != nil {
				t.Fatalf("Close writer: %v", err)
			}

			r, err := Open(Config{Driver: tt.driver, Path: path, ReadOnly: true}, logx.Nop())
			if err != nil {
				t.Fatalf("Open reader: %v", err)
			}
			defer r.Close()
			got, err := r.RecentAudit(ctx, 5)
			if err != nil || len(got) != 1 || got[0].SubjectID != "1" {
				t.Fatalf("RecentAudit = %+v, %v", got, err)
			}
			if err := r.AppendAudit(ctx, AuditEntry{Event: "x"}); !errors.Is(err, errReadOnly) {
				t.Fatalf("AppendAudit on reader err=%v", err)
			}
		})
	}
}
