package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "github.com/viresathorn804-oss/discord-bot5/pkg/logx"
)

//go:embed migrations.sql
var migrationsSQL string

const timeLayout = time.RFC3339Nano

type sqliteStore struct {
	db       *sql.DB
	log      logx.Logger
	readOnly bool
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	dsn := path
	if cfg.ReadOnly {
		if err := mustExist(path); err != nil {
			return nil, err
		}
		dsn = "file:" + path + "?mode=ro"
	} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	pragmas := []string{fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds())}
	if !cfg.ReadOnly {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			log.Warn("sqlite pragma failed", logx.String("pragma", p), logx.Err(err))
		}
	}

	st := &sqliteStore{db: db, log: log, readOnly: cfg.ReadOnly}
	if cfg.ReadOnly {
		return st, nil
	}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migrationsSQL)
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if s.readOnly {
		return errReadOnly
	}
	e = prepareEntry(e)
	var due any
	if !e.DueAt.IsZero() {
		due = e.DueAt.Format(timeLayout)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(id, at, event, platform, scope_id, subject_id, actor_id, due_at, ok, err)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.At.Format(timeLayout), e.Event, nullStr(e.Platform), e.ScopeID, e.SubjectID,
		nullStr(e.ActorID), due, e.OK, nullStr(e.Error),
	)
	return err
}

func (s *sqliteStore) RecentAudit(ctx context.Context, limit int) ([]AuditEntry, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, at, event, platform, scope_id, subject_id, actor_id, due_at, ok, err
		 FROM audit ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var (
			e                               AuditEntry
			at                              string
			platform, actor, due, errString sql.NullString
		)
		if err := rows.Scan(&e.ID, &at, &e.Event, &platform, &e.ScopeID, &e.SubjectID, &actor, &due, &e.OK, &errString); err != nil {
			return nil, err
		}
		if e.At, err = time.Parse(timeLayout, at); err != nil {
			return nil, fmt.Errorf("audit %s: bad time %q: %w", e.ID, at, err)
		}
		if due.Valid {
			if e.DueAt, err = time.Parse(timeLayout, due.String); err != nil {
				return nil, fmt.Errorf("audit %s: bad due time %q: %w", e.ID, due.String, err)
			}
		}
		e.Platform, e.ActorID, e.Error = platform.String, actor.String, errString.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
