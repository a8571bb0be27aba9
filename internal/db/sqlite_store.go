package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/deliblab/deliblab/internal/services"
)

// SQLitePersister keeps the application state blob in the kv table and appends audit
// entries to audit_log.
type SQLitePersister struct {
	db  *sql.DB
	key string
}

// OpenSQLite opens (creating if needed) the database at path and runs migrations.
func OpenSQLite(path, migrationsDir string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?cache=shared&_busy_timeout=5000", filepath.ToSlash(path))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := RunMigrations(db, migrationsDir); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

func NewSQLitePersister(db *sql.DB, key string) (*SQLitePersister, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	if key == "" {
		return nil, errors.New("empty state key")
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLitePersister{db: db, key: key}, nil
}

// Load returns nil when nothing has been saved yet.
func (s *SQLitePersister) Load(ctx context.Context) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, s.key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", s.key, err)
	}
	return blob, nil
}

func (s *SQLitePersister) Save(ctx context.Context, blob []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.key, blob, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save %s: %w", s.key, err)
	}
	return nil
}

func (s *SQLitePersister) AppendAudit(ctx context.Context, e services.AuditEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (time, actor, action, target, note) VALUES (?, ?, ?, ?, ?)`,
		e.Time.UTC().Format(time.RFC3339Nano), e.Actor, e.Action, e.Target, toNullString(e.Note))
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

// ListAudit returns entries for target (all entries when empty), oldest first.
func (s *SQLitePersister) ListAudit(ctx context.Context, target string) ([]services.AuditEntry, error) {
	q := `SELECT time, actor, action, target, note FROM audit_log`
	var args []any
	if target != "" {
		q += ` WHERE target = ?`
		args = append(args, target)
	}
	rows, err := s.db.QueryContext(ctx, q+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()
	var out []services.AuditEntry
	for rows.Next() {
		var (
			ts   string
			note sql.NullString
			e    services.AuditEntry
		)
		if err := rows.Scan(&ts, &e.Actor, &e.Action, &e.Target, &note); err != nil {
			return nil, err
		}
		e.Time, _ = time.Parse(time.RFC3339Nano, ts)
		e.Note = note.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
