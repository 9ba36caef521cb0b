package storage

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// migration is a numbered schema change. Migrations are applied in order
// and tracked in the schema_migrations table so each runs exactly once.
type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "key-value table",
		SQL: `
CREATE TABLE IF NOT EXISTS kv (
    key         TEXT PRIMARY KEY,
    value       BLOB NOT NULL,
    updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
);`,
	},
	{
		Version:     2,
		Description: "per-key revisions",
		SQL: `
CREATE TABLE IF NOT EXISTS kv_revisions (
    id          INTEGER PRIMARY KEY,
    key         TEXT NOT NULL,
    rev         INTEGER NOT NULL,
    value       BLOB NOT NULL,
    created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(key, rev)
);
INSERT INTO kv_revisions (key, rev, value, created_at)
SELECT key, 1, value, updated_at FROM kv;`,
	},
}

// OpenDB opens (or creates) a SQLite database at the given path.
// It creates parent directories if needed, enables foreign keys and WAL mode,
// and runs any pending migrations.
func OpenDB(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	// The daemon and the CLI editors share the file.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

// runMigrations ensures the schema_migrations table exists and applies any
// migration not yet recorded there.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version     INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.Version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if exists > 0 {
			continue
		}

		if _, err := db.Exec(m.SQL); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := db.Exec(
			"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// DefaultDBPath returns the default database file path:
// ~/.local/share/tabgruppen/tabgruppen.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "tabgruppen", "tabgruppen.db"), nil
}

// KV is a key-value store backed by the kv table. Every Set that changes a
// value also records a new revision for that key.
type KV struct {
	db *sql.DB
}

// NewKV wraps an open database.
func NewKV(db *sql.DB) *KV {
	return &KV{db: db}
}

// Get returns the value for key. ok is false when the key has never been set.
func (s *KV) Get(ctx context.Context, key string) (value []byte, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key in a single transaction. If the value is
// identical to the current one nothing is written.
func (s *KV) Set(ctx context.Context, key string, value []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current []byte
	err = tx.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("read %q: %w", key, err)
	case bytes.Equal(current, value):
		return nil
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value,
	); err != nil {
		return fmt.Errorf("write %q: %w", key, err)
	}

	var rev int
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(rev), 0) + 1 FROM kv_revisions WHERE key = ?", key,
	).Scan(&rev); err != nil {
		return fmt.Errorf("compute next rev: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO kv_revisions (key, rev, value) VALUES (?, ?, ?)", key, rev, value,
	); err != nil {
		return fmt.Errorf("insert revision %d of %q: %w", rev, key, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Revision is one recorded value of a key.
type Revision struct {
	Rev       int
	Value     []byte
	CreatedAt time.Time
}

// ListRevisions returns all revisions of key, newest first.
func (s *KV) ListRevisions(ctx context.Context, key string) ([]Revision, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT rev, value, created_at FROM kv_revisions WHERE key = ? ORDER BY rev DESC", key,
	)
	if err != nil {
		return nil, fmt.Errorf("query revisions: %w", err)
	}
	defer rows.Close()

	var result []Revision
	for rows.Next() {
		var r Revision
		if err := rows.Scan(&r.Rev, &r.Value, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revisions: %w", err)
	}
	return result, nil
}

// GetRevision loads one revision of key. rev 0 means the latest.
func (s *KV) GetRevision(ctx context.Context, key string, rev int) (*Revision, error) {
	r := &Revision{}
	var err error
	if rev == 0 {
		err = s.db.QueryRowContext(ctx,
			"SELECT rev, value, created_at FROM kv_revisions WHERE key = ? ORDER BY rev DESC LIMIT 1", key,
		).Scan(&r.Rev, &r.Value, &r.CreatedAt)
	} else {
		err = s.db.QueryRowContext(ctx,
			"SELECT rev, value, created_at FROM kv_revisions WHERE key = ? AND rev = ?", key, rev,
		).Scan(&r.Rev, &r.Value, &r.CreatedAt)
	}
	if errors.Is(err, sql.ErrNoRows) {
		if rev == 0 {
			return nil, fmt.Errorf("no revisions for %q", key)
		}
		return nil, fmt.Errorf("revision %d of %q not found", rev, key)
	}
	if err != nil {
		return nil, fmt.Errorf("query revision: %w", err)
	}
	return r, nil
}
