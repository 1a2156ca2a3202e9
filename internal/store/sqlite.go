package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

var sqliteDialect = dialect{
	schema: `CREATE TABLE IF NOT EXISTS kv (
		key   TEXT PRIMARY KEY,
		value BLOB NOT NULL
	)`,
	get:    `SELECT value FROM kv WHERE key = ?`,
	upsert: `INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
}

// SQLite is the default local backend: one database file on disk.
type SQLite struct {
	*sqlKV
	path string
}

// NewSQLite opens (creating if needed) the database file at path.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("sqlite path required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// one writer at a time; the file is local to this process
	db.SetMaxOpenConns(1)

	kv, err := newSQLKV(ctx, db, sqliteDialect)
	if err != nil {
		return nil, err
	}
	return &SQLite{sqlKV: kv, path: path}, nil
}

// Path returns the database file location.
func (s *SQLite) Path() string { return s.path }
