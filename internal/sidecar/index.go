package sidecar

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const indexSchemaSQL = `
CREATE TABLE IF NOT EXISTS attrs (
	path       TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      BLOB NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (path, key)
);

CREATE INDEX IF NOT EXISTS idx_attrs_path ON attrs(path);
`

// Index keeps attributes in a SQLite side file keyed by absolute path. It
// serves filesystems without extended attributes and survives atomic
// replaces, but not moves made by other tools.
type Index struct {
	conn *sql.DB
}

var _ Forgetter = (*Index)(nil)

// OpenIndex opens (or creates) the index database and applies the schema.
func OpenIndex(dsn string) (*Index, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sidecar: open index: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sidecar: ping index: %w", err)
	}
	if _, err := conn.Exec(indexSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sidecar: apply schema: %w", err)
	}
	return &Index{conn: conn}, nil
}

func (x *Index) Get(path, key string) ([]byte, bool, error) {
	var v []byte
	err := x.conn.QueryRow(`SELECT value FROM attrs WHERE path = ? AND key = ?`, indexKey(path), key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sidecar: get %s: %w", key, err)
	}
	return v, true, nil
}

func (x *Index) Set(path, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := x.conn.Exec(`
		INSERT INTO attrs (path, key, value, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(path, key) DO UPDATE SET
			value      = excluded.value,
			updated_at = excluded.updated_at
	`, indexKey(path), key, value)
	if err != nil {
		return fmt.Errorf("sidecar: set %s: %w", key, err)
	}
	return nil
}

// Forget drops every attribute recorded for path.
func (x *Index) Forget(path string) error {
	if _, err := x.conn.Exec(`DELETE FROM attrs WHERE path = ?`, indexKey(path)); err != nil {
		return fmt.Errorf("sidecar: forget: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (x *Index) Close() error {
	return x.conn.Close()
}

func indexKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
