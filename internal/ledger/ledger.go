// Package ledger records conversion runs in SQLite: one row per run, one
// per converted document, and the identifier map of every run.
package ledger

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL,
	dry_run     INTEGER NOT NULL DEFAULT 0,
	documents   INTEGER NOT NULL DEFAULT 0,
	converted   INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	anchors     INTEGER NOT NULL DEFAULT 0,
	unresolved  INTEGER NOT NULL DEFAULT 0,
	duplicates  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS documents (
	run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	source   TEXT NOT NULL,
	output   TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	checksum TEXT NOT NULL DEFAULT '',
	error    TEXT NOT NULL DEFAULT '',
	UNIQUE(run_id, source)
);

CREATE TABLE IF NOT EXISTS blocks (
	run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	id       TEXT NOT NULL,
	document TEXT NOT NULL,
	anchor   TEXT NOT NULL,
	path     TEXT NOT NULL,
	line     INTEGER NOT NULL,
	UNIQUE(run_id, id)
);

CREATE INDEX IF NOT EXISTS idx_documents_run ON documents(run_id);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

// DB wraps a sql.DB with ledger operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("ledger: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ledger: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ledger: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
