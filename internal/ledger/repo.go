package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/logbridge/internal/apperr"
	"github.com/starford/logbridge/internal/convert"
	"github.com/starford/logbridge/internal/resolver"
)

// Store is the ledger as seen by its consumers.
type Store interface {
	RecordRun(r *convert.Report) error
	Runs(limit int) ([]RunRow, error)
	Documents(runID string) ([]DocumentRow, error)
	LastOutputs() ([]string, error)
	LookupBlock(id string) (resolver.Target, error)
	Close() error
}

var _ Store = (*DB)(nil)

// RunRow is one row of the runs table.
type RunRow struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DryRun     bool      `json:"dry_run"`
	Documents  int       `json:"documents"`
	Converted  int       `json:"converted"`
	Failed     int       `json:"failed"`
	Anchors    int       `json:"anchors"`
	Unresolved int       `json:"unresolved"`
	Duplicates int       `json:"duplicates"`
}

// DocumentRow is one row of the documents table.
type DocumentRow struct {
	Source   string `json:"source"`
	Output   string `json:"output"`
	Category string `json:"category,omitempty"`
	Checksum string `json:"checksum,omitempty"`
	Error    string `json:"error,omitempty"`
}

// RecordRun stores a report, its documents and its identifier map in one
// transaction.
func (db *DB) RecordRun(r *convert.Report) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("ledger: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	t := r.Totals
	_, err = tx.Exec(`
		INSERT INTO runs (id, started_at, finished_at, dry_run, documents, converted, failed, anchors, unresolved, duplicates)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at = excluded.finished_at,
			documents   = excluded.documents,
			converted   = excluded.converted,
			failed      = excluded.failed,
			anchors     = excluded.anchors,
			unresolved  = excluded.unresolved,
			duplicates  = excluded.duplicates
	`, r.RunID, r.StartedAt, r.FinishedAt, r.DryRun, t.Documents, t.Converted, t.Failed, t.Anchors, t.Unresolved, t.Duplicates)
	if err != nil {
		return fmt.Errorf("ledger: upsert run: %w", err)
	}

	docStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO documents (run_id, source, output, category, checksum, error)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("ledger: prepare document insert: %w", err)
	}
	defer docStmt.Close()
	for _, d := range r.Documents {
		if _, err := docStmt.Exec(r.RunID, d.Source, d.Output, d.Category, d.Checksum, d.Error); err != nil {
			return fmt.Errorf("ledger: insert document: %w", err)
		}
	}

	if r.Resolution != nil {
		blockStmt, err := tx.Prepare(`
			INSERT OR REPLACE INTO blocks (run_id, id, document, anchor, path, line)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("ledger: prepare block insert: %w", err)
		}
		defer blockStmt.Close()
		m := r.Resolution.Map
		for _, id := range m.IDs() {
			tg, _ := m.Lookup(id)
			if _, err := blockStmt.Exec(r.RunID, id, tg.Document, tg.Anchor, tg.Path, tg.Line); err != nil {
				return fmt.Errorf("ledger: insert block: %w", err)
			}
		}
	}

	return tx.Commit()
}

// Runs returns the most recent runs, newest first.
func (db *DB) Runs(limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT id, started_at, finished_at, dry_run, documents, converted, failed, anchors, unresolved, duplicates
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: runs: %w", err)
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var r RunRow
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.DryRun, &r.Documents,
			&r.Converted, &r.Failed, &r.Anchors, &r.Unresolved, &r.Duplicates); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Documents returns the document rows of a run ordered by source path.
func (db *DB) Documents(runID string) ([]DocumentRow, error) {
	rows, err := db.conn.Query(`
		SELECT source, output, category, checksum, error
		FROM documents WHERE run_id = ? ORDER BY source`, runID)
	if err != nil {
		return nil, fmt.Errorf("ledger: documents: %w", err)
	}
	defer rows.Close()

	var out []DocumentRow
	for rows.Next() {
		var d DocumentRow
		if err := rows.Scan(&d.Source, &d.Output, &d.Category, &d.Checksum, &d.Error); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// LastOutputs returns the outputs written by the most recent run that was
// not a dry run.
func (db *DB) LastOutputs() ([]string, error) {
	rows, err := db.conn.Query(`
		SELECT output FROM documents
		WHERE run_id = (SELECT id FROM runs WHERE dry_run = 0 ORDER BY started_at DESC LIMIT 1)
		  AND output != '' AND error = ''
		ORDER BY output`)
	if err != nil {
		return nil, fmt.Errorf("ledger: last outputs: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// LookupBlock finds an identifier in the most recent run that resolved it.
func (db *DB) LookupBlock(id string) (resolver.Target, error) {
	var t resolver.Target
	err := db.conn.QueryRow(`
		SELECT b.document, b.anchor, b.path, b.line
		FROM blocks b JOIN runs r ON r.id = b.run_id
		WHERE b.id = ?
		ORDER BY r.started_at DESC LIMIT 1`, id).Scan(&t.Document, &t.Anchor, &t.Path, &t.Line)
	if errors.Is(err, sql.ErrNoRows) {
		return t, apperr.ErrNotFound
	}
	if err != nil {
		return t, fmt.Errorf("ledger: lookup block: %w", err)
	}
	return t, nil
}
