// Package runlog keeps a local SQLite journal of expansion runs, so an
// operator can see what past batches did without querying the main
// database.
package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Run is one journal entry covering a whole expansion batch.
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Seeds      []string  `json:"seeds"`
	Hops       int       `json:"hops"`
	Processed  int       `json:"processed"`
	Created    int       `json:"created"`
	Failed     int       `json:"failed"`
	Frontier   int       `json:"frontier"`
	Status     string    `json:"status"` // "ok", "partial", "aborted"
	Error      string    `json:"error,omitempty"`
}

// Journal is the SQLite-backed run log.
type Journal struct {
	db *sql.DB
}

// Open opens (or creates) the journal at path. Empty path defaults to
// ~/.go_botgraph/runs.db.
func Open(path string) (*Journal, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("runlog: resolve home dir: %w", err)
		}
		path = filepath.Join(home, ".go_botgraph", "runs.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("runlog: mkdir %s: %w", filepath.Dir(path), err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("runlog: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("runlog: init schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		started_at  TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		seeds       TEXT NOT NULL,
		hops        INTEGER NOT NULL,
		processed   INTEGER NOT NULL,
		created     INTEGER NOT NULL,
		failed      INTEGER NOT NULL,
		frontier    INTEGER NOT NULL,
		status      TEXT NOT NULL,
		error       TEXT
	)`)
	return err
}

// Record appends one run. A zero ID is assigned.
func (j *Journal) Record(ctx context.Context, run Run) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	_, err := j.db.ExecContext(ctx, `INSERT INTO runs
		(id, started_at, finished_at, seeds, hops, processed, created, failed, frontier, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.StartedAt.UTC().Format(time.RFC3339),
		run.FinishedAt.UTC().Format(time.RFC3339),
		strings.Join(run.Seeds, ","),
		run.Hops, run.Processed, run.Created, run.Failed, run.Frontier,
		run.Status, run.Error,
	)
	if err != nil {
		return "", fmt.Errorf("runlog: record: %w", err)
	}
	return run.ID, nil
}

// Recent returns the latest runs, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `SELECT
		id, started_at, finished_at, seeds, hops, processed, created, failed, frontier, status, COALESCE(error, '')
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("runlog: query: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished, seeds string
		if err := rows.Scan(&r.ID, &started, &finished, &seeds,
			&r.Hops, &r.Processed, &r.Created, &r.Failed, &r.Frontier,
			&r.Status, &r.Error); err != nil {
			return nil, fmt.Errorf("runlog: scan: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		if seeds != "" {
			r.Seeds = strings.Split(seeds, ",")
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Close releases the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
