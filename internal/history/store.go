// Package history is the embedded SQL run-history store: one file per
// user, WAL mode, versioned migrations, 30-day auto-prune on open.
package history

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cwt-dev/cwtd/internal/cwterrors"
	"github.com/cwt-dev/cwtd/internal/types"
)

//go:embed schema.sql
var schemaSQL string

//go:embed migrations/002_run_indexes.sql
var migration002 string

const retention = 30 * 24 * time.Hour

// Store is the SQLite-backed RunRecord history.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the history database at path, runs
// migrations, and prunes rows older than 30 days.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &cwterrors.StoreError{Op: "mkdir", Err: err}
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, &cwterrors.StoreError{Op: "open", Err: err}
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, &cwterrors.StoreError{Op: "migrate", Err: err}
	}
	if err := s.prune(); err != nil {
		log.Printf("[HISTORY] warning: prune failed: %v", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}

	var version int
	err := s.db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("check schema version: %w", err)
	}

	if version < 2 {
		log.Println("[HISTORY] [MIGRATION] Running migration to v2: ensure run indexes")
		if _, err := s.db.Exec(migration002); err != nil {
			return fmt.Errorf("run migration 002: %w", err)
		}
		log.Println("[HISTORY] [MIGRATION] Successfully migrated to schema v2")
	}

	return nil
}

func (s *Store) prune() error {
	cutoff := time.Now().Add(-retention).UTC().Format(time.RFC3339)
	_, err := s.db.Exec("DELETE FROM runs WHERE started_at < ?", cutoff)
	return err
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Insert records a newly started run.
func (s *Store) Insert(r types.RunRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (id, job_name, started_at, trigger_type, stdout, stderr) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.JobName, r.StartedAt.UTC().Format(time.RFC3339), string(r.Trigger), r.Stdout, r.Stderr,
	)
	if err != nil {
		return &cwterrors.StoreError{Op: "insert", Err: err}
	}
	return nil
}

// UpdateFinished closes out a run. Idempotent: applying identical arguments
// twice leaves the row unchanged.
func (s *Store) UpdateFinished(id string, finishedAt time.Time, exitCode *int, stdout, stderr string) error {
	_, err := s.db.Exec(
		`UPDATE runs SET finished_at = ?, exit_code = ?, stdout = ?, stderr = ? WHERE id = ?`,
		finishedAt.UTC().Format(time.RFC3339), exitCode, stdout, stderr, id,
	)
	if err != nil {
		return &cwterrors.StoreError{Op: "update_finished", Err: err}
	}
	return nil
}

// GetRecent returns the most recent runs across all jobs, newest first.
func (s *Store) GetRecent(limit int) ([]types.RunRecord, error) {
	rows, err := s.db.Query(`SELECT id, job_name, started_at, finished_at, exit_code, trigger_type, stdout, stderr
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, &cwterrors.StoreError{Op: "get_recent", Err: err}
	}
	defer rows.Close()
	return scanRuns(rows)
}

// GetByJob returns the most recent runs for a single job, newest first.
func (s *Store) GetByJob(name string, limit int) ([]types.RunRecord, error) {
	rows, err := s.db.Query(`SELECT id, job_name, started_at, finished_at, exit_code, trigger_type, stdout, stderr
		FROM runs WHERE job_name = ? ORDER BY started_at DESC LIMIT ?`, name, limit)
	if err != nil {
		return nil, &cwterrors.StoreError{Op: "get_by_job", Err: err}
	}
	defer rows.Close()
	return scanRuns(rows)
}

// GetByID returns a single run, or nil if not found.
func (s *Store) GetByID(id string) (*types.RunRecord, error) {
	row := s.db.QueryRow(`SELECT id, job_name, started_at, finished_at, exit_code, trigger_type, stdout, stderr
		FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &cwterrors.StoreError{Op: "get_by_id", Err: err}
	}
	return r, nil
}

// DeleteRuns deletes the listed run ids. No-op on an empty list; does not
// cascade (runs carry no foreign keys).
func (s *Store) DeleteRuns(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]byte, 0, len(ids)*2)
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = id
	}
	_, err := s.db.Exec(fmt.Sprintf("DELETE FROM runs WHERE id IN (%s)", placeholders), args...)
	if err != nil {
		return &cwterrors.StoreError{Op: "delete_runs", Err: err}
	}
	return nil
}

// Clear deletes every run row.
func (s *Store) Clear() error {
	if _, err := s.db.Exec("DELETE FROM runs"); err != nil {
		return &cwterrors.StoreError{Op: "clear", Err: err}
	}
	return nil
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scannable) (*types.RunRecord, error) {
	var r types.RunRecord
	var started string
	var finished sql.NullString
	var exitCode sql.NullInt64
	var trig string
	if err := row.Scan(&r.ID, &r.JobName, &started, &finished, &exitCode, &trig, &r.Stdout, &r.Stderr); err != nil {
		return nil, err
	}
	if t, err := time.Parse(time.RFC3339, started); err == nil {
		r.StartedAt = t
	}
	if finished.Valid {
		if t, err := time.Parse(time.RFC3339, finished.String); err == nil {
			r.FinishedAt = &t
		}
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		r.ExitCode = &code
	}
	r.Trigger = types.Trigger(trig)
	return &r, nil
}

func scanRuns(rows *sql.Rows) ([]types.RunRecord, error) {
	var out []types.RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, &cwterrors.StoreError{Op: "scan", Err: err}
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}
