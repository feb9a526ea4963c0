// Package store keeps a SQLite history of fetch runs and their per-bucket
// outcomes. It is a ledger only; nothing resumes from it.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = errors.New("run not found")

// Store provides SQLite-backed persistence
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens the SQLite database at dbPath and runs migrations
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: sqlite serializes writers anyway, and ":memory:"
	// databases are per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Debug("store initialized", "path", dbPath)
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// CreateRun inserts a run in the running state
func (s *Store) CreateRun(run *Run) error {
	if run.ID == "" {
		return errors.New("run ID is required")
	}
	if run.Status == "" {
		run.Status = StatusRunning
	}

	const query = `
		INSERT INTO runs (
			id, started_at, mode, concurrency, throttle_ms, output_dir, total, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		run.ID, run.StartedAt.UTC(), run.Mode, run.Concurrency, run.ThrottleMS,
		run.OutputDir, run.Total, run.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// FinishRun writes the final counters and status of a run
func (s *Store) FinishRun(run *Run) error {
	const query = `
		UPDATE runs SET
			finished_at = ?, total = ?, succeeded = ?, failed = ?,
			bytes = ?, status = ?, error_message = ?
		WHERE id = ?
	`
	result, err := s.db.Exec(query,
		run.FinishedAt.UTC(), run.Total, run.Succeeded, run.Failed,
		run.Bytes, run.Status, run.ErrorMessage, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
	}
	return nil
}

// RecordBucket appends one bucket outcome to a run
func (s *Store) RecordBucket(rec *BucketRecord) error {
	const query = `
		INSERT INTO run_buckets (
			run_id, bucket_key, status, bytes, records, files, error, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.Exec(query,
		rec.RunID, rec.Key, rec.Status, rec.Bytes, rec.Records, rec.Files,
		rec.Error, rec.StartedAt.UTC(), rec.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert bucket record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	rec.ID = id
	return nil
}

const runColumns = `
	id, started_at, finished_at, mode, concurrency, throttle_ms,
	output_dir, total, succeeded, failed, bytes, status, error_message
`

func scanRun(row interface{ Scan(...any) error }) (Run, error) {
	var run Run
	var finished sql.NullTime
	err := row.Scan(
		&run.ID, &run.StartedAt, &finished, &run.Mode, &run.Concurrency,
		&run.ThrottleMS, &run.OutputDir, &run.Total, &run.Succeeded,
		&run.Failed, &run.Bytes, &run.Status, &run.ErrorMessage,
	)
	run.FinishedAt = finished.Time
	return run, err
}

// GetRun retrieves a run by ID
func (s *Store) GetRun(id string) (*Run, error) {
	run, err := scanRun(s.db.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	return &run, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY started_at DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// ListBuckets returns the bucket outcomes of a run in the order they were
// recorded, optionally only the failed ones.
func (s *Store) ListBuckets(runID string, failedOnly bool) ([]BucketRecord, error) {
	query := `
		SELECT id, run_id, bucket_key, status, bytes, records, files, error,
		       started_at, finished_at
		FROM run_buckets WHERE run_id = ?
	`
	args := []any{runID}
	if failedOnly {
		query += " AND status = ?"
		args = append(args, StatusFailed)
	}
	query += " ORDER BY id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bucket records: %w", err)
	}
	defer rows.Close()

	var out []BucketRecord
	for rows.Next() {
		var rec BucketRecord
		var started, finished sql.NullTime
		if err := rows.Scan(
			&rec.ID, &rec.RunID, &rec.Key, &rec.Status, &rec.Bytes, &rec.Records,
			&rec.Files, &rec.Error, &started, &finished,
		); err != nil {
			return nil, fmt.Errorf("failed to scan bucket record: %w", err)
		}
		rec.StartedAt = started.Time
		rec.FinishedAt = finished.Time
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bucket records: %w", err)
	}
	return out, nil
}

// PruneRuns deletes runs (and their buckets) that started before cutoff.
// It returns the number of runs removed.
func (s *Store) PruneRuns(cutoff time.Time) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"DELETE FROM run_buckets WHERE run_id IN (SELECT id FROM runs WHERE started_at < ?)",
		cutoff.UTC(),
	); err != nil {
		return 0, fmt.Errorf("failed to delete bucket records: %w", err)
	}
	result, err := tx.Exec("DELETE FROM runs WHERE started_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete runs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prune: %w", err)
	}
	return n, nil
}
