package store

import (
	"fmt"
)

// migrations are applied in order; never edit an applied entry, append a new one
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
			CREATE TABLE runs (
				id TEXT PRIMARY KEY,
				started_at DATETIME NOT NULL,
				finished_at DATETIME,
				mode TEXT NOT NULL,
				concurrency INTEGER NOT NULL,
				throttle_ms INTEGER NOT NULL,
				output_dir TEXT NOT NULL,
				total INTEGER DEFAULT 0,
				succeeded INTEGER DEFAULT 0,
				failed INTEGER DEFAULT 0,
				bytes INTEGER DEFAULT 0,
				status TEXT DEFAULT 'running',
				error_message TEXT DEFAULT ''
			);

			CREATE TABLE run_buckets (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id TEXT NOT NULL,
				bucket_key TEXT NOT NULL,
				status TEXT NOT NULL,
				bytes INTEGER DEFAULT 0,
				records INTEGER DEFAULT 0,
				files TEXT DEFAULT '',
				error TEXT DEFAULT '',
				started_at DATETIME,
				finished_at DATETIME,
				FOREIGN KEY(run_id) REFERENCES runs(id)
			);
		`,
	},
	{
		version: 2,
		sql: `
			CREATE INDEX idx_run_buckets_run ON run_buckets(run_id);
			CREATE INDEX idx_runs_started ON runs(started_at);
		`,
	},
}

// migrate runs all pending migrations
func (s *Store) migrate() error {
	const createMigrationsTableSQL = `
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY,
			version INTEGER NOT NULL UNIQUE,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`
	if _, err := s.db.Exec(createMigrationsTableSQL); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}
	s.logger.Debug("current schema version", "version", currentVersion)

	for _, mig := range migrations {
		if mig.version <= currentVersion {
			continue
		}
		s.logger.Debug("running migration", "version", mig.version)
		if err := s.runMigration(mig.version, mig.sql); err != nil {
			return fmt.Errorf("failed to run migration %d: %w", mig.version, err)
		}
	}
	return nil
}

// runMigration executes a migration and records it in one transaction
func (s *Store) runMigration(version int, sql string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(sql); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration transaction: %w", err)
	}
	return nil
}
