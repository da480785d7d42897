package store

import (
	"database/sql"
	"fmt"
	"time"
)

// schemaVersion is bumped whenever the bootstrap DDL changes shape.
const schemaVersion = "1"

// migrate creates all tables if they don't exist and seeds metadata.
func (s *SQLiteStore) migrate() error {
	bootstrapDone, err := s.isMetaFlagEnabled("schema_bootstrap_complete")
	if err != nil {
		return fmt.Errorf("checking bootstrap state: %w", err)
	}

	if !bootstrapDone {
		if err := s.runBootstrapDDL(); err != nil {
			return err
		}
	}

	if err := s.seedMeta(); err != nil {
		return fmt.Errorf("seeding metadata: %w", err)
	}

	if !bootstrapDone {
		if err := s.setMetaFlag("schema_bootstrap_complete"); err != nil {
			return fmt.Errorf("marking bootstrap complete: %w", err)
		}
	}

	if err := s.migrateReportIndexes(); err != nil {
		return fmt.Errorf("migrating report indexes: %w", err)
	}

	return nil
}

func (s *SQLiteStore) runBootstrapDDL() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id                TEXT PRIMARY KEY,
			created_at        DATETIME NOT NULL,
			inputs            TEXT NOT NULL DEFAULT '[]',
			aliases           TEXT NOT NULL DEFAULT '',
			overrides         TEXT NOT NULL DEFAULT '',
			entries           INTEGER NOT NULL DEFAULT 0,
			deleted           INTEGER NOT NULL DEFAULT 0,
			surgery           TEXT NOT NULL DEFAULT '{}',
			diagnostic_counts TEXT NOT NULL DEFAULT '{}',
			duration_ms       INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS records (
			run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			idx      INTEGER NOT NULL,
			position INTEGER NOT NULL,
			author   TEXT NOT NULL,
			PRIMARY KEY (run_id, idx)
		)`,

		// One row per slot; value is NULL for an unanswered slot.
		`CREATE TABLE IF NOT EXISTS answers (
			run_id   TEXT NOT NULL,
			idx      INTEGER NOT NULL,
			slot     INTEGER NOT NULL,
			category INTEGER NOT NULL,
			value    TEXT,
			PRIMARY KEY (run_id, idx, slot),
			FOREIGN KEY (run_id, idx) REFERENCES records(run_id, idx) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS tombstones (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			idx    INTEGER NOT NULL,
			PRIMARY KEY (run_id, idx)
		)`,

		`CREATE TABLE IF NOT EXISTS diagnostics (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			kind         TEXT NOT NULL,
			record       INTEGER NOT NULL,
			author       TEXT NOT NULL DEFAULT '',
			category     INTEGER NOT NULL DEFAULT 0,
			slot         TEXT NOT NULL DEFAULT '',
			line         INTEGER NOT NULL DEFAULT 0,
			value        TEXT NOT NULL DEFAULT '',
			resolution   TEXT NOT NULL DEFAULT '',
			dropped      TEXT,
			alternatives TEXT,
			detail       TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_diagnostics_run_kind ON diagnostics(run_id, kind)`,

		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT
		)`,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning migration transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration %q: %w", truncate(stmt, 80), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration: %w", err)
	}

	return nil
}

func (s *SQLiteStore) isMetaFlagEnabled(key string) (bool, error) {
	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='meta'`).Scan(&exists); err != nil {
		return false, err
	}
	if exists == 0 {
		return false, nil
	}

	value, err := s.getMetaValue(key)
	if err != nil {
		return false, err
	}
	return value == "true", nil
}

func (s *SQLiteStore) setMetaFlag(key string) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES (?, 'true')", key)
	return err
}

// getMetaValue returns "" for a missing key.
func (s *SQLiteStore) getMetaValue(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading meta %q: %w", key, err)
	}
	return value, nil
}

// seedMeta initializes the meta table with defaults if not already set.
func (s *SQLiteStore) seedMeta() error {
	defaults := map[string]string{
		"schema_version": schemaVersion,
		"created_at":     time.Now().UTC().Format(time.RFC3339),
	}

	for k, v := range defaults {
		_, err := s.db.Exec(
			"INSERT OR IGNORE INTO meta (key, value) VALUES (?, ?)", k, v,
		)
		if err != nil {
			return fmt.Errorf("seeding meta key %q: %w", k, err)
		}
	}
	return nil
}

// migrateReportIndexes adds the covering index behind CategoryCounts.
func (s *SQLiteStore) migrateReportIndexes() error {
	done, err := s.isMetaFlagEnabled("report_indexes_v1")
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	indexes := []string{
		// GROUP BY value within one run and category.
		`CREATE INDEX IF NOT EXISTS idx_answers_run_category
		 ON answers(run_id, category, value)`,
	}

	for _, ddl := range indexes {
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("creating report index: %w", err)
		}
	}

	return s.setMetaFlag("report_indexes_v1")
}

// truncate shortens a string for error messages.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
