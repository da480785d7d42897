// Package store provides the SQLite storage layer for contest runs.
//
// Every pipeline run lands in a single SQLite database file:
// - Run metadata (inputs, data files, surgery and diagnostic counts)
// - The final table in long form, one row per answer slot
// - Tombstoned record indices
// - Every diagnostic the run produced
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hurttlocker/contest/internal/entry"
	"github.com/hurttlocker/contest/internal/report"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.contest/contest.db"

// Run is one stored pipeline run.
type Run struct {
	ID          string
	CreatedAt   time.Time
	Inputs      []string // input files in ingest order
	Aliases     string   // alias data source
	Overrides   string   // override file, empty when none
	Entries     int
	Deleted     int
	Surgery     report.Surgery
	Diagnostics map[entry.Kind]int
	Duration    time.Duration
}

// DiagnosticFilter narrows a diagnostics query. Zero fields match everything.
type DiagnosticFilter struct {
	Kind     entry.Kind
	Category entry.Category
	Record   *int
	Limit    int
}

// StoreStats holds observability statistics about the store.
type StoreStats struct {
	RunCount        int64
	RecordCount     int64
	AnswerCount     int64
	DiagnosticCount int64
	DBSizeBytes     int64
}

// StoreConfig holds configuration for NewStore.
type StoreConfig struct {
	DBPath string
}

// Store defines the run storage interface.
type Store interface {
	// Runs
	SaveRun(ctx context.Context, run *Run, t entry.Table, diags []entry.Diagnostic) error
	GetRun(ctx context.Context, id string) (*Run, error)
	LatestRun(ctx context.Context) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error

	// Tables
	LoadTable(ctx context.Context, runID string) (entry.Table, error)
	GetRecord(ctx context.Context, runID string, index int) (*entry.Record, error)
	CategoryCounts(ctx context.Context, runID string, c entry.Category) ([]report.Count, error)

	// Diagnostics
	Diagnostics(ctx context.Context, runID string, f DiagnosticFilter) ([]entry.Diagnostic, error)

	// Observability
	Stats(ctx context.Context) (*StoreStats, error)

	// Maintenance
	Vacuum(ctx context.Context) error
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewStore creates a new SQLite-backed Store.
// Pass ":memory:" for in-memory databases (testing).
func NewStore(cfg StoreConfig) (Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = expandPath(DefaultDBPath)
	}

	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if cfg.DBPath == ":memory:" {
		// each connection to :memory: is its own database
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{
		db:     db,
		dbPath: cfg.DBPath,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Vacuum runs VACUUM on the database.
func (s *SQLiteStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Stats returns current database statistics.
func (s *SQLiteStore) Stats(ctx context.Context) (*StoreStats, error) {
	stats := &StoreStats{}

	queries := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM runs", &stats.RunCount},
		{"SELECT COUNT(*) FROM records", &stats.RecordCount},
		{"SELECT COUNT(*) FROM answers WHERE value IS NOT NULL", &stats.AnswerCount},
		{"SELECT COUNT(*) FROM diagnostics", &stats.DiagnosticCount},
	}

	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("querying stats (%s): %w", q.query, err)
		}
	}

	if s.dbPath != ":memory:" {
		var pageCount, pageSize int64
		s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
		s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		stats.DBSizeBytes = pageCount * pageSize
	}

	return stats, nil
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
