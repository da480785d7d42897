package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hurttlocker/contest/internal/entry"
)

// ErrRunNotFound is returned when a run id matches nothing.
var ErrRunNotFound = errors.New("run not found")

// SaveRun stores a run, its final table and its diagnostics in one
// transaction. An empty run.ID is filled with a fresh UUID and a zero
// CreatedAt with the current time.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run, t entry.Table, diags []entry.Diagnostic) error {
	if run == nil {
		return fmt.Errorf("run cannot be nil")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	run.Entries = t.Len()
	run.Deleted = len(t.Deleted())
	if run.Diagnostics == nil {
		run.Diagnostics = entry.CountByKind(diags)
	}

	inputs, err := json.Marshal(nonNil(run.Inputs))
	if err != nil {
		return fmt.Errorf("encoding inputs: %w", err)
	}
	surgery, err := json.Marshal(run.Surgery)
	if err != nil {
		return fmt.Errorf("encoding surgery: %w", err)
	}
	counts, err := json.Marshal(run.Diagnostics)
	if err != nil {
		return fmt.Errorf("encoding diagnostic counts: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, inputs, aliases, overrides, entries, deleted, surgery, diagnostic_counts, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt, string(inputs), run.Aliases, run.Overrides,
		run.Entries, run.Deleted, string(surgery), string(counts), run.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	if err := insertRecords(ctx, tx, run.ID, t); err != nil {
		return err
	}
	if err := insertDiagnostics(ctx, tx, run.ID, diags); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run: %w", err)
	}
	return nil
}

func insertRecords(ctx context.Context, tx *sql.Tx, runID string, t entry.Table) error {
	recStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (run_id, idx, position, author) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing record insert: %w", err)
	}
	defer recStmt.Close()

	ansStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO answers (run_id, idx, slot, category, value) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing answer insert: %w", err)
	}
	defer ansStmt.Close()

	for pos, rec := range t.Records {
		if _, err := recStmt.ExecContext(ctx, runID, rec.Index, pos, rec.Author); err != nil {
			return fmt.Errorf("inserting record %d: %w", rec.Index, err)
		}
		for slot, v := range rec.Slots {
			if _, err := ansStmt.ExecContext(ctx, runID, rec.Index, slot, int(entry.SlotCategory(slot)), v); err != nil {
				return fmt.Errorf("inserting record %d slot %s: %w", rec.Index, entry.SlotName(slot), err)
			}
		}
	}

	for _, idx := range t.Deleted() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tombstones (run_id, idx) VALUES (?, ?)`, runID, idx); err != nil {
			return fmt.Errorf("inserting tombstone %d: %w", idx, err)
		}
	}
	return nil
}

func insertDiagnostics(ctx context.Context, tx *sql.Tx, runID string, diags []entry.Diagnostic) error {
	if len(diags) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO diagnostics (run_id, kind, record, author, category, slot, line, value, resolution, dropped, alternatives, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing diagnostic insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range diags {
		_, err := stmt.ExecContext(ctx, runID, string(d.Kind), d.Record, d.Author, int(d.Category),
			d.Slot, d.Line, d.Value, d.Resolution, marshalList(d.Dropped), marshalList(d.Alternatives), d.Detail)
		if err != nil {
			return fmt.Errorf("inserting %s diagnostic for record %d: %w", d.Kind, d.Record, err)
		}
	}
	return nil
}

const runColumns = `id, created_at, inputs, aliases, overrides, entries, deleted, surgery, diagnostic_counts, duration_ms`

// GetRun retrieves a run by id. Returns ErrRunNotFound if absent.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("getting run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting run %s: %w", id, err)
	}
	return r, nil
}

// LatestRun returns the most recently stored run, or nil when the store is empty.
func (s *SQLiteStore) LatestRun(ctx context.Context) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, rowid DESC LIMIT 1`)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting latest run: %w", err)
	}
	return r, nil
}

// ListRuns returns runs newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and everything stored under it.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting run %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("deleting run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		r                       Run
		inputs, surgery, counts string
		durationMS              int64
	)
	if err := row.Scan(&r.ID, &r.CreatedAt, &inputs, &r.Aliases, &r.Overrides,
		&r.Entries, &r.Deleted, &surgery, &counts, &durationMS); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(inputs), &r.Inputs); err != nil {
		return nil, fmt.Errorf("decoding inputs of run %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(surgery), &r.Surgery); err != nil {
		return nil, fmt.Errorf("decoding surgery of run %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(counts), &r.Diagnostics); err != nil {
		return nil, fmt.Errorf("decoding diagnostic counts of run %s: %w", r.ID, err)
	}
	r.Duration = time.Duration(durationMS) * time.Millisecond
	return &r, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// marshalList stores a string list as JSON, or NULL when empty.
func marshalList(list []string) any {
	if len(list) == 0 {
		return nil
	}
	b, err := json.Marshal(list)
	if err != nil {
		return nil
	}
	return string(b)
}

func unmarshalList(s sql.NullString) []string {
	if !s.Valid || s.String == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s.String), &out); err != nil {
		return nil
	}
	return out
}
