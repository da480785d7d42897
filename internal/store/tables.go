package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hurttlocker/contest/internal/entry"
	"github.com/hurttlocker/contest/internal/report"
)

// LoadTable rebuilds a run's final table, tombstones included, in stored order.
func (s *SQLiteStore) LoadTable(ctx context.Context, runID string) (entry.Table, error) {
	if err := s.requireRun(ctx, runID); err != nil {
		return entry.Table{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT r.idx, r.author, a.slot, a.value
		 FROM records r JOIN answers a ON a.run_id = r.run_id AND a.idx = r.idx
		 WHERE r.run_id = ?
		 ORDER BY r.position, a.slot`, runID)
	if err != nil {
		return entry.Table{}, fmt.Errorf("loading table for run %s: %w", runID, err)
	}

	var recs []entry.Record
	for rows.Next() {
		var (
			idx, slot int
			author    string
			v         entry.Slot
		)
		if err := rows.Scan(&idx, &author, &slot, &v); err != nil {
			rows.Close()
			return entry.Table{}, fmt.Errorf("scanning answer: %w", err)
		}
		if n := len(recs); n == 0 || recs[n-1].Index != idx {
			recs = append(recs, entry.NewRecord(idx, author))
		}
		if slot >= 0 && slot < entry.SlotCount {
			recs[len(recs)-1].Slots[slot] = v
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return entry.Table{}, fmt.Errorf("loading table for run %s: %w", runID, err)
	}
	rows.Close()

	deleted, err := s.tombstones(ctx, runID)
	if err != nil {
		return entry.Table{}, err
	}
	return entry.NewTable(recs).WithDeleted(deleted...), nil
}

func (s *SQLiteStore) tombstones(ctx context.Context, runID string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx FROM tombstones WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("loading tombstones for run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			return nil, fmt.Errorf("scanning tombstone: %w", err)
		}
		out = append(out, idx)
	}
	return out, rows.Err()
}

// GetRecord retrieves one record of a run. Returns nil if the run has no
// surviving record with that index.
func (s *SQLiteStore) GetRecord(ctx context.Context, runID string, index int) (*entry.Record, error) {
	var author string
	err := s.db.QueryRowContext(ctx,
		`SELECT author FROM records WHERE run_id = ? AND idx = ?`, runID, index,
	).Scan(&author)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting record %d: %w", index, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT slot, value FROM answers WHERE run_id = ? AND idx = ? ORDER BY slot`, runID, index)
	if err != nil {
		return nil, fmt.Errorf("getting answers of record %d: %w", index, err)
	}
	defer rows.Close()

	rec := entry.NewRecord(index, author)
	for rows.Next() {
		var (
			slot int
			v    entry.Slot
		)
		if err := rows.Scan(&slot, &v); err != nil {
			return nil, fmt.Errorf("scanning answer: %w", err)
		}
		if slot >= 0 && slot < entry.SlotCount {
			rec.Slots[slot] = v
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// CategoryCounts tallies a category's non-null answers for a run, most
// frequent first and ties broken by value.
func (s *SQLiteStore) CategoryCounts(ctx context.Context, runID string, c entry.Category) ([]report.Count, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("category %d out of range 1-%d", int(c), entry.CategoryCount)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT value, COUNT(*) AS n FROM answers
		 WHERE run_id = ? AND category = ? AND value IS NOT NULL
		 GROUP BY value
		 ORDER BY n DESC, value ASC`, runID, int(c))
	if err != nil {
		return nil, fmt.Errorf("counting %s for run %s: %w", c, runID, err)
	}
	defer rows.Close()

	out := []report.Count{}
	for rows.Next() {
		var rc report.Count
		if err := rows.Scan(&rc.Value, &rc.Count); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

// Diagnostics returns a run's diagnostics in the order they were recorded.
func (s *SQLiteStore) Diagnostics(ctx context.Context, runID string, f DiagnosticFilter) ([]entry.Diagnostic, error) {
	where := []string{"run_id = ?"}
	args := []any{runID}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.Category != 0 {
		where = append(where, "category = ?")
		args = append(args, int(f.Category))
	}
	if f.Record != nil {
		where = append(where, "record = ?")
		args = append(args, *f.Record)
	}
	query := `SELECT kind, record, author, category, slot, line, value, resolution, dropped, alternatives, detail
		FROM diagnostics WHERE ` + strings.Join(where, " AND ") + ` ORDER BY id`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing diagnostics for run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []entry.Diagnostic
	for rows.Next() {
		var (
			d                     entry.Diagnostic
			kind                  string
			category              int
			dropped, alternatives sql.NullString
		)
		if err := rows.Scan(&kind, &d.Record, &d.Author, &category, &d.Slot, &d.Line,
			&d.Value, &d.Resolution, &dropped, &alternatives, &d.Detail); err != nil {
			return nil, fmt.Errorf("scanning diagnostic: %w", err)
		}
		d.Kind = entry.Kind(kind)
		d.Category = entry.Category(category)
		d.Dropped = unmarshalList(dropped)
		d.Alternatives = unmarshalList(alternatives)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) requireRun(ctx context.Context, runID string) error {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, runID).Scan(&n); err != nil {
		return fmt.Errorf("checking run %s: %w", runID, err)
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}
