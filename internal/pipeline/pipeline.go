// Package pipeline drives one batch run: extract every source, apply the
// override list, then canonicalize. Each stage returns a new table.
package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hurttlocker/contest/internal/canon"
	"github.com/hurttlocker/contest/internal/entry"
	"github.com/hurttlocker/contest/internal/extract"
	"github.com/hurttlocker/contest/internal/override"
)

// Pipeline wires the three stages together.
type Pipeline struct {
	Extractor *extract.Extractor
	Overrides *override.Layer
	Canon     *canon.Canonicalizer

	// Workers bounds per-record parallelism. Zero means GOMAXPROCS; one runs
	// sequentially. Output is identical for any value.
	Workers int

	Logger *zap.Logger
}

// Result holds every intermediate table of a run.
type Result struct {
	Raw       entry.Table
	Corrected entry.Table
	Canonical entry.Table

	Diagnostics []entry.Diagnostic // record order within each stage
	Applied     map[override.Action]int
	Effective   []override.Override // overrides that changed the table
	Duration    time.Duration
}

// Final returns the table downstream consumers use.
func (r *Result) Final() entry.Table { return r.Canonical }

// Run processes sources with the override list. An IndexNotFound from the
// override stage aborts the run.
func (p *Pipeline) Run(ctx context.Context, sources []entry.Source, overrides []override.Override) (*Result, error) {
	start := time.Now()
	log := p.logger()

	if p.Extractor == nil || p.Canon == nil {
		return nil, fmt.Errorf("pipeline: extractor and canonicalizer are required")
	}
	layer := p.Overrides
	if layer == nil {
		layer = override.New(p.Extractor, override.WithLogger(log))
	}

	res := &Result{}

	// Stage 1: extraction.
	recs := make([]entry.Record, len(sources))
	extractDiags := make([][]entry.Diagnostic, len(sources))
	err := p.forEach(ctx, len(sources), func(i int) {
		recs[i], extractDiags[i] = p.Extractor.Extract(sources[i])
	})
	if err != nil {
		return nil, fmt.Errorf("extracting entries: %w", err)
	}
	res.Raw = entry.NewTable(recs)
	for _, d := range extractDiags {
		res.Diagnostics = append(res.Diagnostics, d...)
	}
	log.Info("extracted entries", zap.Int("records", len(recs)), zap.Int("diagnostics", len(res.Diagnostics)))

	// Stage 2: overrides, strictly in list order.
	applied, err := layer.Apply(res.Raw, overrides)
	if err != nil {
		return nil, fmt.Errorf("applying overrides: %w", err)
	}
	res.Corrected = applied.Table
	res.Applied = applied.Applied
	res.Effective = applied.Effective
	res.Diagnostics = append(res.Diagnostics, applied.Diagnostics...)
	log.Info("applied overrides",
		zap.Int("overrides", len(overrides)),
		zap.Int("replace_text", applied.Applied[override.ActionReplaceText]),
		zap.Int("patch_slot", applied.Applied[override.ActionPatchSlot]),
		zap.Int("delete", applied.Applied[override.ActionDelete]),
	)

	// Stage 3: canonicalization.
	corrected := res.Corrected.Records
	canonical := make([]entry.Record, len(corrected))
	canonDiags := make([][]entry.Diagnostic, len(corrected))
	err = p.forEach(ctx, len(corrected), func(i int) {
		canonical[i], canonDiags[i] = p.Canon.CanonicalizeRecord(corrected[i])
	})
	if err != nil {
		return nil, fmt.Errorf("canonicalizing entries: %w", err)
	}
	res.Canonical = res.Corrected.WithRecords(canonical)
	for _, d := range canonDiags {
		res.Diagnostics = append(res.Diagnostics, d...)
	}

	res.Duration = time.Since(start)
	logDiagnostics(log, res.Diagnostics)
	log.Info("run complete",
		zap.Int("records", res.Canonical.Len()),
		zap.Int("deleted", len(res.Canonical.Deleted())),
		zap.Int("diagnostics", len(res.Diagnostics)),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// forEach runs fn for 0..n-1 on a bounded pool. fn writes only to its own
// index, so results keep input order.
func (p *Pipeline) forEach(ctx context.Context, n int, fn func(i int)) error {
	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers == 1 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(i)
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		if err := gctx.Err(); err != nil {
			break
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (p *Pipeline) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

func logDiagnostics(log *zap.Logger, diags []entry.Diagnostic) {
	for _, d := range diags {
		fields := []zap.Field{
			zap.String("kind", string(d.Kind)),
			zap.Int("record", d.Record),
			zap.String("author", d.Author),
		}
		if d.Slot != "" {
			fields = append(fields, zap.String("slot", d.Slot))
		}
		if d.Value != "" {
			fields = append(fields, zap.String("value", d.Value))
		}
		switch d.Kind {
		case entry.KindOverflowAnswers:
			log.Info("answers dropped", append(fields, zap.Strings("dropped", d.Dropped))...)
		case entry.KindAmbiguousEntity:
			log.Info("ambiguous answer resolved", append(fields,
				zap.String("resolution", d.Resolution),
				zap.Strings("alternatives", d.Alternatives))...)
		default:
			log.Debug("diagnostic", append(fields, zap.String("detail", d.Detail))...)
		}
	}
}
