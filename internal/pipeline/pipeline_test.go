package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurttlocker/contest/internal/canon"
	"github.com/hurttlocker/contest/internal/entry"
	"github.com/hurttlocker/contest/internal/extract"
	"github.com/hurttlocker/contest/internal/override"
)

func newTestPipeline(t *testing.T, workers int) *Pipeline {
	t.Helper()
	cz, err := canon.New(canon.Config{
		Tables: map[string]canon.AliasTable{
			"teams": {"tampa": "tbl", "lightning": "tbl", "colorado": "col", "avs": "col"},
		},
		Categories: map[entry.Category]canon.CategoryConfig{
			1: {Tables: []string{"teams"}},
			2: {Tables: []string{"teams"}, Canonical: []string{"buf"}},
		},
	})
	require.NoError(t, err)
	return &Pipeline{Extractor: extract.New(extract.Options{}), Canon: cz, Workers: workers}
}

func testSources(n int) []entry.Source {
	texts := []string{
		"1. tampa, avs, nyi\n2. buf",
		"hello there\n1. lightning & colorado\n2. seattle, buf",
		"1. col, tbl, a, b, c, d, e",
		"nothing useful",
	}
	out := make([]entry.Source, n)
	for i := range out {
		out[i] = entry.Source{Index: i, Author: fmt.Sprintf("author %d", i), Text: texts[i%len(texts)]}
	}
	return out
}

func strp(s string) *string { return &s }

func TestRun_Stages(t *testing.T) {
	p := newTestPipeline(t, 1)
	res, err := p.Run(context.Background(), testSources(4), []override.Override{
		override.Patch(0, "q1a3", strp("lightning")),
		override.Delete(3),
	})
	require.NoError(t, err)

	assert.Equal(t, 4, res.Raw.Len())
	assert.Equal(t, 3, res.Corrected.Len())
	assert.Equal(t, []int{3}, res.Canonical.Deleted())

	first := res.Canonical.Records[0]
	assert.Equal(t, []string{"tbl", "col", "tbl", "", ""}, first.Strings()[:5])
	assert.Equal(t, "lightning", res.Corrected.Records[0].Slots[2].String(), "corrected table is pre-canonical")
	assert.Equal(t, 1, res.Applied[override.ActionPatchSlot])
	assert.Equal(t, 1, res.Applied[override.ActionDelete])

	counts := entry.CountByKind(res.Diagnostics)
	assert.Equal(t, 2, counts[entry.KindMalformedLine])
	assert.Equal(t, 1, counts[entry.KindOverflowAnswers])
	// "seattle" (record 1) and "a".."c" (record 2); record 0's "nyi" was patched away.
	assert.Equal(t, 4, counts[entry.KindUnresolvedAlias])
}

func TestRun_DeterministicAcrossWorkers(t *testing.T) {
	sources := testSources(64)
	want, err := newTestPipeline(t, 1).Run(context.Background(), sources, nil)
	require.NoError(t, err)

	for _, w := range []int{0, 2, 8} {
		got, err := newTestPipeline(t, w).Run(context.Background(), sources, nil)
		require.NoError(t, err)
		if diff := cmp.Diff(want.Canonical.Records, got.Canonical.Records, cmp.Comparer(func(a, b entry.Slot) bool { return a == b })); diff != "" {
			t.Fatalf("workers=%d records differ (-want +got):\n%s", w, diff)
		}
		assert.Equal(t, want.Diagnostics, got.Diagnostics, "workers=%d", w)
	}
}

func TestRun_IndexNotFoundAborts(t *testing.T) {
	p := newTestPipeline(t, 2)
	res, err := p.Run(context.Background(), testSources(4), []override.Override{
		override.Delete(1),
		override.Patch(1, "q1a1", nil),
	})
	assert.Nil(t, res)
	require.ErrorIs(t, err, override.ErrIndexNotFound)
	assert.True(t, strings.HasPrefix(err.Error(), "applying overrides:"))
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, w := range []int{1, 4} {
		_, err := newTestPipeline(t, w).Run(ctx, testSources(16), nil)
		require.ErrorIs(t, err, context.Canceled)
	}
}

func TestRun_RequiresStages(t *testing.T) {
	_, err := (&Pipeline{}).Run(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestRun_Empty(t *testing.T) {
	res, err := newTestPipeline(t, 0).Run(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Final().Len())
	assert.Empty(t, res.Diagnostics)
}
