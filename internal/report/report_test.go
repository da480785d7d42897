package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurttlocker/contest/internal/entry"
	"github.com/hurttlocker/contest/internal/extract"
	"github.com/hurttlocker/contest/internal/override"
)

func record(index int, q1 ...string) entry.Record {
	rec := entry.NewRecord(index, "author")
	for i, v := range q1 {
		rec.Slots[i] = entry.Str(v)
	}
	return rec
}

func testTable(t *testing.T) entry.Table {
	t.Helper()
	tbl := entry.NewTable([]entry.Record{
		record(1, "tbl", "col", "veg"),
		record(2, "col", "tbl", "tor", "nyi", "bos"),
		record(3, "col", "some team nobody aliased"),
		record(4, "x"),
	})
	tbl, err := tbl.Remove(4)
	require.NoError(t, err)
	return tbl
}

func TestTally(t *testing.T) {
	cs := Tally(testTable(t), 1)

	assert.Equal(t, 15, cs.Possible)
	assert.Equal(t, 10, cs.Received)
	assert.Equal(t, 5, cs.Missing)
	assert.Equal(t, 7, cs.Distinct)
	require.NotEmpty(t, cs.Frequencies)
	assert.Equal(t, Count{Value: "col", Count: 3}, cs.Frequencies[0])
	assert.Equal(t, Count{Value: "tbl", Count: 2}, cs.Frequencies[1])
	// Ties sort by value.
	assert.Equal(t, "bos", cs.Frequencies[2].Value)
	assert.Equal(t, "veg", cs.Frequencies[len(cs.Frequencies)-1].Value)
}

func TestBuild(t *testing.T) {
	s := Build(testTable(t), Surgery{}, []entry.Diagnostic{
		{Kind: entry.KindUnresolvedAlias}, {Kind: entry.KindUnresolvedAlias}, {Kind: entry.KindMalformedLine},
	})
	assert.Equal(t, 3, s.Entries)
	assert.Equal(t, 1, s.Deleted)
	assert.Equal(t, 3*entry.SlotCount, s.Possible)
	assert.Equal(t, 10, s.Answered)
	assert.Len(t, s.Categories, entry.CategoryCount)
	assert.Equal(t, 2, s.Diagnostics[entry.KindUnresolvedAlias])

	bonus, ok := s.Category(entry.BonusCategory)
	require.True(t, ok)
	assert.Equal(t, 3, bonus.Possible)
	assert.Equal(t, 3, bonus.Missing)
	assert.Empty(t, bonus.Frequencies)
}

func TestSurgeryFrom(t *testing.T) {
	v := "tbl"
	list := []override.Override{
		override.ReplaceText(10, "1. a, b"),
		override.Patch(10, "q1a1", &v),
		override.Patch(11, "q1a1", &v),
		override.Patch(11, "q1a2", &v),
		override.Delete(12),
	}
	s := SurgeryFrom(list)
	assert.Equal(t, 1, s.Major)
	assert.Equal(t, 2, s.Minor, "record 10 counts once, as major")
	assert.Equal(t, 3, s.Applied["patch-slot"])
	assert.Equal(t, 1, s.Applied["delete"])
}

func TestSurgeryFrom_IgnoresNoOpOverrides(t *testing.T) {
	x := extract.New(extract.Options{})
	var recs []entry.Record
	for _, src := range []entry.Source{
		{Index: 0, Author: "a", Text: "1. tbl, col"},
		{Index: 1, Author: "b", Text: "1. sea, dal"},
	} {
		rec, _ := x.Extract(src)
		recs = append(recs, rec)
	}
	res, err := override.New(x).Apply(entry.NewTable(recs), []override.Override{
		override.Delete(1),
		override.Delete(1),
	})
	require.NoError(t, err)

	s := SurgeryFrom(res.Effective)
	assert.Equal(t, 0, s.Major)
	assert.Equal(t, 1, s.Minor)
	assert.Equal(t, 1, s.Applied["delete"])
	assert.Empty(t, SurgeryFrom(nil).Applied)
}

func TestSummary_PercentEmpty(t *testing.T) {
	assert.Zero(t, Summary{}.Percent(3))
	assert.InDelta(t, 50.0, Summary{Entries: 4}.Percent(2), 1e-9)
}

func TestWriteText(t *testing.T) {
	s := Build(testTable(t), Surgery{Major: 1, Minor: 1, Applied: map[string]int{"delete": 1}}, nil)
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, s, TextOptions{Top: 2}))
	out := buf.String()

	assert.Contains(t, out, "There are 3 entries in this contest (1 removed).")
	assert.Contains(t, out, "Major surgery (entry rewritten): 1 entries, 33.33%")
	assert.Contains(t, out, "delete=1")
	assert.Contains(t, out, "***** ***** QUESTION 1 SUMMARY ***** *****")
	assert.Contains(t, out, "***** ***** BONUS QUESTION 10 SUMMARY ***** *****")
	assert.Contains(t, out, "Out of a possible 15 answers, 10 answers were received.")
	assert.Contains(t, out, "... 5 more")
	assert.Equal(t, entry.CategoryCount, strings.Count(out, "SUMMARY *****"))
}

func TestWriteJSON(t *testing.T) {
	s := Build(testTable(t), Surgery{}, nil)
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, s))

	var back Summary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, s.Entries, back.Entries)
	assert.Equal(t, s.Categories[0].Frequencies, back.Categories[0].Frequencies)
}
