// Package report tabulates a canonical table into per-category summaries.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hurttlocker/contest/internal/entry"
	"github.com/hurttlocker/contest/internal/override"
)

// Count is one value's frequency.
type Count struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// CategorySummary is the tally for one question.
type CategorySummary struct {
	Category    entry.Category `json:"category"`
	Title       string         `json:"title"`
	Possible    int            `json:"possible"`
	Received    int            `json:"received"`
	Missing     int            `json:"missing"`
	Distinct    int            `json:"distinct"`
	Frequencies []Count        `json:"frequencies"`
}

// Surgery counts how many entries needed manual correction. A record with an
// effective replace-text override had major surgery; one with only patch-slot
// or delete overrides had minor surgery. Overrides that changed nothing, such
// as a repeated delete, are not counted.
type Surgery struct {
	Applied map[string]int `json:"applied"` // effective overrides per action
	Major   int            `json:"major"`
	Minor   int            `json:"minor"`
}

// SurgeryFrom derives surgery counts from the overrides the override layer
// reported as effective.
func SurgeryFrom(effective []override.Override) Surgery {
	s := Surgery{Applied: make(map[string]int, 3)}
	major := make(map[int]bool)
	minor := make(map[int]bool)
	for _, ov := range effective {
		s.Applied[string(ov.Action)]++
		if ov.Action == override.ActionReplaceText {
			major[ov.Index] = true
		} else {
			minor[ov.Index] = true
		}
	}
	for idx := range minor {
		if !major[idx] {
			s.Minor++
		}
	}
	s.Major = len(major)
	return s
}

// Summary is the whole report.
type Summary struct {
	Entries     int                `json:"entries"`
	Deleted     int                `json:"deleted"`
	Possible    int                `json:"possible"`
	Answered    int                `json:"answered"`
	Surgery     Surgery            `json:"surgery"`
	Diagnostics map[entry.Kind]int `json:"diagnostics,omitempty"`
	Categories  []CategorySummary  `json:"categories"`
}

// Build tabulates t. Values are counted as they appear, canonical or not.
func Build(t entry.Table, surgery Surgery, diags []entry.Diagnostic) Summary {
	s := Summary{
		Entries:  t.Len(),
		Deleted:  len(t.Deleted()),
		Possible: t.Len() * entry.SlotCount,
		Surgery:  surgery,
	}
	if len(diags) > 0 {
		s.Diagnostics = entry.CountByKind(diags)
	}
	for _, c := range entry.Categories() {
		cs := Tally(t, c)
		s.Answered += cs.Received
		s.Categories = append(s.Categories, cs)
	}
	return s
}

// Tally summarizes one category.
func Tally(t entry.Table, c entry.Category) CategorySummary {
	cs := CategorySummary{
		Category: c,
		Title:    c.Title(),
		Possible: t.Len() * c.Width(),
	}
	counts := make(map[string]int)
	for _, rec := range t.Records {
		for _, s := range rec.Slots[c.Start():c.End()] {
			v, ok := s.Get()
			if !ok {
				cs.Missing++
				continue
			}
			cs.Received++
			counts[v]++
		}
	}
	cs.Distinct = len(counts)
	cs.Frequencies = make([]Count, 0, len(counts))
	for v, n := range counts {
		cs.Frequencies = append(cs.Frequencies, Count{Value: v, Count: n})
	}
	sort.Slice(cs.Frequencies, func(i, j int) bool {
		a, b := cs.Frequencies[i], cs.Frequencies[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Value < b.Value
	})
	return cs
}

// Percent returns n as a percentage of the surviving entries.
func (s Summary) Percent(n int) float64 {
	if s.Entries == 0 {
		return 0
	}
	return float64(n) / float64(s.Entries) * 100
}

// Category returns the summary for c.
func (s Summary) Category(c entry.Category) (CategorySummary, bool) {
	for _, cs := range s.Categories {
		if cs.Category == c {
			return cs, true
		}
	}
	return CategorySummary{}, false
}

// TextOptions tunes WriteText.
type TextOptions struct {
	Top int // frequency rows per category; 0 prints all
}

// WriteText renders the report the way the contest write-up reads.
func WriteText(w io.Writer, s Summary, opts TextOptions) error {
	var b strings.Builder

	fmt.Fprintf(&b, "There are %d entries in this contest", s.Entries)
	if s.Deleted > 0 {
		fmt.Fprintf(&b, " (%d removed)", s.Deleted)
	}
	b.WriteString(".\n")
	fmt.Fprintf(&b, "A possible %d answers; entrants provided %d.\n\n", s.Possible, s.Answered)

	fmt.Fprintf(&b, "Major surgery (entry rewritten): %d entries, %.2f%%\n", s.Surgery.Major, s.Percent(s.Surgery.Major))
	fmt.Fprintf(&b, "Minor surgery (cells corrected or entry removed): %d entries, %.2f%%\n", s.Surgery.Minor, s.Percent(s.Surgery.Minor))
	total := s.Surgery.Major + s.Surgery.Minor
	fmt.Fprintf(&b, "In total %d of %d entries (%.2f%%) needed manual correction.\n", total, s.Entries, s.Percent(total))
	if len(s.Surgery.Applied) > 0 {
		b.WriteString("Overrides applied:")
		for _, a := range override.Actions() {
			fmt.Fprintf(&b, " %s=%d", a, s.Surgery.Applied[string(a)])
		}
		b.WriteString("\n")
	}
	if len(s.Diagnostics) > 0 {
		b.WriteString("Diagnostics:")
		for _, k := range entry.Kinds() {
			fmt.Fprintf(&b, " %s=%d", k, s.Diagnostics[k])
		}
		b.WriteString("\n")
	}

	for _, cs := range s.Categories {
		b.WriteString("\n")
		label := fmt.Sprintf("QUESTION %d", int(cs.Category))
		if cs.Category == entry.BonusCategory {
			label = "BONUS QUESTION 10"
		}
		fmt.Fprintf(&b, "***** ***** %s SUMMARY ***** *****\n", label)
		fmt.Fprintf(&b, "%s\n", cs.Title)
		fmt.Fprintf(&b, "Out of a possible %d answers, %d answers were received.\n", cs.Possible, cs.Received)
		fmt.Fprintf(&b, "%d possible answers were not completed.\n", cs.Missing)
		fmt.Fprintf(&b, "%d different answers were provided.\n", cs.Distinct)

		rows := cs.Frequencies
		if opts.Top > 0 && len(rows) > opts.Top {
			rows = rows[:opts.Top]
		}
		width := 0
		for _, r := range rows {
			if n := len([]rune(r.Value)); n > width {
				width = n
			}
		}
		for _, r := range rows {
			fmt.Fprintf(&b, "  %-*s %5d\n", width, r.Value, r.Count)
		}
		if len(rows) < len(cs.Frequencies) {
			fmt.Fprintf(&b, "  ... %d more\n", len(cs.Frequencies)-len(rows))
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteJSON renders the report as indented JSON.
func WriteJSON(w io.Writer, s Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return nil
}
