// Package extract turns one free-text contest entry into a fixed-width record.
//
// Entries arrive in whatever shape the participant typed them: numbered or
// not, comma-, slash-, hyphen- or "and"-separated, with commentary before and
// after the answers. The extractor is line oriented:
//   - blank lines are skipped
//   - a line becomes an answer line once answers have started, or when it
//     carries the primary delimiter after alternate delimiters are unified
//   - each answer line fills the next category; lines past category 10 are
//     trailing commentary
//
// Extraction never fails. Malformed input degrades to null slots plus
// diagnostics, and every record comes back with all 46 slots.
package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/hurttlocker/contest/internal/entry"
)

// maxQuoteLen caps the line text copied into diagnostics.
const maxQuoteLen = 120

// Options configures an Extractor.
type Options struct {
	// NameExceptions maps hyphenated spellings to the text substituted before
	// hyphens become delimiters. Nil selects DefaultNameExceptions; an empty
	// map disables the rewrite.
	NameExceptions map[string]string

	// Blanks lists answers that mean "no answer" and extract as null. Key 0
	// applies to every category. Matching is case-insensitive.
	Blanks map[entry.Category][]string
}

// Extractor parses raw entry blobs. It holds no per-record state and is safe
// for concurrent use.
type Extractor struct {
	exceptions []nameException
	blanks     map[entry.Category]map[string]struct{}
	markers    [entry.CategoryCount + 1]*regexp.Regexp
}

// New builds an Extractor from opts.
func New(opts Options) *Extractor {
	exc := opts.NameExceptions
	if exc == nil {
		exc = defaultNameExceptions
	}
	x := &Extractor{
		exceptions: compileExceptions(exc),
		blanks:     make(map[entry.Category]map[string]struct{}),
	}
	for c, words := range opts.Blanks {
		set := x.blanks[c]
		if set == nil {
			set = make(map[string]struct{}, len(words))
			x.blanks[c] = set
		}
		for _, w := range words {
			set[fold(w)] = struct{}{}
		}
	}
	for c := 1; c <= entry.CategoryCount; c++ {
		x.markers[c] = compileMarker(c)
	}
	return x
}

// Extract parses src.Text into a record keyed by src.Index.
func (x *Extractor) Extract(src entry.Source) (entry.Record, []entry.Diagnostic) {
	rec := entry.NewRecord(src.Index, src.Author)
	var diags []entry.Diagnostic

	category := 0
	for i, raw := range splitLines(src.Text) {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		lineNo := i + 1

		line := unifyDelimiters(raw, x.exceptions)
		if category == 0 && !strings.Contains(line, Delimiter) {
			diags = append(diags, malformed(src, lineNo, raw, "leading commentary before the first answer line"))
			continue
		}

		category++
		if category > entry.CategoryCount {
			diags = append(diags, malformed(src, lineNo, raw, "trailing commentary after the bonus answer"))
			continue
		}
		c := entry.Category(category)

		line = unifyConjunctions(line)
		line = stripMarker(x.markers[c], strings.TrimSpace(line))
		candidates := tokenize(line)

		answers, dropped := x.fit(c, candidates)
		copy(rec.Slots[c.Start():c.End()], answers)

		if len(dropped) > 0 {
			diags = append(diags, entry.Diagnostic{
				Kind:     entry.KindOverflowAnswers,
				Record:   src.Index,
				Author:   src.Author,
				Category: c,
				Line:     lineNo,
				Value:    quote(raw),
				Dropped:  dropped,
				Detail:   "kept the first answers in order",
			})
		}
	}

	return rec, diags
}

// fit applies the width policy: truncate to the category width, pad with null.
// For multi-answer categories the truncated values are returned so the caller
// can report them; the single-answer bonus keeps its first candidate and treats
// the rest as commentary.
func (x *Extractor) fit(c entry.Category, candidates []string) ([]entry.Slot, []string) {
	width := c.Width()
	var dropped []string
	if len(candidates) > width {
		if width > 1 {
			// Empty fragments ("a, b, c, d, e,,") are not answers and are not reported.
			for _, v := range candidates[width:] {
				if v != "" {
					dropped = append(dropped, v)
				}
			}
		}
		candidates = candidates[:width]
	}

	out := make([]entry.Slot, width)
	for i, v := range candidates {
		if x.isBlank(c, v) {
			continue
		}
		out[i] = entry.Str(v)
	}
	return out, dropped
}

func (x *Extractor) isBlank(c entry.Category, v string) bool {
	if v == "" {
		return true
	}
	f := fold(v)
	if _, ok := x.blanks[0][f]; ok {
		return true
	}
	_, ok := x.blanks[c][f]
	return ok
}

func malformed(src entry.Source, line int, raw, detail string) entry.Diagnostic {
	return entry.Diagnostic{
		Kind:   entry.KindMalformedLine,
		Record: src.Index,
		Author: src.Author,
		Line:   line,
		Value:  quote(raw),
		Detail: detail,
	}
}

// quote trims a raw line for inclusion in a diagnostic.
func quote(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= maxQuoteLen {
		return s
	}
	r := []rune(s)
	return string(r[:maxQuoteLen]) + "…"
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
