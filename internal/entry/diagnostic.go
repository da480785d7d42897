package entry

import (
	"fmt"
	"strings"
)

// Kind classifies a recoverable anomaly.
type Kind string

const (
	// KindMalformedLine: a line that is not an answer line (leading or trailing commentary).
	KindMalformedLine Kind = "MalformedLine"
	// KindOverflowAnswers: more candidates than the category width; the excess was dropped.
	KindOverflowAnswers Kind = "OverflowAnswers"
	// KindUnresolvedAlias: a value matched no alias table and is not a canonical key.
	KindUnresolvedAlias Kind = "UnresolvedAlias"
	// KindAmbiguousEntity: a value named two entities and policy picked one.
	KindAmbiguousEntity Kind = "AmbiguousEntity"
)

// Kinds lists every diagnostic kind.
func Kinds() []Kind {
	return []Kind{KindMalformedLine, KindOverflowAnswers, KindUnresolvedAlias, KindAmbiguousEntity}
}

// Diagnostic is returned data describing an anomaly that was recovered locally.
type Diagnostic struct {
	Kind         Kind     `json:"kind"`
	Record       int      `json:"record"`
	Author       string   `json:"author,omitempty"`
	Category     Category `json:"category,omitempty"`
	Slot         string   `json:"slot,omitempty"`
	Line         int      `json:"line,omitempty"`         // 1-based line in the raw blob
	Value        string   `json:"value,omitempty"`        // raw value or line text
	Resolution   string   `json:"resolution,omitempty"`   // chosen canonical key
	Dropped      []string `json:"dropped,omitempty"`      // overflow values that were discarded
	Alternatives []string `json:"alternatives,omitempty"` // entities an ambiguous value could also name
	Detail       string   `json:"detail,omitempty"`
}

// String renders a one-line summary for logs and CLI output.
func (d Diagnostic) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s record=%d", d.Kind, d.Record)
	if d.Author != "" {
		fmt.Fprintf(&b, " author=%q", d.Author)
	}
	if d.Category != 0 {
		fmt.Fprintf(&b, " category=%s", d.Category)
	}
	if d.Slot != "" {
		fmt.Fprintf(&b, " slot=%s", d.Slot)
	}
	if d.Line > 0 {
		fmt.Fprintf(&b, " line=%d", d.Line)
	}
	if d.Value != "" {
		fmt.Fprintf(&b, " value=%q", d.Value)
	}
	if d.Resolution != "" {
		fmt.Fprintf(&b, " resolution=%q", d.Resolution)
	}
	if len(d.Dropped) > 0 {
		fmt.Fprintf(&b, " dropped=%q", d.Dropped)
	}
	if len(d.Alternatives) > 0 {
		fmt.Fprintf(&b, " alternatives=%q", d.Alternatives)
	}
	if d.Detail != "" {
		fmt.Fprintf(&b, " (%s)", d.Detail)
	}
	return b.String()
}

// CountByKind tallies diagnostics per kind.
func CountByKind(diags []Diagnostic) map[Kind]int {
	out := make(map[Kind]int, len(diags))
	for _, d := range diags {
		out[d.Kind]++
	}
	return out
}
