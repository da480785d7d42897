// Package override applies declarative, index-keyed corrections to an
// extracted table.
//
// Corrections are data, not code: an ordered list of {index, action, payload}
// entries loaded from configuration. Three actions exist:
//   - replace-text: re-extract the record from a corrected raw blob
//   - patch-slot: overwrite one named slot (null allowed)
//   - delete: drop the record and tombstone its index
//
// Applying a list is idempotent. An override that targets a record the table
// has never seen, or edits a record a delete already removed, is fatal: the
// override file no longer matches the data it was written for.
package override

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hurttlocker/contest/internal/entry"
)

// Action names a correction kind.
type Action string

const (
	ActionReplaceText Action = "replace-text"
	ActionPatchSlot   Action = "patch-slot"
	ActionDelete      Action = "delete"
)

// Actions lists every action in report order.
func Actions() []Action {
	return []Action{ActionReplaceText, ActionPatchSlot, ActionDelete}
}

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionReplaceText, ActionPatchSlot, ActionDelete:
		return a, nil
	default:
		return "", fmt.Errorf("unknown override action %q (valid: replace-text, patch-slot, delete)", s)
	}
}

// Override is one declarative correction.
type Override struct {
	Index  int     `yaml:"index" json:"index"`
	Action Action  `yaml:"action" json:"action"`
	Text   string  `yaml:"text,omitempty" json:"text,omitempty"`   // replace-text payload
	Slot   string  `yaml:"slot,omitempty" json:"slot,omitempty"`   // patch-slot target column
	Value  *string `yaml:"value,omitempty" json:"value,omitempty"` // patch-slot value; nil writes null
	Note   string  `yaml:"note,omitempty" json:"note,omitempty"`
}

// Patch builds a patch-slot override.
func Patch(index int, slot string, value *string) Override {
	return Override{Index: index, Action: ActionPatchSlot, Slot: slot, Value: value}
}

// ReplaceText builds a replace-text override.
func ReplaceText(index int, text string) Override {
	return Override{Index: index, Action: ActionReplaceText, Text: text}
}

// Delete builds a delete override.
func Delete(index int) Override {
	return Override{Index: index, Action: ActionDelete}
}

// ErrIndexNotFound reports an override whose target record is not in the table.
var ErrIndexNotFound = errors.New("override index not found")

// IndexNotFoundError carries the offending override.
type IndexNotFoundError struct {
	Index   int
	Action  Action
	Deleted bool // the index existed but an earlier delete removed it
}

func (e *IndexNotFoundError) Error() string {
	if e.Deleted {
		return fmt.Sprintf("%s override targets record %d, which was deleted", e.Action, e.Index)
	}
	return fmt.Sprintf("%s override targets record %d, which is not in the table", e.Action, e.Index)
}

// Is makes errors.Is(err, ErrIndexNotFound) match.
func (e *IndexNotFoundError) Is(target error) bool {
	return target == ErrIndexNotFound
}

// Validate checks every override before any is applied. It reports the first
// problem with its list position.
func Validate(list []Override) error {
	_, err := Normalize(list)
	return err
}

// Normalize validates list and returns a copy with every action in canonical
// form. list is not modified.
func Normalize(list []Override) ([]Override, error) {
	out := make([]Override, len(list))
	for i, ov := range list {
		n, err := ov.normalized()
		if err != nil {
			return nil, fmt.Errorf("override #%d (index %d): %w", i+1, ov.Index, err)
		}
		out[i] = n
	}
	return out, nil
}

func (ov Override) normalized() (Override, error) {
	if ov.Index < 0 {
		return Override{}, fmt.Errorf("negative index")
	}
	action, err := ParseAction(string(ov.Action))
	if err != nil {
		return Override{}, err
	}
	ov.Action = action
	switch action {
	case ActionReplaceText:
		if strings.TrimSpace(ov.Text) == "" {
			return Override{}, fmt.Errorf("replace-text needs text")
		}
	case ActionPatchSlot:
		if _, err := entry.SlotIndex(ov.Slot); err != nil {
			return Override{}, err
		}
	}
	return ov, nil
}

// Extractor re-parses corrected raw text. *extract.Extractor satisfies it.
type Extractor interface {
	Extract(src entry.Source) (entry.Record, []entry.Diagnostic)
}

// Layer applies override lists.
type Layer struct {
	extractor Extractor
	logger    *zap.Logger
}

// Option configures a Layer.
type Option func(*Layer)

// WithLogger sets the logger used for per-override audit lines.
func WithLogger(l *zap.Logger) Option {
	return func(layer *Layer) {
		if l != nil {
			layer.logger = l
		}
	}
}

// New returns a Layer that re-extracts replace-text payloads with x.
func New(x Extractor, opts ...Option) *Layer {
	l := &Layer{extractor: x, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Result is the corrected table plus what happened on the way.
type Result struct {
	Table       entry.Table
	Diagnostics []entry.Diagnostic // from re-extracted records
	Applied     map[Action]int     // effective applications per action
	Effective   []Override         // overrides that changed the table, in order
}

// Apply runs list against t in order and returns a new table. t is not
// modified. The first IndexNotFound aborts the whole application.
func (l *Layer) Apply(t entry.Table, list []Override) (Result, error) {
	list, err := Normalize(list)
	if err != nil {
		return Result{}, err
	}

	recs := make([]entry.Record, len(t.Records))
	copy(recs, t.Records)
	alive := make([]bool, len(recs))
	pos := make(map[int]int, len(recs))
	for i, r := range recs {
		alive[i] = true
		pos[r.Index] = i
	}
	deleted := make(map[int]bool)
	for _, idx := range t.Deleted() {
		deleted[idx] = true
	}

	res := Result{Applied: make(map[Action]int, 3)}

	for _, ov := range list {
		i, ok := pos[ov.Index]
		if ok && !alive[i] {
			ok = false
		}

		if ov.Action == ActionDelete && !ok && deleted[ov.Index] {
			l.logger.Debug("delete override already applied", zap.Int("index", ov.Index))
			continue
		}
		if !ok {
			return Result{}, &IndexNotFoundError{Index: ov.Index, Action: ov.Action, Deleted: deleted[ov.Index]}
		}

		rec := recs[i]
		switch ov.Action {
		case ActionReplaceText:
			next, diags := l.extractor.Extract(entry.Source{Index: rec.Index, Author: rec.Author, Text: ov.Text})
			recs[i] = next
			res.Diagnostics = append(res.Diagnostics, diags...)
		case ActionPatchSlot:
			slotPos, err := entry.SlotIndex(ov.Slot)
			if err != nil {
				return Result{}, fmt.Errorf("patching record %d: %w", ov.Index, err)
			}
			v := entry.Null
			if ov.Value != nil {
				v = entry.Str(*ov.Value)
			}
			recs[i] = rec.With(slotPos, v)
		case ActionDelete:
			alive[i] = false
			deleted[ov.Index] = true
		}
		res.Applied[ov.Action]++
		res.Effective = append(res.Effective, ov)

		l.logger.Debug("override applied",
			zap.Int("index", ov.Index),
			zap.String("author", rec.Author),
			zap.String("action", string(ov.Action)),
			zap.String("slot", ov.Slot),
			zap.String("note", ov.Note),
		)
	}

	out := make([]entry.Record, 0, len(recs))
	for i, r := range recs {
		if alive[i] {
			out = append(out, r)
		}
	}
	tombstones := make([]int, 0, len(deleted))
	for idx := range deleted {
		tombstones = append(tombstones, idx)
	}
	res.Table = t.WithDeleted(tombstones...).WithRecords(out)
	return res, nil
}
