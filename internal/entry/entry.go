// Package entry defines the fixed-schema contest table shared by every stage.
//
// A Record always carries exactly 46 answer slots grouped into ten categories:
// nine of width 5 and the single-answer bonus category. The slot array is a
// value type, so copying a Record copies its answers and a stage can never
// mutate a table it was handed.
package entry

import (
	"fmt"
	"sort"
)

// Source is one raw contest entry in ingest order.
type Source struct {
	Index  int    `json:"index"`  // Stable record identity; overrides refer to it
	Author string `json:"author"` // Unique author identifier
	Text   string `json:"text"`   // Raw multi-line entry blob
}

// Record is one extracted entry.
type Record struct {
	Index  int             `json:"index"`
	Author string          `json:"author"`
	Slots  [SlotCount]Slot `json:"slots"`
}

// NewRecord returns a record with every slot null.
func NewRecord(index int, author string) Record {
	return Record{Index: index, Author: author}
}

// Answers returns a copy of the category's slots.
func (r Record) Answers(c Category) []Slot {
	if !c.Valid() {
		return nil
	}
	out := make([]Slot, c.Width())
	copy(out, r.Slots[c.Start():c.End()])
	return out
}

// Lookup returns the slot with the given column name.
func (r Record) Lookup(name string) (Slot, error) {
	pos, err := SlotIndex(name)
	if err != nil {
		return Null, err
	}
	return r.Slots[pos], nil
}

// With returns a copy of r with the slot at pos replaced.
func (r Record) With(pos int, v Slot) Record {
	if pos >= 0 && pos < SlotCount {
		r.Slots[pos] = v
	}
	return r
}

// Strings flattens the slots; nulls become "".
func (r Record) Strings() []string {
	out := make([]string, SlotCount)
	for i, s := range r.Slots {
		out[i], _ = s.Get()
	}
	return out
}

// NullCount counts unanswered slots.
func (r Record) NullCount() int {
	n := 0
	for _, s := range r.Slots {
		if s.IsNull() {
			n++
		}
	}
	return n
}

// Table is an ordered set of records plus the indices removed from it.
type Table struct {
	Records []Record `json:"records"`
	deleted map[int]struct{}
}

// NewTable builds a table over recs. The slice is copied.
func NewTable(recs []Record) Table {
	out := Table{Records: make([]Record, len(recs))}
	copy(out.Records, recs)
	return out
}

// Len returns the number of surviving records.
func (t Table) Len() int { return len(t.Records) }

// Clone returns a deep copy.
func (t Table) Clone() Table {
	out := NewTable(t.Records)
	if len(t.deleted) > 0 {
		out.deleted = make(map[int]struct{}, len(t.deleted))
		for k := range t.deleted {
			out.deleted[k] = struct{}{}
		}
	}
	return out
}

// Find returns the position of the record with the given index.
func (t Table) Find(index int) (int, bool) {
	for i, r := range t.Records {
		if r.Index == index {
			return i, true
		}
	}
	return -1, false
}

// IsDeleted reports whether index was removed by a delete override.
func (t Table) IsDeleted(index int) bool {
	_, ok := t.deleted[index]
	return ok
}

// Deleted returns the removed indices in ascending order.
func (t Table) Deleted() []int {
	out := make([]int, 0, len(t.deleted))
	for k := range t.deleted {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

// Remove returns a copy of t without the record at index and with the index
// tombstoned. Removing an unknown index is an error.
func (t Table) Remove(index int) (Table, error) {
	pos, ok := t.Find(index)
	if !ok {
		return t, fmt.Errorf("record %d not in table", index)
	}
	out := t.Clone()
	out.Records = append(out.Records[:pos], out.Records[pos+1:]...)
	if out.deleted == nil {
		out.deleted = make(map[int]struct{})
	}
	out.deleted[index] = struct{}{}
	return out, nil
}

// Replace returns a copy of t with the record at rec.Index swapped for rec.
func (t Table) Replace(rec Record) (Table, error) {
	pos, ok := t.Find(rec.Index)
	if !ok {
		return t, fmt.Errorf("record %d not in table", rec.Index)
	}
	out := t.Clone()
	out.Records[pos] = rec
	return out, nil
}

// WithDeleted returns a copy of t with extra tombstones. It does not remove
// records; callers pair it with WithRecords.
func (t Table) WithDeleted(indices ...int) Table {
	out := t.Clone()
	if len(indices) > 0 && out.deleted == nil {
		out.deleted = make(map[int]struct{}, len(indices))
	}
	for _, i := range indices {
		out.deleted[i] = struct{}{}
	}
	return out
}

// WithRecords returns a table carrying t's tombstones over a new record set.
func (t Table) WithRecords(recs []Record) Table {
	out := t.Clone()
	out.Records = make([]Record, len(recs))
	copy(out.Records, recs)
	return out
}
