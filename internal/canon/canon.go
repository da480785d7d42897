// Package canon maps free-text answer spellings onto canonical entity keys.
//
// Each category carries an ordered list of alias tables, an ambiguity policy
// and a set of known canonical keys. Lookup is exact and case-insensitive; no
// fuzzy matching is attempted. Values that match nothing pass through
// unchanged and are reported so the alias data can be extended.
package canon

import (
	"fmt"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/hurttlocker/contest/internal/entry"
)

// DefaultCacheSize bounds the lookup memo.
const DefaultCacheSize = 4096

// AliasTable maps raw variants to canonical keys.
type AliasTable map[string]string

// Ambiguity is the policy for a value that names more than one entity.
type Ambiguity struct {
	Resolve      string   `yaml:"resolve" json:"resolve"`
	Alternatives []string `yaml:"alternatives,omitempty" json:"alternatives,omitempty"`
	Reason       string   `yaml:"reason,omitempty" json:"reason,omitempty"`
}

// CategoryConfig configures one category.
type CategoryConfig struct {
	Tables    []string             `yaml:"tables,omitempty" json:"tables,omitempty"` // names into Config.Tables, highest priority first
	Canonical []string             `yaml:"canonical,omitempty" json:"canonical,omitempty"`
	Ambiguous map[string]Ambiguity `yaml:"ambiguous,omitempty" json:"ambiguous,omitempty"`
}

// Config is the full alias configuration. Tables may be shared between
// categories (playoff and lottery teams use the same team tables).
type Config struct {
	Tables     map[string]AliasTable             `yaml:"tables" json:"tables"`
	Categories map[entry.Category]CategoryConfig `yaml:"categories" json:"categories"`
}

// Outcome says how a value was resolved.
type Outcome string

const (
	OutcomeCanonical  Outcome = "canonical"  // already a known key
	OutcomeAlias      Outcome = "alias"      // matched an alias table
	OutcomeAmbiguous  Outcome = "ambiguous"  // resolved by policy
	OutcomeUnresolved Outcome = "unresolved" // passed through unknown
	OutcomeUnchecked  Outcome = "unchecked"  // category has no alias data
)

// Resolution describes one lookup.
type Resolution struct {
	Input        string   `json:"input"`
	Value        string   `json:"value"`
	Outcome      Outcome  `json:"outcome"`
	Table        string   `json:"table,omitempty"`
	Alternatives []string `json:"alternatives,omitempty"`
	Reason       string   `json:"reason,omitempty"`
}

type table struct {
	name    string
	entries map[string]string
}

type category struct {
	tables    []table
	ambiguous map[string]Ambiguity
	known     map[string]struct{}
}

func (c *category) empty() bool {
	return c == nil || (len(c.tables) == 0 && len(c.ambiguous) == 0 && len(c.known) == 0)
}

type cacheKey struct {
	cat   entry.Category
	value string
}

// Canonicalizer resolves values against immutable alias configuration. It is
// safe for concurrent use.
type Canonicalizer struct {
	cats   [entry.CategoryCount + 1]*category
	cache  *lru.Cache[cacheKey, Resolution]
	logger *zap.Logger
}

// Option configures a Canonicalizer.
type Option func(*options)

type options struct {
	cacheSize int
	logger    *zap.Logger
}

// WithCacheSize sets the memo size. Zero disables memoization.
func WithCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// New copies cfg into an immutable Canonicalizer. Keys are trimmed and
// lower-cased. Two keys in one table that fold to the same spelling but map
// to different values are an error, as is a category naming an unknown table.
func New(cfg Config, opts ...Option) (*Canonicalizer, error) {
	o := options{cacheSize: DefaultCacheSize, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	tables := make(map[string]table, len(cfg.Tables))
	for name, raw := range cfg.Tables {
		t, err := foldTable(name, raw)
		if err != nil {
			return nil, err
		}
		tables[name] = t
	}

	cz := &Canonicalizer{logger: o.logger}
	for c, cc := range cfg.Categories {
		if !c.Valid() {
			return nil, fmt.Errorf("alias config: category %d out of range", int(c))
		}
		cat := &category{
			ambiguous: make(map[string]Ambiguity, len(cc.Ambiguous)),
			known:     make(map[string]struct{}),
		}
		for _, name := range cc.Tables {
			t, ok := tables[name]
			if !ok {
				return nil, fmt.Errorf("alias config: %s references unknown table %q", c, name)
			}
			cat.tables = append(cat.tables, t)
			for _, v := range t.entries {
				cat.known[fold(v)] = struct{}{}
			}
		}
		for _, k := range cc.Canonical {
			if k = fold(k); k != "" {
				cat.known[k] = struct{}{}
			}
		}
		for k, a := range cc.Ambiguous {
			fk := fold(k)
			if fk == "" {
				continue
			}
			res := strings.TrimSpace(a.Resolve)
			if res == "" {
				return nil, fmt.Errorf("alias config: %s ambiguity %q has no resolution", c, k)
			}
			if prev, dup := cat.ambiguous[fk]; dup && prev.Resolve != res {
				return nil, fmt.Errorf("alias config: %s ambiguity %q defined twice", c, k)
			}
			alts := make([]string, len(a.Alternatives))
			copy(alts, a.Alternatives)
			cat.ambiguous[fk] = Ambiguity{Resolve: res, Alternatives: alts, Reason: a.Reason}
			cat.known[fold(res)] = struct{}{}
		}
		cz.cats[c] = cat
	}

	if o.cacheSize > 0 {
		cache, err := lru.New[cacheKey, Resolution](o.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating alias cache: %w", err)
		}
		cz.cache = cache
	}
	return cz, nil
}

func foldTable(name string, raw AliasTable) (table, error) {
	t := table{name: name, entries: make(map[string]string, len(raw))}
	// Sorted so the reported conflict is stable.
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fk := fold(k)
		v := strings.TrimSpace(raw[k])
		if fk == "" {
			continue
		}
		if v == "" {
			return table{}, fmt.Errorf("alias table %q: %q maps to an empty key", name, k)
		}
		if prev, dup := t.entries[fk]; dup && prev != v {
			return table{}, fmt.Errorf("alias table %q: %q maps to both %q and %q", name, fk, prev, v)
		}
		t.entries[fk] = v
	}
	return t, nil
}

// Resolve looks up one value for category c.
func (cz *Canonicalizer) Resolve(c entry.Category, value string) Resolution {
	key := cacheKey{cat: c, value: fold(value)}
	if cz.cache != nil {
		if r, ok := cz.cache.Get(key); ok {
			r.Input = value
			if r.Outcome == OutcomeUnresolved || r.Outcome == OutcomeUnchecked {
				r.Value = value
			}
			return r
		}
	}
	r := cz.resolve(c, value, key.value)
	if cz.cache != nil {
		cz.cache.Add(key, r)
	}
	return r
}

func (cz *Canonicalizer) resolve(c entry.Category, value, folded string) Resolution {
	r := Resolution{Input: value, Value: value}
	var cat *category
	if c.Valid() {
		cat = cz.cats[c]
	}
	if cat.empty() {
		r.Outcome = OutcomeUnchecked
		return r
	}

	if a, ok := cat.ambiguous[folded]; ok {
		r.Value = a.Resolve
		r.Outcome = OutcomeAmbiguous
		r.Alternatives = a.Alternatives
		r.Reason = a.Reason
		return r
	}
	for _, t := range cat.tables {
		if v, ok := t.entries[folded]; ok {
			r.Value = v
			r.Table = t.name
			r.Outcome = OutcomeAlias
			if fold(v) == folded {
				r.Outcome = OutcomeCanonical
			}
			return r
		}
	}
	if _, ok := cat.known[folded]; ok {
		r.Value = folded
		r.Outcome = OutcomeCanonical
		return r
	}
	r.Outcome = OutcomeUnresolved
	return r
}

// CanonicalizeRecord returns a copy of rec with every non-null slot resolved.
// Null slots stay null and the slot count never changes.
func (cz *Canonicalizer) CanonicalizeRecord(rec entry.Record) (entry.Record, []entry.Diagnostic) {
	var diags []entry.Diagnostic
	for pos, s := range rec.Slots {
		v, ok := s.Get()
		if !ok {
			continue
		}
		c := entry.SlotCategory(pos)
		r := cz.Resolve(c, v)
		rec.Slots[pos] = entry.Str(r.Value)

		switch r.Outcome {
		case OutcomeAmbiguous:
			diags = append(diags, entry.Diagnostic{
				Kind:         entry.KindAmbiguousEntity,
				Record:       rec.Index,
				Author:       rec.Author,
				Category:     c,
				Slot:         entry.SlotName(pos),
				Value:        v,
				Resolution:   r.Value,
				Alternatives: r.Alternatives,
				Detail:       r.Reason,
			})
		case OutcomeUnresolved:
			diags = append(diags, entry.Diagnostic{
				Kind:     entry.KindUnresolvedAlias,
				Record:   rec.Index,
				Author:   rec.Author,
				Category: c,
				Slot:     entry.SlotName(pos),
				Value:    v,
				Detail:   "no alias table matched; value kept as written",
			})
		}
	}
	return rec, diags
}

// Canonicalize resolves every record of t in order and returns a new table.
func (cz *Canonicalizer) Canonicalize(t entry.Table) (entry.Table, []entry.Diagnostic) {
	out := make([]entry.Record, len(t.Records))
	var diags []entry.Diagnostic
	for i, rec := range t.Records {
		var d []entry.Diagnostic
		out[i], d = cz.CanonicalizeRecord(rec)
		diags = append(diags, d...)
	}
	cz.logger.Debug("canonicalized table",
		zap.Int("records", len(out)),
		zap.Int("diagnostics", len(diags)),
	)
	return t.WithRecords(out), diags
}

// Shadow is an alias key present in more than one of a category's tables.
// Only the first table's mapping is ever used.
type Shadow struct {
	Category entry.Category
	Key      string
	Winner   string // table that wins
	Loser    string // table that is shadowed
	Same     bool   // both map to the same value
}

// Shadows lists keys hidden by table priority, for config review.
func (cz *Canonicalizer) Shadows() []Shadow {
	var out []Shadow
	for _, c := range entry.Categories() {
		cat := cz.cats[c]
		if cat == nil {
			continue
		}
		for i, hi := range cat.tables {
			for _, lo := range cat.tables[i+1:] {
				for k, v := range lo.entries {
					if w, ok := hi.entries[k]; ok {
						out = append(out, Shadow{Category: c, Key: k, Winner: hi.name, Loser: lo.name, Same: w == v})
					}
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		if out[i].Key != out[j].Key {
			return out[i].Key < out[j].Key
		}
		return out[i].Loser < out[j].Loser
	})
	return out
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
