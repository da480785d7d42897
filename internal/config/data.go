package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hurttlocker/contest/internal/canon"
	"github.com/hurttlocker/contest/internal/entry"
	"github.com/hurttlocker/contest/internal/extract"
	"github.com/hurttlocker/contest/internal/override"
)

//go:embed defaults/aliases.yaml
var defaultAliases []byte

// DefaultAliasesName labels the embedded alias data in logs and errors.
const DefaultAliasesName = "built-in aliases"

// aliasFile is the on-disk shape of the alias configuration.
type aliasFile struct {
	NameExceptions map[string]string           `yaml:"name_exceptions"`
	Blanks         []string                    `yaml:"blanks"`
	Categories     map[int]aliasCategory       `yaml:"categories"`
	Tables         map[string]canon.AliasTable `yaml:"tables"`
}

type aliasCategory struct {
	Tables    []string                   `yaml:"tables"`
	Canonical []string                   `yaml:"canonical"`
	Ambiguous map[string]canon.Ambiguity `yaml:"ambiguous"`
	Blanks    []string                   `yaml:"blanks"`
}

// AliasData is the decoded alias configuration, split by the stage that uses it.
type AliasData struct {
	Source  string
	Canon   canon.Config
	Extract extract.Options
}

// LoadAliases reads alias configuration from path, or the embedded defaults
// when path is empty.
func LoadAliases(path string) (*AliasData, error) {
	if path == "" {
		return ParseAliases(bytes.NewReader(defaultAliases), DefaultAliasesName)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading aliases: %w", err)
	}
	defer f.Close()
	return ParseAliases(f, path)
}

// ParseAliases decodes alias YAML. Unknown fields are errors so a typo in a
// key never silently disables a table.
func ParseAliases(r io.Reader, name string) (*AliasData, error) {
	var af aliasFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&af); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}

	out := &AliasData{
		Source: name,
		Canon: canon.Config{
			Tables:     af.Tables,
			Categories: make(map[entry.Category]canon.CategoryConfig, len(af.Categories)),
		},
		Extract: extract.Options{
			NameExceptions: af.NameExceptions,
			Blanks:         make(map[entry.Category][]string),
		},
	}
	if len(af.Blanks) > 0 {
		out.Extract.Blanks[0] = af.Blanks
	}
	for n, ac := range af.Categories {
		c := entry.Category(n)
		if !c.Valid() {
			return nil, fmt.Errorf("parsing %s: category %d out of range 1-%d", name, n, entry.CategoryCount)
		}
		out.Canon.Categories[c] = canon.CategoryConfig{
			Tables:    ac.Tables,
			Canonical: ac.Canonical,
			Ambiguous: ac.Ambiguous,
		}
		if len(ac.Blanks) > 0 {
			out.Extract.Blanks[c] = ac.Blanks
		}
	}
	return out, nil
}

type overrideFile struct {
	Overrides []override.Override `yaml:"overrides"`
}

// LoadOverrides reads and validates an override list. An empty path yields no
// overrides.
func LoadOverrides(path string) ([]override.Override, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading overrides: %w", err)
	}
	defer f.Close()
	return ParseOverrides(f, path)
}

// ParseOverrides decodes and validates override YAML.
func ParseOverrides(r io.Reader, name string) ([]override.Override, error) {
	var of overrideFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&of); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	list, err := override.Normalize(of.Overrides)
	if err != nil {
		return nil, fmt.Errorf("validating %s: %w", name, err)
	}
	return list, nil
}
