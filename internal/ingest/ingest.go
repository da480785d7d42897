// Package ingest reads contest entries from saved comment pages and data files.
//
// Each supported format (HTML comment page, CSV/TSV, JSON, YAML, plain text)
// has its own importer that implements the Importer interface. The engine
// picks an importer by file extension, then applies the comment filters every
// format shares: lower-casing, the short-comment cut-off and duplicate-author
// renaming. The engine assigns each surviving comment its record index.
package ingest

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hurttlocker/contest/internal/entry"
)

// Engine dispatches files to importers and filters the result.
type Engine struct {
	opts      ImportOptions
	importers []Importer
}

// NewEngine returns an engine with every built-in importer.
func NewEngine(opts ImportOptions) *Engine {
	opts.Normalize()
	return &Engine{
		opts: opts,
		importers: []Importer{
			&HTMLImporter{ContainerID: opts.ContainerID, AuthorClass: opts.AuthorClass, TextClass: opts.TextClass},
			&CSVImporter{},
			&JSONImporter{},
			&YAMLImporter{},
			&PlainTextImporter{},
		},
	}
}

// importerFor returns the first importer that handles path.
func (e *Engine) importerFor(path string) Importer {
	for _, imp := range e.importers {
		if imp.CanHandle(path) {
			return imp
		}
	}
	return nil
}

// Import reads paths in order and returns the filtered entries with indices
// 0..n-1 in that order. A file no importer handles is recorded in the result
// and skipped; a file that fails to parse aborts the import.
func (e *Engine) Import(ctx context.Context, paths ...string) ([]entry.Source, *ImportResult, error) {
	result := &ImportResult{}
	var comments []RawComment

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, result, err
		}
		result.FilesScanned++

		info, err := os.Stat(path)
		if err != nil {
			return nil, result, fmt.Errorf("reading %s: %w", path, err)
		}
		if info.IsDir() {
			result.FilesSkipped++
			result.Errors = append(result.Errors, ImportError{File: path, Message: "is a directory"})
			continue
		}
		if e.opts.MaxFileSize > 0 && info.Size() > e.opts.MaxFileSize {
			result.FilesSkipped++
			result.Errors = append(result.Errors, ImportError{
				File:    path,
				Message: fmt.Sprintf("file too large (%d bytes, max %d)", info.Size(), e.opts.MaxFileSize),
			})
			continue
		}

		imp := e.importerFor(path)
		if imp == nil {
			result.FilesSkipped++
			result.Errors = append(result.Errors, ImportError{File: path, Message: "unsupported file type"})
			continue
		}
		got, err := imp.Import(ctx, path)
		if err != nil {
			return nil, result, fmt.Errorf("importing %s: %w", path, err)
		}
		result.FilesImported++
		comments = append(comments, got...)
	}

	result.CommentsRead = len(comments)
	return e.filter(comments, result), result, nil
}

// filter applies the shared comment rules and assigns indices.
func (e *Engine) filter(comments []RawComment, result *ImportResult) []entry.Source {
	kept := comments[:0:0]
	for _, c := range comments {
		text := strings.TrimLeft(c.Text, " \t\r\n")
		if e.opts.Lowercase {
			text = strings.ToLower(text)
		}
		if strings.Count(text, "\n") < e.opts.MinLines {
			result.ShortDropped++
			continue
		}
		c.Author = strings.TrimSpace(c.Author)
		c.Text = text
		kept = append(kept, c)
	}

	seen := make(map[string]int, len(kept))
	for _, c := range kept {
		seen[c.Author]++
	}

	out := make([]entry.Source, len(kept))
	renamed := make(map[string]bool)
	for i, c := range kept {
		author := c.Author
		if seen[author] > 1 {
			if !renamed[author] {
				renamed[author] = true
				result.DuplicateAuthors = append(result.DuplicateAuthors, author)
			}
			author = fmt.Sprintf("%s entry # %d", author, i)
		}
		out[i] = entry.Source{Index: i, Author: author, Text: c.Text}
	}
	return out
}
