package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CSVImporter handles .csv and .tsv files with "author" and "text" columns.
type CSVImporter struct{}

// CanHandle returns true for CSV/TSV file extensions.
func (c *CSVImporter) CanHandle(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".csv" || ext == ".tsv"
}

// Import parses a CSV file into comments.
// First row is the header; column order is free and matching is
// case-insensitive. Quoted fields may span lines.
func (c *CSVImporter) Import(ctx context.Context, path string) ([]RawComment, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)

	// Auto-detect TSV
	if strings.ToLower(filepath.Ext(path)) == ".tsv" {
		reader.Comma = '\t'
	}

	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing CSV %s: %w", path, err)
	}

	if len(records) < 2 {
		// Need at least headers + one row
		return nil, nil
	}

	authorCol, textCol := -1, -1
	for j, h := range records[0] {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "author":
			authorCol = j
		case "text", "comment":
			textCol = j
		}
	}
	if authorCol < 0 || textCol < 0 {
		return nil, fmt.Errorf("parsing CSV %s: header needs author and text columns, got %q", path, records[0])
	}

	var comments []RawComment
	for i, row := range records[1:] {
		if authorCol >= len(row) || textCol >= len(row) {
			continue
		}
		comments = append(comments, RawComment{
			Author:     row[authorCol],
			Text:       row[textCol],
			SourceFile: absPath,
			SourceLine: i + 2, // 1-indexed, skip header row
		})
	}

	return comments, nil
}
