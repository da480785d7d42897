package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// PlainTextImporter handles .txt files and files without an extension. The
// whole file is one entry; the author is the file name without extension.
type PlainTextImporter struct{}

// CanHandle returns true for plain text extensions. Also acts as fallback.
func (t *PlainTextImporter) CanHandle(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".txt" || ext == ""
}

// Import reads the file as a single comment.
func (t *PlainTextImporter) Import(ctx context.Context, path string) ([]RawComment, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	base := filepath.Base(path)
	return []RawComment{{
		Author:     strings.TrimSuffix(base, filepath.Ext(base)),
		Text:       content,
		SourceFile: absPath,
		SourceLine: 1,
	}}, nil
}
