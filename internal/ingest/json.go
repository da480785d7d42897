package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// JSONImporter handles .json files.
type JSONImporter struct{}

// CanHandle returns true for JSON file extensions.
func (j *JSONImporter) CanHandle(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".json"
}

// commentDoc is the shape shared by the JSON and YAML importers.
type commentDoc struct {
	Author  string `json:"author" yaml:"author"`
	Text    string `json:"text" yaml:"text"`
	Comment string `json:"comment,omitempty" yaml:"comment,omitempty"` // alias for text
}

func (d commentDoc) body() string {
	if d.Text != "" {
		return d.Text
	}
	return d.Comment
}

// Import parses a JSON array of {"author", "text"} objects.
func (j *JSONImporter) Import(ctx context.Context, path string) ([]RawComment, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}

	var docs []commentDoc
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("invalid JSON in %s: %w", path, err)
	}

	return docsToComments(docs, absPath), nil
}

func docsToComments(docs []commentDoc, absPath string) []RawComment {
	out := make([]RawComment, 0, len(docs))
	for i, d := range docs {
		out = append(out, RawComment{
			Author:     d.Author,
			Text:       d.body(),
			SourceFile: absPath,
			SourceLine: i + 1,
		})
	}
	return out
}
