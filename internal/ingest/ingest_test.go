package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// entryText returns a ten-line entry body.
func entryText(first string) string {
	lines := []string{first}
	for i := 2; i <= 10; i++ {
		lines = append(lines, strings.Repeat("x", i)+", y")
	}
	return strings.Join(lines, "\n")
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

// ==================== HTML Importer Tests ====================

const samplePage = `<html><body>
<div class="sidebar"><span class="comment-author-text">Outside Thread</span></div>
<div id="parent-comment-container">
  <div class="comment">
    <span class="comment-author-text"> Julian M </span>
    <div class="comment-text-container"><p>1. COL, TOR</p><p>2. BUF</p></div>
  </div>
  <div class="comment">
    <span class="comment-author-text">Evan L</span>
    <div class="comment-text-container">1. tbl<br>2. ari<br/>3. cooper</div>
  </div>
</div>
</body></html>`

func TestHTMLImport_PairsAuthorsAndComments(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "page.html", samplePage)

	imp := &HTMLImporter{ContainerID: DefaultContainerID}
	if !imp.CanHandle(path) {
		t.Fatal("CanHandle should return true for .html files")
	}

	comments, err := imp.Import(context.Background(), path)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("expected 2 comments inside the container, got %d", len(comments))
	}
	if comments[0].Author != "Julian M" {
		t.Errorf("author = %q, want trimmed %q", comments[0].Author, "Julian M")
	}
	if comments[0].Text != "1. COL, TOR\n2. BUF\n" {
		t.Errorf("paragraphs should become lines, got %q", comments[0].Text)
	}
	if comments[1].Text != "1. tbl\n2. ari\n3. cooper\n" {
		t.Errorf("<br> should become a newline, got %q", comments[1].Text)
	}
	if !filepath.IsAbs(comments[0].SourceFile) {
		t.Errorf("SourceFile should be absolute: %s", comments[0].SourceFile)
	}
}

func TestHTMLImport_WholePageWithoutContainer(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "page.htm", samplePage)

	_, err := (&HTMLImporter{}).Import(context.Background(), path)
	if err == nil || !strings.Contains(err.Error(), "3 authors but 2 comments") {
		t.Fatalf("expected an author/comment mismatch error, got %v", err)
	}
}

// ==================== Structured Importer Tests ====================

func TestCSVImport(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "entries.csv", "Text,Author\n\"1. col, tor\n2. buf\",alpha\nshort,bravo\n")

	comments, err := (&CSVImporter{}).Import(context.Background(), path)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(comments))
	}
	if comments[0].Author != "alpha" || comments[0].Text != "1. col, tor\n2. buf" {
		t.Errorf("unexpected first row: %+v", comments[0])
	}
	if comments[1].SourceLine != 3 {
		t.Errorf("SourceLine = %d, want 3", comments[1].SourceLine)
	}
}

func TestCSVImport_MissingColumns(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "entries.tsv", "name\tbody\nalpha\tx\n")
	if _, err := (&CSVImporter{}).Import(context.Background(), path); err == nil {
		t.Fatal("expected an error for a header without author/text")
	}
}

func TestJSONAndYAMLImport(t *testing.T) {
	dir := t.TempDir()
	jsonPath := writeFile(t, dir, "entries.json", `[{"author":"alpha","text":"1. col"},{"author":"bravo","comment":"1. tor"}]`)
	yamlPath := writeFile(t, dir, "entries.yaml", "- author: alpha\n  text: |\n    1. col\n    2. buf\n---\n- author: charlie\n  text: 1. veg\n")

	got, err := (&JSONImporter{}).Import(context.Background(), jsonPath)
	if err != nil {
		t.Fatalf("JSON import failed: %v", err)
	}
	if len(got) != 2 || got[1].Text != "1. tor" {
		t.Fatalf("unexpected JSON comments: %+v", got)
	}

	got, err = (&YAMLImporter{}).Import(context.Background(), yamlPath)
	if err != nil {
		t.Fatalf("YAML import failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 comments across both documents, got %d", len(got))
	}
	if got[0].Text != "1. col\n2. buf\n" || got[1].Author != "charlie" {
		t.Errorf("unexpected YAML comments: %+v", got)
	}
}

func TestJSONImport_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.json", `{"author": "alpha"}`)
	if _, err := (&JSONImporter{}).Import(context.Background(), path); err == nil {
		t.Fatal("expected an error for a non-array document")
	}
}

func TestPlainTextImport(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "sean.txt", "1. col\r\n2. buf\r\n")

	got, err := (&PlainTextImporter{}).Import(context.Background(), path)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(got) != 1 || got[0].Author != "sean" || got[0].Text != "1. col\n2. buf\n" {
		t.Fatalf("unexpected text import: %+v", got)
	}
}

// ==================== Engine Tests ====================

func TestEngine_FiltersAndIndexes(t *testing.T) {
	dir := t.TempDir()
	page := `<div id="parent-comment-container">` +
		`<span class="comment-author-text">Sam</span><div class="comment-text-container">` + strings.ReplaceAll(entryText("1. COL, TOR"), "\n", "<br>") + `</div>` +
		`<span class="comment-author-text">Pat</span><div class="comment-text-container">great contest!</div>` +
		`<span class="comment-author-text">Sam</span><div class="comment-text-container">` + strings.ReplaceAll(entryText("updated: 1. tbl"), "\n", "<br>") + `</div>` +
		`<span class="comment-author-text">Lee</span><div class="comment-text-container">  ` + strings.ReplaceAll(entryText("1. veg"), "\n", "<br>") + `</div>` +
		`</div>`
	path := writeFile(t, dir, "page.html", page)

	sources, result, err := NewEngine(DefaultOptions()).Import(context.Background(), path)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	if result.CommentsRead != 4 || result.ShortDropped != 1 || result.Kept() != 3 {
		t.Errorf("unexpected counts: %+v", result)
	}
	if len(sources) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(sources))
	}
	for i, s := range sources {
		if s.Index != i {
			t.Errorf("entry %d has index %d", i, s.Index)
		}
	}
	if sources[0].Author != "Sam entry # 0" || sources[1].Author != "Sam entry # 1" {
		t.Errorf("duplicate authors should be renamed, got %q and %q", sources[0].Author, sources[1].Author)
	}
	if sources[2].Author != "Lee" {
		t.Errorf("unique author should be kept, got %q", sources[2].Author)
	}
	if len(result.DuplicateAuthors) != 1 || result.DuplicateAuthors[0] != "Sam" {
		t.Errorf("DuplicateAuthors = %v", result.DuplicateAuthors)
	}
	if !strings.HasPrefix(sources[0].Text, "1. col, tor\n") {
		t.Errorf("text should be lower-cased, got %q", sources[0].Text)
	}
	if !strings.HasPrefix(sources[2].Text, "1. veg") {
		t.Errorf("leading whitespace should be stripped, got %q", sources[2].Text)
	}
}

func TestEngine_MultipleFilesKeepOrder(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.json", `[{"author":"alpha","text":"one"}]`)
	b := writeFile(t, dir, "b.yml", "- author: bravo\n  text: two\n")
	c := writeFile(t, dir, "notes.pdf", "binary")

	sources, result, err := NewEngine(ImportOptions{}).Import(context.Background(), a, b, c)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(sources) != 2 || sources[0].Author != "alpha" || sources[1].Index != 1 {
		t.Fatalf("unexpected sources: %+v", sources)
	}
	if sources[0].Text != "one" {
		t.Errorf("text should keep its case without Lowercase, got %q", sources[0].Text)
	}
	if result.FilesSkipped != 1 || len(result.Errors) != 1 {
		t.Errorf("unsupported file should be skipped and reported: %+v", result)
	}
}

func TestEngine_MissingFile(t *testing.T) {
	_, _, err := NewEngine(DefaultOptions()).Import(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestEngine_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := NewEngine(DefaultOptions()).Import(ctx, "whatever.csv"); err == nil {
		t.Fatal("expected context error")
	}
}
