package ingest

import "context"

// RawComment is one author/text pair as read from a file, before filtering.
type RawComment struct {
	Author     string // Comment author as displayed
	Text       string // Comment body, line breaks preserved
	SourceFile string // Absolute path to source file
	SourceLine int    // Starting line or row number (1-indexed)
}

// Importer handles a specific file format.
type Importer interface {
	// CanHandle returns true if this importer supports the given file path.
	CanHandle(path string) bool

	// Import parses the file and returns its comments in document order.
	Import(ctx context.Context, path string) ([]RawComment, error)
}

// ImportResult summarizes an import operation.
type ImportResult struct {
	FilesScanned     int
	FilesImported    int
	FilesSkipped     int
	CommentsRead     int
	ShortDropped     int      // comments under the MinLines cut-off
	DuplicateAuthors []string // authors renamed "<author> entry # <i>"
	Errors           []ImportError
}

// Kept is the number of comments that became entries.
func (r *ImportResult) Kept() int {
	return r.CommentsRead - r.ShortDropped
}

// ImportError records a non-fatal error during import.
type ImportError struct {
	File    string
	Line    int
	Message string
}

// ImportOptions configures an import operation.
type ImportOptions struct {
	Lowercase   bool  // lower-case every comment body
	MinLines    int   // minimum number of line breaks a comment needs to count as an entry
	MaxFileSize int64 // bytes, default 10MB

	// HTML comment pages.
	ContainerID string // element id scoping the comment thread; empty searches the whole page
	AuthorClass string // class of the element holding the author name
	TextClass   string // class of the element holding the comment body
}

const (
	// DefaultMaxFileSize is 10MB.
	DefaultMaxFileSize = 10 * 1024 * 1024

	// DefaultMinLines drops greetings and replies: a real entry spans ten lines.
	DefaultMinLines = 8

	DefaultContainerID = "parent-comment-container"
	DefaultAuthorClass = "comment-author-text"
	DefaultTextClass   = "comment-text-container"
)

// DefaultOptions returns the options used for a saved contest comment page.
func DefaultOptions() ImportOptions {
	o := ImportOptions{Lowercase: true, MinLines: DefaultMinLines, ContainerID: DefaultContainerID}
	o.Normalize()
	return o
}

// Normalize fills unset HTML and size fields with defaults.
func (o *ImportOptions) Normalize() {
	if o.MaxFileSize == 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.AuthorClass == "" {
		o.AuthorClass = DefaultAuthorClass
	}
	if o.TextClass == "" {
		o.TextClass = DefaultTextClass
	}
	if o.MinLines < 0 {
		o.MinLines = 0
	}
}
