package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTMLImporter scrapes a saved comment page. Authors and comment bodies are
// found by CSS class and paired in document order.
type HTMLImporter struct {
	ContainerID string // optional id of the element holding the thread
	AuthorClass string
	TextClass   string
}

// CanHandle returns true for HTML file extensions.
func (h *HTMLImporter) CanHandle(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".html" || ext == ".htm"
}

// Import parses the page. The author and comment counts must match; a page
// where they differ was saved mid-render and cannot be paired reliably.
func (h *HTMLImporter) Import(ctx context.Context, path string) ([]RawComment, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc, err := html.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML %s: %w", path, err)
	}

	authorClass, textClass := h.AuthorClass, h.TextClass
	if authorClass == "" {
		authorClass = DefaultAuthorClass
	}
	if textClass == "" {
		textClass = DefaultTextClass
	}

	root := doc
	if h.ContainerID != "" {
		if n := findByID(doc, h.ContainerID); n != nil {
			root = n
		}
	}

	var authors, texts []string
	walk(root, func(n *html.Node) bool {
		switch {
		case hasClass(n, authorClass):
			authors = append(authors, strings.TrimSpace(textContent(n)))
			return false
		case hasClass(n, textClass):
			texts = append(texts, textContent(n))
			return false
		}
		return true
	})

	if len(authors) != len(texts) {
		return nil, fmt.Errorf("parsing HTML %s: found %d authors but %d comments", path, len(authors), len(texts))
	}

	out := make([]RawComment, len(authors))
	for i := range authors {
		out[i] = RawComment{
			Author:     authors[i],
			Text:       texts[i],
			SourceFile: absPath,
			SourceLine: i + 1,
		}
	}
	return out, nil
}

// walk visits n and its descendants depth first. fn returns false to skip a
// node's children.
func walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func findByID(n *html.Node, id string) *html.Node {
	var found *html.Node
	walk(n, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if n.Type == html.ElementNode && attr(n, "id") == id {
			found = n
			return false
		}
		return true
	})
	return found
}

func hasClass(n *html.Node, class string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// textContent concatenates the text under n. Line breaks and block elements
// become newlines so one answer per paragraph survives rendering.
func textContent(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Br:
				b.WriteString("\n")
				return
			case atom.Script, atom.Style:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
		if n.Type == html.ElementNode && isBlock(n.DataAtom) {
			if s := b.String(); s != "" && !strings.HasSuffix(s, "\n") {
				b.WriteString("\n")
			}
		}
	}
	visit(n)
	return b.String()
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Li, atom.Blockquote, atom.Pre, atom.Tr:
		return true
	}
	return false
}
