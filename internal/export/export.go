// Package export writes a table as delimited text: one header row
// (index, author, q1a1 … q10a1) then one row per surviving record, nulls as
// empty cells.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hurttlocker/contest/internal/entry"
)

// Format selects the delimiter.
type Format string

const (
	FormatCSV Format = "csv"
	FormatTSV Format = "tsv"
)

// FormatFor picks a format from a file extension; anything but .tsv is CSV.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		return FormatTSV
	}
	return FormatCSV
}

// Header returns the column names.
func Header() []string {
	return append([]string{"index", "author"}, entry.SlotNames()...)
}

// Write renders t to w.
func Write(w io.Writer, t entry.Table, f Format) error {
	cw := csv.NewWriter(w)
	switch f {
	case FormatCSV, "":
	case FormatTSV:
		cw.Comma = '\t'
	default:
		return fmt.Errorf("unknown export format %q", f)
	}

	if err := cw.Write(Header()); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	row := make([]string, 0, 2+entry.SlotCount)
	for _, rec := range t.Records {
		row = append(row[:0], strconv.Itoa(rec.Index), rec.Author)
		row = append(row, rec.Strings()...)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing record %d: %w", rec.Index, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing export: %w", err)
	}
	return nil
}

// WriteFile renders t to path, creating parent directories. The format
// follows the extension.
func WriteFile(path string, t entry.Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := Write(f, t, FormatFor(path)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
