// Package catalog reads and writes the comma-separated transit catalogs.
package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kartoza/redshift/internal/schema"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultEncoding matches the NASA exports the models are trained on.
const DefaultEncoding = "latin1"

// Table is a catalog held in memory as raw string cells.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Load opens a catalog file, decodes it with the named text encoding and
// sanitizes its headers.
func Load(path, enc string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()

	t, err := Read(f, enc)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", filepath.Base(path), err)
	}
	return t, nil
}

// Read parses a catalog from r.
func Read(r io.Reader, enc string) (*Table, error) {
	decoder, err := lookupEncoding(enc)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(transform.NewReader(r, decoder.NewDecoder()))
	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("catalog is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	t := &Table{Columns: schema.SanitizeColumns(header)}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", len(t.Rows), err)
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "latin1", "latin-1", "iso-8859-1", "iso8859-1":
		return charmap.ISO8859_1, nil
	case "cp1252", "windows-1252":
		return charmap.Windows1252, nil
	case "utf-8", "utf8":
		return unicode.UTF8BOM, nil
	default:
		return nil, fmt.Errorf("unsupported catalog encoding %q", name)
	}
}

// Index returns the position of a column, or -1.
func (t *Table) Index(column string) int {
	for i, c := range t.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

// Column returns every value of a column.
func (t *Table) Column(column string) ([]string, error) {
	i := t.Index(column)
	if i < 0 {
		return nil, &schema.SchemaError{Column: column, Reason: "column not found"}
	}
	out := make([]string, len(t.Rows))
	for r, row := range t.Rows {
		if i < len(row) {
			out[r] = row[i]
		}
	}
	return out, nil
}

// Record returns row r as a column → value map.
func (t *Table) Record(r int) map[string]string {
	rec := make(map[string]string, len(t.Columns))
	for i, c := range t.Columns {
		if i < len(t.Rows[r]) {
			rec[c] = t.Rows[r][i]
		}
	}
	return rec
}

// Len is the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Write stores the table as UTF-8 CSV. The file is written to a temporary
// name first and renamed into place.
func Write(path string, t *Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".catalog-*.csv")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(t.Columns); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := w.WriteAll(t.Rows); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write rows: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
