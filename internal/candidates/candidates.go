// Package candidates persists candidate rows submitted through the API so
// they can later be exported as a catalog and ranked.
package candidates

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kartoza/redshift/internal/catalog"
	"github.com/kartoza/redshift/internal/inference"
	"github.com/kartoza/redshift/internal/schema"
	_ "github.com/mattn/go-sqlite3"
)

const createTable = `CREATE TABLE IF NOT EXISTS candidates (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	fields     TEXT NOT NULL,
	created_at TEXT NOT NULL
)`

// Record is one saved candidate.
type Record struct {
	ID        string         `json:"id"`
	Name      string         `json:"name,omitempty"`
	Fields    map[string]any `json:"fields"`
	CreatedAt time.Time      `json:"createdAt"`
}

// NotFoundError is returned when no candidate has the requested ID.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("candidate not found: %s", e.ID)
}

// Store is a SQLite-backed candidate table.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the candidate database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create candidate directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open candidate store: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create candidate table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file.
func (s *Store) Path() string {
	return s.path
}

// Save stores fields under a new ID.
func (s *Store) Save(fields map[string]any) (*Record, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("candidate has no fields")
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode candidate: %w", err)
	}

	rec := &Record{
		ID:        uuid.New().String(),
		Name:      nameOf(fields),
		Fields:    fields,
		CreatedAt: time.Now().UTC(),
	}
	_, err = s.db.Exec(
		"INSERT INTO candidates (id, name, fields, created_at) VALUES (?, ?, ?, ?)",
		rec.ID, rec.Name, string(data), rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save candidate: %w", err)
	}
	return rec, nil
}

// Get returns one candidate.
func (s *Store) Get(id string) (*Record, error) {
	row := s.db.QueryRow("SELECT id, name, fields, created_at FROM candidates WHERE id = ?", id)
	rec, err := scan(row)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{ID: id}
	}
	return rec, err
}

// List returns every candidate in insertion order.
func (s *Store) List() ([]*Record, error) {
	rows, err := s.db.Query("SELECT id, name, fields, created_at FROM candidates ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Delete removes a candidate.
func (s *Store) Delete(id string) error {
	res, err := s.db.Exec("DELETE FROM candidates WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete candidate: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{ID: id}
	}
	return nil
}

// Table flattens every candidate into a catalog. Field names are sanitized
// like catalog headers; columns are their union, with the name field first
// and the rest sorted. When two fields of one record sanitize to the same
// column, the first in sorted key order wins.
func (s *Store) Table() (*catalog.Table, error) {
	recs, err := s.List()
	if err != nil {
		return nil, err
	}

	fields := make([]map[string]any, len(recs))
	seen := make(map[string]bool)
	var cols []string
	for i, r := range recs {
		fields[i] = sanitizeFields(r.Fields)
		for k := range fields[i] {
			if !seen[k] && k != inference.NameField {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	cols = append([]string{inference.NameField}, cols...)

	t := &catalog.Table{Columns: cols}
	for i, r := range recs {
		row := make([]string, len(cols))
		for j, c := range cols {
			if v, ok := fields[i][c]; ok {
				row[j] = cell(v)
			}
		}
		if row[0] == "" {
			row[0] = r.Name
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func sanitizeFields(fields map[string]any) map[string]any {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(fields))
	for _, k := range keys {
		c := schema.SanitizeColumn(k)
		if c == "" {
			continue
		}
		if _, ok := out[c]; !ok {
			out[c] = fields[k]
		}
	}
	return out
}

// Export writes the candidates to path as a CSV catalog.
func (s *Store) Export(path string) (int, error) {
	t, err := s.Table()
	if err != nil {
		return 0, err
	}
	if err := catalog.Write(path, t); err != nil {
		return 0, err
	}
	return t.Len(), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(sc scanner) (*Record, error) {
	var (
		rec     Record
		fields  string
		created string
	)
	if err := sc.Scan(&rec.ID, &rec.Name, &fields, &created); err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(fields)))
	dec.UseNumber()
	if err := dec.Decode(&rec.Fields); err != nil {
		return nil, fmt.Errorf("candidate %s has invalid fields: %w", rec.ID, err)
	}
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return nil, fmt.Errorf("candidate %s has invalid timestamp: %w", rec.ID, err)
	}
	rec.CreatedAt = t
	return &rec, nil
}

func nameOf(fields map[string]any) string {
	if v, ok := fields[inference.NameField]; ok && v != nil {
		return strings.TrimSpace(fmt.Sprint(v))
	}
	return ""
}

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		data, _ := json.Marshal(x)
		return string(data)
	}
}
