// Package confirmed looks up submitted objects in the catalog of already
// confirmed planets.
package confirmed

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/kartoza/redshift/internal/catalog"
)

// Column names used for matching.
const (
	NameColumn = "Planet_name"
	RAColumn   = "Right_ascension"
	DecColumn  = "Declination"
)

// Tolerance is the maximum RA and Dec difference, in degrees, for a
// coordinate match.
const Tolerance = 0.01

// Match is the result of a lookup.
type Match struct {
	Exists bool              `json:"exists"`
	Planet map[string]string `json:"planet,omitempty"`
}

// BulkResult splits uploaded objects into known planets and new candidates.
type BulkResult struct {
	Matched       []map[string]any `json:"matched"`
	NewCandidates []map[string]any `json:"newCandidates"`
}

// Store holds the confirmed catalog in memory. A missing file is an empty
// catalog.
type Store struct {
	path     string
	encoding string

	mu    sync.RWMutex
	table *catalog.Table
}

// Open loads the confirmed catalog at path.
func Open(path, encoding string) (*Store, error) {
	s := &Store{path: path, encoding: encoding, table: &catalog.Table{}}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the catalog file.
func (s *Store) Reload() error {
	t, err := catalog.Load(s.path, s.encoding)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			t = &catalog.Table{}
		} else {
			return err
		}
	}
	s.mu.Lock()
	s.table = t
	s.mu.Unlock()
	return nil
}

// Len is the number of confirmed planets.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.Len()
}

// List returns every confirmed planet.
func (s *Store) List() []map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]map[string]string, s.table.Len())
	for i := range out {
		out[i] = s.table.Record(i)
	}
	return out
}

// Lookup finds a planet by exact name, or by RA and Dec both within
// Tolerance. Fields that are absent or not numeric do not match.
func (s *Store) Lookup(query map[string]any) Match {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.find(query); i >= 0 {
		return Match{Exists: true, Planet: s.table.Record(i)}
	}
	return Match{}
}

// Bulk runs Lookup for every object.
func (s *Store) Bulk(objects []map[string]any) BulkResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := BulkResult{Matched: []map[string]any{}, NewCandidates: []map[string]any{}}
	for _, obj := range objects {
		i := s.find(obj)
		if i < 0 {
			res.NewCandidates = append(res.NewCandidates, obj)
			continue
		}
		m := make(map[string]any, len(obj)+1)
		for k, v := range obj {
			m[k] = v
		}
		m["matchedWith"] = s.table.Record(i)[NameColumn]
		res.Matched = append(res.Matched, m)
	}
	return res
}

// Add appends a planet and rewrites the catalog file. New field names become
// new columns.
func (s *Store) Add(planet map[string]any) error {
	if len(planet) == 0 {
		return fmt.Errorf("planet has no fields")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := &catalog.Table{Columns: append([]string(nil), s.table.Columns...)}
	for k := range planet {
		if next.Index(k) < 0 {
			next.Columns = append(next.Columns, k)
		}
	}
	for _, r := range s.table.Rows {
		row := make([]string, len(next.Columns))
		copy(row, r)
		next.Rows = append(next.Rows, row)
	}
	row := make([]string, len(next.Columns))
	for k, v := range planet {
		row[next.Index(k)] = format(v)
	}
	next.Rows = append(next.Rows, row)

	if err := catalog.Write(s.path, next); err != nil {
		return err
	}
	s.table = next
	// the file is now UTF-8
	s.encoding = "utf-8"
	return nil
}

func (s *Store) find(query map[string]any) int {
	name := strings.TrimSpace(format(query[NameColumn]))
	ra, raOK := number(query[RAColumn])
	dec, decOK := number(query[DecColumn])

	ni, ri, di := s.table.Index(NameColumn), s.table.Index(RAColumn), s.table.Index(DecColumn)
	for i, row := range s.table.Rows {
		if name != "" && ni >= 0 && ni < len(row) && strings.TrimSpace(row[ni]) == name {
			return i
		}
		if !raOK || !decOK || ri < 0 || di < 0 || ri >= len(row) || di >= len(row) {
			continue
		}
		pra, err1 := strconv.ParseFloat(strings.TrimSpace(row[ri]), 64)
		pdec, err2 := strconv.ParseFloat(strings.TrimSpace(row[di]), 64)
		if err1 != nil || err2 != nil {
			continue
		}
		if math.Abs(pra-ra) < Tolerance && math.Abs(pdec-dec) < Tolerance {
			return i
		}
	}
	return -1
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, !math.IsNaN(x)
	case int:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil && !math.IsNaN(f)
	case fmt.Stringer:
		f, err := strconv.ParseFloat(x.String(), 64)
		return f, err == nil
	}
	return 0, false
}

func format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// Exists reports whether the catalog file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}
