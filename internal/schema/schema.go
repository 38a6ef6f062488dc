package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultLabelColumn is the disposition column of the NASA catalogs.
const DefaultLabelColumn = "Disposition"

// DefaultExcluded lists identifier columns that never become features.
var DefaultExcluded = []string{"Name", "Planet_name"}

// FeatureRow is one candidate's feature values in fitted schema order.
type FeatureRow []float64

// Schema is the ordered feature list a model was fitted on.
type Schema struct {
	LabelColumn string   `json:"label_column"`
	Excluded    []string `json:"excluded,omitempty"`
	Features    []string `json:"features"`
}

// SanitizeColumn strips non-ASCII and control characters and surrounding
// whitespace from a header. Catalog exports carry stray encoding artifacts
// such as "Stellar_temperatureÃÂ".
func SanitizeColumn(name string) string {
	name = norm.NFKC.String(name)
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e {
			return -1
		}
		return r
	}, name)
	return strings.TrimSpace(name)
}

// SanitizeColumns applies SanitizeColumn to every header.
func SanitizeColumns(columns []string) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = SanitizeColumn(c)
	}
	return out
}

// Derive builds the feature list from sanitized catalog headers: every column
// in file order except the label column and the excluded identifiers.
func Derive(columns []string, labelColumn string, excluded []string) (*Schema, error) {
	if labelColumn == "" {
		labelColumn = DefaultLabelColumn
	}

	skip := make(map[string]bool, len(excluded)+1)
	for _, c := range excluded {
		skip[c] = true
	}
	skip[labelColumn] = true

	hasLabel := false
	features := make([]string, 0, len(columns))
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		if c == labelColumn {
			hasLabel = true
		}
		if skip[c] {
			continue
		}
		if seen[c] {
			return nil, &SchemaError{Column: c, Reason: "duplicate column"}
		}
		seen[c] = true
		features = append(features, c)
	}

	if !hasLabel {
		return nil, &SchemaError{Column: labelColumn, Reason: "label column not found"}
	}
	if len(features) == 0 {
		return nil, &SchemaError{Reason: "catalog has no feature columns"}
	}

	return &Schema{
		LabelColumn: labelColumn,
		Excluded:    append([]string(nil), excluded...),
		Features:    features,
	}, nil
}

// Width is the number of features.
func (s *Schema) Width() int {
	return len(s.Features)
}

// Indices maps each fitted feature to its position in columns. Columns not in
// the schema are ignored; a fitted feature absent from columns is an error.
func (s *Schema) Indices(columns []string) ([]int, error) {
	pos := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, ok := pos[c]; !ok {
			pos[c] = i
		}
	}

	idx := make([]int, len(s.Features))
	for i, f := range s.Features {
		p, ok := pos[f]
		if !ok {
			return nil, &SchemaError{Column: f, Reason: "feature column missing"}
		}
		idx[i] = p
	}
	return idx, nil
}

// Matrix parses the fitted feature columns of every row. The first cell that
// is not a finite number aborts with its row index.
func (s *Schema) Matrix(columns []string, rows [][]string) ([]FeatureRow, error) {
	idx, err := s.Indices(columns)
	if err != nil {
		return nil, err
	}

	out := make([]FeatureRow, len(rows))
	for r, row := range rows {
		vals := make(FeatureRow, len(idx))
		for i, p := range idx {
			cell := ""
			if p < len(row) {
				cell = row[p]
			}
			v, err := ParseValue(cell)
			if err != nil {
				return nil, &InvalidFeatureError{Row: r, Field: s.Features[i], Value: cell, Reason: err.Error()}
			}
			vals[i] = v
		}
		out[r] = vals
	}
	return out, nil
}

// Check verifies that a row has exactly the fitted width and only finite
// values.
func (s *Schema) Check(row FeatureRow) error {
	if len(row) != len(s.Features) {
		return &InvalidFeatureError{
			Row:    -1,
			Field:  "*",
			Value:  strconv.Itoa(len(row)),
			Reason: fmt.Sprintf("expected %d features, got %d", len(s.Features), len(row)),
		}
	}
	for i, v := range row {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &InvalidFeatureError{
				Row:    -1,
				Field:  s.Features[i],
				Value:  strconv.FormatFloat(v, 'g', -1, 64),
				Reason: fmt.Sprintf("not finite (position %d)", i),
			}
		}
	}
	return nil
}

// Coerce turns a loosely typed request record into a FeatureRow in schema
// order. Keys are sanitized like catalog headers; fields that are not
// features are ignored. A key that already equals the feature name wins;
// otherwise two keys sanitizing to the same feature are ambiguous.
func (s *Schema) Coerce(record map[string]any) (FeatureRow, error) {
	matches := make(map[string][]string, len(record))
	for k := range record {
		c := SanitizeColumn(k)
		matches[c] = append(matches[c], k)
	}

	row := make(FeatureRow, len(s.Features))
	for i, f := range s.Features {
		raw, ok := record[f]
		if !ok {
			keys := matches[f]
			switch len(keys) {
			case 0:
				return nil, &InvalidFeatureError{Row: -1, Field: f, Reason: "missing"}
			case 1:
				raw = record[keys[0]]
			default:
				sort.Strings(keys)
				return nil, &InvalidFeatureError{Row: -1, Field: f, Value: strings.Join(keys, ", "), Reason: "ambiguous fields"}
			}
		}
		v, err := toFloat(raw)
		if err != nil {
			return nil, &InvalidFeatureError{Row: -1, Field: f, Value: fmt.Sprint(raw), Reason: err.Error()}
		}
		row[i] = v
	}
	return row, nil
}

// ParseValue parses a catalog cell as a finite float.
func ParseValue(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return 0, fmt.Errorf("empty value")
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number")
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not finite")
	}
	return v, nil
}

func toFloat(raw any) (float64, error) {
	var v float64
	switch x := raw.(type) {
	case float64:
		v = x
	case float32:
		v = float64(x)
	case int:
		v = float64(x)
	case int64:
		v = float64(x)
	case json.Number:
		return ParseValue(x.String())
	case string:
		return ParseValue(x)
	case nil:
		return 0, fmt.Errorf("null")
	default:
		return 0, fmt.Errorf("unsupported type %T", raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not finite")
	}
	return v, nil
}
