package schema

import "fmt"

// SchemaError reports a catalog or request whose columns do not match what
// the model needs.
type SchemaError struct {
	Column string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("schema error: %s", e.Reason)
	}
	return fmt.Sprintf("schema error: column %q: %s", e.Column, e.Reason)
}

// InvalidFeatureError reports a value in a feature position that is missing
// or not a finite number. Row is the 0-based data row, or -1 for a single
// request record.
type InvalidFeatureError struct {
	Row    int
	Field  string
	Value  string
	Reason string
}

func (e *InvalidFeatureError) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("invalid feature %q at row %d: %s (value %q)", e.Field, e.Row, e.Reason, e.Value)
	}
	return fmt.Sprintf("invalid feature %q: %s (value %q)", e.Field, e.Reason, e.Value)
}
