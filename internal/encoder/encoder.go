package encoder

import (
	"encoding/json"
	"fmt"
	"sort"
)

// UnknownLabelError is returned for a label or index outside the fitted
// vocabulary.
type UnknownLabelError struct {
	Label string
	Index int
}

func (e *UnknownLabelError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("unknown label %q", e.Label)
	}
	return fmt.Sprintf("unknown class index %d", e.Index)
}

// LabelEncoder maps disposition strings to class indices. Index assignment
// is the ascending byte-wise order of the distinct labels, so a refit on the
// same label set always yields the same mapping.
type LabelEncoder struct {
	classes []string
	index   map[string]int
}

// Fit builds an encoder from the observed labels.
func Fit(labels []string) (*LabelEncoder, error) {
	seen := make(map[string]struct{})
	for _, l := range labels {
		seen[l] = struct{}{}
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("encoder: no labels to fit")
	}

	classes := make([]string, 0, len(seen))
	for l := range seen {
		classes = append(classes, l)
	}
	sort.Strings(classes)
	return fromClasses(classes)
}

func fromClasses(classes []string) (*LabelEncoder, error) {
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		if _, dup := index[c]; dup {
			return nil, fmt.Errorf("encoder: duplicate class %q", c)
		}
		index[c] = i
	}
	return &LabelEncoder{classes: classes, index: index}, nil
}

// Encode returns the class index of label.
func (e *LabelEncoder) Encode(label string) (int, error) {
	i, ok := e.index[label]
	if !ok {
		return 0, &UnknownLabelError{Label: label, Index: -1}
	}
	return i, nil
}

// EncodeAll encodes labels in order.
func (e *LabelEncoder) EncodeAll(labels []string) ([]int, error) {
	out := make([]int, len(labels))
	for i, l := range labels {
		c, err := e.Encode(l)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

// Decode returns the label of a class index.
func (e *LabelEncoder) Decode(index int) (string, error) {
	if index < 0 || index >= len(e.classes) {
		return "", &UnknownLabelError{Index: index}
	}
	return e.classes[index], nil
}

// Classes returns a copy of the vocabulary in index order.
func (e *LabelEncoder) Classes() []string {
	return append([]string(nil), e.classes...)
}

// Len is the number of classes.
func (e *LabelEncoder) Len() int {
	return len(e.classes)
}

type encoderJSON struct {
	Classes []string `json:"classes"`
}

// MarshalJSON implements json.Marshaler.
func (e *LabelEncoder) MarshalJSON() ([]byte, error) {
	return json.Marshal(encoderJSON{Classes: e.classes})
}

// UnmarshalJSON implements json.Unmarshaler. The persisted order is kept as
// is; it is not re-sorted.
func (e *LabelEncoder) UnmarshalJSON(data []byte) error {
	var raw encoderJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.Classes) == 0 {
		return fmt.Errorf("encoder: empty class list")
	}
	dec, err := fromClasses(raw.Classes)
	if err != nil {
		return err
	}
	*e = *dec
	return nil
}
