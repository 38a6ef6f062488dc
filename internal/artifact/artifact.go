// Package artifact persists the (classifier, encoder) pair produced by
// training and loads it back for inference and ranking.
package artifact

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kartoza/redshift/internal/encoder"
	"github.com/kartoza/redshift/internal/forest"
	"github.com/kartoza/redshift/internal/schema"
)

// File names inside an artifact directory.
const (
	ModelFile   = "random_forest_model.gob"
	EncoderFile = "label_encoder.json"
)

// NotFoundError means one half of the artifact pair is missing.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("artifact not found: %s", e.Path)
}

// CorruptError means an artifact file exists but cannot be decoded, or the
// two halves do not belong together.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("artifact corrupt: %s: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}

// Artifact is a fitted classifier with the schema it was fitted on and its
// label encoder. It is read-only once built.
type Artifact struct {
	Schema  *schema.Schema
	Forest  *forest.Forest
	Encoder *encoder.LabelEncoder
}

// modelFile is the gob payload of ModelFile. The schema travels with the
// classifier so feature order cannot drift from the fitted trees.
type modelFile struct {
	Schema schema.Schema
	Forest forest.Forest
}

// Save writes both halves of the artifact into dir.
func Save(a *Artifact, dir string) error {
	if a == nil || a.Schema == nil || a.Forest == nil || a.Encoder == nil {
		return fmt.Errorf("artifact: incomplete artifact")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	err := WriteFile(filepath.Join(dir, ModelFile), func(w io.Writer) error {
		return gob.NewEncoder(w).Encode(modelFile{Schema: *a.Schema, Forest: *a.Forest})
	})
	if err != nil {
		return fmt.Errorf("failed to write model: %w", err)
	}

	err = WriteFile(filepath.Join(dir, EncoderFile), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(a.Encoder)
	})
	if err != nil {
		return fmt.Errorf("failed to write encoder: %w", err)
	}
	return nil
}

// Load reads the artifact pair from dir. It never returns a partially
// loaded artifact.
func Load(dir string) (*Artifact, error) {
	modelPath := filepath.Join(dir, ModelFile)
	encoderPath := filepath.Join(dir, EncoderFile)

	for _, p := range []string{modelPath, encoderPath} {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, &NotFoundError{Path: p}
			}
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}
	}

	var mf modelFile
	if err := decodeFile(modelPath, func(f *os.File) error {
		return gob.NewDecoder(f).Decode(&mf)
	}); err != nil {
		return nil, &CorruptError{Path: modelPath, Err: err}
	}

	var enc encoder.LabelEncoder
	if err := decodeFile(encoderPath, func(f *os.File) error {
		return json.NewDecoder(f).Decode(&enc)
	}); err != nil {
		return nil, &CorruptError{Path: encoderPath, Err: err}
	}

	a := &Artifact{Schema: &mf.Schema, Forest: &mf.Forest, Encoder: &enc}
	if err := a.validate(); err != nil {
		return nil, &CorruptError{Path: dir, Err: err}
	}
	return a, nil
}

// validate checks that the halves agree and the trees are well formed, so a
// damaged file fails here rather than panicking during prediction.
func (a *Artifact) validate() error {
	f := a.Forest
	if f.NumClasses != a.Encoder.Len() {
		return fmt.Errorf("classifier has %d classes, encoder has %d", f.NumClasses, a.Encoder.Len())
	}
	if f.NumFeatures != a.Schema.Width() {
		return fmt.Errorf("classifier has %d features, schema has %d", f.NumFeatures, a.Schema.Width())
	}
	if len(f.Trees) == 0 {
		return fmt.Errorf("classifier has no trees")
	}
	for t, tree := range f.Trees {
		n := len(tree.Nodes)
		if n == 0 {
			return fmt.Errorf("tree %d is empty", t)
		}
		for i, node := range tree.Nodes {
			if node.Feature < 0 {
				if len(node.Value) != f.NumClasses {
					return fmt.Errorf("tree %d node %d: leaf has %d classes", t, i, len(node.Value))
				}
				continue
			}
			if node.Feature >= f.NumFeatures {
				return fmt.Errorf("tree %d node %d: feature %d out of range", t, i, node.Feature)
			}
			if node.Left <= i || node.Left >= n || node.Right <= i || node.Right >= n {
				return fmt.Errorf("tree %d node %d: bad child index", t, i)
			}
		}
	}
	return nil
}

// WriteFile writes path through a temporary file in the same directory and
// renames it into place, so readers never observe a partial file.
func WriteFile(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func decodeFile(path string, decode func(*os.File) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return decode(f)
}
