package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/kartoza/redshift/internal/encoder"
	"github.com/kartoza/redshift/internal/forest"
	"github.com/kartoza/redshift/internal/schema"
)

func newTestArtifact(t *testing.T) *Artifact {
	t.Helper()

	X := [][]float64{{0, 1}, {0.2, 1.1}, {0.1, 0.9}, {5, 3}, {5.2, 3.3}, {4.9, 2.8}}
	y := []int{0, 0, 0, 1, 1, 1}
	cfg := forest.DefaultConfig()
	cfg.Trees = 5
	cfg.MinSamplesSplit = 2
	cfg.MinSamplesLeaf = 1

	f, err := forest.Fit(context.Background(), cfg, X, y, 2)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	enc, err := encoder.Fit([]string{"CP", "FP"})
	if err != nil {
		t.Fatalf("encoder Fit failed: %v", err)
	}
	return &Artifact{
		Schema:  &schema.Schema{LabelColumn: "Disposition", Features: []string{"period", "depth"}},
		Forest:  f,
		Encoder: enc,
	}
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	a := newTestArtifact(t)

	if err := Save(a, dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	for _, name := range []string{ModelFile, EncoderFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("%s was not created", name)
		}
	}

	back, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if diff := cmp.Diff(a.Schema, back.Schema); diff != "" {
		t.Errorf("schema mismatch:\n%s", diff)
	}
	if diff := cmp.Diff(a.Encoder.Classes(), back.Encoder.Classes()); diff != "" {
		t.Errorf("classes mismatch:\n%s", diff)
	}

	x := []float64{0.1, 1}
	want, _ := a.Forest.PredictProba(x)
	got, err := back.Forest.PredictProba(x)
	if err != nil {
		t.Fatalf("PredictProba failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("reloaded model predicts differently:\n%s", diff)
	}
}

func TestLoadMissingHalf(t *testing.T) {
	for _, missing := range []string{ModelFile, EncoderFile} {
		t.Run(missing, func(t *testing.T) {
			dir := t.TempDir()
			if err := Save(newTestArtifact(t), dir); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			os.Remove(filepath.Join(dir, missing))

			_, err := Load(dir)
			var nf *NotFoundError
			if !errors.As(err, &nf) {
				t.Fatalf("Expected NotFoundError, got %v", err)
			}
		})
	}
}

func TestLoadEmptyDir(t *testing.T) {
	_, err := Load(t.TempDir())
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Expected NotFoundError, got %v", err)
	}
}

func TestLoadCorrupt(t *testing.T) {
	tests := []struct {
		name  string
		file  string
		bytes []byte
	}{
		{"garbage model", ModelFile, []byte("not a gob stream")},
		{"garbage encoder", EncoderFile, []byte("{classes")},
		{"empty encoder", EncoderFile, []byte(`{"classes":[]}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := Save(newTestArtifact(t), dir); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			if err := os.WriteFile(filepath.Join(dir, tt.file), tt.bytes, 0644); err != nil {
				t.Fatal(err)
			}

			a, err := Load(dir)
			var ce *CorruptError
			if !errors.As(err, &ce) {
				t.Fatalf("Expected CorruptError, got %v", err)
			}
			if a != nil {
				t.Error("Expected no artifact on failure")
			}
		})
	}
}

func TestLoadMismatchedPair(t *testing.T) {
	dir := t.TempDir()
	if err := Save(newTestArtifact(t), dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// an encoder from a different run with three classes
	data, _ := json.Marshal(map[string][]string{"classes": {"CP", "FP", "PC"}})
	if err := os.WriteFile(filepath.Join(dir, EncoderFile), data, 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(dir)
	var ce *CorruptError
	if !errors.As(err, &ce) {
		t.Fatalf("Expected CorruptError, got %v", err)
	}
}

func TestSaveIncomplete(t *testing.T) {
	if err := Save(&Artifact{}, t.TempDir()); err == nil {
		t.Error("Expected error saving incomplete artifact")
	}
}

func TestHandleLoadsOnce(t *testing.T) {
	dir := t.TempDir()
	h := NewHandle(dir)

	if _, err := h.Get(); err == nil {
		t.Fatal("Expected error before training")
	}
	if h.Loaded() {
		t.Error("Handle should not be loaded after failure")
	}

	if err := Save(newTestArtifact(t), dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	first, err := h.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	// later changes on disk are not picked up
	os.Remove(filepath.Join(dir, ModelFile))
	second, err := h.Get()
	if err != nil {
		t.Fatalf("Get after removal failed: %v", err)
	}
	if first != second {
		t.Error("Expected the same in-memory artifact")
	}
}

func TestCacheSharesHandles(t *testing.T) {
	dir := t.TempDir()
	if err := Save(newTestArtifact(t), dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	c, err := NewCache(2)
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}
	if c.Handle(dir) != c.Handle(dir+string(filepath.Separator)) {
		t.Error("Expected one handle per directory")
	}

	a, err := c.Get(dir)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	b, _ := c.Get(dir)
	if a != b {
		t.Error("Expected cached artifact")
	}
}
