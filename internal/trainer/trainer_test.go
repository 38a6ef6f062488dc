package trainer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/kartoza/redshift/internal/artifact"
	"github.com/kartoza/redshift/internal/catalog"
	"github.com/kartoza/redshift/internal/schema"
)

// syntheticTable builds n rows where period separates the two classes.
func syntheticTable(n int) *catalog.Table {
	rng := rand.New(rand.NewSource(3))
	t := &catalog.Table{Columns: []string{"Name", "Period", "Depth", "Duration", "Disposition"}}
	for i := 0; i < n; i++ {
		label := "Confirmed Planet"
		period := 10 + rng.Float64()*5
		if i%3 == 0 {
			label = "False Positive"
			period = rng.Float64() * 5
		}
		t.Rows = append(t.Rows, []string{
			fmt.Sprintf("KOI-%d", i),
			fmt.Sprintf("%.4f", period),
			fmt.Sprintf("%.4f", rng.Float64()*100),
			fmt.Sprintf("%.4f", rng.Float64()*3),
			label,
		})
	}
	return t
}

func testOptions(dir string) Options {
	opts := DefaultOptions()
	opts.OutputDir = dir
	opts.Forest.Trees = 20
	opts.Forest.MinSamplesSplit = 2
	opts.Forest.MinSamplesLeaf = 1
	opts.SkipPlots = true
	return opts
}

func TestFit(t *testing.T) {
	report, art, err := Fit(context.Background(), syntheticTable(90), testOptions(""))
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	if diff := cmp.Diff([]string{"Period", "Depth", "Duration"}, art.Schema.Features); diff != "" {
		t.Errorf("features mismatch:\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Confirmed Planet", "False Positive"}, report.Classes); diff != "" {
		t.Errorf("classes mismatch:\n%s", diff)
	}
	if report.TestSize != 18 || report.TrainSize != 72 {
		t.Errorf("Expected 72/18 split, got %d/%d", report.TrainSize, report.TestSize)
	}
	if report.Evaluation.Accuracy < 0.9 {
		t.Errorf("Expected separable data to score >= 0.9, got %v", report.Evaluation.Accuracy)
	}
	if report.Importances[0].Feature != "Period" {
		t.Errorf("Expected Period to rank first, got %+v", report.Importances)
	}
	for i := 1; i < len(report.Importances); i++ {
		if report.Importances[i].Weight > report.Importances[i-1].Weight {
			t.Errorf("Importances not sorted descending: %+v", report.Importances)
		}
	}
}

func TestFitDeterministic(t *testing.T) {
	tbl := syntheticTable(60)
	opts := testOptions("")

	r1, a1, err := Fit(context.Background(), tbl, opts)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	opts.Forest.Workers = 1
	r2, a2, err := Fit(context.Background(), tbl, opts)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	if diff := cmp.Diff(r1.Evaluation, r2.Evaluation); diff != "" {
		t.Errorf("evaluation differs between runs:\n%s", diff)
	}
	if diff := cmp.Diff(a1.Forest.Trees, a2.Forest.Trees); diff != "" {
		t.Errorf("trees differ between runs:\n%s", diff)
	}
}

func TestFitErrors(t *testing.T) {
	t.Run("missing label column", func(t *testing.T) {
		tbl := syntheticTable(30)
		tbl.Columns[4] = "Status"
		_, _, err := Fit(context.Background(), tbl, testOptions(""))
		var se *schema.SchemaError
		if !errors.As(err, &se) {
			t.Fatalf("Expected SchemaError, got %v", err)
		}
	})

	t.Run("single class", func(t *testing.T) {
		tbl := syntheticTable(30)
		for _, r := range tbl.Rows {
			r[4] = "Confirmed Planet"
		}
		_, _, err := Fit(context.Background(), tbl, testOptions(""))
		if err == nil || !strings.Contains(err.Error(), "at least 2 classes") {
			t.Fatalf("Expected class count error, got %v", err)
		}
	})

	t.Run("bad feature", func(t *testing.T) {
		tbl := syntheticTable(30)
		tbl.Rows[7][2] = "n/a"
		_, _, err := Fit(context.Background(), tbl, testOptions(""))
		var ife *schema.InvalidFeatureError
		if !errors.As(err, &ife) {
			t.Fatalf("Expected InvalidFeatureError, got %v", err)
		}
		if ife.Row != 7 || ife.Field != "Depth" {
			t.Errorf("Expected row 7 Depth, got row %d %s", ife.Row, ife.Field)
		}
	})

	t.Run("empty label", func(t *testing.T) {
		tbl := syntheticTable(30)
		tbl.Rows[4][4] = "  "
		_, _, err := Fit(context.Background(), tbl, testOptions(""))
		var ife *schema.InvalidFeatureError
		if !errors.As(err, &ife) || ife.Row != 4 {
			t.Fatalf("Expected InvalidFeatureError at row 4, got %v", err)
		}
	})

	t.Run("three rows", func(t *testing.T) {
		_, _, err := Fit(context.Background(), syntheticTable(3), testOptions(""))
		if err == nil || !strings.Contains(err.Error(), "split") {
			t.Fatalf("Expected split error, got %v", err)
		}
	})
}

func TestTrainWritesOutputs(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "catalog.csv")
	if err := catalog.Write(csvPath, syntheticTable(60)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	opts := testOptions(filepath.Join(dir, "out"))
	opts.CatalogPath = csvPath
	opts.Encoding = "utf-8"
	opts.SkipPlots = false

	report, _, err := Train(context.Background(), opts)
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}

	for _, name := range []string{artifact.ModelFile, artifact.EncoderFile, ImportanceFile, EvaluationFile, ConfusionPlotFile, ImportancePlotFile} {
		if _, err := os.Stat(filepath.Join(opts.OutputDir, name)); err != nil {
			t.Errorf("%s was not written", name)
		}
	}

	data, err := os.ReadFile(filepath.Join(opts.OutputDir, ImportanceFile))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != "feature,importance" || len(lines) != 4 {
		t.Errorf("Unexpected importance file:\n%s", data)
	}

	back, err := ReadEvaluation(opts.OutputDir)
	if err != nil {
		t.Fatalf("ReadEvaluation failed: %v", err)
	}
	if back.Evaluation.Accuracy != report.Evaluation.Accuracy {
		t.Errorf("Expected accuracy %v, got %v", report.Evaluation.Accuracy, back.Evaluation.Accuracy)
	}

	if _, err := artifact.Load(opts.OutputDir); err != nil {
		t.Errorf("Saved artifact does not load: %v", err)
	}
}

func TestTrainMissingCatalog(t *testing.T) {
	opts := testOptions(t.TempDir())
	opts.CatalogPath = filepath.Join(t.TempDir(), "nope.csv")
	if _, _, err := Train(context.Background(), opts); err == nil {
		t.Error("Expected error for missing catalog")
	}
}
