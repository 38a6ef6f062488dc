// Package trainer fits a classifier on a labeled catalog, evaluates it on a
// stratified held-out split and writes the artifact plus its diagnostics.
package trainer

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kartoza/redshift/internal/artifact"
	"github.com/kartoza/redshift/internal/catalog"
	"github.com/kartoza/redshift/internal/encoder"
	"github.com/kartoza/redshift/internal/forest"
	"github.com/kartoza/redshift/internal/metrics"
	"github.com/kartoza/redshift/internal/plot"
	"github.com/kartoza/redshift/internal/schema"
)

// Output file names written next to the artifact.
const (
	ImportanceFile      = "feature_importance.csv"
	EvaluationFile      = "evaluation.json"
	ConfusionPlotFile   = "confusion_matrix.png"
	ImportancePlotFile  = "feature_importance.png"
	defaultTestFraction = 0.2
	defaultPlotBars     = 15
)

// Options controls a training run.
type Options struct {
	CatalogPath    string
	OutputDir      string
	LabelColumn    string
	ExcludeColumns []string
	TestFraction   float64
	Seed           int64
	Forest         forest.Config
	Encoding       string
	PlotBars       int
	SkipPlots      bool
	Logger         *slog.Logger
}

// DefaultOptions returns the options used by the train command.
func DefaultOptions() Options {
	return Options{
		LabelColumn:    schema.DefaultLabelColumn,
		ExcludeColumns: append([]string(nil), schema.DefaultExcluded...),
		TestFraction:   defaultTestFraction,
		Seed:           42,
		Forest:         forest.DefaultConfig(),
		Encoding:       catalog.DefaultEncoding,
		PlotBars:       defaultPlotBars,
	}
}

// Importance is one feature's share of the total impurity decrease.
type Importance struct {
	Feature string  `json:"feature"`
	Weight  float64 `json:"importance"`
}

// Report summarizes a training run.
type Report struct {
	Evaluation  *metrics.Evaluation `json:"evaluation"`
	Importances []Importance        `json:"feature_importance"`
	Features    []string            `json:"features"`
	Classes     []string            `json:"classes"`
	TrainSize   int                 `json:"train_size"`
	TestSize    int                 `json:"test_size"`
	Seed        int64               `json:"seed"`
	Duration    time.Duration       `json:"duration_ns"`
}

// ClassificationReport renders the per-class text report.
func (r *Report) ClassificationReport() string {
	return r.Evaluation.Report()
}

// Train loads the catalog, fits and evaluates the model and persists every
// output into opts.OutputDir. Runs against the same directory must not
// overlap.
func Train(ctx context.Context, opts Options) (*Report, *artifact.Artifact, error) {
	log := opts.logger()

	t, err := catalog.Load(opts.CatalogPath, opts.Encoding)
	if err != nil {
		return nil, nil, err
	}
	log.Info("loaded catalog", "path", opts.CatalogPath, "rows", t.Len(), "columns", len(t.Columns))

	report, art, err := Fit(ctx, t, opts)
	if err != nil {
		return nil, nil, err
	}
	if err := Persist(report, art, opts); err != nil {
		return nil, nil, err
	}
	log.Info("training complete", "output", opts.OutputDir, "accuracy", report.Evaluation.Accuracy, "duration", report.Duration)
	return report, art, nil
}

// Fit trains and evaluates on an in-memory table without touching disk.
func Fit(ctx context.Context, t *catalog.Table, opts Options) (*Report, *artifact.Artifact, error) {
	log := opts.logger()
	start := time.Now()

	s, err := schema.Derive(t.Columns, opts.LabelColumn, opts.ExcludeColumns)
	if err != nil {
		return nil, nil, err
	}
	X, err := s.Matrix(t.Columns, t.Rows)
	if err != nil {
		return nil, nil, err
	}
	labels, err := labelColumn(t, s.LabelColumn)
	if err != nil {
		return nil, nil, err
	}

	enc, err := encoder.Fit(labels)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fit label encoder: %w", err)
	}
	if enc.Len() < 2 {
		return nil, nil, fmt.Errorf("training needs at least 2 classes, found %d (%v)", enc.Len(), enc.Classes())
	}
	y, err := enc.EncodeAll(labels)
	if err != nil {
		return nil, nil, err
	}
	log.Info("derived schema", "features", s.Width(), "classes", enc.Classes())

	trainIdx, testIdx, err := stratifiedSplit(y, enc.Len(), opts.TestFraction, opts.Seed)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to split catalog: %w", err)
	}
	log.Info("split catalog", "train", len(trainIdx), "test", len(testIdx), "seed", opts.Seed)

	Xtr, ytr := subset(X, y, trainIdx)
	f, err := forest.Fit(ctx, opts.Forest, Xtr, ytr, enc.Len())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fit classifier: %w", err)
	}
	log.Info("fitted classifier", "trees", len(f.Trees))

	Xte, yte := subset(X, y, testIdx)
	pred := make([]int, len(Xte))
	for i, row := range Xte {
		if pred[i], err = f.Predict(row); err != nil {
			return nil, nil, err
		}
	}
	eval, err := metrics.Evaluate(yte, pred, enc.Classes())
	if err != nil {
		return nil, nil, err
	}
	log.Info("evaluated", "accuracy", eval.Accuracy, "macro_f1", eval.MacroAvg.F1)

	report := &Report{
		Evaluation:  eval,
		Importances: rankImportances(s.Features, f.FeatureImportances()),
		Features:    s.Features,
		Classes:     enc.Classes(),
		TrainSize:   len(trainIdx),
		TestSize:    len(testIdx),
		Seed:        opts.Seed,
		Duration:    time.Since(start),
	}
	return report, &artifact.Artifact{Schema: s, Forest: f, Encoder: enc}, nil
}

// Persist writes the artifact, the importance table, the evaluation and the
// diagnostic images.
func Persist(report *Report, art *artifact.Artifact, opts Options) error {
	dir := opts.OutputDir
	if err := artifact.Save(art, dir); err != nil {
		return err
	}

	err := artifact.WriteFile(filepath.Join(dir, ImportanceFile), func(w io.Writer) error {
		return writeImportances(w, report.Importances)
	})
	if err != nil {
		return fmt.Errorf("failed to write feature importance: %w", err)
	}

	err = artifact.WriteFile(filepath.Join(dir, EvaluationFile), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			*Report
			Text string `json:"classification_report"`
		}{report, report.ClassificationReport()})
	})
	if err != nil {
		return fmt.Errorf("failed to write evaluation: %w", err)
	}

	if opts.SkipPlots {
		return nil
	}
	if err := plot.ConfusionMatrix(filepath.Join(dir, ConfusionPlotFile), report.Evaluation.ConfusionMatrix, report.Classes); err != nil {
		return err
	}
	bars := make([]plot.Bar, len(report.Importances))
	for i, imp := range report.Importances {
		bars[i] = plot.Bar{Label: imp.Feature, Value: imp.Weight}
	}
	return plot.FeatureImportance(filepath.Join(dir, ImportancePlotFile), bars, opts.PlotBars)
}

// ReadEvaluation loads a previously written evaluation.json.
func ReadEvaluation(dir string) (*Report, error) {
	data, err := os.ReadFile(filepath.Join(dir, EvaluationFile))
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse evaluation: %w", err)
	}
	return &r, nil
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func labelColumn(t *catalog.Table, column string) ([]string, error) {
	raw, err := t.Column(column)
	if err != nil {
		return nil, err
	}
	labels := make([]string, len(raw))
	for i, v := range raw {
		v = strings.TrimSpace(v)
		if v == "" {
			return nil, &schema.InvalidFeatureError{Row: i, Field: column, Reason: "empty label"}
		}
		labels[i] = v
	}
	return labels, nil
}

func subset(X []schema.FeatureRow, y []int, idx []int) ([][]float64, []int) {
	xs := make([][]float64, len(idx))
	ys := make([]int, len(idx))
	for i, r := range idx {
		xs[i] = X[r]
		ys[i] = y[r]
	}
	return xs, ys
}

func rankImportances(features []string, weights []float64) []Importance {
	out := make([]Importance, len(features))
	for i, f := range features {
		out[i] = Importance{Feature: f, Weight: weights[i]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	return out
}

func writeImportances(w io.Writer, imps []Importance) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"feature", "importance"}); err != nil {
		return err
	}
	for _, imp := range imps {
		if err := cw.Write([]string{imp.Feature, strconv.FormatFloat(imp.Weight, 'g', -1, 64)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
