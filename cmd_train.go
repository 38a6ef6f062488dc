package main

import (
	"fmt"

	"github.com/kartoza/redshift/internal/logging"
	"github.com/kartoza/redshift/internal/trainer"
	"github.com/spf13/cobra"
)

var trainFlags struct {
	catalog      string
	output       string
	label        string
	exclude      []string
	testFraction float64
	seed         int64
	trees        int
	maxDepth     int
	maxFeatures  string
	workers      int
	encoding     string
	noPlots      bool
	showTop      int
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Fit and evaluate the classifier on a labeled catalog",
	Long: `Train derives the feature schema from the catalog header, fits a label
encoder and a random forest on a stratified split, evaluates it on the
held-out rows and writes the model, encoder, feature importances,
evaluation and diagnostic plots to the output directory.`,
	RunE: runTrain,
}

func init() {
	f := trainCmd.Flags()
	f.StringVar(&trainFlags.catalog, "catalog", "", "Labeled catalog CSV (default from settings)")
	f.StringVarP(&trainFlags.output, "output", "o", "", "Output directory (default from settings)")
	f.StringVar(&trainFlags.label, "label", "", "Label column")
	f.StringSliceVar(&trainFlags.exclude, "exclude", nil, "Identifier columns to leave out of the features")
	f.Float64Var(&trainFlags.testFraction, "test-fraction", 0, "Held-out fraction in (0,1)")
	f.Int64Var(&trainFlags.seed, "seed", 0, "Seed for the split and the forest")
	f.IntVar(&trainFlags.trees, "trees", 0, "Number of trees")
	f.IntVar(&trainFlags.maxDepth, "max-depth", 0, "Maximum tree depth (0 = unlimited)")
	f.StringVar(&trainFlags.maxFeatures, "max-features", "", "Features per split: sqrt, log2, all or a count")
	f.IntVar(&trainFlags.workers, "workers", 0, "Parallel tree builders (0 = all CPUs)")
	f.StringVar(&trainFlags.encoding, "encoding", "", "Catalog text encoding: latin1, cp1252, utf-8")
	f.BoolVar(&trainFlags.noPlots, "no-plots", false, "Skip the PNG diagnostics")
	f.IntVar(&trainFlags.showTop, "show-top", 10, "Feature importances to print")
}

// trainOptions merges settings with the flags the user actually set.
func trainOptions(cmd *cobra.Command) trainer.Options {
	opts := trainer.DefaultOptions()
	opts.CatalogPath = settings.Catalogs.Training
	opts.OutputDir = settings.ModelDir
	opts.LabelColumn = settings.LabelColumn
	opts.ExcludeColumns = settings.ExcludeColumns
	opts.TestFraction = settings.TestFraction
	opts.Seed = settings.Seed
	opts.Forest = settings.Forest
	opts.Encoding = settings.Encoding

	f := cmd.Flags()
	if f.Changed("catalog") {
		opts.CatalogPath = trainFlags.catalog
	}
	if f.Changed("output") {
		opts.OutputDir = trainFlags.output
	}
	if f.Changed("label") {
		opts.LabelColumn = trainFlags.label
	}
	if f.Changed("exclude") {
		opts.ExcludeColumns = trainFlags.exclude
	}
	if f.Changed("test-fraction") {
		opts.TestFraction = trainFlags.testFraction
	}
	if f.Changed("seed") {
		opts.Seed = trainFlags.seed
		opts.Forest.Seed = trainFlags.seed
	}
	if f.Changed("trees") {
		opts.Forest.Trees = trainFlags.trees
	}
	if f.Changed("max-depth") {
		opts.Forest.MaxDepth = trainFlags.maxDepth
	}
	if f.Changed("max-features") {
		opts.Forest.MaxFeatures = trainFlags.maxFeatures
	}
	if f.Changed("workers") {
		opts.Forest.Workers = trainFlags.workers
	}
	if f.Changed("encoding") {
		opts.Encoding = trainFlags.encoding
	}
	opts.SkipPlots = trainFlags.noPlots
	opts.Logger = logging.New("trainer")
	return opts
}

func runTrain(cmd *cobra.Command, _ []string) error {
	opts := trainOptions(cmd)
	report, _, err := trainer.Train(cmd.Context(), opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Accuracy: %.4f (train %d, test %d, seed %d)\n\n", report.Evaluation.Accuracy, report.TrainSize, report.TestSize, report.Seed)
	fmt.Fprintf(out, "Classification Report:\n%s\n", report.ClassificationReport())
	fmt.Fprintln(out, "Top Features:")
	for i, imp := range report.Importances {
		if i == trainFlags.showTop {
			break
		}
		fmt.Fprintf(out, "  %-32s %.4f\n", imp.Feature, imp.Weight)
	}
	fmt.Fprintf(out, "\nArtifacts written to %s\n", opts.OutputDir)
	return nil
}
