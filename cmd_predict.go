package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/kartoza/redshift/internal/artifact"
	"github.com/kartoza/redshift/internal/inference"
	"github.com/kartoza/redshift/internal/models"
	"github.com/kartoza/redshift/internal/schema"
	"github.com/spf13/cobra"
)

var predictFlags struct {
	model    string
	input    string
	positive string
}

var (
	errNoPredictInput    = errors.New("no input: give feature values or --input")
	errBothPredictInputs = errors.New("give either feature values or --input, not both")
)

var predictCmd = &cobra.Command{
	Use:   "predict [value...]",
	Short: "Score feature values or candidate records",
	Long: `Predict scores one row given as positional values in fitted column
order, or a JSON file holding an array of candidate records keyed by
column name. Records are verified one by one; a bad record only fails
its own entry.`,
	RunE: runPredict,
}

func init() {
	f := predictCmd.Flags()
	f.StringVar(&predictFlags.model, "model", "", "Model artifact directory (default from settings)")
	f.StringVarP(&predictFlags.input, "input", "i", "", "JSON array of candidate records")
	f.StringVar(&predictFlags.positive, "positive-class", "", "Label counted as a planet (default from settings)")
}

func runPredict(cmd *cobra.Command, args []string) error {
	if predictFlags.input == "" && len(args) == 0 {
		return errNoPredictInput
	}
	if predictFlags.input != "" && len(args) > 0 {
		return errBothPredictInputs
	}

	a, err := artifact.Load(pick(predictFlags.model, settings.ModelDir))
	if err != nil {
		return err
	}
	eng, err := inference.New(a, pick(predictFlags.positive, settings.PositiveClass))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	if predictFlags.input != "" {
		records, err := readRecords(predictFlags.input)
		if err != nil {
			return err
		}
		return enc.Encode(models.NewBatchVerifyResponse(eng.BatchVerify(records)))
	}

	row := make(schema.FeatureRow, len(args))
	for i, arg := range args {
		v, err := schema.ParseValue(arg)
		if err != nil {
			return &schema.InvalidFeatureError{Row: -1, Field: fieldName(a.Schema, i), Value: arg, Reason: err.Error()}
		}
		row[i] = v
	}
	preds, err := eng.Predict(row)
	if err != nil {
		return err
	}
	return enc.Encode(models.NewPredictResponse(a.Schema.Features, preds))
}

func readRecords(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var records []map[string]any
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return records, nil
}

func fieldName(s *schema.Schema, i int) string {
	if i < len(s.Features) {
		return s.Features[i]
	}
	return strconv.Itoa(i)
}
