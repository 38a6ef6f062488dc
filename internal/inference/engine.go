// Package inference scores feature rows against a loaded artifact.
package inference

import (
	"fmt"
	"runtime"

	"github.com/gonum/floats"
	"github.com/kartoza/redshift/internal/artifact"
	"github.com/kartoza/redshift/internal/schema"
	"golang.org/x/sync/errgroup"
)

// parallelThreshold is the batch size above which rows are scored on
// several goroutines.
const parallelThreshold = 256

// Prediction is the result for one row.
type Prediction struct {
	Label          string             `json:"prediction"`
	Index          int                `json:"prediction_encoded"`
	Probabilities  map[string]float64 `json:"probabilities"`
	ProbabilityMax float64            `json:"probability_max"`
}

// Engine scores rows against one artifact. It holds no mutable state and is
// safe for concurrent use.
type Engine struct {
	art      *artifact.Artifact
	positive string
}

// New creates an engine. positiveClass is the label that counts as a
// genuine planet and must be in the artifact's vocabulary.
func New(a *artifact.Artifact, positiveClass string) (*Engine, error) {
	if a == nil {
		return nil, fmt.Errorf("inference: nil artifact")
	}
	if _, err := a.Encoder.Encode(positiveClass); err != nil {
		return nil, fmt.Errorf("inference: positive class: %w", err)
	}
	return &Engine{art: a, positive: positiveClass}, nil
}

// Artifact returns the artifact the engine scores against.
func (e *Engine) Artifact() *artifact.Artifact {
	return e.art
}

// Schema returns the fitted feature schema.
func (e *Engine) Schema() *schema.Schema {
	return e.art.Schema
}

// PositiveClass returns the configured target label.
func (e *Engine) PositiveClass() string {
	return e.positive
}

// Predict scores every row, preserving order. Rows must already be in
// fitted column order; any row of the wrong width fails the whole call.
func (e *Engine) Predict(rows ...schema.FeatureRow) ([]Prediction, error) {
	for i, row := range rows {
		if err := e.art.Schema.Check(row); err != nil {
			if ife, ok := err.(*schema.InvalidFeatureError); ok {
				ife.Row = i
			}
			return nil, err
		}
	}

	out := make([]Prediction, len(rows))
	if len(rows) < parallelThreshold {
		for i, row := range rows {
			p, err := e.score(row)
			if err != nil {
				return nil, err
			}
			out[i] = p
		}
		return out, nil
	}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	chunk := (len(rows) + runtime.GOMAXPROCS(0) - 1) / runtime.GOMAXPROCS(0)
	for start := 0; start < len(rows); start += chunk {
		end := min(start+chunk, len(rows))
		g.Go(func() error {
			for i := start; i < end; i++ {
				p, err := e.score(rows[i])
				if err != nil {
					return err
				}
				out[i] = p
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// PredictEach scores rows independently; errs[i] is set for a row that
// could not be scored and preds[i] is then the zero value.
func (e *Engine) PredictEach(rows []schema.FeatureRow) ([]Prediction, []error) {
	preds := make([]Prediction, len(rows))
	errs := make([]error, len(rows))
	for i, row := range rows {
		if err := e.art.Schema.Check(row); err != nil {
			errs[i] = err
			continue
		}
		preds[i], errs[i] = e.score(row)
	}
	return preds, errs
}

// ProbabilityOf returns the probability mass of label for each row.
func (e *Engine) ProbabilityOf(label string, rows []schema.FeatureRow) ([]float64, error) {
	if _, err := e.art.Encoder.Encode(label); err != nil {
		return nil, err
	}
	preds, err := e.Predict(rows...)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(preds))
	for i, p := range preds {
		out[i] = p.Probabilities[label]
	}
	return out, nil
}

func (e *Engine) score(row schema.FeatureRow) (Prediction, error) {
	proba, err := e.art.Forest.PredictProba(row)
	if err != nil {
		return Prediction{}, err
	}

	idx := floats.MaxIdx(proba)
	label, err := e.art.Encoder.Decode(idx)
	if err != nil {
		return Prediction{}, err
	}

	dist := make(map[string]float64, len(proba))
	for c, p := range proba {
		name, err := e.art.Encoder.Decode(c)
		if err != nil {
			return Prediction{}, err
		}
		dist[name] = p
	}

	return Prediction{
		Label:          label,
		Index:          idx,
		Probabilities:  dist,
		ProbabilityMax: proba[idx],
	}, nil
}
