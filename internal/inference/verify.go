package inference

import (
	"fmt"
	"strings"

	"github.com/kartoza/redshift/internal/schema"
)

// NameField is the identifier field callers may attach to a record.
const NameField = "Planet_name"

// VerifyResult is the answer to "is this candidate a genuine planet".
type VerifyResult struct {
	IsTarget      bool               `json:"is_planet"`
	Predicted     string             `json:"predicted_class"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"all_probabilities"`
}

// BatchItem is one entry of a batch verification. Exactly one of Result
// and Err is set.
type BatchItem struct {
	Name   string
	Result *VerifyResult
	Err    error
}

// Verify validates a loosely typed record against the fitted schema and
// scores it.
func (e *Engine) Verify(record map[string]any) (*VerifyResult, error) {
	row, err := e.art.Schema.Coerce(record)
	if err != nil {
		return nil, err
	}
	preds, err := e.Predict(row)
	if err != nil {
		return nil, err
	}
	return e.result(preds[0]), nil
}

// BatchVerify scores each record on its own. A malformed record only fails
// its own entry; the rest of the batch is still scored.
func (e *Engine) BatchVerify(records []map[string]any) []BatchItem {
	items := make([]BatchItem, len(records))
	rows := make([]schema.FeatureRow, len(records))
	valid := make([]bool, len(records))

	for i, rec := range records {
		items[i].Name = recordName(rec, i)
		row, err := e.art.Schema.Coerce(rec)
		if err != nil {
			items[i].Err = err
			continue
		}
		rows[i] = row
		valid[i] = true
	}

	preds, errs := e.PredictEach(rows)
	for i := range records {
		if !valid[i] {
			continue
		}
		if errs[i] != nil {
			items[i].Err = errs[i]
			continue
		}
		items[i].Result = e.result(preds[i])
	}
	return items
}

func (e *Engine) result(p Prediction) *VerifyResult {
	return &VerifyResult{
		IsTarget:      p.Label == e.positive,
		Predicted:     p.Label,
		Confidence:    p.ProbabilityMax,
		Probabilities: p.Probabilities,
	}
}

// recordName returns the caller's identifier, or Planet<n> with n 1-based.
func recordName(rec map[string]any, i int) string {
	if v, ok := rec[NameField]; ok && v != nil {
		if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
			return s
		}
	}
	return fmt.Sprintf("Planet%d", i+1)
}
