package models

import "github.com/kartoza/redshift/internal/inference"

// VerifyResponse is the answer to a single-candidate verification
type VerifyResponse struct {
	Success          bool               `json:"success"`
	IsPlanet         bool               `json:"is_planet"`
	PredictedClass   string             `json:"predicted_class"`
	Confidence       float64            `json:"confidence"`
	AllProbabilities map[string]float64 `json:"all_probabilities"`
}

// BatchVerifyRequest carries the records of a batch verification
type BatchVerifyRequest struct {
	Planets []map[string]any `json:"planets"`
}

// BatchVerifyResult is one row of a batch verification. Error is set instead
// of the prediction fields when the row could not be scored.
type BatchVerifyResult struct {
	PlanetName       string             `json:"Planet_name"`
	IsPlanet         *bool              `json:"is_planet,omitempty"`
	PredictedClass   string             `json:"predicted_class,omitempty"`
	Confidence       *float64           `json:"confidence,omitempty"`
	AllProbabilities map[string]float64 `json:"all_probabilities,omitempty"`
	Error            string             `json:"error,omitempty"`
}

// BatchVerifyResponse wraps the per-row results
type BatchVerifyResponse struct {
	Success bool                `json:"success"`
	Results []BatchVerifyResult `json:"results"`
}

// NewBatchVerifyResult converts one scored or rejected batch entry
func NewBatchVerifyResult(it inference.BatchItem) BatchVerifyResult {
	res := BatchVerifyResult{PlanetName: it.Name}
	if it.Err != nil {
		res.Error = it.Err.Error()
		return res
	}
	isPlanet, confidence := it.Result.IsTarget, it.Result.Confidence
	res.IsPlanet = &isPlanet
	res.PredictedClass = it.Result.Predicted
	res.Confidence = &confidence
	res.AllProbabilities = it.Result.Probabilities
	return res
}

// NewBatchVerifyResponse converts a whole batch, keeping request order
func NewBatchVerifyResponse(items []inference.BatchItem) BatchVerifyResponse {
	results := make([]BatchVerifyResult, len(items))
	for i, it := range items {
		results[i] = NewBatchVerifyResult(it)
	}
	return BatchVerifyResponse{Success: true, Results: results}
}

// PredictRequest carries feature rows already in model column order
type PredictRequest struct {
	Rows [][]float64 `json:"rows"`
}

// PredictResult is the raw prediction for one row
type PredictResult struct {
	Prediction        string             `json:"prediction"`
	PredictionEncoded int                `json:"prediction_encoded"`
	Probabilities     map[string]float64 `json:"probabilities"`
	ProbabilityMax    float64            `json:"probability_max"`
}

// NewPredictResult converts an engine prediction
func NewPredictResult(p inference.Prediction) PredictResult {
	return PredictResult{
		Prediction:        p.Label,
		PredictionEncoded: p.Index,
		Probabilities:     p.Probabilities,
		ProbabilityMax:    p.ProbabilityMax,
	}
}

// NewPredictResponse lists preds against the fitted feature order
func NewPredictResponse(features []string, preds []inference.Prediction) PredictResponse {
	resp := PredictResponse{Features: features, Predictions: make([]PredictResult, len(preds))}
	for i, p := range preds {
		resp.Predictions[i] = NewPredictResult(p)
	}
	return resp
}

// PredictResponse lists predictions in request order
type PredictResponse struct {
	Features    []string        `json:"features"`
	Predictions []PredictResult `json:"predictions"`
}

// CheckPlanetResponse reports whether an object is already confirmed
type CheckPlanetResponse struct {
	Exists               bool              `json:"exists"`
	Confirmed            bool              `json:"confirmed"`
	Message              string            `json:"message"`
	Planet               map[string]string `json:"planet,omitempty"`
	AIVerificationNeeded bool              `json:"aiVerificationNeeded,omitempty"`
	PlanetData           map[string]any    `json:"planetData,omitempty"`
}

// SaveCandidateResponse confirms a stored candidate
type SaveCandidateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ID      string `json:"id"`
}

// TopResponse lists the most likely planets of a catalog
type TopResponse struct {
	Target  string              `json:"target"`
	Column  string              `json:"column"`
	Source  string              `json:"source"`
	Planets []map[string]string `json:"planets"`
}

// InfoResponse describes the running service and its model
type InfoResponse struct {
	Version       string   `json:"version"`
	ModelLoaded   bool     `json:"model_loaded"`
	ModelDir      string   `json:"model_dir"`
	PositiveClass string   `json:"positive_class"`
	Classes       []string `json:"classes,omitempty"`
	Features      []string `json:"features,omitempty"`
	Candidates    int      `json:"candidates"`
	Confirmed     int      `json:"confirmed"`
}
