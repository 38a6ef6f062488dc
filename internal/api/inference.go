package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/kartoza/redshift/internal/catalog"
	"github.com/kartoza/redshift/internal/models"
	"github.com/kartoza/redshift/internal/ranker"
	"github.com/kartoza/redshift/internal/schema"
	"github.com/kartoza/redshift/internal/trainer"
)

const defaultTopN = 10

// handleVerify scores one candidate record
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	defer h.metrics.Time("verify", time.Now())

	record, ok := readObject(w, r)
	if !ok {
		return
	}
	eng, status, err := h.engine()
	if err != nil {
		respondError(w, status, err.Error())
		return
	}

	res, err := eng.Verify(record)
	if err != nil {
		h.metrics.ObserveFailure(errorKind(err))
		respondErr(w, err)
		return
	}
	h.metrics.ObservePrediction(res.Predicted)

	respondJSON(w, http.StatusOK, models.VerifyResponse{
		Success:          true,
		IsPlanet:         res.IsTarget,
		PredictedClass:   res.Predicted,
		Confidence:       res.Confidence,
		AllProbabilities: res.Probabilities,
	})
}

// handleBatchVerify scores many records; a bad record only fails its own row
func (h *Handler) handleBatchVerify(w http.ResponseWriter, r *http.Request) {
	defer h.metrics.Time("batch-verify", time.Now())

	var req models.BatchVerifyRequest
	if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Planets == nil {
		respondError(w, http.StatusBadRequest, "No planet data provided")
		return
	}
	eng, status, err := h.engine()
	if err != nil {
		respondError(w, status, err.Error())
		return
	}

	items := eng.BatchVerify(req.Planets)
	failed := 0
	for _, it := range items {
		if it.Err != nil {
			failed++
			h.metrics.ObserveFailure(errorKind(it.Err))
			continue
		}
		h.metrics.ObservePrediction(it.Result.Predicted)
	}
	if failed > 0 {
		h.log.Warn("batch rows rejected", "rows", len(items), "failed", failed)
	}

	respondJSON(w, http.StatusOK, models.NewBatchVerifyResponse(items))
}

// handlePredict scores rows that are already in model column order
func (h *Handler) handlePredict(w http.ResponseWriter, r *http.Request) {
	defer h.metrics.Time("predict", time.Now())

	var req models.PredictRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if len(req.Rows) == 0 {
		respondError(w, http.StatusBadRequest, "no rows provided")
		return
	}
	eng, status, err := h.engine()
	if err != nil {
		respondError(w, status, err.Error())
		return
	}

	rows := make([]schema.FeatureRow, len(req.Rows))
	for i, row := range req.Rows {
		rows[i] = row
	}
	preds, err := eng.Predict(rows...)
	if err != nil {
		h.metrics.ObserveFailure(errorKind(err))
		respondErr(w, err)
		return
	}

	for _, p := range preds {
		h.metrics.ObservePrediction(p.Label)
	}
	resp := models.NewPredictResponse(eng.Schema().Features, preds)
	respondJSON(w, http.StatusOK, resp)
}

// handleTop ranks the candidate catalog, or the saved candidates when
// source=saved, by probability of the target class
func (h *Handler) handleTop(w http.ResponseWriter, r *http.Request) {
	defer h.metrics.Time("top", time.Now())

	q := r.URL.Query()
	target := q.Get("target")
	if target == "" {
		target = h.cfg.RankTarget
	}
	n := defaultTopN
	if s := q.Get("n"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "n must be an integer")
			return
		}
		n = v
	}

	eng, status, err := h.engine()
	if err != nil {
		respondError(w, status, err.Error())
		return
	}

	source := q.Get("source")
	var table *catalog.Table
	switch source {
	case "", "catalog":
		source = "catalog"
		if h.cfg.CandidateCatalog == "" {
			respondError(w, http.StatusNotFound, "no candidate catalog configured")
			return
		}
		table, err = catalog.Load(h.cfg.CandidateCatalog, h.cfg.Encoding)
	case "saved":
		if h.candidates == nil {
			respondError(w, http.StatusServiceUnavailable, "candidate store not available")
			return
		}
		table, err = h.candidates.Table()
	default:
		respondError(w, http.StatusBadRequest, "source must be catalog or saved")
		return
	}
	if err != nil {
		respondErr(w, err)
		return
	}
	if table.Len() == 0 {
		respondJSON(w, http.StatusOK, models.TopResponse{Target: target, Column: ranker.ColumnName(target), Source: source, Planets: []map[string]string{}})
		return
	}

	ranked, err := ranker.Rank(eng.Artifact(), table, target, n)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, models.TopResponse{
		Target:  target,
		Column:  ranked.Column,
		Source:  source,
		Planets: ranked.Records(),
	})
}

// handleEvaluation returns the held-out evaluation written by training
func (h *Handler) handleEvaluation(w http.ResponseWriter, r *http.Request) {
	report, err := trainer.ReadEvaluation(h.cfg.ModelDir)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}
