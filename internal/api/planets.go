package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/kartoza/redshift/internal/models"
)

// handleCheckPlanet looks an object up in the confirmed catalog
func (h *Handler) handleCheckPlanet(w http.ResponseWriter, r *http.Request) {
	defer h.metrics.Time("check-planet", time.Now())

	obj, ok := readObject(w, r)
	if !ok {
		return
	}
	if h.confirmed == nil {
		respondJSON(w, http.StatusOK, models.CheckPlanetResponse{
			Message:              "Confirmed catalog not available",
			AIVerificationNeeded: true,
			PlanetData:           obj,
		})
		return
	}

	m := h.confirmed.Lookup(obj)
	if m.Exists {
		respondJSON(w, http.StatusOK, models.CheckPlanetResponse{
			Exists:    true,
			Confirmed: true,
			Message:   "Planet already exists in confirmed database",
			Planet:    m.Planet,
		})
		return
	}
	respondJSON(w, http.StatusOK, models.CheckPlanetResponse{
		Message:              "Planet not found. Send it to /api/verify for classification",
		AIVerificationNeeded: true,
		PlanetData:           obj,
	})
}

// handleListPlanets returns the confirmed catalog
func (h *Handler) handleListPlanets(w http.ResponseWriter, r *http.Request) {
	if h.confirmed == nil {
		respondJSON(w, http.StatusOK, []map[string]string{})
		return
	}
	respondJSON(w, http.StatusOK, h.confirmed.List())
}

// handleAddPlanet appends a planet to the confirmed catalog
func (h *Handler) handleAddPlanet(w http.ResponseWriter, r *http.Request) {
	obj, ok := readObject(w, r)
	if !ok {
		return
	}
	if h.confirmed == nil {
		respondError(w, http.StatusServiceUnavailable, "confirmed catalog not available")
		return
	}
	if err := h.confirmed.Add(obj); err != nil {
		h.log.Error("failed to add planet", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to add planet")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Planet added successfully",
		"planet":  obj,
	})
}

// handleBulkUpload splits uploaded objects into confirmed matches and new
// candidates
func (h *Handler) handleBulkUpload(w http.ResponseWriter, r *http.Request) {
	var req models.BatchVerifyRequest
	if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Planets == nil {
		respondError(w, http.StatusBadRequest, "No planet data provided")
		return
	}
	if h.confirmed == nil {
		respondError(w, http.StatusServiceUnavailable, "confirmed catalog not available")
		return
	}
	respondJSON(w, http.StatusOK, h.confirmed.Bulk(req.Planets))
}

// handleSaveCandidate persists a submitted candidate
func (h *Handler) handleSaveCandidate(w http.ResponseWriter, r *http.Request) {
	obj, ok := readObject(w, r)
	if !ok {
		return
	}
	if h.candidates == nil {
		respondError(w, http.StatusServiceUnavailable, "candidate store not available")
		return
	}

	rec, err := h.candidates.Save(obj)
	if err != nil {
		h.log.Error("failed to save candidate", "error", err)
		respondErr(w, err)
		return
	}
	h.metrics.CandidateSaves.Inc()
	h.log.Info("saved candidate", "id", rec.ID, "name", rec.Name)

	respondJSON(w, http.StatusOK, models.SaveCandidateResponse{
		Success: true,
		Message: "Candidate saved successfully",
		ID:      rec.ID,
	})
}

// handleListCandidates returns every saved candidate
func (h *Handler) handleListCandidates(w http.ResponseWriter, r *http.Request) {
	if h.candidates == nil {
		respondJSON(w, http.StatusOK, []string{})
		return
	}
	recs, err := h.candidates.List()
	if err != nil {
		respondErr(w, err)
		return
	}
	if recs == nil {
		respondJSON(w, http.StatusOK, []string{})
		return
	}
	respondJSON(w, http.StatusOK, recs)
}

// handleGetCandidate returns one saved candidate
func (h *Handler) handleGetCandidate(w http.ResponseWriter, r *http.Request) {
	if h.candidates == nil {
		respondError(w, http.StatusServiceUnavailable, "candidate store not available")
		return
	}
	rec, err := h.candidates.Get(mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// handleDeleteCandidate removes a saved candidate
func (h *Handler) handleDeleteCandidate(w http.ResponseWriter, r *http.Request) {
	if h.candidates == nil {
		respondError(w, http.StatusServiceUnavailable, "candidate store not available")
		return
	}
	if err := h.candidates.Delete(mux.Vars(r)["id"]); err != nil {
		respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
