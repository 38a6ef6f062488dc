package api

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/kartoza/redshift/internal/artifact"
	"github.com/kartoza/redshift/internal/candidates"
	"github.com/kartoza/redshift/internal/config"
	"github.com/kartoza/redshift/internal/confirmed"
	"github.com/kartoza/redshift/internal/encoder"
	"github.com/kartoza/redshift/internal/inference"
	"github.com/kartoza/redshift/internal/logging"
	"github.com/kartoza/redshift/internal/models"
	"github.com/kartoza/redshift/internal/schema"
	"github.com/kartoza/redshift/internal/telemetry"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 10 << 20

// Handler provides HTTP API endpoints
type Handler struct {
	artifacts  *artifact.Cache
	candidates *candidates.Store
	confirmed  *confirmed.Store
	metrics    *telemetry.Metrics
	cfg        config.Config
	log        *slog.Logger
}

// NewHandler creates a new API handler. Any store may be nil; the endpoints
// that need it then answer 503.
func NewHandler(
	artifacts *artifact.Cache,
	candidateStore *candidates.Store,
	confirmedStore *confirmed.Store,
	metrics *telemetry.Metrics,
	cfg config.Config,
) *Handler {
	if metrics == nil {
		metrics = telemetry.New()
	}
	return &Handler{
		artifacts:  artifacts,
		candidates: candidateStore,
		confirmed:  confirmedStore,
		metrics:    metrics,
		cfg:        cfg,
		log:        logging.New("api"),
	}
}

// RegisterRoutes sets up all API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	// Health and info
	r.HandleFunc("/health", h.handleHealth).Methods("GET")
	r.HandleFunc("/info", h.handleInfo).Methods("GET")
	r.HandleFunc("/evaluation", h.handleEvaluation).Methods("GET")

	// Inference
	r.HandleFunc("/verify", h.handleVerify).Methods("POST")
	r.HandleFunc("/batch-verify", h.handleBatchVerify).Methods("POST")
	r.HandleFunc("/predict", h.handlePredict).Methods("POST")
	r.HandleFunc("/top", h.handleTop).Methods("GET")

	// Confirmed planets
	r.HandleFunc("/check-planet", h.handleCheckPlanet).Methods("POST")
	r.HandleFunc("/planets", h.handleListPlanets).Methods("GET")
	r.HandleFunc("/planets", h.handleAddPlanet).Methods("POST")
	r.HandleFunc("/bulk-upload", h.handleBulkUpload).Methods("POST")

	// Saved candidates
	r.HandleFunc("/save-candidate", h.handleSaveCandidate).Methods("POST")
	r.HandleFunc("/candidates", h.handleListCandidates).Methods("GET")
	r.HandleFunc("/candidates/{id}", h.handleGetCandidate).Methods("GET")
	r.HandleFunc("/candidates/{id}", h.handleDeleteCandidate).Methods("DELETE")
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// respondError sends a JSON error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondErr maps a domain error onto its status code
func respondErr(w http.ResponseWriter, err error) {
	respondError(w, statusFor(err), err.Error())
}

// statusFor classifies errors: bad input is 400, a model that is not there
// yet is 503, a missing data file is 404 and anything else is 500.
func statusFor(err error) int {
	var (
		ife *schema.InvalidFeatureError
		se  *schema.SchemaError
		ule *encoder.UnknownLabelError
		nf  *artifact.NotFoundError
		cnf *candidates.NotFoundError
	)
	switch {
	case errors.As(err, &ife), errors.As(err, &se), errors.As(err, &ule):
		return http.StatusBadRequest
	case errors.As(err, &nf):
		return http.StatusServiceUnavailable
	case errors.As(err, &cnf), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// errorKind is the metrics label for a rejected row
func errorKind(err error) string {
	var (
		ife *schema.InvalidFeatureError
		se  *schema.SchemaError
	)
	switch {
	case errors.As(err, &ife):
		return "invalid_feature"
	case errors.As(err, &se):
		return "schema"
	default:
		return "internal"
	}
}

// decodeBody reads a JSON request body with numbers kept as json.Number.
// An empty body or JSON null is reported as io.EOF.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	return dec.Decode(dst)
}

// engine returns an inference engine over the configured artifact. Errors
// here are never the caller's fault, so they are never 400.
func (h *Handler) engine() (*inference.Engine, int, error) {
	if h.artifacts == nil {
		return nil, http.StatusServiceUnavailable, errors.New("model store not configured")
	}
	art, err := h.artifacts.Get(h.cfg.ModelDir)
	if err != nil {
		var nf *artifact.NotFoundError
		if errors.As(err, &nf) {
			return nil, http.StatusServiceUnavailable, err
		}
		return nil, http.StatusInternalServerError, err
	}
	h.metrics.ModelLoaded.Set(1)

	eng, err := inference.New(art, h.cfg.PositiveClass)
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	return eng, http.StatusOK, nil
}

// handleHealth returns server health status
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleInfo returns server and model information
func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := models.InfoResponse{
		Version:       h.cfg.Version,
		ModelDir:      h.cfg.ModelDir,
		PositiveClass: h.cfg.PositiveClass,
	}
	if eng, _, err := h.engine(); err == nil {
		info.ModelLoaded = true
		info.Classes = eng.Artifact().Encoder.Classes()
		info.Features = eng.Schema().Features
	}
	if h.candidates != nil {
		if recs, err := h.candidates.List(); err == nil {
			info.Candidates = len(recs)
		}
	}
	if h.confirmed != nil {
		info.Confirmed = h.confirmed.Len()
	}
	respondJSON(w, http.StatusOK, info)
}

// readObject decodes a non-empty JSON object body, answering 400 otherwise
func readObject(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var obj map[string]any
	if err := decodeBody(w, r, &obj); err != nil {
		if errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, "No data provided")
		} else {
			respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		}
		return nil, false
	}
	if len(obj) == 0 {
		respondError(w, http.StatusBadRequest, "No data provided")
		return nil, false
	}
	return obj, true
}
