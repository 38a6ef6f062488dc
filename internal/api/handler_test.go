package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/gorilla/mux"
	"github.com/kartoza/redshift/internal/artifact"
	"github.com/kartoza/redshift/internal/candidates"
	"github.com/kartoza/redshift/internal/catalog"
	"github.com/kartoza/redshift/internal/config"
	"github.com/kartoza/redshift/internal/confirmed"
	"github.com/kartoza/redshift/internal/encoder"
	"github.com/kartoza/redshift/internal/models"
	"github.com/kartoza/redshift/internal/schema"
	"github.com/kartoza/redshift/internal/trainer"
)

var features = []string{"orbital_period", "Transit_depth", "Planet_radius"}

// trainingTable separates CP from FP on orbital_period.
func trainingTable(n int, seed int64) *catalog.Table {
	rng := rand.New(rand.NewSource(seed))
	t := &catalog.Table{Columns: append(append([]string{"Planet_name"}, features...), "Disposition")}
	for i := 0; i < n; i++ {
		label, period := "CP", 20+rng.Float64()*10
		if i%2 == 0 {
			label, period = "FP", rng.Float64()*5
		}
		t.Rows = append(t.Rows, []string{
			fmt.Sprintf("obj-%d", i),
			strconv.FormatFloat(period, 'f', 3, 64),
			strconv.FormatFloat(rng.Float64()*500, 'f', 3, 64),
			strconv.FormatFloat(rng.Float64()*4, 'f', 3, 64),
			label,
		})
	}
	return t
}

type testEnv struct {
	router *mux.Router
	dir    string
	cfg    config.Config
}

func newTestEnv(t *testing.T, trained bool) *testEnv {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Config{
		Port:             8080,
		DataDir:          dir,
		ModelDir:         filepath.Join(dir, "model"),
		Version:          "test",
		PositiveClass:    "CP",
		RankTarget:       "CP",
		CandidateCatalog: filepath.Join(dir, "Candidates.csv"),
		Encoding:         "utf-8",
	}

	if trained {
		opts := trainer.DefaultOptions()
		opts.Forest.Trees = 15
		_, a, err := trainer.Fit(context.Background(), trainingTable(80, 1), opts)
		if err != nil {
			t.Fatalf("Fit failed: %v", err)
		}
		if err := artifact.Save(a, cfg.ModelDir); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}
	if err := catalog.Write(cfg.CandidateCatalog, trainingTable(20, 2)); err != nil {
		t.Fatal(err)
	}

	confirmedPath := filepath.Join(dir, "Confirmed.csv")
	csv := "Planet_name,Right_ascension,Declination\nKepler-22 b,289.21,47.88\n"
	if err := os.WriteFile(confirmedPath, []byte(csv), 0644); err != nil {
		t.Fatal(err)
	}
	conf, err := confirmed.Open(confirmedPath, "utf-8")
	if err != nil {
		t.Fatal(err)
	}
	cands, err := candidates.Open(filepath.Join(dir, "candidates.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cands.Close() })

	cache, err := artifact.NewCache(2)
	if err != nil {
		t.Fatal(err)
	}

	handler := NewHandler(cache, cands, conf, nil, cfg)
	r := mux.NewRouter()
	handler.RegisterRoutes(r)
	return &testEnv{router: r, dir: dir, cfg: cfg}
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func record(period float64) map[string]any {
	return map[string]any{"orbital_period": period, "Transit_depth": 120.5, "Planet_radius": "1.8"}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, false)
	w := env.do("GET", "/health", nil)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]string
	json.NewDecoder(w.Body).Decode(&response)

	if response["status"] != "ok" {
		t.Errorf("Expected status 'ok', got '%s'", response["status"])
	}
}

func TestInfoEndpoint(t *testing.T) {
	for _, trained := range []bool{false, true} {
		t.Run(fmt.Sprintf("trained=%v", trained), func(t *testing.T) {
			env := newTestEnv(t, trained)
			w := env.do("GET", "/info", nil)

			if w.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d", w.Code)
			}
			var info models.InfoResponse
			json.NewDecoder(w.Body).Decode(&info)

			if info.Version != "test" {
				t.Errorf("Expected version 'test', got '%v'", info.Version)
			}
			if info.ModelLoaded != trained {
				t.Errorf("Expected model_loaded %v, got %v", trained, info.ModelLoaded)
			}
			if trained && len(info.Features) != len(features) {
				t.Errorf("Expected %d features, got %v", len(features), info.Features)
			}
			if info.Confirmed != 1 {
				t.Errorf("Expected 1 confirmed planet, got %d", info.Confirmed)
			}
		})
	}
}

func TestVerify(t *testing.T) {
	env := newTestEnv(t, true)

	w := env.do("POST", "/verify", record(25))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body)
	}
	var resp models.VerifyResponse
	json.NewDecoder(w.Body).Decode(&resp)

	if !resp.Success || !resp.IsPlanet || resp.PredictedClass != "CP" {
		t.Errorf("Expected a CP prediction, got %+v", resp)
	}
	if resp.Confidence != resp.AllProbabilities["CP"] {
		t.Errorf("Confidence %v does not match P(CP) %v", resp.Confidence, resp.AllProbabilities["CP"])
	}
	if len(resp.AllProbabilities) != 2 {
		t.Errorf("Expected 2 classes, got %v", resp.AllProbabilities)
	}
}

func TestVerifyErrors(t *testing.T) {
	env := newTestEnv(t, true)

	missing := record(25)
	delete(missing, "Planet_radius")
	boolean := record(25)
	boolean["Transit_depth"] = true

	tests := []struct {
		name string
		body any
		want int
	}{
		{"no body", nil, http.StatusBadRequest},
		{"empty object", map[string]any{}, http.StatusBadRequest},
		{"missing feature", missing, http.StatusBadRequest},
		{"boolean feature", boolean, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do("POST", "/verify", tt.body)
			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d: %s", tt.want, w.Code, w.Body)
			}
			var response map[string]string
			json.NewDecoder(w.Body).Decode(&response)
			if response["error"] == "" {
				t.Error("Expected error message")
			}
		})
	}
}

func TestVerifyWithoutModel(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do("POST", "/verify", record(25))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}

	// training later makes the model available without a restart
	opts := trainer.DefaultOptions()
	opts.Forest.Trees = 5
	_, a, err := trainer.Fit(context.Background(), trainingTable(40, 1), opts)
	if err != nil {
		t.Fatal(err)
	}
	if err := artifact.Save(a, env.cfg.ModelDir); err != nil {
		t.Fatal(err)
	}
	if w := env.do("POST", "/verify", record(25)); w.Code != http.StatusOK {
		t.Errorf("Expected status 200 after training, got %d", w.Code)
	}
}

func TestBatchVerify(t *testing.T) {
	env := newTestEnv(t, true)

	named := record(25)
	named["Planet_name"] = "Kepler-1"
	bad := record(1)
	delete(bad, "orbital_period")

	w := env.do("POST", "/batch-verify", map[string]any{
		"planets": []map[string]any{named, bad, record(2)},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body)
	}

	var resp models.BatchVerifyResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if len(resp.Results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(resp.Results))
	}

	first, second, third := resp.Results[0], resp.Results[1], resp.Results[2]
	if first.PlanetName != "Kepler-1" || first.PredictedClass != "CP" || first.Error != "" {
		t.Errorf("Unexpected first result %+v", first)
	}
	if second.PlanetName != "Planet2" || second.Error == "" || second.PredictedClass != "" {
		t.Errorf("Expected second row to fail alone, got %+v", second)
	}
	if third.PlanetName != "Planet3" || third.PredictedClass != "FP" || third.IsPlanet == nil || *third.IsPlanet {
		t.Errorf("Unexpected third result %+v", third)
	}
}

func TestBatchVerifyNoPlanets(t *testing.T) {
	env := newTestEnv(t, true)

	for _, body := range []any{nil, map[string]any{"rows": []int{1}}} {
		if w := env.do("POST", "/batch-verify", body); w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400 for %v, got %d", body, w.Code)
		}
	}
}

func TestPredict(t *testing.T) {
	env := newTestEnv(t, true)

	w := env.do("POST", "/predict", models.PredictRequest{Rows: [][]float64{{25, 100, 1}, {2, 100, 1}}})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body)
	}
	var resp models.PredictResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if len(resp.Predictions) != 2 || resp.Predictions[0].Prediction != "CP" || resp.Predictions[1].Prediction != "FP" {
		t.Errorf("Unexpected predictions %+v", resp.Predictions)
	}

	w = env.do("POST", "/predict", models.PredictRequest{Rows: [][]float64{{25, 100, 1}, {2, 100}}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for short row, got %d", w.Code)
	}
}

func TestTop(t *testing.T) {
	env := newTestEnv(t, true)

	w := env.do("GET", "/top?n=5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body)
	}
	var resp models.TopResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if len(resp.Planets) != 5 || resp.Column != "P_CP" {
		t.Fatalf("Unexpected response %+v", resp)
	}
	prev := 2.0
	for _, p := range resp.Planets {
		v, err := strconv.ParseFloat(p["P_CP"], 64)
		if err != nil || v > prev {
			t.Errorf("Expected non-increasing P_CP, got %v after %v", p["P_CP"], prev)
		}
		prev = v
	}

	if w := env.do("GET", "/top?target=PC", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unknown target, got %d", w.Code)
	}
	if w := env.do("GET", "/top?n=ten", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for bad n, got %d", w.Code)
	}

	os.Remove(env.cfg.CandidateCatalog)
	if w := env.do("GET", "/top", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 without catalog, got %d", w.Code)
	}
}

func TestCandidates(t *testing.T) {
	env := newTestEnv(t, true)

	w := env.do("GET", "/top?source=saved", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for empty store, got %d: %s", w.Code, w.Body)
	}

	for _, p := range []float64{1, 26, 3} {
		rec := record(p)
		rec["Planet_name"] = fmt.Sprintf("cand-%v", p)
		if w := env.do("POST", "/save-candidate", rec); w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body)
		}
	}

	w = env.do("GET", "/candidates", nil)
	var recs []candidates.Record
	json.NewDecoder(w.Body).Decode(&recs)
	if len(recs) != 3 {
		t.Fatalf("Expected 3 candidates, got %d", len(recs))
	}

	w = env.do("GET", "/top?source=saved&n=1", nil)
	var top models.TopResponse
	json.NewDecoder(w.Body).Decode(&top)
	if len(top.Planets) != 1 || top.Planets[0]["Planet_name"] != "cand-26" {
		t.Errorf("Expected cand-26 on top, got %+v", top.Planets)
	}

	if w := env.do("GET", "/candidates/"+recs[0].ID, nil); w.Code != http.StatusOK {
		t.Errorf("Expected status 200 for get, got %d", w.Code)
	}
	if w := env.do("DELETE", "/candidates/"+recs[0].ID, nil); w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204 for delete, got %d", w.Code)
	}
	if w := env.do("GET", "/candidates/"+recs[0].ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 after delete, got %d", w.Code)
	}
	if w := env.do("POST", "/save-candidate", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for empty candidate, got %d", w.Code)
	}
}

func TestCheckPlanet(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do("POST", "/check-planet", map[string]any{"Right_ascension": 289.215, "Declination": 47.884})
	var resp models.CheckPlanetResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if !resp.Exists || resp.Planet["Planet_name"] != "Kepler-22 b" {
		t.Errorf("Expected coordinate match, got %+v", resp)
	}

	w = env.do("POST", "/check-planet", map[string]any{"Planet_name": "TOI-9"})
	resp = models.CheckPlanetResponse{}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Exists || !resp.AIVerificationNeeded {
		t.Errorf("Expected unknown planet, got %+v", resp)
	}

	if w := env.do("POST", "/check-planet", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for empty body, got %d", w.Code)
	}
}

func TestPlanets(t *testing.T) {
	env := newTestEnv(t, false)

	if w := env.do("POST", "/planets", map[string]any{"Planet_name": "TOI-700 d"}); w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body)
	}

	w := env.do("GET", "/planets", nil)
	var planets []map[string]string
	json.NewDecoder(w.Body).Decode(&planets)
	if len(planets) != 2 || planets[1]["Planet_name"] != "TOI-700 d" {
		t.Errorf("Unexpected planets %v", planets)
	}

	w = env.do("POST", "/bulk-upload", map[string]any{
		"planets": []map[string]any{{"Planet_name": "TOI-700 d"}, {"Planet_name": "new"}},
	})
	var bulk confirmed.BulkResult
	json.NewDecoder(w.Body).Decode(&bulk)
	if len(bulk.Matched) != 1 || len(bulk.NewCandidates) != 1 {
		t.Errorf("Unexpected bulk result %+v", bulk)
	}
}

func TestEvaluationEndpoint(t *testing.T) {
	env := newTestEnv(t, false)
	if w := env.do("GET", "/evaluation", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 before training, got %d", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&schema.InvalidFeatureError{Field: "x"}, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", &schema.SchemaError{Column: "x"}), http.StatusBadRequest},
		{&encoder.UnknownLabelError{Label: "PC"}, http.StatusBadRequest},
		{&artifact.NotFoundError{Path: "m"}, http.StatusServiceUnavailable},
		{&artifact.CorruptError{Path: "m", Err: errors.New("bad")}, http.StatusInternalServerError},
		{&candidates.NotFoundError{ID: "x"}, http.StatusNotFound},
		{fmt.Errorf("open: %w", os.ErrNotExist), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
