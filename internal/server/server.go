package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/kartoza/redshift/internal/api"
	"github.com/kartoza/redshift/internal/artifact"
	"github.com/kartoza/redshift/internal/candidates"
	"github.com/kartoza/redshift/internal/config"
	"github.com/kartoza/redshift/internal/confirmed"
	"github.com/kartoza/redshift/internal/logging"
	"github.com/kartoza/redshift/internal/telemetry"
)

// Server holds all the components for the inference service
type Server struct {
	cfg            config.Config
	httpServer     *http.Server
	router         *mux.Router
	artifacts      *artifact.Cache
	candidateStore *candidates.Store
	confirmedStore *confirmed.Store
	metrics        *telemetry.Metrics
	log            *slog.Logger
}

// New creates a new Server with all components initialized. Stores that
// cannot be opened are logged and left out; the model is loaded on first use
// if it is not there yet.
func New(cfg config.Config) (*Server, error) {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 4
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		cfg:     cfg,
		router:  mux.NewRouter(),
		metrics: telemetry.New(),
		log:     logging.New("server"),
	}

	cache, err := artifact.NewCache(cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	s.artifacts = cache

	if _, err := cache.Get(cfg.ModelDir); err != nil {
		s.log.Warn("model not loaded yet", "dir", cfg.ModelDir, "error", err)
	} else {
		s.metrics.ModelLoaded.Set(1)
		s.log.Info("model loaded", "dir", cfg.ModelDir)
	}

	if cfg.CandidateDB != "" {
		store, err := candidates.Open(cfg.CandidateDB)
		if err != nil {
			s.log.Warn("candidate store not available", "error", err)
		} else {
			s.candidateStore = store
		}
	}

	if cfg.ConfirmedCatalog != "" {
		store, err := confirmed.Open(cfg.ConfirmedCatalog, cfg.Encoding)
		if err != nil {
			s.log.Warn("confirmed catalog not available", "error", err)
		} else {
			s.confirmedStore = store
			s.log.Info("loaded confirmed catalog", "planets", store.Len())
		}
	}

	s.setupRoutes()
	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s, nil
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.logRequests, cors)

	apiRouter := s.router.PathPrefix("/api").Subrouter()
	apiHandler := api.NewHandler(s.artifacts, s.candidateStore, s.confirmedStore, s.metrics, s.cfg)
	apiHandler.RegisterRoutes(apiRouter)

	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	// preflight for browser clients
	s.router.PathPrefix("/").Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

// Start begins listening for HTTP connections
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve handles connections on ln until Stop is called
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info("server listening", "addr", ln.Addr().String())
	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	if s.candidateStore != nil {
		s.candidateStore.Close()
	}
	return err
}

// statusRecorder captures the response code for logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}
