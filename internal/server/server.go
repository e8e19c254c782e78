// Package server exposes the pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"agentarium/internal/config"
	"agentarium/internal/orchestrator"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

const maxRequestBody = 1 << 20

// Runner executes a pipeline run.
type Runner interface {
	Run(ctx context.Context, problem string, opts ...orchestrator.RunOption) (*orchestrator.FinalArtifact, error)
}

type Server struct {
	runner Runner
	config *config.Config
	router *mux.Router
	server *http.Server
	logger zerolog.Logger
}

type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Stage   string `json:"stage,omitempty"`
}

type RunRequest struct {
	Problem      string `json:"problem"`
	MaxRevisions *int   `json:"max_revisions,omitempty"`
}

// New creates a server. Routes are registered immediately.
func New(runner Runner, cfg *config.Config, logger zerolog.Logger) *Server {
	s := &Server{
		runner: runner,
		config: cfg,
		router: mux.NewRouter(),
		logger: logger.With().Str("component", "server").Logger(),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// A run makes several sequential model calls.
		WriteTimeout: 15 * time.Minute,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("address", s.server.Addr).Msg("Starting agentarium API server")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.logger.Info().Msg("Server stopped")
	return nil
}

func (s *Server) setupRoutes() {
	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.corsMiddleware)

	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/runs", s.handleRun).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/config", s.handleGetConfig).Methods(http.MethodGet)
}

// Middleware for logging requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.RequestURI).
			Str("remote", r.RemoteAddr).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("Request completed")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// CORS middleware
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]any{
			"status":    "healthy",
			"timestamp": time.Now().Format(time.RFC3339),
			"version":   Version,
		},
	})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	var opts []orchestrator.RunOption
	if req.MaxRevisions != nil {
		if *req.MaxRevisions < 0 || *req.MaxRevisions > config.MaxRevisionsLimit {
			s.writeErrorResponse(w, http.StatusBadRequest,
				fmt.Sprintf("max_revisions must be between 0 and %d", config.MaxRevisionsLimit))
			return
		}
		opts = append(opts, orchestrator.RunMaxRevisions(*req.MaxRevisions))
	}

	artifact, err := s.runner.Run(r.Context(), req.Problem, opts...)
	if err != nil {
		s.writeRunError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, APIResponse{Success: true, Data: artifact})
}

func (s *Server) writeRunError(w http.ResponseWriter, err error) {
	var pe *orchestrator.PipelineError
	switch {
	case errors.Is(err, orchestrator.ErrEmptyProblem):
		s.writeErrorResponse(w, http.StatusBadRequest, "Problem is required")
	case errors.Is(err, orchestrator.ErrInvalidMaxRevisions):
		s.writeErrorResponse(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &pe):
		s.writeJSONResponse(w, http.StatusBadGateway, APIResponse{
			Success: false,
			Error:   pe.Error(),
			Stage:   string(pe.Stage),
		})
	default:
		s.logger.Error().Err(err).Msg("Run failed")
		s.writeErrorResponse(w, http.StatusInternalServerError, "Run failed")
	}
}

// Configuration endpoint; secrets are masked.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    s.config.Masked(),
	})
}

func (s *Server) writeJSONResponse(w http.ResponseWriter, status int, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, status int, message string) {
	s.writeJSONResponse(w, status, APIResponse{
		Success: false,
		Error:   message,
	})
}
