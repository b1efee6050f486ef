// Package api - thin, deterministic HTTP layer over the trust engine.
// The API is ONLY responsible for: scope parsing, engine orchestration,
// output serialization. The API NEVER performs scoring logic.
package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"billing-trust/core/trust"
	"billing-trust/core/views"
	apperrors "billing-trust/internal/errors"
)

// Server is the API server.
type Server struct {
	engine  *trust.Engine
	mux     *http.ServeMux
	version string
	logger  *zap.Logger
}

// NewServer creates the API server around one engine.
func NewServer(engine *trust.Engine, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine:  engine,
		mux:     http.NewServeMux(),
		version: version,
		logger:  logger,
	}
	s.registerRoutes()
	return s
}

// registerRoutes registers all API routes.
func (s *Server) registerRoutes() {
	// Core endpoints
	s.mux.HandleFunc("GET /analysis", s.handleAnalysis)
	s.mux.HandleFunc("GET /views/banner", s.handleView(wrapView(views.Banner)))
	s.mux.HandleFunc("GET /views/freshness", s.handleView(wrapView(views.Freshness)))
	s.mux.HandleFunc("GET /views/coverage-gates", s.handleView(wrapView(views.CoverageGates)))
	s.mux.HandleFunc("GET /views/tag-compliance", s.handleView(wrapView(views.TagCompliance)))
	s.mux.HandleFunc("GET /views/ownership", s.handleView(wrapView(views.Ownership)))
	s.mux.HandleFunc("GET /views/cost-basis", s.handleView(wrapView(views.CostBasis)))
	s.mux.HandleFunc("GET /views/denominators", s.handleView(wrapView(views.Denominators)))
	s.mux.HandleFunc("GET /views/violations", s.handleView(wrapView(views.Violations)))

	// Supporting endpoints
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /version", s.handleVersion)
}

// parseScope reads the analysis scope from query parameters. uploadIds is
// comma-separated; blank entries are dropped.
func parseScope(r *http.Request) trust.Scope {
	q := r.URL.Query()
	var uploads []string
	for _, part := range strings.Split(q.Get("uploadIds"), ",") {
		if part = strings.TrimSpace(part); part != "" {
			uploads = append(uploads, part)
		}
	}
	return trust.Scope{
		Provider:  q.Get("provider"),
		Service:   q.Get("service"),
		Region:    q.Get("region"),
		StartDate: q.Get("startDate"),
		EndDate:   q.Get("endDate"),
		UploadIDs: uploads,
	}
}

// handleAnalysis handles GET /analysis.
func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	start := time.Now()

	analysis, err := s.engine.Analyze(r.Context(), parseScope(r))
	if err != nil {
		s.logger.Error("analysis failed",
			zap.String("request_id", requestID), zap.Error(err))
		s.writeAppError(w, err)
		return
	}

	s.logger.Info("analysis served",
		zap.String("request_id", requestID),
		zap.Int("rows", analysis.TotalRows),
		zap.Float64("trust_score", analysis.Score),
		zap.Duration("duration", time.Since(start)))
	s.writeJSON(w, analysis, http.StatusOK)
}

// handleView adapts one read model over a freshly resolved analysis.
func (s *Server) handleView(adapt func(*trust.Analysis) any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()

		analysis, err := s.engine.Analyze(r.Context(), parseScope(r))
		if err != nil {
			s.logger.Error("view analysis failed",
				zap.String("request_id", requestID),
				zap.String("path", r.URL.Path), zap.Error(err))
			s.writeAppError(w, err)
			return
		}
		s.writeJSON(w, adapt(analysis), http.StatusOK)
	}
}

// wrapView erases a typed adapter to the handler shape.
func wrapView[T any](adapt func(*trust.Analysis) T) func(*trust.Analysis) any {
	return func(a *trust.Analysis) any { return adapt(a) }
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]any{
		"status":  "healthy",
		"version": s.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	}, http.StatusOK)
}

// handleVersion handles GET /version.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{
		"version":     s.version,
		"engine":      "billing-trust",
		"api_version": "v1",
	}, http.StatusOK)
}

// writeAppError maps a domain error onto an HTTP status.
func (s *Server) writeAppError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "INTERNAL_ERROR"
	switch {
	case apperrors.IsType(err, apperrors.TypeStore):
		status = http.StatusBadGateway
		code = string(apperrors.TypeStore)
	case apperrors.IsType(err, apperrors.TypeInput), apperrors.IsType(err, apperrors.TypeScope):
		status = http.StatusBadRequest
		code = string(apperrors.TypeInput)
	}
	s.writeError(w, code, err.Error(), status)
}

func (s *Server) writeJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, code, message string, status int) {
	s.writeJSON(w, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	}, status)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the server.
func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("api listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, s)
}
