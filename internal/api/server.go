// Package api exposes the HTTP interface for the analyzer service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/searchpulse/geo-analyzer/internal/analysis"
	"github.com/searchpulse/geo-analyzer/internal/metrics"
	"github.com/searchpulse/geo-analyzer/internal/queue"
)

// AnalysisService is the slice of the queue the HTTP layer needs. Tests
// substitute a fake.
type AnalysisService interface {
	Submit(ctx context.Context, email, rawURL string) (queue.SubmitResult, error)
	Status(ctx context.Context, taskID string) (analysis.TaskStatus, bool)
	StatusesForEmail(email string) []analysis.TaskStatus
	Snapshot() queue.Snapshot
	Reconcile(ctx context.Context, lookback time.Duration) (queue.ReconcileResult, error)
}

// Config controls the HTTP surface.
type Config struct {
	// AdminToken gates the reconciliation endpoint. Empty disables it.
	AdminToken string
	// RequestTimeout bounds each request end to end.
	RequestTimeout time.Duration
	// ReconcileLookback is how far back reconciliation scans.
	ReconcileLookback time.Duration
}

func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 60 * time.Second
	}
	if c.ReconcileLookback <= 0 {
		c.ReconcileLookback = 24 * time.Hour
	}
	return c
}

// Server wires HTTP handlers to the analysis queue.
type Server struct {
	router  chi.Router
	service AnalysisService
	cfg     Config
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(service AnalysisService, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		service: service,
		cfg:     cfg.withDefaults(),
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(s.cfg.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Post("/analyze", s.submitAnalysis)
	r.Get("/analysis-status", s.statusesByEmail)
	r.Get("/analysis-status/{task_id}", s.statusByID)
	r.Get("/queue-status", s.queueStatus)

	r.Group(func(r chi.Router) {
		r.Use(bearerMiddleware(s.cfg.AdminToken))
		r.Post("/reconcile-analyses", s.reconcile)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type analyzeRequest struct {
	Email string `json:"email"`
	URL   string `json:"url"`
}

func (s *Server) submitAnalysis(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	res, err := s.service.Submit(r.Context(), req.Email, req.URL)
	if err != nil {
		if errors.Is(err, queue.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "submit failed")
		return
	}
	if res.Duplicate {
		writeJSON(w, http.StatusConflict, map[string]any{
			"success": false,
			"error":   "analysis already in progress for this email and url",
			"taskId":  res.TaskID,
			"status":  res.Status,
		})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"success": true,
		"taskId":  res.TaskID,
		"status":  res.Status,
	})
}

func (s *Server) statusByID(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	st, ok := s.service.Status(r.Context(), taskID)
	if !ok {
		writeError(w, http.StatusNotFound, "analysis not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) statusesByEmail(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		writeError(w, http.StatusBadRequest, "email query parameter is required")
		return
	}
	statuses := s.service.StatusesForEmail(email)
	writeJSON(w, http.StatusOK, map[string]any{
		"email":    email,
		"analyses": statuses,
	})
}

func (s *Server) queueStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Snapshot())
}

func (s *Server) reconcile(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.Reconcile(r.Context(), s.cfg.ReconcileLookback)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"restored":        res.Restored,
		"totalConsidered": res.TotalConsidered,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
