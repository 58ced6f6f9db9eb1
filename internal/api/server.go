package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitegraph/sitemapper/internal/engine"
	"github.com/sitegraph/sitemapper/internal/metrics"
)

// CrawlService is the orchestrator surface the HTTP layer needs.
type CrawlService interface {
	StartCrawl(ctx context.Context, seedURL string, maxPages int, tier engine.PlanTier) (string, error)
	PreviewCrawl(ctx context.Context, seedURL string) (engine.AnalysisResult, error)
}

// Config controls HTTP-layer behavior.
type Config struct {
	// AuthEnabled requires X-API-Key on every request when true.
	AuthEnabled bool
	APIKey      string
	// RequestTimeout bounds ordinary requests (default 30s).
	RequestTimeout time.Duration
	// PreviewTimeout bounds the synchronous preview endpoint, which crawls
	// inline (default 120s).
	PreviewTimeout time.Duration
}

// Server wires HTTP handlers to the crawl service and job store.
type Server struct {
	router  chi.Router
	service CrawlService
	jobs    engine.JobStore
	metrics http.Handler
	logger  *zap.Logger
	cfg     Config
}

// NewServer constructs a Server with middleware and routes. metricsHandler
// serves GET /metrics; pass promhttp.Handler() or nil to disable.
func NewServer(service CrawlService, jobs engine.JobStore, metricsHandler http.Handler, cfg Config, logger *zap.Logger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.PreviewTimeout <= 0 {
		cfg.PreviewTimeout = 120 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		service: service,
		jobs:    jobs,
		metrics: metricsHandler,
		logger:  logger.Named("api"),
		cfg:     cfg,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(metrics.Middleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	if cfg.AuthEnabled {
		r.Use(apiKeyMiddleware(cfg.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	if s.metrics != nil {
		r.Get("/metrics", s.metrics.ServeHTTP)
	}

	r.Route("/v1", func(r chi.Router) {
		r.With(timeoutMiddleware(cfg.RequestTimeout)).Route("/crawls", func(r chi.Router) {
			r.Post("/", s.submitCrawl)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", s.getJob)
				r.Get("/result", s.getResult)
			})
		})
		r.With(timeoutMiddleware(cfg.PreviewTimeout)).Post("/preview", s.preview)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type crawlRequest struct {
	URL      string `json:"url"`
	MaxPages int    `json:"max_pages"`
	PlanTier string `json:"plan_tier"`
}

type previewRequest struct {
	URL string `json:"url"`
}

func (s *Server) submitCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	tier := engine.PlanTier(req.PlanTier)
	if tier == "" {
		tier = engine.TierFree
	}
	jobID, err := s.service.StartCrawl(r.Context(), req.URL, req.MaxPages, tier)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrInvalidSeed):
			s.writeError(w, http.StatusBadRequest, "url must be an absolute http(s) URL")
		case errors.Is(err, context.DeadlineExceeded):
			s.writeError(w, http.StatusRequestTimeout, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) getResult(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if !job.Status.IsTerminal() {
		s.writeJSON(w, http.StatusConflict, map[string]any{
			"error":    "job not finished",
			"status":   job.Status,
			"progress": job.Progress,
		})
		return
	}
	result, err := s.jobs.GetResult(r.Context(), jobID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "result not available")
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) preview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	result, err := s.service.PreviewCrawl(r.Context(), req.URL)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrInvalidSeed):
			s.writeError(w, http.StatusBadRequest, "url must be an absolute http(s) URL")
		case errors.Is(err, context.DeadlineExceeded):
			s.writeError(w, http.StatusRequestTimeout, "preview timed out")
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"internal server error"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
