// Package api exposes the HTTP interface for the analyzer service.
package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siteintel/analyzer/internal/analysis"
	"github.com/siteintel/analyzer/internal/analysis/cache"
	"github.com/siteintel/analyzer/internal/arbiter"
	"github.com/siteintel/analyzer/internal/config"
	"github.com/siteintel/analyzer/internal/dispatcher"
	"github.com/siteintel/analyzer/internal/metrics"
	"github.com/siteintel/analyzer/internal/runner"
)

// Server wires HTTP handlers to the dispatcher, stores, and the
// synchronous analysis path.
type Server struct {
	router     chi.Router
	jobStore   analysis.JobStore
	dispatcher *dispatcher.Dispatcher
	fetcher    analysis.Fetcher
	runner     *runner.Runner
	arbiter    *arbiter.Arbiter
	cache      *cache.Cache
	idGen      analysis.IDGenerator
	clock      analysis.Clock
	cfg        config.Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	jobStore analysis.JobStore,
	dispatch *dispatcher.Dispatcher,
	fetcher analysis.Fetcher,
	r *runner.Runner,
	a *arbiter.Arbiter,
	resultCache *cache.Cache,
	idGen analysis.IDGenerator,
	clock analysis.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		jobStore:   jobStore,
		dispatcher: dispatch,
		fetcher:    fetcher,
		runner:     r,
		arbiter:    a,
		cache:      resultCache,
		idGen:      idGen,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}

	router := chi.NewRouter()
	router.Use(requestIDMiddleware)
	router.Use(s.loggingMiddleware)
	router.Use(s.recoverMiddleware)
	router.Use(timeoutMiddleware(3 * time.Minute))
	router.Use(metrics.Middleware)
	if cfg.Auth.Enabled {
		router.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	router.Get("/healthz", s.healthz)
	router.Get("/readyz", s.readyz)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	router.Post("/analyze/complete", s.submitCompleteAnalysis)
	router.Post("/analyze/competitors", s.analyzeCompetitors)
	router.Post("/analyze/{module}", s.analyzeModule)
	router.Get("/jobs", s.listJobs)
	router.Get("/jobs/{job_id}", s.getJob)
	router.Get("/website/info", s.websiteInfo)

	s.router = router
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	// In-memory dependencies are always ready; providers are checked lazily.
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
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

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
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
