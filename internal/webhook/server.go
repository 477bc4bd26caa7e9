// Package webhook accepts GitHub deliveries and turns them into queued runs.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bgricker/matrixrun/internal/history"
	"github.com/bgricker/matrixrun/internal/report"
)

//go:generate mockgen -destination=mocks/mock_webhook.go -package=mocks github.com/bgricker/matrixrun/internal/webhook Submitter,RunLookup

// Submitter queues deliveries for execution.
type Submitter interface {
	Submit(ctx context.Context, d Delivery) (string, error)
	State(id string) (string, bool)
}

// RunLookup loads finished runs.
type RunLookup interface {
	Get(ctx context.Context, id string) (report.Run, error)
}

// DeliveryRecorder is notified of every handled delivery.
type DeliveryRecorder interface {
	WebhookDelivery(event, outcome string)
}

// Config controls the listener.
type Config struct {
	Listen       string
	Path         string
	Secret       string
	MaxBodyBytes int64
}

// Options carries the server's collaborators. Runs, Metrics and Recorder are optional.
type Options struct {
	Submitter Submitter
	Runs      RunLookup
	Metrics   http.Handler
	Recorder  DeliveryRecorder
	Logger    *slog.Logger
}

// Server is the webhook HTTP server.
type Server struct {
	config Config
	opts   Options
	server *http.Server
}

// Response bodies.
type (
	AcceptedResponse struct {
		RunID  string `json:"run_id"`
		Status string `json:"status"`
	}
	IgnoredResponse struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	StateResponse struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	ErrorResponse struct {
		Error string `json:"error"`
	}
)

// New creates a server. Secret must be set for deliveries to be accepted.
func New(config Config, opts Options) *Server {
	if config.Path == "" {
		config.Path = "/webhook"
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 5 << 20
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{config: config, opts: opts}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.opts.Logger.Info("webhook server starting", "listen", s.config.Listen, "path", s.config.Path)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.opts.Logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Post(s.config.Path, s.handleDelivery)
	r.Get("/runs/{id}", s.handleRun)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics)
	}
	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.opts.Logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleDelivery(w http.ResponseWriter, r *http.Request) {
	kind := r.Header.Get("X-GitHub-Event")

	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxBodyBytes+1))
	if err != nil {
		s.reject(w, kind, http.StatusBadRequest, "failed to read request body")
		return
	}
	if int64(len(body)) > s.config.MaxBodyBytes {
		s.reject(w, kind, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}
	if err := verifySignature(body, r.Header.Get(SignatureHeader), s.config.Secret); err != nil {
		s.opts.Logger.Warn("webhook signature rejected", "event", kind)
		s.reject(w, kind, http.StatusForbidden, "forbidden")
		return
	}

	if kind == "ping" {
		s.record(kind, "pong")
		s.respondJSON(w, http.StatusOK, map[string]string{"status": "pong"})
		return
	}

	d, err := parseDelivery(kind, body)
	var skip ignored
	if errors.As(err, &skip) {
		s.opts.Logger.Info("webhook delivery ignored", "event", kind, "reason", skip.reason)
		s.record(kind, "ignored")
		s.respondJSON(w, http.StatusOK, IgnoredResponse{Status: "ignored", Reason: skip.reason})
		return
	}
	if err != nil {
		s.reject(w, kind, http.StatusBadRequest, "malformed payload")
		return
	}
	d.ID = r.Header.Get("X-GitHub-Delivery")

	id, err := s.opts.Submitter.Submit(r.Context(), d)
	if errors.Is(err, ErrQueueFull) {
		s.reject(w, kind, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		s.opts.Logger.Error("failed to queue run", "event", kind, "error", err)
		s.reject(w, kind, http.StatusInternalServerError, "failed to queue run")
		return
	}

	s.opts.Logger.Info("run queued", "run_id", id, "event", kind, "branch", d.Event.Branch, "paths", len(d.Event.ChangedPaths))
	s.record(kind, "queued")
	s.respondJSON(w, http.StatusAccepted, AcceptedResponse{RunID: id, Status: StateQueued})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.opts.Runs != nil {
		run, err := s.opts.Runs.Get(r.Context(), id)
		switch {
		case err == nil:
			s.respondJSON(w, http.StatusOK, run)
			return
		case errors.Is(err, history.ErrAmbiguous):
			s.respondError(w, http.StatusConflict, err.Error())
			return
		case !errors.Is(err, history.ErrNotFound):
			s.opts.Logger.Error("failed to load run", "run_id", id, "error", err)
			s.respondError(w, http.StatusInternalServerError, "failed to load run")
			return
		}
	}
	if state, ok := s.opts.Submitter.State(id); ok {
		s.respondJSON(w, http.StatusOK, StateResponse{ID: id, Status: state})
		return
	}
	s.respondError(w, http.StatusNotFound, "run not found")
}

func (s *Server) reject(w http.ResponseWriter, kind string, status int, message string) {
	s.record(kind, "rejected")
	s.respondError(w, status, message)
}

func (s *Server) record(kind, outcome string) {
	if s.opts.Recorder == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	s.opts.Recorder.WebhookDelivery(kind, outcome)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}
