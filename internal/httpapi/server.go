// Package httpapi exposes the operational surface: health, metrics,
// pipeline status, scheduler controls, and the push webhook.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/ingest"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/marketplace"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/observability"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/ratelimit"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/scheduler"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/storage"
)

// maxWebhookBody bounds webhook payload size.
const maxWebhookBody = 64 << 10

// Server is the HTTP operational surface.
type Server struct {
	httpServer *http.Server
	logger     zerolog.Logger
}

// Options configures a Server.
type Options struct {
	Addr      string
	Scheduler *scheduler.Scheduler
	Records   storage.RecordStore
	Limiter   *ratelimit.Limiter
	Push      *ingest.PushAdapter
	Logger    zerolog.Logger
}

// New builds the router and server.
func New(opts Options) *Server {
	s := &Server{
		logger: opts.Logger.With().Str("component", "httpapi").Logger(),
	}

	h := &handlers{
		scheduler: opts.Scheduler,
		records:   opts.Records,
		limiter:   opts.Limiter,
		push:      opts.Push,
		logger:    s.logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", h.healthz)
	r.Method(http.MethodGet, "/metrics", observability.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.status)
		r.Route("/scheduler", func(r chi.Router) {
			r.Post("/start", h.startScheduler)
			r.Post("/stop", h.stopScheduler)
			r.Post("/reset", h.resetScheduler)
			r.Post("/run/{name}", h.runNow)
		})
	})

	r.Post("/webhook/events", h.webhook)

	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving. Blocks until the listener fails or Shutdown.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type handlers struct {
	scheduler *scheduler.Scheduler
	records   storage.RecordStore
	limiter   *ratelimit.Limiter
	push      *ingest.PushAdapter
	logger    zerolog.Logger
}

func (h *handlers) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusResponse is the combined operational snapshot.
type statusResponse struct {
	Scheduler scheduler.Status      `json:"scheduler"`
	Records   []storage.StatusCount `json:"records"`
	Publish   ratelimit.Decision    `json:"publish_budget"`
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	counts, err := h.records.CountByStatus(r.Context())
	if err != nil {
		h.fail(w, err, "count records")
		return
	}
	decision, err := h.limiter.CanPublish(r.Context())
	if err != nil {
		h.fail(w, err, "limiter query")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Scheduler: h.scheduler.Status(),
		Records:   counts,
		Publish:   decision,
	})
}

func (h *handlers) startScheduler(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.Start(r.Context()); err != nil {
		h.fail(w, err, "start scheduler")
		return
	}
	writeJSON(w, http.StatusOK, h.scheduler.Status())
}

func (h *handlers) stopScheduler(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.Stop(r.Context()); err != nil {
		h.fail(w, err, "stop scheduler")
		return
	}
	writeJSON(w, http.StatusOK, h.scheduler.Status())
}

func (h *handlers) resetScheduler(w http.ResponseWriter, _ *http.Request) {
	h.scheduler.ResetErrors()
	writeJSON(w, http.StatusOK, h.scheduler.Status())
}

func (h *handlers) runNow(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.scheduler.RunNow(r.Context(), name); err != nil {
		h.fail(w, err, "run now")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"runner": name, "result": "ok"})
}

// webhook accepts one tagged candidate event per request. The payload
// is validated against its category's shape before it reaches the
// pipeline; garbage gets a 400, not a silent drop.
func (h *handlers) webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	candidate, err := marketplace.ParseCandidate(body, "webhook")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := h.push.Deliver(r.Context(), candidate); err != nil {
		h.fail(w, err, "webhook delivery")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"result": "accepted"})
}

func (h *handlers) fail(w http.ResponseWriter, err error, op string) {
	h.logger.Error().Err(err).Str("op", op).Msg("request failed")
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
