// Package control exposes the local HTTP API used to start and stop
// tracking rounds and to inspect the engine, bound to the loopback
// interface.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/fieldvigil/fieldvigil/internal/notify"
	"github.com/fieldvigil/fieldvigil/internal/risk"
	"github.com/fieldvigil/fieldvigil/internal/tournee"
)

// Engine is the tracking lifecycle exposed over the control API.
type Engine interface {
	Start(ctx context.Context, mode tournee.Mode) error
	Stop(ctx context.Context) error
	Active(ctx context.Context) bool
}

// ZoneStats reports the state of the loaded risk zone.
type ZoneStats interface {
	Stats() risk.Stats
}

// AlertHistory reports recently dispatched notifications.
type AlertHistory interface {
	History() []notify.Dispatched
}

// ServerConfig holds configuration for the control server.
type ServerConfig struct {
	Addr    string
	Version string
	Engine  Engine
	Zone    ZoneStats
	Alerts  AlertHistory
	Logger  zerolog.Logger
}

// Server serves the control API.
type Server struct {
	cfg    ServerConfig
	logger zerolog.Logger
	http   *http.Server
}

// NewServer creates a control server. The handler is resolved eagerly so
// tests can exercise it without binding a socket.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:7621"
	}
	s := &Server{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "control").Logger(),
	}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler builds the chi router for the control API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(httprate.Limit(60, time.Minute, httprate.WithKeyFuncs(httprate.KeyByRealIP)))

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Route("/tracking", func(r chi.Router) {
		r.Post("/start", s.handleStart)
		r.Post("/stop", s.handleStop)
	})

	return r
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.http.Addr).Msg("control API listening")
		if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: s.cfg.Version})
}

type statusResponse struct {
	Active bool                `json:"active"`
	Zone   risk.Stats          `json:"zone"`
	Alerts []notify.Dispatched `json:"alerts"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Active: s.cfg.Engine.Active(r.Context()),
		Zone:   s.cfg.Zone.Stats(),
		Alerts: s.cfg.Alerts.History(),
	})
}

type startRequest struct {
	Mode tournee.Mode `json:"mode"`
}

type trackingResponse struct {
	Active bool         `json:"active"`
	Mode   tournee.Mode `json:"mode,omitempty"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Mode.Valid() {
		writeError(w, http.StatusBadRequest, "unknown travel mode")
		return
	}
	if s.cfg.Engine.Active(r.Context()) {
		writeError(w, http.StatusConflict, "a round is already active")
		return
	}

	if err := s.cfg.Engine.Start(r.Context(), req.Mode); err != nil {
		s.logger.Error().Err(err).Str("mode", string(req.Mode)).Msg("failed to start round")
		writeError(w, http.StatusInternalServerError, "failed to start tracking")
		return
	}
	writeJSON(w, http.StatusOK, trackingResponse{Active: true, Mode: req.Mode})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Engine.Stop(r.Context()); err != nil {
		s.logger.Error().Err(err).Msg("failed to stop round")
		writeError(w, http.StatusInternalServerError, "failed to stop tracking")
		return
	}
	writeJSON(w, http.StatusOK, trackingResponse{Active: false})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
