// Package transport is the thin HTTP adapter described in §6: an NDJSON
// streaming endpoint, an out-of-band interrupt endpoint, and the
// healthz/metrics operational endpoints, wired onto one
// controller.AgentController. It owns no orchestration logic of its
// own, only JSON encode/decode and wiring the HTTP request's
// context.Context cancellation into the controller.
package transport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/arclane/conduit/pkg/controller"
	"github.com/arclane/conduit/pkg/observability"
)

// Server is the NDJSON HTTP adapter over one AgentController.
type Server struct {
	router     chi.Router
	controller *controller.AgentController
	obs        *observability.Provider
	log        *slog.Logger
}

// Config configures a new Server. Obs may be left nil; every
// *observability.Provider method degrades to a no-op in that case.
type Config struct {
	Controller *controller.AgentController
	Obs        *observability.Provider
	Log        *slog.Logger
}

// New builds a Server with its routes registered.
func New(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		router:     chi.NewRouter(),
		controller: cfg.Controller,
		obs:        cfg.Obs,
		log:        log,
	}
	s.routes()
	return s
}

// ServeHTTP makes Server an http.Handler, suitable for http.Server's
// Handler field or for httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.logRequest)

	s.router.Post("/v1/stream", s.handleStream)
	s.router.Post("/v1/interrupt/{session_id}", s.handleInterrupt)
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/metrics", s.handleMetrics)
}
