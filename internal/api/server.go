// Package api implements the HTTP surface of the dispatch service.
package api

import (
	"net/http"

	"milkrun/internal/auth"
	"milkrun/internal/config"
	"milkrun/internal/dispatch"
	"milkrun/internal/events"
	"milkrun/internal/logger"
	"milkrun/internal/opt"
	"milkrun/internal/store"
)

type Server struct {
	Store     store.Store
	Engine    *dispatch.Engine
	Optimizer *opt.Optimizer
	Cfg       config.Config
	Auth      *auth.Verifier
	Broker    events.Subscriber
	Log       logger.Logger
}

// NewServer wires handlers over st and eng. A nil broker disables driver event streams.
func NewServer(cfg config.Config, st store.Store, eng *dispatch.Engine, broker events.Subscriber, log logger.Logger) *Server {
	if log == nil {
		log = logger.Nop{}
	}
	return &Server{
		Store:     st,
		Engine:    eng,
		Optimizer: opt.NewOptimizer(log),
		Cfg:       cfg,
		Auth:      auth.NewVerifier(cfg.Auth.Mode, cfg.Auth.HMACSecret),
		Broker:    broker,
		Log:       log,
	}
}

// Handler registers every route and wraps the mux in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/optimize", s.OptimizeHandler)
	mux.HandleFunc("/v1/dispatch/commit", s.CommitHandler)
	mux.HandleFunc("/v1/assignments/", s.AssignmentByIDHandler) // includes /{action}
	mux.HandleFunc("/v1/orders", s.OrdersHandler)
	mux.HandleFunc("/v1/drivers/", s.DriversHandler) // includes /assignments, /events/stream, /events/ws

	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.Handle("/metrics", metricsHandler())
	mux.HandleFunc("/debug/info", s.DebugJSON)

	return s.logMiddleware(instrument(rateLimit(s.Cfg.Server.RateRPS, s.Cfg.Server.RateBurst, mux)))
}
