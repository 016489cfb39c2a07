// Package server provides the HTTP server and routing for the backtester.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/backtester/internal/config"
	"github.com/aristath/backtester/internal/database"
	backtesthandlers "github.com/aristath/backtester/internal/modules/backtest/handlers"
	"github.com/aristath/backtester/internal/modules/historical"
	historicalhandlers "github.com/aristath/backtester/internal/modules/historical/handlers"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	HistoryDB *database.DB
	Config    *config.Config
	Port      int
	DevMode   bool
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	historyDB      *database.DB
	cfg            *config.Config
	port           int
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		historyDB:      cfg.HistoryDB,
		cfg:            cfg.Config,
		port:           cfg.Port,
		systemHandlers: NewSystemHandlers(cfg.Log, cfg.HistoryDB, cfg.Config),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// Large simulations are answered synchronously
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Router exposes the configured router, used by tests
func (s *Server) Router() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5, "application/json", "application/msgpack"))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	historyDB := historical.NewHistoryDB(s.historyDB.Conn(), s.log)
	historicalHandler := historicalhandlers.NewHandler(historyDB, s.log)
	backtestHandler := backtesthandlers.NewHandler(historyDB, backtesthandlers.Options{
		Workers:        s.cfg.Simulation.Workers,
		MaxTrials:      s.cfg.Simulation.MaxTrials,
		DefaultTrials:  s.cfg.Simulation.DefaultTrials,
		ReturnPolicy:   s.cfg.Simulation.ReturnPolicy,
		OriginPatterns: websocketOrigins(s.cfg.CORSOrigins),
	}, s.log)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.systemHandlers.HandleSystemStatus)
		})

		historicalHandler.RegisterRoutes(r)

		// Synchronous runs are bounded; the stream is cancelled by the client instead
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(simulationTimeout(s.cfg.Simulation)))
			r.Post("/backtest/portfolio", backtestHandler.HandlePortfolio)
			r.Post("/backtest/simulate", backtestHandler.HandleSimulate)
		})
		r.Get("/backtest/simulate/stream", backtestHandler.HandleSimulateStream)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

// simulationTimeout scales the request deadline with the trial cap
func simulationTimeout(cfg config.SimulationConfig) time.Duration {
	timeout := 60 * time.Second
	if cfg.MaxTrials > 100000 {
		timeout = 4 * time.Minute
	}
	return timeout
}

// websocketOrigins turns CORS origins into websocket origin patterns.
// A wildcard allows every origin.
func websocketOrigins(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, origin := range origins {
		if origin == "*" {
			return []string{"*"}
		}
		patterns = append(patterns, strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://"))
	}
	return patterns
}
