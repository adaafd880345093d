// Package server exposes spreads, validation results and agent performance
// over a read-only JSON API.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/mousou2003/MouSouTrade-sub000/internal/models"
	"github.com/mousou2003/MouSouTrade-sub000/internal/stream"
	"github.com/mousou2003/MouSouTrade-sub000/internal/trading"
)

// SpreadReader is the read side of the spread store.
type SpreadReader interface {
	LoadByTicker(ctx context.Context, ticker string) ([]*models.Spread, error)
	LatestPerformance(ctx context.Context) (*models.DailyPerformance, error)
	PerformanceHistory(ctx context.Context, limit int) ([]models.DailyPerformance, error)
	GetLastRun(job string) time.Time
}

// Config holds server configuration
type Config struct {
	Addr      string
	Log       zerolog.Logger
	Store     SpreadReader
	Validator trading.Validator
	// Events is optional; without it /api/events answers 404.
	Events *stream.Hub
}

// Server represents the HTTP server
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	store     SpreadReader
	validator trading.Validator
	events    *stream.Hub
	started   time.Time
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	if cfg.Validator == nil {
		cfg.Validator = trading.NewStrategyValidator()
	}
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		store:     cfg.Store,
		validator: cfg.Validator,
		events:    cfg.Events,
		started:   time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Get("/health", s.handleHealth)
			r.Get("/performance", s.handlePerformance)

			r.Route("/spreads/{ticker}", func(r chi.Router) {
				r.Get("/", s.handleSpreads)
				r.Get("/validate", s.handleValidate)
			})
		})

		// long-lived, so outside the request timeout
		r.Get("/events", s.handleEvents)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
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

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
