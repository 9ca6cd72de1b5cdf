// Package server provides HTTP server management and lifecycle handling for the
// interaction engine. It includes server setup, middleware configuration, route
// management, and graceful shutdown.
package server

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/giygas/ddi-engine/config"
	"github.com/giygas/ddi-engine/interfaces"
	"github.com/giygas/ddi-engine/logging"
	"github.com/giygas/ddi-engine/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the HTTP server
type Server struct {
	server     *http.Server
	router     chi.Router
	handler    interfaces.HTTPHandler
	config     *config.Config
	limiter    *RateLimiter
	drainDelay time.Duration
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, handler interfaces.HTTPHandler) *Server {
	router := chi.NewRouter()

	// A check may legitimately run up to the compute timeout
	writeTimeout := max(15*time.Second, cfg.ComputeTimeout+5*time.Second)

	server := &Server{
		server: &http.Server{
			Handler:      router,
			Addr:         cfg.Address + ":" + cfg.Port,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: writeTimeout,
			IdleTimeout:  60 * time.Second,
		},
		router:     router,
		handler:    handler,
		config:     cfg,
		limiter:    NewRateLimiter(rateLimitRate, rateLimitCapacity),
		drainDelay: 2 * time.Second,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures all middleware
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	if s.config.RequireProxy {
		s.router.Use(BlockDirectAccessMiddleware) // Put BEFORE RealIPMiddleware to see original RemoteAddr
	}
	s.router.Use(RealIPMiddleware)
	s.router.Use(logging.LoggingMiddleware(logging.DefaultLoggingService.Logger))
	s.router.Use(metrics.Metrics)
	s.router.Use(middleware.RedirectSlashes)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins(),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	s.router.Use(RequestSizeMiddleware(s.config))
	s.router.Use(s.limiter.Middleware)
}

func (s *Server) corsOrigins() []string {
	if len(s.config.CORSOrigins) == 0 {
		return []string{"*"}
	}
	return s.config.CORSOrigins
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Post("/predict", s.handler.Predict)
	s.router.Post("/predict/batch", s.handler.PredictBatch)
	s.router.Post("/predict/batch/by-name", s.handler.PredictBatchByName)
	s.router.Post("/check", s.handler.Check)
	s.router.Post("/check/batch", s.handler.CheckBatch)
	s.router.Get("/interactions/{drug1}/{drug2}", s.handler.GetInteraction)
	s.router.Get("/drugs/search", s.handler.SearchDrugs)
	s.router.Get("/health", s.handler.HealthCheck)
	s.router.Handle("/metrics", promhttp.Handler())
}

// Start starts the server and the rate limiter cleanup. It blocks until the
// server stops and returns http.ErrServerClosed after a graceful shutdown.
func (s *Server) Start() error {
	// Start profiling server if in development mode
	if s.config.Env == config.EnvDevelopment {
		s.startProfilingServer()
	}
	s.limiter.StartCleanup(bucketIdleSweep)

	logging.Info(fmt.Sprintf("Starting server at: %s:%s", s.config.Address, s.config.Port))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")
	s.limiter.Stop()

	if err := s.server.Shutdown(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
		// If graceful shutdown fails, force close
		if err := s.server.Close(); err != nil {
			logging.Error("Server close error", "error", err)
			return err
		}
	}

	if s.drainDelay > 0 {
		logging.Info("Waiting for ongoing requests to complete...")
		time.Sleep(s.drainDelay)
	}

	logging.Info("Server shutdown complete")
	return nil
}

// Router exposes the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// startProfilingServer starts the pprof profiling server in development mode
func (s *Server) startProfilingServer() {
	go func() {
		logging.Info("Profiling server started at http://localhost:6060/debug/pprof/")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			logging.Warn("Profiling server failed", "error", err)
		}
	}()
}
