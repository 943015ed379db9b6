// Package server provides the HTTP API for synapse.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/synapse/internal/config"
	"github.com/hyperjump/synapse/internal/indexer"
	"github.com/hyperjump/synapse/internal/search"
	"github.com/hyperjump/synapse/pkg/utils"
)

// Server is the HTTP server for the synapse API.
type Server struct {
	engine   *search.Engine
	pipeline *indexer.Pipeline
	config   *config.ServerConfig
	logger   *zap.Logger
	router   chi.Router
	server   *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	engine *search.Engine,
	pipeline *indexer.Pipeline,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	s := &Server{
		engine:   engine,
		pipeline: pipeline,
		config:   cfg,
		logger:   utils.OrNop(logger),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/documents", s.handleProcessDocument)
		r.Get("/documents/{id}", s.handleGetDocument)
		r.Delete("/documents/{id}", s.handleDeleteDocument)
		r.Post("/sync", s.handleSync)
		r.Post("/rebuild", s.handleRebuild)
		r.Post("/consistency", s.handleConsistency)
		r.Post("/cleanup", s.handleCleanup)
		r.Get("/properties", s.handleProperties)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// requestLogger logs each request at debug level.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// Handler returns the HTTP handler with all routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server, then checks the stores and repairs what it can.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	if s.server != nil {
		shutdownErr = s.server.Shutdown(ctx)
	}
	report, err := s.pipeline.CheckAndRepairConsistency(ctx, true)
	if err != nil {
		s.logger.Error("consistency repair on shutdown failed", zap.Error(err))
		if shutdownErr == nil {
			shutdownErr = err
		}
	} else {
		s.logger.Info("consistency repair on shutdown",
			zap.Int("errors", len(report.Errors)), zap.Int("fixed", len(report.Fixed)))
	}
	return shutdownErr
}
