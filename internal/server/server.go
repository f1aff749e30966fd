// Package server provides the HTTP API over the index: search, sync control
// and status.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/driftworks/semdex/internal/config"
	"github.com/driftworks/semdex/internal/models"
	"github.com/driftworks/semdex/internal/store"
	"github.com/driftworks/semdex/internal/syncer"
)

// Searcher answers semantic queries. Implemented by search.Service.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]models.SearchResult, error)
}

// HostReporter exposes the embedding host that served the most recent work.
// Implemented by backend.Service.
type HostReporter interface {
	ActiveHost() *models.HostCandidate
}

// Server is the HTTP server for the index API.
type Server struct {
	searcher Searcher
	syncer   *syncer.Synchronizer
	store    store.Store
	hosts    HostReporter
	config   *config.ServerConfig
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	searcher Searcher,
	sync *syncer.Synchronizer,
	st store.Store,
	hosts HostReporter,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		searcher: searcher,
		syncer:   sync,
		store:    st,
		hosts:    hosts,
		config:   cfg,
		logger:   logger,
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Get("/api/v1/status", s.handleStatus)
	r.Post("/api/v1/search", s.handleSearch)
	r.Post("/api/v1/sync", s.handleSync)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
