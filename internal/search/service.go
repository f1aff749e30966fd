// Package search answers semantic queries against the persisted index.
package search

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/driftworks/semdex/internal/backend"
	"github.com/driftworks/semdex/internal/models"
	"github.com/driftworks/semdex/internal/store"
	"github.com/driftworks/semdex/pkg/utils"
)

// QueryEmbedderSource provides an embedder for interactive queries. It is
// implemented by backend.Service.
type QueryEmbedderSource interface {
	ForQuery(ctx context.Context) (backend.Embedder, error)
}

// Service turns a text query into ranked file matches.
type Service struct {
	store      store.Store
	source     QueryEmbedderSource
	snippetLen int
	logger     *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger for the service.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a search service reading from st.
func NewService(st store.Store, source QueryEmbedderSource, snippetLen int, opts ...Option) *Service {
	s := &Service{
		store:      st,
		source:     source,
		snippetLen: snippetLen,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search returns the k nearest files to query, ascending by distance. An
// empty query returns no results. Backend outages and store failures both
// degrade to an empty result set with a warning: the index is a derived
// cache, so a read failure is never fatal to the caller.
func (s *Service) Search(ctx context.Context, query string, k int) ([]models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" || k <= 0 {
		return nil, nil
	}

	embedder, err := s.source.ForQuery(ctx)
	if err != nil {
		s.logger.Warn("no embedding host for query", zap.Error(err))
		return nil, nil
	}
	embedding, err := embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Warn("query embedding failed", zap.Error(err))
		return nil, nil
	}

	hits, err := s.store.Query(ctx, embedding, k)
	if err != nil {
		s.logger.Warn("index query failed", zap.Error(err))
		return nil, nil
	}

	results := make([]models.SearchResult, len(hits))
	for i, h := range hits {
		results[i] = models.SearchResult{
			RelPath:    h.Entry.RelPath,
			Distance:   h.Distance,
			Similarity: models.Similarity(h.Distance),
			Snippet:    utils.Snippet(h.Document, s.snippetLen),
		}
	}
	return results, nil
}
