package backend

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/driftworks/semdex/internal/models"
)

// Service is the high-level entry point for embedding work: it resolves a
// host, provisions the model when needed and hands back a ready embedder.
// It remembers the last host that served work.
type Service struct {
	resolver  *Resolver
	model     string
	cacheSize int
	logger    *zap.Logger

	mu     sync.RWMutex
	active *models.HostCandidate

	// embedders holds one long-lived embedder per host so its cache
	// survives across passes and queries.
	embMu     sync.Mutex
	embedders map[string]*RemoteEmbedder
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the logger for the service.
func WithServiceLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates an embedding service over resolver for the given model.
func NewService(resolver *Resolver, model string, cacheSize int, opts ...ServiceOption) *Service {
	s := &Service{
		resolver:  resolver,
		model:     model,
		cacheSize: cacheSize,
		logger:    zap.NewNop(),
		embedders: make(map[string]*RemoteEmbedder),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ForIndexing resolves an accelerated host when one is reachable, makes sure
// the model is present on it (streaming pull progress), and returns an
// embedder for bulk indexing.
func (s *Service) ForIndexing(ctx context.Context, progress func(PullProgress)) (Embedder, models.HostCandidate, error) {
	client, candidate, err := s.resolver.Resolve(ctx, true)
	if err != nil {
		return nil, models.HostCandidate{}, err
	}
	prov := NewProvisioner(client, s.logger)
	if err := prov.EnsureModel(ctx, s.model, progress); err != nil {
		return nil, candidate, fmt.Errorf("provision host %s: %w", candidate.URL, err)
	}
	s.setActive(candidate)
	return s.embedderFor(client), candidate, nil
}

// ForQuery resolves the nearest reachable host without provisioning. Query
// paths degrade to empty results on error instead of triggering downloads.
func (s *Service) ForQuery(ctx context.Context) (Embedder, error) {
	client, candidate, err := s.resolver.Resolve(ctx, false)
	if err != nil {
		return nil, err
	}
	s.setActive(candidate)
	return s.embedderFor(client), nil
}

// embedderFor returns the embedder bound to client's host, creating it on
// first use. The same host always gets the same embedder, so repeated texts
// hit its cache regardless of which pass or query asked.
func (s *Service) embedderFor(client *Client) *RemoteEmbedder {
	s.embMu.Lock()
	defer s.embMu.Unlock()
	if e, ok := s.embedders[client.BaseURL()]; ok {
		return e
	}
	e := NewRemoteEmbedder(client, s.model, s.cacheSize)
	s.embedders[client.BaseURL()] = e
	return e
}

// Model returns the configured embedding model name.
func (s *Service) Model() string {
	return s.model
}

// ActiveHost returns the host that served the most recent work, or nil when
// none has yet.
func (s *Service) ActiveHost() *models.HostCandidate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return nil
	}
	c := *s.active
	return &c
}

func (s *Service) setActive(c models.HostCandidate) {
	s.mu.Lock()
	s.active = &c
	s.mu.Unlock()
}
