package backend

import (
	"context"
	"fmt"

	"github.com/driftworks/semdex/pkg/utils"
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// RemoteEmbedder embeds text through a resolved backend host, caching
// results keyed by text. Vectors are normalized to unit length so cosine
// distances stay within [0, 2].
type RemoteEmbedder struct {
	client *Client
	model  string
	cache  *embeddingCache
}

// NewRemoteEmbedder creates an embedder bound to client and model with an
// LRU cache of cacheSize entries.
func NewRemoteEmbedder(client *Client, model string, cacheSize int) *RemoteEmbedder {
	return &RemoteEmbedder{
		client: client,
		model:  model,
		cache:  newEmbeddingCache(cacheSize),
	}
}

// Embed returns the embedding for text, serving repeats from cache.
func (e *RemoteEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if emb, ok := e.cache.get(text); ok {
		return emb, nil
	}
	emb, err := e.client.Embed(ctx, e.model, text)
	if err != nil {
		return nil, fmt.Errorf("embed %q via %s: %w", e.model, e.client.BaseURL(), err)
	}
	utils.NormalizeL2(emb)
	e.cache.set(text, emb)
	return emb, nil
}
