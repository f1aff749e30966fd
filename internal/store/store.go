// Package store persists index entries and their embeddings in SQLite and
// answers brute-force nearest-neighbour queries over them.
package store

import (
	"context"

	"github.com/driftworks/semdex/internal/models"
)

// Hit is one nearest-neighbour match. Distance is cosine distance, lower is
// closer, bounded by [0, 2] for unit vectors.
type Hit struct {
	Entry    models.IndexEntry
	Document string
	Distance float64
}

// Store is the persistence boundary of the index. Implementations are safe
// for concurrent use.
type Store interface {
	// Upsert inserts or replaces the entry along with its document text and
	// embedding.
	Upsert(ctx context.Context, entry models.IndexEntry, document string, embedding []float32) error
	// AllMetadata returns every entry without document text or embeddings.
	AllMetadata(ctx context.Context) ([]models.IndexEntry, error)
	// Delete removes the entry with the given ID. Deleting an absent ID is
	// not an error.
	Delete(ctx context.Context, id string) error
	// Query returns the k entries nearest to embedding, ascending by
	// distance.
	Query(ctx context.Context, embedding []float32, k int) ([]Hit, error)
	// Count returns the number of stored entries.
	Count(ctx context.Context) (int64, error)
	Close() error
}
