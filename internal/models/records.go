// Package models defines core data structures for the file catalog, the
// persistent index, and search results.
package models

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/driftworks/semdex/pkg/utils"
)

// FileRecord is one eligible file as seen by a catalog scan. Records are
// ephemeral; a new scan produces a new set.
type FileRecord struct {
	// RelPath is slash-separated and relative to the project root.
	RelPath    string    `json:"rel_path"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Name returns the base name of the record's path.
func (r FileRecord) Name() string {
	return filepath.Base(r.RelPath)
}

// Depth returns the number of directory components above the file.
// "a.go" has depth 0, "pkg/a.go" has depth 1.
func (r FileRecord) Depth() int {
	return strings.Count(r.RelPath, "/")
}

// IndexEntry is the persisted metadata for one indexed file. It is paired 1:1
// with a stored vector and the original document text. ID is a deterministic
// function of RelPath only, so re-indexing the same path overwrites rather
// than duplicates.
type IndexEntry struct {
	ID               string    `json:"id"`
	RelPath          string    `json:"rel_path"`
	Name             string    `json:"name"`
	Extension        string    `json:"extension"`
	IndexedAt        time.Time `json:"indexed_at"`
	SizeBytes        int64     `json:"size_bytes"`
	SourceModifiedAt time.Time `json:"source_modified_at"`
}

// HostCandidate is the outcome of probing one embedding-service endpoint.
// Candidates are recomputed on every resolution attempt and never persisted.
type HostCandidate struct {
	URL         string `json:"url"`
	Reachable   bool   `json:"reachable"`
	Accelerated bool   `json:"accelerated"`
}

// SearchResult is one similarity-search hit, ordered by ascending distance.
type SearchResult struct {
	RelPath    string  `json:"rel_path"`
	Distance   float64 `json:"distance"`
	Similarity float64 `json:"similarity"`
	Snippet    string  `json:"snippet"`
}

// SyncPlan is the derived diff between a catalog snapshot and the index.
// It lives only for the duration of one synchronization pass.
type SyncPlan struct {
	ToIndex  []string `json:"to_index"`
	ToRemove []string `json:"to_remove"`
}

// Similarity maps a cosine-style distance (bounded by 2) to a score in [0, 1].
// Distance 0 maps to 1.0, distance 2 maps to 0.0.
func Similarity(distance float64) float64 {
	return utils.Clamp01(1 - distance/2)
}
