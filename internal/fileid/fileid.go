// Package fileid provides deterministic identifiers for indexed files and
// per-project index collections.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

const (
	pathPrefix       = "file:"
	collectionPrefix = "proj-"
)

// PathID returns a stable entry ID for a project-relative path. The same
// path always yields the same ID, so re-indexing overwrites instead of
// duplicating. Paths are slash-normalized first so the ID is the same on
// every platform.
func PathID(relPath string) string {
	normalized := strings.ReplaceAll(filepath.Clean(relPath), "\\", "/")
	hash := sha256.Sum256([]byte(normalized))
	return pathPrefix + hex.EncodeToString(hash[:])
}

// CollectionID returns a stable collection identifier derived from the
// project root path. Each project gets its own collection in the index store.
func CollectionID(rootPath string) string {
	abs, err := filepath.Abs(rootPath)
	if err != nil {
		abs = rootPath
	}
	normalized := strings.ReplaceAll(filepath.Clean(abs), "\\", "/")
	hash := sha256.Sum256([]byte(normalized))
	// 16 hex chars is plenty to keep distinct projects apart.
	return collectionPrefix + hex.EncodeToString(hash[:8])
}
