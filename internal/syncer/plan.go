// Package syncer keeps the vector index converged with the file catalog. It
// plans a diff between the two, then applies removals and re-embeds changed
// files under a single-writer state machine.
package syncer

import (
	"path"
	"sort"
	"strings"

	"github.com/driftworks/semdex/internal/models"
)

// Eligibility decides which catalog paths may be embedded. Files matching a
// binary extension are never embedded even when a glob names them.
type Eligibility struct {
	globs      []string
	binaryExts map[string]struct{}
}

// NewEligibility creates an eligibility matcher. Empty globs admit every
// path; binaryExts are lowercase extensions with leading dot.
func NewEligibility(globs, binaryExts []string) *Eligibility {
	exts := make(map[string]struct{}, len(binaryExts))
	for _, ext := range binaryExts {
		exts[strings.ToLower(ext)] = struct{}{}
	}
	return &Eligibility{globs: globs, binaryExts: exts}
}

// Eligible reports whether relPath may be embedded.
func (e *Eligibility) Eligible(relPath string) bool {
	if _, ok := e.binaryExts[strings.ToLower(path.Ext(relPath))]; ok {
		return false
	}
	if len(e.globs) == 0 {
		return true
	}
	name := path.Base(relPath)
	for _, g := range e.globs {
		if ok, _ := path.Match(g, name); ok {
			return true
		}
		if ok, _ := path.Match(g, relPath); ok {
			return true
		}
	}
	return false
}

// BuildPlan diffs a catalog snapshot against the persisted index. A path goes
// to ToIndex when it is eligible and either unknown to the index or modified
// since it was embedded. A path goes to ToRemove when the index knows it but
// the catalog does not AND the file is gone from disk: a file merely hidden
// by the current exclusion policy keeps its entry.
func BuildPlan(records []models.FileRecord, entries []models.IndexEntry, eligible func(string) bool, existsOnDisk func(string) bool) models.SyncPlan {
	inCatalog := make(map[string]struct{}, len(records))
	for _, rec := range records {
		inCatalog[rec.RelPath] = struct{}{}
	}
	byPath := make(map[string]models.IndexEntry, len(entries))
	for _, e := range entries {
		byPath[e.RelPath] = e
	}

	var toIndex []models.FileRecord
	for _, rec := range records {
		if eligible != nil && !eligible(rec.RelPath) {
			continue
		}
		e, known := byPath[rec.RelPath]
		if !known || rec.ModifiedAt.After(e.SourceModifiedAt) {
			toIndex = append(toIndex, rec)
		}
	}
	// Shallow files first, then case-insensitive by path, so progress moves
	// through the tree in a predictable order.
	sort.Slice(toIndex, func(i, j int) bool {
		if d1, d2 := toIndex[i].Depth(), toIndex[j].Depth(); d1 != d2 {
			return d1 < d2
		}
		return strings.ToLower(toIndex[i].RelPath) < strings.ToLower(toIndex[j].RelPath)
	})

	var toRemove []string
	for _, e := range entries {
		if _, ok := inCatalog[e.RelPath]; ok {
			continue
		}
		if existsOnDisk != nil && existsOnDisk(e.RelPath) {
			continue
		}
		toRemove = append(toRemove, e.RelPath)
	}
	sort.Strings(toRemove)

	plan := models.SyncPlan{ToRemove: toRemove}
	for _, rec := range toIndex {
		plan.ToIndex = append(plan.ToIndex, rec.RelPath)
	}
	return plan
}
