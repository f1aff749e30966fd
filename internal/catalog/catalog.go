package catalog

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/driftworks/semdex/internal/models"
)

// sniffLen is how much of a file the text heuristic inspects.
const sniffLen = 1024

// Scanner produces catalog snapshots of a project tree.
type Scanner struct {
	logger *zap.Logger // optional; when set, logs debug events
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithLogger sets a logger for debug output (skipped entries, sniff failures).
func WithLogger(l *zap.Logger) ScannerOption {
	return func(s *Scanner) { s.logger = l }
}

// NewScanner creates a scanner. Options (e.g. WithLogger) can be passed for
// debug logging.
func NewScanner(opts ...ScannerOption) *Scanner {
	s := &Scanner{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan walks root and returns the eligible files, sorted case-insensitively
// by relative path. Excluded directories are pruned before descent, so their
// subtrees are never opened. Per-entry I/O errors are swallowed; the scan as
// a whole only fails on a cancelled context or an unreadable root.
func (s *Scanner) Scan(ctx context.Context, root string, policy *Policy) ([]models.FileRecord, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(absRoot); err != nil {
		return nil, err
	}

	type candidate struct {
		relPath string
		absPath string
		record  models.FileRecord
		// sniff is false for allow-listed binary extensions.
		sniff bool
	}

	var candidates []candidate
	walkErr := filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			// Unreadable entry: skip it, keep scanning.
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(absRoot, p)
		if relErr != nil {
			return nil
		}
		rel = strings.ReplaceAll(rel, "\\", "/")
		if d.IsDir() {
			if rel != "." && policy.ExcludesDir(rel, d.Name()) {
				if s.logger != nil {
					s.logger.Debug("catalog pruning directory", zap.String("path", rel))
				}
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if policy.ExcludesFile(rel, d.Name()) {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		candidates = append(candidates, candidate{
			relPath: rel,
			absPath: p,
			record:  models.FileRecord{RelPath: rel, ModifiedAt: info.ModTime()},
			sniff:   !policy.BinaryAllowed(filepath.Ext(rel)),
		})
		return nil
	})
	if walkErr != nil && ctx.Err() != nil {
		return nil, walkErr
	}

	// Content sniffing opens every candidate, so spread it over a worker pool.
	var (
		mu      sync.Mutex
		records []models.FileRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, c := range candidates {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if c.sniff && !isTextFile(c.absPath) {
				if s.logger != nil {
					s.logger.Debug("catalog skipping non-text file", zap.String("path", c.relPath))
				}
				return nil
			}
			mu.Lock()
			records = append(records, c.record)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sortRecords(records)
	return records, nil
}

// sortRecords orders records case-insensitively by relative path, with the
// exact path as tie-break so the order is stable for diffing.
func sortRecords(records []models.FileRecord) {
	sort.Slice(records, func(i, j int) bool {
		a, b := strings.ToLower(records[i].RelPath), strings.ToLower(records[j].RelPath)
		if a != b {
			return a < b
		}
		return records[i].RelPath < records[j].RelPath
	})
}

// isTextFile reports whether the file looks like text: no NUL byte in the
// first 1KB. Any read error disqualifies the file.
func isTextFile(absPath string) bool {
	f, err := os.Open(absPath)
	if err != nil {
		return false
	}
	defer f.Close()
	buf := make([]byte, sniffLen)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return false
	}
	return !bytes.ContainsRune(buf[:n], 0)
}
