package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/driftworks/semdex/internal/backend"
	"github.com/driftworks/semdex/internal/catalog"
	"github.com/driftworks/semdex/internal/fileid"
	"github.com/driftworks/semdex/internal/models"
	"github.com/driftworks/semdex/internal/store"
)

// Phase names a stage of a synchronization pass for progress reporting.
type Phase string

const (
	PhaseRemoving Phase = "removing"
	PhaseIndexing Phase = "indexing"
)

// Progress is emitted after every completed unit of work. Total is the
// target of the current phase only.
type Progress struct {
	PassID    string
	Phase     Phase
	Completed int
	Total     int
}

// Result summarizes one finished pass. When Stopped is true the counts are
// partial and the pass ended by cancellation, which is not an error.
type Result struct {
	Indexed      int
	Removed      int
	IndexTarget  int
	RemoveTarget int
	Stopped      bool
}

// EmbedderSource provides a provisioned embedder for a bulk pass. It is
// implemented by backend.Service.
type EmbedderSource interface {
	ForIndexing(ctx context.Context, progress func(backend.PullProgress)) (backend.Embedder, models.HostCandidate, error)
}

// Synchronizer drives index synchronization for one project root. All writes
// to the store for that root go through it, one pass at a time.
type Synchronizer struct {
	root        string
	store       store.Store
	scanner     *catalog.Scanner
	policy      *catalog.Policy
	eligibility *Eligibility
	source      EmbedderSource
	logger      *zap.Logger

	mu     sync.Mutex
	state  State
	status string
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLogger sets the logger for sync passes.
func WithLogger(l *zap.Logger) Option {
	return func(s *Synchronizer) { s.logger = l }
}

// New creates a synchronizer for the project rooted at root.
func New(root string, st store.Store, scanner *catalog.Scanner, policy *catalog.Policy, eligibility *Eligibility, source EmbedderSource, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		root:        root,
		store:       st,
		scanner:     scanner,
		policy:      policy,
		eligibility: eligibility,
		source:      source,
		logger:      zap.NewNop(),
		state:       StateIdle,
		status:      "idle",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns a short human-readable description of what the
// synchronizer is doing or last did.
func (s *Synchronizer) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Synchronizer) setStatus(status string) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// begin transitions to Running, rejecting concurrent passes.
func (s *Synchronizer) begin() (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		return nil, ErrSyncRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.state = StateRunning
	s.cancel = cancel
	s.done = make(chan struct{})
	return ctx, nil
}

func (s *Synchronizer) finish(state State, status string) {
	s.mu.Lock()
	s.state = state
	s.status = status
	s.cancel = nil
	close(s.done)
	s.mu.Unlock()
}

// Cancel requests cancellation of the running pass, if any. It returns
// immediately.
func (s *Synchronizer) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// CancelAndWait cancels the running pass and blocks until it has fully
// stopped, so a caller may start a superseding pass without interleaving.
func (s *Synchronizer) CancelAndWait() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	running := s.state == StateRunning
	s.mu.Unlock()
	if !running {
		return
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Run executes one full synchronization pass: scan, plan, removals, then
// indexing. progress may be nil. Cancellation via ctx or Cancel ends the
// pass early with partial counts and a nil error.
func (s *Synchronizer) Run(ctx context.Context, progress func(Progress)) (Result, error) {
	runCtx, err := s.begin()
	if err != nil {
		return Result{}, err
	}
	return s.runPass(ctx, runCtx, progress)
}

// Start launches a pass in the background. It acquires the single-writer
// slot before returning, so a concurrent Start or Run observes
// ErrSyncRunning immediately instead of racing a state check against the
// launch.
func (s *Synchronizer) Start(ctx context.Context, progress func(Progress)) error {
	runCtx, err := s.begin()
	if err != nil {
		return err
	}
	go s.runPass(ctx, runCtx, progress)
	return nil
}

func (s *Synchronizer) runPass(ctx, runCtx context.Context, progress func(Progress)) (Result, error) {
	// Tie the internal pass context to the caller's.
	stop := context.AfterFunc(ctx, s.Cancel)
	defer stop()

	passID := uuid.New().String()
	log := s.logger.With(zap.String("pass_id", passID), zap.String("root", s.root))
	log.Info("synchronization pass started")

	result, runErr := s.run(runCtx, passID, log, progress)
	if errors.Is(runErr, context.Canceled) {
		result.Stopped = true
		runErr = nil
	}
	switch {
	case runErr != nil:
		log.Error("synchronization pass failed", zap.Error(runErr))
		s.finish(StateFailed, fmt.Sprintf("sync failed: %v", runErr))
	case result.Stopped:
		log.Info("synchronization pass stopped",
			zap.Int("indexed", result.Indexed), zap.Int("removed", result.Removed))
		s.finish(StateStopped, "stopped")
	default:
		count, _ := s.store.Count(context.Background())
		log.Info("synchronization pass completed",
			zap.Int("indexed", result.Indexed), zap.Int("removed", result.Removed),
			zap.Int64("total", count))
		s.finish(StateCompleted, fmt.Sprintf("index ready: %d files", count))
	}
	return result, runErr
}

func (s *Synchronizer) run(ctx context.Context, passID string, log *zap.Logger, progress func(Progress)) (Result, error) {
	s.setStatus("scanning")
	records, err := s.scanner.Scan(ctx, s.root, s.policy)
	if err != nil {
		return Result{}, fmt.Errorf("scan %s: %w", s.root, err)
	}
	entries, err := s.store.AllMetadata(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load index metadata: %w", err)
	}

	plan := BuildPlan(records, entries, s.eligibility.Eligible, s.existsOnDisk)
	result := Result{IndexTarget: len(plan.ToIndex), RemoveTarget: len(plan.ToRemove)}
	log.Info("synchronization plan built",
		zap.Int("to_index", result.IndexTarget), zap.Int("to_remove", result.RemoveTarget))

	// Removals first so a rename never leaves both paths searchable.
	for _, relPath := range plan.ToRemove {
		if ctx.Err() != nil {
			result.Stopped = true
			return result, nil
		}
		if err := s.store.Delete(ctx, fileid.PathID(relPath)); err != nil {
			log.Warn("failed to remove index entry", zap.String("path", relPath), zap.Error(err))
			continue
		}
		result.Removed++
		if progress != nil {
			progress(Progress{PassID: passID, Phase: PhaseRemoving, Completed: result.Removed, Total: result.RemoveTarget})
		}
	}

	if len(plan.ToIndex) == 0 {
		return result, nil
	}

	s.setStatus("connecting")
	embedder, host, err := s.source.ForIndexing(ctx, func(p backend.PullProgress) {
		if p.Percent >= 0 {
			s.setStatus(fmt.Sprintf("downloading model: %.0f%%", p.Percent))
		} else if p.Status != "" {
			s.setStatus(p.Status)
		}
	})
	if err != nil {
		return result, fmt.Errorf("acquire embedder: %w", err)
	}
	log.Info("embedding host resolved",
		zap.String("url", host.URL), zap.Bool("accelerated", host.Accelerated))

	for i, relPath := range plan.ToIndex {
		if ctx.Err() != nil {
			result.Stopped = true
			return result, nil
		}
		s.setStatus(fmt.Sprintf("indexing %d/%d", i+1, result.IndexTarget))
		indexed, err := s.indexOne(ctx, embedder, relPath)
		if err != nil {
			if ctx.Err() != nil {
				result.Stopped = true
				return result, nil
			}
			log.Warn("skipping file", zap.String("path", relPath), zap.Error(err))
			continue
		}
		if !indexed {
			continue
		}
		result.Indexed++
		if progress != nil {
			progress(Progress{PassID: passID, Phase: PhaseIndexing, Completed: result.Indexed, Total: result.IndexTarget})
		}
	}
	return result, nil
}

// indexOne reads, embeds and upserts a single file. An empty document after
// trimming is skipped without error; the bool reports whether an entry was
// written.
func (s *Synchronizer) indexOne(ctx context.Context, embedder backend.Embedder, relPath string) (bool, error) {
	absPath := filepath.Join(s.root, filepath.FromSlash(relPath))
	info, err := os.Stat(absPath)
	if err != nil {
		return false, fmt.Errorf("stat: %w", err)
	}
	content, err := os.ReadFile(absPath)
	if err != nil {
		return false, fmt.Errorf("read: %w", err)
	}
	document := strings.TrimSpace(string(content))
	if document == "" {
		return false, nil
	}

	emb, err := embedder.Embed(ctx, document)
	if err != nil {
		return false, fmt.Errorf("embed: %w", err)
	}

	entry := models.IndexEntry{
		ID:               fileid.PathID(relPath),
		RelPath:          relPath,
		Name:             filepath.Base(relPath),
		Extension:        strings.ToLower(filepath.Ext(relPath)),
		IndexedAt:        time.Now(),
		SizeBytes:        info.Size(),
		SourceModifiedAt: info.ModTime(),
	}
	if err := s.store.Upsert(ctx, entry, document, emb); err != nil {
		return false, fmt.Errorf("upsert: %w", err)
	}
	return true, nil
}

func (s *Synchronizer) existsOnDisk(relPath string) bool {
	info, err := os.Stat(filepath.Join(s.root, filepath.FromSlash(relPath)))
	return err == nil && info.Mode().IsRegular()
}

// StartPeriodic runs a pass every interval until ctx is cancelled. A pass
// already in flight is left alone; the tick is skipped.
func (s *Synchronizer) StartPeriodic(ctx context.Context, interval time.Duration, progress func(Progress)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Run(ctx, progress); err != nil && !errors.Is(err, ErrSyncRunning) {
				s.logger.Warn("periodic synchronization failed", zap.Error(err))
			}
		}
	}
}
