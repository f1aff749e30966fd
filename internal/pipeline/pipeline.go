// Package pipeline turns raw query keystrokes and policy edits into debounced
// filter evaluations. Only the newest evaluation may deliver results; stale
// completions are discarded.
package pipeline

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/driftworks/semdex/internal/models"
)

const defaultDebounce = 400 * time.Millisecond

// Mode selects how a query is matched against the project.
type Mode int

const (
	// ModeName filters the cached catalog by case-insensitive substring.
	ModeName Mode = iota
	// ModeSemantic asks the search service for nearest files.
	ModeSemantic
)

// Update is one delivered evaluation. Files is set in name mode, Matches in
// semantic mode.
type Update struct {
	Generation uint64
	Query      string
	Mode       Mode
	Files      []models.FileRecord
	Matches    []models.SearchResult
}

// Searcher answers semantic queries. Implemented by search.Service.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]models.SearchResult, error)
}

// Lister produces a fresh catalog snapshot. Implemented by a catalog scan
// bound to the project root and policy.
type Lister func(ctx context.Context) ([]models.FileRecord, error)

// Pipeline debounces input changes and evaluates the newest state.
type Pipeline struct {
	searcher Searcher
	list     Lister
	debounce time.Duration
	limit    int
	emit     func(Update)
	logger   *zap.Logger

	mu          sync.Mutex
	timer       *time.Timer
	generation  uint64
	query       string
	mode        Mode
	policyDirty bool
	cached      []models.FileRecord
	inflight    context.CancelFunc
	closed      bool

	// deliverMu serializes emits so a retired evaluation can never deliver
	// after the one that superseded it.
	deliverMu sync.Mutex
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger for the pipeline.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithDebounce overrides the debounce window.
func WithDebounce(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.debounce = d
		}
	}
}

// New creates a pipeline. emit receives every delivered update, always from a
// single evaluation goroutine at a time. limit caps semantic results.
func New(searcher Searcher, list Lister, limit int, emit func(Update), opts ...Option) *Pipeline {
	p := &Pipeline{
		searcher:    searcher,
		list:        list,
		debounce:    defaultDebounce,
		limit:       limit,
		emit:        emit,
		logger:      zap.NewNop(),
		policyDirty: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OnQueryChanged records the new query text and schedules an evaluation.
func (p *Pipeline) OnQueryChanged(query string) {
	p.mu.Lock()
	p.query = query
	p.scheduleLocked()
	p.mu.Unlock()
}

// SetMode switches between name and semantic matching and schedules an
// evaluation.
func (p *Pipeline) SetMode(mode Mode) {
	p.mu.Lock()
	p.mode = mode
	p.scheduleLocked()
	p.mu.Unlock()
}

// OnPolicyChanged marks the catalog snapshot stale, forcing a rescan before
// the next evaluation.
func (p *Pipeline) OnPolicyChanged() {
	p.mu.Lock()
	p.policyDirty = true
	p.scheduleLocked()
	p.mu.Unlock()
}

// Close cancels any pending or in-flight evaluation. No update is delivered
// after Close returns.
func (p *Pipeline) Close() {
	p.mu.Lock()
	p.closed = true
	p.generation++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	cancel := p.inflight
	p.inflight = nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (p *Pipeline) scheduleLocked() {
	if p.closed {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.debounce, p.fire)
}

// fire starts an evaluation for the state as of now. Starting bumps the
// generation, which retires any evaluation still in flight.
func (p *Pipeline) fire() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.generation++
	gen := p.generation
	query := p.query
	mode := p.mode
	dirty := p.policyDirty
	p.policyDirty = false
	cached := p.cached
	if prev := p.inflight; prev != nil {
		prev()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.inflight = cancel
	p.mu.Unlock()

	go p.evaluate(ctx, gen, query, mode, dirty, cached)
}

func (p *Pipeline) evaluate(ctx context.Context, gen uint64, query string, mode Mode, dirty bool, cached []models.FileRecord) {
	records := cached
	if dirty || records == nil {
		fresh, err := p.list(ctx)
		if err != nil {
			p.logger.Warn("catalog rescan failed", zap.Error(err))
			return
		}
		records = fresh
		p.mu.Lock()
		if gen == p.generation {
			p.cached = fresh
		}
		p.mu.Unlock()
	}

	update := Update{Generation: gen, Query: query, Mode: mode}
	switch mode {
	case ModeSemantic:
		matches, err := p.searcher.Search(ctx, query, p.limit)
		if err != nil {
			p.logger.Warn("semantic evaluation failed", zap.Error(err))
			return
		}
		update.Matches = matches
	default:
		update.Files = filterByName(records, query)
	}

	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()
	p.mu.Lock()
	latest := gen == p.generation && !p.closed
	p.mu.Unlock()
	if !latest {
		return
	}
	if p.emit != nil {
		p.emit(update)
	}
}

// filterByName returns the records whose file name contains query,
// case-insensitively. Matching is on the base name only, so a query never
// matches a parent directory. An empty query returns the full catalog.
func filterByName(records []models.FileRecord, query string) []models.FileRecord {
	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]models.FileRecord, 0, len(records))
	for _, rec := range records {
		if query == "" || strings.Contains(strings.ToLower(rec.Name()), query) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].RelPath) < strings.ToLower(out[j].RelPath)
	})
	return out
}
