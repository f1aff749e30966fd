package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/driftworks/semdex/internal/backend"
	"github.com/driftworks/semdex/internal/catalog"
	"github.com/driftworks/semdex/internal/config"
	"github.com/driftworks/semdex/internal/fileid"
	"github.com/driftworks/semdex/internal/models"
	"github.com/driftworks/semdex/internal/search"
	"github.com/driftworks/semdex/internal/server"
	"github.com/driftworks/semdex/internal/store"
	"github.com/driftworks/semdex/internal/syncer"
)

const e2eDimensions = 32

// newEmbeddingHost runs an in-process Ollama-compatible service. The model
// starts absent so the first indexing pass has to pull it. Embeddings are
// deterministic per input text.
func newEmbeddingHost(t *testing.T) *httptest.Server {
	t.Helper()
	mock := backend.NewMockEmbedder(e2eDimensions)
	var mu sync.Mutex
	hasModel := false

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/version", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"version": "0.1.0"})
	})
	mux.HandleFunc("GET /api/ps", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]bool{"accelerated": true})
	})
	mux.HandleFunc("POST /api/embed", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ready := hasModel
		mu.Unlock()
		if !ready {
			http.Error(w, "model not found", http.StatusNotFound)
			return
		}
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Input) == 0 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		vec, _ := mock.Embed(r.Context(), req.Input[0])
		json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{vec}})
	})
	mux.HandleFunc("POST /api/pull", func(w http.ResponseWriter, r *http.Request) {
		enc := json.NewEncoder(w)
		enc.Encode(backend.PullFrame{Status: "pulling manifest"})
		enc.Encode(backend.PullFrame{Status: "downloading", Completed: 100, Total: 100})
		enc.Encode(backend.PullFrame{Status: "success"})
		mu.Lock()
		hasModel = true
		mu.Unlock()
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type harness struct {
	root   string
	sync   *syncer.Synchronizer
	store  store.Store
	router http.Handler
}

// newHarness wires the full stack the way the binary does, with the real
// backend client pointed at an in-process embedding host.
func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	host := newEmbeddingHost(t)

	client := backend.NewClient(host.URL, time.Second, 5*time.Second)
	resolver := backend.NewResolver(client, nil, false)
	be := backend.NewService(resolver, "nomic-embed-text", 64)

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "index.db"), fileid.CollectionID(root))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	policy, err := catalog.NewPolicy(config.ExcludeConfig{Dirs: []string{".git"}}, []string{".png"})
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	syn := syncer.New(root, st, catalog.NewScanner(), policy, syncer.NewEligibility(nil, []string{".png"}), be)
	searcher := search.NewService(st, be, 80)
	srv := server.NewServer(searcher, syn, st, be, &config.ServerConfig{Host: "127.0.0.1", Port: 0}, zap.NewNop())

	return &harness{root: root, sync: syn, store: st, router: srv.Router()}
}

func (h *harness) write(t *testing.T, rel, content string) {
	t.Helper()
	abs := filepath.Join(h.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func (h *harness) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *harness) searchTop(t *testing.T, query string) models.SearchResult {
	t.Helper()
	rec := h.post(t, "/api/v1/search", map[string]any{"query": query, "limit": 1})
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Results []models.SearchResult `json:"results"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode search response: %v", err)
	}
	if len(resp.Results) == 0 {
		t.Fatalf("search %q returned no results", query)
	}
	return resp.Results[0]
}

func TestEndToEnd_IndexAndSearch(t *testing.T) {
	h := newHarness(t)
	h.write(t, "docs/auth.md", "token based authentication and session handling")
	h.write(t, "src/geometry.py", "triangle mesh subdivision algorithms")
	h.write(t, "logo.png", "\x89PNG not text")
	h.write(t, ".git/config", "[core] bare = false")

	res, err := h.sync.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Indexed != 2 {
		t.Fatalf("indexed = %d, want 2 (binary and .git content excluded)", res.Indexed)
	}
	if got := h.sync.Status(); got != "index ready: 2 files" {
		t.Errorf("status = %q, want %q", got, "index ready: 2 files")
	}

	top := h.searchTop(t, "token based authentication and session handling")
	if top.RelPath != "docs/auth.md" {
		t.Errorf("top result = %s, want docs/auth.md", top.RelPath)
	}
	if top.Similarity < 0.99 {
		t.Errorf("similarity = %v, want ~1 for identical text", top.Similarity)
	}
}

func TestEndToEnd_ResyncDropsDeletedFiles(t *testing.T) {
	h := newHarness(t)
	h.write(t, "keep.txt", "persistent notes about brewing coffee")
	h.write(t, "drop.txt", "temporary scratch content")

	if _, err := h.sync.Run(context.Background(), nil); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if n, _ := h.store.Count(context.Background()); n != 2 {
		t.Fatalf("count after first pass = %d, want 2", n)
	}

	if err := os.Remove(filepath.Join(h.root, "drop.txt")); err != nil {
		t.Fatal(err)
	}
	res, err := h.sync.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if res.Removed != 1 {
		t.Errorf("removed = %d, want 1", res.Removed)
	}
	if n, _ := h.store.Count(context.Background()); n != 1 {
		t.Errorf("count after resync = %d, want 1", n)
	}

	top := h.searchTop(t, "persistent notes about brewing coffee")
	if top.RelPath != "keep.txt" {
		t.Errorf("top result = %s, want keep.txt", top.RelPath)
	}
}

func TestEndToEnd_StatusReportsActiveHost(t *testing.T) {
	h := newHarness(t)
	h.write(t, "a.txt", "some indexable content")
	if _, err := h.sync.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["state"] != "completed" {
		t.Errorf("state = %v, want completed", body["state"])
	}
	if body["active_host"] == nil {
		t.Error("expected active_host after an indexing pass")
	}
}
