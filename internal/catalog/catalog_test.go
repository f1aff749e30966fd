package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/driftworks/semdex/internal/config"
)

func writeFile(t *testing.T, root, rel string, data []byte) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, data, 0644); err != nil {
		t.Fatal(err)
	}
}

func defaultPolicy(t *testing.T) *Policy {
	t.Helper()
	cfg := config.Config{}
	config.ApplyDefaults(&cfg)
	p, err := NewPolicy(cfg.Exclude, cfg.Index.BinaryExtensions)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func scanPaths(t *testing.T, root string, p *Policy) []string {
	t.Helper()
	records, err := NewScanner().Scan(context.Background(), root, p)
	if err != nil {
		t.Fatal(err)
	}
	paths := make([]string, len(records))
	for i, r := range records {
		paths[i] = r.RelPath
	}
	return paths
}

func TestScanBasic(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b.go", []byte("package b"))
	writeFile(t, root, "A.md", []byte("# a"))
	writeFile(t, root, "src/util.go", []byte("package src"))

	paths := scanPaths(t, root, defaultPolicy(t))
	want := []string{"A.md", "b.go", "src/util.go"}
	if len(paths) != len(want) {
		t.Fatalf("got %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("order[%d] = %s, want %s (case-insensitive sort)", i, paths[i], want[i])
		}
	}
}

func TestScanPrunesExcludedDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", []byte("package main"))
	writeFile(t, root, "node_modules/pkg/index.js", []byte("x"))
	writeFile(t, root, ".git/config", []byte("x"))

	for _, p := range scanPaths(t, root, defaultPolicy(t)) {
		if p != "main.go" {
			t.Errorf("excluded subtree leaked into catalog: %s", p)
		}
	}
}

func TestScanBinarySniff(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "text.txt", []byte("hello"))
	writeFile(t, root, "blob.bin", []byte{1, 2, 0, 4})
	// Allow-listed binary type: cataloged despite NUL bytes.
	writeFile(t, root, "logo.png", []byte{0x89, 'P', 'N', 'G', 0, 0})

	paths := scanPaths(t, root, defaultPolicy(t))
	got := map[string]bool{}
	for _, p := range paths {
		got[p] = true
	}
	if !got["text.txt"] {
		t.Error("text.txt should be cataloged")
	}
	if got["blob.bin"] {
		t.Error("blob.bin contains NUL and should be excluded")
	}
	if !got["logo.png"] {
		t.Error("logo.png is on the binary allow-list and should be cataloged")
	}
}

func TestScanDotfiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".hidden", []byte("x"))
	writeFile(t, root, ".env", []byte("KEY=1"))
	writeFile(t, root, "ok.txt", []byte("x"))

	got := map[string]bool{}
	for _, p := range scanPaths(t, root, defaultPolicy(t)) {
		got[p] = true
	}
	if got[".hidden"] {
		t.Error(".hidden should be skipped")
	}
	if !got[".env"] {
		t.Error(".env is on the dotfile allow set")
	}
}

func TestScanRegexpMode(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "keep.go", []byte("package keep"))
	writeFile(t, root, "skip.tmp", []byte("x"))

	cfg := config.Config{}
	config.ApplyDefaults(&cfg)
	cfg.Exclude.Pattern = `\.tmp$`
	p, err := NewPolicy(cfg.Exclude, cfg.Index.BinaryExtensions)
	if err != nil {
		t.Fatal(err)
	}
	paths := scanPaths(t, root, p)
	if len(paths) != 1 || paths[0] != "keep.go" {
		t.Errorf("regexp exclusion failed: %v", paths)
	}
}

func TestScanGlobMode(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app.go", []byte("package app"))
	writeFile(t, root, "trace.log", []byte("line"))

	cfg := config.Config{}
	config.ApplyDefaults(&cfg)
	cfg.Exclude.Globs = []string{"*.log"}
	p, err := NewPolicy(cfg.Exclude, cfg.Index.BinaryExtensions)
	if err != nil {
		t.Fatal(err)
	}
	paths := scanPaths(t, root, p)
	if len(paths) != 1 || paths[0] != "app.go" {
		t.Errorf("glob exclusion failed: %v", paths)
	}
}

func TestNewPolicyRejectsMixedModes(t *testing.T) {
	cfg := config.ExcludeConfig{Globs: []string{"*.log"}, Pattern: `\.tmp$`}
	if _, err := NewPolicy(cfg, nil); err == nil {
		t.Error("expected error for mixed glob and pattern modes")
	}
}

func TestScanGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", []byte("ignored/\n*.secret\n"))
	writeFile(t, root, "kept.txt", []byte("x"))
	writeFile(t, root, "api.secret", []byte("x"))
	writeFile(t, root, "ignored/inner.txt", []byte("x"))

	p := defaultPolicy(t)
	p.LoadGitignore(root)
	got := map[string]bool{}
	for _, path := range scanPaths(t, root, p) {
		got[path] = true
	}
	if !got["kept.txt"] {
		t.Error("kept.txt should survive gitignore")
	}
	if got["api.secret"] || got["ignored/inner.txt"] {
		t.Errorf("gitignored paths leaked: %v", got)
	}
}

func TestScanMissingRoot(t *testing.T) {
	_, err := NewScanner().Scan(context.Background(), filepath.Join(t.TempDir(), "nope"), defaultPolicy(t))
	if err == nil {
		t.Error("expected error for missing root")
	}
}
