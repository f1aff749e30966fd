package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/driftworks/semdex/internal/models"
)

var sample = []models.SearchResult{
	{RelPath: "src/main.go", Distance: 0.2, Similarity: 0.9, Snippet: "package main"},
	{RelPath: "docs/readme.md", Distance: 0.8, Similarity: 0.6, Snippet: "getting started"},
}

func TestParseOutputFormat(t *testing.T) {
	for in, want := range map[string]SearchOutputFormat{
		"":        OutputText,
		"text":    OutputText,
		"json":    OutputJSON,
		"compact": OutputCompact,
	} {
		got, err := ParseOutputFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseOutputFormat(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseOutputFormat("xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestWriteSearchResultsText(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sample, OutputText); err != nil {
		t.Fatalf("WriteSearchResults: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Found 2 results", "src/main.go", "Similarity: 0.9000", "package main"} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteSearchResultsCompact(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sample, OutputCompact); err != nil {
		t.Fatalf("WriteSearchResults: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if !strings.HasPrefix(lines[0], "0.9000\tsrc/main.go\t") {
		t.Errorf("unexpected compact line: %q", lines[0])
	}
}

func TestWriteSearchResultsJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sample, OutputJSON); err != nil {
		t.Fatalf("WriteSearchResults: %v", err)
	}
	var decoded struct {
		Results []models.SearchResult `json:"results"`
		Count   int                   `json:"count"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Count != 2 || len(decoded.Results) != 2 {
		t.Errorf("count = %d, results = %d, want 2", decoded.Count, len(decoded.Results))
	}
	if decoded.Results[0].RelPath != "src/main.go" {
		t.Errorf("first result = %+v", decoded.Results[0])
	}
}
