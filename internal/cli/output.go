// Package cli provides output formatting for the command-line interface.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/driftworks/semdex/internal/models"
)

// SearchOutputFormat is the format for search result output.
type SearchOutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText SearchOutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON SearchOutputFormat = "json"
	// OutputCompact is one result per line, tab-separated.
	OutputCompact SearchOutputFormat = "compact"
)

// ParseOutputFormat maps a flag value to a format, defaulting to text.
func ParseOutputFormat(s string) (SearchOutputFormat, error) {
	switch s {
	case "", "text":
		return OutputText, nil
	case "json":
		return OutputJSON, nil
	case "compact":
		return OutputCompact, nil
	default:
		return OutputText, fmt.Errorf("unknown output format %q; use text, compact, or json", s)
	}
}

// WriteSearchResults writes results to w in the given format. Use OutputJSON
// for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, results []models.SearchResult, format SearchOutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"results": results,
			"count":   len(results),
		})
	case OutputCompact:
		for _, r := range results {
			fmt.Fprintf(w, "%.4f\t%s\t%s\n", r.Similarity, r.RelPath, r.Snippet)
		}
		return nil
	default:
		writeSearchResultsText(w, results)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, results []models.SearchResult) {
	fmt.Fprintf(w, "\nFound %d results\n\n", len(results))
	for i, r := range results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Similarity: %.4f | Distance: %.4f\n", i+1, r.Similarity, r.Distance)
		fmt.Fprintf(w, "Path: %s\n", r.RelPath)
		if r.Snippet != "" {
			fmt.Fprintf(w, "\n%s\n", r.Snippet)
		}
		fmt.Fprintln(w)
	}
}
