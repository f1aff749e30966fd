// Package utils provides shared utilities for text, math, and logging.
package utils

import "strings"

// Truncate returns s truncated to maxLen characters, with "..." appended if truncated.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// Snippet returns a short single-line excerpt of a document suitable for
// result listings. Leading whitespace is trimmed and internal newlines are
// collapsed to spaces before truncation.
func Snippet(document string, maxLen int) string {
	s := strings.TrimSpace(document)
	s = strings.Join(strings.Fields(s), " ")
	return Truncate(s, maxLen)
}
