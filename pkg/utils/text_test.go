package utils

import (
	"testing"
)

func TestTruncate(t *testing.T) {
	if Truncate("hello", 10) != "hello" {
		t.Error("short string unchanged")
	}
	if Truncate("hello world", 5) != "hello..." {
		t.Errorf("got %s", Truncate("hello world", 5))
	}
	if Truncate("x", 0) != "x" {
		t.Error("maxLen 0 returns as-is")
	}
}

func TestSnippet(t *testing.T) {
	if got := Snippet("  func main() {\n\tprintln(1)\n}\n", 40); got != "func main() { println(1) }" {
		t.Errorf("Snippet collapsed wrong: %q", got)
	}
	if got := Snippet("one two three four", 7); got != "one two..." {
		t.Errorf("got %q", got)
	}
}
