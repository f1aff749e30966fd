package syncer

import (
	"reflect"
	"testing"
	"time"

	"github.com/driftworks/semdex/internal/models"
)

var (
	t0 = time.Unix(1700000000, 0)
	t1 = t0.Add(time.Hour)
)

func rec(rel string, mtime time.Time) models.FileRecord {
	return models.FileRecord{RelPath: rel, ModifiedAt: mtime}
}

func idx(rel string, mtime time.Time) models.IndexEntry {
	return models.IndexEntry{ID: "file:" + rel, RelPath: rel, SourceModifiedAt: mtime}
}

func always(string) bool { return true }
func never(string) bool  { return false }

func TestBuildPlanNewAndStaleFiles(t *testing.T) {
	records := []models.FileRecord{
		rec("unchanged.go", t0),
		rec("stale.go", t1),
		rec("new.go", t0),
	}
	entries := []models.IndexEntry{
		idx("unchanged.go", t0),
		idx("stale.go", t0),
	}
	plan := BuildPlan(records, entries, always, always)
	want := []string{"new.go", "stale.go"}
	if !reflect.DeepEqual(plan.ToIndex, want) {
		t.Errorf("ToIndex = %v, want %v", plan.ToIndex, want)
	}
	if len(plan.ToRemove) != 0 {
		t.Errorf("ToRemove = %v, want empty", plan.ToRemove)
	}
}

func TestBuildPlanRemovesDeletedOnly(t *testing.T) {
	entries := []models.IndexEntry{
		idx("gone.go", t0),
		idx("hidden.go", t0),
	}
	// hidden.go is excluded by the current policy but still on disk.
	onDisk := func(rel string) bool { return rel == "hidden.go" }
	plan := BuildPlan(nil, entries, always, onDisk)
	if !reflect.DeepEqual(plan.ToRemove, []string{"gone.go"}) {
		t.Errorf("ToRemove = %v, want [gone.go]", plan.ToRemove)
	}
	if len(plan.ToIndex) != 0 {
		t.Errorf("ToIndex = %v, want empty", plan.ToIndex)
	}
}

func TestBuildPlanEligibility(t *testing.T) {
	records := []models.FileRecord{
		rec("a.py", t0),
		rec("b.png", t0),
		rec("c.log", t0),
	}
	e := NewEligibility([]string{"*.py", "*.png"}, []string{".png"})
	plan := BuildPlan(records, nil, e.Eligible, never)
	// b.png matches a glob but its type is never embedded; c.log matches
	// nothing.
	if !reflect.DeepEqual(plan.ToIndex, []string{"a.py"}) {
		t.Errorf("ToIndex = %v, want [a.py]", plan.ToIndex)
	}
}

func TestBuildPlanOrdering(t *testing.T) {
	records := []models.FileRecord{
		rec("src/deep/z.go", t0),
		rec("src/B.go", t0),
		rec("a.go", t0),
		rec("src/a.go", t0),
	}
	plan := BuildPlan(records, nil, always, never)
	want := []string{"a.go", "src/a.go", "src/B.go", "src/deep/z.go"}
	if !reflect.DeepEqual(plan.ToIndex, want) {
		t.Errorf("ToIndex = %v, want %v", plan.ToIndex, want)
	}
}

func TestBuildPlanEmptyInputs(t *testing.T) {
	plan := BuildPlan(nil, nil, always, never)
	if len(plan.ToIndex) != 0 || len(plan.ToRemove) != 0 {
		t.Errorf("empty inputs produced plan %+v", plan)
	}
}

func TestEligibility(t *testing.T) {
	tests := []struct {
		name       string
		globs      []string
		binaryExts []string
		relPath    string
		want       bool
	}{
		{"no globs admit all", nil, nil, "anything.xyz", true},
		{"glob on name", []string{"*.go"}, nil, "src/main.go", true},
		{"glob on rel path", []string{"docs/*.md"}, nil, "docs/a.md", true},
		{"no match", []string{"*.go"}, nil, "readme.md", false},
		{"binary wins over glob", []string{"*.png"}, []string{".png"}, "logo.png", false},
		{"binary ext case-insensitive", nil, []string{".png"}, "LOGO.PNG", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEligibility(tt.globs, tt.binaryExts)
			if got := e.Eligible(tt.relPath); got != tt.want {
				t.Errorf("Eligible(%q) = %v, want %v", tt.relPath, got, tt.want)
			}
		})
	}
}
