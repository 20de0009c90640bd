package runsummary

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cometlocal/cometlocal/internal/model"
)

func TestWriteAndRead_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	summary := model.RunSummary{
		RunID:        "run-1",
		OwnCompany:   "own-co",
		Platform:     "coordinator-x",
		StartedAt:    time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC),
		FinishedAt:   time.Date(2026, 7, 31, 9, 5, 0, 0, time.UTC),
		Counts:       model.RunCounts{PendingTotal: 3, AutoUpload: 1},
		EvidenceRoot: filepath.Join(dir, "evidence"),
	}

	if err := Write(dir, summary); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := Read(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.RunID != "run-1" || got.Counts.PendingTotal != 3 {
		t.Fatalf("unexpected round-tripped summary: %+v", got)
	}
	if got.EvidenceRoot != filepath.Join(dir, "evidence") {
		t.Fatalf("expected evidence_root to round-trip, got %q", got.EvidenceRoot)
	}
}

func TestWriteFinished_PersistsTerminalMarker(t *testing.T) {
	dir := t.TempDir()
	finishedAt := time.Date(2026, 7, 31, 9, 5, 0, 0, time.UTC)

	if err := WriteFinished(dir, finishedAt, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, FinishedFileName))
	if err != nil {
		t.Fatalf("expected run_finished.json to exist: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty run_finished.json")
	}
}

func TestList_SortsByStartedAtDescendingAndBounds(t *testing.T) {
	root := t.TempDir()
	runs := []struct {
		id      string
		started time.Time
	}{
		{"run-a", time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)},
		{"run-b", time.Date(2026, 7, 20, 0, 0, 0, 0, time.UTC)},
		{"run-c", time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC)},
	}
	for _, r := range runs {
		runRoot := filepath.Join(root, r.id)
		if err := Write(runRoot, model.RunSummary{RunID: r.id, StartedAt: r.started}); err != nil {
			t.Fatalf("setup: %v", err)
		}
	}

	got, err := List(root, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected limit=2 to bound results, got %d", len(got))
	}
	if got[0].RunID != "run-b" || got[1].RunID != "run-c" {
		t.Fatalf("expected descending start-time order, got %+v", got)
	}
}

func TestList_EmptyRootReturnsNoError(t *testing.T) {
	got, err := List(filepath.Join(t.TempDir(), "missing"), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil result for nonexistent root, got %v", got)
	}
}

func TestNewCancelled_MarksCancelledAndSetsFinishedAt(t *testing.T) {
	finishedAt := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	got := NewCancelled(model.RunSummary{RunID: "run-1"}, finishedAt)
	if !got.Cancelled {
		t.Fatal("expected cancelled marker to be set")
	}
	if !got.FinishedAt.Equal(finishedAt) {
		t.Fatalf("expected finished_at set, got %v", got.FinishedAt)
	}
}
