// Package runsummary persists the terminal artifact of an execution
// and lists recent summaries for the /api/runs/summary endpoint
// (spec §4.13).
package runsummary

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cometlocal/cometlocal/internal/atomicfile"
	"github.com/cometlocal/cometlocal/internal/model"
)

// FileName is the on-disk name of the summary artifact directly under
// a run's root directory, alongside plan.json (spec §6).
const FileName = "run_summary.json"

// FinishedFileName marks that an execution reached a terminal state,
// written at runRoot alongside run_summary.json (spec §6).
const FinishedFileName = "run_finished.json"

// finishedMarker is the content of run_finished.json: enough for a
// lister to tell a completed run apart from one still in flight
// without parsing the full summary.
type finishedMarker struct {
	FinishedAt time.Time `json:"finished_at"`
	Success    bool      `json:"success"`
}

// Write persists summary at <runRoot>/run_summary.json atomically. It
// is called at executor exit regardless of success (spec §4.13).
func Write(runRoot string, summary model.RunSummary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("runsummary: marshal: %w", err)
	}
	return atomicfile.Write(filepath.Join(runRoot, FileName), data, 0o644)
}

// WriteFinished persists the run_finished.json terminal marker at
// runRoot, written at executor exit alongside run_summary.json
// (spec §6).
func WriteFinished(runRoot string, finishedAt time.Time, success bool) error {
	data, err := json.MarshalIndent(finishedMarker{FinishedAt: finishedAt, Success: success}, "", "  ")
	if err != nil {
		return fmt.Errorf("runsummary: marshal finished marker: %w", err)
	}
	return atomicfile.Write(filepath.Join(runRoot, FinishedFileName), data, 0o644)
}

// Read loads a single run_summary.json from a run's root directory.
func Read(runRoot string) (model.RunSummary, error) {
	var summary model.RunSummary
	data, err := os.ReadFile(filepath.Join(runRoot, FileName))
	if err != nil {
		return summary, fmt.Errorf("runsummary: read: %w", err)
	}
	if err := json.Unmarshal(data, &summary); err != nil {
		return summary, fmt.Errorf("runsummary: unmarshal: %w", err)
	}
	return summary, nil
}

// List enumerates recent summaries under runsRoot (one subdirectory
// per run_id, each optionally containing a run_summary.json), sorted
// by StartedAt descending and bounded by limit (spec §4.13,
// "/api/runs/summary ... sorted by start time, bounded by limit").
func List(runsRoot string, limit int) ([]model.RunSummary, error) {
	entries, err := os.ReadDir(runsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("runsummary: list %s: %w", runsRoot, err)
	}

	var summaries []model.RunSummary
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		runRoot := filepath.Join(runsRoot, e.Name())
		summary, err := Read(runRoot)
		if err != nil {
			continue // run directory exists but has no terminal summary yet
		}
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].StartedAt.After(summaries[j].StartedAt)
	})

	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

// EvidencePaths builds the phase -> directory map stored on
// RunSummary.EvidencePaths (spec §4.13: "always includes evidence_root
// and evidence_paths mapping phase -> directory").
func EvidencePaths(evidenceRoot string) map[string]string {
	return map[string]string{
		"scrape":    filepath.Join(evidenceRoot),
		"execution": filepath.Join(filepath.Dir(evidenceRoot), "execution"),
	}
}

// NewCancelled builds the run-summary recorded when a client
// disconnects mid-run: whatever completed so far, plus the cancelled
// marker (spec §5).
func NewCancelled(partial model.RunSummary, finishedAt time.Time) model.RunSummary {
	partial.FinishedAt = finishedAt
	partial.Cancelled = true
	return partial
}
