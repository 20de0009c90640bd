package tenant

import (
	"path/filepath"
	"testing"
)

func TestResolve_BuildsExpectedSubdirectories(t *testing.T) {
	p, err := Resolve("data", "acme-co")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := filepath.Join("data", "tenants", "acme-co")
	if p.Root != want {
		t.Fatalf("expected root %q, got %q", want, p.Root)
	}
	if p.Learning != filepath.Join(want, "learning") {
		t.Fatalf("unexpected learning path: %q", p.Learning)
	}
	if p.Presets != filepath.Join(want, "presets") {
		t.Fatalf("unexpected presets path: %q", p.Presets)
	}
	if p.Exports != filepath.Join(want, "exports") {
		t.Fatalf("unexpected exports path: %q", p.Exports)
	}
	if p.Schedules != filepath.Join(want, "schedules") {
		t.Fatalf("unexpected schedules path: %q", p.Schedules)
	}
}

func TestResolve_RejectsEmptyOwnCompany(t *testing.T) {
	if _, err := Resolve("data", ""); err == nil {
		t.Fatal("expected error for empty own_company")
	}
}

func TestPresetsFile_AndSchedulesFile(t *testing.T) {
	p, _ := Resolve("data", "acme-co")
	if p.PresetsFile() != filepath.Join(p.Presets, "decision_presets.json") {
		t.Fatalf("unexpected presets file: %q", p.PresetsFile())
	}
	if p.SchedulesFile() != filepath.Join(p.Schedules, "schedules.json") {
		t.Fatalf("unexpected schedules file: %q", p.SchedulesFile())
	}
}

func TestExportPath_FollowsNamingConvention(t *testing.T) {
	p, _ := Resolve("data", "acme-co")
	got := p.ExportPath("acme", "2026-07", 1753948800)
	want := filepath.Join(p.Exports, "CAE_EXPORT_acme_2026-07_1753948800.zip")
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestRunRoot_AndRepositoryRoot(t *testing.T) {
	if RunRoot("data", "run-1") != filepath.Join("data", "runs", "run-1") {
		t.Fatalf("unexpected run root: %q", RunRoot("data", "run-1"))
	}
	if RepositoryRoot("data") != filepath.Join("data", "repository") {
		t.Fatalf("unexpected repository root: %q", RepositoryRoot("data"))
	}
}
