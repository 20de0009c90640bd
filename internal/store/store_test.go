package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/cometlocal/cometlocal/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cometlocal.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("unexpected error opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertAndListSchedules(t *testing.T) {
	s := openTestStore(t)
	sched := model.Schedule{
		ScheduleID: "sched-1", Enabled: true, Cadence: model.CadenceDaily, AtTime: "09:00",
		OwnCompany: "own-co", Platform: "portal-a", CoordinatedCompany: "coord-co",
	}
	if err := s.UpsertSchedule(sched); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.ListEnabledSchedules("own-co")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ScheduleID != "sched-1" {
		t.Fatalf("expected schedule round-tripped, got %+v", got)
	}
}

func TestListEnabledSchedules_ExcludesDisabled(t *testing.T) {
	s := openTestStore(t)
	_ = s.UpsertSchedule(model.Schedule{ScheduleID: "sched-1", Enabled: false, Cadence: model.CadenceDaily, AtTime: "09:00", OwnCompany: "own-co"})

	got, err := s.ListEnabledSchedules("own-co")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected disabled schedule excluded, got %+v", got)
	}
}

func TestRecordRunOutcome_UpdatesScheduleState(t *testing.T) {
	s := openTestStore(t)
	_ = s.UpsertSchedule(model.Schedule{ScheduleID: "sched-1", Enabled: true, Cadence: model.CadenceDaily, AtTime: "09:00", OwnCompany: "own-co"})

	runAt := time.Date(2026, 7, 31, 9, 1, 0, 0, time.UTC)
	if err := s.RecordRunOutcome("sched-1", "run-1", runAt, "success"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.ListEnabledSchedules("own-co")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0].LastRunID != "run-1" || got[0].LastStatus != "success" {
		t.Fatalf("expected run outcome recorded, got %+v", got[0])
	}
}

func TestAcquireExecutionLock_PreventsConcurrentAcquisition(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	ok, err := s.AcquireExecutionLock("own-co|portal-a|coord-co", "worker-1", now)
	if err != nil || !ok {
		t.Fatalf("expected first acquisition to succeed, got ok=%v err=%v", ok, err)
	}

	ok, err = s.AcquireExecutionLock("own-co|portal-a|coord-co", "worker-2", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected second acquisition to fail while lock is held")
	}

	if err := s.ReleaseExecutionLock("own-co|portal-a|coord-co"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok, err = s.AcquireExecutionLock("own-co|portal-a|coord-co", "worker-2", now)
	if err != nil || !ok {
		t.Fatalf("expected acquisition to succeed after release, got ok=%v err=%v", ok, err)
	}
}

func TestRecordRun_InsertsRunIndexRow(t *testing.T) {
	s := openTestStore(t)
	if err := s.RecordRun("run-1", "own-co", "portal-a", "coord-co", "data/runs/run-1/evidence", time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
