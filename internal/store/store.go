// Package store provides SQLite-backed persistence for schedules, the
// per-tenant execution lock, and the run index (spec §4.14, §5).
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cometlocal/cometlocal/internal/model"
)

// Store wraps a SQLite connection holding CometLocal's scheduling and
// run-index state.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS schedules (
	schedule_id         TEXT PRIMARY KEY,
	enabled             INTEGER NOT NULL DEFAULT 1,
	plan_id             TEXT NOT NULL DEFAULT '',
	cadence             TEXT NOT NULL,
	at_time             TEXT NOT NULL,
	weekday             INTEGER NOT NULL DEFAULT 0,
	own_company         TEXT NOT NULL,
	platform            TEXT NOT NULL,
	coordinated_company TEXT NOT NULL,
	last_run_id         TEXT NOT NULL DEFAULT '',
	last_run_at         DATETIME,
	last_status         TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS execution_locks (
	tenant_key TEXT PRIMARY KEY,
	locked_at  DATETIME NOT NULL,
	locked_by  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS run_index (
	run_id              TEXT PRIMARY KEY,
	own_company         TEXT NOT NULL,
	platform            TEXT NOT NULL,
	coordinated_company TEXT NOT NULL,
	started_at          DATETIME NOT NULL,
	evidence_root       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_schedules_tenant ON schedules(own_company, enabled);
CREATE INDEX IF NOT EXISTS idx_run_index_started ON run_index(started_at);
`

// Open creates or opens a SQLite database at dbPath and ensures the
// schema exists (grounded on the teacher's internal/store.Open, which
// applies the same WAL + busy_timeout pragmas).
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dbPath, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// UpsertSchedule inserts or replaces a schedule row.
func (s *Store) UpsertSchedule(sched model.Schedule) error {
	_, err := s.db.Exec(`
		INSERT INTO schedules (schedule_id, enabled, plan_id, cadence, at_time, weekday, own_company, platform, coordinated_company, last_run_id, last_run_at, last_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(schedule_id) DO UPDATE SET
			enabled=excluded.enabled, plan_id=excluded.plan_id, cadence=excluded.cadence,
			at_time=excluded.at_time, weekday=excluded.weekday, own_company=excluded.own_company,
			platform=excluded.platform, coordinated_company=excluded.coordinated_company`,
		sched.ScheduleID, boolToInt(sched.Enabled), sched.PlanID, string(sched.Cadence), sched.AtTime, sched.Weekday,
		sched.OwnCompany, sched.Platform, sched.CoordinatedCompany, sched.LastRunID, nullableTime(sched.LastRunAt), sched.LastStatus)
	if err != nil {
		return fmt.Errorf("store: upsert schedule %s: %w", sched.ScheduleID, err)
	}
	return nil
}

// ListEnabledSchedules returns every enabled schedule for ownCompany.
func (s *Store) ListEnabledSchedules(ownCompany string) ([]model.Schedule, error) {
	rows, err := s.db.Query(`
		SELECT schedule_id, enabled, plan_id, cadence, at_time, weekday, own_company, platform, coordinated_company, last_run_id, last_run_at, last_status
		FROM schedules WHERE own_company = ? AND enabled = 1`, ownCompany)
	if err != nil {
		return nil, fmt.Errorf("store: list schedules for %s: %w", ownCompany, err)
	}
	defer rows.Close()

	var out []model.Schedule
	for rows.Next() {
		var sched model.Schedule
		var enabled int
		var lastRunAt sql.NullTime
		if err := rows.Scan(&sched.ScheduleID, &enabled, &sched.PlanID, &sched.Cadence, &sched.AtTime, &sched.Weekday,
			&sched.OwnCompany, &sched.Platform, &sched.CoordinatedCompany, &sched.LastRunID, &lastRunAt, &sched.LastStatus); err != nil {
			return nil, fmt.Errorf("store: scan schedule: %w", err)
		}
		sched.Enabled = enabled != 0
		if lastRunAt.Valid {
			sched.LastRunAt = lastRunAt.Time
		}
		out = append(out, sched)
	}
	return out, rows.Err()
}

// RecordRunOutcome persists a schedule's last_run_id/last_run_at/last_status.
func (s *Store) RecordRunOutcome(scheduleID, runID string, runAt time.Time, status string) error {
	_, err := s.db.Exec(`UPDATE schedules SET last_run_id=?, last_run_at=?, last_status=? WHERE schedule_id=?`,
		runID, runAt, status, scheduleID)
	if err != nil {
		return fmt.Errorf("store: record run outcome for %s: %w", scheduleID, err)
	}
	return nil
}

// AcquireExecutionLock inserts a lock row for tenantKey, failing if one
// already exists (spec §5: "Schedule ticks acquire a per-tenant
// execution lock that prevents two concurrent runs against the same
// coordination triplet").
func (s *Store) AcquireExecutionLock(tenantKey, lockedBy string, now time.Time) (bool, error) {
	_, err := s.db.Exec(`INSERT INTO execution_locks (tenant_key, locked_at, locked_by) VALUES (?, ?, ?)`, tenantKey, now, lockedBy)
	if err != nil {
		// Unique constraint violation means another run already holds the lock.
		return false, nil
	}
	return true, nil
}

// ReleaseExecutionLock removes tenantKey's lock row.
func (s *Store) ReleaseExecutionLock(tenantKey string) error {
	_, err := s.db.Exec(`DELETE FROM execution_locks WHERE tenant_key = ?`, tenantKey)
	if err != nil {
		return fmt.Errorf("store: release lock %s: %w", tenantKey, err)
	}
	return nil
}

// RecordRun inserts a row into the run index.
func (s *Store) RecordRun(runID, ownCompany, platform, coordinatedCompany, evidenceRoot string, startedAt time.Time) error {
	_, err := s.db.Exec(`INSERT INTO run_index (run_id, own_company, platform, coordinated_company, started_at, evidence_root) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, ownCompany, platform, coordinatedCompany, startedAt, evidenceRoot)
	if err != nil {
		return fmt.Errorf("store: record run %s: %w", runID, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
