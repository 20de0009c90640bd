// Package schedulerx evaluates recurring execute-plan triggers and
// guards them with a per-tenant execution lock (spec §4.14).
package schedulerx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron"

	"github.com/cometlocal/cometlocal/internal/model"
)

// BuildCronSchedule turns a Schedule's at_time/weekday into a
// robfig/cron Schedule so due-ness can be derived from the library's
// own occurrence arithmetic rather than hand-rolled date math.
func BuildCronSchedule(sched model.Schedule) (cron.Schedule, error) {
	hour, minute, err := parseAtTime(sched.AtTime)
	if err != nil {
		return nil, err
	}

	var spec string
	switch sched.Cadence {
	case model.CadenceDaily:
		spec = fmt.Sprintf("0 %d %d * * *", minute, hour)
	case model.CadenceWeekly:
		if sched.Weekday < 0 || sched.Weekday > 6 {
			return nil, fmt.Errorf("schedulerx: weekday %d out of range [0,6]", sched.Weekday)
		}
		spec = fmt.Sprintf("0 %d %d * * %d", minute, hour, sched.Weekday)
	default:
		return nil, fmt.Errorf("schedulerx: unknown cadence %q", sched.Cadence)
	}

	parsed, err := cron.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("schedulerx: parse cron spec %q: %w", spec, err)
	}
	return parsed, nil
}

func parseAtTime(atTime string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", atTime)
	if err != nil {
		return 0, 0, fmt.Errorf("schedulerx: invalid at_time %q: %w", atTime, err)
	}
	return t.Hour(), t.Minute(), nil
}

// ShouldExecuteNow implements spec §4.14's due-ness predicate: the
// cadence's most recent scheduled occurrence on or before now must fall
// on now's calendar day and be after the schedule's last_run_at.
func ShouldExecuteNow(now time.Time, sched model.Schedule, lastRunAt time.Time) (bool, error) {
	schedule, err := BuildCronSchedule(sched)
	if err != nil {
		return false, err
	}

	var lookback time.Duration
	switch sched.Cadence {
	case model.CadenceDaily:
		lookback = 24 * time.Hour
	case model.CadenceWeekly:
		lookback = 7 * 24 * time.Hour
	}

	occurrence := schedule.Next(now.Add(-lookback))
	if occurrence.After(now) {
		return false, nil
	}
	if occurrence.Format("2006-01-02") != now.Format("2006-01-02") {
		return false, nil
	}
	return lastRunAt.Before(occurrence), nil
}

// Locker is the capability surface ShouldExecuteNow's caller needs to
// serialize schedule ticks against the persistence layer.
type Locker interface {
	AcquireExecutionLock(tenantKey, lockedBy string, now time.Time) (bool, error)
	ReleaseExecutionLock(tenantKey string) error
}

// Runner kicks off an execute-plan run for a due schedule and reports
// its run_id and terminal status.
type Runner interface {
	Run(ctx context.Context, sched model.Schedule) (runID string, status string, err error)
}

// Outcome records what Tick did for one tenant.
type Outcome struct {
	ScheduleID string
	RunID      string
	Status     string
	Skipped    bool
	SkipReason string
}

// Tick evaluates every enabled schedule for ownCompany and kicks off
// an execute-plan run for each one that is due, serialized by a
// tenant-scoped execution lock per coordination triplet (spec §4.14, §5).
func Tick(ctx context.Context, now time.Time, schedules []model.Schedule, locker Locker, runner Runner, workerID string, logger *slog.Logger) []Outcome {
	outcomes := make([]Outcome, 0, len(schedules))

	for _, sched := range schedules {
		due, err := ShouldExecuteNow(now, sched, sched.LastRunAt)
		if err != nil {
			if logger != nil {
				logger.Error("schedulerx: failed to evaluate due-ness", "schedule_id", sched.ScheduleID, "error", err)
			}
			outcomes = append(outcomes, Outcome{ScheduleID: sched.ScheduleID, Skipped: true, SkipReason: "evaluation_error"})
			continue
		}
		if !due {
			outcomes = append(outcomes, Outcome{ScheduleID: sched.ScheduleID, Skipped: true, SkipReason: "not_due"})
			continue
		}

		tenantKey := sched.OwnCompany + "|" + sched.Platform + "|" + sched.CoordinatedCompany
		acquired, err := locker.AcquireExecutionLock(tenantKey, workerID, now)
		if err != nil {
			outcomes = append(outcomes, Outcome{ScheduleID: sched.ScheduleID, Skipped: true, SkipReason: "lock_error"})
			continue
		}
		if !acquired {
			outcomes = append(outcomes, Outcome{ScheduleID: sched.ScheduleID, Skipped: true, SkipReason: "lock_held"})
			continue
		}

		runID, status, err := runner.Run(ctx, sched)
		releaseErr := locker.ReleaseExecutionLock(tenantKey)
		if releaseErr != nil && logger != nil {
			logger.Warn("schedulerx: failed to release execution lock", "tenant_key", tenantKey, "error", releaseErr)
		}
		if err != nil {
			if logger != nil {
				logger.Error("schedulerx: run failed", "schedule_id", sched.ScheduleID, "error", err)
			}
			outcomes = append(outcomes, Outcome{ScheduleID: sched.ScheduleID, RunID: runID, Status: "failed"})
			continue
		}

		outcomes = append(outcomes, Outcome{ScheduleID: sched.ScheduleID, RunID: runID, Status: status})
	}

	return outcomes
}
