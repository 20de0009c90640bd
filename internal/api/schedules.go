package api

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/cometlocal/cometlocal/internal/model"
	"github.com/cometlocal/cometlocal/internal/planbuilder"
	"github.com/cometlocal/cometlocal/internal/schedulerx"
)

// scheduleTickAPIKeyEnv names the environment variable guarding
// /api/schedules/tick outside development: schedule ticks fire
// automated, unattended executions, so anything but dev requires a
// shared secret rather than relying on the coordination headers alone.
const scheduleTickAPIKeyEnv = "SCHEDULE_TICK_API_KEY"

// handleSchedulesTick implements spec §4.14/§6's
// `POST /api/schedules/tick`: evaluate every enabled schedule for the
// requesting tenant and kick off whichever ones are due.
func (s *Server) handleSchedulesTick(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}

	cfg := s.cfgManager.Get()
	if cfg.General.Environment != "dev" {
		want := os.Getenv(scheduleTickAPIKeyEnv)
		if want == "" || r.Header.Get("X-Schedule-Tick-Key") != want {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid schedule tick key")
			return
		}
	}

	ownCompany := r.URL.Query().Get("own_company")
	if ownCompany == "" {
		writeError(w, http.StatusBadRequest, cometCodeBadRequest, "own_company query parameter is required")
		return
	}

	schedules, err := s.store.ListEnabledSchedules(ownCompany)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "readonly_compute_failed", "could not list enabled schedules")
		return
	}

	runner := &scheduleRunner{server: s}
	outcomes := schedulerx.Tick(r.Context(), nowFn(), schedules, s.store, runner, "api", s.logger)

	for _, o := range outcomes {
		if o.Skipped {
			continue
		}
		if err := s.store.RecordRunOutcome(o.ScheduleID, o.RunID, nowFn(), o.Status); err != nil {
			s.logger.Warn("api: could not record schedule run outcome", "schedule_id", o.ScheduleID, "error", err)
		}
	}

	writeJSON(w, map[string]any{"outcomes": outcomes})
}

// nowFn is wall-clock time throughout; a named function rather than a
// bare time.Now() call so call sites read the same whether they're
// timing a tick or an individual schedule run.
func nowFn() time.Time { return time.Now() }

// scheduleRunner adapts a due Schedule into one guardrailed execution
// of its already-built, already-confirmed plan (spec §4.14: scheduled
// runs carry their own issued confirm token rather than a human one).
type scheduleRunner struct {
	server *Server
}

func (rn *scheduleRunner) Run(ctx context.Context, sched model.Schedule) (string, string, error) {
	cfg := rn.server.cfgManager.Get()

	planMeta, err := loadPlanMeta(cfg.General.DataDir, sched.PlanID)
	if err != nil {
		return "", "failed", err
	}
	secret, err := cfg.ConfirmSecret()
	if err != nil {
		return "", "failed", err
	}
	token := planbuilder.IssueConfirmToken(secret, planMeta.Checksum, nowFn())

	allowlist := ""
	if plan, err := loadPlan(cfg.General.DataDir, sched.PlanID); err == nil {
		if item, ok := autoUploadTypeID(plan); ok {
			allowlist = item
		}
	}

	outcome, execErr := rn.server.executePlan(ctx, executeParams{
		PlanID:             sched.PlanID,
		ConfirmToken:       token,
		AllowlistTypeID:    allowlist,
		RealUploaderHeader: true,
		OwnCompany:         sched.OwnCompany,
		Platform:           sched.Platform,
		CoordinatedCompany: sched.CoordinatedCompany,
	})
	if execErr != nil {
		return sched.PlanID, "failed", execErr
	}
	status := "failed"
	if outcome.Success {
		status = "success"
	}
	return sched.PlanID, status, nil
}

func autoUploadTypeID(plan model.Plan) (string, bool) {
	for _, item := range plan.Items {
		if item.Decision == model.DecisionAutoUpload && item.MatchedDoc != nil {
			return item.MatchedDoc.TypeID, true
		}
	}
	return "", false
}
