package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"go.temporal.io/sdk/client"

	"github.com/cometlocal/cometlocal/internal/cometerr"
	"github.com/cometlocal/cometlocal/internal/execflow"
	"github.com/cometlocal/cometlocal/internal/guardrail"
	"github.com/cometlocal/cometlocal/internal/model"
	"github.com/cometlocal/cometlocal/internal/overlay"
	"github.com/cometlocal/cometlocal/internal/runsummary"
	"github.com/cometlocal/cometlocal/internal/tenant"
)

// executeRequest is the body both execution endpoints accept.
// DecisionPackID is optional: execute_plan_headful runs the plan's own
// frozen decisions, while /api/runs/auto_upload/execute additionally
// accepts one to overlay first (spec §6: "accepts
// {plan_id, decision_pack_id?}").
type executeRequest struct {
	PlanID          string `json:"plan_id"`
	DecisionPackID  string `json:"decision_pack_id,omitempty"`
	ConfirmToken    string `json:"confirm_token"`
	AllowlistTypeID string `json:"allowlist_type_id"`
}

func decodeExecuteRequest(r *http.Request) (executeRequest, error) {
	var req executeRequest
	if r.Body == nil {
		return req, nil
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, err
	}
	return req, nil
}

// handleExecutePlanHeadful implements spec §6's guardrailed
// `execute_plan_headful`: execute exactly one item, the plan's own
// frozen decision (no overlay).
func (s *Server) handleExecutePlanHeadful(w http.ResponseWriter, r *http.Request) {
	req, err := decodeExecuteRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, cometCodeBadRequest, "could not parse request body")
		return
	}
	s.handleExecuteHTTP(w, r, req, "")
}

// handleAutoUploadExecute implements spec §6's
// `POST /api/runs/auto_upload/execute`: {plan_id, decision_pack_id?}.
func (s *Server) handleAutoUploadExecute(w http.ResponseWriter, r *http.Request) {
	req, err := decodeExecuteRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, cometCodeBadRequest, "could not parse request body")
		return
	}
	s.handleExecuteHTTP(w, r, req, req.DecisionPackID)
}

// executeParams is everything executePlan needs, gathered either from
// an HTTP request (manual confirm token, allowlist header) or from a
// stored Schedule (own-issued confirm token, spec §4.14).
type executeParams struct {
	PlanID             string
	DecisionPackID     string
	ConfirmToken       string
	AllowlistTypeID    string
	RealUploaderHeader bool
	OwnCompany         string
	Platform           string
	CoordinatedCompany string
}

// handleExecuteHTTP adapts one HTTP request into executeParams, runs
// the shared core, and writes the HTTP response.
func (s *Server) handleExecuteHTTP(w http.ResponseWriter, r *http.Request, req executeRequest, decisionPackID string) {
	if req.PlanID == "" {
		writeError(w, http.StatusBadRequest, cometCodeBadRequest, "plan_id is required")
		return
	}
	coord, _ := guardrail.FromContext(r.Context())

	outcome, structuredErr := s.executePlan(r.Context(), executeParams{
		PlanID:             req.PlanID,
		DecisionPackID:     decisionPackID,
		ConfirmToken:       req.ConfirmToken,
		AllowlistTypeID:    req.AllowlistTypeID,
		RealUploaderHeader: r.Header.Get("X-USE-REAL-UPLOADER") == "1",
		OwnCompany:         coord.OwnCompany,
		Platform:           coord.Platform,
		CoordinatedCompany: coord.CoordinatedCompany,
	})
	if structuredErr != nil {
		writeError(w, structuredErr.status, structuredErr.ErrorCode, structuredErr.Message)
		return
	}
	writeJSON(w, outcome)
}

// executionError pairs a cometerr.Structured with the HTTP status it
// should surface as, since executePlan itself is transport-agnostic
// (also called from the schedule tick runner, which has no response
// writer to carry a status on).
type executionError struct {
	*cometerr.Structured
	status int
}

// executePlan is the shared core behind both execution endpoints and
// the schedule tick runner: load the frozen plan, apply an optional
// overlay, run every hard guardrail (spec §4.11), then drive the
// Executor workflow for the plan's single AUTO_UPLOAD item. A run
// summary is always written, win or lose, once execution starts.
func (s *Server) executePlan(ctx context.Context, p executeParams) (execflow.Outcome, *executionError) {
	cfg := s.cfgManager.Get()

	plan, err := loadPlan(cfg.General.DataDir, p.PlanID)
	if err != nil {
		return execflow.Outcome{}, &executionError{cometerr.New(cometerr.CodePlanNotFound, "plan not found"), http.StatusNotFound}
	}
	planMeta, err := loadPlanMeta(cfg.General.DataDir, p.PlanID)
	if err != nil {
		return execflow.Outcome{}, &executionError{cometerr.New(cometerr.CodePlanNotFound, "plan metadata not found"), http.StatusNotFound}
	}

	var pack *model.DecisionPack
	if p.DecisionPackID != "" {
		loaded, err := loadDecisionPack(cfg.General.DataDir, p.PlanID, p.DecisionPackID)
		if err != nil {
			return execflow.Outcome{}, &executionError{cometerr.New("not_found", "decision pack not found"), http.StatusNotFound}
		}
		pack = &loaded
	}
	effectivePlan := overlay.Apply(plan, pack)

	runRoot := tenant.RunRoot(cfg.General.DataDir, p.PlanID)
	secret, err := cfg.ConfirmSecret()
	if err != nil {
		return execflow.Outcome{}, &executionError{cometerr.New("readonly_compute_failed", "confirm secret is not configured"), http.StatusInternalServerError}
	}

	gc := execflow.GuardrailContext{
		Environment:        cfg.General.Environment,
		RealUploaderHeader: p.RealUploaderHeader,
		MaxUploads:         cfg.Guardrail.MaxUploads,
		AllowlistTypeIDs:   []string{p.AllowlistTypeID},
		ConfirmSecret:      secret,
		Checksum:           planMeta.Checksum,
		ConfirmToken:       p.ConfirmToken,
		StorageStatePath:   filepath.Join(runRoot, "storage_state.json"),
		Plan:               effectivePlan,
	}
	if err := execflow.CheckGuardrails(gc, time.Now()); err != nil {
		if structured, ok := err.(*cometerr.Structured); ok {
			return execflow.Outcome{}, &executionError{structured, http.StatusBadRequest}
		}
		return execflow.Outcome{}, &executionError{cometerr.New(cometerr.CodeRealUploadGuardrailViolation, err.Error()), http.StatusBadRequest}
	}

	item, ok := execflow.AutoUploadItem(effectivePlan)
	if !ok {
		return execflow.Outcome{}, &executionError{cometerr.New(cometerr.CodeNoAutoUploadItem, "plan carries no single AUTO_UPLOAD item to execute"), http.StatusBadRequest}
	}

	if s.temporal == nil {
		return execflow.Outcome{}, &executionError{cometerr.New(cometerr.CodeTemporalUnavailable, "temporal worker is not reachable"), http.StatusServiceUnavailable}
	}

	evidenceDir := filepath.Join(runRoot, "evidence")
	executionDir := filepath.Join(runRoot, "execution")
	startedAt := time.Now()

	execReq := execflow.Request{
		RunID:            p.PlanID,
		Item:             item,
		StorageStatePath: gc.StorageStatePath,
		EvidenceDir:      evidenceDir,
		ExecutionDir:     executionDir,
		MaxSearchPages:   cfg.Browser.MaxSearchPages,
	}

	outcome, runErr := s.executeWorkflow(ctx, p.PlanID, item.ItemID, execReq)

	finishedAt := time.Now()
	summary := model.RunSummary{
		RunID:              p.PlanID,
		OwnCompany:         p.OwnCompany,
		Platform:           p.Platform,
		CoordinatedCompany: p.CoordinatedCompany,
		PersonKey:          item.PendingRef.PersonKey,
		StartedAt:          startedAt,
		FinishedAt:         finishedAt,
		Counts:             model.RunCounts{PendingTotal: len(effectivePlan.Items)},
		Execution:          execCounts(outcome),
		Errors:             outcome.Errors,
		EvidenceRoot:       evidenceDir,
		EvidencePaths:      runsummary.EvidencePaths(evidenceDir),
	}
	if werr := runsummary.Write(runRoot, summary); werr != nil {
		s.logger.Error("api: could not write run summary", "run_id", p.PlanID, "error", werr)
	}
	if werr := runsummary.WriteFinished(runRoot, finishedAt, runErr == nil && outcome.Success); werr != nil {
		s.logger.Error("api: could not write run finished marker", "run_id", p.PlanID, "error", werr)
	}

	if runErr != nil {
		return outcome, &executionError{cometerr.New("execution_failed", runErr.Error()), http.StatusUnprocessableEntity}
	}
	return outcome, nil
}

func execCounts(outcome execflow.Outcome) model.ExecutionCounts {
	counts := model.ExecutionCounts{Attempted: 1}
	if outcome.Success {
		counts.Success = 1
	} else {
		counts.Failed = 1
	}
	return counts
}

// executeWorkflow starts and waits for the Executor's Temporal
// workflow for one plan item (spec §4.11).
func (s *Server) executeWorkflow(ctx context.Context, planID, itemID string, req execflow.Request) (execflow.Outcome, error) {
	opts := client.StartWorkflowOptions{
		ID:        fmt.Sprintf("cometlocal-execute-%s-%s", planID, itemID),
		TaskQueue: execflow.TaskQueue,
	}
	run, err := s.temporal.ExecuteWorkflow(ctx, opts, execflow.ExecutePlanItemWorkflow, req)
	if err != nil {
		return execflow.Outcome{}, fmt.Errorf("api: start executor workflow: %w", err)
	}
	var outcome execflow.Outcome
	if err := run.Get(ctx, &outcome); err != nil {
		return outcome, fmt.Errorf("api: executor workflow failed: %w", err)
	}
	return outcome, nil
}
