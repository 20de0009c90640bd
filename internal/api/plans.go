package api

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/cometlocal/cometlocal/internal/atomicfile"
	"github.com/cometlocal/cometlocal/internal/guardrail"
	"github.com/cometlocal/cometlocal/internal/model"
	"github.com/cometlocal/cometlocal/internal/planbuilder"
	"github.com/cometlocal/cometlocal/internal/repository"
	"github.com/cometlocal/cometlocal/internal/tenant"
)

func decodeBuildRequest(r *http.Request) (PlanBuildRequest, error) {
	var req PlanBuildRequest
	if r.Body == nil {
		return req, nil
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != "EOF" {
		return req, err
	}
	return req, nil
}

func pendingRequirementsOf(items []model.PlanItem) []model.PendingRequirement {
	out := make([]model.PendingRequirement, 0, len(items))
	for _, it := range items {
		out = append(out, it.PendingRef)
	}
	return out
}

// writeBuildError surfaces a Plan Builder failure per spec §4.9: never
// an HTTP 500, always the structured {status, error_code, message,
// details, items, diagnostics, run_id} contract with items as an
// empty array and run_id null.
func writeBuildError(w http.ResponseWriter, resp planbuilder.ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// handleBuildPlanReadonly implements the Plan Builder's in-memory mode
// (spec §4.9): scrape, match, decide, return a value. Touches no
// persistent run directory.
func (s *Server) handleBuildPlanReadonly(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}
	req, err := decodeBuildRequest(r)
	if err != nil {
		writeBuildError(w, planbuilder.NewErrorResponse(cometCodeBadRequest, "could not parse request body", nil))
		return
	}

	cfg := s.cfgManager.Get()
	repo, err := repository.Open(tenant.RepositoryRoot(cfg.General.DataDir))
	if err != nil {
		writeBuildError(w, planbuilder.NewErrorResponse("readonly_compute_failed", "could not open document repository", nil))
		return
	}

	runID := uuid.NewString()
	outcome, structuredErr := s.scrapeAndMatch(r.Context(), runID, req, "", repo)
	if structuredErr != nil {
		writeBuildError(w, planbuilder.FromStructuredErr(structuredErr))
		return
	}

	plan := planbuilder.Build(runID, outcome.Items)
	writeJSON(w, planbuilder.BuildResult{
		Plan:         plan,
		Summary:      outcome.Counts,
		PendingItems: pendingRequirementsOf(outcome.Items),
		Diagnostics:  outcome.Diagnostics,
		RunID:        runID,
	})
}

const cometCodeBadRequest = "bad_request"

// handleBuildPlanPersistent implements the Plan Builder's persistent
// mode (spec §4.9): same flow, but materializes
// data/runs/<run_id>/{evidence,execution}/ and the plan/checksum/
// confirm-token artifacts.
func (s *Server) handleBuildPlanPersistent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}
	req, err := decodeBuildRequest(r)
	if err != nil {
		writeBuildError(w, planbuilder.NewErrorResponse(cometCodeBadRequest, "could not parse request body", nil))
		return
	}

	coord, _ := guardrail.FromContext(r.Context())
	cfg := s.cfgManager.Get()

	repo, err := repository.Open(tenant.RepositoryRoot(cfg.General.DataDir))
	if err != nil {
		writeBuildError(w, planbuilder.NewErrorResponse("readonly_compute_failed", "could not open document repository", nil))
		return
	}

	runID := uuid.NewString()
	runRoot := tenant.RunRoot(cfg.General.DataDir, runID)
	evidenceDir := filepath.Join(runRoot, "evidence")
	executionDir := filepath.Join(runRoot, "execution")
	if err := os.MkdirAll(executionDir, 0o755); err != nil {
		writeBuildError(w, planbuilder.NewErrorResponse("readonly_compute_failed", "could not create run directory", nil))
		return
	}

	startedAt := time.Now()
	outcome, structuredErr := s.scrapeAndMatch(r.Context(), runID, req, evidenceDir, repo)
	if structuredErr != nil {
		writeBuildError(w, planbuilder.FromStructuredErr(structuredErr))
		return
	}

	plan := planbuilder.Build(runID, outcome.Items)
	checksum := planbuilder.Checksum(plan)

	secret, err := cfg.ConfirmSecret()
	if err != nil {
		writeBuildError(w, planbuilder.NewErrorResponse("readonly_compute_failed", "confirm secret is not configured", nil))
		return
	}
	planMeta := planbuilder.BuildPlanMeta(runID, secret, checksum, time.Now())

	if err := writeRunArtifacts(runRoot, plan, planMeta, outcome); err != nil {
		writeBuildError(w, planbuilder.NewErrorResponse("readonly_compute_failed", "could not persist run artifacts", nil))
		return
	}

	if err := s.store.RecordRun(runID, coord.OwnCompany, coord.Platform, coord.CoordinatedCompany, evidenceDir, startedAt); err != nil {
		s.logger.Warn("api: could not record run in index", "run_id", runID, "error", err)
	}

	writeJSON(w, planbuilder.BuildResult{
		Plan:         plan,
		Summary:      outcome.Counts,
		PendingItems: pendingRequirementsOf(outcome.Items),
		Diagnostics:  outcome.Diagnostics,
		RunID:        runID,
	})
}

// writeRunArtifacts persists every on-disk artifact a persistent build
// leaves behind (spec §6): plan.json, plan_meta.json, match_results.json,
// submission_plan.json, and storage_state.json.
func writeRunArtifacts(runRoot string, plan model.Plan, meta model.PlanMeta, outcome scrapeOutcome) error {
	planJSON, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return err
	}
	if err := atomicfile.Write(filepath.Join(runRoot, "plan.json"), planJSON, 0o644); err != nil {
		return err
	}

	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	if err := atomicfile.Write(filepath.Join(runRoot, "plan_meta.json"), metaJSON, 0o644); err != nil {
		return err
	}

	itemsJSON, err := json.MarshalIndent(outcome.Items, "", "  ")
	if err != nil {
		return err
	}
	if err := atomicfile.Write(filepath.Join(runRoot, "match_results.json"), itemsJSON, 0o644); err != nil {
		return err
	}
	if err := atomicfile.Write(filepath.Join(runRoot, "submission_plan.json"), itemsJSON, 0o644); err != nil {
		return err
	}

	if len(outcome.StorageState) > 0 {
		if err := atomicfile.Write(filepath.Join(runRoot, "storage_state.json"), outcome.StorageState, 0o644); err != nil {
			return err
		}
	}

	return nil
}
