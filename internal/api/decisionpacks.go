package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cometlocal/cometlocal/internal/atomicfile"
	"github.com/cometlocal/cometlocal/internal/cometerr"
	"github.com/cometlocal/cometlocal/internal/model"
	"github.com/cometlocal/cometlocal/internal/repository"
	"github.com/cometlocal/cometlocal/internal/tenant"
)

// handlePlanSubroutes dispatches the /api/plans/ subtree that isn't
// already claimed by an exact route: currently just
// /api/plans/{plan_id}/decision_packs.
func (s *Server) handlePlanSubroutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/plans/"), "/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "decision_packs" {
		writeError(w, http.StatusNotFound, "not_found", "unknown plan route")
		return
	}
	s.handleCreateDecisionPack(w, r, parts[0])
}

// handleCreateDecisionPack creates a DecisionPack for planID with a
// stable id (spec §6: "create pack; stable id"). A FORCE_UPLOAD
// decision's chosen_file_path must resolve under the repository root
// (spec §3 "DecisionPack" invariant).
func (s *Server) handleCreateDecisionPack(w http.ResponseWriter, r *http.Request, planID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}

	var body struct {
		Decisions []model.PackDecision `json:"decisions"`
		DecidedBy string               `json:"decided_by"`
	}
	if r.Body != nil {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, cometCodeBadRequest, "could not parse decision pack body")
			return
		}
	}

	cfg := s.cfgManager.Get()
	repo, err := repository.Open(tenant.RepositoryRoot(cfg.General.DataDir))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "readonly_compute_failed", "could not open document repository")
		return
	}

	for _, d := range body.Decisions {
		if d.Action == model.ActionForceUpload && d.ChosenFilePath != "" {
			ok, err := repo.ContainsPath(d.ChosenFilePath)
			if err != nil || !ok {
				writeError(w, http.StatusBadRequest, cometerr.CodeForceUploadPathOutsideRepository, "chosen_file_path must lie under the repository root")
				return
			}
		}
	}

	pack := model.DecisionPack{
		DecisionPackID: decisionPackID(planID, body.Decisions),
		PlanID:         planID,
		Decisions:      body.Decisions,
		DecidedBy:      body.DecidedBy,
		DecidedAt:      time.Now(),
	}

	dir := filepath.Join(tenant.RunRoot(cfg.General.DataDir, planID), "decision_packs")
	path := filepath.Join(dir, pack.DecisionPackID+".json")

	if existing, err := loadDecisionPack(cfg.General.DataDir, planID, pack.DecisionPackID); err == nil {
		writeJSON(w, existing)
		return
	}

	data, err := json.MarshalIndent(pack, "", "  ")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "readonly_compute_failed", "could not encode decision pack")
		return
	}
	if err := atomicfile.Write(path, data, 0o644); err != nil {
		writeError(w, http.StatusInternalServerError, "readonly_compute_failed", "could not persist decision pack")
		return
	}

	writeJSON(w, pack)
}

// decisionPackID computes a deterministic SHA-256 hex digest over the
// canonical decisions plus plan_id, the same way planbuilder.Checksum
// hashes a plan (spec §3: "hash of canonical decisions + plan_id;
// excludes decided_by/decided_at for stability"). Two identical POSTs
// therefore yield the same id and the same file.
func decisionPackID(planID string, decisions []model.PackDecision) string {
	sorted := make([]model.PackDecision, len(decisions))
	copy(sorted, decisions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ItemID < sorted[j].ItemID })

	payload, err := json.Marshal(struct {
		PlanID    string               `json:"plan_id"`
		Decisions []model.PackDecision `json:"decisions"`
	}{PlanID: planID, Decisions: sorted})
	if err != nil {
		payload = []byte(planID)
	}

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// loadDecisionPack reads a previously created decision pack for planID.
func loadDecisionPack(dataDir, planID, decisionPackID string) (model.DecisionPack, error) {
	var pack model.DecisionPack
	path := filepath.Join(tenant.RunRoot(dataDir, planID), "decision_packs", decisionPackID+".json")
	data, err := readFile(path)
	if err != nil {
		return pack, err
	}
	if err := json.Unmarshal(data, &pack); err != nil {
		return pack, err
	}
	return pack, nil
}
