package api

import (
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/cometlocal/cometlocal/internal/model"
	"github.com/cometlocal/cometlocal/internal/runsummary"
)

const defaultRunSummaryLimit = 50

// handleRunsSummary implements spec §4.13/§6's
// `GET /api/runs/summary?limit=&platform=`.
func (s *Server) handleRunsSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET required")
		return
	}

	limit := defaultRunSummaryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, cometCodeBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	cfg := s.cfgManager.Get()
	runsRoot := filepath.Join(cfg.General.DataDir, "runs")
	summaries, err := runsummary.List(runsRoot, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "readonly_compute_failed", "could not list run summaries")
		return
	}

	if platform := r.URL.Query().Get("platform"); platform != "" {
		summaries = filterByPlatform(summaries, platform)
	}

	writeJSON(w, map[string]any{"runs": summaries})
}

func filterByPlatform(summaries []model.RunSummary, platform string) []model.RunSummary {
	out := make([]model.RunSummary, 0, len(summaries))
	for _, s := range summaries {
		if s.Platform == platform {
			out = append(out, s)
		}
	}
	return out
}
