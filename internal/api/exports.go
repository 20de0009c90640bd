package api

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cometlocal/cometlocal/internal/guardrail"
	"github.com/cometlocal/cometlocal/internal/tenant"
)

type createExportRequest struct {
	Period string `json:"period"`
}

// handleCreateExport builds the CAE export ZIP (spec §6) with
// README.md, summary.json, plans/<run_id>.json,
// plans/<run_id>/decision_packs/*, uploads/<run_id>/* (the run's
// execution/ files) and logs/<run_id>_run_summary.json. No
// matching_debug/* or metrics/* entries are written.
// Registers the resulting path under a process-local export_id
// (spec §5).
func (s *Server) handleCreateExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}
	coord, ok := guardrail.FromContext(r.Context())
	if !ok || coord.OwnCompany == "" {
		writeError(w, http.StatusBadRequest, "missing_coordination_context", "own_company coordination header is required")
		return
	}

	var body createExportRequest
	if r.Body != nil {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
			writeError(w, http.StatusBadRequest, cometCodeBadRequest, "could not parse export request body")
			return
		}
	}
	if body.Period == "" {
		writeError(w, http.StatusBadRequest, cometCodeBadRequest, "period is required")
		return
	}

	cfg := s.cfgManager.Get()
	paths, err := tenant.Resolve(cfg.General.DataDir, coord.OwnCompany)
	if err != nil {
		writeError(w, http.StatusBadRequest, cometCodeBadRequest, err.Error())
		return
	}

	path := paths.ExportPath(coord.OwnCompany, body.Period, time.Now().Unix())
	if err := writeExportArchive(path, cfg.General.DataDir, coord.OwnCompany, body.Period); err != nil {
		writeError(w, http.StatusInternalServerError, "readonly_compute_failed", "could not build export archive")
		return
	}

	exportID := uuid.NewString()
	s.exportsMu.Lock()
	s.exports[exportID] = path
	s.exportsMu.Unlock()

	writeJSON(w, map[string]string{"export_id": exportID, "path": path})
}

// handleExportDownload serves a previously created export. Open
// question #3: authorization is a same-tenant header check only (the
// requesting X-Coordination-Own-Company must match the company baked
// into the export's file name); no signed-URL scheme is implemented,
// a documented limitation (spec §5's "a reimplementation may want to
// add one").
func (s *Server) handleExportDownload(w http.ResponseWriter, r *http.Request) {
	exportID := strings.TrimPrefix(r.URL.Path, "/api/exports/")
	if exportID == "" {
		writeError(w, http.StatusNotFound, "not_found", "export_id is required")
		return
	}

	s.exportsMu.Lock()
	path, found := s.exports[exportID]
	s.exportsMu.Unlock()
	if !found {
		writeError(w, http.StatusNotFound, "not_found", "unknown export_id")
		return
	}

	coord, _ := guardrail.FromContext(r.Context())
	if coord.OwnCompany == "" || !strings.Contains(filepath.Base(path), "_"+coord.OwnCompany+"_") {
		writeError(w, http.StatusForbidden, "forbidden", "export does not belong to the requesting tenant")
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeFile(w, r, path)
}

// writeExportArchive walks the tenant's run and repository artifacts
// for period and packages them into the CAE export ZIP layout.
func writeExportArchive(destPath, dataDir, ownCompany, period string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("api: create export directory: %w", err)
	}
	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("api: create export archive: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	defer zw.Close()

	readme := fmt.Sprintf("CAE export for %s, period %s.\nGenerated %s.\n", ownCompany, period, time.Now().UTC().Format(time.RFC3339))
	if err := writeZipEntry(zw, "README.md", []byte(readme)); err != nil {
		return err
	}

	summary := fmt.Sprintf(`{"own_company":%q,"period":%q}`, ownCompany, period)
	if err := writeZipEntry(zw, "summary.json", []byte(summary)); err != nil {
		return err
	}

	runsRoot := filepath.Join(dataDir, "runs")
	entries, err := os.ReadDir(runsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("api: list runs: %w", err)
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		runID := e.Name()
		runRoot := filepath.Join(runsRoot, runID)

		addFileIfExists(zw, filepath.Join(runRoot, "plan.json"), fmt.Sprintf("plans/%s.json", runID))
		addFileIfExists(zw, filepath.Join(runRoot, "run_summary.json"), fmt.Sprintf("logs/%s_run_summary.json", runID))

		packsDir := filepath.Join(runRoot, "decision_packs")
		copyDirIntoZip(zw, packsDir, fmt.Sprintf("plans/%s/decision_packs", runID))

		uploadsDir := filepath.Join(runRoot, "execution")
		copyDirIntoZip(zw, uploadsDir, fmt.Sprintf("uploads/%s", runID))
	}

	return nil
}

func writeZipEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("api: create zip entry %s: %w", name, err)
	}
	_, err = w.Write(data)
	return err
}

func addFileIfExists(zw *zip.Writer, srcPath, zipName string) {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return
	}
	_ = writeZipEntry(zw, zipName, data)
}

func copyDirIntoZip(zw *zip.Writer, dir, zipPrefix string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		_ = writeZipEntry(zw, zipPrefix+"/"+e.Name(), data)
	}
}
