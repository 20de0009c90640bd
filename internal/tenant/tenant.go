// Package tenant resolves the per-tenant read/write roots under the
// data directory: learning hints, decision presets, exports, and
// schedules each live under data/tenants/<own_company>/... (spec §6).
package tenant

import (
	"fmt"
	"path/filepath"
)

// Paths is the set of tenant-scoped directories one own_company owns.
type Paths struct {
	Root      string
	Learning  string
	Presets   string
	Exports   string
	Schedules string
}

// Resolve computes Paths for ownCompany rooted at dataDir. ownCompany
// must be non-empty; it becomes a path segment, so callers must ensure
// it is a safe identifier (validated by config.Load's tenant table).
func Resolve(dataDir, ownCompany string) (Paths, error) {
	if ownCompany == "" {
		return Paths{}, fmt.Errorf("tenant: own_company must not be empty")
	}
	root := filepath.Join(dataDir, "tenants", ownCompany)
	return Paths{
		Root:      root,
		Learning:  filepath.Join(root, "learning"),
		Presets:   filepath.Join(root, "presets"),
		Exports:   filepath.Join(root, "exports"),
		Schedules: filepath.Join(root, "schedules"),
	}, nil
}

// PresetsFile is the path to ownCompany's decision-preset store.
func (p Paths) PresetsFile() string {
	return filepath.Join(p.Presets, "decision_presets.json")
}

// SchedulesFile is the path to ownCompany's schedule store.
func (p Paths) SchedulesFile() string {
	return filepath.Join(p.Schedules, "schedules.json")
}

// ExportPath returns the path an export ZIP for (company, period) would
// be written to, named per spec §6's CAE_EXPORT_<company>_<period>_<ts>
// convention.
func (p Paths) ExportPath(company, period string, unixTimestamp int64) string {
	name := fmt.Sprintf("CAE_EXPORT_%s_%s_%d.zip", company, period, unixTimestamp)
	return filepath.Join(p.Exports, name)
}

// RunRoot resolves the root directory for a single run, rooted at
// dataDir directly (runs are not nested under a tenant directory; the
// coordination triplet is recorded inside the run instead — spec §6).
func RunRoot(dataDir, runID string) string {
	return filepath.Join(dataDir, "runs", runID)
}

// RepositoryRoot resolves the shared on-disk document repository root.
func RepositoryRoot(dataDir string) string {
	return filepath.Join(dataDir, "repository")
}
