package api

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cometlocal/cometlocal/internal/model"
	"github.com/cometlocal/cometlocal/internal/tenant"
)

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// loadPlan reads a persisted plan.json for planID.
func loadPlan(dataDir, planID string) (model.Plan, error) {
	var plan model.Plan
	data, err := readFile(filepath.Join(tenant.RunRoot(dataDir, planID), "plan.json"))
	if err != nil {
		return plan, fmt.Errorf("api: read plan.json: %w", err)
	}
	if err := json.Unmarshal(data, &plan); err != nil {
		return plan, fmt.Errorf("api: parse plan.json: %w", err)
	}
	return plan, nil
}

// loadPlanMeta reads a persisted plan_meta.json for planID.
func loadPlanMeta(dataDir, planID string) (model.PlanMeta, error) {
	var meta model.PlanMeta
	data, err := readFile(filepath.Join(tenant.RunRoot(dataDir, planID), "plan_meta.json"))
	if err != nil {
		return meta, fmt.Errorf("api: read plan_meta.json: %w", err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("api: parse plan_meta.json: %w", err)
	}
	return meta, nil
}
