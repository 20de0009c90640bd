// Package overlay applies a DecisionPack's human overrides onto a
// frozen Plan to produce a transient "effective plan" for execution —
// without ever mutating the underlying plan's identity or checksum
// (spec §4.10) — and resolves which Preset, if any, applies to an
// item (ApplicablePreset); Apply itself does not apply presets.
package overlay

import (
	"sort"

	"github.com/cometlocal/cometlocal/internal/model"
)

// Apply produces the effective plan: pack decisions override the
// matcher's outcome per spec §4.10's three action semantics. The
// input plan and pack are never mutated; Apply returns a deep-enough
// copy for independent item mutation.
func Apply(plan model.Plan, pack *model.DecisionPack) model.Plan {
	effective := model.Plan{PlanID: plan.PlanID, Items: make([]model.PlanItem, len(plan.Items))}
	copy(effective.Items, plan.Items)

	if pack == nil {
		return effective
	}

	byItemID := make(map[string]model.PackDecision, len(pack.Decisions))
	for _, d := range pack.Decisions {
		byItemID[d.ItemID] = d
	}

	for i := range effective.Items {
		override, ok := byItemID[effective.Items[i].ItemID]
		if !ok {
			continue
		}
		applyOverride(&effective.Items[i], override)
	}

	return effective
}

func applyOverride(item *model.PlanItem, override model.PackDecision) {
	switch override.Action {
	case model.ActionMarkAsMatch:
		if item.MatchedDoc == nil {
			item.MatchedDoc = &model.Document{}
		}
		doc := *item.MatchedDoc
		doc.DocID = override.ChosenLocalDocID
		item.MatchedDoc = &doc
		item.Decision = model.DecisionAutoUpload
		item.BlockingIssues = nil
	case model.ActionForceUpload:
		if item.MatchedDoc == nil {
			item.MatchedDoc = &model.Document{}
		}
		doc := *item.MatchedDoc
		doc.StoredPath = override.ChosenFilePath
		item.MatchedDoc = &doc
		item.Decision = model.DecisionAutoUpload
		item.BlockingIssues = nil
	case model.ActionSkip:
		item.Decision = model.DecisionDoNotUpload
		item.HumanHint = override.Reason
	}
}

// ApplicablePreset resolves which of a tenant's enabled presets, if
// any, applies to a given (platform, type_id, subject_key, period_key)
// coordinate. Ties among equally-scoped presets break on the most
// recent CreatedAt (the Open Question decision recorded in
// SPEC_FULL.md: most-specific-scope-wins, most-recent-created-at
// breaks ties).
func ApplicablePreset(presets []model.Preset, platform, typeID, subjectKey, periodKey string) *model.Preset {
	var candidates []model.Preset
	for _, p := range presets {
		if !p.Enabled || p.Scope.TypeID != typeID {
			continue
		}
		if p.Scope.Platform != nil && *p.Scope.Platform != platform {
			continue
		}
		if p.Scope.SubjectKey != nil && *p.Scope.SubjectKey != subjectKey {
			continue
		}
		if p.Scope.PeriodKey != nil && *p.Scope.PeriodKey != periodKey {
			continue
		}
		candidates = append(candidates, p)
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		si, sj := specificity(candidates[i].Scope), specificity(candidates[j].Scope)
		if si != sj {
			return si > sj
		}
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	winner := candidates[0]
	return &winner
}

// specificity counts how many optional scope fields a preset pins;
// more pinned fields wins over fewer (spec §4.10 Open Question).
func specificity(scope model.PresetScope) int {
	n := 0
	if scope.Platform != nil {
		n++
	}
	if scope.SubjectKey != nil {
		n++
	}
	if scope.PeriodKey != nil {
		n++
	}
	return n
}
