// Package matcher resolves a scraped pending requirement against the
// local document repository through a six-stage pipeline, producing a
// ranked candidate (or a classified non-match) plus a debug record of
// every stage's outcome (spec §4.7).
package matcher

import (
	"sort"
	"strings"
	"time"

	"github.com/cometlocal/cometlocal/internal/cometerr"
	"github.com/cometlocal/cometlocal/internal/model"
	"github.com/cometlocal/cometlocal/internal/validity"
)

// Confidence levels the pipeline assigns (spec §4.7).
const (
	ConfidenceNone         = 0.0
	ConfidenceTypeOnly     = 0.6
	ConfidencePeriodLoose  = 0.8
	ConfidenceExact        = 0.95
)

// StageOutcome records what one pipeline stage did, for matching_debug.
type StageOutcome struct {
	Stage       string `json:"stage"`
	CandidatesIn  int  `json:"candidates_in"`
	CandidatesOut int  `json:"candidates_out"`
	ReasonCode  string `json:"reason_code,omitempty"`
}

// Debug is the matching_debug record persisted alongside a plan item.
type Debug struct {
	PendingItemKey string         `json:"pending_item_key"`
	Stages         []StageOutcome `json:"stages"`
	// TopCandidates lists up to 3 document ids that survived the
	// validity filter, in ranking order, for operator debugging.
	TopCandidates []string `json:"top_candidates,omitempty"`
}

// Result is the outcome of matching one pending requirement.
type Result struct {
	Matched     *model.Document
	MatchedRule string
	Confidence  float64
	ReasonCode  string
	HumanHint   string
	Debug       Debug
}

// humanHints maps a reason code to a short, operator-facing message.
// Keyed on the same codes the matcher and decision engine emit as
// primary_reason_code (spec §4.7, §4.8).
var humanHints = map[string]string{
	cometerr.CodeNoAliasMatch:         "No document type is configured for this pending item's label.",
	cometerr.CodeNoDocsOfType:         "No documents of the matched type exist in the repository yet.",
	cometerr.CodeSubjectMismatch:      "No document on file belongs to this worker or company.",
	cometerr.CodePeriodMismatch:       "No document covers the period this pending item names.",
	cometerr.CodeAllCandidatesExpired: "All matching documents are expired or not yet valid.",
	"confidence_below_threshold":      "A document matched, but the match confidence is below the auto-upload threshold.",
}

// HumanHint returns the localized message for a reason code, or a
// generic fallback for codes it doesn't recognize.
func HumanHint(reasonCode string) string {
	if hint, ok := humanHints[reasonCode]; ok {
		return hint
	}
	if reasonCode == "" {
		return ""
	}
	return "Needs manual review."
}

// Match runs the six-stage pipeline for one pending requirement against
// the full type/document catalog (spec §4.7):
//  1. alias resolve   — PendingRequirement.TipoDoc -> DocumentType via PlatformAliases
//  2. type filter     — Documents with TypeID == resolved type
//  3. subject filter  — company-scoped vs worker-scoped subject key equality
//  4. period filter   — PeriodKey alignment with Inicio/Fin when present
//  5. validity filter — internal/validity.Calculate must yield VALID or EXPIRING_SOON
//  6. ranking         — among survivors, order by workflow status, then latest issue date, then latest validity start
func Match(req model.PendingRequirement, types []model.DocumentType, docs []model.Document, today time.Time, expiringSoonThresholdDays int) Result {
	debug := Debug{PendingItemKey: req.PendingItemKey}

	// Stage 1: alias resolve.
	typ, ok := resolveAlias(req.TipoDoc, types)
	debug.Stages = append(debug.Stages, StageOutcome{Stage: "alias_resolve", CandidatesIn: len(types), CandidatesOut: boolToCount(ok)})
	if !ok {
		return Result{Confidence: ConfidenceNone, ReasonCode: cometerr.CodeNoAliasMatch, HumanHint: HumanHint(cometerr.CodeNoAliasMatch), Debug: debug}
	}

	// Stage 2: type filter.
	candidates := filterByType(docs, typ.TypeID)
	debug.Stages = append(debug.Stages, StageOutcome{Stage: "type_filter", CandidatesIn: len(docs), CandidatesOut: len(candidates)})
	if len(candidates) == 0 {
		return Result{Confidence: ConfidenceNone, ReasonCode: cometerr.CodeNoDocsOfType, HumanHint: HumanHint(cometerr.CodeNoDocsOfType), Debug: debug}
	}

	// Stage 3: subject filter.
	subjectCandidates := filterBySubject(candidates, typ.Scope, req)
	debug.Stages = append(debug.Stages, StageOutcome{Stage: "subject_filter", CandidatesIn: len(candidates), CandidatesOut: len(subjectCandidates)})
	if len(subjectCandidates) == 0 {
		return Result{Confidence: ConfidenceNone, ReasonCode: cometerr.CodeSubjectMismatch, HumanHint: HumanHint(cometerr.CodeSubjectMismatch), Debug: debug}
	}

	// Stage 4: period filter.
	periodCandidates, periodMatchedExactly := filterByPeriod(subjectCandidates, req)
	debug.Stages = append(debug.Stages, StageOutcome{Stage: "period_filter", CandidatesIn: len(subjectCandidates), CandidatesOut: len(periodCandidates)})
	if len(periodCandidates) == 0 {
		return Result{Confidence: ConfidenceNone, ReasonCode: cometerr.CodePeriodMismatch, HumanHint: HumanHint(cometerr.CodePeriodMismatch), Debug: debug}
	}

	// Stage 5: validity filter.
	validCandidates := filterByValidity(periodCandidates, typ, today, expiringSoonThresholdDays)
	debug.Stages = append(debug.Stages, StageOutcome{Stage: "validity_filter", CandidatesIn: len(periodCandidates), CandidatesOut: len(validCandidates)})
	if len(validCandidates) == 0 {
		return Result{Confidence: ConfidenceNone, ReasonCode: cometerr.CodeAllCandidatesExpired, HumanHint: HumanHint(cometerr.CodeAllCandidatesExpired), Debug: debug}
	}

	// Stage 6: ranking.
	ranked := rankAll(validCandidates)
	winner := ranked[0]
	debug.Stages = append(debug.Stages, StageOutcome{Stage: "ranking", CandidatesIn: len(validCandidates), CandidatesOut: 1})
	debug.TopCandidates = topCandidateIDs(ranked, 3)

	confidence := ConfidenceTypeOnly
	switch {
	case periodMatchedExactly && len(validCandidates) == 1:
		confidence = ConfidenceExact
	case periodMatchedExactly:
		confidence = ConfidencePeriodLoose
	}

	return Result{
		Matched:     &winner,
		MatchedRule: typ.TypeID,
		Confidence:  confidence,
		Debug:       debug,
	}
}

func topCandidateIDs(ranked []model.Document, n int) []string {
	if len(ranked) < n {
		n = len(ranked)
	}
	out := make([]string, 0, n)
	for _, d := range ranked[:n] {
		out = append(out, d.DocID)
	}
	return out
}

func boolToCount(ok bool) int {
	if ok {
		return 1
	}
	return 0
}

func resolveAlias(tipoDoc string, types []model.DocumentType) (model.DocumentType, bool) {
	normalized := normalizeAlias(tipoDoc)
	for _, t := range types {
		for _, alias := range t.PlatformAliases {
			if normalizeAlias(alias) == normalized {
				return t, true
			}
		}
	}
	return model.DocumentType{}, false
}

func normalizeAlias(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func filterByType(docs []model.Document, typeID string) []model.Document {
	var out []model.Document
	for _, d := range docs {
		if d.TypeID == typeID {
			out = append(out, d)
		}
	}
	return out
}

func filterBySubject(docs []model.Document, scope model.Scope, req model.PendingRequirement) []model.Document {
	var out []model.Document
	for _, d := range docs {
		switch scope {
		case model.ScopeCompany:
			if req.CompanyKey != "" && d.CompanyKey == req.CompanyKey {
				out = append(out, d)
			}
		case model.ScopeWorker:
			if req.PersonKey != "" && d.PersonKey == req.PersonKey {
				out = append(out, d)
			}
		}
	}
	return out
}

// filterByPeriod keeps documents whose PeriodKey is empty (type has no
// period concept) or aligns with the pending requirement's Inicio
// field (the period a monthly/annual submission names). The second
// return value reports whether every surviving candidate aligned
// exactly, used to scale confidence.
func filterByPeriod(docs []model.Document, req model.PendingRequirement) ([]model.Document, bool) {
	wantPeriod := extractPeriodKey(req.Inicio)
	if wantPeriod == "" {
		return docs, false
	}
	var exact []model.Document
	for _, d := range docs {
		if d.PeriodKey == wantPeriod {
			exact = append(exact, d)
		}
	}
	if len(exact) > 0 {
		return exact, true
	}
	return docs, false
}

// extractPeriodKey pulls a "YYYY-MM" or "YYYY" prefix from a date-ish
// string; returns "" when none is recognizable.
func extractPeriodKey(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 7 && s[4] == '-' {
		return s[:7]
	}
	if len(s) == 4 {
		return s
	}
	return ""
}

func filterByValidity(docs []model.Document, typ model.DocumentType, today time.Time, expiringSoonThresholdDays int) []model.Document {
	var out []model.Document
	for _, d := range docs {
		result, err := validity.Calculate(typ, d, today, expiringSoonThresholdDays)
		if err != nil {
			continue
		}
		if result.Status == validity.StatusValid || result.Status == validity.StatusExpiringSoon {
			out = append(out, d)
		}
	}
	return out
}

// statusRank orders workflow statuses by ranking preference:
// ready_to_submit > reviewed > draft > submitted.
func statusRank(s model.WorkflowStatus) int {
	switch s {
	case model.StatusReadyToSubmit:
		return 0
	case model.StatusReviewed:
		return 1
	case model.StatusDraft:
		return 2
	case model.StatusSubmitted:
		return 3
	default:
		return 4
	}
}

// rankAll orders candidates by workflow status preference, then most
// recent issue date, then most recent explicit validity start date;
// ties break on DocID for determinism (spec §4.7 stage 6). The winner
// is rankAll(docs)[0].
func rankAll(docs []model.Document) []model.Document {
	sorted := make([]model.Document, len(docs))
	copy(sorted, docs)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if ra, rb := statusRank(a.Status), statusRank(b.Status); ra != rb {
			return ra < rb
		}
		if ta, tb := issuedAt(a), issuedAt(b); !ta.Equal(tb) {
			return ta.After(tb)
		}
		if va, vb := validityStart(a), validityStart(b); !va.Equal(vb) {
			return va.After(vb)
		}
		return a.DocID < b.DocID
	})
	return sorted
}

func issuedAt(d model.Document) time.Time {
	if d.Extracted.IssueDate != nil {
		return *d.Extracted.IssueDate
	}
	if d.IssuedAt != nil {
		return *d.IssuedAt
	}
	return time.Time{}
}

func validityStart(d model.Document) time.Time {
	if d.Extracted.ValidityStartDate != nil {
		return *d.Extracted.ValidityStartDate
	}
	return time.Time{}
}
