// Package planbuilder freezes a scraped-and-matched run into a
// checksummed Plan, in either a read-only (in-memory, no persistence)
// or persistent (on-disk run directory) mode (spec §4.9).
package planbuilder

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/cometlocal/cometlocal/internal/cometerr"
	"github.com/cometlocal/cometlocal/internal/model"
)

// ConfirmTokenTTL bounds how long a confirm_token remains usable after
// issuance (spec §4.9).
const ConfirmTokenTTL = 30 * time.Minute

// Diagnostics carries non-fatal scrape/match notes surfaced alongside
// a built plan (e.g. pagination truncation).
type Diagnostics struct {
	Warnings []string `json:"warnings,omitempty"`
}

// BuildResult is the {plan, summary, pending_items, diagnostics,
// run_id} result of spec §4.9, returned by both modes. There is no
// separate match_results field; each match outcome is carried on its
// Plan.Items entry.
type BuildResult struct {
	Plan         model.Plan              `json:"plan"`
	Summary      model.RunCounts         `json:"summary"`
	PendingItems []model.PendingRequirement `json:"pending_items"`
	Diagnostics  Diagnostics             `json:"diagnostics"`
	RunID        string                  `json:"run_id"`
}

// ErrorResponse is the structured shape every Plan Builder failure
// takes; it never surfaces as an HTTP 500 (spec §4.9).
type ErrorResponse struct {
	Status    string         `json:"status"`
	ErrorCode string         `json:"error_code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Items     []model.PlanItem `json:"items"`
	Diagnostics Diagnostics  `json:"diagnostics"`
	RunID     *string        `json:"run_id"`
}

// NewErrorResponse builds the contract-invariant error shape: items
// is always an array (never null), run_id is always present and
// nullable.
func NewErrorResponse(code, message string, details map[string]any) ErrorResponse {
	return ErrorResponse{
		Status:      "error",
		ErrorCode:   code,
		Message:     message,
		Details:     details,
		Items:       []model.PlanItem{},
		Diagnostics: Diagnostics{},
		RunID:       nil,
	}
}

// FromStructuredErr maps a cometerr.Structured into the plan-builder
// error contract.
func FromStructuredErr(err *cometerr.Structured) ErrorResponse {
	return NewErrorResponse(err.ErrorCode, err.Message, err.Details)
}

// Build assembles a Plan from already-matched items. planID equals
// run_id when called from the persistent path, or is a fresh,
// throwaway value in read-only mode (spec §4.9).
func Build(runID string, items []model.PlanItem) model.Plan {
	sorted := make([]model.PlanItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ItemID < sorted[j].ItemID })
	return model.Plan{PlanID: runID, Items: sorted}
}

// canonicalItem is the stable, volatile-field-free projection of a
// PlanItem the checksum is computed over (spec §4.9: "sorted by
// item_id, stable field order, no volatile fields").
type canonicalItem struct {
	ItemID            string `json:"item_id"`
	PendingItemKey    string `json:"pending_item_key"`
	MatchedDocID      string `json:"matched_doc_id,omitempty"`
	MatchedRule       string `json:"matched_rule,omitempty"`
	Confidence        float64 `json:"confidence"`
	Decision          string  `json:"decision"`
	PrimaryReasonCode string  `json:"primary_reason_code"`
}

// Checksum computes a deterministic SHA-256 hex digest over the plan's
// items, sorted by item_id with a fixed field order. HumanHint and
// BlockingIssues are deliberately excluded: they are advisory and may
// be re-worded without changing what the plan commits to executing.
func Checksum(plan model.Plan) string {
	sorted := make([]model.PlanItem, len(plan.Items))
	copy(sorted, plan.Items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ItemID < sorted[j].ItemID })

	canon := make([]canonicalItem, len(sorted))
	for i, it := range sorted {
		docID := ""
		if it.MatchedDoc != nil {
			docID = it.MatchedDoc.DocID
		}
		canon[i] = canonicalItem{
			ItemID:            it.ItemID,
			PendingItemKey:    it.PendingRef.PendingItemKey,
			MatchedDocID:      docID,
			MatchedRule:       it.MatchedRule,
			Confidence:        it.Confidence,
			Decision:          string(it.Decision),
			PrimaryReasonCode: it.PrimaryReasonCode,
		}
	}

	payload, err := json.Marshal(struct {
		PlanID string          `json:"plan_id"`
		Items  []canonicalItem `json:"items"`
	}{PlanID: plan.PlanID, Items: canon})
	if err != nil {
		// json.Marshal on this fixed, string/float/slice-only shape
		// cannot fail; this path exists only to satisfy the compiler.
		payload = []byte(plan.PlanID)
	}

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// IssueConfirmToken builds an HMAC-signed token binding a checksum to
// an issue time, verifiable by VerifyConfirmToken within
// ConfirmTokenTTL (spec §4.9, §4.11).
func IssueConfirmToken(secret []byte, checksum string, issuedAt time.Time) string {
	issuedUnix := issuedAt.Unix()
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%s:%d", checksum, issuedUnix)
	sig := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("%d.%s", issuedUnix, sig)
}

// VerifyConfirmToken recomputes the HMAC and checks the TTL. now is
// passed explicitly so expiry is deterministic under test.
func VerifyConfirmToken(secret []byte, checksum, token string, now time.Time) error {
	var issuedUnix int64
	var sig string
	if _, err := fmt.Sscanf(token, "%d.%s", &issuedUnix, &sig); err != nil {
		return cometerr.New(cometerr.CodeInvalidConfirmToken, "confirm_token is malformed")
	}

	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%s:%d", checksum, issuedUnix)
	want := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return cometerr.New(cometerr.CodeInvalidConfirmToken, "confirm_token does not match plan checksum")
	}

	issuedAt := time.Unix(issuedUnix, 0)
	if now.Sub(issuedAt) > ConfirmTokenTTL {
		return cometerr.New(cometerr.CodeConfirmTokenExpired, "confirm_token has expired").
			WithDetails(map[string]any{"issued_at": issuedAt, "ttl_seconds": int(ConfirmTokenTTL.Seconds())})
	}
	return nil
}

// BuildPlanMeta assembles the plan_meta.json sidecar for a persistent
// build (spec §4.9).
func BuildPlanMeta(planID string, secret []byte, checksum string, issuedAt time.Time) model.PlanMeta {
	return model.PlanMeta{
		PlanID:       planID,
		Checksum:     checksum,
		ConfirmToken: IssueConfirmToken(secret, checksum, issuedAt),
		IssuedAt:     issuedAt,
		TTLSeconds:   int(ConfirmTokenTTL.Seconds()),
	}
}
