// Package execflow implements the Executor as a Temporal workflow
// (spec §4.11): hard guardrails, then a per-item re-locate → open →
// upload → verify state machine with classified, retried activities.
package execflow

import "github.com/cometlocal/cometlocal/internal/model"

// ItemPhase is the per-item state machine position (spec §4.11).
type ItemPhase string

const (
	PhaseIdle             ItemPhase = "IDLE"
	PhaseRelocating       ItemPhase = "RELOCATING"
	PhaseRelocated        ItemPhase = "RELOCATED"
	PhaseRelocationFailed ItemPhase = "RELOCATION_FAILED"
	PhaseOpening          ItemPhase = "OPENING"
	PhaseUploading        ItemPhase = "UPLOADING"
	PhaseVerifying        ItemPhase = "VERIFYING"
	PhaseSuccess          ItemPhase = "SUCCESS"
	PhaseFailed           ItemPhase = "FAILED"
)

// GuardrailContext is every piece of evidence the Executor's hard
// guardrails check before any work is done (spec §4.11).
type GuardrailContext struct {
	Environment          string
	RealUploaderHeader    bool
	MaxUploads            int
	AllowlistTypeIDs      []string
	ConfirmSecret         []byte
	Checksum              string
	ConfirmToken          string
	StorageStatePath      string
	Plan                  model.Plan
}

// GuardrailViolation names which hard guardrail rejected the request
// and carries the structured error code to surface (spec §4.11, §7).
type GuardrailViolation struct {
	ErrorCode string
	Message   string
}

func (v *GuardrailViolation) Error() string { return v.Message }

// Request is the input to ExecutePlanItemWorkflow: one plan, the
// single AUTO_UPLOAD item (after overlay) to execute, and the run's
// evidence/execution directories.
type Request struct {
	RunID            string
	Item             model.PlanItem
	StorageStatePath string
	EvidenceDir      string
	ExecutionDir     string
	MaxSearchPages   int
}

// Outcome is the terminal result of executing one plan item.
type Outcome struct {
	ItemID           string
	FinalPhase       ItemPhase
	Success          bool
	PostVerification string
	Errors           []model.RunError
}

// OpenSessionResult reports whether the stored session authenticated.
type OpenSessionResult struct {
	Authenticated bool
}

// RelocateResult reports whether re-locating the pending item by its
// key succeeded, and on which page it was found.
type RelocateResult struct {
	Found bool
	Page  int
}

// UploadResult reports whether the upload activity believes bytes may
// have reached the portal, which the classifier uses to decide
// retryability of a subsequent network failure (spec §4.12).
type UploadResult struct {
	UploadAttempted bool
	Succeeded       bool
}

// VerifyResult reports the post-verification outcome (spec §4.11 step 7).
type VerifyResult struct {
	StillPresent bool
}
