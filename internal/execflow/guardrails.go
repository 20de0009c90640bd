package execflow

import (
	"os"
	"time"

	"github.com/cometlocal/cometlocal/internal/cometerr"
	"github.com/cometlocal/cometlocal/internal/model"
	"github.com/cometlocal/cometlocal/internal/planbuilder"
)

// CheckGuardrails runs every hard guardrail the Executor must satisfy
// before any browser work starts (spec §4.11). now is passed in rather
// than read internally so verification stays deterministic.
func CheckGuardrails(gc GuardrailContext, now time.Time) error {
	if gc.Environment != "dev" {
		return cometerr.New(cometerr.CodeRealUploadEnvironmentViolation, "real uploads are only permitted when ENVIRONMENT=dev")
	}
	if !gc.RealUploaderHeader {
		return cometerr.New(cometerr.CodeRealUploadGuardrailViolation, "request must carry X-USE-REAL-UPLOADER: 1")
	}
	if gc.MaxUploads != 1 {
		return cometerr.New(cometerr.CodeRealUploadGuardrailViolation, "max_uploads must be exactly 1")
	}
	if len(gc.AllowlistTypeIDs) != 1 {
		return cometerr.New(cometerr.CodeRealUploadGuardrailViolation, "exactly one type_id must be allowlisted for real upload")
	}

	autoUploadCount := 0
	for _, item := range gc.Plan.Items {
		if item.Decision == model.DecisionAutoUpload {
			autoUploadCount++
		}
	}
	if autoUploadCount > 1 {
		return cometerr.New(cometerr.CodeInvalidItemCount, "at most one plan item may carry decision AUTO_UPLOAD after overlay")
	}

	if _, err := os.Stat(gc.StorageStatePath); err != nil {
		return cometerr.New(cometerr.CodeMissingStorageState, "storage_state.json for the plan does not exist")
	}

	if err := planbuilder.VerifyConfirmToken(gc.ConfirmSecret, gc.Checksum, gc.ConfirmToken, now); err != nil {
		return err
	}

	return nil
}

// AutoUploadItem returns the plan's single AUTO_UPLOAD item, or false
// if there isn't exactly one (the guardrail above should already have
// rejected that case, but callers driving execution directly still
// need this lookup).
func AutoUploadItem(plan model.Plan) (model.PlanItem, bool) {
	var found model.PlanItem
	count := 0
	for _, item := range plan.Items {
		if item.Decision == model.DecisionAutoUpload {
			found = item
			count++
		}
	}
	return found, count == 1
}
