package execflow

import (
	"fmt"
	"path/filepath"
	"time"

	sdklog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/cometlocal/cometlocal/internal/errcode"
	"github.com/cometlocal/cometlocal/internal/model"
)

// knownLandingURL is the portal page the Executor navigates to in
// order to verify an authenticated session (spec §4.11 step 1).
const knownLandingURL = "https://portal.example/dashboard"

// ExecutePlanItemWorkflow runs the Executor's per-item state machine
// (spec §4.11): IDLE → RELOCATING → (RELOCATED | RELOCATION_FAILED) →
// OPENING → UPLOADING → VERIFYING → (SUCCESS | FAILED). Hard
// guardrails must already have been checked by the caller before this
// workflow is started — it assumes a valid, single-AUTO_UPLOAD-item
// request.
func ExecutePlanItemWorkflow(ctx workflow.Context, req Request) (Outcome, error) {
	logger := workflow.GetLogger(ctx)
	var a *Activities

	outcome := Outcome{ItemID: req.Item.ItemID, FinalPhase: PhaseIdle}

	sessionOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	}
	sessionCtx := workflow.WithActivityOptions(ctx, sessionOpts)

	var sessionResult OpenSessionResult
	if err := workflow.ExecuteActivity(sessionCtx, a.OpenSessionActivity, req.StorageStatePath, knownLandingURL).Get(ctx, &sessionResult); err != nil {
		outcome.FinalPhase = PhaseFailed
		outcome.Errors = append(outcome.Errors, classifiedError("open", errcode.CodeSessionLost, 1))
		return outcome, fmt.Errorf("execflow: open session: %w", err)
	}
	if !sessionResult.Authenticated {
		outcome.FinalPhase = PhaseFailed
		outcome.Errors = append(outcome.Errors, classifiedError("open", errcode.CodeSessionLost, 1))
		return outcome, fmt.Errorf("execflow: session not authenticated")
	}

	beforeOpts := workflow.ActivityOptions{StartToCloseTimeout: 10 * time.Second, RetryPolicy: &temporal.RetryPolicy{MaximumAttempts: 1}}
	_ = workflow.ExecuteActivity(workflow.WithActivityOptions(ctx, beforeOpts), a.ScreenshotActivity, req.ExecutionDir, "before_upload.png").Get(ctx, nil)

	pendingItemKey := req.Item.PendingRef.PendingItemKey

	outcome.FinalPhase = PhaseRelocating
	relocateResult, relocateErr := relocateWithSingleRetry(ctx, a, pendingItemKey, req.MaxSearchPages, logger)
	if relocateErr != nil {
		outcome.FinalPhase = PhaseRelocationFailed
		outcome.Errors = append(outcome.Errors, classifiedError("relocate", errcode.CodeItemNotFoundBeforeUpload, 2))
		return outcome, relocateErr
	}
	if !relocateResult.Found {
		outcome.FinalPhase = PhaseRelocationFailed
		outcome.Errors = append(outcome.Errors, classifiedError("relocate", errcode.CodeItemNotFoundBeforeUpload, 2))
		return outcome, fmt.Errorf("execflow: %s", errcode.CodeItemNotFoundBeforeUpload)
	}
	outcome.FinalPhase = PhaseRelocated

	outcome.FinalPhase = PhaseOpening
	openOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: errcode.MaxRetriesFor(errcode.Classify(errcode.PhaseOpen, errcode.ExceptionTimeoutOpeningForm, errcode.Context{})) + 1},
	}
	if err := workflow.ExecuteActivity(workflow.WithActivityOptions(ctx, openOpts), a.OpenDetailActivity, pendingItemKey).Get(ctx, nil); err != nil {
		outcome.FinalPhase = PhaseFailed
		outcome.Errors = append(outcome.Errors, classifiedError("open", errcode.CodeTimeoutOpenDetail, 3))
		return outcome, fmt.Errorf("execflow: open detail: %w", err)
	}

	filePath := uploadFilePath(req.Item)

	outcome.FinalPhase = PhaseUploading
	uploadOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	}
	// context.upload_attempted is marked true immediately before this
	// call (spec §4.11 step 5), so by the time UploadActivity itself can
	// fail, the classifier always treats it as "bytes possibly sent" and
	// never retries (spec §4.12: "network/timeout AND upload_attempted
	// → no, never retry").
	var uploadResult UploadResult
	uploadErr := workflow.ExecuteActivity(workflow.WithActivityOptions(ctx, uploadOpts), a.UploadActivity, filePath).Get(ctx, &uploadResult)
	if uploadErr != nil {
		classification := classifyUploadFailure(true)
		outcome.FinalPhase = PhaseFailed
		outcome.Errors = append(outcome.Errors, model.RunError{Phase: "upload", ErrorCode: classification.ErrorCode, Transient: classification.Transient, Attempt: 1})
		return outcome, fmt.Errorf("execflow: upload failed: %w", uploadErr)
	}

	afterOpts := workflow.ActivityOptions{StartToCloseTimeout: 10 * time.Second, RetryPolicy: &temporal.RetryPolicy{MaximumAttempts: 1}}
	_ = workflow.ExecuteActivity(workflow.WithActivityOptions(ctx, afterOpts), a.ScreenshotActivity, req.ExecutionDir, "after_upload.png").Get(ctx, nil)

	outcome.FinalPhase = PhaseVerifying
	verifyActivityOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 60 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: errcode.MaxRetriesFor(errcode.Classify(errcode.PhaseVerify, errcode.ExceptionListFailedToRefresh, errcode.Context{})) + 1},
	}
	var verifyResult VerifyResult
	if err := workflow.ExecuteActivity(workflow.WithActivityOptions(ctx, verifyActivityOpts), a.VerifyActivity, pendingItemKey, req.MaxSearchPages).Get(ctx, &verifyResult); err != nil {
		outcome.FinalPhase = PhaseFailed
		outcome.Errors = append(outcome.Errors, classifiedError("verify", errcode.CodeVerifyListRefreshFailed, 3))
		return outcome, fmt.Errorf("execflow: post-verification: %w", err)
	}

	if verifyResult.StillPresent {
		outcome.FinalPhase = PhaseFailed
		outcome.Success = false
		outcome.PostVerification = "item_still_present_after_upload"
		outcome.Errors = append(outcome.Errors, model.RunError{Phase: "verify", ErrorCode: errcode.CodeItemStillPresentAfterUpload, Transient: false, Attempt: 1})
		return outcome, nil
	}

	outcome.FinalPhase = PhaseSuccess
	outcome.Success = true
	outcome.PostVerification = "item_not_found_after_upload_ok"

	metaOpts := workflow.ActivityOptions{StartToCloseTimeout: 10 * time.Second, RetryPolicy: &temporal.RetryPolicy{MaximumAttempts: 1}}
	meta := ExecutionMeta{ItemID: req.Item.ItemID, FinalPhase: outcome.FinalPhase, Success: outcome.Success, Errors: outcome.Errors, FinishedAt: workflow.Now(ctx)}
	_ = workflow.ExecuteActivity(workflow.WithActivityOptions(ctx, metaOpts), a.WriteExecutionMetaActivity, req.ExecutionDir, meta).Get(ctx, nil)

	return outcome, nil
}

// relocateWithSingleRetry implements spec §4.11 step 3's "allow
// exactly one retry after forcing a refresh and returning to page 1".
func relocateWithSingleRetry(ctx workflow.Context, a *Activities, pendingItemKey string, maxSearchPages int, logger sdklog.Logger) (RelocateResult, error) {
	relocateOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 20 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	}
	relocateCtx := workflow.WithActivityOptions(ctx, relocateOpts)

	var result RelocateResult
	err := workflow.ExecuteActivity(relocateCtx, a.RelocateActivity, pendingItemKey, maxSearchPages).Get(ctx, &result)
	if err == nil && result.Found {
		return result, nil
	}

	logger.Warn("execflow: item not found on first relocate pass, forcing refresh and retrying", "pending_item_key", pendingItemKey)
	refreshOpts := workflow.ActivityOptions{StartToCloseTimeout: 10 * time.Second, RetryPolicy: &temporal.RetryPolicy{MaximumAttempts: 1}}
	if refreshErr := workflow.ExecuteActivity(workflow.WithActivityOptions(ctx, refreshOpts), a.ForceRefreshActivity).Get(ctx, nil); refreshErr != nil {
		return RelocateResult{}, fmt.Errorf("execflow: force refresh before retry: %w", refreshErr)
	}

	err = workflow.ExecuteActivity(relocateCtx, a.RelocateActivity, pendingItemKey, maxSearchPages).Get(ctx, &result)
	if err != nil {
		return RelocateResult{}, fmt.Errorf("execflow: relocate retry: %w", err)
	}
	return result, nil
}

// uploadFilePath resolves the file the Executor uploads: matched_doc's
// stored_path, already carrying any overlay FORCE_UPLOAD override
// (internal/overlay.Apply writes the chosen file path into
// MatchedDoc.StoredPath directly — spec §4.11 step 5).
func uploadFilePath(item model.PlanItem) string {
	if item.MatchedDoc == nil {
		return ""
	}
	return filepath.Clean(item.MatchedDoc.StoredPath)
}

func classifiedError(phase, errorCode string, attempt int) model.RunError {
	return model.RunError{Phase: phase, ErrorCode: errorCode, Transient: false, Attempt: attempt}
}
