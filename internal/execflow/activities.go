package execflow

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/cometlocal/cometlocal/internal/atomicfile"
	"github.com/cometlocal/cometlocal/internal/errcode"
	"github.com/cometlocal/cometlocal/internal/model"
	"github.com/cometlocal/cometlocal/internal/pagination"
)

// Session is the browser capability surface the Executor's activities
// need, implemented by internal/browser.Session (an adapter over
// internal/browser.Driver), the same way grid.Frame/modal.Page/
// searchensure.Page are satisfied by live-page adapters.
type Session interface {
	OpenFromStorageState(ctx context.Context, storageStatePath string) error
	VerifyAuthenticated(ctx context.Context, landingURL string) (bool, error)
	Screenshot(ctx context.Context, destPath string) error
	NewPager(ctx context.Context) (pagination.Pager, error)
	OpenDetailForm(ctx context.Context, pendingItemKey string) error
	UploadFile(ctx context.Context, filePath string) error
	ForceRefreshToFirstPage(ctx context.Context) error
}

// Activities holds the dependencies the Executor's Temporal activities
// need (grounded on the teacher's Activities struct in
// internal/temporal/activities.go, which bundles a store/config/DAG
// the same way this bundles a browser Session).
type Activities struct {
	Session Session
}

// OpenSessionActivity opens the browser context from storage_state.json
// and verifies the session is actually authenticated (spec §4.11 step 1).
func (a *Activities) OpenSessionActivity(ctx context.Context, storageStatePath, landingURL string) (OpenSessionResult, error) {
	if err := a.Session.OpenFromStorageState(ctx, storageStatePath); err != nil {
		return OpenSessionResult{}, fmt.Errorf("execflow: open storage state: %w", err)
	}
	ok, err := a.Session.VerifyAuthenticated(ctx, landingURL)
	if err != nil {
		return OpenSessionResult{}, fmt.Errorf("execflow: verify authenticated: %w", err)
	}
	return OpenSessionResult{Authenticated: ok}, nil
}

// ScreenshotActivity captures a named screenshot under executionDir.
func (a *Activities) ScreenshotActivity(ctx context.Context, executionDir, fileName string) error {
	return a.Session.Screenshot(ctx, filepath.Join(executionDir, fileName))
}

// RelocateActivity re-locates a pending item by its key across pages
// using the same pagination driver the read-only scrape uses, bounded
// by maxSearchPages (spec §4.11 step 3).
func (a *Activities) RelocateActivity(ctx context.Context, pendingItemKey string, maxSearchPages int) (RelocateResult, error) {
	pager, err := a.Session.NewPager(ctx)
	if err != nil {
		return RelocateResult{}, fmt.Errorf("execflow: build pager: %w", err)
	}

	page := 0
	for {
		page++
		rows, err := pager.CurrentRows()
		if err != nil {
			return RelocateResult{}, fmt.Errorf("execflow: read rows on page %d: %w", page, err)
		}
		for _, row := range rows {
			if row.PendingItemKey == pendingItemKey {
				return RelocateResult{Found: true, Page: page}, nil
			}
		}
		if page >= maxSearchPages {
			break
		}
		hasNext, err := pager.HasNextPage()
		if err != nil {
			return RelocateResult{}, fmt.Errorf("execflow: check next page: %w", err)
		}
		if !hasNext {
			break
		}
		if err := pager.GoToNextPage(15 * time.Second); err != nil {
			return RelocateResult{}, fmt.Errorf("execflow: go to next page: %w", err)
		}
	}
	return RelocateResult{Found: false}, nil
}

// OpenDetailActivity opens the item's detail form (spec §4.11 step 4).
func (a *Activities) OpenDetailActivity(ctx context.Context, pendingItemKey string) error {
	if err := a.Session.OpenDetailForm(ctx, pendingItemKey); err != nil {
		return fmt.Errorf("execflow: open detail form: %w", err)
	}
	return nil
}

// UploadActivity uploads the matched document's stored file. It marks
// UploadAttempted true the instant before the network call, matching
// spec §4.11 step 5's "mark context.upload_attempted = true
// immediately before the network interaction" so a failure after this
// point is classified as non-retryable (spec §4.12).
func (a *Activities) UploadActivity(ctx context.Context, filePath string) (UploadResult, error) {
	activity.RecordHeartbeat(ctx, "uploading")
	result := UploadResult{UploadAttempted: true}
	if err := a.Session.UploadFile(ctx, filePath); err != nil {
		return result, fmt.Errorf("execflow: upload file: %w", err)
	}
	result.Succeeded = true
	return result, nil
}

// VerifyActivity returns to the list and searches all pages for the
// same pending_item_key (spec §4.11 step 7).
func (a *Activities) VerifyActivity(ctx context.Context, pendingItemKey string, maxSearchPages int) (VerifyResult, error) {
	result, err := a.RelocateActivity(ctx, pendingItemKey, maxSearchPages)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("execflow: verify list refresh: %w", err)
	}
	return VerifyResult{StillPresent: result.Found}, nil
}

// ForceRefreshActivity forces a refresh back to page 1, used by the
// single allowed retry after item_not_found_before_upload (spec §4.11
// step 3, §4.12).
func (a *Activities) ForceRefreshActivity(ctx context.Context) error {
	return a.Session.ForceRefreshToFirstPage(ctx)
}

// WriteExecutionMetaActivity persists execution_meta.json for the run,
// capturing the classified errors and final item state for the
// subsequent run-summary write.
func (a *Activities) WriteExecutionMetaActivity(ctx context.Context, executionDir string, meta ExecutionMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("execflow: encode execution_meta.json: %w", err)
	}
	if err := atomicfile.Write(filepath.Join(executionDir, "execution_meta.json"), data, 0o644); err != nil {
		return fmt.Errorf("execflow: write execution_meta.json: %w", err)
	}
	return nil
}

// ExecutionMeta is the execution_meta.json payload (spec §6).
type ExecutionMeta struct {
	ItemID     string          `json:"item_id"`
	FinalPhase ItemPhase       `json:"final_phase"`
	Success    bool            `json:"success"`
	Errors     []model.RunError `json:"errors"`
	FinishedAt time.Time       `json:"finished_at"`
}

func classifyUploadFailure(uploadAttempted bool) errcode.Classification {
	return errcode.Classify(errcode.PhaseUpload, errcode.ExceptionNetworkOrTimeout, errcode.Context{UploadAttempted: uploadAttempted})
}
