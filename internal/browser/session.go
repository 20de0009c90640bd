package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/cometlocal/cometlocal/internal/grid"
	"github.com/cometlocal/cometlocal/internal/pagination"
)

// Session adapts a live Driver to the execflow.Session capability
// surface the Executor's Temporal activities need. It is kept separate
// from Driver because execflow's activities are Temporal activity
// functions and so thread a context.Context through every call, while
// the synchronous scrape-side interfaces (grid.Frame, modal.Page,
// searchensure.Page) do not.
type Session struct {
	*Driver
}

// NewSession wraps d for use as an execflow.Session.
func NewSession(d *Driver) *Session {
	return &Session{Driver: d}
}

// storageState is the subset of a Playwright-style storage_state.json
// the Executor restores before resuming a session (spec §4.11 step 1).
type storageState struct {
	Cookies []struct {
		Name     string  `json:"name"`
		Value    string  `json:"value"`
		Domain   string  `json:"domain"`
		Path     string  `json:"path"`
		Expires  float64 `json:"expires"`
		HTTPOnly bool    `json:"httpOnly"`
		Secure   bool    `json:"secure"`
	} `json:"cookies"`
}

// OpenFromStorageState restores the cookies captured in storageStatePath
// onto the live page (spec §4.11 step 1).
func (s *Session) OpenFromStorageState(ctx context.Context, storageStatePath string) error {
	data, err := os.ReadFile(storageStatePath)
	if err != nil {
		return fmt.Errorf("browser: read storage state: %w", err)
	}
	var state storageState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("browser: parse storage state: %w", err)
	}
	if len(state.Cookies) == 0 {
		return nil
	}
	params := make([]*proto.NetworkCookieParam, 0, len(state.Cookies))
	for _, c := range state.Cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  proto.TimeSinceEpoch(time.Unix(int64(c.Expires), 0)),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		})
	}
	if err := s.Page.SetCookies(params); err != nil {
		return fmt.Errorf("browser: restore cookies: %w", err)
	}
	return nil
}

// VerifyAuthenticated navigates to landingURL and reports whether the
// portal kept the session authenticated rather than bouncing to a
// login page (spec §4.11 step 1).
func (s *Session) VerifyAuthenticated(ctx context.Context, landingURL string) (bool, error) {
	if err := s.Page.Timeout(s.Timeout).Navigate(landingURL); err != nil {
		return false, fmt.Errorf("browser: navigate to landing page: %w", err)
	}
	if err := s.Page.Timeout(s.Timeout).WaitStable(time.Second); err != nil {
		return false, fmt.Errorf("browser: wait for landing page to settle: %w", err)
	}
	info, err := s.Page.Info()
	if err != nil {
		return false, fmt.Errorf("browser: read landing page info: %w", err)
	}
	return !strings.Contains(strings.ToLower(info.URL), "login"), nil
}

// Screenshot re-exposes Driver.Screenshot with the context.Context
// parameter execflow.Session requires; the live page call itself
// carries no cancellation hook.
func (s *Session) Screenshot(ctx context.Context, destPath string) error {
	return s.Driver.Screenshot(destPath)
}

// NewPager builds a pagination.Pager over the grid currently loaded on
// the page, reusing the same RodFrame/RodPager the read-only scrape
// path drives (spec §4.11 step 3).
func (s *Session) NewPager(ctx context.Context) (pagination.Pager, error) {
	frame := grid.NewRodFrame(s.Page)
	return pagination.NewRodPager(s.Page, frame), nil
}

// detailRowSelector locates a grid row by its pending-item key. Rows
// are expected to carry the key in a data attribute, matching how
// internal/grid computes pendingkey fingerprints off the same cells.
func detailRowSelector(pendingItemKey string) string {
	return fmt.Sprintf("tr[data-pending-item-key=%q]", pendingItemKey)
}

// OpenDetailForm opens the detail form for the row matching
// pendingItemKey (spec §4.11 step 4).
func (s *Session) OpenDetailForm(ctx context.Context, pendingItemKey string) error {
	ok, err := s.Driver.Click(detailRowSelector(pendingItemKey))
	if err != nil {
		return fmt.Errorf("browser: open detail row: %w", err)
	}
	if !ok {
		return fmt.Errorf("browser: no detail row found for pending item key %q", pendingItemKey)
	}
	return s.Driver.WaitUntil(s.Timeout, s.Driver.LoadingOverlayCleared)
}

// uploadFileInputSelectors and uploadSubmitSelectors cover the detail-form
// variants observed across coordinator portal skins.
var (
	uploadFileInputSelectors = []string{"input[type=file]"}
	uploadSubmitSelectors    = []string{"button[type=submit]", ".upload-submit", "[data-role=confirm-upload]"}
)

// UploadFile attaches filePath to the detail form's file input and
// submits it (spec §4.11 step 5).
func (s *Session) UploadFile(ctx context.Context, filePath string) error {
	el, err := s.Page.Timeout(s.Timeout).Element(uploadFileInputSelectors[0])
	if err != nil || el == nil {
		return fmt.Errorf("browser: no file input found on detail form")
	}
	if err := el.SetFiles([]string{filePath}); err != nil {
		return fmt.Errorf("browser: attach file: %w", err)
	}
	_, ok, err := s.Driver.ClickCandidates(uploadSubmitSelectors, len(uploadSubmitSelectors))
	if err != nil {
		return fmt.Errorf("browser: click upload submit: %w", err)
	}
	if !ok {
		return fmt.Errorf("browser: no upload submit control found")
	}
	return s.Driver.WaitUntil(s.Timeout, s.Driver.LoadingOverlayCleared)
}

// ForceRefreshToFirstPage reloads the page and waits for any loading
// overlay to clear, used by the Executor's single allowed relocate
// retry (spec §4.11 step 3).
func (s *Session) ForceRefreshToFirstPage(ctx context.Context) error {
	if err := s.Page.Timeout(s.Timeout).Reload(); err != nil {
		return fmt.Errorf("browser: reload: %w", err)
	}
	return s.Driver.WaitUntil(s.Timeout, s.Driver.LoadingOverlayCleared)
}
