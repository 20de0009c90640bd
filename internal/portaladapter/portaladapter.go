// Package portaladapter is the scrape-side capability seam: it
// composes modal dismissal, search-ensure, and pagination over one
// live browser.Driver so the plan-builder orchestration in
// internal/api never depends on a specific portal variant directly
// (SPEC_FULL.md "Adapter capability seam").
package portaladapter

import (
	"log/slog"

	"github.com/go-rod/rod"

	"github.com/cometlocal/cometlocal/internal/browser"
	"github.com/cometlocal/cometlocal/internal/grid"
	"github.com/cometlocal/cometlocal/internal/modal"
	"github.com/cometlocal/cometlocal/internal/pagination"
	"github.com/cometlocal/cometlocal/internal/searchensure"
)

// Adapter is the full scrape-side sequence a coordinator portal
// variant must support: close blockers, ensure the grid has
// populated, then walk its pages.
type Adapter interface {
	CurrentURL() string
	DismissBlockers(evidenceDir string) (modal.Result, error)
	EnsureResultsPopulated(expectedURLFragment, evidenceDir string) (searchensure.Result, error)
	ScrapePending() (pagination.Result, error)
	Screenshot(destPath string) error
}

// RodAdapter is the only Adapter implementation: a go-rod-backed
// browser.Driver driving the real portal DOM.
type RodAdapter struct {
	driver *browser.Driver
	logger *slog.Logger
}

// NewRodAdapter wraps page for one scrape.
func NewRodAdapter(page *rod.Page, logger *slog.Logger) *RodAdapter {
	return &RodAdapter{driver: browser.New(page), logger: logger}
}

func (a *RodAdapter) CurrentURL() string { return a.driver.URL() }

func (a *RodAdapter) Screenshot(destPath string) error { return a.driver.Screenshot(destPath) }

// DismissBlockers closes priority-communication and news-notice
// overlays before the grid can be read (spec §4.5).
func (a *RodAdapter) DismissBlockers(evidenceDir string) (modal.Result, error) {
	return modal.Dismiss(a.driver, modal.DefaultDismissibles(), evidenceDir, a.logger)
}

// EnsureResultsPopulated runs the Search trigger when the grid
// currently has no rows (spec §4.4).
func (a *RodAdapter) EnsureResultsPopulated(expectedURLFragment, evidenceDir string) (searchensure.Result, error) {
	hasRows, err := a.driver.RowCountPositive()
	if err != nil {
		return searchensure.Result{}, err
	}
	return searchensure.Ensure(a.driver, expectedURLFragment, !hasRows, evidenceDir, a.logger)
}

// ScrapePending walks every page of the pending-requirements grid,
// deduplicating by pending-item key, bounded by pagination.MaxPages
// and pagination.MaxItems (spec §4.6).
func (a *RodAdapter) ScrapePending() (pagination.Result, error) {
	frame := grid.NewRodFrame(a.driver.Page)
	pager := pagination.NewRodPager(a.driver.Page, frame)
	return pagination.Walk(pager, a.logger)
}

var _ Adapter = (*RodAdapter)(nil)
