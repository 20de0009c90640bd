// Package searchensure drives the "Search" trigger some coordinator
// portals require before the pending-requirements grid populates
// (spec §4.4).
package searchensure

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	maxSearchCandidates = 10
	maxPopulateWait     = 60 * time.Second
)

// candidateSelectors is the expanded selector set tried in order: text
// "Buscar", input[value*=Buscar], aria-label, title, class containing
// "search", lupa icons (spec §4.4 step 1).
var candidateSelectors = []string{
	"button:has-text('Buscar')",
	"a:has-text('Buscar')",
	"input[value*='Buscar']",
	"[aria-label*='Buscar' i]",
	"[title*='Buscar' i]",
	"[class*='search' i]",
	"[class*='lupa' i]",
	".icon-search, .fa-search",
}

var fallbackSelectors = struct {
	resultsTab   string
	filterInput  string
	refreshIcon  string
}{
	resultsTab:  "[role=tab]:has-text('Resultados'), .tab-resultados",
	filterInput: "input[type=search], input.filter-input",
	refreshIcon: ".grid-toolbar .icon-refresh, .grid-toolbar .fa-refresh",
}

// Page is the capability surface the helper needs from a live browser
// page.
type Page interface {
	URL() string
	ClickCandidates(selectors []string, maxCandidates int) (index int, ok bool, err error)
	Click(selector string) (ok bool, err error)
	PressEnter(selector string) (ok bool, err error)
	WaitUntil(timeout time.Duration, cond func() (bool, error)) error
	RowCountPositive() (bool, error)
	RegistrosCounterChanged(baseline string) (bool, error)
	RegistrosText() (string, bool)
	LoadingOverlayCleared() (bool, error)
	Screenshot(destPath string) error
	ToolbarDiagnostics() (outerHTML string, visibleButtonTexts []string)
}

// NotOnExpectedPageError means the current URL doesn't contain the
// expected apartment identifier, so Search-Ensure refuses to act.
type NotOnExpectedPageError struct {
	URL, ExpectedFragment string
}

func (e *NotOnExpectedPageError) Error() string {
	return fmt.Sprintf("searchensure: url %q does not contain expected fragment %q", e.URL, e.ExpectedFragment)
}

// NoRowsAfterSearchError is the terminal failure when the whole
// sequence — including fallbacks — never populates the grid.
type NoRowsAfterSearchError struct {
	ClickedIndex    int
	ToolbarOuterHTML string
	VisibleButtons  []string
}

func (e *NoRowsAfterSearchError) Error() string { return "no_rows_after_search" }

// Result carries the diagnostics of one Ensure call.
type Result struct {
	SearchClicked    bool
	ClickedIndex     int
	UsedFallback     string
	RowsAfter        bool
}

// Ensure executes the Search trigger when the grid is empty, with
// single-retry semantics for the whole sequence (spec §4.4).
func Ensure(page Page, expectedURLFragment string, isEmpty bool, evidenceDir string, logger *slog.Logger) (Result, error) {
	if !isEmpty {
		return Result{}, nil
	}
	if expectedURLFragment != "" && !strings.Contains(page.URL(), expectedURLFragment) {
		return Result{}, &NotOnExpectedPageError{URL: page.URL(), ExpectedFragment: expectedURLFragment}
	}

	res, err := ensureOnce(page, evidenceDir, logger)
	if err == nil || res.RowsAfter {
		return res, err
	}
	if logger != nil {
		logger.Warn("searchensure: first attempt failed, retrying once", "error", err)
	}
	return ensureOnce(page, evidenceDir, logger)
}

func ensureOnce(page Page, evidenceDir string, logger *slog.Logger) (Result, error) {
	var res Result

	baseline, _ := page.RegistrosText()

	idx, clicked, err := page.ClickCandidates(candidateSelectors, maxSearchCandidates)
	if err != nil {
		return res, fmt.Errorf("searchensure: click candidates: %w", err)
	}
	if clicked {
		res.SearchClicked = true
		res.ClickedIndex = idx
		if logger != nil {
			logger.Info("searchensure: clicked search candidate", "index", idx)
		}
	}

	// With no search candidate clicked there is nothing to wait for:
	// go straight to the fallbacks.
	waitErr := fmt.Errorf("searchensure: no search candidate clicked")
	if clicked {
		waitErr = page.WaitUntil(maxPopulateWait, func() (bool, error) {
		rows, err := page.RowCountPositive()
		if err != nil {
			return false, err
		}
		if rows {
			return true, nil
		}
		changed, err := page.RegistrosCounterChanged(baseline)
		if err != nil {
			return false, err
		}
		if !changed {
			return false, nil
		}
		return page.LoadingOverlayCleared()
	})
	}

	if waitErr == nil {
		res.RowsAfter = true
		return res, nil
	}

	// Fallbacks (spec §4.4 step 4): Results tab, filter+Enter, refresh icon.
	if ok, _ := page.Click(fallbackSelectors.resultsTab); ok {
		res.UsedFallback = "results_tab"
	} else if ok, _ := page.PressEnter(fallbackSelectors.filterInput); ok {
		res.UsedFallback = "filter_enter"
	} else if ok, _ := page.Click(fallbackSelectors.refreshIcon); ok {
		res.UsedFallback = "refresh_icon"
	}

	if res.UsedFallback != "" {
		waitErr = page.WaitUntil(maxPopulateWait, func() (bool, error) {
			return page.RowCountPositive()
		})
		if waitErr == nil {
			res.RowsAfter = true
			return res, nil
		}
	}

	if evidenceDir != "" {
		_ = page.Screenshot(evidenceDir + "/search_ensure_failure.png")
	}
	html, buttons := page.ToolbarDiagnostics()
	return res, &NoRowsAfterSearchError{ClickedIndex: res.ClickedIndex, ToolbarOuterHTML: html, VisibleButtons: buttons}
}
