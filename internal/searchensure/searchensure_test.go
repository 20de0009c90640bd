package searchensure

import (
	"errors"
	"testing"
	"time"
)

type fakePage struct {
	url             string
	clickIdx        int
	clickOK         bool
	clickErr        error
	rowsSequence    []bool // consumed one per RowCountPositive call
	registros       string
	registrosOK     bool
	overlayCleared  bool
	fallbackClicked string
	toolbarHTML     string
	toolbarButtons  []string
}

func (f *fakePage) URL() string { return f.url }

func (f *fakePage) ClickCandidates(selectors []string, max int) (int, bool, error) {
	return f.clickIdx, f.clickOK, f.clickErr
}

func (f *fakePage) Click(selector string) (bool, error) {
	if selector == fallbackSelectors.resultsTab && f.fallbackClicked == "results_tab" {
		return true, nil
	}
	if selector == fallbackSelectors.refreshIcon && f.fallbackClicked == "refresh_icon" {
		return true, nil
	}
	return false, nil
}

func (f *fakePage) PressEnter(selector string) (bool, error) {
	if selector == fallbackSelectors.filterInput && f.fallbackClicked == "filter_enter" {
		return true, nil
	}
	return false, nil
}

func (f *fakePage) WaitUntil(timeout time.Duration, cond func() (bool, error)) error {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ok, err := cond()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return errors.New("wait timeout")
}

func (f *fakePage) RowCountPositive() (bool, error) {
	if len(f.rowsSequence) == 0 {
		return false, nil
	}
	v := f.rowsSequence[0]
	f.rowsSequence = f.rowsSequence[1:]
	return v, nil
}

func (f *fakePage) RegistrosCounterChanged(baseline string) (bool, error) {
	return f.registrosOK && f.registros != baseline, nil
}

func (f *fakePage) RegistrosText() (string, bool) { return f.registros, f.registrosOK }

func (f *fakePage) LoadingOverlayCleared() (bool, error) { return f.overlayCleared, nil }

func (f *fakePage) Screenshot(destPath string) error { return nil }

func (f *fakePage) ToolbarDiagnostics() (string, []string) { return f.toolbarHTML, f.toolbarButtons }

func TestEnsure_SkippedWhenGridNotEmpty(t *testing.T) {
	res, err := Ensure(&fakePage{}, "", false, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.SearchClicked {
		t.Fatal("expected no-op result")
	}
}

func TestEnsure_RefusesWhenNotOnExpectedPage(t *testing.T) {
	p := &fakePage{url: "https://portal/other"}
	_, err := Ensure(p, "apartment=123", true, "", nil)
	var wrongPage *NotOnExpectedPageError
	if !errors.As(err, &wrongPage) {
		t.Fatalf("expected *NotOnExpectedPageError, got %v", err)
	}
}

func TestEnsure_ClicksSearchAndWaitsForRows(t *testing.T) {
	p := &fakePage{
		url:          "https://portal/pending?apartment=123",
		clickIdx:     0,
		clickOK:      true,
		rowsSequence: []bool{false, false, true},
	}
	res, err := Ensure(p, "apartment=123", true, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.SearchClicked || !res.RowsAfter {
		t.Fatalf("expected search clicked and rows populated, got %+v", res)
	}
}

func TestEnsure_FallsBackToResultsTab(t *testing.T) {
	p := &fakePage{
		url:             "https://portal/pending",
		clickOK:         false,
		rowsSequence:    []bool{true},
		fallbackClicked: "results_tab",
	}
	res, err := Ensure(p, "", true, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.UsedFallback != "results_tab" {
		t.Fatalf("expected results_tab fallback, got %q", res.UsedFallback)
	}
}

func TestEnsure_TerminalFailureCarriesDiagnostics(t *testing.T) {
	p := &fakePage{
		url:            "https://portal/pending",
		clickOK:        false,
		toolbarHTML:    "<div class=toolbar></div>",
		toolbarButtons: []string{"Exportar"},
	}
	_, err := Ensure(p, "", true, "", nil)
	var noRows *NoRowsAfterSearchError
	if !errors.As(err, &noRows) {
		t.Fatalf("expected *NoRowsAfterSearchError, got %v", err)
	}
	if noRows.ToolbarOuterHTML == "" || len(noRows.VisibleButtons) == 0 {
		t.Fatal("expected toolbar diagnostics to be carried through")
	}
}
