package modal

import (
	"errors"
	"testing"
)

type fakePage struct {
	clickable    map[string]bool
	clickCalls   int
	screenshots  []string
	screenshotErr error
}

func (f *fakePage) Click(selector string) (bool, error) {
	f.clickCalls++
	if f.clickable[selector] {
		delete(f.clickable, selector)
		return true, nil
	}
	return false, nil
}

func (f *fakePage) Screenshot(destPath string) error {
	f.screenshots = append(f.screenshots, destPath)
	return f.screenshotErr
}

func TestDismiss_ClosesEachOverlayOnce(t *testing.T) {
	dismissibles := DefaultDismissibles()
	page := &fakePage{clickable: map[string]bool{
		dismissibles[0].Selector: true,
		dismissibles[1].Selector: true,
	}}

	res, err := Dismiss(page, dismissibles, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Dismissed) != 2 {
		t.Fatalf("expected 2 dismissed overlays, got %v", res.Dismissed)
	}
}

func TestDismiss_StopsWhenNothingCloses(t *testing.T) {
	page := &fakePage{clickable: map[string]bool{}}

	res, err := Dismiss(page, DefaultDismissibles(), "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Iterations != 1 {
		t.Fatalf("expected a single no-op iteration, got %d", res.Iterations)
	}
	if len(res.Dismissed) != 0 {
		t.Fatalf("expected no dismissals, got %v", res.Dismissed)
	}
}

func TestDismiss_BoundsIterations(t *testing.T) {
	always := []Dismissible{{Name: "persistent", Selector: ".always-back"}}
	page := &alwaysClickablePage{}

	res, err := Dismiss(page, always, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Iterations != maxDismissIterations {
		t.Fatalf("expected %d iterations, got %d", maxDismissIterations, res.Iterations)
	}
}

// alwaysClickablePage models a portal whose overlay keeps re-rendering
// no matter how many times it's dismissed.
type alwaysClickablePage struct{}

func (p *alwaysClickablePage) Click(selector string) (bool, error) { return true, nil }
func (p *alwaysClickablePage) Screenshot(destPath string) error     { return nil }

func TestDismiss_PropagatesClickError(t *testing.T) {
	dismissibles := DefaultDismissibles()
	page := &errPage{err: errors.New("boom")}

	_, err := Dismiss(page, dismissibles, "", nil)
	if err == nil {
		t.Fatal("expected error to propagate")
	}
}

type errPage struct{ err error }

func (p *errPage) Click(selector string) (bool, error) { return false, p.err }
func (p *errPage) Screenshot(destPath string) error     { return nil }
