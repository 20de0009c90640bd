// Package browser adapts go-rod to the narrow capability interfaces
// internal/modal, internal/searchensure, internal/pagination, and
// internal/execflow each declare for themselves. Centralizing the rod
// calls here keeps the per-component packages testable with fakes
// while sharing one real implementation (spec §9 "dynamic dispatch of
// portal variants" — the capability seam pattern applied at the
// browser layer too).
package browser

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/cometlocal/cometlocal/internal/atomicfile"
)

// Driver wraps a live *rod.Page with the click/wait/screenshot
// primitives the scrape pipeline needs.
type Driver struct {
	Page    *rod.Page
	Timeout time.Duration
}

// New wraps page with a default 10s per-call timeout.
func New(page *rod.Page) *Driver {
	return &Driver{Page: page, Timeout: 10 * time.Second}
}

func (d *Driver) URL() string {
	info, err := d.Page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// Click locates the first visible, enabled element matching selector
// and clicks it. ok==false (no error) means nothing matched.
func (d *Driver) Click(selector string) (bool, error) {
	el, err := d.Page.Timeout(d.Timeout).Element(selector)
	if err != nil || el == nil {
		return false, nil
	}
	visible, err := el.Visible()
	if err != nil {
		return false, fmt.Errorf("browser: check visibility of %q: %w", selector, err)
	}
	if !visible {
		return false, nil
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return false, fmt.Errorf("browser: click %q: %w", selector, err)
	}
	return true, nil
}

// ClickCandidates tries each selector in order, clicking the first
// visible-and-enabled match up to maxCandidates attempts, escalating
// from a normal click to a forced bounding-box click on failure
// (spec §4.4 step 2). Returns the index of the selector that matched.
func (d *Driver) ClickCandidates(selectors []string, maxCandidates int) (index int, ok bool, err error) {
	tried := 0
	for i, sel := range selectors {
		if tried >= maxCandidates {
			break
		}
		els, elErr := d.Page.Timeout(d.Timeout).Elements(sel)
		if elErr != nil || len(els) == 0 {
			continue
		}
		for _, el := range els {
			if tried >= maxCandidates {
				break
			}
			tried++
			visible, vErr := el.Visible()
			if vErr != nil || !visible {
				continue
			}
			if clickErr := el.Click(proto.InputMouseButtonLeft, 1); clickErr == nil {
				return i, true, nil
			}
			// Forced click at the element's bounding-box center as a fallback.
			shape, shapeErr := el.Shape()
			if shapeErr == nil && shape != nil {
				box := shape.Box()
				if clickErr := d.Page.Mouse.MoveTo(*proto.NewPoint(box.X+box.Width/2, box.Y+box.Height/2)); clickErr == nil {
					_ = d.Page.Mouse.Click(proto.InputMouseButtonLeft, 1)
					return i, true, nil
				}
			}
		}
	}
	return 0, false, nil
}

// Screenshot saves a PNG to destPath. destPath=="" is a no-op (read-only
// mode carries no evidence directory).
func (d *Driver) Screenshot(destPath string) error {
	if destPath == "" {
		return nil
	}
	data, err := d.Page.Screenshot(true, nil)
	if err != nil {
		return fmt.Errorf("browser: screenshot: %w", err)
	}
	return atomicfile.Write(destPath, data, 0o644)
}

// Text returns the trimmed text of the first element matching selector.
func (d *Driver) Text(selector string) (string, bool, error) {
	el, err := d.Page.Timeout(d.Timeout).Element(selector)
	if err != nil || el == nil {
		return "", false, nil
	}
	text, err := el.Text()
	if err != nil {
		return "", false, fmt.Errorf("browser: read text of %q: %w", selector, err)
	}
	return strings.TrimSpace(text), true, nil
}

// WaitUntil polls cond every 250ms until it returns true or timeout
// elapses, matching the suspension-point semantics of §5 (navigation,
// selector waits, and loading-overlay waits all suspend, bounded by a
// hard per-phase timeout).
func (d *Driver) WaitUntil(timeout time.Duration, cond func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := cond()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("browser: wait condition not met within %s", timeout)
		}
		time.Sleep(250 * time.Millisecond)
	}
}

// LoadingOverlayCleared reports whether a known loading-overlay
// selector is absent or hidden.
func (d *Driver) LoadingOverlayCleared() (bool, error) {
	el, err := d.Page.Timeout(1 * time.Second).Element(".loading-overlay, .dhx_modal_cover_dhx_loading")
	if err != nil || el == nil {
		return true, nil
	}
	visible, err := el.Visible()
	if err != nil {
		return true, nil
	}
	return !visible, nil
}

// PressEnter focuses the first visible element matching selector and
// sends an Enter keypress (used by the filter-then-Enter fallback,
// spec §4.4 step 4).
func (d *Driver) PressEnter(selector string) (bool, error) {
	el, err := d.Page.Timeout(d.Timeout).Element(selector)
	if err != nil || el == nil {
		return false, nil
	}
	visible, err := el.Visible()
	if err != nil || !visible {
		return false, nil
	}
	if err := el.Input(""); err != nil {
		return false, fmt.Errorf("browser: focus %q: %w", selector, err)
	}
	if err := el.Type(input.Enter); err != nil {
		return false, fmt.Errorf("browser: press enter on %q: %w", selector, err)
	}
	return true, nil
}

// RowCountPositive reports whether the pending-requirements grid has
// at least one data row rendered.
func (d *Driver) RowCountPositive() (bool, error) {
	els, err := d.Page.Timeout(d.Timeout).Elements("table.dhx_grid_obj tbody tr, table[role=grid] tbody tr, table.results-table tbody tr")
	if err != nil {
		return false, nil
	}
	return len(els) > 0, nil
}

// RegistrosCounterChanged reports whether the live "N Registros"
// counter text differs from baseline.
func (d *Driver) RegistrosCounterChanged(baseline string) (bool, error) {
	current, ok := d.RegistrosText()
	if !ok {
		return false, nil
	}
	return current != baseline, nil
}

// RegistrosText reads the live "N Registros" counter text, if present.
func (d *Driver) RegistrosText() (string, bool) {
	el, err := d.Page.Timeout(1 * time.Second).Element(".registros-count, .dhx_grid_info, [data-role=row-count]")
	if err != nil || el == nil {
		return "", false
	}
	text, err := el.Text()
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(text), true
}

// ToolbarDiagnostics captures the grid toolbar's outer HTML and the
// visible text of its buttons, for inclusion in a no_rows_after_search
// failure (spec §4.4 step 5).
func (d *Driver) ToolbarDiagnostics() (string, []string) {
	toolbar, err := d.Page.Timeout(1 * time.Second).Element(".grid-toolbar, .dhx_toolbar")
	if err != nil || toolbar == nil {
		return "", nil
	}
	html, _ := toolbar.HTML()
	buttons, err := toolbar.Elements("button, a")
	if err != nil {
		return html, nil
	}
	var texts []string
	for _, b := range buttons {
		visible, err := b.Visible()
		if err != nil || !visible {
			continue
		}
		text, err := b.Text()
		if err != nil {
			continue
		}
		if t := strings.TrimSpace(text); t != "" {
			texts = append(texts, t)
		}
	}
	return html, texts
}
