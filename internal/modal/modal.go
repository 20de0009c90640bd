// Package modal closes priority-communication and news-notice overlays
// that block the pending-requirements grid before it can be read
// (spec §4.5).
package modal

import (
	"fmt"
	"log/slog"
)

// maxDismissIterations bounds the dismiss loop so a portal that keeps
// re-rendering overlays can never hang the scrape indefinitely.
const maxDismissIterations = 8

// Dismissible is one overlay selector family to probe and close.
type Dismissible struct {
	Name     string
	Selector string
}

// DefaultDismissibles covers the overlay families observed across
// coordinator portal variants.
func DefaultDismissibles() []Dismissible {
	return []Dismissible{
		{Name: "priority_communication", Selector: ".priority-comm-modal .close, .aviso-prioritario .cerrar"},
		{Name: "news_notice", Selector: ".news-notice-dialog .close, .aviso-novedades .cerrar"},
		{Name: "do_not_show_again", Selector: "[data-role=dont-show-again] button, .no-volver-a-mostrar button"},
	}
}

// Page is the capability surface modal dismissal needs from a live
// browser page.
type Page interface {
	// Click closes the first visible element matching selector.
	// ok==false means no matching visible element was found.
	Click(selector string) (ok bool, err error)
	// Screenshot saves an optional diagnostic screenshot; destPath=""
	// means evidence is disabled (read-only mode, spec §4.5).
	Screenshot(destPath string) error
}

// Result is a diagnostic record of what Dismiss closed.
type Result struct {
	Dismissed []string // names of dismissibles that were actually closed
	Iterations int
}

// Dismiss iteratively closes overlays until none remain or
// maxDismissIterations is reached (spec §4.5). evidenceDir == ""
// disables per-dismissal screenshots (read-only mode).
func Dismiss(page Page, dismissibles []Dismissible, evidenceDir string, logger *slog.Logger) (Result, error) {
	var res Result
	for iter := 0; iter < maxDismissIterations; iter++ {
		closedAny := false
		for _, d := range dismissibles {
			ok, err := page.Click(d.Selector)
			if err != nil {
				return res, fmt.Errorf("modal: dismiss %s: %w", d.Name, err)
			}
			if !ok {
				continue
			}
			closedAny = true
			res.Dismissed = append(res.Dismissed, d.Name)
			if evidenceDir != "" {
				shotPath := fmt.Sprintf("%s/modal_%s_%d.png", evidenceDir, d.Name, iter)
				if err := page.Screenshot(shotPath); err != nil && logger != nil {
					logger.Warn("modal: screenshot failed", "name", d.Name, "error", err)
				}
			}
		}
		res.Iterations = iter + 1
		if !closedAny {
			break
		}
	}
	return res, nil
}
