package pagination

import (
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/cometlocal/cometlocal/internal/grid"
)

// nextPageSelectors covers the pager-control variants observed across
// coordinator portal skins.
var nextPageSelectors = []string{
	".dhx_grid_pager .dhx_next",
	"[aria-label='Next page']",
	".pagination .next:not(.disabled)",
}

// RodPager adapts a live *rod.Page plus its grid.Frame to the Pager
// interface.
type RodPager struct {
	Page    *rod.Page
	Frame   grid.Frame
	Aliases grid.HeaderAliases
}

// NewRodPager wraps a page already positioned on the pending-requirements grid.
func NewRodPager(page *rod.Page, frame grid.Frame) *RodPager {
	return &RodPager{Page: page, Frame: frame, Aliases: grid.DefaultHeaderAliases()}
}

func (p *RodPager) CurrentRows() ([]Row, error) {
	extracted, err := grid.Extract(p.Frame, p.Aliases)
	if err != nil {
		return nil, fmt.Errorf("pagination: extract current page: %w", err)
	}
	rows := make([]Row, len(extracted.Rows))
	for i, r := range extracted.Rows {
		rows[i] = Row{Cells: r.Cells, PendingItemKey: r.PendingItemKey}
	}
	return rows, nil
}

func (p *RodPager) HasNextPage() (bool, error) {
	for _, sel := range nextPageSelectors {
		el, err := p.Page.Timeout(2 * time.Second).Element(sel)
		if err != nil || el == nil {
			continue
		}
		visible, err := el.Visible()
		if err != nil || !visible {
			continue
		}
		disabled, _ := el.Attribute("disabled")
		if disabled != nil {
			continue
		}
		return true, nil
	}
	return false, nil
}

func (p *RodPager) GoToNextPage(timeout time.Duration) error {
	var clicked bool
	for _, sel := range nextPageSelectors {
		el, err := p.Page.Timeout(2 * time.Second).Element(sel)
		if err != nil || el == nil {
			continue
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err == nil {
			clicked = true
			break
		}
	}
	if !clicked {
		return fmt.Errorf("pagination: no next-page control could be clicked")
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		overlay, err := p.Page.Timeout(500 * time.Millisecond).Element(".loading-overlay, .dhx_modal_cover_dhx_loading")
		if err != nil || overlay == nil {
			return nil
		}
		visible, err := overlay.Visible()
		if err != nil || !visible {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("pagination: page transition did not settle within %s", timeout)
}
