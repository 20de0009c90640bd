package grid

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
)

// RodFrame adapts a live *rod.Page to the Frame interface. It tolerates
// the header/row selectors varying across portal skins by trying a
// short list of candidate table selectors before giving up.
type RodFrame struct {
	Page    *rod.Page
	Timeout time.Duration
}

// NewRodFrame wraps page with a default 10s per-call timeout.
func NewRodFrame(page *rod.Page) *RodFrame {
	return &RodFrame{Page: page, Timeout: 10 * time.Second}
}

var candidateTableSelectors = []string{
	"table.dhx_grid_obj",
	"table[role=grid]",
	"table.results-table",
	"table",
}

func (f *RodFrame) URL() string {
	info, err := f.Page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (f *RodFrame) table() (*rod.Element, error) {
	page := f.Page.Timeout(f.Timeout)
	var lastErr error
	for _, sel := range candidateTableSelectors {
		el, err := page.Element(sel)
		if err == nil && el != nil {
			return el, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no results table matched any known selector: %w", lastErr)
}

func (f *RodFrame) HeaderCells() ([]string, error) {
	table, err := f.table()
	if err != nil {
		return nil, err
	}
	headerCells, err := table.Elements("thead tr:first-child th, thead tr:first-child td")
	if err != nil || len(headerCells) == 0 {
		headerCells, err = table.Elements("tr:first-child th")
	}
	if err != nil {
		return nil, fmt.Errorf("locate header cells: %w", err)
	}
	out := make([]string, 0, len(headerCells))
	for _, el := range headerCells {
		text, err := el.Text()
		if err != nil {
			return nil, fmt.Errorf("read header cell text: %w", err)
		}
		out = append(out, strings.TrimSpace(text))
	}
	return out, nil
}

func (f *RodFrame) DataRowCells() ([][]string, error) {
	table, err := f.table()
	if err != nil {
		return nil, err
	}
	rows, err := table.Elements("tbody tr")
	if err != nil {
		return nil, fmt.Errorf("locate data rows: %w", err)
	}

	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		cells, err := row.Elements("td")
		if err != nil {
			return nil, fmt.Errorf("locate row cells: %w", err)
		}
		texts := make([]string, 0, len(cells))
		for _, cell := range cells {
			text, err := cell.Text()
			if err != nil {
				return nil, fmt.Errorf("read cell text: %w", err)
			}
			texts = append(texts, strings.TrimSpace(text))
		}
		out = append(out, texts)
	}
	return out, nil
}

func (f *RodFrame) RegistrosText() (string, bool) {
	page := f.Page.Timeout(f.Timeout)
	el, err := page.Element(".grid-counter, .dhx_grid_info, [data-role=registros-count]")
	if err != nil || el == nil {
		return "", false
	}
	text, err := el.Text()
	if err != nil {
		return "", false
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	return text, true
}
