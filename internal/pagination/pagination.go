// Package pagination walks a paginated pending-requirements grid and
// assembles a deduplicated, order-preserving row set bounded by a hard
// page and item cap (spec §4.6).
package pagination

import (
	"fmt"
	"log/slog"
	"time"
)

const (
	// MaxPages bounds how many pages Walk will ever request.
	MaxPages = 10
	// MaxItems bounds how many distinct pending items Walk will ever
	// accumulate, regardless of how many pages remain.
	MaxItems = 200

	perPageTransitionTimeout = 15 * time.Second
)

// Row is the minimal shape Walk needs from each grid page: a map of
// cells keyed by canonical field name and the pending-item
// key computed for it (internal/grid already computed both).
type Row struct {
	Cells          map[string]string
	PendingItemKey string
}

// Pager is the capability surface needed to read one page and advance
// to the next.
type Pager interface {
	// CurrentRows returns the canonicalized rows visible on the
	// current page.
	CurrentRows() ([]Row, error)
	// HasNextPage reports whether a next-page control is present and
	// enabled.
	HasNextPage() (bool, error)
	// GoToNextPage clicks the next-page control and waits for the
	// page transition to settle.
	GoToNextPage(timeout time.Duration) error
}

// Result is the accumulated outcome of walking all pages.
type Result struct {
	Rows         []Row
	PagesVisited int
	Truncated    bool // true if MaxPages or MaxItems was hit before pagination ended naturally
	TruncatedBy  string
}

// Walk iterates pages starting from the page currently loaded in
// pager, deduplicating by PendingItemKey with first-occurrence-wins
// ordering (testable property: dedupe is order-preserving).
func Walk(pager Pager, logger *slog.Logger) (Result, error) {
	var res Result
	seen := make(map[string]bool)

	for page := 1; page <= MaxPages; page++ {
		rows, err := pager.CurrentRows()
		if err != nil {
			return res, fmt.Errorf("pagination: read page %d: %w", page, err)
		}
		res.PagesVisited = page

		for _, r := range rows {
			if seen[r.PendingItemKey] {
				continue
			}
			if len(res.Rows) >= MaxItems {
				res.Truncated = true
				res.TruncatedBy = "max_items"
				if logger != nil {
					logger.Warn("pagination: max_items reached, stopping", "max_items", MaxItems)
				}
				return res, nil
			}
			seen[r.PendingItemKey] = true
			res.Rows = append(res.Rows, r)
		}

		if page == MaxPages {
			hasNext, err := pager.HasNextPage()
			if err == nil && hasNext {
				res.Truncated = true
				res.TruncatedBy = "max_pages"
				if logger != nil {
					logger.Warn("pagination: max_pages reached with more pages remaining", "max_pages", MaxPages)
				}
			}
			break
		}

		hasNext, err := pager.HasNextPage()
		if err != nil {
			return res, fmt.Errorf("pagination: check next page at page %d: %w", page, err)
		}
		if !hasNext {
			break
		}
		if err := pager.GoToNextPage(perPageTransitionTimeout); err != nil {
			return res, fmt.Errorf("pagination: advance past page %d: %w", page, err)
		}
	}

	return res, nil
}
