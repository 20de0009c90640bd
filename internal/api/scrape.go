package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"

	"github.com/cometlocal/cometlocal/internal/browserhost"
	"github.com/cometlocal/cometlocal/internal/cometerr"
	"github.com/cometlocal/cometlocal/internal/decision"
	"github.com/cometlocal/cometlocal/internal/matcher"
	"github.com/cometlocal/cometlocal/internal/model"
	"github.com/cometlocal/cometlocal/internal/pagination"
	"github.com/cometlocal/cometlocal/internal/pendingkey"
	"github.com/cometlocal/cometlocal/internal/planbuilder"
	"github.com/cometlocal/cometlocal/internal/portaladapter"
	"github.com/cometlocal/cometlocal/internal/repository"
)

// PlanBuildRequest is the request body both Plan Builder endpoints
// accept. spec §4.9 names the response contract but leaves the
// request shape to the HTTP surface; this is CometLocal's own design.
type PlanBuildRequest struct {
	PortalURL           string `json:"portal_url"`
	ExpectedURLFragment string `json:"expected_url_fragment"`
	Headless            bool   `json:"headless"`
}

// scrapeOutcome is the full result of one browser-driven scrape+match
// pass, before either Plan Builder mode decides what to persist.
type scrapeOutcome struct {
	Items        []model.PlanItem
	Counts       model.RunCounts
	Diagnostics  planbuilder.Diagnostics
	StorageState []byte // Playwright-style cookie jar captured post-scrape
}

// scrapeAndMatch drives a fresh, exclusive browser container through
// the full read side of the pipeline: modal dismiss, search-ensure,
// pagination walk, match, decide (spec §4.3-§4.8). evidenceDir may be
// empty, in which case no screenshots are captured (read-only mode,
// spec §4.5 "skipped when no evidence directory is provided").
func (s *Server) scrapeAndMatch(ctx context.Context, runID string, req PlanBuildRequest, evidenceDir string, repo *repository.Repository) (scrapeOutcome, *cometerr.Structured) {
	cfg := s.cfgManager.Get()

	host, err := browserhost.Launch(ctx, browserhost.Options{
		Image:       cfg.Browser.Image,
		Headless:    req.Headless || cfg.Browser.HeadlessByDefault,
		EvidenceDir: evidenceDir,
	}, runID)
	if err != nil {
		return scrapeOutcome{}, cometerr.Wrap(cometerr.CodeReadonlyComputeFailed, "could not launch browser host", err)
	}
	defer host.Close(ctx)

	browser := rod.New().ControlURL(host.ControlURL())
	if err := browser.Connect(); err != nil {
		return scrapeOutcome{}, cometerr.Wrap(cometerr.CodeReadonlyComputeFailed, "could not connect to browser host", err)
	}
	defer browser.Close()

	page, err := browser.Page(proto.TargetCreateTarget{URL: req.PortalURL})
	if err != nil {
		return scrapeOutcome{}, cometerr.Wrap(cometerr.CodeReadonlyComputeFailed, "could not open portal page", err)
	}

	adapter := portaladapter.NewRodAdapter(page, s.logger)

	if _, err := adapter.DismissBlockers(evidenceDir); err != nil {
		return scrapeOutcome{}, cometerr.Wrap(cometerr.CodeDHXBlockerNotDismissed, "could not dismiss portal overlays", err)
	}

	if _, err := adapter.EnsureResultsPopulated(req.ExpectedURLFragment, evidenceDir); err != nil {
		return scrapeOutcome{}, cometerr.Wrap(cometerr.CodeNoRowsAfterSearch, "could not populate the pending-requirements grid", err)
	}

	pageResult, err := adapter.ScrapePending()
	if err != nil {
		return scrapeOutcome{}, cometerr.Wrap(cometerr.CodeGridParseMismatch, "could not walk the pending-requirements grid", err)
	}

	var diagnostics planbuilder.Diagnostics
	if pageResult.Truncated {
		diagnostics.Warnings = append(diagnostics.Warnings, fmt.Sprintf("pagination_truncated:%s", pageResult.TruncatedBy))
	}

	types, err := repo.ListTypes()
	if err != nil {
		return scrapeOutcome{}, cometerr.Wrap(cometerr.CodeReadonlyComputeFailed, "could not read document type catalog", err)
	}
	docs, err := repo.ListDocuments()
	if err != nil {
		return scrapeOutcome{}, cometerr.Wrap(cometerr.CodeReadonlyComputeFailed, "could not read document repository", err)
	}

	items, counts := matchPendingRows(pageResult.Rows, types, docs, time.Now(), cfg.Matching.ExpiringSoonThresholdDays, cfg.Matching.MinConfidence)

	storageState, err := captureStorageState(page)
	if err != nil {
		s.logger.Warn("api: could not capture storage state", "run_id", runID, "error", err)
	}

	return scrapeOutcome{Items: items, Counts: counts, Diagnostics: diagnostics, StorageState: storageState}, nil
}

// toPendingRequirement converts a pagination.Row's canonical cells
// into a PendingRequirement, deriving the subject keys the matcher's
// subject filter needs with the same normalization pendingkey already
// uses for row fingerprints.
func toPendingRequirement(row pagination.Row) model.PendingRequirement {
	cell := func(k string) string { return row.Cells[k] }
	return model.PendingRequirement{
		TipoDoc:        cell("tipo_doc"),
		Elemento:       cell("elemento"),
		Empresa:        cell("empresa"),
		Estado:         cell("estado"),
		Origen:         cell("origen"),
		FechaSolicitud: cell("fecha_solicitud"),
		Inicio:         cell("inicio"),
		Fin:            cell("fin"),
		PersonKey:      pendingkey.Normalize(cell("elemento")),
		CompanyKey:     pendingkey.Normalize(cell("empresa")),
		PendingItemKey: row.PendingItemKey,
	}
}

func matchPendingRows(rows []pagination.Row, types []model.DocumentType, docs []model.Document, now time.Time, expiringSoonThresholdDays int, minConfidence float64) ([]model.PlanItem, model.RunCounts) {
	items := make([]model.PlanItem, 0, len(rows))
	counts := model.RunCounts{PendingTotal: len(rows)}

	for _, row := range rows {
		req := toPendingRequirement(row)
		result := matcher.Match(req, types, docs, now, expiringSoonThresholdDays)

		dec, reasonCode, blocking := decision.Decide(decision.Input{
			Matched:       result.Matched,
			Confidence:    result.Confidence,
			ReasonCode:    result.ReasonCode,
			MinConfidence: minConfidence,
		})
		if reasonCode == "" {
			reasonCode = result.ReasonCode
		}

		humanHint := result.HumanHint
		if len(blocking) > 0 {
			humanHint = matcher.HumanHint(blocking[0])
		}

		switch dec {
		case model.DecisionAutoUpload:
			counts.AutoUpload++
		case model.DecisionReviewRequired:
			counts.ReviewRequired++
		case model.DecisionNoMatch:
			counts.NoMatch++
		}

		items = append(items, model.PlanItem{
			ItemID:            uuid.NewString(),
			PendingRef:        req,
			MatchedDoc:        result.Matched,
			MatchedRule:       result.MatchedRule,
			Confidence:        result.Confidence,
			Decision:          dec,
			PrimaryReasonCode: reasonCode,
			HumanHint:         humanHint,
			BlockingIssues:    blocking,
		})
	}

	return items, counts
}

// captureStorageState reads the live page's cookies into a
// Playwright-style storage_state.json payload so a later headful
// execution can restore the same authenticated session (spec §4.11
// step 1).
func captureStorageState(page *rod.Page) ([]byte, error) {
	cookies, err := page.Cookies([]string{})
	if err != nil {
		return nil, fmt.Errorf("api: read page cookies: %w", err)
	}

	type cookieOut struct {
		Name     string  `json:"name"`
		Value    string  `json:"value"`
		Domain   string  `json:"domain"`
		Path     string  `json:"path"`
		Expires  float64 `json:"expires"`
		HTTPOnly bool    `json:"httpOnly"`
		Secure   bool    `json:"secure"`
	}
	out := struct {
		Cookies []cookieOut `json:"cookies"`
	}{Cookies: make([]cookieOut, 0, len(cookies))}

	for _, c := range cookies {
		out.Cookies = append(out.Cookies, cookieOut{
			Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path,
			Expires: float64(c.Expires), HTTPOnly: c.HTTPOnly, Secure: c.Secure,
		})
	}

	return json.Marshal(out)
}
