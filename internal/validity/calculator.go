// Package validity implements the pure function mapping a document
// type's policy plus a document's metadata and today's date onto a
// validity status (spec §4.1).
package validity

import (
	"fmt"
	"time"

	"github.com/cometlocal/cometlocal/internal/model"
)

// Status is the computed validity state of a document.
type Status string

const (
	StatusUnknown      Status = "UNKNOWN"
	StatusValid        Status = "VALID"
	StatusExpiringSoon Status = "EXPIRING_SOON"
	StatusExpired      Status = "EXPIRED"
)

// DefaultExpiringSoonThresholdDays is used when the caller passes 0.
const DefaultExpiringSoonThresholdDays = 30

// Result is the full output of Calculate (spec §4.1).
type Result struct {
	Status           Status
	BaseDate         *time.Time
	BaseReason       string
	ValidityEndDate  *time.Time
	DaysUntilExpiry  int // only meaningful when ValidityEndDate is set
}

// InvalidPolicyError is returned when a date cannot be parsed or month
// arithmetic overflows (spec §4.1). The calculator otherwise never
// errors — missing inputs produce StatusUnknown instead.
type InvalidPolicyError struct {
	Reason string
}

func (e *InvalidPolicyError) Error() string {
	return fmt.Sprintf("validity: invalid policy: %s", e.Reason)
}

// Calculate is the pure function described in spec §4.1. today is passed
// in explicitly (never time.Now()) so the result is reproducibly
// deterministic for the same inputs (testable property #6).
func Calculate(typ model.DocumentType, doc model.Document, today time.Time, expiringSoonThresholdDays int) (Result, error) {
	if expiringSoonThresholdDays <= 0 {
		expiringSoonThresholdDays = DefaultExpiringSoonThresholdDays
	}
	today = truncateToDate(today)

	baseDate, baseReason, unknown := resolveBaseDate(typ, doc)
	if unknown {
		return Result{Status: StatusUnknown, BaseReason: baseReason}, nil
	}

	endDate, err := resolveEndDate(typ, doc, baseDate)
	if err != nil {
		return Result{}, err
	}
	if endDate == nil {
		return Result{Status: StatusUnknown, BaseDate: &baseDate, BaseReason: baseReason}, nil
	}

	daysUntilExpiry := int(endDate.Sub(today).Hours() / 24)

	status := classifyStatus(*endDate, today, daysUntilExpiry, expiringSoonThresholdDays)

	return Result{
		Status:          status,
		BaseDate:        &baseDate,
		BaseReason:      baseReason,
		ValidityEndDate: endDate,
		DaysUntilExpiry: daysUntilExpiry,
	}, nil
}

// resolveBaseDate implements the §4.1 "Base-date selection, first match
// wins" ladder. unknown==true means the caller should return UNKNOWN
// immediately with the given reason.
func resolveBaseDate(typ model.DocumentType, doc model.Document) (base time.Time, reason string, unknown bool) {
	if doc.Extracted.ValidityStartDate != nil {
		return truncateToDate(*doc.Extracted.ValidityStartDate), "validity_start_date", false
	}
	if typ.ValidityStartMode == model.ValidityStartManual {
		return time.Time{}, "missing_validity_start_date_for_manual_mode", true
	}
	if doc.Extracted.IssueDate != nil {
		return truncateToDate(*doc.Extracted.IssueDate), "issue_date", false
	}
	if doc.PeriodKey != "" && typ.ValidityPolicy.IsPeriodicSubmission() {
		if t, ok := parsePeriodKeyMonth(doc.PeriodKey); ok {
			return t, "period_key", false
		}
	}
	return time.Time{}, "", true
}

// resolveEndDate implements the §4.1 "End-date selection, first match
// wins" ladder.
func resolveEndDate(typ model.DocumentType, doc model.Document, base time.Time) (*time.Time, error) {
	if doc.ValidityOverride != nil && doc.ValidityOverride.ValidTo != nil {
		t := truncateToDate(*doc.ValidityOverride.ValidTo)
		return &t, nil
	}

	policy := typ.ValidityPolicy
	if policy.NMonths != nil && policy.NMonths.N > 0 {
		t, err := addMonthsClamped(base, policy.NMonths.N)
		if err != nil {
			return nil, err
		}
		return &t, nil
	}

	switch policy.Mode {
	case model.PolicyAnnual:
		months := policy.AnnualMonths
		if months <= 0 {
			months = 12
		}
		t, err := addMonthsClamped(base, months)
		if err != nil {
			return nil, err
		}
		return &t, nil
	case model.PolicyMonthly:
		t := lastDayOfMonth(addCalendarMonths(base, 1))
		return &t, nil
	case model.PolicyFixedEndDate:
		return nil, nil
	default:
		return nil, nil
	}
}

func classifyStatus(endDate, today time.Time, daysUntilExpiry, thresholdDays int) Status {
	if endDate.Before(today) {
		return StatusExpired
	}
	if daysUntilExpiry >= 0 && daysUntilExpiry <= thresholdDays {
		return StatusExpiringSoon
	}
	return StatusValid
}

func truncateToDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// parsePeriodKeyMonth parses "YYYY-MM" or "YYYY" to the first-of-month
// (or first-of-year) date. Returns ok=false when the key is malformed.
func parsePeriodKeyMonth(periodKey string) (time.Time, bool) {
	if t, err := time.Parse("2006-01", periodKey); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006", periodKey); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// addCalendarMonths adds n months to t, clamping the day-of-month to the
// target month's last day (spec §4.1 "Month arithmetic clamps...").
func addCalendarMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	targetMonthIndex := int(m) - 1 + n
	targetYear := y + targetMonthIndex/12
	targetMonth := targetMonthIndex % 12
	if targetMonth < 0 {
		targetMonth += 12
		targetYear--
	}
	firstOfTarget := time.Date(targetYear, time.Month(targetMonth+1), 1, 0, 0, 0, 0, time.UTC)
	lastDay := lastDayOfMonth(firstOfTarget).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(targetYear, time.Month(targetMonth+1), d, 0, 0, 0, 0, time.UTC)
}

func addMonthsClamped(t time.Time, n int) (time.Time, error) {
	if n < 0 {
		return time.Time{}, &InvalidPolicyError{Reason: "negative month offset"}
	}
	return addCalendarMonths(t, n), nil
}

func lastDayOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	firstOfNext := time.Date(y, m+1, 1, 0, 0, 0, 0, time.UTC)
	return firstOfNext.AddDate(0, 0, -1)
}
