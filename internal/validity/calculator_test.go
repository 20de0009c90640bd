package validity

import (
	"testing"
	"time"

	"github.com/cometlocal/cometlocal/internal/model"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("parse date %q: %v", s, err)
	}
	return d
}

// S1 from spec §8: manual start mode + n_months.n=12.
func TestCalculate_ManualStartWithNMonths(t *testing.T) {
	typ := model.DocumentType{
		TypeID:            "T8447_RC",
		ValidityStartMode: model.ValidityStartManual,
		ValidityPolicy: model.ValidityPolicy{
			Mode:    model.PolicyAnnual,
			NMonths: &model.NMonths{N: 12},
		},
	}
	issue := mustDate(t, "2025-08-01")
	start := mustDate(t, "2026-05-30")
	doc := model.Document{
		TypeID:    typ.TypeID,
		PeriodKey: "2025-08",
		Extracted: model.Extracted{
			IssueDate:         &issue,
			ValidityStartDate: &start,
		},
	}
	today := mustDate(t, "2026-01-15")

	res, err := Calculate(typ, doc, today, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.BaseReason != "validity_start_date" {
		t.Fatalf("base reason = %q, want validity_start_date", res.BaseReason)
	}
	if !res.BaseDate.Equal(start) {
		t.Fatalf("base date = %v, want %v", res.BaseDate, start)
	}
	wantEnd := mustDate(t, "2027-05-30")
	if !res.ValidityEndDate.Equal(wantEnd) {
		t.Fatalf("end date = %v, want %v", res.ValidityEndDate, wantEnd)
	}
	if res.Status != StatusValid {
		t.Fatalf("status = %v, want VALID", res.Status)
	}
	if res.DaysUntilExpiry != 500 {
		t.Fatalf("days until expiry = %d, want 500", res.DaysUntilExpiry)
	}
}

func TestCalculate_ManualModeMissingStart(t *testing.T) {
	typ := model.DocumentType{ValidityStartMode: model.ValidityStartManual}
	doc := model.Document{}
	res, err := Calculate(typ, doc, mustDate(t, "2026-01-01"), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusUnknown {
		t.Fatalf("status = %v, want UNKNOWN", res.Status)
	}
	if res.BaseReason != "missing_validity_start_date_for_manual_mode" {
		t.Fatalf("base reason = %q", res.BaseReason)
	}
}

func TestCalculate_NoDatesAtAll(t *testing.T) {
	typ := model.DocumentType{ValidityStartMode: model.ValidityStartIssueDate}
	doc := model.Document{}
	res, err := Calculate(typ, doc, mustDate(t, "2026-01-01"), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusUnknown {
		t.Fatalf("status = %v, want UNKNOWN", res.Status)
	}
}

func TestCalculate_ValidityStartExactlyToday(t *testing.T) {
	typ := model.DocumentType{
		ValidityPolicy: model.ValidityPolicy{Mode: model.PolicyMonthly},
	}
	today := mustDate(t, "2026-03-10")
	doc := model.Document{
		Extracted: model.Extracted{ValidityStartDate: &today},
	}
	res, err := Calculate(typ, doc, today, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusValid {
		t.Fatalf("status = %v, want VALID", res.Status)
	}
	wantDays := int(res.ValidityEndDate.Sub(today).Hours() / 24)
	if res.DaysUntilExpiry != wantDays {
		t.Fatalf("days until expiry = %d, want %d", res.DaysUntilExpiry, wantDays)
	}
}

func TestCalculate_MonthlyLastDayClamp(t *testing.T) {
	typ := model.DocumentType{
		ValidityPolicy: model.ValidityPolicy{Mode: model.PolicyMonthly},
	}
	issue := mustDate(t, "2026-01-31")
	doc := model.Document{Extracted: model.Extracted{IssueDate: &issue}}
	res, err := Calculate(typ, doc, mustDate(t, "2026-01-01"), 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := mustDate(t, "2026-02-28")
	if !res.ValidityEndDate.Equal(want) {
		t.Fatalf("end date = %v, want %v", res.ValidityEndDate, want)
	}
}

func TestCalculate_ExpiredAndExpiringSoon(t *testing.T) {
	typ := model.DocumentType{ValidityPolicy: model.ValidityPolicy{Mode: model.PolicyAnnual}}
	issue := mustDate(t, "2024-01-01")
	doc := model.Document{Extracted: model.Extracted{IssueDate: &issue}}

	expired, err := Calculate(typ, doc, mustDate(t, "2026-01-01"), 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expired.Status != StatusExpired {
		t.Fatalf("status = %v, want EXPIRED", expired.Status)
	}

	soon, err := Calculate(typ, doc, mustDate(t, "2024-12-15"), 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if soon.Status != StatusExpiringSoon {
		t.Fatalf("status = %v, want EXPIRING_SOON", soon.Status)
	}
}

func TestCalculate_Override(t *testing.T) {
	typ := model.DocumentType{ValidityPolicy: model.ValidityPolicy{Mode: model.PolicyFixedEndDate}}
	issue := mustDate(t, "2025-01-01")
	override := mustDate(t, "2030-01-01")
	doc := model.Document{
		Extracted:        model.Extracted{IssueDate: &issue},
		ValidityOverride: &model.ValidityOverride{ValidTo: &override},
	}
	res, err := Calculate(typ, doc, mustDate(t, "2026-01-01"), 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.ValidityEndDate.Equal(override) {
		t.Fatalf("end date = %v, want override %v", res.ValidityEndDate, override)
	}
}

func TestCalculate_Deterministic(t *testing.T) {
	typ := model.DocumentType{ValidityPolicy: model.ValidityPolicy{Mode: model.PolicyAnnual}}
	issue := mustDate(t, "2025-06-01")
	doc := model.Document{Extracted: model.Extracted{IssueDate: &issue}}
	today := mustDate(t, "2026-01-01")

	a, err := Calculate(typ, doc, today, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Calculate(typ, doc, today, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Status != b.Status || !a.ValidityEndDate.Equal(*b.ValidityEndDate) {
		t.Fatalf("calculator is not deterministic: %+v vs %+v", a, b)
	}
}

func TestPolicy_IsPeriodicSubmission(t *testing.T) {
	cases := []struct {
		name   string
		policy model.ValidityPolicy
		want   bool
	}{
		{"monthly no override", model.ValidityPolicy{Mode: model.PolicyMonthly}, true},
		{"monthly n=1", model.ValidityPolicy{Mode: model.PolicyMonthly, NMonths: &model.NMonths{N: 1}}, true},
		{"monthly renewal n=12", model.ValidityPolicy{Mode: model.PolicyMonthly, NMonths: &model.NMonths{N: 12}}, false},
		{"annual no override", model.ValidityPolicy{Mode: model.PolicyAnnual}, true},
		{"annual renewal n=24", model.ValidityPolicy{Mode: model.PolicyAnnual, NMonths: &model.NMonths{N: 24}}, false},
		{"fixed end date", model.ValidityPolicy{Mode: model.PolicyFixedEndDate}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.policy.IsPeriodicSubmission(); got != c.want {
				t.Fatalf("IsPeriodicSubmission() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestPolicy_IsRenewal(t *testing.T) {
	p := model.ValidityPolicy{Mode: model.PolicyMonthly, NMonths: &model.NMonths{N: 12}}
	if !p.IsRenewal() {
		t.Fatal("expected renewal type")
	}
	p2 := model.ValidityPolicy{Mode: model.PolicyMonthly, NMonths: &model.NMonths{N: 1}}
	if p2.IsRenewal() {
		t.Fatal("n=1 should not be a renewal type")
	}
}
