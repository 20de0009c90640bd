package matcher

import (
	"testing"
	"time"

	"github.com/cometlocal/cometlocal/internal/cometerr"
	"github.com/cometlocal/cometlocal/internal/model"
)

func mustDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func sampleType() model.DocumentType {
	return model.DocumentType{
		TypeID:            "social_security_receipt",
		Scope:             model.ScopeCompany,
		PlatformAliases:   []string{"Recibo SS", "Recibo de la Seguridad Social"},
		ValidityStartMode: model.ValidityStartIssueDate,
		ValidityPolicy:    model.ValidityPolicy{Mode: model.PolicyMonthly},
	}
}

func TestMatch_ExactMatchHighConfidence(t *testing.T) {
	typ := sampleType()
	issued := mustDate("2026-07-01")
	doc := model.Document{
		DocID:      "doc-1",
		TypeID:     typ.TypeID,
		CompanyKey: "ACME",
		PeriodKey:  "2026-07",
		Extracted:  model.Extracted{IssueDate: &issued},
	}
	req := model.PendingRequirement{
		TipoDoc:    "Recibo SS",
		CompanyKey: "ACME",
		Inicio:     "2026-07-01",
	}

	res := Match(req, []model.DocumentType{typ}, []model.Document{doc}, mustDate("2026-07-15"), 30)
	if res.Matched == nil || res.Matched.DocID != "doc-1" {
		t.Fatalf("expected doc-1 to match, got %+v", res.Matched)
	}
	if res.Confidence != ConfidenceExact {
		t.Fatalf("expected exact confidence, got %v", res.Confidence)
	}
}

func TestMatch_NoAliasMatch(t *testing.T) {
	typ := sampleType()
	req := model.PendingRequirement{TipoDoc: "Unrelated Document"}
	res := Match(req, []model.DocumentType{typ}, nil, mustDate("2026-07-15"), 30)
	if res.ReasonCode != cometerr.CodeNoAliasMatch {
		t.Fatalf("expected no_alias_match, got %q", res.ReasonCode)
	}
}

func TestMatch_NoDocsOfType(t *testing.T) {
	typ := sampleType()
	req := model.PendingRequirement{TipoDoc: "Recibo SS", CompanyKey: "ACME"}
	res := Match(req, []model.DocumentType{typ}, nil, mustDate("2026-07-15"), 30)
	if res.ReasonCode != cometerr.CodeNoDocsOfType {
		t.Fatalf("expected no_docs_of_type, got %q", res.ReasonCode)
	}
}

func TestMatch_SubjectMismatch(t *testing.T) {
	typ := sampleType()
	doc := model.Document{DocID: "doc-1", TypeID: typ.TypeID, CompanyKey: "OTHERCO"}
	req := model.PendingRequirement{TipoDoc: "Recibo SS", CompanyKey: "ACME"}
	res := Match(req, []model.DocumentType{typ}, []model.Document{doc}, mustDate("2026-07-15"), 30)
	if res.ReasonCode != cometerr.CodeSubjectMismatch {
		t.Fatalf("expected subject_mismatch, got %q", res.ReasonCode)
	}
}

func TestMatch_AllCandidatesExpired(t *testing.T) {
	typ := sampleType()
	issued := mustDate("2020-01-01")
	doc := model.Document{
		DocID: "doc-1", TypeID: typ.TypeID, CompanyKey: "ACME",
		Extracted: model.Extracted{IssueDate: &issued},
	}
	req := model.PendingRequirement{TipoDoc: "Recibo SS", CompanyKey: "ACME"}
	res := Match(req, []model.DocumentType{typ}, []model.Document{doc}, mustDate("2026-07-15"), 30)
	if res.ReasonCode != cometerr.CodeAllCandidatesExpired {
		t.Fatalf("expected all_candidates_expired, got %q", res.ReasonCode)
	}
}

func TestMatch_RankingPrefersMostRecentlyIssued(t *testing.T) {
	typ := sampleType()
	older := mustDate("2026-06-01")
	newer := mustDate("2026-07-01")
	docA := model.Document{DocID: "doc-old", TypeID: typ.TypeID, CompanyKey: "ACME", Extracted: model.Extracted{IssueDate: &older}}
	docB := model.Document{DocID: "doc-new", TypeID: typ.TypeID, CompanyKey: "ACME", Extracted: model.Extracted{IssueDate: &newer}}
	req := model.PendingRequirement{TipoDoc: "Recibo SS", CompanyKey: "ACME"}

	res := Match(req, []model.DocumentType{typ}, []model.Document{docA, docB}, mustDate("2026-07-15"), 30)
	if res.Matched == nil || res.Matched.DocID != "doc-new" {
		t.Fatalf("expected doc-new to win ranking, got %+v", res.Matched)
	}
}

func TestMatch_WorkerScopeUsesPersonKey(t *testing.T) {
	typ := sampleType()
	typ.Scope = model.ScopeWorker
	issued := mustDate("2026-07-01")
	doc := model.Document{DocID: "doc-1", TypeID: typ.TypeID, PersonKey: "JUAN.PEREZ", Extracted: model.Extracted{IssueDate: &issued}}
	req := model.PendingRequirement{TipoDoc: "Recibo SS", PersonKey: "JUAN.PEREZ"}

	res := Match(req, []model.DocumentType{typ}, []model.Document{doc}, mustDate("2026-07-15"), 30)
	if res.Matched == nil || res.Matched.DocID != "doc-1" {
		t.Fatalf("expected worker-scoped match, got %+v", res.Matched)
	}
}

func TestMatch_TopCandidatesListsRankedSurvivors(t *testing.T) {
	typ := sampleType()
	older := mustDate("2026-06-05")
	mid := mustDate("2026-06-20")
	newer := mustDate("2026-07-01")
	docs := []model.Document{
		{DocID: "doc-old", TypeID: typ.TypeID, CompanyKey: "ACME", Extracted: model.Extracted{IssueDate: &older}},
		{DocID: "doc-mid", TypeID: typ.TypeID, CompanyKey: "ACME", Extracted: model.Extracted{IssueDate: &mid}},
		{DocID: "doc-new", TypeID: typ.TypeID, CompanyKey: "ACME", Extracted: model.Extracted{IssueDate: &newer}},
	}
	req := model.PendingRequirement{TipoDoc: "Recibo SS", CompanyKey: "ACME"}

	res := Match(req, []model.DocumentType{typ}, docs, mustDate("2026-07-15"), 30)
	want := []string{"doc-new", "doc-mid", "doc-old"}
	if len(res.Debug.TopCandidates) != len(want) {
		t.Fatalf("expected %d top candidates, got %v", len(want), res.Debug.TopCandidates)
	}
	for i, id := range want {
		if res.Debug.TopCandidates[i] != id {
			t.Fatalf("expected top candidates %v, got %v", want, res.Debug.TopCandidates)
		}
	}
}

func TestMatch_TopCandidatesBoundedAtThree(t *testing.T) {
	typ := sampleType()
	issued := mustDate("2026-07-01")
	docs := make([]model.Document, 0, 5)
	for i := 0; i < 5; i++ {
		docs = append(docs, model.Document{DocID: string(rune('a' + i)), TypeID: typ.TypeID, CompanyKey: "ACME", Extracted: model.Extracted{IssueDate: &issued}})
	}
	req := model.PendingRequirement{TipoDoc: "Recibo SS", CompanyKey: "ACME"}

	res := Match(req, []model.DocumentType{typ}, docs, mustDate("2026-07-15"), 30)
	if len(res.Debug.TopCandidates) != 3 {
		t.Fatalf("expected top candidates bounded at 3, got %d", len(res.Debug.TopCandidates))
	}
}

func TestMatch_HumanHintSetOnFailureReasons(t *testing.T) {
	typ := sampleType()
	req := model.PendingRequirement{TipoDoc: "Unrelated"}
	res := Match(req, []model.DocumentType{typ}, nil, mustDate("2026-07-15"), 30)
	if res.HumanHint == "" {
		t.Fatal("expected a non-empty human hint on no_alias_match")
	}
}

func TestHumanHint_FallsBackForUnknownCodes(t *testing.T) {
	if HumanHint("") != "" {
		t.Fatal("expected empty hint for empty reason code")
	}
	if HumanHint("some_future_code") == "" {
		t.Fatal("expected a non-empty fallback hint for an unrecognized code")
	}
}

func TestMatch_DebugRecordsEveryStage(t *testing.T) {
	typ := sampleType()
	req := model.PendingRequirement{PendingItemKey: "key-1", TipoDoc: "Unrelated"}
	res := Match(req, []model.DocumentType{typ}, nil, mustDate("2026-07-15"), 30)
	if res.Debug.PendingItemKey != "key-1" {
		t.Fatalf("expected pending item key to be carried into debug, got %q", res.Debug.PendingItemKey)
	}
	if len(res.Debug.Stages) != 1 || res.Debug.Stages[0].Stage != "alias_resolve" {
		t.Fatalf("expected single alias_resolve stage on early exit, got %+v", res.Debug.Stages)
	}
}
