package repository

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cometlocal/cometlocal/internal/model"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	r, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return r
}

func TestPutAndListTypes_RoundTripsSortedByTypeID(t *testing.T) {
	r := openTestRepo(t)
	types := []model.DocumentType{
		{TypeID: "zeta", Name: "Zeta"},
		{TypeID: "alpha", Name: "Alpha"},
	}
	if err := r.PutTypes(types); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := r.ListTypes()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].TypeID != "alpha" || got[1].TypeID != "zeta" {
		t.Fatalf("expected sorted types, got %+v", got)
	}
}

func TestListTypes_MissingFileReturnsEmptyNotError(t *testing.T) {
	r := openTestRepo(t)
	got, err := r.ListTypes()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty catalog, got %+v", got)
	}
}

func TestPutAndGetDocument_RoundTrips(t *testing.T) {
	r := openTestRepo(t)
	doc := model.Document{DocID: "doc-1", TypeID: "payroll", CompanyKey: "acme"}
	if err := r.PutDocument(doc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := r.GetDocument("doc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.TypeID != "payroll" || got.CompanyKey != "acme" {
		t.Fatalf("unexpected document round-tripped: %+v", got)
	}
}

func TestPutDocument_RejectsEmptyDocID(t *testing.T) {
	r := openTestRepo(t)
	if err := r.PutDocument(model.Document{}); err == nil {
		t.Fatal("expected error for empty doc_id")
	}
}

func TestListDocuments_SkipsCorruptEntriesAndSorts(t *testing.T) {
	r := openTestRepo(t)
	_ = r.PutDocument(model.Document{DocID: "doc-2", TypeID: "t"})
	_ = r.PutDocument(model.Document{DocID: "doc-1", TypeID: "t"})
	bad := filepath.Join(r.root, "docs", "doc-bad")
	if err := os.MkdirAll(bad, 0o755); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(bad, "index.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := r.ListDocuments()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].DocID != "doc-1" || got[1].DocID != "doc-2" {
		t.Fatalf("expected sorted documents, got %+v", got)
	}
}

func TestStoredFilePath_IsUnderDocDir(t *testing.T) {
	r := openTestRepo(t)
	got := r.StoredFilePath("doc-1", "file.pdf")
	want := filepath.Join(r.root, "docs", "doc-1", "file.pdf")
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestContainsPath_AcceptsPathsUnderRootAndRejectsOutside(t *testing.T) {
	r := openTestRepo(t)
	inside := filepath.Join(r.root, "docs", "doc-1", "file.pdf")
	ok, err := r.ContainsPath(inside)
	if err != nil || !ok {
		t.Fatalf("expected path under root accepted, got ok=%v err=%v", ok, err)
	}

	outside := filepath.Join(t.TempDir(), "elsewhere.pdf")
	ok, err = r.ContainsPath(outside)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected path outside root rejected")
	}
}
