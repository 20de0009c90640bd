package grid

import "testing"

type fakeFrame struct {
	url       string
	header    []string
	rows      [][]string
	registros string
	hasReg    bool
}

func (f *fakeFrame) URL() string                  { return f.url }
func (f *fakeFrame) HeaderCells() ([]string, error) { return f.header, nil }
func (f *fakeFrame) DataRowCells() ([][]string, error) { return f.rows, nil }
func (f *fakeFrame) RegistrosText() (string, bool) { return f.registros, f.hasReg }

func TestExtract_CanonicalizesHeadersAndRows(t *testing.T) {
	f := &fakeFrame{
		url:    "https://portal/pending?apartment=123",
		header: []string{"Tipo Documento", "Trabajador", "Empresa"},
		rows: [][]string{
			{"Recibo SS", "Juan Perez", "ACME"},
		},
		registros: "1 Registros",
		hasReg:    true,
	}
	res, err := Extract(f, DefaultHeaderAliases())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(res.Rows))
	}
	row := res.Rows[0]
	if row.Cells["tipo_doc"] != "Recibo SS" || row.Cells["elemento"] != "Juan Perez" || row.Cells["empresa"] != "ACME" {
		t.Fatalf("unexpected cells: %+v", row.Cells)
	}
	if row.PendingItemKey == "" {
		t.Fatal("expected non-empty pending item key")
	}
	if res.RegistrosCount != 1 {
		t.Fatalf("registros count = %d, want 1", res.RegistrosCount)
	}
}

func TestExtract_GridParseMismatch(t *testing.T) {
	f := &fakeFrame{
		url:       "https://portal/pending",
		header:    []string{"Tipo Documento"},
		rows:      nil,
		registros: "5 Registros",
		hasReg:    true,
	}
	_, err := Extract(f, DefaultHeaderAliases())
	if err == nil {
		t.Fatal("expected grid_parse_mismatch error")
	}
	mismatch, ok := err.(*GridParseMismatchError)
	if !ok {
		t.Fatalf("expected *GridParseMismatchError, got %T", err)
	}
	if mismatch.RegistrosCount != 5 {
		t.Fatalf("registros count = %d, want 5", mismatch.RegistrosCount)
	}
}

func TestExtract_EmptyGridNoCounterIsNotAnError(t *testing.T) {
	f := &fakeFrame{url: "https://portal/pending", header: []string{"Tipo Documento"}}
	res, err := Extract(f, DefaultHeaderAliases())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Rows) != 0 {
		t.Fatalf("expected 0 rows, got %d", len(res.Rows))
	}
}

// Two rows with identical canonical fields produce identical keys
// (testable property #1).
func TestExtract_IdenticalRowsShareKey(t *testing.T) {
	f := &fakeFrame{
		url:    "https://portal/pending",
		header: []string{"Tipo Documento", "Trabajador", "Empresa"},
		rows: [][]string{
			{"Recibo SS", "Juan Perez", "ACME"},
			{"recibo  ss", " Juan   Perez ", "acme"},
		},
	}
	res, err := Extract(f, DefaultHeaderAliases())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Rows[0].PendingItemKey != res.Rows[1].PendingItemKey {
		t.Fatalf("expected identical keys, got %q vs %q", res.Rows[0].PendingItemKey, res.Rows[1].PendingItemKey)
	}
}
