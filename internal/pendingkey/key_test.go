package pendingkey

import "testing"

func TestCompute_InternalIDWins(t *testing.T) {
	row := Row{InternalID: " abc-123 ", TipoDoc: "Recibo SS"}
	got := Compute(row, nil)
	if got != "ID:ABC-123" {
		t.Fatalf("got %q", got)
	}
}

func TestCompute_FieldConcatenationIgnoresWhitespaceAndCase(t *testing.T) {
	a := Compute(Row{TipoDoc: "Recibo  SS", Elemento: "Emilio Roldán", Empresa: "ACME"}, nil)
	b := Compute(Row{TipoDoc: "  recibo ss", Elemento: "emilio roldán", Empresa: "acme "}, nil)
	if a != b {
		t.Fatalf("rows that differ only by rendering should share a key: %q vs %q", a, b)
	}
}

func TestCompute_FixedFieldOrder(t *testing.T) {
	got := Compute(Row{TipoDoc: "T", Elemento: "E", Empresa: "M", Estado: "S", Origen: "O", FechaSolicitud: "F", Inicio: "I", Fin: "N"}, nil)
	want := "TIPO:T | ELEM:E | EMP:M | EST:S | ORIG:O | FSOL:F | INI:I | FIN:N"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestCompute_FallbackRawRowSignature(t *testing.T) {
	got := Compute(Row{}, []string{"a", "b", "c", "d", "e", "f"})
	want := RawRowSignature([]string{"a", "b", "c", "d", "e", "f"})
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if got != "A|B|C|D|E" {
		t.Fatalf("raw row signature should cap at five cells, got %q", got)
	}
}

func TestNormalize_IsIdempotent(t *testing.T) {
	// Canonicalizing a row then re-canonicalizing it is a fixed point.
	once := Normalize("  Recibo   SS  ")
	twice := Normalize(once)
	if once != twice {
		t.Fatalf("normalize is not a fixed point: %q vs %q", once, twice)
	}
}

func TestCompute_IdenticalFieldsProduceIdenticalKeys(t *testing.T) {
	r1 := Row{TipoDoc: "Recibo SS", Elemento: "Juan Perez", Empresa: "ACME"}
	r2 := r1
	if Compute(r1, nil) != Compute(r2, nil) {
		t.Fatal("identical canonical fields must produce identical keys")
	}
}
