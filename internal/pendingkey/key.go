// Package pendingkey computes the deterministic fingerprint of a scraped
// pending-requirement row (spec §4.2). The key is used both to dedupe
// rows across pagination and to re-locate a row during execution.
package pendingkey

import (
	"strings"
	"unicode"
)

// Row is the subset of PendingRequirement fields the key is derived
// from, plus an optional internal identifier (href parameter or data
// attribute) when the portal exposes one.
type Row struct {
	InternalID     string
	TipoDoc        string
	Elemento       string
	Empresa        string
	Estado         string
	Origen         string
	FechaSolicitud string
	Inicio         string
	Fin            string
}

// Compute builds the pending-item key for a row, trying each
// construction strategy in order (spec §4.2):
//
//  1. An internal identifier, if the row carries one.
//  2. A fixed-order concatenation of non-empty normalized fields.
//  3. A fallback raw_row_signature built from the first five cell texts.
func Compute(row Row, firstFiveCells []string) string {
	if id := Normalize(row.InternalID); id != "" {
		return "ID:" + id
	}

	var parts []string
	appendField := func(label, value string) {
		if n := Normalize(value); n != "" {
			parts = append(parts, label+":"+n)
		}
	}
	appendField("TIPO", row.TipoDoc)
	appendField("ELEM", row.Elemento)
	appendField("EMP", row.Empresa)
	appendField("EST", row.Estado)
	appendField("ORIG", row.Origen)
	appendField("FSOL", row.FechaSolicitud)
	appendField("INI", row.Inicio)
	appendField("FIN", row.Fin)

	if len(parts) > 0 {
		return strings.Join(parts, " | ")
	}

	return RawRowSignature(firstFiveCells)
}

// RawRowSignature joins up to the first five cell texts with "|" as the
// last-resort fallback fingerprint (spec §4.2).
func RawRowSignature(cells []string) string {
	n := len(cells)
	if n > 5 {
		n = 5
	}
	normalized := make([]string, n)
	for i := 0; i < n; i++ {
		normalized[i] = Normalize(cells[i])
	}
	return strings.Join(normalized, "|")
}

// Normalize folds s to uppercase, collapses internal whitespace runs to
// a single space, and trims the result. Two rows that differ only in
// rendering whitespace or case produce the same normalized field, and
// therefore the same key (spec §4.2).
func Normalize(s string) string {
	s = strings.ToUpper(s)

	var b strings.Builder
	b.Grow(len(s))
	lastWasSpace := false
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsSpace(r) {
			if lastWasSpace {
				continue
			}
			lastWasSpace = true
			b.WriteRune(' ')
			continue
		}
		lastWasSpace = false
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
