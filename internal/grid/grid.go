// Package grid parses the tabular DOM of a coordinator portal's
// pending-requirements page into normalized rows (spec §4.3).
//
// DOM access is narrowed to the Frame interface below so the parsing
// logic can be exercised with a fake in tests without driving a real
// browser — the same narrowing the teacher applies to the Temporal SDK
// in internal/scheduler/scheduler.go's unexported temporalClient
// interface.
package grid

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cometlocal/cometlocal/internal/pendingkey"
)

// Frame is the capability surface grid extraction needs from a live
// browser frame. NewRodFrame (internal/grid/rodframe.go) adapts a real
// *rod.Page to this interface.
type Frame interface {
	URL() string
	// HeaderCells returns the header row's cell texts in DOM order, or
	// an error if no results table could be located.
	HeaderCells() ([]string, error)
	// DataRowCells returns each data row's cell texts in DOM order.
	DataRowCells() ([][]string, error)
	// RegistrosText returns the "N Registros" counter text near the
	// grid, if the portal renders one.
	RegistrosText() (text string, ok bool)
}

// HeaderAliases maps a canonical column name to the set of header
// labels (Spanish/Catalan variants, case-insensitive) the portal may
// render for it. Extract is tolerant of any alias matching.
type HeaderAliases map[string][]string

// DefaultHeaderAliases covers the column labels observed across
// coordinator portal variants.
func DefaultHeaderAliases() HeaderAliases {
	return HeaderAliases{
		"tipo_doc":        {"Tipo Documento", "Tipo de documento", "Tipus de document", "Documento"},
		"elemento":        {"Trabajador", "Elemento", "Treballador", "Subject"},
		"empresa":         {"Empresa", "Compañía", "Companyia"},
		"estado":          {"Estado", "Estat", "Status"},
		"origen":          {"Origen", "Origen", "Source"},
		"fecha_solicitud": {"Fecha Solicitud", "Data Sol·licitud", "Fecha de solicitud"},
		"inicio":          {"Inicio", "Inici", "Periodo Inicio"},
		"fin":             {"Fin", "Fi", "Periodo Fin"},
	}
}

// Row is one canonicalized data row: header->cell-text plus the two
// derived fingerprint fields.
type Row struct {
	Cells           map[string]string
	PendingItemKey  string
	RawRowSignature string
}

// Result is the full output of Extract, including diagnostics used by
// the pagination driver and the executor's failure classification.
type Result struct {
	Rows            []Row
	FrameURL        string
	RegistrosCount  int
	HasRegistros    bool
}

// GridParseMismatchError is raised when the portal's own counter shows
// N>0 Registros but zero data rows parsed (spec §4.3 failure mode).
type GridParseMismatchError struct {
	FrameURL       string
	RegistrosCount int
}

func (e *GridParseMismatchError) Error() string {
	return fmt.Sprintf("grid_parse_mismatch: counter shows %d registros but 0 rows parsed at %s", e.RegistrosCount, e.FrameURL)
}

// Extract parses the frame's results table and canonicalizes each row
// (spec §4.3).
func Extract(frame Frame, aliases HeaderAliases) (Result, error) {
	headers, err := frame.HeaderCells()
	if err != nil {
		return Result{}, fmt.Errorf("grid: locate header row: %w", err)
	}
	canonicalHeaders := canonicalizeHeaders(headers, aliases)

	rawRows, err := frame.DataRowCells()
	if err != nil {
		return Result{}, fmt.Errorf("grid: read data rows: %w", err)
	}

	res := Result{FrameURL: frame.URL()}
	if text, ok := frame.RegistrosText(); ok {
		res.HasRegistros = true
		if n, ok := parseRegistrosCount(text); ok {
			res.RegistrosCount = n
		}
	}

	for _, cellTexts := range rawRows {
		res.Rows = append(res.Rows, canonicalizeRow(canonicalHeaders, cellTexts))
	}

	if res.HasRegistros && res.RegistrosCount > 0 && len(res.Rows) == 0 {
		return res, &GridParseMismatchError{FrameURL: res.FrameURL, RegistrosCount: res.RegistrosCount}
	}

	return res, nil
}

// canonicalizeRow builds the header->text map and derives the pending
// item key / raw row signature for one row (spec §4.2, §4.3).
func canonicalizeRow(headers []string, cellTexts []string) Row {
	cells := make(map[string]string, len(headers))
	for i, h := range headers {
		if i >= len(cellTexts) {
			break
		}
		cells[h] = strings.TrimSpace(cellTexts[i])
	}

	key := pendingkey.Compute(pendingkey.Row{
		TipoDoc:        cells["tipo_doc"],
		Elemento:       cells["elemento"],
		Empresa:        cells["empresa"],
		Estado:         cells["estado"],
		Origen:         cells["origen"],
		FechaSolicitud: cells["fecha_solicitud"],
		Inicio:         cells["inicio"],
		Fin:            cells["fin"],
	}, cellTexts)

	return Row{
		Cells:           cells,
		PendingItemKey:  key,
		RawRowSignature: pendingkey.RawRowSignature(cellTexts),
	}
}

func canonicalizeHeaders(headers []string, aliases HeaderAliases) []string {
	out := make([]string, len(headers))
	for i, h := range headers {
		out[i] = resolveHeaderAlias(h, aliases)
	}
	return out
}

func resolveHeaderAlias(header string, aliases HeaderAliases) string {
	normalized := strings.ToLower(strings.TrimSpace(header))
	for canonical, variants := range aliases {
		for _, v := range variants {
			if strings.ToLower(strings.TrimSpace(v)) == normalized {
				return canonical
			}
		}
	}
	return normalized
}

// parseRegistrosCount extracts the leading integer from a counter text
// like "12 Registros" or "0 Registros".
func parseRegistrosCount(text string) (int, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return 0, false
	}
	return n, true
}
