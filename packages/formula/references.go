package formula

import (
	"strings"

	"github.com/xuri/efp"
)

// Reference is one cell or range reference found in formula text. End
// equals Start for a single cell.
type Reference struct {
	Text  string
	Start CellKey
	End   CellKey
}

// IsRange reports whether the reference spans more than one cell
func (r Reference) IsRange() bool {
	return r.Start != r.End
}

// References scans formula text for cell and range references. unlike
// ParseFormula it accepts incomplete input, so a host can highlight
// references while the user is still typing. unqualified references get
// sheet.
func (e *Engine) References(text, sheet string) []Reference {
	text = strings.TrimPrefix(strings.TrimSpace(text), "=")
	if text == "" {
		return nil
	}

	ps := efp.ExcelParser()
	var refs []Reference
	for _, token := range ps.Parse(text) {
		if token.TType != efp.TokenTypeOperand || token.TSubType != efp.TokenSubTypeRange {
			continue
		}
		ref, ok := parseReference(token.TValue, sheet)
		if !ok {
			// named ranges and whole rows or columns
			continue
		}
		refs = append(refs, ref)
	}
	return refs
}

func parseReference(text, sheet string) (Reference, bool) {
	qualifier, cells := splitSheetQualifier(text)
	if qualifier != "" {
		sheet = qualifier
	}

	startText, endText, isRange := strings.Cut(cells, ":")
	startCol, startRow, _, _, err := parseA1(startText)
	if err != nil {
		return Reference{}, false
	}
	start := CellKey{Sheet: sheet, Row: startRow, Col: startCol}
	end := start
	if isRange {
		endCol, endRow, _, _, err := parseA1(endText)
		if err != nil {
			return Reference{}, false
		}
		end = CellKey{Sheet: sheet, Row: max(startRow, endRow), Col: max(startCol, endCol)}
		start.Row, start.Col = min(startRow, endRow), min(startCol, endCol)
	}
	return Reference{Text: text, Start: start, End: end}, true
}
