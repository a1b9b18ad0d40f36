package formula

import (
	"cmp"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// CellKey identifies one cell across sheets. Row and Col are 0-based. an
// empty Sheet means the host's only (or current) sheet.
type CellKey struct {
	Sheet string
	Row   int
	Col   int
}

// String renders the key in A1 notation, sheet-qualified when a sheet is
// set. names that are not plain identifiers are quoted: 'My Sheet'!B2
func (k CellKey) String() string {
	name, err := excelize.CoordinatesToCellName(k.Col+1, k.Row+1)
	if err != nil {
		name = fmt.Sprintf("R%dC%d", k.Row+1, k.Col+1)
	}
	if k.Sheet == "" {
		return name
	}
	return quoteSheetName(k.Sheet) + "!" + name
}

// Compare orders keys by sheet, then row, then column
func (k CellKey) Compare(other CellKey) int {
	if c := cmp.Compare(k.Sheet, other.Sheet); c != 0 {
		return c
	}
	if c := cmp.Compare(k.Row, other.Row); c != 0 {
		return c
	}
	return cmp.Compare(k.Col, other.Col)
}

// ParseCellKey parses "A1", "$B$2", "Sheet1!C3" or "'My Sheet'!D4"
func ParseCellKey(address string) (CellKey, error) {
	sheet, cell := splitSheetQualifier(address)
	col, row, _, _, err := parseA1(cell)
	if err != nil {
		return CellKey{}, NewApplicationError(InvalidArgument, fmt.Sprintf("invalid cell address %q: %v", address, err))
	}
	return CellKey{Sheet: sheet, Row: row, Col: col}, nil
}

// MustParseCellKey is ParseCellKey for literals known to be valid
func MustParseCellKey(address string) CellKey {
	k, err := ParseCellKey(address)
	if err != nil {
		panic(err)
	}
	return k
}

// splitSheetQualifier splits "Sheet!A1" into its parts, removing quotes
// around the sheet name
func splitSheetQualifier(ref string) (string, string) {
	idx := strings.LastIndex(ref, "!")
	if idx == -1 {
		return "", ref
	}
	sheet := ref[:idx]
	if len(sheet) >= 2 && strings.HasPrefix(sheet, "'") && strings.HasSuffix(sheet, "'") {
		sheet = strings.ReplaceAll(sheet[1:len(sheet)-1], "''", "'")
	}
	return sheet, ref[idx+1:]
}

// parseA1 parses a single cell like "$AB$12" into 0-based column and row
// and the absolute flags
func parseA1(cell string) (col, row int, absCol, absRow bool, err error) {
	s := cell
	if strings.HasPrefix(s, "$") {
		absCol = true
		s = s[1:]
	}
	if i := strings.Index(s, "$"); i > 0 {
		absRow = true
		s = s[:i] + s[i+1:]
	}
	c, r, err := excelize.CellNameToCoordinates(s)
	if err != nil {
		return 0, 0, false, false, err
	}
	return c - 1, r - 1, absCol, absRow, nil
}

// columnName renders a 0-based column index as letters
func columnName(col int) string {
	name, err := excelize.ColumnNumberToName(col + 1)
	if err != nil {
		return "?"
	}
	return name
}

func quoteSheetName(sheet string) string {
	for _, ch := range sheet {
		if !(ch == '_' || ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch >= '0' && ch <= '9') {
			return "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
		}
	}
	return sheet
}
