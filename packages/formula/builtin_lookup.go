package formula

import (
	"fmt"
	"strings"
)

// lookupCompare orders two values of the same kind. ok is false when the
// kinds differ, lookups never match a number against text.
func lookupCompare(a, b Primitive) (int, bool) {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(foldString(av), foldString(bv)), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

// exactMatcher returns a predicate for exact lookups. text keys with * or ?
// match as wildcard patterns.
func exactMatcher(key Primitive) func(Primitive) bool {
	if s, ok := key.(string); ok && strings.ContainsAny(s, "*?~") {
		if re, err := compileWildcard(s, true); err == nil {
			return func(v Primitive) bool {
				text, ok := v.(string)
				return ok && re.MatchString(text)
			}
		}
	}
	return func(v Primitive) bool {
		c, ok := lookupCompare(v, key)
		return ok && c == 0
	}
}

// findExact returns the index of the first match, or -1
func findExact(values []Primitive, key Primitive) int {
	matches := exactMatcher(key)
	for i, v := range values {
		if matches(v) {
			return i
		}
	}
	return -1
}

// findSortedAscending returns the index of the last value <= key in data
// sorted ascending, or -1
func findSortedAscending(values []Primitive, key Primitive) int {
	found := -1
	for i, v := range values {
		c, ok := lookupCompare(v, key)
		if !ok {
			continue
		}
		if c > 0 {
			break
		}
		found = i
	}
	return found
}

// findSortedDescending returns the index of the last value >= key in data
// sorted descending, or -1
func findSortedDescending(values []Primitive, key Primitive) int {
	found := -1
	for i, v := range values {
		c, ok := lookupCompare(v, key)
		if !ok {
			continue
		}
		if c < 0 {
			break
		}
		found = i
	}
	return found
}

func lookupKey(value Primitive) (Primitive, error) {
	key := scalarOf(value)
	if err := checkForError(key); err != nil {
		return nil, err
	}
	if key == nil {
		key = 0.0
	}
	return key, nil
}

func column(table Array, c int) []Primitive {
	out := make([]Primitive, table.Rows())
	for r := range out {
		out[r] = table.At(r, c)
	}
	return out
}

// tableLookup implements VLOOKUP over table, HLOOKUP passes the transpose
func tableLookup(name string, args []Primitive, transpose bool) (Primitive, error) {
	if err := checkArity(name, args, 3, 4); err != nil {
		return nil, err
	}
	key, err := lookupKey(args[0])
	if err != nil {
		return nil, err
	}
	if err := checkForError(args[1]); err != nil {
		return nil, err
	}
	table := asArray(args[1])
	if transpose {
		table = table.Transpose()
	}
	index, err := intArg(name, args[2])
	if err != nil {
		return nil, err
	}
	approximate := true
	if len(args) == 4 {
		if approximate, err = boolArg(args[3]); err != nil {
			return nil, err
		}
	}

	if index < 1 {
		return nil, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("%s index must be at least 1", name))
	}
	if index > table.Cols() {
		return nil, NewSpreadsheetError(ErrorCodeRef, fmt.Sprintf("%s index %d is outside the table", name, index))
	}

	keys := column(table, 0)
	row := findExact(keys, key)
	if approximate {
		row = findSortedAscending(keys, key)
	}
	if row < 0 {
		return nil, NewSpreadsheetError(ErrorCodeNA, fmt.Sprintf("%s: %s not found", name, toString(key)))
	}
	return table.At(row, index-1), nil
}

func (bf *BuiltInFunctions) VLOOKUP(args ...Primitive) (Primitive, error) {
	return tableLookup("VLOOKUP", args, false)
}

func (bf *BuiltInFunctions) HLOOKUP(args ...Primitive) (Primitive, error) {
	return tableLookup("HLOOKUP", args, true)
}

// vector flattens a single row or column. isColumn reports the orientation.
func vector(name string, value Primitive) (values []Primitive, isColumn bool, err error) {
	if spreadsheetErr := checkForError(value); spreadsheetErr != nil {
		return nil, false, spreadsheetErr
	}
	arr := asArray(value)
	switch {
	case arr.Rows() == 1:
		return arr[0], false, nil
	case arr.Cols() == 1:
		return column(arr, 0), true, nil
	}
	return nil, false, NewSpreadsheetError(ErrorCodeNA, fmt.Sprintf("%s requires a single row or column", name))
}

// MATCH(key, vector, [type]) returns the 1-based position. type 1 finds the
// largest value <= key in ascending data, -1 the smallest value >= key in
// descending data, 0 an exact match.
func (bf *BuiltInFunctions) MATCH(args ...Primitive) (Primitive, error) {
	if err := checkArity("MATCH", args, 2, 3); err != nil {
		return nil, err
	}
	key, err := lookupKey(args[0])
	if err != nil {
		return nil, err
	}
	values, _, err := vector("MATCH", args[1])
	if err != nil {
		return nil, err
	}
	matchType, err := optionalNumber("MATCH", args, 2, 1)
	if err != nil {
		return nil, err
	}

	var idx int
	switch {
	case matchType == 0:
		idx = findExact(values, key)
	case matchType > 0:
		idx = findSortedAscending(values, key)
	default:
		idx = findSortedDescending(values, key)
	}
	if idx < 0 {
		return nil, NewSpreadsheetError(ErrorCodeNA, fmt.Sprintf("MATCH: %s not found", toString(key)))
	}
	return float64(idx + 1), nil
}

// XLOOKUP(key, lookup, return, [if_not_found], [match_mode], [search_mode])
func (bf *BuiltInFunctions) XLOOKUP(args ...Primitive) (Primitive, error) {
	if err := checkArity("XLOOKUP", args, 3, 6); err != nil {
		return nil, err
	}
	key, err := lookupKey(args[0])
	if err != nil {
		return nil, err
	}
	values, isColumn, err := vector("XLOOKUP", args[1])
	if err != nil {
		return nil, err
	}
	if err := checkForError(args[2]); err != nil {
		return nil, err
	}
	results := asArray(args[2])
	matchMode, err := optionalNumber("XLOOKUP", args, 4, 0)
	if err != nil {
		return nil, err
	}
	searchMode, err := optionalNumber("XLOOKUP", args, 5, 1)
	if err != nil {
		return nil, err
	}

	if isColumn && results.Rows() != len(values) || !isColumn && results.Cols() != len(values) {
		return nil, NewSpreadsheetError(ErrorCodeValue, "XLOOKUP lookup and return arrays differ in size")
	}

	idx := xlookupIndex(values, key, int(matchMode), searchMode < 0)
	if idx < 0 {
		if len(args) >= 4 {
			return args[3], nil
		}
		return nil, NewSpreadsheetError(ErrorCodeNA, fmt.Sprintf("XLOOKUP: %s not found", toString(key)))
	}

	if isColumn {
		if results.Cols() == 1 {
			return results.At(idx, 0), nil
		}
		return Array{results[idx]}, nil
	}
	if results.Rows() == 1 {
		return results.At(0, idx), nil
	}
	out := NewArray(results.Rows(), 1)
	for r := range out {
		out[r][0] = results.At(r, idx)
	}
	return out, nil
}

// xlookupIndex scans values in either direction. mode 0 is exact, -1 falls
// back to the next smaller value, 1 to the next larger, 2 is a wildcard
// match.
func xlookupIndex(values []Primitive, key Primitive, mode int, reverse bool) int {
	order := make([]int, len(values))
	for i := range order {
		order[i] = i
		if reverse {
			order[i] = len(values) - 1 - i
		}
	}

	matches := func(v Primitive) bool {
		c, ok := lookupCompare(v, key)
		return ok && c == 0
	}
	if mode == 2 {
		matches = exactMatcher(key)
	}

	best := -1
	for _, i := range order {
		v := values[i]
		if matches(v) {
			return i
		}
		if mode != -1 && mode != 1 {
			continue
		}
		c, ok := lookupCompare(v, key)
		if !ok || c == 0 || (mode == -1) != (c < 0) {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		// keep the candidate closest to key
		if closer, _ := lookupCompare(v, values[best]); closer != 0 && (mode == -1) == (closer > 0) {
			best = i
		}
	}
	return best
}

// INDEX(array, row, [column]). a zero index selects the whole row or
// column. a single row or column accepts one index for either axis.
func (bf *BuiltInFunctions) INDEX(args ...Primitive) (Primitive, error) {
	if err := checkArity("INDEX", args, 2, 3); err != nil {
		return nil, err
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	arr := asArray(args[0])
	row, err := intArg("INDEX", args[1])
	if err != nil {
		return nil, err
	}
	col := 0
	if len(args) == 3 {
		if col, err = intArg("INDEX", args[2]); err != nil {
			return nil, err
		}
	} else if arr.Rows() == 1 {
		row, col = 1, row
	} else if arr.Cols() == 1 {
		col = 1
	}

	if row < 0 || col < 0 || row > arr.Rows() || col > arr.Cols() {
		return nil, NewSpreadsheetError(ErrorCodeRef, "INDEX out of range")
	}

	switch {
	case row == 0 && col == 0:
		return arr, nil
	case row == 0:
		out := NewArray(arr.Rows(), 1)
		for r := range out {
			out[r][0] = arr.At(r, col-1)
		}
		return out, nil
	case col == 0:
		return Array{arr[row-1]}, nil
	}
	return arr.At(row-1, col-1), nil
}

// CHOOSE(index, value1, ...) with a 1-based index
func (bf *BuiltInFunctions) CHOOSE(args ...Primitive) (Primitive, error) {
	if err := checkArity("CHOOSE", args, 2, -1); err != nil {
		return nil, err
	}
	idx, err := intArg("CHOOSE", args[0])
	if err != nil {
		return nil, err
	}
	if idx < 1 || idx >= len(args) {
		return nil, NewSpreadsheetError(ErrorCodeValue, "CHOOSE index out of range")
	}
	return args[idx], nil
}

func (bf *BuiltInFunctions) ROWS(args ...Primitive) (Primitive, error) {
	if err := checkArity("ROWS", args, 1, 1); err != nil {
		return nil, err
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	return float64(asArray(args[0]).Rows()), nil
}

func (bf *BuiltInFunctions) COLUMNS(args ...Primitive) (Primitive, error) {
	if err := checkArity("COLUMNS", args, 1, 1); err != nil {
		return nil, err
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	return float64(asArray(args[0]).Cols()), nil
}
