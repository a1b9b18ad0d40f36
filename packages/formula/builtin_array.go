package formula

import (
	"encoding/json"
	"strings"
)

// SparklinePrefix marks SPARKLINE output. the rest of the text is JSON that
// only a renderer interprets.
const SparklinePrefix = "__SPARKLINE__"

// UNIQUE returns the distinct rows of an array in first-seen order. a
// single row is treated as a list of values.
func (bf *BuiltInFunctions) UNIQUE(args ...Primitive) (Primitive, error) {
	if err := checkArity("UNIQUE", args, 1, 1); err != nil {
		return nil, err
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	arr := asArray(args[0])

	if arr.Rows() == 1 {
		out := []Primitive{}
		for _, v := range arr[0] {
			if !containsValue(out, v) {
				out = append(out, v)
			}
		}
		return Array{out}, nil
	}

	out := Array{}
	for _, row := range arr {
		seen := false
		for _, kept := range out {
			if rowsEqual(kept, row) {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, row)
		}
	}
	return out, nil
}

func containsValue(values []Primitive, v Primitive) bool {
	for _, existing := range values {
		if valuesEqual(existing, v) {
			return true
		}
	}
	return false
}

func rowsEqual(a, b []Primitive) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !valuesEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func (bf *BuiltInFunctions) TRANSPOSE(args ...Primitive) (Primitive, error) {
	if err := checkArity("TRANSPOSE", args, 1, 1); err != nil {
		return nil, err
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	return asArray(args[0]).Transpose(), nil
}

// SEQUENCE(rows, [columns], [start], [step]) fills row by row
func (bf *BuiltInFunctions) SEQUENCE(args ...Primitive) (Primitive, error) {
	if err := checkArity("SEQUENCE", args, 1, 4); err != nil {
		return nil, err
	}
	rows, err := intArg("SEQUENCE", args[0])
	if err != nil {
		return nil, err
	}
	cols := 1
	if len(args) > 1 {
		if cols, err = intArg("SEQUENCE", args[1]); err != nil {
			return nil, err
		}
	}
	start, err := optionalNumber("SEQUENCE", args, 2, 1)
	if err != nil {
		return nil, err
	}
	step, err := optionalNumber("SEQUENCE", args, 3, 1)
	if err != nil {
		return nil, err
	}
	if rows < 1 || cols < 1 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "SEQUENCE dimensions must be positive")
	}
	if rows*cols > defaultMaxArrayCells {
		return nil, NewSpreadsheetError(ErrorCodeNum, "SEQUENCE is too large")
	}

	out := NewArray(rows, cols)
	next := start
	for r := range out {
		for c := range out[r] {
			out[r][c] = next
			next += step
		}
	}
	return out, nil
}

type sparkline struct {
	Data []float64 `json:"data"`
	Type string    `json:"type,omitempty"`
}

// SPARKLINE(data, [options]) encodes the numeric data and an optional chart
// type. options is either the type as text or a two-column range of
// option/value pairs with a "charttype" row.
func (bf *BuiltInFunctions) SPARKLINE(args ...Primitive) (Primitive, error) {
	if err := checkArity("SPARKLINE", args, 1, 2); err != nil {
		return nil, err
	}
	data, err := numbersOnly(args[0])
	if err != nil {
		return nil, err
	}

	chart := sparkline{Data: data}
	if len(args) == 2 {
		if err := checkForError(args[1]); err != nil {
			return nil, err
		}
		switch opts := args[1].(type) {
		case string:
			chart.Type = strings.ToLower(opts)
		case Array:
			for _, row := range opts {
				if len(row) >= 2 && strings.EqualFold(toString(row[0]), "charttype") {
					chart.Type = strings.ToLower(toString(row[1]))
				}
			}
		}
	}

	encoded, jsonErr := json.Marshal(chart)
	if jsonErr != nil {
		return nil, NewSpreadsheetError(ErrorCodeValue, jsonErr.Error())
	}
	return SparklinePrefix + string(encoded), nil
}
