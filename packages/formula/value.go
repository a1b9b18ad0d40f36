package formula

import (
	"iter"
)

// Primitive represents formula value types.
// types:
//   - float64: numeric values (integers are converted to float64)
//   - string: text values
//   - bool: boolean values (TRUE/FALSE)
//   - nil: empty/null cells
//   - *SpreadsheetError: error values (#DIV/0!, #VALUE!, etc.)
//   - Array: transient 2-D results, only alive mid-evaluation or in a spill
//   - LambdaRef: opaque closure handle, only alive inside one evaluation
type Primitive any

// ErrorCode represents standard spreadsheet error codes following
// Excel conventions
type ErrorCode uint8

const (
	ErrorCodeNull  ErrorCode = 1 // #NULL! - no cells in common between ranges
	ErrorCodeDiv0  ErrorCode = 2 // #DIV/0! - division by zero
	ErrorCodeValue ErrorCode = 3 // #VALUE! - wrong type of argument, arity or parse failure
	ErrorCodeRef   ErrorCode = 4 // #REF! - circular or invalid reference
	ErrorCodeName  ErrorCode = 5 // #NAME? - unrecognized function or identifier
	ErrorCodeNum   ErrorCode = 6 // #NUM! - non-finite or out of domain result
	ErrorCodeNA    ErrorCode = 7 // #N/A - lookup miss
	ErrorCodeOther ErrorCode = 8 // #ERROR! - all other errors
	ErrorCodeSpill ErrorCode = 9 // #SPILL! - array result blocked by existing content
)

// ErrorMapper maps error code numbers to their string representations
var ErrorMapper = map[ErrorCode]string{
	ErrorCodeNull:  "#NULL!",
	ErrorCodeDiv0:  "#DIV/0!",
	ErrorCodeValue: "#VALUE!",
	ErrorCodeRef:   "#REF!",
	ErrorCodeName:  "#NAME?",
	ErrorCodeNum:   "#NUM!",
	ErrorCodeNA:    "#N/A",
	ErrorCodeOther: "#ERROR!",
	ErrorCodeSpill: "#SPILL!",
}

// errorCodeBySentinel is the reverse of ErrorMapper, used by the lexer for
// error literals like #N/A
var errorCodeBySentinel = func() map[string]ErrorCode {
	m := make(map[string]ErrorCode, len(ErrorMapper))
	for code, s := range ErrorMapper {
		m[s] = code
	}
	return m
}()

// SpreadsheetError is a formula error value. it travels through evaluation
// as a Primitive and doubles as a Go error when a function fails.
type SpreadsheetError struct {
	ErrorCode ErrorCode
	Message   string
}

func (e *SpreadsheetError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return ErrorMapper[e.ErrorCode]
}

// String returns the sentinel form shown in a cell, e.g. "#DIV/0!"
func (e *SpreadsheetError) String() string {
	return ErrorMapper[e.ErrorCode]
}

// Is reports equality by error code so errors.Is works against the
// package-level sentinels below.
func (e *SpreadsheetError) Is(target error) bool {
	t, ok := target.(*SpreadsheetError)
	if !ok {
		return false
	}
	return t.ErrorCode == e.ErrorCode
}

func NewSpreadsheetError(code ErrorCode, message string) *SpreadsheetError {
	if message == "" {
		message = ErrorMapper[code]
	}
	return &SpreadsheetError{
		ErrorCode: code,
		Message:   message,
	}
}

// sentinel values for comparisons with errors.Is
var (
	ErrValue = &SpreadsheetError{ErrorCode: ErrorCodeValue}
	ErrDiv0  = &SpreadsheetError{ErrorCode: ErrorCodeDiv0}
	ErrNum   = &SpreadsheetError{ErrorCode: ErrorCodeNum}
	ErrName  = &SpreadsheetError{ErrorCode: ErrorCodeName}
	ErrNA    = &SpreadsheetError{ErrorCode: ErrorCodeNA}
	ErrRef   = &SpreadsheetError{ErrorCode: ErrorCodeRef}
	ErrSpill = &SpreadsheetError{ErrorCode: ErrorCodeSpill}
)

// ErrorString returns the sentinel string for v if it is an error value,
// and "" otherwise
func ErrorString(v Primitive) string {
	if err, ok := v.(*SpreadsheetError); ok {
		return err.String()
	}
	return ""
}

// Array is a 2-D row-major block of values. a 1-D list is a single row.
type Array [][]Primitive

// NewArray allocates an array of rows x cols blanks
func NewArray(rows, cols int) Array {
	a := make(Array, rows)
	for r := range a {
		a[r] = make([]Primitive, cols)
	}
	return a
}

// Rows returns the number of rows
func (a Array) Rows() int {
	return len(a)
}

// Cols returns the width of the first row
func (a Array) Cols() int {
	if len(a) == 0 {
		return 0
	}
	return len(a[0])
}

// At returns the value at (r, c), or nil outside the array
func (a Array) At(r, c int) Primitive {
	if r < 0 || r >= len(a) || c < 0 || c >= len(a[r]) {
		return nil
	}
	return a[r][c]
}

// IterateValues yields every value in row-major order
func (a Array) IterateValues() iter.Seq[Primitive] {
	return func(yield func(Primitive) bool) {
		for _, row := range a {
			for _, v := range row {
				if !yield(v) {
					return
				}
			}
		}
	}
}

// Flatten returns the values in row-major order
func (a Array) Flatten() []Primitive {
	out := make([]Primitive, 0, a.Rows()*a.Cols())
	for v := range a.IterateValues() {
		out = append(out, v)
	}
	return out
}

// Transpose swaps the two axes
func (a Array) Transpose() Array {
	out := NewArray(a.Cols(), a.Rows())
	for r, row := range a {
		for c, v := range row {
			out[c][r] = v
		}
	}
	return out
}

// LambdaRef is the opaque value LAMBDA evaluates to. it is only meaningful
// to the EvalContext that created it.
type LambdaRef string

// iterateArgs yields every scalar in args, expanding arrays row-major. the
// bool reports whether the value came from inside an array (a range), which
// is how aggregate functions tell a typed literal from cell content.
func iterateArgs(args []Primitive) iter.Seq2[Primitive, bool] {
	return func(yield func(Primitive, bool) bool) {
		for _, arg := range args {
			if arr, ok := arg.(Array); ok {
				for v := range arr.IterateValues() {
					if !yield(v, true) {
						return
					}
				}
				continue
			}
			if !yield(arg, false) {
				return
			}
		}
	}
}
