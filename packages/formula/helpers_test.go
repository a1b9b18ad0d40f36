package formula

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cellMap is a fixed set of cell values keyed by address
type cellMap map[CellKey]Primitive

func cellsOf(values map[string]Primitive) cellMap {
	m := make(cellMap, len(values))
	for address, v := range values {
		m[MustParseCellKey(address)] = v
	}
	return m
}

func (m cellMap) accessor() CellAccessor {
	return func(sheet string, col, row int) Primitive {
		return m[CellKey{Sheet: sheet, Row: row, Col: col}]
	}
}

// fixedClock always returns the same instant
type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.now
}

// sequenceRandom returns its values in turn, wrapping around
type sequenceRandom struct {
	values []float64
	next   int
}

func (r *sequenceRandom) Float64() float64 {
	v := r.values[r.next%len(r.values)]
	r.next++
	return v
}

func testFunctions() *BuiltInFunctions {
	return NewBuiltInFunctions(
		&fixedClock{now: time.Date(2024, time.March, 15, 14, 30, 45, 0, time.UTC)},
		&sequenceRandom{values: []float64{0.25}},
		nil,
	)
}

// evalFormula parses text and evaluates it against values with the test
// function library
func evalFormula(t *testing.T, text string, values map[string]Primitive) Primitive {
	t.Helper()
	ast, err := ParseFormula(text)
	require.NoError(t, err, "parsing %s", text)
	return NewEvalContext(cellsOf(values).accessor(), "", testFunctions()).Evaluate(ast)
}

func assertErrorCode(t *testing.T, expected ErrorCode, actual Primitive, msgAndArgs ...any) {
	t.Helper()
	err, ok := actual.(*SpreadsheetError)
	if !assert.True(t, ok, "expected %s, got %#v", ErrorMapper[expected], actual) {
		return
	}
	assert.Equal(t, ErrorMapper[expected], err.String(), msgAndArgs...)
}

// formulaCase is one formula and the value it should produce. an ErrorCode
// expectation matches any error value with that code, floats are compared
// with a tolerance.
type formulaCase struct {
	formula  string
	expected Primitive
}

func runFormulaCases(t *testing.T, cases []formulaCase, values map[string]Primitive) {
	t.Helper()
	for _, tc := range cases {
		t.Run(tc.formula, func(t *testing.T) {
			actual := evalFormula(t, tc.formula, values)
			switch want := tc.expected.(type) {
			case ErrorCode:
				assertErrorCode(t, want, actual)
			case float64:
				if assert.IsType(t, float64(0), actual) {
					assert.InDelta(t, want, actual.(float64), 1e-9)
				}
			default:
				assert.Equal(t, tc.expected, actual)
			}
		})
	}
}
