package formula

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatisticalFunctions(t *testing.T) {
	values := map[string]Primitive{
		"A1": 2.0, "A2": 4.0, "A3": 4.0, "A4": 4.0, "A5": 5.0, "A6": 5.0, "A7": 7.0, "A8": 9.0,
		"B1": 1.0, "B2": 2.0, "B3": 3.0, "B4": 4.0,
		"C1": 2.0, "C2": 4.0, "C3": 6.0, "C4": 8.0,
		"D1": "x", "D2": 3.0,
	}
	runFormulaCases(t, []formulaCase{
		{"=MEDIAN(A1:A8)", 4.5},
		{"=MEDIAN(1,3,2)", 2.0},
		{"=MEDIAN(D1:D1)", ErrorCodeNum},
		{"=MODE(A1:A8)", 4.0},
		{"=MODE(1,2,3)", ErrorCodeNA},
		{"=MODE(1,1,2,2)", 1.0},
		{"=VARP(A1:A8)", 4.0},
		{"=STDEVP(A1:A8)", 2.0},
		{"=VAR(A1:A8)", 32.0 / 7.0},
		{"=STDEV(B1:B4)", 1.2909944487358056},
		{"=VAR(1)", ErrorCodeDiv0},
		{"=VARP(D1:D1)", ErrorCodeDiv0},
		{"=PERCENTILE(B1:B4,0.5)", 2.5},
		{"=PERCENTILE(B1:B4,0)", 1.0},
		{"=PERCENTILE(B1:B4,1.5)", ErrorCodeNum},
		{"=QUARTILE(B1:B4,1)", 1.75},
		{"=QUARTILE(B1:B4,4)", 4.0},
		{"=QUARTILE(B1:B4,5)", ErrorCodeNum},
		{"=RANK(4,A1:A8)", 5.0},
		{"=RANK(4,A1:A8,1)", 2.0},
		{"=RANK(6,A1:A8)", ErrorCodeNA},
		{"=LARGE(A1:A8,2)", 7.0},
		{"=SMALL(A1:A8,2)", 4.0},
		{"=SMALL(A1:A8,9)", ErrorCodeNum},
		{"=LARGE(D1:D2,1)", 3.0},
		{"=CORREL(B1:B4,C1:C4)", 1.0},
		{"=CORREL(B1:B4,C1:C3)", ErrorCodeNA},
		{"=CORREL(B1:B1,C1:C1)", ErrorCodeDiv0},
		{"=FORECAST(5,C1:C4,B1:B4)", 10.0},
		{"=FORECAST(5,C1:C4,D1:D1)", ErrorCodeNA},
	}, values)
}

func TestFinancialFunctions(t *testing.T) {
	tests := []struct {
		formula  string
		expected float64
	}{
		{"=PMT(0.05,10,1000)", -129.50457496545667},
		{"=PMT(0,10,1000)", -100},
		{"=PMT(0.05,10,1000,0,1)", -123.33769044329207},
		{"=FV(0.05,10,-100)", 1257.7892535548832},
		{"=FV(0,10,-100,-50)", 1050},
		{"=PV(0.05,10,-100)", 772.1734929184818},
		{"=NPER(0.05,-100,772.1734929184818)", 10},
		{"=NPER(0,-100,1000)", 10},
		{"=NPV(0.1,100,100)", 173.55371900826444},
	}
	for _, tc := range tests {
		t.Run(tc.formula, func(t *testing.T) {
			v := evalFormula(t, tc.formula, nil)
			if assert.IsType(t, float64(0), v) {
				assert.InDelta(t, tc.expected, v.(float64), 1e-6)
			}
		})
	}

	runFormulaCases(t, []formulaCase{
		{"=PMT(0.05,0,1000)", ErrorCodeNum},
		{"=NPER(0,0,1000)", ErrorCodeNum},
		{"=NPV(-1,100)", ErrorCodeDiv0},
		{`=PMT("x",10,1000)`, ErrorCodeValue},
	}, nil)
}

func TestArrayFunctions(t *testing.T) {
	values := map[string]Primitive{
		"A1": "a", "A2": "b", "A3": "A", "A4": "c",
		"B1": 1.0, "B2": 2.0, "B3": 1.0, "B4": 3.0,
		"C1": 1.0, "C2": 2.0, "C3": 1.0,
		"D1": "x", "D2": "y", "D3": "x",
	}

	tests := []struct {
		formula  string
		expected Primitive
	}{
		{"=UNIQUE(A1:A4)", Array{{"a"}, {"b"}, {"c"}}},
		{"=UNIQUE(TRANSPOSE(B1:B4))", Array{{1.0, 2.0, 3.0}}},
		{"=UNIQUE(C1:D3)", Array{{1.0, "x"}, {2.0, "y"}}},
		{"=TRANSPOSE(B1:B3)", Array{{1.0, 2.0, 1.0}}},
		{"=SEQUENCE(3)", Array{{1.0}, {2.0}, {3.0}}},
		{"=SEQUENCE(2,3)", Array{{1.0, 2.0, 3.0}, {4.0, 5.0, 6.0}}},
		{"=SEQUENCE(2,2,10,-5)", Array{{10.0, 5.0}, {0.0, -5.0}}},
	}
	for _, tc := range tests {
		t.Run(tc.formula, func(t *testing.T) {
			assert.Equal(t, tc.expected, evalFormula(t, tc.formula, values))
		})
	}

	assertErrorCode(t, ErrorCodeValue, evalFormula(t, "=SEQUENCE(0)", values))
	assertErrorCode(t, ErrorCodeNum, evalFormula(t, "=SEQUENCE(2000,2000)", values))
	assertErrorCode(t, ErrorCodeDiv0, evalFormula(t, "=TRANSPOSE(1/0)", values))
}

func TestSparkline(t *testing.T) {
	values := map[string]Primitive{
		"A1": 1.0, "A2": 5.0, "A3": "skip", "A4": 3.0,
		"B1": "charttype", "C1": "Bar",
	}

	v := evalFormula(t, `=SPARKLINE(A1:A4,B1:C1)`, values)
	text, ok := v.(string)
	require.True(t, ok)
	require.True(t, strings.HasPrefix(text, SparklinePrefix))

	var chart struct {
		Data []float64 `json:"data"`
		Type string    `json:"type"`
	}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(text, SparklinePrefix)), &chart))
	assert.Equal(t, []float64{1, 5, 3}, chart.Data)
	assert.Equal(t, "bar", chart.Type)

	v = evalFormula(t, `=SPARKLINE(A1:A2)`, values)
	assert.Equal(t, SparklinePrefix+`{"data":[1,5]}`, v)
}
