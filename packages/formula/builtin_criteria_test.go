package formula

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionalAggregates(t *testing.T) {
	values := map[string]Primitive{
		"A1": "apple", "B1": 10.0, "C1": "east",
		"A2": "banana", "B2": 20.0, "C2": "west",
		"A3": "apricot", "B3": 30.0, "C3": "east",
		"A4": "", "B4": 40.0, "C4": "east",
		"A5": nil, "B5": "n/a", "C5": "west",
	}
	runFormulaCases(t, []formulaCase{
		{`=SUMIF(B1:B5,">15")`, 90.0},
		{`=SUMIF(A1:A5,"ap*",B1:B5)`, 40.0},
		{`=SUMIF(A1:A5,"APPLE",B1:B5)`, 10.0},
		{`=SUMIF(A1:A5,"<>apple",B1:B5)`, 90.0},
		{`=SUMIF(A1:A5,"",B1:B5)`, 40.0},
		{`=SUMIF(B1:B5,20)`, 20.0},
		{`=COUNTIF(A1:A5,"a*")`, 2.0},
		{`=COUNTIF(A1:A5,"?????")`, 1.0},
		{`=COUNTIF(B1:B5,"<=20")`, 2.0},
		{`=COUNTIF(B1:B5,"<>20")`, 4.0},
		{`=COUNTIF(A1:A5,">b")`, 1.0},
		{`=AVERAGEIF(C1:C5,"east",B1:B5)`, 80.0 / 3.0},
		{`=AVERAGEIF(C1:C5,"north",B1:B5)`, ErrorCodeDiv0},
		{`=SUMIFS(B1:B5,C1:C5,"east",B1:B5,">10")`, 70.0},
		{`=COUNTIFS(C1:C5,"east",A1:A5,"ap*")`, 2.0},
		{`=AVERAGEIFS(B1:B5,C1:C5,"west")`, 20.0},
		{`=MAXIFS(B1:B5,C1:C5,"east")`, 40.0},
		{`=MINIFS(B1:B5,C1:C5,"east",A1:A5,"<>")`, 10.0},
		{`=MAXIFS(B1:B5,C1:C5,"north")`, 0.0},
		{`=SUMIFS(B1:B5,C1:C4,"east")`, ErrorCodeValue},
		{`=SUMIFS(B1:B5,C1:C5)`, ErrorCodeValue},
		{`=SUMIF(1/0,">1")`, ErrorCodeDiv0},
	}, values)
}

func TestWildcardEscapes(t *testing.T) {
	re, err := compileWildcard("a~*b?", true)
	require.NoError(t, err)
	assert.True(t, re.MatchString("A*BC"))
	assert.False(t, re.MatchString("axbc"))
	assert.False(t, re.MatchString("a*bcd"))

	re, err = compileWildcard("x.y", false)
	require.NoError(t, err)
	assert.True(t, re.MatchString("ax.yb"))
	assert.False(t, re.MatchString("axzy"))
}

func TestCriteriaAgreeWithDirectReduction(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	bf := NewDefaultBuiltInFunctions()
	operators := []string{"<", "<=", ">", ">=", "=", "<>"}

	for range 100 {
		rows := 1 + rng.IntN(20)
		column := NewArray(rows, 1)
		for r := range rows {
			switch rng.IntN(5) {
			case 0:
				column[r][0] = "label"
			case 1:
				column[r][0] = nil
			default:
				column[r][0] = float64(rng.IntN(21) - 10)
			}
		}
		op := operators[rng.IntN(len(operators))]
		threshold := float64(rng.IntN(21) - 10)
		criteria := fmt.Sprintf("%s%v", op, threshold)

		var total float64
		var count int
		var numbers int
		for _, row := range column {
			num, ok := row[0].(float64)
			if !ok {
				if op == "<>" {
					count++
				}
				continue
			}
			if compareWith(op, compareFloats(num, threshold)) {
				total += num
				count++
				numbers++
			}
		}

		v, err := bf.Call("SUMIF", column, criteria)
		require.NoError(t, err)
		assert.InDelta(t, total, v, 1e-9, "SUMIF %s", criteria)

		v, err = bf.Call("COUNTIF", column, criteria)
		require.NoError(t, err)
		assert.Equal(t, float64(count), v, "COUNTIF %s", criteria)

		v, err = bf.Call("AVERAGEIF", column, criteria)
		if numbers == 0 {
			assert.ErrorIs(t, err, ErrDiv0)
			continue
		}
		require.NoError(t, err)
		assert.InDelta(t, total/float64(numbers), v, 1e-9, "AVERAGEIF %s", criteria)
	}
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
