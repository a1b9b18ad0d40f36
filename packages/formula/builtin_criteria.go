package formula

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// compileWildcard turns a spreadsheet wildcard pattern into a
// case-insensitive regexp. * matches any run, ? one character and ~ escapes
// the next character. anchored patterns must match the whole text.
func compileWildcard(pattern string, anchored bool) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("(?is)")
	if anchored {
		sb.WriteString("^")
	}
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		switch ch := runes[i]; ch {
		case '~':
			if i+1 < len(runes) {
				i++
				sb.WriteString(regexp.QuoteMeta(string(runes[i])))
			} else {
				sb.WriteString(regexp.QuoteMeta("~"))
			}
		case '*':
			sb.WriteString(".*")
		case '?':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(ch)))
		}
	}
	if anchored {
		sb.WriteString("$")
	}
	return regexp.Compile(sb.String())
}

// criterion is a parsed condition such as ">=10", "<>apple" or "a*"
type criterion struct {
	op      string
	num     float64
	isNum   bool
	boolean bool
	isBool  bool
	text    string
	pattern *regexp.Regexp
}

var criterionOperators = []string{"<=", ">=", "<>", "=", "<", ">"}

// parseCriterion reads a criteria argument. numbers and logicals test for
// equality, text may start with a comparison operator.
func parseCriterion(value Primitive) (*criterion, error) {
	value = scalarOf(value)
	switch v := value.(type) {
	case *SpreadsheetError:
		return nil, v
	case float64:
		return &criterion{op: "=", num: v, isNum: true}, nil
	case bool:
		return &criterion{op: "=", boolean: v, isBool: true}, nil
	case nil:
		return &criterion{op: "="}, nil
	}

	s := toString(value)
	c := &criterion{op: "="}
	for _, op := range criterionOperators {
		if strings.HasPrefix(s, op) {
			c.op = op
			s = s[len(op):]
			break
		}
	}

	if num, ok := parseNumericText(s); ok {
		c.num, c.isNum = num, true
		return c, nil
	}
	switch strings.ToUpper(s) {
	case "TRUE", "FALSE":
		c.boolean, c.isBool = strings.EqualFold(s, "TRUE"), true
		return c, nil
	}

	c.text = s
	if c.op == "=" || c.op == "<>" {
		re, err := compileWildcard(s, true)
		if err != nil {
			return nil, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("invalid criteria %q", toString(value)))
		}
		c.pattern = re
	}
	return c, nil
}

func compareWith(op string, cmp int) bool {
	switch op {
	case "=":
		return cmp == 0
	case "<>":
		return cmp != 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	}
	return false
}

// matches tests one cell value. numeric criteria only see numbers, except
// <> which accepts every value that is not equal.
func (c *criterion) matches(value Primitive) bool {
	switch {
	case c.isNum:
		num, ok := value.(float64)
		if !ok {
			return c.op == "<>"
		}
		cmp, _ := lookupCompare(num, c.num)
		return compareWith(c.op, cmp)

	case c.isBool:
		b, ok := value.(bool)
		if !ok {
			return c.op == "<>"
		}
		cmp, _ := lookupCompare(b, c.boolean)
		return compareWith(c.op, cmp)
	}

	blank := value == nil || value == ""
	if c.text == "" {
		switch c.op {
		case "=":
			return blank
		case "<>":
			return !blank
		}
	}

	text, isText := value.(string)
	switch c.op {
	case "=":
		return isText && c.pattern.MatchString(text)
	case "<>":
		return !isText || !c.pattern.MatchString(text)
	}
	if !isText {
		return false
	}
	return compareWith(c.op, strings.Compare(foldString(text), foldString(c.text)))
}

// criteriaMask evaluates (range, criteria) pairs into a mask over a
// rows x cols block. every range must have that exact shape.
func criteriaMask(name string, pairs []Primitive, rows, cols int) ([][]bool, error) {
	if len(pairs) == 0 || len(pairs)%2 != 0 {
		return nil, arityError(name, "range/criteria pairs")
	}
	mask := make([][]bool, rows)
	for r := range mask {
		mask[r] = make([]bool, cols)
		for c := range mask[r] {
			mask[r][c] = true
		}
	}

	for i := 0; i < len(pairs); i += 2 {
		if err := checkForError(pairs[i]); err != nil {
			return nil, err
		}
		arr := asArray(pairs[i])
		if arr.Rows() != rows || arr.Cols() != cols {
			return nil, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("%s ranges must have the same size", name))
		}
		crit, err := parseCriterion(pairs[i+1])
		if err != nil {
			return nil, err
		}
		for r := range rows {
			for c := range cols {
				if mask[r][c] && !crit.matches(arr.At(r, c)) {
					mask[r][c] = false
				}
			}
		}
	}
	return mask, nil
}

// maskedNumbers returns the numbers in values where mask is set
func maskedNumbers(values Array, mask [][]bool) []float64 {
	out := []float64{}
	for r, row := range mask {
		for c, ok := range row {
			if !ok {
				continue
			}
			if num, isNum := values.At(r, c).(float64); isNum {
				out = append(out, num)
			}
		}
	}
	return out
}

func countMask(mask [][]bool) int {
	n := 0
	for _, row := range mask {
		for _, ok := range row {
			if ok {
				n++
			}
		}
	}
	return n
}

// singleCriterion handles SUMIF and AVERAGEIF: (range, criteria, [values])
// where values defaults to range and is read from its top-left corner at
// range's size
func singleCriterion(name string, args []Primitive) ([]float64, error) {
	if err := checkArity(name, args, 2, 3); err != nil {
		return nil, err
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	rng := asArray(args[0])
	mask, err := criteriaMask(name, args[:2], rng.Rows(), rng.Cols())
	if err != nil {
		return nil, err
	}
	values := rng
	if len(args) == 3 {
		if err := checkForError(args[2]); err != nil {
			return nil, err
		}
		values = asArray(args[2])
	}
	return maskedNumbers(values, mask), nil
}

// multiCriteria handles the *IFS family: (values, range1, criteria1, ...)
func multiCriteria(name string, args []Primitive) ([]float64, error) {
	if err := checkArity(name, args, 3, -1); err != nil {
		return nil, err
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	values := asArray(args[0])
	mask, err := criteriaMask(name, args[1:], values.Rows(), values.Cols())
	if err != nil {
		return nil, err
	}
	return maskedNumbers(values, mask), nil
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}

func (bf *BuiltInFunctions) SUMIF(args ...Primitive) (Primitive, error) {
	values, err := singleCriterion("SUMIF", args)
	if err != nil {
		return nil, err
	}
	return sum(values), nil
}

func (bf *BuiltInFunctions) AVERAGEIF(args ...Primitive) (Primitive, error) {
	values, err := singleCriterion("AVERAGEIF", args)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "AVERAGEIF matched no numbers")
	}
	return mean(values), nil
}

func (bf *BuiltInFunctions) COUNTIF(args ...Primitive) (Primitive, error) {
	if err := checkArity("COUNTIF", args, 2, 2); err != nil {
		return nil, err
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	rng := asArray(args[0])
	mask, err := criteriaMask("COUNTIF", args, rng.Rows(), rng.Cols())
	if err != nil {
		return nil, err
	}
	return float64(countMask(mask)), nil
}

func (bf *BuiltInFunctions) SUMIFS(args ...Primitive) (Primitive, error) {
	values, err := multiCriteria("SUMIFS", args)
	if err != nil {
		return nil, err
	}
	return sum(values), nil
}

func (bf *BuiltInFunctions) AVERAGEIFS(args ...Primitive) (Primitive, error) {
	values, err := multiCriteria("AVERAGEIFS", args)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "AVERAGEIFS matched no numbers")
	}
	return mean(values), nil
}

func (bf *BuiltInFunctions) COUNTIFS(args ...Primitive) (Primitive, error) {
	if err := checkArity("COUNTIFS", args, 2, -1); err != nil {
		return nil, err
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	first := asArray(args[0])
	mask, err := criteriaMask("COUNTIFS", args, first.Rows(), first.Cols())
	if err != nil {
		return nil, err
	}
	return float64(countMask(mask)), nil
}

func (bf *BuiltInFunctions) MAXIFS(args ...Primitive) (Primitive, error) {
	values, err := multiCriteria("MAXIFS", args)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return 0.0, nil
	}
	result := math.Inf(-1)
	for _, v := range values {
		result = math.Max(result, v)
	}
	return result, nil
}

func (bf *BuiltInFunctions) MINIFS(args ...Primitive) (Primitive, error) {
	values, err := multiCriteria("MINIFS", args)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return 0.0, nil
	}
	result := math.Inf(1)
	for _, v := range values {
		result = math.Min(result, v)
	}
	return result, nil
}
