package formula

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// toNumber converts value to number, returning ok=false if conversion fails
func toNumber(value Primitive) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		return parseNumericText(v)
	case nil:
		return 0, true
	case Array:
		return toNumber(v.At(0, 0))
	default:
		return 0, false
	}
}

// parseNumericText accepts plain decimal text with an optional trailing
// percent sign. hex, inf and nan spellings that strconv allows are rejected.
func parseNumericText(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	scale := 1.0
	if strings.HasSuffix(s, "%") {
		scale = 0.01
		s = strings.TrimSpace(s[:len(s)-1])
	}
	for _, ch := range s {
		if !(ch >= '0' && ch <= '9' || ch == '.' || ch == '-' || ch == '+' || ch == 'e' || ch == 'E') {
			return 0, false
		}
	}
	num, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return num * scale, true
}

// toString converts value to its display text
func toString(value Primitive) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return formatNumber(v)
	case int:
		return strconv.Itoa(v)
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case *SpreadsheetError:
		return v.String()
	case Array:
		return toString(v.At(0, 0))
	case LambdaRef:
		return string(v)
	default:
		return ""
	}
}

// formatNumber renders numbers the way a cell shows them in general format:
// integers without a decimal point, others with up to 15 significant digits
func formatNumber(f float64) string {
	if f == 0 {
		return "0"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', 15, 64)
}

// toBool coerces a condition value. text other than TRUE/FALSE is a
// #VALUE! error
func toBool(value Primitive) (bool, *SpreadsheetError) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case float64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case nil:
		return false, nil
	case string:
		switch strings.ToUpper(strings.TrimSpace(v)) {
		case "TRUE":
			return true, nil
		case "FALSE":
			return false, nil
		}
		return false, NewSpreadsheetError(ErrorCodeValue, "expected a logical value, got text")
	case *SpreadsheetError:
		return false, v
	case Array:
		return toBool(v.At(0, 0))
	default:
		return false, NewSpreadsheetError(ErrorCodeValue, "expected a logical value")
	}
}

// scalarOf reduces an array argument to its top-left value
func scalarOf(value Primitive) Primitive {
	if arr, ok := value.(Array); ok {
		return arr.At(0, 0)
	}
	return value
}

// asArray wraps a scalar into a 1x1 array so table arguments accept both
func asArray(value Primitive) Array {
	if arr, ok := value.(Array); ok {
		return arr
	}
	return Array{{value}}
}

// foldString case-folds text for case-insensitive comparison. a Caser
// keeps state, so each call gets its own.
func foldString(s string) string {
	return cases.Fold().String(s)
}

// comparePrimitives compares two primitive values. returns -1 if left <
// right, 0 if equal, 1 if left > right. values compare numerically when
// both reduce to numbers, otherwise as case-insensitive text.
func comparePrimitives(left, right Primitive) int {
	if left == nil && right == nil {
		return 0
	}

	leftNum, leftIsNum := toNumber(left)
	rightNum, rightIsNum := toNumber(right)
	if leftIsNum && rightIsNum {
		switch {
		case leftNum < rightNum:
			return -1
		case leftNum > rightNum:
			return 1
		}
		return 0
	}

	return strings.Compare(foldString(toString(left)), foldString(toString(right)))
}

// checkNumber turns non-finite results into #NUM!
func checkNumber(f float64) Primitive {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return NewSpreadsheetError(ErrorCodeNum, "result is not a finite number")
	}
	return f
}
