package formula

import (
	"fmt"
	"math"
	"slices"
)

func (bf *BuiltInFunctions) MEDIAN(args ...Primitive) (Primitive, error) {
	values, err := collectNumbers("MEDIAN", args)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeNum, "MEDIAN has no numeric values")
	}
	slices.Sort(values)

	mid := len(values) / 2
	if len(values)%2 == 0 {
		// even count: average of two middle values
		return (values[mid-1] + values[mid]) / 2, nil
	}
	return values[mid], nil
}

// MODE returns the most frequent value, the smallest one on ties
func (bf *BuiltInFunctions) MODE(args ...Primitive) (Primitive, error) {
	values, err := collectNumbers("MODE", args)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeNum, "MODE has no numeric values")
	}

	frequency := make(map[float64]int)
	maxFreq := 0
	for _, v := range values {
		frequency[v]++
		maxFreq = max(maxFreq, frequency[v])
	}
	if maxFreq == 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "MODE: no value appears more than once")
	}

	var modes []float64
	for value, freq := range frequency {
		if freq == maxFreq {
			modes = append(modes, value)
		}
	}
	return slices.Min(modes), nil
}

// variance returns the sum of squared deviations divided by n - ddof
func variance(name string, args []Primitive, ddof int) (float64, error) {
	values, err := collectNumbers(name, args)
	if err != nil {
		return 0, err
	}
	if len(values) <= ddof || len(values) == 0 {
		return 0, NewSpreadsheetError(ErrorCodeDiv0, fmt.Sprintf("%s needs more values", name))
	}
	m := mean(values)
	squares := 0.0
	for _, v := range values {
		squares += (v - m) * (v - m)
	}
	return squares / float64(len(values)-ddof), nil
}

func (bf *BuiltInFunctions) VAR(args ...Primitive) (Primitive, error) {
	v, err := variance("VAR", args, 1)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (bf *BuiltInFunctions) VARP(args ...Primitive) (Primitive, error) {
	v, err := variance("VARP", args, 0)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (bf *BuiltInFunctions) STDEV(args ...Primitive) (Primitive, error) {
	v, err := variance("STDEV", args, 1)
	if err != nil {
		return nil, err
	}
	return math.Sqrt(v), nil
}

func (bf *BuiltInFunctions) STDEVP(args ...Primitive) (Primitive, error) {
	v, err := variance("STDEVP", args, 0)
	if err != nil {
		return nil, err
	}
	return math.Sqrt(v), nil
}

// percentile interpolates linearly between closest ranks of sorted values
func percentile(sorted []float64, k float64) float64 {
	pos := k * float64(len(sorted)-1)
	lower := math.Floor(pos)
	upper := math.Ceil(pos)
	if lower == upper {
		return sorted[int(pos)]
	}
	return sorted[int(lower)] + (pos-lower)*(sorted[int(upper)]-sorted[int(lower)])
}

func sortedNumbers(value Primitive) ([]float64, error) {
	if err := checkForError(value); err != nil {
		return nil, err
	}
	values, err := numbersOnly(value)
	if err != nil {
		return nil, err
	}
	slices.Sort(values)
	return values, nil
}

func (bf *BuiltInFunctions) PERCENTILE(args ...Primitive) (Primitive, error) {
	if err := checkArity("PERCENTILE", args, 2, 2); err != nil {
		return nil, err
	}
	values, err := sortedNumbers(args[0])
	if err != nil {
		return nil, err
	}
	k, err := numberArg("PERCENTILE", args[1])
	if err != nil {
		return nil, err
	}
	if len(values) == 0 || k < 0 || k > 1 {
		return nil, NewSpreadsheetError(ErrorCodeNum, "PERCENTILE requires values and k between 0 and 1")
	}
	return percentile(values, k), nil
}

// QUARTILE(array, q) with q from 0 (minimum) to 4 (maximum)
func (bf *BuiltInFunctions) QUARTILE(args ...Primitive) (Primitive, error) {
	if err := checkArity("QUARTILE", args, 2, 2); err != nil {
		return nil, err
	}
	values, err := sortedNumbers(args[0])
	if err != nil {
		return nil, err
	}
	q, err := numberArg("QUARTILE", args[1])
	if err != nil {
		return nil, err
	}
	q = math.Trunc(q)
	if len(values) == 0 || q < 0 || q > 4 {
		return nil, NewSpreadsheetError(ErrorCodeNum, "QUARTILE requires values and a quartile between 0 and 4")
	}
	return percentile(values, q/4), nil
}

// RANK(number, ref, [order]) ranks descending by default, ties share the
// best rank
func (bf *BuiltInFunctions) RANK(args ...Primitive) (Primitive, error) {
	if err := checkArity("RANK", args, 2, 3); err != nil {
		return nil, err
	}
	x, err := numberArg("RANK", args[0])
	if err != nil {
		return nil, err
	}
	if err := checkForError(args[1]); err != nil {
		return nil, err
	}
	values, err := numbersOnly(args[1])
	if err != nil {
		return nil, err
	}
	order, err := optionalNumber("RANK", args, 2, 0)
	if err != nil {
		return nil, err
	}

	rank := 1
	found := false
	for _, v := range values {
		switch {
		case v == x:
			found = true
		case order == 0 && v > x, order != 0 && v < x:
			rank++
		}
	}
	if !found {
		return nil, NewSpreadsheetError(ErrorCodeNA, fmt.Sprintf("RANK: %s is not in the list", formatNumber(x)))
	}
	return float64(rank), nil
}

// nthValue backs LARGE and SMALL with a 1-based k
func nthValue(name string, args []Primitive, largest bool) (Primitive, error) {
	if err := checkArity(name, args, 2, 2); err != nil {
		return nil, err
	}
	values, err := sortedNumbers(args[0])
	if err != nil {
		return nil, err
	}
	k, err := numberArg(name, args[1])
	if err != nil {
		return nil, err
	}
	n := int(math.Ceil(k))
	if n < 1 || n > len(values) {
		return nil, NewSpreadsheetError(ErrorCodeNum, fmt.Sprintf("%s k is out of range", name))
	}
	if largest {
		return values[len(values)-n], nil
	}
	return values[n-1], nil
}

func (bf *BuiltInFunctions) LARGE(args ...Primitive) (Primitive, error) {
	return nthValue("LARGE", args, true)
}

func (bf *BuiltInFunctions) SMALL(args ...Primitive) (Primitive, error) {
	return nthValue("SMALL", args, false)
}

// pairedNumbers returns the positions where both arrays hold numbers
func pairedNumbers(name string, a, b Primitive) ([]float64, []float64, error) {
	if err := firstError([]Primitive{a, b}); err != nil {
		return nil, nil, err
	}
	left := asArray(a).Flatten()
	right := asArray(b).Flatten()
	if len(left) != len(right) {
		return nil, nil, NewSpreadsheetError(ErrorCodeNA, fmt.Sprintf("%s arrays differ in size", name))
	}
	xs, ys := []float64{}, []float64{}
	for i := range left {
		if err := firstError([]Primitive{left[i], right[i]}); err != nil {
			return nil, nil, err
		}
		x, xok := left[i].(float64)
		y, yok := right[i].(float64)
		if xok && yok {
			xs = append(xs, x)
			ys = append(ys, y)
		}
	}
	return xs, ys, nil
}

// CORREL is the Pearson correlation coefficient
func (bf *BuiltInFunctions) CORREL(args ...Primitive) (Primitive, error) {
	if err := checkArity("CORREL", args, 2, 2); err != nil {
		return nil, err
	}
	xs, ys, err := pairedNumbers("CORREL", args[0], args[1])
	if err != nil {
		return nil, err
	}
	if len(xs) < 2 {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "CORREL needs at least two pairs")
	}
	mx, my := mean(xs), mean(ys)
	var sxy, sxx, syy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "CORREL of a constant series")
	}
	return sxy / math.Sqrt(sxx*syy), nil
}

// FORECAST(x, known_ys, known_xs) predicts y with a least squares line
func (bf *BuiltInFunctions) FORECAST(args ...Primitive) (Primitive, error) {
	if err := checkArity("FORECAST", args, 3, 3); err != nil {
		return nil, err
	}
	x, err := numberArg("FORECAST", args[0])
	if err != nil {
		return nil, err
	}
	xs, ys, err := pairedNumbers("FORECAST", args[2], args[1])
	if err != nil {
		return nil, err
	}
	if len(xs) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "FORECAST needs known values")
	}
	mx, my := mean(xs), mean(ys)
	var sxy, sxx float64
	for i := range xs {
		sxy += (xs[i] - mx) * (ys[i] - my)
		sxx += (xs[i] - mx) * (xs[i] - mx)
	}
	if sxx == 0 {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "FORECAST known x values have no variance")
	}
	slope := sxy / sxx
	return my + slope*(x-mx), nil
}
