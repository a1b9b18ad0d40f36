package formula

import (
	"math"
)

func (bf *BuiltInFunctions) SUM(args ...Primitive) (Primitive, error) {
	values, err := collectNumbers("SUM", args)
	if err != nil {
		return nil, err
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum, nil
}

func (bf *BuiltInFunctions) PRODUCT(args ...Primitive) (Primitive, error) {
	values, err := collectNumbers("PRODUCT", args)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return 0.0, nil
	}
	product := 1.0
	for _, v := range values {
		product *= v
	}
	return product, nil
}

// SUMPRODUCT multiplies same-shaped arrays element by element and sums the
// products. non-numeric elements count as zero.
func (bf *BuiltInFunctions) SUMPRODUCT(args ...Primitive) (Primitive, error) {
	if err := checkArity("SUMPRODUCT", args, 1, -1); err != nil {
		return nil, err
	}
	if err := firstError(args); err != nil {
		return nil, err
	}

	arrays := make([]Array, len(args))
	for i, arg := range args {
		arrays[i] = asArray(arg)
		if arrays[i].Rows() != arrays[0].Rows() || arrays[i].Cols() != arrays[0].Cols() {
			return nil, NewSpreadsheetError(ErrorCodeValue, "SUMPRODUCT arrays must have the same dimensions")
		}
	}

	sum := 0.0
	for r := range arrays[0].Rows() {
		for c := range arrays[0].Cols() {
			product := 1.0
			for _, arr := range arrays {
				v := arr.At(r, c)
				if err := checkForError(v); err != nil {
					return nil, err
				}
				num, ok := v.(float64)
				if !ok {
					product = 0
					break
				}
				product *= num
			}
			sum += product
		}
	}
	return sum, nil
}

func (bf *BuiltInFunctions) SUMSQ(args ...Primitive) (Primitive, error) {
	values, err := collectNumbers("SUMSQ", args)
	if err != nil {
		return nil, err
	}
	sum := 0.0
	for _, v := range values {
		sum += v * v
	}
	return sum, nil
}

func (bf *BuiltInFunctions) AVERAGE(args ...Primitive) (Primitive, error) {
	values, err := collectNumbers("AVERAGE", args)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "Division by zero")
	}
	return mean(values), nil
}

func (bf *BuiltInFunctions) AVERAGEA(args ...Primitive) (Primitive, error) {
	sum := 0.0
	count := 0

	for value, fromRange := range iterateArgs(args) {
		// empty cells are ignored
		if value == nil {
			continue
		}
		if err := checkForError(value); err != nil {
			return nil, err
		}

		// AVERAGEA counts every non-empty value, but only numbers and
		// logicals contribute to the sum
		switch v := value.(type) {
		case float64:
			sum += v
			count++
		case bool:
			if v {
				sum++
			}
			count++
		case string:
			if !fromRange {
				num, ok := toNumber(v)
				if !ok {
					return nil, NewSpreadsheetError(ErrorCodeValue, "AVERAGEA cannot use text as a number")
				}
				sum += num
			}
			count++
		}
	}

	if count == 0 {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "AVERAGEA has no values")
	}
	return sum / float64(count), nil
}

func (bf *BuiltInFunctions) COUNT(args ...Primitive) (Primitive, error) {
	count := 0
	for value, fromRange := range iterateArgs(args) {
		switch v := value.(type) {
		case float64:
			count++
		case bool:
			// logicals typed directly are counted, logicals in cells are not
			if !fromRange {
				count++
			}
		case string:
			if _, ok := toNumber(v); ok && !fromRange {
				count++
			}
		}
	}
	return float64(count), nil
}

func (bf *BuiltInFunctions) COUNTA(args ...Primitive) (Primitive, error) {
	count := 0
	// errors count as non-empty values
	for value := range iterateArgs(args) {
		if value != nil {
			count++
		}
	}
	return float64(count), nil
}

func (bf *BuiltInFunctions) COUNTBLANK(args ...Primitive) (Primitive, error) {
	count := 0
	for value := range iterateArgs(args) {
		if value == nil || value == "" {
			count++
		}
	}
	return float64(count), nil
}

func (bf *BuiltInFunctions) MAX(args ...Primitive) (Primitive, error) {
	values, err := collectNumbers("MAX", args)
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

func (bf *BuiltInFunctions) MIN(args ...Primitive) (Primitive, error) {
	values, err := collectNumbers("MIN", args)
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

// unaryMath wraps a one-argument numeric function
func unaryMath(name string, args []Primitive, fn func(float64) (Primitive, error)) (Primitive, error) {
	if err := checkArity(name, args, 1, 1); err != nil {
		return nil, err
	}
	num, err := numberArg(name, args[0])
	if err != nil {
		return nil, err
	}
	return fn(num)
}

func (bf *BuiltInFunctions) ABS(args ...Primitive) (Primitive, error) {
	return unaryMath("ABS", args, func(x float64) (Primitive, error) {
		return math.Abs(x), nil
	})
}

func (bf *BuiltInFunctions) SIGN(args ...Primitive) (Primitive, error) {
	return unaryMath("SIGN", args, func(x float64) (Primitive, error) {
		switch {
		case x > 0:
			return 1.0, nil
		case x < 0:
			return -1.0, nil
		}
		return 0.0, nil
	})
}

func (bf *BuiltInFunctions) INT(args ...Primitive) (Primitive, error) {
	return unaryMath("INT", args, func(x float64) (Primitive, error) {
		return math.Floor(x), nil
	})
}

type roundMode int

const (
	roundHalfAway roundMode = iota
	roundAwayFromZero
	roundTowardZero
)

// roundDigits rounds num to digits decimal places, negative digits round to
// the left of the decimal point. representation noise such as
// 2.675 == 2.67499999... is treated as the decimal value it was typed as.
func roundDigits(num float64, digits int, mode roundMode) float64 {
	scale := math.Pow(10, math.Abs(float64(digits)))
	scaled := num * scale
	if digits < 0 {
		scaled = num / scale
	}

	tolerance := math.Max(1e-9, math.Abs(scaled)*1e-14)
	nearest := math.Round(scaled)
	sign := 1.0
	if scaled < 0 {
		sign = -1.0
	}

	var rounded float64
	switch mode {
	case roundHalfAway:
		trunc := math.Trunc(scaled)
		if math.Abs(math.Abs(scaled-trunc)-0.5) < tolerance {
			rounded = trunc + sign
		} else {
			rounded = nearest
		}
	case roundAwayFromZero:
		if math.Abs(scaled-nearest) < tolerance {
			rounded = nearest
		} else {
			rounded = math.Trunc(scaled) + sign
		}
	case roundTowardZero:
		if math.Abs(scaled-nearest) < tolerance {
			rounded = nearest
		} else {
			rounded = math.Trunc(scaled)
		}
	}

	if digits < 0 {
		return rounded * scale
	}
	return rounded / scale
}

func roundFunction(name string, mode roundMode, args []Primitive) (Primitive, error) {
	if err := checkArity(name, args, 1, 2); err != nil {
		return nil, err
	}
	num, err := numberArg(name, args[0])
	if err != nil {
		return nil, err
	}
	places, err := optionalNumber(name, args, 1, 0)
	if err != nil {
		return nil, err
	}
	return roundDigits(num, int(places), mode), nil
}

func (bf *BuiltInFunctions) ROUND(args ...Primitive) (Primitive, error) {
	return roundFunction("ROUND", roundHalfAway, args)
}

func (bf *BuiltInFunctions) ROUNDUP(args ...Primitive) (Primitive, error) {
	return roundFunction("ROUNDUP", roundAwayFromZero, args)
}

func (bf *BuiltInFunctions) ROUNDDOWN(args ...Primitive) (Primitive, error) {
	return roundFunction("ROUNDDOWN", roundTowardZero, args)
}

func (bf *BuiltInFunctions) TRUNC(args ...Primitive) (Primitive, error) {
	return roundFunction("TRUNC", roundTowardZero, args)
}

// snapQuotient removes representation noise from x/significance so that
// CEILING(0.3, 0.1) stays 0.3
func snapQuotient(q float64) float64 {
	if nearest := math.Round(q); math.Abs(q-nearest) < 1e-9 {
		return nearest
	}
	return q
}

func multipleFunction(name string, args []Primitive, fn func(float64) float64) (Primitive, error) {
	if err := checkArity(name, args, 1, 2); err != nil {
		return nil, err
	}
	num, err := numberArg(name, args[0])
	if err != nil {
		return nil, err
	}
	significance, err := optionalNumber(name, args, 1, 1)
	if err != nil {
		return nil, err
	}
	if significance == 0 || num == 0 {
		return 0.0, nil
	}
	if num > 0 && significance < 0 {
		return nil, NewSpreadsheetError(ErrorCodeNum, name+" significance must be positive for a positive number")
	}
	return fn(snapQuotient(num/significance)) * significance, nil
}

func (bf *BuiltInFunctions) CEILING(args ...Primitive) (Primitive, error) {
	return multipleFunction("CEILING", args, math.Ceil)
}

func (bf *BuiltInFunctions) FLOOR(args ...Primitive) (Primitive, error) {
	return multipleFunction("FLOOR", args, math.Floor)
}

func (bf *BuiltInFunctions) SQRT(args ...Primitive) (Primitive, error) {
	return unaryMath("SQRT", args, func(x float64) (Primitive, error) {
		if x < 0 {
			return nil, NewSpreadsheetError(ErrorCodeNum, "SQRT requires a non-negative argument")
		}
		return math.Sqrt(x), nil
	})
}

func (bf *BuiltInFunctions) POWER(args ...Primitive) (Primitive, error) {
	if err := checkArity("POWER", args, 2, 2); err != nil {
		return nil, err
	}
	base, err := numberArg("POWER", args[0])
	if err != nil {
		return nil, err
	}
	exp, err := numberArg("POWER", args[1])
	if err != nil {
		return nil, err
	}
	if base == 0 && exp < 0 {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "Division by zero")
	}
	return checkNumber(math.Pow(base, exp)), nil
}

// MOD returns the remainder with the sign of the divisor
func (bf *BuiltInFunctions) MOD(args ...Primitive) (Primitive, error) {
	if err := checkArity("MOD", args, 2, 2); err != nil {
		return nil, err
	}
	dividend, err := numberArg("MOD", args[0])
	if err != nil {
		return nil, err
	}
	divisor, err := numberArg("MOD", args[1])
	if err != nil {
		return nil, err
	}
	if divisor == 0 {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "Division by zero")
	}
	return dividend - divisor*math.Floor(snapQuotient(dividend/divisor)), nil
}

func (bf *BuiltInFunctions) EXP(args ...Primitive) (Primitive, error) {
	return unaryMath("EXP", args, func(x float64) (Primitive, error) {
		return checkNumber(math.Exp(x)), nil
	})
}

func (bf *BuiltInFunctions) LN(args ...Primitive) (Primitive, error) {
	return unaryMath("LN", args, func(x float64) (Primitive, error) {
		if x <= 0 {
			return nil, NewSpreadsheetError(ErrorCodeNum, "LN requires a positive argument")
		}
		return math.Log(x), nil
	})
}

func (bf *BuiltInFunctions) LOG(args ...Primitive) (Primitive, error) {
	if err := checkArity("LOG", args, 1, 2); err != nil {
		return nil, err
	}
	num, err := numberArg("LOG", args[0])
	if err != nil {
		return nil, err
	}
	base, err := optionalNumber("LOG", args, 1, 10)
	if err != nil {
		return nil, err
	}
	if num <= 0 || base <= 0 {
		return nil, NewSpreadsheetError(ErrorCodeNum, "LOG requires positive arguments")
	}
	if base == 1 {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "LOG base cannot be 1")
	}
	if base == 10 {
		return math.Log10(num), nil
	}
	return math.Log(num) / math.Log(base), nil
}

func (bf *BuiltInFunctions) LOG10(args ...Primitive) (Primitive, error) {
	return unaryMath("LOG10", args, func(x float64) (Primitive, error) {
		if x <= 0 {
			return nil, NewSpreadsheetError(ErrorCodeNum, "LOG10 requires a positive argument")
		}
		return math.Log10(x), nil
	})
}

func (bf *BuiltInFunctions) PI(args ...Primitive) (Primitive, error) {
	if err := checkArity("PI", args, 0, 0); err != nil {
		return nil, err
	}
	return math.Pi, nil
}

func (bf *BuiltInFunctions) RAND(args ...Primitive) (Primitive, error) {
	if err := checkArity("RAND", args, 0, 0); err != nil {
		return nil, err
	}
	return bf.rng.Float64(), nil
}

// RANDBETWEEN returns a uniformly chosen integer in [low, high]
func (bf *BuiltInFunctions) RANDBETWEEN(args ...Primitive) (Primitive, error) {
	if err := checkArity("RANDBETWEEN", args, 2, 2); err != nil {
		return nil, err
	}
	low, err := numberArg("RANDBETWEEN", args[0])
	if err != nil {
		return nil, err
	}
	high, err := numberArg("RANDBETWEEN", args[1])
	if err != nil {
		return nil, err
	}
	low, high = math.Ceil(low), math.Floor(high)
	if low > high {
		return nil, NewSpreadsheetError(ErrorCodeNum, "RANDBETWEEN bottom is greater than top")
	}
	n := math.Floor(bf.rng.Float64() * (high - low + 1))
	return low + math.Min(n, high-low), nil
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
