package formula

import (
	"math"
)

// annuityArgs reads the numeric arguments of the annuity functions, filling
// absent optional ones with zero
func annuityArgs(name string, args []Primitive, required int) ([5]float64, error) {
	var out [5]float64
	if err := checkArity(name, args, required, 5); err != nil {
		return out, err
	}
	for i := range args {
		n, err := numberArg(name, args[i])
		if err != nil {
			return out, err
		}
		out[i] = n
	}
	return out, nil
}

// PMT(rate, nper, pv, [fv], [type]) is the payment per period. money paid
// out is negative.
func (bf *BuiltInFunctions) PMT(args ...Primitive) (Primitive, error) {
	a, err := annuityArgs("PMT", args, 3)
	if err != nil {
		return nil, err
	}
	rate, nper, pv, fv, kind := a[0], a[1], a[2], a[3], a[4]
	if nper == 0 {
		return nil, NewSpreadsheetError(ErrorCodeNum, "PMT requires a non-zero number of periods")
	}
	if rate == 0 {
		return -(pv + fv) / nper, nil
	}
	growth := math.Pow(1+rate, nper)
	return -(rate * (fv + pv*growth)) / ((1 + rate*typeFlag(kind)) * (growth - 1)), nil
}

// FV(rate, nper, pmt, [pv], [type]) is the future value of an investment
func (bf *BuiltInFunctions) FV(args ...Primitive) (Primitive, error) {
	a, err := annuityArgs("FV", args, 3)
	if err != nil {
		return nil, err
	}
	rate, nper, pmt, pv, kind := a[0], a[1], a[2], a[3], a[4]
	if rate == 0 {
		return -(pv + pmt*nper), nil
	}
	growth := math.Pow(1+rate, nper)
	return -(pv*growth + pmt*(1+rate*typeFlag(kind))*(growth-1)/rate), nil
}

// PV(rate, nper, pmt, [fv], [type]) is the present value of an investment
func (bf *BuiltInFunctions) PV(args ...Primitive) (Primitive, error) {
	a, err := annuityArgs("PV", args, 3)
	if err != nil {
		return nil, err
	}
	rate, nper, pmt, fv, kind := a[0], a[1], a[2], a[3], a[4]
	if rate == 0 {
		return -(fv + pmt*nper), nil
	}
	growth := math.Pow(1+rate, nper)
	return -(fv + pmt*(1+rate*typeFlag(kind))*(growth-1)/rate) / growth, nil
}

// NPER(rate, pmt, pv, [fv], [type]) is the number of periods
func (bf *BuiltInFunctions) NPER(args ...Primitive) (Primitive, error) {
	a, err := annuityArgs("NPER", args, 3)
	if err != nil {
		return nil, err
	}
	rate, pmt, pv, fv, kind := a[0], a[1], a[2], a[3], a[4]
	if rate == 0 {
		if pmt == 0 {
			return nil, NewSpreadsheetError(ErrorCodeNum, "NPER requires a payment when the rate is zero")
		}
		return -(pv + fv) / pmt, nil
	}
	adjusted := pmt * (1 + rate*typeFlag(kind))
	ratio := (adjusted - fv*rate) / (adjusted + pv*rate)
	if ratio <= 0 || rate <= -1 {
		return nil, NewSpreadsheetError(ErrorCodeNum, "NPER has no solution")
	}
	return math.Log(ratio) / math.Log(1+rate), nil
}

// NPV(rate, value1, ...) discounts the first value by one full period
func (bf *BuiltInFunctions) NPV(args ...Primitive) (Primitive, error) {
	if err := checkArity("NPV", args, 2, -1); err != nil {
		return nil, err
	}
	rate, err := numberArg("NPV", args[0])
	if err != nil {
		return nil, err
	}
	if rate == -1 {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "Division by zero")
	}
	flows, err := collectNumbers("NPV", args[1:])
	if err != nil {
		return nil, err
	}
	total := 0.0
	for i, flow := range flows {
		total += flow / math.Pow(1+rate, float64(i+1))
	}
	return total, nil
}

// typeFlag normalizes the payment timing argument: 0 end of period, 1 start
func typeFlag(kind float64) float64 {
	if kind != 0 {
		return 1
	}
	return 0
}
