package formula

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"runtime/debug"
	"slices"
	"strings"
	"time"
)

// Clock interface provides time functionality for testing
type Clock interface {
	Now() time.Time
}

// WallClock is the default implementation using system time
type WallClock struct{}

func (w *WallClock) Now() time.Time {
	return time.Now()
}

// RandomGenerator interface provides random number generation for testing
type RandomGenerator interface {
	Float64() float64
}

// DefaultRandomGenerator uses the standard library's rand package
type DefaultRandomGenerator struct{}

func (d *DefaultRandomGenerator) Float64() float64 {
	return rand.Float64()
}

// Function is the signature of every library function. arguments arrive
// evaluated: ranges as Array, failures as *SpreadsheetError values.
type Function func(args ...Primitive) (Primitive, error)

// BuiltInFunctions contains all spreadsheet built-in functions
type BuiltInFunctions struct {
	clock  Clock
	rng    RandomGenerator
	logger *slog.Logger
	funcs  map[string]Function
}

// NewDefaultBuiltInFunctions creates a BuiltInFunctions with default
// implementations
func NewDefaultBuiltInFunctions() *BuiltInFunctions {
	return NewBuiltInFunctions(&WallClock{}, &DefaultRandomGenerator{}, nil)
}

// NewBuiltInFunctions creates the function library with the given clock,
// random source and logger. nil arguments get the defaults.
func NewBuiltInFunctions(clock Clock, rng RandomGenerator, logger *slog.Logger) *BuiltInFunctions {
	if clock == nil {
		clock = &WallClock{}
	}
	if rng == nil {
		rng = &DefaultRandomGenerator{}
	}
	if logger == nil {
		logger = slog.Default().With("component", "formula")
	}
	bf := &BuiltInFunctions{
		clock:  clock,
		rng:    rng,
		logger: logger,
	}
	bf.funcs = map[string]Function{
		// math
		"SUM":         bf.SUM,
		"PRODUCT":     bf.PRODUCT,
		"SUMPRODUCT":  bf.SUMPRODUCT,
		"SUMSQ":       bf.SUMSQ,
		"AVERAGE":     bf.AVERAGE,
		"AVERAGEA":    bf.AVERAGEA,
		"COUNT":       bf.COUNT,
		"COUNTA":      bf.COUNTA,
		"COUNTBLANK":  bf.COUNTBLANK,
		"MAX":         bf.MAX,
		"MIN":         bf.MIN,
		"ABS":         bf.ABS,
		"SIGN":        bf.SIGN,
		"INT":         bf.INT,
		"TRUNC":       bf.TRUNC,
		"ROUND":       bf.ROUND,
		"ROUNDUP":     bf.ROUNDUP,
		"ROUNDDOWN":   bf.ROUNDDOWN,
		"CEILING":     bf.CEILING,
		"FLOOR":       bf.FLOOR,
		"SQRT":        bf.SQRT,
		"POWER":       bf.POWER,
		"MOD":         bf.MOD,
		"EXP":         bf.EXP,
		"LN":          bf.LN,
		"LOG":         bf.LOG,
		"LOG10":       bf.LOG10,
		"PI":          bf.PI,
		"RAND":        bf.RAND,
		"RANDBETWEEN": bf.RANDBETWEEN,

		// logical
		"AND":    bf.AND,
		"OR":     bf.OR,
		"NOT":    bf.NOT,
		"XOR":    bf.XOR,
		"TRUE":   bf.TRUE,
		"FALSE":  bf.FALSE,
		"IFS":    bf.IFS,
		"SWITCH": bf.SWITCH,

		// text
		"CONCATENATE": bf.CONCATENATE,
		"CONCAT":      bf.CONCAT,
		"TEXTJOIN":    bf.TEXTJOIN,
		"LEN":         bf.LEN,
		"UPPER":       bf.UPPER,
		"LOWER":       bf.LOWER,
		"PROPER":      bf.PROPER,
		"TRIM":        bf.TRIM,
		"LEFT":        bf.LEFT,
		"RIGHT":       bf.RIGHT,
		"MID":         bf.MID,
		"FIND":        bf.FIND,
		"SEARCH":      bf.SEARCH,
		"SUBSTITUTE":  bf.SUBSTITUTE,
		"REPLACE":     bf.REPLACE,
		"REPT":        bf.REPT,
		"EXACT":       bf.EXACT,
		"VALUE":       bf.VALUE,
		"CHAR":        bf.CHAR,
		"CODE":        bf.CODE,

		// date and time
		"NOW":         bf.NOW,
		"TODAY":       bf.TODAY,
		"DATE":        bf.DATE,
		"TIME":        bf.TIME,
		"YEAR":        bf.YEAR,
		"MONTH":       bf.MONTH,
		"DAY":         bf.DAY,
		"HOUR":        bf.HOUR,
		"MINUTE":      bf.MINUTE,
		"SECOND":      bf.SECOND,
		"WEEKDAY":     bf.WEEKDAY,
		"WEEKNUM":     bf.WEEKNUM,
		"DATEDIF":     bf.DATEDIF,
		"EDATE":       bf.EDATE,
		"EOMONTH":     bf.EOMONTH,
		"NETWORKDAYS": bf.NETWORKDAYS,
		"DAYS":        bf.DAYS,
		"DATEVALUE":   bf.DATEVALUE,

		// lookup and reference
		"VLOOKUP": bf.VLOOKUP,
		"HLOOKUP": bf.HLOOKUP,
		"XLOOKUP": bf.XLOOKUP,
		"MATCH":   bf.MATCH,
		"INDEX":   bf.INDEX,
		"CHOOSE":  bf.CHOOSE,
		"ROWS":    bf.ROWS,
		"COLUMNS": bf.COLUMNS,

		// conditional aggregates
		"SUMIF":      bf.SUMIF,
		"COUNTIF":    bf.COUNTIF,
		"AVERAGEIF":  bf.AVERAGEIF,
		"SUMIFS":     bf.SUMIFS,
		"COUNTIFS":   bf.COUNTIFS,
		"AVERAGEIFS": bf.AVERAGEIFS,
		"MAXIFS":     bf.MAXIFS,
		"MINIFS":     bf.MINIFS,

		// statistics
		"MEDIAN":     bf.MEDIAN,
		"MODE":       bf.MODE,
		"STDEV":      bf.STDEV,
		"VAR":        bf.VAR,
		"STDEVP":     bf.STDEVP,
		"VARP":       bf.VARP,
		"PERCENTILE": bf.PERCENTILE,
		"QUARTILE":   bf.QUARTILE,
		"RANK":       bf.RANK,
		"LARGE":      bf.LARGE,
		"SMALL":      bf.SMALL,
		"CORREL":     bf.CORREL,
		"FORECAST":   bf.FORECAST,

		// financial
		"PMT":  bf.PMT,
		"FV":   bf.FV,
		"PV":   bf.PV,
		"NPER": bf.NPER,
		"NPV":  bf.NPV,

		// information
		"ISBLANK":   bf.ISBLANK,
		"ISERROR":   bf.ISERROR,
		"ISERR":     bf.ISERR,
		"ISNA":      bf.ISNA,
		"ISNUMBER":  bf.ISNUMBER,
		"ISTEXT":    bf.ISTEXT,
		"ISLOGICAL": bf.ISLOGICAL,
		"TYPE":      bf.TYPE,
		"NA":        bf.NA,

		// arrays
		"UNIQUE":    bf.UNIQUE,
		"TRANSPOSE": bf.TRANSPOSE,
		"SEQUENCE":  bf.SEQUENCE,
		"SPARKLINE": bf.SPARKLINE,
	}
	return bf
}

// Register adds or replaces a function. names are case-insensitive.
func (bf *BuiltInFunctions) Register(name string, fn Function) {
	bf.funcs[strings.ToUpper(name)] = fn
}

// Has reports whether name is a known function
func (bf *BuiltInFunctions) Has(name string) bool {
	_, ok := bf.funcs[strings.ToUpper(name)]
	return ok
}

// Names returns every registered function name, sorted
func (bf *BuiltInFunctions) Names() []string {
	names := make([]string, 0, len(bf.funcs))
	for name := range bf.funcs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Call invokes a built-in function by name with the given arguments. a
// panicking function yields #VALUE!.
func (bf *BuiltInFunctions) Call(name string, args ...Primitive) (result Primitive, err error) {
	name = strings.ToUpper(name)
	fn, ok := bf.funcs[name]
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeName, fmt.Sprintf("Unknown function: %s", name))
	}

	defer func() {
		if r := recover(); r != nil {
			bf.logger.Warn("function panicked",
				"function", name,
				"panic", r,
				"stack", string(debug.Stack()))
			result = nil
			err = NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("%s failed: %v", name, r))
		}
	}()

	return fn(args...)
}

// isVolatileFunction returns true if the function should trigger
// recalculation whenever the host refreshes
func isVolatileFunction(name string) bool {
	switch strings.ToUpper(name) {
	case "NOW", "TODAY", "RAND", "RANDBETWEEN":
		return true
	default:
		return false
	}
}

// checkForError returns the error if value is a *SpreadsheetError, nil otherwise
func checkForError(value Primitive) *SpreadsheetError {
	if err, ok := value.(*SpreadsheetError); ok {
		return err
	}
	return nil
}

// firstError returns the first error among the direct arguments
func firstError(args []Primitive) *SpreadsheetError {
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return err
		}
	}
	return nil
}

func arityError(name string, want string) *SpreadsheetError {
	return NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("%s requires %s", name, want))
}

// checkArity validates the argument count, maxArgs < 0 means unbounded
func checkArity(name string, args []Primitive, minArgs, maxArgs int) *SpreadsheetError {
	switch {
	case maxArgs < 0 && len(args) < minArgs:
		return arityError(name, fmt.Sprintf("at least %d arguments", minArgs))
	case maxArgs >= 0 && (len(args) < minArgs || len(args) > maxArgs):
		if minArgs == maxArgs {
			return arityError(name, fmt.Sprintf("exactly %d arguments", minArgs))
		}
		return arityError(name, fmt.Sprintf("%d to %d arguments", minArgs, maxArgs))
	}
	return nil
}

// numberArg coerces one scalar argument to a number
func numberArg(name string, value Primitive) (float64, error) {
	value = scalarOf(value)
	if err := checkForError(value); err != nil {
		return 0, err
	}
	num, ok := toNumber(value)
	if !ok {
		return 0, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("%s requires a numeric argument, got %q", name, toString(value)))
	}
	return num, nil
}

// optionalNumber returns def when the argument is absent
func optionalNumber(name string, args []Primitive, i int, def float64) (float64, error) {
	if i >= len(args) {
		return def, nil
	}
	return numberArg(name, args[i])
}

// intArg coerces to a number and truncates toward zero
func intArg(name string, value Primitive) (int, error) {
	num, err := numberArg(name, value)
	if err != nil {
		return 0, err
	}
	if math.Abs(num) > math.MaxInt32 {
		return 0, NewSpreadsheetError(ErrorCodeNum, fmt.Sprintf("%s argument out of range", name))
	}
	return int(num), nil
}

// textArg coerces one scalar argument to text
func textArg(value Primitive) (string, error) {
	value = scalarOf(value)
	if err := checkForError(value); err != nil {
		return "", err
	}
	return toString(value), nil
}

// boolArg coerces one scalar argument to a logical value
func boolArg(value Primitive) (bool, error) {
	b, err := toBool(scalarOf(value))
	if err != nil {
		return false, err
	}
	return b, nil
}

// collectNumbers gathers the numbers an aggregate sees. values inside
// ranges count only when they are numbers, direct arguments are coerced and
// text that is not a number is #VALUE!. errors anywhere propagate.
func collectNumbers(name string, args []Primitive) ([]float64, error) {
	values := []float64{}
	for value, fromRange := range iterateArgs(args) {
		if err := checkForError(value); err != nil {
			return nil, err
		}
		if fromRange {
			if num, ok := value.(float64); ok {
				values = append(values, num)
			}
			continue
		}
		if value == nil {
			continue
		}
		num, ok := toNumber(value)
		if !ok {
			return nil, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("%s cannot use %q as a number", name, toString(value)))
		}
		values = append(values, num)
	}
	return values, nil
}

// numbersOnly returns the numeric values of a table argument, skipping
// everything else
func numbersOnly(value Primitive) ([]float64, error) {
	values := []float64{}
	for v := range asArray(value).IterateValues() {
		if err := checkForError(v); err != nil {
			return nil, err
		}
		if num, ok := v.(float64); ok {
			values = append(values, num)
		}
	}
	return values, nil
}
