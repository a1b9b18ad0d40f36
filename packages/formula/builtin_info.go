package formula

// isFunction wraps the one-argument IS* predicates. they never fail, an
// error argument is just another value to test.
func isFunction(name string, args []Primitive, test func(Primitive) bool) (Primitive, error) {
	if err := checkArity(name, args, 1, 1); err != nil {
		return nil, err
	}
	return test(scalarOf(args[0])), nil
}

func (bf *BuiltInFunctions) ISBLANK(args ...Primitive) (Primitive, error) {
	return isFunction("ISBLANK", args, func(v Primitive) bool { return v == nil })
}

func (bf *BuiltInFunctions) ISERROR(args ...Primitive) (Primitive, error) {
	return isFunction("ISERROR", args, func(v Primitive) bool { return checkForError(v) != nil })
}

// ISERR is ISERROR except for #N/A
func (bf *BuiltInFunctions) ISERR(args ...Primitive) (Primitive, error) {
	return isFunction("ISERR", args, func(v Primitive) bool {
		err := checkForError(v)
		return err != nil && err.ErrorCode != ErrorCodeNA
	})
}

func (bf *BuiltInFunctions) ISNA(args ...Primitive) (Primitive, error) {
	return isFunction("ISNA", args, func(v Primitive) bool {
		err := checkForError(v)
		return err != nil && err.ErrorCode == ErrorCodeNA
	})
}

func (bf *BuiltInFunctions) ISNUMBER(args ...Primitive) (Primitive, error) {
	return isFunction("ISNUMBER", args, func(v Primitive) bool {
		_, ok := v.(float64)
		return ok
	})
}

func (bf *BuiltInFunctions) ISTEXT(args ...Primitive) (Primitive, error) {
	return isFunction("ISTEXT", args, func(v Primitive) bool {
		_, ok := v.(string)
		return ok
	})
}

func (bf *BuiltInFunctions) ISLOGICAL(args ...Primitive) (Primitive, error) {
	return isFunction("ISLOGICAL", args, func(v Primitive) bool {
		_, ok := v.(bool)
		return ok
	})
}

// type codes returned by TYPE
const (
	typeNumber  = 1
	typeText    = 2
	typeLogical = 4
	typeError   = 16
	typeArray   = 64
)

// TYPE returns 1 for numbers and blanks, 2 text, 4 logical, 16 error and
// 64 for arrays
func (bf *BuiltInFunctions) TYPE(args ...Primitive) (Primitive, error) {
	if err := checkArity("TYPE", args, 1, 1); err != nil {
		return nil, err
	}
	switch args[0].(type) {
	case Array:
		return float64(typeArray), nil
	case string:
		return float64(typeText), nil
	case bool:
		return float64(typeLogical), nil
	case *SpreadsheetError:
		return float64(typeError), nil
	}
	return float64(typeNumber), nil
}

func (bf *BuiltInFunctions) NA(args ...Primitive) (Primitive, error) {
	if err := checkArity("NA", args, 0, 0); err != nil {
		return nil, err
	}
	return nil, NewSpreadsheetError(ErrorCodeNA, "")
}
