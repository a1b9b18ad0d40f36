package formula

// logicalValues gathers the logical values AND/OR/XOR test. text and
// blanks inside ranges are skipped, text typed directly is #VALUE!.
func logicalValues(name string, args []Primitive) ([]bool, error) {
	values := []bool{}
	for value, fromRange := range iterateArgs(args) {
		if err := checkForError(value); err != nil {
			return nil, err
		}
		if fromRange {
			switch v := value.(type) {
			case bool:
				values = append(values, v)
			case float64:
				values = append(values, v != 0)
			}
			continue
		}
		b, err := toBool(value)
		if err != nil {
			return nil, err
		}
		values = append(values, b)
	}
	if len(values) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeValue, name+" has no logical values")
	}
	return values, nil
}

func (bf *BuiltInFunctions) AND(args ...Primitive) (Primitive, error) {
	values, err := logicalValues("AND", args)
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		if !v {
			return false, nil
		}
	}
	return true, nil
}

func (bf *BuiltInFunctions) OR(args ...Primitive) (Primitive, error) {
	values, err := logicalValues("OR", args)
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		if v {
			return true, nil
		}
	}
	return false, nil
}

// XOR is TRUE when an odd number of values are TRUE
func (bf *BuiltInFunctions) XOR(args ...Primitive) (Primitive, error) {
	values, err := logicalValues("XOR", args)
	if err != nil {
		return nil, err
	}
	result := false
	for _, v := range values {
		result = result != v
	}
	return result, nil
}

func (bf *BuiltInFunctions) NOT(args ...Primitive) (Primitive, error) {
	if err := checkArity("NOT", args, 1, 1); err != nil {
		return nil, err
	}
	b, err := boolArg(args[0])
	if err != nil {
		return nil, err
	}
	return !b, nil
}

func (bf *BuiltInFunctions) TRUE(args ...Primitive) (Primitive, error) {
	if err := checkArity("TRUE", args, 0, 0); err != nil {
		return nil, err
	}
	return true, nil
}

func (bf *BuiltInFunctions) FALSE(args ...Primitive) (Primitive, error) {
	if err := checkArity("FALSE", args, 0, 0); err != nil {
		return nil, err
	}
	return false, nil
}

// IFS returns the value paired with the first true condition, #N/A when
// none matches
func (bf *BuiltInFunctions) IFS(args ...Primitive) (Primitive, error) {
	if len(args) < 2 || len(args)%2 != 0 {
		return nil, arityError("IFS", "condition/value pairs")
	}
	for i := 0; i < len(args); i += 2 {
		b, err := boolArg(args[i])
		if err != nil {
			return nil, err
		}
		if b {
			return args[i+1], nil
		}
	}
	return nil, NewSpreadsheetError(ErrorCodeNA, "IFS: no condition was true")
}

// SWITCH(expr, case1, value1, ..., [default])
func (bf *BuiltInFunctions) SWITCH(args ...Primitive) (Primitive, error) {
	if err := checkArity("SWITCH", args, 3, -1); err != nil {
		return nil, err
	}
	subject := scalarOf(args[0])
	if err := checkForError(subject); err != nil {
		return nil, err
	}

	rest := args[1:]
	for i := 0; i+1 < len(rest); i += 2 {
		candidate := scalarOf(rest[i])
		if err := checkForError(candidate); err != nil {
			return nil, err
		}
		if valuesEqual(subject, candidate) {
			return rest[i+1], nil
		}
	}
	if len(rest)%2 == 1 {
		return rest[len(rest)-1], nil
	}
	return nil, NewSpreadsheetError(ErrorCodeNA, "SWITCH: no case matched")
}

// valuesEqual is typed equality: numbers match numbers, text matches text
// case-insensitively, logicals match logicals
func valuesEqual(a, b Primitive) bool {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && foldString(av) == foldString(bv)
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	}
	return false
}
