package formula

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const maxTextLength = 32767

func (bf *BuiltInFunctions) CONCATENATE(args ...Primitive) (Primitive, error) {
	var result strings.Builder
	for _, arg := range args {
		s, err := textArg(arg)
		if err != nil {
			return nil, err
		}
		result.WriteString(s)
	}
	return result.String(), nil
}

// CONCAT joins every value, ranges included
func (bf *BuiltInFunctions) CONCAT(args ...Primitive) (Primitive, error) {
	var result strings.Builder
	for value := range iterateArgs(args) {
		if err := checkForError(value); err != nil {
			return nil, err
		}
		result.WriteString(toString(value))
	}
	return result.String(), nil
}

// TEXTJOIN(delimiter, ignore_empty, text1, ...)
func (bf *BuiltInFunctions) TEXTJOIN(args ...Primitive) (Primitive, error) {
	if err := checkArity("TEXTJOIN", args, 3, -1); err != nil {
		return nil, err
	}
	delimiter, err := textArg(args[0])
	if err != nil {
		return nil, err
	}
	ignoreEmpty, err := boolArg(args[1])
	if err != nil {
		return nil, err
	}

	parts := []string{}
	for value := range iterateArgs(args[2:]) {
		if err := checkForError(value); err != nil {
			return nil, err
		}
		s := toString(value)
		if s == "" && ignoreEmpty {
			continue
		}
		parts = append(parts, s)
	}
	joined := strings.Join(parts, delimiter)
	if utf8.RuneCountInString(joined) > maxTextLength {
		return nil, NewSpreadsheetError(ErrorCodeValue, "TEXTJOIN result is too long")
	}
	return joined, nil
}

// unaryText wraps a one-argument text function
func unaryText(name string, args []Primitive, fn func(string) Primitive) (Primitive, error) {
	if err := checkArity(name, args, 1, 1); err != nil {
		return nil, err
	}
	s, err := textArg(args[0])
	if err != nil {
		return nil, err
	}
	return fn(s), nil
}

func (bf *BuiltInFunctions) LEN(args ...Primitive) (Primitive, error) {
	return unaryText("LEN", args, func(s string) Primitive {
		return float64(utf8.RuneCountInString(s))
	})
}

func (bf *BuiltInFunctions) UPPER(args ...Primitive) (Primitive, error) {
	return unaryText("UPPER", args, func(s string) Primitive {
		return cases.Upper(language.Und).String(s)
	})
}

func (bf *BuiltInFunctions) LOWER(args ...Primitive) (Primitive, error) {
	return unaryText("LOWER", args, func(s string) Primitive {
		return cases.Lower(language.Und).String(s)
	})
}

func (bf *BuiltInFunctions) PROPER(args ...Primitive) (Primitive, error) {
	return unaryText("PROPER", args, func(s string) Primitive {
		return cases.Title(language.Und).String(s)
	})
}

// TRIM removes leading and trailing whitespace and collapses inner runs to
// a single space
func (bf *BuiltInFunctions) TRIM(args ...Primitive) (Primitive, error) {
	return unaryText("TRIM", args, func(s string) Primitive {
		return strings.Join(strings.Fields(s), " ")
	})
}

func (bf *BuiltInFunctions) LEFT(args ...Primitive) (Primitive, error) {
	if err := checkArity("LEFT", args, 1, 2); err != nil {
		return nil, err
	}
	s, err := textArg(args[0])
	if err != nil {
		return nil, err
	}
	n, err := optionalNumber("LEFT", args, 1, 1)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "LEFT count cannot be negative")
	}
	runes := []rune(s)
	return string(runes[:min(int(n), len(runes))]), nil
}

func (bf *BuiltInFunctions) RIGHT(args ...Primitive) (Primitive, error) {
	if err := checkArity("RIGHT", args, 1, 2); err != nil {
		return nil, err
	}
	s, err := textArg(args[0])
	if err != nil {
		return nil, err
	}
	n, err := optionalNumber("RIGHT", args, 1, 1)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "RIGHT count cannot be negative")
	}
	runes := []rune(s)
	return string(runes[len(runes)-min(int(n), len(runes)):]), nil
}

// MID(text, start, count) with a 1-based start
func (bf *BuiltInFunctions) MID(args ...Primitive) (Primitive, error) {
	if err := checkArity("MID", args, 3, 3); err != nil {
		return nil, err
	}
	s, err := textArg(args[0])
	if err != nil {
		return nil, err
	}
	start, err := numberArg("MID", args[1])
	if err != nil {
		return nil, err
	}
	count, err := numberArg("MID", args[2])
	if err != nil {
		return nil, err
	}
	if start < 1 || count < 0 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "MID start must be at least 1 and count non-negative")
	}

	runes := []rune(s)
	from := int(start) - 1
	if from >= len(runes) {
		return "", nil
	}
	to := min(len(runes), from+int(count))
	return string(runes[from:to]), nil
}

// findArgs parses (find_text, within_text, [start]) shared by FIND and SEARCH
func findArgs(name string, args []Primitive) (needle string, haystack []rune, start int, err error) {
	if arityErr := checkArity(name, args, 2, 3); arityErr != nil {
		return "", nil, 0, arityErr
	}
	if needle, err = textArg(args[0]); err != nil {
		return "", nil, 0, err
	}
	within, err := textArg(args[1])
	if err != nil {
		return "", nil, 0, err
	}
	startNum, err := optionalNumber(name, args, 2, 1)
	if err != nil {
		return "", nil, 0, err
	}
	haystack = []rune(within)
	start = int(startNum)
	if start < 1 || start > len(haystack)+1 {
		return "", nil, 0, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("%s start position out of range", name))
	}
	return needle, haystack, start, nil
}

// FIND is a case-sensitive 1-based search
func (bf *BuiltInFunctions) FIND(args ...Primitive) (Primitive, error) {
	needle, haystack, start, err := findArgs("FIND", args)
	if err != nil {
		return nil, err
	}
	rest := string(haystack[start-1:])
	idx := strings.Index(rest, needle)
	if idx < 0 {
		return nil, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("FIND: %q not found", needle))
	}
	return float64(start + utf8.RuneCountInString(rest[:idx])), nil
}

// SEARCH is a case-insensitive 1-based search with * ? ~ wildcards
func (bf *BuiltInFunctions) SEARCH(args ...Primitive) (Primitive, error) {
	needle, haystack, start, err := findArgs("SEARCH", args)
	if err != nil {
		return nil, err
	}
	re, reErr := compileWildcard(needle, false)
	if reErr != nil {
		return nil, NewSpreadsheetError(ErrorCodeValue, reErr.Error())
	}
	rest := string(haystack[start-1:])
	loc := re.FindStringIndex(rest)
	if loc == nil {
		return nil, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("SEARCH: %q not found", needle))
	}
	return float64(start + utf8.RuneCountInString(rest[:loc[0]])), nil
}

// SUBSTITUTE(text, old, new, [instance]) replaces every occurrence, or only
// the given 1-based instance
func (bf *BuiltInFunctions) SUBSTITUTE(args ...Primitive) (Primitive, error) {
	if err := checkArity("SUBSTITUTE", args, 3, 4); err != nil {
		return nil, err
	}
	texts := make([]string, 3)
	for i := range texts {
		s, err := textArg(args[i])
		if err != nil {
			return nil, err
		}
		texts[i] = s
	}
	text, old, replacement := texts[0], texts[1], texts[2]
	if old == "" {
		return text, nil
	}
	if len(args) == 3 {
		return strings.ReplaceAll(text, old, replacement), nil
	}

	instance, err := numberArg("SUBSTITUTE", args[3])
	if err != nil {
		return nil, err
	}
	if instance < 1 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "SUBSTITUTE instance must be at least 1")
	}
	offset := 0
	for n := 1; ; n++ {
		idx := strings.Index(text[offset:], old)
		if idx < 0 {
			return text, nil
		}
		if n == int(instance) {
			at := offset + idx
			return text[:at] + replacement + text[at+len(old):], nil
		}
		offset += idx + len(old)
	}
}

// REPLACE(text, start, count, new) with a 1-based start
func (bf *BuiltInFunctions) REPLACE(args ...Primitive) (Primitive, error) {
	if err := checkArity("REPLACE", args, 4, 4); err != nil {
		return nil, err
	}
	s, err := textArg(args[0])
	if err != nil {
		return nil, err
	}
	start, err := numberArg("REPLACE", args[1])
	if err != nil {
		return nil, err
	}
	count, err := numberArg("REPLACE", args[2])
	if err != nil {
		return nil, err
	}
	replacement, err := textArg(args[3])
	if err != nil {
		return nil, err
	}
	if start < 1 || count < 0 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "REPLACE start must be at least 1 and count non-negative")
	}

	runes := []rune(s)
	from := min(int(start)-1, len(runes))
	to := min(from+int(count), len(runes))
	return string(runes[:from]) + replacement + string(runes[to:]), nil
}

func (bf *BuiltInFunctions) REPT(args ...Primitive) (Primitive, error) {
	if err := checkArity("REPT", args, 2, 2); err != nil {
		return nil, err
	}
	s, err := textArg(args[0])
	if err != nil {
		return nil, err
	}
	n, err := intArg("REPT", args[1])
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "REPT count cannot be negative")
	}
	if utf8.RuneCountInString(s)*n > maxTextLength {
		return nil, NewSpreadsheetError(ErrorCodeValue, "REPT result is too long")
	}
	return strings.Repeat(s, n), nil
}

// EXACT compares two texts case-sensitively
func (bf *BuiltInFunctions) EXACT(args ...Primitive) (Primitive, error) {
	if err := checkArity("EXACT", args, 2, 2); err != nil {
		return nil, err
	}
	a, err := textArg(args[0])
	if err != nil {
		return nil, err
	}
	b, err := textArg(args[1])
	if err != nil {
		return nil, err
	}
	return a == b, nil
}

// VALUE converts text that looks like a number, percentage or date
func (bf *BuiltInFunctions) VALUE(args ...Primitive) (Primitive, error) {
	if err := checkArity("VALUE", args, 1, 1); err != nil {
		return nil, err
	}
	v := scalarOf(args[0])
	if err := checkForError(v); err != nil {
		return nil, err
	}
	switch val := v.(type) {
	case float64:
		return val, nil
	case nil:
		return 0.0, nil
	case string:
		if num, ok := parseNumericText(val); ok {
			return num, nil
		}
		if serial, ok := parseDateText(val); ok {
			return serial, nil
		}
	}
	return nil, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("VALUE cannot convert %q", toString(v)))
}

func (bf *BuiltInFunctions) CHAR(args ...Primitive) (Primitive, error) {
	if err := checkArity("CHAR", args, 1, 1); err != nil {
		return nil, err
	}
	n, err := numberArg("CHAR", args[0])
	if err != nil {
		return nil, err
	}
	if n < 1 || n > 255 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "CHAR code must be between 1 and 255")
	}
	return string(rune(int(n))), nil
}

func (bf *BuiltInFunctions) CODE(args ...Primitive) (Primitive, error) {
	if err := checkArity("CODE", args, 1, 1); err != nil {
		return nil, err
	}
	s, err := textArg(args[0])
	if err != nil {
		return nil, err
	}
	if s == "" {
		return nil, NewSpreadsheetError(ErrorCodeValue, "CODE of empty text")
	}
	r, _ := utf8.DecodeRuneInString(s)
	return float64(r), nil
}
