package formula

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// date serials count days from 1899-12-30, the fraction is the time of day
var serialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

const secondsPerDay = 86400

// dateSerial converts a civil date to its serial. out of range months and
// days roll over the way time.Date normalizes them.
func dateSerial(year int, month time.Month, day int) float64 {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return float64((t.Unix() - serialEpoch.Unix()) / secondsPerDay)
}

// serialTime converts a serial to a UTC time, rounded to the second
func serialTime(serial float64) time.Time {
	days := math.Floor(serial)
	seconds := math.Round((serial - days) * secondsPerDay)
	return serialEpoch.AddDate(0, 0, int(days)).Add(time.Duration(seconds) * time.Second)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-1-2",
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
}

// parseDateText accepts ISO YYYY-MM-DD and US MM/DD/YYYY dates
func parseDateText(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dateSerial(t.Date()), true
		}
	}
	return 0, false
}

// dateArg reads a serial argument, accepting date text too
func dateArg(name string, value Primitive) (float64, error) {
	value = scalarOf(value)
	if s, ok := value.(string); ok {
		if serial, ok := parseDateText(s); ok {
			return serial, nil
		}
	}
	serial, err := numberArg(name, value)
	if err != nil {
		return 0, err
	}
	if serial < 0 {
		return 0, NewSpreadsheetError(ErrorCodeNum, fmt.Sprintf("%s requires a non-negative date", name))
	}
	return serial, nil
}

// dayArg reads a serial argument as a date without its time
func dayArg(name string, value Primitive) (time.Time, error) {
	serial, err := dateArg(name, value)
	if err != nil {
		return time.Time{}, err
	}
	return serialTime(math.Floor(serial)), nil
}

func (bf *BuiltInFunctions) NOW(args ...Primitive) (Primitive, error) {
	if err := checkArity("NOW", args, 0, 0); err != nil {
		return nil, err
	}
	now := bf.clock.Now()
	seconds := float64(now.Hour()*3600+now.Minute()*60+now.Second()) + float64(now.Nanosecond())/1e9
	return dateSerial(now.Date()) + seconds/secondsPerDay, nil
}

func (bf *BuiltInFunctions) TODAY(args ...Primitive) (Primitive, error) {
	if err := checkArity("TODAY", args, 0, 0); err != nil {
		return nil, err
	}
	return dateSerial(bf.clock.Now().Date()), nil
}

// DATE(year, month, day). years 0-1899 are offset by 1900
func (bf *BuiltInFunctions) DATE(args ...Primitive) (Primitive, error) {
	if err := checkArity("DATE", args, 3, 3); err != nil {
		return nil, err
	}
	parts := [3]int{}
	for i := range parts {
		n, err := intArg("DATE", args[i])
		if err != nil {
			return nil, err
		}
		parts[i] = n
	}
	year, month, day := parts[0], parts[1], parts[2]
	if year < 0 || year > 9999 {
		return nil, NewSpreadsheetError(ErrorCodeNum, "DATE year out of range")
	}
	if year < 1900 {
		year += 1900
	}
	serial := dateSerial(year, time.Month(month), day)
	if serial < 0 {
		return nil, NewSpreadsheetError(ErrorCodeNum, "DATE before the start of the calendar")
	}
	return serial, nil
}

// TIME(hour, minute, second) returns a fraction of a day
func (bf *BuiltInFunctions) TIME(args ...Primitive) (Primitive, error) {
	if err := checkArity("TIME", args, 3, 3); err != nil {
		return nil, err
	}
	parts := [3]float64{}
	for i := range parts {
		n, err := numberArg("TIME", args[i])
		if err != nil {
			return nil, err
		}
		parts[i] = math.Trunc(n)
	}
	total := parts[0]*3600 + parts[1]*60 + parts[2]
	if total < 0 {
		return nil, NewSpreadsheetError(ErrorCodeNum, "TIME cannot be negative")
	}
	return math.Mod(total, secondsPerDay) / secondsPerDay, nil
}

// datePart wraps the one-argument functions that read part of a serial
func datePart(name string, args []Primitive, part func(time.Time) int) (Primitive, error) {
	if err := checkArity(name, args, 1, 1); err != nil {
		return nil, err
	}
	serial, err := dateArg(name, args[0])
	if err != nil {
		return nil, err
	}
	return float64(part(serialTime(serial))), nil
}

func (bf *BuiltInFunctions) YEAR(args ...Primitive) (Primitive, error) {
	return datePart("YEAR", args, func(t time.Time) int { return t.Year() })
}

func (bf *BuiltInFunctions) MONTH(args ...Primitive) (Primitive, error) {
	return datePart("MONTH", args, func(t time.Time) int { return int(t.Month()) })
}

func (bf *BuiltInFunctions) DAY(args ...Primitive) (Primitive, error) {
	return datePart("DAY", args, func(t time.Time) int { return t.Day() })
}

func (bf *BuiltInFunctions) HOUR(args ...Primitive) (Primitive, error) {
	return datePart("HOUR", args, func(t time.Time) int { return t.Hour() })
}

func (bf *BuiltInFunctions) MINUTE(args ...Primitive) (Primitive, error) {
	return datePart("MINUTE", args, func(t time.Time) int { return t.Minute() })
}

func (bf *BuiltInFunctions) SECOND(args ...Primitive) (Primitive, error) {
	return datePart("SECOND", args, func(t time.Time) int { return t.Second() })
}

// WEEKDAY(serial, [type]). type 1: Sunday=1..Saturday=7, type 2:
// Monday=1..Sunday=7, type 3: Monday=0..Sunday=6
func (bf *BuiltInFunctions) WEEKDAY(args ...Primitive) (Primitive, error) {
	if err := checkArity("WEEKDAY", args, 1, 2); err != nil {
		return nil, err
	}
	t, err := dayArg("WEEKDAY", args[0])
	if err != nil {
		return nil, err
	}
	kind, err := optionalNumber("WEEKDAY", args, 1, 1)
	if err != nil {
		return nil, err
	}
	wd := int(t.Weekday())
	switch int(kind) {
	case 1:
		return float64(wd + 1), nil
	case 2:
		return float64((wd+6)%7 + 1), nil
	case 3:
		return float64((wd + 6) % 7), nil
	}
	return nil, NewSpreadsheetError(ErrorCodeNum, "WEEKDAY type must be 1, 2 or 3")
}

// WEEKNUM(serial, [type]). weeks start on Sunday for type 1, Monday for
// type 2, and week 1 contains January 1
func (bf *BuiltInFunctions) WEEKNUM(args ...Primitive) (Primitive, error) {
	if err := checkArity("WEEKNUM", args, 1, 2); err != nil {
		return nil, err
	}
	t, err := dayArg("WEEKNUM", args[0])
	if err != nil {
		return nil, err
	}
	kind, err := optionalNumber("WEEKNUM", args, 1, 1)
	if err != nil {
		return nil, err
	}

	var weekStart time.Weekday
	switch int(kind) {
	case 1:
		weekStart = time.Sunday
	case 2:
		weekStart = time.Monday
	default:
		return nil, NewSpreadsheetError(ErrorCodeNum, "WEEKNUM type must be 1 or 2")
	}

	jan1 := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(jan1.Weekday()) - int(weekStart) + 7) % 7
	return float64((t.YearDay()-1+offset)/7 + 1), nil
}

// wholeDays returns the number of days between two midnight times
func wholeDays(from, to time.Time) int {
	return int((to.Unix() - from.Unix()) / secondsPerDay)
}

// DATEDIF(start, end, unit) with units Y, M, D, YM, MD, YD
func (bf *BuiltInFunctions) DATEDIF(args ...Primitive) (Primitive, error) {
	if err := checkArity("DATEDIF", args, 3, 3); err != nil {
		return nil, err
	}
	start, err := dayArg("DATEDIF", args[0])
	if err != nil {
		return nil, err
	}
	end, err := dayArg("DATEDIF", args[1])
	if err != nil {
		return nil, err
	}
	unit, err := textArg(args[2])
	if err != nil {
		return nil, err
	}
	if start.After(end) {
		return nil, NewSpreadsheetError(ErrorCodeNum, "DATEDIF start date is after end date")
	}

	months := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
	if end.Day() < start.Day() {
		months--
	}

	switch strings.ToUpper(unit) {
	case "D":
		return float64(wholeDays(start, end)), nil
	case "M":
		return float64(months), nil
	case "Y":
		return float64(months / 12), nil
	case "YM":
		return float64(months % 12), nil
	case "MD":
		anchor := time.Date(end.Year(), end.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
		if anchor.After(end) {
			// the previous month may be shorter than start's day
			prev := time.Date(end.Year(), end.Month()-1, 1, 0, 0, 0, 0, time.UTC)
			day := min(start.Day(), daysInMonth(prev.Year(), prev.Month()))
			anchor = time.Date(prev.Year(), prev.Month(), day, 0, 0, 0, 0, time.UTC)
		}
		return float64(wholeDays(anchor, end)), nil
	case "YD":
		anchor := time.Date(end.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
		if anchor.After(end) {
			anchor = time.Date(end.Year()-1, start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
		}
		return float64(wholeDays(anchor, end)), nil
	}
	return nil, NewSpreadsheetError(ErrorCodeNum, fmt.Sprintf("DATEDIF unknown unit %q", unit))
}

// addMonths moves t by months, clamping the day to the target month's end
func addMonths(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	day := min(t.Day(), daysInMonth(first.Year(), first.Month()))
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

func monthShiftArgs(name string, args []Primitive) (time.Time, int, error) {
	if err := checkArity(name, args, 2, 2); err != nil {
		return time.Time{}, 0, err
	}
	start, err := dayArg(name, args[0])
	if err != nil {
		return time.Time{}, 0, err
	}
	months, err := intArg(name, args[1])
	if err != nil {
		return time.Time{}, 0, err
	}
	return start, months, nil
}

func (bf *BuiltInFunctions) EDATE(args ...Primitive) (Primitive, error) {
	start, months, err := monthShiftArgs("EDATE", args)
	if err != nil {
		return nil, err
	}
	serial := dateSerial(addMonths(start, months).Date())
	if serial < 0 {
		return nil, NewSpreadsheetError(ErrorCodeNum, "EDATE before the start of the calendar")
	}
	return serial, nil
}

func (bf *BuiltInFunctions) EOMONTH(args ...Primitive) (Primitive, error) {
	start, months, err := monthShiftArgs("EOMONTH", args)
	if err != nil {
		return nil, err
	}
	target := addMonths(time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC), months)
	serial := dateSerial(target.Year(), target.Month(), daysInMonth(target.Year(), target.Month()))
	if serial < 0 {
		return nil, NewSpreadsheetError(ErrorCodeNum, "EOMONTH before the start of the calendar")
	}
	return serial, nil
}

// NETWORKDAYS counts Monday to Friday days between two dates inclusive,
// minus holidays. the count is negative when end precedes start.
func (bf *BuiltInFunctions) NETWORKDAYS(args ...Primitive) (Primitive, error) {
	if err := checkArity("NETWORKDAYS", args, 2, 3); err != nil {
		return nil, err
	}
	start, err := dayArg("NETWORKDAYS", args[0])
	if err != nil {
		return nil, err
	}
	end, err := dayArg("NETWORKDAYS", args[1])
	if err != nil {
		return nil, err
	}

	holidays := map[float64]struct{}{}
	if len(args) == 3 {
		for value := range asArray(args[2]).IterateValues() {
			if value == nil {
				continue
			}
			serial, err := dateArg("NETWORKDAYS", value)
			if err != nil {
				return nil, err
			}
			holidays[math.Floor(serial)] = struct{}{}
		}
	}

	sign := 1.0
	if start.After(end) {
		start, end = end, start
		sign = -1
	}

	count := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		if _, holiday := holidays[dateSerial(d.Date())]; holiday {
			continue
		}
		count++
	}
	return sign * float64(count), nil
}

// DAYS(end, start)
func (bf *BuiltInFunctions) DAYS(args ...Primitive) (Primitive, error) {
	if err := checkArity("DAYS", args, 2, 2); err != nil {
		return nil, err
	}
	end, err := dateArg("DAYS", args[0])
	if err != nil {
		return nil, err
	}
	start, err := dateArg("DAYS", args[1])
	if err != nil {
		return nil, err
	}
	return math.Floor(end) - math.Floor(start), nil
}

func (bf *BuiltInFunctions) DATEVALUE(args ...Primitive) (Primitive, error) {
	if err := checkArity("DATEVALUE", args, 1, 1); err != nil {
		return nil, err
	}
	s, err := textArg(args[0])
	if err != nil {
		return nil, err
	}
	serial, ok := parseDateText(s)
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("DATEVALUE cannot parse %q", s))
	}
	return serial, nil
}
