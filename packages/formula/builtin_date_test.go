package formula

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// the test clock stands at 2024-03-15 14:30:45 UTC, serial 45366
func TestDateFunctions(t *testing.T) {
	values := map[string]Primitive{
		"A1": 45366.0,
		"A2": "2024-03-15",
		"H1": 45364.0,
		"H2": nil,
	}
	runFormulaCases(t, []formulaCase{
		{"=TODAY()", 45366.0},
		{"=TODAY", 45366.0},
		{"=NOW()", 45366.0 + 52245.0/86400.0},
		{"=HOUR(NOW())", 14.0},
		{"=MINUTE(NOW())", 30.0},
		{"=SECOND(NOW())", 45.0},
		{"=DATE(2024,1,1)", 45292.0},
		{"=DATE(2024,3,15)", 45366.0},
		{"=DATE(2024,13,1)", 45658.0},
		{"=DATE(2024,3,0)", 45351.0},
		{"=DATE(24,1,1)", dateSerial(1924, time.January, 1)},
		{"=DATE(-1,1,1)", ErrorCodeNum},
		{"=TIME(12,0,0)", 0.5},
		{"=TIME(25,0,0)", 1.0 / 24.0},
		{"=TIME(-1,0,0)", ErrorCodeNum},
		{"=YEAR(A1)", 2024.0},
		{"=MONTH(A1)", 3.0},
		{"=DAY(A1)", 15.0},
		{"=YEAR(A2)", 2024.0},
		{`=DAY("3/15/2024")`, 15.0},
		{"=YEAR(-1)", ErrorCodeNum},
		{`=YEAR("soon")`, ErrorCodeValue},
		{"=WEEKDAY(A1)", 6.0},
		{"=WEEKDAY(A1,2)", 5.0},
		{"=WEEKDAY(A1,3)", 4.0},
		{"=WEEKDAY(A1,4)", ErrorCodeNum},
		{"=WEEKNUM(DATE(2024,1,1))", 1.0},
		{"=WEEKNUM(A1)", 11.0},
		{"=WEEKNUM(A1,2)", 11.0},
		{`=DATEDIF(DATE(2020,1,15),DATE(2024,3,10),"Y")`, 4.0},
		{`=DATEDIF(DATE(2020,1,15),DATE(2024,3,10),"M")`, 49.0},
		{`=DATEDIF(DATE(2020,1,15),DATE(2024,3,10),"YM")`, 1.0},
		{`=DATEDIF(DATE(2020,1,15),DATE(2024,3,10),"MD")`, 24.0},
		{`=DATEDIF(DATE(2024,1,31),DATE(2024,3,1),"MD")`, 1.0},
		{`=DATEDIF(DATE(2023,3,31),DATE(2023,5,30),"MD")`, 30.0},
		{`=DATEDIF(DATE(2024,1,1),DATE(2024,3,15),"D")`, 74.0},
		{`=DATEDIF(DATE(2024,1,1),DATE(2024,3,15),"YD")`, 74.0},
		{`=DATEDIF(A1,DATE(2024,1,1),"D")`, ErrorCodeNum},
		{`=DATEDIF(DATE(2024,1,1),A1,"W")`, ErrorCodeNum},
		{"=EDATE(DATE(2024,1,31),1)", 45351.0},
		{"=EDATE(DATE(2024,3,31),-1)", 45351.0},
		{"=EOMONTH(DATE(2024,1,15),1)", 45351.0},
		{"=EOMONTH(DATE(2024,1,15),0)", 45322.0},
		{"=NETWORKDAYS(DATE(2024,3,11),A1)", 5.0},
		{"=NETWORKDAYS(DATE(2024,3,11),A1,H1:H2)", 4.0},
		{"=NETWORKDAYS(A1,DATE(2024,3,11))", -5.0},
		{"=NETWORKDAYS(DATE(2024,3,9),DATE(2024,3,10))", 0.0},
		{"=DAYS(A1,DATE(2024,1,1))", 74.0},
		{`=DATEVALUE("2024-03-15")`, 45366.0},
		{`=DATEVALUE("2024/03/15")`, 45366.0},
		{`=DATEVALUE("next week")`, ErrorCodeValue},
	}, values)
}

func TestDateSerialRoundTrip(t *testing.T) {
	for _, d := range []time.Time{
		time.Date(1900, time.March, 1, 0, 0, 0, 0, time.UTC),
		time.Date(1999, time.December, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC),
	} {
		serial := dateSerial(d.Date())
		assert.True(t, d.Equal(serialTime(serial)), "serial %v", serial)
	}
}

func TestVolatileFunctionsUseInjectedClock(t *testing.T) {
	clock := &fixedClock{now: time.Date(2000, time.January, 1, 6, 0, 0, 0, time.UTC)}
	bf := NewBuiltInFunctions(clock, nil, nil)

	v, err := bf.Call("TODAY")
	require.NoError(t, err)
	assert.Equal(t, 36526.0, v)

	clock.now = clock.now.AddDate(0, 0, 1)
	v, err = bf.Call("today")
	require.NoError(t, err)
	assert.Equal(t, 36527.0, v)

	v, err = bf.Call("NOW")
	require.NoError(t, err)
	assert.InDelta(t, 36527.25, v, 1e-9)
}
