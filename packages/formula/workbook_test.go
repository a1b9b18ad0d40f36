package formula

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type WorkbookTestCase struct {
	t        *testing.T
	name     string
	workbook *Workbook
	err      error
}

func NewWorkbookTestCase(t *testing.T, name string) *WorkbookTestCase {
	return NewWorkbookTestCaseWithOptions(t, name, Options{})
}

func NewWorkbookTestCaseWithOptions(t *testing.T, name string, opts Options) *WorkbookTestCase {
	wb, err := NewWorkbook(opts)
	if err != nil {
		t.Fatalf("%s: NewWorkbook failed: %v", name, err)
	}
	return &WorkbookTestCase{
		t:        t,
		name:     name,
		workbook: wb,
	}
}

func (tc *WorkbookTestCase) Set(address string, value Primitive) *WorkbookTestCase {
	if tc.err != nil {
		return tc
	}
	tc.err = tc.workbook.Set(address, value)
	return tc
}

func (tc *WorkbookTestCase) Remove(address string) *WorkbookTestCase {
	if tc.err != nil {
		return tc
	}
	tc.err = tc.workbook.Remove(address)
	return tc
}

func (tc *WorkbookTestCase) AddWorksheet(name string) *WorkbookTestCase {
	if tc.err != nil {
		return tc
	}
	tc.err = tc.workbook.AddWorksheet(name)
	return tc
}

func (tc *WorkbookTestCase) RemoveWorksheet(name string) *WorkbookTestCase {
	if tc.err != nil {
		return tc
	}
	tc.err = tc.workbook.RemoveWorksheet(name)
	return tc
}

func (tc *WorkbookTestCase) RenameWorksheet(oldName, newName string) *WorkbookTestCase {
	if tc.err != nil {
		return tc
	}
	tc.err = tc.workbook.RenameWorksheet(oldName, newName)
	return tc
}

func (tc *WorkbookTestCase) Run() *WorkbookTestCase {
	if tc.err != nil {
		return tc
	}
	tc.err = tc.workbook.Calculate()
	if tc.err != nil {
		tc.t.Errorf("%s: Calculate() failed: %v", tc.name, tc.err)
	}
	return tc
}

func (tc *WorkbookTestCase) AssertCellEq(address string, expected Primitive) *WorkbookTestCase {
	if tc.err != nil {
		tc.t.Errorf("%s: unexpected error before checking %s: %v", tc.name, address, tc.err)
		return tc
	}
	actual, err := tc.workbook.Get(address)
	if err != nil {
		tc.t.Errorf("%s: Get(%s) failed: %v", tc.name, address, err)
		return tc
	}

	switch exp := expected.(type) {
	case float64:
		if act, ok := actual.(float64); ok {
			if math.Abs(act-exp) > 1e-10 {
				tc.t.Errorf("%s: Cell %s = %v, want %v", tc.name, address, actual, expected)
			}
		} else {
			tc.t.Errorf("%s: Cell %s = %v (%T), want %v (float64)", tc.name, address, actual, actual, expected)
		}
	case ErrorCode:
		if spreadsheetErr, ok := actual.(*SpreadsheetError); ok {
			if spreadsheetErr.ErrorCode != exp {
				tc.t.Errorf("%s: Cell %s has error %v, want %v", tc.name, address, spreadsheetErr, ErrorMapper[exp])
			}
		} else {
			tc.t.Errorf("%s: Cell %s = %v, want error %v", tc.name, address, actual, ErrorMapper[exp])
		}
	default:
		if actual != expected {
			tc.t.Errorf("%s: Cell %s = %v, want %v", tc.name, address, actual, expected)
		}
	}
	return tc
}

func (tc *WorkbookTestCase) AssertCellEmpty(address string) *WorkbookTestCase {
	return tc.AssertCellEq(address, nil)
}

func (tc *WorkbookTestCase) AssertFormula(address, expected string) *WorkbookTestCase {
	if tc.err != nil {
		return tc
	}
	actual, err := tc.workbook.Formula(address)
	if err != nil {
		tc.t.Errorf("%s: Formula(%s) failed: %v", tc.name, address, err)
		return tc
	}
	if actual != expected {
		tc.t.Errorf("%s: Formula %s = %q, want %q", tc.name, address, actual, expected)
	}
	return tc
}

func (tc *WorkbookTestCase) AssertWorksheetExists(name string, shouldExist bool) *WorkbookTestCase {
	exists := tc.workbook.DoesWorksheetExist(name)
	if exists != shouldExist {
		tc.t.Errorf("%s: Worksheet %s exists=%v, want %v", tc.name, name, exists, shouldExist)
	}
	return tc
}

func (tc *WorkbookTestCase) ExpectAppError(expectedCode AppErrorCode) *WorkbookTestCase {
	if tc.err == nil {
		tc.t.Errorf("%s: Expected error with code %v, but got no error", tc.name, expectedCode)
		return tc
	}
	var appErr *AppError
	if errors.As(tc.err, &appErr) {
		if appErr.Code != expectedCode {
			tc.t.Errorf("%s: Got error code %v, want %v", tc.name, appErr.Code, expectedCode)
		}
	} else {
		tc.t.Errorf("%s: Got error %v, want AppError with code %v", tc.name, tc.err, expectedCode)
	}
	tc.err = nil
	return tc
}

func (tc *WorkbookTestCase) End() {
	if tc.err != nil {
		tc.t.Errorf("%s: unexpected error: %v", tc.name, tc.err)
	}
}

func TestWorkbookFormulas(t *testing.T) {
	NewWorkbookTestCase(t, "Basic arithmetic").
		Set("A1", "=1+2").
		Run().
		AssertCellEq("A1", 3.0).
		AssertCellEq("Sheet1!A1", 3.0).
		AssertFormula("A1", "=1+2").
		End()

	NewWorkbookTestCase(t, "Cell reference").
		Set("Sheet1!A1", 10.0).
		Set("Sheet1!A2", "=A1").
		AssertCellEq("Sheet1!A2", 10.0).
		AssertFormula("A1", "").
		End()

	NewWorkbookTestCase(t, "Function call").
		Set("A1", 5.0).
		Set("A2", 10.0).
		Set("A3", "=SUM(A1:A2)").
		AssertCellEq("A3", 15.0).
		End()

	NewWorkbookTestCase(t, "Go integers are stored as numbers").
		Set("A1", 5).
		Set("A2", int64(7)).
		Set("A3", "=A1+A2").
		AssertCellEq("A1", 5.0).
		AssertCellEq("A3", 12.0).
		End()

	NewWorkbookTestCase(t, "Text and logical values").
		Set("A1", "hello").
		Set("A2", true).
		Set("A3", `=A1&" "&A2`).
		AssertCellEq("A3", "hello TRUE").
		End()

	NewWorkbookTestCase(t, "Formula errors are values").
		Set("A1", "=1/0").
		Set("A2", "=A1+1").
		Set("A3", "=IFERROR(A2,0)").
		AssertCellEq("A1", ErrorCodeDiv0).
		AssertCellEq("A2", ErrorCodeDiv0).
		AssertCellEq("A3", 0.0).
		End()

	NewWorkbookTestCase(t, "Invalid formula text").
		Set("A1", "=SUM(").
		AssertCellEq("A1", ErrorCodeValue).
		End()
}

func TestWorkbookRecalculation(t *testing.T) {
	NewWorkbookTestCase(t, "Dependents follow edits").
		Set("A1", 10.0).
		Set("A2", "=A1*2").
		Set("A3", "=A2+A1").
		AssertCellEq("A3", 30.0).
		Set("A1", 5.0).
		AssertCellEq("A2", 10.0).
		AssertCellEq("A3", 15.0).
		Remove("A1").
		AssertCellEq("A2", 0.0).
		AssertCellEq("A3", 0.0).
		End()

	NewWorkbookTestCase(t, "Formula set before its inputs").
		Set("B1", "=SUM(A1:A3)").
		AssertCellEq("B1", 0.0).
		Set("A1", 1.0).
		Set("A3", 2.0).
		AssertCellEq("B1", 3.0).
		End()

	NewWorkbookTestCase(t, "Replacing a formula with a value").
		Set("A1", 1.0).
		Set("A2", "=A1+1").
		Set("A3", "=A2*10").
		Set("A2", 7.0).
		AssertCellEq("A3", 70.0).
		Set("A1", 100.0).
		AssertCellEq("A2", 7.0).
		AssertCellEq("A3", 70.0).
		End()
}

func TestWorkbookCircularReferences(t *testing.T) {
	NewWorkbookTestCase(t, "Two cell cycle").
		Set("A1", "=B1").
		Set("B1", "=A1").
		AssertCellEq("B1", ErrorCodeRef).
		AssertCellEq("A1", ErrorCodeRef).
		End()

	NewWorkbookTestCase(t, "Self reference").
		Set("A1", "=A1+1").
		AssertCellEq("A1", ErrorCodeRef).
		End()

	NewWorkbookTestCase(t, "Breaking the cycle").
		Set("A1", "=B1").
		Set("B1", "=A1").
		Set("B1", 4.0).
		AssertCellEq("A1", 4.0).
		AssertCellEq("B1", 4.0).
		End()
}

func TestWorkbookWorksheets(t *testing.T) {
	NewWorkbookTestCase(t, "Cross sheet references").
		AddWorksheet("Data").
		Set("Data!A1", 5.0).
		Set("A1", "=Data!A1*2").
		AssertCellEq("A1", 10.0).
		Set("Data!A1", 7.0).
		AssertCellEq("A1", 14.0).
		End()

	NewWorkbookTestCase(t, "Removing a sheet breaks its readers").
		AddWorksheet("Data").
		Set("Data!A1", 5.0).
		Set("A1", "=Data!A1*2").
		RemoveWorksheet("Data").
		AssertWorksheetExists("Data", false).
		AssertCellEq("A1", ErrorCodeRef).
		AddWorksheet("Data").
		AssertCellEq("A1", 0.0).
		Set("Data!A1", 1.5).
		AssertCellEq("A1", 3.0).
		End()

	NewWorkbookTestCase(t, "Renaming moves cells").
		AddWorksheet("Data").
		Set("Data!A1", 3.0).
		Set("Data!A2", "=A1+1").
		Set("B1", "=Data!A1").
		RenameWorksheet("Data", "Info").
		AssertWorksheetExists("Data", false).
		AssertWorksheetExists("Info", true).
		AssertCellEq("Info!A1", 3.0).
		AssertCellEq("Info!A2", 4.0).
		AssertFormula("Info!A2", "=A1+1").
		AssertCellEq("B1", ErrorCodeRef).
		End()

	NewWorkbookTestCase(t, "Quoted sheet names").
		AddWorksheet("My Data").
		Set("'My Data'!B2", 8.0).
		Set("A1", "='My Data'!B2/2").
		AssertCellEq("A1", 4.0).
		End()

	wb, err := NewWorkbook(Options{})
	require.NoError(t, err)
	require.NoError(t, wb.AddWorksheet("B"))
	require.NoError(t, wb.AddWorksheet("A"))
	assert.Equal(t, []string{"Sheet1", "B", "A"}, wb.ListWorksheets())
	require.NoError(t, wb.RemoveWorksheet("Sheet1"))

	// unqualified addresses use the first sheet
	require.NoError(t, wb.Set("C3", 1.0))
	v, err := wb.Get("B!C3")
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
}

func TestWorkbookAppErrors(t *testing.T) {
	NewWorkbookTestCase(t, "Malformed address").
		Set("not an address", 1.0).
		ExpectAppError(InvalidArgument).
		End()

	NewWorkbookTestCase(t, "Unknown sheet").
		Set("Nope!A1", 1.0).
		ExpectAppError(NotFound).
		RemoveWorksheet("Nope").
		ExpectAppError(NotFound).
		RenameWorksheet("Nope", "Other").
		ExpectAppError(NotFound).
		End()

	NewWorkbookTestCase(t, "Duplicate sheet").
		AddWorksheet("Sheet1").
		ExpectAppError(AlreadyExists).
		AddWorksheet("Data").
		RenameWorksheet("Data", "Sheet1").
		ExpectAppError(AlreadyExists).
		End()

	NewWorkbookTestCase(t, "Empty sheet name").
		AddWorksheet("").
		ExpectAppError(InvalidArgument).
		End()

	NewWorkbookTestCase(t, "Unsupported value").
		Set("A1", struct{}{}).
		ExpectAppError(InvalidArgument).
		Set("A1", []string{"a"}).
		ExpectAppError(InvalidArgument).
		End()

	wb, err := NewWorkbook(Options{})
	require.NoError(t, err)
	_, err = wb.Get("A0")
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, InvalidArgument, appErr.Code)
}

func TestWorkbookSpills(t *testing.T) {
	NewWorkbookTestCase(t, "Array results spill").
		Set("A1", "=SEQUENCE(3)").
		AssertCellEq("A1", 1.0).
		AssertCellEq("A2", 2.0).
		AssertCellEq("A3", 3.0).
		Set("B1", "=SUM(A1:A3)").
		AssertCellEq("B1", 6.0).
		End()

	NewWorkbookTestCase(t, "Content blocks a spill").
		Set("A1", "=SEQUENCE(3)").
		Set("A3", "x").
		AssertCellEq("A1", ErrorCodeSpill).
		AssertCellEmpty("A2").
		AssertCellEq("A3", "x").
		Remove("A3").
		AssertCellEq("A1", 1.0).
		AssertCellEq("A3", 3.0).
		End()

	NewWorkbookTestCase(t, "Spills do not overlap").
		Set("A2", "=SEQUENCE(1,2)").
		Set("B1", "=SEQUENCE(2)").
		AssertCellEq("B2", 2.0).
		AssertCellEq("B1", ErrorCodeSpill).
		Remove("A2").
		AssertCellEq("B1", 1.0).
		AssertCellEq("B2", 2.0).
		End()

	NewWorkbookTestCase(t, "Spill follows its inputs").
		Set("A1", 1.0).
		Set("A2", 2.0).
		Set("B1", "=ARRAYFORMULA(A1:A2*A1:A2)").
		AssertCellEq("B2", 4.0).
		Set("A2", 3.0).
		AssertCellEq("B2", 9.0).
		Set("C1", "=B2+1").
		AssertCellEq("C1", 10.0).
		Set("A2", 4.0).
		AssertCellEq("C1", 17.0).
		End()
}

func TestWorkbookCalculateRefreshesVolatileCells(t *testing.T) {
	clock := &fixedClock{now: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)}
	NewWorkbookTestCaseWithOptions(t, "TODAY moves with the clock", Options{Clock: clock}).
		Set("A1", "=TODAY()").
		Set("A2", "=A1+1").
		Run().
		AssertCellEq("A1", 45292.0).
		AssertCellEq("A2", 45293.0).
		Then(func() { clock.now = clock.now.AddDate(0, 0, 10) }).
		Run().
		AssertCellEq("A1", 45302.0).
		AssertCellEq("A2", 45303.0).
		End()
}

func (tc *WorkbookTestCase) Then(fn func()) *WorkbookTestCase {
	fn()
	return tc
}

func TestWorkbookStringTable(t *testing.T) {
	wb, err := NewWorkbook(Options{})
	require.NoError(t, err)

	require.NoError(t, wb.Set("A1", "hello"))
	require.NoError(t, wb.Set("A2", "hello"))
	assert.Equal(t, 1, wb.strings.Count())

	id := wb.strings.ids["hello"]
	assert.Equal(t, 2, wb.strings.GetReferenceCount(id))

	require.NoError(t, wb.Remove("A1"))
	assert.Equal(t, 1, wb.strings.GetReferenceCount(id))

	require.NoError(t, wb.Set("A2", "bye"))
	s, ok := wb.strings.GetString(id)
	assert.True(t, ok)
	assert.Equal(t, "bye", s, "released IDs are reused")
	assert.Equal(t, 1, wb.strings.Count())

	// formula results that are text live in the table too
	require.NoError(t, wb.Set("B1", `="by"&"e"`))
	assert.Equal(t, 2, wb.strings.GetReferenceCount(id))
}

func TestStringTable(t *testing.T) {
	st := NewStringTable()
	a := st.Intern("a")
	b := st.Intern("b")
	assert.NotEqual(t, uint32(0), a)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, st.Intern("a"))

	assert.False(t, st.Release(a))
	assert.True(t, st.Release(a))
	_, ok := st.GetString(a)
	assert.False(t, ok)
	assert.False(t, st.Release(a))
	assert.False(t, st.Release(0))
	assert.Equal(t, 1, st.Count())

	assert.Equal(t, a, st.Intern("c"))
}

func TestWorksheetStorage(t *testing.T) {
	ws := NewWorksheet("Data")
	ws.SetCell(0, 0, &Cell{Type: CellValueTypeNumber, Value: 1.0})
	ws.SetCell(300, 700, &Cell{Type: CellValueTypeBoolean, Value: true})
	ws.SetCell(255, 255, &Cell{Type: CellValueTypeNumber, Value: 2.0})
	ws.SetCell(0, 0, &Cell{Type: CellValueTypeError, Value: ErrNA})

	assert.Equal(t, 3, ws.GetTotalCells())
	assert.Equal(t, 1, ws.GetCellTypeCount(CellValueTypeNumber))
	assert.Equal(t, 1, ws.GetCellTypeCount(CellValueTypeError))
	assert.Equal(t, true, ws.GetCell(300, 700).Value)
	assert.Nil(t, ws.GetCell(300, 701))
	assert.Len(t, ws.chunks, 2)

	positions := map[CellKey]bool{}
	for key := range ws.Cells() {
		positions[key] = true
	}
	assert.Equal(t, map[CellKey]bool{
		{Sheet: "Data", Row: 0, Col: 0}:     true,
		{Sheet: "Data", Row: 255, Col: 255}: true,
		{Sheet: "Data", Row: 300, Col: 700}: true,
	}, positions)

	removed := ws.RemoveCell(300, 700)
	require.NotNil(t, removed)
	assert.Nil(t, ws.RemoveCell(300, 700))
	assert.Len(t, ws.chunks, 1)
	assert.Equal(t, 2, ws.GetTotalCells())
	assert.Equal(t, 0, ws.GetCellTypeCount(CellValueTypeBoolean))
}

func TestWorksheetTable(t *testing.T) {
	wt := NewWorksheetTable()
	wt.DefineWorksheet(NewWorksheet("one"))
	wt.DefineWorksheet(NewWorksheet("two"))
	wt.DefineWorksheet(NewWorksheet("one"))

	assert.Equal(t, []string{"one", "two"}, wt.Names())
	assert.Equal(t, 2, wt.Count())
	assert.True(t, wt.UndefineWorksheet("one"))
	assert.False(t, wt.UndefineWorksheet("one"))
	assert.False(t, wt.Contains("one"))
	ws, ok := wt.GetWorksheetByName("two")
	assert.True(t, ok)
	assert.Equal(t, "two", ws.Name())
}

func TestRunnableWorkbook(t *testing.T) {
	var lines []string
	printLn := func(s string) { lines = append(lines, s) }

	wb, err := NewRunnableWorkbook(printLn).
		Set("A1", 2.0).
		SetBatch(map[string]Primitive{"A2": "=A1*3", "A3": "=A2+A1"}).
		Log("A2").
		Log("B9").
		CheckError().
		Run()
	require.NoError(t, err)
	assert.Equal(t, []string{"A2: 6", "B9: <empty>", "No errors"}, lines)
	v, err := wb.Get("A3")
	require.NoError(t, err)
	assert.Equal(t, 8.0, v)

	lines = nil
	r := NewRunnableWorkbook(printLn).
		AddWorksheet("Sheet1").
		Set("A1", 1.0).
		CheckError()
	assert.Nil(t, r.Value("A1"))
	assert.Equal(t, []string{"ERROR: Worksheet already exists"}, lines)
	_, err = r.Run()
	assert.Error(t, err)

	r.Reset().
		Set("A1", 1.0).
		Then(func(r *RunnableWorkbook) *RunnableWorkbook {
			return r.Set("A2", "=A1+1")
		})
	assert.Equal(t, []Primitive{1.0, 2.0}, r.Values("A1", "A2"))

	r.ForEach(0, 1, 1, 2, func(row, col int, r *RunnableWorkbook) {
		r.Set(CellKey{Row: row, Col: col}.String(), float64(row*10+col))
	}).Set("D1", "=SUM(B1:C2)")
	assert.Equal(t, 26.0, r.Value("D1"))

	r.Set("Nope!A1", 1.0).
		OnError(func(err error) error {
			if strings.Contains(err.Error(), "not found") {
				return nil
			}
			return err
		})
	assert.NoError(t, r.Error())
}
