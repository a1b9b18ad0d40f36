package formula

import (
	"fmt"
	"slices"
)

// RunnableWorkbook provides a chainable interface for workbook operations.
// it wraps a Workbook and keeps the first error, every later call is a
// no-op until Reset.
type RunnableWorkbook struct {
	workbook *Workbook
	err      error
	printLn  func(string)
}

// NewRunnableWorkbook creates a RunnableWorkbook with default options.
// printLn is used by Log and CheckError.
func NewRunnableWorkbook(printLn func(string)) *RunnableWorkbook {
	wb, err := NewWorkbook(DefaultOptions())
	return &RunnableWorkbook{
		workbook: wb,
		err:      err,
		printLn:  printLn,
	}
}

// Set sets a cell value (chainable)
func (r *RunnableWorkbook) Set(address string, value Primitive) *RunnableWorkbook {
	if r.err != nil {
		return r
	}
	r.err = r.workbook.Set(address, value)
	return r
}

// SetBatch sets cells in address order (chainable)
func (r *RunnableWorkbook) SetBatch(cells map[string]Primitive) *RunnableWorkbook {
	if r.err != nil {
		return r
	}
	addresses := make([]string, 0, len(cells))
	for address := range cells {
		addresses = append(addresses, address)
	}
	slices.Sort(addresses)
	for _, address := range addresses {
		if r.err = r.workbook.Set(address, cells[address]); r.err != nil {
			return r
		}
	}
	return r
}

// Remove removes a cell (chainable)
func (r *RunnableWorkbook) Remove(address string) *RunnableWorkbook {
	if r.err != nil {
		return r
	}
	r.err = r.workbook.Remove(address)
	return r
}

// AddWorksheet adds a new worksheet (chainable)
func (r *RunnableWorkbook) AddWorksheet(name string) *RunnableWorkbook {
	if r.err != nil {
		return r
	}
	r.err = r.workbook.AddWorksheet(name)
	return r
}

// RemoveWorksheet removes a worksheet (chainable)
func (r *RunnableWorkbook) RemoveWorksheet(name string) *RunnableWorkbook {
	if r.err != nil {
		return r
	}
	r.err = r.workbook.RemoveWorksheet(name)
	return r
}

// RenameWorksheet renames a worksheet (chainable)
func (r *RunnableWorkbook) RenameWorksheet(oldName, newName string) *RunnableWorkbook {
	if r.err != nil {
		return r
	}
	r.err = r.workbook.RenameWorksheet(oldName, newName)
	return r
}

// Calculate refreshes volatile formulas (chainable)
func (r *RunnableWorkbook) Calculate() *RunnableWorkbook {
	if r.err != nil {
		return r
	}
	r.err = r.workbook.Calculate()
	return r
}

// Run does a final Calculate and returns the workbook and any error
func (r *RunnableWorkbook) Run() (*Workbook, error) {
	if r.Calculate(); r.err != nil {
		return nil, r.err
	}
	return r.workbook, nil
}

// Error returns the current error state
func (r *RunnableWorkbook) Error() error {
	return r.err
}

// Reset clears the error state (chainable)
func (r *RunnableWorkbook) Reset() *RunnableWorkbook {
	r.err = nil
	return r
}

// Then runs fn unless there is an error
func (r *RunnableWorkbook) Then(fn func(*RunnableWorkbook) *RunnableWorkbook) *RunnableWorkbook {
	if r.err != nil {
		return r
	}
	return fn(r)
}

// OnError lets fn replace or clear the current error
func (r *RunnableWorkbook) OnError(fn func(error) error) *RunnableWorkbook {
	if r.err != nil {
		r.err = fn(r.err)
	}
	return r
}

// ForEach calls fn for every cell position in the inclusive 0-based block,
// stopping at the first error (chainable)
func (r *RunnableWorkbook) ForEach(startRow, endRow, startCol, endCol int, fn func(row, col int, r *RunnableWorkbook)) *RunnableWorkbook {
	for row := startRow; row <= endRow; row++ {
		for col := startCol; col <= endCol; col++ {
			if r.err != nil {
				return r
			}
			fn(row, col, r)
		}
	}
	return r
}

// Value returns a single cell value, nil on error
func (r *RunnableWorkbook) Value(address string) Primitive {
	if r.err != nil {
		return nil
	}
	val, err := r.workbook.Get(address)
	if err != nil {
		r.err = err
		return nil
	}
	return val
}

// Values returns several cell values, nil on error
func (r *RunnableWorkbook) Values(addresses ...string) []Primitive {
	values := make([]Primitive, len(addresses))
	for i, address := range addresses {
		values[i] = r.Value(address)
		if r.err != nil {
			return nil
		}
	}
	return values
}

// Log prints the value of a cell (chainable)
func (r *RunnableWorkbook) Log(address string) *RunnableWorkbook {
	val := r.Value(address)
	if r.err != nil {
		return r
	}
	if val == nil {
		r.printLn(fmt.Sprintf("%s: <empty>", address))
	} else {
		r.printLn(fmt.Sprintf("%s: %s", address, toString(val)))
	}
	return r
}

// CheckError prints the current error state (chainable)
func (r *RunnableWorkbook) CheckError() *RunnableWorkbook {
	if r.err != nil {
		r.printLn(fmt.Sprintf("ERROR: %v", r.err))
	} else {
		r.printLn("No errors")
	}
	return r
}
