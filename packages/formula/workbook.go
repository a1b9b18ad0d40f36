package formula

import (
	"fmt"
	"log/slog"
	"slices"
)

// DefaultSheetName is the sheet a new workbook starts with
const DefaultSheetName = "Sheet1"

// WorkbookInterface is the cell store API a host exposes to its callers
type WorkbookInterface interface {
	// cell methods

	Get(address string) (Primitive, error)
	Set(address string, value Primitive) error
	Remove(address string) error

	// worksheet methods

	AddWorksheet(name string) error
	RemoveWorksheet(name string) error
	RenameWorksheet(oldName string, newName string) error
	DoesWorksheetExist(name string) bool
	ListWorksheets() []string

	// common methods

	Calculate() error
}

var _ WorkbookInterface = (*Workbook)(nil)

// Workbook is an in-memory cell store driving an Engine. it owns the cell
// values and formula text, the engine owns everything derived from them.
// addresses are A1 strings, optionally sheet-qualified; unqualified ones
// refer to the first sheet.
type Workbook struct {
	engine  *Engine
	sheets  *WorksheetTable
	strings *StringTable
	logger  *slog.Logger
}

// NewWorkbook creates a workbook with a single sheet named Sheet1. the
// engine is built from opts with the workbook as its content probe.
func NewWorkbook(opts Options) (*Workbook, error) {
	wb := &Workbook{
		sheets:  NewWorksheetTable(),
		strings: NewStringTable(),
	}
	opts.HasCellContent = wb.hasContent
	engine, err := NewEngine(opts)
	if err != nil {
		return nil, NewApplicationError(Internal, fmt.Sprintf("Creating engine: %v", err))
	}
	wb.engine = engine
	wb.logger = engine.logger
	wb.sheets.DefineWorksheet(NewWorksheet(DefaultSheetName))
	return wb, nil
}

// Engine returns the engine behind the workbook
func (wb *Workbook) Engine() *Engine {
	return wb.engine
}

// resolveAddress parses an address and finds its worksheet
func (wb *Workbook) resolveAddress(address string) (CellKey, *Worksheet, error) {
	key, err := ParseCellKey(address)
	if err != nil {
		return CellKey{}, nil, err
	}
	if key.Sheet == "" {
		names := wb.sheets.Names()
		if len(names) == 0 {
			return CellKey{}, nil, NewApplicationError(NotFound, "Workbook has no worksheets")
		}
		key.Sheet = names[0]
	}
	worksheet, exists := wb.sheets.GetWorksheetByName(key.Sheet)
	if !exists {
		return CellKey{}, nil, NewApplicationError(NotFound, fmt.Sprintf("Worksheet %q not found", key.Sheet))
	}
	return key, worksheet, nil
}

// normalizeValue converts Go numbers to float64 and rejects types a cell
// cannot hold
func normalizeValue(value Primitive) (Primitive, error) {
	switch v := value.(type) {
	case nil, float64, string, bool, *SpreadsheetError:
		return v, nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float32:
		return float64(v), nil
	}
	return nil, NewApplicationError(InvalidArgument, fmt.Sprintf("Unsupported cell value type %T", value))
}

// cellValue reads the value held by a stored cell
func (wb *Workbook) cellValue(cell *Cell) Primitive {
	if cell.Type == CellValueTypeString {
		s, _ := wb.strings.GetString(cell.StringID)
		return s
	}
	return cell.Value
}

// store writes value and formula text into a cell, dropping the cell when
// both are empty
func (wb *Workbook) store(worksheet *Worksheet, key CellKey, formula string, value Primitive) {
	if old := worksheet.GetCell(key.Row, key.Col); old != nil && old.Type == CellValueTypeString {
		wb.strings.Release(old.StringID)
	}
	if formula == "" && value == nil {
		worksheet.RemoveCell(key.Row, key.Col)
		return
	}

	cell := &Cell{Type: cellTypeOf(value), Formula: formula}
	if s, ok := value.(string); ok {
		cell.StringID = wb.strings.Intern(s)
	} else {
		cell.Value = value
	}
	worksheet.SetCell(key.Row, key.Col, cell)
}

// get is the accessor the engine reads through. a missing sheet reads as
// #REF!
func (wb *Workbook) get(sheet string, col, row int) Primitive {
	worksheet, exists := wb.sheets.GetWorksheetByName(sheet)
	if !exists {
		return NewSpreadsheetError(ErrorCodeRef, fmt.Sprintf("Worksheet %q not found", sheet))
	}
	cell := worksheet.GetCell(row, col)
	if cell == nil {
		return nil
	}
	return wb.cellValue(cell)
}

func (wb *Workbook) formulaAt(key CellKey) string {
	worksheet, exists := wb.sheets.GetWorksheetByName(key.Sheet)
	if !exists {
		return ""
	}
	cell := worksheet.GetCell(key.Row, key.Col)
	if cell == nil {
		return ""
	}
	return cell.Formula
}

func (wb *Workbook) hasContent(sheet string, row, col int) bool {
	worksheet, exists := wb.sheets.GetWorksheetByName(sheet)
	return exists && worksheet.GetCell(row, col) != nil
}

// Get retrieves the value of a cell. empty cells inside a spill show the
// spilled value.
func (wb *Workbook) Get(address string) (Primitive, error) {
	key, worksheet, err := wb.resolveAddress(address)
	if err != nil {
		return nil, err
	}
	if cell := worksheet.GetCell(key.Row, key.Col); cell != nil {
		return wb.cellValue(cell), nil
	}
	if v, ok := wb.engine.GetSpillValue(key); ok {
		return v, nil
	}
	return nil, nil
}

// Formula returns the formula text of a cell, empty for plain values
func (wb *Workbook) Formula(address string) (string, error) {
	key, _, err := wb.resolveAddress(address)
	if err != nil {
		return "", err
	}
	return wb.formulaAt(key), nil
}

// Set sets the value of a cell. text starting with '=' is a formula: it is
// evaluated right away and every cell reading this one is recalculated.
func (wb *Workbook) Set(address string, value Primitive) error {
	key, worksheet, err := wb.resolveAddress(address)
	if err != nil {
		return err
	}
	value, err = normalizeValue(value)
	if err != nil {
		return err
	}

	if text, ok := value.(string); ok && isFormula(text) {
		// the cell is content before it has a result
		wb.store(worksheet, key, text, nil)
		wb.store(worksheet, key, text, wb.evaluate(key, text))
	} else {
		wb.engine.UpdateDependencies(key, "")
		wb.store(worksheet, key, "", value)
	}

	wb.propagate(key)
	return nil
}

// evaluate registers and evaluates the formula at key
func (wb *Workbook) evaluate(key CellKey, text string) Primitive {
	if !wb.engine.UpdateDependencies(key, text) {
		return NewSpreadsheetError(ErrorCodeRef, "Circular reference detected")
	}
	return wb.engine.EvaluateFormula(text, wb.get, &key)
}

// propagate stores the results of recalculating everything that reads key
func (wb *Workbook) propagate(key CellKey) {
	results := wb.engine.Recalculate(key, wb.formulaAt, wb.get)
	for cellKey, value := range results {
		worksheet, exists := wb.sheets.GetWorksheetByName(cellKey.Sheet)
		if !exists {
			continue
		}
		cell := worksheet.GetCell(cellKey.Row, cellKey.Col)
		if cell == nil || cell.Formula == "" {
			continue
		}
		wb.store(worksheet, cellKey, cell.Formula, value)
	}
	if len(results) > 0 {
		wb.logger.Debug("recalculated", "cell", key.String(), "cells", len(results))
	}
}

// Remove removes a cell
func (wb *Workbook) Remove(address string) error {
	key, worksheet, err := wb.resolveAddress(address)
	if err != nil {
		return err
	}
	if worksheet.GetCell(key.Row, key.Col) == nil {
		return nil
	}
	wb.store(worksheet, key, "", nil)
	wb.engine.UpdateDependencies(key, "")
	wb.propagate(key)
	return nil
}

// AddWorksheet adds a new worksheet. formulas that already referenced the
// name are recalculated.
func (wb *Workbook) AddWorksheet(name string) error {
	if name == "" {
		return NewApplicationError(InvalidArgument, "Worksheet name is empty")
	}
	if wb.sheets.Contains(name) {
		return NewApplicationError(AlreadyExists, "Worksheet already exists")
	}
	wb.sheets.DefineWorksheet(NewWorksheet(name))
	wb.refreshReaders(name)
	return nil
}

// RemoveWorksheet removes a worksheet. formulas elsewhere that read it
// become #REF!.
func (wb *Workbook) RemoveWorksheet(name string) error {
	worksheet, exists := wb.sheets.GetWorksheetByName(name)
	if !exists {
		return NewApplicationError(NotFound, "Worksheet not found")
	}

	var keys []CellKey
	for key := range worksheet.Cells() {
		keys = append(keys, key)
	}
	for _, key := range keys {
		wb.store(worksheet, key, "", nil)
		wb.engine.RemoveFormula(key)
	}
	wb.sheets.UndefineWorksheet(name)
	wb.refreshReaders(name)
	return nil
}

// RenameWorksheet renames a worksheet by moving its cells. formulas
// elsewhere keep the old name and read #REF! until they are set again.
func (wb *Workbook) RenameWorksheet(oldName string, newName string) error {
	worksheet, exists := wb.sheets.GetWorksheetByName(oldName)
	if !exists {
		return NewApplicationError(NotFound, "Worksheet not found")
	}
	if wb.sheets.Contains(newName) {
		return NewApplicationError(AlreadyExists, "Worksheet name already exists")
	}

	type entry struct {
		key     CellKey
		value   Primitive
		formula bool
	}
	var entries []entry
	for key, cell := range worksheet.Cells() {
		e := entry{key: key, value: wb.cellValue(cell)}
		if cell.Formula != "" {
			e.value, e.formula = cell.Formula, true
		}
		entries = append(entries, e)
	}
	// plain values first so formulas see them on their first evaluation
	slices.SortFunc(entries, func(a, b entry) int {
		switch {
		case a.formula == b.formula:
			return a.key.Compare(b.key)
		case a.formula:
			return 1
		}
		return -1
	})

	if err := wb.RemoveWorksheet(oldName); err != nil {
		return err
	}
	if err := wb.AddWorksheet(newName); err != nil {
		return err
	}
	for _, e := range entries {
		e.key.Sheet = newName
		if err := wb.Set(e.key.String(), e.value); err != nil {
			return err
		}
	}
	return nil
}

// refreshReaders recalculates the formulas reading any cell of sheet
func (wb *Workbook) refreshReaders(sheet string) {
	for _, key := range wb.engine.Graph().CellsInSheet(sheet) {
		wb.propagate(key)
	}
}

// DoesWorksheetExist checks if a worksheet exists
func (wb *Workbook) DoesWorksheetExist(name string) bool {
	return wb.sheets.Contains(name)
}

// ListWorksheets returns the worksheet names in creation order
func (wb *Workbook) ListWorksheets() []string {
	return wb.sheets.Names()
}

// Calculate re-evaluates the volatile formulas (NOW, TODAY, RAND,
// RANDBETWEEN) and everything reading them
func (wb *Workbook) Calculate() error {
	for _, key := range wb.engine.VolatileCells() {
		worksheet, exists := wb.sheets.GetWorksheetByName(key.Sheet)
		if !exists {
			continue
		}
		cell := worksheet.GetCell(key.Row, key.Col)
		if cell == nil || cell.Formula == "" {
			continue
		}
		wb.store(worksheet, key, cell.Formula, wb.engine.EvaluateFormula(cell.Formula, wb.get, &key))
		wb.propagate(key)
	}
	return nil
}
