package formula

import (
	"iter"
	"slices"
)

// CellType tags what a stored cell holds
type CellType uint8

const (
	CellValueTypeEmpty   CellType = 0
	CellValueTypeNumber  CellType = 1
	CellValueTypeString  CellType = 2
	CellValueTypeBoolean CellType = 4
	CellValueTypeError   CellType = 5
)

// Cell is one stored cell. for a formula cell Value is the last result.
type Cell struct {
	Type     CellType
	Value    Primitive // numbers, booleans and errors; text lives in the string table
	StringID uint32    // string table ID for text values
	Formula  string    // formula text with its '=', empty for plain values
}

func cellTypeOf(v Primitive) CellType {
	switch v.(type) {
	case float64:
		return CellValueTypeNumber
	case string:
		return CellValueTypeString
	case bool:
		return CellValueTypeBoolean
	case *SpreadsheetError:
		return CellValueTypeError
	}
	return CellValueTypeEmpty
}

// ChunkKey represents the key for indexing chunks in Worksheet
type ChunkKey struct {
	ChunkRow int
	ChunkCol int
}

const (
	ChunkRows = 256 // rows per chunk
	ChunkCols = 256 // columns per chunk
)

// Chunk is a ChunkRows x ChunkCols block of cells, allocated on first write
type Chunk struct {
	cells map[int]*Cell // local index col*ChunkRows+row -> cell
}

// Worksheet stores the cells of one sheet sparsely, in chunks, so lookups
// in clustered data stay local
type Worksheet struct {
	name        string
	chunks      map[ChunkKey]*Chunk
	totalCells  int
	cellsByType [8]int
}

// NewWorksheet creates an empty worksheet
func NewWorksheet(name string) *Worksheet {
	return &Worksheet{
		name:   name,
		chunks: make(map[ChunkKey]*Chunk),
	}
}

// Name returns the worksheet name
func (w *Worksheet) Name() string {
	return w.name
}

func chunkOf(row, col int) (ChunkKey, int) {
	key := ChunkKey{ChunkRow: row / ChunkRows, ChunkCol: col / ChunkCols}
	return key, (col%ChunkCols)*ChunkRows + row%ChunkRows
}

// GetCell returns the cell at row, col or nil
func (w *Worksheet) GetCell(row, col int) *Cell {
	key, idx := chunkOf(row, col)
	chunk, exists := w.chunks[key]
	if !exists {
		return nil
	}
	return chunk.cells[idx]
}

// SetCell stores cell at row, col, replacing what was there
func (w *Worksheet) SetCell(row, col int, cell *Cell) {
	key, idx := chunkOf(row, col)
	chunk, exists := w.chunks[key]
	if !exists {
		chunk = &Chunk{cells: make(map[int]*Cell)}
		w.chunks[key] = chunk
	}
	if old, exists := chunk.cells[idx]; exists {
		w.cellsByType[old.Type]--
	} else {
		w.totalCells++
	}
	chunk.cells[idx] = cell
	w.cellsByType[cell.Type]++
}

// RemoveCell deletes the cell at row, col and returns it
func (w *Worksheet) RemoveCell(row, col int) *Cell {
	key, idx := chunkOf(row, col)
	chunk, exists := w.chunks[key]
	if !exists {
		return nil
	}
	cell, exists := chunk.cells[idx]
	if !exists {
		return nil
	}
	delete(chunk.cells, idx)
	if len(chunk.cells) == 0 {
		delete(w.chunks, key)
	}
	w.totalCells--
	w.cellsByType[cell.Type]--
	return cell
}

// Cells iterates every stored cell with its row and column, in no
// particular order
func (w *Worksheet) Cells() iter.Seq2[CellKey, *Cell] {
	return func(yield func(CellKey, *Cell) bool) {
		for key, chunk := range w.chunks {
			for idx, cell := range chunk.cells {
				pos := CellKey{
					Sheet: w.name,
					Row:   key.ChunkRow*ChunkRows + idx%ChunkRows,
					Col:   key.ChunkCol*ChunkCols + idx/ChunkRows,
				}
				if !yield(pos, cell) {
					return
				}
			}
		}
	}
}

// GetCellTypeCount returns how many cells hold the given type
func (w *Worksheet) GetCellTypeCount(cellType CellType) int {
	return w.cellsByType[cellType]
}

// GetTotalCells returns the number of stored cells
func (w *Worksheet) GetTotalCells() int {
	return w.totalCells
}

// WorksheetTable maps sheet names to worksheets and keeps their creation
// order
type WorksheetTable struct {
	byName map[string]*Worksheet
	order  []string
}

// NewWorksheetTable creates an empty worksheet table
func NewWorksheetTable() *WorksheetTable {
	return &WorksheetTable{byName: make(map[string]*Worksheet)}
}

// DefineWorksheet adds a worksheet under its name
func (wt *WorksheetTable) DefineWorksheet(worksheet *Worksheet) {
	if _, exists := wt.byName[worksheet.name]; !exists {
		wt.order = append(wt.order, worksheet.name)
	}
	wt.byName[worksheet.name] = worksheet
}

// UndefineWorksheet removes a worksheet, reporting whether it existed
func (wt *WorksheetTable) UndefineWorksheet(name string) bool {
	if _, exists := wt.byName[name]; !exists {
		return false
	}
	delete(wt.byName, name)
	wt.order = slices.DeleteFunc(wt.order, func(n string) bool { return n == name })
	return true
}

// GetWorksheetByName returns the worksheet called name
func (wt *WorksheetTable) GetWorksheetByName(name string) (*Worksheet, bool) {
	w, exists := wt.byName[name]
	return w, exists
}

// Contains checks if a worksheet with the given name exists
func (wt *WorksheetTable) Contains(name string) bool {
	_, exists := wt.byName[name]
	return exists
}

// Names returns the worksheet names in creation order
func (wt *WorksheetTable) Names() []string {
	return slices.Clone(wt.order)
}

// Count returns the number of worksheets
func (wt *WorksheetTable) Count() int {
	return len(wt.byName)
}
