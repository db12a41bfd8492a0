package spreadsheet

import (
	"iter"
	"maps"
	"slices"
)

// Grid holds the authoritative mapping from address to cell record.
//
// architecture:
// - only cells with raw input or a display value are stored
// - the addressable rectangle is columns x rows, rows only grow
// - every read is total, a missing cell reads as an empty record
//
// Grid does no evaluation. callers write the raw input and then store the
// computed display with SetFormulaResult
type Grid struct {
	cells    map[CellAddress]*Cell // sparse map of non-empty cells
	byColumn columnIndex           // stored addresses, for range reads
	columns  int
	rows     int
}

// NewGrid creates an empty grid of the given extent
func NewGrid(columns, rows int) *Grid {
	return &Grid{
		cells:    make(map[CellAddress]*Cell),
		byColumn: make(columnIndex),
		columns:  columns,
		rows:     rows,
	}
}

// Columns returns the fixed column count
func (g *Grid) Columns() int {
	return g.columns
}

// Rows returns the current addressable row count
func (g *Grid) Rows() int {
	return g.rows
}

// Contains reports whether the address lies inside the current rectangle
func (g *Grid) Contains(addr CellAddress) bool {
	return int(addr.Column) < g.columns && int(addr.Row) < g.rows
}

// Get returns the stored record, or an empty record for any address that
// was never written
func (g *Grid) Get(addr CellAddress) Cell {
	if cell, ok := g.cells[addr]; ok {
		return *cell
	}
	return Cell{Address: addr, RawInput: "", Display: ""}
}

// Lookup returns the stored record and whether one exists
func (g *Grid) Lookup(addr CellAddress) (Cell, bool) {
	cell, ok := g.cells[addr]
	if !ok {
		return Cell{}, false
	}
	return *cell, true
}

// SetCell overwrites the raw input of a cell. the display is left as it
// was, the evaluator is expected to follow up with SetFormulaResult
func (g *Grid) SetCell(addr CellAddress, rawInput string) {
	cell, ok := g.cells[addr]
	if !ok {
		if rawInput == "" {
			return
		}
		cell = &Cell{Address: addr, Display: ""}
		g.cells[addr] = cell
		g.byColumn.add(addr)
	}
	cell.RawInput = rawInput
	g.cleanupIfEmpty(addr, cell)
}

// SetFormulaResult stores the computed display value of a cell
func (g *Grid) SetFormulaResult(addr CellAddress, result Primitive) {
	if result == nil {
		result = ""
	}
	cell, ok := g.cells[addr]
	if !ok {
		if result == "" {
			return
		}
		cell = &Cell{Address: addr}
		g.cells[addr] = cell
		g.byColumn.add(addr)
	}
	cell.Display = result
	g.cleanupIfEmpty(addr, cell)
}

// cleanupIfEmpty drops a cell that holds neither input nor display
func (g *Grid) cleanupIfEmpty(addr CellAddress, cell *Cell) {
	if cell.RawInput == "" && cell.Display == "" {
		delete(g.cells, addr)
		g.byColumn.remove(addr)
	}
}

// AppendRow grows the addressable row count by one. the new row reads as
// empty without allocating anything
func (g *Grid) AppendRow() {
	g.rows++
}

// Clear resets every cell to empty. the extent is preserved
func (g *Grid) Clear() {
	clear(g.cells)
	clear(g.byColumn)
}

// SortedCells returns the stored cells in row-major order
func (g *Grid) SortedCells() []Cell {
	addrs := slices.SortedFunc(maps.Keys(g.cells), compareAddresses)
	result := make([]Cell, 0, len(addrs))
	for _, addr := range addrs {
		result = append(result, *g.cells[addr])
	}
	return result
}

// Addresses returns every address of the rectangle in row-major order
func (g *Grid) Addresses() iter.Seq[CellAddress] {
	return func(yield func(CellAddress) bool) {
		for row := 0; row < g.rows; row++ {
			for col := 0; col < g.columns; col++ {
				if !yield(CellAddress{Row: uint32(row), Column: uint32(col)}) {
					return
				}
			}
		}
	}
}
