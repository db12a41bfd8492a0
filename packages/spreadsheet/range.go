package spreadsheet

import (
	"iter"
	"slices"
)

// RangeAddress represents a rectangular block of cells. bounds are
// inclusive and always normalized so start <= end
type RangeAddress struct {
	StartRow    uint32
	StartColumn uint32
	EndRow      uint32
	EndColumn   uint32
}

// NewRangeAddress builds a range from two corners given in any order. a
// reversed range like B3:A1 covers the same block as A1:B3
func NewRangeAddress(from, to CellAddress) RangeAddress {
	return RangeAddress{
		StartRow:    min(from.Row, to.Row),
		StartColumn: min(from.Column, to.Column),
		EndRow:      max(from.Row, to.Row),
		EndColumn:   max(from.Column, to.Column),
	}
}

// Contains checks if a cell is within the range
func (r RangeAddress) Contains(cell CellAddress) bool {
	return cell.Row >= r.StartRow && cell.Row <= r.EndRow &&
		cell.Column >= r.StartColumn && cell.Column <= r.EndColumn
}

func (r RangeAddress) String() string {
	return CellAddress{Row: r.StartRow, Column: r.StartColumn}.String() + ":" +
		CellAddress{Row: r.EndRow, Column: r.EndColumn}.String()
}

// Range represents a lazy range type for memory-efficient formula evaluation
type Range interface {
	Iterate() iter.Seq[Cell]
}

// CellRange implements Range for lazy cell iteration over a grid
type CellRange struct {
	bounds RangeAddress
	grid   *Grid
}

// NewCellRange returns a range view over the grid
func NewCellRange(grid *Grid, bounds RangeAddress) *CellRange {
	return &CellRange{bounds: bounds, grid: grid}
}

// Iterate returns an iterator over the non-empty cells in the range, in
// row-major order. empty cells are skipped, they never take part in a
// reduction
func (r *CellRange) Iterate() iter.Seq[Cell] {
	return func(yield func(Cell) bool) {
		if r.grid == nil {
			return
		}

		// only stored cells are visited, however large the range is
		addrs := slices.Collect(r.grid.byColumn.within(r.bounds))
		if r.bounds.StartColumn != r.bounds.EndColumn {
			slices.SortFunc(addrs, compareAddresses)
		}
		for _, addr := range addrs {
			cell, ok := r.grid.Lookup(addr)
			if !ok {
				continue
			}
			if !yield(cell) {
				return
			}
		}
	}
}

// compareAddresses orders addresses row-major
func compareAddresses(a, b CellAddress) int {
	if a.Row != b.Row {
		if a.Row < b.Row {
			return -1
		}
		return 1
	}
	if a.Column != b.Column {
		if a.Column < b.Column {
			return -1
		}
		return 1
	}
	return 0
}
