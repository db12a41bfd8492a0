package spreadsheet

import (
	"iter"
	"slices"
)

// columnIndex keeps the rows of a set of addresses sorted per column, so
// the members inside a range are found by binary search instead of a scan
// of the whole set
type columnIndex map[uint32][]uint32

// newColumnIndex indexes addrs, given in any order
func newColumnIndex(addrs []CellAddress) columnIndex {
	ci := make(columnIndex)
	for _, addr := range addrs {
		ci[addr.Column] = append(ci[addr.Column], addr.Row)
	}
	for col, rows := range ci {
		slices.Sort(rows)
		ci[col] = slices.Compact(rows)
	}
	return ci
}

func (ci columnIndex) add(addr CellAddress) {
	rows := ci[addr.Column]
	i, found := slices.BinarySearch(rows, addr.Row)
	if found {
		return
	}
	ci[addr.Column] = slices.Insert(rows, i, addr.Row)
}

func (ci columnIndex) remove(addr CellAddress) {
	rows := ci[addr.Column]
	i, found := slices.BinarySearch(rows, addr.Row)
	if !found {
		return
	}
	rows = slices.Delete(rows, i, i+1)
	if len(rows) == 0 {
		delete(ci, addr.Column)
		return
	}
	ci[addr.Column] = rows
}

// within yields the members inside r column by column, rows ascending
// within a column
func (ci columnIndex) within(r RangeAddress) iter.Seq[CellAddress] {
	return func(yield func(CellAddress) bool) {
		for col := r.StartColumn; col <= r.EndColumn; col++ {
			rows := ci[col]
			i, _ := slices.BinarySearch(rows, r.StartRow)
			for ; i < len(rows) && rows[i] <= r.EndRow; i++ {
				if !yield(CellAddress{Row: rows[i], Column: col}) {
					return
				}
			}
		}
	}
}
