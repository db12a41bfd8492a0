package spreadsheet

import (
	"fmt"
	"testing"
)

func addrs(names ...string) []CellAddress {
	result := make([]CellAddress, len(names))
	for i, name := range names {
		result[i] = MustParseAddress(name)
	}
	return result
}

func assertAddresses(t *testing.T, label string, got []CellAddress, want ...string) {
	t.Helper()
	if fmt.Sprint(got) != fmt.Sprint(addrs(want...)) {
		t.Errorf("%s = %v, want %v", label, got, want)
	}
}

func TestDependencyGraph(t *testing.T) {
	t.Run("ChainOrder", func(t *testing.T) {
		dg := NewDependencyGraph()
		dg.AddCellDependency(MustParseAddress("A2"), MustParseAddress("A1"))
		dg.AddCellDependency(MustParseAddress("A3"), MustParseAddress("A2"))

		assertAddresses(t, "GetAffectedCells(A1)", dg.GetAffectedCells(MustParseAddress("A1")), "A2", "A3")
		assertAddresses(t, "GetDirectDependents(A1)", dg.GetDirectDependents(MustParseAddress("A1")), "A2")
		assertAddresses(t, "GetDirectPrecedents(A3)", dg.GetDirectPrecedents(MustParseAddress("A3")), "A2")

		order, cyclic := dg.CalculationOrder(addrs("A3", "A2", "A1"))
		assertAddresses(t, "CalculationOrder", order, "A1", "A2", "A3")
		if len(cyclic) != 0 {
			t.Errorf("cyclic = %v, want none", cyclic)
		}
		if dg.HasCycle() {
			t.Error("HasCycle() = true for a chain")
		}
	})

	t.Run("OrderIgnoresCellsOutsideTheSet", func(t *testing.T) {
		dg := NewDependencyGraph()
		dg.AddCellDependency(MustParseAddress("B1"), MustParseAddress("A1"))
		dg.AddCellDependency(MustParseAddress("A5"), MustParseAddress("B1"))

		order, cyclic := dg.CalculationOrder(addrs("A5", "B1"))
		assertAddresses(t, "CalculationOrder", order, "B1", "A5")
		if len(cyclic) != 0 {
			t.Errorf("cyclic = %v, want none", cyclic)
		}
	})

	t.Run("Cycle", func(t *testing.T) {
		dg := NewDependencyGraph()
		dg.AddCellDependency(MustParseAddress("A1"), MustParseAddress("B1"))
		dg.AddCellDependency(MustParseAddress("B1"), MustParseAddress("A1"))
		dg.AddCellDependency(MustParseAddress("C1"), MustParseAddress("B1"))

		order, cyclic := dg.CalculationOrder(addrs("A1", "B1", "C1"))
		assertAddresses(t, "CalculationOrder", order, "A1", "B1", "C1")
		for _, name := range []string{"A1", "B1"} {
			if _, ok := cyclic[MustParseAddress(name)]; !ok {
				t.Errorf("%s should be cyclic", name)
			}
		}
		if _, ok := cyclic[MustParseAddress("C1")]; ok {
			t.Error("C1 only reads the cycle, it is not part of it")
		}
		if !dg.HasCycle() {
			t.Error("HasCycle() = false")
		}
	})

	t.Run("SelfLoop", func(t *testing.T) {
		dg := NewDependencyGraph()
		dg.AddCellDependency(MustParseAddress("A1"), MustParseAddress("A1"))

		_, cyclic := dg.CalculationOrder(addrs("A1"))
		if _, ok := cyclic[MustParseAddress("A1")]; !ok {
			t.Error("self loop should be cyclic")
		}
	})

	t.Run("RangeObservers", func(t *testing.T) {
		dg := NewDependencyGraph()
		block := NewRangeAddress(MustParseAddress("A1"), MustParseAddress("B2"))
		dg.AddRangeDependency(MustParseAddress("C1"), block)
		dg.AddCellDependency(MustParseAddress("D1"), MustParseAddress("C1"))

		assertAddresses(t, "GetDirectDependents(B2)", dg.GetDirectDependents(MustParseAddress("B2")), "C1")
		assertAddresses(t, "GetDirectDependents(B3)", dg.GetDirectDependents(MustParseAddress("B3")))
		assertAddresses(t, "GetAffectedCells(A2)", dg.GetAffectedCells(MustParseAddress("A2")), "C1", "D1")

		dg.AddCellDependency(MustParseAddress("B2"), MustParseAddress("Z9"))
		order, cyclic := dg.CalculationOrder(addrs("D1", "C1", "B2"))
		assertAddresses(t, "CalculationOrder", order, "B2", "C1", "D1")
		if len(cyclic) != 0 {
			t.Errorf("cyclic = %v, want none", cyclic)
		}

		if got := dg.GetRangePrecedents(MustParseAddress("C1")); len(got) != 1 || got[0] != block {
			t.Errorf("GetRangePrecedents(C1) = %v, want [%v]", got, block)
		}
	})

	t.Run("RangesIndexedByColumn", func(t *testing.T) {
		dg := NewDependencyGraph()
		dg.AddRangeDependency(MustParseAddress("C1"), NewRangeAddress(MustParseAddress("A1"), MustParseAddress("B2")))
		dg.AddRangeDependency(MustParseAddress("C2"), NewRangeAddress(MustParseAddress("A5"), MustParseAddress("A9")))

		if got := len(dg.rangesByColumn[0]); got != 2 {
			t.Errorf("column A spans %d ranges, want 2", got)
		}
		if got := len(dg.rangesByColumn[1]); got != 1 {
			t.Errorf("column B spans %d ranges, want 1", got)
		}
		assertAddresses(t, "GetDirectDependents(A7)", dg.GetDirectDependents(MustParseAddress("A7")), "C2")
		assertAddresses(t, "GetDirectDependents(B7)", dg.GetDirectDependents(MustParseAddress("B7")))

		dg.ClearDependencies(MustParseAddress("C1"))
		if _, ok := dg.rangesByColumn[1]; ok {
			t.Error("column B still indexed after its only range was dropped")
		}
		dg.ClearDependencies(MustParseAddress("C2"))
		if len(dg.rangesByColumn) != 0 || dg.RangeObserverCount() != 0 {
			t.Errorf("ranges left after clearing: %v", dg.rangesByColumn)
		}
	})

	t.Run("OrderThroughRangesUsesMembersOnly", func(t *testing.T) {
		dg := NewDependencyGraph()
		dg.AddRangeDependency(MustParseAddress("B1"), NewRangeAddress(MustParseAddress("A1"), MustParseAddress("A1000")))
		dg.AddCellDependency(MustParseAddress("A500"), MustParseAddress("C1"))

		order, cyclic := dg.CalculationOrder(addrs("B1", "C1", "A500"))
		assertAddresses(t, "CalculationOrder", order, "C1", "A500", "B1")
		if len(cyclic) != 0 {
			t.Errorf("cyclic = %v, want none", cyclic)
		}
	})

	t.Run("ClearDependenciesDropsEmptyNodes", func(t *testing.T) {
		dg := NewDependencyGraph()
		dg.AddCellDependency(MustParseAddress("A2"), MustParseAddress("A1"))
		dg.AddRangeDependency(MustParseAddress("A2"), NewRangeAddress(MustParseAddress("B1"), MustParseAddress("B5")))

		dg.ClearDependencies(MustParseAddress("A2"))
		if dg.NodeCount() != 0 {
			t.Errorf("NodeCount() = %d, want 0", dg.NodeCount())
		}
		if dg.RangeObserverCount() != 0 {
			t.Errorf("RangeObserverCount() = %d, want 0", dg.RangeObserverCount())
		}
	})

	t.Run("FormulaKeepsNode", func(t *testing.T) {
		dg := NewDependencyGraph()
		addr := MustParseAddress("C3")
		dg.SetFormula(addr, "=1+1")
		dg.ClearDependencies(addr)
		if formula, ok := dg.GetFormula(addr); !ok || formula != "=1+1" {
			t.Errorf("GetFormula() = %q, %v", formula, ok)
		}

		dg.ClearFormula(addr)
		if _, ok := dg.GetNode(addr); ok {
			t.Error("node should be dropped once the formula is cleared")
		}
	})

	t.Run("DirtyTracking", func(t *testing.T) {
		dg := NewDependencyGraph()
		dg.AddCellDependency(MustParseAddress("B1"), MustParseAddress("A1"))
		dg.MarkDirty(MustParseAddress("B1"))
		dg.MarkDirty(MustParseAddress("A7"))

		assertAddresses(t, "DirtyCells", dg.DirtyCells(), "B1", "A7")
		if node, _ := dg.GetNode(MustParseAddress("B1")); !node.IsDirty {
			t.Error("node flag not set")
		}

		dg.ClearDirty(MustParseAddress("A7"))
		if dg.IsDirty(MustParseAddress("A7")) {
			t.Error("A7 still dirty")
		}

		dg.ClearAllDirty()
		if len(dg.DirtyCells()) != 0 {
			t.Errorf("DirtyCells() = %v after ClearAllDirty", dg.DirtyCells())
		}
	})
}

func TestCellRangeIteration(t *testing.T) {
	grid := NewGrid(DefaultColumns, DefaultInitialRows)
	for _, name := range []string{"B2", "A1", "C3", "A3", "J20"} {
		grid.SetCell(MustParseAddress(name), name)
	}

	var dense, sparse []CellAddress
	for cell := range NewCellRange(grid, NewRangeAddress(MustParseAddress("B2"), MustParseAddress("A1"))).Iterate() {
		dense = append(dense, cell.Address)
	}
	for cell := range NewCellRange(grid, NewRangeAddress(MustParseAddress("A1"), MustParseAddress("J20"))).Iterate() {
		sparse = append(sparse, cell.Address)
	}

	assertAddresses(t, "small range", dense, "A1", "B2")
	assertAddresses(t, "large range", sparse, "A1", "B2", "A3", "C3", "J20")

	var first []Primitive
	for cell := range NewCellRange(grid, NewRangeAddress(MustParseAddress("J20"), MustParseAddress("A1"))).Iterate() {
		first = append(first, cell.Display)
		break
	}
	if len(first) != 1 {
		t.Errorf("early break yielded %d values", len(first))
	}
}

func TestColumnIndex(t *testing.T) {
	ci := newColumnIndex(addrs("B3", "A2", "B1", "A2", "C9"))
	ci.add(MustParseAddress("B2"))
	ci.add(MustParseAddress("B2"))
	ci.remove(MustParseAddress("C9"))
	ci.remove(MustParseAddress("D4"))

	if rows := ci[1]; fmt.Sprint(rows) != "[0 1 2]" {
		t.Errorf("column B rows = %v, want [0 1 2]", rows)
	}
	if _, ok := ci[2]; ok {
		t.Error("empty column C is still indexed")
	}

	var got []CellAddress
	for addr := range ci.within(NewRangeAddress(MustParseAddress("A2"), MustParseAddress("C2"))) {
		got = append(got, addr)
	}
	assertAddresses(t, "within(A2:C2)", got, "A2", "B2")

	got = got[:0]
	for addr := range ci.within(NewRangeAddress(MustParseAddress("B2"), MustParseAddress("B9"))) {
		got = append(got, addr)
		break
	}
	assertAddresses(t, "within(B2:B9) first", got, "B2")
}
