package spreadsheet

import (
	"maps"
	"slices"
)

// DependencyNode represents a cell in the dependency graph
type DependencyNode struct {
	// address of *THIS* node
	Address CellAddress

	// cell-to-cell dependencies
	CellPrecedents map[CellAddress]*DependencyNode // cells this cell depends on
	CellDependents map[CellAddress]*DependencyNode // cells that depend on this cell

	// range dependencies (only for formula cells that depend on ranges)
	RangePrecedents map[RangeAddress]struct{} // ranges this cell depends on (lazy)

	// raw formula text, empty for cells that are only referenced
	Formula string

	// dirty tracking
	IsDirty bool // whether this cell needs recalculation
}

// DependencyGraph manages cell dependencies and calculation order
type DependencyGraph struct {
	nodes          map[CellAddress]*DependencyNode           // all nodes in the graph
	rangeObservers map[RangeAddress]map[CellAddress]struct{} // range -> cells that depend on it
	rangesByColumn map[uint32]map[RangeAddress]struct{}      // column -> observed ranges spanning it
	dirtySet       map[CellAddress]struct{}                  // cells needing recalculation
}

// NewDependencyGraph creates a new dependency graph
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes:          make(map[CellAddress]*DependencyNode),
		rangeObservers: make(map[RangeAddress]map[CellAddress]struct{}),
		rangesByColumn: make(map[uint32]map[RangeAddress]struct{}),
		dirtySet:       make(map[CellAddress]struct{}),
	}
}

// GetOrCreateNode gets an existing node or creates a new one
func (dg *DependencyGraph) GetOrCreateNode(addr CellAddress) *DependencyNode {
	if node, exists := dg.nodes[addr]; exists {
		return node
	}

	node := &DependencyNode{
		Address:         addr,
		CellPrecedents:  make(map[CellAddress]*DependencyNode),
		CellDependents:  make(map[CellAddress]*DependencyNode),
		RangePrecedents: make(map[RangeAddress]struct{}),
	}
	dg.nodes[addr] = node
	return node
}

// GetNode retrieves a node if it exists
func (dg *DependencyGraph) GetNode(addr CellAddress) (*DependencyNode, bool) {
	node, exists := dg.nodes[addr]
	return node, exists
}

// cleanupNodeIfEmpty removes a node if it has no dependencies or formula
func (dg *DependencyGraph) cleanupNodeIfEmpty(addr CellAddress) {
	node, exists := dg.nodes[addr]
	if !exists {
		return
	}

	if node.Formula != "" ||
		len(node.CellPrecedents) > 0 ||
		len(node.CellDependents) > 0 ||
		len(node.RangePrecedents) > 0 {
		return
	}

	// the dirty flag lives in dirtySet, which outlives the node
	delete(dg.nodes, addr)
}

// AddCellDependency adds a cell-to-cell dependency (from depends on to)
func (dg *DependencyGraph) AddCellDependency(from, to CellAddress) {
	fromNode := dg.GetOrCreateNode(from)
	toNode := dg.GetOrCreateNode(to)

	fromNode.CellPrecedents[to] = toNode
	toNode.CellDependents[from] = fromNode
}

// RemoveCellDependency removes a cell-to-cell dependency
func (dg *DependencyGraph) RemoveCellDependency(from, to CellAddress) bool {
	fromNode, fromExists := dg.nodes[from]
	toNode, toExists := dg.nodes[to]

	if !fromExists || !toExists {
		return false
	}

	delete(fromNode.CellPrecedents, to)
	delete(toNode.CellDependents, from)

	dg.cleanupNodeIfEmpty(from)
	dg.cleanupNodeIfEmpty(to)

	return true
}

// AddRangeDependency adds a cell-to-range dependency (from depends on range)
func (dg *DependencyGraph) AddRangeDependency(from CellAddress, rangeAddr RangeAddress) {
	node := dg.GetOrCreateNode(from)

	node.RangePrecedents[rangeAddr] = struct{}{}

	if dg.rangeObservers[rangeAddr] == nil {
		dg.rangeObservers[rangeAddr] = make(map[CellAddress]struct{})
		for col := rangeAddr.StartColumn; col <= rangeAddr.EndColumn; col++ {
			if dg.rangesByColumn[col] == nil {
				dg.rangesByColumn[col] = make(map[RangeAddress]struct{})
			}
			dg.rangesByColumn[col][rangeAddr] = struct{}{}
		}
	}
	dg.rangeObservers[rangeAddr][from] = struct{}{}
}

// RemoveRangeDependency removes a cell-to-range dependency
func (dg *DependencyGraph) RemoveRangeDependency(from CellAddress, rangeAddr RangeAddress) bool {
	node, exists := dg.nodes[from]
	if !exists {
		return false
	}

	delete(node.RangePrecedents, rangeAddr)

	if observers, exists := dg.rangeObservers[rangeAddr]; exists {
		delete(observers, from)
		if len(observers) == 0 {
			delete(dg.rangeObservers, rangeAddr)
			for col := rangeAddr.StartColumn; col <= rangeAddr.EndColumn; col++ {
				delete(dg.rangesByColumn[col], rangeAddr)
				if len(dg.rangesByColumn[col]) == 0 {
					delete(dg.rangesByColumn, col)
				}
			}
		}
	}

	dg.cleanupNodeIfEmpty(from)

	return true
}

// ClearDependencies clears all precedents of a cell. cells depending on it
// keep their edges
func (dg *DependencyGraph) ClearDependencies(addr CellAddress) {
	node, exists := dg.nodes[addr]
	if !exists {
		return
	}

	for precedentAddr := range node.CellPrecedents {
		dg.RemoveCellDependency(addr, precedentAddr)
	}

	for rangeAddr := range node.RangePrecedents {
		dg.RemoveRangeDependency(addr, rangeAddr)
	}
}

// SetFormula sets the formula for a node (creates node if needed)
func (dg *DependencyGraph) SetFormula(addr CellAddress, formula string) {
	node := dg.GetOrCreateNode(addr)
	node.Formula = formula
}

// ClearFormula forgets the formula of a cell, dropping the node when
// nothing else refers to it
func (dg *DependencyGraph) ClearFormula(addr CellAddress) {
	node, exists := dg.nodes[addr]
	if !exists {
		return
	}
	node.Formula = ""
	dg.cleanupNodeIfEmpty(addr)
}

// GetFormula retrieves the formula for a cell
func (dg *DependencyGraph) GetFormula(addr CellAddress) (string, bool) {
	if node, exists := dg.nodes[addr]; exists && node.Formula != "" {
		return node.Formula, true
	}
	return "", false
}

// MarkDirty marks a cell as needing recalculation
func (dg *DependencyGraph) MarkDirty(addr CellAddress) {
	dg.dirtySet[addr] = struct{}{}

	if node, exists := dg.nodes[addr]; exists {
		node.IsDirty = true
	}
}

// IsDirty reports whether a cell is waiting for recalculation
func (dg *DependencyGraph) IsDirty(addr CellAddress) bool {
	_, dirty := dg.dirtySet[addr]
	return dirty
}

// ClearDirty clears the dirty flag for a cell
func (dg *DependencyGraph) ClearDirty(addr CellAddress) {
	delete(dg.dirtySet, addr)

	if node, exists := dg.nodes[addr]; exists {
		node.IsDirty = false
	}
}

// ClearAllDirty clears all dirty flags
func (dg *DependencyGraph) ClearAllDirty() {
	dg.dirtySet = make(map[CellAddress]struct{})

	for _, node := range dg.nodes {
		node.IsDirty = false
	}
}

// DirtyCells returns the dirty cells in row-major order
func (dg *DependencyGraph) DirtyCells() []CellAddress {
	return slices.SortedFunc(maps.Keys(dg.dirtySet), compareAddresses)
}

// GetDirectDependents returns cells directly depending on this cell,
// either by reference or through a range that covers it
func (dg *DependencyGraph) GetDirectDependents(addr CellAddress) []CellAddress {
	seen := make(map[CellAddress]struct{})
	dg.collectDependents(addr, seen)
	return slices.SortedFunc(maps.Keys(seen), compareAddresses)
}

// collectDependents adds the direct dependents of addr to into
func (dg *DependencyGraph) collectDependents(addr CellAddress, into map[CellAddress]struct{}) {
	if node, exists := dg.nodes[addr]; exists {
		for dependentAddr := range node.CellDependents {
			into[dependentAddr] = struct{}{}
		}
	}

	// only ranges spanning the cell's column can cover it
	for rangeAddr := range dg.rangesByColumn[addr.Column] {
		if rangeAddr.Contains(addr) {
			for observerAddr := range dg.rangeObservers[rangeAddr] {
				into[observerAddr] = struct{}{}
			}
		}
	}
}

// GetDirectPrecedents returns cells this cell directly depends on
func (dg *DependencyGraph) GetDirectPrecedents(addr CellAddress) []CellAddress {
	node, exists := dg.nodes[addr]
	if !exists {
		return nil
	}
	return slices.SortedFunc(maps.Keys(node.CellPrecedents), compareAddresses)
}

// GetRangePrecedents returns ranges this cell depends on
func (dg *DependencyGraph) GetRangePrecedents(addr CellAddress) []RangeAddress {
	node, exists := dg.nodes[addr]
	if !exists {
		return nil
	}

	result := make([]RangeAddress, 0, len(node.RangePrecedents))
	for rangeAddr := range node.RangePrecedents {
		result = append(result, rangeAddr)
	}
	slices.SortFunc(result, func(a, b RangeAddress) int {
		if c := compareAddresses(
			CellAddress{Row: a.StartRow, Column: a.StartColumn},
			CellAddress{Row: b.StartRow, Column: b.StartColumn},
		); c != 0 {
			return c
		}
		return compareAddresses(
			CellAddress{Row: a.EndRow, Column: a.EndColumn},
			CellAddress{Row: b.EndRow, Column: b.EndColumn},
		)
	})
	return result
}

// GetAffectedCells returns all cells that need recalculation when a
// cell changes: the transitive closure over cell dependents and range
// observers. the changed cell itself is not included
func (dg *DependencyGraph) GetAffectedCells(addr CellAddress) []CellAddress {
	visited := map[CellAddress]struct{}{addr: {}}
	queue := []CellAddress{addr}

	direct := make(map[CellAddress]struct{})
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		clear(direct)
		dg.collectDependents(current, direct)
		for dependentAddr := range direct {
			if _, alreadyVisited := visited[dependentAddr]; alreadyVisited {
				continue
			}
			visited[dependentAddr] = struct{}{}
			queue = append(queue, dependentAddr)
		}
	}

	delete(visited, addr)
	return slices.SortedFunc(maps.Keys(visited), compareAddresses)
}

// CalculationOrder orders the given cells so every cell comes after the
// cells it depends on. cells on a dependency cycle cannot be ordered, they
// are returned in cyclic and still appear in the order. dependencies on
// cells outside the set are treated as already calculated
func (dg *DependencyGraph) CalculationOrder(cells []CellAddress) ([]CellAddress, map[CellAddress]struct{}) {
	inSet := make(map[CellAddress]struct{}, len(cells))
	for _, addr := range cells {
		inSet[addr] = struct{}{}
	}
	members := newColumnIndex(cells)

	// tarjan's strongly connected components. components are emitted after
	// everything they depend on, which is exactly calculation order
	index := make(map[CellAddress]int, len(cells))
	lowlink := make(map[CellAddress]int, len(cells))
	onStack := make(map[CellAddress]bool, len(cells))
	var stack []CellAddress
	order := make([]CellAddress, 0, len(cells))
	cyclic := make(map[CellAddress]struct{})
	next := 0

	var strongConnect func(v CellAddress)
	strongConnect = func(v CellAddress) {
		index[v] = next
		lowlink[v] = next
		next++
		stack = append(stack, v)
		onStack[v] = true

		selfLoop := false
		for _, w := range dg.precedentsWithin(v, members, inSet) {
			if w == v {
				selfLoop = true
				continue
			}
			if _, visited := index[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], index[w])
			}
		}

		if lowlink[v] != index[v] {
			return
		}

		var component []CellAddress
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			component = append(component, w)
			if w == v {
				break
			}
		}

		if len(component) > 1 || selfLoop {
			for _, addr := range component {
				cyclic[addr] = struct{}{}
			}
		}
		slices.SortFunc(component, compareAddresses)
		order = append(order, component...)
	}

	sorted := slices.Clone(cells)
	slices.SortFunc(sorted, compareAddresses)
	for _, addr := range sorted {
		if _, visited := index[addr]; !visited {
			strongConnect(addr)
		}
	}

	return order, cyclic
}

// precedentsWithin returns the precedents of addr that are members of the
// set, including members covered by one of its ranges
func (dg *DependencyGraph) precedentsWithin(addr CellAddress, members columnIndex, inSet map[CellAddress]struct{}) []CellAddress {
	node, exists := dg.nodes[addr]
	if !exists {
		return nil
	}

	found := make(map[CellAddress]struct{})
	for precedentAddr := range node.CellPrecedents {
		if _, ok := inSet[precedentAddr]; ok {
			found[precedentAddr] = struct{}{}
		}
	}
	for rangeAddr := range node.RangePrecedents {
		for member := range members.within(rangeAddr) {
			found[member] = struct{}{}
		}
	}

	return slices.SortedFunc(maps.Keys(found), compareAddresses)
}

// HasCycle checks if there are circular dependencies among formula cells
func (dg *DependencyGraph) HasCycle() bool {
	_, cyclic := dg.CalculationOrder(slices.Collect(maps.Keys(dg.nodes)))
	return len(cyclic) > 0
}

// NodeCount returns the number of nodes in the graph
func (dg *DependencyGraph) NodeCount() int {
	return len(dg.nodes)
}

// RangeObserverCount returns the number of observed ranges
func (dg *DependencyGraph) RangeObserverCount() int {
	return len(dg.rangeObservers)
}

// Clear removes all nodes and dependencies from the graph
func (dg *DependencyGraph) Clear() {
	dg.nodes = make(map[CellAddress]*DependencyNode)
	dg.rangeObservers = make(map[RangeAddress]map[CellAddress]struct{})
	dg.rangesByColumn = make(map[uint32]map[RangeAddress]struct{})
	dg.dirtySet = make(map[CellAddress]struct{})
}
