package spreadsheet

// ASTKey represents a normalized AST used as a key for formula deduplication,
// two formulas with the same structure (ignoring whitespace and letter case)
// will have the same ASTKey. we use a string key because ASTs are not
// comparable
type ASTKey string

// FormulaTable stores parsed formulas centrally and tracks which cells use
// them. cells whose formula failed to parse keep the parse error instead
type FormulaTable struct {
	// core formula storage

	astIndex  map[ASTKey]uint32  // normalized AST -> formula ID
	astCache  map[uint32]ASTNode // formula ID -> cached parsed AST
	astKeys   map[uint32]ASTKey  // formula ID -> its key in astIndex
	refCounts map[uint32]int     // formula ID -> reference count

	// cell tracking

	cellsUsingFormula map[uint32]map[CellAddress]struct{} // formula ID -> cells using it
	formulaAtCell     map[CellAddress]uint32              // cell -> formula ID (reverse index)
	parseErrors       map[CellAddress]*SpreadsheetError   // cell -> why its formula did not parse

	nextID uint32
}

// NewFormulaTable creates a new formula table
func NewFormulaTable() *FormulaTable {
	return &FormulaTable{
		astIndex:          make(map[ASTKey]uint32),
		astCache:          make(map[uint32]ASTNode),
		astKeys:           make(map[uint32]ASTKey),
		refCounts:         make(map[uint32]int),
		cellsUsingFormula: make(map[uint32]map[CellAddress]struct{}),
		formulaAtCell:     make(map[CellAddress]uint32),
		parseErrors:       make(map[CellAddress]*SpreadsheetError),
		nextID:            1, // start at 1, reserve 0 for no formula
	}
}

// normalizeAST converts an AST to its normalized string representation
func (ft *FormulaTable) normalizeAST(ast ASTNode) ASTKey {
	if ast == nil {
		return ""
	}
	return ASTKey(ast.ToString())
}

// InternFormula adds a formula or increments its reference count if it
// already exists, and binds it to the cell. returns the formula ID
func (ft *FormulaTable) InternFormula(ast ASTNode, cell CellAddress) uint32 {
	ft.RemoveCell(cell)
	key := ft.normalizeAST(ast)

	id, exists := ft.astIndex[key]
	if !exists {
		id = ft.nextID
		ft.astIndex[key] = id
		ft.astCache[id] = ast
		ft.astKeys[id] = key
		ft.nextID++
	}

	ft.refCounts[id]++
	if ft.cellsUsingFormula[id] == nil {
		ft.cellsUsingFormula[id] = make(map[CellAddress]struct{})
	}
	ft.cellsUsingFormula[id][cell] = struct{}{}
	ft.formulaAtCell[cell] = id

	return id
}

// SetParseError records that the cell holds a formula that did not parse
func (ft *FormulaTable) SetParseError(cell CellAddress, err *SpreadsheetError) {
	ft.RemoveCell(cell)
	ft.parseErrors[cell] = err
}

// Lookup returns the AST bound to a cell, or the parse error recorded for
// it. ok is false when the cell has no formula at all
func (ft *FormulaTable) Lookup(cell CellAddress) (ast ASTNode, parseErr *SpreadsheetError, ok bool) {
	if err, exists := ft.parseErrors[cell]; exists {
		return nil, err, true
	}
	id, exists := ft.formulaAtCell[cell]
	if !exists {
		return nil, nil, false
	}
	return ft.astCache[id], nil, true
}

// RemoveCell unbinds whatever formula the cell had. returns true if the
// formula was dropped because no other cell uses it
func (ft *FormulaTable) RemoveCell(cell CellAddress) bool {
	delete(ft.parseErrors, cell)

	formulaID, exists := ft.formulaAtCell[cell]
	if !exists {
		return false
	}

	if cells, exists := ft.cellsUsingFormula[formulaID]; exists {
		delete(cells, cell)
		if len(cells) == 0 {
			delete(ft.cellsUsingFormula, formulaID)
		}
	}
	delete(ft.formulaAtCell, cell)

	ft.refCounts[formulaID]--
	if ft.refCounts[formulaID] <= 0 {
		ft.removeFormula(formulaID)
		return true
	}
	return false
}

// removeFormula removes a formula and all its tracking data
func (ft *FormulaTable) removeFormula(formulaID uint32) {
	if key, exists := ft.astKeys[formulaID]; exists {
		delete(ft.astIndex, key)
	}
	delete(ft.astKeys, formulaID)
	delete(ft.astCache, formulaID)
	delete(ft.refCounts, formulaID)
	delete(ft.cellsUsingFormula, formulaID)
}

// GetFormulaAtCell returns the formula ID used by a cell
func (ft *FormulaTable) GetFormulaAtCell(cell CellAddress) (uint32, bool) {
	id, exists := ft.formulaAtCell[cell]
	return id, exists
}

// GetReferenceCount returns how many cells use a formula
func (ft *FormulaTable) GetReferenceCount(id uint32) int {
	return ft.refCounts[id]
}

// FormulaCells returns every cell holding a formula, parsed or not
func (ft *FormulaTable) FormulaCells() []CellAddress {
	result := make([]CellAddress, 0, len(ft.formulaAtCell)+len(ft.parseErrors))
	for cell := range ft.formulaAtCell {
		result = append(result, cell)
	}
	for cell := range ft.parseErrors {
		result = append(result, cell)
	}
	return result
}

// Count returns the number of distinct formulas
func (ft *FormulaTable) Count() int {
	return len(ft.astCache)
}

// Clear removes all formulas
func (ft *FormulaTable) Clear() {
	ft.astIndex = make(map[ASTKey]uint32)
	ft.astCache = make(map[uint32]ASTNode)
	ft.astKeys = make(map[uint32]ASTKey)
	ft.refCounts = make(map[uint32]int)
	ft.cellsUsingFormula = make(map[uint32]map[CellAddress]struct{})
	ft.formulaAtCell = make(map[CellAddress]uint32)
	ft.parseErrors = make(map[CellAddress]*SpreadsheetError)
	ft.nextID = 1
}
