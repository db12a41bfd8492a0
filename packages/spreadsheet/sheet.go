package spreadsheet

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
)

// AppErrorCode represents gRPC-style error codes for application-level errors.
// note that we are skipping error codes that don't make sense for our use-case,
// like unauthenticated, or permission denied.
type AppErrorCode int

const (
	// InvalidArgument indicates client specified an invalid argument, e.g. a
	// malformed address or a document that does not decode.
	InvalidArgument AppErrorCode = 3

	// FailedPrecondition indicates operation was rejected because the
	// system is not in a state required for the operation's execution.
	FailedPrecondition AppErrorCode = 9

	// OutOfRange means operation was attempted past the valid range, e.g. a
	// row that has not been appended yet.
	OutOfRange AppErrorCode = 11

	// Internal errors. Means some invariants expected by underlying
	// system has been broken.
	Internal AppErrorCode = 13
)

// AppError represents errors at the application level (not
// spreadsheet formula errors)
type AppError struct {
	Code    AppErrorCode
	Message string
}

func (e *AppError) Error() string {
	return e.Message
}

// NewApplicationError creates a new application error
func NewApplicationError(code AppErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// IsAppErrorCode reports whether err is an *AppError with the given code
func IsAppErrorCode(err error, code AppErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// Sheet combines the grid, parsing, dependency tracking and formula
// evaluation into a single synchronous API. a Sheet is not safe for
// concurrent use, callers serialize access
type Sheet struct {
	grid        *Grid
	graph       *DependencyGraph
	formulas    *FormulaTable
	functions   *BuiltInFunctions
	logger      *zap.Logger
	initialRows int
}

// Option configures a Sheet
type Option func(*Sheet)

// WithColumns sets the column count, 1..MaxColumns. other values are ignored
func WithColumns(n int) Option {
	return func(s *Sheet) {
		if n >= 1 && n <= MaxColumns {
			s.grid.columns = n
		}
	}
}

// WithInitialRows sets the row count of a fresh or imported sheet
func WithInitialRows(n int) Option {
	return func(s *Sheet) {
		if n >= 1 && n <= MaxRows {
			s.initialRows = n
			s.grid.rows = n
		}
	}
}

// WithLogger sets the logger used for recalculation diagnostics
func WithLogger(logger *zap.Logger) Option {
	return func(s *Sheet) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSheet creates an empty sheet, DefaultColumns x DefaultInitialRows
// unless configured otherwise
func NewSheet(opts ...Option) *Sheet {
	s := &Sheet{
		grid:        NewGrid(DefaultColumns, DefaultInitialRows),
		graph:       NewDependencyGraph(),
		formulas:    NewFormulaTable(),
		functions:   NewDefaultBuiltInFunctions(),
		logger:      zap.NewNop(),
		initialRows: DefaultInitialRows,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type SheetInterface interface {
	// cell methods

	Get(address string) (Cell, error)
	Set(address string, rawInput string) error

	// grid methods

	AppendRow()
	Clear()
	Rows() int
	Columns() int

	// common methods

	Calculate() error
	Recalculate() error
}

var _ SheetInterface = (*Sheet)(nil)

// resolveAddress parses an address against this sheet's column alphabet
func (s *Sheet) resolveAddress(address string) (CellAddress, error) {
	return ParseAddress(address, s.grid.Columns())
}

// Get retrieves a cell. addresses that were never written read as empty
func (s *Sheet) Get(address string) (Cell, error) {
	addr, err := s.resolveAddress(address)
	if err != nil {
		return Cell{}, err
	}
	return s.grid.Get(addr), nil
}

// GetCell retrieves a cell by coordinate
func (s *Sheet) GetCell(addr CellAddress) Cell {
	return s.grid.Get(addr)
}

// Set stores the raw input of a cell and brings its display, and the
// display of every cell depending on it, up to date before returning
func (s *Sheet) Set(address string, rawInput string) error {
	addr, err := s.resolveAddress(address)
	if err != nil {
		return err
	}
	return s.SetCell(addr, rawInput)
}

// SetCell is Set by coordinate
func (s *Sheet) SetCell(addr CellAddress, rawInput string) error {
	if int(addr.Column) >= s.grid.Columns() {
		return NewApplicationError(InvalidArgument, fmt.Sprintf("column %d is outside the grid", addr.Column))
	}
	if !s.grid.Contains(addr) {
		return NewApplicationError(OutOfRange, fmt.Sprintf("%s is beyond row %d", addr, s.grid.Rows()))
	}

	s.define(addr, rawInput)
	for _, dep := range s.graph.GetAffectedCells(addr) {
		s.graph.MarkDirty(dep)
	}

	return s.Calculate()
}

// define writes the raw input, parses it and rebuilds the cell's edges in
// the dependency graph. the cell is left dirty
func (s *Sheet) define(addr CellAddress, rawInput string) {
	s.grid.SetCell(addr, rawInput)
	s.graph.ClearDependencies(addr)

	if !isFormula(rawInput) {
		s.formulas.RemoveCell(addr)
		s.graph.ClearFormula(addr)
		s.graph.MarkDirty(addr)
		return
	}

	s.graph.SetFormula(addr, rawInput)
	ast, err := ParseFormula(rawInput, &ParserContext{
		Columns: s.grid.Columns(),
		Current: addr,
	})
	if err != nil {
		s.formulas.SetParseError(addr, toSpreadsheetError(err))
	} else {
		s.formulas.InternFormula(ast, addr)
		s.extractDependencies(ast, addr)
	}
	s.graph.MarkDirty(addr)
}

// extractDependencies records every reference in the AST as an edge
func (s *Sheet) extractDependencies(node ASTNode, cellAddr CellAddress) {
	switch n := node.(type) {
	case *CellRefNode:
		s.graph.AddCellDependency(cellAddr, n.Address)

	case *RangeNode:
		s.graph.AddRangeDependency(cellAddr, n.Range)

	case *BinaryOpNode:
		s.extractDependencies(n.Left, cellAddr)
		s.extractDependencies(n.Right, cellAddr)

	case *UnaryOpNode:
		s.extractDependencies(n.Operand, cellAddr)

	case *FunctionCallNode:
		for _, arg := range n.Args {
			s.extractDependencies(arg, cellAddr)
		}

	case *NumberNode:
		// literal nodes don't have dependencies
	}
}

// Calculate evaluates every dirty cell after the cells it depends on. cells
// on a reference cycle get a circular error
func (s *Sheet) Calculate() error {
	dirtyCells := s.graph.DirtyCells()
	if len(dirtyCells) == 0 {
		return nil
	}

	order, cyclic := s.graph.CalculationOrder(dirtyCells)
	for _, cellAddr := range order {
		if _, isCyclic := cyclic[cellAddr]; isCyclic {
			s.grid.SetFormulaResult(cellAddr, NewSpreadsheetError(ErrorCodeCircular, "circular reference"))
			continue
		}
		s.calculateCell(cellAddr)
	}

	s.graph.ClearAllDirty()

	s.logger.Debug("recalculated cells",
		zap.Int("cells", len(order)),
		zap.Int("cyclic", len(cyclic)))
	return nil
}

// Recalculate re-evaluates every formula cell
func (s *Sheet) Recalculate() error {
	for _, addr := range s.formulas.FormulaCells() {
		s.graph.MarkDirty(addr)
	}
	return s.Calculate()
}

// calculateCell evaluates a single cell and stores its display value. no
// failure escapes, it is stored in the cell instead
func (s *Sheet) calculateCell(cellAddr CellAddress) {
	cell := s.grid.Get(cellAddr)
	if !cell.IsFormula() {
		s.grid.SetFormulaResult(cellAddr, cell.RawInput)
		return
	}

	ast, parseErr, ok := s.formulas.Lookup(cellAddr)
	if !ok {
		s.grid.SetFormulaResult(cellAddr, NewSpreadsheetError(ErrorCodeValue, "formula was never parsed"))
		return
	}
	if parseErr != nil {
		s.grid.SetFormulaResult(cellAddr, parseErr)
		return
	}

	result, err := ast.Eval(s)
	if err != nil {
		s.grid.SetFormulaResult(cellAddr, toSpreadsheetError(err))
		return
	}
	if math.IsNaN(result) || math.IsInf(result, 0) {
		s.grid.SetFormulaResult(cellAddr, NewSpreadsheetError(ErrorCodeNum, "result is not a finite number"))
		return
	}

	s.grid.SetFormulaResult(cellAddr, result)
}

// AppendRow adds one empty row at the bottom of the grid
func (s *Sheet) AppendRow() {
	s.grid.AppendRow()
}

// Clear empties every cell. the row and column extent is kept
func (s *Sheet) Clear() {
	s.grid.Clear()
	s.graph.Clear()
	s.formulas.Clear()
}

// Rows returns the addressable row count
func (s *Sheet) Rows() int {
	return s.grid.Rows()
}

// Columns returns the column count
func (s *Sheet) Columns() int {
	return s.grid.Columns()
}

// Cells returns the non-empty cells in row-major order
func (s *Sheet) Cells() []Cell {
	return s.grid.SortedCells()
}

// Dependents returns the cells whose formulas reference the address
// directly, by cell or through a range
func (s *Sheet) Dependents(address string) ([]CellAddress, error) {
	addr, err := s.resolveAddress(address)
	if err != nil {
		return nil, err
	}
	return s.graph.GetDirectDependents(addr), nil
}

// Precedents returns the cells and ranges the formula at address references
func (s *Sheet) Precedents(address string) ([]CellAddress, []RangeAddress, error) {
	addr, err := s.resolveAddress(address)
	if err != nil {
		return nil, nil, err
	}
	return s.graph.GetDirectPrecedents(addr), s.graph.GetRangePrecedents(addr), nil
}

// GetDependencyGraph exposes the graph for diagnostics
func (s *Sheet) GetDependencyGraph() *DependencyGraph {
	return s.graph
}

// toSpreadsheetError converts an evaluation failure into a cell error
func toSpreadsheetError(err error) *SpreadsheetError {
	var spreadsheetErr *SpreadsheetError
	if errors.As(err, &spreadsheetErr) {
		return spreadsheetErr
	}
	return NewSpreadsheetError(ErrorCodeValue, err.Error())
}
