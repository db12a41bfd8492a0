package spreadsheet

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	DefaultColumns     = 10      // A..J
	MaxColumns         = 26      // A..Z
	DefaultInitialRows = 20      // rows present before any AppendRow
	MaxRows            = 1 << 20 // largest addressable row, 1-based
)

// ColumnName returns the letter for a zero-based column index
func ColumnName(col uint32) string {
	if col >= MaxColumns {
		return ""
	}
	return string(rune('A' + col))
}

// String returns the canonical address, e.g. "C7"
func (a CellAddress) String() string {
	return ColumnName(a.Column) + strconv.FormatUint(uint64(a.Row)+1, 10)
}

// ParseAddress resolves a textual address like "c7" against a grid that
// has the given number of columns. the letter is case-insensitive
func ParseAddress(address string, columns int) (CellAddress, error) {
	lexer := NewLexerForReference(strings.TrimSpace(address))
	tokens, lexErrors := lexer.Tokenize()
	if len(lexErrors) > 0 {
		return CellAddress{}, NewApplicationError(InvalidArgument, fmt.Sprintf("invalid address %q: %s", address, lexErrors[0]))
	}

	addr, err := parseCellAddress(tokens[0].Value, columns)
	if err != nil {
		return CellAddress{}, NewApplicationError(InvalidArgument, fmt.Sprintf("invalid address %q: %v", address, err))
	}
	return addr, nil
}

// MustParseAddress is ParseAddress for literals known to be valid
func MustParseAddress(address string) CellAddress {
	addr, err := ParseAddress(address, MaxColumns)
	if err != nil {
		panic(err)
	}
	return addr
}

// parseCellAddress parses a cell address like "A1" into zero-based
// coordinates. only single letter columns inside the grid are valid
func parseCellAddress(cell string, columns int) (CellAddress, error) {
	letters, rowStr, ok := splitCellRef(cell)
	if !ok {
		return CellAddress{}, NewSpreadsheetError(ErrorCodeRef, fmt.Sprintf("invalid cell reference: %s", cell))
	}

	colStr := strings.ToUpper(letters)
	if len(colStr) != 1 || int(colStr[0]-'A') >= columns {
		return CellAddress{}, NewSpreadsheetError(ErrorCodeRef, fmt.Sprintf("column out of range: %s", colStr))
	}

	rowNum, err := strconv.ParseInt(rowStr, 10, 64)
	if err != nil || rowNum > MaxRows {
		return CellAddress{}, NewSpreadsheetError(ErrorCodeRef, fmt.Sprintf("row out of range: %s", rowStr))
	}

	if rowNum < 1 {
		return CellAddress{}, NewSpreadsheetError(ErrorCodeRef, fmt.Sprintf("row number must be positive: %d", rowNum))
	}

	return CellAddress{
		Row:    uint32(rowNum - 1),
		Column: uint32(colStr[0] - 'A'),
	}, nil
}
