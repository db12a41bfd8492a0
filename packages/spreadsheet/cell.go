package spreadsheet

import (
	"math"
	"strconv"
)

// Primitive represents a cell display value.
// types:
//   - float64: result of a formula
//   - string: literal raw input, "" for empty cells
//   - *SpreadsheetError: a formula that could not be evaluated
type Primitive any

// ErrorMarker is what every SpreadsheetError renders as in the grid
const ErrorMarker = "#ERROR"

// ErrorCode records why a formula failed. all codes render as ErrorMarker,
// the code and message are kept for diagnostics
type ErrorCode uint8

const (
	ErrorCodeValue    ErrorCode = 1 // malformed formula or operand
	ErrorCodeDiv0     ErrorCode = 2 // division by zero
	ErrorCodeRef      ErrorCode = 3 // reference outside the grid, or to the cell itself
	ErrorCodeName     ErrorCode = 4 // unknown function or identifier
	ErrorCodeNum      ErrorCode = 5 // result is NaN or infinite
	ErrorCodeCircular ErrorCode = 6 // cell is part of a reference cycle
)

// ErrorMapper maps error codes to short diagnostic names
var ErrorMapper = map[ErrorCode]string{
	ErrorCodeValue:    "#VALUE!",
	ErrorCodeDiv0:     "#DIV/0!",
	ErrorCodeRef:      "#REF!",
	ErrorCodeName:     "#NAME?",
	ErrorCodeNum:      "#NUM!",
	ErrorCodeCircular: "#CIRCULAR!",
}

// SpreadsheetError is stored as a cell display value when evaluation fails
type SpreadsheetError struct {
	ErrorCode ErrorCode
	Message   string
}

func (e *SpreadsheetError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return ErrorMapper[e.ErrorCode]
}

// String returns the grid rendering of the error
func (e *SpreadsheetError) String() string {
	return ErrorMarker
}

func NewSpreadsheetError(code ErrorCode, message string) *SpreadsheetError {
	if message == "" {
		message = ErrorMapper[code]
	}
	return &SpreadsheetError{
		ErrorCode: code,
		Message:   message,
	}
}

// CellAddress is a zero-based grid coordinate. the canonical text form
// is produced by String, e.g. {Row: 6, Column: 2} is "C7"
type CellAddress struct {
	Row    uint32
	Column uint32
}

// Cell is the record held by the grid for one address
type Cell struct {
	Address  CellAddress
	RawInput string    // exactly what the user typed
	Display  Primitive // computed value shown in the grid
}

// IsFormula reports whether the raw input starts with the formula marker
func (c Cell) IsFormula() bool {
	return isFormula(c.RawInput)
}

// IsEmpty reports whether nothing was typed into the cell
func (c Cell) IsEmpty() bool {
	return c.RawInput == ""
}

// Err returns the evaluation error, or nil when the cell has a value
func (c Cell) Err() *SpreadsheetError {
	if err, ok := c.Display.(*SpreadsheetError); ok {
		return err
	}
	return nil
}

// DisplayString renders the display value the way the grid shows it
func (c Cell) DisplayString() string {
	return formatPrimitive(c.Display)
}

// Number returns the numeric value other formulas see for this cell. the
// display is preferred, falling back to the raw input. ok is false when
// neither holds a number
func (c Cell) Number() (float64, bool) {
	switch v := c.Display.(type) {
	case float64:
		return v, true
	case *SpreadsheetError:
		return 0, false
	case string:
		if v == "" {
			return parseLeadingFloat(c.RawInput)
		}
		return parseLeadingFloat(v)
	default:
		return parseLeadingFloat(c.RawInput)
	}
}

func isFormula(raw string) bool {
	return len(raw) > 0 && raw[0] == '='
}

// formatPrimitive renders a display value as text
func formatPrimitive(value Primitive) string {
	switch v := value.(type) {
	case nil:
		return ""
	case float64:
		return formatNumber(v)
	case string:
		return v
	case *SpreadsheetError:
		return ErrorMarker
	default:
		return ""
	}
}

// formatNumber prints integers without a fraction and everything else in
// the shortest representation that round-trips
func formatNumber(v float64) string {
	abs := math.Abs(v)
	if abs != 0 && (abs >= 1e21 || abs < 1e-6) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// parseLeadingFloat reads the longest numeric prefix of s, after leading
// whitespace: an optional sign, digits with an optional fraction, and an
// optional exponent. "12abc" is 12, "abc" is not a number
func parseLeadingFloat(s string) (float64, bool) {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	start := i
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}

	digits := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
			digits++
		}
	}
	if digits == 0 {
		return 0, false
	}

	// exponent only counts when at least one digit follows
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if j < len(s) && s[j] >= '0' && s[j] <= '9' {
			for j < len(s) && s[j] >= '0' && s[j] <= '9' {
				j++
			}
			i = j
		}
	}

	num, err := strconv.ParseFloat(s[start:i], 64)
	if err != nil {
		// only overflow gets here, e.g. "1e999"
		return 0, false
	}
	return num, true
}
