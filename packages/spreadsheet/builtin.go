package spreadsheet

import (
	"fmt"
	"iter"
	"math"
	"strings"
)

// BuiltInFunctions contains the range functions available in formulas.
// each takes one range and reduces the numeric cells inside it. cells that
// are empty, non-numeric or show an error are left out of the reduction,
// and a reduction over nothing is 0
type BuiltInFunctions struct{}

// builtInNames is the function surface recognized by the parser
var builtInNames = map[string]struct{}{
	"SUM":     {},
	"AVERAGE": {},
	"MIN":     {},
	"MAX":     {},
}

// NewDefaultBuiltInFunctions creates a BuiltInFunctions
func NewDefaultBuiltInFunctions() *BuiltInFunctions {
	return &BuiltInFunctions{}
}

// Call invokes a built-in function by name
func (bf *BuiltInFunctions) Call(name string, r Range) (float64, error) {
	switch strings.ToUpper(name) {
	case "SUM":
		return bf.SUM(r)
	case "AVERAGE":
		return bf.AVERAGE(r)
	case "MAX":
		return bf.MAX(r)
	case "MIN":
		return bf.MIN(r)
	default:
		return 0, NewSpreadsheetError(ErrorCodeName, fmt.Sprintf("Unknown function: %s", name))
	}
}

func (bf *BuiltInFunctions) SUM(r Range) (float64, error) {
	sum := 0.0
	for num := range numbersIn(r) {
		sum += num
	}
	return sum, nil
}

func (bf *BuiltInFunctions) AVERAGE(r Range) (float64, error) {
	sum := 0.0
	count := 0
	for num := range numbersIn(r) {
		sum += num
		count++
	}
	if count == 0 {
		return 0, nil
	}
	return sum / float64(count), nil
}

func (bf *BuiltInFunctions) MAX(r Range) (float64, error) {
	max := math.Inf(-1)
	hasValues := false
	for num := range numbersIn(r) {
		if num > max {
			max = num
		}
		hasValues = true
	}
	if hasValues {
		return max, nil
	}
	return 0, nil
}

func (bf *BuiltInFunctions) MIN(r Range) (float64, error) {
	min := math.Inf(1)
	hasValues := false
	for num := range numbersIn(r) {
		if num < min {
			min = num
		}
		hasValues = true
	}
	if hasValues {
		return min, nil
	}
	return 0, nil
}

// numbersIn yields the numeric value of every cell in the range that has one
func numbersIn(r Range) iter.Seq[float64] {
	return func(yield func(float64) bool) {
		for cell := range r.Iterate() {
			num, ok := cell.Number()
			if !ok || math.IsNaN(num) {
				continue
			}
			if !yield(num) {
				return
			}
		}
	}
}

func isBuiltInFunction(name string) bool {
	_, ok := builtInNames[strings.ToUpper(name)]
	return ok
}
