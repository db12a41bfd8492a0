package spreadsheet

import (
	"fmt"
	"strconv"
	"strings"
	"testing"
)

func BenchmarkLargeCellPopulation(b *testing.B) {
	for i := 0; i < b.N; i++ {
		s := NewSheet(WithColumns(MaxColumns), WithInitialRows(100))

		for row := 1; row <= 100; row++ {
			for col := 0; col < MaxColumns; col++ {
				addr := fmt.Sprintf("%s%d", ColumnName(uint32(col)), row)
				s.Set(addr, strconv.Itoa(row*(col+1)))
			}
		}
	}
}

func BenchmarkFormulaDependencyChain(b *testing.B) {
	s := NewSheet(WithInitialRows(100))

	s.Set("A1", "1")
	for i := 2; i <= 100; i++ {
		s.Set(fmt.Sprintf("A%d", i), fmt.Sprintf("=A%d+1", i-1))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Set("A1", strconv.Itoa(i))
	}
}

func BenchmarkWideDependencyFanOut(b *testing.B) {
	s := NewSheet(WithInitialRows(500))

	s.Set("A1", "100")
	for i := 2; i <= 500; i++ {
		s.Set(fmt.Sprintf("B%d", i), "=A1*2")
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Set("A1", strconv.Itoa(i))
	}
}

func BenchmarkLargeRangeSUM(b *testing.B) {
	s := NewSheet(WithInitialRows(1000))

	for i := 1; i <= 1000; i++ {
		s.Set(fmt.Sprintf("A%d", i), strconv.Itoa(i))
	}
	s.Set("B1", "=SUM(A1:A1000)")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Set("A500", strconv.Itoa(i))
	}
}

func BenchmarkComplexNestedFormulas(b *testing.B) {
	s := NewSheet()

	for i := 1; i <= 20; i++ {
		s.Set(fmt.Sprintf("A%d", i), strconv.Itoa(i))
		s.Set(fmt.Sprintf("B%d", i), strconv.Itoa(i*2))
	}
	s.Set("C1", "=SUM(A1:A20)*AVERAGE(B1:B20)-MAX(A1:B20)/(MIN(A1:A20)+1)")
	s.Set("C2", "=(C1+SUM(A1:B10))/-(A3-A5)")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Recalculate()
	}
}

func BenchmarkParseFormula(b *testing.B) {
	ctx := &ParserContext{Columns: DefaultColumns, Current: MustParseAddress("J20")}
	for i := 0; i < b.N; i++ {
		ParseFormula("=SUM(A1:A10)*2+AVERAGE(B1:B10)/(C3-D4)", ctx)
	}
}

func BenchmarkLongFormula(b *testing.B) {
	s := NewSheet()
	sum := "=" + strings.Repeat("A2+", 100_000) + "1"
	signs := "=" + strings.Repeat("-", 100_000) + "A2"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Set("A1", sum)
		s.Set("B1", signs)
	}
}

func BenchmarkGrowingRangeFanOut(b *testing.B) {
	const n = 20_000
	s := NewSheet(WithInitialRows(n))

	s.Set("A1", "1")
	for i := 1; i <= n; i++ {
		s.Set(fmt.Sprintf("B%d", i), fmt.Sprintf("=SUM(A1:A%d)", i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Set("A1", strconv.Itoa(i))
	}
}
