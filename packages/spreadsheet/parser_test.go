package spreadsheet

import (
	"testing"
)

func createTestContext() *ParserContext {
	// far corner, so no formula below refers to itself
	return &ParserContext{
		Columns: DefaultColumns,
		Current: CellAddress{Row: DefaultInitialRows - 1, Column: DefaultColumns - 1},
	}
}

func parseFormula(formula string) bool {
	_, err := ParseFormula(formula, createTestContext())
	return err == nil
}

func TestParserBasicFormulas(t *testing.T) {
	validFormulas := []string{
		"=1+2",
		"=A1",
		"=a1",
		"=SUM(A1:A10)",
		"=SUM(B2:A1)",
		"=SUM(A1:A1)",
		"=sum(a1:i19)",
		"=AVERAGE(A1:I19)",
		"=MIN(A1:A2)+MAX(B1:B2)",
		"=-A1",
		"=+A1",
		"=1.5e3*(A1-B2)/C3",
		"= 1 + 2 ",
		"=((1))",
		"=SUM(A1:A2)*(2+MAX(B1:B9))",
		"=A100000",
		"=.5+5.",
	}

	for _, formula := range validFormulas {
		if !parseFormula(formula) {
			t.Errorf("Expected formula to parse successfully: %s", formula)
		}
	}
}

func TestParserInvalidFormulas(t *testing.T) {
	invalidFormulas := []string{
		"",
		"5",
		"=",
		"=SUM(",
		"=SUM()",
		"=SUM(A1)",
		"=SUM(A1:A2,B1:B2)",
		"=SUM(A1:A2",
		"=A1:",
		"=A1:B2",
		"=1+",
		"=*2",
		"=(1+2",
		"=1+2)",
		"=()",
		`="hello"`,
		"=1 2",
		"=2^3",
		"=1=1",
		"=A1 B1",
		"=12abc",
		"=FOO(A1:A2)",
		"=foo",
		"=K1",
		"=A0",
		"=AA1",
		"=J20",
		"=SUM(J1:J20)",
		"=SUM(A1:Z1)",
		"=A1048577",
	}

	for _, formula := range invalidFormulas {
		if parseFormula(formula) {
			t.Errorf("Expected formula to fail parsing: %s", formula)
		}
	}
}

func TestParserErrorCodes(t *testing.T) {
	cases := map[string]ErrorCode{
		"=FOO(A1:A2)":   ErrorCodeName,
		"=foo":          ErrorCodeName,
		"=K1":           ErrorCodeRef,
		"=A0":           ErrorCodeRef,
		"=J20":          ErrorCodeRef,
		"=SUM(J1:J20)":  ErrorCodeRef,
		"=1+":           ErrorCodeValue,
		"=SUM(A1)":      ErrorCodeValue,
		"=A1:B2":        ErrorCodeValue,
		`="text"`:       ErrorCodeValue,
		"=SUM(A1:A2":    ErrorCodeValue,
		"=MAX(A1:A2)))": ErrorCodeValue,
	}

	for formula, want := range cases {
		_, err := ParseFormula(formula, createTestContext())
		if err == nil {
			t.Errorf("%s: expected error", formula)
			continue
		}
		spreadsheetErr, ok := err.(*SpreadsheetError)
		if !ok {
			t.Errorf("%s: got %T, want *SpreadsheetError", formula, err)
			continue
		}
		if spreadsheetErr.ErrorCode != want {
			t.Errorf("%s: got %s, want %s", formula, ErrorMapper[spreadsheetErr.ErrorCode], ErrorMapper[want])
		}
	}
}

func TestParserNormalization(t *testing.T) {
	t.Run("EquivalentFormulasShareKey", func(t *testing.T) {
		pairs := [][2]string{
			{"=A1*2", "= a1 * 2"},
			{"=SUM(A1:B2)", "=sum(b2:a1)"},
			{"=SUM(A2:B1)", "=SUM(A1:B2)"},
			{"=1+2*3", "=1+(2*3)"},
		}
		for _, pair := range pairs {
			left, err := ParseFormula(pair[0], createTestContext())
			if err != nil {
				t.Fatalf("%s: %v", pair[0], err)
			}
			right, err := ParseFormula(pair[1], createTestContext())
			if err != nil {
				t.Fatalf("%s: %v", pair[1], err)
			}
			if left.ToString() != right.ToString() {
				t.Errorf("%s and %s normalize differently: %s vs %s", pair[0], pair[1], left.ToString(), right.ToString())
			}
		}
	})

	t.Run("DifferentFormulasDiffer", func(t *testing.T) {
		left, _ := ParseFormula("=(1+2)*3", createTestContext())
		right, _ := ParseFormula("=1+2*3", createTestContext())
		if left.ToString() == right.ToString() {
			t.Errorf("precedence lost: both normalize to %s", left.ToString())
		}
	})

	t.Run("ReversedRangeIsSwapped", func(t *testing.T) {
		ast, err := ParseFormula("=SUM(C5:A1)", createTestContext())
		if err != nil {
			t.Fatal(err)
		}
		call, ok := ast.(*FunctionCallNode)
		if !ok {
			t.Fatalf("got %T, want *FunctionCallNode", ast)
		}
		rangeNode := call.Args[0].(*RangeNode)
		want := RangeAddress{StartRow: 0, StartColumn: 0, EndRow: 4, EndColumn: 2}
		if rangeNode.Range != want {
			t.Errorf("range = %+v, want %+v", rangeNode.Range, want)
		}
	})
}

func TestLexerTokens(t *testing.T) {
	t.Run("Formula", func(t *testing.T) {
		tokens, errs := NewLexer("=sum(a1:B2) + -3").Tokenize()
		if len(errs) > 0 {
			t.Fatalf("unexpected errors: %v", errs)
		}

		want := []Token{
			{Type: TokenEquals, Value: "="},
			{Type: TokenFunction, Value: "SUM"},
			{Type: TokenLeftParen, Value: "("},
			{Type: TokenRange, Value: "A1:B2"},
			{Type: TokenRightParen, Value: ")"},
			{Type: TokenBinaryOp, Value: "+"},
			{Type: TokenUnaryPrefixOp, Value: "-"},
			{Type: TokenNumber, Value: "3"},
			{Type: TokenEOF},
		}
		if len(tokens) != len(want) {
			t.Fatalf("got %d tokens, want %d: %+v", len(tokens), len(want), tokens)
		}
		for i := range want {
			if tokens[i].Type != want[i].Type || tokens[i].Value != want[i].Value {
				t.Errorf("token %d = %+v, want %+v", i, tokens[i], want[i])
			}
		}
	})

	t.Run("Reference", func(t *testing.T) {
		tokens, errs := NewLexerForReference("b7").Tokenize()
		if len(errs) > 0 {
			t.Fatalf("unexpected errors: %v", errs)
		}
		if len(tokens) != 2 || tokens[0].Type != TokenCell || tokens[0].Value != "B7" {
			t.Errorf("got %+v, want a single B7 cell token", tokens)
		}

		for _, bad := range []string{"", "7", "B", "B7 C8", "B7:C8", "=B7", "SUM(B7"} {
			if _, errs := NewLexerForReference(bad).Tokenize(); len(errs) == 0 {
				t.Errorf("%q: expected reference lexer error", bad)
			}
		}
	})
}

func TestParseAddress(t *testing.T) {
	valid := map[string]CellAddress{
		"A1":   {Row: 0, Column: 0},
		"c7":   {Row: 6, Column: 2},
		" J20": {Row: 19, Column: 9},
		"J300": {Row: 299, Column: 9},
	}
	for input, want := range valid {
		got, err := ParseAddress(input, DefaultColumns)
		if err != nil {
			t.Errorf("ParseAddress(%q) failed: %v", input, err)
			continue
		}
		if got != want {
			t.Errorf("ParseAddress(%q) = %+v, want %+v", input, got, want)
		}
	}

	for _, input := range []string{"K1", "A0", "AA1", "1A", "A-1", "A1:A2", "", "A1.5"} {
		_, err := ParseAddress(input, DefaultColumns)
		if !IsAppErrorCode(err, InvalidArgument) {
			t.Errorf("ParseAddress(%q) error = %v, want InvalidArgument", input, err)
		}
	}

	if s := MustParseAddress("z9").String(); s != "Z9" {
		t.Errorf("String() = %q, want Z9", s)
	}
}
