package spreadsheet

import (
	"fmt"
	"strconv"
	"strings"
)

type NodePosition struct {
	Start int
	End   int
}

// AST enables dependency extraction and formula deduplication through tree
// traversal rather than regex/string manipulation.
type ASTNode interface {
	Eval(s *Sheet) (float64, error)
	GetPosition() NodePosition
	ToString() string

	// writeKey appends the canonical form of the node. the whole tree is
	// rendered into one builder
	writeKey(b *strings.Builder)
}

// renderKey renders a node and everything under it in a single pass
func renderKey(n ASTNode) string {
	var b strings.Builder
	n.writeKey(&b)
	return b.String()
}

// ParserContext provides the grid extent and the cell being parsed
type ParserContext struct {
	Columns int
	Current CellAddress
}

// Parser parses tokens into an AST
type Parser struct {
	tokens  []Token
	pos     int
	context *ParserContext
}

// NumberNode represents a numeric literal
type NumberNode struct {
	Value    float64
	Position NodePosition
}

func (n *NumberNode) Eval(s *Sheet) (float64, error) {
	return n.Value, nil
}

func (n *NumberNode) GetPosition() NodePosition {
	return n.Position
}

func (n *NumberNode) ToString() string {
	return renderKey(n)
}

func (n *NumberNode) writeKey(b *strings.Builder) {
	b.WriteString(strconv.FormatFloat(n.Value, 'g', -1, 64))
}

// CellRefNode represents an absolute cell reference
type CellRefNode struct {
	Address  CellAddress
	Position NodePosition
}

// Eval reads the referenced cell as a number. missing and non-numeric
// cells, including cells showing an error, contribute 0
func (n *CellRefNode) Eval(s *Sheet) (float64, error) {
	if num, ok := s.grid.Get(n.Address).Number(); ok {
		return num, nil
	}
	return 0, nil
}

func (n *CellRefNode) GetPosition() NodePosition {
	return n.Position
}

func (n *CellRefNode) ToString() string {
	return renderKey(n)
}

func (n *CellRefNode) writeKey(b *strings.Builder) {
	fmt.Fprintf(b, "REF(%d,%d)", n.Address.Row, n.Address.Column)
}

// RangeNode represents a range of cells. only valid as a function argument
type RangeNode struct {
	Range    RangeAddress
	Position NodePosition
}

func (n *RangeNode) Eval(s *Sheet) (float64, error) {
	return 0, NewSpreadsheetError(ErrorCodeValue, "range used outside of a function")
}

func (n *RangeNode) GetPosition() NodePosition {
	return n.Position
}

func (n *RangeNode) ToString() string {
	return renderKey(n)
}

func (n *RangeNode) writeKey(b *strings.Builder) {
	fmt.Fprintf(b, "RANGE(%d,%d,%d,%d)",
		n.Range.StartRow, n.Range.StartColumn, n.Range.EndRow, n.Range.EndColumn)
}

// BinaryOpNode represents a binary operation
type BinaryOpNode struct {
	Op       BinaryOp
	Left     ASTNode
	Right    ASTNode
	Position NodePosition
}

func (n *BinaryOpNode) Eval(s *Sheet) (float64, error) {
	left, err := n.Left.Eval(s)
	if err != nil {
		return 0, err
	}
	right, err := n.Right.Eval(s)
	if err != nil {
		return 0, err
	}

	switch n.Op {
	case BinOpAdd:
		return left + right, nil
	case BinOpSubtract:
		return left - right, nil
	case BinOpMultiply:
		return left * right, nil
	case BinOpDivide:
		if right == 0 {
			return 0, NewSpreadsheetError(ErrorCodeDiv0, "division by zero")
		}
		return left / right, nil
	default:
		return 0, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("unknown operator: %d", n.Op))
	}
}

func (n *BinaryOpNode) GetPosition() NodePosition {
	return n.Position
}

func (n *BinaryOpNode) ToString() string {
	return renderKey(n)
}

func (n *BinaryOpNode) writeKey(b *strings.Builder) {
	b.WriteByte('(')
	n.Left.writeKey(b)
	b.WriteString(n.Op.String())
	n.Right.writeKey(b)
	b.WriteByte(')')
}

func (op BinaryOp) String() string {
	switch op {
	case BinOpAdd:
		return "+"
	case BinOpSubtract:
		return "-"
	case BinOpMultiply:
		return "*"
	case BinOpDivide:
		return "/"
	}
	return "?"
}

// UnaryOpNode represents a unary operation
type UnaryOpNode struct {
	Op       UnaryOp
	Operand  ASTNode
	Position NodePosition
}

func (n *UnaryOpNode) Eval(s *Sheet) (float64, error) {
	val, err := n.Operand.Eval(s)
	if err != nil {
		return 0, err
	}
	if n.Op == UnaryOpMinus {
		return -val, nil
	}
	return val, nil
}

func (n *UnaryOpNode) GetPosition() NodePosition {
	return n.Position
}

func (n *UnaryOpNode) ToString() string {
	return renderKey(n)
}

func (n *UnaryOpNode) writeKey(b *strings.Builder) {
	if n.Op == UnaryOpMinus {
		b.WriteString("(-")
	} else {
		b.WriteString("(+")
	}
	n.Operand.writeKey(b)
	b.WriteByte(')')
}

// FunctionCallNode represents a call to one of the range functions
type FunctionCallNode struct {
	Name     string
	Args     []ASTNode
	Position NodePosition
}

func (n *FunctionCallNode) Eval(s *Sheet) (float64, error) {
	if len(n.Args) != 1 {
		return 0, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("%s expects one range argument", n.Name))
	}
	rangeNode, ok := n.Args[0].(*RangeNode)
	if !ok {
		return 0, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("%s expects one range argument", n.Name))
	}
	return s.functions.Call(n.Name, NewCellRange(s.grid, rangeNode.Range))
}

func (n *FunctionCallNode) GetPosition() NodePosition {
	return n.Position
}

func (n *FunctionCallNode) ToString() string {
	return renderKey(n)
}

func (n *FunctionCallNode) writeKey(b *strings.Builder) {
	b.WriteString(n.Name)
	b.WriteByte('(')
	for i, arg := range n.Args {
		if i > 0 {
			b.WriteByte(',')
		}
		arg.writeKey(b)
	}
	b.WriteByte(')')
}

// NewParser creates a new parser with the given tokens and context
func NewParser(tokens []Token, context *ParserContext) *Parser {
	return &Parser{
		tokens:  tokens,
		context: context,
	}
}

// ParseFormula tokenizes and parses a full formula, "=" included. every
// failure is a *SpreadsheetError
func ParseFormula(formula string, context *ParserContext) (ASTNode, error) {
	tokens, lexErrors := NewLexer(formula).Tokenize()
	if len(lexErrors) > 0 {
		return nil, NewSpreadsheetError(ErrorCodeValue, strings.Join(lexErrors, "; "))
	}
	return NewParser(tokens, context).Parse()
}

// Parse parses the tokens into an AST
func (p *Parser) Parse() (ASTNode, error) {
	if len(p.tokens) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "no tokens to parse")
	}
	if _, err := p.expect(TokenEquals, "formula must start with '='"); err != nil {
		return nil, err
	}

	node, err := p.parseLevel(0)
	if err != nil {
		return nil, err
	}

	if tok := p.peek(); tok.Type != TokenEOF {
		return nil, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("unexpected token after expression: %s", tok.Value))
	}
	return node, nil
}

// binaryLevels lists the binary operators from loosest to tightest binding.
// every level is left associative
var binaryLevels = []map[string]BinaryOp{
	{"+": BinOpAdd, "-": BinOpSubtract},
	{"*": BinOpMultiply, "/": BinOpDivide},
}

// peek returns the current token, EOF past the end
func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.pos]
}

// expect consumes a token of the given type or fails with msg
func (p *Parser) expect(t TokenType, msg string) (Token, error) {
	tok := p.peek()
	if tok.Type != t {
		return tok, NewSpreadsheetError(ErrorCodeValue, msg)
	}
	p.pos++
	return tok, nil
}

// parseLevel parses a chain of operators of one precedence level, with
// operands of the next tighter level
func (p *Parser) parseLevel(level int) (ASTNode, error) {
	if level == len(binaryLevels) {
		return p.parseUnary()
	}

	left, err := p.parseLevel(level + 1)
	if err != nil {
		return nil, err
	}

	for {
		tok := p.peek()
		op, ok := binaryLevels[level][tok.Value]
		if tok.Type != TokenBinaryOp || !ok {
			return left, nil
		}
		p.pos++

		right, err := p.parseLevel(level + 1)
		if err != nil {
			return nil, err
		}
		left = &BinaryOpNode{
			Op:       op,
			Left:     left,
			Right:    right,
			Position: NodePosition{Start: left.GetPosition().Start, End: right.GetPosition().End},
		}
	}
}

// parseUnary handles any number of leading signs
func (p *Parser) parseUnary() (ASTNode, error) {
	tok := p.peek()
	if tok.Type != TokenUnaryPrefixOp {
		return p.parsePrimary()
	}
	p.pos++

	operand, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	op := UnaryOpPlus
	if tok.Value == "-" {
		op = UnaryOpMinus
	}
	return &UnaryOpNode{
		Op:       op,
		Operand:  operand,
		Position: NodePosition{Start: tok.Pos, End: operand.GetPosition().End},
	}, nil
}

// parsePrimary handles literals, references, calls and parentheses
func (p *Parser) parsePrimary() (ASTNode, error) {
	tok := p.peek()

	switch tok.Type {
	case TokenNumber:
		p.pos++
		val, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, NewSpreadsheetError(ErrorCodeNum, fmt.Sprintf("invalid number: %s", tok.Value))
		}
		return &NumberNode{Value: val, Position: tokenSpan(tok)}, nil

	case TokenCell:
		p.pos++
		return p.parseCellReference(tok)

	case TokenRange:
		return nil, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("range %s must be a function argument", tok.Value))

	case TokenIdentifier:
		return nil, NewSpreadsheetError(ErrorCodeName, fmt.Sprintf("unknown name: %s", tok.Value))

	case TokenFunction:
		return p.parseFunctionCall()

	case TokenLeftParen:
		p.pos++
		node, err := p.parseLevel(0)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRightParen, "expected closing parenthesis"); err != nil {
			return nil, err
		}
		return node, nil

	case TokenEOF:
		return nil, NewSpreadsheetError(ErrorCodeValue, "unexpected end of expression")

	default:
		return nil, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("unexpected token: %s", tok.Value))
	}
}

// parseFunctionCall parses NAME(start:end)
func (p *Parser) parseFunctionCall() (ASTNode, error) {
	nameTok := p.tokens[p.pos]
	p.pos++

	if !isBuiltInFunction(nameTok.Value) {
		return nil, NewSpreadsheetError(ErrorCodeName, fmt.Sprintf("unknown function: %s", nameTok.Value))
	}

	arity := fmt.Sprintf("%s expects one range argument", nameTok.Value)
	if _, err := p.expect(TokenLeftParen, "expected '(' after function name"); err != nil {
		return nil, err
	}
	rangeTok, err := p.expect(TokenRange, arity)
	if err != nil {
		return nil, err
	}
	arg, err := p.parseRange(rangeTok)
	if err != nil {
		return nil, err
	}
	closeTok, err := p.expect(TokenRightParen, arity)
	if err != nil {
		return nil, err
	}

	return &FunctionCallNode{
		Name:     nameTok.Value,
		Args:     []ASTNode{arg},
		Position: NodePosition{Start: nameTok.Pos, End: closeTok.Pos + 1},
	}, nil
}

// parseCellReference resolves a cell token. a formula may not read its
// own cell
func (p *Parser) parseCellReference(tok Token) (ASTNode, error) {
	addr, err := parseCellAddress(tok.Value, p.context.Columns)
	if err != nil {
		return nil, err
	}
	if addr == p.context.Current {
		return nil, NewSpreadsheetError(ErrorCodeRef, fmt.Sprintf("%s refers to itself", tok.Value))
	}
	return &CellRefNode{Address: addr, Position: tokenSpan(tok)}, nil
}

// parseRange resolves a range token. reversed bounds are normalized and a
// range covering the formula cell is a self reference
func (p *Parser) parseRange(tok Token) (*RangeNode, error) {
	from, to, found := strings.Cut(tok.Value, ":")
	if !found {
		return nil, NewSpreadsheetError(ErrorCodeRef, fmt.Sprintf("invalid range format: %s", tok.Value))
	}

	start, err := parseCellAddress(from, p.context.Columns)
	if err != nil {
		return nil, err
	}
	end, err := parseCellAddress(to, p.context.Columns)
	if err != nil {
		return nil, err
	}

	bounds := NewRangeAddress(start, end)
	if bounds.Contains(p.context.Current) {
		return nil, NewSpreadsheetError(ErrorCodeRef, fmt.Sprintf("range %s contains the formula cell", tok.Value))
	}
	return &RangeNode{Range: bounds, Position: tokenSpan(tok)}, nil
}

func tokenSpan(tok Token) NodePosition {
	return NodePosition{Start: tok.Pos, End: tok.Pos + len([]rune(tok.Value))}
}
