package spreadsheet

// TokenType represents different types of tokens in formulas
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenEquals
	TokenNumber
	TokenCell
	TokenRange
	TokenFunction
	TokenUnaryPrefixOp
	TokenBinaryOp
	TokenComma
	TokenLeftParen
	TokenRightParen
	TokenIdentifier
	TokenError
)

// BinaryOp represents binary operators in AST nodes
type BinaryOp int

const (
	BinOpAdd BinaryOp = iota
	BinOpSubtract
	BinOpMultiply
	BinOpDivide
)

// UnaryOp represents unary operators in AST nodes
type UnaryOp int

const (
	UnaryOpPlus UnaryOp = iota
	UnaryOpMinus
)

// Token represents a lexical token with position information
type Token struct {
	Type  TokenType
	Value string
	Pos   int // rune offset in the formula
}

// TokenState is what the lexer saw last, it decides which tokens may follow
type TokenState int

const (
	StateStart TokenState = iota
	StateAfterEquals
	StateAfterOperand // number or cell
	StateAfterRange
	StateAfterOperator
	StateAfterLeftParen
	StateAfterRightParen
	StateAfterComma
	StateAfterName // function or bare identifier
)

// tokenSet is a bitmask of token types
type tokenSet uint32

func setOf(types ...TokenType) tokenSet {
	var s tokenSet
	for _, t := range types {
		s |= 1 << uint(t)
	}
	return s
}

func (s tokenSet) has(t TokenType) bool {
	return s&(1<<uint(t)) != 0
}

// anything that can start an operand. ranges are left out, they are only
// valid as a function argument
var operandStart = setOf(TokenNumber, TokenCell, TokenFunction, TokenIdentifier, TokenLeftParen, TokenUnaryPrefixOp)

// allowedAfter is the transition table of the formula grammar
var allowedAfter = [...]tokenSet{
	StateStart:           setOf(TokenEquals),
	StateAfterEquals:     operandStart,
	StateAfterOperand:    setOf(TokenBinaryOp, TokenRightParen, TokenComma, TokenEOF),
	StateAfterRange:      setOf(TokenRightParen, TokenComma),
	StateAfterOperator:   operandStart,
	StateAfterLeftParen:  operandStart | setOf(TokenRange),
	StateAfterRightParen: setOf(TokenBinaryOp, TokenRightParen, TokenComma, TokenEOF),
	StateAfterComma:      operandStart | setOf(TokenRange),
	StateAfterName:       setOf(TokenLeftParen, TokenBinaryOp, TokenRightParen, TokenComma, TokenEOF),
}

// stateAfter maps an accepted token to the next lexer state
var stateAfter = [...]TokenState{
	TokenEquals:        StateAfterEquals,
	TokenNumber:        StateAfterOperand,
	TokenCell:          StateAfterOperand,
	TokenRange:         StateAfterRange,
	TokenFunction:      StateAfterName,
	TokenIdentifier:    StateAfterName,
	TokenUnaryPrefixOp: StateAfterOperator,
	TokenBinaryOp:      StateAfterOperator,
	TokenComma:         StateAfterComma,
	TokenLeftParen:     StateAfterLeftParen,
	TokenRightParen:    StateAfterRightParen,
}

// Lexer tokenizes spreadsheet formula expressions
type Lexer struct {
	src   []rune
	off   int
	state TokenState
	depth int // open parentheses
	out   []Token

	// single, when set, restricts the input to exactly one token of these
	// types instead of a whole formula
	single tokenSet
}

// NewLexer creates a lexer for a full formula, including the leading '='
func NewLexer(input string) *Lexer {
	return &Lexer{src: []rune(input), state: StateStart}
}

// NewLexerForReference creates a lexer for a standalone cell address
// such as "B7", used when resolving addresses passed to the API
func NewLexerForReference(input string) *Lexer {
	return &Lexer{src: []rune(input), state: StateStart, single: setOf(TokenCell)}
}

// Tokenize returns the tokens, terminated by TokenEOF, or the reason the
// input is not a formula
func (l *Lexer) Tokenize() ([]Token, []string) {
	if l.single == 0 && (len(l.src) == 0 || l.src[0] != '=') {
		return nil, []string{"formula must start with '='"}
	}

	for {
		tok := l.next()
		if tok.Type == TokenError {
			return nil, []string{tok.Value}
		}
		if !l.accepts(tok.Type) {
			if tok.Type == TokenEOF {
				if l.depth > 0 {
					return nil, []string{"unbalanced parentheses: missing closing parenthesis"}
				}
				return nil, []string{"unexpected end of formula"}
			}
			return nil, []string{"unexpected token: " + tok.Value}
		}
		l.out = append(l.out, tok)
		if tok.Type == TokenEOF {
			break
		}
		l.state = stateAfter[tok.Type]
	}

	if l.depth > 0 {
		return nil, []string{"unbalanced parentheses: missing closing parenthesis"}
	}
	return l.out, nil
}

// accepts reports whether a token of type t may come next
func (l *Lexer) accepts(t TokenType) bool {
	if l.single != 0 {
		if t == TokenEOF {
			return len(l.out) == 1
		}
		return len(l.out) == 0 && l.single.has(t)
	}
	return allowedAfter[l.state].has(t)
}

func (l *Lexer) next() Token {
	for l.off < len(l.src) && isSpace(l.src[l.off]) {
		l.off++
	}
	if l.off >= len(l.src) {
		return Token{Type: TokenEOF, Pos: l.off}
	}

	start := l.off
	ch := l.src[l.off]

	switch {
	case isDigit(ch), ch == '.' && isDigit(l.at(l.off+1)):
		return l.number()
	case isLetter(ch), ch == '_':
		return l.name()
	}

	l.off++
	switch ch {
	case '(':
		l.depth++
		return Token{Type: TokenLeftParen, Value: "(", Pos: start}
	case ')':
		if l.depth == 0 {
			return Token{Type: TokenError, Value: "unexpected closing parenthesis", Pos: start}
		}
		l.depth--
		return Token{Type: TokenRightParen, Value: ")", Pos: start}
	case ',':
		return Token{Type: TokenComma, Value: ",", Pos: start}
	case '*', '/':
		return Token{Type: TokenBinaryOp, Value: string(ch), Pos: start}
	case '+', '-':
		// a sign wherever an operand is expected, an operator otherwise
		if allowedAfter[l.state].has(TokenUnaryPrefixOp) {
			return Token{Type: TokenUnaryPrefixOp, Value: string(ch), Pos: start}
		}
		return Token{Type: TokenBinaryOp, Value: string(ch), Pos: start}
	case '=':
		if start == 0 {
			return Token{Type: TokenEquals, Value: "=", Pos: start}
		}
		// no comparison operators
	}
	return Token{Type: TokenError, Value: "unexpected character: " + string(ch), Pos: start}
}

func (l *Lexer) at(i int) rune {
	if i < 0 || i >= len(l.src) {
		return 0
	}
	return l.src[i]
}

// skip advances past every rune matching fn
func (l *Lexer) skip(fn func(rune) bool) {
	for l.off < len(l.src) && fn(l.src[l.off]) {
		l.off++
	}
}

// number scans digits with an optional fraction and exponent. "5." is a
// number, "12abc" is an error rather than a number and a name
func (l *Lexer) number() Token {
	start := l.off

	l.skip(isDigit)
	if l.at(l.off) == '.' {
		l.off++
		l.skip(isDigit)
	}

	if e := l.at(l.off); e == 'e' || e == 'E' {
		mark := l.off
		l.off++
		if sign := l.at(l.off); sign == '+' || sign == '-' {
			l.off++
		}
		if isDigit(l.at(l.off)) {
			l.skip(isDigit)
		} else {
			l.off = mark
		}
	}

	if tail := l.at(l.off); isLetter(tail) || tail == '_' || tail == '.' {
		l.skip(func(r rune) bool { return isLetter(r) || isDigit(r) || r == '.' || r == '_' })
		return Token{Type: TokenError, Value: "invalid number: " + string(l.src[start:l.off]), Pos: start}
	}
	return Token{Type: TokenNumber, Value: string(l.src[start:l.off]), Pos: start}
}

// name scans a function name, cell, range or bare identifier
func (l *Lexer) name() Token {
	start := l.off
	l.skip(func(r rune) bool { return isLetter(r) || isDigit(r) || r == '_' })
	word := string(l.src[start:l.off])

	// a name directly followed by '(' is always a call, even "LOG10("
	if l.at(l.off) == '(' {
		return Token{Type: TokenFunction, Value: upperASCII(word), Pos: start}
	}
	if !looksLikeCell(word) {
		return Token{Type: TokenIdentifier, Value: word, Pos: start}
	}
	if l.at(l.off) != ':' {
		return Token{Type: TokenCell, Value: upperASCII(word), Pos: start}
	}

	l.off++ // ':'
	endStart := l.off
	l.skip(func(r rune) bool { return isLetter(r) || isDigit(r) })
	end := string(l.src[endStart:l.off])
	if !looksLikeCell(end) {
		return Token{Type: TokenError, Value: "invalid range: " + word + ":" + end, Pos: start}
	}
	return Token{Type: TokenRange, Value: upperASCII(word) + ":" + upperASCII(end), Pos: start}
}

// splitCellRef splits "AB12" into its letters and digits. ok is false
// unless both parts are present and nothing else is
func splitCellRef(s string) (letters, digits string, ok bool) {
	i := 0
	for i < len(s) && (s[i] >= 'A' && s[i] <= 'Z' || s[i] >= 'a' && s[i] <= 'z') {
		i++
	}
	if i == 0 || i == len(s) {
		return "", "", false
	}
	for j := i; j < len(s); j++ {
		if s[j] < '0' || s[j] > '9' {
			return "", "", false
		}
	}
	return s[:i], s[i:], true
}

// looksLikeCell checks the shape of a reference only, whether the column
// exists is decided when the address is resolved
func looksLikeCell(s string) bool {
	_, _, ok := splitCellRef(s)
	return ok
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isLetter(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'
}

func upperASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}
