package formula

import "strings"

// TokenType represents different types of tokens in formulas
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenEquals
	TokenNumber
	TokenString
	TokenBoolean
	TokenErrorLiteral
	TokenCell
	TokenRange
	TokenFunction
	TokenUnaryPrefixOp
	TokenUnaryPostfixOp
	TokenBinaryOp
	TokenComma
	TokenColon
	TokenLeftParen
	TokenRightParen
	TokenIdentifier
	TokenWhitespace
	TokenError
)

// BinaryOp represents binary operators in AST nodes
type BinaryOp int

const (
	BinOpAdd BinaryOp = iota
	BinOpSubtract
	BinOpMultiply
	BinOpDivide
	BinOpPercent // a%b, evaluated as a/b
	BinOpPower
	BinOpConcat
	BinOpEqual
	BinOpNotEqual
	BinOpLess
	BinOpLessEqual
	BinOpGreater
	BinOpGreaterEqual
)

// UnaryOp represents unary operators in AST nodes
type UnaryOp int

const (
	UnaryOpPlus UnaryOp = iota
	UnaryOpMinus
	UnaryOpPercent
)

// character classification constants. slightly easier to read.
const (
	charNull       = 0
	charTab        = '\t'
	charNewline    = '\n'
	charReturn     = '\r'
	charSpace      = ' '
	charQuote      = '"'
	charApostrophe = '\''
	charPercent    = '%'
	charAmpersand  = '&'
	charLParen     = '('
	charRParen     = ')'
	charAsterisk   = '*'
	charPlus       = '+'
	charComma      = ','
	charMinus      = '-'
	charPeriod     = '.'
	charSlash      = '/'
	charColon      = ':'
	charLess       = '<'
	charEqual      = '='
	charGreater    = '>'
	charCaret      = '^'
	charUnderscore = '_'
	charExclaim    = '!'
	charDollar     = '$'
	charHash       = '#'
)

// valueTokens may start an operand
var valueTokens = map[TokenType]bool{
	TokenNumber:       true,
	TokenString:       true,
	TokenBoolean:      true,
	TokenErrorLiteral: true,
	TokenCell:         true,
	TokenRange:        true,
	TokenFunction:     true,
	TokenIdentifier:   true,
	TokenLeftParen:    true,
}

// operandState is the transition set of every state that expects an
// operand next
func operandState(extra ...TokenType) map[TokenType]bool {
	m := map[TokenType]bool{TokenUnaryPrefixOp: true}
	for t := range valueTokens {
		m[t] = true
	}
	for _, t := range extra {
		m[t] = true
	}
	return m
}

// tokenTransitions maps the current state to valid next token types
var tokenTransitions = map[TokenState]map[TokenType]bool{
	StateStart:          operandState(TokenEquals),
	StateAfterEquals:    operandState(),
	StateAfterOperator:  operandState(),
	StateAfterLeftParen: operandState(TokenRightParen), // empty parens for PI()
	StateAfterComma:     operandState(),
	StateAfterValue: { // after number, string, cell, range
		TokenBinaryOp:       true,
		TokenUnaryPostfixOp: true, // for %
		TokenRightParen:     true,
		TokenComma:          true,
		TokenEOF:            true,
	},
	StateAfterRightParen: {
		TokenBinaryOp:       true,
		TokenUnaryPostfixOp: true,
		TokenRightParen:     true,
		TokenComma:          true,
		TokenLeftParen:      true, // immediate call: LAMBDA(x,x*2)(5)
		TokenEOF:            true,
	},
	StateAfterIdentifier: {
		TokenLeftParen:      true, // function call
		TokenBinaryOp:       true, // bound name used as value
		TokenUnaryPostfixOp: true,
		TokenRightParen:     true,
		TokenComma:          true,
		TokenEOF:            true,
	},
}

// Token represents a lexical token with position information
type Token struct {
	Type  TokenType
	Value string
	Pos   int // rune position in input
}

// TokenState represents the lexer state for validation
type TokenState int

const (
	StateStart TokenState = iota
	StateAfterEquals
	StateAfterValue
	StateAfterOperator
	StateAfterLeftParen
	StateAfterRightParen
	StateAfterComma
	StateAfterIdentifier
)

// Lexer tokenizes spreadsheet formula expressions
type Lexer struct {
	input      string
	runes      []rune // UTF-8 aware representation
	pos        int
	state      TokenState
	parenDepth int
	tokens     []Token
	error      string
}

// NewLexer creates a new lexer for the given formula input. the leading
// '=' is optional.
func NewLexer(input string) *Lexer {
	return &Lexer{
		input:  input,
		runes:  []rune(input),
		state:  StateStart,
		tokens: []Token{},
	}
}

// Tokenize tokenizes the entire input and returns tokens and any error
func (l *Lexer) Tokenize() ([]Token, []string) {
	for l.pos < len(l.runes) {
		tok := l.nextToken()
		if tok.Type == TokenEOF {
			break
		}
		if tok.Type == TokenError {
			l.error = tok.Value
			return nil, []string{l.error}
		}
		if !l.validateTransition(tok.Type) {
			l.error = "unexpected token: " + tok.Value
			return nil, []string{l.error}
		}
		l.tokens = append(l.tokens, tok)
		l.updateState(tok.Type)
	}

	if l.parenDepth > 0 {
		l.error = "unbalanced parentheses: missing closing parenthesis"
		return nil, []string{l.error}
	}

	l.tokens = append(l.tokens, Token{Type: TokenEOF, Pos: l.pos})
	return l.tokens, nil
}

// validateTransition checks if the token type is valid in current state
func (l *Lexer) validateTransition(tokenType TokenType) bool {
	validTokens, exists := tokenTransitions[l.state]
	if !exists {
		return false
	}
	return validTokens[tokenType]
}

// updateState updates the lexer state based on the token type
func (l *Lexer) updateState(tokenType TokenType) {
	switch tokenType {
	case TokenEquals:
		l.state = StateAfterEquals
	case TokenNumber, TokenString, TokenBoolean, TokenErrorLiteral, TokenCell, TokenRange:
		l.state = StateAfterValue
	case TokenUnaryPrefixOp, TokenBinaryOp:
		l.state = StateAfterOperator
	case TokenUnaryPostfixOp:
		// postfix operators leave the state alone
	case TokenLeftParen:
		l.state = StateAfterLeftParen
	case TokenRightParen:
		l.state = StateAfterRightParen
	case TokenComma:
		l.state = StateAfterComma
	case TokenIdentifier, TokenFunction:
		l.state = StateAfterIdentifier
	}
}

// nextToken returns the next token from the input
func (l *Lexer) nextToken() Token {
	l.skipWhitespace()

	if l.pos >= len(l.runes) {
		return Token{Type: TokenEOF, Pos: l.pos}
	}

	startPos := l.pos
	ch := l.current()

	if ch == charQuote {
		return l.scanString()
	}

	// single-quoted worksheet references
	if ch == charApostrophe {
		return l.scanQuotedWorksheetRef()
	}

	if l.isDigit(ch) || (ch == charPeriod && l.isDigit(l.peek(1))) {
		return l.scanNumber()
	}

	switch ch {
	case charLParen:
		l.pos++
		l.parenDepth++
		return Token{Type: TokenLeftParen, Value: "(", Pos: startPos}
	case charRParen:
		l.pos++
		l.parenDepth--
		if l.parenDepth < 0 {
			return Token{Type: TokenError, Value: "unexpected closing parenthesis", Pos: startPos}
		}
		return Token{Type: TokenRightParen, Value: ")", Pos: startPos}
	case charComma:
		l.pos++
		return Token{Type: TokenComma, Value: ",", Pos: startPos}
	case charPlus, charMinus:
		return l.scanUnaryPrefixOrBinaryOp()
	case charAsterisk, charSlash, charCaret, charAmpersand, charLess, charGreater, charExclaim:
		return l.scanBinaryOp()
	case charPercent:
		return l.scanPercent()
	case charHash:
		return l.scanErrorLiteral()
	case charEqual:
		l.pos++
		// the first character is the formula prefix, anything else compares
		if startPos == 0 {
			return Token{Type: TokenEquals, Value: "=", Pos: startPos}
		}
		return Token{Type: TokenBinaryOp, Value: "=", Pos: startPos}
	}

	if l.isAlpha(ch) || ch == charUnderscore || ch == charDollar {
		return l.scanIdentifierOrCell()
	}

	l.pos++
	return Token{Type: TokenError, Value: "unexpected character: " + string(ch), Pos: startPos}
}

// helper methods for character navigation and classification

// substring returns a substring of the original input based on rune positions
func (l *Lexer) substring(start, end int) string {
	if start < 0 || end > len(l.runes) || start > end {
		return ""
	}
	return string(l.runes[start:end])
}

func (l *Lexer) current() rune {
	if l.pos >= len(l.runes) {
		return charNull
	}
	return l.runes[l.pos]
}

func (l *Lexer) peek(offset int) rune {
	pos := l.pos + offset
	if pos >= len(l.runes) || pos < 0 {
		return charNull
	}
	return l.runes[pos]
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.runes) {
		ch := l.current()
		if ch == charSpace || ch == charTab || ch == charNewline || ch == charReturn {
			l.pos++
		} else {
			break
		}
	}
}

func (l *Lexer) isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func (l *Lexer) isAlpha(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func (l *Lexer) isAlphaNumeric(ch rune) bool {
	return l.isAlpha(ch) || l.isDigit(ch)
}

// isNameChar covers identifier characters after the first: dotted names
// like STDEV.S are one identifier
func (l *Lexer) isNameChar(ch rune) bool {
	return l.isAlphaNumeric(ch) || ch == charUnderscore || ch == charPeriod || ch == charDollar
}

// scanNumber scans a number token including decimals and scientific notation
func (l *Lexer) scanNumber() Token {
	startPos := l.pos

	for l.pos < len(l.runes) && l.isDigit(l.current()) {
		l.pos++
	}

	if l.current() == charPeriod {
		l.pos++ // consume '.'
		for l.pos < len(l.runes) && l.isDigit(l.current()) {
			l.pos++
		}
	}

	// scientific notation (e or E)
	if l.current() == 'e' || l.current() == 'E' {
		savedPos := l.pos
		l.pos++

		if l.current() == charPlus || l.current() == charMinus {
			l.pos++
		}

		if !l.isDigit(l.current()) {
			// not scientific notation, restore position
			l.pos = savedPos
		} else {
			for l.pos < len(l.runes) && l.isDigit(l.current()) {
				l.pos++
			}
		}
	}

	value := l.substring(startPos, l.pos)
	return Token{Type: TokenNumber, Value: value, Pos: startPos}
}

// scanString scans a string literal with support for double-quote escapes
func (l *Lexer) scanString() Token {
	startPos := l.pos
	l.pos++ // consume opening quote

	var result []rune

	for l.pos < len(l.runes) {
		ch := l.current()

		if ch == charQuote {
			if l.peek(1) == charQuote {
				result = append(result, charQuote)
				l.pos += 2
			} else {
				l.pos++ // consume closing quote
				return Token{Type: TokenString, Value: string(result), Pos: startPos}
			}
		} else {
			result = append(result, ch)
			l.pos++
		}
	}

	return Token{Type: TokenError, Value: "unclosed string literal", Pos: startPos}
}

// scanErrorLiteral scans a typed error like #N/A or #DIV/0!
func (l *Lexer) scanErrorLiteral() Token {
	startPos := l.pos
	rest := strings.ToUpper(l.substring(l.pos, len(l.runes)))
	for sentinel := range errorCodeBySentinel {
		if strings.HasPrefix(rest, sentinel) {
			l.pos += len([]rune(sentinel))
			return Token{Type: TokenErrorLiteral, Value: sentinel, Pos: startPos}
		}
	}
	l.pos++
	return Token{Type: TokenError, Value: "unknown error literal", Pos: startPos}
}

// scanIdentifierOrCell scans identifiers, functions, cells, ranges, and booleans
func (l *Lexer) scanIdentifierOrCell() Token {
	startPos := l.pos

	l.pos++
	for l.pos < len(l.runes) && l.isNameChar(l.current()) {
		l.pos++
	}

	value := l.substring(startPos, l.pos)
	upperValue := strings.ToUpper(value)

	// worksheet reference (identifier followed by !)
	if l.current() == charExclaim && !strings.Contains(value, "$") {
		l.pos++ // consume !
		return l.scanReferenceAfterSheet(startPos)
	}

	// a name followed by '(' is always a call, even when it looks like a
	// cell (LOG10, ATAN2)
	if l.current() == charLParen && !strings.Contains(value, "$") {
		return Token{Type: TokenFunction, Value: upperValue, Pos: startPos}
	}

	if upperValue == "TRUE" || upperValue == "FALSE" {
		return Token{Type: TokenBoolean, Value: upperValue, Pos: startPos}
	}

	if isCell(value) {
		if tok, ok := l.scanRangeTail(startPos); ok {
			return tok
		}
		return Token{Type: TokenCell, Value: value, Pos: startPos}
	}

	if strings.Contains(value, "$") {
		return Token{Type: TokenError, Value: "invalid cell reference: " + value, Pos: startPos}
	}

	return Token{Type: TokenIdentifier, Value: upperValue, Pos: startPos}
}

// scanRangeTail tries to extend a cell that ends at l.pos into a range
// A1:B2. the position is restored when no second cell follows.
func (l *Lexer) scanRangeTail(startPos int) (Token, bool) {
	if l.current() != charColon {
		return Token{}, false
	}
	savedPos := l.pos
	l.pos++ // consume ':'

	cellStart := l.pos
	for l.pos < len(l.runes) && (l.isAlphaNumeric(l.current()) || l.current() == charDollar) {
		l.pos++
	}

	if isCell(l.substring(cellStart, l.pos)) {
		return Token{Type: TokenRange, Value: l.substring(startPos, l.pos), Pos: startPos}, true
	}
	l.pos = savedPos
	return Token{}, false
}

// isCell checks if a string is a valid cell reference (A1, $B$12, AA7)
func isCell(s string) bool {
	_, _, _, _, err := parseA1(s)
	return err == nil && s != "" && s[len(s)-1] >= '0' && s[len(s)-1] <= '9'
}

// scanQuotedWorksheetRef scans 'My Sheet'!A1 or 'My Sheet'!A1:B2
func (l *Lexer) scanQuotedWorksheetRef() Token {
	startPos := l.pos
	l.pos++ // consume opening quote

	for l.pos < len(l.runes) {
		if l.current() == charApostrophe {
			if l.peek(1) == charApostrophe {
				l.pos += 2 // escaped quote inside the name
				continue
			}
			break
		}
		l.pos++
	}

	if l.pos >= len(l.runes) {
		return Token{Type: TokenError, Value: "unclosed worksheet name", Pos: startPos}
	}
	l.pos++ // consume closing quote

	if l.current() != charExclaim {
		return Token{Type: TokenError, Value: "expected ! after worksheet name", Pos: startPos}
	}
	l.pos++ // consume !

	return l.scanReferenceAfterSheet(startPos)
}

// scanReferenceAfterSheet scans the cell or range that follows "Sheet!"
func (l *Lexer) scanReferenceAfterSheet(startPos int) Token {
	cellStart := l.pos
	for l.pos < len(l.runes) && (l.isAlphaNumeric(l.current()) || l.current() == charDollar) {
		l.pos++
	}

	if !isCell(l.substring(cellStart, l.pos)) {
		return Token{Type: TokenError, Value: "invalid cell reference after worksheet", Pos: startPos}
	}

	if tok, ok := l.scanRangeTail(startPos); ok {
		return tok
	}
	return Token{Type: TokenCell, Value: l.substring(startPos, l.pos), Pos: startPos}
}

// scanUnaryPrefixOrBinaryOp scans + and - which can be either unary
// prefix or binary
func (l *Lexer) scanUnaryPrefixOrBinaryOp() Token {
	startPos := l.pos
	ch := l.current()
	l.pos++

	if l.isUnaryContext() {
		return Token{Type: TokenUnaryPrefixOp, Value: string(ch), Pos: startPos}
	}
	return Token{Type: TokenBinaryOp, Value: string(ch), Pos: startPos}
}

// scanBinaryOp scans binary operators
func (l *Lexer) scanBinaryOp() Token {
	startPos := l.pos
	ch := l.current()
	l.pos++

	switch ch {
	case charLess:
		if l.current() == charEqual {
			l.pos++
			return Token{Type: TokenBinaryOp, Value: "<=", Pos: startPos}
		} else if l.current() == charGreater {
			l.pos++
			return Token{Type: TokenBinaryOp, Value: "<>", Pos: startPos}
		}
		return Token{Type: TokenBinaryOp, Value: "<", Pos: startPos}
	case charGreater:
		if l.current() == charEqual {
			l.pos++
			return Token{Type: TokenBinaryOp, Value: ">=", Pos: startPos}
		}
		return Token{Type: TokenBinaryOp, Value: ">", Pos: startPos}
	case charExclaim:
		// != as not equal
		if l.current() == charEqual {
			l.pos++
			return Token{Type: TokenBinaryOp, Value: "<>", Pos: startPos}
		}
		return Token{Type: TokenError, Value: "unexpected '!'", Pos: startPos}
	case charAsterisk:
		return Token{Type: TokenBinaryOp, Value: "*", Pos: startPos}
	case charSlash:
		return Token{Type: TokenBinaryOp, Value: "/", Pos: startPos}
	case charCaret:
		return Token{Type: TokenBinaryOp, Value: "^", Pos: startPos}
	case charAmpersand:
		return Token{Type: TokenBinaryOp, Value: "&", Pos: startPos}
	}

	return Token{Type: TokenError, Value: "unknown operator", Pos: startPos}
}

// scanPercent scans %. followed by an operand it is the binary percent
// operator, otherwise the postfix percent
func (l *Lexer) scanPercent() Token {
	startPos := l.pos
	l.pos++

	next := l.pos
	for next < len(l.runes) && (l.runes[next] == charSpace || l.runes[next] == charTab) {
		next++
	}
	if next < len(l.runes) {
		ch := l.runes[next]
		if l.isAlpha(ch) || l.isDigit(ch) || ch == charPeriod || ch == charDollar || ch == charUnderscore ||
			ch == charLParen || ch == charQuote || ch == charApostrophe || ch == charHash {
			return Token{Type: TokenBinaryOp, Value: "%", Pos: startPos}
		}
	}
	return Token{Type: TokenUnaryPostfixOp, Value: "%", Pos: startPos}
}

// isUnaryContext checks if the current context allows for unary operators
func (l *Lexer) isUnaryContext() bool {
	switch l.state {
	case StateStart, StateAfterEquals, StateAfterOperator, StateAfterLeftParen, StateAfterComma:
		return true
	default:
		return false
	}
}
