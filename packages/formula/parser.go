package formula

import (
	"fmt"
	"strconv"
	"strings"
)

// Parser parses tokens into an AST
type Parser struct {
	tokens []Token
	pos    int
}

// NewParser creates a new parser over the given tokens
func NewParser(tokens []Token) *Parser {
	return &Parser{tokens: tokens}
}

// ParseFormula parses formula text, with or without the leading '=', into
// an AST. malformed input returns a *SpreadsheetError with #VALUE!.
func ParseFormula(text string) (ASTNode, error) {
	lexer := NewLexer(strings.TrimSpace(text))
	tokens, lexErrors := lexer.Tokenize()
	if len(lexErrors) > 0 {
		return nil, NewSpreadsheetError(ErrorCodeValue, strings.Join(lexErrors, "; "))
	}
	return NewParser(tokens).Parse()
}

// Parse parses the tokens into an AST
func (p *Parser) Parse() (ASTNode, error) {
	if len(p.tokens) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "no tokens to parse")
	}

	// skip the equals prefix
	if p.tokens[p.pos].Type == TokenEquals {
		p.pos++
	}

	node, err := p.parseComparison()
	if err != nil {
		return nil, err
	}

	if p.current().Type != TokenEOF {
		return nil, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("unexpected token after expression: %s", p.current().Value))
	}

	return node, nil
}

func (p *Parser) current() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.pos]
}

// binary builds a BinaryOpNode spanning both operands
func binary(op BinaryOp, left, right ASTNode) *BinaryOpNode {
	return &BinaryOpNode{
		Op:       op,
		Left:     left,
		Right:    right,
		Position: NodePosition{Start: left.GetPosition().Start, End: right.GetPosition().End},
	}
}

// parseComparison handles comparison operators (lowest precedence)
func (p *Parser) parseComparison() (ASTNode, error) {
	left, err := p.parseConcatenation()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.current()
		if tok.Type != TokenBinaryOp {
			break
		}

		var op BinaryOp
		switch tok.Value {
		case "=":
			op = BinOpEqual
		case "<>":
			op = BinOpNotEqual
		case "<":
			op = BinOpLess
		case "<=":
			op = BinOpLessEqual
		case ">":
			op = BinOpGreater
		case ">=":
			op = BinOpGreaterEqual
		default:
			return left, nil
		}

		p.pos++
		right, err := p.parseConcatenation()
		if err != nil {
			return nil, err
		}
		left = binary(op, left, right)
	}

	return left, nil
}

// parseConcatenation handles string concatenation operator
func (p *Parser) parseConcatenation() (ASTNode, error) {
	left, err := p.parseAddition()
	if err != nil {
		return nil, err
	}

	for p.current().Type == TokenBinaryOp && p.current().Value == "&" {
		p.pos++
		right, err := p.parseAddition()
		if err != nil {
			return nil, err
		}
		left = binary(BinOpConcat, left, right)
	}

	return left, nil
}

// parseAddition handles addition and subtraction
func (p *Parser) parseAddition() (ASTNode, error) {
	left, err := p.parseMultiplication()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.current()
		if tok.Type != TokenBinaryOp {
			break
		}

		var op BinaryOp
		switch tok.Value {
		case "+":
			op = BinOpAdd
		case "-":
			op = BinOpSubtract
		default:
			return left, nil
		}

		p.pos++
		right, err := p.parseMultiplication()
		if err != nil {
			return nil, err
		}
		left = binary(op, left, right)
	}

	return left, nil
}

// parseMultiplication handles multiplication, division, and binary percent
func (p *Parser) parseMultiplication() (ASTNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.current()
		if tok.Type != TokenBinaryOp {
			break
		}

		var op BinaryOp
		switch tok.Value {
		case "*":
			op = BinOpMultiply
		case "/":
			op = BinOpDivide
		case "%":
			op = BinOpPercent
		default:
			return left, nil
		}

		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binary(op, left, right)
	}

	return left, nil
}

// parseUnary handles prefix + and -. they bind looser than ^, so -2^2 is -4
func (p *Parser) parseUnary() (ASTNode, error) {
	tok := p.current()
	if tok.Type == TokenEOF {
		return nil, NewSpreadsheetError(ErrorCodeValue, "unexpected end of expression")
	}

	if tok.Type == TokenUnaryPrefixOp {
		op := UnaryOpPlus
		if tok.Value == "-" {
			op = UnaryOpMinus
		}

		p.pos++
		operand, err := p.parseUnary() // chained unary operators
		if err != nil {
			return nil, err
		}

		return &UnaryOpNode{
			Op:       op,
			Operand:  operand,
			Position: NodePosition{Start: tok.Pos, End: operand.GetPosition().End},
		}, nil
	}

	return p.parsePower()
}

// parsePower handles exponentiation
func (p *Parser) parsePower() (ASTNode, error) {
	left, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}

	// right-associative, and the exponent may carry its own sign: 2^-1
	if p.current().Type == TokenBinaryOp && p.current().Value == "^" {
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return binary(BinOpPower, left, right), nil
	}

	return left, nil
}

// parsePostfix handles postfix percent and immediate calls of an
// expression's value
func (p *Parser) parsePostfix() (ASTNode, error) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.current()
		switch {
		case tok.Type == TokenUnaryPostfixOp && tok.Value == "%":
			p.pos++
			node = &UnaryOpNode{
				Op:       UnaryOpPercent,
				Operand:  node,
				Position: NodePosition{Start: node.GetPosition().Start, End: tok.Pos + 1},
			}
		case tok.Type == TokenLeftParen:
			p.pos++
			args, end, err := p.parseArguments()
			if err != nil {
				return nil, err
			}
			node = &CallNode{
				Callee:   node,
				Args:     args,
				Position: NodePosition{Start: node.GetPosition().Start, End: end},
			}
		default:
			return node, nil
		}
	}
}

// parsePrimary handles primary expressions (literals, references,
// functions, parentheses)
func (p *Parser) parsePrimary() (ASTNode, error) {
	tok := p.current()

	switch tok.Type {
	case TokenNumber:
		p.pos++
		val, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("invalid number: %s", tok.Value))
		}
		return &NumberNode{
			Value:    val,
			Position: NodePosition{Start: tok.Pos, End: tok.Pos + len(tok.Value)},
		}, nil

	case TokenString:
		p.pos++
		return &StringNode{
			Value:    tok.Value,
			Position: NodePosition{Start: tok.Pos, End: tok.Pos + len(tok.Value) + 2}, // +2 for quotes
		}, nil

	case TokenBoolean:
		p.pos++
		return &BooleanNode{
			Value:    tok.Value == "TRUE",
			Position: NodePosition{Start: tok.Pos, End: tok.Pos + len(tok.Value)},
		}, nil

	case TokenErrorLiteral:
		p.pos++
		return &ErrorNode{
			Code:     errorCodeBySentinel[tok.Value],
			Position: NodePosition{Start: tok.Pos, End: tok.Pos + len(tok.Value)},
		}, nil

	case TokenCell:
		p.pos++
		return parseCellReference(tok)

	case TokenRange:
		p.pos++
		return parseRange(tok)

	case TokenIdentifier:
		p.pos++
		return &IdentifierNode{
			Name:     tok.Value,
			Position: NodePosition{Start: tok.Pos, End: tok.Pos + len(tok.Value)},
		}, nil

	case TokenFunction:
		return p.parseFunctionCall()

	case TokenLeftParen:
		p.pos++
		node, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		if p.current().Type != TokenRightParen {
			return nil, NewSpreadsheetError(ErrorCodeValue, "expected closing parenthesis")
		}
		p.pos++
		return node, nil

	case TokenEOF:
		return nil, NewSpreadsheetError(ErrorCodeValue, "unexpected end of expression")

	default:
		return nil, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("unexpected token: %s", tok.Value))
	}
}

// parseFunctionCall parses NAME(args...)
func (p *Parser) parseFunctionCall() (ASTNode, error) {
	funcTok := p.current()
	p.pos++

	if p.current().Type != TokenLeftParen {
		return nil, NewSpreadsheetError(ErrorCodeValue, "expected '(' after function name")
	}
	p.pos++

	args, end, err := p.parseArguments()
	if err != nil {
		return nil, err
	}

	return &FunctionCallNode{
		Name:     funcTok.Value,
		Args:     args,
		Position: NodePosition{Start: funcTok.Pos, End: end},
	}, nil
}

// parseArguments parses a comma separated list after an opening paren and
// consumes the closing paren. it returns the end position of the list.
func (p *Parser) parseArguments() ([]ASTNode, int, error) {
	args := []ASTNode{}

	if p.current().Type == TokenRightParen {
		end := p.current().Pos + 1
		p.pos++
		return args, end, nil
	}

	for {
		arg, err := p.parseComparison()
		if err != nil {
			return nil, 0, err
		}
		args = append(args, arg)

		switch p.current().Type {
		case TokenRightParen:
			end := p.current().Pos + 1
			p.pos++
			return args, end, nil
		case TokenComma:
			p.pos++
		case TokenEOF:
			return nil, 0, NewSpreadsheetError(ErrorCodeValue, "unexpected end in function arguments")
		default:
			return nil, 0, NewSpreadsheetError(ErrorCodeValue, "expected ',' or ')' in function arguments")
		}
	}
}

// parseCellReference parses a cell reference token into a CellRefNode
func parseCellReference(tok Token) (*CellRefNode, error) {
	sheet, cell := splitSheetQualifier(tok.Value)
	col, row, absCol, absRow, err := parseA1(cell)
	if err != nil {
		return nil, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("invalid cell reference: %s", tok.Value))
	}

	return &CellRefNode{
		Sheet:    sheet,
		Col:      col,
		Row:      row,
		AbsCol:   absCol,
		AbsRow:   absRow,
		Position: NodePosition{Start: tok.Pos, End: tok.Pos + len(tok.Value)},
	}, nil
}

// parseRange parses a range token into a RangeNode. a sheet qualifier on
// the first corner applies to both.
func parseRange(tok Token) (*RangeNode, error) {
	sheet, rangeStr := splitSheetQualifier(tok.Value)

	parts := strings.Split(rangeStr, ":")
	if len(parts) != 2 {
		return nil, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("invalid range format: %s", tok.Value))
	}

	corners := [2]CellRefNode{}
	for i, part := range parts {
		col, row, absCol, absRow, err := parseA1(part)
		if err != nil {
			return nil, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("invalid cell in range: %s", part))
		}
		corners[i] = CellRefNode{Sheet: sheet, Col: col, Row: row, AbsCol: absCol, AbsRow: absRow}
	}

	position := NodePosition{Start: tok.Pos, End: tok.Pos + len(tok.Value)}
	corners[0].Position = position
	corners[1].Position = position

	return &RangeNode{
		Start:    corners[0],
		End:      corners[1],
		Position: position,
	}, nil
}
