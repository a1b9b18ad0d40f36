package formula

import (
	"fmt"
	"strings"
)

type NodePosition struct {
	Start int
	End   int
}

// ASTNode is a parsed formula. Eval never panics or returns a Go error: a
// failure is an error value.
type ASTNode interface {
	Eval(ctx *EvalContext) Primitive
	GetPosition() NodePosition
	ToString() string
}

// StringNode represents a string literal
type StringNode struct {
	Value    string
	Position NodePosition
}

func (n *StringNode) GetPosition() NodePosition {
	return n.Position
}

func (n *StringNode) ToString() string {
	escaped := strings.ReplaceAll(n.Value, "\"", "\"\"")
	return fmt.Sprintf("\"%s\"", escaped)
}

// NumberNode represents a numeric literal
type NumberNode struct {
	Value    float64
	Position NodePosition
}

func (n *NumberNode) GetPosition() NodePosition {
	return n.Position
}

func (n *NumberNode) ToString() string {
	return formatNumber(n.Value)
}

// BooleanNode represents a boolean literal
type BooleanNode struct {
	Value    bool
	Position NodePosition
}

func (n *BooleanNode) GetPosition() NodePosition {
	return n.Position
}

func (n *BooleanNode) ToString() string {
	if n.Value {
		return "TRUE"
	}
	return "FALSE"
}

// ErrorNode represents an error literal such as #N/A
type ErrorNode struct {
	Code     ErrorCode
	Position NodePosition
}

func (n *ErrorNode) GetPosition() NodePosition {
	return n.Position
}

func (n *ErrorNode) ToString() string {
	return ErrorMapper[n.Code]
}

// CellRefNode represents a single cell reference. Sheet is empty for
// references to the formula's own sheet.
type CellRefNode struct {
	Sheet    string
	Col      int
	Row      int
	AbsCol   bool
	AbsRow   bool
	Position NodePosition
}

func (n *CellRefNode) GetPosition() NodePosition {
	return n.Position
}

func (n *CellRefNode) ToString() string {
	var sb strings.Builder
	if n.Sheet != "" {
		sb.WriteString(quoteSheetName(n.Sheet))
		sb.WriteString("!")
	}
	sb.WriteString(n.localName())
	return sb.String()
}

func (n *CellRefNode) localName() string {
	var sb strings.Builder
	if n.AbsCol {
		sb.WriteString("$")
	}
	sb.WriteString(columnName(n.Col))
	if n.AbsRow {
		sb.WriteString("$")
	}
	fmt.Fprintf(&sb, "%d", n.Row+1)
	return sb.String()
}

// key resolves the reference against the sheet of the evaluating formula
func (n *CellRefNode) key(currentSheet string) CellKey {
	sheet := n.Sheet
	if sheet == "" {
		sheet = currentSheet
	}
	return CellKey{Sheet: sheet, Row: n.Row, Col: n.Col}
}

// RangeNode represents a rectangular range. the corners are kept as typed;
// Bounds normalizes them.
type RangeNode struct {
	Start    CellRefNode
	End      CellRefNode
	Position NodePosition
}

func (n *RangeNode) GetPosition() NodePosition {
	return n.Position
}

func (n *RangeNode) ToString() string {
	return n.Start.ToString() + ":" + n.End.localName()
}

// Bounds returns the normalized top-left and bottom-right corners
func (n *RangeNode) Bounds() (top, left, bottom, right int) {
	return min(n.Start.Row, n.End.Row), min(n.Start.Col, n.End.Col),
		max(n.Start.Row, n.End.Row), max(n.Start.Col, n.End.Col)
}

// Size returns the normalized row and column counts
func (n *RangeNode) Size() (rows, cols int) {
	top, left, bottom, right := n.Bounds()
	return bottom - top + 1, right - left + 1
}

// IdentifierNode is a bare name: a LET or LAMBDA binding, or a zero-argument
// function used without parentheses
type IdentifierNode struct {
	Name     string
	Position NodePosition
}

func (n *IdentifierNode) GetPosition() NodePosition {
	return n.Position
}

func (n *IdentifierNode) ToString() string {
	return n.Name
}

// BinaryOpNode represents a binary operation
type BinaryOpNode struct {
	Op       BinaryOp
	Left     ASTNode
	Right    ASTNode
	Position NodePosition
}

func (n *BinaryOpNode) GetPosition() NodePosition {
	return n.Position
}

var binaryOpText = map[BinaryOp]string{
	BinOpAdd:          "+",
	BinOpSubtract:     "-",
	BinOpMultiply:     "*",
	BinOpDivide:       "/",
	BinOpPercent:      "%",
	BinOpPower:        "^",
	BinOpConcat:       "&",
	BinOpEqual:        "=",
	BinOpNotEqual:     "<>",
	BinOpLess:         "<",
	BinOpLessEqual:    "<=",
	BinOpGreater:      ">",
	BinOpGreaterEqual: ">=",
}

func (n *BinaryOpNode) ToString() string {
	return fmt.Sprintf("(%s%s%s)", n.Left.ToString(), binaryOpText[n.Op], n.Right.ToString())
}

// UnaryOpNode represents a unary operation
type UnaryOpNode struct {
	Op       UnaryOp
	Operand  ASTNode
	Position NodePosition
}

func (n *UnaryOpNode) GetPosition() NodePosition {
	return n.Position
}

func (n *UnaryOpNode) ToString() string {
	switch n.Op {
	case UnaryOpMinus:
		return "-" + n.Operand.ToString()
	case UnaryOpPercent:
		return fmt.Sprintf("(%s%%)", n.Operand.ToString())
	}
	return "+" + n.Operand.ToString()
}

// FunctionCallNode represents a call by name: a built-in, a special form,
// or a LAMBDA bound to that name
type FunctionCallNode struct {
	Name     string
	Args     []ASTNode
	Position NodePosition
}

func (n *FunctionCallNode) GetPosition() NodePosition {
	return n.Position
}

func (n *FunctionCallNode) ToString() string {
	return fmt.Sprintf("%s(%s)", n.Name, joinNodes(n.Args))
}

// CallNode invokes the value of an expression, e.g. LAMBDA(x,x+1)(2)
type CallNode struct {
	Callee   ASTNode
	Args     []ASTNode
	Position NodePosition
}

func (n *CallNode) GetPosition() NodePosition {
	return n.Position
}

func (n *CallNode) ToString() string {
	return fmt.Sprintf("%s(%s)", n.Callee.ToString(), joinNodes(n.Args))
}

func joinNodes(nodes []ASTNode) string {
	parts := make([]string, len(nodes))
	for i, node := range nodes {
		parts[i] = node.ToString()
	}
	return strings.Join(parts, ",")
}

// Walk visits node and its children depth-first, stopping a branch when fn
// returns false
func Walk(node ASTNode, fn func(ASTNode) bool) {
	if node == nil || !fn(node) {
		return
	}
	switch n := node.(type) {
	case *BinaryOpNode:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *UnaryOpNode:
		Walk(n.Operand, fn)
	case *FunctionCallNode:
		for _, arg := range n.Args {
			Walk(arg, fn)
		}
	case *CallNode:
		Walk(n.Callee, fn)
		for _, arg := range n.Args {
			Walk(arg, fn)
		}
	}
}
