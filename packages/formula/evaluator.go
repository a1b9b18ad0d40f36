package formula

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/google/uuid"
)

// CellAccessor returns the current value of a cell, nil for empty cells.
// col and row are 0-based. it must be pure and synchronous.
type CellAccessor func(sheet string, col, row int) Primitive

const (
	defaultMaxDepth      = 2048
	defaultMaxArrayCells = 1_000_000
)

// EvalContext carries everything one top-level evaluation needs: the cell
// accessor, the sheet unqualified references resolve against, the binding
// scope and the closures created so far. a context is never shared between
// top-level evaluations, so closures cannot leak from one formula into
// another.
type EvalContext struct {
	accessor  CellAccessor
	sheet     string
	scope     *Scope
	lambdas   map[LambdaRef]*Closure
	functions *BuiltInFunctions
	logger    *slog.Logger

	// set while ARRAYFORMULA evaluates one output element
	position *arrayPosition

	depth    int
	maxDepth int
	maxCells int
}

type arrayPosition struct {
	row int
	col int
}

// NewEvalContext creates a context for one top-level evaluation
func NewEvalContext(accessor CellAccessor, sheet string, functions *BuiltInFunctions) *EvalContext {
	if functions == nil {
		functions = defaultFunctions()
	}
	return &EvalContext{
		accessor:  accessor,
		sheet:     sheet,
		lambdas:   make(map[LambdaRef]*Closure),
		functions: functions,
		logger:    functions.logger,
		maxDepth:  defaultMaxDepth,
		maxCells:  defaultMaxArrayCells,
	}
}

var defaultFunctions = sync.OnceValue(func() *BuiltInFunctions {
	return NewDefaultBuiltInFunctions()
})

// Evaluate evaluates ast against accessor with the default function library
func Evaluate(ast ASTNode, accessor CellAccessor) Primitive {
	return NewEvalContext(accessor, "", nil).Evaluate(ast)
}

// EvaluateIn evaluates ast in an existing context
func EvaluateIn(ctx *EvalContext, ast ASTNode) Primitive {
	return ctx.Evaluate(ast)
}

// Evaluate evaluates a top-level formula. a closure cannot be a formula's
// result, so an escaping LAMBDA is #VALUE!
func (ctx *EvalContext) Evaluate(ast ASTNode) Primitive {
	if ast == nil {
		return NewSpreadsheetError(ErrorCodeValue, "empty formula")
	}
	result := ctx.eval(ast)
	if _, ok := result.(LambdaRef); ok {
		return NewSpreadsheetError(ErrorCodeValue, "formula result is an uncalled LAMBDA")
	}
	return result
}

// Closures returns how many LAMBDAs this context has created
func (ctx *EvalContext) Closures() int {
	return len(ctx.lambdas)
}

// eval evaluates a node in operand position
func (ctx *EvalContext) eval(node ASTNode) Primitive {
	if ctx.depth >= ctx.maxDepth {
		return NewSpreadsheetError(ErrorCodeValue, "formula nesting too deep")
	}
	ctx.depth++
	defer func() { ctx.depth-- }()
	return node.Eval(ctx)
}

// evalArg evaluates a node in argument position, where a range expands to
// an array of its values
func (ctx *EvalContext) evalArg(node ASTNode) Primitive {
	if r, ok := node.(*RangeNode); ok {
		if ctx.position != nil {
			return ctx.positionalCell(r)
		}
		return ctx.expandRange(r)
	}
	return ctx.eval(node)
}

// read resolves one cell through the accessor
func (ctx *EvalContext) read(sheet string, col, row int) Primitive {
	if ctx.accessor == nil {
		return nil
	}
	switch v := ctx.accessor(sheet, col, row).(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case float32:
		return float64(v)
	case Array:
		return v.At(0, 0)
	default:
		return v
	}
}

// expandRange returns the range's values as a row-major array
func (ctx *EvalContext) expandRange(r *RangeNode) Primitive {
	top, left, _, _ := r.Bounds()
	rows, cols := r.Size()
	if rows*cols > ctx.maxCells {
		return NewSpreadsheetError(ErrorCodeNum, fmt.Sprintf("range %s is larger than %d cells", r.ToString(), ctx.maxCells))
	}

	sheet := r.Start.key(ctx.sheet).Sheet
	out := NewArray(rows, cols)
	for i := range rows {
		for j := range cols {
			out[i][j] = ctx.read(sheet, left+j, top+i)
		}
	}
	return out
}

func (n *StringNode) Eval(ctx *EvalContext) Primitive {
	return n.Value
}

func (n *NumberNode) Eval(ctx *EvalContext) Primitive {
	return n.Value
}

func (n *BooleanNode) Eval(ctx *EvalContext) Primitive {
	return n.Value
}

func (n *ErrorNode) Eval(ctx *EvalContext) Primitive {
	return NewSpreadsheetError(n.Code, "")
}

func (n *CellRefNode) Eval(ctx *EvalContext) Primitive {
	key := n.key(ctx.sheet)
	return ctx.read(key.Sheet, key.Col, key.Row)
}

// Eval on a range outside an argument position is a #VALUE! error, except
// while ARRAYFORMULA evaluates one element
func (n *RangeNode) Eval(ctx *EvalContext) Primitive {
	if ctx.position != nil {
		return ctx.positionalCell(n)
	}
	return NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("range %s used as a single value", n.ToString()))
}

// Eval resolves the name against the binding scope, then as a zero-argument
// function
func (n *IdentifierNode) Eval(ctx *EvalContext) Primitive {
	if v, ok := ctx.scope.Lookup(n.Name); ok {
		return v
	}
	if ctx.functions.Has(n.Name) {
		return ctx.callBuiltin(n.Name, nil)
	}
	return NewSpreadsheetError(ErrorCodeName, fmt.Sprintf("unknown name: %s", n.Name))
}

func (n *UnaryOpNode) Eval(ctx *EvalContext) Primitive {
	val := ctx.eval(n.Operand)
	if err, ok := val.(*SpreadsheetError); ok {
		return err
	}
	if arr, ok := val.(Array); ok {
		return mapArray(arr, func(v Primitive) Primitive { return applyUnary(n.Op, v) })
	}
	return applyUnary(n.Op, val)
}

func applyUnary(op UnaryOp, val Primitive) Primitive {
	if err, ok := val.(*SpreadsheetError); ok {
		return err
	}
	if _, ok := val.(LambdaRef); ok {
		return NewSpreadsheetError(ErrorCodeValue, "a LAMBDA is not a number")
	}
	num, ok := toNumber(val)
	if !ok {
		return NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("cannot convert %q to a number", toString(val)))
	}

	switch op {
	case UnaryOpMinus:
		return -num
	case UnaryOpPercent:
		return num / 100.0
	default:
		return num
	}
}

func (n *BinaryOpNode) Eval(ctx *EvalContext) Primitive {
	// the first error wins, the right side is not evaluated
	left := ctx.eval(n.Left)
	if err, ok := left.(*SpreadsheetError); ok {
		return err
	}
	right := ctx.eval(n.Right)
	if err, ok := right.(*SpreadsheetError); ok {
		return err
	}

	_, leftIsArray := left.(Array)
	_, rightIsArray := right.(Array)
	if leftIsArray || rightIsArray {
		return zipArrays(asArray(left), asArray(right), func(l, r Primitive) Primitive {
			return applyBinary(n.Op, l, r)
		})
	}
	return applyBinary(n.Op, left, right)
}

func applyBinary(op BinaryOp, left, right Primitive) Primitive {
	if err, ok := left.(*SpreadsheetError); ok {
		return err
	}
	if err, ok := right.(*SpreadsheetError); ok {
		return err
	}
	_, leftIsLambda := left.(LambdaRef)
	_, rightIsLambda := right.(LambdaRef)
	if leftIsLambda || rightIsLambda {
		return NewSpreadsheetError(ErrorCodeValue, "a LAMBDA cannot be an operand")
	}

	switch op {
	case BinOpConcat:
		return toString(left) + toString(right)
	case BinOpEqual:
		return comparePrimitives(left, right) == 0
	case BinOpNotEqual:
		return comparePrimitives(left, right) != 0
	case BinOpLess:
		return comparePrimitives(left, right) < 0
	case BinOpLessEqual:
		return comparePrimitives(left, right) <= 0
	case BinOpGreater:
		return comparePrimitives(left, right) > 0
	case BinOpGreaterEqual:
		return comparePrimitives(left, right) >= 0
	}

	leftNum, leftOk := toNumber(left)
	rightNum, rightOk := toNumber(right)
	if !leftOk || !rightOk {
		return NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("operator %s requires numeric values", binaryOpText[op]))
	}

	switch op {
	case BinOpAdd:
		return checkNumber(leftNum + rightNum)
	case BinOpSubtract:
		return checkNumber(leftNum - rightNum)
	case BinOpMultiply:
		return checkNumber(leftNum * rightNum)
	case BinOpDivide, BinOpPercent:
		if rightNum == 0 {
			return NewSpreadsheetError(ErrorCodeDiv0, "Division by zero")
		}
		return checkNumber(leftNum / rightNum)
	case BinOpPower:
		return checkNumber(math.Pow(leftNum, rightNum))
	}
	return NewSpreadsheetError(ErrorCodeValue, "Unknown operator")
}

// mapArray applies fn to every element
func mapArray(arr Array, fn func(Primitive) Primitive) Array {
	out := NewArray(arr.Rows(), arr.Cols())
	for r := range out {
		for c := range out[r] {
			out[r][c] = fn(arr.At(r, c))
		}
	}
	return out
}

// zipArrays combines two arrays element by element. a single row or column
// is repeated across the other operand's size, positions outside a larger
// mismatched operand are #N/A.
func zipArrays(left, right Array, fn func(l, r Primitive) Primitive) Array {
	rows := max(left.Rows(), right.Rows())
	cols := max(left.Cols(), right.Cols())
	out := NewArray(rows, cols)
	for r := range rows {
		for c := range cols {
			l, lok := broadcastAt(left, r, c)
			rv, rok := broadcastAt(right, r, c)
			if !lok || !rok {
				out[r][c] = NewSpreadsheetError(ErrorCodeNA, "array sizes do not match")
				continue
			}
			out[r][c] = fn(l, rv)
		}
	}
	return out
}

func broadcastAt(arr Array, r, c int) (Primitive, bool) {
	if arr.Rows() == 1 {
		r = 0
	}
	if arr.Cols() == 1 {
		c = 0
	}
	if r >= arr.Rows() || c >= arr.Cols() {
		return nil, false
	}
	return arr.At(r, c), true
}

func (n *FunctionCallNode) Eval(ctx *EvalContext) Primitive {
	// a LAMBDA bound with LET is called by name
	if v, ok := ctx.scope.Lookup(n.Name); ok {
		if ref, ok := v.(LambdaRef); ok {
			return ctx.invoke(ref, n.Args)
		}
		return NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("%s is not a LAMBDA", n.Name))
	}

	switch n.Name {
	case "IF":
		return ctx.evalIf(n.Args)
	case "IFERROR":
		return ctx.evalIfError(n.Args, false)
	case "IFNA":
		return ctx.evalIfError(n.Args, true)
	case "ARRAYFORMULA":
		return ctx.evalArrayFormula(n.Args)
	case "LET":
		return ctx.evalLet(n.Args)
	case "LAMBDA":
		return ctx.evalLambda(n.Args)
	}

	if !ctx.functions.Has(n.Name) {
		return NewSpreadsheetError(ErrorCodeName, fmt.Sprintf("Unknown function: %s", n.Name))
	}

	// functions see error arguments as values and decide themselves
	args := make([]Primitive, len(n.Args))
	for i, arg := range n.Args {
		args[i] = ctx.evalArg(arg)
	}
	return ctx.callBuiltin(n.Name, args)
}

func (n *CallNode) Eval(ctx *EvalContext) Primitive {
	callee := ctx.eval(n.Callee)
	if err, ok := callee.(*SpreadsheetError); ok {
		return err
	}
	ref, ok := callee.(LambdaRef)
	if !ok {
		return NewSpreadsheetError(ErrorCodeValue, "only a LAMBDA can be called")
	}
	return ctx.invoke(ref, n.Args)
}

// callBuiltin dispatches to the function library and turns Go errors and
// non-finite numbers into error values
func (ctx *EvalContext) callBuiltin(name string, args []Primitive) Primitive {
	result, err := ctx.functions.Call(name, args...)
	if err != nil {
		if spreadsheetErr, ok := err.(*SpreadsheetError); ok {
			return spreadsheetErr
		}
		return NewSpreadsheetError(ErrorCodeValue, err.Error())
	}
	switch v := result.(type) {
	case float64:
		return checkNumber(v)
	case int:
		return float64(v)
	}
	return result
}

// evalIf evaluates only the branch that is taken
func (ctx *EvalContext) evalIf(args []ASTNode) Primitive {
	if len(args) < 2 || len(args) > 3 {
		return NewSpreadsheetError(ErrorCodeValue, "IF requires 2 or 3 arguments")
	}
	cond := ctx.evalArg(args[0])
	if err, ok := cond.(*SpreadsheetError); ok {
		return err
	}
	truthy, err := toBool(cond)
	if err != nil {
		return err
	}
	if truthy {
		return ctx.evalArg(args[1])
	}
	if len(args) == 3 {
		return ctx.evalArg(args[2])
	}
	return false
}

// evalIfError returns the fallback for any error, or only for #N/A
func (ctx *EvalContext) evalIfError(args []ASTNode, onlyNA bool) Primitive {
	if len(args) != 2 {
		return NewSpreadsheetError(ErrorCodeValue, "IFERROR/IFNA require 2 arguments")
	}
	value := ctx.evalArg(args[0])
	if err, ok := value.(*SpreadsheetError); ok {
		if !onlyNA || err.ErrorCode == ErrorCodeNA {
			return ctx.evalArg(args[1])
		}
	}
	return value
}

// evalLet binds each name in order, later values see earlier names
func (ctx *EvalContext) evalLet(args []ASTNode) Primitive {
	if len(args) < 3 || len(args)%2 == 0 {
		return NewSpreadsheetError(ErrorCodeValue, "LET requires name/value pairs and a body")
	}

	saved := ctx.scope
	scope := saved.Child()
	ctx.scope = scope
	defer func() { ctx.scope = saved }()

	for i := 0; i < len(args)-1; i += 2 {
		id, ok := args[i].(*IdentifierNode)
		if !ok {
			return NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("LET name must be an identifier, got %s", args[i].ToString()))
		}
		scope.Bind(id.Name, ctx.evalArg(args[i+1]))
	}
	return ctx.evalArg(args[len(args)-1])
}

// evalLambda registers a closure in this context and returns its handle
func (ctx *EvalContext) evalLambda(args []ASTNode) Primitive {
	if len(args) < 2 {
		return NewSpreadsheetError(ErrorCodeValue, "LAMBDA requires at least one parameter and a body")
	}

	params := make([]string, 0, len(args)-1)
	seen := make(map[string]struct{}, len(args)-1)
	for _, arg := range args[:len(args)-1] {
		id, ok := arg.(*IdentifierNode)
		if !ok {
			return NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("LAMBDA parameter must be an identifier, got %s", arg.ToString()))
		}
		if _, dup := seen[id.Name]; dup {
			return NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("duplicate LAMBDA parameter %s", id.Name))
		}
		seen[id.Name] = struct{}{}
		params = append(params, id.Name)
	}

	ref := LambdaRef("LAMBDA#" + uuid.NewString())
	ctx.lambdas[ref] = &Closure{
		ID:       ref,
		Params:   params,
		Body:     args[len(args)-1],
		Accessor: ctx.accessor,
		Sheet:    ctx.sheet,
		Scope:    ctx.scope,
	}
	return ref
}

// invoke calls a closure. arguments are evaluated in the caller's scope,
// the body runs in the closure's captured scope and accessor.
func (ctx *EvalContext) invoke(ref LambdaRef, argNodes []ASTNode) Primitive {
	closure, ok := ctx.lambdas[ref]
	if !ok {
		return NewSpreadsheetError(ErrorCodeValue, "unknown LAMBDA")
	}
	if len(argNodes) != len(closure.Params) {
		return NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("LAMBDA expects %d arguments, got %d", len(closure.Params), len(argNodes)))
	}

	scope := closure.Scope.Child()
	for i, argNode := range argNodes {
		scope.Bind(closure.Params[i], ctx.evalArg(argNode))
	}

	savedAccessor, savedSheet, savedScope := ctx.accessor, ctx.sheet, ctx.scope
	ctx.accessor, ctx.sheet, ctx.scope = closure.Accessor, closure.Sheet, scope
	defer func() {
		ctx.accessor, ctx.sheet, ctx.scope = savedAccessor, savedSheet, savedScope
	}()

	return ctx.evalArg(closure.Body)
}
