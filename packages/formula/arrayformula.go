package formula

import "fmt"

// evalArrayFormula implements ARRAYFORMULA(expr). an expression that already
// produces an array is returned as is. otherwise expr is evaluated once per
// output position, with every range in it reading the cell at that offset.
// the output is as large as the largest range, and a smaller range repeats
// its last row or column.
func (ctx *EvalContext) evalArrayFormula(args []ASTNode) Primitive {
	if len(args) != 1 {
		return NewSpreadsheetError(ErrorCodeValue, "ARRAYFORMULA requires 1 argument")
	}
	expr := args[0]

	// nested ARRAYFORMULA shares the enclosing position
	if ctx.position != nil {
		return ctx.evalArg(expr)
	}

	direct := ctx.evalArg(expr)
	if _, ok := direct.(Array); ok {
		return direct
	}

	ranges := rangesIn(expr)
	if len(ranges) == 0 {
		return direct
	}

	rows, cols := 1, 1
	for _, r := range ranges {
		rr, rc := r.Size()
		rows = max(rows, rr)
		cols = max(cols, rc)
	}
	if rows*cols > ctx.maxCells {
		return NewSpreadsheetError(ErrorCodeNum, fmt.Sprintf("ARRAYFORMULA result is larger than %d cells", ctx.maxCells))
	}

	out := NewArray(rows, cols)
	defer func() { ctx.position = nil }()
	for r := range rows {
		for c := range cols {
			ctx.position = &arrayPosition{row: r, col: c}
			v := scalarOf(ctx.evalArg(expr))
			if _, ok := v.(LambdaRef); ok {
				v = NewSpreadsheetError(ErrorCodeValue, "ARRAYFORMULA element is an uncalled LAMBDA")
			}
			out[r][c] = v
		}
	}

	if rows == 1 && cols == 1 {
		return out[0][0]
	}
	return out
}

// positionalCell reads the cell of r at the current ARRAYFORMULA position,
// clamped to the range
func (ctx *EvalContext) positionalCell(r *RangeNode) Primitive {
	top, left, _, _ := r.Bounds()
	rows, cols := r.Size()
	row := top + min(ctx.position.row, rows-1)
	col := left + min(ctx.position.col, cols-1)
	return ctx.read(r.Start.key(ctx.sheet).Sheet, col, row)
}

// rangesIn collects every range reference in node
func rangesIn(node ASTNode) []*RangeNode {
	var ranges []*RangeNode
	Walk(node, func(n ASTNode) bool {
		if r, ok := n.(*RangeNode); ok {
			ranges = append(ranges, r)
		}
		return true
	})
	return ranges
}
