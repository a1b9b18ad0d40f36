package formula

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// maxSpillRounds bounds how often a recalculation pass follows spill
// ranges that moved into cells other formulas read
const maxSpillRounds = 8

type cachedAST struct {
	text string
	ast  ASTNode
}

// Engine parses, evaluates and recalculates formulas for a host that owns
// the cell values. it keeps the dependency graph, a per-cell AST cache and
// the spill maps. an Engine is not safe for concurrent use.
type Engine struct {
	opts      Options
	functions *BuiltInFunctions
	graph     *DependencyGraph
	spills    *SpillManager
	cache     *lru.Cache[CellKey, cachedAST]
	logger    *slog.Logger
}

// NewEngine creates an engine. zero option fields get their defaults.
func NewEngine(opts Options) (*Engine, error) {
	opts = opts.withDefaults()
	cache, err := lru.New[CellKey, cachedAST](opts.ASTCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating AST cache: %w", err)
	}
	return &Engine{
		opts:      opts,
		functions: NewBuiltInFunctions(opts.Clock, opts.Random, opts.Logger),
		graph:     NewDependencyGraph(),
		spills:    NewSpillManager(opts.Logger),
		cache:     cache,
		logger:    opts.Logger,
	}, nil
}

// Functions returns the engine's function library, hosts may Register
// their own functions on it
func (e *Engine) Functions() *BuiltInFunctions {
	return e.functions
}

// Graph returns the dependency graph
func (e *Engine) Graph() *DependencyGraph {
	return e.graph
}

// ParseFormula parses formula text into an AST
func (e *Engine) ParseFormula(text string) (ASTNode, error) {
	return ParseFormula(text)
}

// isFormula reports whether cell content is formula text
func isFormula(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "=")
}

// parse returns the AST for text, reusing the cached one when key's
// formula has not changed
func (e *Engine) parse(text string, key *CellKey) (ASTNode, error) {
	if key == nil {
		return ParseFormula(text)
	}
	if cached, ok := e.cache.Get(*key); ok && cached.text == text {
		return cached.ast, nil
	}
	e.logger.Debug("ast cache miss", "cell", key.String())
	ast, err := ParseFormula(text)
	if err != nil {
		e.cache.Remove(*key)
		return nil, err
	}
	e.cache.Add(*key, cachedAST{text: text, ast: ast})
	return ast, nil
}

// newContext creates the evaluation context for one top-level call
func (e *Engine) newContext(get CellAccessor, sheet string) *EvalContext {
	ctx := NewEvalContext(e.withSpills(get), sheet, e.functions)
	ctx.maxDepth = e.opts.MaxDepth
	ctx.maxCells = e.opts.MaxArrayCells
	return ctx
}

// withSpills wraps the host accessor so empty cells show spilled values
func (e *Engine) withSpills(get CellAccessor) CellAccessor {
	return func(sheet string, col, row int) Primitive {
		var v Primitive
		if get != nil {
			v = get(sheet, col, row)
		}
		if v != nil {
			return v
		}
		if spilled, ok := e.spills.GetSpillValue(CellKey{Sheet: sheet, Row: row, Col: col}); ok {
			return spilled
		}
		return nil
	}
}

// EvaluateFormula evaluates formula text. with a key, the AST is cached for
// that cell and an array result spills from it; without one an array
// collapses to its top-left value. failures come back as error values.
func (e *Engine) EvaluateFormula(text string, get CellAccessor, key *CellKey) Primitive {
	if key != nil && e.graph.IsInCycle(*key) {
		e.spills.ClearSpill(*key)
		return NewSpreadsheetError(ErrorCodeRef, "circular reference")
	}

	ast, err := e.parse(text, key)
	if err != nil {
		if key != nil {
			e.spills.ClearSpill(*key)
		}
		var spreadsheetErr *SpreadsheetError
		if errors.As(err, &spreadsheetErr) {
			return spreadsheetErr
		}
		return NewSpreadsheetError(ErrorCodeValue, err.Error())
	}

	sheet := ""
	if key != nil {
		sheet = key.Sheet
	}
	result := e.newContext(get, sheet).Evaluate(ast)

	arr, isArray := result.(Array)
	switch {
	case isArray && key != nil:
		return e.spills.Apply(*key, arr, e.opts.HasCellContent)
	case isArray:
		if arr.Rows() == 0 || arr.Cols() == 0 {
			return nil
		}
		return arr.At(0, 0)
	case key != nil:
		e.spills.ClearSpill(*key)
	}
	return result
}

// UpdateDependencies records the cells key's formula reads. text without a
// leading '=' clears them. false means the formula would close a cycle:
// the previous edges are kept and the host should show #REF!. the cell
// stays circular until its formula is submitted again, even when an edit
// elsewhere breaks the cycle.
func (e *Engine) UpdateDependencies(key CellKey, text string) bool {
	if !isFormula(text) {
		e.RemoveFormula(key)
		return true
	}

	ast, err := e.parse(text, &key)
	if err != nil {
		e.graph.RemoveCell(key)
		return true
	}

	if err := e.graph.ReplaceDependencies(key, e.precedents(ast, key.Sheet)); err != nil {
		e.logger.Debug("formula rejected", "cell", key.String(), "error", err)
		e.graph.UnmarkVolatile(key)
		return false
	}

	if hasVolatileCall(ast) {
		e.graph.MarkVolatile(key)
	} else {
		e.graph.UnmarkVolatile(key)
	}
	return true
}

// precedents lists every cell the formula reads. a range contributes every
// cell inside it at this moment.
func (e *Engine) precedents(ast ASTNode, sheet string) []CellKey {
	var keys []CellKey
	Walk(ast, func(node ASTNode) bool {
		switch n := node.(type) {
		case *CellRefNode:
			keys = append(keys, n.key(sheet))
		case *RangeNode:
			rows, cols := n.Size()
			if rows*cols > e.opts.MaxArrayCells {
				return false
			}
			top, left, _, _ := n.Bounds()
			rangeSheet := n.Start.key(sheet).Sheet
			for i := range rows {
				for j := range cols {
					keys = append(keys, CellKey{Sheet: rangeSheet, Row: top + i, Col: left + j})
				}
			}
		}
		return true
	})
	return keys
}

func hasVolatileCall(ast ASTNode) bool {
	volatile := false
	Walk(ast, func(node ASTNode) bool {
		switch n := node.(type) {
		case *FunctionCallNode:
			volatile = volatile || isVolatileFunction(n.Name)
		case *IdentifierNode:
			volatile = volatile || isVolatileFunction(n.Name)
		}
		return !volatile
	})
	return volatile
}

// RemoveFormula forgets everything the engine holds for key's formula
func (e *Engine) RemoveFormula(key CellKey) {
	e.graph.RemoveCell(key)
	e.cache.Remove(key)
	e.spills.ClearSpill(key)
}

// Recalculate evaluates every formula that transitively reads changed, each
// after its own precedents. values computed in this pass shadow the host's
// and cells rejected as circular get #REF!. one failing cell does not stop
// the others. when a spill range moves, its readers are evaluated again
// and so is every formula whose spill covers a cell it released.
func (e *Engine) Recalculate(changed CellKey, getFormula func(CellKey) string, get CellAccessor) map[CellKey]Primitive {
	results := make(map[CellKey]Primitive)
	overlay := func(sheet string, col, row int) Primitive {
		if v, ok := results[CellKey{Sheet: sheet, Row: row, Col: col}]; ok {
			return v
		}
		if get == nil {
			return nil
		}
		return get(sheet, col, row)
	}

	// a formula the host just evaluated at changed may have moved its own
	// spill
	roots := []CellKey{changed}
	if rng, ok := e.spills.takeReleased(changed); ok {
		roots = append(roots, rng.Targets()...)
	}
	if rng, ok := e.spills.GetSpillRange(changed); ok {
		roots = append(roots, rng.Targets()...)
	}
	roots = append(roots, e.retrySpills(roots, changed, getFormula, overlay, results)...)

	for round := 0; len(roots) > 0; round++ {
		if round == maxSpillRounds {
			e.logger.Debug("recalculation stopped following spills", "cell", changed.String(), "rounds", round)
			break
		}
		var moved []CellKey
		for _, key := range e.graph.GetRecalculationOrder(roots...) {
			moved = append(moved, e.recalculateCell(key, getFormula, overlay, results)...)
		}
		moved = append(moved, e.retrySpills(moved, changed, getFormula, overlay, results)...)
		roots = moved
	}
	return results
}

// retrySpills evaluates again the formulas whose current or blocked spill
// covers one of keys. changed and cells already evaluated in this pass are
// skipped. it returns the cells their spills touched.
func (e *Engine) retrySpills(keys []CellKey, changed CellKey, getFormula func(CellKey) string, get CellAccessor, results map[CellKey]Primitive) []CellKey {
	var touched []CellKey
	seen := make(map[CellKey]struct{})
	for _, key := range keys {
		for _, source := range e.spills.SourcesCovering(key) {
			if _, done := results[source]; done || source == changed {
				continue
			}
			if _, dup := seen[source]; dup {
				continue
			}
			seen[source] = struct{}{}
			touched = append(touched, e.recalculateCell(source, getFormula, get, results)...)
		}
	}
	return touched
}

// recalculateCell evaluates one formula cell into results and returns the
// cells whose spilled value may have changed
func (e *Engine) recalculateCell(key CellKey, getFormula func(CellKey) string, get CellAccessor, results map[CellKey]Primitive) []CellKey {
	text := ""
	if getFormula != nil {
		text = getFormula(key)
	}
	if !isFormula(text) {
		return nil
	}

	before, hadSpill := e.spills.GetSpillRange(key)
	if e.graph.IsInCycle(key) {
		results[key] = NewSpreadsheetError(ErrorCodeRef, "circular reference")
		e.spills.ClearSpill(key)
	} else {
		results[key] = e.EvaluateFormula(text, get, &key)
	}
	after, hasSpill := e.spills.GetSpillRange(key)
	e.spills.takeReleased(key)

	var touched []CellKey
	if hadSpill {
		touched = append(touched, before.Targets()...)
	}
	if hasSpill {
		touched = append(touched, after.Targets()...)
	}
	return touched
}

// VolatileCells returns the cells whose formulas call NOW, TODAY, RAND or
// RANDBETWEEN. hosts re-evaluate them when they refresh.
func (e *Engine) VolatileCells() []CellKey {
	return e.graph.GetVolatileCells()
}

// GetSpillValue returns the value spilled into key
func (e *Engine) GetSpillValue(key CellKey) (Primitive, bool) {
	return e.spills.GetSpillValue(key)
}

// IsSpillTarget reports whether key shows a spilled value
func (e *Engine) IsSpillTarget(key CellKey) bool {
	return e.spills.IsSpillTarget(key)
}

// GetSpillSource returns the formula cell spilling into key
func (e *Engine) GetSpillSource(key CellKey) (CellKey, bool) {
	return e.spills.GetSpillSource(key)
}

// GetSpillRange returns the range source spills into
func (e *Engine) GetSpillRange(source CellKey) (SpillRange, bool) {
	return e.spills.GetSpillRange(source)
}

// ClearSpill removes source's spilled values
func (e *Engine) ClearSpill(source CellKey) {
	e.spills.ClearSpill(source)
}
