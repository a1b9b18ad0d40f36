package formula

import (
	"log/slog"
)

// Options configures an Engine. zero fields are filled by DefaultOptions.
type Options struct {
	// ASTCacheSize is how many parsed formulas the engine keeps, keyed by
	// cell
	ASTCacheSize int

	// MaxArrayCells bounds range expansion and ARRAYFORMULA output
	MaxArrayCells int

	// MaxDepth bounds expression nesting, including LAMBDA recursion
	MaxDepth int

	Clock  Clock
	Random RandomGenerator

	// HasCellContent tells the spill manager whether the host holds user
	// content in a cell. nil means every cell is free.
	HasCellContent ContentProbe

	Logger *slog.Logger
}

const defaultASTCacheSize = 4096

// DefaultOptions returns the options an engine uses when none are given
func DefaultOptions() Options {
	return Options{
		ASTCacheSize:  defaultASTCacheSize,
		MaxArrayCells: defaultMaxArrayCells,
		MaxDepth:      defaultMaxDepth,
		Clock:         &WallClock{},
		Random:        &DefaultRandomGenerator{},
		Logger:        slog.Default().With("component", "formula"),
	}
}

// withDefaults fills every unset field from DefaultOptions
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.ASTCacheSize <= 0 {
		o.ASTCacheSize = def.ASTCacheSize
	}
	if o.MaxArrayCells <= 0 {
		o.MaxArrayCells = def.MaxArrayCells
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = def.MaxDepth
	}
	if o.Clock == nil {
		o.Clock = def.Clock
	}
	if o.Random == nil {
		o.Random = def.Random
	}
	if o.Logger == nil {
		o.Logger = def.Logger
	}
	return o
}
