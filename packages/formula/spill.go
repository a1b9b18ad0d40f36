package formula

import (
	"log/slog"
	"slices"
)

// ContentProbe reports whether the host holds content of its own in a cell:
// a value or a formula. spilled values are not content. row and col are
// 0-based.
type ContentProbe func(sheet string, row, col int) bool

// SpillRange is the block an array result occupies, anchored at the
// formula cell
type SpillRange struct {
	Origin CellKey
	Rows   int
	Cols   int
}

// Contains reports whether key lies inside the range
func (r SpillRange) Contains(key CellKey) bool {
	return key.Sheet == r.Origin.Sheet &&
		key.Row >= r.Origin.Row && key.Row < r.Origin.Row+r.Rows &&
		key.Col >= r.Origin.Col && key.Col < r.Origin.Col+r.Cols
}

// Targets returns every cell of the range except the origin, row-major
func (r SpillRange) Targets() []CellKey {
	targets := make([]CellKey, 0, r.Rows*r.Cols)
	for i := range r.Rows {
		for j := range r.Cols {
			if i == 0 && j == 0 {
				continue
			}
			targets = append(targets, CellKey{Sheet: r.Origin.Sheet, Row: r.Origin.Row + i, Col: r.Origin.Col + j})
		}
	}
	return targets
}

func (r SpillRange) String() string {
	end := CellKey{Row: r.Origin.Row + r.Rows - 1, Col: r.Origin.Col + r.Cols - 1}
	return r.Origin.String() + ":" + end.String()
}

// SpillManager owns the cells array formulas write into. a target belongs
// to exactly one source at a time.
type SpillManager struct {
	ranges   map[CellKey]SpillRange // source -> current spill
	owner    map[CellKey]CellKey    // target -> source
	values   map[CellKey]Primitive  // target -> spilled value
	blocked  map[CellKey]SpillRange // source -> range it failed to claim
	released map[CellKey]SpillRange // source -> range it last gave up, until collected
	logger   *slog.Logger
}

// NewSpillManager creates an empty spill manager
func NewSpillManager(logger *slog.Logger) *SpillManager {
	if logger == nil {
		logger = slog.Default().With("component", "formula")
	}
	return &SpillManager{
		ranges:   make(map[CellKey]SpillRange),
		owner:    make(map[CellKey]CellKey),
		values:   make(map[CellKey]Primitive),
		blocked:  make(map[CellKey]SpillRange),
		released: make(map[CellKey]SpillRange),
		logger:   logger,
	}
}

// Apply spills array from source. the previous spill of source is torn
// down first. a target holding host content or owned by another source
// blocks the whole spill: nothing is written and the result is #SPILL!.
// otherwise the top-left value is returned for the source cell itself.
func (sm *SpillManager) Apply(source CellKey, array Array, hasContent ContentProbe) Primitive {
	sm.ClearSpill(source)

	if array.Rows() == 0 || array.Cols() == 0 {
		return nil
	}

	rng := SpillRange{Origin: source, Rows: array.Rows(), Cols: array.Cols()}
	targets := rng.Targets()
	for _, target := range targets {
		if owner, owned := sm.owner[target]; owned && owner != source {
			return sm.block(source, rng, target, "owned by "+owner.String())
		}
		if hasContent != nil && hasContent(target.Sheet, target.Row, target.Col) {
			return sm.block(source, rng, target, "holds content")
		}
	}

	for _, target := range targets {
		v := array.At(target.Row-source.Row, target.Col-source.Col)
		sm.owner[target] = source
		sm.values[target] = v
	}
	if len(targets) > 0 {
		sm.ranges[source] = rng
	}
	return array.At(0, 0)
}

func (sm *SpillManager) block(source CellKey, rng SpillRange, target CellKey, reason string) Primitive {
	sm.blocked[source] = rng
	sm.logger.Debug("spill blocked",
		"source", source.String(),
		"range", rng.String(),
		"target", target.String(),
		"reason", reason)
	return NewSpreadsheetError(ErrorCodeSpill, "spill range "+rng.String()+" is not empty")
}

// ClearSpill removes every value source spilled
func (sm *SpillManager) ClearSpill(source CellKey) {
	if rng, ok := sm.ranges[source]; ok {
		for _, target := range rng.Targets() {
			if sm.owner[target] == source {
				delete(sm.owner, target)
				delete(sm.values, target)
			}
		}
		delete(sm.ranges, source)
		sm.released[source] = rng
	}
	delete(sm.blocked, source)
}

// takeReleased returns and forgets the range source last gave up
func (sm *SpillManager) takeReleased(source CellKey) (SpillRange, bool) {
	rng, ok := sm.released[source]
	delete(sm.released, source)
	return rng, ok
}

// IsSpillTarget reports whether key currently shows a spilled value
func (sm *SpillManager) IsSpillTarget(key CellKey) bool {
	_, ok := sm.owner[key]
	return ok
}

// GetSpillValue returns the spilled value at key
func (sm *SpillManager) GetSpillValue(key CellKey) (Primitive, bool) {
	v, ok := sm.values[key]
	return v, ok
}

// GetSpillSource returns the formula cell that spilled into key
func (sm *SpillManager) GetSpillSource(key CellKey) (CellKey, bool) {
	source, ok := sm.owner[key]
	return source, ok
}

// GetSpillRange returns the range source currently spills into
func (sm *SpillManager) GetSpillRange(source CellKey) (SpillRange, bool) {
	rng, ok := sm.ranges[source]
	return rng, ok
}

// SourcesCovering returns the sources whose current or blocked spill
// covers key. they need evaluating again when key's content changes.
func (sm *SpillManager) SourcesCovering(key CellKey) []CellKey {
	var sources []CellKey
	if source, ok := sm.owner[key]; ok {
		sources = append(sources, source)
	}
	for source, rng := range sm.blocked {
		if source != key && rng.Contains(key) {
			sources = append(sources, source)
		}
	}
	slices.SortFunc(sources, CellKey.Compare)
	return sources
}
