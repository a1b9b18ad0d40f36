package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// occupied reports host content at the given addresses
func occupied(addresses ...string) ContentProbe {
	cells := make(map[CellKey]bool, len(addresses))
	for _, address := range addresses {
		cells[MustParseCellKey(address)] = true
	}
	return func(sheet string, row, col int) bool {
		return cells[CellKey{Sheet: sheet, Row: row, Col: col}]
	}
}

func TestSpillApply(t *testing.T) {
	sm := NewSpillManager(nil)
	a1 := MustParseCellKey("A1")

	v := sm.Apply(a1, Array{{1.0, 2.0}, {3.0, 4.0}}, occupied())
	assert.Equal(t, 1.0, v)

	assert.False(t, sm.IsSpillTarget(a1))
	for _, address := range []string{"B1", "A2", "B2"} {
		assert.True(t, sm.IsSpillTarget(MustParseCellKey(address)), address)
	}
	assert.False(t, sm.IsSpillTarget(MustParseCellKey("C1")))

	value, ok := sm.GetSpillValue(MustParseCellKey("B2"))
	assert.True(t, ok)
	assert.Equal(t, 4.0, value)

	source, ok := sm.GetSpillSource(MustParseCellKey("A2"))
	assert.True(t, ok)
	assert.Equal(t, a1, source)

	rng, ok := sm.GetSpillRange(a1)
	assert.True(t, ok)
	assert.Equal(t, SpillRange{Origin: a1, Rows: 2, Cols: 2}, rng)
	assert.Equal(t, "A1:B2", rng.String())
}

func TestSpillBlockedByContent(t *testing.T) {
	sm := NewSpillManager(nil)
	a1 := MustParseCellKey("A1")

	v := sm.Apply(a1, Array{{1.0}, {2.0}, {3.0}}, occupied("A3"))
	assertErrorCode(t, ErrorCodeSpill, v)

	// nothing is written when any target is blocked
	assert.False(t, sm.IsSpillTarget(MustParseCellKey("A2")))
	_, ok := sm.GetSpillRange(a1)
	assert.False(t, ok)

	// a blocked source is reported for every cell of the range it wanted
	assert.Equal(t, []CellKey{a1}, sm.SourcesCovering(MustParseCellKey("A3")))
	assert.Equal(t, []CellKey{a1}, sm.SourcesCovering(MustParseCellKey("A2")))
	assert.Empty(t, sm.SourcesCovering(a1))

	// once the blocker is gone the spill succeeds
	v = sm.Apply(a1, Array{{1.0}, {2.0}, {3.0}}, occupied())
	assert.Equal(t, 1.0, v)
	assert.True(t, sm.IsSpillTarget(MustParseCellKey("A3")))
}

func TestSpillBlockedByAnotherSpill(t *testing.T) {
	sm := NewSpillManager(nil)
	a2, b1 := MustParseCellKey("A2"), MustParseCellKey("B1")

	assert.Equal(t, "x", sm.Apply(a2, Array{{"x", "y"}}, nil))
	assertErrorCode(t, ErrorCodeSpill, sm.Apply(b1, Array{{1.0}, {2.0}}, nil))

	source, _ := sm.GetSpillSource(MustParseCellKey("B2"))
	assert.Equal(t, a2, source)
	assert.Equal(t, []CellKey{b1, a2}, sm.SourcesCovering(MustParseCellKey("B2")))

	// clearing the first spill lets the second one in
	sm.ClearSpill(a2)
	assert.Equal(t, 1.0, sm.Apply(b1, Array{{1.0}, {2.0}}, nil))
	value, _ := sm.GetSpillValue(MustParseCellKey("B2"))
	assert.Equal(t, 2.0, value)
}

func TestSpillReapplyResizes(t *testing.T) {
	sm := NewSpillManager(nil)
	a1 := MustParseCellKey("A1")

	sm.Apply(a1, Array{{1.0}, {2.0}, {3.0}}, nil)
	sm.Apply(a1, Array{{5.0, 6.0}}, nil)

	assert.False(t, sm.IsSpillTarget(MustParseCellKey("A2")))
	assert.False(t, sm.IsSpillTarget(MustParseCellKey("A3")))
	value, ok := sm.GetSpillValue(MustParseCellKey("B1"))
	assert.True(t, ok)
	assert.Equal(t, 6.0, value)

	released, ok := sm.takeReleased(a1)
	assert.True(t, ok)
	assert.Equal(t, SpillRange{Origin: a1, Rows: 3, Cols: 1}, released)
}

func TestSpillSingleCellAndEmpty(t *testing.T) {
	sm := NewSpillManager(nil)
	a1 := MustParseCellKey("A1")

	assert.Equal(t, 7.0, sm.Apply(a1, Array{{7.0}}, nil))
	_, ok := sm.GetSpillRange(a1)
	assert.False(t, ok)

	assert.Nil(t, sm.Apply(a1, Array{}, nil))
}

func TestSpillClear(t *testing.T) {
	sm := NewSpillManager(nil)
	a1 := MustParseCellKey("A1")
	sm.Apply(a1, Array{{1.0, 2.0, 3.0}}, nil)

	sm.ClearSpill(a1)
	assert.False(t, sm.IsSpillTarget(MustParseCellKey("B1")))
	_, ok := sm.GetSpillValue(MustParseCellKey("C1"))
	assert.False(t, ok)
	_, ok = sm.GetSpillRange(a1)
	assert.False(t, ok)

	// clearing twice is harmless
	sm.ClearSpill(a1)
}

func TestSpillRangeGeometry(t *testing.T) {
	rng := SpillRange{Origin: MustParseCellKey("Data!B2"), Rows: 2, Cols: 2}

	assert.Equal(t, "Data!B2:C3", rng.String())
	assert.Equal(t, cellKeys("Data!C2", "Data!B3", "Data!C3"), rng.Targets())
	assert.True(t, rng.Contains(MustParseCellKey("Data!B2")))
	assert.True(t, rng.Contains(MustParseCellKey("Data!C3")))
	assert.False(t, rng.Contains(MustParseCellKey("Data!D3")))
	assert.False(t, rng.Contains(MustParseCellKey("Other!C3")))
}
