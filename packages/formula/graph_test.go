package formula

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cellKeys(addresses ...string) []CellKey {
	result := make([]CellKey, len(addresses))
	for i, address := range addresses {
		result[i] = MustParseCellKey(address)
	}
	return result
}

func TestDependencyGraphEdges(t *testing.T) {
	dg := NewDependencyGraph()
	require.NoError(t, dg.ReplaceDependencies(MustParseCellKey("B1"), cellKeys("A1")))
	require.NoError(t, dg.ReplaceDependencies(MustParseCellKey("C1"), cellKeys("B1")))
	require.NoError(t, dg.ReplaceDependencies(MustParseCellKey("D1"), cellKeys("A1", "C1", "A1")))

	assert.Equal(t, cellKeys("B1", "D1"), dg.GetDirectDependents(MustParseCellKey("A1")))
	assert.Equal(t, cellKeys("A1", "C1"), dg.GetDirectPrecedents(MustParseCellKey("D1")))
	assert.Equal(t, cellKeys("B1", "D1", "C1"), dg.GetAllDependents(MustParseCellKey("A1")))
	assert.Nil(t, dg.GetDirectDependents(MustParseCellKey("Z9")))
	assert.Equal(t, 4, dg.NodeCount())
}

func TestDependencyGraphReplaceDropsOldEdges(t *testing.T) {
	dg := NewDependencyGraph()
	b1 := MustParseCellKey("B1")
	require.NoError(t, dg.ReplaceDependencies(b1, cellKeys("A1")))
	require.NoError(t, dg.ReplaceDependencies(b1, cellKeys("C1")))

	assert.Empty(t, dg.GetDirectDependents(MustParseCellKey("A1")))
	assert.Equal(t, []CellKey{b1}, dg.GetDirectDependents(MustParseCellKey("C1")))

	require.NoError(t, dg.ReplaceDependencies(b1, nil))
	assert.Equal(t, 0, dg.NodeCount())
}

func TestDependencyGraphRecalculationOrder(t *testing.T) {
	dg := NewDependencyGraph()
	require.NoError(t, dg.ReplaceDependencies(MustParseCellKey("B1"), cellKeys("A1")))
	require.NoError(t, dg.ReplaceDependencies(MustParseCellKey("C1"), cellKeys("B1")))
	require.NoError(t, dg.ReplaceDependencies(MustParseCellKey("D1"), cellKeys("A1", "C1")))

	// D1 is discovered before C1 but must wait for it
	assert.Equal(t, cellKeys("B1", "C1", "D1"), dg.GetRecalculationOrder(MustParseCellKey("A1")))
	assert.Equal(t, cellKeys("C1", "D1"), dg.GetRecalculationOrder(MustParseCellKey("B1")))
	assert.Equal(t, cellKeys("B1", "C1", "D1"), dg.GetRecalculationOrder(cellKeys("A1", "B1")...))
	assert.Empty(t, dg.GetRecalculationOrder(MustParseCellKey("D1")))
}

func TestDependencyGraphDiamondOrder(t *testing.T) {
	// A1 -> B1, C1 -> D1 -> E1
	dg := NewDependencyGraph()
	require.NoError(t, dg.ReplaceDependencies(MustParseCellKey("B1"), cellKeys("A1")))
	require.NoError(t, dg.ReplaceDependencies(MustParseCellKey("C1"), cellKeys("A1")))
	require.NoError(t, dg.ReplaceDependencies(MustParseCellKey("D1"), cellKeys("B1", "C1")))
	require.NoError(t, dg.ReplaceDependencies(MustParseCellKey("E1"), cellKeys("D1")))

	order := dg.GetRecalculationOrder(MustParseCellKey("A1"))
	assert.Equal(t, cellKeys("B1", "C1", "D1", "E1"), order)
}

func TestDependencyGraphRejectsCycles(t *testing.T) {
	dg := NewDependencyGraph()
	a1, b1, c1 := MustParseCellKey("A1"), MustParseCellKey("B1"), MustParseCellKey("C1")

	require.NoError(t, dg.ReplaceDependencies(a1, []CellKey{b1}))
	require.NoError(t, dg.ReplaceDependencies(b1, []CellKey{c1}))

	err := dg.ReplaceDependencies(c1, []CellKey{a1})
	assert.ErrorIs(t, err, ErrCircularReference)
	assert.True(t, dg.IsInCycle(c1))
	assert.True(t, dg.HasCycle())
	assert.Empty(t, dg.GetDirectPrecedents(c1))
	assert.False(t, dg.IsInCycle(a1))

	// fixing the formula clears the flag
	require.NoError(t, dg.ReplaceDependencies(c1, cellKeys("D1")))
	assert.False(t, dg.IsInCycle(c1))
	assert.False(t, dg.HasCycle())

	assert.ErrorIs(t, dg.ReplaceDependencies(a1, []CellKey{a1}), ErrCircularReference)
	// the rejected formula keeps its previous edges
	assert.Equal(t, []CellKey{b1}, dg.GetDirectPrecedents(a1))
}

// columnKeys returns col's cells in rows 1..rows
func columnKeys(col string, rows int) []CellKey {
	result := make([]CellKey, rows)
	for i := range rows {
		result[i] = MustParseCellKey(fmt.Sprintf("%s%d", col, i+1))
	}
	return result
}

// chainedGraph builds C1 reading A1:A{rows} and B2..B{rows} each reading
// the B above it
func chainedGraph(t testing.TB, rows int) *DependencyGraph {
	dg := NewDependencyGraph()
	require.NoError(t, dg.ReplaceDependencies(MustParseCellKey("C1"), columnKeys("A", rows)))
	chain := columnKeys("B", rows)
	for i := 1; i < rows; i++ {
		require.NoError(t, dg.ReplaceDependencies(chain[i], chain[i-1:i]))
	}
	return dg
}

func TestDependencyGraphLargeRangeOnLongChain(t *testing.T) {
	const rows = 5000
	dg := chainedGraph(t, rows)
	b1 := MustParseCellKey("B1")
	column := columnKeys("A", rows)

	require.NoError(t, dg.ReplaceDependencies(b1, column))
	assert.Len(t, dg.GetDirectPrecedents(b1), rows)

	// the bottom of the chain reads B1, so B1 may not read it
	err := dg.ReplaceDependencies(b1, append(column, MustParseCellKey(fmt.Sprintf("B%d", rows))))
	assert.ErrorIs(t, err, ErrCircularReference)
	assert.Len(t, dg.GetDirectPrecedents(b1), rows)
	assert.Len(t, dg.GetAllDependents(b1), rows-1)
}

func TestDependencyGraphRemoveCell(t *testing.T) {
	dg := NewDependencyGraph()
	b1 := MustParseCellKey("B1")
	require.NoError(t, dg.ReplaceDependencies(b1, cellKeys("A1")))
	require.NoError(t, dg.ReplaceDependencies(MustParseCellKey("C1"), cellKeys("B1")))

	dg.RemoveCell(b1)
	assert.Empty(t, dg.GetDirectDependents(MustParseCellKey("A1")))
	assert.Equal(t, []CellKey{b1}, dg.GetDirectPrecedents(MustParseCellKey("C1")))

	dg.RemoveCell(MustParseCellKey("C1"))
	assert.Equal(t, 0, dg.NodeCount())
}

func TestDependencyGraphReusesSlots(t *testing.T) {
	dg := NewDependencyGraph()
	b1 := MustParseCellKey("B1")
	for range 100 {
		require.NoError(t, dg.ReplaceDependencies(b1, cellKeys("A1")))
		dg.RemoveCell(b1)
	}
	assert.Equal(t, 0, dg.NodeCount())
	assert.LessOrEqual(t, len(dg.nodes), 2)
}

func TestDependencyGraphVolatileCells(t *testing.T) {
	dg := NewDependencyGraph()
	dg.MarkVolatile(MustParseCellKey("B2"))
	dg.MarkVolatile(MustParseCellKey("A1"))
	dg.MarkVolatile(MustParseCellKey("A1"))

	assert.True(t, dg.IsVolatile(MustParseCellKey("A1")))
	assert.Equal(t, cellKeys("A1", "B2"), dg.GetVolatileCells())

	dg.UnmarkVolatile(MustParseCellKey("A1"))
	assert.False(t, dg.IsVolatile(MustParseCellKey("A1")))
	assert.Equal(t, cellKeys("B2"), dg.GetVolatileCells())
	assert.Equal(t, 1, dg.NodeCount())

	dg.UnmarkVolatile(MustParseCellKey("Z1"))
	assert.Equal(t, 1, dg.NodeCount())
}

func TestDependencyGraphSheets(t *testing.T) {
	dg := NewDependencyGraph()
	require.NoError(t, dg.ReplaceDependencies(MustParseCellKey("Sheet1!B1"), cellKeys("Data!A2", "Data!A1")))
	require.NoError(t, dg.ReplaceDependencies(MustParseCellKey("Sheet1!C1"), cellKeys("Sheet1!B1")))

	assert.Equal(t, cellKeys("Data!A1", "Data!A2"), dg.CellsInSheet("Data"))
	assert.Equal(t, cellKeys("Sheet1!B1", "Sheet1!C1"), dg.CellsInSheet("Sheet1"))
	assert.Equal(t, cellKeys("Sheet1!B1", "Sheet1!C1"), dg.GetRecalculationOrder(MustParseCellKey("Data!A2")))

	dg.Clear()
	assert.Equal(t, 0, dg.NodeCount())
	assert.Empty(t, dg.CellsInSheet("Data"))
}
