package formula

import (
	"container/heap"
	"fmt"
	"slices"
)

// dependencyNode is one cell in the graph. edges hold arena indices in the
// order they were added.
type dependencyNode struct {
	key        CellKey
	precedents []int // cells this cell reads
	dependents []int // cells that read this cell
	volatile   bool
	circular   bool
	live       bool
}

func (n *dependencyNode) empty() bool {
	return len(n.precedents) == 0 && len(n.dependents) == 0 && !n.volatile && !n.circular
}

// DependencyGraph tracks which formula cells read which cells. nodes live
// in an arena indexed by int, released slots are reused.
type DependencyGraph struct {
	index map[CellKey]int
	nodes []dependencyNode
	free  []int
}

// NewDependencyGraph creates a new dependency graph
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		index: make(map[CellKey]int),
	}
}

// nodeID gets an existing node or creates a new one
func (dg *DependencyGraph) nodeID(key CellKey) int {
	if id, exists := dg.index[key]; exists {
		return id
	}

	node := dependencyNode{key: key, live: true}
	var id int
	if n := len(dg.free); n > 0 {
		id = dg.free[n-1]
		dg.free = dg.free[:n-1]
		dg.nodes[id] = node
	} else {
		id = len(dg.nodes)
		dg.nodes = append(dg.nodes, node)
	}
	dg.index[key] = id
	return id
}

// release frees a node that no longer carries anything
func (dg *DependencyGraph) release(id int) {
	node := &dg.nodes[id]
	if !node.live || !node.empty() {
		return
	}
	delete(dg.index, node.key)
	*node = dependencyNode{}
	dg.free = append(dg.free, id)
}

func (dg *DependencyGraph) addEdge(from, to int) {
	dg.nodes[from].precedents = append(dg.nodes[from].precedents, to)
	dg.nodes[to].dependents = append(dg.nodes[to].dependents, from)
}

// detachPrecedents removes every precedent edge of id and returns the keys
// it had
func (dg *DependencyGraph) detachPrecedents(id int) []CellKey {
	precedents := dg.nodes[id].precedents
	keys := make([]CellKey, len(precedents))
	for i, p := range precedents {
		keys[i] = dg.nodes[p].key
		dg.nodes[p].dependents = slices.DeleteFunc(dg.nodes[p].dependents, func(d int) bool { return d == id })
	}
	dg.nodes[id].precedents = nil
	for _, p := range precedents {
		dg.release(p)
	}
	return keys
}

// transitiveDependents returns every cell that reads from, directly or
// through other cells
func (dg *DependencyGraph) transitiveDependents(from int) map[int]struct{} {
	visited := make(map[int]struct{})
	queue := []int{from}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, d := range dg.nodes[id].dependents {
			if _, seen := visited[d]; !seen {
				visited[d] = struct{}{}
				queue = append(queue, d)
			}
		}
	}
	return visited
}

// ReplaceDependencies sets the precedents of key, replacing the previous
// set. if the new edges would close a cycle nothing changes, key is marked
// circular and the error wraps ErrCircularReference.
func (dg *DependencyGraph) ReplaceDependencies(key CellKey, precedents []CellKey) error {
	id := dg.nodeID(key)
	previous := dg.detachPrecedents(id)

	unique := make([]CellKey, 0, len(precedents))
	seen := make(map[CellKey]struct{}, len(precedents))
	for _, p := range precedents {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		unique = append(unique, p)
	}

	downstream := dg.transitiveDependents(id)
	for _, p := range unique {
		closes := p == key
		if pid, exists := dg.index[p]; exists && !closes {
			_, closes = downstream[pid]
		}
		if closes {
			// restore the previous edges
			for _, old := range previous {
				dg.addEdge(id, dg.nodeID(old))
			}
			dg.nodes[id].circular = true
			return fmt.Errorf("%s references %s: %w", key, p, ErrCircularReference)
		}
	}

	for _, p := range unique {
		dg.addEdge(id, dg.nodeID(p))
	}
	dg.nodes[id].circular = false
	dg.release(id)
	return nil
}

// RemoveCell drops the cell's own precedents and flags. cells that still
// read it keep their edges.
func (dg *DependencyGraph) RemoveCell(key CellKey) {
	id, exists := dg.index[key]
	if !exists {
		return
	}
	dg.detachPrecedents(id)
	dg.nodes[id].volatile = false
	dg.nodes[id].circular = false
	dg.release(id)
}

func (dg *DependencyGraph) keys(ids []int) []CellKey {
	result := make([]CellKey, len(ids))
	for i, id := range ids {
		result[i] = dg.nodes[id].key
	}
	return result
}

// GetDirectDependents returns cells directly depending on this cell
func (dg *DependencyGraph) GetDirectDependents(key CellKey) []CellKey {
	id, exists := dg.index[key]
	if !exists {
		return nil
	}
	return dg.keys(dg.nodes[id].dependents)
}

// GetDirectPrecedents returns cells this cell directly depends on
func (dg *DependencyGraph) GetDirectPrecedents(key CellKey) []CellKey {
	id, exists := dg.index[key]
	if !exists {
		return nil
	}
	return dg.keys(dg.nodes[id].precedents)
}

// discoverDependents walks dependents breadth-first from every start and
// returns them in discovery order. a start is included only when another
// start reaches it.
func (dg *DependencyGraph) discoverDependents(starts ...CellKey) []int {
	queued := make(map[int]struct{}, len(starts))
	var queue []int
	for _, key := range starts {
		if id, exists := dg.index[key]; exists {
			if _, dup := queued[id]; !dup {
				queued[id] = struct{}{}
				queue = append(queue, id)
			}
		}
	}

	found := make(map[int]struct{})
	var discovered []int
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, d := range dg.nodes[id].dependents {
			if _, seen := found[d]; seen {
				continue
			}
			found[d] = struct{}{}
			discovered = append(discovered, d)
			if _, ok := queued[d]; !ok {
				queued[d] = struct{}{}
				queue = append(queue, d)
			}
		}
	}
	return discovered
}

// GetAllDependents returns all cells affected by this cell (transitive
// closure) in breadth-first order
func (dg *DependencyGraph) GetAllDependents(key CellKey) []CellKey {
	return dg.keys(dg.discoverDependents(key))
}

// discoveryHeap orders ready cells by when they were discovered
type discoveryHeap []int

func (h discoveryHeap) Len() int           { return len(h) }
func (h discoveryHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h discoveryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *discoveryHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *discoveryHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// GetRecalculationOrder returns every transitive dependent of the given
// cells so that each cell comes after all of its precedents. independent
// cells keep their breadth-first discovery order.
func (dg *DependencyGraph) GetRecalculationOrder(keys ...CellKey) []CellKey {
	discovered := dg.discoverDependents(keys...)
	if len(discovered) == 0 {
		return nil
	}

	position := make(map[int]int, len(discovered))
	for i, id := range discovered {
		position[id] = i
	}

	// in-degree counts only precedents inside the affected set
	inDegree := make([]int, len(discovered))
	for i, id := range discovered {
		for _, p := range dg.nodes[id].precedents {
			if _, affected := position[p]; affected {
				inDegree[i]++
			}
		}
	}

	ready := &discoveryHeap{}
	for i, n := range inDegree {
		if n == 0 {
			*ready = append(*ready, i)
		}
	}
	heap.Init(ready)

	order := make([]CellKey, 0, len(discovered))
	emitted := make([]bool, len(discovered))
	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		emitted[i] = true
		id := discovered[i]
		order = append(order, dg.nodes[id].key)
		for _, d := range dg.nodes[id].dependents {
			j, affected := position[d]
			if !affected {
				continue
			}
			inDegree[j]--
			if inDegree[j] == 0 {
				heap.Push(ready, j)
			}
		}
	}

	// a cycle cannot be added through ReplaceDependencies, but stay total
	for i, done := range emitted {
		if !done {
			order = append(order, dg.nodes[discovered[i]].key)
		}
	}
	return order
}

// IsInCycle reports whether key's last formula was rejected as circular
func (dg *DependencyGraph) IsInCycle(key CellKey) bool {
	id, exists := dg.index[key]
	return exists && dg.nodes[id].circular
}

// HasCycle checks if any cell is currently marked circular
func (dg *DependencyGraph) HasCycle() bool {
	for _, id := range dg.index {
		if dg.nodes[id].circular {
			return true
		}
	}
	return false
}

// MarkVolatile marks a cell as containing volatile functions
func (dg *DependencyGraph) MarkVolatile(key CellKey) {
	dg.nodes[dg.nodeID(key)].volatile = true
}

// UnmarkVolatile removes volatile marking from a cell
func (dg *DependencyGraph) UnmarkVolatile(key CellKey) {
	id, exists := dg.index[key]
	if !exists {
		return
	}
	dg.nodes[id].volatile = false
	dg.release(id)
}

// IsVolatile checks if a cell contains volatile functions
func (dg *DependencyGraph) IsVolatile(key CellKey) bool {
	id, exists := dg.index[key]
	return exists && dg.nodes[id].volatile
}

// GetVolatileCells returns all cells marked as volatile, sorted
func (dg *DependencyGraph) GetVolatileCells() []CellKey {
	var result []CellKey
	for key, id := range dg.index {
		if dg.nodes[id].volatile {
			result = append(result, key)
		}
	}
	slices.SortFunc(result, CellKey.Compare)
	return result
}

// CellsInSheet returns every tracked cell on sheet, sorted
func (dg *DependencyGraph) CellsInSheet(sheet string) []CellKey {
	var result []CellKey
	for key := range dg.index {
		if key.Sheet == sheet {
			result = append(result, key)
		}
	}
	slices.SortFunc(result, CellKey.Compare)
	return result
}

// NodeCount returns the number of cells the graph tracks
func (dg *DependencyGraph) NodeCount() int {
	return len(dg.index)
}

// Clear removes all nodes and dependencies from the graph
func (dg *DependencyGraph) Clear() {
	dg.index = make(map[CellKey]int)
	dg.nodes = nil
	dg.free = nil
}
