package dag

import (
	"fmt"
	"slices"

	"fortio.org/safecast"
)

type Topo struct {
	Order   []NodeID   // referencing projects before the projects they reference
	Batches [][]NodeID // waves of mutually independent projects
	Cyclic  bool
	Cycles  []NodeID // nodes left with unresolved incoming edges
}

// Toposort orders the present nodes with Kahn's algorithm, one wave at a
// time. Each wave is sorted by id so the order is stable across runs.
func Toposort(g Graph) *Topo {
	indeg := slices.Clone(g.Indeg)
	topo := &Topo{}

	wave := presentWhere(g, func(i int) bool { return indeg[i] == 0 })
	for len(wave) > 0 {
		topo.Batches = append(topo.Batches, wave)
		topo.Order = append(topo.Order, wave...)
		var next []NodeID
		for _, id := range wave {
			for _, to := range g.Edges[id] {
				if !g.Present[to] {
					continue
				}
				if indeg[to]--; indeg[to] == 0 {
					next = append(next, to)
				}
			}
		}
		slices.Sort(next)
		wave = next
	}

	topo.Cycles = presentWhere(g, func(i int) bool { return indeg[i] > 0 })
	topo.Cyclic = len(topo.Cycles) > 0
	return topo
}

// DependenciesFirst returns Order reversed: every project after the
// projects it references.
func (t *Topo) DependenciesFirst() []NodeID {
	out := slices.Clone(t.Order)
	slices.Reverse(out)
	return out
}

// presentWhere lists present nodes matching pred, in id order.
func presentWhere(g Graph, pred func(int) bool) []NodeID {
	var out []NodeID
	for i, ok := range g.Present {
		if ok && pred(i) {
			out = append(out, mustID(i))
		}
	}
	return out
}

func mustID(i int) NodeID {
	id, err := safecast.Conv[NodeID](i)
	if err != nil {
		panic(fmt.Errorf("node id overflow: %w", err))
	}
	return id
}
