package dag

import (
	"fmt"
	"slices"
	"strings"
)

type Graph struct {
	Edges   [][]NodeID // Edges[from] = []to, from ссылается на to
	Indeg   []int      // входящие степени для Kahn (только присутствующие узлы)
	Present []bool     // узел реально загружен (а не только упомянут в ссылках)
}

type ProblemKind uint8

const (
	ProblemDuplicate ProblemKind = iota + 1
	ProblemMissing
	ProblemSelfReference
)

// Problem is a structural defect found while building the graph.
type Problem struct {
	Kind ProblemKind
	From string
	To   string
}

func (p Problem) String() string {
	switch p.Kind {
	case ProblemDuplicate:
		return fmt.Sprintf("duplicate project %q", p.From)
	case ProblemMissing:
		return fmt.Sprintf("project %q references missing project %q", p.From, p.To)
	case ProblemSelfReference:
		return fmt.Sprintf("project %q references itself", p.From)
	}
	return "unknown graph problem"
}

func BuildGraph(idx Index, nodes []Node) (Graph, []Problem) {
	nodeCount := len(idx.IDToPath)
	g := Graph{
		Edges:   make([][]NodeID, nodeCount),
		Indeg:   make([]int, nodeCount),
		Present: make([]bool, nodeCount),
	}
	refs := make([][]string, nodeCount)
	var problems []Problem

	for _, n := range nodes {
		if n.Path == "" {
			continue
		}
		id, ok := idx.PathToID[n.Path]
		if !ok {
			// не должно происходить, индекс строится на тех же узлах
			continue
		}
		if g.Present[int(id)] {
			problems = append(problems, Problem{Kind: ProblemDuplicate, From: n.Path})
			continue
		}
		g.Present[int(id)] = true
		refs[int(id)] = n.Refs
	}

	for from := range refs {
		if !g.Present[from] || len(refs[from]) == 0 {
			continue
		}
		fromPath := idx.IDToPath[from]
		seen := make(map[NodeID]struct{}, len(refs[from]))
		for _, ref := range refs[from] {
			if ref == "" {
				continue
			}
			toID, ok := idx.PathToID[ref]
			if !ok {
				problems = append(problems, Problem{Kind: ProblemMissing, From: fromPath, To: ref})
				continue
			}
			if NodeID(from) == toID { //nolint:gosec // bounded by nodeCount
				problems = append(problems, Problem{Kind: ProblemSelfReference, From: fromPath})
				continue
			}
			if _, dup := seen[toID]; dup {
				continue
			}
			seen[toID] = struct{}{}

			g.Edges[from] = append(g.Edges[from], toID)
			if g.Present[int(toID)] {
				g.Indeg[int(toID)]++
			} else {
				problems = append(problems, Problem{Kind: ProblemMissing, From: fromPath, To: ref})
			}
		}
		if len(g.Edges[from]) > 1 {
			slices.Sort(g.Edges[from])
		}
	}

	return g, problems
}

// DescribeCycle renders the members of a cycle for error messages.
func DescribeCycle(idx Index, topo *Topo) string {
	if topo == nil || !topo.Cyclic || len(topo.Cycles) == 0 {
		return ""
	}
	names := make([]string, 0, len(topo.Cycles))
	for _, id := range topo.Cycles {
		names = append(names, idx.IDToPath[int(id)])
	}
	return strings.Join(names, " -> ")
}
