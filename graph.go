package forge

import (
	"sort"

	"github.com/katalvlaran/lvlath/core"
)

// depGraph wraps a lvlath *core.Graph with the bookkeeping the planner
// needs beyond plain reachability: declaration order (for the table-level
// tie-break) and a name set for membership checks.
type depGraph struct {
	g       *core.Graph
	nodes   []string // all node names, in the order AddNode was called
	present map[string]bool
}

func newDepGraph() *depGraph {
	return &depGraph{
		g:       core.NewGraph(core.WithDirected(true)),
		present: make(map[string]bool),
	}
}

// addNode registers a node if not already known.
func (d *depGraph) addNode(name string) {
	if d.present[name] {
		return
	}
	d.present[name] = true
	d.nodes = append(d.nodes, name)
	_ = d.g.AddVertex(name)
}

// addEdge records "to depends on from": from must be computed before to.
func (d *depGraph) addEdge(from, to string) {
	d.addNode(from)
	d.addNode(to)
	if from == to {
		return
	}
	_, _ = d.g.AddEdge(from, to, 0)
}

// order runs a Kahn's-algorithm topological sort. declOrder, when
// non-nil, breaks ties among simultaneously-ready nodes by declaration
// order (spec.md §4.2's table-level rule); otherwise ties break by plain
// lexical order (the intra-table and scalar rule). On a cycle, the
// returned error is a CircularDependencyError naming every node on the
// cycle, discovered with a DFS colouring pass in the style of lvlath's
// dfs.topoSorter.visit.
func (d *depGraph) order(declOrder []string) ([]string, error) {
	indegree := make(map[string]int, len(d.nodes))
	for _, n := range d.nodes {
		indegree[n] = 0
	}
	children := make(map[string][]string, len(d.nodes))
	for _, n := range d.nodes {
		neighbors, err := d.g.Neighbors(n)
		if err != nil {
			continue
		}
		for _, e := range neighbors {
			if e.From != n {
				continue
			}
			children[n] = append(children[n], e.To)
			indegree[e.To]++
		}
	}

	declRank := make(map[string]int, len(declOrder))
	for i, n := range declOrder {
		declRank[n] = i
	}

	ready := make([]string, 0, len(d.nodes))
	for _, n := range d.nodes {
		if indegree[n] == 0 {
			ready = append(ready, n)
		}
	}

	less := func(a, b string) bool {
		if declOrder != nil {
			ra, aok := declRank[a]
			rb, bok := declRank[b]
			if aok && bok && ra != rb {
				return ra < rb
			}
			if aok != bok {
				return aok
			}
		}
		return a < b
	}
	sort.Slice(ready, func(i, j int) bool { return less(ready[i], ready[j]) })

	var out []string
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		out = append(out, next)

		for _, child := range children[next] {
			indegree[child]--
			if indegree[child] == 0 {
				pos := 0
				for pos < len(ready) && less(ready[pos], child) {
					pos++
				}
				ready = append(ready, "")
				copy(ready[pos+1:], ready[pos:])
				ready[pos] = child
			}
		}
	}

	if len(out) != len(d.nodes) {
		cycle := d.findCycle()
		return nil, CircularDependencyError{Cycle: cycle}
	}
	return out, nil
}

// findCycle locates one cycle among the remaining (unordered) nodes using
// a three-colour DFS, returning the cycle path in encounter order.
func (d *depGraph) findCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	state := make(map[string]int, len(d.nodes))
	var stack []string
	var cycle []string

	var visit func(n string) bool
	visit = func(n string) bool {
		state[n] = gray
		stack = append(stack, n)

		neighbors, err := d.g.Neighbors(n)
		if err == nil {
			sorted := make([]string, 0, len(neighbors))
			for _, e := range neighbors {
				if e.From == n {
					sorted = append(sorted, e.To)
				}
			}
			sort.Strings(sorted)
			for _, child := range sorted {
				switch state[child] {
				case white:
					if visit(child) {
						return true
					}
				case gray:
					// Found the back-edge; extract the cycle from the stack.
					start := 0
					for i, s := range stack {
						if s == child {
							start = i
							break
						}
					}
					cycle = append([]string{}, stack[start:]...)
					return true
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[n] = black
		return false
	}

	names := make([]string, len(d.nodes))
	copy(names, d.nodes)
	sort.Strings(names)
	for _, n := range names {
		if state[n] == white {
			if visit(n) {
				return cycle
			}
		}
	}
	return cycle
}
