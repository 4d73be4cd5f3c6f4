// Package resolve orders modules so that dependencies come first.
package resolve

import (
	"slices"

	"go.bbrapi.dev/runner/pkg/source"
)

// Node is one module and the names it depends on.
// Dependency names that are not themselves nodes are treated as satisfied leaves.
type Node struct {
	Name string
	Deps []string
}

// Nodes builds the dependency graph of units, using required and optional names.
func Nodes(units []*source.Unit) []Node {
	nodes := make([]Node, len(units))
	for i, u := range units {
		nodes[i] = Node{Name: u.Name, Deps: u.Dependencies()}
	}
	return nodes
}

// Result of Resolve.
type Result struct {
	// Order lists every node not part of a cycle, each after all its dependencies.
	Order []string
	// Cycles lists the groups of nodes that depend on each other, including
	// nodes depending on themselves. Their members are left out of Order.
	Cycles [][]string
}

// InCycle reports whether name is a member of a rejected cycle.
func (r Result) InCycle(name string) (cycle []string, ok bool) {
	for _, c := range r.Cycles {
		if slices.Contains(c, name) {
			return c, true
		}
	}
	return nil, false
}

// Resolve topologically sorts nodes by depth-first search.
//
// Strongly connected components are found with Tarjan's algorithm, which
// completes a component only after everything reachable from it. Since edges
// point from a module to its dependencies, the emission order is the load order.
// Roots and edges are visited in the given order, so the result is deterministic.
func Resolve(nodes []Node) Result {
	t := &tarjan{
		index: make(map[string]int, len(nodes)),
		low:   make(map[string]int, len(nodes)),
		on:    make(map[string]bool, len(nodes)),
		deps:  make(map[string][]string, len(nodes)),
		pos:   make(map[string]int, len(nodes)),
	}
	for i, n := range nodes {
		if _, dup := t.deps[n.Name]; dup {
			continue
		}
		t.deps[n.Name] = n.Deps
		t.pos[n.Name] = i
	}
	for _, n := range nodes {
		if _, seen := t.index[n.Name]; !seen {
			t.visit(n.Name)
		}
	}
	return t.res
}

type tarjan struct {
	next  int
	index map[string]int
	low   map[string]int
	on    map[string]bool
	stack []string
	deps  map[string][]string
	pos   map[string]int
	res   Result
}

func (t *tarjan) visit(v string) {
	t.index[v] = t.next
	t.low[v] = t.next
	t.next++
	t.stack = append(t.stack, v)
	t.on[v] = true

	selfLoop := false
	for _, w := range t.deps[v] {
		if _, known := t.deps[w]; !known {
			continue // leaf
		}
		if w == v {
			selfLoop = true
			continue
		}
		if _, seen := t.index[w]; !seen {
			t.visit(w)
			t.low[v] = min(t.low[v], t.low[w])
		} else if t.on[w] {
			t.low[v] = min(t.low[v], t.index[w])
		}
	}

	if t.low[v] != t.index[v] {
		return
	}
	var scc []string
	for {
		w := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		t.on[w] = false
		scc = append(scc, w)
		if w == v {
			break
		}
	}
	if len(scc) == 1 && !selfLoop {
		t.res.Order = append(t.res.Order, v)
		return
	}
	slices.SortFunc(scc, func(a, b string) int { return t.pos[a] - t.pos[b] })
	t.res.Cycles = append(t.res.Cycles, scc)
}

// Dependents returns every node that directly or transitively depends on one
// of names, in the order of nodes. The names themselves are not included.
func Dependents(nodes []Node, names ...string) []string {
	hit := make(map[string]bool, len(names))
	for _, n := range names {
		hit[n] = true
	}
	changed := true
	for changed {
		changed = false
		for _, n := range nodes {
			if hit[n.Name] {
				continue
			}
			for _, d := range n.Deps {
				if hit[d] {
					hit[n.Name] = true
					changed = true
					break
				}
			}
		}
	}
	var out []string
	for _, n := range nodes {
		if hit[n.Name] && !slices.Contains(names, n.Name) {
			out = append(out, n.Name)
		}
	}
	return out
}
