package dag

import "fmt"

// Prune trims the graph down to the named stage and its transitive
// dependencies, dropping every other node. Dependency counters are reseeded
// from the surviving edges.
func (g *Graph) Prune(name string) error {
	root, ok := g.Nodes[NodeID(name)]
	if !ok {
		return fmt.Errorf("unknown stage %q", name)
	}

	keep := make(map[string]bool)
	var mark func(n *Node)
	mark = func(n *Node) {
		if keep[n.ID] {
			return
		}
		keep[n.ID] = true
		for _, dep := range n.Deps {
			mark(dep)
		}
	}
	mark(root)

	for id, n := range g.Nodes {
		if !keep[id] {
			delete(g.Nodes, id)
			continue
		}
		// Deps of a kept node are always kept; only dependent edges can
		// point outside the pruned graph.
		for depID := range n.Dependents {
			if !keep[depID] {
				delete(n.Dependents, depID)
			}
		}
	}
	for _, n := range g.Nodes {
		n.SetInitialCounters()
	}
	return nil
}
