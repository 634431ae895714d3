package props

import "sort"

// invalidation is the outcome of a value change: the dirty nodes that must be
// re-resolved, in topological order, and the nested descendants removed from
// the graph.
type invalidation struct {
	changed string
	dirty   []string
	pruned  []string
	// prunedBy maps each dirty nested parent to the descendants it lost.
	prunedBy map[string][]string
}

// invalidate computes the forward closure of changed over the materialized
// graph and prunes the previous expansion of every nested node in it. Pruned
// keys are removed from the dirty set; nodes below a dirty nested parent are
// rebuilt when the parent re-resolves.
func invalidate(g *Graph, changed string) invalidation {
	inv := invalidation{changed: changed, prunedBy: map[string][]string{}}
	dirty := g.closure(changed)
	if len(dirty) == 0 {
		return inv
	}

	// Parents are visited in topological order so a parent nested below
	// another dirty parent is already gone when its turn comes.
	for _, key := range g.sortKeys(dirty) {
		node, ok := g.nodes[key]
		if !ok || node.kind != KindNestedDynamic || len(node.children) == 0 {
			continue
		}
		removed := g.prune(key)
		inv.prunedBy[key] = removed
		inv.pruned = append(inv.pruned, removed...)
		for _, gone := range removed {
			delete(dirty, gone)
		}
	}
	for key := range dirty {
		if node, ok := g.nodes[key]; !ok || !node.kind.resolvable() {
			delete(dirty, key)
		}
	}
	inv.dirty = g.sortKeys(dirty)
	sort.Strings(inv.pruned)
	return inv
}

// touched lists every key whose cached outcome must be dropped.
func (inv invalidation) touched() []string {
	out := make([]string, 0, len(inv.dirty)+len(inv.pruned))
	out = append(out, inv.dirty...)
	out = append(out, inv.pruned...)
	return out
}
