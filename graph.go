package props

import (
	"fmt"
	"strings"
)

// GraphNode is an exported view of one graph node.
type GraphNode struct {
	Key    string `json:"key"`
	Kind   Kind   `json:"kind"`
	Parent string `json:"parent,omitempty"`
}

// GraphEdge means "To is refreshed by From".
type GraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type graphNode struct {
	key    string
	local  string
	parent string
	kind   Kind
	// refs holds the refreshers as declared, deps the materialized keys they
	// point to. Both are index aligned.
	refs       []string
	deps       []string
	dependents []string
	children   []string
}

func (n *graphNode) clone() *graphNode {
	return &graphNode{
		key:        n.key,
		local:      n.local,
		parent:     n.parent,
		kind:       n.kind,
		refs:       append([]string(nil), n.refs...),
		deps:       append([]string(nil), n.deps...),
		dependents: append([]string(nil), n.dependents...),
		children:   append([]string(nil), n.children...),
	}
}

// Graph is the refresher dependency graph of a schema. Nodes are field keys
// plus the auth slot; nested children are namespaced under their parent.
type Graph struct {
	nodes map[string]*graphNode
	order []string
}

func newGraph() *Graph {
	g := &Graph{nodes: map[string]*graphNode{}}
	g.insert(&graphNode{key: AuthKey, local: AuthKey, kind: kindAuth})
	return g
}

func (g *Graph) insert(n *graphNode) {
	g.nodes[n.key] = n
	g.order = append(g.order, n.key)
}

func (g *Graph) link(n *graphNode) {
	for _, dep := range n.deps {
		if parent, ok := g.nodes[dep]; ok {
			parent.dependents = append(parent.dependents, n.key)
		}
	}
}

func (g *Graph) has(key string) bool {
	_, ok := g.nodes[key]
	return ok
}

func (g *Graph) topLevel(key string) bool {
	node, ok := g.nodes[key]
	return ok && node.parent == ""
}

// descendants returns every node expanded below key, depth first.
func (g *Graph) descendants(key string) []string {
	node, ok := g.nodes[key]
	if !ok {
		return nil
	}
	var out []string
	for _, child := range node.children {
		out = append(out, child)
		out = append(out, g.descendants(child)...)
	}
	return out
}

func (g *Graph) clone() *Graph {
	if g == nil {
		return newGraph()
	}
	out := &Graph{
		nodes: make(map[string]*graphNode, len(g.nodes)),
		order: append([]string(nil), g.order...),
	}
	for key, node := range g.nodes {
		out.nodes[key] = node.clone()
	}
	return out
}

// Nodes returns the materialized nodes in insertion order.
func (g *Graph) Nodes() []GraphNode {
	nodes := make([]GraphNode, 0, len(g.order))
	for _, key := range g.order {
		n := g.nodes[key]
		nodes = append(nodes, GraphNode{Key: n.key, Kind: n.kind, Parent: n.parent})
	}
	return nodes
}

// Edges returns refresher edges in insertion order of their target.
func (g *Graph) Edges() []GraphEdge {
	var edges []GraphEdge
	for _, key := range g.order {
		for _, dep := range g.nodes[key].deps {
			edges = append(edges, GraphEdge{From: dep, To: key})
		}
	}
	return edges
}

// TopoOrder returns every node with refreshers before their dependents.
func (g *Graph) TopoOrder() []string {
	return g.sortKeys(nil)
}

// Dependents returns the transitive closure of nodes refreshed by key, in
// topological order. key itself is not included.
func (g *Graph) Dependents(key string) []string {
	return g.sortKeys(g.closure(key))
}

func (g *Graph) closure(key string) map[string]struct{} {
	seen := map[string]struct{}{}
	start, ok := g.nodes[key]
	if !ok {
		return seen
	}
	queue := append([]string(nil), start.dependents...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if _, ok := seen[next]; ok {
			continue
		}
		node, ok := g.nodes[next]
		if !ok {
			continue
		}
		seen[next] = struct{}{}
		queue = append(queue, node.dependents...)
	}
	return seen
}

// sortKeys orders the subset (or all nodes when subset is nil) so that every
// refresher precedes its dependents. The graph is acyclic by construction.
func (g *Graph) sortKeys(subset map[string]struct{}) []string {
	visited := make(map[string]bool, len(g.nodes))
	out := make([]string, 0, len(g.nodes))
	var visit func(key string)
	visit = func(key string) {
		if visited[key] {
			return
		}
		visited[key] = true
		node, ok := g.nodes[key]
		if !ok {
			return
		}
		for _, dep := range node.deps {
			visit(dep)
		}
		if subset == nil {
			out = append(out, key)
			return
		}
		if _, ok := subset[key]; ok {
			out = append(out, key)
		}
	}
	for _, key := range g.order {
		visit(key)
	}
	return out
}

// detectCycle runs a DFS over the candidate nodes only. Edges leaving the
// candidate set point at already validated nodes and cannot close a cycle.
func detectCycle(candidates map[string]*graphNode, order []string) []string {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(candidates))
	var stack []string
	var cycle []string

	var visit func(key string) bool
	visit = func(key string) bool {
		color[key] = grey
		stack = append(stack, key)
		for _, dep := range candidates[key].deps {
			if _, ok := candidates[dep]; !ok {
				continue
			}
			switch color[dep] {
			case grey:
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == dep {
						cycle = append(append([]string{}, stack[i:]...), dep)
						break
					}
				}
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[key] = black
		return false
	}

	for _, key := range order {
		if color[key] == white && visit(key) {
			return cycle
		}
	}
	return nil
}

// extend materializes the children of a nested parent. Child refreshers name
// siblings first, then top-level keys, then auth. Children of other nested
// fields are not addressable. On error the graph is left untouched.
func (g *Graph) extend(schema, parent string, children []PropertySpec) ([]string, error) {
	owner, ok := g.nodes[parent]
	if !ok {
		return nil, fmt.Errorf("props: extend unknown parent %q", parent)
	}
	locals := make(map[string]struct{}, len(children))
	for _, child := range children {
		if err := validateSpec(child); err != nil {
			return nil, err
		}
		if _, dup := locals[child.Key]; dup {
			return nil, &DuplicateKeyError{Key: childKey(parent, child.Key)}
		}
		locals[child.Key] = struct{}{}
	}

	delta := make(map[string]*graphNode, len(children))
	order := make([]string, 0, len(children))
	for _, child := range children {
		key := childKey(parent, child.Key)
		node := &graphNode{
			key:    key,
			local:  child.Key,
			parent: parent,
			kind:   child.Kind,
		}
		for _, ref := range child.Refreshers {
			var target string
			switch {
			case ref == AuthKey:
				target = AuthKey
			case hasLocal(locals, ref):
				target = childKey(parent, ref)
			case g.topLevel(ref):
				target = ref
			default:
				return nil, &UnknownRefresherError{Key: key, Refresher: ref}
			}
			node.refs = append(node.refs, ref)
			node.deps = append(node.deps, target)
		}
		delta[key] = node
		order = append(order, key)
	}
	if cycle := detectCycle(delta, order); cycle != nil {
		return nil, &CyclicDependencyError{Schema: schema, Cycle: cycle}
	}

	for _, key := range order {
		g.insert(delta[key])
		owner.children = append(owner.children, key)
	}
	for _, key := range order {
		g.link(delta[key])
	}
	return order, nil
}

// prune removes every descendant of parent and returns the removed keys.
func (g *Graph) prune(parent string) []string {
	owner, ok := g.nodes[parent]
	if !ok || len(owner.children) == 0 {
		return nil
	}
	var removed []string
	var collect func(key string)
	collect = func(key string) {
		node, ok := g.nodes[key]
		if !ok {
			return
		}
		for _, child := range node.children {
			collect(child)
		}
		removed = append(removed, key)
	}
	for _, child := range owner.children {
		collect(child)
	}
	owner.children = nil

	gone := make(map[string]struct{}, len(removed))
	for _, key := range removed {
		gone[key] = struct{}{}
	}
	for _, key := range removed {
		delete(g.nodes, key)
	}
	order := g.order[:0]
	for _, key := range g.order {
		if _, ok := gone[key]; !ok {
			order = append(order, key)
		}
	}
	g.order = order
	for _, node := range g.nodes {
		if len(node.dependents) == 0 {
			continue
		}
		kept := node.dependents[:0]
		for _, dep := range node.dependents {
			if _, ok := gone[dep]; !ok {
				kept = append(kept, dep)
			}
		}
		node.dependents = kept
	}
	return removed
}

// DOT exports Graphviz DOT text.
func (g *Graph) DOT() string {
	var b strings.Builder
	b.WriteString("digraph props {\n")
	b.WriteString("  rankdir=LR;\n")
	aliases := make(map[string]string, len(g.order))
	for i, key := range g.order {
		alias := fmt.Sprintf("n%d", i)
		aliases[key] = alias
		node := g.nodes[key]
		b.WriteString(fmt.Sprintf("  %s [label=\"%s\\n(%s)\"];\n", alias, escapeQuotes(key), node.kind))
	}
	for _, edge := range g.Edges() {
		b.WriteString(fmt.Sprintf("  %s -> %s;\n", aliases[edge.From], aliases[edge.To]))
	}
	b.WriteString("}\n")
	return b.String()
}

// Mermaid exports Mermaid graph text.
func (g *Graph) Mermaid() string {
	var b strings.Builder
	b.WriteString("graph TD\n")
	aliases := make(map[string]string, len(g.order))
	for i, key := range g.order {
		alias := fmt.Sprintf("n%d", i)
		aliases[key] = alias
		node := g.nodes[key]
		b.WriteString(fmt.Sprintf("    %s[\"%s<br/>(%s)\"]\n", alias, escapeQuotes(key), node.kind))
	}
	for _, edge := range g.Edges() {
		b.WriteString(fmt.Sprintf("    %s --> %s\n", aliases[edge.From], aliases[edge.To]))
	}
	return b.String()
}

func escapeQuotes(s string) string {
	return strings.ReplaceAll(s, "\"", "\\\"")
}

func childKey(parent, local string) string {
	return parent + "." + local
}

func hasLocal(locals map[string]struct{}, key string) bool {
	_, ok := locals[key]
	return ok
}

func validateKey(key string) error {
	switch {
	case strings.TrimSpace(key) == "":
		return &InvalidSpecError{Key: key, Reason: "key must not be empty"}
	case key == AuthKey:
		return &InvalidSpecError{Key: key, Reason: "key is reserved for the auth slot"}
	case strings.Contains(key, "."):
		return &InvalidSpecError{Key: key, Reason: "key must not contain '.'"}
	}
	return nil
}
