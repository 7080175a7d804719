package graph

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
)

// Kind names one of the three graph views.
type Kind string

const (
	EventGraph   Kind = "event"
	PatternGraph Kind = "pattern"
	UnifiedGraph Kind = "unified"
)

func ParseKind(s string) (Kind, bool) {
	switch k := Kind(s); k {
	case EventGraph, PatternGraph, UnifiedGraph:
		return k, true
	case "":
		return EventGraph, true
	}
	return "", false
}

// Node kinds.
const (
	NodeEvent   = "event"
	NodePattern = "pattern"
)

// Edge kinds.
const (
	EdgeRelation   = "relation"
	EdgeSimilarity = "similarity"
	EdgeMapping    = "mapping"
)

type Node struct {
	ID        string         `json:"id"`
	Kind      string         `json:"node_type"`
	Type      string         `json:"type"`
	Label     string         `json:"label,omitempty"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
	Attrs     map[string]any `json:"attributes,omitempty"`
}

type Edge struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Kind       string  `json:"edge_type"`
	Relation   string  `json:"relation_type,omitempty"`
	Confidence float64 `json:"confidence"`
	Weight     float64 `json:"weight"`
}

// Graph is an in-memory view over events and patterns. At most one edge is
// kept per ordered pair (per unordered pair when undirected); a later edge
// replaces an earlier one.
type Graph struct {
	Kind     Kind
	Directed bool

	nodes []Node
	index map[string]int
	edges []Edge
	pairs map[[2]string]int
}

func New(kind Kind, directed bool) *Graph {
	return &Graph{
		Kind:     kind,
		Directed: directed,
		index:    make(map[string]int),
		pairs:    make(map[[2]string]int),
	}
}

// AddNode inserts n or replaces the node with the same id.
func (g *Graph) AddNode(n Node) {
	if i, ok := g.index[n.ID]; ok {
		g.nodes[i] = n
		return
	}
	g.index[n.ID] = len(g.nodes)
	g.nodes = append(g.nodes, n)
}

func (g *Graph) pair(u, v string) [2]string {
	if !g.Directed && v < u {
		u, v = v, u
	}
	return [2]string{u, v}
}

// AddEdge links two existing, distinct nodes. It reports whether the edge was
// added.
func (g *Graph) AddEdge(e Edge) bool {
	if e.Source == e.Target || !g.Has(e.Source) || !g.Has(e.Target) {
		return false
	}
	key := g.pair(e.Source, e.Target)
	if i, ok := g.pairs[key]; ok {
		g.edges[i] = e
		return true
	}
	g.pairs[key] = len(g.edges)
	g.edges = append(g.edges, e)
	return true
}

func (g *Graph) Has(id string) bool {
	_, ok := g.index[id]
	return ok
}

func (g *Graph) Node(id string) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// EdgeBetween returns the edge u->v; undirected graphs ignore the order.
func (g *Graph) EdgeBetween(u, v string) (Edge, bool) {
	i, ok := g.pairs[g.pair(u, v)]
	if !ok {
		return Edge{}, false
	}
	return g.edges[i], true
}

func (g *Graph) Nodes() []Node { return g.nodes }
func (g *Graph) Edges() []Edge { return g.edges }

func (g *Graph) NodeCount() int { return len(g.nodes) }
func (g *Graph) EdgeCount() int { return len(g.edges) }

// successors lists the ids reachable over one edge, sorted. Undirected graphs
// list every neighbour.
func (g *Graph) successors() map[string][]string {
	out := make(map[string][]string, len(g.nodes))
	for _, e := range g.edges {
		out[e.Source] = append(out[e.Source], e.Target)
		if !g.Directed {
			out[e.Target] = append(out[e.Target], e.Source)
		}
	}
	for id := range out {
		sort.Strings(out[id])
	}
	return out
}

// predecessors lists the ids with an edge into each node.
func (g *Graph) predecessors() map[string][]string {
	if !g.Directed {
		return g.successors()
	}
	out := make(map[string][]string, len(g.nodes))
	for _, e := range g.edges {
		out[e.Target] = append(out[e.Target], e.Source)
	}
	return out
}

// neighbours is the undirected adjacency: every node that shares an edge.
func (g *Graph) neighbours() map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{}, len(g.nodes))
	for _, n := range g.nodes {
		out[n.ID] = make(map[string]struct{})
	}
	for _, e := range g.edges {
		out[e.Source][e.Target] = struct{}{}
		out[e.Target][e.Source] = struct{}{}
	}
	return out
}

// undirectedEdgeCount counts distinct unordered pairs.
func (g *Graph) undirectedEdgeCount() int {
	if !g.Directed {
		return len(g.edges)
	}
	seen := make(map[[2]string]struct{}, len(g.edges))
	for _, e := range g.edges {
		u, v := e.Source, e.Target
		if v < u {
			u, v = v, u
		}
		seen[[2]string{u, v}] = struct{}{}
	}
	return len(seen)
}

// namedNode is a gonum node that remembers its string id. DOTID makes it
// render with that id in DOT output.
type namedNode struct {
	id   int64
	name string
}

func (n namedNode) ID() int64      { return n.id }
func (n namedNode) DOTID() string { return n.name }

// gonumView is the graph as a gonum graph plus the id mapping.
type gonumView struct {
	g     graph.Graph
	ids   map[string]int64
	names map[int64]string
}

// toGonum converts g. A directed view of an undirected graph carries each
// edge in both directions; an undirected view of a directed graph merges
// opposite edges.
func (g *Graph) toGonum(directed bool) gonumView {
	v := gonumView{ids: make(map[string]int64, len(g.nodes)), names: make(map[int64]string, len(g.nodes))}
	nodes := make([]namedNode, len(g.nodes))
	for i, n := range g.nodes {
		id := int64(i)
		v.ids[n.ID], v.names[id] = id, n.ID
		nodes[i] = namedNode{id: id, name: n.ID}
	}
	weight := func(e Edge) float64 {
		if e.Weight <= 0 {
			return 1
		}
		return e.Weight
	}

	if directed {
		dg := simple.NewWeightedDirectedGraph(0, 0)
		for _, n := range nodes {
			dg.AddNode(n)
		}
		for _, e := range g.edges {
			from, to := nodes[v.ids[e.Source]], nodes[v.ids[e.Target]]
			dg.SetWeightedEdge(dg.NewWeightedEdge(from, to, weight(e)))
			if !g.Directed {
				dg.SetWeightedEdge(dg.NewWeightedEdge(to, from, weight(e)))
			}
		}
		v.g = dg
		return v
	}

	ug := simple.NewWeightedUndirectedGraph(0, 0)
	for _, n := range nodes {
		ug.AddNode(n)
	}
	for _, e := range g.edges {
		from, to := nodes[v.ids[e.Source]], nodes[v.ids[e.Target]]
		if ug.HasEdgeBetween(from.id, to.id) {
			continue
		}
		ug.SetWeightedEdge(ug.NewWeightedEdge(from, to, weight(e)))
	}
	v.g = ug
	return v
}
