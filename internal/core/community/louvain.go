package community

import (
	"sort"

	"gonum.org/v1/gonum/graph"
	gcommunity "gonum.org/v1/gonum/graph/community"
	"gonum.org/v1/gonum/graph/simple"
)

// LouvainDetector maximises modularity with gonum's Louvain implementation.
type LouvainDetector struct {
	Resolution float64
}

func NewLouvainDetector() *LouvainDetector {
	return &LouvainDetector{Resolution: 1}
}

func (d *LouvainDetector) Name() string { return Louvain }

func (d *LouvainDetector) Detect(nodes []string, edges []Edge) [][]string {
	if len(nodes) == 0 {
		return nil
	}
	g, names := weighted(nodes, edges)
	reduced := gcommunity.Modularize(g, d.Resolution, nil)
	return normalize(toNames(reduced.Communities(), names))
}

// Modularity scores a partition of the graph with gonum's Q.
func Modularity(nodes []string, edges []Edge, communities [][]string) float64 {
	if len(nodes) == 0 {
		return 0
	}
	g, names := weighted(nodes, edges)
	ids := make(map[string]int64, len(names))
	for id, n := range names {
		ids[n] = id
	}

	seen := make(map[int64]bool)
	var parts [][]graph.Node
	for _, c := range communities {
		var part []graph.Node
		for _, n := range c {
			if id, ok := ids[n]; ok && !seen[id] {
				seen[id] = true
				part = append(part, simple.Node(id))
			}
		}
		if len(part) > 0 {
			parts = append(parts, part)
		}
	}
	// Q needs every node placed; unassigned nodes form singletons.
	for id := range names {
		if !seen[id] {
			parts = append(parts, []graph.Node{simple.Node(id)})
		}
	}
	return gcommunity.Q(g, parts, 1)
}

func weighted(nodes []string, edges []Edge) (*simple.WeightedUndirectedGraph, map[int64]string) {
	order := append([]string(nil), nodes...)
	sort.Strings(order)

	g := simple.NewWeightedUndirectedGraph(0, 0)
	ids := make(map[string]int64, len(order))
	names := make(map[int64]string, len(order))
	for _, n := range order {
		if _, dup := ids[n]; dup {
			continue
		}
		id := int64(len(ids))
		ids[n] = id
		names[id] = n
		g.AddNode(simple.Node(id))
	}

	adj := adjacency(order, edges)
	for _, u := range order {
		for v, w := range adj[u] {
			if u < v {
				g.SetWeightedEdge(g.NewWeightedEdge(simple.Node(ids[u]), simple.Node(ids[v]), w))
			}
		}
	}
	return g, names
}

func toNames(communities [][]graph.Node, names map[int64]string) [][]string {
	out := make([][]string, 0, len(communities))
	for _, c := range communities {
		group := make([]string, 0, len(c))
		for _, n := range c {
			group = append(group, names[n.ID()])
		}
		out = append(out, group)
	}
	return out
}
