// Package community partitions undirected, weighted graphs keyed by string
// node ids into densely connected groups.
package community

import (
	"sort"
)

// Algorithm names accepted by New.
const (
	Louvain          = "louvain"
	Leiden           = "leiden"
	LabelPropagation = "label_propagation"
	Components       = "components"
)

// Edge is an undirected, weighted link. Repeated edges between the same pair
// add up; a zero weight counts as 1.
type Edge struct {
	Source string
	Target string
	Weight float64
}

type Detector interface {
	Name() string
	// Detect returns communities of at least two nodes, each sorted, larger
	// communities first.
	Detect(nodes []string, edges []Edge) [][]string
}

// New returns the detector for algorithm. Algorithms without an
// implementation fall back to label propagation; fellBack reports that.
func New(algorithm string) (d Detector, fellBack bool) {
	switch algorithm {
	case Louvain:
		return NewLouvainDetector(), false
	case LabelPropagation:
		return NewLabelPropagationDetector(), false
	case Components:
		return ComponentsDetector{}, false
	}
	return NewLabelPropagationDetector(), true
}

// adjacency builds a symmetric weight map restricted to nodes. Self loops are
// dropped.
func adjacency(nodes []string, edges []Edge) map[string]map[string]float64 {
	adj := make(map[string]map[string]float64, len(nodes))
	for _, n := range nodes {
		adj[n] = make(map[string]float64)
	}
	for _, e := range edges {
		if e.Source == e.Target {
			continue
		}
		if _, ok := adj[e.Source]; !ok {
			continue
		}
		if _, ok := adj[e.Target]; !ok {
			continue
		}
		w := e.Weight
		if w == 0 {
			w = 1
		}
		adj[e.Source][e.Target] += w
		adj[e.Target][e.Source] += w
	}
	return adj
}

// normalize drops singletons and orders members and communities.
func normalize(groups [][]string) [][]string {
	var out [][]string
	for _, g := range groups {
		if len(g) < 2 {
			continue
		}
		g = append([]string(nil), g...)
		sort.Strings(g)
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i][0] < out[j][0]
	})
	return out
}

// ComponentsDetector treats every connected component as a community.
type ComponentsDetector struct{}

func (ComponentsDetector) Name() string { return Components }

func (ComponentsDetector) Detect(nodes []string, edges []Edge) [][]string {
	adj := adjacency(nodes, edges)
	visited := make(map[string]bool, len(nodes))
	var groups [][]string
	for _, n := range nodes {
		if visited[n] {
			continue
		}
		var component []string
		stack := []string{n}
		visited[n] = true
		for len(stack) > 0 {
			u := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			component = append(component, u)
			for v := range adj[u] {
				if !visited[v] {
					visited[v] = true
					stack = append(stack, v)
				}
			}
		}
		groups = append(groups, component)
	}
	return normalize(groups)
}
