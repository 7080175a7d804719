package community

import (
	"sort"
)

// LabelPropagationDetector implements community detection using the Label
// Propagation Algorithm. Nodes are visited in id order and ties go to the
// lexicographically largest label, so results are deterministic.
type LabelPropagationDetector struct {
	MaxIterations int
}

func NewLabelPropagationDetector() *LabelPropagationDetector {
	return &LabelPropagationDetector{MaxIterations: 20}
}

func (d *LabelPropagationDetector) Name() string { return LabelPropagation }

func (d *LabelPropagationDetector) Detect(nodes []string, edges []Edge) [][]string {
	if len(nodes) == 0 {
		return nil
	}
	adj := adjacency(nodes, edges)

	order := append([]string(nil), nodes...)
	sort.Strings(order)
	labels := make(map[string]string, len(order))
	for _, n := range order {
		labels[n] = n
	}

	for iter := 0; iter < d.MaxIterations; iter++ {
		changed := 0
		for _, u := range order {
			neighbors := adj[u]
			if len(neighbors) == 0 {
				continue
			}

			counts := make(map[string]float64)
			best := 0.0
			for v, w := range neighbors {
				l := labels[v]
				counts[l] += w
				best = max(best, counts[l])
			}
			var candidates []string
			for l, c := range counts {
				if c == best {
					candidates = append(candidates, l)
				}
			}
			sort.Strings(candidates)
			next := candidates[len(candidates)-1]

			if labels[u] != next {
				labels[u] = next
				changed++
			}
		}
		if changed == 0 {
			break
		}
	}

	clusters := make(map[string][]string)
	for _, n := range order {
		clusters[labels[n]] = append(clusters[labels[n]], n)
	}
	groups := make([][]string, 0, len(clusters))
	for _, c := range clusters {
		groups = append(groups, c)
	}
	return normalize(groups)
}
