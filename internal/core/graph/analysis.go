package graph

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/network"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/agenthands/eventgraph/internal/core/community"
	"github.com/agenthands/eventgraph/internal/errs"
	"github.com/agenthands/eventgraph/internal/logging"
)

// Centrality algorithms.
const (
	CentralityDegree      = "degree"
	CentralityBetweenness = "betweenness"
	CentralityCloseness   = "closeness"
	CentralityEigenvector = "eigenvector"
	CentralityPageRank    = "pagerank"
)

const (
	pageRankDamping = 0.85
	pageRankTol     = 1e-8
	eigenMaxIter    = 1000
)

type Community struct {
	ID      string   `json:"id"`
	Members []string `json:"members"`
}

type CommunityReport struct {
	Requested   string      `json:"requested_algorithm"`
	Algorithm   string      `json:"algorithm"`
	FellBack    bool        `json:"fell_back"`
	Communities []Community `json:"communities"`
	Modularity  float64     `json:"modularity"`
}

func communityInput(g *Graph) ([]string, []community.Edge) {
	nodes := make([]string, 0, g.NodeCount())
	for _, n := range g.Nodes() {
		nodes = append(nodes, n.ID)
	}
	edges := make([]community.Edge, 0, g.EdgeCount())
	for _, e := range g.Edges() {
		edges = append(edges, community.Edge{Source: e.Source, Target: e.Target, Weight: e.Weight})
	}
	return nodes, edges
}

// AnalyzeEventCommunities partitions the event graph, treated as undirected,
// and keeps communities of at least the configured minimum size. leiden has
// no implementation and runs label propagation instead.
func (p *Processor) AnalyzeEventCommunities(ctx context.Context, algorithm string) (_ *CommunityReport, err error) {
	if algorithm == "" {
		algorithm = p.cfg.ClusteringAlgorithm
	}
	defer logging.Observe(p.log, "graph.communities", &err, zap.String("algorithm", algorithm))()

	switch algorithm {
	case community.Louvain, community.Leiden, community.LabelPropagation, community.Components:
	default:
		return nil, errs.InvalidArgument("graph.communities", "unknown clustering algorithm %q", algorithm)
	}
	g, err := p.ensure(ctx, EventGraph)
	if err != nil {
		return nil, err
	}

	return cached(p, "communities|"+algorithm, func() (*CommunityReport, error) {
		detector, fellBack := community.New(algorithm)
		if fellBack {
			p.log.Warn("clustering algorithm unavailable, using fallback",
				zap.String("requested", algorithm), zap.String("used", detector.Name()))
		}
		nodes, edges := communityInput(g)
		groups := detector.Detect(nodes, edges)

		report := &CommunityReport{
			Requested:  algorithm,
			Algorithm:  detector.Name(),
			FellBack:   fellBack,
			Modularity: community.Modularity(nodes, edges, groups),
		}
		for _, members := range groups {
			if len(members) < p.cfg.MinCommunitySize {
				continue
			}
			report.Communities = append(report.Communities, Community{
				ID:      fmt.Sprintf("community_%d", len(report.Communities)),
				Members: members,
			})
		}
		return report, nil
	})
}

// CalculateCentrality scores every event-graph node with the named algorithm,
// or the configured one when empty.
func (p *Processor) CalculateCentrality(ctx context.Context, algorithm string) (_ map[string]float64, err error) {
	if algorithm == "" {
		algorithm = p.cfg.CentralityAlgorithm
	}
	defer logging.Observe(p.log, "graph.centrality", &err, zap.String("algorithm", algorithm))()

	var fn func(*Graph) map[string]float64
	switch algorithm {
	case CentralityDegree:
		fn = degreeCentrality
	case CentralityBetweenness:
		fn = betweennessCentrality
	case CentralityCloseness:
		fn = closenessCentrality
	case CentralityEigenvector:
		fn = func(g *Graph) map[string]float64 {
			scores, converged := eigenvectorCentrality(g)
			if !converged {
				p.log.Warn("eigenvector centrality did not converge", zap.Int("iterations", eigenMaxIter))
			}
			return scores
		}
	case CentralityPageRank:
		fn = pageRank
	default:
		return nil, errs.InvalidArgument("graph.centrality", "unknown centrality algorithm %q", algorithm)
	}

	g, err := p.ensure(ctx, EventGraph)
	if err != nil {
		return nil, err
	}
	return cached(p, "centrality|"+algorithm, func() (map[string]float64, error) {
		return fn(g), nil
	})
}

func zeros(g *Graph) map[string]float64 {
	out := make(map[string]float64, g.NodeCount())
	for _, n := range g.Nodes() {
		out[n.ID] = 0
	}
	return out
}

// degreeCentrality is (in + out degree) / (n - 1).
func degreeCentrality(g *Graph) map[string]float64 {
	out := zeros(g)
	n := g.NodeCount()
	if n <= 1 {
		for id := range out {
			out[id] = 1
		}
		return out
	}
	for _, e := range g.Edges() {
		out[e.Source]++
		out[e.Target]++
	}
	for id := range out {
		out[id] /= float64(n - 1)
	}
	return out
}

// betweennessCentrality normalises gonum's Brandes scores by (n-1)(n-2).
// Undirected graphs are walked as symmetric directed ones, so each unordered
// pair is counted from both ends and the same factor applies.
func betweennessCentrality(g *Graph) map[string]float64 {
	out := zeros(g)
	n := g.NodeCount()
	if n <= 2 {
		return out
	}
	v := g.toGonum(true)
	scale := 1 / float64((n-1)*(n-2))
	for id, b := range network.Betweenness(v.g) {
		out[v.names[id]] = b * scale
	}
	return out
}

// closenessCentrality uses incoming hop distances and scales by the reachable
// fraction, so nodes in small components score lower.
func closenessCentrality(g *Graph) map[string]float64 {
	out := zeros(g)
	n := g.NodeCount()
	if n <= 1 {
		return out
	}
	pred := g.predecessors()
	for _, node := range g.Nodes() {
		dist := bfs(node.ID, pred)
		total, reached := 0, 0
		for id, d := range dist {
			if id != node.ID {
				total += d
				reached++
			}
		}
		if total > 0 {
			r := float64(reached)
			out[node.ID] = (r / float64(total)) * (r / float64(n-1))
		}
	}
	return out
}

func bfs(source string, adj map[string][]string) map[string]int {
	dist := map[string]int{source: 0}
	queue := []string{source}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, v := range adj[u] {
			if _, seen := dist[v]; !seen {
				dist[v] = dist[u] + 1
				queue = append(queue, v)
			}
		}
	}
	return dist
}

// eigenvectorCentrality runs power iteration on (A + I) over incoming edge
// weights. When it does not converge the last iterate is returned.
func eigenvectorCentrality(g *Graph) (map[string]float64, bool) {
	n := g.NodeCount()
	if n == 0 {
		return map[string]float64{}, true
	}
	x := make(map[string]float64, n)
	for _, node := range g.Nodes() {
		x[node.ID] = 1 / float64(n)
	}
	tol := float64(n) * 1e-6

	for iter := 0; iter < eigenMaxIter; iter++ {
		next := make(map[string]float64, n)
		for id, v := range x {
			next[id] = v
		}
		for _, e := range g.Edges() {
			w := e.Weight
			if w <= 0 {
				w = 1
			}
			next[e.Target] += w * x[e.Source]
			if !g.Directed {
				next[e.Source] += w * x[e.Target]
			}
		}
		norm := 0.0
		for _, v := range next {
			norm += v * v
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			return next, true
		}
		diff := 0.0
		for id := range next {
			next[id] /= norm
			diff += math.Abs(next[id] - x[id])
		}
		x = next
		if diff < tol {
			return x, true
		}
	}
	return x, false
}

func pageRank(g *Graph) map[string]float64 {
	out := zeros(g)
	if g.NodeCount() == 0 {
		return out
	}
	v := g.toGonum(true)
	for id, r := range network.PageRank(v.g.(graph.Directed), pageRankDamping, pageRankTol) {
		out[v.names[id]] = r
	}
	return out
}

type Metrics struct {
	NodeCount             int     `json:"node_count"`
	EdgeCount             int     `json:"edge_count"`
	Density               float64 `json:"density"`
	ClusteringCoefficient float64 `json:"clustering_coefficient"`
	AveragePathLength     float64 `json:"average_path_length"`
	Diameter              int     `json:"diameter"`
	ConnectedComponents   int     `json:"connected_components"`
	LargestComponentSize  int     `json:"largest_component_size"`
}

// GetGraphMetrics summarises the structure of a view, building it first when
// needed. Path length and diameter stay 0 unless the graph is connected.
func (p *Processor) GetGraphMetrics(ctx context.Context, kind Kind) (_ *Metrics, err error) {
	defer logging.Observe(p.log, "graph.metrics", &err, zap.String("graph", string(kind)))()
	g, err := p.ensure(ctx, kind)
	if err != nil {
		return nil, err
	}
	return cached(p, "metrics|"+string(kind), func() (*Metrics, error) {
		return computeMetrics(g), nil
	})
}

func computeMetrics(g *Graph) *Metrics {
	m := &Metrics{NodeCount: g.NodeCount(), EdgeCount: g.EdgeCount()}
	n := g.NodeCount()
	if n == 0 {
		return m
	}
	if n > 1 {
		m.Density = 2 * float64(g.undirectedEdgeCount()) / float64(n*(n-1))
	}
	m.ClusteringCoefficient = averageClustering(g)

	components := topo.ConnectedComponents(g.toGonum(false).g.(graph.Undirected))
	m.ConnectedComponents = len(components)
	for _, c := range components {
		m.LargestComponentSize = max(m.LargestComponentSize, len(c))
	}

	if m.ConnectedComponents == 1 && n > 1 {
		adj := make(map[string][]string, n)
		for id, set := range g.neighbours() {
			for v := range set {
				adj[id] = append(adj[id], v)
			}
		}
		total := 0
		for _, node := range g.Nodes() {
			for _, d := range bfs(node.ID, adj) {
				total += d
				m.Diameter = max(m.Diameter, d)
			}
		}
		m.AveragePathLength = float64(total) / float64(n*(n-1))
	}
	return m
}

// averageClustering is the mean local clustering coefficient of the
// undirected view.
func averageClustering(g *Graph) float64 {
	nb := g.neighbours()
	if len(nb) == 0 {
		return 0
	}
	ids := make([]string, 0, len(nb))
	for id := range nb {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	sum := 0.0
	for _, id := range ids {
		set := nb[id]
		k := len(set)
		if k < 2 {
			continue
		}
		links := 0
		for u := range set {
			for v := range set {
				if u < v {
					if _, ok := nb[u][v]; ok {
						links++
					}
				}
			}
		}
		sum += 2 * float64(links) / float64(k*(k-1))
	}
	return sum / float64(len(ids))
}
