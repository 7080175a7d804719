package graph

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/agenthands/eventgraph/internal/core/model"
	"github.com/agenthands/eventgraph/internal/errs"
	"github.com/agenthands/eventgraph/internal/logging"
)

// Path types.
const (
	PathCausal     = "causal"
	PathTemporal   = "temporal"
	PathSimilarity = "similarity"
	PathAny        = "any"
)

type Path struct {
	Nodes      []string `json:"path"`
	Type       string   `json:"path_type"`
	Confidence float64  `json:"confidence"`
	Length     int      `json:"length"`
	Weight     float64  `json:"weight"`
}

// FindEventPaths enumerates simple paths from source to target in the event
// graph with at most maxLength edges, best confidence first. pathType is
// causal, temporal or any; maxLength <= 0 uses the configured maximum.
func (p *Processor) FindEventPaths(ctx context.Context, source, target, pathType string, maxLength int) (_ []Path, err error) {
	defer logging.Observe(p.log, "graph.find_paths", &err,
		zap.String("source", source), zap.String("target", target), zap.String("path_type", pathType))()

	switch pathType {
	case "":
		pathType = PathAny
	case PathCausal, PathTemporal, PathAny:
	default:
		return nil, errs.InvalidArgument("graph.find_paths", "unknown path type %q", pathType)
	}
	if maxLength <= 0 {
		maxLength = p.cfg.MaxPathLength
	}
	g, err := p.ensure(ctx, EventGraph)
	if err != nil {
		return nil, err
	}
	if !g.Has(source) || !g.Has(target) || source == target {
		return nil, nil
	}

	var out []Path
	for _, nodes := range simplePaths(g, source, target, maxLength) {
		var typ string
		switch pathType {
		case PathCausal:
			if !isCausal(g, nodes) {
				continue
			}
			typ = PathCausal
		case PathTemporal:
			if !isTemporal(g, nodes) {
				continue
			}
			typ = PathTemporal
		default:
			typ = classify(g, nodes)
		}
		conf, weight := pathScores(g, nodes)
		out = append(out, Path{Nodes: nodes, Type: typ, Confidence: conf, Length: len(nodes), Weight: weight})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out, nil
}

// simplePaths runs a depth-first search over successors in id order.
func simplePaths(g *Graph, source, target string, maxEdges int) [][]string {
	succ := g.successors()
	var out [][]string
	onPath := map[string]bool{source: true}
	path := []string{source}

	var walk func(u string)
	walk = func(u string) {
		if len(path)-1 >= maxEdges {
			return
		}
		for _, v := range succ[u] {
			if onPath[v] {
				continue
			}
			path = append(path, v)
			if v == target {
				out = append(out, append([]string(nil), path...))
			} else {
				onPath[v] = true
				walk(v)
				onPath[v] = false
			}
			path = path[:len(path)-1]
		}
	}
	walk(source)
	return out
}

func isCausal(g *Graph, nodes []string) bool {
	for i := 0; i+1 < len(nodes); i++ {
		e, ok := g.EdgeBetween(nodes[i], nodes[i+1])
		if !ok || e.Relation != model.RelationCausal.String() {
			return false
		}
	}
	return true
}

// isTemporal reports whether the known timestamps along the path never go
// backwards. Nodes without a timestamp are skipped.
func isTemporal(g *Graph, nodes []string) bool {
	var last *Node
	for _, id := range nodes {
		n, _ := g.Node(id)
		if n.Timestamp == nil {
			continue
		}
		if last != nil && n.Timestamp.Before(*last.Timestamp) {
			return false
		}
		last = &n
	}
	return true
}

func classify(g *Graph, nodes []string) string {
	switch {
	case isCausal(g, nodes):
		return PathCausal
	case isTemporal(g, nodes):
		return PathTemporal
	}
	return PathSimilarity
}

// pathScores returns the mean edge confidence and the summed edge weight.
func pathScores(g *Graph, nodes []string) (confidence, weight float64) {
	n := 0
	for i := 0; i+1 < len(nodes); i++ {
		e, ok := g.EdgeBetween(nodes[i], nodes[i+1])
		if !ok {
			continue
		}
		confidence += e.Confidence
		weight += e.Weight
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return confidence / float64(n), weight
}
