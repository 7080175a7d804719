package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/eventgraph/internal/core/community"
	"github.com/agenthands/eventgraph/internal/core/model"
	"github.com/agenthands/eventgraph/internal/errs"
)

func lineFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t, base)
	f.addEvents(t,
		event("a", model.EventInvestment, at(0)),
		event("b", model.EventPartnership, at(1)),
		event("c", model.EventProductLaunch, at(2)),
	)
	f.relate(t, "a", "b", model.RelationCausal, 0.9)
	f.relate(t, "b", "c", model.RelationCausal, 0.8)
	return f
}

func TestCalculateCentrality_Line(t *testing.T) {
	f := lineFixture(t)
	ctx := context.Background()

	between, err := f.proc.CalculateCentrality(ctx, CentralityBetweenness)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, between["b"], 1e-9)
	assert.InDelta(t, 0.0, between["a"], 1e-9)
	assert.InDelta(t, 0.0, between["c"], 1e-9)

	degree, err := f.proc.CalculateCentrality(ctx, CentralityDegree)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, degree["b"], 1e-9)
	assert.InDelta(t, 0.5, degree["a"], 1e-9)

	closeness, err := f.proc.CalculateCentrality(ctx, CentralityCloseness)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, closeness["c"], 1e-9)
	assert.InDelta(t, 0.5, closeness["b"], 1e-9)
	assert.Zero(t, closeness["a"])

	rank, err := f.proc.CalculateCentrality(ctx, CentralityPageRank)
	require.NoError(t, err)
	sum := 0.0
	for _, r := range rank {
		sum += r
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
	assert.Greater(t, rank["c"], rank["a"])

	_, err = f.proc.CalculateCentrality(ctx, "katz")
	assert.True(t, errs.Is(err, errs.KindInvalidArgument))
}

func TestEigenvectorCentrality_Cycle(t *testing.T) {
	g := New(EventGraph, true)
	for _, id := range []string{"a", "b", "c"} {
		g.AddNode(Node{ID: id})
	}
	g.AddEdge(Edge{Source: "a", Target: "b", Weight: 1})
	g.AddEdge(Edge{Source: "b", Target: "c", Weight: 1})
	g.AddEdge(Edge{Source: "c", Target: "a", Weight: 1})

	scores, converged := eigenvectorCentrality(g)
	assert.True(t, converged)
	assert.InDelta(t, scores["a"], scores["b"], 1e-9)
	assert.InDelta(t, scores["b"], scores["c"], 1e-9)
}

func TestGetGraphMetrics_Triangle(t *testing.T) {
	f := lineFixture(t)
	f.relate(t, "a", "c", model.RelationCausal, 0.5)

	m, err := f.proc.GetGraphMetrics(context.Background(), EventGraph)
	require.NoError(t, err)
	assert.Equal(t, 3, m.NodeCount)
	assert.Equal(t, 3, m.EdgeCount)
	assert.InDelta(t, 1.0, m.Density, 1e-9)
	assert.InDelta(t, 1.0, m.ClusteringCoefficient, 1e-9)
	assert.Equal(t, 1, m.ConnectedComponents)
	assert.Equal(t, 3, m.LargestComponentSize)
	assert.Equal(t, 1, m.Diameter)
	assert.InDelta(t, 1.0, m.AveragePathLength, 1e-9)
}

func TestGetGraphMetrics_DisconnectedSkipsPaths(t *testing.T) {
	f := lineFixture(t)
	f.addEvents(t, event("lonely", model.EventOther, at(3)))

	m, err := f.proc.GetGraphMetrics(context.Background(), EventGraph)
	require.NoError(t, err)
	assert.Equal(t, 2, m.ConnectedComponents)
	assert.Equal(t, 3, m.LargestComponentSize)
	assert.Zero(t, m.Diameter)
	assert.Zero(t, m.AveragePathLength)

	empty, err := f.proc.GetGraphMetrics(context.Background(), PatternGraph)
	require.NoError(t, err)
	assert.Equal(t, Metrics{}, *empty)
}

func communityFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t, base)
	for _, id := range []string{"x1", "x2", "x3", "y1", "y2", "y3", "z1", "z2"} {
		f.addEvents(t, event(id, model.EventInvestment, at(0)))
	}
	for _, tri := range [][3]string{{"x1", "x2", "x3"}, {"y1", "y2", "y3"}} {
		f.relate(t, tri[0], tri[1], model.RelationCorrelation, 1)
		f.relate(t, tri[1], tri[2], model.RelationCorrelation, 1)
		f.relate(t, tri[0], tri[2], model.RelationCorrelation, 1)
	}
	f.relate(t, "z1", "z2", model.RelationCorrelation, 1)
	return f
}

func TestAnalyzeEventCommunities_Components(t *testing.T) {
	f := communityFixture(t)

	report, err := f.proc.AnalyzeEventCommunities(context.Background(), community.Components)
	require.NoError(t, err)
	assert.False(t, report.FellBack)
	require.Len(t, report.Communities, 2)
	assert.Equal(t, "community_0", report.Communities[0].ID)
	assert.Equal(t, []string{"x1", "x2", "x3"}, report.Communities[0].Members)
	assert.Equal(t, []string{"y1", "y2", "y3"}, report.Communities[1].Members)
	assert.Greater(t, report.Modularity, 0.0)
}

func TestAnalyzeEventCommunities_LeidenFallsBack(t *testing.T) {
	f := communityFixture(t)
	ctx := context.Background()

	report, err := f.proc.AnalyzeEventCommunities(ctx, community.Leiden)
	require.NoError(t, err)
	assert.True(t, report.FellBack)
	assert.Equal(t, community.Leiden, report.Requested)
	assert.Equal(t, community.LabelPropagation, report.Algorithm)
	assert.Len(t, report.Communities, 2)

	_, err = f.proc.AnalyzeEventCommunities(ctx, "spectral")
	assert.True(t, errs.Is(err, errs.KindInvalidArgument))
}

func TestAnalysisCache_ClearedOnRebuild(t *testing.T) {
	f := lineFixture(t)
	ctx := context.Background()

	m, err := f.proc.GetGraphMetrics(ctx, EventGraph)
	require.NoError(t, err)
	assert.Equal(t, 3, m.NodeCount)

	f.addEvents(t, event("d", model.EventOther, at(4)))
	m, err = f.proc.GetGraphMetrics(ctx, EventGraph)
	require.NoError(t, err)
	assert.Equal(t, 3, m.NodeCount, "graphs are rebuilt only on request")

	_, err = f.proc.BuildEventGraph(ctx, nil)
	require.NoError(t, err)
	m, err = f.proc.GetGraphMetrics(ctx, EventGraph)
	require.NoError(t, err)
	assert.Equal(t, 4, m.NodeCount)
}
