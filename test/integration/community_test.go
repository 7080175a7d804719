//go:build integration

package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/eventgraph/internal/core/community"
	"github.com/agenthands/eventgraph/internal/core/model"
)

func TestCommunities(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	names := []string{"x1", "x2", "x3"}
	for i, n := range names {
		e.add(t, e.event(n, model.EventInvestment, i))
	}
	for _, pair := range [][2]string{{"x1", "x2"}, {"x2", "x3"}, {"x1", "x3"}} {
		require.NoError(t, e.arch.Events.CreateEventRelation(ctx, &model.EventRelation{
			Type: model.RelationCorrelation, SourceEventID: e.id(pair[0]), TargetEventID: e.id(pair[1]),
			Confidence: 1, Strength: 1,
		}))
	}

	_, err := e.arch.Graph.BuildEventGraph(ctx, nil)
	require.NoError(t, err)
	report, err := e.arch.Graph.AnalyzeEventCommunities(ctx, community.Components)
	require.NoError(t, err)

	want := []string{e.id("x1"), e.id("x2"), e.id("x3")}
	found := false
	for _, c := range report.Communities {
		if assert.ObjectsAreEqual(want, c.Members) {
			found = true
		}
	}
	assert.True(t, found, "the related events form one community")
}
