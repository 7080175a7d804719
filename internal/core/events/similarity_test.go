package events

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/eventgraph/internal/core/model"
)

func TestSimilarity_Identical(t *testing.T) {
	e := event("a", model.EventInvestment, at(0), "Acme", "Beta")
	e.Location = "Berlin"
	e.Properties = map[string]any{"round": "A"}
	other := e
	other.ID = "b"
	other.Location = "berlin"

	assert.InDelta(t, 1.0, Similarity(&e, &other), 1e-9)
}

func TestSimilarity_NeutralTerms(t *testing.T) {
	a := model.Event{ID: "a", Type: model.EventInvestment, Text: "alpha"}
	b := model.Event{ID: "b", Type: model.EventPartnership, Text: "beta"}
	// time 0.5*0.10 + location 0.5*0.10 + attributes 0.5*0.05
	assert.InDelta(t, 0.125, Similarity(&a, &b), 1e-9)
}

func TestSimilarity_Terms(t *testing.T) {
	a := model.Event{ID: "a", Type: model.EventInvestment, Text: "acme raises money", Timestamp: at(0),
		Participants: []model.Entity{{Name: "Acme"}, {Name: "Fund"}}, Location: "Paris",
		Properties: map[string]any{"round": "A", "amount": 5}}
	b := model.Event{ID: "b", Type: model.EventInvestment, Summary: "acme raises capital", Timestamp: at(30),
		Participants: []model.Entity{{Name: "Acme"}}, Location: "Berlin",
		Properties: map[string]any{"round": "A", "amount": 6.0, "lead": "x"}}

	want := 0.30*1 +
		0.25*0.5 +
		0.20*(2.0/4.0) +
		0.10*math.Exp(-1) +
		0.10*0 +
		0.05*0.5
	assert.InDelta(t, want, Similarity(&a, &b), 1e-9)
}

func TestAttributeSimilarity_NoCommonKeys(t *testing.T) {
	assert.Equal(t, 0.0, attributeSimilarity(map[string]any{"a": 1}, map[string]any{"b": 1}))
	assert.Equal(t, 1.0, attributeSimilarity(map[string]any{"a": 1}, map[string]any{"a": 1.0}))
}

func TestFindSimilarEvents(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, nil)

	target := event("t", model.EventInvestment, at(0), "Acme", "Fund")
	near := event("near", model.EventInvestment, at(1), "Acme", "Fund")
	far := event("far", model.EventInvestment, at(200), "Other")
	related := event("rel", model.EventBusinessMerger, at(0), "Acme", "Fund")
	unrelated := event("unrel", model.EventRegulatoryChange, at(0), "Acme", "Fund")
	for _, e := range []model.Event{target, near, far, related, unrelated} {
		require.NoError(t, m.AddEvent(ctx, &e))
	}

	got, err := m.FindSimilarEvents(ctx, &target, 0.3, 10)
	require.NoError(t, err)
	ids := make([]string, len(got))
	for i, s := range got {
		ids[i] = s.Event.ID
	}
	assert.Equal(t, "near", ids[0])
	assert.NotContains(t, ids, "t", "the target is excluded")
	assert.Contains(t, ids, "rel", "related types extend small pools")
	assert.NotContains(t, ids, "unrel")
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}

	limited, err := m.FindSimilarEvents(ctx, &target, 0, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestFindSimilarEvents_SkipsRelatedTypesForLargePools(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, nil)

	for i := 0; i < minCandidates; i++ {
		e := event(fmt.Sprintf("inv%02d", i), model.EventInvestment, at(i))
		require.NoError(t, m.AddEvent(ctx, &e))
	}
	merger := event("merger", model.EventBusinessMerger, at(0))
	require.NoError(t, m.AddEvent(ctx, &merger))

	target := event("", model.EventInvestment, at(0))
	got, err := m.FindSimilarEvents(ctx, &target, 0, 100)
	require.NoError(t, err)
	assert.Len(t, got, minCandidates)
	for _, s := range got {
		assert.Equal(t, model.EventInvestment, s.Event.Type)
	}
}
