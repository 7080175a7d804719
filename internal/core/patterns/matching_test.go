package patterns

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/eventgraph/internal/core/model"
)

func TestMatchScore(t *testing.T) {
	e := typedEvent("e", model.EventInvestment, 0)
	e.Properties = map[string]any{"domain": "business", "round": "A"}

	p := seqPattern("p", model.PatternTemporalSequence, 0.4, model.EventInvestment, model.EventBusinessCooperation)
	assert.InDelta(t, 0.4+0.15+0.1+0.1, MatchScore(&e, &p), 1e-9)

	p.Conditions = map[string]any{"round": "A", "lead": "x"}
	assert.InDelta(t, 0.4+0.15+0.1+0.1, MatchScore(&e, &p), 1e-9)

	p.Conditions = map[string]any{"round": "A"}
	assert.InDelta(t, 0.4+0.15+0.2+0.1, MatchScore(&e, &p), 1e-9)

	other := seqPattern("q", model.PatternTemporalSequence, 0.4, model.EventPersonnelChange, model.EventStrategyChange)
	other.Domain = "hr"
	assert.InDelta(t, 0.15+0.1+0.05, MatchScore(&e, &other), 1e-9)
}

func TestFindMatchingPatterns(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil)
	for _, p := range []model.EventPattern{
		seqPattern("inv-coop", model.PatternTemporalSequence, 0.4, model.EventInvestment, model.EventBusinessCooperation),
		seqPattern("inv-merger", model.PatternCausalRelationship, 0.6, model.EventInvestment, model.EventBusinessMerger),
		seqPattern("hr", model.PatternTemporalSequence, 0.3, model.EventPersonnelChange, model.EventStrategyChange),
	} {
		require.NoError(t, m.AddPattern(ctx, &p))
	}

	e := typedEvent("e", model.EventInvestment, 0)
	e.Properties = map[string]any{"domain": "business"}
	got, err := m.FindMatchingPatterns(ctx, &e, 0.7)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "inv-coop", got[0].Pattern.ID)
	assert.Equal(t, "inv-merger", got[1].Pattern.ID)
	assert.InDelta(t, 0.75, got[0].Score, 1e-9)

	// no bucket for the type: fall back to the stored patterns
	unindexed := typedEvent("x", model.EventRegulatoryChange, 0)
	got, err = m.FindMatchingPatterns(ctx, &unindexed, 0.2)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = m.FindMatchingPatterns(ctx, &unindexed, 0)
	require.NoError(t, err)
	assert.Empty(t, got, "the configured threshold applies")
}

func TestEvolvePatterns(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil)
	p := seqPattern("p", model.PatternTemporalSequence, 0.4, model.EventInvestment, model.EventBusinessCooperation)
	p.Instances = []string{"old"}
	require.NoError(t, m.AddPattern(ctx, &p))

	fresh := []model.Event{
		typedEvent("n1", model.EventInvestment, 0),
		typedEvent("n2", model.EventBusinessCooperation, 1),
		typedEvent("n3", model.EventRegulatoryChange, 2),
		typedEvent("n4", model.EventRegulatoryChange, 3),
		typedEvent("n5", model.EventRegulatoryChange, 4),
	}
	evolved, err := m.EvolvePatterns(ctx, fresh)
	require.NoError(t, err)
	require.Len(t, evolved, 1)

	got := evolved[0]
	assert.Equal(t, "p_evolved", got.ID)
	assert.Equal(t, 4, got.Frequency)
	// corpus 2/0.4 = 5 plus 5 new events
	assert.InDelta(t, 0.4, got.Support, 1e-9)
	assert.Equal(t, []string{"old", "n1", "n2"}, got.Instances)

	stored, err := m.GetPattern(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Frequency, "the original is untouched")
}
