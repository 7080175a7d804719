package patterns

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/eventgraph/internal/core/model"
)

// alternating investment / cooperation events on consecutive days
func alternating() []model.Event {
	types := []model.EventType{
		model.EventInvestment, model.EventBusinessCooperation, model.EventInvestment,
		model.EventBusinessCooperation, model.EventInvestment,
	}
	out := make([]model.Event, len(types))
	for i, et := range types {
		out[i] = typedEvent(string(rune('a'+i)), et, i)
	}
	return out
}

func byType(ps []model.EventPattern, t model.PatternType) []model.EventPattern {
	var out []model.EventPattern
	for _, p := range ps {
		if p.Type == t {
			out = append(out, p)
		}
	}
	return out
}

func TestExtractPatterns_Temporal(t *testing.T) {
	m := newTestManager(t, nil)
	mined := m.ExtractPatternsFromEvents(alternating(), 2)

	temporal := byType(mined, model.PatternTemporalSequence)
	require.Len(t, temporal, 3)

	first := temporal[0]
	assert.Equal(t, []model.EventType{model.EventInvestment, model.EventBusinessCooperation}, first.EventSequence)
	assert.Equal(t, 2, first.Frequency)
	assert.InDelta(t, 0.4, first.Support, 1e-9)
	assert.InDelta(t, 0.4, first.Confidence, 1e-9)
	assert.Equal(t, []string{"a", "b"}, first.Instances)
	assert.Equal(t, "business", first.Domain)
	assert.True(t, strings.HasPrefix(first.ID, "temporal_sequence_"))

	assert.Len(t, temporal[2].EventSequence, 3)
}

func TestExtractPatterns_Causal(t *testing.T) {
	m := newTestManager(t, nil)
	causal := byType(m.ExtractPatternsFromEvents(alternating(), 2), model.PatternCausalRelationship)
	require.Len(t, causal, 1)
	assert.Equal(t, []model.EventType{model.EventInvestment, model.EventBusinessCooperation}, causal[0].EventSequence)
	assert.Equal(t, 3, causal[0].Frequency)
	assert.InDelta(t, 0.6, causal[0].Support, 1e-9)
	assert.Equal(t, []model.RelationType{model.RelationCausal}, causal[0].RelationTypes)
}

func TestExtractPatterns_Cooccurrence(t *testing.T) {
	m := newTestManager(t, nil)
	co := byType(m.ExtractPatternsFromEvents(alternating(), 2), model.PatternCooccurrence)
	require.Len(t, co, 1)
	assert.Equal(t, []model.EventType{model.EventBusinessCooperation, model.EventInvestment}, co[0].EventSequence)
	assert.Equal(t, 2, co[0].Frequency, "a combination occurs as often as its rarest member")

	none := byType(m.ExtractPatternsFromEvents(alternating(), 3), model.PatternCooccurrence)
	assert.Empty(t, none)
}

func TestExtractPatterns_DeterministicIDs(t *testing.T) {
	m := newTestManager(t, nil)
	a := m.ExtractPatternsFromEvents(alternating(), 2)
	b := m.ExtractPatternsFromEvents(alternating(), 2)
	require.Equal(t, len(a), len(b))
	seen := make(map[string]bool)
	for i := range a {
		assert.Equal(t, a[i].ID, b[i].ID)
		assert.False(t, seen[a[i].ID], "signatures are unique")
		seen[a[i].ID] = true
	}
}

func TestExtractPatterns_RespectsConfig(t *testing.T) {
	cfg := testConfig()
	cfg.EnableTemporalPatterns = false
	cfg.EnableCooccurrence = false
	m := NewManager(nil, cfg, nil)

	mined := m.ExtractPatternsFromEvents(alternating(), 0)
	require.Len(t, mined, 1)
	assert.Equal(t, model.PatternCausalRelationship, mined[0].Type)
}

func TestExtractPatterns_UntimedEventsOnlyCooccur(t *testing.T) {
	m := newTestManager(t, nil)
	evts := []model.Event{
		{ID: "a", Type: model.EventProductLaunch, Text: "a"},
		{ID: "b", Type: model.EventMarketExpansion, Text: "b"},
		{ID: "c", Type: model.EventProductLaunch, Text: "c"},
		{ID: "d", Type: model.EventMarketExpansion, Text: "d"},
	}
	mined := m.ExtractPatternsFromEvents(evts, 2)
	require.Len(t, mined, 1)
	assert.Equal(t, model.PatternCooccurrence, mined[0].Type)
	assert.Equal(t, "technology", mined[0].Domain)
}

func TestInferDomain(t *testing.T) {
	evts := []model.Event{
		{Properties: map[string]any{"domain": "finance"}},
		{Properties: map[string]any{"domain": "finance"}},
		{},
	}
	assert.Equal(t, "finance", inferDomain(evts))
	assert.Equal(t, "general", inferDomain(nil))
	assert.Equal(t, "general", domainFromTypes([]model.EventType{model.EventRegulatoryChange}))
}

func TestCombinations(t *testing.T) {
	items := []model.EventType{1, 2, 3, 4}
	var got [][]model.EventType
	combinations(items, 2, func(c []model.EventType) {
		got = append(got, append([]model.EventType(nil), c...))
	})
	assert.Len(t, got, 6)
	assert.Equal(t, []model.EventType{1, 2}, got[0])
	assert.Equal(t, []model.EventType{3, 4}, got[5])
}
