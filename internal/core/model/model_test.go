package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventType_Aliases(t *testing.T) {
	got, err := ParseEventType("business.acquisition")
	require.NoError(t, err)
	assert.Equal(t, EventBusinessAcquisition, got)

	got, err = ParseEventType(" Investment ")
	require.NoError(t, err)
	assert.Equal(t, EventInvestment, got)

	_, err = ParseEventType("alien_landing")
	assert.Error(t, err)
}

func TestEventJSON_UsesCanonicalNames(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	e := Event{ID: "e1", Type: EventProductLaunch, Text: "launch", Timestamp: &ts}

	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"event_type":"product_launch"`)

	var back Event
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, EventProductLaunch, back.Type)
	assert.True(t, ts.Equal(*back.Timestamp))
}

func TestValidateRelation(t *testing.T) {
	problems := ValidateRelation(&EventRelation{SourceEventID: "a", TargetEventID: "a", Confidence: 1.5, Strength: -0.1})
	assert.Len(t, problems, 3)

	assert.Empty(t, ValidateRelation(&EventRelation{SourceEventID: "a", TargetEventID: "b", Confidence: 0.5, Strength: 0.5}))

	problems = ValidateRelation(&EventRelation{Confidence: 0.5, Strength: 0.5})
	assert.Contains(t, problems, "source event id is empty")
	assert.Contains(t, problems, "target event id is empty")
}

func TestValidateEvent(t *testing.T) {
	e := &Event{ID: "e1", Text: "  ", Confidence: 2, Subject: &Entity{Name: ""}}
	problems := ValidateEvent(e)
	assert.Len(t, problems, 3)
}

func TestValidatePattern_SequenceLength(t *testing.T) {
	p := &EventPattern{ID: "p", Type: PatternTemporalSequence, EventSequence: []EventType{EventInvestment}, Confidence: 0.5}
	assert.Len(t, ValidatePattern(p), 1)

	p.Type = PatternCooccurrence
	assert.Empty(t, ValidatePattern(p))
}

func TestEventQuery_Matches(t *testing.T) {
	ts := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	e := &Event{
		ID:           "e1",
		Type:         EventInvestment,
		Timestamp:    &ts,
		Location:     "Berlin",
		Participants: []Entity{{Name: "Acme"}, {Name: "Globex"}},
		Properties:   map[string]any{"amount": 10},
	}
	typ := EventInvestment
	start := ts.Add(-time.Hour)
	end := ts.Add(time.Hour)

	assert.True(t, EventQuery{Type: &typ, Start: &start, End: &end, Participants: []string{"Acme"}, Properties: map[string]any{"amount": 10.0}}.Matches(e))
	assert.False(t, EventQuery{Participants: []string{"Initech"}}.Matches(e))
	assert.False(t, EventQuery{Location: "Paris"}.Matches(e))

	e.Timestamp = nil
	assert.False(t, EventQuery{Start: &start}.Matches(e))
}

func TestPattern_SignatureAndCanonicalText(t *testing.T) {
	p := EventPattern{
		Name:          "funding",
		Type:          PatternCausalRelationship,
		Domain:        "business",
		EventSequence: []EventType{EventInvestment, EventBusinessMerger},
		Conditions:    map[string]any{"region": "eu", "amount": 5},
	}
	assert.Equal(t, "causal_relationship|investment,business_merger|business", p.Signature())
	assert.Equal(t,
		"pattern: funding | type: causal_relationship | domain: business | sequence: investment -> business_merger | conditions: amount=5, region=eu",
		p.CanonicalText())
	assert.Equal(t, 4, p.Complexity())
}
