package graph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/eventgraph/internal/core/model"
	"github.com/agenthands/eventgraph/internal/errs"
)

func TestAnalyzeTemporalPatterns(t *testing.T) {
	f := newFixture(t, base.AddDate(0, 0, 5))
	f.addEvents(t,
		event("a", model.EventInvestment, at(0)),
		event("b", model.EventPartnership, at(1)),
		event("c", model.EventInvestment, at(2)),
		event("old", model.EventInvestment, at(-60)),
		event("untimed", model.EventInvestment, nil),
	)

	report, err := f.proc.AnalyzeTemporalPatterns(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, 3, report.EventCount)
	assert.Equal(t, map[string]int{"investment": 2, "partnership": 1}, report.EventFrequency)
	assert.Equal(t, []int{9}, report.PeakHours)

	assert.True(t, report.Periodic.Daily.Detected)
	assert.Equal(t, 9, report.Periodic.Daily.Peak)
	assert.InDelta(t, 1.0, report.Periodic.Daily.Concentration, 1e-9)
	assert.False(t, report.Periodic.Weekly.Detected)

	assert.Equal(t, [][]string{
		{"investment", "partnership"},
		{"partnership", "investment"},
		{"investment", "partnership", "investment"},
	}, report.Sequences)
	assert.Zero(t, report.Correlations["autocorrelation"])
}

func TestAnalyzeTemporalPatterns_DefaultWindow(t *testing.T) {
	f := newFixture(t, base)
	report, err := f.proc.AnalyzeTemporalPatterns(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 30, report.WindowDays)
	assert.Zero(t, report.EventCount)
	assert.Empty(t, report.PeakHours)
	assert.False(t, report.Periodic.Daily.Detected)
}

func TestLagOneAutocorrelation_Alternating(t *testing.T) {
	var evts []model.Event
	for _, d := range []int{0, 0, 2, 2, 4, 4} {
		evts = append(evts, event("e", model.EventInvestment, at(d)))
	}
	assert.InDelta(t, -1.0, lagOneAutocorrelation(evts), 1e-9)
}

func TestSubsequences_CapsAtTen(t *testing.T) {
	var evts []model.Event
	for i := 0; i < 8; i++ {
		evts = append(evts, event("e", model.EventType(i+1), at(i)))
	}
	seqs := subsequences(evts)
	require.Len(t, seqs, maxSubsequences)
	for _, s := range seqs[:7] {
		assert.Len(t, s, 2)
	}
	assert.Len(t, seqs[7], 3)
}

func TestAnalyzeEventChain(t *testing.T) {
	f := newFixture(t, base)
	chain := []model.Event{
		event("e1", model.EventInvestment, at(0)),
		event("e2", model.EventPartnership, at(1)),
		event("e3", model.EventInvestment, at(2)),
		event("e4", model.EventPartnership, at(12)),
	}
	f.addEvents(t, chain...)
	f.relate(t, "e1", "e2", model.RelationCausal, 0.9)

	report, err := f.proc.AnalyzeEventChain(context.Background(), chain)
	require.NoError(t, err)
	assert.Equal(t, 4, report.ChainLength)
	assert.Equal(t, []string{"investment", "partnership", "investment", "partnership"}, report.EventTypes)

	assert.Equal(t, 12, report.TemporalSpan.SpanDays)
	require.NotNil(t, report.TemporalSpan.Start)
	assert.True(t, report.TemporalSpan.Start.Equal(base))

	require.Len(t, report.Relationships, 3)
	assert.Equal(t, "causal", report.Relationships[0].Relation)
	assert.Equal(t, 0.9, report.Relationships[0].Confidence)
	assert.Equal(t, "unknown", report.Relationships[1].Relation)
	assert.Equal(t, 0.7, report.Relationships[1].Confidence)

	require.Len(t, report.Patterns, 2)
	assert.Equal(t, []string{"investment", "partnership"}, report.Patterns[0].Pattern)
	assert.Equal(t, 2, report.Patterns[0].Frequency)
	assert.Equal(t, []int{0, 2}, report.Patterns[0].Positions)

	require.Len(t, report.Anomalies, 1)
	assert.Equal(t, 2, report.Anomalies[0].Position)
	assert.InDelta(t, (10 * 24 * time.Hour).Seconds(), report.Anomalies[0].IntervalSeconds, 1e-6)
	assert.InDelta(t, (4 * 24 * time.Hour).Seconds(), report.Anomalies[0].ExpectedSeconds, 1e-6)

	assert.Equal(t, 4, report.Graph.Nodes)
	assert.Equal(t, 1, report.Graph.Edges)
	assert.InDelta(t, 1.0/12.0, report.Graph.Density, 1e-9)
	assert.Nil(t, f.proc.Graph(EventGraph), "chain analysis does not replace the event graph")
}

func TestAnalyzeEventChain_Empty(t *testing.T) {
	f := newFixture(t, base)
	_, err := f.proc.AnalyzeEventChain(context.Background(), nil)
	assert.True(t, errs.Is(err, errs.KindInvalidArgument))
}

func TestGapAnomalies_NeedThreeTimestamps(t *testing.T) {
	evts := []model.Event{
		event("a", model.EventInvestment, at(0)),
		event("b", model.EventInvestment, at(30)),
	}
	assert.Empty(t, gapAnomalies(evts))
	assert.Equal(t, TemporalSpan{}, temporalSpan(evts[:1]))
}
