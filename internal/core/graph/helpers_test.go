package graph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agenthands/eventgraph/internal/config"
	"github.com/agenthands/eventgraph/internal/core/events"
	"github.com/agenthands/eventgraph/internal/core/mapper"
	"github.com/agenthands/eventgraph/internal/core/model"
	"github.com/agenthands/eventgraph/internal/core/patterns"
	"github.com/agenthands/eventgraph/internal/storage"
)

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	events   *events.Manager
	patterns *patterns.Manager
	mapper   *mapper.Mapper
	proc     *Processor
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	cfg := config.Default()
	clock := func() time.Time { return now }
	store := storage.NewMemoryStore()
	f := &fixture{
		events:   events.NewManager(store, cfg.Events, nil, events.WithClock(clock)),
		patterns: patterns.NewManager(store, cfg.Patterns, nil, patterns.WithClock(clock)),
		mapper:   mapper.New(cfg.Mapping, nil, mapper.WithClock(clock)),
	}
	f.proc = NewProcessor(f.events, f.patterns, f.mapper, cfg.Graph, nil, WithClock(clock))
	return f
}

func at(days int) *time.Time {
	ts := base.AddDate(0, 0, days)
	return &ts
}

func event(id string, t model.EventType, ts *time.Time) model.Event {
	return model.Event{
		ID:           id,
		Type:         t,
		Text:         "Fund invests in Acme",
		Timestamp:    ts,
		Participants: []model.Entity{{Name: "Fund", EntityType: "organization"}},
		Properties:   map[string]any{"domain": "business"},
		Confidence:   0.9,
	}
}

func (f *fixture) addEvents(t *testing.T, evts ...model.Event) {
	t.Helper()
	for i := range evts {
		require.NoError(t, f.events.AddEvent(context.Background(), &evts[i]))
	}
}

func (f *fixture) relate(t *testing.T, src, dst string, rt model.RelationType, conf float64) {
	t.Helper()
	require.NoError(t, f.events.CreateEventRelation(context.Background(), &model.EventRelation{
		Type:          rt,
		SourceEventID: src,
		TargetEventID: dst,
		Confidence:    conf,
		Strength:      conf,
	}))
}

func pattern(id string, seq ...model.EventType) model.EventPattern {
	return model.EventPattern{
		ID:            id,
		Name:          id,
		Type:          model.PatternTemporalSequence,
		Domain:        "business",
		EventSequence: seq,
		Frequency:     3,
		Support:       0.5,
		Confidence:    0.5,
	}
}

func (f *fixture) addPatterns(t *testing.T, pts ...model.EventPattern) {
	t.Helper()
	for i := range pts {
		require.NoError(t, f.patterns.AddPattern(context.Background(), &pts[i]))
	}
}
