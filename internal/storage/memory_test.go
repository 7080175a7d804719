package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/eventgraph/internal/core/model"
	"github.com/agenthands/eventgraph/internal/errs"
)

func TestMemoryStore_EventsAreCopied(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	e := sampleEvent()
	require.NoError(t, s.StoreEvent(ctx, e))

	e.Properties["domain"] = "mutated"
	e.Participants[0].Name = "mutated"

	got, err := s.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "business", got.Properties["domain"])
	assert.Equal(t, "Acme", got.Participants[0].Name)

	got.Summary = "changed"
	again, _ := s.GetEvent(ctx, e.ID)
	assert.Equal(t, "Acme buys Beta", again.Summary)
}

func TestMemoryStore_QueryEventsOrderAndFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(4-i) * time.Hour)
		et := model.EventInvestment
		if i%2 == 1 {
			et = model.EventPartnership
		}
		require.NoError(t, s.StoreEvent(ctx, &model.Event{
			ID: fmt.Sprintf("e%d", i), Type: et, Text: "x", Timestamp: &ts,
			Participants: []model.Entity{{Name: "Acme"}},
		}))
	}
	require.NoError(t, s.StoreEvent(ctx, &model.Event{ID: "untimed", Type: model.EventInvestment, Text: "x"}))

	all, err := s.QueryEvents(ctx, model.EventQuery{})
	require.NoError(t, err)
	ids := make([]string, len(all))
	for i, e := range all {
		ids[i] = e.ID
	}
	assert.Equal(t, []string{"e4", "e3", "e2", "e1", "e0", "untimed"}, ids)

	inv := model.EventInvestment
	got, err := s.QueryEvents(ctx, model.EventQuery{Type: &inv, Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "e4", got[0].ID)
	assert.Equal(t, "e2", got[1].ID)

	got, err = s.QueryEvents(ctx, model.EventQuery{Participants: []string{"Acme", "Other"}})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStore_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	err := s.UpdateEvent(ctx, sampleEvent())
	assert.True(t, errs.IsNotFound(err))

	a := &model.Event{ID: "a", Text: "a"}
	b := &model.Event{ID: "b", Text: "b"}
	require.NoError(t, s.StoreEvent(ctx, a))
	require.NoError(t, s.StoreEvent(ctx, b))
	require.NoError(t, s.CreateEventRelation(ctx, &model.EventRelation{ID: "r", SourceEventID: "a", TargetEventID: "b"}))

	ok, err := s.DeleteEvent(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	rels, _ := s.QueryEventRelations(ctx, nil, 0)
	assert.Empty(t, rels, "relations of a deleted event are removed")

	ok, err = s.DeleteEvent(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_RelationsRequireEndpoints(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.StoreEvent(ctx, &model.Event{ID: "a", Text: "a"}))

	err := s.CreateEventRelation(ctx, &model.EventRelation{ID: "r", SourceEventID: "a", TargetEventID: "zz"})
	assert.True(t, errs.IsNotFound(err))
}

func TestMemoryStore_PatternsQueryOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for i, sup := range []float64{0.2, 0.9, 0.5} {
		require.NoError(t, s.StoreEventPattern(ctx, &model.EventPattern{
			ID: fmt.Sprintf("p%d", i), Type: model.PatternCooccurrence, Support: sup,
			EventSequence: []model.EventType{model.EventInvestment, model.EventPartnership},
		}))
	}

	got, err := s.QueryEventPatterns(ctx, model.PatternQuery{MinSupport: 0.3})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "p1", got[0].ID)
	assert.Equal(t, "p2", got[1].ID)

	err = s.UpdatePattern(ctx, &model.EventPattern{ID: "missing"})
	assert.True(t, errs.IsNotFound(err))

	ok, err := s.DeletePattern(ctx, "p0")
	require.NoError(t, err)
	assert.True(t, ok)
	p, err := s.GetEventPattern(ctx, "p0")
	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestMemoryStore_Statistics(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.StoreEvent(ctx, sampleEvent()))
	require.NoError(t, s.StoreEvent(ctx, &model.Event{ID: "e2", Type: model.EventInvestment, Text: "x",
		Participants: []model.Entity{{ID: "ent-acme", Name: "Acme"}}}))

	stats, err := s.GetDatabaseStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalEvents)
	assert.Equal(t, 2, stats.TotalEntities, "Acme is counted once")
	assert.Equal(t, map[string]int{"business_acquisition": 1, "investment": 1}, stats.EventTypes)
}
