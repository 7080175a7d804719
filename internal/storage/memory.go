package storage

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/agenthands/eventgraph/internal/core/model"
	"github.com/agenthands/eventgraph/internal/errs"
)

// MemoryStore is a process-local Store. It backs the "memory" storage
// backend and the manager tests. Values are copied in and out so callers
// never share state with the store.
type MemoryStore struct {
	mu        sync.RWMutex
	events    map[string]model.Event
	relations []model.EventRelation
	patterns  map[string]model.EventPattern
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:   make(map[string]model.Event),
		patterns: make(map[string]model.EventPattern),
	}
}

func (s *MemoryStore) StoreEvent(_ context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.ID] = model.CloneEvent(*e)
	return nil
}

func (s *MemoryStore) GetEvent(_ context.Context, id string) (*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return nil, nil
	}
	out := model.CloneEvent(e)
	return &out, nil
}

func (s *MemoryStore) QueryEvents(_ context.Context, q model.EventQuery) ([]model.Event, error) {
	s.mu.RLock()
	var out []model.Event
	for _, e := range s.events {
		if q.Matches(&e) {
			out = append(out, model.CloneEvent(e))
		}
	}
	s.mu.RUnlock()

	model.SortChronologically(out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryStore) UpdateEvent(_ context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[e.ID]; !ok {
		return errs.NotFound("storage.update_event", "event", e.ID)
	}
	s.events[e.ID] = model.CloneEvent(*e)
	return nil
}

func (s *MemoryStore) DeleteEvent(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return false, nil
	}
	delete(s.events, id)
	s.relations = slices.DeleteFunc(s.relations, func(r model.EventRelation) bool {
		return r.SourceEventID == id || r.TargetEventID == id
	})
	return true, nil
}

func (s *MemoryStore) QueryEventRelations(_ context.Context, eventIDs []string, limit int) ([]model.EventRelation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[string]struct{}, len(eventIDs))
	for _, id := range eventIDs {
		want[id] = struct{}{}
	}
	var out []model.EventRelation
	for _, r := range s.relations {
		if len(want) > 0 {
			_, src := want[r.SourceEventID]
			_, dst := want[r.TargetEventID]
			if !src && !dst {
				continue
			}
		}
		r.Properties = maps.Clone(r.Properties)
		out = append(out, r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateEventRelation(_ context.Context, r *model.EventRelation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range []string{r.SourceEventID, r.TargetEventID} {
		if _, ok := s.events[id]; !ok {
			return errs.NotFound("storage.create_event_relation", "event", id)
		}
	}
	rel := *r
	rel.Properties = maps.Clone(r.Properties)
	for i := range s.relations {
		if s.relations[i].ID == rel.ID {
			s.relations[i] = rel
			return nil
		}
	}
	s.relations = append(s.relations, rel)
	return nil
}

func (s *MemoryStore) StoreEventPattern(_ context.Context, p *model.EventPattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns[p.ID] = model.ClonePattern(*p)
	return nil
}

func (s *MemoryStore) GetEventPattern(_ context.Context, id string) (*model.EventPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patterns[id]
	if !ok {
		return nil, nil
	}
	out := model.ClonePattern(p)
	return &out, nil
}

func (s *MemoryStore) QueryEventPatterns(_ context.Context, q model.PatternQuery) ([]model.EventPattern, error) {
	s.mu.RLock()
	var out []model.EventPattern
	for _, p := range s.patterns {
		if q.Matches(&p) {
			out = append(out, model.ClonePattern(p))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Support != out[j].Support {
			return out[i].Support > out[j].Support
		}
		return out[i].ID < out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryStore) DeletePattern(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patterns[id]; !ok {
		return false, nil
	}
	delete(s.patterns, id)
	return true, nil
}

func (s *MemoryStore) UpdatePattern(_ context.Context, p *model.EventPattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patterns[p.ID]; !ok {
		return errs.NotFound("storage.update_pattern", "pattern", p.ID)
	}
	s.patterns[p.ID] = model.ClonePattern(*p)
	return nil
}

func (s *MemoryStore) GetDatabaseStatistics(_ context.Context) (*DatabaseStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &DatabaseStatistics{
		TotalEvents:    len(s.events),
		TotalRelations: len(s.relations),
		TotalPatterns:  len(s.patterns),
		EventTypes:     map[string]int{},
	}
	entities := map[string]struct{}{}
	for _, e := range s.events {
		stats.EventTypes[e.Type.String()]++
		for i := range e.Participants {
			entities[EntityID(&e.Participants[i])] = struct{}{}
		}
		for _, ent := range []*model.Entity{e.Subject, e.Object} {
			if ent != nil {
				entities[EntityID(ent)] = struct{}{}
			}
		}
	}
	stats.TotalEntities = len(entities)
	return stats, nil
}

func (s *MemoryStore) Close(context.Context) error { return nil }
