package model

import (
	"maps"
	"slices"
	"sort"
	"time"
)

// Entity is a participant of an event. Entities embedded in an Event are
// treated as values: changing one means creating a new Entity.
type Entity struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	EntityType string         `json:"entity_type"`
	Properties map[string]any `json:"properties,omitempty"`
	Aliases    []string       `json:"aliases,omitempty"`
	Confidence float64        `json:"confidence"`
}

// Event is a concrete, optionally timestamped occurrence.
type Event struct {
	ID           string         `json:"id"`
	Type         EventType      `json:"event_type"`
	Text         string         `json:"text"`
	Summary      string         `json:"summary,omitempty"`
	Timestamp    *time.Time     `json:"timestamp,omitempty"`
	Location     string         `json:"location,omitempty"`
	Subject      *Entity        `json:"subject,omitempty"`
	Object       *Entity        `json:"object,omitempty"`
	Participants []Entity       `json:"participants,omitempty"`
	Properties   map[string]any `json:"properties,omitempty"`
	Confidence   float64        `json:"confidence"`
	Source       string         `json:"source,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// ParticipantNames returns the names of all participants in order.
func (e *Event) ParticipantNames() []string {
	names := make([]string, 0, len(e.Participants))
	for _, p := range e.Participants {
		names = append(names, p.Name)
	}
	return names
}

// Domain returns properties["domain"] or "general".
func (e *Event) Domain() string {
	if d, ok := e.Properties["domain"].(string); ok && d != "" {
		return d
	}
	return "general"
}

// EventRelation links two distinct events.
type EventRelation struct {
	ID            string         `json:"id"`
	Type          RelationType   `json:"relation_type"`
	SourceEventID string         `json:"source_event_id"`
	TargetEventID string         `json:"target_event_id"`
	Confidence    float64        `json:"confidence"`
	Strength      float64        `json:"strength"`
	Properties    map[string]any `json:"properties,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	Source        string         `json:"source,omitempty"`
}

// ScoredEvent pairs an event with a similarity score.
type ScoredEvent struct {
	Event Event   `json:"event"`
	Score float64 `json:"score"`
}

func cloneEntity(ent Entity) Entity {
	ent.Properties = maps.Clone(ent.Properties)
	ent.Aliases = slices.Clone(ent.Aliases)
	return ent
}

// CloneEvent returns a copy of e that shares no maps, slices or pointers
// with it.
func CloneEvent(e Event) Event {
	if e.Timestamp != nil {
		ts := *e.Timestamp
		e.Timestamp = &ts
	}
	if e.Subject != nil {
		sub := cloneEntity(*e.Subject)
		e.Subject = &sub
	}
	if e.Object != nil {
		obj := cloneEntity(*e.Object)
		e.Object = &obj
	}
	if e.Participants != nil {
		ps := make([]Entity, len(e.Participants))
		for i, p := range e.Participants {
			ps[i] = cloneEntity(p)
		}
		e.Participants = ps
	}
	e.Properties = maps.Clone(e.Properties)
	return e
}

// SortChronologically orders events by timestamp, untimed last, ties by id.
func SortChronologically(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i].Timestamp, events[j].Timestamp
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return events[i].ID < events[j].ID
	})
}
