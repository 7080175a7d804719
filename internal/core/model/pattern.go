package model

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"time"
)

// EventPattern is an abstract, recurring structure over event types.
type EventPattern struct {
	ID            string         `json:"id"`
	Name          string         `json:"pattern_name"`
	Description   string         `json:"description"`
	Type          PatternType    `json:"pattern_type"`
	Domain        string         `json:"domain"`
	EventSequence []EventType    `json:"event_sequence"`
	RelationTypes []RelationType `json:"relation_types,omitempty"`
	Conditions    map[string]any `json:"conditions,omitempty"`
	Frequency     int            `json:"frequency"`
	Support       float64        `json:"support"`
	Confidence    float64        `json:"confidence"`
	Instances     []string       `json:"instances,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Complexity is the sequence length plus the number of conditions.
func (p *EventPattern) Complexity() int {
	return len(p.EventSequence) + len(p.Conditions)
}

// Contains reports whether t appears in the event sequence.
func (p *EventPattern) Contains(t EventType) bool {
	for _, s := range p.EventSequence {
		if s == t {
			return true
		}
	}
	return false
}

// Signature identifies a pattern by type, sequence and domain. Mined patterns
// with equal signatures are duplicates.
func (p *EventPattern) Signature() string {
	return fmt.Sprintf("%s|%s|%s", p.Type, JoinTypes(p.EventSequence, ","), p.Domain)
}

// CanonicalText renders the pattern as the pipe-delimited document used for
// embedding.
func (p *EventPattern) CanonicalText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "pattern: %s | type: %s | domain: %s | sequence: %s",
		p.Name, p.Type, p.Domain, JoinTypes(p.EventSequence, " -> "))
	if len(p.Conditions) > 0 {
		keys := make([]string, 0, len(p.Conditions))
		for k := range p.Conditions {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, p.Conditions[k]))
		}
		fmt.Fprintf(&b, " | conditions: %s", strings.Join(parts, ", "))
	}
	if p.Description != "" {
		fmt.Fprintf(&b, " | description: %s", p.Description)
	}
	return b.String()
}

// JoinTypes joins the canonical names of ts with sep.
func JoinTypes(ts []EventType, sep string) string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = t.String()
	}
	return strings.Join(names, sep)
}

// PatternMatch pairs a pattern with the score it obtained for an event.
type PatternMatch struct {
	Pattern EventPattern `json:"pattern"`
	Score   float64      `json:"score"`
}

// EventPatternMapping links one event to one pattern. The (EventID, PatternID)
// pair is unique.
type EventPatternMapping struct {
	EventID    string         `json:"event_id"`
	PatternID  string         `json:"pattern_id"`
	Score      float64        `json:"mapping_score"`
	Type       MappingType    `json:"mapping_type"`
	Confidence float64        `json:"confidence"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Key returns the storage key of the mapping.
func (m *EventPatternMapping) Key() string {
	return MappingKey(m.EventID, m.PatternID)
}

func MappingKey(eventID, patternID string) string {
	return eventID + "_" + patternID
}

// ClonePattern returns a copy of p that shares no maps or slices with it.
func ClonePattern(p EventPattern) EventPattern {
	p.EventSequence = slices.Clone(p.EventSequence)
	p.RelationTypes = slices.Clone(p.RelationTypes)
	p.Conditions = maps.Clone(p.Conditions)
	p.Instances = slices.Clone(p.Instances)
	return p
}
