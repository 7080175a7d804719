package model

import "time"

// EventQuery filters events. Zero values mean "no filter".
type EventQuery struct {
	Type         *EventType     `json:"event_type,omitempty"`
	Start        *time.Time     `json:"start,omitempty"`
	End          *time.Time     `json:"end,omitempty"`
	Participants []string       `json:"participants,omitempty"`
	Location     string         `json:"location,omitempty"`
	Properties   map[string]any `json:"properties,omitempty"`
	Limit        int            `json:"limit,omitempty"`
	// NoCache bypasses the query-result cache.
	NoCache bool `json:"no_cache,omitempty"`
}

// Matches applies the filter to a single event in memory.
func (q EventQuery) Matches(e *Event) bool {
	if q.Type != nil && e.Type != *q.Type {
		return false
	}
	if q.Start != nil || q.End != nil {
		if e.Timestamp == nil {
			return false
		}
		if q.Start != nil && e.Timestamp.Before(*q.Start) {
			return false
		}
		if q.End != nil && e.Timestamp.After(*q.End) {
			return false
		}
	}
	if q.Location != "" && e.Location != q.Location {
		return false
	}
	if len(q.Participants) > 0 {
		names := make(map[string]struct{}, len(e.Participants))
		for _, p := range e.Participants {
			names[p.Name] = struct{}{}
		}
		for _, want := range q.Participants {
			if _, ok := names[want]; !ok {
				return false
			}
		}
	}
	for k, v := range q.Properties {
		if got, ok := e.Properties[k]; !ok || !ValuesEqual(got, v) {
			return false
		}
	}
	return true
}

// PatternQuery filters patterns. Zero values mean "no filter".
type PatternQuery struct {
	Type          *PatternType `json:"pattern_type,omitempty"`
	Complexity    *int         `json:"complexity,omitempty"`
	Domain        string       `json:"domain,omitempty"`
	MinSupport    float64      `json:"min_support,omitempty"`
	MinConfidence float64      `json:"min_confidence,omitempty"`
	EventTypes    []EventType  `json:"event_types,omitempty"`
	Limit         int          `json:"limit,omitempty"`
	NoCache       bool         `json:"no_cache,omitempty"`
}

func (q PatternQuery) Matches(p *EventPattern) bool {
	if q.Type != nil && p.Type != *q.Type {
		return false
	}
	if q.Complexity != nil && p.Complexity() != *q.Complexity {
		return false
	}
	if q.Domain != "" && p.Domain != q.Domain {
		return false
	}
	if p.Support < q.MinSupport || p.Confidence < q.MinConfidence {
		return false
	}
	for _, t := range q.EventTypes {
		if !p.Contains(t) {
			return false
		}
	}
	return true
}

// ValuesEqual compares two property values, treating all numeric kinds as
// float64 so values read back from a store compare equal to the originals.
func ValuesEqual(a, b any) bool {
	fa, aok := toFloat(a)
	fb, bok := toFloat(b)
	if aok && bok {
		return fa == fb
	}
	switch av := a.(type) {
	case string, bool:
		return a == b
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !ValuesEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
