package mapper

import (
	"sort"
	"time"

	"github.com/agenthands/eventgraph/internal/core/common"
	"github.com/agenthands/eventgraph/internal/errs"
)

// CrossLayerKind selects the direction of a cross-layer lookup.
type CrossLayerKind string

const (
	EventToPattern CrossLayerKind = "event_to_pattern"
	PatternToEvent CrossLayerKind = "pattern_to_event"
	// SimilarEvents finds events that share patterns with an event.
	SimilarEvents CrossLayerKind = "similarity"
)

type CrossLayerQuery struct {
	Kind      CrossLayerKind `json:"kind"`
	EventID   string         `json:"event_id,omitempty"`
	PatternID string         `json:"pattern_id,omitempty"`
	MinScore  float64        `json:"min_score,omitempty"`
	Limit     int            `json:"limit,omitempty"`
}

// CrossLayerHit is one result of FindCrossLayerPatterns. Shared lists the
// pattern ids two events have in common for SimilarEvents lookups.
type CrossLayerHit struct {
	ID     string   `json:"id"`
	Score  float64  `json:"score"`
	Shared []string `json:"shared,omitempty"`
}

// FindCrossLayerPatterns walks the mapping indices from one layer to the
// other. SimilarEvents scores another event by the summed minimum score of
// each shared pattern over the number of patterns mapped to the query event.
func (m *Mapper) FindCrossLayerPatterns(q CrossLayerQuery) ([]CrossLayerHit, error) {
	switch q.Kind {
	case EventToPattern:
		if q.EventID == "" {
			return nil, errs.InvalidArgument("mapper.cross_layer", "event_id is required")
		}
		return hits(m.GetPatternsForEvent(q.EventID, q.MinScore, q.Limit)), nil
	case PatternToEvent:
		if q.PatternID == "" {
			return nil, errs.InvalidArgument("mapper.cross_layer", "pattern_id is required")
		}
		return hits(m.GetEventsForPattern(q.PatternID, q.MinScore, q.Limit)), nil
	case SimilarEvents:
		if q.EventID == "" {
			return nil, errs.InvalidArgument("mapper.cross_layer", "event_id is required")
		}
		return m.similarEvents(q), nil
	}
	return nil, errs.InvalidArgument("mapper.cross_layer", "unknown query kind %q", q.Kind)
}

func hits(s []ScoredID) []CrossLayerHit {
	out := make([]CrossLayerHit, len(s))
	for i, x := range s {
		out[i] = CrossLayerHit{ID: x.ID, Score: x.Score}
	}
	return out
}

func (m *Mapper) similarEvents(q CrossLayerQuery) []CrossLayerHit {
	m.mu.RLock()
	defer m.mu.RUnlock()

	own := m.byEvent[q.EventID]
	if len(own) == 0 {
		return nil
	}
	byEvent := make(map[string]*CrossLayerHit)
	for key := range own {
		mine := m.mappings[key]
		for otherKey := range m.byPattern[mine.PatternID] {
			other := m.mappings[otherKey]
			if other.EventID == q.EventID {
				continue
			}
			h, ok := byEvent[other.EventID]
			if !ok {
				h = &CrossLayerHit{ID: other.EventID}
				byEvent[other.EventID] = h
			}
			h.Score += min(mine.Score, other.Score)
			h.Shared = append(h.Shared, mine.PatternID)
		}
	}

	out := make([]CrossLayerHit, 0, len(byEvent))
	for _, h := range byEvent {
		h.Score /= float64(len(own))
		if h.Score < q.MinScore {
			continue
		}
		sort.Strings(h.Shared)
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

type Statistics struct {
	TotalMappings        int              `json:"total_mappings"`
	TypeDistribution     map[string]int   `json:"mapping_type_distribution"`
	Scores               common.Summary   `json:"score_distribution"`
	Confidence           common.Summary   `json:"confidence_statistics"`
	Updates              UpdateStatistics `json:"update_statistics"`
	EventsWithMappings   int              `json:"events_with_mappings"`
	PatternsWithMappings int              `json:"patterns_with_mappings"`
	Config               map[string]any   `json:"config"`
}

type UpdateStatistics struct {
	Created         int        `json:"created"`
	Auto            int        `json:"auto"`
	Manual          int        `json:"manual"`
	Decayed         int        `json:"decayed"`
	LastUpdate      *time.Time `json:"last_update,omitempty"`
	UpdateFrequency int        `json:"update_frequency"`
}

func (m *Mapper) GetMappingStatistics() Statistics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	types := make(map[string]int)
	scores := make([]float64, 0, len(m.mappings))
	confidences := make([]float64, 0, len(m.mappings))
	for _, mp := range m.mappings {
		types[mp.Type.String()]++
		scores = append(scores, mp.Score)
		confidences = append(confidences, mp.Confidence)
	}

	st := Statistics{
		TotalMappings:    len(m.mappings),
		TypeDistribution: types,
		Scores:           common.Summarize(scores),
		Confidence:       common.Summarize(confidences),
		Updates: UpdateStatistics{
			Created:         m.created,
			Auto:            m.auto,
			Manual:          m.manual,
			Decayed:         m.decayed,
			UpdateFrequency: m.cfg.UpdateFrequency,
		},
		EventsWithMappings:   len(m.byEvent),
		PatternsWithMappings: len(m.byPattern),
		Config: map[string]any{
			"auto_mapping_threshold": m.cfg.AutoMappingThreshold,
			"max_mappings_per_event": m.cfg.MaxMappingsPerEvent,
			"mapping_decay_factor":   m.cfg.DecayFactor,
		},
	}
	if !m.lastUpdate.IsZero() {
		t := m.lastUpdate
		st.Updates.LastUpdate = &t
	}
	return st
}
