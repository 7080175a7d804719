package patterns

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/eventgraph/internal/core/model"
	"github.com/agenthands/eventgraph/internal/logging"
)

const (
	matchWeightType        = 0.4
	matchWeightParticipant = 0.3
	matchWeightConditions  = 0.2
	matchWeightDomain      = 0.1

	// participantPlaceholder scores participants until patterns carry roles.
	participantPlaceholder = 0.5
	evolveThreshold        = 0.5
	evolveScanLimit        = 1000
)

// MatchScore rates how well e instantiates p in [0,1].
func MatchScore(e *model.Event, p *model.EventPattern) float64 {
	typeMatch := 0.0
	if p.Contains(e.Type) {
		typeMatch = 1
	}
	domainMatch := 0.5
	if d, ok := e.Properties["domain"].(string); ok && p.Domain != "" && d == p.Domain {
		domainMatch = 1
	}
	score := matchWeightType*typeMatch +
		matchWeightParticipant*participantPlaceholder +
		matchWeightConditions*conditionMatch(e.Properties, p.Conditions) +
		matchWeightDomain*domainMatch
	return min(score, 1)
}

func conditionMatch(props, conditions map[string]any) float64 {
	if len(conditions) == 0 {
		return 0.5
	}
	matched := 0
	for k, want := range conditions {
		if got, ok := props[k]; ok && model.ValuesEqual(got, want) {
			matched++
		}
	}
	return float64(matched) / float64(len(conditions))
}

// candidates returns the patterns indexed under e's type, or the first
// stored patterns when the type has no bucket.
func (m *Manager) candidates(ctx context.Context, t model.EventType) ([]model.EventPattern, error) {
	if ids, ok := m.indexed(t); ok {
		sort.Strings(ids)
		found, err := m.BatchGetPatterns(ctx, ids)
		if err != nil {
			return nil, err
		}
		out := make([]model.EventPattern, 0, len(found))
		for _, id := range ids {
			if p, ok := found[id]; ok {
				out = append(out, p)
			}
		}
		return out, nil
	}
	limit := m.cfg.CandidateFallbackLimit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	return m.QueryPatterns(ctx, model.PatternQuery{Limit: limit})
}

// FindMatchingPatterns returns patterns scoring at least threshold against
// e, best first. threshold <= 0 uses the configured similarity threshold.
func (m *Manager) FindMatchingPatterns(ctx context.Context, e *model.Event, threshold float64) (_ []model.PatternMatch, err error) {
	defer logging.Observe(m.log, "patterns.find_matching", &err, zap.String("event_id", e.ID))()

	if threshold <= 0 {
		threshold = m.cfg.SimilarityThreshold
	}
	pool, err := m.candidates(ctx, e.Type)
	if err != nil {
		return nil, err
	}
	var out []model.PatternMatch
	for i := range pool {
		if s := MatchScore(e, &pool[i]); s >= threshold {
			out = append(out, model.PatternMatch{Pattern: pool[i], Score: s})
		}
	}
	sortMatches(out)
	return out, nil
}

func sortMatches(ms []model.PatternMatch) {
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].Score != ms[j].Score {
			return ms[i].Score > ms[j].Score
		}
		return ms[i].Pattern.ID < ms[j].Pattern.ID
	})
}

// EvolvePatterns folds newEvents into the stored patterns they match. Each
// affected pattern yields a copy with id "<id>_evolved"; callers persist
// the copies with AddPattern.
func (m *Manager) EvolvePatterns(ctx context.Context, newEvents []model.Event) (_ []model.EventPattern, err error) {
	defer logging.Observe(m.log, "patterns.evolve", &err, zap.Int("events", len(newEvents)))()

	existing, err := m.QueryPatterns(ctx, model.PatternQuery{Limit: evolveScanLimit})
	if err != nil {
		return nil, err
	}

	var out []model.EventPattern
	for i := range existing {
		p := &existing[i]
		var matched []string
		for j := range newEvents {
			if MatchScore(&newEvents[j], p) > evolveThreshold {
				matched = append(matched, newEvents[j].ID)
			}
		}
		if len(matched) == 0 {
			continue
		}
		out = append(out, evolve(p, matched, len(newEvents), m.now()))
	}
	return out, nil
}

// evolve adds matched instances to p. The corpus size behind p's support is
// recovered from frequency/support and grown by the new events.
func evolve(p *model.EventPattern, matched []string, newEvents int, now time.Time) model.EventPattern {
	next := model.ClonePattern(*p)
	next.ID = p.ID + "_evolved"
	corpus := float64(p.Frequency)
	if p.Support > 0 {
		corpus = float64(p.Frequency) / p.Support
	}
	next.Frequency = p.Frequency + len(matched)
	if total := corpus + float64(newEvents); total > 0 {
		next.Support = float64(next.Frequency) / total
	}
	next.Instances = appendUnique(next.Instances, matched...)
	next.CreatedAt, next.UpdatedAt = now, now
	return next
}
