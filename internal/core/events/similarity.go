package events

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/agenthands/eventgraph/internal/core/common"
	"github.com/agenthands/eventgraph/internal/core/model"
	"github.com/agenthands/eventgraph/internal/logging"
)

// Similarity weights. They sum to 1.
const (
	weightType        = 0.30
	weightParticipant = 0.25
	weightText        = 0.20
	weightTime        = 0.10
	weightLocation    = 0.10
	weightAttribute   = 0.05

	sameTypeCandidates    = 200
	relatedTypeCandidates = 50
	minCandidates         = 50
	timeDecayDays         = 30.0
)

// relatedTypes extends the candidate pool when too few events share the
// target's type.
var relatedTypes = map[model.EventType][]model.EventType{
	model.EventBusinessCooperation: {model.EventBusinessMerger, model.EventPartnership, model.EventInvestment},
	model.EventBusinessMerger:      {model.EventBusinessCooperation, model.EventInvestment},
	model.EventInvestment:          {model.EventBusinessCooperation, model.EventBusinessMerger, model.EventPartnership},
	model.EventPersonnelChange:     {model.EventOrganizationalChange},
	model.EventProductLaunch:       {model.EventMarketExpansion, model.EventTechnologyBreakthrough},
}

// Similarity scores a and b in [0,1] as a weighted sum of type, participant,
// text, time, location and attribute agreement.
func Similarity(a, b *model.Event) float64 {
	score := weightType*typeSimilarity(a, b) +
		weightParticipant*common.Jaccard(a.ParticipantNames(), b.ParticipantNames()) +
		weightText*textSimilarity(a, b) +
		weightTime*timeSimilarity(a, b) +
		weightLocation*locationSimilarity(a, b) +
		weightAttribute*attributeSimilarity(a.Properties, b.Properties)
	return common.Clamp01(score)
}

func typeSimilarity(a, b *model.Event) float64 {
	if a.Type == b.Type {
		return 1
	}
	return 0
}

func textOf(e *model.Event) string {
	if e.Text != "" {
		return e.Text
	}
	return e.Summary
}

func textSimilarity(a, b *model.Event) float64 {
	return common.Jaccard(common.Tokenize(textOf(a)), common.Tokenize(textOf(b)))
}

func timeSimilarity(a, b *model.Event) float64 {
	if a.Timestamp == nil || b.Timestamp == nil {
		return 0.5
	}
	days := math.Abs(a.Timestamp.Sub(*b.Timestamp).Hours()) / 24
	return math.Exp(-days / timeDecayDays)
}

func locationSimilarity(a, b *model.Event) float64 {
	if a.Location == "" || b.Location == "" {
		return 0.5
	}
	if strings.EqualFold(a.Location, b.Location) {
		return 1
	}
	return 0
}

func attributeSimilarity(a, b map[string]any) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.5
	}
	shared, equal := 0, 0
	for k, va := range a {
		vb, ok := b[k]
		if !ok {
			continue
		}
		shared++
		if model.ValuesEqual(va, vb) {
			equal++
		}
	}
	if shared == 0 {
		return 0
	}
	return float64(equal) / float64(shared)
}

// FindSimilarEvents returns stored events scoring at least threshold against
// target, best first. Candidates share the target's type; related types are
// added when fewer than 50 are found.
func (m *Manager) FindSimilarEvents(ctx context.Context, target *model.Event, threshold float64, limit int) (_ []model.ScoredEvent, err error) {
	defer logging.Observe(m.log, "events.find_similar", &err, zap.String("event_id", target.ID))()

	if limit <= 0 {
		limit = 10
	}
	key := fmt.Sprintf("%s|%.4f|%d", target.ID, threshold, limit)
	if target.ID != "" {
		if cached, ok := m.similarities.Get(key); ok {
			return append([]model.ScoredEvent(nil), cached...), nil
		}
	}

	candidates, err := m.candidates(ctx, target.Type)
	if err != nil {
		return nil, err
	}

	var scored []model.ScoredEvent
	for i := range candidates {
		c := &candidates[i]
		if c.ID == target.ID {
			continue
		}
		if s := Similarity(target, c); s >= threshold {
			scored = append(scored, model.ScoredEvent{Event: *c, Score: s})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Event.ID < scored[j].Event.ID
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}

	if target.ID != "" {
		m.similarities.Set(key, append([]model.ScoredEvent(nil), scored...))
	}
	return scored, nil
}

func (m *Manager) candidates(ctx context.Context, t model.EventType) ([]model.Event, error) {
	same, err := m.QueryEvents(ctx, model.EventQuery{Type: &t, Limit: sameTypeCandidates})
	if err != nil {
		return nil, err
	}
	if len(same) >= minCandidates {
		return same, nil
	}
	for _, rt := range relatedTypes[t] {
		more, err := m.QueryEvents(ctx, model.EventQuery{Type: &rt, Limit: relatedTypeCandidates})
		if err != nil {
			return nil, err
		}
		same = append(same, more...)
	}
	return same, nil
}
