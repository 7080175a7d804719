package graph

import (
	"context"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/agenthands/eventgraph/internal/core/model"
	"github.com/agenthands/eventgraph/internal/errs"
	"github.com/agenthands/eventgraph/internal/logging"
)

const (
	maxPredictions        = 10
	statisticalWeight     = 0.3
	statisticalSimilarity = 0.6
	statisticalNeighbours = 100
	transitionProbability = 1.0
)

type Prediction struct {
	Type        model.EventType `json:"event_type"`
	Probability float64         `json:"probability"`
}

// PredictNextEvents ranks the event types likely to follow the event id.
// Patterns matching the event contribute match score times pattern
// confidence for each transition out of its type; the types of events that
// followed similar events within windowDays contribute at 0.3. The fused
// scores of the top 10 types are normalised to sum to 1.
func (p *Processor) PredictNextEvents(ctx context.Context, id string, windowDays int) (_ []Prediction, err error) {
	defer logging.Observe(p.log, "graph.predict", &err, zap.String("event_id", id))()

	if windowDays <= 0 {
		windowDays = p.cfg.PredictionWindow
	}
	current, err := p.events.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, errs.NotFound("graph.predict", "event", id)
	}

	scores := make(map[model.EventType]float64)

	matches, err := p.patterns.FindMatchingPatterns(ctx, current, p.cfg.SimilarityThreshold)
	if err != nil {
		return nil, err
	}
	for _, m := range matches {
		for _, next := range transitions(&m.Pattern, current.Type) {
			scores[next] += transitionProbability * m.Score * m.Pattern.Confidence
		}
	}

	stats, err := p.statisticalEvidence(ctx, current, windowDays)
	if err != nil {
		return nil, err
	}
	for t, prob := range stats {
		scores[t] += statisticalWeight * prob
	}

	return normalise(scores), nil
}

// transitions lists the types that directly follow t in the sequence of pt.
func transitions(pt *model.EventPattern, t model.EventType) []model.EventType {
	var out []model.EventType
	seq := pt.EventSequence
	for i := 0; i+1 < len(seq); i++ {
		if seq[i] == t {
			out = append(out, seq[i+1])
		}
	}
	return out
}

// statisticalEvidence is the distribution of types among events that
// followed events similar to current.
func (p *Processor) statisticalEvidence(ctx context.Context, current *model.Event, windowDays int) (map[model.EventType]float64, error) {
	similar, err := p.events.FindSimilarEvents(ctx, current, statisticalSimilarity, statisticalNeighbours)
	if err != nil {
		return nil, err
	}
	counts := make(map[model.EventType]int)
	total := 0
	for _, s := range similar {
		after, err := p.events.GetEventsAfter(ctx, s.Event.ID, windowDays)
		if err != nil {
			return nil, err
		}
		for _, e := range after {
			counts[e.Type]++
			total++
		}
	}
	out := make(map[model.EventType]float64, len(counts))
	for t, c := range counts {
		out[t] = float64(c) / float64(total)
	}
	return out, nil
}

// normalise keeps the ten best types and scales them to sum to 1.
func normalise(scores map[model.EventType]float64) []Prediction {
	out := make([]Prediction, 0, len(scores))
	for t, s := range scores {
		if s > 0 && !math.IsNaN(s) {
			out = append(out, Prediction{Type: t, Probability: s})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Probability != out[j].Probability {
			return out[i].Probability > out[j].Probability
		}
		return out[i].Type.String() < out[j].Type.String()
	})
	if len(out) > maxPredictions {
		out = out[:maxPredictions]
	}
	total := 0.0
	for _, pr := range out {
		total += pr.Probability
	}
	if total == 0 {
		return nil
	}
	for i := range out {
		out[i].Probability /= total
	}
	return out
}
