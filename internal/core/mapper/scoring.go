package mapper

import (
	"strings"

	"github.com/agenthands/eventgraph/internal/core/common"
	"github.com/agenthands/eventgraph/internal/core/model"
)

const (
	weightType        = 0.30
	weightParticipant = 0.25
	weightAttribute   = 0.25
	weightTemporal    = 0.10
	weightDomain      = 0.10

	participantPlaceholder = 0.5
)

// MappingScore rates how well e instantiates p, in [0,1].
func MappingScore(e *model.Event, p *model.EventPattern) float64 {
	score := weightType*typeScore(e.Type, p.EventSequence) +
		weightParticipant*participantPlaceholder +
		weightAttribute*attributeScore(e.Properties, p.Conditions) +
		weightTemporal*temporalScore(p) +
		weightDomain*domainScore(e, p)
	return min(score, 1)
}

// MappingConfidence averages the score, the normalised support, the pattern
// confidence and the completeness of e.
func MappingConfidence(e *model.Event, p *model.EventPattern, score float64) float64 {
	support := min(p.Support/10, 1)
	return (score + support + p.Confidence + completeness(e)) / 4
}

func typeScore(t model.EventType, seq []model.EventType) float64 {
	best := 0.0
	for _, s := range seq {
		if s == t {
			return 1
		}
		best = max(best, keywordSimilarity(t.String(), s.String()))
	}
	return best
}

// keywordSimilarity is the Jaccard index of the "_"-separated words of a and b.
func keywordSimilarity(a, b string) float64 {
	return common.Jaccard(strings.Split(strings.ToLower(a), "_"), strings.Split(strings.ToLower(b), "_"))
}

func attributeScore(attrs, conditions map[string]any) float64 {
	if len(conditions) == 0 {
		return 0.5
	}
	matched := 0.0
	for k, want := range conditions {
		got, ok := attrs[k]
		if !ok {
			continue
		}
		if model.ValuesEqual(got, want) {
			matched++
			continue
		}
		gs, ok1 := got.(string)
		ws, ok2 := want.(string)
		if ok1 && ok2 {
			matched += stringSimilarity(gs, ws)
		}
	}
	return matched / float64(len(conditions))
}

// stringSimilarity is the number of distinct shared characters (case folded)
// over the longer length.
func stringSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 1
	}
	seen := make(map[rune]struct{})
	for _, r := range strings.ToLower(a) {
		seen[r] = struct{}{}
	}
	shared := make(map[rune]struct{})
	for _, r := range strings.ToLower(b) {
		if _, ok := seen[r]; ok {
			shared[r] = struct{}{}
		}
	}
	return float64(len(shared)) / float64(longest)
}

func temporalScore(p *model.EventPattern) float64 {
	if p.Type == model.PatternTemporalSequence {
		return 0.8
	}
	return 0.5
}

func domainScore(e *model.Event, p *model.EventPattern) float64 {
	ed, pd := e.Domain(), p.Domain
	if pd == "" {
		pd = "general"
	}
	switch {
	case ed == pd:
		return 1
	case ed == "general" || pd == "general":
		return 0.5
	}
	return 0
}

func completeness(e *model.Event) float64 {
	c := 0.0
	for _, present := range []bool{
		e.ID != "",
		true, // every event carries a type
		len(e.Participants) > 0,
		e.Timestamp != nil,
		len(e.Properties) > 0,
	} {
		if present {
			c += 0.2
		}
	}
	return c
}
