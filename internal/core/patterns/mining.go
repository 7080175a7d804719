package patterns

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agenthands/eventgraph/internal/core/model"
)

const causalLookahead = 3

// causalRules lists, per cause type, the effect types a later event may have
// for the pair to count as a causal candidate.
var causalRules = map[model.EventType][]model.EventType{
	model.EventInvestment:      {model.EventBusinessCooperation, model.EventBusinessMerger},
	model.EventPersonnelChange: {model.EventOrganizationalChange, model.EventStrategyChange},
	model.EventProductLaunch:   {model.EventMarketExpansion, model.EventRevenueIncrease},
}

var (
	businessTypes = map[model.EventType]bool{
		model.EventBusinessCooperation: true,
		model.EventBusinessMerger:      true,
		model.EventInvestment:          true,
		model.EventPartnership:         true,
	}
	technologyTypes = map[model.EventType]bool{
		model.EventProductLaunch:          true,
		model.EventTechnologyBreakthrough: true,
	}
)

// MinedID derives a stable id from the pattern signature so re-mining the
// same structure yields the same id.
func MinedID(p *model.EventPattern) string {
	return p.Type.String() + "_" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(p.Signature())).String()
}

// ExtractPatternsFromEvents mines temporal, causal and co-occurrence
// patterns from events. minSupport <= 0 uses the configured minimum.
// Patterns are returned without being stored.
func (m *Manager) ExtractPatternsFromEvents(evts []model.Event, minSupport int) []model.EventPattern {
	if minSupport <= 0 {
		minSupport = m.cfg.MinSupport
	}
	domain := inferDomain(evts)

	var mined []model.EventPattern
	if m.cfg.EnableTemporalPatterns {
		mined = append(mined, m.temporalPatterns(evts, minSupport)...)
	}
	if m.cfg.EnableCausalPatterns {
		mined = append(mined, causalPatterns(evts, minSupport)...)
	}
	if m.cfg.EnableCooccurrence {
		mined = append(mined, m.cooccurrencePatterns(evts, minSupport)...)
	}

	now := m.now()
	seen := make(map[string]bool, len(mined))
	out := mined[:0]
	for _, p := range mined {
		p.Domain = domain
		if p.Domain == "general" {
			p.Domain = domainFromTypes(p.EventSequence)
		}
		sig := p.Signature()
		if seen[sig] {
			continue
		}
		seen[sig] = true
		p.ID = MinedID(&p)
		p.CreatedAt, p.UpdatedAt = now, now
		out = append(out, p)
	}
	m.log.Debug("patterns mined", zap.Int("events", len(evts)), zap.Int("patterns", len(out)))
	return out
}

func timed(evts []model.Event) []model.Event {
	out := make([]model.Event, 0, len(evts))
	for _, e := range evts {
		if e.Timestamp != nil {
			out = append(out, e)
		}
	}
	model.SortChronologically(out)
	return out
}

func typeKey(ts []model.EventType) string {
	return model.JoinTypes(ts, ",")
}

func minedPattern(t model.PatternType, seq []model.EventType, rel model.RelationType, count, n int, instances []string) model.EventPattern {
	ratio := float64(count) / float64(n)
	return model.EventPattern{
		Name:          fmt.Sprintf("%s: %s", t, model.JoinTypes(seq, " -> ")),
		Description:   fmt.Sprintf("observed %d times across %d events", count, n),
		Type:          t,
		EventSequence: seq,
		RelationTypes: []model.RelationType{rel},
		Frequency:     count,
		Support:       ratio,
		Confidence:    min(ratio, 1),
		Instances:     instances,
	}
}

// temporalPatterns counts exact type sequences in sliding windows over the
// timestamped events.
func (m *Manager) temporalPatterns(evts []model.Event, minSupport int) []model.EventPattern {
	sorted := timed(evts)
	n := len(sorted)
	if n < 2 {
		return nil
	}

	var out []model.EventPattern
	for length := 2; length <= min(m.cfg.MaxPatternLength, n); length++ {
		counts := make(map[string]int)
		first := make(map[string]int)
		var order []string
		for i := 0; i+length <= n; i++ {
			seq := make([]model.EventType, length)
			for j := range seq {
				seq[j] = sorted[i+j].Type
			}
			key := typeKey(seq)
			if _, ok := first[key]; !ok {
				first[key] = i
				order = append(order, key)
			}
			counts[key]++
		}
		for _, key := range order {
			if counts[key] < minSupport {
				continue
			}
			start := first[key]
			seq := make([]model.EventType, length)
			ids := make([]string, length)
			for j := 0; j < length; j++ {
				seq[j] = sorted[start+j].Type
				ids[j] = sorted[start+j].ID
			}
			out = append(out, minedPattern(model.PatternTemporalSequence, seq, model.RelationTemporalBefore, counts[key], n, ids))
		}
	}
	return out
}

func isCausalCandidate(cause, effect model.EventType) bool {
	for _, t := range causalRules[cause] {
		if t == effect {
			return true
		}
	}
	return false
}

// causalPatterns pairs each timestamped event with the next three and keeps
// (cause, effect) type pairs allowed by the rule table.
func causalPatterns(evts []model.Event, minSupport int) []model.EventPattern {
	sorted := timed(evts)
	type pair struct{ cause, effect model.EventType }
	counts := make(map[pair]int)
	instances := make(map[pair][]string)
	var order []pair

	for i := range sorted {
		for j := i + 1; j <= i+causalLookahead && j < len(sorted); j++ {
			p := pair{sorted[i].Type, sorted[j].Type}
			if !isCausalCandidate(p.cause, p.effect) {
				continue
			}
			if counts[p] == 0 {
				order = append(order, p)
			}
			counts[p]++
			instances[p] = appendUnique(instances[p], sorted[i].ID, sorted[j].ID)
		}
	}

	var out []model.EventPattern
	for _, p := range order {
		if counts[p] < minSupport {
			continue
		}
		seq := []model.EventType{p.cause, p.effect}
		out = append(out, minedPattern(model.PatternCausalRelationship, seq, model.RelationCausal, counts[p], len(evts), instances[p]))
	}
	return out
}

// cooccurrencePatterns counts every combination of distinct event types. A
// combination occurs as often as its rarest member.
func (m *Manager) cooccurrencePatterns(evts []model.Event, minSupport int) []model.EventPattern {
	occurrences := make(map[model.EventType]int)
	members := make(map[model.EventType][]string)
	for _, e := range evts {
		occurrences[e.Type]++
		members[e.Type] = append(members[e.Type], e.ID)
	}
	unique := make([]model.EventType, 0, len(occurrences))
	for t := range occurrences {
		unique = append(unique, t)
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i] < unique[j] })

	var out []model.EventPattern
	maxSize := min(len(unique), m.cfg.MaxPatternLength)
	for size := 2; size <= maxSize; size++ {
		combinations(unique, size, func(combo []model.EventType) {
			count := occurrences[combo[0]]
			for _, t := range combo[1:] {
				count = min(count, occurrences[t])
			}
			if count < minSupport {
				return
			}
			var ids []string
			for _, t := range combo {
				ids = append(ids, members[t]...)
			}
			seq := append([]model.EventType(nil), combo...)
			out = append(out, minedPattern(model.PatternCooccurrence, seq, model.RelationCooccurrence, count, len(evts), ids))
		})
	}
	return out
}

// combinations calls fn with every size-k subset of items in lexicographic
// order. The slice passed to fn is reused between calls.
func combinations(items []model.EventType, k int, fn func([]model.EventType)) {
	combo := make([]model.EventType, k)
	var rec func(start, depth int)
	rec = func(start, depth int) {
		if depth == k {
			fn(combo)
			return
		}
		for i := start; i <= len(items)-(k-depth); i++ {
			combo[depth] = items[i]
			rec(i+1, depth+1)
		}
	}
	rec(0, 0)
}

func appendUnique(ids []string, more ...string) []string {
	for _, id := range more {
		found := false
		for _, have := range ids {
			if have == id {
				found = true
				break
			}
		}
		if !found {
			ids = append(ids, id)
		}
	}
	return ids
}

// inferDomain returns the most frequent event domain, ties broken by name.
func inferDomain(evts []model.Event) string {
	if len(evts) == 0 {
		return "general"
	}
	counts := make(map[string]int)
	for i := range evts {
		counts[evts[i].Domain()]++
	}
	best, bestCount := "general", 0
	for d, c := range counts {
		if c > bestCount || (c == bestCount && strings.Compare(d, best) < 0) {
			best, bestCount = d, c
		}
	}
	return best
}

func domainFromTypes(ts []model.EventType) string {
	for _, t := range ts {
		if businessTypes[t] {
			return "business"
		}
	}
	for _, t := range ts {
		if technologyTypes[t] {
			return "technology"
		}
	}
	return "general"
}
