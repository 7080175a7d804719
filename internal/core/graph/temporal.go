package graph

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/agenthands/eventgraph/internal/core/model"
	"github.com/agenthands/eventgraph/internal/errs"
	"github.com/agenthands/eventgraph/internal/logging"
)

const (
	temporalEventLimit  = 10000
	periodicMinEvents   = 3
	periodicShare       = 0.5
	maxSubsequences     = 10
	maxSubsequenceLen   = 5
	maxChainPatterns    = 5
	maxPatternPositions = 5
	defaultLinkConf     = 0.7
	unknownRelation     = "unknown"
	anomalyFactor       = 2.0
	day                 = 24 * time.Hour
)

// Periodicity reports how strongly timed events concentrate on one slot of a
// cycle (hour of day, weekday or day of month).
type Periodicity struct {
	Detected      bool    `json:"detected"`
	Peak          int     `json:"peak"`
	Concentration float64 `json:"concentration"`
}

type PeriodicPatterns struct {
	Daily   Periodicity `json:"daily_pattern"`
	Weekly  Periodicity `json:"weekly_pattern"`
	Monthly Periodicity `json:"monthly_pattern"`
}

type TemporalReport struct {
	WindowDays     int                `json:"window_days"`
	EventCount     int                `json:"event_count"`
	EventFrequency map[string]int     `json:"event_frequency"`
	PeakHours      []int              `json:"peak_hours"`
	Periodic       PeriodicPatterns   `json:"periodic_patterns"`
	Sequences      [][]string         `json:"event_sequences"`
	Correlations   map[string]float64 `json:"temporal_correlations"`
}

// AnalyzeTemporalPatterns looks at the events of the last windowDays days.
// windowDays <= 0 uses the configured window.
func (p *Processor) AnalyzeTemporalPatterns(ctx context.Context, windowDays int) (_ *TemporalReport, err error) {
	if windowDays <= 0 {
		windowDays = p.cfg.TemporalWindowDays
	}
	defer logging.Observe(p.log, "graph.temporal", &err, zap.Int("window_days", windowDays))()

	end := p.now()
	start := end.Add(-time.Duration(windowDays) * day)
	evts, err := p.events.GetEventsInTimeRange(ctx, start, end, temporalEventLimit)
	if err != nil {
		return nil, err
	}
	model.SortChronologically(evts)

	report := &TemporalReport{
		WindowDays:     windowDays,
		EventCount:     len(evts),
		EventFrequency: make(map[string]int),
		Correlations:   map[string]float64{"autocorrelation": lagOneAutocorrelation(evts)},
	}
	var stamps []time.Time
	for _, e := range evts {
		report.EventFrequency[e.Type.String()]++
		if e.Timestamp != nil {
			stamps = append(stamps, e.Timestamp.UTC())
		}
	}
	report.PeakHours = peakHours(stamps)
	report.Periodic = PeriodicPatterns{
		Daily:   periodicity(stamps, func(t time.Time) int { return t.Hour() }),
		Weekly:  periodicity(stamps, func(t time.Time) int { return int(t.Weekday()) }),
		Monthly: periodicity(stamps, func(t time.Time) int { return t.Day() }),
	}
	report.Sequences = subsequences(evts)
	return report, nil
}

// peakHours lists the hours of day holding the most events, ascending.
func peakHours(stamps []time.Time) []int {
	counts := make(map[int]int)
	best := 0
	for _, t := range stamps {
		counts[t.Hour()]++
		best = max(best, counts[t.Hour()])
	}
	var out []int
	for h, c := range counts {
		if c == best {
			out = append(out, h)
		}
	}
	sort.Ints(out)
	return out
}

func periodicity(stamps []time.Time, slot func(time.Time) int) Periodicity {
	if len(stamps) == 0 {
		return Periodicity{}
	}
	counts := make(map[int]int)
	for _, t := range stamps {
		counts[slot(t)]++
	}
	peak, best := 0, -1
	for s, c := range counts {
		if c > best || (c == best && s < peak) {
			peak, best = s, c
		}
	}
	share := float64(best) / float64(len(stamps))
	return Periodicity{
		Detected:      len(stamps) >= periodicMinEvents && share >= periodicShare,
		Peak:          peak,
		Concentration: share,
	}
}

// subsequences returns the first ten contiguous type runs of length 2 to 5
// from the timed events in order, shorter runs first.
func subsequences(evts []model.Event) [][]string {
	var seq []string
	for _, e := range evts {
		if e.Timestamp != nil {
			seq = append(seq, e.Type.String())
		}
	}
	var out [][]string
	for n := 2; n <= min(maxSubsequenceLen, len(seq)); n++ {
		for i := 0; i+n <= len(seq); i++ {
			out = append(out, append([]string(nil), seq[i:i+n]...))
			if len(out) == maxSubsequences {
				return out
			}
		}
	}
	return out
}

// lagOneAutocorrelation correlates the daily event counts with themselves
// shifted by one day. Series too short or constant give 0.
func lagOneAutocorrelation(evts []model.Event) float64 {
	var first, last time.Time
	counts := make(map[int64]float64)
	for _, e := range evts {
		if e.Timestamp == nil {
			continue
		}
		d := e.Timestamp.UTC().Truncate(day)
		if first.IsZero() || d.Before(first) {
			first = d
		}
		if d.After(last) {
			last = d
		}
		counts[d.Unix()]++
	}
	if first.IsZero() {
		return 0
	}
	var series []float64
	for d := first; !d.After(last); d = d.Add(day) {
		series = append(series, counts[d.Unix()])
	}
	if len(series) < 3 {
		return 0
	}
	r := stat.Correlation(series[:len(series)-1], series[1:], nil)
	if math.IsNaN(r) {
		return 0
	}
	return r
}

type TemporalSpan struct {
	SpanDays int        `json:"span_days"`
	Start    *time.Time `json:"start_time"`
	End      *time.Time `json:"end_time"`
}

// ChainLink describes two consecutive events of a chain.
type ChainLink struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	SourceType string  `json:"source_type"`
	TargetType string  `json:"target_type"`
	Relation   string  `json:"relation_type"`
	Confidence float64 `json:"confidence"`
}

type ChainPattern struct {
	Pattern   []string `json:"pattern"`
	Frequency int      `json:"frequency"`
	Positions []int    `json:"positions"`
}

type ChainAnomaly struct {
	Type            string  `json:"type"`
	Position        int     `json:"position"`
	IntervalSeconds float64 `json:"interval_seconds"`
	ExpectedSeconds float64 `json:"expected_seconds"`
}

type ChainGraphMetrics struct {
	Nodes   int     `json:"nodes"`
	Edges   int     `json:"edges"`
	Density float64 `json:"density"`
}

type ChainReport struct {
	ChainLength   int               `json:"chain_length"`
	EventTypes    []string          `json:"event_types"`
	TemporalSpan  TemporalSpan      `json:"temporal_span"`
	Relationships []ChainLink       `json:"causal_relationships"`
	Patterns      []ChainPattern    `json:"frequent_patterns"`
	Anomalies     []ChainAnomaly    `json:"anomalies"`
	Graph         ChainGraphMetrics `json:"graph_metrics"`
}

// AnalyzeEventChain describes an ordered chain of events. The chain graph is
// built from the stored relations among the events and is not kept.
func (p *Processor) AnalyzeEventChain(ctx context.Context, evts []model.Event) (_ *ChainReport, err error) {
	defer logging.Observe(p.log, "graph.analyze_chain", &err, zap.Int("events", len(evts)))()

	if len(evts) == 0 {
		return nil, errs.InvalidArgument("graph.analyze_chain", "event chain is empty")
	}
	g, err := p.eventGraph(ctx, evts)
	if err != nil {
		return nil, err
	}

	report := &ChainReport{
		ChainLength:  len(evts),
		EventTypes:   make([]string, len(evts)),
		TemporalSpan: temporalSpan(evts),
		Patterns:     chainPatterns(evts),
		Anomalies:    gapAnomalies(evts),
		Graph:        ChainGraphMetrics{Nodes: g.NodeCount(), Edges: g.EdgeCount()},
	}
	if n := g.NodeCount(); n > 1 {
		report.Graph.Density = float64(g.EdgeCount()) / float64(n*(n-1))
	}
	for i, e := range evts {
		report.EventTypes[i] = e.Type.String()
	}
	for i := 0; i+1 < len(evts); i++ {
		a, b := &evts[i], &evts[i+1]
		link := ChainLink{
			Source:     a.ID,
			Target:     b.ID,
			SourceType: a.Type.String(),
			TargetType: b.Type.String(),
			Relation:   unknownRelation,
			Confidence: defaultLinkConf,
		}
		if e, ok := g.EdgeBetween(a.ID, b.ID); ok {
			link.Relation, link.Confidence = e.Relation, e.Confidence
		}
		report.Relationships = append(report.Relationships, link)
	}
	return report, nil
}

func temporalSpan(evts []model.Event) TemporalSpan {
	var stamps []time.Time
	for _, e := range evts {
		if e.Timestamp != nil {
			stamps = append(stamps, *e.Timestamp)
		}
	}
	if len(stamps) < 2 {
		return TemporalSpan{}
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })
	start, end := stamps[0], stamps[len(stamps)-1]
	return TemporalSpan{SpanDays: int(end.Sub(start) / day), Start: &start, End: &end}
}

// chainPatterns counts adjacent type pairs, most frequent first.
func chainPatterns(evts []model.Event) []ChainPattern {
	index := make(map[[2]model.EventType]int)
	var out []ChainPattern
	for i := 0; i+1 < len(evts); i++ {
		key := [2]model.EventType{evts[i].Type, evts[i+1].Type}
		j, ok := index[key]
		if !ok {
			j = len(out)
			index[key] = j
			out = append(out, ChainPattern{Pattern: []string{key[0].String(), key[1].String()}})
		}
		out[j].Frequency++
		if len(out[j].Positions) < maxPatternPositions {
			out[j].Positions = append(out[j].Positions, i)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Frequency > out[j].Frequency })
	if len(out) > maxChainPatterns {
		out = out[:maxChainPatterns]
	}
	return out
}

// gapAnomalies flags intervals between chronologically adjacent timed events
// that exceed twice the mean interval.
func gapAnomalies(evts []model.Event) []ChainAnomaly {
	var stamps []time.Time
	for _, e := range evts {
		if e.Timestamp != nil {
			stamps = append(stamps, *e.Timestamp)
		}
	}
	if len(stamps) <= 2 {
		return nil
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

	intervals := make([]float64, len(stamps)-1)
	for i := range intervals {
		intervals[i] = stamps[i+1].Sub(stamps[i]).Seconds()
	}
	mean := stat.Mean(intervals, nil)
	var out []ChainAnomaly
	for i, iv := range intervals {
		if iv > anomalyFactor*mean {
			out = append(out, ChainAnomaly{
				Type:            "time_gap_anomaly",
				Position:        i,
				IntervalSeconds: iv,
				ExpectedSeconds: mean,
			})
		}
	}
	return out
}
