package events

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/eventgraph/internal/cache"
	"github.com/agenthands/eventgraph/internal/core/model"
	"github.com/agenthands/eventgraph/internal/logging"
	"github.com/agenthands/eventgraph/internal/storage"
)

// Time windows accepted by the analytics methods.
const (
	WindowDay   = "day"
	WindowWeek  = "week"
	WindowMonth = "month"
	WindowYear  = "year"
)

// TimeKey buckets t by window. Weeks use ISO numbering (2024-W09); unknown
// windows fall back to months.
func TimeKey(t time.Time, window string) string {
	switch window {
	case WindowDay:
		return t.Format("2006-01-02")
	case WindowWeek:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case WindowYear:
		return t.Format("2006")
	default:
		return t.Format("2006-01")
	}
}

// GetEventTimeline returns the events for ids in chronological order, with
// untimed events last. Unknown ids are skipped.
func (m *Manager) GetEventTimeline(ctx context.Context, ids []string) (_ []model.Event, err error) {
	defer logging.Observe(m.log, "events.timeline", &err, zap.Int("ids", len(ids)))()

	found, err := m.BatchGetEvents(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]model.Event, 0, len(found))
	for _, id := range ids {
		if e, ok := found[id]; ok {
			out = append(out, e)
			delete(found, id)
		}
	}
	model.SortChronologically(out)
	return out, nil
}

func (m *Manager) GetEventsInTimeRange(ctx context.Context, start, end time.Time, limit int) ([]model.Event, error) {
	return m.QueryEvents(ctx, model.EventQuery{Start: &start, End: &end, Limit: limit})
}

// GetEventsAfter returns events strictly later than the event id and at most
// windowDays after it. An unknown or untimed event yields nil.
func (m *Manager) GetEventsAfter(ctx context.Context, id string, windowDays int) (_ []model.Event, err error) {
	defer logging.Observe(m.log, "events.after", &err, zap.String("event_id", id))()

	e, err := m.GetEvent(ctx, id)
	if err != nil || e == nil || e.Timestamp == nil {
		return nil, err
	}
	start := *e.Timestamp
	end := start.AddDate(0, 0, windowDays)
	window, err := m.QueryEvents(ctx, model.EventQuery{Start: &start, End: &end, Limit: analyticsLimit})
	if err != nil {
		return nil, err
	}
	out := window[:0]
	for _, other := range window {
		if other.ID != id && other.Timestamp.After(start) {
			out = append(out, other)
		}
	}
	return out, nil
}

// AnalyzeEventFrequency counts timestamped events per window bucket,
// optionally restricted to one type.
func (m *Manager) AnalyzeEventFrequency(ctx context.Context, eventType *model.EventType, window string) (_ map[string]int, err error) {
	defer logging.Observe(m.log, "events.frequency", &err, zap.String("window", window))()

	found, err := m.QueryEvents(ctx, model.EventQuery{Type: eventType, Limit: analyticsLimit})
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, e := range found {
		if e.Timestamp != nil {
			counts[TimeKey(*e.Timestamp, window)]++
		}
	}
	return counts, nil
}

// aggregate computes fn over all events, reusing a result younger than five
// minutes.
func (m *Manager) aggregate(ctx context.Context, key string, fn func(e *model.Event, counts map[string]int)) (map[string]int, error) {
	if cached, ok := m.aggregations.Get(key); ok && m.now().Sub(cached.computedAt) < aggregationTTL {
		return copyCounts(cached.counts), nil
	}
	found, err := m.QueryEvents(ctx, model.EventQuery{Limit: analyticsLimit, NoCache: true})
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for i := range found {
		fn(&found[i], counts)
	}
	m.aggregations.Set(key, aggregation{counts: copyCounts(counts), computedAt: m.now()})
	return counts, nil
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *Manager) AggregateEventsByType(ctx context.Context) (_ map[string]int, err error) {
	defer logging.Observe(m.log, "events.aggregate_by_type", &err)()
	return m.aggregate(ctx, "by_type", func(e *model.Event, counts map[string]int) {
		counts[e.Type.String()]++
	})
}

// AggregateEventsByParticipant counts events per participant name. A name
// listed twice in one event counts once.
func (m *Manager) AggregateEventsByParticipant(ctx context.Context) (_ map[string]int, err error) {
	defer logging.Observe(m.log, "events.aggregate_by_participant", &err)()
	return m.aggregate(ctx, "by_participant", func(e *model.Event, counts map[string]int) {
		seen := make(map[string]struct{}, len(e.Participants))
		for _, name := range e.ParticipantNames() {
			if _, dup := seen[name]; dup || name == "" {
				continue
			}
			seen[name] = struct{}{}
			counts[name]++
		}
	})
}

// TrendReport holds per-type event counts over consecutive periods.
type TrendReport struct {
	Window  string                    `json:"window"`
	Periods []string                  `json:"periods"`
	Counts  map[string]map[string]int `json:"counts"`
	// Growth is the relative change between the last two periods per type;
	// absent when the earlier period has no events.
	Growth map[string]float64 `json:"growth"`
}

func (m *Manager) GetEventTrends(ctx context.Context, eventType *model.EventType, window string) (_ *TrendReport, err error) {
	defer logging.Observe(m.log, "events.trends", &err, zap.String("window", window))()

	found, err := m.QueryEvents(ctx, model.EventQuery{Type: eventType, Limit: analyticsLimit})
	if err != nil {
		return nil, err
	}

	report := &TrendReport{
		Window: window,
		Counts: make(map[string]map[string]int),
		Growth: make(map[string]float64),
	}
	periods := make(map[string]struct{})
	for _, e := range found {
		if e.Timestamp == nil {
			continue
		}
		key := TimeKey(*e.Timestamp, window)
		periods[key] = struct{}{}
		t := e.Type.String()
		if report.Counts[t] == nil {
			report.Counts[t] = make(map[string]int)
		}
		report.Counts[t][key]++
	}
	for p := range periods {
		report.Periods = append(report.Periods, p)
	}
	sort.Strings(report.Periods)

	if n := len(report.Periods); n >= 2 {
		prev, last := report.Periods[n-2], report.Periods[n-1]
		for t, byPeriod := range report.Counts {
			if before := byPeriod[prev]; before > 0 {
				report.Growth[t] = float64(byPeriod[last]-before) / float64(before)
			}
		}
	}
	return report, nil
}

type Statistics struct {
	Storage                 *storage.DatabaseStatistics `json:"storage"`
	TypeDistribution        map[string]int              `json:"type_distribution"`
	TemporalDistribution    map[string]int              `json:"temporal_distribution"`
	AvgParticipantsPerEvent float64                     `json:"avg_participants_per_event"`
	Caches                  map[string]cache.Stats      `json:"caches"`
}

// GetStatistics combines store counts with distributions over the events.
func (m *Manager) GetStatistics(ctx context.Context) (_ *Statistics, err error) {
	defer logging.Observe(m.log, "events.statistics", &err)()

	dbStats, err := m.store.GetDatabaseStatistics(ctx)
	if err != nil {
		return nil, err
	}
	found, err := m.QueryEvents(ctx, model.EventQuery{Limit: analyticsLimit, NoCache: true})
	if err != nil {
		return nil, err
	}

	stats := &Statistics{
		Storage:              dbStats,
		TypeDistribution:     make(map[string]int),
		TemporalDistribution: make(map[string]int),
		Caches:               m.GetPerformanceStats().Caches,
	}
	participants := 0
	for _, e := range found {
		stats.TypeDistribution[e.Type.String()]++
		if e.Timestamp != nil {
			stats.TemporalDistribution[TimeKey(*e.Timestamp, WindowMonth)]++
		}
		participants += len(e.Participants)
	}
	if len(found) > 0 {
		stats.AvgParticipantsPerEvent = float64(participants) / float64(len(found))
	}
	return stats, nil
}
