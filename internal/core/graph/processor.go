// Package graph builds in-memory graph views over the event and pattern
// layers and runs path, community, centrality, prediction and temporal
// analyses on them.
package graph

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/agenthands/eventgraph/internal/cache"
	"github.com/agenthands/eventgraph/internal/config"
	"github.com/agenthands/eventgraph/internal/core/common"
	"github.com/agenthands/eventgraph/internal/core/model"
	"github.com/agenthands/eventgraph/internal/errs"
	"github.com/agenthands/eventgraph/internal/logging"
)

const (
	eventGraphLimit   = 10000
	patternGraphLimit = 1000
	analysisCacheSize = 256
)

// EventSource is the part of the event layer the processor reads.
type EventSource interface {
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	QueryEvents(ctx context.Context, q model.EventQuery) ([]model.Event, error)
	QueryEventRelations(ctx context.Context, ids []string, limit int) ([]model.EventRelation, error)
	FindSimilarEvents(ctx context.Context, target *model.Event, threshold float64, limit int) ([]model.ScoredEvent, error)
	GetEventsAfter(ctx context.Context, id string, windowDays int) ([]model.Event, error)
	GetEventsInTimeRange(ctx context.Context, start, end time.Time, limit int) ([]model.Event, error)
}

// PatternSource is the part of the pattern layer the processor reads.
type PatternSource interface {
	QueryPatterns(ctx context.Context, q model.PatternQuery) ([]model.EventPattern, error)
	FindMatchingPatterns(ctx context.Context, e *model.Event, threshold float64) ([]model.PatternMatch, error)
}

// MappingSource lists event-pattern mappings for the unified graph.
type MappingSource interface {
	AllMappings() []model.EventPatternMapping
}

type Processor struct {
	events   EventSource
	patterns PatternSource
	mappings MappingSource
	log      *zap.Logger
	cfg      config.GraphConfig
	now      func() time.Time
	reg      prometheus.Registerer

	mu      sync.RWMutex
	built   map[Kind]*Graph
	results *cache.TTL[string, any]
}

type Option func(*Processor)

func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// WithMetrics exports the analysis cache counters to reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(p *Processor) { p.reg = reg }
}

func NewProcessor(events EventSource, patterns PatternSource, mappings MappingSource, cfg config.GraphConfig, logger *zap.Logger, opts ...Option) *Processor {
	p := &Processor{
		events:   events,
		patterns: patterns,
		mappings: mappings,
		log:      logging.OrNop(logger).Named("graph"),
		cfg:      cfg,
		now:      time.Now,
		built:    make(map[Kind]*Graph),
	}
	for _, opt := range opts {
		opt(p)
	}
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheOpts := []cache.Option{cache.WithClock(p.now)}
	if p.reg != nil {
		if m, err := cache.NewMetrics(p.reg, "graph_analysis"); err != nil {
			p.log.Warn("cache metrics disabled", zap.String("cache", "graph_analysis"), zap.Error(err))
		} else {
			cacheOpts = append(cacheOpts, cache.WithMetrics(m))
		}
	}
	p.results = cache.New[string, any](analysisCacheSize, ttl, cacheOpts...)
	return p
}

func (p *Processor) store(g *Graph) {
	p.mu.Lock()
	p.built[g.Kind] = g
	p.mu.Unlock()
	// analyses of the previous version are stale
	p.results.Clear()
}

// Graph returns the last built view of kind, or nil.
func (p *Processor) Graph(kind Kind) *Graph {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.built[kind]
}

// ensure returns the built view of kind, building it from the stores first
// when needed.
func (p *Processor) ensure(ctx context.Context, kind Kind) (*Graph, error) {
	if g := p.Graph(kind); g != nil {
		return g, nil
	}
	switch kind {
	case EventGraph:
		return p.BuildEventGraph(ctx, nil)
	case PatternGraph:
		return p.BuildPatternGraph(ctx, nil)
	case UnifiedGraph:
		return p.BuildUnifiedGraph(ctx, nil, nil)
	}
	return nil, errs.InvalidArgument("graph.ensure", "unknown graph type %q", kind)
}

func eventNode(e *model.Event) Node {
	attrs := map[string]any{"participants": e.ParticipantNames()}
	if e.Location != "" {
		attrs["location"] = e.Location
	}
	for k, v := range e.Properties {
		attrs[k] = v
	}
	label := e.Summary
	if label == "" {
		label = e.Text
	}
	return Node{ID: e.ID, Kind: NodeEvent, Type: e.Type.String(), Label: label, Timestamp: e.Timestamp, Attrs: attrs}
}

func patternNode(pt *model.EventPattern) Node {
	return Node{
		ID:    pt.ID,
		Kind:  NodePattern,
		Type:  pt.Type.String(),
		Label: pt.Name,
		Attrs: map[string]any{
			"event_sequence": model.JoinTypes(pt.EventSequence, ","),
			"support":        pt.Support,
			"confidence":     pt.Confidence,
			"domain":         pt.Domain,
		},
	}
}

func (p *Processor) eventGraph(ctx context.Context, evts []model.Event) (*Graph, error) {
	if evts == nil {
		var err error
		evts, err = p.events.QueryEvents(ctx, model.EventQuery{Limit: eventGraphLimit})
		if err != nil {
			return nil, err
		}
	}
	g := New(EventGraph, true)
	ids := make([]string, 0, len(evts))
	for i := range evts {
		g.AddNode(eventNode(&evts[i]))
		ids = append(ids, evts[i].ID)
	}
	if len(ids) == 0 {
		return g, nil
	}
	relations, err := p.events.QueryEventRelations(ctx, ids, 0)
	if err != nil {
		return nil, err
	}
	for _, r := range relations {
		g.AddEdge(Edge{
			Source:     r.SourceEventID,
			Target:     r.TargetEventID,
			Kind:       EdgeRelation,
			Relation:   r.Type.String(),
			Confidence: r.Confidence,
			Weight:     r.Confidence,
		})
	}
	return g, nil
}

// BuildEventGraph builds the directed event graph from evts and the stored
// relations among them. A nil evts loads up to 10000 stored events.
func (p *Processor) BuildEventGraph(ctx context.Context, evts []model.Event) (_ *Graph, err error) {
	defer logging.Observe(p.log, "graph.build_event", &err)()
	g, err := p.eventGraph(ctx, evts)
	if err != nil {
		return nil, err
	}
	p.store(g)
	p.log.Info("event graph built", zap.Int("nodes", g.NodeCount()), zap.Int("edges", g.EdgeCount()))
	return g, nil
}

// PatternSimilarity is the Jaccard index of the two event-type sets.
func PatternSimilarity(a, b *model.EventPattern) float64 {
	return common.Jaccard(a.EventSequence, b.EventSequence)
}

func (p *Processor) patternGraph(ctx context.Context, pts []model.EventPattern) (*Graph, error) {
	if pts == nil {
		var err error
		pts, err = p.patterns.QueryPatterns(ctx, model.PatternQuery{Limit: patternGraphLimit})
		if err != nil {
			return nil, err
		}
	}
	g := New(PatternGraph, false)
	for i := range pts {
		g.AddNode(patternNode(&pts[i]))
	}
	for i := range pts {
		for j := i + 1; j < len(pts); j++ {
			s := PatternSimilarity(&pts[i], &pts[j])
			if s >= p.cfg.SimilarityThreshold {
				g.AddEdge(Edge{Source: pts[i].ID, Target: pts[j].ID, Kind: EdgeSimilarity, Confidence: s, Weight: s})
			}
		}
	}
	return g, nil
}

// BuildPatternGraph builds the undirected pattern graph; patterns whose
// sequences overlap by at least the similarity threshold are linked. A nil
// pts loads up to 1000 stored patterns.
func (p *Processor) BuildPatternGraph(ctx context.Context, pts []model.EventPattern) (_ *Graph, err error) {
	defer logging.Observe(p.log, "graph.build_pattern", &err)()
	g, err := p.patternGraph(ctx, pts)
	if err != nil {
		return nil, err
	}
	p.store(g)
	p.log.Info("pattern graph built", zap.Int("nodes", g.NodeCount()), zap.Int("edges", g.EdgeCount()))
	return g, nil
}

// BuildUnifiedGraph merges the event and pattern graphs into one directed
// graph and adds an event->pattern edge for every mapping.
func (p *Processor) BuildUnifiedGraph(ctx context.Context, evts []model.Event, pts []model.EventPattern) (_ *Graph, err error) {
	defer logging.Observe(p.log, "graph.build_unified", &err)()

	eg, err := p.eventGraph(ctx, evts)
	if err != nil {
		return nil, err
	}
	pg, err := p.patternGraph(ctx, pts)
	if err != nil {
		return nil, err
	}
	p.store(eg)
	p.store(pg)

	g := New(UnifiedGraph, true)
	for _, n := range eg.Nodes() {
		g.AddNode(n)
	}
	for _, n := range pg.Nodes() {
		g.AddNode(n)
	}
	for _, e := range eg.Edges() {
		g.AddEdge(e)
	}
	for _, e := range pg.Edges() {
		g.AddEdge(e)
	}
	if p.mappings != nil {
		for _, m := range p.mappings.AllMappings() {
			g.AddEdge(Edge{
				Source:     m.EventID,
				Target:     m.PatternID,
				Kind:       EdgeMapping,
				Relation:   m.Type.String(),
				Confidence: m.Confidence,
				Weight:     m.Score,
			})
		}
	}
	p.store(g)
	p.log.Info("unified graph built", zap.Int("nodes", g.NodeCount()), zap.Int("edges", g.EdgeCount()))
	return g, nil
}

// cached memoises an analysis result until the next build or the cache TTL.
func cached[T any](p *Processor, key string, compute func() (T, error)) (T, error) {
	if v, ok := p.results.Get(key); ok {
		if t, ok := v.(T); ok {
			return t, nil
		}
	}
	t, err := compute()
	if err != nil {
		return t, err
	}
	p.results.Set(key, t)
	return t, nil
}

// ClearCache drops memoised analyses.
func (p *Processor) ClearCache() {
	p.results.Clear()
}
