// Package architecture wires the event layer, pattern layer, mapper and
// graph processor together and applies the ingestion policy: learning
// patterns from clusters of similar events and mapping new events onto the
// patterns they instantiate.
package architecture

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/agenthands/eventgraph/internal/config"
	"github.com/agenthands/eventgraph/internal/core/events"
	"github.com/agenthands/eventgraph/internal/core/graph"
	"github.com/agenthands/eventgraph/internal/core/mapper"
	"github.com/agenthands/eventgraph/internal/core/model"
	"github.com/agenthands/eventgraph/internal/core/patterns"
	"github.com/agenthands/eventgraph/internal/core/summary"
	"github.com/agenthands/eventgraph/internal/llm"
	"github.com/agenthands/eventgraph/internal/logging"
	"github.com/agenthands/eventgraph/internal/storage"
	"github.com/agenthands/eventgraph/internal/vector"
)

const (
	learningSimilarity  = 0.8
	learningMinSimilar  = 2
	learningClusterSize = 5
	learningMinSupport  = 2
)

type Architecture struct {
	Events   *events.Manager
	Patterns *patterns.Manager
	Mapper   *mapper.Mapper
	Graph    *graph.Processor

	store     storage.Store
	describer *summary.Describer
	closers   []func() error
	cfg       config.ArchitectureConfig
	log       *zap.Logger
}

type options struct {
	now          func() time.Time
	reg          prometheus.Registerer
	index        vector.Index
	reranker     llm.RerankerClient
	mappingStore mapper.MappingStore
	describer    *summary.Describer
	closers      []func() error
}

type Option func(*options)

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithMetrics registers cache metrics of every layer with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) { o.reg = reg }
}

// WithVectorIndex mirrors patterns into idx.
func WithVectorIndex(idx vector.Index) Option {
	return func(o *options) { o.index = idx }
}

func WithReranker(r llm.RerankerClient) Option {
	return func(o *options) { o.reranker = r }
}

// WithMappingStore persists mappings to s. When s has a Close method it is
// closed by Close.
func WithMappingStore(s mapper.MappingStore) Option {
	return func(o *options) {
		o.mappingStore = s
		if c, ok := s.(interface{ Close() error }); ok {
			o.closers = append(o.closers, c.Close)
		}
	}
}

// WithDescriber names learnt patterns before they are stored.
func WithDescriber(d *summary.Describer) Option {
	return func(o *options) { o.describer = d }
}

// New builds every layer over store and loads persisted mappings.
func New(ctx context.Context, store storage.Store, cfg *config.Config, logger *zap.Logger, opts ...Option) (*Architecture, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	logger = logging.OrNop(logger)

	evOpts := []events.Option{events.WithClock(o.now)}
	ptOpts := []patterns.Option{patterns.WithClock(o.now)}
	mapOpts := []mapper.Option{mapper.WithClock(o.now)}
	grOpts := []graph.Option{graph.WithClock(o.now)}
	if o.reg != nil {
		evOpts = append(evOpts, events.WithMetrics(o.reg))
		ptOpts = append(ptOpts, patterns.WithMetrics(o.reg))
		grOpts = append(grOpts, graph.WithMetrics(o.reg))
	}
	if o.index != nil {
		ptOpts = append(ptOpts, patterns.WithVectorIndex(o.index))
	}
	if o.reranker != nil {
		ptOpts = append(ptOpts, patterns.WithReranker(o.reranker))
	}
	if o.mappingStore != nil {
		mapOpts = append(mapOpts, mapper.WithStore(o.mappingStore))
	}

	a := &Architecture{
		Events:    events.NewManager(store, cfg.Events, logger, evOpts...),
		Patterns:  patterns.NewManager(store, cfg.Patterns, logger, ptOpts...),
		Mapper:    mapper.New(cfg.Mapping, logger, mapOpts...),
		store:     store,
		describer: o.describer,
		closers:   o.closers,
		cfg:       cfg.Architecture,
		log:       logger.Named("architecture"),
	}
	a.Graph = graph.NewProcessor(a.Events, a.Patterns, a.Mapper, cfg.Graph, logger, grOpts...)

	if _, err := a.Mapper.Load(ctx); err != nil {
		return nil, err
	}
	if _, err := a.Patterns.RebuildIndex(ctx); err != nil {
		return nil, err
	}
	a.log.Info("dual layer architecture ready",
		zap.Bool("pattern_learning", a.cfg.EnablePatternLearning),
		zap.Bool("auto_mapping", a.cfg.AutoMapping),
		zap.Bool("reasoning", a.cfg.EnableReasoning))
	return a, nil
}

// AddResult reports what ingesting one event produced besides storing it.
type AddResult struct {
	EventID         string   `json:"event_id"`
	LearnedPatterns []string `json:"learned_patterns,omitempty"`
	Mappings        []string `json:"mappings,omitempty"`
}

// AddEvent stores e and then, per configuration, learns patterns from the
// events most similar to it and maps it onto matching patterns. learn
// overrides the configured learning flag when non-nil. Only the store write
// decides success; learning and mapping failures are logged and skipped.
func (a *Architecture) AddEvent(ctx context.Context, e *model.Event, learn *bool) (_ *AddResult, err error) {
	defer logging.Observe(a.log, "architecture.add_event", &err)()

	if err := a.Events.AddEvent(ctx, e); err != nil {
		return nil, err
	}
	res := &AddResult{EventID: e.ID}

	enabled := a.cfg.EnablePatternLearning
	if learn != nil {
		enabled = *learn
	}
	if enabled {
		ids, err := a.learnFrom(ctx, e)
		if err != nil {
			a.log.Warn("pattern learning skipped", zap.String("event_id", e.ID), zap.Error(err))
		}
		res.LearnedPatterns = ids
	}

	if a.cfg.AutoMapping {
		keys, err := a.autoMap(ctx, e)
		if err != nil {
			a.log.Warn("auto mapping skipped", zap.String("event_id", e.ID), zap.Error(err))
		}
		res.Mappings = keys
	}
	return res, nil
}

// learnFrom mines the cluster of e and up to four events similar to it, when
// at least two are found, and stores the patterns no longer than the
// configured maximum depth.
func (a *Architecture) learnFrom(ctx context.Context, e *model.Event) ([]string, error) {
	similar, err := a.Events.FindSimilarEvents(ctx, e, learningSimilarity, learningClusterSize-1)
	if err != nil {
		return nil, err
	}
	if len(similar) < learningMinSimilar {
		return nil, nil
	}
	cluster := make([]model.Event, 0, len(similar)+1)
	cluster = append(cluster, *e)
	for _, s := range similar {
		cluster = append(cluster, s.Event)
	}

	var ids []string
	var failed []error
	for _, p := range a.Patterns.ExtractPatternsFromEvents(cluster, learningMinSupport) {
		if a.cfg.MaxPatternDepth > 0 && len(p.EventSequence) > a.cfg.MaxPatternDepth {
			continue
		}
		if a.describer != nil {
			a.describer.DescribePattern(ctx, &p, cluster)
		}
		if err := a.Patterns.AddPattern(ctx, &p); err != nil {
			failed = append(failed, err)
			continue
		}
		ids = append(ids, p.ID)
	}
	if len(ids) > 0 {
		a.log.Info("patterns learnt", zap.String("event_id", e.ID), zap.Strings("pattern_ids", ids))
	}
	return ids, errors.Join(failed...)
}

// autoMap records an auto mapping for every stored pattern whose match
// score against e reaches the pattern similarity threshold.
func (a *Architecture) autoMap(ctx context.Context, e *model.Event) ([]string, error) {
	threshold := a.cfg.PatternSimilarityThreshold
	matches, err := a.Patterns.FindMatchingPatterns(ctx, e, threshold)
	if err != nil {
		return nil, err
	}
	created, err := a.Mapper.RecordMatches(ctx, e, matches, threshold)
	keys := make([]string, 0, len(created))
	for _, m := range created {
		keys = append(keys, m.Key())
	}
	return keys, err
}

// AddPattern stores p in the pattern layer.
func (a *Architecture) AddPattern(ctx context.Context, p *model.EventPattern) error {
	return a.Patterns.AddPattern(ctx, p)
}

func (a *Architecture) QueryEvents(ctx context.Context, q model.EventQuery) ([]model.Event, error) {
	return a.Events.QueryEvents(ctx, q)
}

func (a *Architecture) QueryPatterns(ctx context.Context, q model.PatternQuery) ([]model.EventPattern, error) {
	return a.Patterns.QueryPatterns(ctx, q)
}

// FindSimilarEvents returns up to limit stored events similar to e.
func (a *Architecture) FindSimilarEvents(ctx context.Context, e *model.Event, threshold float64, limit int) ([]model.ScoredEvent, error) {
	return a.Events.FindSimilarEvents(ctx, e, threshold, limit)
}

// FindMatchingPatterns scores stored patterns against e. threshold <= 0 uses
// the architecture's pattern similarity threshold.
func (a *Architecture) FindMatchingPatterns(ctx context.Context, e *model.Event, threshold float64) ([]model.PatternMatch, error) {
	if threshold <= 0 {
		threshold = a.cfg.PatternSimilarityThreshold
	}
	return a.Patterns.FindMatchingPatterns(ctx, e, threshold)
}

// PredictNextEvents returns nothing when reasoning is disabled.
func (a *Architecture) PredictNextEvents(ctx context.Context, eventID string, windowDays int) ([]graph.Prediction, error) {
	if !a.cfg.EnableReasoning {
		return nil, nil
	}
	return a.Graph.PredictNextEvents(ctx, eventID, windowDays)
}

func (a *Architecture) AnalyzeEventChain(ctx context.Context, evts []model.Event) (*graph.ChainReport, error) {
	return a.Graph.AnalyzeEventChain(ctx, evts)
}

// ExtractEventPatterns mines evts without storing the result.
func (a *Architecture) ExtractEventPatterns(evts []model.Event, minSupport int) []model.EventPattern {
	return a.Patterns.ExtractPatternsFromEvents(evts, minSupport)
}

type Statistics struct {
	EventLayer   *events.Statistics        `json:"event_layer"`
	PatternLayer *patterns.Statistics      `json:"pattern_layer"`
	Mapping      mapper.Statistics         `json:"layer_mapping"`
	TotalNodes   int                       `json:"total_nodes"`
	Config       config.ArchitectureConfig `json:"architecture_config"`
}

func (a *Architecture) GetArchitectureStatistics(ctx context.Context) (_ *Statistics, err error) {
	defer logging.Observe(a.log, "architecture.statistics", &err)()

	ev, err := a.Events.GetStatistics(ctx)
	if err != nil {
		return nil, err
	}
	pt, err := a.Patterns.GetStatistics(ctx)
	if err != nil {
		return nil, err
	}
	stats := &Statistics{
		EventLayer:   ev,
		PatternLayer: pt,
		Mapping:      a.Mapper.GetMappingStatistics(),
		TotalNodes:   pt.TotalPatterns,
		Config:       a.cfg,
	}
	if ev.Storage != nil {
		stats.TotalNodes += ev.Storage.TotalEvents
	}
	return stats, nil
}

// Ping checks the graph store when it supports a connectivity check.
func (a *Architecture) Ping(ctx context.Context) error {
	if p, ok := a.store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close releases the mapping store and the graph store.
func (a *Architecture) Close(ctx context.Context) error {
	var errList []error
	for _, c := range a.closers {
		errList = append(errList, c())
	}
	errList = append(errList, a.store.Close(ctx))
	a.log.Info("dual layer architecture closed")
	return errors.Join(errList...)
}
