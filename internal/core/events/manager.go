// Package events manages the concrete event layer: CRUD over the store of
// record, four TTL caches, similarity search and time-based analytics.
package events

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/agenthands/eventgraph/internal/cache"
	"github.com/agenthands/eventgraph/internal/config"
	"github.com/agenthands/eventgraph/internal/core/model"
	"github.com/agenthands/eventgraph/internal/errs"
	"github.com/agenthands/eventgraph/internal/logging"
	"github.com/agenthands/eventgraph/internal/storage"
)

const (
	defaultQueryLimit = 100
	// analyticsLimit bounds the events scanned by aggregation methods.
	analyticsLimit = 10000
	aggregationTTL = 5 * time.Minute
)

type aggregation struct {
	counts     map[string]int
	computedAt time.Time
}

type Manager struct {
	store storage.Store
	log   *zap.Logger
	cfg   config.EventConfig
	now   func() time.Time

	events       *cache.TTL[string, model.Event]
	queries      *cache.TTL[string, []model.Event]
	similarities *cache.TTL[string, []model.ScoredEvent]
	aggregations *cache.TTL[string, aggregation]

	queryCount   atomic.Int64
	queryNanos   atomic.Int64
	storeQueries atomic.Int64
}

type Option func(*options)

type options struct {
	now func() time.Time
	reg prometheus.Registerer
}

// WithClock replaces time.Now for the manager and its caches.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithMetrics exports cache activity to reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) { o.reg = reg }
}

func NewManager(store storage.Store, cfg config.EventConfig, logger *zap.Logger, opts ...Option) *Manager {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	logger = logging.OrNop(logger).Named("events")

	cacheOpts := func(name string) []cache.Option {
		co := []cache.Option{cache.WithClock(o.now)}
		if o.reg != nil {
			m, err := cache.NewMetrics(o.reg, name)
			if err != nil {
				logger.Warn("cache metrics disabled", zap.String("cache", name), zap.Error(err))
			} else {
				co = append(co, cache.WithMetrics(m))
			}
		}
		return co
	}

	ttl := cfg.CacheTTL()
	return &Manager{
		store:        store,
		log:          logger,
		cfg:          cfg,
		now:          o.now,
		events:       cache.New[string, model.Event](cfg.CacheSize, ttl, cacheOpts("events")...),
		queries:      cache.New[string, []model.Event](cfg.CacheSize, ttl, cacheOpts("event_queries")...),
		similarities: cache.New[string, []model.ScoredEvent](cfg.CacheSize, ttl, cacheOpts("event_similarity")...),
		aggregations: cache.New[string, aggregation](cfg.CacheSize, ttl, cacheOpts("event_aggregation")...),
	}
}

// invalidateDerived drops every cached result computed from many events.
func (m *Manager) invalidateDerived() {
	m.queries.Clear()
	m.similarities.Clear()
	m.aggregations.Clear()
}

func (m *Manager) prepare(e *model.Event) {
	now := m.now()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
}

// AddEvent validates and stores e, assigning an id when it has none.
func (m *Manager) AddEvent(ctx context.Context, e *model.Event) (err error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	defer logging.Observe(m.log, "events.add", &err, zap.String("event_id", e.ID))()

	if problems := model.ValidateEvent(e); len(problems) > 0 {
		return errs.Validation("events.add", problems)
	}
	m.prepare(e)
	if err := m.store.StoreEvent(ctx, e); err != nil {
		return err
	}
	m.events.Set(e.ID, model.CloneEvent(*e))
	m.invalidateDerived()
	return nil
}

// BatchAddEvents stores every valid event, using the store's bulk write when
// available. Invalid events fail individually.
func (m *Manager) BatchAddEvents(ctx context.Context, events []model.Event) errs.BatchResult {
	result := make(errs.BatchResult, len(events))
	valid := make([]model.Event, 0, len(events))
	for i := range events {
		e := &events[i]
		if problems := model.ValidateEvent(e); len(problems) > 0 {
			m.prepare(e)
			result[e.ID] = errs.Validation("events.batch_add", problems)
			continue
		}
		m.prepare(e)
		valid = append(valid, *e)
	}

	if bs, ok := m.store.(storage.BatchStore); ok && len(valid) > 0 {
		err := bs.StoreEventsBatch(ctx, valid)
		for _, e := range valid {
			result[e.ID] = err
		}
	} else {
		for i := range valid {
			result[valid[i].ID] = m.store.StoreEvent(ctx, &valid[i])
		}
	}

	for _, e := range valid {
		if result[e.ID] == nil {
			m.events.Set(e.ID, model.CloneEvent(e))
		}
	}
	m.invalidateDerived()
	m.logBatch("events.batch_add", result)
	return result
}

func (m *Manager) logBatch(op string, result errs.BatchResult) {
	failed := result.Failed()
	if len(failed) == 0 {
		m.log.Debug(op, zap.Int("items", len(result)))
		return
	}
	m.log.Warn(op, zap.Int("items", len(result)), zap.Int("failed", len(failed)), zap.Error(result.Err()))
}

// GetEvent returns the event with id, or nil when it does not exist.
func (m *Manager) GetEvent(ctx context.Context, id string) (_ *model.Event, err error) {
	defer logging.Observe(m.log, "events.get", &err, zap.String("event_id", id))()

	if e, ok := m.events.Get(id); ok {
		out := model.CloneEvent(e)
		return &out, nil
	}
	e, err := m.store.GetEvent(ctx, id)
	if err != nil || e == nil {
		return nil, err
	}
	m.events.Set(id, model.CloneEvent(*e))
	return e, nil
}

// BatchGetEvents returns the events found for ids, keyed by id.
func (m *Manager) BatchGetEvents(ctx context.Context, ids []string) (_ map[string]model.Event, err error) {
	defer logging.Observe(m.log, "events.batch_get", &err, zap.Int("ids", len(ids)))()

	out := make(map[string]model.Event, len(ids))
	var missing []string
	for _, id := range ids {
		if e, ok := m.events.Get(id); ok {
			out[id] = model.CloneEvent(e)
		} else {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	var fetched []model.Event
	if bs, ok := m.store.(storage.BatchStore); ok {
		if fetched, err = bs.GetEventsBatch(ctx, missing); err != nil {
			return nil, err
		}
	} else {
		for _, id := range missing {
			e, err := m.store.GetEvent(ctx, id)
			if err != nil {
				return nil, err
			}
			if e != nil {
				fetched = append(fetched, *e)
			}
		}
	}
	for _, e := range fetched {
		m.events.Set(e.ID, model.CloneEvent(e))
		out[e.ID] = e
	}
	return out, nil
}

func queryKey(q model.EventQuery) string {
	q.NoCache = false
	b, err := json.Marshal(q)
	if err != nil {
		return ""
	}
	return string(b)
}

// QueryEvents returns events matching q. q.Limit defaults to 100.
func (m *Manager) QueryEvents(ctx context.Context, q model.EventQuery) (_ []model.Event, err error) {
	defer logging.Observe(m.log, "events.query", &err)()

	start := m.now()
	defer func() {
		m.queryCount.Add(1)
		m.queryNanos.Add(int64(m.now().Sub(start)))
	}()

	if q.Limit <= 0 {
		q.Limit = defaultQueryLimit
	}
	key := queryKey(q)
	if !q.NoCache && key != "" {
		if cached, ok := m.queries.Get(key); ok {
			return cloneEvents(cached), nil
		}
	}

	m.storeQueries.Add(1)
	found, err := m.store.QueryEvents(ctx, q)
	if err != nil {
		return nil, err
	}
	for _, e := range found {
		m.events.Set(e.ID, model.CloneEvent(e))
	}
	if key != "" {
		m.queries.Set(key, cloneEvents(found))
	}
	return found, nil
}

func cloneEvents(in []model.Event) []model.Event {
	out := make([]model.Event, len(in))
	for i, e := range in {
		out[i] = model.CloneEvent(e)
	}
	return out
}

// UpdateEvent replaces a stored event. A missing id yields a not_found error.
func (m *Manager) UpdateEvent(ctx context.Context, e *model.Event) (err error) {
	defer logging.Observe(m.log, "events.update", &err, zap.String("event_id", e.ID))()

	if e.ID == "" {
		return errs.InvalidArgument("events.update", "event id is required")
	}
	if problems := model.ValidateEvent(e); len(problems) > 0 {
		return errs.Validation("events.update", problems)
	}
	e.UpdatedAt = m.now()
	if err := m.store.UpdateEvent(ctx, e); err != nil {
		m.events.Delete(e.ID)
		return err
	}
	m.events.Set(e.ID, model.CloneEvent(*e))
	m.invalidateDerived()
	return nil
}

func (m *Manager) BatchUpdateEvents(ctx context.Context, events []model.Event) errs.BatchResult {
	result := make(errs.BatchResult, len(events))
	for i := range events {
		result[events[i].ID] = m.UpdateEvent(ctx, &events[i])
	}
	m.logBatch("events.batch_update", result)
	return result
}

// DeleteEvent removes the event and reports whether it existed.
func (m *Manager) DeleteEvent(ctx context.Context, id string) (_ bool, err error) {
	defer logging.Observe(m.log, "events.delete", &err, zap.String("event_id", id))()

	deleted, err := m.store.DeleteEvent(ctx, id)
	if err != nil {
		return false, err
	}
	m.events.Delete(id)
	m.invalidateDerived()
	return deleted, nil
}

// BatchDeleteEvents reports a not_found error for ids that did not exist.
func (m *Manager) BatchDeleteEvents(ctx context.Context, ids []string) errs.BatchResult {
	result := make(errs.BatchResult, len(ids))
	for _, id := range ids {
		deleted, err := m.DeleteEvent(ctx, id)
		if err == nil && !deleted {
			err = errs.NotFound("events.batch_delete", "event", id)
		}
		result[id] = err
	}
	m.logBatch("events.batch_delete", result)
	return result
}

// GetEventRelations returns the relations touching id.
func (m *Manager) GetEventRelations(ctx context.Context, id string) (_ []model.EventRelation, err error) {
	defer logging.Observe(m.log, "events.relations", &err, zap.String("event_id", id))()
	return m.store.QueryEventRelations(ctx, []string{id}, 0)
}

// QueryEventRelations returns relations touching any of ids, or all
// relations when ids is empty.
func (m *Manager) QueryEventRelations(ctx context.Context, ids []string, limit int) (_ []model.EventRelation, err error) {
	defer logging.Observe(m.log, "events.query_relations", &err, zap.Int("ids", len(ids)))()
	return m.store.QueryEventRelations(ctx, ids, limit)
}

// CreateEventRelation validates and stores r, assigning an id when it has none.
func (m *Manager) CreateEventRelation(ctx context.Context, r *model.EventRelation) (err error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	defer logging.Observe(m.log, "events.create_relation", &err, zap.String("relation_id", r.ID))()

	if problems := model.ValidateRelation(r); len(problems) > 0 {
		return errs.Validation("events.create_relation", problems)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = m.now()
	}
	return m.store.CreateEventRelation(ctx, r)
}

func (m *Manager) ClearCache() {
	m.events.Clear()
	m.invalidateDerived()
	m.log.Info("event caches cleared")
}

// OptimizeCache purges expired entries from all four caches.
func (m *Manager) OptimizeCache() int {
	removed := m.events.Sweep() + m.queries.Sweep() + m.similarities.Sweep() + m.aggregations.Sweep()
	m.log.Debug("event caches swept", zap.Int("removed", removed))
	return removed
}

type PerformanceStats struct {
	Caches          map[string]cache.Stats `json:"caches"`
	Queries         int64                  `json:"queries"`
	StoreQueries    int64                  `json:"store_queries"`
	AvgQueryMillis  float64                `json:"avg_query_ms"`
	QueryCacheRatio float64                `json:"query_cache_hit_rate"`
}

func (m *Manager) GetPerformanceStats() PerformanceStats {
	ps := PerformanceStats{
		Caches: map[string]cache.Stats{
			"events":      m.events.Stats(),
			"queries":     m.queries.Stats(),
			"similarity":  m.similarities.Stats(),
			"aggregation": m.aggregations.Stats(),
		},
		Queries:      m.queryCount.Load(),
		StoreQueries: m.storeQueries.Load(),
	}
	if ps.Queries > 0 {
		ps.AvgQueryMillis = float64(m.queryNanos.Load()) / float64(ps.Queries) / float64(time.Millisecond)
		ps.QueryCacheRatio = ps.Caches["queries"].HitRate
	}
	return ps
}
