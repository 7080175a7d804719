// Package patterns manages the abstract pattern layer: a graph store of
// record mirrored into an optional vector index, plus mining, matching and
// maintenance of recurring event-type structures.
package patterns

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agenthands/eventgraph/internal/cache"
	"github.com/agenthands/eventgraph/internal/config"
	"github.com/agenthands/eventgraph/internal/core/model"
	"github.com/agenthands/eventgraph/internal/errs"
	"github.com/agenthands/eventgraph/internal/llm"
	"github.com/agenthands/eventgraph/internal/logging"
	"github.com/agenthands/eventgraph/internal/storage"
	"github.com/agenthands/eventgraph/internal/vector"
)

const defaultQueryLimit = 100

// queryEntry remembers the type filter of a cached query so writes can
// invalidate only the affected entries.
type queryEntry struct {
	typ      *model.PatternType
	patterns []model.EventPattern
}

type Manager struct {
	store    storage.Store
	index    vector.Index
	reranker llm.RerankerClient
	log      *zap.Logger
	cfg      config.PatternConfig
	now      func() time.Time
	reg      prometheus.Registerer

	patterns *cache.TTL[string, model.EventPattern]
	queries  *cache.TTL[string, queryEntry]

	mu sync.RWMutex
	// byType maps an event type to the ids of patterns whose sequence
	// contains it.
	byType map[model.EventType]map[string]struct{}
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithVectorIndex mirrors every pattern into idx and enables semantic search.
func WithVectorIndex(idx vector.Index) Option {
	return func(m *Manager) { m.index = idx }
}

// WithReranker re-orders semantic search results.
func WithReranker(r llm.RerankerClient) Option {
	return func(m *Manager) { m.reranker = r }
}

func WithMetrics(reg prometheus.Registerer) Option {
	return func(m *Manager) { m.reg = reg }
}

func NewManager(store storage.Store, cfg config.PatternConfig, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		log:    logging.OrNop(logger).Named("patterns"),
		cfg:    cfg,
		now:    time.Now,
		byType: make(map[model.EventType]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	m.patterns = cache.New[string, model.EventPattern](cfg.CacheSize, ttl, m.cacheOptions("patterns")...)
	m.queries = cache.New[string, queryEntry](cfg.CacheSize, ttl, m.cacheOptions("pattern_queries")...)
	return m
}

func (m *Manager) cacheOptions(name string) []cache.Option {
	opts := []cache.Option{cache.WithClock(m.now)}
	if m.reg == nil {
		return opts
	}
	metrics, err := cache.NewMetrics(m.reg, name)
	if err != nil {
		m.log.Warn("cache metrics disabled", zap.String("cache", name), zap.Error(err))
		return opts
	}
	return append(opts, cache.WithMetrics(metrics))
}

// VectorEnabled reports whether patterns are mirrored into a vector index.
func (m *Manager) VectorEnabled() bool {
	return m.index != nil
}

func (m *Manager) register(p *model.EventPattern) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range p.EventSequence {
		bucket, ok := m.byType[t]
		if !ok {
			bucket = make(map[string]struct{})
			m.byType[t] = bucket
		}
		bucket[p.ID] = struct{}{}
	}
}

// unregister removes id from every bucket, not only those of its current
// sequence, so stale entries cannot survive an update.
func (m *Manager) unregister(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for t, bucket := range m.byType {
		delete(bucket, id)
		if len(bucket) == 0 {
			delete(m.byType, t)
		}
	}
}

// indexed returns the pattern ids registered for t and whether a bucket
// exists at all.
func (m *Manager) indexed(t model.EventType) ([]string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bucket, ok := m.byType[t]
	if !ok {
		return nil, false
	}
	ids := make([]string, 0, len(bucket))
	for id := range bucket {
		ids = append(ids, id)
	}
	return ids, true
}

func (m *Manager) invalidateQueries(types ...model.PatternType) {
	m.queries.DeleteFunc(func(_ string, e queryEntry) bool {
		if e.typ == nil {
			return true
		}
		for _, t := range types {
			if *e.typ == t {
				return true
			}
		}
		return false
	})
}

// RebuildIndex registers every stored pattern in the event-type index.
func (m *Manager) RebuildIndex(ctx context.Context) (_ int, err error) {
	defer logging.Observe(m.log, "patterns.rebuild_index", &err)()

	all, err := m.store.QueryEventPatterns(ctx, model.PatternQuery{})
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	m.byType = make(map[model.EventType]map[string]struct{})
	m.mu.Unlock()
	for i := range all {
		m.register(&all[i])
	}
	return len(all), nil
}

// document renders p for the vector index.
func document(p *model.EventPattern) vector.Document {
	seq, _ := json.Marshal(p.EventSequence)
	cond, _ := json.Marshal(p.Conditions)
	return vector.Document{
		ID:      p.ID,
		Content: p.CanonicalText(),
		Metadata: map[string]string{
			"id":             p.ID,
			"pattern_type":   p.Type.String(),
			"frequency":      strconv.Itoa(p.Frequency),
			"support":        strconv.FormatFloat(p.Support, 'f', -1, 64),
			"confidence":     strconv.FormatFloat(p.Confidence, 'f', -1, 64),
			"domain":         p.Domain,
			"event_sequence": string(seq),
			"conditions":     string(cond),
		},
	}
}

func (m *Manager) upsertVector(ctx context.Context, p *model.EventPattern) error {
	doc := document(p)
	emb, err := m.index.Embed(ctx, doc.Content)
	if err != nil {
		return err
	}
	doc.Embedding = emb
	return m.index.Upsert(ctx, []vector.Document{doc})
}

// AddPattern stores p in the graph store and, when configured, the vector
// index. An existing pattern with the same id is replaced. If the vector
// write fails the graph write is undone, restoring the replaced version when
// there was one, and a partial_write error reports whether that succeeded.
func (m *Manager) AddPattern(ctx context.Context, p *model.EventPattern) (err error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	defer logging.Observe(m.log, "patterns.add", &err, zap.String("pattern_id", p.ID))()

	if problems := model.ValidatePattern(p); len(problems) > 0 {
		return errs.Validation("patterns.add", problems)
	}
	now := m.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	prev, err := m.store.GetEventPattern(ctx, p.ID)
	if err != nil {
		return err
	}

	if err := m.store.StoreEventPattern(ctx, p); err != nil {
		return err
	}
	if m.index != nil {
		if verr := m.upsertVector(ctx, p); verr != nil {
			return m.compensateAdd(ctx, p, prev, verr)
		}
	}

	m.patterns.Set(p.ID, model.ClonePattern(*p))
	m.unregister(p.ID)
	m.register(p)
	m.invalidateQueries(p.Type)
	if prev != nil && prev.Type != p.Type {
		m.invalidateQueries(prev.Type)
	}
	return nil
}

// compensateAdd undoes the graph write of p after the vector write failed:
// prev, when set, is written back, otherwise p is deleted.
func (m *Manager) compensateAdd(ctx context.Context, p, prev *model.EventPattern, verr error) error {
	m.patterns.Delete(p.ID)
	m.unregister(p.ID)
	m.invalidateQueries(p.Type)

	var cerr error
	if prev == nil {
		_, cerr = m.store.DeletePattern(ctx, p.ID)
	} else {
		cerr = m.store.StoreEventPattern(ctx, prev)
		if cerr == nil {
			m.patterns.Set(prev.ID, model.ClonePattern(*prev))
			m.register(prev)
			m.invalidateQueries(prev.Type)
		}
	}
	if cerr != nil {
		m.log.Error("compensating write failed", zap.String("pattern_id", p.ID),
			zap.Bool("restore", prev != nil), zap.Error(cerr))
	}
	return errs.PartialWrite("patterns.add", cerr == nil, verr)
}

// BatchAddPatterns adds each pattern independently on a bounded worker pool.
// Ids given more than once fail without being written.
func (m *Manager) BatchAddPatterns(ctx context.Context, patterns []model.EventPattern) errs.BatchResult {
	ids := make([]string, len(patterns))
	for i := range patterns {
		if patterns[i].ID == "" {
			patterns[i].ID = uuid.NewString()
		}
		ids[i] = patterns[i].ID
	}
	result := m.fanOut("patterns.batch_add", ids, func(i int) error {
		return m.AddPattern(ctx, &patterns[i])
	})
	m.logBatch("patterns.batch_add", result)
	return result
}

// fanOut runs fn for every index whose id is unique within ids. Duplicated
// ids get an invalid_argument outcome and fn is never called for them.
func (m *Manager) fanOut(op string, ids []string, fn func(i int) error) errs.BatchResult {
	workers := m.cfg.BatchWorkers
	if workers < 1 {
		workers = 1
	}
	seen := make(map[string]int, len(ids))
	for _, id := range ids {
		seen[id]++
	}
	var (
		mu     sync.Mutex
		result = make(errs.BatchResult, len(seen))
		g      errgroup.Group
	)
	g.SetLimit(workers)
	for i, id := range ids {
		if seen[id] > 1 {
			mu.Lock()
			result[id] = errs.InvalidArgument(op, "pattern id %q appears %d times in the batch", id, seen[id])
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			err := fn(i)
			mu.Lock()
			result[id] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
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

// GetPattern returns the pattern with id, or nil when it does not exist.
func (m *Manager) GetPattern(ctx context.Context, id string) (_ *model.EventPattern, err error) {
	defer logging.Observe(m.log, "patterns.get", &err, zap.String("pattern_id", id))()

	if p, ok := m.patterns.Get(id); ok {
		out := model.ClonePattern(p)
		return &out, nil
	}
	p, err := m.store.GetEventPattern(ctx, id)
	if err != nil || p == nil {
		return nil, err
	}
	m.patterns.Set(id, model.ClonePattern(*p))
	m.register(p)
	return p, nil
}

func (m *Manager) BatchGetPatterns(ctx context.Context, ids []string) (map[string]model.EventPattern, error) {
	out := make(map[string]model.EventPattern, len(ids))
	for _, id := range ids {
		p, err := m.GetPattern(ctx, id)
		if err != nil {
			return nil, err
		}
		if p != nil {
			out[id] = *p
		}
	}
	return out, nil
}

func patternQueryKey(q model.PatternQuery) string {
	q.NoCache = false
	b, err := json.Marshal(q)
	if err != nil {
		return ""
	}
	return string(b)
}

// QueryPatterns returns patterns matching q, highest support first. q.Limit
// defaults to 100.
func (m *Manager) QueryPatterns(ctx context.Context, q model.PatternQuery) (_ []model.EventPattern, err error) {
	defer logging.Observe(m.log, "patterns.query", &err)()

	if q.Limit <= 0 {
		q.Limit = defaultQueryLimit
	}
	key := patternQueryKey(q)
	if !q.NoCache && key != "" {
		if cached, ok := m.queries.Get(key); ok {
			return clonePatterns(cached.patterns), nil
		}
	}

	found, err := m.store.QueryEventPatterns(ctx, q)
	if err != nil {
		return nil, err
	}
	for i := range found {
		m.patterns.Set(found[i].ID, model.ClonePattern(found[i]))
		m.register(&found[i])
	}
	if key != "" {
		m.queries.Set(key, queryEntry{typ: q.Type, patterns: clonePatterns(found)})
	}
	return found, nil
}

func clonePatterns(in []model.EventPattern) []model.EventPattern {
	out := make([]model.EventPattern, len(in))
	for i, p := range in {
		out[i] = model.ClonePattern(p)
	}
	return out
}

// UpdatePattern replaces a stored pattern. A failed vector write restores
// the previous graph version.
func (m *Manager) UpdatePattern(ctx context.Context, p *model.EventPattern) (err error) {
	defer logging.Observe(m.log, "patterns.update", &err, zap.String("pattern_id", p.ID))()

	if p.ID == "" {
		return errs.InvalidArgument("patterns.update", "pattern id is required")
	}
	if problems := model.ValidatePattern(p); len(problems) > 0 {
		return errs.Validation("patterns.update", problems)
	}
	prev, err := m.store.GetEventPattern(ctx, p.ID)
	if err != nil {
		return err
	}
	if prev == nil {
		return errs.NotFound("patterns.update", "pattern", p.ID)
	}
	p.CreatedAt = prev.CreatedAt
	p.UpdatedAt = m.now()

	if err := m.store.UpdatePattern(ctx, p); err != nil {
		return err
	}
	if m.index != nil {
		if verr := m.upsertVector(ctx, p); verr != nil {
			rerr := m.store.UpdatePattern(ctx, prev)
			if rerr != nil {
				m.log.Error("compensating restore failed", zap.String("pattern_id", p.ID), zap.Error(rerr))
			}
			m.patterns.Delete(p.ID)
			return errs.PartialWrite("patterns.update", rerr == nil, verr)
		}
	}

	m.patterns.Set(p.ID, model.ClonePattern(*p))
	m.unregister(p.ID)
	m.register(p)
	m.invalidateQueries(prev.Type, p.Type)
	return nil
}

// DeletePattern removes the pattern from both stores and reports whether it
// existed in the graph store.
func (m *Manager) DeletePattern(ctx context.Context, id string) (_ bool, err error) {
	defer logging.Observe(m.log, "patterns.delete", &err, zap.String("pattern_id", id))()

	existing, err := m.GetPattern(ctx, id)
	if err != nil {
		return false, err
	}
	deleted, err := m.store.DeletePattern(ctx, id)
	if err != nil {
		return false, err
	}

	m.patterns.Delete(id)
	m.unregister(id)
	if existing != nil {
		m.invalidateQueries(existing.Type)
	} else {
		m.queries.Clear()
	}

	if m.index != nil {
		if verr := m.index.Delete(ctx, id); verr != nil {
			return deleted, errs.PartialWrite("patterns.delete", false, verr)
		}
	}
	return deleted, nil
}

// BatchDeletePatterns reports a not_found error for ids that did not exist.
func (m *Manager) BatchDeletePatterns(ctx context.Context, ids []string) errs.BatchResult {
	result := m.fanOut("patterns.batch_delete", ids, func(i int) error {
		deleted, err := m.DeletePattern(ctx, ids[i])
		if err == nil && !deleted {
			err = errs.NotFound("patterns.batch_delete", "pattern", ids[i])
		}
		return err
	})
	m.logBatch("patterns.batch_delete", result)
	return result
}

func (m *Manager) ClearCache() {
	m.patterns.Clear()
	m.queries.Clear()
}

// OptimizeCache purges expired cache entries.
func (m *Manager) OptimizeCache() int {
	return m.patterns.Sweep() + m.queries.Sweep()
}
