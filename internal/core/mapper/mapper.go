// Package mapper keeps the scored links between concrete events and the
// patterns they instantiate.
package mapper

import (
	"context"
	"maps"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/eventgraph/internal/config"
	"github.com/agenthands/eventgraph/internal/core/model"
	"github.com/agenthands/eventgraph/internal/errs"
	"github.com/agenthands/eventgraph/internal/logging"
)

// minScoreChange is the smallest decay step that is persisted.
const minScoreChange = 0.01

// MappingStore persists mappings. storage.SQLiteMappingStore implements it.
type MappingStore interface {
	SaveMapping(ctx context.Context, m *model.EventPatternMapping) error
	DeleteMapping(ctx context.Context, eventID, patternID string) error
	LoadMappings(ctx context.Context) ([]model.EventPatternMapping, error)
}

type Mapper struct {
	store MappingStore // nil keeps mappings in memory only
	log   *zap.Logger
	cfg   config.MappingConfig
	now   func() time.Time

	mu        sync.RWMutex
	mappings  map[string]*model.EventPatternMapping
	byEvent   map[string]map[string]struct{} // event id -> mapping keys
	byPattern map[string]map[string]struct{} // pattern id -> mapping keys

	created, auto, manual, decayed int
	lastUpdate                     time.Time
}

type Option func(*Mapper)

func WithClock(now func() time.Time) Option {
	return func(m *Mapper) { m.now = now }
}

// WithStore persists every mapping change to s.
func WithStore(s MappingStore) Option {
	return func(m *Mapper) { m.store = s }
}

func New(cfg config.MappingConfig, logger *zap.Logger, opts ...Option) *Mapper {
	m := &Mapper{
		log:       logging.OrNop(logger).Named("mapper"),
		cfg:       cfg,
		now:       time.Now,
		mappings:  make(map[string]*model.EventPatternMapping),
		byEvent:   make(map[string]map[string]struct{}),
		byPattern: make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load replaces the in-memory mappings with the contents of the store.
func (m *Mapper) Load(ctx context.Context) (n int, err error) {
	defer logging.Observe(m.log, "mapper.load", &err)()
	if m.store == nil {
		return 0, nil
	}
	loaded, err := m.store.LoadMappings(ctx)
	if err != nil {
		return 0, errs.Storage("mapper.load", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.mappings = make(map[string]*model.EventPatternMapping, len(loaded))
	m.byEvent = make(map[string]map[string]struct{})
	m.byPattern = make(map[string]map[string]struct{})
	for i := range loaded {
		m.index(&loaded[i])
	}
	return len(loaded), nil
}

func (m *Mapper) index(mp *model.EventPatternMapping) {
	key := mp.Key()
	m.mappings[key] = mp
	link(m.byEvent, mp.EventID, key)
	link(m.byPattern, mp.PatternID, key)
}

func link(idx map[string]map[string]struct{}, id, key string) {
	set, ok := idx[id]
	if !ok {
		set = make(map[string]struct{})
		idx[id] = set
	}
	set[key] = struct{}{}
}

func unlink(idx map[string]map[string]struct{}, id, key string) {
	set := idx[id]
	delete(set, key)
	if len(set) == 0 {
		delete(idx, id)
	}
}

func clone(mp *model.EventPatternMapping) model.EventPatternMapping {
	c := *mp
	c.Metadata = maps.Clone(mp.Metadata)
	return c
}

// CreateMapping records a link between eventID and patternID. It returns
// false without error when the pair is already mapped.
func (m *Mapper) CreateMapping(ctx context.Context, eventID, patternID string, score float64, typ model.MappingType, confidence float64, metadata map[string]any) (created bool, err error) {
	defer logging.Observe(m.log, "mapper.create", &err,
		zap.String("event_id", eventID), zap.String("pattern_id", patternID))()

	if eventID == "" || patternID == "" {
		return false, errs.InvalidArgument("mapper.create", "event id and pattern id are required")
	}
	if score < 0 || score > 1 || confidence < 0 || confidence > 1 {
		return false, errs.InvalidArgument("mapper.create", "score %.3f and confidence %.3f must be in [0,1]", score, confidence)
	}

	now := m.now()
	mp := &model.EventPatternMapping{
		EventID:    eventID,
		PatternID:  patternID,
		Score:      score,
		Type:       typ,
		Confidence: confidence,
		CreatedAt:  now,
		UpdatedAt:  now,
		Metadata:   maps.Clone(metadata),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.mappings[mp.Key()]; exists {
		m.log.Debug("mapping already exists", zap.String("key", mp.Key()))
		return false, nil
	}
	if m.store != nil {
		if err := m.store.SaveMapping(ctx, mp); err != nil {
			return false, errs.Storage("mapper.create", err)
		}
	}
	m.index(mp)
	m.created++
	if typ == model.MappingAuto {
		m.auto++
	} else {
		m.manual++
	}
	return true, nil
}

// GetMapping returns nil when the pair is not mapped.
func (m *Mapper) GetMapping(eventID, patternID string) *model.EventPatternMapping {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mp, ok := m.mappings[model.MappingKey(eventID, patternID)]
	if !ok {
		return nil
	}
	c := clone(mp)
	return &c
}

// ScoredID is one side of a mapping with its score.
type ScoredID struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// GetPatternsForEvent returns the patterns mapped to eventID with a score of
// at least minScore, best first. limit <= 0 means no limit.
func (m *Mapper) GetPatternsForEvent(eventID string, minScore float64, limit int) []ScoredID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scored(m.byEvent[eventID], minScore, limit, func(mp *model.EventPatternMapping) string { return mp.PatternID })
}

// GetEventsForPattern returns the events mapped to patternID, best first.
func (m *Mapper) GetEventsForPattern(patternID string, minScore float64, limit int) []ScoredID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scored(m.byPattern[patternID], minScore, limit, func(mp *model.EventPatternMapping) string { return mp.EventID })
}

func (m *Mapper) scored(keys map[string]struct{}, minScore float64, limit int, side func(*model.EventPatternMapping) string) []ScoredID {
	out := make([]ScoredID, 0, len(keys))
	for key := range keys {
		mp := m.mappings[key]
		if mp.Score >= minScore {
			out = append(out, ScoredID{ID: side(mp), Score: mp.Score})
		}
	}
	sortScored(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sortScored(s []ScoredID) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Score != s[j].Score {
			return s[i].Score > s[j].Score
		}
		return s[i].ID < s[j].ID
	})
}

// AutoMapEventToPatterns scores e against each candidate and maps it to those
// reaching the auto-mapping threshold, in candidate order. The event never
// ends up with more than MaxMappingsPerEvent mappings in total.
func (m *Mapper) AutoMapEventToPatterns(ctx context.Context, e *model.Event, candidates []model.EventPattern) (_ []model.EventPatternMapping, err error) {
	defer logging.Observe(m.log, "mapper.auto_map", &err, zap.String("event_id", e.ID))()

	var scored []autoCandidate
	for i := range candidates {
		p := &candidates[i]
		score := MappingScore(e, p)
		if score < m.cfg.AutoMappingThreshold {
			continue
		}
		scored = append(scored, autoCandidate{patternID: p.ID, score: score, confidence: MappingConfidence(e, p, score)})
	}
	return m.createAuto(ctx, e.ID, scored, map[string]any{
		"auto_mapped": true,
		"threshold":   m.cfg.AutoMappingThreshold,
		"algorithm":   "similarity_based",
	})
}

// RecordMatches stores an auto mapping for each pattern match of e, in
// order, using the match score as both score and confidence. threshold is
// the one the matches were selected with. The per-event cap applies.
func (m *Mapper) RecordMatches(ctx context.Context, e *model.Event, matches []model.PatternMatch, threshold float64) (_ []model.EventPatternMapping, err error) {
	defer logging.Observe(m.log, "mapper.record_matches", &err, zap.String("event_id", e.ID))()

	cands := make([]autoCandidate, len(matches))
	for i, mt := range matches {
		cands[i] = autoCandidate{patternID: mt.Pattern.ID, score: mt.Score, confidence: mt.Score}
	}
	return m.createAuto(ctx, e.ID, cands, map[string]any{
		"auto_mapped": true,
		"threshold":   threshold,
		"algorithm":   "pattern_matching",
	})
}

type autoCandidate struct {
	patternID  string
	score      float64
	confidence float64
}

func (m *Mapper) createAuto(ctx context.Context, eventID string, cands []autoCandidate, metadata map[string]any) ([]model.EventPatternMapping, error) {
	m.mu.RLock()
	existing := len(m.byEvent[eventID])
	m.mu.RUnlock()

	var out []model.EventPatternMapping
	for _, c := range cands {
		if m.cfg.MaxMappingsPerEvent > 0 && existing+len(out) >= m.cfg.MaxMappingsPerEvent {
			break
		}
		ok, err := m.CreateMapping(ctx, eventID, c.patternID, c.score, model.MappingAuto, c.confidence, metadata)
		if err != nil {
			return out, err
		}
		if ok {
			out = append(out, *m.GetMapping(eventID, c.patternID))
		}
	}
	return out, nil
}

// UpdateMappingScores applies the decay factor to the mappings of eventIDs, or
// to every mapping when eventIDs is empty. Changes of at most 0.01 are
// ignored. It returns the number of mappings updated.
func (m *Mapper) UpdateMappingScores(ctx context.Context, eventIDs ...string) (updated int, err error) {
	defer logging.Observe(m.log, "mapper.decay", &err, zap.Int("events", len(eventIDs)))()

	m.mu.Lock()
	defer m.mu.Unlock()

	var keys []string
	if len(eventIDs) == 0 {
		for k := range m.mappings {
			keys = append(keys, k)
		}
	} else {
		for _, id := range eventIDs {
			for k := range m.byEvent[id] {
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)

	now := m.now()
	for _, k := range keys {
		mp := m.mappings[k]
		next := mp.Score * m.cfg.DecayFactor
		if math.Abs(next-mp.Score) <= minScoreChange {
			continue
		}
		prev := *mp
		mp.Score, mp.UpdatedAt = next, now
		if m.store != nil {
			if err := m.store.SaveMapping(ctx, mp); err != nil {
				*mp = prev
				return updated, errs.Storage("mapper.decay", err)
			}
		}
		updated++
	}
	m.decayed += updated
	m.lastUpdate = now
	return updated, nil
}

// RemoveMapping deletes the mapping of the pair. It returns false when the
// pair was not mapped.
func (m *Mapper) RemoveMapping(ctx context.Context, eventID, patternID string) (removed bool, err error) {
	defer logging.Observe(m.log, "mapper.remove", &err,
		zap.String("event_id", eventID), zap.String("pattern_id", patternID))()

	key := model.MappingKey(eventID, patternID)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.mappings[key]; !ok {
		return false, nil
	}
	if m.store != nil {
		if err := m.store.DeleteMapping(ctx, eventID, patternID); err != nil {
			return false, errs.Storage("mapper.remove", err)
		}
	}
	delete(m.mappings, key)
	unlink(m.byEvent, eventID, key)
	unlink(m.byPattern, patternID, key)
	return true, nil
}

// AllMappings returns a copy of every mapping ordered by key.
func (m *Mapper) AllMappings() []model.EventPatternMapping {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.EventPatternMapping, 0, len(m.mappings))
	for _, mp := range m.mappings {
		out = append(out, clone(mp))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func (m *Mapper) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.mappings)
}
