package mapper

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/eventgraph/internal/config"
	"github.com/agenthands/eventgraph/internal/core/model"
	"github.com/agenthands/eventgraph/internal/errs"
	"github.com/agenthands/eventgraph/internal/storage"
)

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestMapper(t *testing.T, opts ...Option) (*Mapper, *clock) {
	t.Helper()
	c := &clock{t: base}
	opts = append([]Option{WithClock(c.now)}, opts...)
	return New(config.Default().Mapping, nil, opts...), c
}

func testEvent() *model.Event {
	ts := base
	return &model.Event{
		ID:           "e1",
		Type:         model.EventInvestment,
		Text:         "Fund invests in Acme",
		Timestamp:    &ts,
		Participants: []model.Entity{{Name: "Fund"}},
		Properties:   map[string]any{"domain": "business"},
		Confidence:   0.9,
	}
}

func testPattern(id string, pt model.PatternType, seq ...model.EventType) model.EventPattern {
	return model.EventPattern{
		ID: id, Type: pt, Domain: "business", EventSequence: seq,
		Frequency: 5, Support: 0.5, Confidence: 0.5,
	}
}

// failingStore fails every write.
type failingStore struct{}

var errDiskFull = errors.New("disk full")

func (failingStore) SaveMapping(context.Context, *model.EventPatternMapping) error { return errDiskFull }
func (failingStore) DeleteMapping(context.Context, string, string) error        { return errDiskFull }
func (failingStore) LoadMappings(context.Context) ([]model.EventPatternMapping, error) {
	return nil, errDiskFull
}

func TestCreateMapping_RejectsDuplicatePair(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMapper(t)

	ok, err := m.CreateMapping(ctx, "e1", "p1", 0.8, model.MappingManual, 1, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.CreateMapping(ctx, "e1", "p1", 0.3, model.MappingAuto, 0.2, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 1, m.Len())
	got := m.GetMapping("e1", "p1")
	require.NotNil(t, got)
	assert.Equal(t, 0.8, got.Score)
	assert.Equal(t, model.MappingManual, got.Type)
	assert.Equal(t, base, got.CreatedAt)
}

func TestCreateMapping_InvalidArguments(t *testing.T) {
	m, _ := newTestMapper(t)
	_, err := m.CreateMapping(context.Background(), "", "p1", 0.5, model.MappingManual, 1, nil)
	assert.True(t, errs.Is(err, errs.KindInvalidArgument))
	_, err = m.CreateMapping(context.Background(), "e1", "p1", 1.5, model.MappingManual, 1, nil)
	assert.True(t, errs.Is(err, errs.KindInvalidArgument))
	assert.Equal(t, 0, m.Len())
}

func TestCreateMapping_StoreFailureLeavesNoMapping(t *testing.T) {
	m, _ := newTestMapper(t, WithStore(failingStore{}))
	ok, err := m.CreateMapping(context.Background(), "e1", "p1", 0.5, model.MappingManual, 1, nil)
	assert.False(t, ok)
	assert.True(t, errs.Is(err, errs.KindStorageUnavailable))
	assert.ErrorIs(t, err, errDiskFull)
	assert.Nil(t, m.GetMapping("e1", "p1"))
}

func TestGetMapping_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMapper(t)
	_, err := m.CreateMapping(ctx, "e1", "p1", 0.8, model.MappingManual, 1, map[string]any{"k": "v"})
	require.NoError(t, err)

	got := m.GetMapping("e1", "p1")
	got.Score = 0
	got.Metadata["k"] = "changed"

	again := m.GetMapping("e1", "p1")
	assert.Equal(t, 0.8, again.Score)
	assert.Equal(t, "v", again.Metadata["k"])
	assert.Nil(t, m.GetMapping("e1", "missing"))
}

func TestGetPatternsForEvent_SortedAndFiltered(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMapper(t)
	for id, s := range map[string]float64{"p1": 0.4, "p2": 0.9, "p3": 0.7, "p4": 0.1} {
		_, err := m.CreateMapping(ctx, "e1", id, s, model.MappingManual, 1, nil)
		require.NoError(t, err)
	}
	_, err := m.CreateMapping(ctx, "e2", "p2", 0.6, model.MappingManual, 1, nil)
	require.NoError(t, err)

	got := m.GetPatternsForEvent("e1", 0.3, 0)
	assert.Equal(t, []ScoredID{{"p2", 0.9}, {"p3", 0.7}, {"p1", 0.4}}, got)

	assert.Equal(t, []ScoredID{{"p2", 0.9}}, m.GetPatternsForEvent("e1", 0, 1))
	assert.Equal(t, []ScoredID{{"e1", 0.9}, {"e2", 0.6}}, m.GetEventsForPattern("p2", 0, 0))
	assert.Empty(t, m.GetPatternsForEvent("nope", 0, 0))
}

func TestMappingScore_Factors(t *testing.T) {
	e := testEvent()

	temporal := testPattern("p", model.PatternTemporalSequence, model.EventInvestment, model.EventBusinessMerger)
	// 0.3*1 + 0.25*0.5 + 0.25*0.5 + 0.1*0.8 + 0.1*1
	assert.InDelta(t, 0.73, MappingScore(e, &temporal), 1e-9)
	// (0.73 + 0.05 + 0.5 + 1.0) / 4
	assert.InDelta(t, 0.57, MappingConfidence(e, &temporal, 0.73), 1e-9)

	other := testPattern("q", model.PatternCausalRelationship, model.EventBusinessMerger, model.EventPartnership)
	other.Domain = "technology"
	// 0.3*0 + 0.125 + 0.125 + 0.05 + 0
	assert.InDelta(t, 0.3, MappingScore(e, &other), 1e-9)
}

func TestMappingScore_Helpers(t *testing.T) {
	assert.InDelta(t, 1.0/3, keywordSimilarity("business_cooperation", "business_merger"), 1e-9)
	assert.InDelta(t, 1.0/3, typeScore(model.EventBusinessCooperation,
		[]model.EventType{model.EventBusinessMerger, model.EventInvestment}), 1e-9)

	assert.Equal(t, 0.5, attributeScore(nil, nil))
	assert.Equal(t, 1.0, attributeScore(map[string]any{"amount": 10}, map[string]any{"amount": 10.0}))
	// "abcd" vs "abxy": 2 distinct shared chars over length 4
	assert.Equal(t, 0.5, attributeScore(map[string]any{"k": "abcd"}, map[string]any{"k": "abxy"}))
	assert.Equal(t, 0.0, attributeScore(map[string]any{}, map[string]any{"k": "v"}))

	e := testEvent()
	p := testPattern("p", model.PatternCustom)
	p.Domain = ""
	assert.Equal(t, 0.5, domainScore(e, &p))

	bare := &model.Event{Type: model.EventOther}
	assert.InDelta(t, 0.2, completeness(bare), 1e-9)
	assert.InDelta(t, 1.0, completeness(e), 1e-9)
}

func TestAutoMap_RespectsThresholdAndCap(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMapper(t)
	e := testEvent()

	var candidates []model.EventPattern
	for i := 0; i < 8; i++ {
		candidates = append(candidates, testPattern(fmt.Sprintf("p%d", i), model.PatternTemporalSequence,
			model.EventInvestment, model.EventBusinessMerger))
	}
	low := testPattern("low", model.PatternCausalRelationship, model.EventPartnership, model.EventBusinessMerger)
	candidates = append([]model.EventPattern{low}, candidates...)

	created, err := m.AutoMapEventToPatterns(ctx, e, candidates)
	require.NoError(t, err)
	require.Len(t, created, 5)
	for _, mp := range created {
		assert.Equal(t, model.MappingAuto, mp.Type)
		assert.NotEqual(t, "low", mp.PatternID)
		assert.Equal(t, true, mp.Metadata["auto_mapped"])
	}
	assert.Equal(t, "p0", created[0].PatternID)
	assert.Equal(t, 5, m.Len())

	// the cap covers mappings from earlier runs too
	created, err = m.AutoMapEventToPatterns(ctx, e, candidates)
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.Equal(t, 5, m.Len())
}

func TestRecordMatches(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMapper(t)
	e := testEvent()

	var matches []model.PatternMatch
	for i := 0; i < 7; i++ {
		matches = append(matches, model.PatternMatch{
			Pattern: testPattern(fmt.Sprintf("p%d", i), model.PatternCausalRelationship,
				model.EventPartnership, model.EventBusinessMerger),
			Score: 0.85,
		})
	}
	created, err := m.RecordMatches(ctx, e, matches, 0.8)
	require.NoError(t, err)
	require.Len(t, created, 5, "per-event cap applies")
	first := created[0]
	assert.Equal(t, "p0", first.PatternID)
	assert.Equal(t, model.MappingAuto, first.Type)
	assert.Equal(t, 0.85, first.Score, "match score is kept even where the mapping formula disagrees")
	assert.Equal(t, 0.85, first.Confidence)
	assert.Equal(t, 0.8, first.Metadata["threshold"])
	assert.Equal(t, "pattern_matching", first.Metadata["algorithm"])

	created, err = m.RecordMatches(ctx, e, matches[:1], 0.8)
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestUpdateMappingScores_DecaysSignificantChanges(t *testing.T) {
	ctx := context.Background()
	m, c := newTestMapper(t)
	_, err := m.CreateMapping(ctx, "e1", "p1", 0.9, model.MappingManual, 1, nil)
	require.NoError(t, err)
	_, err = m.CreateMapping(ctx, "e1", "p2", 0.1, model.MappingManual, 1, nil)
	require.NoError(t, err)
	_, err = m.CreateMapping(ctx, "e2", "p1", 0.8, model.MappingManual, 1, nil)
	require.NoError(t, err)

	c.t = base.Add(time.Hour)
	n, err := m.UpdateMappingScores(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	big := m.GetMapping("e1", "p1")
	assert.InDelta(t, 0.855, big.Score, 1e-9)
	assert.Equal(t, c.t, big.UpdatedAt)

	small := m.GetMapping("e1", "p2")
	assert.Equal(t, 0.1, small.Score)
	assert.Equal(t, base, small.UpdatedAt)

	assert.Equal(t, 0.8, m.GetMapping("e2", "p1").Score, "other events untouched")

	n, err = m.UpdateMappingScores(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	for _, mp := range m.AllMappings() {
		assert.LessOrEqual(t, mp.Score, 0.9)
	}
}

func TestRemoveMapping(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMapper(t)
	_, err := m.CreateMapping(ctx, "e1", "p1", 0.9, model.MappingManual, 1, nil)
	require.NoError(t, err)

	ok, err := m.RemoveMapping(ctx, "e1", "p1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, m.GetMapping("e1", "p1"))
	assert.Empty(t, m.GetEventsForPattern("p1", 0, 0))

	ok, err = m.RemoveMapping(ctx, "e1", "p1")
	require.NoError(t, err)
	assert.False(t, ok)

	st := m.GetMappingStatistics()
	assert.Equal(t, 0, st.EventsWithMappings)
	assert.Equal(t, 0, st.PatternsWithMappings)
}

func TestFindCrossLayerPatterns(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMapper(t)
	for _, mp := range []struct {
		e, p  string
		score float64
	}{
		{"e1", "p1", 0.8}, {"e1", "p2", 0.6},
		{"e2", "p1", 0.5}, {"e2", "p2", 0.9},
		{"e3", "p2", 0.4},
		{"e4", "p3", 1.0},
	} {
		_, err := m.CreateMapping(ctx, mp.e, mp.p, mp.score, model.MappingManual, 1, nil)
		require.NoError(t, err)
	}

	got, err := m.FindCrossLayerPatterns(CrossLayerQuery{Kind: EventToPattern, EventID: "e1"})
	require.NoError(t, err)
	assert.Equal(t, []CrossLayerHit{{ID: "p1", Score: 0.8}, {ID: "p2", Score: 0.6}}, got)

	got, err = m.FindCrossLayerPatterns(CrossLayerQuery{Kind: PatternToEvent, PatternID: "p2", MinScore: 0.5})
	require.NoError(t, err)
	assert.Equal(t, []CrossLayerHit{{ID: "e2", Score: 0.9}, {ID: "e1", Score: 0.6}}, got)

	got, err = m.FindCrossLayerPatterns(CrossLayerQuery{Kind: SimilarEvents, EventID: "e1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	// e2: (min(0.8,0.5) + min(0.6,0.9)) / 2
	assert.Equal(t, "e2", got[0].ID)
	assert.InDelta(t, 0.55, got[0].Score, 1e-9)
	assert.Equal(t, []string{"p1", "p2"}, got[0].Shared)
	assert.Equal(t, "e3", got[1].ID)
	assert.InDelta(t, 0.2, got[1].Score, 1e-9)

	_, err = m.FindCrossLayerPatterns(CrossLayerQuery{Kind: "sideways"})
	assert.True(t, errs.Is(err, errs.KindInvalidArgument))
	_, err = m.FindCrossLayerPatterns(CrossLayerQuery{Kind: EventToPattern})
	assert.True(t, errs.Is(err, errs.KindInvalidArgument))
}

func TestGetMappingStatistics(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMapper(t)
	assert.Equal(t, 0, m.GetMappingStatistics().TotalMappings)
	assert.Nil(t, m.GetMappingStatistics().Updates.LastUpdate)

	_, err := m.CreateMapping(ctx, "e1", "p1", 0.9, model.MappingManual, 0.5, nil)
	require.NoError(t, err)
	_, err = m.CreateMapping(ctx, "e2", "p1", 0.5, model.MappingAuto, 0.7, nil)
	require.NoError(t, err)
	_, err = m.UpdateMappingScores(ctx)
	require.NoError(t, err)

	st := m.GetMappingStatistics()
	assert.Equal(t, 2, st.TotalMappings)
	assert.Equal(t, map[string]int{"manual": 1, "auto": 1}, st.TypeDistribution)
	assert.Equal(t, 2, st.Scores.Count)
	assert.InDelta(t, 0.855, st.Scores.Max, 1e-9)
	assert.InDelta(t, 0.6, st.Confidence.Mean, 1e-9)
	assert.Equal(t, 1, st.Updates.Auto)
	assert.Equal(t, 1, st.Updates.Manual)
	assert.Equal(t, 2, st.Updates.Decayed)
	require.NotNil(t, st.Updates.LastUpdate)
	assert.Equal(t, 2, st.EventsWithMappings)
	assert.Equal(t, 1, st.PatternsWithMappings)
	assert.Equal(t, 100, st.Updates.UpdateFrequency)
}

func TestMapper_PersistsThroughSQLite(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewSQLiteMappingStore(filepath.Join(t.TempDir(), "mappings.db"))
	require.NoError(t, err)
	defer store.Close()

	m, _ := newTestMapper(t, WithStore(store))
	_, err = m.CreateMapping(ctx, "e1", "p1", 0.9, model.MappingManual, 1, map[string]any{"note": "x"})
	require.NoError(t, err)
	_, err = m.CreateMapping(ctx, "e2", "p1", 0.5, model.MappingAuto, 0.6, nil)
	require.NoError(t, err)
	_, err = m.UpdateMappingScores(ctx, "e1")
	require.NoError(t, err)
	_, err = m.RemoveMapping(ctx, "e2", "p1")
	require.NoError(t, err)

	fresh, _ := newTestMapper(t, WithStore(store))
	n, err := fresh.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got := fresh.GetMapping("e1", "p1")
	require.NotNil(t, got)
	assert.InDelta(t, 0.855, got.Score, 1e-9)
	assert.Equal(t, "x", got.Metadata["note"])
	assert.Equal(t, []ScoredID{{"p1", got.Score}}, fresh.GetPatternsForEvent("e1", 0, 0))
}

func TestLoad_StoreFailure(t *testing.T) {
	m, _ := newTestMapper(t, WithStore(failingStore{}))
	_, err := m.Load(context.Background())
	assert.True(t, errs.Is(err, errs.KindStorageUnavailable))

	noStore, _ := newTestMapper(t)
	n, err := noStore.Load(context.Background())
	assert.NoError(t, err)
	assert.Zero(t, n)
}
