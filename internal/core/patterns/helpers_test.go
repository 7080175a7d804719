package patterns

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/agenthands/eventgraph/internal/config"
	"github.com/agenthands/eventgraph/internal/core/model"
	"github.com/agenthands/eventgraph/internal/storage"
	"github.com/agenthands/eventgraph/internal/vector"
)

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func testConfig() config.PatternConfig {
	return config.Default().Patterns
}

func newTestManager(t *testing.T, store storage.Store, opts ...Option) *Manager {
	t.Helper()
	if store == nil {
		store = storage.NewMemoryStore()
	}
	opts = append([]Option{WithClock(func() time.Time { return base })}, opts...)
	return NewManager(store, testConfig(), nil, opts...)
}

func seqPattern(id string, pt model.PatternType, support float64, seq ...model.EventType) model.EventPattern {
	return model.EventPattern{
		ID:            id,
		Name:          id,
		Type:          pt,
		Domain:        "business",
		EventSequence: seq,
		Frequency:     2,
		Support:       support,
		Confidence:    0.5,
	}
}

func typedEvent(id string, t model.EventType, day int) model.Event {
	ts := base.AddDate(0, 0, day)
	return model.Event{ID: id, Type: t, Text: "event " + id, Timestamp: &ts, Confidence: 0.9}
}

// fakeIndex records upserts and fails them on demand.
type fakeIndex struct {
	mu        sync.Mutex
	docs      map[string]vector.Document
	failWrite bool
	deleted   []string
}

var errIndexDown = errors.New("vector index down")

func newFakeIndex() *fakeIndex {
	return &fakeIndex{docs: make(map[string]vector.Document)}
}

func (f *fakeIndex) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (f *fakeIndex) Upsert(_ context.Context, docs []vector.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrite {
		return errIndexDown
	}
	for _, d := range docs {
		f.docs[d.ID] = d
	}
	return nil
}

func (f *fakeIndex) Query(context.Context, []float32, int) ([]vector.Result, error) {
	return nil, nil
}

func (f *fakeIndex) Delete(_ context.Context, ids ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.docs, id)
	}
	f.deleted = append(f.deleted, ids...)
	return nil
}

func (f *fakeIndex) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs)
}

type countingStore struct {
	storage.Store
	mu      sync.Mutex
	queries int
}

func (s *countingStore) QueryEventPatterns(ctx context.Context, q model.PatternQuery) ([]model.EventPattern, error) {
	s.mu.Lock()
	s.queries++
	s.mu.Unlock()
	return s.Store.QueryEventPatterns(ctx, q)
}
