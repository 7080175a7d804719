package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/agenthands/eventgraph/internal/config"
	"github.com/agenthands/eventgraph/internal/core/model"
	"github.com/agenthands/eventgraph/internal/errs"
	"github.com/agenthands/eventgraph/internal/storage"
)

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// countingStore records how many reads reach the store.
type countingStore struct {
	storage.Store
	mu      sync.Mutex
	queries int
	gets    int
}

func (s *countingStore) QueryEvents(ctx context.Context, q model.EventQuery) ([]model.Event, error) {
	s.mu.Lock()
	s.queries++
	s.mu.Unlock()
	return s.Store.QueryEvents(ctx, q)
}

func (s *countingStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	s.mu.Lock()
	s.gets++
	s.mu.Unlock()
	return s.Store.GetEvent(ctx, id)
}

// failingStore fails every event write and read.
type failingStore struct {
	storage.Store
}

var errDown = errs.Storage("test", errors.New("connection refused"))

func (failingStore) StoreEvent(context.Context, *model.Event) error { return errDown }
func (failingStore) GetEvent(context.Context, string) (*model.Event, error) {
	return nil, errDown
}
func (failingStore) QueryEvents(context.Context, model.EventQuery) ([]model.Event, error) {
	return nil, errDown
}

func newTestManager(t *testing.T, store storage.Store) (*Manager, *fakeClock) {
	t.Helper()
	if store == nil {
		store = storage.NewMemoryStore()
	}
	clock := &fakeClock{now: base}
	cfg := config.EventConfig{CacheSize: 100, CacheTTLSeconds: 60}
	return NewManager(store, cfg, nil, WithClock(clock.Now)), clock
}

func at(days int) *time.Time {
	ts := base.AddDate(0, 0, days)
	return &ts
}

func event(id string, t model.EventType, ts *time.Time, participants ...string) model.Event {
	e := model.Event{ID: id, Type: t, Text: "event " + id, Timestamp: ts, Confidence: 0.9}
	for _, p := range participants {
		e.Participants = append(e.Participants, model.Entity{Name: p, EntityType: "organization"})
	}
	return e
}
