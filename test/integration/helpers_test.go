//go:build integration

package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/eventgraph/internal/config"
	"github.com/agenthands/eventgraph/internal/core/architecture"
	"github.com/agenthands/eventgraph/internal/core/model"
	"github.com/agenthands/eventgraph/internal/driver"
	"github.com/agenthands/eventgraph/internal/storage"
)

// env is one test's view of a live Neo4j database. Every id it creates
// carries a run prefix and is removed on cleanup.
type env struct {
	arch   *architecture.Architecture
	prefix string
	base   time.Time

	events   []string
	patterns []string
}

func newEnv(t *testing.T, opts ...architecture.Option) *env {
	t.Helper()
	_ = godotenv.Load("../../.env")

	uri := os.Getenv("NEO4J_URI")
	if uri == "" {
		t.Skip("Skipping integration test: NEO4J_URI not set")
	}
	cfg := config.Default()
	cfg.ApplyEnv()

	ctx := context.Background()
	d, err := driver.NewNeo4jDriver(ctx, uri, cfg.Storage.User, cfg.Storage.Password, cfg.Storage.Database, nil)
	require.NoError(t, err)
	require.NoError(t, d.BuildIndices(ctx))

	arch, err := architecture.New(ctx, storage.NewNeo4jStore(d, nil), cfg, nil, opts...)
	require.NoError(t, err)

	e := &env{
		arch:   arch,
		prefix: "it-" + uuid.NewString()[:8] + "-",
		base:   time.Now().UTC().Truncate(time.Hour).AddDate(0, 0, -10),
	}
	t.Cleanup(func() {
		ctx := context.Background()
		for _, id := range e.events {
			_, _ = arch.Events.DeleteEvent(ctx, id)
		}
		for _, id := range e.patterns {
			_, _ = arch.Patterns.DeletePattern(ctx, id)
		}
		_ = arch.Close(ctx)
	})
	return e
}

func (e *env) id(name string) string {
	return e.prefix + name
}

func (e *env) event(name string, typ model.EventType, day int) *model.Event {
	ts := e.base.AddDate(0, 0, day)
	return &model.Event{
		ID:           e.id(name),
		Type:         typ,
		Text:         "Northwind Capital invests in Acme Robotics",
		Timestamp:    &ts,
		Participants: []model.Entity{{Name: e.prefix + "Northwind", EntityType: "organization"}},
		Properties:   map[string]any{"domain": "business", "round": "series_a"},
		Confidence:   0.9,
	}
}

// add stores evt without learning and tracks it for cleanup.
func (e *env) add(t *testing.T, evt *model.Event) *architecture.AddResult {
	t.Helper()
	learn := false
	res, err := e.arch.AddEvent(context.Background(), evt, &learn)
	require.NoError(t, err)
	e.events = append(e.events, evt.ID)
	return res
}
