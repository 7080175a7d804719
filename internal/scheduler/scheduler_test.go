package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/eventgraph/internal/config"
	"github.com/agenthands/eventgraph/internal/core/architecture"
	"github.com/agenthands/eventgraph/internal/core/model"
	"github.com/agenthands/eventgraph/internal/errs"
	"github.com/agenthands/eventgraph/internal/storage"
)

func newArchitecture(t *testing.T) *architecture.Architecture {
	t.Helper()
	a, err := architecture.New(context.Background(), storage.NewMemoryStore(), config.Default(), nil)
	require.NoError(t, err)
	return a
}

func TestNew_RejectsInvalidSpec(t *testing.T) {
	_, err := New(newArchitecture(t), config.SchedulerConfig{DecaySpec: "every tuesday"}, nil)
	assert.True(t, errs.Is(err, errs.KindConfig))
}

func TestNew_EmptySpecsScheduleNothing(t *testing.T) {
	s, err := New(newArchitecture(t), config.SchedulerConfig{}, nil)
	require.NoError(t, err)
	assert.Empty(t, s.cron.Entries())
}

func TestDecay(t *testing.T) {
	a := newArchitecture(t)
	ctx := context.Background()
	_, err := a.Mapper.CreateMapping(ctx, "e1", "p1", 0.9, model.MappingManual, 0.8, nil)
	require.NoError(t, err)

	s, err := New(a, config.Default().Scheduler, nil)
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 2)

	n, err := s.Decay()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.InDelta(t, 0.9*0.95, a.Mapper.GetMapping("e1", "p1").Score, 1e-9)
}

func TestStartStop(t *testing.T) {
	s, err := New(newArchitecture(t), config.Default().Scheduler, nil)
	require.NoError(t, err)
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	assert.Zero(t, s.SweepCaches())
}
