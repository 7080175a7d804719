package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/agenthands/eventgraph/internal/errs"
)

func TestObserve_LevelsByKind(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := zap.New(core)

	run := func(err error) {
		defer Observe(l, "test.op", &err, zap.String("id", "x"))()
	}

	run(nil)
	run(errs.NotFound("test.op", "event", "x"))
	run(errs.Validation("test.op", []string{"bad"}))
	run(errs.Storage("test.op", errors.New("down")))

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	assert.Equal(t, "test.op", entries[3].ContextMap()["op"])
	assert.Equal(t, "x", entries[3].ContextMap()["id"])
}

func TestNew(t *testing.T) {
	l, err := New("production")
	require.NoError(t, err)
	assert.NotNil(t, l)

	l, err = New("development")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	assert.NotNil(t, OrNop(nil))
}
