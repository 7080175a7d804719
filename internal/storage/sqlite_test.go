package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/eventgraph/internal/core/model"
)

func TestSQLiteMappingStore_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "mappings.db")
	s, err := NewSQLiteMappingStore(path)
	require.NoError(t, err)
	defer s.Close()

	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m := &model.EventPatternMapping{
		EventID: "e1", PatternID: "p1", Score: 0.8, Type: model.MappingAuto, Confidence: 0.7,
		CreatedAt: created, UpdatedAt: created, Metadata: map[string]any{"source": "auto"},
	}
	require.NoError(t, s.SaveMapping(ctx, m))
	require.NoError(t, s.SaveMapping(ctx, &model.EventPatternMapping{
		EventID: "e2", PatternID: "p1", Score: 0.5, Type: model.MappingManual,
		CreatedAt: created.Add(time.Minute), UpdatedAt: created.Add(time.Minute),
	}))

	// saving the same pair again replaces the row
	m.Score = 0.75
	require.NoError(t, s.SaveMapping(ctx, m))

	got, err := s.LoadMappings(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "e1", got[0].EventID)
	assert.Equal(t, 0.75, got[0].Score)
	assert.Equal(t, model.MappingAuto, got[0].Type)
	assert.True(t, created.Equal(got[0].CreatedAt))
	assert.Equal(t, "auto", got[0].Metadata["source"])
	assert.Nil(t, got[1].Metadata)

	require.NoError(t, s.DeleteMapping(ctx, "e1", "p1"))
	got, err = s.LoadMappings(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "e2", got[0].EventID)
}

func TestSQLiteMappingStore_InMemory(t *testing.T) {
	s, err := NewSQLiteMappingStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	got, err := s.LoadMappings(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}
