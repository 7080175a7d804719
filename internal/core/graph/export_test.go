package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/eventgraph/internal/errs"
)

func TestExportGraph_JSON(t *testing.T) {
	f := lineFixture(t)
	var buf bytes.Buffer
	require.NoError(t, f.proc.ExportGraph(context.Background(), &buf, EventGraph, FormatJSON))

	var doc struct {
		Directed bool   `json:"directed"`
		Graph    string `json:"graph"`
		Nodes    []Node `json:"nodes"`
		Edges    []Edge `json:"edges"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.True(t, doc.Directed)
	assert.Equal(t, "event", doc.Graph)
	assert.Len(t, doc.Nodes, 3)
	assert.Len(t, doc.Edges, 2)
}

func TestExportGraph_GEXF(t *testing.T) {
	f := lineFixture(t)
	var buf bytes.Buffer
	require.NoError(t, f.proc.ExportGraph(context.Background(), &buf, EventGraph, FormatGEXF))

	var doc gexfDoc
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "directed", doc.Graph.EdgeType)
	assert.Len(t, doc.Graph.Nodes, 3)
	require.Len(t, doc.Graph.Edges, 2)
	assert.Equal(t, "0", doc.Graph.Edges[0].ID)
}

func TestExportGraph_GraphML(t *testing.T) {
	f := newFixture(t, base)
	var buf bytes.Buffer
	require.NoError(t, f.proc.ExportGraph(context.Background(), &buf, PatternGraph, FormatGraphML))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "<?xml"))
	assert.Contains(t, out, `edgedefault="undirected"`)
	assert.Contains(t, out, `attr.name="relation_type"`)
}

func TestExportGraph_DOT(t *testing.T) {
	f := lineFixture(t)
	var buf bytes.Buffer
	require.NoError(t, f.proc.ExportGraph(context.Background(), &buf, EventGraph, FormatDOT))
	assert.Contains(t, buf.String(), "digraph")
}

func TestExportGraph_UnknownFormat(t *testing.T) {
	f := lineFixture(t)
	err := f.proc.ExportGraph(context.Background(), &bytes.Buffer{}, EventGraph, "csv")
	assert.True(t, errs.Is(err, errs.KindInvalidArgument))
}

func TestExportGraphToFile(t *testing.T) {
	f := lineFixture(t)
	path := filepath.Join(t.TempDir(), "events.json")

	got, err := f.proc.ExportGraphToFile(context.Background(), EventGraph, FormatJSON, path)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(b))

	_, err = f.proc.ExportGraphToFile(context.Background(), EventGraph, "csv", filepath.Join(t.TempDir(), "x.csv"))
	assert.True(t, errs.Is(err, errs.KindInvalidArgument))
}
