package graph

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/graph/encoding/dot"

	"github.com/agenthands/eventgraph/internal/errs"
	"github.com/agenthands/eventgraph/internal/logging"
)

// Export formats.
const (
	FormatGEXF    = "gexf"
	FormatGraphML = "graphml"
	FormatJSON    = "json"
	FormatDOT     = "dot"
)

func ValidFormat(f string) bool {
	switch f {
	case FormatGEXF, FormatGraphML, FormatJSON, FormatDOT:
		return true
	}
	return false
}

// ExportGraph writes the view of kind to w, building it first when needed.
func (p *Processor) ExportGraph(ctx context.Context, w io.Writer, kind Kind, format string) (err error) {
	defer logging.Observe(p.log, "graph.export", &err,
		zap.String("graph", string(kind)), zap.String("format", format))()

	if !ValidFormat(format) {
		return errs.InvalidArgument("graph.export", "unsupported export format %q", format)
	}
	g, err := p.ensure(ctx, kind)
	if err != nil {
		return err
	}
	switch format {
	case FormatGEXF:
		err = writeXML(w, toGEXF(g))
	case FormatGraphML:
		err = writeXML(w, toGraphML(g))
	case FormatJSON:
		err = writeJSON(w, g)
	case FormatDOT:
		err = writeDOT(w, g)
	}
	if err != nil {
		return errs.Storage("graph.export", err)
	}
	return nil
}

// ExportGraphToFile exports to path, or to <kind>_graph_<timestamp>.<format>
// in the working directory when path is empty. It returns the path written.
func (p *Processor) ExportGraphToFile(ctx context.Context, kind Kind, format, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("%s_graph_%s.%s", kind, p.now().Format("20060102_150405"), format)
	}
	if !ValidFormat(format) {
		return "", errs.InvalidArgument("graph.export", "unsupported export format %q", format)
	}
	f, err := os.Create(path)
	if err != nil {
		return "", errs.Storage("graph.export", err)
	}
	if err := p.ExportGraph(ctx, f, kind, format); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", errs.Storage("graph.export", err)
	}
	p.log.Info("graph exported", zap.String("graph", string(kind)), zap.String("path", path))
	return path, nil
}

func writeXML(w io.Writer, doc any) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

func edgeDefault(g *Graph) string {
	if g.Directed {
		return "directed"
	}
	return "undirected"
}

func timestampString(n Node) string {
	if n.Timestamp == nil {
		return ""
	}
	return n.Timestamp.UTC().Format(time.RFC3339)
}

type gexfDoc struct {
	XMLName xml.Name  `xml:"gexf"`
	XMLNS   string    `xml:"xmlns,attr"`
	Version string    `xml:"version,attr"`
	Graph   gexfGraph `xml:"graph"`
}

type gexfGraph struct {
	EdgeType string          `xml:"defaultedgetype,attr"`
	Mode     string          `xml:"mode,attr"`
	Attrs    []gexfAttrClass `xml:"attributes"`
	Nodes    []gexfNode      `xml:"nodes>node"`
	Edges    []gexfEdge      `xml:"edges>edge"`
}

type gexfAttrClass struct {
	Class string     `xml:"class,attr"`
	Attrs []gexfAttr `xml:"attribute"`
}

type gexfAttr struct {
	ID    string `xml:"id,attr"`
	Title string `xml:"title,attr"`
	Type  string `xml:"type,attr"`
}

type gexfValue struct {
	For   string `xml:"for,attr"`
	Value string `xml:"value,attr"`
}

type gexfNode struct {
	ID     string      `xml:"id,attr"`
	Label  string      `xml:"label,attr"`
	Values []gexfValue `xml:"attvalues>attvalue"`
}

type gexfEdge struct {
	ID     string      `xml:"id,attr"`
	Source string      `xml:"source,attr"`
	Target string      `xml:"target,attr"`
	Weight float64     `xml:"weight,attr"`
	Values []gexfValue `xml:"attvalues>attvalue"`
}

func toGEXF(g *Graph) gexfDoc {
	doc := gexfDoc{
		XMLNS:   "http://gexf.net/1.2",
		Version: "1.2",
		Graph: gexfGraph{
			EdgeType: edgeDefault(g),
			Mode:     "static",
			Attrs: []gexfAttrClass{
				{Class: "node", Attrs: []gexfAttr{
					{ID: "0", Title: "node_type", Type: "string"},
					{ID: "1", Title: "type", Type: "string"},
					{ID: "2", Title: "timestamp", Type: "string"},
				}},
				{Class: "edge", Attrs: []gexfAttr{
					{ID: "0", Title: "edge_type", Type: "string"},
					{ID: "1", Title: "relation_type", Type: "string"},
					{ID: "2", Title: "confidence", Type: "double"},
				}},
			},
		},
	}
	for _, n := range g.Nodes() {
		label := n.Label
		if label == "" {
			label = n.ID
		}
		doc.Graph.Nodes = append(doc.Graph.Nodes, gexfNode{
			ID:    n.ID,
			Label: label,
			Values: []gexfValue{
				{For: "0", Value: n.Kind},
				{For: "1", Value: n.Type},
				{For: "2", Value: timestampString(n)},
			},
		})
	}
	for i, e := range g.Edges() {
		doc.Graph.Edges = append(doc.Graph.Edges, gexfEdge{
			ID:     strconv.Itoa(i),
			Source: e.Source,
			Target: e.Target,
			Weight: e.Weight,
			Values: []gexfValue{
				{For: "0", Value: e.Kind},
				{For: "1", Value: e.Relation},
				{For: "2", Value: strconv.FormatFloat(e.Confidence, 'g', -1, 64)},
			},
		})
	}
	return doc
}

type graphMLDoc struct {
	XMLName xml.Name     `xml:"graphml"`
	XMLNS   string       `xml:"xmlns,attr"`
	Keys    []graphMLKey `xml:"key"`
	Graph   graphMLGraph `xml:"graph"`
}

type graphMLKey struct {
	ID   string `xml:"id,attr"`
	For  string `xml:"for,attr"`
	Name string `xml:"attr.name,attr"`
	Type string `xml:"attr.type,attr"`
}

type graphMLGraph struct {
	EdgeDefault string        `xml:"edgedefault,attr"`
	Nodes       []graphMLNode `xml:"node"`
	Edges       []graphMLEdge `xml:"edge"`
}

type graphMLData struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

type graphMLNode struct {
	ID   string        `xml:"id,attr"`
	Data []graphMLData `xml:"data"`
}

type graphMLEdge struct {
	Source string        `xml:"source,attr"`
	Target string        `xml:"target,attr"`
	Data   []graphMLData `xml:"data"`
}

var graphMLKeys = []graphMLKey{
	{ID: "n_kind", For: "node", Name: "node_type", Type: "string"},
	{ID: "n_type", For: "node", Name: "type", Type: "string"},
	{ID: "n_label", For: "node", Name: "label", Type: "string"},
	{ID: "n_ts", For: "node", Name: "timestamp", Type: "string"},
	{ID: "e_kind", For: "edge", Name: "edge_type", Type: "string"},
	{ID: "e_rel", For: "edge", Name: "relation_type", Type: "string"},
	{ID: "e_conf", For: "edge", Name: "confidence", Type: "double"},
	{ID: "e_weight", For: "edge", Name: "weight", Type: "double"},
}

func toGraphML(g *Graph) graphMLDoc {
	doc := graphMLDoc{
		XMLNS: "http://graphml.graphdrawing.org/xmlns",
		Keys:  graphMLKeys,
		Graph: graphMLGraph{EdgeDefault: edgeDefault(g)},
	}
	for _, n := range g.Nodes() {
		node := graphMLNode{ID: n.ID, Data: []graphMLData{
			{Key: "n_kind", Value: n.Kind},
			{Key: "n_type", Value: n.Type},
		}}
		if n.Label != "" {
			node.Data = append(node.Data, graphMLData{Key: "n_label", Value: n.Label})
		}
		if ts := timestampString(n); ts != "" {
			node.Data = append(node.Data, graphMLData{Key: "n_ts", Value: ts})
		}
		doc.Graph.Nodes = append(doc.Graph.Nodes, node)
	}
	for _, e := range g.Edges() {
		edge := graphMLEdge{Source: e.Source, Target: e.Target, Data: []graphMLData{
			{Key: "e_kind", Value: e.Kind},
			{Key: "e_conf", Value: strconv.FormatFloat(e.Confidence, 'g', -1, 64)},
			{Key: "e_weight", Value: strconv.FormatFloat(e.Weight, 'g', -1, 64)},
		}}
		if e.Relation != "" {
			edge.Data = append(edge.Data, graphMLData{Key: "e_rel", Value: e.Relation})
		}
		doc.Graph.Edges = append(doc.Graph.Edges, edge)
	}
	return doc
}

// nodeLink is the node-link JSON layout.
type nodeLink struct {
	Directed bool   `json:"directed"`
	Graph    string `json:"graph"`
	Nodes    []Node `json:"nodes"`
	Edges    []Edge `json:"edges"`
}

func writeJSON(w io.Writer, g *Graph) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(nodeLink{
		Directed: g.Directed,
		Graph:    string(g.Kind),
		Nodes:    append([]Node{}, g.Nodes()...),
		Edges:    append([]Edge{}, g.Edges()...),
	})
}

func writeDOT(w io.Writer, g *Graph) error {
	b, err := dot.Marshal(g.toGonum(g.Directed).g, string(g.Kind), "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(b, '\n'))
	return err
}
