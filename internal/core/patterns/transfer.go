package patterns

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/agenthands/eventgraph/internal/core/model"
	"github.com/agenthands/eventgraph/internal/errs"
	"github.com/agenthands/eventgraph/internal/logging"
)

// record is the on-disk form of a pattern.
type record struct {
	ID            string            `json:"id"`
	Name          string            `json:"pattern_name,omitempty"`
	Type          model.PatternType `json:"pattern_type"`
	Description   string            `json:"description"`
	EventSequence []model.EventType `json:"event_sequence"`
	Conditions    map[string]any    `json:"conditions"`
	Support       float64           `json:"support"`
	Confidence    float64           `json:"confidence"`
	Domain        string            `json:"domain"`
	Frequency     int               `json:"frequency"`
}

func toRecord(p *model.EventPattern) record {
	return record{
		ID:            p.ID,
		Name:          p.Name,
		Type:          p.Type,
		Description:   p.Description,
		EventSequence: p.EventSequence,
		Conditions:    p.Conditions,
		Support:       p.Support,
		Confidence:    p.Confidence,
		Domain:        p.Domain,
		Frequency:     p.Frequency,
	}
}

func (r record) pattern() model.EventPattern {
	return model.EventPattern{
		ID:            r.ID,
		Name:          r.Name,
		Type:          r.Type,
		Description:   r.Description,
		EventSequence: r.EventSequence,
		Conditions:    r.Conditions,
		Support:       r.Support,
		Confidence:    r.Confidence,
		Domain:        r.Domain,
		Frequency:     r.Frequency,
	}
}

// ExportPatterns writes every stored pattern to w as a JSON array and
// returns how many were written.
func (m *Manager) ExportPatterns(ctx context.Context, w io.Writer) (_ int, err error) {
	defer logging.Observe(m.log, "patterns.export", &err)()

	all, err := m.store.QueryEventPatterns(ctx, model.PatternQuery{})
	if err != nil {
		return 0, err
	}
	records := make([]record, len(all))
	for i := range all {
		records[i] = toRecord(&all[i])
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return 0, fmt.Errorf("encode patterns: %w", err)
	}
	return len(records), nil
}

// ImportPatterns reads a JSON array written by ExportPatterns and adds each
// pattern. Existing ids are overwritten.
func (m *Manager) ImportPatterns(ctx context.Context, r io.Reader) (_ errs.BatchResult, err error) {
	defer logging.Observe(m.log, "patterns.import", &err)()

	var records []record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, errs.InvalidArgument("patterns.import", "malformed pattern file: %v", err)
	}
	patterns := make([]model.EventPattern, len(records))
	for i, rec := range records {
		patterns[i] = rec.pattern()
	}
	return m.BatchAddPatterns(ctx, patterns), nil
}

func (m *Manager) ExportPatternsToFile(ctx context.Context, path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create export file: %w", err)
	}
	n, err := m.ExportPatterns(ctx, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close export file: %w", cerr)
	}
	return n, err
}

func (m *Manager) ImportPatternsFromFile(ctx context.Context, path string) (errs.BatchResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()
	return m.ImportPatterns(ctx, f)
}
