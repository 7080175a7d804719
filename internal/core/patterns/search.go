package patterns

import (
	"context"

	"go.uber.org/zap"

	"github.com/agenthands/eventgraph/internal/core/model"
	"github.com/agenthands/eventgraph/internal/errs"
	"github.com/agenthands/eventgraph/internal/logging"
)

// SemanticSearchPatterns embeds text and returns the nearest stored
// patterns with their cosine similarity. Results are re-ordered by the
// reranker when one is configured.
func (m *Manager) SemanticSearchPatterns(ctx context.Context, text string, topK int) (_ []model.PatternMatch, err error) {
	defer logging.Observe(m.log, "patterns.semantic_search", &err, zap.Int("top_k", topK))()

	if m.index == nil {
		return nil, errs.New(errs.KindVectorUnavailable, "patterns.semantic_search", "no vector index configured", nil)
	}
	if topK <= 0 {
		topK = 10
	}
	emb, err := m.index.Embed(ctx, text)
	if err != nil {
		return nil, errs.New(errs.KindVectorUnavailable, "patterns.semantic_search", "embedding failed", err)
	}
	hits, err := m.index.Query(ctx, emb, topK)
	if err != nil {
		return nil, errs.New(errs.KindVectorUnavailable, "patterns.semantic_search", "vector query failed", err)
	}

	var (
		out  []model.PatternMatch
		docs []string
	)
	for _, h := range hits {
		p, err := m.GetPattern(ctx, h.ID)
		if err != nil {
			return nil, err
		}
		if p == nil {
			// vector entry without a graph record
			m.log.Warn("orphaned vector entry", zap.String("pattern_id", h.ID))
			continue
		}
		out = append(out, model.PatternMatch{Pattern: *p, Score: float64(h.Similarity)})
		docs = append(docs, h.Content)
	}

	if m.reranker != nil && len(out) > 1 {
		order, err := m.reranker.Rank(ctx, text, docs)
		if err != nil {
			m.log.Warn("rerank failed", zap.Error(err))
			return out, nil
		}
		ranked := make([]model.PatternMatch, 0, len(out))
		for _, i := range order {
			if i >= 0 && i < len(out) {
				ranked = append(ranked, out[i])
			}
		}
		if len(ranked) == len(out) {
			out = ranked
		}
	}
	return out, nil
}
