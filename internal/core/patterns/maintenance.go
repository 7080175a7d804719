package patterns

import (
	"context"

	"go.uber.org/zap"

	"github.com/agenthands/eventgraph/internal/cache"
	"github.com/agenthands/eventgraph/internal/config"
	"github.com/agenthands/eventgraph/internal/core/common"
	"github.com/agenthands/eventgraph/internal/core/model"
	"github.com/agenthands/eventgraph/internal/logging"
)

// OptimizeOptions bounds OptimizePatterns. Zero thresholds disable pruning
// on that measure; a zero MergeThreshold uses the configured similarity
// threshold.
type OptimizeOptions struct {
	MinSupport     float64 `json:"min_support"`
	MinConfidence  float64 `json:"min_confidence"`
	MergeThreshold float64 `json:"merge_threshold"`
}

type OptimizeReport struct {
	Pruned []string `json:"pruned"`
	// Merged maps each removed duplicate to the pattern that absorbed it.
	Merged map[string]string `json:"merged"`
}

// OptimizePatterns deletes low-quality patterns, then merges patterns of the
// same type and domain whose sequences overlap at least MergeThreshold
// (Jaccard over event types). The pattern with the higher support survives
// and absorbs the other's frequency and instances.
func (m *Manager) OptimizePatterns(ctx context.Context, opts OptimizeOptions) (_ *OptimizeReport, err error) {
	defer logging.Observe(m.log, "patterns.optimize", &err)()

	if opts.MergeThreshold <= 0 {
		opts.MergeThreshold = m.cfg.SimilarityThreshold
	}
	// sorted by support descending
	all, err := m.store.QueryEventPatterns(ctx, model.PatternQuery{})
	if err != nil {
		return nil, err
	}

	report := &OptimizeReport{Merged: make(map[string]string)}
	var kept []model.EventPattern
	for _, p := range all {
		if (opts.MinSupport > 0 && p.Support < opts.MinSupport) ||
			(opts.MinConfidence > 0 && p.Confidence < opts.MinConfidence) {
			if _, err := m.DeletePattern(ctx, p.ID); err != nil {
				return report, err
			}
			report.Pruned = append(report.Pruned, p.ID)
			continue
		}
		kept = append(kept, p)
	}

	removed := make(map[string]bool)
	for i := range kept {
		if removed[kept[i].ID] {
			continue
		}
		survivor := &kept[i]
		changed := false
		for j := i + 1; j < len(kept); j++ {
			dup := &kept[j]
			if removed[dup.ID] || dup.Type != survivor.Type || dup.Domain != survivor.Domain {
				continue
			}
			if common.Jaccard(survivor.EventSequence, dup.EventSequence) < opts.MergeThreshold {
				continue
			}
			survivor.Frequency += dup.Frequency
			survivor.Instances = appendUnique(survivor.Instances, dup.Instances...)
			removed[dup.ID] = true
			report.Merged[dup.ID] = survivor.ID
			changed = true
		}
		if !changed {
			continue
		}
		if err := m.UpdatePattern(ctx, survivor); err != nil {
			return report, err
		}
		for dupID, into := range report.Merged {
			if into != survivor.ID {
				continue
			}
			if _, err := m.DeletePattern(ctx, dupID); err != nil {
				return report, err
			}
		}
	}

	m.log.Info("patterns optimized", zap.Int("pruned", len(report.Pruned)), zap.Int("merged", len(report.Merged)))
	return report, nil
}

type Statistics struct {
	TotalPatterns          int                    `json:"total_patterns"`
	TypeDistribution       map[string]int         `json:"pattern_type_distribution"`
	ComplexityDistribution map[int]int            `json:"complexity_distribution"`
	Support                common.Summary         `json:"support_statistics"`
	IndexedEventTypes      int                    `json:"indexed_event_types"`
	VectorDocuments        int                    `json:"vector_documents"`
	Caches                 map[string]cache.Stats `json:"caches"`
	MiningConfig           config.PatternConfig   `json:"mining_config"`
}

func (m *Manager) GetStatistics(ctx context.Context) (_ *Statistics, err error) {
	defer logging.Observe(m.log, "patterns.statistics", &err)()

	all, err := m.store.QueryEventPatterns(ctx, model.PatternQuery{})
	if err != nil {
		return nil, err
	}
	stats := &Statistics{
		TotalPatterns:          len(all),
		TypeDistribution:       make(map[string]int),
		ComplexityDistribution: make(map[int]int),
		Caches: map[string]cache.Stats{
			"patterns": m.patterns.Stats(),
			"queries":  m.queries.Stats(),
		},
		MiningConfig: m.cfg,
	}
	supports := make([]float64, len(all))
	for i := range all {
		stats.TypeDistribution[all[i].Type.String()]++
		stats.ComplexityDistribution[all[i].Complexity()]++
		supports[i] = all[i].Support
	}
	stats.Support = common.Summarize(supports)

	m.mu.RLock()
	stats.IndexedEventTypes = len(m.byType)
	m.mu.RUnlock()
	if m.index != nil {
		stats.VectorDocuments = m.index.Count()
	}
	return stats, nil
}
