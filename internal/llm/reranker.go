package llm

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/agenthands/eventgraph/internal/logging"
)

const maxRerankDocLen = 200

var indexPattern = regexp.MustCompile(`\d+`)

// SimpleLLMReranker asks the LLM to order documents by relevance.
type SimpleLLMReranker struct {
	LLM LLMClient
	log *zap.Logger
}

func NewSimpleLLMReranker(client LLMClient, logger *zap.Logger) *SimpleLLMReranker {
	return &SimpleLLMReranker{LLM: client, log: logging.OrNop(logger)}
}

// Rank returns a permutation of the document indices, most relevant first.
// On LLM failure the original order is returned.
func (r *SimpleLLMReranker) Rank(ctx context.Context, query string, docs []string) ([]int, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	if len(docs) == 1 {
		return []int{0}, nil
	}

	var docList strings.Builder
	for i, d := range docs {
		if len(d) > maxRerankDocLen {
			d = d[:maxRerankDocLen] + "..."
		}
		fmt.Fprintf(&docList, "[%d] %s\n", i, d)
	}

	prompt := fmt.Sprintf(`You are a search relevance optimization system.
Query: %s

Event patterns:
%s
Rank the event patterns above based on their relevance to the query.
Output ONLY the indices in order of relevance, separated by commas.
Example: 0, 2, 1
Do not output any other text.`, query, docList.String())

	resp, err := r.LLM.Generate(ctx, prompt)
	if err != nil {
		r.log.Warn("rerank failed, keeping original order", zap.Error(err))
		return identity(len(docs)), nil
	}
	return completePermutation(parseIndices(resp), len(docs)), nil
}

func parseIndices(s string) []int {
	var indices []int
	for _, m := range indexPattern.FindAllString(s, -1) {
		if i, err := strconv.Atoi(m); err == nil {
			indices = append(indices, i)
		}
	}
	return indices
}

// completePermutation drops out-of-range and repeated indices, then appends
// the ones the model left out in their original order.
func completePermutation(indices []int, n int) []int {
	seen := make([]bool, n)
	out := make([]int, 0, n)
	for _, i := range indices {
		if i < 0 || i >= n || seen[i] {
			continue
		}
		seen[i] = true
		out = append(out, i)
	}
	for i := 0; i < n; i++ {
		if !seen[i] {
			out = append(out, i)
		}
	}
	return out
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
