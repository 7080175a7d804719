// Package summary turns mined patterns and event groups into short
// human-readable text, using an LLM when one is configured.
package summary

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/agenthands/eventgraph/internal/core/common"
	"github.com/agenthands/eventgraph/internal/core/model"
	"github.com/agenthands/eventgraph/internal/llm"
	"github.com/agenthands/eventgraph/internal/logging"
)

// chunkSize bounds how many lines go into one summarization prompt.
const chunkSize = 20

const describePrompt = `You name recurring business event patterns.
Pattern type: %s
Domain: %s
Event sequence: %s
Observed %d times (support %.2f).
Example events:
%s
Respond with JSON: {"name": "<short name>", "description": "<one sentence>"}`

const summarizePrompt = `Summarize the following events in two sentences.
%s
Respond with JSON: {"summary": "<text>"}`

type description struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type summaryResult struct {
	Summary string `json:"summary"`
}

// Describer writes names and descriptions for patterns. Without an LLM, or
// when the LLM fails, it falls back to templates.
type Describer struct {
	LLM llm.LLMClient
	log *zap.Logger
}

func NewDescriber(client llm.LLMClient, logger *zap.Logger) *Describer {
	return &Describer{LLM: client, log: logging.OrNop(logger).Named("summary")}
}

// DescribePattern sets p.Name and p.Description. examples are optional
// instances shown to the LLM.
func (d *Describer) DescribePattern(ctx context.Context, p *model.EventPattern, examples []model.Event) {
	if d.LLM != nil {
		var lines strings.Builder
		for i, e := range examples {
			if i == 5 {
				break
			}
			fmt.Fprintf(&lines, "- [%s] %s\n", e.Type, firstNonEmpty(e.Summary, e.Text))
		}
		prompt := fmt.Sprintf(describePrompt, p.Type, p.Domain,
			model.JoinTypes(p.EventSequence, " -> "), p.Frequency, p.Support, lines.String())

		resp, err := d.LLM.Generate(ctx, prompt)
		if err == nil {
			var desc description
			if desc, err = common.ParseJSON[description](resp); err == nil && desc.Name != "" {
				p.Name = desc.Name
				p.Description = desc.Description
				return
			}
		}
		d.log.Warn("pattern description fell back to template", zap.String("pattern_id", p.ID), zap.Error(err))
	}
	p.Name, p.Description = templateDescription(p)
}

func templateDescription(p *model.EventPattern) (string, string) {
	seq := model.JoinTypes(p.EventSequence, " -> ")
	name := fmt.Sprintf("%s: %s", p.Type, seq)
	switch p.Type {
	case model.PatternTemporalSequence:
		return name, fmt.Sprintf("%s events tend to follow one another in the %s domain (%d occurrences)", seq, p.Domain, p.Frequency)
	case model.PatternCausalRelationship:
		return name, fmt.Sprintf("%s is likely to lead to %s (%d occurrences)",
			p.EventSequence[0], model.JoinTypes(p.EventSequence[1:], ", "), p.Frequency)
	case model.PatternCooccurrence:
		return name, fmt.Sprintf("%s events occur together (%d occurrences)", model.JoinTypes(p.EventSequence, ", "), p.Frequency)
	}
	return name, fmt.Sprintf("custom pattern over %s", seq)
}

// SummarizeEvents condenses events into a short text. Long inputs are split
// into chunks whose summaries are summarized again.
func (d *Describer) SummarizeEvents(ctx context.Context, events []model.Event) (string, error) {
	lines := make([]string, 0, len(events))
	for _, e := range events {
		text := firstNonEmpty(e.Summary, e.Text)
		if text == "" {
			continue
		}
		if e.Timestamp != nil {
			text = e.Timestamp.Format("2006-01-02") + " " + text
		}
		lines = append(lines, text)
	}
	if len(lines) == 0 {
		return "", nil
	}
	return d.reduce(ctx, lines)
}

func (d *Describer) reduce(ctx context.Context, lines []string) (string, error) {
	if d.LLM == nil {
		return strings.Join(lines[:min(len(lines), 3)], "; "), nil
	}
	if len(lines) <= chunkSize {
		var b strings.Builder
		for _, l := range lines {
			fmt.Fprintf(&b, "- %s\n", l)
		}
		resp, err := d.LLM.Generate(ctx, fmt.Sprintf(summarizePrompt, b.String()))
		if err != nil {
			return "", fmt.Errorf("failed to generate summary: %w", err)
		}
		if res, err := common.ParseJSON[summaryResult](resp); err == nil && res.Summary != "" {
			return res.Summary, nil
		}
		return strings.TrimSpace(resp), nil
	}

	var partial []string
	for i := 0; i < len(lines); i += chunkSize {
		s, err := d.reduce(ctx, lines[i:min(i+chunkSize, len(lines))])
		if err != nil {
			d.log.Warn("chunk summary failed", zap.Int("chunk", i/chunkSize), zap.Error(err))
			continue
		}
		partial = append(partial, s)
	}
	if len(partial) == 0 {
		return "", fmt.Errorf("failed to summarize any of %d chunks", (len(lines)+chunkSize-1)/chunkSize)
	}
	return d.reduce(ctx, partial)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
