package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/eachPassingDay/ainote/internal/domain"
)

const analyzeSystemPrompt = `You classify notes. Respond with a single JSON object and nothing else:
{"content_type": "<kind of note, e.g. meeting, todo, idea, reference>", "primary_domain": "<subject area>", "entities": ["<named things mentioned>"]}`

const summarySystemPrompt = `You write one-sentence summaries of notes. Respond with the summary only.`

// Analyzer extracts structured classification metadata and summaries from
// note content. Both operations are best-effort: callers treat failure as
// "no metadata", never as a failed ingestion.
type Analyzer struct {
	llm TextGenerator
}

// NewAnalyzer creates an Analyzer
func NewAnalyzer(llm TextGenerator) *Analyzer {
	return &Analyzer{llm: llm}
}

// Analyze classifies content. Returns (nil, false) when the call fails or the
// response cannot be parsed as the expected JSON shape.
func (a *Analyzer) Analyze(ctx context.Context, content string) (*domain.NoteAnalysis, bool) {
	raw, err := a.llm.Complete(ctx, analyzeSystemPrompt, content)
	if err != nil {
		return nil, false
	}

	var analysis domain.NoteAnalysis
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &analysis); err != nil {
		return nil, false
	}
	if analysis.ContentType == "" && analysis.PrimaryDomain == "" && len(analysis.Entities) == 0 {
		return nil, false
	}
	return &analysis, true
}

// Summarize produces a short summary of content
func (a *Analyzer) Summarize(ctx context.Context, content string) (string, error) {
	raw, err := a.llm.Complete(ctx, summarySystemPrompt, content)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

// extractJSONObject pulls the first JSON object out of model output that may
// be wrapped in code fences or surrounded by filler text
func extractJSONObject(raw string) string {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end == -1 || end < start {
		return cleaned
	}
	return cleaned[start : end+1]
}
