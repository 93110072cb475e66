package service

import (
	"context"
	"strings"
)

// TextGenerator is the completion surface the engine needs from the AI client
type TextGenerator interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// SegmentDelimiter separates unrelated topics in the model's segmentation
// output. Chosen because it essentially never appears in real note text.
const SegmentDelimiter = "||||"

const segmentSystemPrompt = `You split free-form notes into topically coherent segments.
Reproduce the user's text verbatim, inserting the delimiter ` + SegmentDelimiter + ` between passages that cover unrelated topics.
Text about a single topic stays as one segment with no delimiter.
Output only the text with delimiters. No preamble, no commentary, no formatting of your own.`

// Segmenter splits raw note text into topic segments using the language model
type Segmenter struct {
	llm TextGenerator
}

// NewSegmenter creates a Segmenter
func NewSegmenter(llm TextGenerator) *Segmenter {
	return &Segmenter{llm: llm}
}

// Segment splits content into topic segments. Blank input yields no segments
// without touching the model. When the model's output contains no usable
// segments the whole input comes back as a single segment, so segmentation
// never loses content.
func (s *Segmenter) Segment(ctx context.Context, content string) ([]string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, nil
	}

	raw, err := s.llm.Complete(ctx, segmentSystemPrompt, trimmed)
	if err != nil {
		return nil, err
	}

	segments := SplitSegments(raw)
	if len(segments) == 0 {
		return []string{trimmed}, nil
	}
	return segments, nil
}

// SplitSegments splits delimited model output into trimmed non-blank segments
func SplitSegments(raw string) []string {
	parts := strings.Split(raw, SegmentDelimiter)
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			segments = append(segments, trimmed)
		}
	}
	return segments
}
