package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/eachPassingDay/ainote/internal/telemetry"
)

const chatSystemPrompt = `You answer questions using only the user's saved notes, quoted below.
Ground every statement in the notes; when the notes do not cover the question, say so plainly.
Answer in the language of the question.`

// NoAnswerFallback is returned when no saved note is relevant to the question
const NoAnswerFallback = "I couldn't find anything in your notes about that."

// ChatFilter narrows which notes ground the answer
type ChatFilter struct {
	Domain      string
	ContentType string
}

// ChatService answers questions grounded in retrieved notes
type ChatService struct {
	decision *DecisionEngine
	llm      TextGenerator
}

// NewChatService creates a ChatService
func NewChatService(decision *DecisionEngine, llm TextGenerator) *ChatService {
	return &ChatService{decision: decision, llm: llm}
}

// Chat retrieves the notes most relevant to the question, optionally filtered
// by analysis metadata, and asks the model to answer from them. No relevant
// notes short-circuits to a fixed fallback without a model call.
func (s *ChatService) Chat(ctx context.Context, question string, filter ChatFilter) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "ChatService.Chat", telemetry.SpanAttributes{
		Operation: "chat",
	})
	defer span.End()

	if strings.TrimSpace(question) == "" {
		return "", nil
	}

	candidates, err := s.decision.Candidates(ctx, question)
	if err != nil {
		return "", err
	}

	var grounded []RankedNote
	for _, c := range candidates {
		if !matchesFilter(c, filter) {
			continue
		}
		grounded = append(grounded, c)
	}
	if len(grounded) == 0 {
		return NoAnswerFallback, nil
	}

	var b strings.Builder
	b.WriteString("NOTES:\n")
	for i, c := range grounded {
		b.WriteString("--- note ")
		b.WriteString(strconv.Itoa(i + 1))
		if c.Note.Title != "" {
			b.WriteString(" (")
			b.WriteString(c.Note.Title)
			b.WriteString(")")
		}
		b.WriteString(" ---\n")
		b.WriteString(sanitizePromptInput(c.Note.Content))
		b.WriteString("\n")
	}
	b.WriteString("\nQUESTION: ")
	b.WriteString(sanitizePromptInput(question))

	return s.llm.Complete(ctx, chatSystemPrompt, b.String())
}

func matchesFilter(c RankedNote, filter ChatFilter) bool {
	if filter.Domain == "" && filter.ContentType == "" {
		return true
	}
	if c.Note.Analysis == nil {
		return false
	}
	if filter.Domain != "" && !strings.EqualFold(c.Note.Analysis.PrimaryDomain, filter.Domain) {
		return false
	}
	if filter.ContentType != "" && !strings.EqualFold(c.Note.Analysis.ContentType, filter.ContentType) {
		return false
	}
	return true
}
