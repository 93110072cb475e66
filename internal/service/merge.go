package service

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/eachPassingDay/ainote/internal/domain"
	"github.com/eachPassingDay/ainote/internal/index"
	"github.com/eachPassingDay/ainote/internal/telemetry"
)

const fusionSystemPrompt = `You merge new information into an existing note.
Produce one coherent note that keeps every fact from both inputs, removes duplication, and reads as a single text.
Preserve the existing note's tone and structure where possible. Output only the merged note.`

// MergeExecutor fuses new content into existing notes via the language model
type MergeExecutor struct {
	store NoteStore
	llm   TextGenerator
	idx   index.Index
}

// NewMergeExecutor creates a MergeExecutor
func NewMergeExecutor(store NoteStore, llm TextGenerator, idx index.Index) *MergeExecutor {
	return &MergeExecutor{store: store, llm: llm, idx: idx}
}

// Merge fuses newContent into the target note: the model produces the merged
// text, the note's content is replaced, its version bumps, and a merge
// revision is appended in the same store transaction. The fused content is
// re-indexed; the note's previous index records stay until retrieval retires
// them.
func (m *MergeExecutor) Merge(ctx context.Context, targetID, newContent string) (*domain.Note, error) {
	if strings.TrimSpace(newContent) == "" {
		return nil, domain.ErrEmptyContent
	}

	note, err := m.store.GetNote(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if note.Deleted {
		return nil, domain.ErrNoteDeleted
	}

	fused, err := m.fuse(ctx, note.Content, newContent)
	if err != nil {
		return nil, err
	}

	expected := note.Version
	note.Content = fused
	note.Version++

	// Summary refresh is best-effort: a stale summary beats a failed merge
	if summary, err := m.llm.Complete(ctx, summarySystemPrompt, fused); err == nil {
		note.Summary = strings.TrimSpace(summary)
	} else {
		log.Printf("summary refresh failed for note %s: %v", note.ID, err)
	}

	now := time.Now().UTC()
	rev := domain.SnapshotOf(note, note.Version, domain.ChangeKindMerge, now)
	if err := m.store.UpdateNote(ctx, note, expected, rev); err != nil {
		return nil, err
	}

	records := index.ChunkNote(note.ID, note.Title, note.Content, index.DefaultChunkConfig())
	if err := m.idx.Add(ctx, records); err != nil {
		log.Printf("failed to re-index merged note %s: %v", note.ID, err)
	}

	return note, nil
}

// MergeNotes merges the source note's content into the target and soft-deletes
// the source. The source's revisions are kept; its index records become
// orphans and are purged lazily during retrieval.
func (m *MergeExecutor) MergeNotes(ctx context.Context, sourceID, targetID string) (*domain.Note, error) {
	ctx, span := telemetry.StartSpan(ctx, "MergeExecutor.MergeNotes", telemetry.SpanAttributes{
		NoteID:    targetID,
		Operation: "merge_notes",
	})
	defer span.End()

	if sourceID == targetID {
		return nil, domain.ErrMergeSelfTarget
	}

	source, err := m.store.GetNote(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if source.Deleted {
		return nil, domain.ErrNoteDeleted
	}

	merged, err := m.Merge(ctx, targetID, source.Content)
	if err != nil {
		return nil, err
	}

	source.Deleted = true
	expected := source.Version
	source.Version++
	if err := m.store.UpdateNote(ctx, source, expected, nil); err != nil {
		return nil, err
	}

	return merged, nil
}

// fuse asks the model to merge the two texts. Both inputs are fenced so the
// model cannot confuse note text with instructions, and the segment delimiter
// and percent sequences are stripped from user content before interpolation.
func (m *MergeExecutor) fuse(ctx context.Context, existing, incoming string) (string, error) {
	var b strings.Builder
	b.WriteString("EXISTING NOTE:\n\"\"\"\n")
	b.WriteString(sanitizePromptInput(existing))
	b.WriteString("\n\"\"\"\n\nNEW INFORMATION:\n\"\"\"\n")
	b.WriteString(sanitizePromptInput(incoming))
	b.WriteString("\n\"\"\"")

	fused, err := m.llm.Complete(ctx, fusionSystemPrompt, b.String())
	if err != nil {
		return "", err
	}

	fused = strings.TrimSpace(fused)
	if fused == "" {
		return "", domain.NewDomainError(domain.ErrCodeTransient, "merge produced empty content")
	}
	return fused, nil
}

// sanitizePromptInput removes character sequences that carry meaning in the
// engine's prompts from user-supplied text
func sanitizePromptInput(text string) string {
	sanitized := strings.ReplaceAll(text, SegmentDelimiter, " ")
	sanitized = strings.ReplaceAll(sanitized, "%%", "%")
	return sanitized
}
