package service

import (
	"context"
	"log"
	"time"

	"github.com/eachPassingDay/ainote/internal/domain"
	"github.com/eachPassingDay/ainote/internal/index"
	"github.com/eachPassingDay/ainote/internal/telemetry"
)

// HistoryService exposes a note's revision trail and rollback. Rollback
// restores by copying forward: the chosen revision's fields become a new
// version on top of the history, so no revision is ever rewritten or removed.
type HistoryService struct {
	store NoteStore
	idx   index.Index
}

// NewHistoryService creates a HistoryService
func NewHistoryService(store NoteStore, idx index.Index) *HistoryService {
	return &HistoryService{store: store, idx: idx}
}

// History returns all revisions of a note, newest first
func (s *HistoryService) History(ctx context.Context, noteID string) ([]*domain.Revision, error) {
	if _, err := s.store.GetNote(ctx, noteID); err != nil {
		return nil, err
	}
	return s.store.ListRevisions(ctx, noteID)
}

// GetRevision returns a single revision
func (s *HistoryService) GetRevision(ctx context.Context, noteID string, number int64) (*domain.Revision, error) {
	if _, err := s.store.GetNote(ctx, noteID); err != nil {
		return nil, err
	}
	return s.store.GetRevision(ctx, noteID, number)
}

// Rollback restores a note to the content of an earlier revision. The note's
// version still moves forward and a rollback revision records the restore;
// the note's status is untouched. The restored content is re-indexed.
func (s *HistoryService) Rollback(ctx context.Context, noteID string, number int64) (*domain.Note, error) {
	ctx, span := telemetry.StartSpan(ctx, "HistoryService.Rollback", telemetry.SpanAttributes{
		NoteID:    noteID,
		Operation: "rollback",
	})
	defer span.End()

	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if note.Deleted {
		return nil, domain.ErrNoteDeleted
	}

	rev, err := s.store.GetRevision(ctx, noteID, number)
	if err != nil {
		return nil, err
	}

	expected := note.Version
	note.Title = rev.Title
	note.Content = rev.Content
	note.Summary = rev.Summary
	note.Version++

	now := time.Now().UTC()
	rollbackRev := domain.SnapshotOf(note, note.Version, domain.ChangeKindRollback, now)
	if err := s.store.UpdateNote(ctx, note, expected, rollbackRev); err != nil {
		return nil, err
	}

	records := index.ChunkNote(note.ID, note.Title, note.Content, index.DefaultChunkConfig())
	if err := s.idx.Add(ctx, records); err != nil {
		log.Printf("failed to re-index rolled back note %s: %v", note.ID, err)
	}

	return note, nil
}
