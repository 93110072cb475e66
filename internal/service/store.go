package service

import (
	"context"

	"github.com/eachPassingDay/ainote/internal/domain"
	"github.com/eachPassingDay/ainote/internal/pagination"
	"github.com/google/uuid"
)

// NoteStore defines the persistence contract for notes and their revision
// history. Mutations that carry a revision apply the note change and the
// revision append atomically: both land or neither does. UpdateNote enforces
// optimistic concurrency against expectedVersion and returns
// domain.ErrVersionConflict when the stored version has moved on.
type NoteStore interface {
	CreateNote(ctx context.Context, note *domain.Note, rev *domain.Revision) error
	// GetNote returns the note regardless of its deleted flag so callers can
	// distinguish soft-deleted notes from missing ones.
	GetNote(ctx context.Context, id string) (*domain.Note, error)
	ListNotes(ctx context.Context, cursor *pagination.Cursor, limit int) (*NotePageResult, error)
	ListAllNotes(ctx context.Context) ([]*domain.Note, error)
	UpdateNote(ctx context.Context, note *domain.Note, expectedVersion int64, rev *domain.Revision) error
	ListRevisions(ctx context.Context, noteID string) ([]*domain.Revision, error)
	GetRevision(ctx context.Context, noteID string, number int64) (*domain.Revision, error)
}

// NotePageResult is one page of live notes with cursor pagination metadata
type NotePageResult struct {
	Items      []*domain.Note
	NextCursor string
	HasMore    bool
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}
