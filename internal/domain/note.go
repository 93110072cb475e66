package domain

import (
	"fmt"
	"time"
)

// NoteStatus represents the processing status of a note
type NoteStatus string

const (
	NoteStatusProcessing NoteStatus = "processing"
	NoteStatusCompleted  NoteStatus = "completed"
	NoteStatusFailed     NoteStatus = "failed"
)

// NoteAnalysis holds AI-extracted classification metadata for a note.
// It is optional: notes whose analysis call failed carry none.
type NoteAnalysis struct {
	ContentType   string   `json:"content_type"`
	PrimaryDomain string   `json:"primary_domain"`
	Entities      []string `json:"entities"`
}

// Note represents a unit of knowledge in the system
type Note struct {
	ID        string
	Title     string
	Content   string
	Summary   string
	Status    NoteStatus
	Version   int64
	Deleted   bool
	Analysis  *NoteAnalysis
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewNote creates a new Note in processing state with version 1
func NewNote(id, title, content string, now time.Time) *Note {
	return &Note{
		ID:        id,
		Title:     title,
		Content:   content,
		Status:    NoteStatusProcessing,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ValidateNote validates a Note instance
func ValidateNote(n *Note) error {
	if n == nil {
		return fmt.Errorf("note cannot be nil")
	}

	if n.ID == "" {
		return fmt.Errorf("note ID is required")
	}

	if n.Version <= 0 {
		return fmt.Errorf("note Version must be greater than 0")
	}

	if !isValidNoteStatus(n.Status) {
		return fmt.Errorf("note Status is invalid: %s", n.Status)
	}

	return nil
}

// isValidNoteStatus checks if a NoteStatus is valid
func isValidNoteStatus(s NoteStatus) bool {
	switch s {
	case NoteStatusProcessing, NoteStatusCompleted, NoteStatusFailed:
		return true
	}
	return false
}
